package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vistrive/assetnext/internal/discovery"
	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/presence"
	"github.com/vistrive/assetnext/internal/storage"
	"github.com/vistrive/assetnext/internal/token"
)

// Handler handles HTTP requests
type Handler struct {
	storage  storage.Storage
	registry *discovery.Registry
	tracker  *presence.Tracker
	tokens   *token.Service
}

// NewHandler creates a new API handler
func NewHandler(s storage.Storage, registry *discovery.Registry, tracker *presence.Tracker, tokens *token.Service) *Handler {
	return &Handler{
		storage:  s,
		registry: registry,
		tracker:  tracker,
		tokens:   tokens,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Discovery jobs (operator)
	mux.HandleFunc("POST /api/discovery/jobs", h.createJob)
	mux.HandleFunc("GET /api/discovery/jobs", h.listJobs)
	mux.HandleFunc("GET /api/discovery/jobs/{jobId}", h.getJobStatus)
	mux.HandleFunc("GET /api/discovery/jobs/{jobId}/stream", h.streamJob)
	mux.HandleFunc("POST /api/discovery/import", h.importDevices)

	// Discovery jobs (scan agent, job token)
	mux.HandleFunc("PATCH /api/discovery/jobs/{jobId}/progress", h.updateProgress)
	mux.HandleFunc("POST /api/discovery/jobs/{jobId}/results", h.uploadResults)

	// Presence (monitor agent, API key)
	mux.HandleFunc("POST /api/network/agent/heartbeat", h.agentHeartbeat)
	mux.HandleFunc("POST /api/network/presence/update", h.updatePresence)

	// Presence (operator)
	mux.HandleFunc("GET /api/network/presence/live", h.presenceLive)
	mux.HandleFunc("GET /api/network/presence/stream", h.streamPresence)

	// Monitor agent management (operator, admin)
	mux.HandleFunc("GET /api/network/agents", h.listAgents)
	mux.HandleFunc("POST /api/network/agents", h.createAgent)
	mux.HandleFunc("GET /api/network/agents/{agentId}", h.getAgent)
	mux.HandleFunc("PATCH /api/network/agents/{agentId}", h.updateAgent)
	mux.HandleFunc("DELETE /api/network/agents/{agentId}", h.deleteAgent)

	// Alerts (operator)
	mux.HandleFunc("GET /api/network/alerts", h.listAlerts)
	mux.HandleFunc("PATCH /api/network/alerts/{id}", h.acknowledgeAlert)

	// Credential profiles (operator, admin)
	mux.HandleFunc("GET /api/discovery/credentials", h.listCredentials)
	mux.HandleFunc("POST /api/discovery/credentials", h.createCredential)
	mux.HandleFunc("GET /api/discovery/credentials/{id}", h.getCredential)
	mux.HandleFunc("PUT /api/discovery/credentials/{id}", h.updateCredential)
	mux.HandleFunc("DELETE /api/discovery/credentials/{id}", h.deleteCredential)
}

// operator returns the authenticated operator claims placed in the request
// context by OperatorAuthMiddleware.
func (h *Handler) operator(w http.ResponseWriter, r *http.Request) (*token.OperatorClaims, bool) {
	claims := operatorFrom(r.Context())
	if claims == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return claims, true
}

// admin is operator plus the admin role gate.
func (h *Handler) admin(w http.ResponseWriter, r *http.Request) (*token.OperatorClaims, bool) {
	claims, ok := h.operator(w, r)
	if !ok {
		return nil, false
	}
	if claims.Role != "admin" {
		h.writeError(w, http.StatusForbidden, "admin role required")
		return nil, false
	}
	return claims, true
}

// agentJob verifies the scan agent's bearer token against the job code in the
// request path and resolves the job. Error responses follow the token verdict:
// invalid 401, wrong job 403, expired 410.
func (h *Handler) agentJob(w http.ResponseWriter, r *http.Request) (*model.DiscoveryJob, bool) {
	jobCode := r.PathValue("jobId")
	if jobCode == "" {
		h.writeError(w, http.StatusBadRequest, "job ID required")
		return nil, false
	}

	v := h.tokens.Verify(bearerToken(r), jobCode)
	switch v.Status {
	case token.StatusValid:
	case token.StatusExpired:
		h.writeError(w, http.StatusGone, "job token expired")
		return nil, false
	case token.StatusMismatched:
		h.writeError(w, http.StatusForbidden, "token not valid for this job")
		return nil, false
	default:
		h.writeError(w, http.StatusUnauthorized, "invalid job token")
		return nil, false
	}

	job, err := h.registry.GetJobByCode(v.Claims.TenantID, jobCode)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		h.internalError(w, err)
		return nil, false
	}
	return job, true
}

// loadJob resolves an operator-supplied job reference, internal id or short
// code, scoped to the tenant. Cross-tenant ids are a plain 404.
func (h *Handler) loadJob(tenantID, ref string) (*model.DiscoveryJob, error) {
	job, err := h.registry.GetJob(tenantID, ref)
	if errors.Is(err, storage.ErrJobNotFound) {
		return h.registry.GetJobByCode(tenantID, ref)
	}
	return job, err
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// internalError logs the error and writes a generic 500 response
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
