package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/presence"
	"github.com/vistrive/assetnext/internal/storage"
)

// agentHeartbeat handles POST /api/network/agent/heartbeat
func (h *Handler) agentHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req model.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		h.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	agent, err := h.tracker.Heartbeat(req.AgentID, apiKey(r), &req)
	if err != nil {
		h.writePresenceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agent)
}

// updatePresence handles POST /api/network/presence/update
func (h *Handler) updatePresence(w http.ResponseWriter, r *http.Request) {
	var req model.PresenceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		h.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	snap, err := h.tracker.UpdatePresence(req.AgentID, apiKey(r), &req)
	if err != nil {
		h.writePresenceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// presenceLive handles GET /api/network/presence/live
func (h *Handler) presenceLive(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	snap, err := h.tracker.Snapshot(claims.TenantID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// listAgents handles GET /api/network/agents
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	agents, err := h.storage.ListAgents(claims.TenantID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agents)
}

// createAgent handles POST /api/network/agents
func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	var req model.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentName == "" {
		h.writeError(w, http.StatusBadRequest, "agent_name is required")
		return
	}

	resp, err := h.tracker.RegisterAgent(claims.TenantID, &req)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// getAgent handles GET /api/network/agents/{agentId}
func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	agent, err := h.tenantAgent(claims.TenantID, r.PathValue("agentId"))
	if err != nil {
		if errors.Is(err, storage.ErrAgentNotFound) {
			h.writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agent)
}

// updateAgent handles PATCH /api/network/agents/{agentId}
func (h *Handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	agent, err := h.tenantAgent(claims.TenantID, r.PathValue("agentId"))
	if err != nil {
		if errors.Is(err, storage.ErrAgentNotFound) {
			h.writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.internalError(w, err)
		return
	}

	var req struct {
		AgentName    *string `json:"agent_name"`
		NetworkRange *string `json:"network_range"`
		Status       *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AgentName != nil {
		agent.AgentName = *req.AgentName
	}
	if req.NetworkRange != nil {
		agent.NetworkRange = *req.NetworkRange
	}
	if req.Status != nil {
		switch *req.Status {
		case model.AgentStatusPending, model.AgentStatusActive, model.AgentStatusOffline:
			agent.Status = *req.Status
		default:
			h.writeError(w, http.StatusBadRequest, "invalid agent status")
			return
		}
	}

	if err := h.storage.UpdateAgent(agent); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agent)
}

// deleteAgent handles DELETE /api/network/agents/{agentId}
func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	agentID := r.PathValue("agentId")
	if err := h.storage.DeleteAgent(claims.TenantID, agentID); err != nil {
		if errors.Is(err, storage.ErrAgentNotFound) {
			h.writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.internalError(w, err)
		return
	}

	if err := h.storage.RecordActivity(claims.TenantID, claims.UserID, "presence.agent.deleted", agentID); err != nil {
		log.Warn("recording agent deletion activity", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// listAlerts handles GET /api/network/alerts
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	alerts, err := h.tracker.Alerts(claims.TenantID, r.URL.Query().Get("status"))
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, alerts)
}

// acknowledgeAlert handles PATCH /api/network/alerts/{id}
func (h *Handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.tracker.Acknowledge(claims.TenantID, id, claims.UserID); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			h.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.internalError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// tenantAgent loads an agent and hides other tenants' agents behind a 404.
func (h *Handler) tenantAgent(tenantID, agentID string) (*model.NetworkMonitorAgent, error) {
	if agentID == "" {
		return nil, storage.ErrAgentNotFound
	}
	agent, err := h.storage.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent.TenantID != tenantID {
		return nil, storage.ErrAgentNotFound
	}
	return agent, nil
}

// writePresenceError maps presence tracker errors onto HTTP statuses.
func (h *Handler) writePresenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, presence.ErrAgentUnauthorized) {
		h.writeError(w, http.StatusUnauthorized, "invalid agent credentials")
		return
	}
	h.internalError(w, err)
}

// apiKey extracts the monitor agent API key. Agents send it either as a
// bearer credential or in the X-API-Key header.
func apiKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return bearerToken(r)
}
