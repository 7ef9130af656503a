package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
)

var credentialTypes = map[string]bool{
	"snmp_v2c": true,
	"snmp_v3":  true,
	"ssh":      true,
	"winrm":    true,
}

// listCredentials handles GET /api/discovery/credentials
func (h *Handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	profiles, err := h.storage.ListCredentialProfiles(claims.TenantID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, profiles)
}

// createCredential handles POST /api/discovery/credentials
func (h *Handler) createCredential(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	var profile model.CredentialProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if profile.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !credentialTypes[profile.CredentialType] {
		h.writeError(w, http.StatusBadRequest, "invalid credential_type")
		return
	}

	profile.ID = newID()
	profile.TenantID = claims.TenantID

	if err := h.storage.CreateCredentialProfile(&profile); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, profile)
}

// getCredential handles GET /api/discovery/credentials/{id}
func (h *Handler) getCredential(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	profile, err := h.storage.GetCredentialProfile(claims.TenantID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			h.writeError(w, http.StatusNotFound, "credential profile not found")
			return
		}
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// updateCredential handles PUT /api/discovery/credentials/{id}
func (h *Handler) updateCredential(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	existing, err := h.storage.GetCredentialProfile(claims.TenantID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			h.writeError(w, http.StatusNotFound, "credential profile not found")
			return
		}
		h.internalError(w, err)
		return
	}

	var profile model.CredentialProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if profile.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !credentialTypes[profile.CredentialType] {
		h.writeError(w, http.StatusBadRequest, "invalid credential_type")
		return
	}

	profile.ID = existing.ID
	profile.TenantID = claims.TenantID
	profile.CreatedAt = existing.CreatedAt

	if err := h.storage.UpdateCredentialProfile(&profile); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// deleteCredential handles DELETE /api/discovery/credentials/{id}
func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.admin(w, r)
	if !ok {
		return
	}

	if err := h.storage.DeleteCredentialProfile(claims.TenantID, r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			h.writeError(w, http.StatusNotFound, "credential profile not found")
			return
		}
		h.internalError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// newID generates a UUIDv7
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
