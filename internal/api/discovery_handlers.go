package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vistrive/assetnext/internal/discovery"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
)

// createJob handles POST /api/discovery/jobs
func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	var req model.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.registry.CreateJob(claims.TenantID, &req)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// listJobs handles GET /api/discovery/jobs
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	jobs, err := h.registry.ListJobs(claims.TenantID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, jobs)
}

// getJobStatus handles GET /api/discovery/jobs/{jobId}
func (h *Handler) getJobStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	ref := r.PathValue("jobId")
	if ref == "" {
		h.writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	job, err := h.loadJob(claims.TenantID, ref)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.internalError(w, err)
		return
	}

	status, err := h.registry.JobStatus(claims.TenantID, job.ID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// updateProgress handles PATCH /api/discovery/jobs/{jobId}/progress
func (h *Handler) updateProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := h.agentJob(w, r)
	if !ok {
		return
	}

	var req model.ProgressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProgressPercent != nil && (*req.ProgressPercent < 0 || *req.ProgressPercent > 100) {
		h.writeError(w, http.StatusBadRequest, "progress_percent must be between 0 and 100")
		return
	}

	updated, err := h.registry.RecordProgress(job.TenantID, job.JobCode, &req)
	if err != nil {
		h.writeDiscoveryError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// uploadResults handles POST /api/discovery/jobs/{jobId}/results
func (h *Handler) uploadResults(w http.ResponseWriter, r *http.Request) {
	job, ok := h.agentJob(w, r)
	if !ok {
		return
	}

	var req model.ResultBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Devices) == 0 {
		h.writeError(w, http.StatusBadRequest, "devices are required")
		return
	}

	summary, err := h.registry.IngestResults(job.TenantID, job.JobCode, &req)
	if err != nil {
		h.writeDiscoveryError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// importDevices handles POST /api/discovery/import
func (h *Handler) importDevices(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	var req model.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID == "" {
		h.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	if len(req.DeviceIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "device_ids are required")
		return
	}

	summary, err := h.registry.Promote(claims.TenantID, &req)
	if err != nil {
		h.writeDiscoveryError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// writeDiscoveryError maps discovery pipeline errors onto HTTP statuses.
func (h *Handler) writeDiscoveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, discovery.ErrJobExpired):
		h.writeError(w, http.StatusGone, "job expired")
	case errors.Is(err, discovery.ErrJobTerminal), errors.Is(err, storage.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "job already finished")
	default:
		h.internalError(w, err)
	}
}
