package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/storage"
)

const (
	jobStreamInterval      = 2 * time.Second
	presenceStreamInterval = 3 * time.Second
)

// streamJob handles GET /api/discovery/jobs/{jobId}/stream. Emits a
// `connected` event, then an `update` with the latest job snapshot every 2s.
// The stream ends when the job goes terminal or the client disconnects.
func (h *Handler) streamJob(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	ref := r.PathValue("jobId")
	job, err := h.loadJob(claims.TenantID, ref)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.internalError(w, err)
		return
	}

	h.serveEvents(w, r, jobStreamInterval, func() (interface{}, bool, error) {
		status, err := h.registry.JobStatus(claims.TenantID, job.ID)
		if err != nil {
			return nil, true, err
		}
		return status, status.Job.Terminal(), nil
	})
}

// streamPresence handles GET /api/network/presence/stream: the presence
// snapshot every 3s until the client disconnects.
func (h *Handler) streamPresence(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.operator(w, r)
	if !ok {
		return
	}

	h.serveEvents(w, r, presenceStreamInterval, func() (interface{}, bool, error) {
		snap, err := h.tracker.Snapshot(claims.TenantID)
		return snap, false, err
	})
}

// serveEvents runs one SSE subscriber loop. snapshot returns the current
// payload and whether the stream is done after this emission. The per-
// subscriber ticker is torn down on client disconnect via the request
// context.
func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request, interval time.Duration, snapshot func() (interface{}, bool, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "connected", map[string]string{"status": "connected"})
	flusher.Flush()

	emit := func() bool {
		payload, done, err := snapshot()
		if err != nil {
			log.Warn("stream snapshot failed", "error", err)
			return true
		}
		writeEvent(w, "update", payload)
		flusher.Flush()
		return done
	}

	if emit() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if emit() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
