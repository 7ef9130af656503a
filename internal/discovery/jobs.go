// Package discovery implements the scan job lifecycle: job creation with
// scoped agent tokens, result ingestion with inventory deduplication, and
// promotion of discovered devices into inventory assets.
package discovery

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
	"github.com/vistrive/assetnext/internal/token"
)

var (
	// ErrJobExpired marks operations against a job past its lifetime.
	ErrJobExpired = errors.New("discovery job expired")
	// ErrJobTerminal marks writes against a completed or failed job.
	ErrJobTerminal = errors.New("discovery job already finished")
)

// Store is the persistence surface the discovery pipeline needs.
type Store interface {
	storage.AssetStorage
	storage.DiscoveryStorage
	storage.ActivityStorage
}

// Registry owns discovery jobs and everything that flows through them.
type Registry struct {
	store       Store
	tokens      *token.Service
	downloadURL string
}

// NewRegistry creates a job registry. downloadURL is the base link handed to
// operators for fetching the scan agent package.
func NewRegistry(store Store, tokens *token.Service, downloadURL string) *Registry {
	return &Registry{
		store:       store,
		tokens:      tokens,
		downloadURL: downloadURL,
	}
}

// CreateJob starts a discovery campaign: a pending job with a fresh short
// code, a scoped agent token, and the agent download link. The token is the
// only time the secret material leaves the server.
func (r *Registry) CreateJob(tenantID string, req *model.CreateJobRequest) (*model.CreateJobResponse, error) {
	now := time.Now()

	job := &model.DiscoveryJob{
		ID:           newID(),
		JobCode:      newJobCode(),
		TenantID:     tenantID,
		SiteID:       req.SiteID,
		SiteName:     req.SiteName,
		Status:       model.JobStatusPending,
		OSType:       req.OSType,
		NetworkRange: req.NetworkRange,
		ExpiresAt:    now.Add(model.JobLifetime),
	}

	if err := r.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("creating discovery job: %w", err)
	}

	tok, err := r.tokens.IssueJobToken(job)
	if err != nil {
		return nil, fmt.Errorf("issuing job token: %w", err)
	}

	if err := r.store.RecordActivity(tenantID, "", "discovery.job.created", job.JobCode); err != nil {
		log.Warn("recording job creation activity", "error", err)
	}

	log.Info("discovery job created", "job_code", job.JobCode, "tenant", tenantID, "network_range", job.NetworkRange)

	return &model.CreateJobResponse{
		Job:         job,
		Token:       tok,
		DownloadURL: r.downloadURL,
	}, nil
}

// GetJob loads a job by internal id, applying lazy expiry first.
func (r *Registry) GetJob(tenantID, id string) (*model.DiscoveryJob, error) {
	job, err := r.store.GetJob(tenantID, id)
	if err != nil {
		return nil, err
	}
	return r.expireIfOverdue(tenantID, job)
}

// GetJobByCode loads a job by its public short code, applying lazy expiry.
func (r *Registry) GetJobByCode(tenantID, code string) (*model.DiscoveryJob, error) {
	job, err := r.store.GetJobByCode(tenantID, code)
	if err != nil {
		return nil, err
	}
	return r.expireIfOverdue(tenantID, job)
}

// ListJobs returns a tenant's jobs with lazy expiry applied to each.
func (r *Registry) ListJobs(tenantID string) ([]model.DiscoveryJob, error) {
	jobs, err := r.store.ListJobs(tenantID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range jobs {
		if !jobs[i].Terminal() && now.After(jobs[i].ExpiresAt) {
			if expired, err := r.expireIfOverdue(tenantID, &jobs[i]); err == nil {
				jobs[i] = *expired
			}
		}
	}
	return jobs, nil
}

// JobStatus assembles the operator poll view: the job and its devices.
func (r *Registry) JobStatus(tenantID, id string) (*model.JobStatusResponse, error) {
	job, err := r.GetJob(tenantID, id)
	if err != nil {
		return nil, err
	}
	devices, err := r.store.ListDiscoveredDevices(tenantID, &model.DiscoveredDeviceFilter{JobID: job.ID})
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		Job:         job,
		Devices:     devices,
		DeviceCount: len(devices),
	}, nil
}

// RecordProgress applies an agent's mid-scan progress report. The first
// report moves a pending job to running. Agents may also declare the job
// completed or failed.
func (r *Registry) RecordProgress(tenantID, jobCode string, req *model.ProgressUpdateRequest) (*model.DiscoveryJob, error) {
	job, err := r.GetJobByCode(tenantID, jobCode)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusExpired {
		return nil, ErrJobExpired
	}
	if job.Terminal() {
		return nil, ErrJobTerminal
	}

	// Reject an illegal declared status before touching anything, so a bad
	// request leaves neither status nor progress fields modified.
	switch req.Status {
	case "", model.JobStatusRunning, model.JobStatusCompleted, model.JobStatusFailed:
	default:
		return nil, storage.ErrInvalidTransition
	}

	if err := r.ensureRunning(job); err != nil {
		return nil, err
	}

	if req.ProgressMessage != "" || req.ProgressPercent != nil {
		if err := r.store.SetJobProgress(job.ID, req.ProgressMessage, req.ProgressPercent); err != nil {
			return nil, err
		}
	}

	if req.Status == model.JobStatusCompleted || req.Status == model.JobStatusFailed {
		if err := r.store.TransitionJob(job.ID, model.JobStatusRunning, req.Status, time.Now()); err != nil {
			if !errors.Is(err, storage.ErrInvalidTransition) {
				return nil, err
			}
		} else {
			log.Info("discovery job finished by agent", "job_code", job.JobCode, "status", req.Status)
		}
	}

	return r.store.GetJobByCode(tenantID, jobCode)
}

// ExpireOverdue force-expires every job past its deadline. Called by the
// maintenance scheduler; lazy expiry covers reads between runs.
func (r *Registry) ExpireOverdue() (int, error) {
	return r.store.ExpireOverdueJobs(time.Now())
}

// expireIfOverdue transitions an overdue job to expired on read. A concurrent
// expiry losing the conditional update is fine; reload and return either way.
func (r *Registry) expireIfOverdue(tenantID string, job *model.DiscoveryJob) (*model.DiscoveryJob, error) {
	if job.Terminal() || time.Now().Before(job.ExpiresAt) {
		return job, nil
	}

	err := r.store.TransitionJob(job.ID, job.Status, model.JobStatusExpired, time.Now())
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		return nil, err
	}
	log.Info("discovery job expired", "job_code", job.JobCode, "tenant", tenantID)
	return r.store.GetJob(tenantID, job.ID)
}

// ensureRunning moves a pending job to running on first agent contact.
func (r *Registry) ensureRunning(job *model.DiscoveryJob) error {
	if job.Status != model.JobStatusPending {
		return nil
	}
	err := r.store.TransitionJob(job.ID, model.JobStatusPending, model.JobStatusRunning, time.Now())
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		return err
	}
	job.Status = model.JobStatusRunning
	return nil
}

// newID returns a UUIDv7 so ids sort by creation time, falling back to v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

const jobCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newJobCode returns a short shareable code like "disc-K3X9QF".
func newJobCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "disc-" + uuid.New().String()[:6]
	}
	for i, b := range buf {
		buf[i] = jobCodeAlphabet[int(b)%len(jobCodeAlphabet)]
	}
	return "disc-" + string(buf)
}
