// Package worker runs the background maintenance schedule: sweeping overdue
// discovery jobs, marking silent monitor agents offline, deactivating stale
// presence rows, and purging discovered devices of long-expired jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vistrive/assetnext/internal/log"
)

const (
	// agentOfflineAfter is how long a monitor agent may stay silent before it
	// is marked offline, and a presence row unseen before it goes inactive.
	agentOfflineAfter = 10 * time.Minute

	// deviceRetention is how long discovered devices of expired jobs are kept
	// before the daily purge removes them.
	deviceRetention = 7 * 24 * time.Hour
)

// MaintenanceStore is the storage surface the maintenance sweeps run against.
type MaintenanceStore interface {
	ExpireOverdueJobs(now time.Time) (int, error)
	MarkStaleAgentsOffline(cutoff time.Time) (int, error)
	DeactivateStalePresence(cutoff time.Time) (int, error)
	PurgeExpiredDevices(before time.Time) (int, error)
}

// Scheduler runs the recurring maintenance jobs.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	store   MaintenanceStore
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a maintenance scheduler.
func NewScheduler(store MaintenanceStore) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the maintenance schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	schedule := []struct {
		spec string
		name string
		run  func()
	}{
		{"* * * * *", "expire-jobs", s.expireJobs},
		{"*/5 * * * *", "offline-agents", s.sweepAgents},
		{"0 3 * * *", "purge-devices", s.purgeDevices},
	}
	for _, job := range schedule {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	log.Info("maintenance scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight sweeps.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("stopping maintenance scheduler")
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
	s.running = false
}

// wrap tracks a sweep in the WaitGroup and skips it after shutdown began.
func (s *Scheduler) wrap(name string, run func()) func() {
	return func() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.wg.Add(1)
		defer s.wg.Done()

		log.Debug("maintenance sweep running", "sweep", name)
		run()
	}
}

func (s *Scheduler) expireJobs() {
	n, err := s.store.ExpireOverdueJobs(time.Now())
	if err != nil {
		log.Error("expiring overdue jobs", "error", err)
		return
	}
	if n > 0 {
		log.Info("expired overdue discovery jobs", "count", n)
	}
}

func (s *Scheduler) sweepAgents() {
	cutoff := time.Now().Add(-agentOfflineAfter)

	n, err := s.store.MarkStaleAgentsOffline(cutoff)
	if err != nil {
		log.Error("marking stale agents offline", "error", err)
	} else if n > 0 {
		log.Info("marked silent agents offline", "count", n)
	}

	n, err = s.store.DeactivateStalePresence(cutoff)
	if err != nil {
		log.Error("deactivating stale presence rows", "error", err)
	} else if n > 0 {
		log.Info("deactivated stale presence rows", "count", n)
	}
}

func (s *Scheduler) purgeDevices() {
	n, err := s.store.PurgeExpiredDevices(time.Now().Add(-deviceRetention))
	if err != nil {
		log.Error("purging expired discovered devices", "error", err)
		return
	}
	if n > 0 {
		log.Info("purged discovered devices of expired jobs", "count", n)
	}
}
