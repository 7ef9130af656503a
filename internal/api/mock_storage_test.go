package api

import (
	"sync"
	"time"

	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
)

// mockStorage is an in-memory storage.Storage for handler tests.
type mockStorage struct {
	mu          sync.Mutex
	assets      []model.Asset
	jobs        map[string]*model.DiscoveryJob
	devices     map[string]*model.DiscoveredDevice
	agents      map[string]*model.NetworkMonitorAgent
	records     map[string]*model.WifiPresenceRecord
	alerts      map[string]*model.UnknownDeviceAlert
	credentials map[string]*model.CredentialProfile
	activity    []string
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		jobs:        make(map[string]*model.DiscoveryJob),
		devices:     make(map[string]*model.DiscoveredDevice),
		agents:      make(map[string]*model.NetworkMonitorAgent),
		records:     make(map[string]*model.WifiPresenceRecord),
		alerts:      make(map[string]*model.UnknownDeviceAlert),
		credentials: make(map[string]*model.CredentialProfile),
	}
}

func presenceKey(tenantID, mac string) string { return tenantID + "|" + mac }

func (m *mockStorage) ListAssets(tenantID string) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Asset
	for _, a := range m.assets {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStorage) CreateAsset(asset *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, *asset)
	return nil
}

func (m *mockStorage) CreateJob(job *model.DiscoveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockStorage) GetJob(tenantID, id string) (*model.DiscoveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.TenantID != tenantID {
		return nil, storage.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockStorage) GetJobByCode(tenantID, code string) (*model.DiscoveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.TenantID == tenantID && job.JobCode == code {
			cp := *job
			return &cp, nil
		}
	}
	return nil, storage.ErrJobNotFound
}

func (m *mockStorage) ListJobs(tenantID string) ([]model.DiscoveryJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DiscoveryJob
	for _, job := range m.jobs {
		if job.TenantID == tenantID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockStorage) TransitionJob(id, from, to string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return storage.ErrInvalidTransition
	}
	job.Status = to
	switch to {
	case model.JobStatusRunning:
		if job.StartedAt == nil {
			t := at
			job.StartedAt = &t
		}
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusExpired:
		if job.CompletedAt == nil {
			t := at
			job.CompletedAt = &t
		}
	}
	return nil
}

func (m *mockStorage) IncrementJobCounters(id string, delta storage.CounterDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return storage.ErrJobNotFound
	}
	job.TotalHosts += delta.Total
	job.ScannedHosts += delta.Scanned
	job.SuccessfulHosts += delta.Successful
	job.PartialHosts += delta.Partial
	job.UnreachableHosts += delta.Unreachable
	return nil
}

func (m *mockStorage) SetJobProgress(id, message string, percent *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return storage.ErrJobNotFound
	}
	if message != "" {
		job.ProgressMessage = message
	}
	if percent != nil {
		job.ProgressPercent = *percent
	}
	return nil
}

func (m *mockStorage) ExpireOverdueJobs(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if !job.Terminal() && now.After(job.ExpiresAt) {
			job.Status = model.JobStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *mockStorage) InsertDiscoveredDevice(dev *model.DiscoveredDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *dev
	m.devices[dev.ID] = &cp
	return nil
}

func (m *mockStorage) GetDiscoveredDevice(tenantID, id string) (*model.DiscoveredDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[id]
	if !ok || dev.TenantID != tenantID {
		return nil, storage.ErrDeviceNotFound
	}
	cp := *dev
	return &cp, nil
}

func (m *mockStorage) ListDiscoveredDevices(tenantID string, filter *model.DiscoveredDeviceFilter) ([]model.DiscoveredDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DiscoveredDevice
	for _, dev := range m.devices {
		if dev.TenantID != tenantID {
			continue
		}
		if filter != nil {
			if filter.JobID != "" && dev.JobID != filter.JobID {
				continue
			}
			if filter.Status != "" && dev.Status != filter.Status {
				continue
			}
			if filter.Imported != nil && dev.IsImported != *filter.Imported {
				continue
			}
		}
		out = append(out, *dev)
	}
	return out, nil
}

func (m *mockStorage) CountUnimportedDevices(jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, dev := range m.devices {
		if dev.JobID == jobID && !dev.IsImported && !dev.IsDuplicate {
			n++
		}
	}
	return n, nil
}

func (m *mockStorage) ImportDevice(dev *model.DiscoveredDevice, asset *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.devices[dev.ID]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	if stored.IsImported {
		return storage.ErrDeviceImported
	}
	stored.IsImported = true
	stored.ImportedAssetID = asset.ID
	m.assets = append(m.assets, *asset)
	dev.IsImported = true
	dev.ImportedAssetID = asset.ID
	return nil
}

func (m *mockStorage) PurgeExpiredDevices(before time.Time) (int, error) { return 0, nil }

func (m *mockStorage) CreateAgent(agent *model.NetworkMonitorAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *agent
	m.agents[agent.AgentID] = &cp
	return nil
}

func (m *mockStorage) GetAgent(agentID string) (*model.NetworkMonitorAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, storage.ErrAgentNotFound
	}
	cp := *agent
	return &cp, nil
}

func (m *mockStorage) ListAgents(tenantID string) ([]model.NetworkMonitorAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.NetworkMonitorAgent
	for _, a := range m.agents {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStorage) UpdateAgent(agent *model.NetworkMonitorAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.agents[agent.AgentID]
	if !ok || stored.TenantID != agent.TenantID {
		return storage.ErrAgentNotFound
	}
	cp := *agent
	m.agents[agent.AgentID] = &cp
	return nil
}

func (m *mockStorage) DeleteAgent(tenantID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok || agent.TenantID != tenantID {
		return storage.ErrAgentNotFound
	}
	delete(m.agents, agentID)
	return nil
}

func (m *mockStorage) TouchAgentHeartbeat(agentID string, hb *model.HeartbeatRequest, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return storage.ErrAgentNotFound
	}
	agent.Status = model.AgentStatusActive
	t := at
	agent.LastHeartbeat = &t
	if hb.AgentName != "" {
		agent.AgentName = hb.AgentName
	}
	if hb.Version != "" {
		agent.Version = hb.Version
	}
	if hb.AgentIPAddress != "" {
		agent.AgentIPAddress = hb.AgentIPAddress
	}
	if hb.NetworkRange != "" {
		agent.NetworkRange = hb.NetworkRange
	}
	return nil
}

func (m *mockStorage) MarkStaleAgentsOffline(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.agents {
		if a.Status == model.AgentStatusActive && (a.LastHeartbeat == nil || a.LastHeartbeat.Before(cutoff)) {
			a.Status = model.AgentStatusOffline
			n++
		}
	}
	return n, nil
}

func (m *mockStorage) InsertPresenceRecord(rec *model.WifiPresenceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := presenceKey(rec.TenantID, rec.MACAddress)
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	cp := *rec
	m.records[key] = &cp
	return true, nil
}

func (m *mockStorage) GetPresenceRecord(tenantID, mac string) (*model.WifiPresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[presenceKey(tenantID, mac)]
	if !ok {
		return nil, storage.ErrDeviceNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockStorage) UpdatePresenceRecord(rec *model.WifiPresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := presenceKey(rec.TenantID, rec.MACAddress)
	if _, ok := m.records[key]; !ok {
		return storage.ErrDeviceNotFound
	}
	cp := *rec
	m.records[key] = &cp
	return nil
}

func (m *mockStorage) ListPresence(tenantID string) ([]model.WifiPresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WifiPresenceRecord
	for _, rec := range m.records {
		if rec.TenantID == tenantID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockStorage) DeactivateMissing(tenantID, agentID string, seenMACs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(seenMACs))
	for _, mac := range seenMACs {
		seen[mac] = true
	}
	for _, rec := range m.records {
		if rec.TenantID == tenantID && rec.AgentID == agentID && rec.IsActive && !seen[rec.MACAddress] {
			rec.IsActive = false
		}
	}
	return nil
}

func (m *mockStorage) DeactivateStalePresence(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.IsActive && rec.LastSeen.Before(cutoff) {
			rec.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *mockStorage) InsertAlert(alert *model.UnknownDeviceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := presenceKey(alert.TenantID, alert.MACAddress)
	if _, exists := m.alerts[key]; exists {
		return nil
	}
	cp := *alert
	m.alerts[key] = &cp
	return nil
}

func (m *mockStorage) ListAlerts(tenantID, status string) ([]model.UnknownDeviceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UnknownDeviceAlert
	for _, a := range m.alerts {
		if a.TenantID == tenantID && (status == "" || a.Status == status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStorage) CountPendingAlerts(tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.TenantID == tenantID && a.Status == model.AlertStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *mockStorage) AcknowledgeAlert(tenantID, id, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.TenantID == tenantID && a.ID == id && a.Status == model.AlertStatusPending {
			a.Status = model.AlertStatusAcknowledged
			a.AcknowledgedBy = acknowledgedBy
			now := time.Now()
			a.AcknowledgedAt = &now
			return nil
		}
	}
	return storage.ErrAlertNotFound
}

func (m *mockStorage) ListCredentialProfiles(tenantID string) ([]model.CredentialProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CredentialProfile
	for _, p := range m.credentials {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStorage) GetCredentialProfile(tenantID, id string) (*model.CredentialProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.credentials[id]
	if !ok || p.TenantID != tenantID {
		return nil, storage.ErrCredentialNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStorage) CreateCredentialProfile(profile *model.CredentialProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.IsDefault {
		for _, p := range m.credentials {
			if p.TenantID == profile.TenantID {
				p.IsDefault = false
			}
		}
	}
	cp := *profile
	m.credentials[profile.ID] = &cp
	return nil
}

func (m *mockStorage) UpdateCredentialProfile(profile *model.CredentialProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.credentials[profile.ID]
	if !ok || stored.TenantID != profile.TenantID {
		return storage.ErrCredentialNotFound
	}
	if profile.IsDefault {
		for _, p := range m.credentials {
			if p.TenantID == profile.TenantID {
				p.IsDefault = false
			}
		}
	}
	cp := *profile
	m.credentials[profile.ID] = &cp
	return nil
}

func (m *mockStorage) DeleteCredentialProfile(tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.credentials[id]
	if !ok || p.TenantID != tenantID {
		return storage.ErrCredentialNotFound
	}
	delete(m.credentials, id)
	return nil
}

func (m *mockStorage) RecordActivity(tenantID, actor, action, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, action)
	return nil
}

func (m *mockStorage) Close() error { return nil }
