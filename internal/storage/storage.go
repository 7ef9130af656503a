package storage

import (
	"errors"
	"time"

	"github.com/vistrive/assetnext/internal/model"
)

var (
	ErrJobNotFound        = errors.New("discovery job not found")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrDeviceNotFound     = errors.New("discovered device not found")
	ErrDeviceImported     = errors.New("discovered device already imported")
	ErrAgentNotFound      = errors.New("monitor agent not found")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrCredentialNotFound = errors.New("credential profile not found")
)

// CounterDelta is one result batch's contribution to a job's aggregate
// counters. Applied as a single atomic increment, never read-modify-write.
type CounterDelta struct {
	Total       int
	Scanned     int
	Successful  int
	Partial     int
	Unreachable int
}

// AssetStorage is the narrow inventory collaborator surface: reads for
// dedup/authorization lookups, writes from the promotion pipeline.
type AssetStorage interface {
	ListAssets(tenantID string) ([]model.Asset, error)
	CreateAsset(asset *model.Asset) error
}

// DiscoveryStorage persists discovery jobs and their discovered devices.
type DiscoveryStorage interface {
	CreateJob(job *model.DiscoveryJob) error
	GetJob(tenantID, id string) (*model.DiscoveryJob, error)
	GetJobByCode(tenantID, code string) (*model.DiscoveryJob, error)
	ListJobs(tenantID string) ([]model.DiscoveryJob, error)

	// TransitionJob conditionally moves a job from one status to another in a
	// single statement; a job no longer in `from` yields ErrInvalidTransition.
	TransitionJob(id, from, to string, at time.Time) error
	IncrementJobCounters(id string, delta CounterDelta) error
	SetJobProgress(id, message string, percent *float64) error
	ExpireOverdueJobs(now time.Time) (int, error)

	InsertDiscoveredDevice(dev *model.DiscoveredDevice) error
	GetDiscoveredDevice(tenantID, id string) (*model.DiscoveredDevice, error)
	ListDiscoveredDevices(tenantID string, filter *model.DiscoveredDeviceFilter) ([]model.DiscoveredDevice, error)
	CountUnimportedDevices(jobID string) (int, error)

	// ImportDevice creates the inventory asset and marks the device imported in
	// one transaction, so a promotion is never half-applied. An already-imported
	// device yields ErrDeviceImported and no asset.
	ImportDevice(dev *model.DiscoveredDevice, asset *model.Asset) error

	PurgeExpiredDevices(before time.Time) (int, error)
}

// AgentStorage persists monitor agents, presence records, and alerts.
type AgentStorage interface {
	CreateAgent(agent *model.NetworkMonitorAgent) error
	GetAgent(agentID string) (*model.NetworkMonitorAgent, error)
	ListAgents(tenantID string) ([]model.NetworkMonitorAgent, error)
	UpdateAgent(agent *model.NetworkMonitorAgent) error
	DeleteAgent(tenantID, agentID string) error
	TouchAgentHeartbeat(agentID string, hb *model.HeartbeatRequest, at time.Time) error
	MarkStaleAgentsOffline(cutoff time.Time) (int, error)

	// InsertPresenceRecord inserts a first sighting. The (tenant, mac) UNIQUE
	// constraint makes concurrent first sightings race-safe: exactly one caller
	// observes inserted=true and owns raising the alert.
	InsertPresenceRecord(rec *model.WifiPresenceRecord) (inserted bool, err error)
	GetPresenceRecord(tenantID, mac string) (*model.WifiPresenceRecord, error)
	UpdatePresenceRecord(rec *model.WifiPresenceRecord) error
	ListPresence(tenantID string) ([]model.WifiPresenceRecord, error)
	DeactivateMissing(tenantID, agentID string, seenMACs []string) error
	DeactivateStalePresence(cutoff time.Time) (int, error)

	InsertAlert(alert *model.UnknownDeviceAlert) error
	ListAlerts(tenantID, status string) ([]model.UnknownDeviceAlert, error)
	CountPendingAlerts(tenantID string) (int, error)
	AcknowledgeAlert(tenantID, id, acknowledgedBy string) error
}

// CredentialStorage persists scan credential profiles.
type CredentialStorage interface {
	ListCredentialProfiles(tenantID string) ([]model.CredentialProfile, error)
	GetCredentialProfile(tenantID, id string) (*model.CredentialProfile, error)
	CreateCredentialProfile(profile *model.CredentialProfile) error
	UpdateCredentialProfile(profile *model.CredentialProfile) error
	DeleteCredentialProfile(tenantID, id string) error
}

// ActivityStorage is the opaque audit-trail collaborator.
type ActivityStorage interface {
	RecordActivity(tenantID, actor, action, detail string) error
}

// Storage is the full persistence surface backing the server.
type Storage interface {
	AssetStorage
	DiscoveryStorage
	AgentStorage
	CredentialStorage
	ActivityStorage
	Close() error
}
