// Package presence tracks which devices are on the tenant network right now.
// Long-lived monitor agents report batches of sighted MACs; the tracker keeps
// one row per (tenant, mac), recomputes authorization against the inventory on
// every call, and raises exactly one alert the first time an unknown MAC is
// sighted.
package presence

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
	"github.com/vistrive/assetnext/internal/token"
)

// ErrAgentUnauthorized marks a monitor agent call with a missing or wrong API
// key. Deliberately indistinguishable from an unknown agent id.
var ErrAgentUnauthorized = errors.New("monitor agent unauthorized")

// Store is the persistence surface the tracker needs.
type Store interface {
	storage.AssetStorage
	storage.AgentStorage
	storage.ActivityStorage
}

// Tracker owns monitor agents, presence state, and unknown-device alerts.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// RegisterAgent creates a monitor agent and returns its plaintext API key.
// The key is bcrypt-hashed at rest and never retrievable again.
func (t *Tracker) RegisterAgent(tenantID string, req *model.CreateAgentRequest) (*model.CreateAgentResponse, error) {
	key, err := token.NewAPIKey()
	if err != nil {
		return nil, err
	}
	hash, err := token.HashAPIKey(key)
	if err != nil {
		return nil, err
	}

	agent := &model.NetworkMonitorAgent{
		AgentID:      newID(),
		TenantID:     tenantID,
		AgentName:    req.AgentName,
		APIKeyHash:   hash,
		Status:       model.AgentStatusPending,
		NetworkRange: req.NetworkRange,
	}
	if err := t.store.CreateAgent(agent); err != nil {
		return nil, err
	}

	if err := t.store.RecordActivity(tenantID, "", "presence.agent.created", agent.AgentID); err != nil {
		log.Warn("recording agent creation activity", "error", err)
	}
	log.Info("monitor agent registered", "agent_id", agent.AgentID, "tenant", tenantID)

	return &model.CreateAgentResponse{Agent: agent, APIKey: key}, nil
}

// Authenticate resolves an agent id and checks its API key.
func (t *Tracker) Authenticate(agentID, apiKey string) (*model.NetworkMonitorAgent, error) {
	agent, err := t.store.GetAgent(agentID)
	if err != nil {
		if errors.Is(err, storage.ErrAgentNotFound) {
			return nil, ErrAgentUnauthorized
		}
		return nil, err
	}
	if !token.CheckAPIKey(agent.APIKeyHash, apiKey) {
		return nil, ErrAgentUnauthorized
	}
	return agent, nil
}

// Heartbeat records an agent check-in. The first heartbeat moves a pending
// agent to active.
func (t *Tracker) Heartbeat(agentID, apiKey string, hb *model.HeartbeatRequest) (*model.NetworkMonitorAgent, error) {
	agent, err := t.Authenticate(agentID, apiKey)
	if err != nil {
		return nil, err
	}

	if err := t.store.TouchAgentHeartbeat(agent.AgentID, hb, time.Now()); err != nil {
		return nil, err
	}
	return t.store.GetAgent(agent.AgentID)
}

// UpdatePresence applies one agent batch of currently sighted devices.
// Authorization is recomputed per call against the tenant inventory, never
// cached. Rows this agent reported earlier but that are absent from the batch
// go inactive.
func (t *Tracker) UpdatePresence(agentID, apiKey string, req *model.PresenceUpdateRequest) (*model.PresenceSnapshot, error) {
	agent, err := t.Authenticate(agentID, apiKey)
	if err != nil {
		return nil, err
	}

	authorized, err := t.authorizedMACs(agent.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make([]string, 0, len(req.Devices))
	seenSet := make(map[string]bool, len(req.Devices))

	for i := range req.Devices {
		dev := &req.Devices[i]
		mac := strings.ToLower(strings.TrimSpace(dev.MACAddress))
		if mac == "" || seenSet[mac] {
			continue
		}
		seenSet[mac] = true
		seen = append(seen, mac)

		assetID, isAuthorized := authorized[mac]
		if err := t.recordSighting(agent, dev, mac, assetID, isAuthorized, now); err != nil {
			return nil, err
		}
	}

	if err := t.store.DeactivateMissing(agent.TenantID, agent.AgentID, seen); err != nil {
		return nil, err
	}

	if err := t.store.TouchAgentHeartbeat(agent.AgentID, &model.HeartbeatRequest{}, now); err != nil {
		return nil, err
	}

	log.Info("presence batch applied", "agent_id", agent.AgentID, "devices", len(seen))

	return t.Snapshot(agent.TenantID)
}

// recordSighting upserts one (tenant, mac) row. Insert wins exactly once per
// MAC thanks to the uniqueness constraint; only the winning insert may raise
// the first-sighting alert.
func (t *Tracker) recordSighting(agent *model.NetworkMonitorAgent, dev *model.PresenceDevice, mac, assetID string, isAuthorized bool, now time.Time) error {
	rec := &model.WifiPresenceRecord{
		ID:           newID(),
		TenantID:     agent.TenantID,
		AgentID:      agent.AgentID,
		MACAddress:   mac,
		IPAddress:    dev.IPAddress,
		Hostname:     dev.Hostname,
		Manufacturer: dev.Manufacturer,
		IsActive:     true,
		IsAuthorized: isAuthorized,
		AssetID:      assetID,
		FirstSeen:    now,
		LastSeen:     now,
	}

	inserted, err := t.store.InsertPresenceRecord(rec)
	if err != nil {
		return err
	}
	if inserted {
		if !isAuthorized {
			return t.raiseAlert(agent.TenantID, mac, dev)
		}
		return nil
	}

	// Known MAC: refresh the existing row.
	existing, err := t.store.GetPresenceRecord(agent.TenantID, mac)
	if err != nil {
		return err
	}

	if existing.IsActive {
		existing.ConnectedFor += int64(now.Sub(existing.LastSeen).Seconds())
	} else {
		// new session after an absence
		existing.ConnectedFor = 0
	}
	existing.AgentID = agent.AgentID
	existing.IPAddress = dev.IPAddress
	existing.Hostname = dev.Hostname
	existing.Manufacturer = dev.Manufacturer
	existing.IsActive = true
	existing.IsAuthorized = isAuthorized
	existing.AssetID = assetID
	existing.LastSeen = now

	return t.store.UpdatePresenceRecord(existing)
}

func (t *Tracker) raiseAlert(tenantID, mac string, dev *model.PresenceDevice) error {
	alert := &model.UnknownDeviceAlert{
		ID:         newID(),
		TenantID:   tenantID,
		MACAddress: mac,
		IPAddress:  dev.IPAddress,
		Hostname:   dev.Hostname,
		Status:     model.AlertStatusPending,
	}
	if err := t.store.InsertAlert(alert); err != nil {
		return err
	}
	if err := t.store.RecordActivity(tenantID, "", "presence.alert.raised", mac); err != nil {
		log.Warn("recording alert activity", "error", err)
	}
	log.Warn("unknown device sighted", "tenant", tenantID, "mac", mac, "ip", dev.IPAddress)
	return nil
}

// Snapshot assembles the operator presence view.
func (t *Tracker) Snapshot(tenantID string) (*model.PresenceSnapshot, error) {
	records, err := t.store.ListPresence(tenantID)
	if err != nil {
		return nil, err
	}
	pending, err := t.store.CountPendingAlerts(tenantID)
	if err != nil {
		return nil, err
	}

	snap := &model.PresenceSnapshot{
		Devices:     records,
		AlertCount:  pending,
		GeneratedAt: time.Now(),
	}
	for i := range records {
		if records[i].IsActive {
			snap.ActiveCount++
			if !records[i].IsAuthorized {
				snap.UnknownCount++
			}
		}
	}
	return snap, nil
}

// Alerts lists a tenant's unknown-device alerts, optionally by status.
func (t *Tracker) Alerts(tenantID, status string) ([]model.UnknownDeviceAlert, error) {
	return t.store.ListAlerts(tenantID, status)
}

// Acknowledge moves a pending alert to acknowledged.
func (t *Tracker) Acknowledge(tenantID, alertID, acknowledgedBy string) error {
	if err := t.store.AcknowledgeAlert(tenantID, alertID, acknowledgedBy); err != nil {
		return err
	}
	if err := t.store.RecordActivity(tenantID, acknowledgedBy, "presence.alert.acknowledged", alertID); err != nil {
		log.Warn("recording alert ack activity", "error", err)
	}
	return nil
}

// authorizedMACs maps every inventory MAC (lowercased) to its asset id.
func (t *Tracker) authorizedMACs(tenantID string) (map[string]string, error) {
	assets, err := t.store.ListAssets(tenantID)
	if err != nil {
		return nil, err
	}
	macs := make(map[string]string)
	for i := range assets {
		if mac := strings.ToLower(strings.TrimSpace(assets[i].Attributes[model.AttrMACAddress])); mac != "" {
			if _, ok := macs[mac]; !ok {
				macs[mac] = assets[i].ID
			}
		}
	}
	return macs, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
