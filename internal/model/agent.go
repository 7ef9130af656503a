package model

import "time"

// Monitor agent statuses. Agents are created pending by an operator and go
// active on their first heartbeat.
const (
	AgentStatusPending = "pending"
	AgentStatusActive  = "active"
	AgentStatusOffline = "offline"
)

// Alert lifecycle.
const (
	AlertStatusPending      = "pending"
	AlertStatusAcknowledged = "acknowledged"
)

// NetworkMonitorAgent is a long-lived presence monitor authenticated by an
// opaque API key. The key is stored hashed; the plaintext is returned exactly
// once at creation.
type NetworkMonitorAgent struct {
	AgentID        string     `json:"agent_id"`
	TenantID       string     `json:"tenant_id"`
	AgentName      string     `json:"agent_name,omitempty"`
	APIKeyHash     string     `json:"-"`
	Status         string     `json:"status"`
	OSType         string     `json:"os_type,omitempty"`
	Version        string     `json:"version,omitempty"`
	AgentIPAddress string     `json:"agent_ip_address,omitempty"`
	NetworkRange   string     `json:"network_range,omitempty"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WifiPresenceRecord is the latest sighting state of a MAC on the tenant
// network. One row per (tenant, mac), upserted forever, never deleted.
type WifiPresenceRecord struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	AgentID      string     `json:"agent_id"`
	MACAddress   string     `json:"mac_address"`
	IPAddress    string     `json:"ip_address,omitempty"`
	Hostname     string     `json:"hostname,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsAuthorized bool       `json:"is_authorized"` // derived per call, persisted as last verdict
	AssetID      string     `json:"asset_id,omitempty"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	ConnectedFor int64      `json:"connected_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// UnknownDeviceAlert is raised exactly once per (tenant, mac), the first time
// the MAC is sighted and found unauthorized.
type UnknownDeviceAlert struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	MACAddress     string     `json:"mac_address"`
	IPAddress      string     `json:"ip_address,omitempty"`
	Hostname       string     `json:"hostname,omitempty"`
	Status         string     `json:"status"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HeartbeatRequest is the monitor agent's periodic check-in.
type HeartbeatRequest struct {
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name,omitempty"`
	OSType         string `json:"os_type,omitempty"`
	Version        string `json:"version,omitempty"`
	AgentIPAddress string `json:"agent_ip_address,omitempty"`
	NetworkRange   string `json:"network_range,omitempty"`
}

// PresenceDevice is one sighting in a presence batch.
type PresenceDevice struct {
	MACAddress   string `json:"mac_address"`
	IPAddress    string `json:"ip_address,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// PresenceUpdateRequest is the monitor agent's batch of currently visible
// devices. Devices absent from the batch are marked inactive for this agent.
type PresenceUpdateRequest struct {
	AgentID string           `json:"agent_id"`
	Devices []PresenceDevice `json:"devices"`
}

// PresenceSnapshot is the operator view of live presence state.
type PresenceSnapshot struct {
	Devices      []WifiPresenceRecord `json:"devices"`
	ActiveCount  int                  `json:"active_count"`
	UnknownCount int                  `json:"unknown_count"`
	AlertCount   int                  `json:"alert_count"` // unacknowledged alerts
	GeneratedAt  time.Time            `json:"generated_at"`
}

// CreateAgentRequest is the operator payload for registering a monitor agent.
type CreateAgentRequest struct {
	AgentName    string `json:"agent_name"`
	NetworkRange string `json:"network_range,omitempty"`
}

// CreateAgentResponse carries the agent row and its plaintext API key, which
// is never retrievable again.
type CreateAgentResponse struct {
	Agent  *NetworkMonitorAgent `json:"agent"`
	APIKey string               `json:"api_key"`
}
