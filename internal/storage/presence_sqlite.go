package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vistrive/assetnext/internal/model"
)

const agentColumns = `agent_id, tenant_id, agent_name, api_key_hash, status, os_type, version,
	agent_ip_address, network_range, last_heartbeat, created_at, updated_at`

// CreateAgent registers a monitor agent in pending status.
func (ss *SQLiteStorage) CreateAgent(agent *model.NetworkMonitorAgent) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	_, err := ss.db.Exec(`
		INSERT INTO network_monitor_agents (agent_id, tenant_id, agent_name, api_key_hash, status, network_range, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.AgentID, agent.TenantID, agent.AgentName, agent.APIKeyHash, agent.Status,
		agent.NetworkRange, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting monitor agent: %w", err)
	}
	return nil
}

// GetAgent looks an agent up by id alone. Callers authenticating API keys do
// not know the tenant yet; everyone else must check TenantID on the result.
func (ss *SQLiteStorage) GetAgent(agentID string) (*model.NetworkMonitorAgent, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`SELECT `+agentColumns+` FROM network_monitor_agents WHERE agent_id = ? LIMIT 1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying monitor agent: %w", err)
	}
	defer rows.Close()

	agents, err := scanAgents(rows)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, ErrAgentNotFound
	}
	return &agents[0], nil
}

// ListAgents returns a tenant's monitor agents.
func (ss *SQLiteStorage) ListAgents(tenantID string) ([]model.NetworkMonitorAgent, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`SELECT `+agentColumns+` FROM network_monitor_agents WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying monitor agents: %w", err)
	}
	defer rows.Close()

	return scanAgents(rows)
}

// UpdateAgent rewrites an agent's mutable fields.
func (ss *SQLiteStorage) UpdateAgent(agent *model.NetworkMonitorAgent) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	agent.UpdatedAt = time.Now()

	result, err := ss.db.Exec(`
		UPDATE network_monitor_agents
		SET agent_name = ?, status = ?, os_type = ?, version = ?, agent_ip_address = ?, network_range = ?, updated_at = ?
		WHERE agent_id = ? AND tenant_id = ?
	`, agent.AgentName, agent.Status, agent.OSType, agent.Version, agent.AgentIPAddress,
		agent.NetworkRange, agent.UpdatedAt, agent.AgentID, agent.TenantID)
	if err != nil {
		return fmt.Errorf("updating monitor agent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// DeleteAgent removes an agent registration. Presence rows it wrote survive.
func (ss *SQLiteStorage) DeleteAgent(tenantID, agentID string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`DELETE FROM network_monitor_agents WHERE tenant_id = ? AND agent_id = ?`, tenantID, agentID)
	if err != nil {
		return fmt.Errorf("deleting monitor agent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// TouchAgentHeartbeat records a check-in and moves the agent to active.
// Empty request fields keep their stored values.
func (ss *SQLiteStorage) TouchAgentHeartbeat(agentID string, hb *model.HeartbeatRequest, at time.Time) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE network_monitor_agents
		SET status = ?,
		    last_heartbeat = ?,
		    agent_name = COALESCE(NULLIF(?, ''), agent_name),
		    os_type = COALESCE(NULLIF(?, ''), os_type),
		    version = COALESCE(NULLIF(?, ''), version),
		    agent_ip_address = COALESCE(NULLIF(?, ''), agent_ip_address),
		    network_range = COALESCE(NULLIF(?, ''), network_range),
		    updated_at = ?
		WHERE agent_id = ?
	`, model.AgentStatusActive, at, hb.AgentName, hb.OSType, hb.Version,
		hb.AgentIPAddress, hb.NetworkRange, at, agentID)
	if err != nil {
		return fmt.Errorf("recording agent heartbeat: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// MarkStaleAgentsOffline flips active agents whose last heartbeat predates the
// cutoff.
func (ss *SQLiteStorage) MarkStaleAgentsOffline(cutoff time.Time) (int, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE network_monitor_agents
		SET status = ?, updated_at = ?
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
	`, model.AgentStatusOffline, time.Now(), model.AgentStatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("marking stale agents offline: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// InsertPresenceRecord inserts a first sighting. ON CONFLICT DO NOTHING plus
// the (tenant, mac) UNIQUE constraint guarantees exactly one concurrent caller
// sees inserted=true, and only that caller raises the first-sighting alert.
func (ss *SQLiteStorage) InsertPresenceRecord(rec *model.WifiPresenceRecord) (bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	rec.CreatedAt = time.Now()

	result, err := ss.db.Exec(`
		INSERT INTO wifi_presence (id, tenant_id, agent_id, mac_address, ip_address, hostname, manufacturer,
			is_active, is_authorized, asset_id, first_seen, last_seen, connected_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, mac_address) DO NOTHING
	`, rec.ID, rec.TenantID, rec.AgentID, rec.MACAddress, rec.IPAddress, rec.Hostname, rec.Manufacturer,
		boolToInt(rec.IsActive), boolToInt(rec.IsAuthorized), rec.AssetID,
		rec.FirstSeen, rec.LastSeen, rec.ConnectedFor, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting presence record: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

const presenceColumns = `id, tenant_id, agent_id, mac_address, ip_address, hostname, manufacturer,
	is_active, is_authorized, asset_id, first_seen, last_seen, connected_seconds, created_at, updated_at`

// GetPresenceRecord retrieves the row for a (tenant, mac) pair.
func (ss *SQLiteStorage) GetPresenceRecord(tenantID, mac string) (*model.WifiPresenceRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT `+presenceColumns+`
		FROM wifi_presence
		WHERE tenant_id = ? AND mac_address = ?
		LIMIT 1
	`, tenantID, mac)
	if err != nil {
		return nil, fmt.Errorf("querying presence record: %w", err)
	}
	defer rows.Close()

	records, err := scanPresence(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrDeviceNotFound
	}
	return &records[0], nil
}

// UpdatePresenceRecord rewrites a sighting row after a repeat sighting.
func (ss *SQLiteStorage) UpdatePresenceRecord(rec *model.WifiPresenceRecord) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := time.Now()
	rec.UpdatedAt = &now

	result, err := ss.db.Exec(`
		UPDATE wifi_presence
		SET agent_id = ?, ip_address = ?, hostname = ?, manufacturer = ?,
		    is_active = ?, is_authorized = ?, asset_id = ?,
		    last_seen = ?, connected_seconds = ?, updated_at = ?
		WHERE tenant_id = ? AND mac_address = ?
	`, rec.AgentID, rec.IPAddress, rec.Hostname, rec.Manufacturer,
		boolToInt(rec.IsActive), boolToInt(rec.IsAuthorized), rec.AssetID,
		rec.LastSeen, rec.ConnectedFor, now, rec.TenantID, rec.MACAddress)
	if err != nil {
		return fmt.Errorf("updating presence record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ListPresence returns all of a tenant's presence rows, active first, most
// recently seen first within each group.
func (ss *SQLiteStorage) ListPresence(tenantID string) ([]model.WifiPresenceRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT `+presenceColumns+`
		FROM wifi_presence
		WHERE tenant_id = ?
		ORDER BY is_active DESC, last_seen DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying presence records: %w", err)
	}
	defer rows.Close()

	return scanPresence(rows)
}

// DeactivateMissing marks inactive every active row this agent owns whose MAC
// is absent from the current batch. Rows written by other agents are left
// alone, so overlapping monitors do not fight over liveness.
func (ss *SQLiteStorage) DeactivateMissing(tenantID, agentID string, seenMACs []string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	query := `UPDATE wifi_presence SET is_active = 0, updated_at = ? WHERE tenant_id = ? AND agent_id = ? AND is_active = 1`
	args := []interface{}{time.Now(), tenantID, agentID}

	if len(seenMACs) > 0 {
		query += ` AND mac_address NOT IN (?` + strings.Repeat(", ?", len(seenMACs)-1) + `)`
		for _, mac := range seenMACs {
			args = append(args, mac)
		}
	}

	if _, err := ss.db.Exec(query, args...); err != nil {
		return fmt.Errorf("deactivating missing presence records: %w", err)
	}
	return nil
}

// DeactivateStalePresence marks inactive any active row not refreshed since
// the cutoff, regardless of agent. Covers monitors that died mid-batch.
func (ss *SQLiteStorage) DeactivateStalePresence(cutoff time.Time) (int, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE wifi_presence
		SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND last_seen < ?
	`, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivating stale presence records: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// InsertAlert records an unknown-device alert. A second alert for the same
// (tenant, mac) is dropped by the UNIQUE constraint.
func (ss *SQLiteStorage) InsertAlert(alert *model.UnknownDeviceAlert) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	alert.CreatedAt = time.Now()

	_, err := ss.db.Exec(`
		INSERT INTO unknown_device_alerts (id, tenant_id, mac_address, ip_address, hostname, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, mac_address) DO NOTHING
	`, alert.ID, alert.TenantID, alert.MACAddress, alert.IPAddress, alert.Hostname, alert.Status, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// ListAlerts returns a tenant's alerts, optionally filtered by status.
func (ss *SQLiteStorage) ListAlerts(tenantID, status string) ([]model.UnknownDeviceAlert, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `
		SELECT id, tenant_id, mac_address, ip_address, hostname, status, acknowledged_by, acknowledged_at, created_at
		FROM unknown_device_alerts
		WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.UnknownDeviceAlert
	for rows.Next() {
		var a model.UnknownDeviceAlert
		var ip, hostname, ackBy sql.NullString
		var ackAt sql.NullTime
		err := rows.Scan(&a.ID, &a.TenantID, &a.MACAddress, &ip, &hostname, &a.Status, &ackBy, &ackAt, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.IPAddress = ip.String
		a.Hostname = hostname.String
		a.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			t := ackAt.Time
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// CountPendingAlerts counts a tenant's unacknowledged alerts.
func (ss *SQLiteStorage) CountPendingAlerts(tenantID string) (int, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var count int
	err := ss.db.QueryRow(`
		SELECT COUNT(*) FROM unknown_device_alerts WHERE tenant_id = ? AND status = ?
	`, tenantID, model.AlertStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending alerts: %w", err)
	}
	return count, nil
}

// AcknowledgeAlert moves a pending alert to acknowledged. Acknowledging twice
// is a no-op error: the status guard leaves the first acknowledger's record
// intact.
func (ss *SQLiteStorage) AcknowledgeAlert(tenantID, id, acknowledgedBy string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE unknown_device_alerts
		SET status = ?, acknowledged_by = ?, acknowledged_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`, model.AlertStatusAcknowledged, acknowledgedBy, time.Now(), tenantID, id, model.AlertStatusPending)
	if err != nil {
		return fmt.Errorf("acknowledging alert: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func scanAgents(rows *sql.Rows) ([]model.NetworkMonitorAgent, error) {
	var agents []model.NetworkMonitorAgent

	for rows.Next() {
		var a model.NetworkMonitorAgent
		var name, osType, version, ip, netRange sql.NullString
		var lastHB sql.NullTime
		err := rows.Scan(&a.AgentID, &a.TenantID, &name, &a.APIKeyHash, &a.Status, &osType, &version,
			&ip, &netRange, &lastHB, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning monitor agent: %w", err)
		}
		a.AgentName = name.String
		a.OSType = osType.String
		a.Version = version.String
		a.AgentIPAddress = ip.String
		a.NetworkRange = netRange.String
		if lastHB.Valid {
			t := lastHB.Time
			a.LastHeartbeat = &t
		}
		agents = append(agents, a)
	}

	return agents, rows.Err()
}

func scanPresence(rows *sql.Rows) ([]model.WifiPresenceRecord, error) {
	var records []model.WifiPresenceRecord

	for rows.Next() {
		var r model.WifiPresenceRecord
		var ip, hostname, manufacturer, assetID sql.NullString
		var isActive, isAuthorized int
		var updatedAt sql.NullTime
		err := rows.Scan(&r.ID, &r.TenantID, &r.AgentID, &r.MACAddress, &ip, &hostname, &manufacturer,
			&isActive, &isAuthorized, &assetID, &r.FirstSeen, &r.LastSeen, &r.ConnectedFor, &r.CreatedAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning presence record: %w", err)
		}
		r.IPAddress = ip.String
		r.Hostname = hostname.String
		r.Manufacturer = manufacturer.String
		r.AssetID = assetID.String
		r.IsActive = isActive != 0
		r.IsAuthorized = isAuthorized != 0
		if updatedAt.Valid {
			t := updatedAt.Time
			r.UpdatedAt = &t
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
