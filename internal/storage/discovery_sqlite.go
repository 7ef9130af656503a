package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vistrive/assetnext/internal/model"
)

const jobColumns = `id, job_code, tenant_id, site_id, site_name, status, os_type, network_range,
	total_hosts, scanned_hosts, successful_hosts, partial_hosts, unreachable_hosts,
	progress_percent, progress_message, started_at, completed_at, expires_at, created_at`

// CreateJob persists a new discovery job in pending status.
func (ss *SQLiteStorage) CreateJob(job *model.DiscoveryJob) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	job.CreatedAt = time.Now()

	_, err := ss.db.Exec(`
		INSERT INTO discovery_jobs (id, job_code, tenant_id, site_id, site_name, status, os_type, network_range, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.JobCode, job.TenantID, job.SiteID, job.SiteName, job.Status,
		job.OSType, job.NetworkRange, job.ExpiresAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting discovery job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by internal id, tenant-scoped.
func (ss *SQLiteStorage) GetJob(tenantID, id string) (*model.DiscoveryJob, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryJob(`SELECT `+jobColumns+` FROM discovery_jobs WHERE tenant_id = ? AND id = ? LIMIT 1`, tenantID, id)
}

// GetJobByCode retrieves a job by its short public code, tenant-scoped.
func (ss *SQLiteStorage) GetJobByCode(tenantID, code string) (*model.DiscoveryJob, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryJob(`SELECT `+jobColumns+` FROM discovery_jobs WHERE tenant_id = ? AND job_code = ? LIMIT 1`, tenantID, code)
}

// ListJobs returns all jobs of a tenant, newest first.
func (ss *SQLiteStorage) ListJobs(tenantID string) ([]model.DiscoveryJob, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`SELECT `+jobColumns+` FROM discovery_jobs WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying discovery jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// TransitionJob conditionally moves a job between statuses in one statement.
// The WHERE status = from guard means a concurrent transition loses cleanly
// instead of overwriting: zero rows affected yields ErrInvalidTransition.
func (ss *SQLiteStorage) TransitionJob(id, from, to string, at time.Time) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	var result sql.Result
	var err error

	switch to {
	case model.JobStatusRunning:
		result, err = ss.db.Exec(`
			UPDATE discovery_jobs
			SET status = ?, started_at = COALESCE(started_at, ?)
			WHERE id = ? AND status = ?
		`, to, at, id, from)
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusExpired:
		result, err = ss.db.Exec(`
			UPDATE discovery_jobs
			SET status = ?, completed_at = COALESCE(completed_at, ?)
			WHERE id = ? AND status = ?
		`, to, at, id, from)
	default:
		return ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("transitioning job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// IncrementJobCounters applies a batch's contribution as a single atomic
// increment. Concurrent batches from the same agent session must not lose
// updates, so this is never implemented as read-modify-write.
func (ss *SQLiteStorage) IncrementJobCounters(id string, delta CounterDelta) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE discovery_jobs
		SET total_hosts = total_hosts + ?,
		    scanned_hosts = scanned_hosts + ?,
		    successful_hosts = successful_hosts + ?,
		    partial_hosts = partial_hosts + ?,
		    unreachable_hosts = unreachable_hosts + ?
		WHERE id = ?
	`, delta.Total, delta.Scanned, delta.Successful, delta.Partial, delta.Unreachable, id)
	if err != nil {
		return fmt.Errorf("incrementing job counters: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetJobProgress records the agent's human-readable progress report.
func (ss *SQLiteStorage) SetJobProgress(id, message string, percent *float64) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sets := []string{}
	args := []interface{}{}
	if message != "" {
		sets = append(sets, "progress_message = ?")
		args = append(args, message)
	}
	if percent != nil {
		sets = append(sets, "progress_percent = ?")
		args = append(args, *percent)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := ss.db.Exec(`UPDATE discovery_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ExpireOverdueJobs force-expires every non-terminal job past its deadline.
func (ss *SQLiteStorage) ExpireOverdueJobs(now time.Time) (int, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		UPDATE discovery_jobs
		SET status = ?, completed_at = COALESCE(completed_at, ?)
		WHERE expires_at < ? AND status IN (?, ?)
	`, model.JobStatusExpired, now, now, model.JobStatusPending, model.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("expiring jobs: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// InsertDiscoveredDevice persists one reported host with its dedup verdict.
// Rows are append-only; an earlier batch's rows are never overwritten.
func (ss *SQLiteStorage) InsertDiscoveredDevice(dev *model.DiscoveredDevice) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	dev.CreatedAt = time.Now()

	_, err := ss.db.Exec(`
		INSERT INTO discovered_devices (id, job_id, tenant_id, ip_address, mac_address, hostname,
			serial_number, manufacturer, model_name, os_name, os_version, discovery_method, status,
			is_duplicate, duplicate_asset_id, duplicate_match_field, is_imported, imported_asset_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
	`, dev.ID, dev.JobID, dev.TenantID, dev.IPAddress, dev.MACAddress, dev.Hostname,
		dev.SerialNumber, dev.Manufacturer, dev.ModelName, dev.OSName, dev.OSVersion,
		dev.DiscoveryMethod, dev.Status,
		boolToInt(dev.IsDuplicate), dev.DuplicateAssetID, dev.DuplicateMatchField, dev.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting discovered device: %w", err)
	}
	return nil
}

// GetDiscoveredDevice retrieves one device, tenant-scoped.
func (ss *SQLiteStorage) GetDiscoveredDevice(tenantID, id string) (*model.DiscoveredDevice, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT `+deviceColumns+`
		FROM discovered_devices
		WHERE tenant_id = ? AND id = ?
		LIMIT 1
	`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("querying discovered device: %w", err)
	}
	defer rows.Close()

	devices, err := scanDiscoveredDevices(rows)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}
	return &devices[0], nil
}

const deviceColumns = `id, job_id, tenant_id, ip_address, mac_address, hostname, serial_number,
	manufacturer, model_name, os_name, os_version, discovery_method, status,
	is_duplicate, duplicate_asset_id, duplicate_match_field, is_imported, imported_asset_id, created_at`

// ListDiscoveredDevices lists a tenant's devices, optionally filtered.
func (ss *SQLiteStorage) ListDiscoveredDevices(tenantID string, filter *model.DiscoveredDeviceFilter) ([]model.DiscoveredDevice, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `SELECT ` + deviceColumns + ` FROM discovered_devices WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if filter != nil {
		if filter.JobID != "" {
			query += " AND job_id = ?"
			args = append(args, filter.JobID)
		}
		if filter.Status != "" {
			query += " AND status = ?"
			args = append(args, filter.Status)
		}
		if filter.Imported != nil {
			query += " AND is_imported = ?"
			args = append(args, boolToInt(*filter.Imported))
		}
	}
	query += " ORDER BY created_at, ip_address"

	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying discovered devices: %w", err)
	}
	defer rows.Close()

	return scanDiscoveredDevices(rows)
}

// CountUnimportedDevices counts a job's devices still awaiting promotion,
// excluding duplicates (which are never imported).
func (ss *SQLiteStorage) CountUnimportedDevices(jobID string) (int, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var count int
	err := ss.db.QueryRow(`
		SELECT COUNT(*)
		FROM discovered_devices
		WHERE job_id = ? AND is_imported = 0 AND is_duplicate = 0
	`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unimported devices: %w", err)
	}
	return count, nil
}

// ImportDevice creates the inventory asset and flips the device's imported
// flag in one transaction. The is_imported = 0 guard makes concurrent imports
// of the same device idempotent: the loser rolls back and no second asset
// exists.
func (ss *SQLiteStorage) ImportDevice(dev *model.DiscoveredDevice, asset *model.Asset) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := time.Now()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	tx, err := ss.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE discovered_devices
		SET is_imported = 1, imported_asset_id = ?
		WHERE id = ? AND is_imported = 0
	`, asset.ID, dev.ID)
	if err != nil {
		return fmt.Errorf("marking device imported: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDeviceImported
	}

	if err := insertAssetTx(tx, asset); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	dev.IsImported = true
	dev.ImportedAssetID = asset.ID
	return nil
}

// PurgeExpiredDevices deletes discovered devices belonging to expired jobs
// older than the retention window.
func (ss *SQLiteStorage) PurgeExpiredDevices(before time.Time) (int, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`
		DELETE FROM discovered_devices
		WHERE job_id IN (
			SELECT id FROM discovery_jobs WHERE status = ? AND expires_at < ?
		)
	`, model.JobStatusExpired, before)
	if err != nil {
		return 0, fmt.Errorf("purging discovered devices: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// Helpers

func (ss *SQLiteStorage) queryJob(query string, args ...interface{}) (*model.DiscoveryJob, error) {
	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying discovery job: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

func scanJobs(rows *sql.Rows) ([]model.DiscoveryJob, error) {
	var jobs []model.DiscoveryJob

	for rows.Next() {
		var j model.DiscoveryJob
		var siteID, siteName, osType, netRange, progressMsg sql.NullString
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(&j.ID, &j.JobCode, &j.TenantID, &siteID, &siteName, &j.Status, &osType, &netRange,
			&j.TotalHosts, &j.ScannedHosts, &j.SuccessfulHosts, &j.PartialHosts, &j.UnreachableHosts,
			&j.ProgressPercent, &progressMsg, &startedAt, &completedAt, &j.ExpiresAt, &j.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning discovery job: %w", err)
		}
		j.SiteID = siteID.String
		j.SiteName = siteName.String
		j.OSType = osType.String
		j.NetworkRange = netRange.String
		j.ProgressMessage = progressMsg.String
		if startedAt.Valid {
			t := startedAt.Time
			j.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			j.CompletedAt = &t
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

func scanDiscoveredDevices(rows *sql.Rows) ([]model.DiscoveredDevice, error) {
	var devices []model.DiscoveredDevice

	for rows.Next() {
		var d model.DiscoveredDevice
		var mac, hostname, serial, manufacturer, modelName, osName, osVersion, method sql.NullString
		var dupAssetID, dupField, importedAssetID sql.NullString
		var isDuplicate, isImported int
		err := rows.Scan(&d.ID, &d.JobID, &d.TenantID, &d.IPAddress, &mac, &hostname, &serial,
			&manufacturer, &modelName, &osName, &osVersion, &method, &d.Status,
			&isDuplicate, &dupAssetID, &dupField, &isImported, &importedAssetID, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning discovered device: %w", err)
		}
		d.MACAddress = mac.String
		d.Hostname = hostname.String
		d.SerialNumber = serial.String
		d.Manufacturer = manufacturer.String
		d.ModelName = modelName.String
		d.OSName = osName.String
		d.OSVersion = osVersion.String
		d.DiscoveryMethod = method.String
		d.IsDuplicate = isDuplicate != 0
		d.DuplicateAssetID = dupAssetID.String
		d.DuplicateMatchField = dupField.String
		d.IsImported = isImported != 0
		d.ImportedAssetID = importedAssetID.String
		devices = append(devices, d)
	}

	return devices, rows.Err()
}
