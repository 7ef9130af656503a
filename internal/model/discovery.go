package model

import "time"

// Discovery job lifecycle. Jobs only ever move forward:
// pending -> running -> completed | failed | expired.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusExpired   = "expired"
)

// Discovered device statuses as reported by the scan agent.
const (
	DeviceStatusDiscovered  = "discovered"
	DeviceStatusPartial     = "partial"
	DeviceStatusUnreachable = "unreachable"
)

// Attribute that classified a discovered device as a duplicate.
const (
	DupFieldSerial = "serial"
	DupFieldMAC    = "mac"
	DupFieldIP     = "ip"
)

// JobLifetime is how long a discovery job (and its agent token) stays usable.
const JobLifetime = 30 * time.Minute

// DiscoveryJob represents one operator-initiated scan campaign.
type DiscoveryJob struct {
	ID      string `json:"id"`
	JobCode string `json:"job_id"` // short human-shareable code embedded in the agent token

	TenantID string `json:"tenant_id"`
	SiteID   string `json:"site_id,omitempty"`
	SiteName string `json:"site_name,omitempty"`

	Status       string `json:"status"`
	OSType       string `json:"os_type,omitempty"`
	NetworkRange string `json:"network_range,omitempty"`

	// Aggregate counters, updated only via atomic increments.
	TotalHosts       int `json:"total_hosts"`
	ScannedHosts     int `json:"scanned_hosts"`
	SuccessfulHosts  int `json:"successful_hosts"`
	PartialHosts     int `json:"partial_hosts"`
	UnreachableHosts int `json:"unreachable_hosts"`

	ProgressPercent float64 `json:"progress_percent"`
	ProgressMessage string  `json:"progress_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *DiscoveryJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusExpired:
		return true
	}
	return false
}

// DiscoveredDevice is one host reported by an agent result batch. The dedup
// verdict is computed once at ingestion and never re-evaluated.
type DiscoveredDevice struct {
	ID       string `json:"id"`
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`

	IPAddress    string `json:"ip_address"`
	MACAddress   string `json:"mac_address,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	OSName       string `json:"os_name,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`

	DiscoveryMethod string `json:"discovery_method,omitempty"`
	Status          string `json:"status"`

	IsDuplicate         bool   `json:"is_duplicate"`
	DuplicateAssetID    string `json:"duplicate_asset_id,omitempty"`
	DuplicateMatchField string `json:"duplicate_match_field,omitempty"`

	IsImported      bool   `json:"is_imported"`
	ImportedAssetID string `json:"imported_asset_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DiscoveredDeviceFilter narrows discovered-device listings.
type DiscoveredDeviceFilter struct {
	JobID    string
	Status   string
	Imported *bool // nil = all
}

// CreateJobRequest is the operator payload for starting a discovery campaign.
type CreateJobRequest struct {
	SiteID       string `json:"site_id,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	NetworkRange string `json:"network_range,omitempty"`
	OSType       string `json:"os_type,omitempty"`
}

// CreateJobResponse carries the job, its scoped agent token, and the agent
// package download link. The token is returned exactly once.
type CreateJobResponse struct {
	Job         *DiscoveryJob `json:"job"`
	Token       string        `json:"token"`
	DownloadURL string        `json:"download_url"`
}

// ProgressUpdateRequest is the agent's mid-scan progress report.
type ProgressUpdateRequest struct {
	Status          string   `json:"status,omitempty"`
	ProgressMessage string   `json:"progress_message,omitempty"`
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
}

// ReportedDevice is one host in an agent result batch.
type ReportedDevice struct {
	IPAddress       string `json:"ip_address"`
	MACAddress      string `json:"mac_address,omitempty"`
	Hostname        string `json:"hostname,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	ModelName       string `json:"model_name,omitempty"`
	OSName          string `json:"os_name,omitempty"`
	OSVersion       string `json:"os_version,omitempty"`
	DiscoveryMethod string `json:"discovery_method,omitempty"`
	Status          string `json:"status,omitempty"`
}

// ResultBatchRequest is the agent's result upload. Agents may upload
// incrementally; each batch stands on its own.
type ResultBatchRequest struct {
	Devices []ReportedDevice `json:"devices"`
}

// IngestSummary is returned to the agent after a result batch.
type IngestSummary struct {
	Ingested   int `json:"ingested"`
	Successful int `json:"successful"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
}

// ImportRequest selects discovered devices for promotion into inventory.
type ImportRequest struct {
	JobID     string   `json:"job_id"`
	DeviceIDs []string `json:"device_ids"`
	SiteID    string   `json:"site_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// ImportSummary reports the outcome of a promotion batch.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Assets   []*Asset `json:"assets"`
}

// JobStatusResponse is the operator poll view: the job plus its devices.
type JobStatusResponse struct {
	Job         *DiscoveryJob      `json:"job"`
	Devices     []DiscoveredDevice `json:"devices"`
	DeviceCount int                `json:"device_count"`
}
