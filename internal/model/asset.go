package model

import "time"

// Asset is the inventory collaborator surface this core reads for dedup and
// authorization lookups and writes through the promotion pipeline. General
// asset management lives elsewhere in the platform.
type Asset struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	SiteID       string            `json:"site_id,omitempty"`
	Name         string            `json:"name"`
	AssetType    string            `json:"asset_type,omitempty"`
	SerialNumber string            `json:"serial_number,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"` // free-form; may carry mac_address / ip_address
	Tags         []string          `json:"tags,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Well-known attribute keys consulted by the dedup engine and the presence
// tracker's authorization lookup.
const (
	AttrMACAddress = "mac_address"
	AttrIPAddress  = "ip_address"
)
