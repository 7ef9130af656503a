package model

import "time"

// CredentialProfile is an ordered SNMP/remote-access credential set handed to
// scan agents. The secrets themselves are only ever consumed by the agent; at
// most one profile per tenant is the default.
type CredentialProfile struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	CredentialType string    `json:"credential_type"` // snmp_v2c, snmp_v3, ssh, winrm
	Priority       int       `json:"priority"`
	IsDefault      bool      `json:"is_default"`
	Username       string    `json:"username,omitempty"`
	Secret         string    `json:"secret,omitempty"` // community string / password
	Port           int       `json:"port,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
