package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vistrive/assetnext/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStorage implements Storage with a SQLite backend.
type SQLiteStorage struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database under dataDir.
func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "assetnext.db")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return ss, nil
}

func (ss *SQLiteStorage) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	_, err = ss.db.Exec(string(schema))
	return err
}

// Close closes the database connection.
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// GetDatabasePath returns the database file path.
func (ss *SQLiteStorage) GetDatabasePath() string {
	return ss.path
}

// Assets

// ListAssets returns all inventory assets of a tenant.
func (ss *SQLiteStorage) ListAssets(tenantID string) ([]model.Asset, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT id, tenant_id, site_id, name, asset_type, serial_number, attributes,
		       created_at, updated_at
		FROM assets
		WHERE tenant_id = ?
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer rows.Close()

	assets, err := ss.scanAssets(rows)
	if err != nil {
		return nil, err
	}

	for i := range assets {
		if err := ss.loadAssetTags(&assets[i]); err != nil {
			return nil, err
		}
	}

	return assets, nil
}

// CreateAsset inserts a new inventory asset.
func (ss *SQLiteStorage) CreateAsset(asset *model.Asset) error {
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

	if err := insertAssetTx(tx, asset); err != nil {
		return err
	}

	return tx.Commit()
}

// insertAssetTx inserts an asset and its tags inside an open transaction.
func insertAssetTx(tx *sql.Tx, asset *model.Asset) error {
	attrs, err := encodeAttributes(asset.Attributes)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO assets (id, tenant_id, site_id, name, asset_type, serial_number, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, asset.ID, asset.TenantID, asset.SiteID, asset.Name, asset.AssetType, asset.SerialNumber,
		attrs, asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting asset: %w", err)
	}

	for _, tag := range asset.Tags {
		if _, err := tx.Exec(`INSERT INTO asset_tags (asset_id, tag) VALUES (?, ?)`, asset.ID, tag); err != nil {
			return fmt.Errorf("inserting asset tag: %w", err)
		}
	}

	return nil
}

func (ss *SQLiteStorage) scanAssets(rows *sql.Rows) ([]model.Asset, error) {
	var assets []model.Asset

	for rows.Next() {
		var a model.Asset
		var siteID, assetType, serial, attrs sql.NullString
		err := rows.Scan(&a.ID, &a.TenantID, &siteID, &a.Name, &assetType, &serial, &attrs,
			&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		a.SiteID = siteID.String
		a.AssetType = assetType.String
		a.SerialNumber = serial.String
		if a.Attributes, err = decodeAttributes(attrs.String); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}

func (ss *SQLiteStorage) loadAssetTags(asset *model.Asset) error {
	rows, err := ss.db.Query(`SELECT tag FROM asset_tags WHERE asset_id = ? ORDER BY tag`, asset.ID)
	if err != nil {
		return fmt.Errorf("querying asset tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err
		}
		tags = append(tags, tag)
	}

	asset.Tags = tags
	return rows.Err()
}

// Credential profiles

// ListCredentialProfiles returns a tenant's profiles ordered by priority.
func (ss *SQLiteStorage) ListCredentialProfiles(tenantID string) ([]model.CredentialProfile, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT id, tenant_id, name, credential_type, priority, is_default, username, secret, port,
		       created_at, updated_at
		FROM credential_profiles
		WHERE tenant_id = ?
		ORDER BY priority, name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying credential profiles: %w", err)
	}
	defer rows.Close()

	return scanCredentialProfiles(rows)
}

// GetCredentialProfile retrieves one profile, tenant-scoped.
func (ss *SQLiteStorage) GetCredentialProfile(tenantID, id string) (*model.CredentialProfile, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT id, tenant_id, name, credential_type, priority, is_default, username, secret, port,
		       created_at, updated_at
		FROM credential_profiles
		WHERE tenant_id = ? AND id = ?
		LIMIT 1
	`, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("querying credential profile: %w", err)
	}
	defer rows.Close()

	profiles, err := scanCredentialProfiles(rows)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrCredentialNotFound
	}
	return &profiles[0], nil
}

// CreateCredentialProfile inserts a profile. Setting is_default unsets any
// prior default of the tenant in the same transaction.
func (ss *SQLiteStorage) CreateCredentialProfile(profile *model.CredentialProfile) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	tx, err := ss.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if profile.IsDefault {
		if _, err := tx.Exec(`UPDATE credential_profiles SET is_default = 0 WHERE tenant_id = ?`, profile.TenantID); err != nil {
			return fmt.Errorf("unsetting prior default: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO credential_profiles (id, tenant_id, name, credential_type, priority, is_default, username, secret, port, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, profile.ID, profile.TenantID, profile.Name, profile.CredentialType, profile.Priority,
		boolToInt(profile.IsDefault), profile.Username, profile.Secret, profile.Port,
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting credential profile: %w", err)
	}

	return tx.Commit()
}

// UpdateCredentialProfile updates a profile, preserving the single-default
// invariant.
func (ss *SQLiteStorage) UpdateCredentialProfile(profile *model.CredentialProfile) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	profile.UpdatedAt = time.Now()

	tx, err := ss.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if profile.IsDefault {
		if _, err := tx.Exec(`UPDATE credential_profiles SET is_default = 0 WHERE tenant_id = ? AND id != ?`,
			profile.TenantID, profile.ID); err != nil {
			return fmt.Errorf("unsetting prior default: %w", err)
		}
	}

	result, err := tx.Exec(`
		UPDATE credential_profiles
		SET name = ?, credential_type = ?, priority = ?, is_default = ?, username = ?, secret = ?, port = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`, profile.Name, profile.CredentialType, profile.Priority, boolToInt(profile.IsDefault),
		profile.Username, profile.Secret, profile.Port, profile.UpdatedAt,
		profile.TenantID, profile.ID)
	if err != nil {
		return fmt.Errorf("updating credential profile: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return tx.Commit()
}

// DeleteCredentialProfile removes a profile, tenant-scoped.
func (ss *SQLiteStorage) DeleteCredentialProfile(tenantID, id string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec(`DELETE FROM credential_profiles WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting credential profile: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

func scanCredentialProfiles(rows *sql.Rows) ([]model.CredentialProfile, error) {
	var profiles []model.CredentialProfile

	for rows.Next() {
		var p model.CredentialProfile
		var isDefault int
		var username, secret sql.NullString
		var port sql.NullInt64
		err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CredentialType, &p.Priority, &isDefault,
			&username, &secret, &port, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning credential profile: %w", err)
		}
		p.IsDefault = isDefault != 0
		p.Username = username.String
		p.Secret = secret.String
		p.Port = int(port.Int64)
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// Activity log

// RecordActivity appends one audit-trail entry.
func (ss *SQLiteStorage) RecordActivity(tenantID, actor, action, detail string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	_, err := ss.db.Exec(`
		INSERT INTO activity_log (tenant_id, actor, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, tenantID, actor, action, detail, time.Now())
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// Helpers

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(data), nil
}

func decodeAttributes(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	return attrs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
