// Package dedup classifies discovered devices against the existing inventory.
// A device matches an asset on serial number, MAC address, or IP address, in
// that order of precedence. The verdict is computed once at ingestion time
// against a snapshot of the inventory and never re-evaluated, so an operator
// reviewing results sees stable flags even while the inventory changes.
package dedup

import (
	"strings"

	"github.com/vistrive/assetnext/internal/model"
)

// Match is a dedup verdict: the matched asset and which field matched.
type Match struct {
	AssetID string
	Field   string
}

// Index is a point-in-time lookup structure over one tenant's assets. Build
// one per ingestion batch; it is cheap and read-only afterwards.
type Index struct {
	bySerial map[string]string
	byMAC    map[string]string
	byIP     map[string]string
}

// NewIndex snapshots the given assets into lookup maps. Serial numbers
// compare exactly, MAC addresses case-insensitively. When two assets share a
// key the first one wins, matching the stable ordering of the assets listing.
func NewIndex(assets []model.Asset) *Index {
	idx := &Index{
		bySerial: make(map[string]string),
		byMAC:    make(map[string]string),
		byIP:     make(map[string]string),
	}

	for i := range assets {
		a := &assets[i]
		if serial := strings.TrimSpace(a.SerialNumber); serial != "" {
			if _, ok := idx.bySerial[serial]; !ok {
				idx.bySerial[serial] = a.ID
			}
		}
		if mac := normalize(a.Attributes[model.AttrMACAddress]); mac != "" {
			if _, ok := idx.byMAC[mac]; !ok {
				idx.byMAC[mac] = a.ID
			}
		}
		if ip := strings.TrimSpace(a.Attributes[model.AttrIPAddress]); ip != "" {
			if _, ok := idx.byIP[ip]; !ok {
				idx.byIP[ip] = a.ID
			}
		}
	}

	return idx
}

// Lookup returns the highest-precedence match for a reported device, or nil
// when the device is new to the inventory. Serial beats MAC beats IP; lower
// precedence fields are not consulted once a higher one matches, even if they
// would point at a different asset.
func (idx *Index) Lookup(dev *model.ReportedDevice) *Match {
	if serial := strings.TrimSpace(dev.SerialNumber); serial != "" {
		if id, ok := idx.bySerial[serial]; ok {
			return &Match{AssetID: id, Field: model.DupFieldSerial}
		}
	}
	if mac := normalize(dev.MACAddress); mac != "" {
		if id, ok := idx.byMAC[mac]; ok {
			return &Match{AssetID: id, Field: model.DupFieldMAC}
		}
	}
	if ip := strings.TrimSpace(dev.IPAddress); ip != "" {
		if id, ok := idx.byIP[ip]; ok {
			return &Match{AssetID: id, Field: model.DupFieldIP}
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
