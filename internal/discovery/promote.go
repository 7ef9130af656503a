package discovery

import (
	"errors"
	"time"

	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
)

// Promote turns selected discovered devices into inventory assets. Each
// device promotes independently: duplicates, already-imported devices, and
// devices from other jobs are skipped and counted, never aborting the batch.
// When the last promotable device of a job has been imported the job
// auto-completes.
func (r *Registry) Promote(tenantID string, req *model.ImportRequest) (*model.ImportSummary, error) {
	job, err := r.GetJob(tenantID, req.JobID)
	if err != nil {
		return nil, err
	}

	summary := &model.ImportSummary{Assets: []*model.Asset{}}

	for _, deviceID := range req.DeviceIDs {
		dev, err := r.store.GetDiscoveredDevice(tenantID, deviceID)
		if err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				summary.Skipped++
				continue
			}
			return nil, err
		}
		if dev.JobID != job.ID || dev.IsDuplicate || dev.IsImported {
			summary.Skipped++
			continue
		}

		asset := assetFromDevice(dev, req)
		if err := r.store.ImportDevice(dev, asset); err != nil {
			if errors.Is(err, storage.ErrDeviceImported) {
				summary.Skipped++
				continue
			}
			return nil, err
		}

		summary.Imported++
		summary.Assets = append(summary.Assets, asset)
	}

	if summary.Imported > 0 {
		if err := r.store.RecordActivity(tenantID, "", "discovery.devices.imported", job.JobCode); err != nil {
			log.Warn("recording import activity", "error", err)
		}
	}

	// The drain check runs even when nothing was imported: a batch that only
	// skipped duplicates can still be the one after which no promotable
	// device remains.
	if err := r.completeIfDrained(job); err != nil {
		return nil, err
	}

	log.Info("devices promoted", "job_code", job.JobCode,
		"imported", summary.Imported, "skipped", summary.Skipped)

	return summary, nil
}

// completeIfDrained auto-completes a running job once no promotable devices
// remain. Losing the conditional transition to a concurrent completion is
// fine.
func (r *Registry) completeIfDrained(job *model.DiscoveryJob) error {
	if job.Status != model.JobStatusRunning {
		return nil
	}
	remaining, err := r.store.CountUnimportedDevices(job.ID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	err = r.store.TransitionJob(job.ID, model.JobStatusRunning, model.JobStatusCompleted, time.Now())
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		return err
	}
	if err == nil {
		log.Info("discovery job completed", "job_code", job.JobCode)
	}
	return nil
}

// assetFromDevice maps a discovered device onto a new inventory asset. The
// hostname names the asset when present, the address otherwise.
func assetFromDevice(dev *model.DiscoveredDevice, req *model.ImportRequest) *model.Asset {
	name := dev.Hostname
	if name == "" {
		name = dev.IPAddress
	}

	attrs := map[string]string{
		model.AttrIPAddress: dev.IPAddress,
	}
	if dev.MACAddress != "" {
		attrs[model.AttrMACAddress] = dev.MACAddress
	}
	if dev.Manufacturer != "" {
		attrs["manufacturer"] = dev.Manufacturer
	}
	if dev.ModelName != "" {
		attrs["model"] = dev.ModelName
	}
	if dev.OSName != "" {
		attrs["os_name"] = dev.OSName
	}
	if dev.OSVersion != "" {
		attrs["os_version"] = dev.OSVersion
	}
	if dev.DiscoveryMethod != "" {
		attrs["discovery_method"] = dev.DiscoveryMethod
	}

	return &model.Asset{
		ID:           newID(),
		TenantID:     dev.TenantID,
		SiteID:       req.SiteID,
		Name:         name,
		AssetType:    "network_device",
		SerialNumber: dev.SerialNumber,
		Attributes:   attrs,
		Tags:         req.Tags,
	}
}
