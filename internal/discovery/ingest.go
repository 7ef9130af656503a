package discovery

import (
	"net"
	"strings"
	"time"

	"github.com/vistrive/assetnext/internal/dedup"
	"github.com/vistrive/assetnext/internal/log"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/storage"
)

// IngestResults persists one agent result batch. Each batch stands alone:
// devices are appended, the dedup verdict is computed against the current
// inventory snapshot, and the job counters take exactly one atomic increment
// per batch. Individual malformed devices are counted as failed without
// aborting the rest of the batch.
func (r *Registry) IngestResults(tenantID, jobCode string, batch *model.ResultBatchRequest) (*model.IngestSummary, error) {
	job, err := r.GetJobByCode(tenantID, jobCode)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusExpired {
		return nil, ErrJobExpired
	}
	if job.Terminal() {
		return nil, ErrJobTerminal
	}
	if err := r.ensureRunning(job); err != nil {
		return nil, err
	}

	assets, err := r.store.ListAssets(tenantID)
	if err != nil {
		return nil, err
	}
	idx := dedup.NewIndex(assets)

	summary := &model.IngestSummary{}
	var delta storage.CounterDelta

	for i := range batch.Devices {
		rep := &batch.Devices[i]

		if net.ParseIP(strings.TrimSpace(rep.IPAddress)) == nil {
			summary.Failed++
			log.Warn("skipping device with invalid address", "job_code", jobCode, "ip", rep.IPAddress)
			continue
		}

		dev := deviceFromReport(job, rep)
		if m := idx.Lookup(rep); m != nil {
			dev.IsDuplicate = true
			dev.DuplicateAssetID = m.AssetID
			dev.DuplicateMatchField = m.Field
		}

		if err := r.store.InsertDiscoveredDevice(dev); err != nil {
			summary.Failed++
			log.Warn("inserting discovered device", "job_code", jobCode, "ip", rep.IPAddress, "error", err)
			continue
		}

		summary.Ingested++
		delta.Total++
		delta.Scanned++
		switch dev.Status {
		case model.DeviceStatusPartial:
			summary.Partial++
			delta.Partial++
		case model.DeviceStatusUnreachable:
			delta.Unreachable++
		default:
			summary.Successful++
			delta.Successful++
		}
	}

	if delta.Total > 0 {
		if err := r.store.IncrementJobCounters(job.ID, delta); err != nil {
			return nil, err
		}
	}

	log.Info("result batch ingested", "job_code", jobCode,
		"ingested", summary.Ingested, "failed", summary.Failed)

	return summary, nil
}

func deviceFromReport(job *model.DiscoveryJob, rep *model.ReportedDevice) *model.DiscoveredDevice {
	status := rep.Status
	switch status {
	case model.DeviceStatusDiscovered, model.DeviceStatusPartial, model.DeviceStatusUnreachable:
	default:
		status = model.DeviceStatusDiscovered
	}

	return &model.DiscoveredDevice{
		ID:              newID(),
		JobID:           job.ID,
		TenantID:        job.TenantID,
		IPAddress:       strings.TrimSpace(rep.IPAddress),
		MACAddress:      strings.ToLower(strings.TrimSpace(rep.MACAddress)),
		Hostname:        rep.Hostname,
		SerialNumber:    rep.SerialNumber,
		Manufacturer:    rep.Manufacturer,
		ModelName:       rep.ModelName,
		OSName:          rep.OSName,
		OSVersion:       rep.OSVersion,
		DiscoveryMethod: rep.DiscoveryMethod,
		Status:          status,
		CreatedAt:       time.Now(),
	}
}
