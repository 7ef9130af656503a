package discovery

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vistrive/assetnext/internal/model"
)

func statusRank(status string) int {
	switch status {
	case model.JobStatusPending:
		return 0
	case model.JobStatusRunning:
		return 1
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusExpired:
		return 2
	}
	return -1
}

// TestJobLifecycleProperties drives a job through random sequences of agent
// and operator operations and checks the lifecycle invariants: the status
// only ever moves forward, terminal states are immutable, and the aggregate
// counters equal the sum of all ingested batches.
func TestJobLifecycleProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMockStore()
		reg := newTestRegistry(store)

		resp, err := reg.CreateJob("tenant-1", &model.CreateJobRequest{})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		code := resp.Job.JobCode

		prevRank := statusRank(model.JobStatusPending)
		wasTerminal := false
		var terminalStatus string
		ingestedTotal := 0
		nextIP := 1

		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"progress", "ingest", "complete", "fail", "expire"}).Draw(t, "op")

			switch op {
			case "progress":
				pct := rapid.Float64Range(0, 100).Draw(t, "pct")
				_, _ = reg.RecordProgress("tenant-1", code, &model.ProgressUpdateRequest{
					ProgressMessage: "scanning",
					ProgressPercent: &pct,
				})
			case "ingest":
				n := rapid.IntRange(1, 5).Draw(t, "batch")
				batch := &model.ResultBatchRequest{}
				for j := 0; j < n; j++ {
					batch.Devices = append(batch.Devices, model.ReportedDevice{
						IPAddress: fmt.Sprintf("10.9.%d.%d", nextIP/250, nextIP%250+1),
					})
					nextIP++
				}
				if summary, err := reg.IngestResults("tenant-1", code, batch); err == nil {
					ingestedTotal += summary.Ingested
				}
			case "complete":
				_, _ = reg.RecordProgress("tenant-1", code, &model.ProgressUpdateRequest{Status: model.JobStatusCompleted})
			case "fail":
				_, _ = reg.RecordProgress("tenant-1", code, &model.ProgressUpdateRequest{Status: model.JobStatusFailed})
			case "expire":
				store.mu.Lock()
				for _, j := range store.jobs {
					j.ExpiresAt = time.Now().Add(-time.Second)
				}
				store.mu.Unlock()
			}

			job, err := reg.GetJobByCode("tenant-1", code)
			if err != nil {
				t.Fatalf("GetJobByCode: %v", err)
			}

			rank := statusRank(job.Status)
			if rank < 0 {
				t.Fatalf("unknown status %q", job.Status)
			}
			if rank < prevRank {
				t.Fatalf("status moved backward to %q", job.Status)
			}
			prevRank = rank

			if wasTerminal && job.Status != terminalStatus {
				t.Fatalf("terminal status changed from %q to %q", terminalStatus, job.Status)
			}
			if job.Terminal() {
				wasTerminal = true
				terminalStatus = job.Status
			}

			if job.TotalHosts != ingestedTotal {
				t.Fatalf("total = %d, want %d ingested", job.TotalHosts, ingestedTotal)
			}
		}
	})
}
