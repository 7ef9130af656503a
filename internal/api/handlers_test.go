package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/vistrive/assetnext/internal/discovery"
	"github.com/vistrive/assetnext/internal/model"
	"github.com/vistrive/assetnext/internal/presence"
	"github.com/vistrive/assetnext/internal/token"
)

const testSecret = "test-secret"

type testEnv struct {
	storage *mockStorage
	tokens  *token.Service
	handler http.Handler
}

func newTestEnv() *testEnv {
	store := newMockStorage()
	tokens := token.NewService(testSecret)
	registry := discovery.NewRegistry(store, tokens, "https://downloads.example.com/agent")
	tracker := presence.NewTracker(store)

	h := NewHandler(store, registry, tracker, tokens)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{
		storage: store,
		tokens:  tokens,
		handler: SecurityHeadersMiddleware(OperatorAuthMiddleware(tokens, mux)),
	}
}

func (e *testEnv) operatorToken(t *testing.T, role string) string {
	t.Helper()
	tok, err := e.tokens.IssueOperatorToken("user-7", "tenant-1", role, time.Hour)
	if err != nil {
		t.Fatalf("IssueOperatorToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func (e *testEnv) createJob(t *testing.T) *model.CreateJobResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/discovery/jobs", e.operatorToken(t, "member"), model.CreateJobRequest{NetworkRange: "10.0.0.0/24"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create job status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[model.CreateJobResponse](t, rec)
	return &resp
}

func TestCreateJobRequiresOperator(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/discovery/jobs", "", model.CreateJobRequest{})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/discovery/jobs", "garbage", model.CreateJobRequest{})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 with a bad token", rec.Code)
	}
}

func TestCreateJobReturnsTokenOnce(t *testing.T) {
	env := newTestEnv()
	resp := env.createJob(t)

	if resp.Token == "" {
		t.Error("expected a job token")
	}
	if resp.Job.Status != model.JobStatusPending {
		t.Errorf("status = %q, want pending", resp.Job.Status)
	}

	// later reads never carry the token
	rec := env.do(t, http.MethodGet, "/api/discovery/jobs/"+resp.Job.ID, env.operatorToken(t, "member"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get job status = %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(resp.Token)) {
		t.Error("job status response leaked the agent token")
	}
}

func TestGetJobCrossTenant(t *testing.T) {
	env := newTestEnv()
	resp := env.createJob(t)

	other, err := env.tokens.IssueOperatorToken("user-9", "tenant-2", "member", time.Hour)
	if err != nil {
		t.Fatalf("IssueOperatorToken: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/discovery/jobs/"+resp.Job.ID, other, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another tenant's job", rec.Code)
	}
}

func TestUploadResultsTokenGuards(t *testing.T) {
	env := newTestEnv()
	a := env.createJob(t)
	b := env.createJob(t)

	batch := model.ResultBatchRequest{Devices: []model.ReportedDevice{{IPAddress: "10.0.0.1"}}}

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{"no token", "/api/discovery/jobs/" + a.Job.JobCode + "/results", "", http.StatusUnauthorized},
		{"garbage token", "/api/discovery/jobs/" + a.Job.JobCode + "/results", "garbage", http.StatusUnauthorized},
		{"token for another job", "/api/discovery/jobs/" + b.Job.JobCode + "/results", a.Token, http.StatusForbidden},
		{"valid", "/api/discovery/jobs/" + a.Job.JobCode + "/results", a.Token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.bearer, batch)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUploadResultsExpiredToken(t *testing.T) {
	env := newTestEnv()
	resp := env.createJob(t)

	// signature-valid but past exp
	claims := &token.JobClaims{
		JobID:    resp.Job.ID,
		JobCode:  resp.Job.JobCode,
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/discovery/jobs/"+resp.Job.JobCode+"/results",
		expired, model.ResultBatchRequest{Devices: []model.ReportedDevice{{IPAddress: "10.0.0.1"}}})
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 for an expired token", rec.Code)
	}
}

func TestDiscoveryFlow(t *testing.T) {
	env := newTestEnv()
	env.storage.assets = []model.Asset{
		{ID: "asset-1", TenantID: "tenant-1", SerialNumber: "SN-1"},
	}
	resp := env.createJob(t)
	operator := env.operatorToken(t, "member")

	// agent reports progress
	pct := 10.0
	rec := env.do(t, http.MethodPatch, "/api/discovery/jobs/"+resp.Job.JobCode+"/progress",
		resp.Token, model.ProgressUpdateRequest{ProgressMessage: "starting", ProgressPercent: &pct})
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d: %s", rec.Code, rec.Body.String())
	}
	job := decodeBody[model.DiscoveryJob](t, rec)
	if job.Status != model.JobStatusRunning {
		t.Errorf("status = %q, want running after first progress", job.Status)
	}

	// agent uploads results
	rec = env.do(t, http.MethodPost, "/api/discovery/jobs/"+resp.Job.JobCode+"/results",
		resp.Token, model.ResultBatchRequest{Devices: []model.ReportedDevice{
			{IPAddress: "10.0.0.1", SerialNumber: "SN-1"},
			{IPAddress: "10.0.0.2", Hostname: "switch-2"},
		}})
	if rec.Code != http.StatusOK {
		t.Fatalf("results status = %d: %s", rec.Code, rec.Body.String())
	}
	summary := decodeBody[model.IngestSummary](t, rec)
	if summary.Ingested != 2 {
		t.Errorf("ingested = %d, want 2", summary.Ingested)
	}

	// operator polls: devices and counters visible
	rec = env.do(t, http.MethodGet, "/api/discovery/jobs/"+resp.Job.ID, operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("poll status = %d", rec.Code)
	}
	status := decodeBody[model.JobStatusResponse](t, rec)
	if status.DeviceCount != 2 {
		t.Errorf("device count = %d, want 2", status.DeviceCount)
	}
	if status.Job.TotalHosts != 2 {
		t.Errorf("total hosts = %d, want 2", status.Job.TotalHosts)
	}

	// operator imports the non-duplicate device
	var freshID string
	for _, d := range status.Devices {
		if !d.IsDuplicate {
			freshID = d.ID
		}
	}
	rec = env.do(t, http.MethodPost, "/api/discovery/import", operator,
		model.ImportRequest{JobID: resp.Job.ID, DeviceIDs: []string{freshID}, Tags: []string{"discovered"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	imported := decodeBody[model.ImportSummary](t, rec)
	if imported.Imported != 1 {
		t.Errorf("imported = %d, want 1", imported.Imported)
	}

	// importing the only promotable device completed the job
	rec = env.do(t, http.MethodGet, "/api/discovery/jobs/"+resp.Job.ID, operator, nil)
	status = decodeBody[model.JobStatusResponse](t, rec)
	if status.Job.Status != model.JobStatusCompleted {
		t.Errorf("status = %q, want completed", status.Job.Status)
	}

	// further batches hit a finished job
	rec = env.do(t, http.MethodPost, "/api/discovery/jobs/"+resp.Job.JobCode+"/results",
		resp.Token, model.ResultBatchRequest{Devices: []model.ReportedDevice{{IPAddress: "10.0.0.9"}}})
	if rec.Code != http.StatusConflict {
		t.Errorf("late batch status = %d, want 409", rec.Code)
	}
}

func TestUploadResultsExpiredJob(t *testing.T) {
	env := newTestEnv()
	resp := env.createJob(t)

	env.storage.mu.Lock()
	env.storage.jobs[resp.Job.ID].ExpiresAt = time.Now().Add(-time.Minute)
	env.storage.mu.Unlock()

	rec := env.do(t, http.MethodPost, "/api/discovery/jobs/"+resp.Job.JobCode+"/results",
		resp.Token, model.ResultBatchRequest{Devices: []model.ReportedDevice{{IPAddress: "10.0.0.1"}}})
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 for an expired job", rec.Code)
	}

	// the failed write force-expired the job
	job, err := env.storage.GetJob("tenant-1", resp.Job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobStatusExpired {
		t.Errorf("stored status = %q, want expired", job.Status)
	}
}

func TestProgressValidation(t *testing.T) {
	env := newTestEnv()
	resp := env.createJob(t)

	bad := 140.0
	rec := env.do(t, http.MethodPatch, "/api/discovery/jobs/"+resp.Job.JobCode+"/progress",
		resp.Token, model.ProgressUpdateRequest{ProgressPercent: &bad})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for out-of-range percent", rec.Code)
	}
}
