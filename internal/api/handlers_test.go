package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shy020501/Video-Automation/internal/models"
)

type memRuns struct {
	runs map[uuid.UUID]*models.Run
}

func (m *memRuns) CreateRun(_ context.Context, run *models.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memRuns) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", models.ErrNotFound, id)
	}
	return run, nil
}

func (m *memRuns) ListRuns(_ context.Context, limit, offset int) ([]models.Run, error) {
	out := []models.Run{}
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

type memQueue struct {
	reqs   []*models.RunRequest
	lenErr error
}

func (q *memQueue) Enqueue(_ context.Context, req *models.RunRequest) error {
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *memQueue) Len(_ context.Context) (int64, error) {
	return int64(len(q.reqs)), q.lenErr
}

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *memRuns, *memQueue) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "animal_with_job.json")
	data := `{"chef": {"animals": ["pig", "rabbit"], "used": false}, "pilot": {"animals": ["eagle"], "used": true}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	runs := &memRuns{runs: map[uuid.UUID]*models.Run{}}
	q := &memQueue{}
	h := NewHandler(runs, q, path, nil)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{BackendAPIKey: apiKey}, nil))
	t.Cleanup(srv.Close)
	return srv, runs, q
}

func do(t *testing.T, method, url, body, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	resp := do(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	srv, _, q := newTestServer(t, "")
	q.reqs = append(q.reqs, &models.RunRequest{ID: uuid.New()}, &models.RunRequest{ID: uuid.New()})

	resp := do(t, http.MethodGet, srv.URL+"/health", "", "")
	var body struct {
		Status     string `json:"status"`
		QueueDepth int64  `json:"queue_depth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.QueueDepth != 2 {
		t.Errorf("health = %+v", body)
	}

	q.lenErr = fmt.Errorf("dial tcp: connection refused")
	resp = do(t, http.MethodGet, srv.URL+"/health", "", "")
	body.Status = ""
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "degraded" {
		t.Errorf("unreachable queue: status %d body %+v", resp.StatusCode, body)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	if resp := do(t, http.MethodGet, srv.URL+"/v1/jobs", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing key status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/v1/jobs", "", "wrong"); resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong key status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("bearer key status = %d", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	var jobs []models.JobSummary
	resp := do(t, http.MethodGet, srv.URL+"/v1/jobs?unused=true", "", "")
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Job != "chef" || len(jobs[0].Animals) != 2 {
		t.Errorf("unexpected jobs %+v", jobs)
	}
}

func TestCreateRun(t *testing.T) {
	srv, runs, q := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/v1/runs", `{"job":"chef","stages":"music"}`, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out models.CreateRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(q.reqs) != 1 || q.reqs[0].ID != out.RunID || q.reqs[0].Stages != "compose,media,music" {
		t.Errorf("unexpected queued request %+v", q.reqs)
	}
	if run := runs.runs[out.RunID]; run == nil || run.Status != models.RunStatusQueued {
		t.Errorf("run not recorded")
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/runs/"+out.RunID.String(), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get run status = %d", resp.StatusCode)
	}
}

func TestCreateRunRejections(t *testing.T) {
	srv, _, q := newTestServer(t, "")

	tests := []struct {
		body string
		want int
	}{
		{`{"stages":"teleport"}`, http.StatusBadRequest},
		{`{"job":"astronaut"}`, http.StatusNotFound},
		{`{"job":"pilot"}`, http.StatusConflict},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := do(t, http.MethodPost, srv.URL+"/v1/runs", tt.body, ""); resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.body, resp.StatusCode, tt.want)
		}
	}
	if len(q.reqs) != 0 {
		t.Errorf("rejected requests must not be queued")
	}
}

func TestGetRunErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	if resp := do(t, http.MethodGet, srv.URL+"/v1/runs/not-a-uuid", "", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/v1/runs/"+uuid.NewString(), "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d", resp.StatusCode)
	}
}
