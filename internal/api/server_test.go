package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mailflock/mailflock/internal/batch"
	"github.com/mailflock/mailflock/internal/config"
	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
)

// okTransport accepts every delivery.
type okTransport struct{}

func (okTransport) Send(ctx context.Context, id *sender.Identity, rcpt recipient.Recipient, subject, body string) error {
	return nil
}

type testServer struct {
	*Server
	store *sender.Store
	jobs  *batch.JobManager
}

func newTestServer(t *testing.T, apiKeyHash string) *testServer {
	t.Helper()
	dir := t.TempDir()

	store, err := sender.OpenStore(filepath.Join(dir, "senders.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	db, err := sendlog.Open(filepath.Join(dir, "sendlog.db"))
	if err != nil {
		t.Fatalf("sendlog.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	journal := sendlog.NewRepository(db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := batch.NewRunner(okTransport{}, time.Millisecond, logger, journal)
	jobs := batch.NewJobManager(runner, store)

	cfg := &config.APIConfig{ListenAddr: ":0", APIKeyHash: apiKeyHash}
	srv := NewServer(jobs, store, journal, cfg, "test", logger)
	return &testServer{Server: srv, store: store, jobs: jobs}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) addSender(t *testing.T, email string, limit int) SenderView {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"smtp_host":"mail.example.com","smtp_port":587,"password":"secret","daily_limit":%d}`, email, limit)
	w := ts.do(t, http.MethodPost, "/api/v1/senders", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create sender: status %d: %s", w.Code, w.Body.String())
	}
	var view SenderView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode sender: %v", err)
	}
	return view
}

func TestHealthNoAuth(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	ts := newTestServer(t, string(hash))

	w := ts.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	ts := newTestServer(t, string(hash))

	w := ts.do(t, http.MethodGet, "/api/v1/senders", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without key: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/senders", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/senders", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSenderCRUD(t *testing.T) {
	ts := newTestServer(t, "")

	view := ts.addSender(t, "outreach@example.com", 50)
	if view.ID == "" || !view.Active || !view.HasAuth {
		t.Fatalf("created sender = %+v", view)
	}
	if strings.Contains(strings.ToLower(view.Email), "password") {
		t.Fatal("unexpected password content")
	}

	// The credential never appears in responses.
	w := ts.do(t, http.MethodGet, "/api/v1/senders/"+view.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("credential leaked: %s", w.Body.String())
	}

	w = ts.do(t, http.MethodPatch, "/api/v1/senders/"+view.ID, `{"active":false,"daily_limit":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status = %d: %s", w.Code, w.Body.String())
	}
	var updated SenderView
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Active || updated.DailyLimit != 10 {
		t.Errorf("updated = %+v", updated)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/senders/"+view.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/senders/"+view.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", w.Code)
	}
}

func TestSenderValidation(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"smtp_host":"h","smtp_port":587,"daily_limit":5}`},
		{"missing host", `{"email":"a@b.c","smtp_port":587,"daily_limit":5}`},
		{"missing port", `{"email":"a@b.c","smtp_host":"h","daily_limit":5}`},
		{"zero limit", `{"email":"a@b.c","smtp_host":"h","smtp_port":587,"daily_limit":0}`},
		{"not json", `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/senders", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSenderReset(t *testing.T) {
	ts := newTestServer(t, "")
	view := ts.addSender(t, "outreach@example.com", 50)

	id, err := ts.store.Get(view.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	id.SentToday = 42
	if err := ts.store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/senders/"+view.ID+"/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d", w.Code)
	}
	var reset SenderView
	json.Unmarshal(w.Body.Bytes(), &reset)
	if reset.SentToday != 0 {
		t.Errorf("SentToday = %d after reset", reset.SentToday)
	}
}

func TestBatchLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addSender(t, "outreach@example.com", 50)

	body := `{
		"subject": "Hi {Creator Name}",
		"body": "<p>See {Social Media Link}</p>",
		"recipients": [
			{"email":"one@example.org","creator_name":"One","social_media_link":"https://x.com/one"},
			{"email":"two@example.org","creator_name":"Two","social_media_link":"https://x.com/two"}
		]
	}`
	w := ts.do(t, http.MethodPost, "/api/v1/batches", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create batch: status = %d: %s", w.Code, w.Body.String())
	}
	var created BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Total != 2 {
		t.Fatalf("created = %+v", created)
	}

	ts.jobs.Wait()

	w = ts.do(t, http.MethodGet, "/api/v1/batches/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get batch: status = %d", w.Code)
	}
	var job batch.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.State != batch.StateCompleted || job.Sent != 2 || job.Failed != 0 {
		t.Errorf("job = %+v", job)
	}

	// Deliveries land in the send log.
	w = ts.do(t, http.MethodGet, "/api/v1/logs?batch_id="+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logs: status = %d", w.Code)
	}
	var logs LogsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if logs.Total != 2 {
		t.Errorf("log total = %d, want 2", logs.Total)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/logs/stats?batch_id="+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status = %d", w.Code)
	}
	var stats sendlog.Stats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Sent != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatchValidation(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addSender(t, "outreach@example.com", 50)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing subject", `{"body":"b","recipients":[{"email":"a@b.c","creator_name":"A","social_media_link":"l"}]}`, http.StatusBadRequest},
		{"missing body", `{"subject":"s","recipients":[{"email":"a@b.c","creator_name":"A","social_media_link":"l"}]}`, http.StatusBadRequest},
		{"no recipients", `{"subject":"s","body":"b","recipients":[]}`, http.StatusBadRequest},
		{"invalid recipient", `{"subject":"s","body":"b","recipients":[{"email":"bad","creator_name":"A","social_media_link":"l"}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/batches", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestBatchWithoutSenders(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"subject":"s","body":"b","recipients":[{"email":"a@b.c","creator_name":"A","social_media_link":"l"}]}`
	w := ts.do(t, http.MethodPost, "/api/v1/batches", body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/v1/batches/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
