package batch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mailflock/mailflock/internal/sender"
)

func TestJobManagerLifecycle(t *testing.T) {
	transport := &fakeTransport{}
	runner := testRunner(transport)
	manager := NewJobManager(runner, nil)
	pool, _ := testPoolWith(10)

	id := manager.Start(context.Background(), pool, testTemplate, testRecipients(3))
	if id == "" {
		t.Fatal("Start() returned empty job ID")
	}

	job, err := manager.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Total != 3 {
		t.Errorf("Total = %d, want 3", job.Total)
	}

	manager.Wait()

	job, err = manager.Get(id)
	if err != nil {
		t.Fatalf("Get() after Wait error = %v", err)
	}
	if job.State != StateCompleted {
		t.Errorf("State = %s, want %s", job.State, StateCompleted)
	}
	if job.Result == nil || job.Result.TotalSent != 3 {
		t.Errorf("Result = %+v", job.Result)
	}
	if job.Sent != 3 || job.Failed != 0 {
		t.Errorf("counters = %d sent / %d failed", job.Sent, job.Failed)
	}
	if job.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestJobManagerUnknownJob(t *testing.T) {
	manager := NewJobManager(testRunner(&fakeTransport{}), nil)

	if _, err := manager.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestJobManagerSerializesSharedQuota(t *testing.T) {
	store, err := sender.OpenStore(filepath.Join(t.TempDir(), "senders.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	id := &sender.Identity{
		Email:      "outreach@example.com",
		SMTPHost:   "mail.example.com",
		SMTPPort:   587,
		Password:   "secret",
		DailyLimit: 5,
		Active:     true,
	}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	transport := &fakeTransport{}
	manager := NewJobManager(testRunner(transport), store)

	// Two overlapping submissions, each with its own counter snapshot the
	// way the API takes them. The shared daily limit must still hold.
	snapA, err := store.LoadForToday()
	if err != nil {
		t.Fatalf("LoadForToday() error = %v", err)
	}
	snapB, err := store.LoadForToday()
	if err != nil {
		t.Fatalf("LoadForToday() error = %v", err)
	}
	manager.Start(context.Background(), sender.NewPool(snapA), testTemplate, testRecipients(5))
	manager.Start(context.Background(), sender.NewPool(snapB), testTemplate, testRecipients(5))
	manager.Wait()

	transport.mu.Lock()
	delivered := len(transport.calls)
	transport.mu.Unlock()
	if delivered != 5 {
		t.Errorf("delivered %d messages against a daily limit of 5", delivered)
	}

	persisted, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if persisted.SentToday != 5 {
		t.Errorf("persisted SentToday = %d, want 5", persisted.SentToday)
	}

	// One batch spends the quota, the other fails everything.
	var sent, failed int
	for _, job := range manager.List() {
		sent += job.Sent
		failed += job.Failed
	}
	if sent != 5 || failed != 5 {
		t.Errorf("totals across jobs = %d sent / %d failed, want 5/5", sent, failed)
	}
}

func TestJobManagerList(t *testing.T) {
	transport := &fakeTransport{}
	runner := testRunner(transport)
	manager := NewJobManager(runner, nil)

	poolA, _ := testPoolWith(10)
	poolB, _ := testPoolWith(10)
	manager.Start(context.Background(), poolA, testTemplate, testRecipients(1))
	manager.Start(context.Background(), poolB, testTemplate, testRecipients(2))
	manager.Wait()

	jobs := manager.List()
	if len(jobs) != 2 {
		t.Fatalf("List() returned %d jobs, want 2", len(jobs))
	}
	for _, job := range jobs {
		if job.State != StateCompleted {
			t.Errorf("job %s state = %s", job.ID, job.State)
		}
	}
}
