package sender

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "senders.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorePutGet(t *testing.T) {
	store := openTestStore(t)

	id := &Identity{
		Name:       "Outreach",
		Email:      "outreach@example.com",
		SMTPHost:   "mail.example.com",
		SMTPPort:   587,
		Password:   "secret",
		DailyLimit: 50,
		Active:     true,
	}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if id.ID == "" {
		t.Fatal("Put() did not assign an ID")
	}
	if id.LastReset == "" {
		t.Fatal("Put() did not set LastReset")
	}

	got, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil for existing identity")
	}
	if got.Email != id.Email || got.DailyLimit != 50 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Get("no-such-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

func TestStoreListOrder(t *testing.T) {
	store := openTestStore(t)

	for _, email := range []string{"first@example.com", "second@example.com", "third@example.com"} {
		if err := store.Put(&Identity{Email: email, DailyLimit: 1}); err != nil {
			t.Fatalf("Put(%s) error = %v", email, err)
		}
	}

	identities, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(identities) != 3 {
		t.Fatalf("List() returned %d identities, want 3", len(identities))
	}
	if identities[0].Email != "first@example.com" || identities[2].Email != "third@example.com" {
		t.Errorf("List() order: %s, %s, %s", identities[0].Email, identities[1].Email, identities[2].Email)
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)

	id := &Identity{Email: "gone@example.com", DailyLimit: 1}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(id.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("identity still present after Delete: %+v", got)
	}
}

func TestLoadForTodayResetsStaleCounters(t *testing.T) {
	store := openTestStore(t)

	id := &Identity{Email: "stale@example.com", DailyLimit: 10, Password: "p", Active: true}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Simulate yesterday's usage.
	id.SentToday = 9
	id.LastReset = "2000-01-01"
	if err := store.SaveCounters([]*Identity{id}); err != nil {
		t.Fatalf("SaveCounters() error = %v", err)
	}

	identities, err := store.LoadForToday()
	if err != nil {
		t.Fatalf("LoadForToday() error = %v", err)
	}
	if identities[0].SentToday != 0 {
		t.Errorf("SentToday = %d after stale reset, want 0", identities[0].SentToday)
	}
	if identities[0].LastReset != Today() {
		t.Errorf("LastReset = %s, want today", identities[0].LastReset)
	}

	// The reset is persisted, not just in memory.
	reloaded, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if reloaded.SentToday != 0 {
		t.Errorf("persisted SentToday = %d, want 0", reloaded.SentToday)
	}
}

func TestSaveCountersRoundTrip(t *testing.T) {
	store := openTestStore(t)

	id := &Identity{Email: "busy@example.com", DailyLimit: 10, Password: "p", Active: true}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	id.SentToday = 4
	if err := store.SaveCounters([]*Identity{id}); err != nil {
		t.Fatalf("SaveCounters() error = %v", err)
	}

	got, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SentToday != 4 {
		t.Errorf("SentToday = %d, want 4", got.SentToday)
	}
}

func TestResetCounters(t *testing.T) {
	store := openTestStore(t)

	id := &Identity{Email: "reset@example.com", DailyLimit: 10, Password: "p", Active: true}
	if err := store.Put(id); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	id.SentToday = 8
	if err := store.SaveCounters([]*Identity{id}); err != nil {
		t.Fatalf("SaveCounters() error = %v", err)
	}

	if err := store.ResetCounters(); err != nil {
		t.Fatalf("ResetCounters() error = %v", err)
	}

	got, err := store.Get(id.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SentToday != 0 {
		t.Errorf("SentToday = %d after reset, want 0", got.SentToday)
	}
}
