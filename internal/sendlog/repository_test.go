package sendlog

import (
	"path/filepath"
	"testing"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sendlog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func seedEntries(t *testing.T, repo *Repository) {
	t.Helper()
	entries := []Entry{
		{BatchID: "batch-1", SenderEmail: "a@example.com", RecipientEmail: "one@example.org", RecipientName: "One", Subject: "Hi One", Status: StatusSent},
		{BatchID: "batch-1", SenderEmail: "b@example.com", RecipientEmail: "two@example.org", RecipientName: "Two", Subject: "Hi Two", Status: StatusFailed, ErrorKind: "invalid_recipient", ErrorMessage: "no such user"},
		{BatchID: "batch-2", SenderEmail: "a@example.com", RecipientEmail: "three@example.org", RecipientName: "Three", Subject: "Hi Three", Status: StatusSent},
	}
	for i := range entries {
		if err := repo.Create(&entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
}

func TestRepositoryCreate(t *testing.T) {
	repo := openTestRepo(t)

	e := &Entry{BatchID: "batch-1", RecipientEmail: "one@example.org", Status: StatusSent}
	if err := repo.Create(e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if e.SentAt.IsZero() {
		t.Error("Create() did not set SentAt")
	}
}

func TestRepositoryListFilters(t *testing.T) {
	repo := openTestRepo(t)
	seedEntries(t, repo)

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
	}{
		{"all", Filter{}, 3},
		{"by batch", Filter{BatchID: "batch-1"}, 2},
		{"by status", Filter{Status: StatusFailed}, 1},
		{"by sender", Filter{SenderEmail: "a@example.com"}, 2},
		{"by search", Filter{Search: "Three"}, 1},
		{"batch and status", Filter{BatchID: "batch-1", Status: StatusSent}, 1},
		{"no match", Filter{BatchID: "batch-9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := repo.List(tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if len(entries) != tt.wantTotal {
				t.Errorf("got %d entries, want %d", len(entries), tt.wantTotal)
			}
		})
	}
}

func TestRepositoryListPagination(t *testing.T) {
	repo := openTestRepo(t)
	seedEntries(t, repo)

	entries, total, err := repo.List(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (count ignores limit)", total)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}

	entries, _, err = repo.List(Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() with offset error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries with offset, want 1", len(entries))
	}
}

func TestRepositoryListScansNullFields(t *testing.T) {
	repo := openTestRepo(t)

	// Failure with no sender selected leaves sender columns NULL.
	e := &Entry{BatchID: "batch-1", RecipientEmail: "one@example.org", Status: StatusFailed, ErrorMessage: "no eligible sender"}
	if err := repo.Create(e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries, _, err := repo.List(Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries[0].SenderEmail != "" || entries[0].Subject != "" {
		t.Errorf("NULL columns scanned as %+v", entries[0])
	}
	if entries[0].ErrorMessage != "no eligible sender" {
		t.Errorf("ErrorMessage = %q", entries[0].ErrorMessage)
	}
}

func TestRepositoryStats(t *testing.T) {
	repo := openTestRepo(t)
	seedEntries(t, repo)

	stats, err := repo.GetStats("")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 3 || stats.Sent != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	stats, err = repo.GetStats("batch-1")
	if err != nil {
		t.Fatalf("GetStats(batch-1) error = %v", err)
	}
	if stats.Total != 2 || stats.Sent != 1 || stats.Failed != 1 {
		t.Errorf("batch stats = %+v", stats)
	}
}

func TestRepositoryStatsEmpty(t *testing.T) {
	repo := openTestRepo(t)

	stats, err := repo.GetStats("")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 0 || stats.Sent != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
