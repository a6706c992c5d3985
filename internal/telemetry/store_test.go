package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("failed to open telemetry store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRecordAndReadSlowQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.RecordSlowQuery(ctx, "https://example.com/a.db", "SELECT * FROM t", "[1]", 750*time.Millisecond); err != nil {
		t.Fatalf("RecordSlowQuery returned error: %v", err)
	}
	if err := store.RecordSlowQuery(ctx, "https://example.com/a.db", "SELECT * FROM u", "[]", 1200*time.Millisecond); err != nil {
		t.Fatalf("RecordSlowQuery returned error: %v", err)
	}

	got, err := store.RecentSlowQueries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSlowQueries returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// Newest first.
	if got[0].Query != "SELECT * FROM u" || got[0].DurationMS != 1200 {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if got[1].Params != "[1]" || got[1].DurationMS != 750 {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("created_at not populated")
	}
}

func TestRecentSlowQueriesHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.RecordSlowQuery(ctx, "u", "q", "[]", time.Second); err != nil {
			t.Fatalf("RecordSlowQuery returned error: %v", err)
		}
	}

	got, err := store.RecentSlowQueries(ctx, 3)
	if err != nil {
		t.Fatalf("RecentSlowQueries returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
}

func TestRecordTransfer(t *testing.T) {
	store := openTestStore(t)

	if err := store.RecordTransfer(context.Background(), "https://example.com/a.db", 1<<20, 2*time.Second); err != nil {
		t.Fatalf("RecordTransfer returned error: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open returned error: %v", err)
	}
	if err := first.RecordSlowQuery(context.Background(), "u", "q", "[]", time.Second); err != nil {
		t.Fatalf("RecordSlowQuery returned error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Reopening applies no further migrations and keeps existing rows.
	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open returned error: %v", err)
	}
	defer func() {
		_ = second.Close()
	}()

	got, err := second.RecentSlowQueries(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSlowQueries returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the recorded row to survive reopen, got %d", len(got))
	}
}

func TestNilStoreCloseIsSafe(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close returned error: %v", err)
	}
}
