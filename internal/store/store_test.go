package store

import (
	"context"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_RecordAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	e := Entry{
		Question:    "How does the heart pump blood?",
		Answer:      "Through coordinated ventricular contraction.",
		SourceCount: 3,
		CacheHit:    true,
	}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	if got[0].Question != e.Question || got[0].Answer != e.Answer {
		t.Errorf("entry mismatch: %+v", got[0])
	}
	if got[0].SourceCount != 3 {
		t.Errorf("source count: want 3, got %d", got[0].SourceCount)
	}
	if !got[0].CacheHit {
		t.Error("cache hit flag lost")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for range 6 {
		if err := s.Record(ctx, Entry{Question: "q", Answer: "a"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("want 4 entries, got %d", len(got))
	}
}

func Test_Store_RecentNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	questions := []string{"first", "second", "third"}
	for i, q := range questions {
		e := Entry{Question: q, Answer: "a", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, q := range want {
		if got[i].Question != q {
			t.Errorf("entry[%d]: want %q, got %q", i, q, got[i].Question)
		}
	}
}

func Test_Store_EmptyHistoryReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 entries, got %d", len(got))
	}
}
