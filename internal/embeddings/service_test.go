package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/physrag-go/internal/cache"
)

// fakeProvider returns a deterministic vector derived from the text, or
// fails for texts containing "FAIL".
type fakeProvider struct {
	dims  int
	calls atomic.Int64
	delay time.Duration
}

func (f *fakeProvider) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("backend unavailable")
	}
	vec := make([]float32, f.dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func (f *fakeProvider) Dimensions() int { return f.dims }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, p Provider) *Service {
	t.Helper()
	c, err := cache.NewEmbeddingCache(t.TempDir(), 50, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("new embedding cache: %v", err)
	}
	return NewService(p, c, 3, testLogger())
}

func Test_Service_ZeroVectorOnProviderFailure(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 768}
	s := newTestService(t, p)

	vec := s.EmbedOne(context.Background(), "FAIL this one", TaskDocument)
	if len(vec) != 768 {
		t.Fatalf("want 768-dim zero vector, got %d dims", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("want zero vector, got %f at %d", v, i)
		}
	}
}

func Test_Service_CacheAvoidsSecondProviderCall(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 8}
	s := newTestService(t, p)
	ctx := context.Background()

	s.EmbedOne(ctx, "the cardiac cycle", TaskDocument)
	s.EmbedOne(ctx, "the cardiac cycle", TaskDocument)
	if got := p.calls.Load(); got != 1 {
		t.Errorf("want 1 provider call, got %d", got)
	}
}

func Test_Service_TaskTypeSeparatesCacheEntries(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 8}
	s := newTestService(t, p)
	ctx := context.Background()

	s.EmbedOne(ctx, "same text", TaskDocument)
	s.EmbedOne(ctx, "same text", TaskQuery)
	if got := p.calls.Load(); got != 2 {
		t.Errorf("document and query embeddings must not share entries, got %d calls", got)
	}
}

func Test_Service_EmbedManyPreservesOrder(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4}
	s := newTestService(t, p)

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	got, err := s.EmbedMany(context.Background(), texts, TaskDocument)
	if err != nil {
		t.Fatalf("embed many: %v", err)
	}
	if len(got) != len(texts) {
		t.Fatalf("want %d vectors, got %d", len(texts), len(got))
	}
	for i, vec := range got {
		if vec[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker %f", i, vec[0])
		}
	}
}

func Test_Service_EmbedManyMixedFailures(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4}
	s := newTestService(t, p)

	got, err := s.EmbedMany(context.Background(), []string{"ok", "FAIL", "also ok"}, TaskDocument)
	if err != nil {
		t.Fatalf("embed many: %v", err)
	}
	if got[0][0] == 0 || got[2][0] == 0 {
		t.Error("healthy items must still embed")
	}
	for _, v := range got[1] {
		if v != 0 {
			t.Fatal("failed item must be a zero vector")
		}
	}
}

func Test_Service_EmbedManyHonorsCancellation(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4}
	s := newTestService(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.EmbedMany(ctx, []string{"a", "b"}, TaskDocument); err == nil {
		t.Fatal("want error on cancelled context")
	}
}

func Test_AsyncService_PreservesOrderUnderConcurrency(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4, delay: time.Millisecond}
	a := NewAsyncService(newTestService(t, p), 3, testLogger())
	defer a.Close()

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = strings.Repeat("y", i+1)
	}
	got, err := a.EmbedMany(context.Background(), texts, TaskDocument)
	if err != nil {
		t.Fatalf("embed many: %v", err)
	}
	for i, vec := range got {
		if vec[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker %f", i, vec[0])
		}
	}
}

func Test_AsyncService_CloseIsIdempotentAndFinal(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4}
	a := NewAsyncService(newTestService(t, p), 2, testLogger())

	a.Close()
	a.Close()

	if _, err := a.EmbedMany(context.Background(), []string{"late"}, TaskDocument); err == nil {
		t.Fatal("want error after Close")
	}
}

func Test_AsyncService_CloseWaitsForInflightWork(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4, delay: 20 * time.Millisecond}
	a := NewAsyncService(newTestService(t, p), 2, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.EmbedMany(context.Background(), []string{"a", "b"}, TaskDocument)
	}()

	time.Sleep(5 * time.Millisecond)
	a.Close()
	wg.Wait()

	if got := p.calls.Load(); got != 2 {
		t.Errorf("in-flight work should finish before Close returns, calls=%d", got)
	}
}

func Test_WithAsyncService_ClosesOnAllPaths(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{dims: 4}
	svc := newTestService(t, p)

	var captured *AsyncService
	err := WithAsyncService(svc, 2, testLogger(), func(a *AsyncService) error {
		captured = a
		_, err := a.EmbedMany(context.Background(), []string{"one"}, TaskDocument)
		return err
	})
	if err != nil {
		t.Fatalf("with async service: %v", err)
	}
	if _, err := captured.EmbedMany(context.Background(), []string{"after"}, TaskDocument); err == nil {
		t.Error("pool should be closed after the scope returns")
	}

	wantErr := fmt.Errorf("boom")
	err = WithAsyncService(svc, 2, testLogger(), func(a *AsyncService) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("scope error should propagate, got %v", err)
	}
}
