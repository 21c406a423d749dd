package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultWorkers bounds the async pool. Embedding calls are I/O bound, so
// a small pool saturates the backend without stampeding it.
const DefaultWorkers = 4

// AsyncService runs embed calls through a bounded goroutine pool. Results
// are written positionally, so output order always matches input order
// regardless of completion order.
type AsyncService struct {
	svc *Service

	// sem is a channel semaphore holding one token per worker slot.
	sem chan struct{}

	closeOnce sync.Once
	log       *slog.Logger
}

// NewAsyncService wraps svc with a pool of workers goroutine slots.
// Non-positive workers falls back to DefaultWorkers.
func NewAsyncService(svc *Service, workers int, log *slog.Logger) *AsyncService {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	sem := make(chan struct{}, workers)
	for range workers {
		sem <- struct{}{}
	}
	return &AsyncService{svc: svc, sem: sem, log: log}
}

// EmbedMany embeds texts concurrently. The result slice is parallel to
// texts. Per-item failures degrade to zero vectors inside the underlying
// Service; context cancellation aborts dispatch of not-yet-started items.
func (a *AsyncService) EmbedMany(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var wg sync.WaitGroup

	for i, text := range texts {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, fmt.Errorf("embeddings: async batch aborted: %w", ctx.Err())
		case token, ok := <-a.sem:
			if !ok {
				wg.Wait()
				return nil, fmt.Errorf("embeddings: async service is closed")
			}
			wg.Add(1)
			go func(i int, text string) {
				defer wg.Done()
				defer func() { a.sem <- token }()
				out[i] = a.svc.EmbedOne(ctx, text, taskType)
			}(i, text)
		}
	}

	wg.Wait()
	return out, nil
}

// EmbedOne embeds a single text through the pool.
func (a *AsyncService) EmbedOne(ctx context.Context, text, taskType string) ([]float32, error) {
	res, err := a.EmbedMany(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// Dimensions exposes the provider's vector length.
func (a *AsyncService) Dimensions() int { return a.svc.Dimensions() }

// Close drains every worker slot so no embed call is still in flight when
// it returns, then rejects further work. Safe to call more than once.
func (a *AsyncService) Close() {
	a.closeOnce.Do(func() {
		for range cap(a.sem) {
			<-a.sem
		}
		close(a.sem)
	})
}

// WithAsyncService builds an AsyncService around svc, runs fn with it, and
// guarantees the pool is drained and closed on every exit path.
func WithAsyncService(svc *Service, workers int, log *slog.Logger, fn func(*AsyncService) error) error {
	a := NewAsyncService(svc, workers, log)
	defer a.Close()
	return fn(a)
}
