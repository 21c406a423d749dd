package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/physrag-go/internal/attribution"
	"github.com/54b3r/physrag-go/internal/cache"
	"github.com/54b3r/physrag-go/internal/paragraphs"
	"github.com/54b3r/physrag-go/internal/rag"
	"github.com/54b3r/physrag-go/internal/store"
)

// fakeAnswerer is a test double for the Answerer interface.
type fakeAnswerer struct {
	resp  *rag.Response
	err   error
	calls int
}

func (f *fakeAnswerer) Answer(_ context.Context, question string, _ int) (*rag.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.Question = question
	return &resp, nil
}

// memoryHistory is an in-memory store.HistoryStore for assertions.
type memoryHistory struct {
	entries []store.Entry
}

func (m *memoryHistory) Record(_ context.Context, e store.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryHistory) Recent(_ context.Context, n int) ([]store.Entry, error) {
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]store.Entry, n)
	for i := 0; i < n; i++ {
		out[i] = m.entries[len(m.entries)-1-i]
	}
	return out, nil
}

func (m *memoryHistory) Close() error { return nil }

// newTestServer builds a minimal *Server for handler-level tests, backed by
// a fresh metrics registry so tests stay hermetic.
func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		engine: &fakeAnswerer{resp: &rag.Response{Answer: "ok"}},
		cfg: &Config{
			AskTimeout:      time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
}

func askBody(t *testing.T, question string, topK int) *strings.Reader {
	t.Helper()
	b, err := json.Marshal(askRequest{Question: question, TopK: topK})
	if err != nil {
		t.Fatal(err)
	}
	return strings.NewReader(string(b))
}

func Test_HandleAsk_ReturnsAnswer(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	eng := &fakeAnswerer{resp: &rag.Response{
		Answer:  "The heart pumps blood.",
		Sources: []rag.ScoredDocument{{Document: rag.Document{ID: "a"}, Similarity: 0.9}},
	}}
	s.engine = eng

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "How does the heart work?", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp rag.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Question != "How does the heart work?" {
		t.Errorf("question not echoed: %q", resp.Question)
	}
	if resp.Answer != "The heart pumps blood." {
		t.Errorf("wrong answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("sources lost: %d", len(resp.Sources))
	}
}

func Test_HandleAsk_MissingQuestion(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 for empty question, got %d", w.Code)
	}
}

func Test_HandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 for invalid body, got %d", w.Code)
	}
}

func Test_HandleAsk_DegradedAnswerIsStill200(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	s.engine = &fakeAnswerer{resp: &rag.Response{
		Answer: "I couldn't find relevant information.",
		Error:  "no relevant documents found",
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "anything", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("degraded answers are 200s, got %d", w.Code)
	}
	var resp rag.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("degraded error field lost")
	}
}

func Test_HandleAsk_RetrievalFailureIs502(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	s.engine = &fakeAnswerer{err: errors.New("qdrant unreachable")}

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "q", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("want 502 for retrieval failure, got %d", w.Code)
	}
}

// fakeAttributor returns a canned attributed answer.
type fakeAttributor struct {
	calls int
}

func (f *fakeAttributor) Attribute(_ context.Context, _, answer string, pool []paragraphs.Paragraph) *attribution.AttributedAnswer {
	f.calls++
	return &attribution.AttributedAnswer{
		Answer:            answer,
		Paragraphs:        pool,
		OverallConfidence: 0.8,
	}
}

func Test_HandleAsk_AttributionOnRequest(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	s.engine = &fakeAnswerer{resp: &rag.Response{
		Answer: "The blood-brain barrier restricts solute passage between circulation and brain tissue.",
		Sources: []rag.ScoredDocument{{Document: rag.Document{
			Content:      "The blood-brain barrier is formed by tight junctions between endothelial cells, restricting solute passage.",
			DocumentName: "cerebral-circulation",
		}}},
	}}
	attr := &fakeAttributor{}
	s.cfg.Attributor = attr
	s.cfg.Paragraphs = paragraphs.New(nil, slog.Default())

	body, _ := json.Marshal(askRequest{Question: "what is the BBB?", Attribute: true})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if attr.calls != 1 {
		t.Fatalf("want 1 attributor call, got %d", attr.calls)
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Attribution == nil {
		t.Fatal("attribution missing from response")
	}
	if resp.Attribution.OverallConfidence != 0.8 {
		t.Errorf("attribution not passed through: %+v", resp.Attribution)
	}
}

func Test_HandleAsk_NoAttributionWithoutFlag(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	attr := &fakeAttributor{}
	s.cfg.Attributor = attr
	s.cfg.Paragraphs = paragraphs.New(nil, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "q", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if attr.calls != 0 {
		t.Errorf("attributor must not run without the attribute flag, got %d calls", attr.calls)
	}
}

func Test_HandleAsk_RecordsHistory(t *testing.T) {
	t.Parallel()
	s := newTestServer()
	s.engine = &fakeAnswerer{resp: &rag.Response{
		Answer:   "answer text",
		Sources:  []rag.ScoredDocument{{}, {}},
		CacheHit: true,
	}}
	hist := &memoryHistory{}
	s.cfg.History = hist

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "what is CSF?", 0))
	w := httptest.NewRecorder()
	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if len(hist.entries) != 1 {
		t.Fatalf("want 1 history entry, got %d", len(hist.entries))
	}
	e := hist.entries[0]
	if e.Question != "what is CSF?" || e.Answer != "answer text" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.SourceCount != 2 {
		t.Errorf("want source_count=2, got %d", e.SourceCount)
	}
	if !e.CacheHit {
		t.Error("cache_hit not recorded")
	}
}

func Test_HandleStats_ReportsCaches(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	mgr, err := cache.NewManager(cache.ManagerConfig{Dir: t.TempDir()}, slog.Default())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	s.cfg.Caches = mgr
	s.cfg.Vectors = rag.NewMemoryStore()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp.Caches["embeddings"]; !ok {
		t.Error("embeddings cache stats missing")
	}
	if _, ok := resp.Caches["queries"]; !ok {
		t.Error("queries cache stats missing")
	}
	if resp.Documents != 0 {
		t.Errorf("empty store should count 0 documents, got %d", resp.Documents)
	}
}

func Test_HandleStats_NoDepsStillResponds(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Documents != -1 {
		t.Errorf("unknown document count should be -1, got %d", resp.Documents)
	}
}
