package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/physrag-go/internal/rag"
)

// stubEmbedder returns a fixed-dimension vector per text.
type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) EmbedMany(_ context.Context, texts []string, _ string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// writeDoc creates a document directory with a markdown file and an
// optional metadata sidecar.
func writeDoc(t *testing.T, root, name, content, sidecar string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if sidecar != "" {
		if err := os.WriteFile(filepath.Join(dir, "metadata.txt"), []byte(sidecar), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestPipeline(t *testing.T, store rag.VectorStore, emb *stubEmbedder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, store, Config{}, slog.Default())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

const sectionedDoc = `# Cerebral Circulation

The brain receives blood from the internal carotid and vertebral arteries.
Autoregulation holds cerebral blood flow constant across a pressure range.

## Blood-Brain Barrier

Endothelial tight junctions restrict paracellular diffusion of solutes.
`

const sectionedSidecar = `{
  "table_of_contents": [
    {"title": "Cerebral Circulation", "page_id": 0},
    {"title": "Blood-Brain Barrier", "page_id": 1}
  ]
}`

func Test_Pipeline_IngestsSectionedDocument(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeDoc(t, root, "cns", sectionedDoc, sectionedSidecar)

	store := rag.NewMemoryStore()
	p := newTestPipeline(t, store, &stubEmbedder{})

	res, err := p.IngestDir(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("want 1 document, got %d", len(res.Documents))
	}
	doc := res.Documents[0]
	if !doc.Sectioned {
		t.Error("TOC sidecar should drive section chunking")
	}
	if doc.Chunks != 2 {
		t.Errorf("want 2 section chunks, got %d", doc.Chunks)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("store should hold 2 points, got %d", n)
	}

	got, err := store.Query(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, d := range got {
		if d.DocumentName != "cns" {
			t.Errorf("document name lost: %+v", d.Document)
		}
		if d.Title == "" {
			t.Errorf("section title lost: %+v", d.Document)
		}
	}
}

func Test_Pipeline_FallsBackToSemanticChunking(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	body := strings.Repeat("The heart pumps blood through the systemic circulation. ", 30)
	writeDoc(t, root, "cardio", body, "")

	store := rag.NewMemoryStore()
	p := newTestPipeline(t, store, &stubEmbedder{})

	res, err := p.IngestDir(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	doc := res.Documents[0]
	if doc.Sectioned {
		t.Error("no sidecar means semantic chunking")
	}
	if doc.Chunks == 0 {
		t.Error("semantic chunker produced no chunks")
	}
}

func Test_Pipeline_ReingestOverwritesPoints(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeDoc(t, root, "cns", sectionedDoc, sectionedSidecar)

	store := rag.NewMemoryStore()
	p := newTestPipeline(t, store, &stubEmbedder{})
	ctx := context.Background()

	if _, err := p.IngestDir(ctx, root, nil); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := p.IngestDir(ctx, root, nil); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("deterministic IDs should overwrite, got %d points", n)
	}
}

func Test_Pipeline_SkipsDirectoriesWithoutMarkdown(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "images-only"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, root, "cns", sectionedDoc, sectionedSidecar)

	p := newTestPipeline(t, rag.NewMemoryStore(), &stubEmbedder{})
	res, err := p.IngestDir(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Errorf("want 1 ingested document, got %d", len(res.Documents))
	}
}

func Test_Pipeline_EmbedFailureAborts(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeDoc(t, root, "cns", sectionedDoc, sectionedSidecar)

	p := newTestPipeline(t, rag.NewMemoryStore(), &stubEmbedder{err: errors.New("quota exceeded")})
	if _, err := p.IngestDir(context.Background(), root, nil); err == nil {
		t.Fatal("want error when embedding fails")
	}
}

func Test_NewPipeline_RejectsNilDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil, rag.NewMemoryStore(), Config{}, slog.Default()); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := NewPipeline(&stubEmbedder{}, nil, Config{}, slog.Default()); err == nil {
		t.Error("want error for nil store")
	}
}
