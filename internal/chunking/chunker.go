// Package chunking splits document text into overlapping, semantically
// aligned chunks. Chunk ends snap to paragraph breaks and medical concept
// boundaries when one falls inside the size window, with a sentence-break
// fallback, so retrieval units follow topic structure instead of raw
// character offsets.
package chunking

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/54b3r/physrag-go/internal/concepts"
)

// Tunables. Overlap is expressed as a fraction of the target size and is
// capped at half a chunk so consecutive chunks always advance.
const (
	DefaultChunkSize    = 1000
	DefaultOverlapRatio = 0.1
	MaxOverlapRatio     = 0.5

	// minInputSize is the shortest text worth chunking at all.
	minInputSize = 50
)

// Metadata is the document-level context attached to every chunk.
type Metadata struct {
	// DocumentName is the source document identifier.
	DocumentName string `json:"document_name"`
	// Title is the section or page title, when known.
	Title string `json:"title"`
	// PageID is the source page identifier, when known.
	PageID int `json:"page_id"`
	// SectionHierarchy is the header path leading to this text.
	SectionHierarchy []string `json:"section_hierarchy,omitempty"`
}

// Chunk is one retrieval unit produced by the chunker.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`
	// Type identifies the chunking strategy that produced the chunk.
	Type string `json:"type"`
	// Size is len(Text) in bytes.
	Size int `json:"size"`
	// StartIdx and EndIdx are the chunk's offsets in the source text.
	StartIdx int `json:"start_idx"`
	EndIdx   int `json:"end_idx"`
	// Concepts lists the medical terms detected in the chunk.
	Concepts []string `json:"medical_concepts"`
	// ConceptDensity scores how terminology-rich the chunk is (0..1).
	ConceptDensity float64 `json:"concept_density"`
	// OverlapPrevious / OverlapNext flag shared text with the neighbours.
	OverlapPrevious bool `json:"overlap_previous"`
	OverlapNext     bool `json:"overlap_next"`
	// Metadata carries the source document context.
	Metadata Metadata `json:"metadata"`
}

// Chunker produces semantic chunks of roughly chunkSize characters with
// overlapSize characters shared between neighbours.
type Chunker struct {
	chunkSize   int
	overlapSize int
	detector    *concepts.Detector
	log         *slog.Logger
}

// New constructs a Chunker. Non-positive chunkSize falls back to
// DefaultChunkSize; overlapRatio is clamped to [0, MaxOverlapRatio].
func New(chunkSize int, overlapRatio float64, detector *concepts.Detector, log *slog.Logger) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapRatio < 0 {
		overlapRatio = 0
	}
	if overlapRatio > MaxOverlapRatio {
		overlapRatio = MaxOverlapRatio
	}
	if detector == nil {
		detector = concepts.MustDefaultDetector()
	}
	return &Chunker{
		chunkSize:   chunkSize,
		overlapSize: int(float64(chunkSize) * overlapRatio),
		detector:    detector,
		log:         log,
	}
}

// sentenceEnd matches a sentence terminator followed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// sentence is a sentence with its offset in the source text.
type sentence struct {
	text  string
	start int
}

// splitSentences splits text after sentence terminators, keeping each
// sentence's true start offset.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0]+1 keeps the terminator with the sentence it ends.
		out = append(out, sentence{text: text[start : loc[0]+1], start: start})
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, sentence{text: text[start:], start: start})
	}
	return out
}

// findBoundaries returns sorted character positions where the text shifts
// topic: explicit paragraph breaks and sentence pairs whose concept sets
// diverge.
func (c *Chunker) findBoundaries(text string) []int {
	set := make(map[int]struct{})
	sentences := splitSentences(text)

	for i, s := range sentences {
		if idx := strings.Index(s.text, "\n\n"); idx >= 0 {
			set[s.start+idx] = struct{}{}
		}
		if i > 0 && c.detector.IsBoundary(sentences[i-1].text, s.text) {
			set[s.start] = struct{}{}
		}
	}

	boundaries := make([]int, 0, len(set))
	for pos := range set {
		boundaries = append(boundaries, pos)
	}
	sort.Ints(boundaries)
	return boundaries
}

// Split chunks text into overlapping semantic chunks carrying meta.
// Text shorter than 50 characters yields no chunks; chunks smaller than
// max(100, chunkSize/10) are dropped after the walk.
func (c *Chunker) Split(text string, meta Metadata) []Chunk {
	if len(text) < minInputSize {
		return nil
	}

	boundaries := c.findBoundaries(text)
	chunks := c.walk(text, boundaries, meta)

	minSize := c.chunkSize / 10
	if minSize < 100 {
		minSize = 100
	}
	kept := chunks[:0]
	for _, ch := range chunks {
		if ch.Size >= minSize {
			kept = append(kept, ch)
		}
	}

	if c.log != nil {
		c.log.Debug("chunked text",
			slog.String("document", meta.DocumentName),
			slog.Int("boundaries", len(boundaries)),
			slog.Int("chunks", len(kept)),
			slog.Int("dropped", len(chunks)-len(kept)),
		)
	}
	return kept
}

// walk performs the boundary-seeking chunk walk. Each step the tentative
// end start+chunkSize snaps back to the last boundary inside the window,
// or to the last sentence break past 70% of the window when no boundary
// fits. The next start position always advances by at least one character
// regardless of the overlap size, so the walk terminates for every input.
func (c *Chunker) walk(text string, boundaries []int, meta Metadata) []Chunk {
	var chunks []Chunk
	n := len(text)
	start := 0
	prevEnd := 0

	for start < n {
		end := start + c.chunkSize

		if best := lastBoundaryIn(boundaries, start, end); best > 0 {
			end = best
		} else if end < n {
			window := text[start:min(end, n)]
			if cut := strings.LastIndex(window, ". "); cut > c.chunkSize*7/10 {
				end = start + cut + 2
			}
		}
		if end > n {
			end = n
		}
		if end <= start {
			break
		}

		chunkText := text[start:end]
		flat := concepts.Flatten(c.detector.Detect(chunkText))
		chunks = append(chunks, Chunk{
			Text:            chunkText,
			Type:            "semantic",
			Size:            len(chunkText),
			StartIdx:        start,
			EndIdx:          end,
			Concepts:        flat,
			ConceptDensity:  c.detector.Density(chunkText),
			OverlapPrevious: start > 0 && start < prevEnd,
			OverlapNext:     end < n,
			Metadata:        meta,
		})

		if end >= n {
			break
		}
		prevEnd = end

		next := end - c.overlapSize
		if next <= start {
			next = start + 1
		}
		// Snap back to the last topic boundary before the overlap point,
		// without undoing forward progress.
		if snapped := lastBoundaryIn(boundaries, start, next+1); snapped > start {
			next = snapped
		}
		start = next
	}

	return chunks
}

// lastBoundaryIn returns the largest boundary b with lo < b < hi, or 0
// when none exists. Boundaries must be sorted.
func lastBoundaryIn(boundaries []int, lo, hi int) int {
	best := 0
	for _, b := range boundaries {
		if b >= hi {
			break
		}
		if b > lo {
			best = b
		}
	}
	return best
}
