// Package paragraphs breaks retrieved chunks into titled paragraphs so
// answers can cite at paragraph granularity instead of whole chunks.
package paragraphs

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/54b3r/physrag-go/internal/concepts"
)

// minParagraphSize is the shortest paragraph worth citing.
const minParagraphSize = 50

// Paragraph is a citable unit extracted from a chunk.
type Paragraph struct {
	// Title is a short human-readable label for the paragraph.
	Title string `json:"title"`
	// Content is the paragraph text, trimmed.
	Content string `json:"content"`
	// ParagraphIndex is the zero-based position within the extraction.
	ParagraphIndex int `json:"paragraph_index"`
	// SourceChunkIndex identifies the chunk the paragraph came from.
	SourceChunkIndex int `json:"source_chunk_index"`
	// DocumentName is the source document identifier.
	DocumentName string `json:"document_name"`
}

// Source is a retrieved document to extract paragraphs from.
type Source struct {
	// Text is the chunk content.
	Text string
	// ChunkIndex identifies the chunk within its document.
	ChunkIndex int
	// DocumentName is the source document identifier.
	DocumentName string
}

// Extractor splits chunk text into titled paragraphs.
type Extractor struct {
	detector *concepts.Detector
	log      *slog.Logger
}

// New constructs an Extractor. A nil detector falls back to the default
// vocabulary; the detector only influences title generation.
func New(detector *concepts.Detector, log *slog.Logger) *Extractor {
	if detector == nil {
		detector = concepts.MustDefaultDetector()
	}
	return &Extractor{detector: detector, log: log}
}

// Header and structure patterns shared by sectioning, filtering and title
// extraction.
var (
	markdownHeader = regexp.MustCompile(`^#{2,4}\s+(.+)$`)
	boldHeader     = regexp.MustCompile(`^\*\*([^*]+)\*\*\s*$`)
	boldPrefix     = regexp.MustCompile(`^\*\*(.+?)\*\*`)
	numberedHeader = regexp.MustCompile(`^\d+\.\s+[A-Z].+$`)
	numberedTitle  = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	allCapsHeader  = regexp.MustCompile(`^[A-Z\s]{3,}$`)
	figureRef      = regexp.MustCompile(`^!?\[.*\]\(.*\)$`)
	blankLineSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceSplit  = regexp.MustCompile(`[.!?]`)
	nounPhrase     = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`)
)

// tocIndicators flag text that is navigational rather than explanatory.
var tocIndicators = []string{
	"table of contents",
	"overview",
	"book chapter",
	"legend",
	"abbreviations",
}

// ExtractFromChunk splits chunkText into titled paragraphs. Paragraphs
// under 50 characters, header-only or figure-only blocks, and TOC-like
// blocks are dropped. ParagraphIndex is assigned zero-based across the
// whole chunk.
func (e *Extractor) ExtractFromChunk(chunkText string, chunkIndex int, documentName string) []Paragraph {
	if strings.TrimSpace(chunkText) == "" {
		return nil
	}

	var out []Paragraph
	idx := 0
	for _, section := range splitSections(chunkText) {
		for _, para := range splitParagraphs(section) {
			if len(strings.TrimSpace(para)) < minParagraphSize {
				continue
			}
			out = append(out, Paragraph{
				Title:            e.title(para),
				Content:          strings.TrimSpace(para),
				ParagraphIndex:   idx,
				SourceChunkIndex: chunkIndex,
				DocumentName:     documentName,
			})
			idx++
		}
	}

	if e.log != nil {
		e.log.Debug("extracted paragraphs",
			slog.String("document", documentName),
			slog.Int("chunk", chunkIndex),
			slog.Int("paragraphs", len(out)),
		)
	}
	return out
}

// ExtractFromSources flattens paragraphs from multiple retrieved sources
// into a single list, in source order.
func (e *Extractor) ExtractFromSources(sources []Source) []Paragraph {
	var all []Paragraph
	for _, src := range sources {
		all = append(all, e.ExtractFromChunk(src.Text, src.ChunkIndex, src.DocumentName)...)
	}
	return all
}

// splitSections breaks text at section header lines. A header line closes
// the running section and opens a new one that includes the header itself.
func splitSections(text string) []string {
	var sections []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if isHeaderLine(strings.TrimSpace(line)) && strings.TrimSpace(current.String()) != "" {
			sections = append(sections, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if strings.TrimSpace(current.String()) != "" {
		sections = append(sections, strings.TrimSpace(current.String()))
	}
	if len(sections) == 0 {
		return []string{text}
	}
	return sections
}

// isHeaderLine reports whether a trimmed line is a section header.
func isHeaderLine(line string) bool {
	if line == "" {
		return false
	}
	return markdownHeader.MatchString(line) ||
		boldHeader.MatchString(line) ||
		numberedHeader.MatchString(line) ||
		(allCapsHeader.MatchString(line) && len(line) >= 3)
}

// splitParagraphs splits a section at blank lines and drops blocks that
// carry no citable prose.
func splitParagraphs(section string) []string {
	var out []string
	for _, para := range blankLineSplit.Split(section, -1) {
		para = strings.TrimSpace(para)
		if para == "" || isHeaderOrFigureOnly(para) || isTOCLike(para) {
			continue
		}
		out = append(out, para)
	}
	return out
}

// isHeaderOrFigureOnly reports whether the block is a bare header or a
// figure reference with no prose.
func isHeaderOrFigureOnly(text string) bool {
	t := strings.TrimSpace(text)
	return figureRef.MatchString(t) ||
		markdownHeader.MatchString(t) ||
		boldHeader.MatchString(t)
}

// isTOCLike reports whether the block looks navigational: a pipe-heavy
// table, or a short block led by a TOC indicator phrase.
func isTOCLike(text string) bool {
	if strings.Count(text, "|") > 4 {
		return true
	}
	lower := strings.ToLower(text)
	for _, ind := range tocIndicators {
		if strings.Contains(lower, ind) && len(text) < 500 {
			return true
		}
	}
	return false
}

// title derives a short label for a paragraph. Heuristics are tried in
// order: explicit headers in the first three lines, then a concept-bearing
// early sentence, then the first line, then the literal "Content".
func (e *Extractor) title(para string) string {
	lines := strings.Split(strings.TrimSpace(para), "\n")

	limit := len(lines)
	if limit > 3 {
		limit = 3
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := markdownHeader.FindStringSubmatch(line); m != nil {
			if t := strings.TrimSpace(m[1]); len(t) > 3 {
				return t
			}
		}
		if m := boldPrefix.FindStringSubmatch(line); m != nil {
			t := strings.TrimSpace(m[1])
			if len(t) > 3 && !isDigits(t) {
				return t
			}
		}
		if m := numberedTitle.FindStringSubmatch(line); m != nil {
			if t := strings.TrimSpace(m[1]); len(t) > 3 {
				return t
			}
		}
		if line == strings.ToUpper(line) && allCapsHeader.MatchString(line) && len(line) > 3 && len(line) < 80 {
			return line
		}
	}

	sentences := sentenceSplit.Split(para, -1)
	limit = len(sentences)
	if limit > 2 {
		limit = 2
	}
	for _, s := range sentences[:limit] {
		s = strings.TrimSpace(s)
		if len(s) > 10 && len(s) < 100 {
			return e.conceptTitle(s)
		}
	}

	first := strings.TrimSpace(lines[0])
	if len(first) > 50 {
		return first[:50] + "..."
	}
	if len(first) > 10 {
		return first
	}
	return "Content"
}

// conceptTitle labels a sentence by its strongest medical concept, falling
// back to the first capitalized noun phrase.
func (e *Extractor) conceptTitle(sentence string) string {
	if flat := concepts.Flatten(e.detector.Detect(sentence)); len(flat) > 0 {
		return titleCase(flat[0]) + " Function"
	}
	if m := nounPhrase.FindString(sentence); m != "" {
		return m
	}
	return "Medical Concept"
}

// isDigits reports whether s consists only of ASCII digits.
func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
