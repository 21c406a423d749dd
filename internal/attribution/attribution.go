// Package attribution maps generated answers back to the paragraphs that
// support them. The answer is split into logical segments, each segment is
// mapped to paragraph indices by the model, and the per-segment results
// are aggregated into an overall confidence. When mapping produces nothing
// usable, a whole-answer fallback attribution keeps the citation surface
// populated.
package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/54b3r/physrag-go/internal/generator"
	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/paragraphs"
)

// Attribution types reported per segment.
const (
	TypeDirect      = "direct"
	TypeInferred    = "inferred"
	TypeSynthesized = "synthesized"
)

// Segmentation limits. Mapping is one model call per segment, so the cap
// bounds cost per answer.
const (
	maxSegments        = 10
	minSegmentChars    = 50
	minSentenceChars   = 30
	paragraphCharLimit = 500

	// fallbackConfidence is the confidence assigned when no segment
	// could be mapped and the whole answer is attributed wholesale.
	fallbackConfidence = 0.5
)

// Attribution links one answer segment to its supporting paragraphs.
type Attribution struct {
	// AnswerSegment is the part of the answer being attributed.
	AnswerSegment string `json:"answer_segment"`
	// SupportingParagraphs are indices into the paragraph list.
	SupportingParagraphs []int `json:"supporting_paragraphs"`
	// Confidence is the model's support score for this segment (0..1).
	Confidence float64 `json:"confidence"`
	// Type is one of direct, inferred, synthesized.
	Type string `json:"attribution_type"`
}

// AttributedAnswer is an answer with its paragraph-level citations.
type AttributedAnswer struct {
	// Answer is the full answer text.
	Answer string `json:"answer"`
	// Attributions are the per-segment citations.
	Attributions []Attribution `json:"attributions"`
	// Paragraphs is the citation pool the indices refer to.
	Paragraphs []paragraphs.Paragraph `json:"paragraphs"`
	// OverallConfidence is the segment-length-weighted mean confidence.
	OverallConfidence float64 `json:"overall_confidence"`
	// Fallback is true when mapping failed and the whole answer was
	// attributed to every paragraph.
	Fallback bool `json:"fallback,omitempty"`
}

// Mapper builds attributed answers using a Generator for the
// segment-to-paragraph mapping calls.
type Mapper struct {
	gen generator.Generator
}

// NewMapper constructs a Mapper around gen.
func NewMapper(gen generator.Generator) (*Mapper, error) {
	if gen == nil {
		return nil, fmt.Errorf("attribution: generator must not be nil")
	}
	return &Mapper{gen: gen}, nil
}

// boldHeaderPattern finds **header** markers used for segment splitting.
var boldHeaderPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// sentenceSplitPattern splits on runs of sentence terminators.
var sentenceSplitPattern = regexp.MustCompile(`[.!?]+`)

// jsonObjectPattern extracts the first {...} block from a model reply.
// (?s) lets it span lines: models often wrap JSON in prose or fences.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Attribute maps answer onto the paragraph pool. Model failures on
// individual segments are skipped; if nothing at all maps, the fallback
// attribution covers the whole answer with every paragraph index at
// confidence 0.5.
func (m *Mapper) Attribute(ctx context.Context, question, answer string, pool []paragraphs.Paragraph) *AttributedAnswer {
	log := logging.FromContext(ctx)

	segments := splitSegments(answer)
	log.Debug("split answer into segments", slog.Int("segments", len(segments)))

	var attributions []Attribution
	for _, segment := range segments {
		attr, err := m.mapSegment(ctx, question, segment, pool)
		if err != nil {
			log.Warn("segment attribution failed", slog.Any("error", err))
			continue
		}
		if attr != nil {
			attributions = append(attributions, *attr)
		}
	}

	if len(attributions) == 0 {
		log.Warn("no segments mapped, using whole-answer fallback attribution")
		return fallbackAttribution(answer, pool)
	}

	return &AttributedAnswer{
		Answer:            answer,
		Attributions:      attributions,
		Paragraphs:        pool,
		OverallConfidence: overallConfidence(attributions),
	}
}

// splitSegments breaks an answer into attribution units. Answers with two
// or more bold headers split at the headers; otherwise blank-line
// paragraphs over 50 chars; otherwise sentences over 30 chars. At most
// 10 segments are returned.
func splitSegments(answer string) []string {
	var segments []string

	headers := boldHeaderPattern.FindAllStringIndex(answer, -1)
	if len(headers) >= 2 {
		start := 0
		for _, loc := range headers {
			if seg := strings.TrimSpace(answer[start:loc[0]]); seg != "" {
				segments = append(segments, seg)
			}
			start = loc[0]
		}
		if seg := strings.TrimSpace(answer[start:]); seg != "" {
			segments = append(segments, seg)
		}
	} else {
		for _, p := range strings.Split(answer, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				segments = append(segments, p)
			}
		}
	}

	kept := segments[:0]
	for _, s := range segments {
		if len(s) > minSegmentChars {
			kept = append(kept, s)
		}
	}
	segments = kept

	if len(segments) == 0 {
		for _, s := range sentenceSplitPattern.Split(answer, -1) {
			if s = strings.TrimSpace(s); len(s) > minSentenceChars {
				segments = append(segments, s)
			}
		}
	}

	if len(segments) > maxSegments {
		segments = segments[:maxSegments]
	}
	return segments
}

// mappingReply is the JSON object the model is asked to return per segment.
type mappingReply struct {
	SupportingParagraphIndices []int   `json:"supporting_paragraph_indices"`
	Confidence                 float64 `json:"confidence"`
	AttributionType            string  `json:"attribution_type"`
	Reasoning                  string  `json:"reasoning"`
}

// mapSegment asks the model which paragraphs support one segment.
// A reply with no valid indices yields (nil, nil): the segment simply
// contributes no attribution.
func (m *Mapper) mapSegment(ctx context.Context, question, segment string, pool []paragraphs.Paragraph) (*Attribution, error) {
	reply, err := m.gen.Generate(ctx, mappingPrompt(question, segment, pool))
	if err != nil {
		return nil, fmt.Errorf("attribution: map segment: %w", err)
	}

	raw := jsonObjectPattern.FindString(reply)
	if raw == "" {
		return nil, fmt.Errorf("attribution: no JSON object in model reply")
	}

	var parsed mappingReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("attribution: parse model reply: %w", err)
	}

	valid := parsed.SupportingParagraphIndices[:0]
	for _, idx := range parsed.SupportingParagraphIndices {
		if idx >= 0 && idx < len(pool) {
			valid = append(valid, idx)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	attrType := parsed.AttributionType
	switch attrType {
	case TypeDirect, TypeInferred, TypeSynthesized:
	default:
		attrType = TypeDirect
	}

	return &Attribution{
		AnswerSegment:        segment,
		SupportingParagraphs: valid,
		Confidence:           parsed.Confidence,
		Type:                 attrType,
	}, nil
}

// mappingPrompt renders the citation prompt for one segment against the
// numbered paragraph pool. Paragraph content is truncated to keep the
// prompt bounded.
func mappingPrompt(question, segment string, pool []paragraphs.Paragraph) string {
	var ctx strings.Builder
	for i, p := range pool {
		content := p.Content
		if len(content) > paragraphCharLimit {
			content = content[:paragraphCharLimit]
		}
		fmt.Fprintf(&ctx, "Paragraph %d: %s\n%s\n---\n", i, p.Title, content)
	}

	return fmt.Sprintf(`You are an expert medical citation system. Your task is to identify which paragraphs from the provided medical documents support a specific part of an answer.

QUESTION: %s

ANSWER SEGMENT TO ANALYZE:
%s

AVAILABLE PARAGRAPHS:
%s
TASK: Determine which paragraphs (by index number) directly support the claims made in the answer segment above.

RESPOND WITH A JSON OBJECT ONLY:
{
    "supporting_paragraph_indices": [list of paragraph indices that support this segment],
    "confidence": number between 0.0 and 1.0,
    "attribution_type": "direct" or "inferred" or "synthesized",
    "reasoning": "brief explanation of why these paragraphs support the segment"
}

GUIDELINES:
- "direct": Information is explicitly stated in the paragraphs
- "inferred": Information can be reasonably inferred from the paragraphs
- "synthesized": Information combines ideas from multiple paragraphs
- Only include paragraph indices that actually support the segment
- Be precise - don't include paragraphs that are only tangentially related
- Confidence should reflect how well the paragraphs support the segment`,
		question, segment, ctx.String())
}

// overallConfidence aggregates per-segment confidences weighted by
// segment length, so long well-supported passages dominate short asides.
func overallConfidence(attrs []Attribution) float64 {
	var weighted, total float64
	for _, a := range attrs {
		w := float64(len(a.AnswerSegment))
		weighted += a.Confidence * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// fallbackAttribution covers the whole answer with every paragraph index
// at fixed confidence, marked synthesized.
func fallbackAttribution(answer string, pool []paragraphs.Paragraph) *AttributedAnswer {
	indices := make([]int, len(pool))
	for i := range pool {
		indices[i] = i
	}
	return &AttributedAnswer{
		Answer: answer,
		Attributions: []Attribution{{
			AnswerSegment:        answer,
			SupportingParagraphs: indices,
			Confidence:           fallbackConfidence,
			Type:                 TypeSynthesized,
		}},
		Paragraphs:        pool,
		OverallConfidence: fallbackConfidence,
		Fallback:          true,
	}
}
