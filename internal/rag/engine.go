package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/physrag-go/internal/budget"
	"github.com/54b3r/physrag-go/internal/cache"
	"github.com/54b3r/physrag-go/internal/generator"
	"github.com/54b3r/physrag-go/internal/logging"
)

// maxAnswerSources caps how many retrieved chunks feed the generation
// context. More sources than this blows the context budget without
// improving answers.
const maxAnswerSources = 3

// Degraded answer texts. These are values, not errors: the pipeline never
// fails a question outright.
const (
	noSourcesAnswer = "I couldn't find relevant information to answer your question. " +
		"Please try rephrasing or asking about a different topic."
	generationFailedAnswer = "I apologize, but I couldn't generate a proper response. " +
		"Please try rephrasing your question."
)

// Response is the complete result of one question through the pipeline.
type Response struct {
	// Question is the question as asked.
	Question string `json:"question"`
	// Answer is the generated (or degraded) answer text.
	Answer string `json:"answer"`
	// Sources are the retrieved chunks that fed the context, most
	// similar first.
	Sources []ScoredDocument `json:"sources"`
	// Context is the formatted context handed to the generator.
	Context string `json:"context,omitempty"`
	// CacheHit is true when the answer came from the query cache.
	CacheHit bool `json:"cache_hit"`
	// Error describes a degraded outcome (no sources, generation
	// failure). Empty on full success.
	Error string `json:"error,omitempty"`
}

// Engine runs the full answer pipeline: retrieve, format, generate, with
// the query cache wrapped around the generation step.
type Engine struct {
	retriever  Retriever
	gen        generator.Generator
	queryCache *cache.QueryCache

	// maxContextChars caps the formatted context length.
	maxContextChars int
	// defaultTopK is the retrieval width when the caller passes 0.
	defaultTopK int
}

// EngineConfig carries the engine tunables. Zero values select defaults.
type EngineConfig struct {
	MaxContextChars int
	DefaultTopK     int
}

// NewEngine constructs an Engine. The query cache may be nil to disable
// answer caching.
func NewEngine(retriever Retriever, gen generator.Generator, qc *cache.QueryCache, cfg EngineConfig) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("rag: retriever must not be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("rag: generator must not be nil")
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = budget.DefaultMaxContextChars
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	return &Engine{
		retriever:       retriever,
		gen:             gen,
		queryCache:      qc,
		maxContextChars: cfg.MaxContextChars,
		defaultTopK:     cfg.DefaultTopK,
	}, nil
}

// Answer runs the pipeline for one question. Failures downstream of
// retrieval degrade into the Response.Error field; only a retrieval error
// (store unreachable) is returned as a Go error.
func (e *Engine) Answer(ctx context.Context, question string, topK int) (*Response, error) {
	log := logging.FromContext(ctx)

	if topK <= 0 {
		topK = e.defaultTopK
	}
	if topK > maxAnswerSources {
		topK = maxAnswerSources
	}

	sources, err := e.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve for answer: %w", err)
	}

	if len(sources) == 0 {
		log.Warn("no relevant documents found", slog.String("question", question))
		return &Response{
			Question: question,
			Answer:   noSourcesAnswer,
			Sources:  []ScoredDocument{},
			Error:    "no relevant documents found",
		}, nil
	}

	contextText := e.formatContext(sources)

	if e.queryCache != nil {
		key := e.queryCache.Key(question, contextText)
		if v, ok := e.queryCache.Get(key); ok {
			if answer, ok := v.(string); ok {
				log.Debug("query cache hit", slog.String("question", question))
				return &Response{
					Question: question,
					Answer:   answer,
					Sources:  sources,
					Context:  contextText,
					CacheHit: true,
				}, nil
			}
		}
	}

	answer, genErr := e.gen.Generate(ctx, answerPrompt(question, contextText))
	if genErr != nil {
		log.Error("answer generation failed",
			slog.String("question", question),
			slog.Any("error", genErr),
		)
		return &Response{
			Question: question,
			Answer:   generationFailedAnswer,
			Sources:  sources,
			Context:  contextText,
			Error:    genErr.Error(),
		}, nil
	}
	if answer == "" {
		return &Response{
			Question: question,
			Answer:   generationFailedAnswer,
			Sources:  sources,
			Context:  contextText,
			Error:    "empty response from model",
		}, nil
	}

	if e.queryCache != nil {
		e.queryCache.Put(e.queryCache.Key(question, contextText), answer)
	}

	return &Response{
		Question: question,
		Answer:   answer,
		Sources:  sources,
		Context:  contextText,
	}, nil
}

// formatContext renders the retrieved sources into the numbered context
// block handed to the generator, trimmed to the context budget.
func (e *Engine) formatContext(sources []ScoredDocument) string {
	sections := make([]string, 0, len(sources))
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = "Content"
		}
		sections = append(sections, fmt.Sprintf(
			"Source %d: %s - %s (Page %d) [Relevance: %.3f]\n%s\n---",
			i+1, src.DocumentName, title, src.PageID, src.Similarity, src.Content,
		))
	}
	return budget.FitSections(sections, e.maxContextChars)
}

// answerPrompt builds the generation prompt for a question and its
// formatted context.
func answerPrompt(question, contextText string) string {
	return fmt.Sprintf(`Based on this physiology information:

%s

Question: %s

Provide a clear, educational answer for medical students. Include source references when possible.
Focus on being accurate, comprehensive, and easy to understand.`, contextText, question)
}
