// Package generator abstracts text generation behind a one-method
// interface so the answer engine and the attribution mapper can be tested
// without a live model. The production implementation wraps an eino chat
// model from the provider package.
package generator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator produces a completion for a single prompt.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatGenerator implements Generator on top of an eino chat model.
type ChatGenerator struct {
	// model is the underlying chat model.
	model model.BaseChatModel
	// systemPrompt is prepended to every generation, when non-empty.
	systemPrompt string
}

// NewChatGenerator wraps m with an optional system prompt.
func NewChatGenerator(m model.BaseChatModel, systemPrompt string) *ChatGenerator {
	return &ChatGenerator{model: m, systemPrompt: systemPrompt}
}

// Generate sends the prompt as a single user message and returns the
// model's text content.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if g.systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(g.systemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generator: model returned nil response")
	}
	return resp.Content, nil
}
