// Package generate is the entry point of a pipeline pass: prompt in, scene
// source out.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"sceneforge/internal/llmclient"
	"sceneforge/internal/postproc"
	"sceneforge/internal/prompts"
)

// ErrEmptyCode means the code model produced no usable source.
var ErrEmptyCode = errors.New("code model returned empty output")

// Chat is the router capability the generator needs.
type Chat interface {
	GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error)
}

const generateMaxTokens = 20000

// Generator turns a topic prompt into post-processed scene source.
type Generator struct {
	chat   Chat
	logger *log.Logger
}

func New(chat Chat, logger *log.Logger) *Generator {
	return &Generator{chat: chat, logger: logger}
}

// Generate builds the category-specific request and returns post-processed
// source. Unknown categories fall back to the mathematical prompt.
func (g *Generator) Generate(ctx context.Context, prompt, category string) (string, error) {
	return g.generate(ctx, prompt, category, "")
}

// Regenerate retries after a failed validation. The validator report rides
// along so the model sees exactly what to correct.
func (g *Generator) Regenerate(ctx context.Context, prompt, category, validationReport string) (string, error) {
	extra := prompts.RegenerationNudge + "\n\nThe previous attempt failed validation with:\n" + validationReport
	return g.generate(ctx, prompt, category, extra)
}

func (g *Generator) generate(ctx context.Context, prompt, category, extra string) (string, error) {
	user := prompt + "\n\n" + prompts.Reinforcement
	if extra != "" {
		user += "\n" + extra
	}
	msgs := []llmclient.Message{
		{Role: "system", Content: prompts.ForCategory(category)},
		{Role: "user", Content: user},
	}

	g.logf("generating scene for category %q", category)
	raw, err := g.chat.GenerateText(ctx, msgs, generateMaxTokens)
	if err != nil {
		return "", fmt.Errorf("generate scene: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyCode
	}
	return postproc.Process(raw), nil
}

func (g *Generator) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf("[generate] "+format, args...)
	}
}
