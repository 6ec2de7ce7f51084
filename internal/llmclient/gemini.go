package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// visionTemperature keeps structured JSON output stable across calls.
const visionTemperature = 0.3

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	// NOTE: apiKey is currently unused here; the genai client may read it from env.
	// Keep the parameter for a consistent factory signature.
	_ = apiKey

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// GenerateText maps "system" messages to the system instruction and sends the
// remaining user content as a single turn.
func (g *GeminiClient) GenerateText(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	var system strings.Builder
	var user strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		default:
			if user.Len() > 0 {
				user.WriteString("\n\n")
			}
			user.WriteString(m.Content)
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if system.Len() > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system.String()}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user.String()}}}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	return firstCandidateText(resp)
}

// GenerateVision attaches each frame as an inline PNG part after the prompt.
func (g *GeminiClient) GenerateVision(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error) {
	parts := make([]*genai.Part, 0, len(pngB64)+1)
	parts = append(parts, &genai.Part{Text: prompt})
	for i, b64 := range pngB64 {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return "", NewPermanentError(fmt.Errorf("frame %d: decode base64 png: %w", i, err))
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}})
	}

	temp := float32(visionTemperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	return firstCandidateText(resp)
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
