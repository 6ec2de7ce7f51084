package llmclient

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty response from model")

// Message is a role-tagged chat message. Role is "system" or "user".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a thin provider boundary. It only focuses on the API call itself.
// Cross-cutting concerns (retries, logging) are applied via llm.Middleware.
type Client interface {
	Name() string
	// GenerateText sends role-tagged messages and returns the completion text.
	GenerateText(ctx context.Context, msgs []Message, maxTokens int) (string, error)
	// GenerateVision sends one text prompt plus base64-encoded PNG frames.
	GenerateVision(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
