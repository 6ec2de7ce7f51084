package llm

import (
	"context"
	"errors"
	"time"

	"sceneforge/internal/llmclient"
)

// Retry retries a failed call up to maxAttempts with exponential backoff
// starting at baseDelay. If context is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.Client) llmclient.Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next llmclient.Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error) {
	return r.attempt(ctx, func() (string, error) {
		return r.next.GenerateText(ctx, msgs, maxTokens)
	})
}

func (r *retrying) GenerateVision(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error) {
	return r.attempt(ctx, func() (string, error) {
		return r.next.GenerateVision(ctx, prompt, pngB64, maxTokens)
	})
}

func (r *retrying) attempt(ctx context.Context, call func() (string, error)) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		// If it's a permanent error, do not retry.
		var pErr *llmclient.PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		last = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if i+1 < r.max {
			time.Sleep(r.base * time.Duration(1<<i))
		}
	}
	return "", last
}
