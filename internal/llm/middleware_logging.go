package llm

import (
	"context"
	"log"

	"sceneforge/internal/llmclient"
)

// WithLogging logs request size and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next llmclient.Client) llmclient.Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next llmclient.Client
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error) {
	size := 0
	for _, m := range msgs {
		size += len(m.Content)
	}
	l.log.Printf("LLM request (%s): %d bytes", l.next.Name(), size)
	out, err := l.next.GenerateText(ctx, msgs, maxTokens)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", l.next.Name(), err)
	}
	return out, err
}

func (l *logging) GenerateVision(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error) {
	l.log.Printf("LLM vision request (%s): %d bytes prompt, %d frames", l.next.Name(), len(prompt), len(pngB64))
	out, err := l.next.GenerateVision(ctx, prompt, pngB64, maxTokens)
	if err != nil {
		l.log.Printf("LLM vision error (%s): %v", l.next.Name(), err)
	}
	return out, err
}
