package llm

import (
	"context"

	"sceneforge/internal/llmclient"
)

// Router holds the two logical models of the pipeline: the code model that
// writes and repairs scene source, and the vision model that inspects frames.
// It is read-only after construction and safe for concurrent use.
type Router struct {
	code   llmclient.Client
	vision llmclient.Client

	codeMaxTokens   int
	visionMaxTokens int
}

type RouterOption func(*Router)

func WithTokenBudgets(code, vision int) RouterOption {
	return func(r *Router) {
		if code > 0 {
			r.codeMaxTokens = code
		}
		if vision > 0 {
			r.visionMaxTokens = vision
		}
	}
}

func NewRouter(code, vision llmclient.Client, opts ...RouterOption) *Router {
	r := &Router{
		code:            code,
		vision:          vision,
		codeMaxTokens:   20000,
		visionMaxTokens: 20000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) CodeModel() string   { return r.code.Name() }
func (r *Router) VisionModel() string { return r.vision.Name() }

// GenerateText routes role-tagged messages to the code model. The router does
// not inspect or mutate prompt content.
func (r *Router) GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = r.codeMaxTokens
	}
	return r.code.GenerateText(ctx, msgs, maxTokens)
}

// GenerateMultimodal routes a prompt plus base64 PNG frames to the vision model.
func (r *Router) GenerateMultimodal(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = r.visionMaxTokens
	}
	return r.vision.GenerateVision(ctx, prompt, pngB64, maxTokens)
}

func (r *Router) Close() error {
	err := r.code.Close()
	if cerr := r.vision.Close(); err == nil {
		err = cerr
	}
	return err
}
