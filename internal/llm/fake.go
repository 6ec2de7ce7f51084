package llm

import (
	"context"
	"sync"

	"sceneforge/internal/llmclient"
)

// FakeClient returns scripted responses in order, for offline runs and tests.
// When the script runs out the last entry repeats.
type FakeClient struct {
	mu        sync.Mutex
	responses []string
	calls     int

	// TextFn / VisionFn override the scripted behavior when set.
	TextFn   func(ctx context.Context, msgs []llmclient.Message) (string, error)
	VisionFn func(ctx context.Context, prompt string, pngB64 []string) (string, error)
}

func NewFakeClient(responses ...string) *FakeClient {
	if len(responses) == 0 {
		responses = []string{""}
	}
	return &FakeClient{responses: responses}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls reports how many completions were requested.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeClient) next() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i]
}

func (f *FakeClient) GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error) {
	if f.TextFn != nil {
		f.mu.Lock()
		f.calls++
		f.mu.Unlock()
		return f.TextFn(ctx, msgs)
	}
	return f.next(), nil
}

func (f *FakeClient) GenerateVision(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error) {
	if f.VisionFn != nil {
		f.mu.Lock()
		f.calls++
		f.mu.Unlock()
		return f.VisionFn(ctx, prompt, pngB64)
	}
	return f.next(), nil
}
