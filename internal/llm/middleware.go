package llm

import (
	"sceneforge/internal/llmclient"
)

// Middleware decorates a client with a cross-cutting concern.
type Middleware func(llmclient.Client) llmclient.Client

// Chain applies middlewares so that the first listed is the outermost layer.
func Chain(c llmclient.Client, mws ...Middleware) llmclient.Client {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
