package llm

import "context"

// Request is one completion call. Zero generation parameters fall back to
// the client's configuration.
type Request struct {
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client sends a prompt to a model and returns its raw text. Failures are
// *AdapterError values.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
