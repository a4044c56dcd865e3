package chat

import "context"

// Generator is the inference backend contract the core consumes. The
// production implementation is ollama.Client; tests use scripted fakes.
type Generator interface {
	// GenerateStream streams fragments for prompt through fn until the
	// backend reports completion or ctx is cancelled. Cancellation must
	// tear down the underlying connection.
	GenerateStream(ctx context.Context, model, prompt string, images [][]byte, fn func(chunk string) error) error

	// Generate returns the complete response in one shot.
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Settings provides the persisted settings the core reads. Model is read
// fresh at send-time, so a model switch takes effect on the next send.
type Settings interface {
	Model() string
}

// Searcher is the optional web-search collaborator. The returned text is
// folded into the prompt as-is; retrieval and parsing live elsewhere.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}
