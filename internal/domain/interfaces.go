package domain

import "context"

// EmbeddingProvider converts batches of text into fixed-dimension vectors.
// All calls within one index build must return the same dimensionality.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Trainable is implemented by embedding providers that need a preparation
// pass over the corpus before they can embed (e.g. a TF-IDF vectorizer).
// Fit reports whether the fitted model changed, which invalidates any
// cached vectors produced by the previous model.
type Trainable interface {
	Fit(corpus []string) (changed bool, err error)
}

// GenerationRequest carries a message to the free-form generation path.
type GenerationRequest struct {
	Category Category
	Message  string
	Context  string
}

// GenerationProvider is the external language-generation collaborator.
// Classify returns one of the four fixed categories via structured output;
// Generate produces greeting/chitchat/out-of-scope responses that steer
// the user back toward indexed content and never fabricates claims
// attributable to the knowledge base.
type GenerationProvider interface {
	Classify(ctx context.Context, message string) (ClassificationResult, error)
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Chunker splits document text into ordered, overlapping chunks.
type Chunker interface {
	Chunk(doc Document) []Chunk
}
