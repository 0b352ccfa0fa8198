package types

import "context"

// Embedder converts text into fixed-dimension float vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TokenCounter reports the token count of a text under a fixed model profile.
// Identical input must always yield an identical count.
type TokenCounter interface {
	Count(text string) int
}

// Generator produces an answer from a question and assembled context.
type Generator interface {
	Generate(ctx context.Context, query, contextText string) (string, error)
}
