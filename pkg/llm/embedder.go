package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/reghealth/navigator/internal/types"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string
	// BatchTokenLimit is the hard per-request token ceiling of the API.
	BatchTokenLimit int
	// SafetyMargin is headroom kept under the ceiling.
	SafetyMargin int
	// RequestsPerSecond paces embedding calls.
	RequestsPerSecond float64
}

// Embedder batches texts against the embedding API, packing each request up
// to the token ceiling. Callers are expected to have already split individual
// texts under the ceiling.
type Embedder struct {
	config  EmbedderConfig
	llm     *openai.LLM
	counter types.TokenCounter
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig, counter types.TokenCounter) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-ada-002"
	}
	if config.BatchTokenLimit == 0 {
		config.BatchTokenLimit = 8191
	}
	if config.SafetyMargin == 0 {
		config.SafetyMargin = 50
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 2.0
	}

	opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return &Embedder{
		config:  config,
		llm:     client,
		counter: counter,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}, nil
}

// EmbedTexts embeds texts in API-request order, batching so that no request
// exceeds the token ceiling minus the safety margin. Output vectors are
// positionally aligned with the input.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	budget := e.config.BatchTokenLimit - e.config.SafetyMargin

	var embeddings [][]float32
	var batch []string
	batchTokens := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		vectors, err := e.llm.CreateEmbedding(ctx, batch)
		if err != nil {
			return fmt.Errorf("embedding request failed: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding response returned %d vectors for %d texts", len(vectors), len(batch))
		}
		embeddings = append(embeddings, vectors...)
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := e.counter.Count(text)
		if batchTokens+tokens > budget {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchTokens += tokens
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return embeddings, nil
}

// EmbedQuery embeds a single query text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return vectors[0], nil
}
