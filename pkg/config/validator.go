package config

import (
	"fmt"
	"net/url"
	"strconv"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Embedder.BatchTokenLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_token_limit",
			Message: "batch_token_limit must be positive",
		})
	}

	if c.Embedder.SafetyMargin < 0 || c.Embedder.SafetyMargin >= c.Embedder.BatchTokenLimit {
		errors = append(errors, ValidationError{
			Field:   "embedder.safety_margin",
			Message: "safety_margin must be non-negative and less than batch_token_limit",
		})
	}

	if c.Embedder.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Segmenter.ChunkWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "segmenter.chunk_words",
			Message: "chunk_words must be positive",
		})
	}

	if c.Segmenter.OverlapSentences < 0 {
		errors = append(errors, ValidationError{
			Field:   "segmenter.overlap_sentences",
			Message: "overlap_sentences must be non-negative",
		})
	}

	if c.Retriever.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retriever.Oversample < 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.oversample",
			Message: "oversample must be at least 1",
		})
	}

	if c.Context.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "context.max_tokens",
			Message: "max_tokens must be positive",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be a number between 1 and 65535",
		})
	}

	return errors
}
