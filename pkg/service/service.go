package service

import (
	"context"
	"log"
	"math"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/internal/types"
	"github.com/reghealth/navigator/pkg/contextpack"
	"github.com/reghealth/navigator/pkg/retriever"
	"github.com/reghealth/navigator/pkg/store"
)

type ServiceConfig struct {
	// TopK is the default retrieval depth for Ask.
	TopK int
	// PreviewChars bounds the source text preview in answers.
	PreviewChars int
}

// Service is the question-answering pipeline over one loaded snapshot:
// retrieve, assemble context, generate. A single query's upstream failure
// produces a degraded answer, never a crash of the serving process.
type Service struct {
	config    ServiceConfig
	retriever *retriever.Retriever
	assembler contextpack.Assembler
	generator types.Generator
	chunks    *store.ChunkStore
}

func NewWithConfig(config ServiceConfig, r *retriever.Retriever, assembler contextpack.Assembler, generator types.Generator, chunks *store.ChunkStore) *Service {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.PreviewChars == 0 {
		config.PreviewChars = 100
	}
	return &Service{
		config:    config,
		retriever: r,
		assembler: assembler,
		generator: generator,
		chunks:    chunks,
	}
}

const noInfoMessage = "Sorry, I couldn't find relevant information to answer your question."

// Search retrieves ranked chunks without generating an answer.
func (s *Service) Search(ctx context.Context, query string, filters retriever.Filters, k int) (retriever.Result, error) {
	return s.retriever.Retrieve(ctx, query, filters, k)
}

// GetChunk returns the chunk at the given store position, bounds-checked.
func (s *Service) GetChunk(position int) (models.Chunk, error) {
	return s.chunks.Get(position)
}

// Ask runs the complete pipeline. The returned answer always carries the
// query, the retrieval method, and whether the filter fallback fired.
func (s *Service) Ask(ctx context.Context, query string, filters retriever.Filters, k int) models.Answer {
	if k <= 0 {
		k = s.config.TopK
	}

	retrieved, err := s.retriever.Retrieve(ctx, query, filters, k)
	if err != nil {
		log.Printf("retrieval failed: %v", err)
		return models.Answer{
			Answer:         "Sorry, encountered a technical issue while searching: " + err.Error(),
			Confidence:     0.0,
			Query:          query,
			FiltersApplied: filters.Applied(),
		}
	}

	answer := models.Answer{
		Query:           query,
		RetrievalMethod: retrieved.Method,
		FellBack:        retrieved.FellBack,
		TotalSources:    len(retrieved.Results),
		FiltersApplied:  filters.Applied(),
	}

	if len(retrieved.Results) == 0 {
		answer.Answer = noInfoMessage
		return answer
	}

	contextText, used := s.assembler.Assemble(retrieved.Results)
	if len(used) == 0 {
		answer.Answer = noInfoMessage
		return answer
	}

	for i, result := range used {
		answer.SourcesUsed = append(answer.SourcesUsed, models.Source{
			SourceID:    i + 1,
			TextPreview: preview(result.Chunk.Text, s.config.PreviewChars),
			Distance:    result.Distance,
			Metadata:    result.Chunk.Metadata,
		})
	}

	text, err := s.generator.Generate(ctx, query, contextText)
	if err != nil {
		log.Printf("answer generation failed: %v", err)
		answer.Answer = "Sorry, encountered a technical issue while generating the answer: " + err.Error()
		answer.Confidence = 0.0
		return answer
	}

	answer.Answer = text
	answer.Confidence = confidence(used)
	return answer
}

// confidence is a coarse estimate from the average distance of the sources
// actually used: max(0, 1 - avg/2), rounded to two decimals.
func confidence(used []models.SearchResult) float64 {
	if len(used) == 0 {
		return 0.0
	}
	var total float64
	for _, r := range used {
		total += float64(r.Distance)
	}
	avg := total / float64(len(used))
	c := 1 - avg/2
	if c < 0 {
		c = 0
	}
	return math.Round(c*100) / 100
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
