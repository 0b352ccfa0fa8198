package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/pkg/contextpack"
	"github.com/reghealth/navigator/pkg/index"
	"github.com/reghealth/navigator/pkg/retriever"
	"github.com/reghealth/navigator/pkg/service"
	"github.com/reghealth/navigator/pkg/store"
)

type stubEmbedder struct {
	err error
}

func embed(text string) []float32 {
	t := strings.ToLower(text)
	v := []float32{0.1, 0.1}
	if strings.Contains(t, "hospice") {
		v[0] = 1
	}
	if strings.Contains(t, "snf") {
		v[1] = 1
	}
	return v
}

func (s stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return embed(text), nil
}

func (s stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t)
	}
	return out, nil
}

type fakeGenerator struct {
	answer       string
	err          error
	gotQuery     string
	gotContext   string
	timesInvoked int
}

func (g *fakeGenerator) Generate(_ context.Context, query, contextText string) (string, error) {
	g.timesInvoked++
	g.gotQuery = query
	g.gotContext = contextText
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func buildService(t *testing.T, embedder stubEmbedder, gen *fakeGenerator) *service.Service {
	t.Helper()
	year := 2023
	chunks := []models.Chunk{
		{
			Text:          "Hospice payment rates increased by 3.1 percent.",
			SectionHeader: "II. Rates",
			Metadata:      models.RuleMetadata{SourceFile: "2023_hospice_final.xml", Program: models.ProgramHospice, RuleType: models.RuleFinal, Year: &year},
		},
		{
			Text:          "SNF market basket update for the fiscal year.",
			SectionHeader: "III. Update",
			Metadata:      models.RuleMetadata{SourceFile: "2023_snf_final.xml", Program: models.ProgramSNF, RuleType: models.RuleFinal, Year: &year},
		},
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = embed(c.Text)
	}
	idx, err := index.Build(vectors)
	require.NoError(t, err)

	chunkStore := store.NewChunkStore(chunks)
	r := retriever.NewWithConfig(retriever.RetrieverConfig{}, embedder, idx, chunkStore)
	assembler := contextpack.NewWithConfig(contextpack.AssemblerConfig{MaxTokens: 1000}, wordCounter{})
	return service.NewWithConfig(service.ServiceConfig{PreviewChars: 20}, r, assembler, gen, chunkStore)
}

func TestAsk(t *testing.T) {
	gen := &fakeGenerator{answer: "Rates increased by 3.1 percent."}
	svc := buildService(t, stubEmbedder{}, gen)

	answer := svc.Ask(context.Background(), "What were the hospice rates?", retriever.Filters{}, 2)

	assert.Equal(t, "Rates increased by 3.1 percent.", answer.Answer)
	assert.Equal(t, "What were the hospice rates?", answer.Query)
	assert.Equal(t, "unfiltered", answer.RetrievalMethod)
	assert.False(t, answer.FellBack)
	assert.Equal(t, 2, answer.TotalSources)
	require.Len(t, answer.SourcesUsed, 2)
	assert.Equal(t, 1, answer.SourcesUsed[0].SourceID)
	assert.Equal(t, 2, answer.SourcesUsed[1].SourceID)

	// The generator sees the real query and the packed context.
	assert.Equal(t, 1, gen.timesInvoked)
	assert.Equal(t, "What were the hospice rates?", gen.gotQuery)
	assert.Contains(t, gen.gotContext, "[Source 1] II. Rates")

	// The hospice chunk is an exact vector match, so it contributes zero
	// distance and the average stays well under the ceiling.
	assert.Greater(t, answer.Confidence, 0.0)
	assert.LessOrEqual(t, answer.Confidence, 1.0)
}

func TestAskPerfectMatchConfidence(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	svc := buildService(t, stubEmbedder{}, gen)

	answer := svc.Ask(context.Background(), "hospice", retriever.Filters{}, 1)
	require.Len(t, answer.SourcesUsed, 1)
	assert.Equal(t, float32(0), answer.SourcesUsed[0].Distance)
	assert.Equal(t, 1.0, answer.Confidence)
}

func TestAskEmptyCorpus(t *testing.T) {
	idx, err := index.NewFlat(2)
	require.NoError(t, err)
	chunkStore := store.NewChunkStore(nil)
	r := retriever.NewWithConfig(retriever.RetrieverConfig{}, stubEmbedder{}, idx, chunkStore)
	assembler := contextpack.NewWithConfig(contextpack.AssemblerConfig{}, wordCounter{})
	gen := &fakeGenerator{answer: "should not be called"}
	svc := service.NewWithConfig(service.ServiceConfig{}, r, assembler, gen, chunkStore)

	answer := svc.Ask(context.Background(), "anything", retriever.Filters{}, 5)

	assert.Contains(t, answer.Answer, "couldn't find relevant information")
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Empty(t, answer.SourcesUsed)
	assert.Equal(t, 0, answer.TotalSources)
	assert.Equal(t, 0, gen.timesInvoked)
}

func TestAskGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	svc := buildService(t, stubEmbedder{}, gen)

	answer := svc.Ask(context.Background(), "What were the hospice rates?", retriever.Filters{}, 2)

	assert.Contains(t, answer.Answer, "technical issue while generating")
	assert.Contains(t, answer.Answer, "model unavailable")
	assert.Equal(t, 0.0, answer.Confidence)
	// Sources are still reported so the caller can see what was retrieved.
	assert.NotEmpty(t, answer.SourcesUsed)
}

func TestAskEmbedderFailure(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be called"}
	svc := buildService(t, stubEmbedder{err: errors.New("connection refused")}, gen)

	answer := svc.Ask(context.Background(), "anything", retriever.Filters{}, 2)

	assert.Contains(t, answer.Answer, "technical issue while searching")
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Equal(t, 0, gen.timesInvoked)
}

func TestAskFallbackSurfaces(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	svc := buildService(t, stubEmbedder{}, gen)

	year := 1999
	answer := svc.Ask(context.Background(), "payment rates", retriever.Filters{Year: &year}, 2)

	assert.True(t, answer.FellBack)
	assert.Equal(t, "unfiltered", answer.RetrievalMethod)
	assert.NotEmpty(t, answer.SourcesUsed)

	// The payload still echoes the predicate the caller asked for, even
	// though the fallback widened the search.
	require.NotNil(t, answer.FiltersApplied.Year)
	assert.Equal(t, 1999, *answer.FiltersApplied.Year)
}

func TestAskEchoesAppliedFilters(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	svc := buildService(t, stubEmbedder{}, gen)

	program := models.ProgramSNF
	year := 2023
	answer := svc.Ask(context.Background(), "payment rates", retriever.Filters{Program: &program, Year: &year}, 2)

	assert.Equal(t, "SNF", answer.FiltersApplied.Program)
	assert.Equal(t, "", answer.FiltersApplied.RuleType)
	require.NotNil(t, answer.FiltersApplied.Year)
	assert.Equal(t, 2023, *answer.FiltersApplied.Year)

	open := svc.Ask(context.Background(), "payment rates", retriever.Filters{}, 2)
	assert.Equal(t, models.AppliedFilters{}, open.FiltersApplied)
}

func TestSourcePreviewTruncation(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	svc := buildService(t, stubEmbedder{}, gen)

	answer := svc.Ask(context.Background(), "hospice", retriever.Filters{}, 1)
	require.Len(t, answer.SourcesUsed, 1)

	preview := answer.SourcesUsed[0].TextPreview
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.Len(t, []rune(preview), 23)
}

func TestGetChunk(t *testing.T) {
	gen := &fakeGenerator{}
	svc := buildService(t, stubEmbedder{}, gen)

	chunk, err := svc.GetChunk(0)
	require.NoError(t, err)
	assert.Equal(t, models.ProgramHospice, chunk.Metadata.Program)

	_, err = svc.GetChunk(99)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
