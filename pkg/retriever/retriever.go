package retriever

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/internal/types"
	"github.com/reghealth/navigator/pkg/index"
	"github.com/reghealth/navigator/pkg/metadata"
	"github.com/reghealth/navigator/pkg/store"
)

// Filters is an exact-match predicate over chunk metadata. A chunk matches
// only when every set field equals the stored value; a chunk whose year is
// absent never matches a year requirement.
type Filters struct {
	Program  *models.Program
	RuleType *models.RuleType
	Year     *int

	// TitleContains is a legacy heuristic kept from earlier call sites:
	// case-insensitive substring containment on the preamble title. Exact
	// matching on the structured fields above is the canonical contract.
	TitleContains string
}

func (f Filters) IsEmpty() bool {
	return f.Program == nil && f.RuleType == nil && f.Year == nil && f.TitleContains == ""
}

func (f Filters) Matches(meta models.RuleMetadata) bool {
	if f.Program != nil && meta.Program != *f.Program {
		return false
	}
	if f.RuleType != nil && meta.RuleType != *f.RuleType {
		return false
	}
	if f.Year != nil {
		if meta.Year == nil || *meta.Year != *f.Year {
			return false
		}
	}
	if f.TitleContains != "" {
		if !strings.Contains(strings.ToLower(meta.Title), strings.ToLower(f.TitleContains)) {
			return false
		}
	}
	return true
}

// Applied returns the wire form of the predicate for answer payloads.
func (f Filters) Applied() models.AppliedFilters {
	var out models.AppliedFilters
	if f.Program != nil {
		out.Program = string(*f.Program)
	}
	if f.RuleType != nil {
		out.RuleType = string(*f.RuleType)
	}
	if f.Year != nil {
		y := *f.Year
		out.Year = &y
	}
	out.TitleContains = f.TitleContains
	return out
}

// InferFilters extracts structured filters from free query text. It is a
// best-effort heuristic and never fails: a field that cannot be resolved is
// simply left unset, widening the search instead of narrowing it wrongly.
func InferFilters(query string) Filters {
	var f Filters
	if program := metadata.ClassifyProgram(query); program != models.ProgramUnknown {
		f.Program = &program
	}
	if ruleType := metadata.ClassifyRuleType(query); ruleType != models.RuleUnknown {
		f.RuleType = &ruleType
	}
	f.Year = metadata.ExtractYear(query)
	return f
}

type RetrieverConfig struct {
	// TopK is the default result count when callers pass k <= 0.
	TopK int
	// Oversample is the over-fetch multiplier for filtered search.
	Oversample int
}

// Retriever answers top-k queries over a loaded index/store snapshot, with
// optional metadata filtering. The snapshot is read-only during serving.
type Retriever struct {
	config   RetrieverConfig
	embedder types.Embedder
	index    *index.Flat
	chunks   *store.ChunkStore
}

func NewWithConfig(config RetrieverConfig, embedder types.Embedder, idx *index.Flat, chunks *store.ChunkStore) *Retriever {
	if config.TopK == 0 {
		config.TopK = 20
	}
	if config.Oversample == 0 {
		config.Oversample = 5
	}

	if idx.NTotal() != chunks.Len() {
		log.Printf("warning: index holds %d vectors but chunk store holds %d records, lookups will be bounds-checked",
			idx.NTotal(), chunks.Len())
	}

	return &Retriever{config: config, embedder: embedder, index: idx, chunks: chunks}
}

// Result is one retrieval round: the ranked chunks, the strategy that
// produced them, and whether an exhausted filter forced a full-corpus retry.
type Result struct {
	Results  []models.SearchResult
	Method   string
	FellBack bool
}

// Retrieve runs the full retrieval contract: filtered search when filters are
// set, with an observable fallback to the whole corpus when the predicate
// matches nothing.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters Filters, k int) (Result, error) {
	if filters.IsEmpty() {
		results, err := r.Search(ctx, query, k)
		return Result{Results: results, Method: "unfiltered"}, err
	}

	results, err := r.SearchFiltered(ctx, query, filters, k)
	if err != nil {
		return Result{}, err
	}
	if len(results) > 0 {
		return Result{Results: results, Method: "filtered"}, nil
	}

	log.Printf("warning: filters matched no chunks, retrying against the full corpus")
	results, err = r.Search(ctx, query, k)
	return Result{Results: results, Method: "unfiltered", FellBack: true}, err
}

// Search embeds the query once and returns the k nearest chunks.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = r.config.TopK
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	positions, distances, err := r.index.Search(embedding, k)
	if err != nil {
		return nil, err
	}
	return r.collect(positions, distances, len(positions), nil), nil
}

// SearchFiltered over-fetches k times the oversample factor, drops hits whose
// metadata fails the predicate, and keeps the first k survivors in ranked
// order. Fewer than k survivors are returned as-is, never padded.
func (r *Retriever) SearchFiltered(ctx context.Context, query string, filters Filters, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = r.config.TopK
	}
	searchK := k * r.config.Oversample
	if searchK > r.index.NTotal() {
		searchK = r.index.NTotal()
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	positions, distances, err := r.index.Search(embedding, searchK)
	if err != nil {
		return nil, err
	}
	return r.collect(positions, distances, k, filters.Matches), nil
}

// SearchSubset restricts the store to chunks matching the predicate, builds
// an in-memory index over just that subset's vectors, and searches within it.
// Equivalent in ranking to a full oversample, and cheaper when the predicate
// is very selective.
func (r *Retriever) SearchSubset(ctx context.Context, query string, filters Filters, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = r.config.TopK
	}

	subset := r.chunks.FilterPositions(func(c models.Chunk) bool {
		return filters.Matches(c.Metadata)
	})
	var vectors [][]float32
	var kept []int
	for _, p := range subset {
		if p >= r.index.NTotal() {
			continue
		}
		v, err := r.index.Vector(p)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
		kept = append(kept, p)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	sub, err := index.Build(vectors)
	if err != nil {
		return nil, err
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	local, distances, err := sub.Search(embedding, k)
	if err != nil {
		return nil, err
	}

	positions := make([]int, len(local))
	for i, l := range local {
		positions[i] = kept[l]
	}
	return r.collect(positions, distances, len(positions), nil), nil
}

// collect maps index positions back to chunks with bounds checking, applying
// the optional predicate and stopping once limit results are gathered. An
// out-of-range position is skipped, never indexed blindly: the index and the
// store may disagree in degraded mode.
func (r *Retriever) collect(positions []int, distances []float32, limit int, match func(models.RuleMetadata) bool) []models.SearchResult {
	var results []models.SearchResult
	for i, p := range positions {
		chunk, err := r.chunks.Get(p)
		if err != nil {
			continue
		}
		if match != nil && !match(chunk.Metadata) {
			continue
		}
		results = append(results, models.SearchResult{
			Chunk:    chunk,
			Position: p,
			Distance: distances[i],
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}
