package contextpack

import (
	"fmt"
	"strings"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/internal/types"
)

type AssemblerConfig struct {
	// MaxTokens is the budget for the assembled context string.
	MaxTokens int
}

// Assembler packs ranked chunks into a single token-budgeted context string.
// Ranked order is preserved: packing stops at the first chunk that would
// overflow the budget, it never skips ahead to a smaller one.
type Assembler struct {
	config  AssemblerConfig
	counter types.TokenCounter
}

func NewWithConfig(config AssemblerConfig, counter types.TokenCounter) Assembler {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4000
	}
	return Assembler{config: config, counter: counter}
}

// Assemble returns the joined context and the chunks actually included, which
// is always a strict prefix of the input order. Zero included chunks is valid
// output and means no usable context, not an error.
func (a *Assembler) Assemble(results []models.SearchResult) (string, []models.SearchResult) {
	var parts []string
	var used []models.SearchResult

	for i, result := range results {
		section := fmt.Sprintf("[Source %d] %s\n%s", i+1, result.Chunk.SectionHeader, result.Chunk.Text)
		candidate := strings.Join(append(parts, section), "\n\n")
		if a.counter.Count(candidate) > a.config.MaxTokens {
			break
		}
		parts = append(parts, section)
		used = append(used, result)
	}

	return strings.Join(parts, "\n\n"), used
}
