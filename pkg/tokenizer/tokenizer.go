package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

type TokenizerConfig struct {
	// Model selects the tiktoken encoding profile.
	Model string
	// MaxTokens is the hard per-request ceiling of the embedding API.
	MaxTokens int
	// SafetyMargin is headroom kept under the ceiling.
	SafetyMargin int
}

// Tokenizer counts and splits text under a fixed model profile. Counting is
// deterministic: identical text always yields an identical count.
type Tokenizer struct {
	config   TokenizerConfig
	encoding *tiktoken.Tiktoken
}

func NewWithConfig(config TokenizerConfig) (*Tokenizer, error) {
	if config.Model == "" {
		config.Model = "text-embedding-ada-002"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8191
	}
	if config.SafetyMargin == 0 {
		config.SafetyMargin = 50
	}

	encoding, err := tiktoken.EncodingForModel(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding for %s: %w", config.Model, err)
	}

	return &Tokenizer{config: config, encoding: encoding}, nil
}

func (t *Tokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Ceiling is the largest token count a single text may carry.
func (t *Tokenizer) Ceiling() int {
	return t.config.MaxTokens - t.config.SafetyMargin
}

// Truncate cuts text to the ceiling by token slice. Texts already under the
// ceiling come back unchanged.
func (t *Tokenizer) Truncate(text string) string {
	ids := t.encoding.Encode(text, nil, nil)
	if len(ids) <= t.Ceiling() {
		return text
	}
	return t.encoding.Decode(ids[:t.Ceiling()])
}

// Split breaks a text that exceeds the ceiling into sentence-packed parts,
// each under the ceiling. This is the length-enforcement stage that runs after
// structural segmentation: the word-based segmenter can under-estimate token
// counts for dense text, and the embedding API rejects oversized requests.
func (t *Tokenizer) Split(text string) []string {
	if t.Count(text) <= t.Ceiling() {
		return []string{text}
	}

	sentences := strings.Split(text, ". ")
	var parts []string
	current := ""
	for _, sentence := range sentences {
		if t.Count(current+sentence) < t.Ceiling() {
			current += sentence + ". "
			continue
		}
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			parts = append(parts, trimmed)
		}
		current = sentence + ". "
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		parts = append(parts, trimmed)
	}

	// A single sentence can still exceed the ceiling on its own.
	for i, part := range parts {
		parts[i] = t.Truncate(part)
	}

	return parts
}
