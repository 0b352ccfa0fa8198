package models

// Program identifies the Medicare program a rule belongs to.
type Program string

const (
	ProgramMPFS    Program = "MPFS"
	ProgramHospice Program = "Hospice"
	ProgramSNF     Program = "SNF"
	ProgramUnknown Program = "Unknown"
)

// RuleType distinguishes proposed rules from final rules.
type RuleType string

const (
	RuleProposed RuleType = "Proposed"
	RuleFinal    RuleType = "Final"
	RuleUnknown  RuleType = "Unknown"
)

// RuleMetadata carries the structured tags attached to every chunk cut from a
// source document. Fields inferred from the filename act as defaults; preamble
// fields override them when present. Optional fields stay empty (or nil for
// Year) when the source gives nothing, and an empty field never matches a
// retrieval filter.
type RuleMetadata struct {
	SourceFile    string   `json:"source_file"`
	Program       Program  `json:"program"`
	RuleType      RuleType `json:"rule_type"`
	Year          *int     `json:"year,omitempty"`
	Title         string   `json:"title,omitempty"`
	DocumentID    string   `json:"document_id,omitempty"`
	CFR           string   `json:"cfr,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	Subfolder     string   `json:"subfolder,omitempty"`
	FullPath      string   `json:"full_path,omitempty"`
}

// Clone returns an independent copy. Every chunk gets its own clone so that
// editing one chunk's metadata can never leak into a sibling.
func (m RuleMetadata) Clone() RuleMetadata {
	out := m
	if m.Year != nil {
		y := *m.Year
		out.Year = &y
	}
	return out
}

// Chunk is one contiguous span of regulatory text cut from a document.
type Chunk struct {
	Text          string       `json:"text"`
	SectionHeader string       `json:"section_header"`
	ChunkIndex    int          `json:"chunk_index"`
	Hash          string       `json:"hash"`
	Metadata      RuleMetadata `json:"metadata"`
}

// SearchResult pairs a chunk with its L2 distance to a query embedding.
// Lower distance means more similar. Built per query, never persisted.
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`
	Position int     `json:"position"`
	Distance float32 `json:"distance"`
}

// Source describes one chunk that contributed to a generated answer.
type Source struct {
	SourceID    int          `json:"source_id"`
	TextPreview string       `json:"text_preview"`
	Distance    float32      `json:"distance"`
	Metadata    RuleMetadata `json:"metadata"`
}

// AppliedFilters echoes the metadata predicate a retrieval round actually ran
// with, in wire form. Unset fields are omitted.
type AppliedFilters struct {
	Program       string `json:"program,omitempty"`
	RuleType      string `json:"rule_type,omitempty"`
	Year          *int   `json:"year,omitempty"`
	TitleContains string `json:"title_contains,omitempty"`
}

// Answer is the full payload of one question/answer round trip.
type Answer struct {
	Answer          string         `json:"answer"`
	Confidence      float64        `json:"confidence"`
	SourcesUsed     []Source       `json:"sources_used"`
	TotalSources    int            `json:"total_sources"`
	Query           string         `json:"query"`
	RetrievalMethod string         `json:"retrieval_method"`
	FellBack        bool           `json:"fell_back"`
	FiltersApplied  AppliedFilters `json:"filters_applied"`
}
