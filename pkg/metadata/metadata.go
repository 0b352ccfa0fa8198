package metadata

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/pkg/regxml"
)

var yearPattern = regexp.MustCompile(`20\d{2}`)

// Program keyword families, checked in priority order: the first family with a
// matching keyword wins, so a filename naming several programs classifies
// deterministically.
var programKeywords = []struct {
	program  models.Program
	keywords []string
}{
	{models.ProgramHospice, []string{"hospice"}},
	{models.ProgramSNF, []string{"snf", "skilled nursing"}},
	{models.ProgramMPFS, []string{"physician fee schedule", "mpfs", "pfs"}},
}

// ClassifyProgram matches program keyword families against lower-cased text.
// The first family with a hit wins; no hit means Unknown.
func ClassifyProgram(text string) models.Program {
	text = strings.ToLower(text)
	for _, family := range programKeywords {
		for _, kw := range family.keywords {
			if strings.Contains(text, kw) {
				return family.program
			}
		}
	}
	return models.ProgramUnknown
}

// ClassifyRuleType looks for "proposed" or "final" in lower-cased text.
func ClassifyRuleType(text string) models.RuleType {
	text = strings.ToLower(text)
	if strings.Contains(text, "proposed") {
		return models.RuleProposed
	}
	if strings.Contains(text, "final") {
		return models.RuleFinal
	}
	return models.RuleUnknown
}

// ExtractYear returns the first 4-digit year starting with "20", or nil.
func ExtractYear(text string) *int {
	if m := yearPattern.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return &y
		}
	}
	return nil
}

// InferFromFilename derives program, rule type, and year from a filename.
// Unrecognized values fall back to Unknown (or a nil year), never an error.
func InferFromFilename(name string) models.RuleMetadata {
	base := filepath.Base(name)
	return models.RuleMetadata{
		SourceFile: base,
		Program:    ClassifyProgram(base),
		RuleType:   ClassifyRuleType(base),
		Year:       ExtractYear(strings.ToLower(base)),
	}
}

// Preamble holds the small fixed set of fields pulled from a rule document's
// preamble. Missing fields are empty strings.
type Preamble struct {
	Title         string
	DocumentID    string
	CFR           string
	EffectiveDate string
}

// FromDocument extracts preamble fields from a parsed rule document.
func FromDocument(root *regxml.Node) Preamble {
	p := Preamble{
		Title:      root.FindText("SUBJECT"),
		DocumentID: root.FindText("DEPDOC"),
		CFR:        root.FindText("CFR"),
	}
	if eff := root.Find("EFFDATE"); eff != nil {
		p.EffectiveDate = eff.FindText("P")
	}
	return p
}

// Merge overlays preamble fields onto filename-inferred metadata. Filename
// values act as defaults; a preamble field wins only when non-empty.
func Merge(inferred models.RuleMetadata, p Preamble) models.RuleMetadata {
	merged := inferred.Clone()
	if p.Title != "" {
		merged.Title = p.Title
	}
	if p.DocumentID != "" {
		merged.DocumentID = p.DocumentID
	}
	if p.CFR != "" {
		merged.CFR = p.CFR
	}
	if p.EffectiveDate != "" {
		merged.EffectiveDate = p.EffectiveDate
	}
	return merged
}
