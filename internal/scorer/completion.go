// Package scorer computes brand profile completeness.
package scorer

import (
	"math"

	"github.com/sells-group/brand-cli/internal/model"
)

const (
	// sectionWeight is the share of the score earned by breadth: how many
	// sections carry any data at all.
	sectionWeight = 40.0
	// fieldWeight is the share earned by the fill rate of individual fields.
	fieldWeight = 60.0

	// CompleteThreshold is the lowest score at which a profile is complete.
	CompleteThreshold = 70
)

// SectionStat holds the field counts for one section.
type SectionStat struct {
	Section      string `json:"section"`
	Present      bool   `json:"present"`
	TotalFields  int    `json:"total_fields"`
	FilledFields int    `json:"filled_fields"`
}

// Breakdown is the full scoring detail for a document.
type Breakdown struct {
	Sections       []SectionStat `json:"sections"`
	TotalSections  int           `json:"total_sections"`
	FilledSections int           `json:"filled_sections"`
	TotalFields    int           `json:"total_fields"`
	FilledFields   int           `json:"filled_fields"`
	Score          int           `json:"score"`
}

// Score returns the 0-100 completion score of doc.
func Score(doc map[string]any) int {
	return Explain(doc).Score
}

// Explain scores doc and returns the per-section counts behind the score.
//
// score = round(40*filledSections/totalSections + 60*filledFields/totalFields)
//
// where the field term is 0 when no section has any keys.
func Explain(doc map[string]any) Breakdown {
	sections := model.ScoredSections()
	b := Breakdown{TotalSections: len(sections)}

	for _, name := range sections {
		stat := SectionStat{Section: name}
		keys, ok := sectionFields(doc[name])
		if ok {
			stat.Present = true
			stat.TotalFields = len(keys)
			for _, v := range keys {
				if IsFilled(v) {
					stat.FilledFields++
				}
			}
		}
		b.TotalFields += stat.TotalFields
		b.FilledFields += stat.FilledFields
		if stat.FilledFields > 0 {
			b.FilledSections++
		}
		b.Sections = append(b.Sections, stat)
	}

	sectionScore := sectionWeight * float64(b.FilledSections) / float64(b.TotalSections)
	var fieldScore float64
	if b.TotalFields > 0 {
		fieldScore = fieldWeight * float64(b.FilledFields) / float64(b.TotalFields)
	}
	b.Score = int(math.Round(sectionScore + fieldScore))
	return b
}

// sectionFields returns the direct children of a section. Array sections
// count each element as a field.
func sectionFields(v any) ([]any, bool) {
	switch s := v.(type) {
	case map[string]any:
		out := make([]any, 0, len(s))
		for _, child := range s {
			out = append(out, child)
		}
		return out, true
	case []any:
		return s, true
	default:
		return nil, false
	}
}

// IsFilled reports whether a field value counts toward completeness: a
// non-empty string, array or object. Numbers, booleans and null do not.
func IsFilled(v any) bool {
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	default:
		return false
	}
}

// StatusFor maps a score to the profile status it implies.
func StatusFor(score int) model.ProfileStatus {
	if score >= CompleteThreshold {
		return model.StatusComplete
	}
	return model.StatusNeedsReview
}
