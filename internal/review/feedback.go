// Package review persists reviewer feedback: one schema-versioned
// document per talk with Likert ratings and an approval decision.
package review

import "time"

// SchemaVersion is the current feedback document schema.
const SchemaVersion = 2

// Rating is a 1-4 Likert value; nil means unanswered.
type Rating = *int

// Feedback is the full reviewer assessment for one talk. Resubmission
// replaces the entire document; no history is kept.
type Feedback struct {
	Slug          string            `json:"slug"`
	Title         string            `json:"title,omitempty"`
	Summary       SectionRatings    `json:"summary"`
	Quotes        QuotesRatings     `json:"quotes"`
	Diagram       SectionRatings    `json:"diagram"`
	Image         ImageRatings      `json:"image"`
	Transcript    TranscriptRatings `json:"transcript"`
	Overall       OverallRatings    `json:"overall"`
	TimeSpentMin  *int              `json:"time_spent_min,omitempty"`
	Comments      string            `json:"comments,omitempty"`
	SubmittedAt   string            `json:"submitted_at"`
	Approve       bool              `json:"approve"`
	Published     bool              `json:"published"`
	SchemaVersion int               `json:"schema_version"`
}

type SectionRatings struct {
	Correctness Rating `json:"correctness"`
	Usefulness  Rating `json:"usefulness"`
	Clarity     Rating `json:"clarity"`
}

// QuotesRatings covers extracted quotes. When no quotes are present the
// per-quote ratings are meaningless and must be null.
type QuotesRatings struct {
	Present     bool   `json:"present"`
	Correctness Rating `json:"correctness"`
	Usefulness  Rating `json:"usefulness"`
}

type ImageRatings struct {
	Relevance Rating `json:"relevance"`
	Quality   Rating `json:"quality"`
}

type TranscriptRatings struct {
	Completeness Rating `json:"completeness"`
	Correctness  Rating `json:"correctness"`
}

type OverallRatings struct {
	OverallUsefulness Rating `json:"overall_usefulness"`
	Practicality      Rating `json:"practicality"`
	Trust             Rating `json:"trust"`
}

// Normalize enforces document invariants at the boundary: ratings
// outside 1-4 are dropped to null, and absent quotes clear their
// dependent ratings even if stray values were submitted.
func (f *Feedback) Normalize() {
	f.Summary.Correctness = clamp(f.Summary.Correctness)
	f.Summary.Usefulness = clamp(f.Summary.Usefulness)
	f.Summary.Clarity = clamp(f.Summary.Clarity)
	f.Quotes.Correctness = clamp(f.Quotes.Correctness)
	f.Quotes.Usefulness = clamp(f.Quotes.Usefulness)
	f.Diagram.Correctness = clamp(f.Diagram.Correctness)
	f.Diagram.Usefulness = clamp(f.Diagram.Usefulness)
	f.Diagram.Clarity = clamp(f.Diagram.Clarity)
	f.Image.Relevance = clamp(f.Image.Relevance)
	f.Image.Quality = clamp(f.Image.Quality)
	f.Transcript.Completeness = clamp(f.Transcript.Completeness)
	f.Transcript.Correctness = clamp(f.Transcript.Correctness)
	f.Overall.OverallUsefulness = clamp(f.Overall.OverallUsefulness)
	f.Overall.Practicality = clamp(f.Overall.Practicality)
	f.Overall.Trust = clamp(f.Overall.Trust)

	if !f.Quotes.Present {
		f.Quotes.Correctness = nil
		f.Quotes.Usefulness = nil
	}

	if f.SchemaVersion == 0 {
		f.SchemaVersion = SchemaVersion
	}
	if f.SubmittedAt == "" {
		f.SubmittedAt = time.Now().UTC().Format(time.RFC3339)
	}
}

func clamp(r Rating) Rating {
	if r == nil || *r < 1 || *r > 4 {
		return nil
	}
	return r
}

// Int is a convenience for building Rating literals.
func Int(v int) *int { return &v }
