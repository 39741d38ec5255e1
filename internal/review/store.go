package review

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const feedbackFilename = "review_feedback.json"

// Store persists one feedback document per talk under the talk's
// generated_content directory.
type Store struct {
	talksDir string
}

// NewStore creates a feedback store over <base>/talks.
func NewStore(baseDir string) *Store {
	return &Store{talksDir: filepath.Join(baseDir, "talks")}
}

func (s *Store) path(talkSlug string) string {
	return filepath.Join(s.talksDir, talkSlug, "generated_content", feedbackFilename)
}

// Save writes the feedback document wholesale, replacing any previous
// submission. The slug and published flag are stamped in before writing.
func (s *Store) Save(talkSlug string, fb *Feedback) error {
	fb.Slug = talkSlug
	fb.Published = fb.Approve
	fb.Normalize()

	path := s.path(talkSlug)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating feedback directory: %w", err)
	}
	data, err := json.MarshalIndent(fb, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding feedback: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing feedback: %w", err)
	}
	return nil
}

// Get loads a talk's feedback. Missing or corrupt documents read as nil
// so the review form can render with blank defaults.
func (s *Store) Get(talkSlug string) *Feedback {
	data, err := os.ReadFile(s.path(talkSlug))
	if err != nil {
		return nil
	}
	var fb Feedback
	if err := json.Unmarshal(data, &fb); err != nil {
		log.Printf("Malformed feedback for talk %q: %v", talkSlug, err)
		return nil
	}
	return &fb
}

// ExportEntry is one feedback document annotated with live state for the
// bulk export API.
type ExportEntry struct {
	Slug      string    `json:"slug"`
	Published bool      `json:"published"`
	Feedback  *Feedback `json:"feedback"`
}

// ExportAll collects every stored feedback document. When schemaVersion
// is non-zero, only documents of that schema are included. isPublished
// supplies the live publication state per slug.
func (s *Store) ExportAll(schemaVersion int, isPublished func(slug string) bool) []ExportEntry {
	entries, err := os.ReadDir(s.talksDir)
	if err != nil {
		return nil
	}

	var out []ExportEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fb := s.Get(entry.Name())
		if fb == nil {
			continue
		}
		if schemaVersion != 0 && fb.SchemaVersion != schemaVersion {
			continue
		}
		out = append(out, ExportEntry{
			Slug:      entry.Name(),
			Published: isPublished(entry.Name()),
			Feedback:  fb,
		})
	}
	return out
}
