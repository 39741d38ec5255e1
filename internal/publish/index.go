// Package publish holds the publication index and the orchestrator that
// ties reviewer feedback, the index and page generation together.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Entry is one published talk: a denormalized cache of talk fields,
// refreshed on every approval.
type Entry struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Date  string `json:"date,omitempty"`
}

// Index is the authoritative list of published talks. Presence in the
// list is the sole definition of "published"; a slug appears at most
// once. The Publisher is the only writer.
type Index struct {
	path string
}

// NewIndex creates the index over <base>/public/published.json.
func NewIndex(baseDir string) (*Index, error) {
	publicDir := filepath.Join(baseDir, "public")
	if err := os.MkdirAll(publicDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating public directory: %w", err)
	}
	return &Index{path: filepath.Join(publicDir, "published.json")}, nil
}

// Published returns the current list. A missing or malformed index
// reads as empty; the read path favors availability.
func (ix *Index) Published() []Entry {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		return nil
	}
	var doc struct {
		Talks []Entry `json:"talks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("Malformed published index %s: %v", ix.path, err)
		return nil
	}
	// Entries without a slug are meaningless; drop them on read.
	entries := doc.Talks[:0:0]
	for _, e := range doc.Talks {
		if e.Slug != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

// SetPublished replaces the whole list and persists it.
func (ix *Index) SetPublished(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	doc := struct {
		Talks []Entry `json:"talks"`
	}{Talks: entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding published index: %w", err)
	}
	if err := os.WriteFile(ix.path, data, 0o644); err != nil {
		return fmt.Errorf("writing published index: %w", err)
	}
	return nil
}

// IsPublished reports index membership.
func (ix *Index) IsPublished(slug string) bool {
	return ix.Record(slug) != nil
}

// Record returns the entry for a slug, or nil.
func (ix *Index) Record(slug string) *Entry {
	for _, e := range ix.Published() {
		if e.Slug == slug {
			entry := e
			return &entry
		}
	}
	return nil
}

// Slugs returns the published slugs in index order.
func (ix *Index) Slugs() []string {
	entries := ix.Published()
	slugs := make([]string, len(entries))
	for i, e := range entries {
		slugs[i] = e.Slug
	}
	return slugs
}
