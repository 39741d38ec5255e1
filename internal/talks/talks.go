// Package talks manages per-talk directories: metadata plus the audio,
// transcription and generated_content file collections.
package talks

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/TobiSchelling/mootscribe/internal/slug"
)

// Talk is the metadata document stored at talks/<slug>/metadata.json.
type Talk struct {
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	Speaker           string `json:"speaker,omitempty"`
	Date              string `json:"date,omitempty"` // ISO 8601
	Description       string `json:"description,omitempty"`
	Link              string `json:"link,omitempty"`
	Location          string `json:"location,omitempty"`
	// EventSlug is a weak reference: the event may have been deleted, in
	// which case navigation falls back to the global index.
	EventSlug         string `json:"event_slug,omitempty"`
	AudioFile         string `json:"audio_file,omitempty"`
	TranscriptionFile string `json:"transcription_file,omitempty"`
	Status            string `json:"status,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// Updates carries optional metadata fields for a merge-save. Nil fields
// leave the stored value untouched.
type Updates struct {
	Speaker     *string
	Date        *string
	Description *string
	Link        *string
	Location    *string
	EventSlug   *string
}

// Store manages talk directories under <base>/talks.
type Store struct {
	talksDir string
}

// NewStore creates the talks directory under baseDir if needed.
func NewStore(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, "talks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating talks directory: %w", err)
	}
	return &Store{talksDir: dir}, nil
}

// BaseDir returns the root of all talk directories.
func (s *Store) BaseDir() string {
	return s.talksDir
}

// Dir returns the directory for a talk slug.
func (s *Store) Dir(talkSlug string) string {
	return filepath.Join(s.talksDir, talkSlug)
}

// Exists reports whether the talk's data directory exists.
func (s *Store) Exists(talkSlug string) bool {
	info, err := os.Stat(s.Dir(talkSlug))
	return err == nil && info.IsDir()
}

// Save creates a talk for the given display name, or merges the supplied
// updates into an existing one. The slug is derived from the name.
func (s *Store) Save(name string, updates Updates) (*Talk, error) {
	talkSlug := slug.SanitizeFolderName(name)
	if talkSlug == "" {
		return nil, fmt.Errorf("talk name %q reduces to an empty slug", name)
	}
	dir := s.Dir(talkSlug)
	metaPath := filepath.Join(dir, "metadata.json")

	if _, err := os.Stat(metaPath); err == nil {
		talk, err := s.Get(talkSlug)
		if err != nil {
			return nil, err
		}
		applyUpdates(talk, updates)
		talk.UpdatedAt = now()
		if err := s.writeMetadata(talk); err != nil {
			return nil, err
		}
		return talk, nil
	}

	for _, sub := range []string{"", "audio", "transcription", "generated_content"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating talk directory: %w", err)
		}
	}

	talk := &Talk{
		Name:      name,
		Slug:      talkSlug,
		Status:    "created",
		CreatedAt: now(),
	}
	applyUpdates(talk, updates)
	if err := s.writeMetadata(talk); err != nil {
		return nil, err
	}
	return talk, nil
}

func applyUpdates(talk *Talk, u Updates) {
	if u.Speaker != nil {
		talk.Speaker = *u.Speaker
	}
	if u.Date != nil {
		talk.Date = *u.Date
	}
	if u.Description != nil {
		talk.Description = *u.Description
	}
	if u.Link != nil {
		talk.Link = *u.Link
	}
	if u.Location != nil {
		talk.Location = *u.Location
	}
	if u.EventSlug != nil {
		talk.EventSlug = *u.EventSlug
	}
}

// Get loads a talk's metadata, or returns nil when the talk does not
// exist or its metadata is unreadable.
func (s *Store) Get(talkSlug string) (*Talk, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(talkSlug), "metadata.json"))
	if err != nil {
		return nil, nil
	}
	var talk Talk
	if err := json.Unmarshal(data, &talk); err != nil {
		log.Printf("Malformed metadata for talk %q: %v", talkSlug, err)
		return nil, nil
	}
	if talk.Slug == "" {
		talk.Slug = talkSlug
	}
	if talk.Name == "" {
		talk.Name = talkSlug
	}
	return &talk, nil
}

// List returns all talks with readable metadata, newest created first.
func (s *Store) List() []Talk {
	entries, err := os.ReadDir(s.talksDir)
	if err != nil {
		return nil
	}

	var talks []Talk
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		talk, _ := s.Get(entry.Name())
		if talk != nil {
			talks = append(talks, *talk)
		}
	}

	sort.SliceStable(talks, func(i, j int) bool {
		return talks[i].CreatedAt > talks[j].CreatedAt
	})
	return talks
}

// Slugs returns the slugs of all talk directories in name order.
func (s *Store) Slugs() []string {
	entries, err := os.ReadDir(s.talksDir)
	if err != nil {
		return nil
	}
	var slugs []string
	for _, entry := range entries {
		if entry.IsDir() {
			slugs = append(slugs, entry.Name())
		}
	}
	sort.Strings(slugs)
	return slugs
}

// UpdateMetadata merges updates into an existing talk's metadata and
// stamps updated_at.
func (s *Store) UpdateMetadata(talkSlug string, updates Updates) error {
	talk, err := s.Get(talkSlug)
	if err != nil {
		return err
	}
	if talk == nil {
		return fmt.Errorf("talk %q not found", talkSlug)
	}
	applyUpdates(talk, updates)
	talk.UpdatedAt = now()
	return s.writeMetadata(talk)
}

// SetStatus records a workflow status on the talk.
func (s *Store) SetStatus(talkSlug, status string) error {
	talk, err := s.Get(talkSlug)
	if err != nil || talk == nil {
		return fmt.Errorf("talk %q not found", talkSlug)
	}
	talk.Status = status
	talk.UpdatedAt = now()
	return s.writeMetadata(talk)
}

// Delete removes the talk's entire file tree. The publication index is
// intentionally not touched here; prune is the separate repair step.
func (s *Store) Delete(talkSlug string) error {
	dir := s.Dir(talkSlug)
	if !s.Exists(talkSlug) {
		return fmt.Errorf("talk %q not found", talkSlug)
	}
	return os.RemoveAll(dir)
}

// --- file collections ---

// ListFiles lists the files of one collection (audio, transcription,
// generated_content) in name order.
func (s *Store) ListFiles(talkSlug, kind string) []string {
	entries, err := os.ReadDir(filepath.Join(s.Dir(talkSlug), kind))
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// AddAudio copies an audio file into the talk's audio collection.
func (s *Store) AddAudio(talkSlug, srcPath string) (string, error) {
	if !s.Exists(talkSlug) {
		return "", fmt.Errorf("talk %q not found", talkSlug)
	}
	name := filepath.Base(srcPath)
	target := filepath.Join(s.Dir(talkSlug), "audio", name)
	if err := copyFile(srcPath, target); err != nil {
		return "", fmt.Errorf("adding audio file: %w", err)
	}
	talk, _ := s.Get(talkSlug)
	if talk != nil {
		talk.AudioFile = name
		talk.Status = "audio_uploaded"
		talk.UpdatedAt = now()
		_ = s.writeMetadata(talk)
	}
	return target, nil
}

// AddTranscription copies an existing transcript file into the talk's
// transcription collection.
func (s *Store) AddTranscription(talkSlug, srcPath string) (string, error) {
	if !s.Exists(talkSlug) {
		return "", fmt.Errorf("talk %q not found", talkSlug)
	}
	name := filepath.Base(srcPath)
	target := filepath.Join(s.Dir(talkSlug), "transcription", name)
	if err := copyFile(srcPath, target); err != nil {
		return "", fmt.Errorf("adding transcription file: %w", err)
	}
	talk, _ := s.Get(talkSlug)
	if talk != nil {
		talk.TranscriptionFile = name
		talk.Status = "transcription_available"
		talk.UpdatedAt = now()
		_ = s.writeMetadata(talk)
	}
	return target, nil
}

// SaveTranscription writes a transcription file for the talk.
func (s *Store) SaveTranscription(talkSlug, filename, content string) error {
	if !s.Exists(talkSlug) {
		return fmt.Errorf("talk %q not found", talkSlug)
	}
	path := filepath.Join(s.Dir(talkSlug), "transcription", filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing transcription: %w", err)
	}
	talk, _ := s.Get(talkSlug)
	if talk != nil {
		talk.TranscriptionFile = filename
		talk.Status = "transcription_available"
		talk.UpdatedAt = now()
		_ = s.writeMetadata(talk)
	}
	return nil
}

// TranscriptionContent reads one transcription file.
func (s *Store) TranscriptionContent(talkSlug, filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(talkSlug), "transcription", filename))
	if err != nil {
		return "", fmt.Errorf("reading transcription %q: %w", filename, err)
	}
	return string(data), nil
}

// SaveGeneratedContent writes a file into generated_content, creating
// the directory if the talk predates it.
func (s *Store) SaveGeneratedContent(talkSlug, filename string, content []byte) error {
	dir := filepath.Join(s.Dir(talkSlug), "generated_content")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating generated_content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// GeneratedContent reads one generated_content file.
func (s *Store) GeneratedContent(talkSlug, filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(talkSlug), "generated_content", filename))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return data, nil
}

func (s *Store) writeMetadata(talk *Talk) error {
	data, err := json.MarshalIndent(talk, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	path := filepath.Join(s.Dir(talk.Slug), "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Str is a convenience for building Updates literals.
func Str(s string) *string { return &s }
