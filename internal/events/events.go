// Package events manages the event collection: groupings of talks that
// may be password protected.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/TobiSchelling/mootscribe/internal/slug"
)

// Event is a grouping of talks, e.g. one conference edition.
type Event struct {
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	StartDate    string `json:"start_date,omitempty"` // ISO 8601
	EndDate      string `json:"end_date,omitempty"`   // ISO 8601
	Location     string `json:"location,omitempty"`
	Organizer    string `json:"organizer,omitempty"`
	Website      string `json:"website,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"` // SHA-256 hex
	IsPublic     bool   `json:"is_public"`
}

// SetPassword protects the event with a password, or clears protection
// when password is empty. A protected event is never public.
func (e *Event) SetPassword(password string) {
	if password != "" {
		e.PasswordHash = hashPassword(password)
		e.IsPublic = false
	} else {
		e.PasswordHash = ""
		e.IsPublic = true
	}
}

// VerifyPassword reports whether the password matches. Events without a
// hash accept anything.
func (e *Event) VerifyPassword(password string) bool {
	if e.PasswordHash == "" {
		return true
	}
	return hashPassword(password) == e.PasswordHash
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Store persists events as a single JSON array on disk. The store is the
// sole owner of the canonical list; callers get snapshots.
type Store struct {
	indexPath string
}

// NewStore creates a store under baseDir (the resources root) and makes
// sure the system is never empty: with no backing file, one default
// public event is synthesized.
func NewStore(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating events directory: %w", err)
	}
	s := &Store{indexPath: filepath.Join(dir, "events.json")}
	if err := s.ensureDefault(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureDefault() error {
	if _, err := os.Stat(s.indexPath); err == nil {
		return nil
	}
	return s.Save(Event{
		Slug:        "mootdach25",
		Title:       "MoodleMoot DACH 2025",
		Description: "MootDACH25 in Lübeck hosted by oncampus and the TH Lübeck",
		StartDate:   "2025-09-04",
		EndDate:     "2025-09-05",
		Location:    "Lübeck, Germany",
		IsPublic:    true,
	})
}

// List returns all events, newest start date first; events without a
// start date sort last. When includeProtected is false, only public
// events are returned. A malformed index reads as empty.
func (s *Store) List(includeProtected bool) []Event {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		return nil
	}

	var all []Event
	if err := json.Unmarshal(data, &all); err != nil {
		log.Printf("Malformed events index %s: %v", s.indexPath, err)
		return nil
	}

	events := all[:0:0]
	for _, e := range all {
		if includeProtected || e.IsPublic {
			events = append(events, e)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return startDateKey(events[i]) > startDateKey(events[j])
	})
	return events
}

func startDateKey(e Event) string {
	if e.StartDate == "" {
		return "0000-00-00"
	}
	return e.StartDate
}

// Get returns the event with the given slug, or nil.
func (s *Store) Get(eventSlug string) *Event {
	for _, e := range s.List(true) {
		if e.Slug == eventSlug {
			ev := e
			return &ev
		}
	}
	return nil
}

// Save upserts an event by slug and persists the whole list.
func (s *Store) Save(event Event) error {
	events := s.List(true)

	updated := false
	for i := range events {
		if events[i].Slug == event.Slug {
			events[i] = event
			updated = true
			break
		}
	}
	if !updated {
		events = append(events, event)
	}

	return s.write(events)
}

// Delete removes an event by slug. Talks referencing it keep their weak
// reference and fall back to global navigation.
func (s *Store) Delete(eventSlug string) (bool, error) {
	events := s.List(true)
	kept := events[:0:0]
	for _, e := range events {
		if e.Slug != eventSlug {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(events) {
		return false, nil
	}
	return true, s.write(kept)
}

// Create builds an event with a unique slug derived from the title and
// persists it. Slug collisions are resolved by appending -1, -2, ...
func (s *Store) Create(title string, attrs Event) (Event, error) {
	attrs.Slug = s.CreateSlug(title)
	attrs.Title = title
	if attrs.PasswordHash == "" {
		attrs.IsPublic = true
	}
	if err := s.Save(attrs); err != nil {
		return Event{}, err
	}
	return attrs, nil
}

// CreateSlug derives a URL-safe slug from the title, unique within the
// store.
func (s *Store) CreateSlug(title string) string {
	base := slug.Slugify(title)
	candidate := base
	for counter := 1; s.Get(candidate) != nil; counter++ {
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
	return candidate
}

// SetPassword updates an event's password protection and persists it.
func (s *Store) SetPassword(eventSlug, password string) error {
	event := s.Get(eventSlug)
	if event == nil {
		return fmt.Errorf("event %q not found", eventSlug)
	}
	event.SetPassword(password)
	return s.Save(*event)
}

// ValidateAccess reports whether the event may be viewed with the given
// password. Public events always pass; unknown events never do.
func (s *Store) ValidateAccess(eventSlug, password string) bool {
	event := s.Get(eventSlug)
	if event == nil {
		return false
	}
	if event.IsPublic {
		return true
	}
	return event.VerifyPassword(password)
}

// Default returns the first public event, or any event if none are
// public, or nil when the store is empty.
func (s *Store) Default() *Event {
	events := s.List(true)
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.IsPublic {
			ev := e
			return &ev
		}
	}
	ev := events[0]
	return &ev
}

func (s *Store) write(events []Event) error {
	if events == nil {
		events = []Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	if err := os.WriteFile(s.indexPath, data, 0o644); err != nil {
		return fmt.Errorf("writing events index: %w", err)
	}
	return nil
}
