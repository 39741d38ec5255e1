package events

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestDefaultEventSynthesized(t *testing.T) {
	s := newTestStore(t)
	events := s.List(true)
	if len(events) != 1 {
		t.Fatalf("expected 1 default event, got %d", len(events))
	}
	if !events[0].IsPublic {
		t.Error("expected default event to be public")
	}
}

func TestCreateSlugDeduplication(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Create("My Conference", Event{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := s.Create("My Conference", Event{})
	third, _ := s.Create("My Conference", Event{})

	if first.Slug != "my-conference" {
		t.Errorf("expected 'my-conference', got %q", first.Slug)
	}
	if second.Slug != "my-conference-1" {
		t.Errorf("expected 'my-conference-1', got %q", second.Slug)
	}
	if third.Slug != "my-conference-2" {
		t.Errorf("expected 'my-conference-2', got %q", third.Slug)
	}
}

func TestSaveUpsertsBySlug(t *testing.T) {
	s := newTestStore(t)
	ev, _ := s.Create("Upsert Test", Event{Location: "Kiel"})

	ev.Location = "Lübeck"
	if err := s.Save(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Get(ev.Slug)
	if got == nil {
		t.Fatal("expected event to exist")
	}
	if got.Location != "Lübeck" {
		t.Errorf("expected updated location, got %q", got.Location)
	}

	// Upsert must not duplicate
	count := 0
	for _, e := range s.List(true) {
		if e.Slug == ev.Slug {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one entry for slug, got %d", count)
	}
}

func TestListSortsByStartDateDesc(t *testing.T) {
	s := newTestStore(t)
	s.Create("Old", Event{StartDate: "2023-01-01"})
	s.Create("New", Event{StartDate: "2026-06-01"})
	s.Create("Undated", Event{})

	events := s.List(true)
	if events[0].Title != "New" {
		t.Errorf("expected 'New' first, got %q", events[0].Title)
	}
	if events[len(events)-1].Title != "Undated" {
		t.Errorf("expected undated event last, got %q", events[len(events)-1].Title)
	}
}

func TestPasswordGating(t *testing.T) {
	s := newTestStore(t)
	ev, _ := s.Create("Secret Event", Event{})

	if err := s.SetPassword(ev.Slug, "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Get(ev.Slug)
	if got.IsPublic {
		t.Error("expected protected event to be non-public")
	}
	if got.PasswordHash == "" {
		t.Error("expected password hash to be set")
	}

	if !s.ValidateAccess(ev.Slug, "secret") {
		t.Error("expected correct password to pass")
	}
	if s.ValidateAccess(ev.Slug, "wrong") {
		t.Error("expected wrong password to fail")
	}
	if s.ValidateAccess(ev.Slug, "") {
		t.Error("expected empty password to fail")
	}

	// Protected events are hidden from the public listing
	for _, e := range s.List(false) {
		if e.Slug == ev.Slug {
			t.Error("expected protected event excluded from public list")
		}
	}

	// Clearing the password restores public visibility
	if err := s.SetPassword(ev.Slug, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = s.Get(ev.Slug)
	if !got.IsPublic || got.PasswordHash != "" {
		t.Error("expected cleared password to restore public state")
	}
}

func TestValidateAccessUnknownEvent(t *testing.T) {
	s := newTestStore(t)
	if s.ValidateAccess("does-not-exist", "anything") {
		t.Error("expected access denied for unknown event")
	}
}

func TestMalformedIndexReadsAsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "events", "events.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt index: %v", err)
	}
	if got := s.List(true); len(got) != 0 {
		t.Errorf("expected empty list for corrupt index, got %d", len(got))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ev, _ := s.Create("Doomed", Event{})

	removed, err := s.Delete(ev.Slug)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected delete to report removal")
	}
	if s.Get(ev.Slug) != nil {
		t.Error("expected event gone after delete")
	}

	removed, _ = s.Delete(ev.Slug)
	if removed {
		t.Error("expected second delete to be a no-op")
	}
}
