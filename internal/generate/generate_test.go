package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/mootscribe/internal/prompts"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

type fakeCompleter struct {
	calls []string
	reply func(system, prompt string) string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string, _ int) (string, error) {
	f.calls = append(f.calls, prompt)
	if f.reply != nil {
		return f.reply(system, prompt), nil
	}
	return "generated text", nil
}

func (f *fakeCompleter) IsConfigured() bool { return true }

type fakeTranscriber struct {
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	f.calls++
	return "transcribed audio", nil
}

type fakeImages struct{ calls int }

func (f *fakeImages) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return []byte("png-bytes"), nil
}

type fakeCompetences struct{}

func (fakeCompetences) Analyze(_ context.Context, _ string) ([]byte, error) {
	return []byte(`{"learning_outcomes": {"skills": []}}`), nil
}

func newTestWorkflow(t *testing.T, completer *fakeCompleter) (*Workflow, *talks.Store) {
	t.Helper()
	store, err := talks.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	catalog, err := prompts.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w := New(store, catalog, completer, &fakeTranscriber{}, &fakeImages{}, fakeCompetences{})
	return w, store
}

func metadataAware(system, prompt string) string {
	if strings.Contains(system, "JSON") || strings.Contains(prompt, "JSON") {
		return `{"name": "", "speaker": "Kim Wexler", "date": "2025-02-02", "description": "Ein Vortrag."}`
	}
	return "generated text"
}

func TestRunFullWorkflow(t *testing.T) {
	completer := &fakeCompleter{reply: metadataAware}
	w, store := newTestWorkflow(t, completer)
	talk, err := store.Save("full-run", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveTranscription(talk.Slug, "rec.txt", "Es war einmal ein Vortrag."); err != nil {
		t.Fatalf("transcription: %v", err)
	}

	res := w.Run(context.Background(), talk.Slug)
	if res.Failed() {
		t.Fatalf("workflow failed: %+v", res.Steps)
	}
	for _, name := range []string{"summary.md", "mermaid.md", "social_media.md", "cover.png", "competences.json"} {
		if _, err := store.GeneratedContent(talk.Slug, name); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	got, _ := store.Get(talk.Slug)
	if got.Speaker != "Kim Wexler" || got.Date != "2025-02-02" {
		t.Errorf("metadata not merged: %+v", got)
	}
	if got.Status != "content_generated" {
		t.Errorf("status = %q, want content_generated", got.Status)
	}
	for _, prompt := range completer.calls {
		if !strings.Contains(prompt, "Es war einmal ein Vortrag.") && !strings.Contains(prompt, "full-run") {
			t.Errorf("prompt missing transcript and title: %q", prompt)
		}
	}
}

func TestRunMissingTalk(t *testing.T) {
	w, _ := newTestWorkflow(t, &fakeCompleter{})
	res := w.Run(context.Background(), "ghost")
	if !res.Failed() {
		t.Fatal("expected failure for missing talk")
	}
	if len(res.Steps) != 1 || res.Steps[0].Name != "Load" {
		t.Fatalf("unexpected steps: %+v", res.Steps)
	}
}

func TestRunWithoutSources(t *testing.T) {
	w, store := newTestWorkflow(t, &fakeCompleter{})
	talk, err := store.Save("empty-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	res := w.Run(context.Background(), talk.Slug)
	if !res.Failed() {
		t.Fatal("expected failure without audio or transcript")
	}
}

func TestTranscribesNewAudioOnly(t *testing.T) {
	completer := &fakeCompleter{reply: metadataAware}
	w, store := newTestWorkflow(t, completer)
	talk, err := store.Save("audio-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	writeAudio(t, store, talk.Slug, "rec1.mp3")
	writeAudio(t, store, talk.Slug, "rec2.mp3")
	// rec1 already transcribed; only rec2 should hit the transcriber.
	if err := store.SaveTranscription(talk.Slug, "rec1.txt", "erster Teil"); err != nil {
		t.Fatalf("transcription: %v", err)
	}

	tr := &fakeTranscriber{}
	w.transcriber = tr
	res := w.Run(context.Background(), talk.Slug)
	if res.Failed() {
		t.Fatalf("workflow failed: %+v", res.Steps)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1", tr.calls)
	}
}

func TestMetadataKeepsExistingFields(t *testing.T) {
	completer := &fakeCompleter{reply: metadataAware}
	w, store := newTestWorkflow(t, completer)
	talk, err := store.Save("known-speaker", talks.Updates{Speaker: talks.Str("Ada Lovelace")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveTranscription(talk.Slug, "rec.txt", "Inhalt."); err != nil {
		t.Fatalf("transcription: %v", err)
	}

	if res := w.Run(context.Background(), talk.Slug); res.Failed() {
		t.Fatalf("workflow failed: %+v", res.Steps)
	}
	got, _ := store.Get(talk.Slug)
	if got.Speaker != "Ada Lovelace" {
		t.Errorf("extraction overwrote existing speaker: %q", got.Speaker)
	}
	if got.Date != "2025-02-02" {
		t.Errorf("empty date should be filled: %q", got.Date)
	}
}

func TestExistingCoverIsKept(t *testing.T) {
	completer := &fakeCompleter{reply: metadataAware}
	w, store := newTestWorkflow(t, completer)
	talk, err := store.Save("covered-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveTranscription(talk.Slug, "rec.txt", "Inhalt."); err != nil {
		t.Fatalf("transcription: %v", err)
	}
	if err := store.SaveGeneratedContent(talk.Slug, "cover.png", []byte("original")); err != nil {
		t.Fatalf("cover: %v", err)
	}

	images := &fakeImages{}
	w.images = images
	if res := w.Run(context.Background(), talk.Slug); res.Failed() {
		t.Fatalf("workflow failed: %+v", res.Steps)
	}
	if images.calls != 0 {
		t.Errorf("image generator called despite existing cover")
	}
	data, _ := store.GeneratedContent(talk.Slug, "cover.png")
	if string(data) != "original" {
		t.Error("existing cover overwritten")
	}
}

func TestUnconfiguredCollaboratorsSkip(t *testing.T) {
	store, err := talks.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	catalog, err := prompts.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w := New(store, catalog, nil, nil, nil, nil)
	talk, err := store.Save("offline-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveTranscription(talk.Slug, "rec.txt", "Inhalt."); err != nil {
		t.Fatalf("transcription: %v", err)
	}

	res := w.Run(context.Background(), talk.Slug)
	if res.Failed() {
		t.Fatalf("skipped steps must not fail: %+v", res.Steps)
	}
	got, _ := store.Get(talk.Slug)
	if got.Status == "content_generated" {
		t.Error("status advanced without any generation")
	}
}

func writeAudio(t *testing.T, store *talks.Store, slug, name string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if _, err := store.AddAudio(slug, src); err != nil {
		t.Fatalf("add audio: %v", err)
	}
}
