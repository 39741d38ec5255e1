package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/mootscribe/internal/events"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

func newTestRenderer(t *testing.T) (*Renderer, *talks.Store, *events.Store, string) {
	t.Helper()
	base := t.TempDir()
	talkStore, err := talks.NewStore(base)
	if err != nil {
		t.Fatalf("talk store: %v", err)
	}
	eventStore, err := events.NewStore(base)
	if err != nil {
		t.Fatalf("event store: %v", err)
	}
	r, err := New(Options{ResourcesDir: base, Title: "MootScribe", Description: "Talks"}, talkStore, eventStore)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return r, talkStore, eventStore, base
}

func pageContent(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading page %s: %v", path, err)
	}
	return string(data)
}

func TestRenderTalkPage(t *testing.T) {
	r, talkStore, _, _ := newTestRenderer(t)
	talk, err := talkStore.Save("Platform Engineering", talks.Updates{
		Speaker: talks.Str("Dana Meyer"),
		Date:    talks.Str("2025-05-12"),
	})
	if err != nil {
		t.Fatalf("save talk: %v", err)
	}
	if err := talkStore.SaveGeneratedContent(talk.Slug, "summary.md", []byte("## Kernaussagen\n\nPlattformen statt Tickets.")); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	page, err := r.RenderTalkPage(talk.Slug)
	if err != nil {
		t.Fatalf("RenderTalkPage: %v", err)
	}
	html := pageContent(t, page)
	for _, want := range []string{"Platform Engineering", "Dana Meyer", "2025-05-12", "Plattformen statt Tickets."} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if !strings.Contains(html, "2025-05-12 | Dana Meyer") {
		t.Error("meta line not joined in date/speaker order")
	}
}

func TestRenderTalkPageMissingTalk(t *testing.T) {
	r, _, _, _ := newTestRenderer(t)
	if _, err := r.RenderTalkPage("nope"); err == nil {
		t.Fatal("expected error for missing talk")
	}
}

func TestRenderTalkPageEventFallback(t *testing.T) {
	r, talkStore, eventStore, _ := newTestRenderer(t)
	ev, err := eventStore.Create("DevOps Days", events.Event{Location: "Wien"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	talk, err := talkStore.Save("GitOps in Practice", talks.Updates{EventSlug: talks.Str(ev.Slug)})
	if err != nil {
		t.Fatalf("save talk: %v", err)
	}

	page, err := r.RenderTalkPage(talk.Slug)
	if err != nil {
		t.Fatalf("RenderTalkPage: %v", err)
	}
	html := pageContent(t, page)
	if !strings.Contains(html, "Wien") {
		t.Error("event location fallback not applied")
	}
	if !strings.Contains(html, "DevOps Days") {
		t.Error("event title missing from page")
	}
}

func TestRenderTalkPageWrapsMermaid(t *testing.T) {
	r, talkStore, _, _ := newTestRenderer(t)
	talk, err := talkStore.Save("Event Sourcing", talks.Updates{})
	if err != nil {
		t.Fatalf("save talk: %v", err)
	}
	diagram := "```mermaid\ngraph TD\nA-->B\n```"
	if err := talkStore.SaveGeneratedContent(talk.Slug, "mermaid.md", []byte(diagram)); err != nil {
		t.Fatalf("save diagram: %v", err)
	}

	page, err := r.RenderTalkPage(talk.Slug)
	if err != nil {
		t.Fatalf("RenderTalkPage: %v", err)
	}
	html := pageContent(t, page)
	if !strings.Contains(html, `<div class="mermaid">`) {
		t.Error("mermaid fence not converted to a div")
	}
	if strings.Contains(html, "```mermaid") {
		t.Error("raw fence leaked into page")
	}
}

func TestRenderIndexSortsNewestFirst(t *testing.T) {
	r, talkStore, _, _ := newTestRenderer(t)
	var slugs []string
	for _, tc := range []struct{ name, date string }{
		{"old-talk", "2024-01-10"},
		{"new-talk", "2025-08-01"},
		{"undated-talk", ""},
	} {
		updates := talks.Updates{}
		if tc.date != "" {
			updates.Date = talks.Str(tc.date)
		}
		talk, err := talkStore.Save(tc.name, updates)
		if err != nil {
			t.Fatalf("save %s: %v", tc.name, err)
		}
		slugs = append(slugs, talk.Slug)
	}

	page, err := r.RenderIndex(slugs)
	if err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	html := pageContent(t, page)
	newPos := strings.Index(html, "new-talk")
	oldPos := strings.Index(html, "old-talk")
	undatedPos := strings.Index(html, "undated-talk")
	if newPos < 0 || oldPos < 0 || undatedPos < 0 {
		t.Fatal("expected all three talks on the index")
	}
	if !(newPos < oldPos && oldPos < undatedPos) {
		t.Errorf("order newest-first with undated last violated: new=%d old=%d undated=%d", newPos, oldPos, undatedPos)
	}
}

func TestRenderIndexSkipsUnpublished(t *testing.T) {
	r, talkStore, _, _ := newTestRenderer(t)
	published, err := talkStore.Save("visible-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := talkStore.Save("hidden-talk", talks.Updates{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	page, err := r.RenderIndex([]string{published.Slug})
	if err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	html := pageContent(t, page)
	if !strings.Contains(html, "visible-talk") {
		t.Error("published talk missing")
	}
	if strings.Contains(html, "hidden-talk") {
		t.Error("unpublished talk leaked onto the index")
	}
}

func TestRenderEventPageListsOwnTalksOnly(t *testing.T) {
	r, talkStore, eventStore, _ := newTestRenderer(t)
	ev, err := eventStore.Create("CloudConf", events.Event{})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	inside, err := talkStore.Save("serverless-talk", talks.Updates{EventSlug: talks.Str(ev.Slug)})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	outside, err := talkStore.Save("unrelated-talk", talks.Updates{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	page, err := r.RenderEventPage(ev.Slug, []string{inside.Slug, outside.Slug})
	if err != nil {
		t.Fatalf("RenderEventPage: %v", err)
	}
	html := pageContent(t, page)
	if !strings.Contains(html, "serverless-talk") {
		t.Error("event's own talk missing")
	}
	if strings.Contains(html, "unrelated-talk") {
		t.Error("foreign talk listed on event page")
	}
	if !strings.Contains(html, "CloudConf") {
		t.Error("event title missing")
	}
}

func TestTalkPageDirUsesSlugifiedPath(t *testing.T) {
	r, _, _, base := newTestRenderer(t)
	got := r.TalkPageDir("Kafka_Grundlagen")
	want := filepath.Join(base, "public", "talks", "kafka-grundlagen")
	if got != want {
		t.Errorf("TalkPageDir = %q, want %q", got, want)
	}
}
