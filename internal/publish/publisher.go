package publish

import (
	"fmt"
	"log"
	"os"

	"github.com/TobiSchelling/mootscribe/internal/events"
	"github.com/TobiSchelling/mootscribe/internal/review"
	"github.com/TobiSchelling/mootscribe/internal/site"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

// Publisher coordinates a review decision: it persists the feedback,
// updates the publication index and regenerates the affected pages.
type Publisher struct {
	talks    *talks.Store
	events   *events.Store
	feedback *review.Store
	index    *Index
	renderer *site.Renderer
}

// New wires a Publisher from its collaborators.
func New(talkStore *talks.Store, eventStore *events.Store, feedbackStore *review.Store, index *Index, renderer *site.Renderer) *Publisher {
	return &Publisher{
		talks:    talkStore,
		events:   eventStore,
		feedback: feedbackStore,
		index:    index,
		renderer: renderer,
	}
}

// Result reports what a Publish call actually did. Warnings hold
// best-effort steps that failed without aborting the decision.
type Result struct {
	FeedbackSaved bool
	Published     bool
	PagePath      string
	Warnings      []string
}

// Publish applies a review decision for one talk. The feedback is
// persisted first and survives regardless of the outcome of the
// publication steps. On approval the talk page is rendered before the
// index is updated, so the index never references a page that failed
// to build. On denial the entry and its page are removed.
func (p *Publisher) Publish(slug string, fb *review.Feedback, approve bool) (*Result, error) {
	if fb == nil {
		fb = &review.Feedback{}
	}
	fb.Approve = approve
	if fb.Title == "" {
		if talk, _ := p.talks.Get(slug); talk != nil {
			fb.Title = talk.Name
		}
	}
	if err := p.feedback.Save(slug, fb); err != nil {
		return nil, fmt.Errorf("saving feedback for %s: %w", slug, err)
	}
	res := &Result{FeedbackSaved: true}

	if approve {
		page, err := p.renderer.RenderTalkPage(slug)
		if err != nil {
			return res, fmt.Errorf("rendering page for %s: %w", slug, err)
		}
		res.PagePath = page
		if err := p.upsert(slug); err != nil {
			return res, err
		}
		res.Published = true
	} else {
		if err := p.remove(slug); err != nil {
			return res, err
		}
		pageDir := p.renderer.TalkPageDir(slug)
		if err := os.RemoveAll(pageDir); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("removing page %s: %v", pageDir, err))
		}
	}

	res.Warnings = append(res.Warnings, p.refreshIndexes(slug)...)
	return res, nil
}

// Unpublish removes a talk from the index and deletes its page. It
// reports whether the talk was published. The feedback file is left
// alone; unpublishing is not a review decision.
func (p *Publisher) Unpublish(slug string) (bool, error) {
	if !p.index.IsPublished(slug) {
		return false, nil
	}
	if err := p.remove(slug); err != nil {
		return false, err
	}
	if err := os.RemoveAll(p.renderer.TalkPageDir(slug)); err != nil {
		log.Printf("Removing page for %s: %v", slug, err)
	}
	for _, w := range p.refreshIndexes(slug) {
		log.Printf("Unpublish %s: %s", slug, w)
	}
	return true, nil
}

// PruneResult reports the outcome of a Prune pass.
type PruneResult struct {
	Removed []string
	Kept    int
}

// Prune drops index entries whose talk no longer exists and
// regenerates the affected pages. It is safe to run at any time.
func (p *Publisher) Prune() (*PruneResult, error) {
	entries := p.index.Published()
	kept := entries[:0:0]
	res := &PruneResult{}
	for _, e := range entries {
		if !p.talks.Exists(e.Slug) {
			res.Removed = append(res.Removed, e.Slug)
			if err := os.RemoveAll(p.renderer.TalkPageDir(e.Slug)); err != nil {
				log.Printf("Removing orphaned page for %s: %v", e.Slug, err)
			}
			continue
		}
		kept = append(kept, e)
	}
	res.Kept = len(kept)
	if len(res.Removed) == 0 {
		return res, nil
	}
	if err := p.index.SetPublished(kept); err != nil {
		return nil, err
	}
	for _, w := range p.refreshIndexes("") {
		log.Printf("Prune: %s", w)
	}
	return res, nil
}

// RegenResult collects the outcome of a full regeneration pass.
// Failures are per item so one broken talk does not block the rest.
type RegenResult struct {
	TalkPages  []string
	EventPages []string
	Errors     []string
}

// RegenerateAll rebuilds every published talk page, every event page
// and the global index from current data.
func (p *Publisher) RegenerateAll() *RegenResult {
	res := &RegenResult{}
	slugs := p.index.Slugs()
	for _, slug := range slugs {
		page, err := p.renderer.RenderTalkPage(slug)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("talk %s: %v", slug, err))
			continue
		}
		res.TalkPages = append(res.TalkPages, page)
	}
	for _, ev := range p.events.List(true) {
		page, err := p.renderer.RenderEventPage(ev.Slug, slugs)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %s: %v", ev.Slug, err))
			continue
		}
		res.EventPages = append(res.EventPages, page)
	}
	if _, err := p.renderer.RenderIndex(slugs); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("index: %v", err))
	}
	return res
}

// upsert refreshes the index entry for a talk from its metadata.
func (p *Publisher) upsert(slug string) error {
	entry := Entry{Slug: slug, Title: slug}
	if talk, _ := p.talks.Get(slug); talk != nil {
		if talk.Name != "" {
			entry.Title = talk.Name
		}
		entry.Date = talk.Date
	}
	entries := p.index.Published()
	replaced := false
	for i, e := range entries {
		if e.Slug == slug {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return p.index.SetPublished(entries)
}

// remove drops a slug from the index; absent slugs are a no-op.
func (p *Publisher) remove(slug string) error {
	entries := p.index.Published()
	kept := entries[:0:0]
	for _, e := range entries {
		if e.Slug != slug {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return p.index.SetPublished(kept)
}

// refreshIndexes regenerates the global index and, when the talk
// belongs to an event, that event's page. Both are best effort: a
// stale listing is repairable by a regenerate run, so failures are
// reported as warnings rather than aborting the decision.
func (p *Publisher) refreshIndexes(slug string) []string {
	var warnings []string
	slugs := p.index.Slugs()
	if _, err := p.renderer.RenderIndex(slugs); err != nil {
		warnings = append(warnings, fmt.Sprintf("regenerating index: %v", err))
	}
	eventSlug := ""
	if slug != "" {
		if talk, _ := p.talks.Get(slug); talk != nil {
			eventSlug = talk.EventSlug
		}
	}
	if eventSlug == "" {
		return warnings
	}
	if _, err := p.renderer.RenderEventPage(eventSlug, slugs); err != nil {
		warnings = append(warnings, fmt.Sprintf("regenerating event page %s: %v", eventSlug, err))
	}
	return warnings
}
