// Package site renders the public static pages: one page per published
// talk, one per event, and the global index. Markdown is pre-rendered to
// HTML at generation time so public pages carry no client-side markdown
// dependency beyond the diagram-rendering script.
package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/TobiSchelling/mootscribe/internal/content"
	"github.com/TobiSchelling/mootscribe/internal/events"
	"github.com/TobiSchelling/mootscribe/internal/slug"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

//go:embed templates/*.html
var templateFS embed.FS

var mermaidFence = regexp.MustCompile("(?is)```\\s*mermaid\\s*\\n(.*?)\\n\\s*```")

// Options configures a Renderer.
type Options struct {
	ResourcesDir string
	Title        string
	Description  string
	// BaseURL is the absolute site URL for og: tags; optional.
	BaseURL string
	// ProxyPath prefixes all generated links when the site is served
	// behind a path-rewriting proxy.
	ProxyPath string
	Language  string
}

// Renderer generates static HTML pages from the talk and event stores.
// Pages are derived artifacts: always regenerable, never authoritative.
type Renderer struct {
	opts   Options
	talks  *talks.Store
	events *events.Store
	pages  map[string]*template.Template
	md     goldmark.Markdown
}

// New creates a Renderer over the given stores.
func New(opts Options, talkStore *talks.Store, eventStore *events.Store) (*Renderer, error) {
	opts.ProxyPath = strings.TrimRight(opts.ProxyPath, "/")
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Language == "" {
		opts.Language = "de"
	}

	base, err := template.New("base.html").ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"talk.html", "event.html", "index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(ghtml.WithUnsafe()),
	)

	return &Renderer{
		opts:   opts,
		talks:  talkStore,
		events: eventStore,
		pages:  pages,
		md:     md,
	}, nil
}

// PublicDir returns the root of the generated site.
func (r *Renderer) PublicDir() string {
	return filepath.Join(r.opts.ResourcesDir, "public")
}

// TalkPageDir returns the output directory for a talk page. The path
// uses a slugified form of the talk identifier so lookups are resilient
// to unicode and casing variance.
func (r *Renderer) TalkPageDir(talkSlug string) string {
	return filepath.Join(r.PublicDir(), "talks", slug.Slugify(talkSlug))
}

// EventPageDir returns the output directory for an event page.
func (r *Renderer) EventPageDir(eventSlug string) string {
	return filepath.Join(r.PublicDir(), "events", slug.Slugify(eventSlug))
}

type pageMeta struct {
	SiteTitle string
	Language  string
	ProxyPath string
	HomeURL   string
	DiagramJS bool
	OGTitle   string
	OGURL     string
	OGImage   string
}

type resourceLink struct {
	Label string
	URL   string
}

type talkPage struct {
	pageMeta
	Title         string
	MetaLine      string
	CoverURL      string
	SummaryHTML   template.HTML
	DiagramHTML   template.HTML
	Skills        []skillLink
	TranscriptURL string
	Resources     []resourceLink
	Date          string
	Speaker       string
	Location      string
	Link          string
	EventTitle    string
	EventURL      string
}

type skillLink struct {
	Title string
	URI   string
}

// RenderTalkPage generates the public page for one talk. It fails when
// the talk does not exist; the publisher relies on that to avoid
// marking a pageless talk as published.
func (r *Renderer) RenderTalkPage(talkSlug string) (string, error) {
	talk, err := r.talks.Get(talkSlug)
	if err != nil {
		return "", err
	}
	if talk == nil {
		return "", fmt.Errorf("talk %q not found", talkSlug)
	}

	artifacts := content.Resolve(r.talks.Dir(talkSlug))

	page := talkPage{
		pageMeta: r.meta(),
		Title:    talk.Name,
		Date:     talk.Date,
		Speaker:  talk.Speaker,
		Location: talk.Location,
		Link:     talk.Link,
	}
	page.DiagramJS = true

	// Owning event supplies fallbacks for missing talk fields. The
	// reference is weak; a dangling slug just means no event context.
	if talk.EventSlug != "" {
		if ev := r.events.Get(talk.EventSlug); ev != nil {
			if page.Location == "" {
				page.Location = ev.Location
			}
			page.EventTitle = ev.Title
			if ev.IsPublic {
				page.EventURL = r.opts.ProxyPath + "/public/events/" + slug.Slugify(ev.Slug) + "/"
			}
		}
	}

	var metaParts []string
	for _, p := range []string{page.Date, page.Speaker, page.Location} {
		if p != "" {
			metaParts = append(metaParts, p)
		}
	}
	page.MetaLine = strings.Join(metaParts, " | ")

	if artifacts.Summary != "" {
		if text := readText(artifacts.Summary); text != "" {
			page.SummaryHTML = r.renderMarkdown(text)
			page.Resources = append(page.Resources, resourceLink{"Summary (Markdown)", r.resourceURL(artifacts.Summary)})
		}
	}
	if artifacts.Diagram != "" {
		if text := readText(artifacts.Diagram); text != "" {
			page.DiagramHTML = r.renderMarkdown(text)
			page.Resources = append(page.Resources, resourceLink{"Diagramme (Markdown)", r.resourceURL(artifacts.Diagram)})
		}
	}
	if artifacts.Transcript != "" {
		page.TranscriptURL = r.resourceURL(artifacts.Transcript)
		page.Resources = append(page.Resources, resourceLink{"Transkript (TXT)", page.TranscriptURL})
	}
	if artifacts.Cover != "" {
		page.CoverURL = r.coverURL(artifacts.Cover)
		page.OGTitle = talk.Name
		page.OGImage = page.CoverURL
		page.OGURL = r.absoluteURL("/talk/" + slug.Slugify(talkSlug))
	}
	page.Skills = parseSkills(artifacts.Competences)

	outDir := r.TalkPageDir(talkSlug)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating talk page directory: %w", err)
	}
	outFile := filepath.Join(outDir, "index.html")
	if err := r.writePage("talk.html", outFile, page); err != nil {
		return "", err
	}
	return outFile, nil
}

type card struct {
	URL      string
	CoverURL string
	Title    string
	Date     string
	Speaker  string
	Desc     string
	Location string
}

type eventPage struct {
	pageMeta
	Title       string
	Description string
	DateRange   string
	Location    string
	Organizer   string
	Website     string
	Cards       []card
}

// RenderEventPage generates the page for one event, listing its
// published talks. publishedSlugs is the authoritative published set.
func (r *Renderer) RenderEventPage(eventSlug string, publishedSlugs []string) (string, error) {
	ev := r.events.Get(eventSlug)
	if ev == nil {
		return "", fmt.Errorf("event %q not found", eventSlug)
	}

	var owned []string
	for _, ts := range publishedSlugs {
		talk, _ := r.talks.Get(ts)
		if talk != nil && talk.EventSlug == eventSlug {
			owned = append(owned, ts)
		}
	}

	page := eventPage{
		pageMeta:    r.meta(),
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Organizer:   ev.Organizer,
		Website:     ev.Website,
		Cards:       r.cards(owned),
	}
	switch {
	case ev.StartDate != "" && ev.EndDate != "" && ev.StartDate != ev.EndDate:
		page.DateRange = ev.StartDate + " – " + ev.EndDate
	case ev.StartDate != "":
		page.DateRange = ev.StartDate
	}

	outDir := r.EventPageDir(eventSlug)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating event page directory: %w", err)
	}
	outFile := filepath.Join(outDir, "index.html")
	if err := r.writePage("event.html", outFile, page); err != nil {
		return "", err
	}
	return outFile, nil
}

type indexPage struct {
	pageMeta
	Title       string
	Description string
	Cards       []card
}

// RenderIndex generates the global index over all published talks.
func (r *Renderer) RenderIndex(publishedSlugs []string) (string, error) {
	page := indexPage{
		pageMeta:    r.meta(),
		Title:       r.opts.Title,
		Description: r.opts.Description,
		Cards:       r.cards(publishedSlugs),
	}

	if err := os.MkdirAll(r.PublicDir(), 0o755); err != nil {
		return "", fmt.Errorf("creating public directory: %w", err)
	}
	outFile := filepath.Join(r.PublicDir(), "index.html")
	if err := r.writePage("index.html", outFile, page); err != nil {
		return "", err
	}
	return outFile, nil
}

// cards builds talk cards sorted by date descending; talks without a
// date sort last, slug breaks ties.
func (r *Renderer) cards(slugs []string) []card {
	type dated struct {
		card card
		date string
		slug string
	}
	var items []dated
	for _, ts := range slugs {
		talk, _ := r.talks.Get(ts)
		if talk == nil {
			continue
		}
		desc := talk.Description
		if len([]rune(desc)) > 160 {
			desc = string([]rune(desc)[:160]) + "…"
		}
		c := card{
			URL:      r.opts.ProxyPath + "/talk/" + slug.Slugify(ts),
			Title:    talk.Name,
			Date:     talk.Date,
			Speaker:  talk.Speaker,
			Desc:     desc,
			Location: talk.Location,
		}
		if artifacts := content.Resolve(r.talks.Dir(ts)); artifacts.Cover != "" {
			c.CoverURL = r.resourceURL(artifacts.Cover)
		}
		items = append(items, dated{card: c, date: talk.Date, slug: ts})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ki, iOK := dateKey(items[i].date)
		kj, jOK := dateKey(items[j].date)
		if iOK != jOK {
			return iOK // dated entries before undated
		}
		if ki != kj {
			return ki > kj // newest first
		}
		return items[i].slug < items[j].slug
	})

	cards := make([]card, len(items))
	for i, it := range items {
		cards[i] = it.card
	}
	return cards
}

func dateKey(date string) (int64, bool) {
	if date == "" {
		return 0, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func (r *Renderer) meta() pageMeta {
	return pageMeta{
		SiteTitle: r.opts.Title,
		Language:  r.opts.Language,
		ProxyPath: r.opts.ProxyPath,
		HomeURL:   r.opts.ProxyPath + "/public/",
	}
}

// renderMarkdown pre-renders markdown to HTML, rewriting mermaid code
// fences into <div class="mermaid"> blocks first so the client-side
// diagram renderer picks them up.
func (r *Renderer) renderMarkdown(text string) template.HTML {
	processed := mermaidFence.ReplaceAllStringFunc(text, func(m string) string {
		sub := mermaidFence.FindStringSubmatch(m)
		return "<div class=\"mermaid\">\n" + strings.TrimSpace(sub[1]) + "\n</div>"
	})

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(processed), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
	}
	return template.HTML(buf.String()) //nolint:gosec
}

func (r *Renderer) writePage(name, outFile string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outFile, err)
	}
	return nil
}

// resourceURL maps an absolute artifact path to its public /resources/
// URL.
func (r *Renderer) resourceURL(path string) string {
	rel, err := filepath.Rel(r.opts.ResourcesDir, path)
	if err != nil {
		return ""
	}
	return r.opts.ProxyPath + "/resources/" + filepath.ToSlash(rel)
}

// coverURL prefers an absolute URL so social scrapers resolve og:image.
func (r *Renderer) coverURL(path string) string {
	rel, err := filepath.Rel(r.opts.ResourcesDir, path)
	if err != nil {
		return ""
	}
	if r.opts.BaseURL != "" {
		return r.opts.BaseURL + "/resources/" + filepath.ToSlash(rel)
	}
	return r.opts.ProxyPath + "/resources/" + filepath.ToSlash(rel)
}

func (r *Renderer) absoluteURL(path string) string {
	if r.opts.BaseURL != "" {
		return r.opts.BaseURL + path
	}
	return r.opts.ProxyPath + path
}

func readText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseSkills extracts ESCO skill links from a competences.json file.
// Unreadable or malformed documents yield no skills.
func parseSkills(path string) []skillLink {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc struct {
		LearningOutcomes struct {
			Skills []struct {
				Title string `json:"title"`
				URI   string `json:"uri"`
			} `json:"skills"`
		} `json:"learning_outcomes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	var skills []skillLink
	for _, s := range doc.LearningOutcomes.Skills {
		if s.Title != "" && s.URI != "" {
			skills = append(skills, skillLink{Title: s.Title, URI: s.URI})
		}
	}
	return skills
}
