// Package server is the review UI and admin surface: reviewers rate
// generated content and decide publication, admins inspect and repair
// the published site.
package server

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/TobiSchelling/mootscribe/internal/events"
	"github.com/TobiSchelling/mootscribe/internal/publish"
	"github.com/TobiSchelling/mootscribe/internal/review"
	"github.com/TobiSchelling/mootscribe/internal/site"
	"github.com/TobiSchelling/mootscribe/internal/slug"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server serves the review dashboard, the admin pages and the
// generated static site.
type Server struct {
	talks     *talks.Store
	events    *events.Store
	feedback  *review.Store
	index     *publish.Index
	publisher *publish.Publisher
	renderer  *site.Renderer
	pages     map[string]*template.Template
	mux       *http.ServeMux
}

// New creates a new Server.
func New(talkStore *talks.Store, eventStore *events.Store, feedbackStore *review.Store, index *publish.Index, publisher *publish.Publisher, renderer *site.Renderer) (*Server, error) {
	funcMap := template.FuncMap{
		"likertScale": func() []int { return []int{1, 2, 3, 4} },
		"pageSlug":    slug.Slugify,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"dashboard.html", "review.html", "admin.html", "password.html"}
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

	s := &Server{
		talks:     talkStore,
		events:    eventStore,
		feedback:  feedbackStore,
		index:     index,
		publisher: publisher,
		renderer:  renderer,
		pages:     pages,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleDashboard)
	s.mux.HandleFunc("/review/", s.handleReviewForm)
	s.mux.HandleFunc("/review/submit", s.handleReviewSubmit)
	s.mux.HandleFunc("/admin/public", s.handleAdmin)
	s.mux.HandleFunc("/admin/public/unpublish/", s.handleUnpublish)
	s.mux.HandleFunc("/admin/public/prune", s.handlePrune)
	s.mux.HandleFunc("/admin/public/regenerate", s.handleRegenerate)
	s.mux.HandleFunc("/api/review_feedback", s.handleFeedbackExport)
	s.mux.HandleFunc("/talk/", s.handleTalkRedirect)
	s.mux.HandleFunc("/public/", s.handlePublic)
	s.mux.HandleFunc("/resources/", s.handleResources)
}

type dashboardRow struct {
	Talk      talks.Talk
	Published bool
	Reviewed  bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var rows []dashboardRow
	for _, t := range s.talks.List() {
		rows = append(rows, dashboardRow{
			Talk:      t,
			Published: s.index.IsPublished(t.Slug),
			Reviewed:  s.feedback.Get(t.Slug) != nil,
		})
	}
	s.render(w, "dashboard.html", map[string]any{"Rows": rows})
}

// ratingField is one Likert question on the review form.
type ratingField struct {
	Name  string
	Label string
	Value int // 0 when unanswered
}

func (s *Server) handleReviewForm(w http.ResponseWriter, r *http.Request) {
	talkSlug := strings.TrimPrefix(r.URL.Path, "/review/")
	if !validTalkSlug(talkSlug) {
		http.NotFound(w, r)
		return
	}
	talk, err := s.talks.Get(talkSlug)
	if err != nil || talk == nil {
		http.NotFound(w, r)
		return
	}

	fb := s.feedback.Get(talkSlug)
	if fb == nil {
		fb = &review.Feedback{Quotes: review.QuotesRatings{Present: true}}
	}

	s.render(w, "review.html", map[string]any{
		"Talk":         talk,
		"Feedback":     fb,
		"Approve":      s.index.IsPublished(talkSlug),
		"QuotesAbsent": !fb.Quotes.Present,
		"Sections":     s.formSections(fb),
		"TimeSpent":    derefInt(fb.TimeSpentMin),
	})
}

type formSection struct {
	Title  string
	Fields []ratingField
}

func (s *Server) formSections(fb *review.Feedback) []formSection {
	return []formSection{
		{"Zusammenfassung", []ratingField{
			{"summary.correctness", "Fachlich korrekt", derefInt(fb.Summary.Correctness)},
			{"summary.usefulness", "Nuetzlich", derefInt(fb.Summary.Usefulness)},
			{"summary.clarity", "Verstaendlich", derefInt(fb.Summary.Clarity)},
		}},
		{"Zitate", []ratingField{
			{"quotes.correctness", "Korrekt wiedergegeben", derefInt(fb.Quotes.Correctness)},
			{"quotes.usefulness", "Nuetzlich", derefInt(fb.Quotes.Usefulness)},
		}},
		{"Diagramme", []ratingField{
			{"diagram.correctness", "Fachlich korrekt", derefInt(fb.Diagram.Correctness)},
			{"diagram.usefulness", "Nuetzlich", derefInt(fb.Diagram.Usefulness)},
			{"diagram.clarity", "Verstaendlich", derefInt(fb.Diagram.Clarity)},
		}},
		{"Titelbild", []ratingField{
			{"image.relevance", "Passend zum Thema", derefInt(fb.Image.Relevance)},
			{"image.quality", "Qualitaet", derefInt(fb.Image.Quality)},
		}},
		{"Transkript", []ratingField{
			{"transcript.completeness", "Vollstaendig", derefInt(fb.Transcript.Completeness)},
			{"transcript.correctness", "Korrekt", derefInt(fb.Transcript.Correctness)},
		}},
		{"Gesamt", []ratingField{
			{"overall.overall_usefulness", "Gesamtnutzen", derefInt(fb.Overall.OverallUsefulness)},
			{"overall.practicality", "Praxistauglich", derefInt(fb.Overall.Practicality)},
			{"overall.trust", "Vertrauenswuerdig", derefInt(fb.Overall.Trust)},
		}},
	}
}

func (s *Server) handleReviewSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	talkSlug := strings.TrimSpace(r.FormValue("slug"))
	if !validTalkSlug(talkSlug) {
		http.Error(w, "invalid talk slug", http.StatusBadRequest)
		return
	}

	fb := &review.Feedback{
		Summary: review.SectionRatings{
			Correctness: formRating(r, "summary.correctness"),
			Usefulness:  formRating(r, "summary.usefulness"),
			Clarity:     formRating(r, "summary.clarity"),
		},
		Quotes: review.QuotesRatings{
			Present:     r.FormValue("quotes_none") == "",
			Correctness: formRating(r, "quotes.correctness"),
			Usefulness:  formRating(r, "quotes.usefulness"),
		},
		Diagram: review.SectionRatings{
			Correctness: formRating(r, "diagram.correctness"),
			Usefulness:  formRating(r, "diagram.usefulness"),
			Clarity:     formRating(r, "diagram.clarity"),
		},
		Image: review.ImageRatings{
			Relevance: formRating(r, "image.relevance"),
			Quality:   formRating(r, "image.quality"),
		},
		Transcript: review.TranscriptRatings{
			Completeness: formRating(r, "transcript.completeness"),
			Correctness:  formRating(r, "transcript.correctness"),
		},
		Overall: review.OverallRatings{
			OverallUsefulness: formRating(r, "overall.overall_usefulness"),
			Practicality:      formRating(r, "overall.practicality"),
			Trust:             formRating(r, "overall.trust"),
		},
		TimeSpentMin: formRating(r, "time_spent_min"),
		Comments:     strings.TrimSpace(r.FormValue("comments")),
	}
	approve := r.FormValue("decision") == "approve"

	res, err := s.publisher.Publish(talkSlug, fb, approve)
	if err != nil {
		log.Printf("Publishing %s: %v", talkSlug, err)
		status := http.StatusInternalServerError
		if res != nil && res.FeedbackSaved {
			// The review itself is safe; only publication failed.
			status = http.StatusBadGateway
		}
		http.Error(w, "Publikation fehlgeschlagen, Feedback wurde gespeichert", status)
		return
	}
	for _, warn := range res.Warnings {
		log.Printf("Publish %s: %s", talkSlug, warn)
	}
	http.Redirect(w, r, "/?saved=1", http.StatusFound)
}

type adminRow struct {
	Entry  publish.Entry
	Broken bool
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	var rows []adminRow
	for _, e := range s.index.Published() {
		rows = append(rows, adminRow{Entry: e, Broken: !s.talks.Exists(e.Slug)})
	}
	s.render(w, "admin.html", map[string]any{"Rows": rows})
}

// The admin maintenance actions accept GET alongside POST: the admin
// page submits forms, but the actions are also documented as plain
// URLs for curl and bookmarks, and all of them are idempotent.
func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	talkSlug := strings.TrimPrefix(r.URL.Path, "/admin/public/unpublish/")
	if !validTalkSlug(talkSlug) {
		http.Error(w, "invalid talk slug", http.StatusBadRequest)
		return
	}
	if _, err := s.publisher.Unpublish(talkSlug); err != nil {
		log.Printf("Unpublishing %s: %v", talkSlug, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/public", http.StatusFound)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	res, err := s.publisher.Prune()
	if err != nil {
		log.Printf("Pruning: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	log.Printf("Prune removed %d entries, kept %d", len(res.Removed), res.Kept)
	http.Redirect(w, r, "/admin/public", http.StatusFound)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	res := s.publisher.RegenerateAll()
	for _, e := range res.Errors {
		log.Printf("Regenerate: %s", e)
	}
	http.Redirect(w, r, "/admin/public", http.StatusFound)
}

// handleFeedbackExport returns all feedback documents of one schema
// version as JSON, for offline analysis.
func (s *Server) handleFeedbackExport(w http.ResponseWriter, r *http.Request) {
	version := review.SchemaVersion
	if v := r.URL.Query().Get("schema_version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid schema_version", http.StatusBadRequest)
			return
		}
		version = parsed
	}

	entries := s.feedback.ExportAll(version, s.index.IsPublished)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"schema_version": version,
		"feedback":       entries,
	}); err != nil {
		log.Printf("Encoding feedback export: %v", err)
	}
}

// handleTalkRedirect maps the short /talk/<slug> URL onto the static
// page, so links stay stable even if the page layout moves.
func (s *Server) handleTalkRedirect(w http.ResponseWriter, r *http.Request) {
	requested := strings.TrimPrefix(r.URL.Path, "/talk/")
	if requested == "" {
		http.NotFound(w, r)
		return
	}
	// Links use the slugified page form; the index stores folder slugs.
	// Accept either so both resolve to the same page.
	for _, e := range s.index.Published() {
		if e.Slug == requested || slug.Slugify(e.Slug) == requested {
			http.Redirect(w, r, "/public/talks/"+slug.Slugify(e.Slug)+"/", http.StatusFound)
			return
		}
	}
	http.NotFound(w, r)
}

// handlePublic serves the generated site. Pages of protected events
// require the event password once; access is then remembered in a
// cookie scoped to the event.
func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/public/")

	if eventSlug, ok := strings.CutPrefix(rel, "events/"); ok {
		eventSlug, _, _ = strings.Cut(eventSlug, "/")
		if !s.eventAccessible(w, r, eventSlug) {
			return
		}
	}

	http.StripPrefix("/public/", http.FileServer(http.Dir(s.renderer.PublicDir()))).ServeHTTP(w, r)
}

// eventAccessible enforces the password gate for protected events. It
// writes the response itself when access is denied.
func (s *Server) eventAccessible(w http.ResponseWriter, r *http.Request, pageSlug string) bool {
	ev := s.eventByPageSlug(pageSlug)
	if ev == nil || ev.IsPublic {
		return true
	}

	cookieName := "event_access_" + ev.Slug
	if c, err := r.Cookie(cookieName); err == nil && c.Value == ev.PasswordHash {
		return true
	}

	if password := r.FormValue("password"); password != "" {
		if s.events.ValidateAccess(ev.Slug, password) {
			http.SetCookie(w, &http.Cookie{
				Name:     cookieName,
				Value:    ev.PasswordHash,
				Path:     "/public/events/",
				HttpOnly: true,
			})
			return true
		}
	}

	w.WriteHeader(http.StatusUnauthorized)
	s.render(w, "password.html", map[string]any{
		"EventTitle": ev.Title,
		"Action":     r.URL.Path,
	})
	return false
}

// eventByPageSlug finds the event whose slugified form matches the
// page path segment.
func (s *Server) eventByPageSlug(pageSlug string) *events.Event {
	for _, ev := range s.events.List(true) {
		if slug.Slugify(ev.Slug) == pageSlug {
			event := ev
			return &event
		}
	}
	return nil
}

// handleResources serves talk artifacts (summaries, transcripts,
// covers) linked from the generated pages. Only talk files are
// exposed; metadata and feedback documents stay private.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/resources/")
	if !strings.HasPrefix(rel, "talks/") {
		http.NotFound(w, r)
		return
	}
	base := path.Base(rel)
	if base == "metadata.json" || base == "review_feedback.json" {
		http.NotFound(w, r)
		return
	}
	http.StripPrefix("/resources/talks/", http.FileServer(http.Dir(s.talks.BaseDir()))).ServeHTTP(w, r)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// validTalkSlug rejects identifiers that could leave the talks
// directory. Talk slugs are filesystem-derived single path segments.
func validTalkSlug(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

func formRating(r *http.Request, name string) review.Rating {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Serve starts the HTTP server on the given host and port.
func Serve(s *Server, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
