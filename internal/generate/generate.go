// Package generate runs the content generation workflow for one talk:
// transcription, prompt-driven text artifacts, metadata extraction,
// competence analysis and a cover image.
package generate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/mootscribe/internal/content"
	"github.com/TobiSchelling/mootscribe/internal/genai"
	"github.com/TobiSchelling/mootscribe/internal/prompts"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

// StepResult holds the result of a single workflow step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full workflow run for one talk.
type Result struct {
	Slug  string
	Steps []StepResult
}

// Failed reports whether any step errored.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Workflow drives generation for talks. Optional collaborators may be
// nil; the matching steps are then skipped with a note.
type Workflow struct {
	talks       *talks.Store
	catalog     *prompts.Catalog
	completer   genai.Completer
	transcriber genai.Transcriber
	images      genai.ImageGenerator
	competences genai.CompetenceAnalyzer
}

// New creates a Workflow.
func New(talkStore *talks.Store, catalog *prompts.Catalog, completer genai.Completer, transcriber genai.Transcriber, images genai.ImageGenerator, competences genai.CompetenceAnalyzer) *Workflow {
	return &Workflow{
		talks:       talkStore,
		catalog:     catalog,
		completer:   completer,
		transcriber: transcriber,
		images:      images,
		competences: competences,
	}
}

// Run executes the workflow for one talk. Steps are independent where
// possible: a failed text artifact does not stop the remaining ones,
// but everything downstream of the transcript needs a transcript.
func (w *Workflow) Run(ctx context.Context, slug string) *Result {
	r := &Result{Slug: slug}

	talk, err := w.talks.Get(slug)
	if err != nil || talk == nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: fmt.Errorf("talk %q not found", slug)})
		return r
	}

	step := w.runTranscribe(ctx, slug)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	transcriptPath := content.CombineTranscripts(filepath.Join(w.talks.Dir(slug), "transcription"))
	text := readTranscript(transcriptPath)
	if strings.TrimSpace(text) == "" {
		r.Steps = append(r.Steps, StepResult{Name: "Transcript", Err: fmt.Errorf("no transcript available for %s", slug)})
		return r
	}

	for _, id := range w.catalog.IDs() {
		p, _ := w.catalog.Get(id)
		switch id {
		case "metadata":
			r.Steps = append(r.Steps, w.runMetadata(ctx, slug, p, text))
		case "image":
			r.Steps = append(r.Steps, w.runImage(ctx, slug, talk, p))
		default:
			r.Steps = append(r.Steps, w.runTextArtifact(ctx, slug, talk, p, text))
		}
	}

	r.Steps = append(r.Steps, w.runCompetences(ctx, slug, text))

	if !r.Failed() && w.completer != nil && w.completer.IsConfigured() {
		if err := w.talks.SetStatus(slug, "content_generated"); err != nil {
			log.Printf("Updating status for %s: %v", slug, err)
		}
	}
	return r
}

// runTranscribe transcribes audio files that have no transcript yet.
func (w *Workflow) runTranscribe(ctx context.Context, slug string) StepResult {
	step := StepResult{Name: "Transcribe"}

	audio := w.talks.ListFiles(slug, "audio")
	existing := w.talks.ListFiles(slug, "transcription")
	if len(audio) == 0 {
		if len(existing) == 0 {
			step.Err = fmt.Errorf("talk %s has neither audio nor transcription", slug)
			return step
		}
		step.Summary = fmt.Sprintf("no audio, %d existing transcript(s)", len(existing))
		return step
	}
	if w.transcriber == nil {
		step.Summary = "transcriber not configured, skipped"
		return step
	}

	done := make(map[string]bool, len(existing))
	for _, name := range existing {
		done[strings.TrimSuffix(name, ".txt")] = true
	}

	transcribed := 0
	for _, name := range audio {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if done[base] {
			continue
		}
		text, err := w.transcriber.Transcribe(ctx, filepath.Join(w.talks.Dir(slug), "audio", name))
		if err != nil {
			step.Err = fmt.Errorf("transcribing %s: %w", name, err)
			return step
		}
		if err := w.talks.SaveTranscription(slug, base+".txt", text); err != nil {
			step.Err = err
			return step
		}
		transcribed++
	}
	step.Summary = fmt.Sprintf("%d file(s) transcribed, %d skipped", transcribed, len(audio)-transcribed)
	return step
}

// runTextArtifact runs one prompt and stores its output file.
func (w *Workflow) runTextArtifact(ctx context.Context, slug string, talk *talks.Talk, p prompts.Prompt, transcript string) StepResult {
	step := StepResult{Name: p.Name}
	if w.completer == nil || !w.completer.IsConfigured() {
		step.Summary = "text model not configured, skipped"
		return step
	}
	if p.Output == "" {
		step.Err = fmt.Errorf("prompt %s has no output file", p.ID)
		return step
	}

	prompt, err := p.Format(map[string]string{
		"transcript": transcript,
		"title":      talk.Name,
	})
	if err != nil {
		step.Err = err
		return step
	}
	out, err := w.completer.Complete(ctx, p.System, prompt, p.MaxTokens)
	if err != nil {
		step.Err = fmt.Errorf("generating %s: %w", p.ID, err)
		return step
	}
	if err := w.talks.SaveGeneratedContent(slug, p.Output, []byte(out)); err != nil {
		step.Err = err
		return step
	}
	step.Summary = fmt.Sprintf("wrote %s (%d bytes)", p.Output, len(out))
	return step
}

// runMetadata extracts talk metadata from the transcript and merges it
// into metadata.json. Existing non-empty fields win over extraction.
func (w *Workflow) runMetadata(ctx context.Context, slug string, p prompts.Prompt, transcript string) StepResult {
	step := StepResult{Name: p.Name}
	if w.completer == nil || !w.completer.IsConfigured() {
		step.Summary = "text model not configured, skipped"
		return step
	}

	prompt, err := p.Format(map[string]string{"transcript": transcript})
	if err != nil {
		step.Err = err
		return step
	}
	out, err := w.completer.Complete(ctx, p.System, prompt, p.MaxTokens)
	if err != nil {
		step.Err = fmt.Errorf("extracting metadata: %w", err)
		return step
	}
	fields, err := genai.ParseJSONResponse(out)
	if err != nil {
		step.Err = fmt.Errorf("parsing metadata: %w", err)
		return step
	}

	talk, err := w.talks.Get(slug)
	if err != nil || talk == nil {
		step.Err = fmt.Errorf("talk %q vanished during generation", slug)
		return step
	}
	updates := talks.Updates{}
	applied := 0
	if v := stringField(fields, "speaker"); v != "" && talk.Speaker == "" {
		updates.Speaker = talks.Str(v)
		applied++
	}
	if v := stringField(fields, "date"); v != "" && talk.Date == "" {
		updates.Date = talks.Str(v)
		applied++
	}
	if v := stringField(fields, "description"); v != "" && talk.Description == "" {
		updates.Description = talks.Str(v)
		applied++
	}
	if applied > 0 {
		if err := w.talks.UpdateMetadata(slug, updates); err != nil {
			step.Err = err
			return step
		}
	}
	step.Summary = fmt.Sprintf("%d field(s) filled", applied)
	return step
}

// runImage generates a cover image once; an existing cover is kept.
func (w *Workflow) runImage(ctx context.Context, slug string, talk *talks.Talk, p prompts.Prompt) StepResult {
	step := StepResult{Name: p.Name}
	if w.images == nil {
		step.Summary = "image model not configured, skipped"
		return step
	}
	if content.Resolve(w.talks.Dir(slug)).Cover != "" {
		step.Summary = "cover exists, skipped"
		return step
	}

	prompt, err := p.Format(map[string]string{"title": talk.Name})
	if err != nil {
		step.Err = err
		return step
	}
	img, err := w.images.GenerateImage(ctx, prompt)
	if err != nil {
		step.Err = fmt.Errorf("generating cover: %w", err)
		return step
	}
	if err := w.talks.SaveGeneratedContent(slug, "cover.png", img); err != nil {
		step.Err = err
		return step
	}
	step.Summary = fmt.Sprintf("wrote cover.png (%d bytes)", len(img))
	return step
}

// runCompetences calls the competence service and stores its JSON.
func (w *Workflow) runCompetences(ctx context.Context, slug, transcript string) StepResult {
	step := StepResult{Name: "Kompetenzen"}
	if w.competences == nil {
		step.Summary = "competence service not configured, skipped"
		return step
	}

	doc, err := w.competences.Analyze(ctx, transcript)
	if err != nil {
		step.Err = fmt.Errorf("analyzing competences: %w", err)
		return step
	}
	if err := w.talks.SaveGeneratedContent(slug, "competences.json", doc); err != nil {
		step.Err = err
		return step
	}
	step.Summary = fmt.Sprintf("wrote competences.json (%d bytes)", len(doc))
	return step
}

func readTranscript(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Reading transcript %s: %v", path, err)
		return ""
	}
	return string(data)
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
