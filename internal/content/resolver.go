// Package content locates a talk's canonical generated artifacts among
// loosely-structured files and combines multi-file transcripts.
package content

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CombinedTranscriptName is the reserved output filename for combined
// transcripts; it is never treated as a source file.
const CombinedTranscriptName = "_combined_transcription.txt"

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}

// Artifacts holds the resolved canonical file paths for one talk. Empty
// fields mean the artifact does not exist.
type Artifacts struct {
	Summary     string
	Diagram     string
	Transcript  string
	Cover       string
	Competences string
}

// Resolve picks canonical artifacts under a talk directory:
//   - summary: generated_content/summary.md, else the first *.md by name
//   - diagram: the literal mermaid.md only
//   - cover: cover.<ext> in extension-priority order, else first image by name
//   - competences: competences.json when present
//   - transcript: see CombineTranscripts
func Resolve(talkDir string) Artifacts {
	gen := filepath.Join(talkDir, "generated_content")

	a := Artifacts{
		Diagram:     existing(filepath.Join(gen, "mermaid.md")),
		Competences: existing(filepath.Join(gen, "competences.json")),
	}

	a.Summary = existing(filepath.Join(gen, "summary.md"))
	if a.Summary == "" {
		a.Summary = firstWithExt(gen, ".md")
	}

	for _, ext := range imageExts {
		if p := existing(filepath.Join(gen, "cover"+ext)); p != "" {
			a.Cover = p
			break
		}
	}
	if a.Cover == "" {
		a.Cover = firstWithExt(gen, imageExts...)
	}

	a.Transcript = CombineTranscripts(filepath.Join(talkDir, "transcription"))
	return a
}

// CombineTranscripts resolves the canonical transcript for a talk:
// zero source files yield none, a single file is used directly, and two
// or more are concatenated in filename order into the combined file.
// The combined file is rebuilt only when missing or older than any
// source (mtime-based invalidation; a source rewritten with a backdated
// mtime serves stale output). A source that cannot be read contributes
// an inline error marker instead of aborting the combination.
func CombineTranscripts(transDir string) string {
	entries, err := os.ReadDir(transDir)
	if err != nil {
		return ""
	}

	var sources []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == CombinedTranscriptName {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".txt") {
			sources = append(sources, name)
		}
	}
	sort.Strings(sources)

	switch len(sources) {
	case 0:
		return ""
	case 1:
		return filepath.Join(transDir, sources[0])
	}

	combined := filepath.Join(transDir, CombinedTranscriptName)
	if !needsRebuild(combined, transDir, sources) {
		return combined
	}

	log.Printf("Combining %d transcription files in %s", len(sources), transDir)
	var buf strings.Builder
	for _, name := range sources {
		data, err := os.ReadFile(filepath.Join(transDir, name))
		if err != nil {
			buf.WriteString(fmt.Sprintf("[Fehler beim Lesen: %v]", err))
			continue
		}
		buf.Write(data)
	}
	if err := os.WriteFile(combined, []byte(buf.String()), 0o644); err != nil {
		log.Printf("Writing combined transcript: %v", err)
		// Fall back to the first source so the caller still gets text.
		return filepath.Join(transDir, sources[0])
	}
	return combined
}

func needsRebuild(combined, transDir string, sources []string) bool {
	info, err := os.Stat(combined)
	if err != nil {
		return true
	}
	for _, name := range sources {
		src, err := os.Stat(filepath.Join(transDir, name))
		if err != nil {
			continue
		}
		if src.ModTime().After(info.ModTime()) {
			return true
		}
	}
	return false
}

func existing(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// firstWithExt returns the first file in dir (by name order) whose
// extension matches one of exts, or "".
func firstWithExt(dir string, exts ...string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range exts {
			if ext == want {
				return filepath.Join(dir, name)
			}
		}
	}
	return ""
}
