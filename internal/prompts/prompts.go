// Package prompts holds the generation prompt catalog. The catalog is
// embedded so the binary is self-contained; an external YAML file can
// override it for experimentation.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Prompt is one generation task. Template uses {placeholder} markers,
// filled by Format.
type Prompt struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	System    string `yaml:"system"`
	Template  string `yaml:"template"`
	MaxTokens int    `yaml:"max_tokens"`
	// Output is the filename written into generated_content.
	Output string `yaml:"output"`
}

// Catalog is an ordered set of prompts keyed by ID.
type Catalog struct {
	prompts map[string]Prompt
	order   []string
}

// Load returns the embedded catalog, or the one at path when given.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompt catalog: %w", err)
		}
	}
	var doc struct {
		Prompts []Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing prompt catalog: %w", err)
	}
	c := &Catalog{prompts: make(map[string]Prompt, len(doc.Prompts))}
	for _, p := range doc.Prompts {
		if p.ID == "" {
			return nil, fmt.Errorf("prompt without id in catalog")
		}
		if _, dup := c.prompts[p.ID]; dup {
			return nil, fmt.Errorf("duplicate prompt id %q", p.ID)
		}
		c.prompts[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Get returns a prompt by ID.
func (c *Catalog) Get(id string) (Prompt, bool) {
	p, ok := c.prompts[id]
	return p, ok
}

// IDs returns the prompt IDs in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Format fills the template's {placeholder} markers from vars.
// Unknown placeholders are an error so typos don't silently produce
// half-filled prompts.
func (p Prompt) Format(vars map[string]string) (string, error) {
	out := p.Template
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	rest := out
	for {
		i := strings.Index(rest, "{")
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		j := strings.Index(rest, "}")
		if j < 0 {
			break
		}
		if name := rest[:j]; isPlaceholder(name) {
			return "", fmt.Errorf("prompt %s: no value for placeholder {%s}", p.ID, name)
		}
		rest = rest[j+1:]
	}
	return out, nil
}

// isPlaceholder filters out braces that are part of content (code,
// JSON examples) rather than substitution markers.
func isPlaceholder(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Vars lists the placeholders a template expects, for diagnostics.
func (p Prompt) Vars() []string {
	seen := map[string]bool{}
	rest := p.Template
	for {
		i := strings.Index(rest, "{")
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		j := strings.Index(rest, "}")
		if j < 0 {
			break
		}
		name := rest[:j]
		if isPlaceholder(name) {
			seen[name] = true
		}
		rest = rest[j+1:]
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}
