package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse decodes a JSON object from a model response.
// Models regularly wrap JSON in a markdown code fence despite being
// told not to, so a leading fence (with or without a language tag) is
// stripped before decoding.
func ParseJSONResponse(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	if rest, ok := strings.CutPrefix(text, "```"); ok {
		if _, body, found := strings.Cut(rest, "\n"); found {
			rest = body
		}
		if i := strings.LastIndex(rest, "```"); i >= 0 {
			rest = rest[:i]
		}
		text = strings.TrimSpace(rest)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("decoding model response as JSON: %w", err)
	}
	return result, nil
}
