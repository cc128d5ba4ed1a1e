package analysis

import (
	"encoding/json"
	"math"
	"strings"
)

// IndexRef is a back-reference to the indexed candidate list. Anything
// that is not a whole JSON number is marked rejected at the parse
// boundary and never corrected.
type IndexRef struct {
	Value    int
	Rejected bool
}

// UnmarshalJSON accepts only whole-number indices.
func (r *IndexRef) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		r.Rejected = true
		return nil
	}
	if n != math.Trunc(n) || n < 0 {
		r.Rejected = true
		return nil
	}
	r.Value = int(n)
	return nil
}

// cleanJSON extracts a JSON object from text that may contain markdown
// code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
