package vision

import (
	"regexp"
	"strings"

	"sceneforge/internal/jsonutil"
)

// rawBatch is the per-batch shape the model is asked to emit.
type rawBatch struct {
	HasIssues      bool    `json:"has_issues"`
	Issues         []Issue `json:"issues"`
	OverallQuality string  `json:"overall_quality"`
}

var (
	reJSONFence  = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	reJSONObject = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// recoverJSON applies the four recovery strategies in order: direct parse,
// fenced json block, first balanced-looking object, first-brace-to-last-brace.
// First success wins. It never fails: an unparseable response degrades to an
// empty unknown-quality batch, reported via ok=false.
func recoverJSON(text string) (rawBatch, bool) {
	if b, ok := tryParse(strings.TrimSpace(text)); ok {
		return b, true
	}

	if m := reJSONFence.FindStringSubmatch(text); m != nil {
		if b, ok := tryParse(m[1]); ok {
			return b, true
		}
	}

	if m := reJSONObject.FindString(text); m != "" {
		if b, ok := tryParse(m); ok {
			return b, true
		}
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			if b, ok := tryParse(text[start : end+1]); ok {
				return b, true
			}
		}
	}

	return rawBatch{OverallQuality: "unknown"}, false
}

func tryParse(candidate string) (rawBatch, bool) {
	var b rawBatch
	if err := jsonutil.UnmarshalFlex([]byte(candidate), &b); err != nil {
		return rawBatch{}, false
	}
	return b, true
}
