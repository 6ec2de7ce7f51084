// Package vision inspects rendered frames with the vision model and turns
// free-form model output into a structured defect report. Parsing never
// fails hard: a batch the model answers with prose degrades to an "unknown"
// quality instead of killing the pass.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Vision is the router capability the analyzer needs.
type Vision interface {
	GenerateMultimodal(ctx context.Context, prompt string, pngB64 []string, maxTokens int) (string, error)
}

// Issue is one defect the model attributed to a frame. Frame indices are
// global across the whole pass after aggregation.
type Issue struct {
	Frame       int    `json:"frame"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Report aggregates all batches of one analysis pass.
type Report struct {
	HasIssues      bool    `json:"has_issues"`
	Issues         []Issue `json:"issues"`
	OverallQuality string  `json:"overall_quality"`
	FramesAnalyzed int     `json:"frames_analyzed"`
}

const (
	DefaultBatchSize = 15
	defaultMaxTokens = 20000
	memoEntries      = 64
)

const analysisPrompt = `Analyze these frames from a Manim animation.
Check for any VISUAL OVERLAPS between text, equations, graphs, or other elements.
Even a slight overlap is a critical issue.

If you see ANY overlap, return "has_issues": true.
Check specifically for:
- Text overlapping with other text or equations.
- Text overlapping with shapes or lines.
- Text extending beyond the screen boundaries (cut off).
- Elements that are too close to each other (touching).
- Broken LaTeX rendering (e.g., words like 'text', 'color', 'quad', 'floor' appearing literally in equations).
- Missing spaces or weird formatting in text.

Be extremely strict. Even a 1-pixel overlap is an issue.

Respond in JSON format:
` + "```json" + `
{
  "has_issues": true/false,
  "issues": [
    {
      "frame": 0,
      "type": "overlap",
      "description": "Description of the overlap (e.g. 'Title overlaps with equation')"
    }
  ],
  "overall_quality": "good/fair/poor"
}
` + "```"

// Analyzer runs batched frame inspection. Identical batches are memoized by
// content hash: the repair loop re-analyzes after every render, and unchanged
// segments produce byte-identical frames.
type Analyzer struct {
	vis       Vision
	batchSize int
	maxTokens int
	logger    *log.Logger
	memo      *lru.Cache[string, batchResult]
}

type batchResult struct {
	report rawBatch
	ok     bool
}

func New(vis Vision, logger *log.Logger) *Analyzer {
	memo, _ := lru.New[string, batchResult](memoEntries)
	return &Analyzer{
		vis:       vis,
		batchSize: DefaultBatchSize,
		maxTokens: defaultMaxTokens,
		logger:    logger,
		memo:      memo,
	}
}

// WithBatchSize overrides the per-call frame batch size.
func (a *Analyzer) WithBatchSize(n int) *Analyzer {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// Analyze inspects every frame and returns the aggregated report. Frame
// indices inside Issues are offset to be global. A batch whose model call
// fails is skipped; a batch whose output cannot be parsed counts as unknown.
func (a *Analyzer) Analyze(ctx context.Context, framePaths []string) (Report, error) {
	report := Report{OverallQuality: "good", FramesAnalyzed: len(framePaths)}
	var qualities []string

	for start := 0; start < len(framePaths); start += a.batchSize {
		end := start + a.batchSize
		if end > len(framePaths) {
			end = len(framePaths)
		}

		encoded, key, err := encodeBatch(framePaths[start:end])
		if err != nil {
			return Report{}, err
		}

		batch, ok := a.memo.Get(key)
		if !ok {
			batch = a.analyzeBatch(ctx, encoded, start)
			if batch.ok {
				a.memo.Add(key, batch)
			}
		}
		if !batch.ok {
			continue
		}

		if batch.report.HasIssues {
			report.HasIssues = true
			for _, iss := range batch.report.Issues {
				iss.Frame = clampFrame(iss.Frame+start, len(framePaths))
				report.Issues = append(report.Issues, iss)
			}
		}
		qualities = append(qualities, batch.report.OverallQuality)
	}

	report.OverallQuality = worstQuality(qualities)
	return report, nil
}

func (a *Analyzer) analyzeBatch(ctx context.Context, encoded []string, start int) batchResult {
	text, err := a.vis.GenerateMultimodal(ctx, analysisPrompt, encoded, a.maxTokens)
	if err != nil {
		a.logf("batch at frame %d failed: %v", start, err)
		return batchResult{}
	}
	parsed, ok := recoverJSON(text)
	if !ok {
		a.logf("could not parse JSON from batch at frame %d, returning empty result", start)
	}
	return batchResult{report: parsed, ok: true}
}

func encodeBatch(paths []string) ([]string, string, error) {
	h := sha256.New()
	encoded := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, "", fmt.Errorf("read frame %s: %w", p, err)
		}
		h.Write(data)
		encoded = append(encoded, base64.StdEncoding.EncodeToString(data))
	}
	return encoded, hex.EncodeToString(h.Sum(nil)), nil
}

func clampFrame(idx, total int) int {
	if idx < 0 {
		return 0
	}
	if idx >= total {
		return total - 1
	}
	return idx
}

// worstQuality folds batch qualities with poor < fair < good. Unknown batches
// never drag the overall result down.
func worstQuality(qualities []string) string {
	worst := "good"
	sawKnown := false
	for _, q := range qualities {
		switch q {
		case "poor":
			return "poor"
		case "fair":
			worst = "fair"
			sawKnown = true
		case "good":
			sawKnown = true
		}
	}
	if !sawKnown && len(qualities) > 0 {
		return "unknown"
	}
	return worst
}

func (a *Analyzer) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf("[vision] "+format, args...)
	}
}
