// Package repair closes the loop between the vision report and the code
// model: it asks for a corrected source, sanity-checks the answer, and tracks
// whether the rewrite actually reduced the defect count.
package repair

import (
	"context"
	"fmt"
	"log"
	"strings"

	"sceneforge/internal/jsonutil"
	"sceneforge/internal/llmclient"
	"sceneforge/internal/postproc"
	"sceneforge/internal/pysrc"
	"sceneforge/internal/vision"
)

// Chat is the router capability the fixer needs.
type Chat interface {
	GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error)
}

// Record summarizes one repair loop for the job record.
type Record struct {
	Applied       bool   `json:"applied"`
	IssuesBefore  int    `json:"issues_before"`
	IssuesAfter   int    `json:"issues_after"`
	QualityBefore string `json:"quality_before"`
	QualityAfter  string `json:"quality_after"`
	Improvement   int    `json:"improvement"`
}

const fixMaxTokens = 20000

const fixSystemPrompt = "You are a strict code repair assistant. Output only valid Python code."

const fixPromptTemplate = `You are an expert Manim animator. I have a Manim scene code that has visual layout issues detected by a vision model.
Your task is to FIX the code to resolve these specific issues while keeping the rest of the animation exactly the same.

### Visual Analysis Report (Issues to Fix):
%s

### Original Code:
` + "```python" + `
%s
` + "```" + `

### Instructions:
1. Analyze the reported issues (overlaps, cutoffs, spacing, broken LaTeX).
2. Modify the code to fix these issues.
   - For overlaps: Increase spacing (buff), move elements (shift), or change directions.
   - For cutoffs: Move elements into frame, reduce font size, or wrap text.
   - For spacing: Adjust next_to buffers or absolute positions.
   - For broken LaTeX: Ensure raw strings r"..." are used and backslashes are correct.

### Common Pitfalls to AVOID:
- Do NOT add vectors to Mobjects directly (e.g., mobj + UP is INVALID). Use mobj.shift(UP) or mobj.move_to(mobj.get_center() + UP).
- Do NOT use \color inside MathTex if it causes LaTeX errors. Use Manim's color= parameter instead.
- Do NOT change the logic of the animation, only the layout/visuals.

3. RETURN ONLY THE FULL FIXED PYTHON CODE.
4. Do not add markdown backticks or explanations. Just the code.`

// Fixer asks the code model for a corrected source.
type Fixer struct {
	chat   Chat
	logger *log.Logger
}

func NewFixer(chat Chat, logger *log.Logger) *Fixer {
	return &Fixer{chat: chat, logger: logger}
}

// Fix requests a rewrite for the given issues. It returns the corrected
// source and whether it differs from the input. A response that fails the
// sanity guards is discarded and the original source comes back unchanged.
func (f *Fixer) Fix(ctx context.Context, source string, issues []vision.Issue) (string, bool, error) {
	payload, err := jsonutil.MarshalIndentNoEscape(issues, "", "  ")
	if err != nil {
		return source, false, err
	}

	msgs := []llmclient.Message{
		{Role: "system", Content: fixSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(fixPromptTemplate, string(payload), source)},
	}
	raw, err := f.chat.GenerateText(ctx, msgs, fixMaxTokens)
	if err != nil {
		return source, false, err
	}

	fixed := postproc.Process(raw)
	if fixed == "" || fixed == source {
		return source, false, nil
	}
	if reason := rejectFix(source, fixed); reason != "" {
		f.logf("discarding model fix: %s", reason)
		return source, false, nil
	}
	return fixed, true, nil
}

// rejectFix guards against rewrites that gut the scene: severe shrinkage, a
// renamed class, most play calls dropped, or a lost construct method.
func rejectFix(original, fixed string) string {
	if float64(len(fixed)) < 0.7*float64(len(original)) {
		return fmt.Sprintf("fixed code is %d bytes vs %d original, too much was removed", len(fixed), len(original))
	}

	of := pysrc.Parse(original)
	ff := pysrc.Parse(fixed)
	if len(of.Classes) > 0 {
		if len(ff.Classes) == 0 || ff.Classes[0].Name != of.Classes[0].Name {
			return "scene class was renamed or removed"
		}
	}
	if _, ok := of.Method("construct"); ok {
		if _, ok := ff.Method("construct"); !ok {
			return "construct() method was removed"
		}
	}

	origPlays := strings.Count(of.Masked, "self.play(")
	fixedPlays := strings.Count(ff.Masked, "self.play(")
	if origPlays > 0 && float64(fixedPlays) < 0.75*float64(origPlays) {
		return fmt.Sprintf("play calls dropped from %d to %d", origPlays, fixedPlays)
	}
	return ""
}

func (f *Fixer) logf(format string, args ...any) {
	if f.logger != nil {
		f.logger.Printf("[repair] "+format, args...)
	}
}
