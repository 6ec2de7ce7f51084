// Package postproc normalizes raw code-model output into renderable scene
// source: fence stripping, required-import insertion, and glyph substitution.
// Process is pure and idempotent, so the repair loop can re-run it on every
// model response without compounding edits.
package postproc

import (
	"strings"

	"sceneforge/internal/pysrc"
)

// RequiredImports are the three import lines every generated scene must carry,
// in the surface form the animation ecosystem expects.
var RequiredImports = []string{
	"from manim import *",
	"from manim_voiceover import VoiceoverScene",
	"from manim_voiceover.services.gtts import GTTSService",
}

// glyphs that render as numeric codepoints inside plain Text objects.
var glyphReplacer = strings.NewReplacer(
	"•", "-", // •
	"●", "-", // ●
	"▪", "-", // ▪
	"‣", "-", // ‣
	"✓", "-", // ✓
	"✔", "-", // ✔
	"✗", "-", // ✗
	"✘", "-", // ✘
	"✖", "-", // ✖
)

// Process turns a raw model response into scene source. Markdown fences are
// stripped, the required imports are prepended when absent, and unsafe glyphs
// are rewritten inside plain-text literals only. Raw-string and math-text
// literals are left untouched.
func Process(raw string) string {
	src := stripFences(raw)
	src = ensureImports(src)
	src = substituteGlyphs(src)
	if src == "" {
		return src
	}
	return src + "\n"
}

// stripFences extracts the code block from a fenced markdown response. The
// language-tagged form wins over a bare fence; a response with no fence is
// returned trimmed.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	for _, marker := range []string{"```python", "```py", "```"} {
		i := strings.Index(s, marker)
		if i < 0 {
			continue
		}
		rest := s[i+len(marker):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		// Truncated responses may lose the closing fence.
		return strings.TrimSpace(rest)
	}
	return s
}

func ensureImports(src string) string {
	var missing []string
	for _, imp := range RequiredImports {
		if !strings.Contains(src, imp) {
			missing = append(missing, imp)
		}
	}
	if len(missing) == 0 {
		return src
	}
	return strings.Join(missing, "\n") + "\n\n" + src
}

func substituteGlyphs(src string) string {
	f := pysrc.Parse(src)
	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, lit := range f.Literals {
		if lit.Raw || lit.Context == "MathTex" || lit.Context == "Tex" {
			continue
		}
		b.WriteString(src[last:lit.Start])
		b.WriteString(glyphReplacer.Replace(src[lit.Start:lit.End]))
		last = lit.End
	}
	b.WriteString(src[last:])
	return b.String()
}
