package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"sceneforge/internal/pysrc"
)

// Check 1: the source must parse. The structural scan stands in for a real
// Python compile; see pysrc.CheckSyntax for what it catches.
func checkSyntax(f *pysrc.File, res *Result) {
	for _, e := range f.CheckSyntax() {
		res.addError("Syntax error at line %d: %s", e.Line, e.Msg)
	}
}

// Check 2: one scene class inheriting VoiceoverScene, a construct() entry
// point, and animation_N methods numbered contiguously from 0.
func checkStructure(f *pysrc.File, res *Result) {
	switch {
	case len(f.Classes) == 0:
		res.addError("No scene class found - define exactly one class inheriting from VoiceoverScene")
	case len(f.Classes) > 1:
		res.addError("Expected exactly one scene class, found %d", len(f.Classes))
	case f.Classes[0].Base != "VoiceoverScene":
		res.addError("Class must inherit from VoiceoverScene")
	}

	if _, ok := f.Method("construct"); !ok {
		res.addError("Missing construct() method")
	}

	anims := f.AnimationMethods()
	if len(anims) == 0 {
		res.addError("No animation_N() methods found - code must use animation_0(), animation_1(), etc.")
		return
	}

	seen := map[int]int{}
	max := 0
	for _, m := range anims {
		seen[m.Index]++
		if m.Index > max {
			max = m.Index
		}
	}
	var missing, dupes []int
	for i := 0; i <= max; i++ {
		switch {
		case seen[i] == 0:
			missing = append(missing, i)
		case seen[i] > 1:
			dupes = append(dupes, i)
		}
	}
	sort.Ints(missing)
	if len(missing) > 0 {
		res.addError("Animation methods not sequential - missing: %v", missing)
	}
	for _, d := range dupes {
		res.addError("Duplicate animation methods: animation_%d", d)
	}
}

// Check 3: undefined-name analysis inside play calls. Intentionally
// permissive for now; the hook stays so the check numbering is stable.
func checkVariables(f *pysrc.File, res *Result) {
}

// Check 4: every animation method narrates and animates.
func checkAnimationMethods(f *pysrc.File, res *Result) {
	for _, m := range f.AnimationMethods() {
		if len(pysrc.Voiceovers(m.Body)) == 0 {
			res.addError("%s(): Missing voiceover block", m.Name)
		}
		if pysrc.CountCalls(m.Body, "self.play", "self.add", "self.remove", "self.wait") == 0 {
			res.addWarning("%s(): No animation calls found (self.play, self.add, etc.)", m.Name)
		}
	}
}

var lowercaseColors = []string{"red", "blue", "green", "yellow", "purple", "orange", "pink", "white", "black"}

var reCoordMultiplier = regexp.MustCompile(`(?:UP|DOWN|LEFT|RIGHT)\s*\*\s*(\d+)`)

// Check 5: engine-API hygiene. All warnings: lowercase color strings,
// MathTex where Text would do, and multipliers that leave the viewport.
func checkAPIHygiene(f *pysrc.File, res *Result) {
	for _, color := range lowercaseColors {
		if strings.Contains(f.Src, `color="`+color+`"`) || strings.Contains(f.Src, `color='`+color+`'`) {
			res.addWarning(`Use uppercase color constant: %s instead of "%s"`, strings.ToUpper(color), color)
		}
	}

	if n := strings.Count(f.Masked, "MathTex("); n > 0 {
		res.addWarning("Found %d MathTex usage(s) - consider using Text() for better compatibility", n)
	}

	for _, m := range reCoordMultiplier.FindAllStringSubmatch(f.Masked, -1) {
		if v := atoi(m[1]); v > 5 {
			res.addWarning("Large coordinate multiplier (%s) may place objects off-screen", m[1])
		}
	}
}

var requiredImports = []struct{ pattern, description string }{
	{"from manim import", "Manim library"},
	{"VoiceoverScene", "VoiceoverScene class"},
	{"GTTSService", "GTTS service"},
}

// Check 6: the three required imports, by surface form.
func checkImports(f *pysrc.File, res *Result) {
	for _, imp := range requiredImports {
		if !strings.Contains(f.Src, imp.pattern) {
			res.addError("Missing import: %s (%s)", imp.description, imp.pattern)
		}
	}
}

const (
	narrationMaxChars  = 5000 // GTTS rejects requests beyond this
	narrationWarnChars = 4000
)

// Check 7: narration stays under the TTS request limit. Findings name the
// method holding the voiceover so the fixer targets the right animation.
func checkNarrationLength(f *pysrc.File, res *Result) {
	for idx, vo := range pysrc.Voiceovers(f.Src) {
		n := utf8.RuneCountInString(strings.TrimSpace(vo.Text))
		where := fmt.Sprintf("Voiceover block #%d", idx)
		if m := enclosingMethod(f, vo.Line); m != "" {
			where = fmt.Sprintf("%s(): Voiceover block #%d", m, idx)
		}
		switch {
		case n > narrationMaxChars:
			res.addError("%s exceeds GTTS limit: %d characters (max: %d). Split into smaller blocks or reduce text.",
				where, n, narrationMaxChars)
		case n > narrationWarnChars:
			res.addWarning("%s is close to GTTS limit: %d characters (limit: %d). Consider reducing text.",
				where, n, narrationMaxChars)
		}
	}
}

// enclosingMethod finds the method whose body contains the given source
// line: the last method declared above it.
func enclosingMethod(f *pysrc.File, line int) string {
	name := ""
	for _, m := range f.Methods {
		if m.Line >= line {
			break
		}
		name = m.Name
	}
	return name
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func methodList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("'%s'", n)
	}
	return strings.Join(quoted, ", ")
}
