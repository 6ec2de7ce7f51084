package validator

import (
	"strings"
	"testing"

	"sceneforge/internal/tester"
)

const header = `from manim import *
from manim_voiceover import VoiceoverScene
from manim_voiceover.services.gtts import GTTSService

`

const validScene = header + `class BinarySearchScene(VoiceoverScene):
    def construct(self):
        self.set_speech_service(GTTSService())
        self.animation_0()
        self.animation_1()

    def animation_0(self):
        grid = NumberPlane()
        title = Text("Binary Search")
        box = SurroundingRectangle(title, buff=0.8)
        with self.voiceover(text="We begin with an ordered array and repeatedly halve the search range.") as tracker:
            self.play(FadeIn(grid), run_time=1.0)
            self.play(Write(title), run_time=1.0)
        self.play(FadeOut(title), FadeOut(box), run_time=1.0)

    def animation_1(self):
        arr = VGroup(*[Square(side_length=0.8) for _ in range(8)])
        label = Text("low and high converge")
        label.next_to(arr, DOWN, buff=0.8)
        with self.voiceover(text="Each comparison discards half of the remaining candidates until one remains.") as tracker:
            self.play(Create(arr), run_time=1.5)
            self.play(Write(label), run_time=1.0)
        self.play(FadeOut(arr), FadeOut(label), run_time=1.0)
`

func joined(list []string) string { return strings.Join(list, "\n") }

func TestValidSceneHasNoFindings(t *testing.T) {
	res := Validate(validScene)
	tester.True(t, res.IsValid(), joined(res.Errors))
	tester.Eq(t, len(res.Warnings), 0, joined(res.Warnings))
}

func TestIsValidMatchesErrorCount(t *testing.T) {
	for _, src := range []string{validScene, "not python at all ((", header + "x = 1\n"} {
		res := Validate(src)
		tester.Eq(t, res.IsValid(), len(res.Errors) == 0)
	}
}

func TestMissingConstructAndWrongBase(t *testing.T) {
	src := header + `class S(Scene):
    def animation_0(self):
        with self.voiceover(text="hi") as tracker:
            self.play(Write(Text("hi")))
`
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "must inherit from VoiceoverScene"))
	tester.True(t, strings.Contains(joined(res.Errors), "Missing construct() method"))
}

func TestNonSequentialAnimationMethods(t *testing.T) {
	src := strings.Replace(validScene, "animation_1", "animation_2", -1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "not sequential"), joined(res.Errors))
}

func TestMissingVoiceoverBlock(t *testing.T) {
	src := strings.Replace(validScene,
		`with self.voiceover(text="Each comparison discards half of the remaining candidates until one remains.") as tracker:
            self.play(Create(arr), run_time=1.5)
            self.play(Write(label), run_time=1.0)`,
		"self.play(Create(arr), run_time=1.5)\n        self.play(Write(label), run_time=1.0)", 1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "animation_1(): Missing voiceover block"), joined(res.Errors))
}

func TestMissingImports(t *testing.T) {
	src := strings.Replace(validScene, "from manim_voiceover.services.gtts import GTTSService\n", "", 1)
	src = strings.Replace(src, "self.set_speech_service(GTTSService())\n        ", "", 1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "Missing import: GTTS service"), joined(res.Errors))
}

func TestAPIHygieneWarnings(t *testing.T) {
	src := strings.Replace(validScene, `Text("Binary Search")`, `Text("Binary Search", color="red").shift(UP * 6)`, 1)
	res := Validate(src)
	w := joined(res.Warnings)
	tester.True(t, strings.Contains(w, "uppercase color constant: RED"), w)
	tester.True(t, strings.Contains(w, "Large coordinate multiplier (6)"), w)
}

func narrationScene(n int) string {
	text := strings.Repeat("a", n)
	return strings.Replace(validScene,
		"We begin with an ordered array and repeatedly halve the search range.", text, 1)
}

func TestNarrationExactlyAtLimitIsWarning(t *testing.T) {
	res := Validate(narrationScene(5000))
	tester.False(t, strings.Contains(joined(res.Errors), "exceeds GTTS limit"), joined(res.Errors))
	tester.True(t, strings.Contains(joined(res.Warnings), "close to GTTS limit"), joined(res.Warnings))
}

func TestNarrationOverLimitIsError(t *testing.T) {
	res := Validate(narrationScene(5001))
	tester.True(t, strings.Contains(joined(res.Errors), "exceeds GTTS limit: 5001 characters"), joined(res.Errors))
}

func TestNarrationFindingNamesEnclosingAnimation(t *testing.T) {
	long := strings.Repeat("a", 5001)
	src := strings.Replace(validScene,
		"Each comparison discards half of the remaining candidates until one remains.", long, 1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "animation_1(): Voiceover block #1 exceeds GTTS limit"), joined(res.Errors))

	res = Validate(narrationScene(5001))
	tester.True(t, strings.Contains(joined(res.Errors), "animation_0(): Voiceover block #0 exceeds GTTS limit"), joined(res.Errors))
}

const persistentTitleScene = header + `class TitleScene(VoiceoverScene):
    def construct(self):
        self.set_speech_service(GTTSService())
        self.animation_0()
        self.animation_1()

    def animation_0(self):
        grid = NumberPlane()
        self.title = Text("Chapter One").to_edge(UP)
        with self.voiceover(text="This chapter introduces the main idea in three short steps.") as tracker:
            self.play(FadeIn(grid), run_time=1.0)
            self.play(Write(self.title), run_time=1.0)

    def animation_1(self):
        section = Text("Section A").to_edge(UP)
        body = VGroup(Square(), Circle())
        with self.voiceover(text="Now the first section places its own heading at the top edge.") as tracker:
            self.play(Write(section), run_time=1.0)
            self.play(Create(body), run_time=1.0)
`

func TestPersistentHeadingDetected(t *testing.T) {
	res := Validate(persistentTitleScene)
	e := joined(res.Errors)
	tester.True(t, strings.Contains(e, "Persistent title detected"), e)
	tester.True(t, strings.Contains(e, "animation_0"), e)
	tester.True(t, strings.Contains(e, "animation_1"), e)
}

func TestPersistentHeadingRemovedIsSilent(t *testing.T) {
	src := strings.Replace(persistentTitleScene,
		"self.play(Write(section), run_time=1.0)",
		"self.play(FadeOut(self.title), run_time=0.5)\n            self.play(Write(section), run_time=1.0)", 1)
	res := Validate(src)
	tester.False(t, strings.Contains(joined(res.Errors), "Persistent title"), joined(res.Errors))
}

func TestDurationMismatch(t *testing.T) {
	// ~350 chars of narration (~10s) against a single 1s play call.
	text := strings.Repeat("the search continues ", 17)
	src := strings.Replace(validScene,
		"We begin with an ordered array and repeatedly halve the search range.", text, 1)
	src = strings.Replace(src,
		"self.play(FadeIn(grid), run_time=1.0)\n            self.play(Write(title), run_time=1.0)\n        self.play(FadeOut(title), FadeOut(box), run_time=1.0)",
		"self.play(FadeIn(grid), run_time=1.0)", 1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Errors), "animation_0(): narration lasts"), joined(res.Errors))
}

func TestSilentMethodFailsDensityAndActivity(t *testing.T) {
	src := header + `class QuietScene(VoiceoverScene):
    def construct(self):
        self.set_speech_service(GTTSService())
        self.animation_0()

    def animation_0(self):
        with self.voiceover(text="` + strings.Repeat("x", 350) + `") as tracker:
            self.wait(1)
`
	res := Validate(src)
	e := joined(res.Errors)
	tester.True(t, strings.Contains(e, "no visual elements constructed"), e)
	tester.True(t, strings.Contains(e, "no self.play calls"), e)
}

func TestNextToBuffFindings(t *testing.T) {
	cases := []struct {
		call     string
		inErrors string
		inWarns  string
	}{
		{"label.next_to(arr, DOWN)", "", "next_to without buff="},
		{"label.next_to(arr, DOWN, buff=0.2)", "buff=0.2 will overlap", ""},
		{"label.next_to(arr, DOWN, buff=0.6)", "", "buff=0.6 is tight"},
	}
	for _, c := range cases {
		src := strings.Replace(validScene, "label.next_to(arr, DOWN, buff=0.8)", c.call, 1)
		res := Validate(src)
		if c.inErrors != "" {
			tester.True(t, strings.Contains(joined(res.Errors), c.inErrors), c.call)
		}
		if c.inWarns != "" {
			tester.True(t, strings.Contains(joined(res.Warnings), c.inWarns), c.call)
		}
	}
}

func TestMiddleZoneMoveToNeedsTreeContext(t *testing.T) {
	withTree := strings.Replace(validScene,
		"arr = VGroup(*[Square(side_length=0.8) for _ in range(8)])",
		"tree_root = Circle()\n        tree_root.move_to(DOWN * 0.5)\n        arr = VGroup(*[Square(side_length=0.8) for _ in range(8)])", 1)
	res := Validate(withTree)
	tester.True(t, strings.Contains(joined(res.Warnings), "middle zone"), joined(res.Warnings))

	withoutTree := strings.Replace(validScene,
		"arr = VGroup(*[Square(side_length=0.8) for _ in range(8)])",
		"marker = Circle()\n        marker.move_to(DOWN * 0.5)\n        arr = VGroup(*[Square(side_length=0.8) for _ in range(8)])", 1)
	res = Validate(withoutTree)
	tester.False(t, strings.Contains(joined(res.Warnings), "middle zone"), joined(res.Warnings))
}

func TestHeavyAddWarning(t *testing.T) {
	src := strings.Replace(validScene,
		"self.play(Create(arr), run_time=1.5)\n            self.play(Write(label), run_time=1.0)",
		"self.add(arr)\n            self.add(label)\n            self.add(Dot())", 1)
	res := Validate(src)
	tester.True(t, strings.Contains(joined(res.Warnings), "elements pop in without animation"), joined(res.Warnings))
}

func TestReportShape(t *testing.T) {
	res := Validate(validScene)
	tester.True(t, strings.Contains(res.Report(), "Validation PASSED"))

	res = Validate("x = (")
	tester.True(t, strings.Contains(res.Report(), "Validation FAILED"))
	tester.True(t, strings.Contains(res.Report(), "ERRORS (must fix):"))
}
