package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sceneforge/internal/generate"
	"sceneforge/internal/job"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/llmclient"
	"sceneforge/internal/render"
	"sceneforge/internal/repair"
	"sceneforge/internal/tester"
	"sceneforge/internal/vision"
)

const header = `from manim import *
from manim_voiceover import VoiceoverScene
from manim_voiceover.services.gtts import GTTSService

`

// goodScene passes every validator check.
const goodScene = header + `class BinarySearchScene(VoiceoverScene):
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

// brokenScene fails structure validation: no animation methods.
const brokenScene = header + `class BrokenScene(VoiceoverScene):
    def construct(self):
        self.set_speech_service(GTTSService())
`

var repairedScene = strings.Replace(goodScene, "buff=0.8)\n        with self.voiceover(text=\"Each", "buff=1.0)\n        with self.voiceover(text=\"Each", 1)

type fakeChat struct {
	responses []string
	calls     [][]llmclient.Message
	err       error
}

func (f *fakeChat) GenerateText(ctx context.Context, msgs []llmclient.Message, maxTokens int) (string, error) {
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return "", f.err
	}
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

type fakeRenderer struct {
	workdir string
	runs    int
	runErr  error
}

func (f *fakeRenderer) Run(ctx context.Context, sceneFile, sceneName string) (string, []render.Segment, error) {
	f.runs++
	if f.runErr != nil {
		return "", nil, f.runErr
	}
	segs := make([]render.Segment, 3)
	for i := range segs {
		p := filepath.Join(f.workdir, fmt.Sprintf("seg_%d_%d.mp4", f.runs, i))
		if err := os.WriteFile(p, []byte("mp4"), 0o644); err != nil {
			return "", nil, err
		}
		segs[i] = render.Segment{Index: i, Token: fmt.Sprintf("%d_%d_%d", i, i, i), Path: p}
	}
	return "log", segs, nil
}

func (f *fakeRenderer) FinalVideo(sceneFile, sceneName string) (string, error) {
	p := filepath.Join(f.workdir, sceneName+"_final.mp4")
	if err := os.WriteFile(p, []byte("final"), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

type fakeAnalyzer struct {
	reports []vision.Report
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, framePaths []string) (vision.Report, error) {
	i := f.calls
	f.calls++
	if i >= len(f.reports) {
		i = len(f.reports) - 1
	}
	r := f.reports[i]
	r.FramesAnalyzed = len(framePaths)
	return r, nil
}

type uploadCall struct{ jobID, name string }

type fakeUploader struct{ calls []uploadCall }

func (f *fakeUploader) UploadFile(ctx context.Context, jobID, localPath, name, contentType string) error {
	f.calls = append(f.calls, uploadCall{jobID, name})
	return nil
}

type harness struct {
	driver   *Driver
	store    *jobstore.Store
	genChat  *fakeChat
	fixChat  *fakeChat
	renderer *fakeRenderer
	analyzer *fakeAnalyzer
	extracts int
}

func newHarness(t *testing.T, genResponses []string, reports []vision.Report) *harness {
	t.Helper()
	root := t.TempDir()
	store := jobstore.New(filepath.Join(root, "jobs.json"))
	store.EnsureLoaded()

	logger := log.New(os.Stderr, "", 0)
	h := &harness{
		store:    store,
		genChat:  &fakeChat{responses: genResponses},
		fixChat:  &fakeChat{responses: []string{repairedScene}},
		analyzer: &fakeAnalyzer{reports: reports},
	}
	h.driver = New(store, generate.New(h.genChat, logger), repair.NewFixer(h.fixChat, logger), h.analyzer, filepath.Join(root, "scratch"), logger)
	h.driver.newRenderer = func(workdir string) Renderer {
		if h.renderer == nil {
			h.renderer = &fakeRenderer{workdir: workdir}
		}
		return h.renderer
	}
	h.driver.extractAll = func(ctx context.Context, segments []string) (string, []string, error) {
		h.extracts++
		dir, err := os.MkdirTemp("", "frames-")
		if err != nil {
			return "", nil, err
		}
		paths := make([]string, len(segments))
		for i := range segments {
			paths[i] = filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
			if err := os.WriteFile(paths[i], []byte("png"), 0o644); err != nil {
				return "", nil, err
			}
		}
		return dir, paths, nil
	}
	return h
}

func (h *harness) run(t *testing.T) job.Job {
	t.Helper()
	j := job.New("Explain binary search", "mathematical")
	h.store.Put(j)
	tester.NoErr(t, h.driver.Run(context.Background(), j.ID))
	got, ok := h.store.Get(j.ID)
	tester.True(t, ok)
	return got
}

func clean() vision.Report {
	return vision.Report{HasIssues: false, OverallQuality: "good"}
}

func dirty(n int) vision.Report {
	issues := make([]vision.Issue, n)
	for i := range issues {
		issues[i] = vision.Issue{Frame: i, Type: "overlap", Description: "title overlaps equation"}
	}
	return vision.Report{HasIssues: true, Issues: issues, OverallQuality: "poor"}
}

func TestHappyPathCompletes(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, got.Progress.Message, "video ready")
	tester.True(t, got.VisualAnalysis != nil)
	tester.Eq(t, got.VisualAnalysis.OverallQuality, "good")
	tester.True(t, got.VisualAnalysis.AutoFix == nil)
	tester.Eq(t, h.renderer.runs, 1)
	tester.Eq(t, h.extracts, 1)

	if _, err := os.Stat(got.VideoPath); err != nil {
		t.Fatalf("final video missing: %v", err)
	}
	if _, err := os.Stat(got.SourcePath); err != nil {
		t.Fatalf("scene source missing: %v", err)
	}
	// The job record lands next to the video.
	if _, err := os.Stat(filepath.Join(filepath.Dir(got.VideoPath), "job.json")); err != nil {
		t.Fatalf("job record missing: %v", err)
	}
}

func TestValidationFailureTriggersOneRegeneration(t *testing.T) {
	h := newHarness(t, []string{brokenScene, goodScene}, []vision.Report{clean()})
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, len(h.genChat.calls), 2)

	// The corrective request carries the validation report.
	second := h.genChat.calls[1]
	user := second[len(second)-1].Content
	tester.True(t, strings.Contains(user, "CRITICAL: Previous generation had persistent visual layout issues"), user)
	tester.True(t, strings.Contains(user, "failed validation"), user)
	tester.True(t, strings.Contains(user, "animation_0()"), user)
}

func TestPersistentValidationFailureFailsJob(t *testing.T) {
	h := newHarness(t, []string{brokenScene, brokenScene}, []vision.Report{clean()})
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateFailed)
	tester.True(t, strings.Contains(got.Error, "validation failed after regeneration"), got.Error)
	tester.True(t, strings.Contains(got.Error, "animation_0()"), got.Error)
}

func TestRenderErrorFailsJob(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	h.renderer = &fakeRenderer{runErr: fmt.Errorf("%w: manim exited: exit status 1", render.ErrRender)}
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateFailed)
	tester.True(t, strings.Contains(got.Error, "render:"), got.Error)
}

func TestRepairLoopRerendersAndRecords(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{dirty(2), clean()})
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, h.renderer.runs, 2, "initial render plus one repair re-render")
	tester.Eq(t, h.extracts, 2)
	tester.Eq(t, len(h.fixChat.calls), 1)

	tester.True(t, got.VisualAnalysis != nil)
	rec := got.VisualAnalysis.AutoFix
	tester.True(t, rec != nil)
	tester.True(t, rec.Applied)
	tester.Eq(t, rec.IssuesBefore, 2)
	tester.Eq(t, rec.IssuesAfter, 0)
	tester.Eq(t, rec.Improvement, 2)
	tester.Eq(t, rec.QualityBefore, "poor")
	tester.Eq(t, rec.QualityAfter, "good")

	// The repaired source is what survives on disk.
	raw, err := os.ReadFile(got.SourcePath)
	tester.NoErr(t, err)
	tester.True(t, strings.Contains(string(raw), "buff=1.0"))
}

var repairedSceneAgain = strings.Replace(repairedScene, "buff=1.0", "buff=1.4", 1)

func TestLastFixIsRenderedBeforeDelivery(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{dirty(2), dirty(1), clean()})
	h.fixChat.responses = []string{repairedScene, repairedSceneAgain}
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, len(h.fixChat.calls), 2)
	// Both fixes re-render: the delivered video must come from the same
	// source that lands on disk.
	tester.Eq(t, h.renderer.runs, 3, "initial render plus one re-render per accepted fix")
	tester.Eq(t, h.extracts, 3)

	raw, err := os.ReadFile(got.SourcePath)
	tester.NoErr(t, err)
	tester.True(t, strings.Contains(string(raw), "buff=1.4"))

	rec := got.VisualAnalysis.AutoFix
	tester.True(t, rec != nil)
	tester.Eq(t, rec.IssuesBefore, 2)
	tester.Eq(t, rec.IssuesAfter, 0)
	tester.Eq(t, rec.Improvement, 2)
}

func TestGenerationErrorRepromptsOnce(t *testing.T) {
	h := newHarness(t, []string{"", goodScene}, []vision.Report{clean()})
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, len(h.genChat.calls), 2)
}

func TestUpstreamErrorFailsJob(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	h.genChat.err = errors.New("provider unavailable")
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateFailed)
	tester.True(t, strings.Contains(got.Error, "provider unavailable"), got.Error)
}

func TestCancelledContextFailsWithReason(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	j := job.New("topic", "mathematical")
	h.store.Put(j)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tester.NoErr(t, h.driver.Run(ctx, j.ID))

	got, _ := h.store.Get(j.ID)
	tester.Eq(t, got.Status, job.StateFailed)
	tester.Eq(t, got.Error, "cancelled")
}

func TestUnknownJobReturnsError(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	err := h.driver.Run(context.Background(), "no-such-job")
	tester.True(t, err != nil)
}

func TestArtifactsUploadedBestEffort(t *testing.T) {
	h := newHarness(t, []string{goodScene}, []vision.Report{clean()})
	up := &fakeUploader{}
	h.driver.Artifacts = up
	got := h.run(t)

	tester.Eq(t, got.Status, job.StateCompleted)
	tester.Eq(t, len(up.calls), 3)
	names := []string{up.calls[0].name, up.calls[1].name, up.calls[2].name}
	tester.Eq(t, strings.Join(names, ","), "video.mp4,scene.py,job.json")
	for _, c := range up.calls {
		tester.Eq(t, c.jobID, got.ID)
	}
}
