// Package pipeline sequences one job from pending to terminal: generate,
// validate, render, extract, analyze, repair. Data flows strictly forward;
// the repair loop is the only place earlier stages are re-entered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"sceneforge/internal/frames"
	"sceneforge/internal/generate"
	"sceneforge/internal/job"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/jsonutil"
	"sceneforge/internal/pysrc"
	"sceneforge/internal/render"
	"sceneforge/internal/repair"
	"sceneforge/internal/validator"
	"sceneforge/internal/vision"
)

// Renderer is the per-job slice of the render orchestrator the driver uses.
type Renderer interface {
	Run(ctx context.Context, sceneFile, sceneName string) (string, []render.Segment, error)
	FinalVideo(sceneFile, sceneName string) (string, error)
}

// Analyzer inspects extracted frames and returns the aggregated report.
type Analyzer interface {
	Analyze(ctx context.Context, framePaths []string) (vision.Report, error)
}

// Uploader mirrors finished artifacts to object storage. Optional and best
// effort: upload failures are logged, never fatal.
type Uploader interface {
	UploadFile(ctx context.Context, jobID, localPath, name, contentType string) error
}

// Driver owns the job state machine. One Driver serves many jobs; each call
// to Run advances exactly one job and may execute from its own goroutine,
// because all per-job state lives in the job's scratch directory.
type Driver struct {
	Store     *jobstore.Store
	Generator *generate.Generator
	Fixer     *repair.Fixer
	Analyzer  Analyzer

	ScratchRoot string
	Quality     string
	MaxRepair   int
	Artifacts   Uploader
	Logger      *log.Logger

	newRenderer func(workdir string) Renderer
	extractAll  func(ctx context.Context, segments []string) (string, []string, error)
}

// New wires a driver over the real renderer and frame extractor.
func New(store *jobstore.Store, gen *generate.Generator, fixer *repair.Fixer, analyzer Analyzer, scratchRoot string, logger *log.Logger) *Driver {
	// Pin the root so recorded source and video paths stay valid when the
	// configured jobs dir is relative to the working directory.
	if abs, err := filepath.Abs(scratchRoot); err == nil {
		scratchRoot = abs
	}
	d := &Driver{
		Store:       store,
		Generator:   gen,
		Fixer:       fixer,
		Analyzer:    analyzer,
		ScratchRoot: scratchRoot,
		Quality:     render.DefaultQuality,
		MaxRepair:   repair.DefaultMaxIterations,
		Logger:      logger,
	}
	d.newRenderer = func(workdir string) Renderer {
		o := render.New(workdir, logger)
		o.Quality = d.Quality
		return o
	}
	d.extractAll = frames.ExtractAll
	return d
}

// Run drives the job with the given id to a terminal state. Pipeline errors
// are recorded on the job itself; Run only returns an error when the job
// does not exist.
func (d *Driver) Run(ctx context.Context, id string) error {
	j, ok := d.Store.Get(id)
	if !ok {
		return fmt.Errorf("pipeline: unknown job %s", id)
	}
	d.logf(id, "starting video generation")

	scratch := filepath.Join(d.ScratchRoot, id)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		d.fail(ctx, id, fmt.Sprintf("create scratch dir: %v", err))
		return nil
	}

	var framesDir string
	defer func() {
		if framesDir != "" {
			os.RemoveAll(framesDir)
		}
		// A failed job keeps its source for debugging but not its media.
		if cur, ok := d.Store.Get(id); ok && cur.Status == job.StateFailed {
			os.RemoveAll(filepath.Join(scratch, "media"))
		}
	}()

	// Generate.
	if d.cancelled(ctx, id) {
		return nil
	}
	d.advance(id, job.StateGenerating, "generating scene code")
	src, err := d.Generator.Generate(ctx, j.Prompt, j.Category)
	if errors.Is(err, generate.ErrEmptyCode) {
		d.logf(id, "empty generation, re-prompting once")
		src, err = d.Generator.Generate(ctx, j.Prompt, j.Category)
	}
	if err != nil {
		d.fail(ctx, id, "code generation: "+shortError(err))
		return nil
	}

	sceneFile := fmt.Sprintf("scene_%s.py", id)
	scenePath := filepath.Join(scratch, sceneFile)
	if err := os.WriteFile(scenePath, []byte(src), 0o644); err != nil {
		d.fail(ctx, id, "write scene file: "+shortError(err))
		return nil
	}
	d.Store.Update(id, func(j *job.Job) { j.SourcePath = scenePath })

	// Validate, with one corrective regeneration.
	d.advance(id, job.StateValidating, "validating scene code")
	res := validator.Validate(src)
	if !res.IsValid() {
		if d.cancelled(ctx, id) {
			return nil
		}
		d.logf(id, "validation failed with %d error(s), regenerating once", len(res.Errors))
		d.advance(id, job.StateGenerating, "regenerating scene after validation failure")
		src, err = d.Generator.Regenerate(ctx, j.Prompt, j.Category, res.Report())
		if err != nil {
			d.fail(ctx, id, "corrective regeneration: "+shortError(err))
			return nil
		}
		if err := os.WriteFile(scenePath, []byte(src), 0o644); err != nil {
			d.fail(ctx, id, "write scene file: "+shortError(err))
			return nil
		}
		d.advance(id, job.StateValidating, "validating regenerated scene")
		res = validator.Validate(src)
		if !res.IsValid() {
			d.fail(ctx, id, fmt.Sprintf("validation failed after regeneration (%d error(s)): %s", len(res.Errors), res.Errors[0]))
			return nil
		}
	}
	sceneName := sceneClassName(src)

	// Render.
	if d.cancelled(ctx, id) {
		return nil
	}
	d.advance(id, job.StateRendering, "rendering scene "+sceneName)
	renderer := d.newRenderer(scratch)
	_, segments, err := renderer.Run(ctx, sceneFile, sceneName)
	if err != nil {
		d.fail(ctx, id, "render: "+shortError(err))
		return nil
	}

	// Extract.
	if d.cancelled(ctx, id) {
		return nil
	}
	d.advance(id, job.StateExtracting, fmt.Sprintf("extracting frames from %d segments", len(segments)))
	framesDir, framePaths, err := d.extractAll(ctx, segmentPaths(segments))
	if err != nil {
		d.fail(ctx, id, "frame extraction: "+shortError(err))
		return nil
	}

	// Analyze, then repair while issues remain.
	if d.cancelled(ctx, id) {
		return nil
	}
	d.advance(id, job.StateAnalyzing, fmt.Sprintf("analyzing %d frames", len(framePaths)))
	cur := framePaths
	loop := &repair.Loop{
		Fixer: d.Fixer,
		Analyze: func(ctx context.Context) (vision.Report, error) {
			return d.Analyzer.Analyze(ctx, cur)
		},
		Rerender: func(ctx context.Context, source string) error {
			d.advance(id, job.StateRepairing, "re-rendering repaired scene")
			if err := os.WriteFile(scenePath, []byte(source), 0o644); err != nil {
				return err
			}
			_, segs, err := renderer.Run(ctx, sceneFile, sceneName)
			if err != nil {
				return err
			}
			os.RemoveAll(framesDir)
			framesDir = ""
			dir, paths, err := d.extractAll(ctx, segmentPaths(segs))
			if err != nil {
				return err
			}
			framesDir, cur = dir, paths
			d.advance(id, job.StateAnalyzing, "re-analyzing repaired scene")
			return nil
		},
		MaxIterations: d.MaxRepair,
		Logger:        d.Logger,
	}
	// Any accepted fix is written and re-rendered inside the loop, so
	// scenePath and the media tree already agree with the returned source.
	_, record, report, err := loop.Run(ctx, src)
	if err != nil {
		d.fail(ctx, id, "repair loop: "+shortError(err))
		return nil
	}

	// Keep the final video at the scratch root so the media tree can go.
	rendered, err := renderer.FinalVideo(sceneFile, sceneName)
	if err != nil {
		d.fail(ctx, id, "final video: "+shortError(err))
		return nil
	}
	videoPath := filepath.Join(scratch, sceneName+".mp4")
	if err := copyFile(rendered, videoPath); err != nil {
		d.fail(ctx, id, "copy final video: "+shortError(err))
		return nil
	}
	os.RemoveAll(framesDir)
	framesDir = ""
	os.RemoveAll(filepath.Join(scratch, "media"))

	analysis := &job.VisualAnalysis{
		FramesAnalyzed: report.FramesAnalyzed,
		Issues:         report.Issues,
		OverallQuality: report.OverallQuality,
	}
	if record.Applied {
		analysis.AutoFix = &record
	}

	updated, _ := d.Store.Update(id, func(j *job.Job) {
		j.VideoPath = videoPath
		j.VisualAnalysis = analysis
		j.Advance(job.StateCompleted, "video ready")
	})
	d.logf(id, "completed: %s", videoPath)

	recordPath := filepath.Join(scratch, "job.json")
	if err := writeRecord(recordPath, updated); err != nil {
		d.logf(id, "write job record: %v", err)
	}
	d.upload(ctx, id, videoPath, scenePath, recordPath)
	return nil
}

func (d *Driver) upload(ctx context.Context, id, videoPath, scenePath, recordPath string) {
	if d.Artifacts == nil {
		return
	}
	for _, f := range []struct{ path, name, contentType string }{
		{videoPath, "video.mp4", "video/mp4"},
		{scenePath, "scene.py", "text/x-python"},
		{recordPath, "job.json", "application/json"},
	} {
		if err := d.Artifacts.UploadFile(ctx, id, f.path, f.name, f.contentType); err != nil {
			d.logf(id, "artifact upload %s: %v", f.name, err)
		}
	}
}

func (d *Driver) advance(id, state, message string) {
	d.Store.Update(id, func(j *job.Job) { j.Advance(state, message) })
	d.logf(id, "%s", message)
}

func (d *Driver) fail(ctx context.Context, id, message string) {
	if ctx.Err() != nil {
		message = "cancelled"
	}
	d.Store.Update(id, func(j *job.Job) { j.Fail(message) })
	d.logf(id, "failed: %s", message)
}

// cancelled checks the cooperative cancellation point between stages.
func (d *Driver) cancelled(ctx context.Context, id string) bool {
	if ctx.Err() == nil {
		return false
	}
	d.fail(ctx, id, "cancelled")
	return true
}

func (d *Driver) logf(id, format string, args ...any) {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	msg := fmt.Sprintf(format, args...)
	if d.Logger != nil {
		d.Logger.Printf("job %s | %s", short, msg)
		return
	}
	log.Printf("job %s | %s", short, msg)
}

// sceneClassName returns the first top-level class of the source. The
// validator guarantees there is exactly one before render is reached.
func sceneClassName(src string) string {
	f := pysrc.Parse(src)
	if len(f.Classes) == 0 {
		return ""
	}
	return f.Classes[0].Name
}

func segmentPaths(segs []render.Segment) []string {
	paths := make([]string, len(segs))
	for i, s := range segs {
		paths[i] = s.Path
	}
	return paths
}

func shortError(err error) string {
	s := strings.TrimSpace(err.Error())
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

func writeRecord(path string, j job.Job) error {
	raw, err := jsonutil.MarshalIndentNoEscape(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
