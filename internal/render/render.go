// Package render drives the manim subprocess and turns its log into an
// ordered animation event stream. The log is the source of truth for segment
// order: tokens are never sorted or deduplicated, because frame indices
// reported by the vision pass must line up with animation steps.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrRender is wrapped by every fatal rendering failure: non-zero engine
// exit, or segments still missing after the cache-disabled retry.
var ErrRender = errors.New("render failed")

// Quality flags accepted by the engine, mapped to the media directory the
// engine writes for each.
var qualityDirs = map[string]string{
	"-pql": "480p15",
	"-pqm": "720p30",
	"-pqh": "1080p60",
	"-pqk": "2160p60",
}

// DefaultQuality renders at 1080p60.
const DefaultQuality = "-pqh"

var reSegmentToken = regexp.MustCompile(`\d+_\d+_\d+`)

// reANSI strips terminal control sequences before token extraction.
var reANSI = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// runManim is injectable in tests.
var runManim = func(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "manim", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Segment is one entry of the animation event stream: a token from the log
// and the media file it resolved to. Duplicate tokens are distinct entries
// pointing at the same file.
type Segment struct {
	Index int
	Token string
	Path  string
}

// Orchestrator renders one scene file inside a job scratch directory.
type Orchestrator struct {
	Workdir string
	Quality string
	Logger  *log.Logger
}

func New(workdir string, logger *log.Logger) *Orchestrator {
	return &Orchestrator{Workdir: workdir, Quality: DefaultQuality, Logger: logger}
}

// Render invokes the engine once and returns its combined log and the
// partial-movie directory for the scene.
func (o *Orchestrator) Render(ctx context.Context, sceneFile, sceneName string, disableCache bool) (string, string, error) {
	args := []string{o.quality(), "--progress_bar", "none"}
	if disableCache {
		args = append(args, "--disable_caching")
	}
	args = append(args, sceneFile, sceneName)

	o.logf("rendering %s:%s (disable_caching=%v)", sceneFile, sceneName, disableCache)
	out, err := runManim(ctx, o.Workdir, args...)
	if err != nil {
		return out, "", fmt.Errorf("%w: manim exited: %v: %s", ErrRender, err, tail(out, 800))
	}
	return out, o.segmentsDir(sceneFile, sceneName), nil
}

// ExtractSegments parses the ANSI-stripped log into the ordered event stream
// and resolves each token to a media file. The engine sometimes writes
// segments under an alternate scene-name subdirectory, so unresolved tokens
// are retried against every sibling directory.
func (o *Orchestrator) ExtractSegments(logText, segmentsDir string) ([]Segment, []string) {
	tokens := reSegmentToken.FindAllString(reANSI.ReplaceAllString(logText, ""), -1)

	var segments []Segment
	var missing []string
	for i, tok := range tokens {
		path, ok := resolveSegment(segmentsDir, tok)
		if !ok {
			missing = append(missing, tok)
			continue
		}
		segments = append(segments, Segment{Index: i, Token: tok, Path: path})
	}
	return segments, missing
}

// Run renders, reconciles the event stream against disk, and retries once
// with caching disabled when files are missing. Still-missing segments after
// the retry fail the pass.
func (o *Orchestrator) Run(ctx context.Context, sceneFile, sceneName string) (string, []Segment, error) {
	logText, dir, err := o.Render(ctx, sceneFile, sceneName, false)
	if err != nil {
		return logText, nil, err
	}
	segments, missing := o.ExtractSegments(logText, dir)
	if len(missing) == 0 {
		return logText, segments, nil
	}

	o.logf("%d of %d segments missing on disk, re-rendering with caching disabled", len(missing), len(missing)+len(segments))
	logText, dir, err = o.Render(ctx, sceneFile, sceneName, true)
	if err != nil {
		return logText, nil, err
	}
	segments, missing = o.ExtractSegments(logText, dir)
	if len(missing) > 0 {
		return logText, nil, fmt.Errorf("%w: %d segment file(s) missing after cache-disabled re-render: %s",
			ErrRender, len(missing), strings.Join(missing, ", "))
	}
	return logText, segments, nil
}

// FinalVideo returns the assembled video the engine wrote for the scene.
func (o *Orchestrator) FinalVideo(sceneFile, sceneName string) (string, error) {
	path := filepath.Join(o.mediaRoot(sceneFile), sceneName+".mp4")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: final video not found at %s", ErrRender, path)
	}
	return path, nil
}

func (o *Orchestrator) quality() string {
	if _, ok := qualityDirs[o.Quality]; ok {
		return o.Quality
	}
	return DefaultQuality
}

func (o *Orchestrator) mediaRoot(sceneFile string) string {
	stem := strings.TrimSuffix(filepath.Base(sceneFile), filepath.Ext(sceneFile))
	return filepath.Join(o.Workdir, "media", "videos", stem, qualityDirs[o.quality()])
}

func (o *Orchestrator) segmentsDir(sceneFile, sceneName string) string {
	return filepath.Join(o.mediaRoot(sceneFile), "partial_movie_files", sceneName)
}

// resolveSegment looks for <token>.mp4 in the expected directory first, then
// in sibling scene-name directories. Historical generated sources sometimes
// misspell the scene class, and the engine then writes under that spelling.
func resolveSegment(segmentsDir, token string) (string, bool) {
	name := token + ".mp4"
	primary := filepath.Join(segmentsDir, name)
	if _, err := os.Stat(primary); err == nil {
		return primary, true
	}

	parent := filepath.Dir(segmentsDir)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() || filepath.Join(parent, e.Name()) == segmentsDir {
			continue
		}
		alt := filepath.Join(parent, e.Name(), name)
		if _, err := os.Stat(alt); err == nil {
			return alt, true
		}
	}
	return "", false
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf("[render] "+format, args...)
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
