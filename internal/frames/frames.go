// Package frames pulls the last still image out of each rendered segment.
// The last frame is the one that matters: it shows the state the animation
// settles into, which is where overlap and cutoff defects are visible.
package frames

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrExtraction means both extraction strategies failed for a segment.
var ErrExtraction = errors.New("frame extraction failed")

// runFFmpeg and runFFprobe are injectable in tests.
var runFFmpeg = func(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

var runFFprobe = func(ctx context.Context, file string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffprobe %s: %w: %s", file, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Duration probes a media file's length in seconds.
func Duration(ctx context.Context, file string) (float64, error) {
	out, err := runFFprobe(ctx, file)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unparseable duration %q", file, strings.TrimSpace(out))
	}
	return v, nil
}

// ExtractLastFrame writes the final frame of segment to out. The primary
// strategy seeks 0.1s from the end; segments shorter than that fall back to
// the first frame, which for a sub-0.1s segment is practically the same image.
func ExtractLastFrame(ctx context.Context, segment, out string) error {
	primary := []string{"-sseof", "-0.1", "-i", segment, "-frames:v", "1", "-q:v", "2", "-update", "1", out, "-y"}
	if err := runFFmpeg(ctx, primary...); err == nil {
		if fileNonEmpty(out) {
			return nil
		}
	}

	fallback := []string{"-ss", "0", "-i", segment, "-frames:v", "1", "-q:v", "2", "-update", "1", out, "-y"}
	if err := runFFmpeg(ctx, fallback...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtraction, segment, err)
	}
	if !fileNonEmpty(out) {
		return fmt.Errorf("%w: %s: both strategies produced no image", ErrExtraction, segment)
	}
	return nil
}

// ExtractAll extracts the last frame of every segment, in order, into a fresh
// temp directory. The returned paths satisfy len(paths) == len(segments) and
// paths[i] derives from segments[i]. The caller owns the directory and must
// remove it after the frames are consumed.
func ExtractAll(ctx context.Context, segments []string) (dir string, paths []string, err error) {
	dir, err = os.MkdirTemp("", "sceneforge-frames-")
	if err != nil {
		return "", nil, err
	}
	for i, seg := range segments {
		out := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		if err := ExtractLastFrame(ctx, seg, out); err != nil {
			os.RemoveAll(dir)
			return "", nil, err
		}
		paths = append(paths, out)
	}
	return dir, paths, nil
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
