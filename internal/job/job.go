// Package job defines the unit of work the pipeline advances and the record
// the HTTP surface exposes.
package job

import (
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/repair"
	"sceneforge/internal/vision"
)

// Job states. A job only moves forward, except for the
// validating/rendering/extracting/analyzing cycle inside the repair loop.
const (
	StatePending    = "pending"
	StateGenerating = "generating"
	StateValidating = "validating"
	StateRendering  = "rendering"
	StateExtracting = "extracting"
	StateAnalyzing  = "analyzing"
	StateRepairing  = "repairing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Progress is the user-visible position of a job inside the pipeline.
type Progress struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// VisualAnalysis is the final analysis attached to a terminal job.
type VisualAnalysis struct {
	FramesAnalyzed int            `json:"frames_analyzed"`
	Issues         []vision.Issue `json:"issues"`
	OverallQuality string         `json:"overall_quality"`
	AutoFix        *repair.Record `json:"auto_fix,omitempty"`
}

// Job is the persisted record of one video request.
type Job struct {
	ID             string          `json:"id"`
	Prompt         string          `json:"prompt"`
	Category       string          `json:"category"`
	Status         string          `json:"status"`
	Progress       Progress        `json:"progress"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	SourcePath     string          `json:"source_path,omitempty"`
	VideoPath      string          `json:"video_path,omitempty"`
	VisualAnalysis *VisualAnalysis `json:"visual_analysis,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// New creates a pending job for a prompt.
func New(prompt, category string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Category:  category,
		Status:    StatePending,
		Progress:  Progress{State: StatePending, Message: "queued"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StateCompleted || j.Status == StateFailed
}

// Advance moves the job to a new state with a progress message.
func (j *Job) Advance(state, message string) {
	j.Status = state
	j.Progress = Progress{State: state, Message: message}
	j.UpdatedAt = time.Now().UTC()
}

// Fail marks the job failed with a short description.
func (j *Job) Fail(message string) {
	j.Error = message
	j.Advance(StateFailed, message)
}
