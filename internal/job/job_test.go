package job

import (
	"testing"
	"time"

	"sceneforge/internal/tester"
)

func TestNewJobStartsPending(t *testing.T) {
	j := New("Explain merge sort", "mathematical")
	tester.True(t, j.ID != "")
	tester.Eq(t, j.Status, StatePending)
	tester.Eq(t, j.Progress.Message, "queued")
	tester.False(t, j.Terminal())
	tester.Eq(t, j.CreatedAt, j.UpdatedAt)
}

func TestAdvanceUpdatesProgressAndTimestamp(t *testing.T) {
	j := New("topic", "tech_system")
	before := j.UpdatedAt
	time.Sleep(time.Millisecond)

	j.Advance(StateRendering, "rendering scene")
	tester.Eq(t, j.Status, StateRendering)
	tester.Eq(t, j.Progress.State, StateRendering)
	tester.Eq(t, j.Progress.Message, "rendering scene")
	tester.True(t, j.UpdatedAt.After(before))
}

func TestFailIsTerminal(t *testing.T) {
	j := New("topic", "mathematical")
	j.Fail("render: manim exited")
	tester.Eq(t, j.Status, StateFailed)
	tester.Eq(t, j.Error, "render: manim exited")
	tester.True(t, j.Terminal())

	j2 := New("topic", "mathematical")
	j2.Advance(StateCompleted, "video ready")
	tester.True(t, j2.Terminal())
}
