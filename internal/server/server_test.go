package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sceneforge/internal/job"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/tester"
)

// fakeRunner lets each test script what the pipeline does to the job.
type fakeRunner struct {
	run func(ctx context.Context, id string) error
}

func (f *fakeRunner) Run(ctx context.Context, id string) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, id)
}

type env struct {
	srv     *Server
	store   *jobstore.Store
	runner  *fakeRunner
	scratch string
	http    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	store := jobstore.New(filepath.Join(root, "jobs.json"))
	store.EnsureLoaded()

	runner := &fakeRunner{}
	scratch := filepath.Join(root, "scratch")
	srv, err := New(store, runner, scratch, log.New(os.Stderr, "", 0))
	tester.NoErr(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &env{srv: srv, store: store, runner: runner, scratch: scratch, http: ts}
}

func (e *env) createJob(t *testing.T, body string) createVideoResponse {
	t.Helper()
	resp, err := http.Post(e.http.URL+"/api/videos", "application/json", strings.NewReader(body))
	tester.NoErr(t, err)
	defer resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusCreated)

	var out createVideoResponse
	tester.NoErr(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// completeJob is a runner script that finishes the job with a real video file.
func (e *env) completeJob(t *testing.T) {
	t.Helper()
	e.runner.run = func(ctx context.Context, id string) error {
		dir := filepath.Join(e.scratch, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		video := filepath.Join(dir, "Scene.mp4")
		if err := os.WriteFile(video, []byte("mp4-bytes"), 0o644); err != nil {
			return err
		}
		e.store.Update(id, func(j *job.Job) {
			j.VideoPath = video
			j.Advance(job.StateCompleted, "video ready")
		})
		return nil
	}
}

func waitForStatus(t *testing.T, store *jobstore.Store, id, status string) job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := store.Get(id); ok && j.Status == status {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	j, _ := store.Get(id)
	t.Fatalf("job %s never reached %s (last: %s)", id, status, j.Status)
	return job.Job{}
}

func TestCreateVideoStartsJob(t *testing.T) {
	e := newEnv(t)
	e.completeJob(t)

	out := e.createJob(t, `{"prompt": "Explain quicksort"}`)
	tester.True(t, out.JobID != "")
	tester.Eq(t, out.Status, job.StatePending)

	got := waitForStatus(t, e.store, out.JobID, job.StateCompleted)
	tester.Eq(t, got.Category, "mathematical")
}

func TestCreateVideoRequiresPrompt(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Post(e.http.URL+"/api/videos", "application/json", strings.NewReader(`{"prompt": "  "}`))
	tester.NoErr(t, err)
	resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusBadRequest)
}

func TestGetJobStatusAndVideoURL(t *testing.T) {
	e := newEnv(t)
	e.completeJob(t)
	out := e.createJob(t, `{"prompt": "Explain heaps", "category": "tech_system"}`)
	waitForStatus(t, e.store, out.JobID, job.StateCompleted)

	resp, err := http.Get(e.http.URL + "/api/jobs/" + out.JobID)
	tester.NoErr(t, err)
	defer resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusOK)

	var v jobView
	tester.NoErr(t, json.NewDecoder(resp.Body).Decode(&v))
	tester.Eq(t, v.Category, "tech_system")
	tester.Eq(t, v.VideoURL, "/api/videos/"+out.JobID)
}

func TestGetUnknownJob(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.http.URL + "/api/jobs/nope")
	tester.NoErr(t, err)
	resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusNotFound)
}

func TestListJobsHonorsLimit(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		e.store.Put(job.New("topic", "mathematical"))
	}

	resp, err := http.Get(e.http.URL + "/api/jobs?limit=2")
	tester.NoErr(t, err)
	defer resp.Body.Close()

	var out struct {
		Total int       `json:"total"`
		Jobs  []jobView `json:"jobs"`
	}
	tester.NoErr(t, json.NewDecoder(resp.Body).Decode(&out))
	tester.Eq(t, out.Total, 2)
	tester.Eq(t, len(out.Jobs), 2)
}

func TestDownloadVideo(t *testing.T) {
	e := newEnv(t)
	e.completeJob(t)
	out := e.createJob(t, `{"prompt": "Explain graphs"}`)
	waitForStatus(t, e.store, out.JobID, job.StateCompleted)

	resp, err := http.Get(e.http.URL + "/api/videos/" + out.JobID)
	tester.NoErr(t, err)
	defer resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusOK)
	tester.Eq(t, resp.Header.Get("Content-Type"), "video/mp4")

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	tester.NoErr(t, err)
	tester.Eq(t, buf.String(), "mp4-bytes")
}

func TestDownloadVideoWithRelativeScratchRoot(t *testing.T) {
	t.Chdir(t.TempDir())

	store := jobstore.New(filepath.Join("data", "jobs", "jobs.json"))
	store.EnsureLoaded()
	runner := &fakeRunner{}
	scratch := filepath.Join("data", "jobs", "scratch")
	srv, err := New(store, runner, scratch, log.New(os.Stderr, "", 0))
	tester.NoErr(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	e := &env{srv: srv, store: store, runner: runner, scratch: scratch, http: ts}

	e.completeJob(t)
	out := e.createJob(t, `{"prompt": "Explain tries"}`)
	waitForStatus(t, e.store, out.JobID, job.StateCompleted)

	resp, err := http.Get(e.http.URL + "/api/videos/" + out.JobID)
	tester.NoErr(t, err)
	defer resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusOK)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	tester.NoErr(t, err)
	tester.Eq(t, buf.String(), "mp4-bytes")
}

func TestDownloadBeforeReady(t *testing.T) {
	e := newEnv(t)
	j := job.New("topic", "mathematical")
	j.Advance(job.StateRendering, "rendering scene")
	e.store.Put(j)

	resp, err := http.Get(e.http.URL + "/api/videos/" + j.ID)
	tester.NoErr(t, err)
	resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusBadRequest)
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	e := newEnv(t)
	cancelled := make(chan struct{})
	e.runner.run = func(ctx context.Context, id string) error {
		<-ctx.Done()
		close(cancelled)
		return nil
	}
	out := e.createJob(t, `{"prompt": "Explain stacks"}`)

	req, _ := http.NewRequest(http.MethodDelete, e.http.URL+"/api/jobs/"+out.JobID, nil)
	resp, err := http.DefaultClient.Do(req)
	tester.NoErr(t, err)
	resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusOK)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("worker was not cancelled by delete")
	}

	_, ok := e.store.Get(out.JobID)
	tester.False(t, ok)
	if _, err := os.Stat(filepath.Join(e.scratch, out.JobID)); !os.IsNotExist(err) {
		t.Fatalf("scratch dir survived delete: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.http.URL + "/healthz")
	tester.NoErr(t, err)
	defer resp.Body.Close()
	tester.Eq(t, resp.StatusCode, http.StatusOK)

	var out struct {
		Status string `json:"status"`
	}
	tester.NoErr(t, json.NewDecoder(resp.Body).Decode(&out))
	tester.Eq(t, out.Status, "healthy")
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	old := watchPollInterval
	watchPollInterval = 10 * time.Millisecond
	defer func() { watchPollInterval = old }()

	e := newEnv(t)
	j := job.New("topic", "mathematical")
	e.store.Put(j)

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/jobs/" + j.ID + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	tester.NoErr(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		e.store.Update(j.ID, func(x *job.Job) { x.Advance(job.StateGenerating, "generating scene code") })
		time.Sleep(30 * time.Millisecond)
		e.store.Update(j.ID, func(x *job.Job) { x.Advance(job.StateCompleted, "video ready") })
	}()

	var states []string
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var v jobView
		if err := conn.ReadJSON(&v); err != nil {
			break
		}
		states = append(states, v.Status)
		if v.Status == job.StateCompleted {
			break
		}
	}
	tester.True(t, len(states) >= 1, "no updates received")
	tester.Eq(t, states[len(states)-1], job.StateCompleted)
}

func TestWatchUnknownJob(t *testing.T) {
	e := newEnv(t)
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/jobs/nope/watch"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	tester.True(t, err != nil)
	if resp != nil {
		tester.Eq(t, resp.StatusCode, http.StatusNotFound)
		resp.Body.Close()
	}
}
