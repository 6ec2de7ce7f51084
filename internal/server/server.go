// Package server exposes the job pipeline over HTTP: job creation, status,
// listing, deletion, video download and a websocket progress stream.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sceneforge/internal/job"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/safeio"
)

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, id string) error
}

// Server owns the HTTP surface. Workers run detached from the request
// context; DELETE cancels a running worker cooperatively.
type Server struct {
	store       *jobstore.Store
	runner      Runner
	scratchRoot string
	videos      *safeio.SafeFS
	logger      *log.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(store *jobstore.Store, runner Runner, scratchRoot string, logger *log.Logger) (*Server, error) {
	// The root is pinned to an absolute path so a relative jobs dir keeps
	// working no matter where recorded video paths are resolved from.
	scratchRoot, err := filepath.Abs(scratchRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return nil, err
	}
	videos, err := safeio.NewSafeFS(scratchRoot)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:       store,
		runner:      runner,
		scratchRoot: scratchRoot,
		videos:      videos,
		logger:      logger,
		cancels:     map[string]context.CancelFunc{},
	}, nil
}

// Routes builds the mux. Patterns use method-qualified routing.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/videos", s.handleCreateVideo)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET /api/jobs/{id}/watch", s.handleWatchJob)
	mux.HandleFunc("GET /api/videos/{id}", s.handleDownloadVideo)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type createVideoRequest struct {
	Prompt   string `json:"prompt"`
	Category string `json:"category"`
}

type createVideoResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "mathematical"
	}

	j := job.New(prompt, category)
	s.store.Put(j)
	s.spawn(j.ID)
	s.logf("job %s created (category %s)", j.ID, category)

	writeJSON(w, http.StatusCreated, createVideoResponse{
		JobID:     j.ID,
		Status:    j.Status,
		Message:   "Job created successfully. Video generation started.",
		CreatedAt: j.CreatedAt,
	})
}

// spawn runs the pipeline for a job in its own goroutine, detached from the
// request. The cancel func stays registered until the worker returns.
func (s *Server) spawn(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
		}()
		if err := s.runner.Run(ctx, id); err != nil {
			s.logf("job %s worker: %v", id, err)
		}
	}()
}

// jobView is the status payload: the job record plus a download URL once the
// video is ready.
type jobView struct {
	job.Job
	VideoURL string `json:"video_url,omitempty"`
}

func (s *Server) view(j job.Job) jobView {
	v := jobView{Job: j}
	if j.Status == job.StateCompleted && j.VideoPath != "" {
		v.VideoURL = "/api/videos/" + j.ID
	}
	return v
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.view(j))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs := s.store.List()
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = s.view(j)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(views),
		"jobs":  views,
	})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Get(id); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.scratchRoot, id)); err != nil {
		s.logf("job %s scratch cleanup: %v", id, err)
	}
	s.store.Delete(id)
	s.logf("job %s deleted", id)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Job deleted successfully",
		"job_id":  id,
	})
}

func (s *Server) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if j.Status != job.StateCompleted || j.VideoPath == "" {
		http.Error(w, "video not ready, current status: "+j.Status, http.StatusBadRequest)
		return
	}

	// Recorded paths may be relative to the working directory; resolve them
	// the same way the SafeFS root was resolved before computing Rel.
	videoPath, err := filepath.Abs(j.VideoPath)
	if err == nil {
		videoPath, err = filepath.EvalSymlinks(videoPath)
	}
	if err != nil {
		http.Error(w, "video file not found", http.StatusNotFound)
		return
	}
	rel, err := filepath.Rel(s.videos.Root(), videoPath)
	if err != nil {
		http.Error(w, "video file not found", http.StatusNotFound)
		return
	}
	f, err := s.videos.SafeOpen(rel)
	if err != nil {
		http.Error(w, "video file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(j.VideoPath)+`"`)
	if _, err := io.Copy(w, f); err != nil {
		s.logf("job %s video download: %v", j.ID, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	jobs := s.store.List()
	for _, j := range jobs {
		counts[j.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"jobs": map[string]any{
			"total":    len(jobs),
			"by_state": counts,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
