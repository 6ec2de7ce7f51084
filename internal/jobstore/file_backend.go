package jobstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sceneforge/internal/job"
	"sceneforge/internal/jsonutil"
)

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows []job.Job
		if err := jsonutil.UnmarshalFlex(b, &rows); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, row := range rows {
			id := strings.TrimSpace(row.ID)
			if id == "" {
				continue
			}
			s.byID[id] = row
		}
	})
}

func (s *Store) saveFileLocked() {
	rows := make([]job.Job, 0, len(s.byID))
	for _, j := range s.byID {
		rows = append(rows, j)
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].CreatedAt.Before(rows[k].CreatedAt) })

	b, err := jsonutil.MarshalIndentNoEscape(rows, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
	_ = os.WriteFile(s.path, b, 0o644)
}

func (s *Store) getFile(id string) (job.Job, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[strings.TrimSpace(id)]
	return j, ok
}

func (s *Store) putFile(j job.Job) {
	s.ensureLoadedFile()
	if strings.TrimSpace(j.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[j.ID] = j
	s.saveFileLocked()
}

func (s *Store) updateFile(id string, update func(*job.Job)) (job.Job, bool) {
	s.ensureLoadedFile()
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return job.Job{}, false
	}
	update(&j)
	j.ID = id
	s.byID[id] = j
	s.saveFileLocked()
	return j, true
}

func (s *Store) listFile() []job.Job {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]job.Job, 0, len(s.byID))
	for _, j := range s.byID {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

func (s *Store) deleteFile(id string) bool {
	s.ensureLoadedFile()
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	s.saveFileLocked()
	return true
}
