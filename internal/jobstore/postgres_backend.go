package jobstore

import (
	"strings"

	"sceneforge/internal/job"
	"sceneforge/internal/jsonutil"
)

// The whole record lives in a JSONB column; status and created_at are
// denormalized for filtering and ordering.
func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  record JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);
`)
	})
	return s.schemaErr
}

func (s *Store) getDB(id string) (job.Job, bool) {
	if err := s.ensureSchema(); err != nil {
		return job.Job{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return job.Job{}, false
	}
	var record []byte
	if err := s.db.QueryRow(`SELECT record FROM jobs WHERE id = $1`, id).Scan(&record); err != nil {
		return job.Job{}, false
	}
	var j job.Job
	if err := jsonutil.UnmarshalFlex(record, &j); err != nil {
		return job.Job{}, false
	}
	return j, true
}

func (s *Store) putDB(j job.Job) {
	if err := s.ensureSchema(); err != nil {
		return
	}
	if strings.TrimSpace(j.ID) == "" {
		return
	}
	record, err := jsonutil.MarshalNoEscape(j)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`
INSERT INTO jobs (id, status, created_at, record)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record`,
		j.ID, j.Status, j.CreatedAt, record)
}

func (s *Store) updateDB(id string, update func(*job.Job)) (job.Job, bool) {
	if err := s.ensureSchema(); err != nil {
		return job.Job{}, false
	}
	tx, err := s.db.Begin()
	if err != nil {
		return job.Job{}, false
	}
	defer func() { _ = tx.Rollback() }()

	id = strings.TrimSpace(id)
	var record []byte
	if err := tx.QueryRow(`SELECT record FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&record); err != nil {
		return job.Job{}, false
	}
	var j job.Job
	if err := jsonutil.UnmarshalFlex(record, &j); err != nil {
		return job.Job{}, false
	}
	update(&j)
	j.ID = id

	record, err = jsonutil.MarshalNoEscape(j)
	if err != nil {
		return job.Job{}, false
	}
	if _, err := tx.Exec(`UPDATE jobs SET status = $2, record = $3 WHERE id = $1`, id, j.Status, record); err != nil {
		return job.Job{}, false
	}
	if err := tx.Commit(); err != nil {
		return job.Job{}, false
	}
	return j, true
}

func (s *Store) listDB() []job.Job {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT record FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			continue
		}
		var j job.Job
		if err := jsonutil.UnmarshalFlex(record, &j); err != nil {
			continue
		}
		out = append(out, j)
	}
	return out
}

func (s *Store) deleteDB(id string) bool {
	if err := s.ensureSchema(); err != nil {
		return false
	}
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}
