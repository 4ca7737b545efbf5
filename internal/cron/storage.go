// Package cron schedules rule transitions and keeps them across restarts.
package cron

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// JobsFilename is the JSONL file jobs are kept in.
const JobsFilename = "jobs.jsonl"

// Storage persists jobs one JSON object per line.
type Storage struct {
	filePath string
	logger   *logger.Logger
	mu       sync.Mutex
}

// NewStorage keeps jobs in dir/jobs.jsonl.
func NewStorage(dir string, log *logger.Logger) *Storage {
	if log == nil {
		log = logger.Discard()
	}
	return &Storage{
		filePath: filepath.Join(dir, JobsFilename),
		logger:   log,
	}
}

// Path is the storage file.
func (s *Storage) Path() string { return s.filePath }

// Load reads all jobs. A missing file yields an empty slice.
func (s *Storage) Load() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// List returns the persisted jobs. It lets tools that run without a
// started scheduler read the schedule.
func (s *Storage) List(ctx context.Context) ([]Job, error) {
	return s.Load()
}

func (s *Storage) load() ([]Job, error) {
	file, err := os.Open(s.filePath)
	if os.IsNotExist(err) {
		return []Job{}, nil
	}
	if err != nil {
		s.logger.Error("failed to open storage file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}
	defer file.Close()

	jobs := []Job{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal(line, &job); err != nil {
			s.logger.Error("failed to unmarshal job line", err,
				logger.Field{Key: "file", Value: s.filePath},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("error scanning storage file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}
	return jobs, nil
}

// Upsert adds job or replaces the one with the same ID.
func (s *Storage) Upsert(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for i := range jobs {
		if jobs[i].ID == job.ID {
			jobs[i] = job
			found = true
			break
		}
	}
	if !found {
		jobs = append(jobs, job)
	}
	return s.save(jobs)
}

// Remove drops the jobs with the given IDs.
func (s *Storage) Remove(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := jobs[:0]
	for _, job := range jobs {
		if !drop[job.ID] {
			kept = append(kept, job)
		}
	}
	if len(kept) == len(jobs) {
		s.logger.Warn("job not found for removal", logger.Field{Key: "job_ids", Value: ids})
		return nil
	}
	return s.save(kept)
}

// save replaces the whole file atomically.
func (s *Storage) save(jobs []Job) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		s.logger.Error("failed to create storage directory", err,
			logger.Field{Key: "dir", Value: filepath.Dir(s.filePath)})
		return err
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.logger.Error("failed to create temporary storage file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}
	defer file.Close()

	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			s.logger.Error("failed to marshal job", err,
				logger.Field{Key: "job_id", Value: job.ID})
			return err
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			s.logger.Error("failed to write job to temporary file", err,
				logger.Field{Key: "file", Value: tmpPath},
				logger.Field{Key: "job_id", Value: job.ID})
			return err
		}
	}

	if err := file.Sync(); err != nil {
		s.logger.Error("failed to sync temporary file", err,
			logger.Field{Key: "file", Value: tmpPath})
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		s.logger.Error("failed to rename temporary file", err,
			logger.Field{Key: "from", Value: tmpPath},
			logger.Field{Key: "to", Value: s.filePath})
		return err
	}

	s.logger.Debug("jobs saved to storage",
		logger.Field{Key: "count", Value: len(jobs)},
		logger.Field{Key: "file", Value: s.filePath})
	return nil
}
