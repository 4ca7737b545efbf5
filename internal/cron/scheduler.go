package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// DefaultTick is how often oneshot jobs are checked.
const DefaultTick = time.Second

var (
	// ErrJobNotFound is returned by Cancel for unknown IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidJob is returned by Schedule for jobs it cannot run.
	ErrInvalidJob = errors.New("invalid job")
)

// Handler runs a due job.
type Handler func(ctx context.Context, job Job)

// Scheduler runs recurring jobs on a cron schedule in UTC and oneshot jobs
// at a fixed time. Every job is persisted in Storage and restored by Start.
type Scheduler struct {
	cron    *cron.Cron
	storage *Storage
	logger  *logger.Logger
	tick    time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	handler Handler
	jobs    map[string]Job
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets the oneshot check interval.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock replaces time.Now for oneshot checks and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler persisting to storage. storage may be nil
// for a purely in-memory scheduler.
func NewScheduler(storage *Storage, log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		storage: storage,
		logger:  log.Component("scheduler"),
		tick:    DefaultTick,
		now:     time.Now,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler sets the function due jobs are passed to.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start restores persisted jobs and begins dispatching.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	if s.storage != nil {
		stored, err := s.storage.Load()
		if err != nil {
			return fmt.Errorf("failed to load jobs: %w", err)
		}
		for _, job := range stored {
			if _, exists := s.jobs[job.ID]; exists {
				continue
			}
			if err := s.register(job); err != nil {
				s.logger.Error("failed to restore job", err,
					logger.Field{Key: "job_id", Value: job.ID})
				continue
			}
		}
		s.logger.Info("jobs restored", logger.Field{Key: "count", Value: len(s.jobs)})
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()

	s.wg.Add(1)
	go s.oneshotLoop(s.ctx)

	s.logger.Info("scheduler started")
	return nil
}

// Stop halts dispatching and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// Schedule persists job and registers it. It returns the job ID.
func (s *Scheduler) Schedule(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return "", fmt.Errorf("%w: duplicate id %s", ErrInvalidJob, job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	if job.Type == JobTypeOneshot {
		job.Schedule = ""
	}

	if err := s.register(job); err != nil {
		return "", err
	}

	if s.storage != nil {
		if err := s.storage.Upsert(job); err != nil {
			s.unregister(job.ID)
			return "", fmt.Errorf("failed to persist job: %w", err)
		}
	}

	fields := []logger.Field{
		{Key: "job_id", Value: job.ID},
		{Key: "job_type", Value: job.Type},
	}
	if job.Type == JobTypeRecurring {
		fields = append(fields, logger.Field{Key: "schedule", Value: job.Schedule})
	} else {
		fields = append(fields, logger.Field{Key: "execute_at", Value: job.ExecuteAt})
	}
	s.logger.Info("job scheduled", fields...)

	return job.ID, nil
}

// Cancel removes the job with id.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s.unregister(id)

	if s.storage != nil {
		if err := s.storage.Remove(id); err != nil {
			return fmt.Errorf("failed to remove job from storage: %w", err)
		}
	}

	s.logger.Info("job cancelled", logger.Field{Key: "job_id", Value: id})
	return nil
}

// List returns all jobs ordered by creation time.
func (s *Scheduler) List(ctx context.Context) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// register adds job to the in-memory registry. Callers hold s.mu.
func (s *Scheduler) register(job Job) error {
	switch job.Type {
	case JobTypeRecurring:
		id := job.ID
		entryID, err := s.cron.AddFunc(job.Schedule, func() { s.fireRecurring(id) })
		if err != nil {
			return fmt.Errorf("%w: invalid cron expression: %v", ErrInvalidJob, err)
		}
		s.entries[job.ID] = entryID
	case JobTypeOneshot:
		if job.ExecuteAt == nil {
			return fmt.Errorf("%w: oneshot job without execute_at", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidJob, job.Type)
	}
	s.jobs[job.ID] = job
	return nil
}

// unregister drops id from the registry. Callers hold s.mu.
func (s *Scheduler) unregister(id string) {
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.jobs, id)
}

func (s *Scheduler) fireRecurring(id string) {
	s.mu.RLock()
	job, exists := s.jobs[id]
	ctx := s.ctx
	s.mu.RUnlock()

	if !exists {
		return
	}
	s.dispatch(ctx, job)
}

func (s *Scheduler) oneshotLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

// runDue dispatches every oneshot job whose time has come. Jobs leave the
// registry and storage before their handler runs.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []Job
	for _, job := range s.jobs {
		if job.Type == JobTypeOneshot && job.ExecuteAt != nil && !job.ExecuteAt.After(now) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(due))
	for _, job := range due {
		s.unregister(job.ID)
		ids = append(ids, job.ID)
	}
	if s.storage != nil {
		if err := s.storage.Remove(ids...); err != nil {
			s.logger.Error("failed to drop dispatched oneshot jobs", err)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ExecuteAt.Before(*due[j].ExecuteAt) })
	for _, job := range due {
		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "job_id", Value: job.ID})
		}
	}()

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		s.logger.Warn("no handler for due job", logger.Field{Key: "job_id", Value: job.ID})
		return
	}

	s.logger.Debug("dispatching job",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "job_type", Value: job.Type})
	handler(ctx, job)
}
