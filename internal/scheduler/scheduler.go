package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/services"
)

const gib = 1024 * 1024 * 1024

// Parser accepts standard five-field cron expressions and descriptors
// such as @daily.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun returns the first activation of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	db       *db.DB
	registry *services.Registry
	log      *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc // Cancel function for running jobs
	wg       sync.WaitGroup     // Tracks spawned job goroutines
}

// New creates a new scheduler
func New(database *db.DB, registry *services.Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		db:       database,
		registry: registry,
		log:      logger.Named("scheduler"),
		interval: time.Minute,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopped = false
	s.stopChan = make(chan struct{})

	// Create cancellable context for all spawned jobs
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	go s.run()
}

// Stop stops the scheduler, stops the scans it started and waits for them
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	close(s.stopChan)

	// Cancel all running job contexts
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Wait for all spawned job goroutines to finish
	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.checkJobs()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkJobs()
		}
	}
}

// checkJobs checks for jobs that need to run
func (s *Scheduler) checkJobs() {
	jobs, err := s.db.GetEnabledJobs()
	if err != nil {
		s.log.Error("failed to get jobs", zap.Error(err))
		return
	}

	now := time.Now()

	for _, job := range jobs {
		if job.NextRunAt == nil {
			continue
		}

		if !now.Before(*job.NextRunAt) {
			if !s.spawn(func(ctx context.Context) { s.runJob(ctx, job) }) {
				return
			}
		}
	}
}

// RunNow starts job immediately without waiting for its schedule. It
// returns the started task.
func (s *Scheduler) RunNow(job *db.ScheduledJob) (*scanner.Task, error) {
	task, err := s.startJob(job)
	if err != nil {
		return nil, err
	}
	await := func(ctx context.Context) { s.await(ctx, job, task) }
	if !s.spawn(await) {
		// Stopped: nothing will wait on or cancel the scan.
		go await(context.Background())
	}
	return task, nil
}

// spawn runs fn on the job context and tracks it for Stop. It reports
// false, without running fn, once the scheduler has been stopped.
func (s *Scheduler) spawn(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	ctx := context.Background()
	if s.running {
		ctx = s.ctx
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return true
}

// runJob executes a scheduled job
func (s *Scheduler) runJob(ctx context.Context, job *db.ScheduledJob) {
	// Check if context is already cancelled
	if ctx.Err() != nil {
		s.log.Info("job cancelled before start", zap.Int64("job", job.ID))
		return
	}

	task, err := s.startJob(job)
	if err != nil {
		s.log.Error("failed to start scan", zap.Int64("job", job.ID), zap.Error(err))
		return
	}
	s.await(ctx, job, task)
}

// startJob starts the scan and advances the job's schedule.
func (s *Scheduler) startJob(job *db.ScheduledJob) (*scanner.Task, error) {
	s.log.Info("running job", zap.Int64("job", job.ID), zap.String("name", job.Name))

	task, err := s.registry.Start(scanner.Config{
		TargetPath: job.TargetPath,
		TargetSize: int64(job.TargetSizeGB * gib),
		MaxDepth:   job.MaxDepth,
	}, &job.ID)
	if err != nil {
		return nil, err
	}

	// Update last run time
	now := time.Now()
	nextRun, err := NextRun(job.CronExpression, now)
	if err != nil {
		s.log.Error("invalid cron expression", zap.Int64("job", job.ID), zap.Error(err))
		return task, nil
	}
	if err := s.db.UpdateJobLastRun(job.ID, now, nextRun); err != nil {
		s.log.Error("failed to update job last run", zap.Int64("job", job.ID), zap.Error(err))
	}

	s.log.Info("started scan for job",
		zap.Int64("job", job.ID),
		zap.String("task", task.ID()),
		zap.Time("next", nextRun))
	return task, nil
}

// await blocks until task finishes, stopping it if ctx ends first.
func (s *Scheduler) await(ctx context.Context, job *db.ScheduledJob, task *scanner.Task) {
	select {
	case <-task.Done():
	case <-ctx.Done():
		task.Stop()
		<-task.Done()
	}
	snap := task.Snapshot()
	s.log.Info("job scan finished",
		zap.Int64("job", job.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("deletable", snap.DeletableCount),
		zap.Int64("cleanable", snap.TotalCleanable))
}

// UpdateNextRun updates the next run time for a job
func (s *Scheduler) UpdateNextRun(job *db.ScheduledJob) error {
	nextRun, err := NextRun(job.CronExpression, time.Now())
	if err != nil {
		return err
	}
	job.NextRunAt = &nextRun

	return s.db.UpdateScheduledJob(job)
}
