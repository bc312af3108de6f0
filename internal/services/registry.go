// Package services owns the running scan tasks and the collaborators they
// are built from.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/files"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/settings"
	"github.com/lyallcooper/reclaim/internal/types"
)

// DefaultRetention is how long a finished task stays in memory.
const DefaultRetention = 5 * time.Minute

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotConfigured = errors.New("scan collaborators not configured")
	ErrShuttingDown  = errors.New("registry is shutting down")
)

// RegistryConfig configures a Registry. DB and Settings are optional.
type RegistryConfig struct {
	DB        *db.DB
	Settings  *settings.Store
	Lister    scanner.Lister
	Retention time.Duration
	Logger    *zap.Logger
}

type entry struct {
	task  *scanner.Task
	jobID *int64
}

// Registry starts scan tasks, keeps them addressable by id and persists
// them when they finish.
type Registry struct {
	db        *db.DB
	settings  *settings.Store
	lister    scanner.Lister
	retention time.Duration
	log       *zap.Logger

	toolkit atomic.Pointer[Toolkit]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*entry
}

// NewRegistry creates a registry. Call Reconfigure or SetToolkit before
// starting scans.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		db:        cfg.DB,
		settings:  cfg.Settings,
		lister:    cfg.Lister,
		retention: cfg.Retention,
		log:       cfg.Logger.Named("registry"),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*entry),
	}
}

// SetToolkit installs tk for tasks started from now on.
func (r *Registry) SetToolkit(tk *Toolkit) {
	r.toolkit.Store(tk)
}

// Toolkit returns the current toolkit, or nil.
func (r *Registry) Toolkit() *Toolkit {
	return r.toolkit.Load()
}

// Reconfigure rebuilds the toolkit from s.
func (r *Registry) Reconfigure(s settings.Settings) error {
	tk, err := NewToolkit(s, r.lister, r.log.Named("toolkit"))
	if err != nil {
		return err
	}
	r.SetToolkit(tk)
	r.log.Info("toolkit rebuilt",
		zap.String("model", tk.Model),
		zap.Bool("search", tk.SearchEnabled))
	return nil
}

// Start creates a task and runs it in the background.
func (r *Registry) Start(cfg scanner.Config, jobID *int64) (*scanner.Task, error) {
	tk := r.toolkit.Load()
	if tk == nil {
		return nil, ErrNotConfigured
	}

	task := scanner.New(cfg, scanner.Deps{
		Lister:     tk.Lister,
		Classifier: tk.Classifier,
		Verifier:   tk.Verifier,
		Usage:      tk.Usage,
		Logger:     r.log.Named("scanner"),
	})

	// Checked under mu so Add never races Shutdown's Wait.
	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	r.tasks[task.ID()] = &entry{task: task, jobID: jobID}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(task, jobID)

	return task, nil
}

func (r *Registry) run(task *scanner.Task, jobID *int64) {
	defer r.wg.Done()

	task.Run(r.ctx)
	snap := task.Snapshot()

	if r.db != nil {
		if _, err := r.db.SaveScanRun(snap, jobID); err != nil {
			r.log.Error("failed to persist scan", zap.String("task", snap.ID), zap.Error(err))
		}
	}
	if r.settings != nil {
		if err := r.settings.TouchLastScan(time.Now()); err != nil {
			r.log.Warn("failed to record last scan time", zap.Error(err))
		}
	}

	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.tasks, task.ID())
		r.mu.Unlock()
	})
}

// Get returns a task that is running or finished recently.
func (r *Registry) Get(id string) (*scanner.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e.task, nil
}

// Stop stops a task. Stopping a finished task is a no-op.
func (r *Registry) Stop(id string) error {
	task, err := r.Get(id)
	if err != nil {
		return err
	}
	task.Stop()
	return nil
}

// Result returns the snapshot of a task, falling back to history once it
// has been evicted from memory.
func (r *Registry) Result(id string) (types.Snapshot, error) {
	if task, err := r.Get(id); err == nil {
		return task.Snapshot(), nil
	}
	if r.db == nil {
		return types.Snapshot{}, ErrTaskNotFound
	}

	run, err := r.db.GetScanRunByTaskID(id)
	if errors.Is(err, db.ErrNotFound) {
		return types.Snapshot{}, ErrTaskNotFound
	}
	if err != nil {
		return types.Snapshot{}, err
	}
	items, err := r.db.ListDeletableItems(run.ID)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to load items: %w", err)
	}
	return SnapshotFromRun(run, items), nil
}

// Active returns snapshots of the tasks that have not finished, oldest
// first.
func (r *Registry) Active() []types.Snapshot {
	r.mu.RLock()
	out := make([]types.Snapshot, 0, len(r.tasks))
	for _, e := range r.tasks {
		if !e.task.Status().Terminal() {
			out = append(out, e.task.Snapshot())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Shutdown stops every task and waits for them to be persisted, or for
// ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteFiles removes paths and records the operation.
func (r *Registry) DeleteFiles(paths []string) *files.DeleteResult {
	started := time.Now()
	res := files.Delete(paths)

	r.log.Info("deleted files",
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("failed", len(res.Failed)),
		zap.Int64("bytes", res.BytesFreed))

	if r.db != nil {
		completed := time.Now()
		if _, err := r.db.CreateAction(&db.Action{
			ActionType:     db.ActionDelete,
			FilesProcessed: len(res.Deleted),
			FilesFailed:    len(res.Failed),
			BytesFreed:     res.BytesFreed,
			StartedAt:      started,
			CompletedAt:    &completed,
		}); err != nil {
			r.log.Error("failed to record action", zap.Error(err))
		}
	}
	return res
}

// SnapshotFromRun rebuilds a snapshot from a stored scan.
func SnapshotFromRun(run *db.ScanRun, items []types.DeletableItem) types.Snapshot {
	s := types.Snapshot{
		ID:               run.TaskID,
		Status:           run.Status,
		TargetPath:       run.TargetPath,
		TargetSize:       run.TargetSize,
		MaxDepth:         run.MaxDepth,
		ScannedCount:     run.ScannedCount,
		TotalEntries:     run.TotalEntries,
		ProcessedEntries: run.ProcessedEntries,
		DeletableCount:   len(items),
		TotalCleanable:   run.TotalCleanable,
		TokenUsage:       run.TokenUsage,
		Deletable:        items,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.CompletedAt,
	}
	if s.Deletable == nil {
		s.Deletable = []types.DeletableItem{}
	}
	if run.ErrorMessage != nil {
		s.Error = *run.ErrorMessage
	}
	return s
}
