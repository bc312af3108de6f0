// Package scanner walks a directory tree layer by layer, asks a classifier
// which entries can be removed, and streams its progress to subscribers.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/agent"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/protect"
	"github.com/lyallcooper/reclaim/internal/types"
)

const (
	DefaultMaxDepth  = 5
	DefaultBatchSize = 50

	subscriberBuffer = 256
	verifiedSuffix   = " (contents verified)"
)

// Lister returns the immediate children of a directory.
type Lister interface {
	List(ctx context.Context, dir string) []types.Entry
}

// Classifier judges a batch of entries.
type Classifier interface {
	Classify(ctx context.Context, batch []types.Entry, parent string) *agent.ClassifyResult
}

// Verifier confirms that a whole directory can be removed.
type Verifier interface {
	Verify(ctx context.Context, dirName string, children []types.Entry, dirPath string) *agent.VerifyResult
}

// Config is the immutable configuration of a task.
type Config struct {
	TargetPath string
	// TargetSize stops the walk once this many bytes are deletable.
	// Zero or negative means unbounded.
	TargetSize int64
	MaxDepth   int
	BatchSize  int
}

// Deps are the collaborators a task calls out to.
type Deps struct {
	Lister     Lister
	Classifier Classifier
	Verifier   Verifier
	// Usage reports the filesystem holding a path. Optional.
	Usage  func(path string) (*types.Volume, error)
	Logger *zap.Logger
}

// Task is one scan. Create it with New and drive it with Run.
type Task struct {
	id   string
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu           sync.Mutex
	status       types.Status
	currentPath  string
	currentDepth int
	scanned      int64
	total        int64
	processed    int64
	deletable    []types.DeletableItem
	cleanable    int64
	usage        types.TokenUsage
	volume       *types.Volume
	startedAt    time.Time
	finishedAt   time.Time
	errMsg       string
	final        *Event
	subs         map[*subscriber]struct{}
	done         chan struct{}
}

// New creates an idle task.
func New(cfg Config, deps Deps) *Task {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = math.MaxInt64
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	metrics.RecordScanStarted()
	return &Task{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		log:    logger.With(zap.String("task", id)),
		status: types.StatusIdle,
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status returns the current status.
func (t *Task) Status() types.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot returns a copy of the current state.
func (t *Task) Snapshot() types.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.snapshotLocked()
}

func (t *Task) snapshotLocked() *types.Snapshot {
	s := &types.Snapshot{
		ID:               t.id,
		Status:           t.status,
		TargetPath:       t.cfg.TargetPath,
		TargetSize:       t.cfg.TargetSize,
		MaxDepth:         t.cfg.MaxDepth,
		CurrentPath:      t.currentPath,
		CurrentDepth:     t.currentDepth,
		ScannedCount:     t.scanned,
		TotalEntries:     t.total,
		ProcessedEntries: t.processed,
		DeletableCount:   len(t.deletable),
		TotalCleanable:   t.cleanable,
		TokenUsage:       t.usage,
		Deletable:        append([]types.DeletableItem(nil), t.deletable...),
		StartedAt:        t.startedAt,
		Error:            t.errMsg,
	}
	if s.Deletable == nil {
		s.Deletable = []types.DeletableItem{}
	}
	if t.volume != nil {
		v := *t.volume
		s.Volume = &v
	}
	if !t.finishedAt.IsZero() {
		f := t.finishedAt
		s.FinishedAt = &f
	}
	return s
}

// Subscribe attaches an observer. The first event is always a progress
// event carrying the current snapshot, followed by the live stream. If the
// task already finished, its terminal event follows and the channel is
// closed. A subscriber that falls too far behind is disconnected and may
// subscribe again. The returned func detaches the subscriber.
func (t *Task) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := newSubscriber(subscriberBuffer)
	sub.send(Event{Type: EventProgress, Snapshot: t.snapshotLocked()})

	if t.final != nil {
		sub.send(*t.final)
		sub.close()
		return sub.ch, func() {}
	}

	t.subs[sub] = struct{}{}
	metrics.SubscriberConnected()
	return sub.ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.dropLocked(sub)
	}
}

func (t *Task) dropLocked(sub *subscriber) {
	if _, ok := t.subs[sub]; !ok {
		return
	}
	delete(t.subs, sub)
	sub.close()
	metrics.SubscriberDisconnected()
}

// emitLocked broadcasts ev to all subscribers in order.
func (t *Task) emitLocked(ev Event) {
	for sub := range t.subs {
		if !sub.send(ev) {
			t.log.Debug("dropping slow subscriber", zap.String("event", string(ev.Type)))
			t.dropLocked(sub)
		}
	}
}

func (t *Task) progressLocked() {
	t.emitLocked(Event{Type: EventProgress, Snapshot: t.snapshotLocked()})
}

// finishLocked moves the task into a terminal state and closes the stream.
func (t *Task) finishLocked(status types.Status, errMsg string) {
	t.status = status
	t.errMsg = errMsg
	t.finishedAt = time.Now()

	ev := Event{Snapshot: t.snapshotLocked(), Error: errMsg}
	switch status {
	case types.StatusDone:
		ev.Type = EventDone
	case types.StatusError:
		ev.Type = EventError
	default:
		ev.Type = EventStopped
	}
	t.final = &ev
	t.emitLocked(ev)
	for sub := range t.subs {
		t.dropLocked(sub)
	}
	close(t.done)
	metrics.RecordScanFinished(string(status))
}

// mutate runs fn under the lock unless the task has already finished, and
// reports whether it ran.
func (t *Task) mutate(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	fn()
	return true
}

// halted reports whether the walk must not start more work.
func (t *Task) halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Terminal() || t.cleanable >= t.cfg.TargetSize
}

// Stop ends the task. Work in flight completes but its results are
// discarded; everything accumulated so far is kept. Stop is idempotent and
// a no-op once the task has finished.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.log.Info("scan stopped")
	t.finishLocked(types.StatusStopped, "")
}

// Run performs the walk and blocks until it returns. Cancelling ctx stops
// the task. Run does nothing if the task is not idle.
func (t *Task) Run(ctx context.Context) {
	var volume *types.Volume
	if t.deps.Usage != nil {
		if v, err := t.deps.Usage(t.cfg.TargetPath); err == nil {
			volume = v
		} else {
			t.log.Debug("volume usage unavailable", zap.Error(err))
		}
	}

	t.mu.Lock()
	if t.status != types.StatusIdle {
		t.mu.Unlock()
		return
	}
	t.status = types.StatusScanning
	t.startedAt = time.Now()
	t.volume = volume
	t.progressLocked()
	t.mu.Unlock()

	t.log.Info("scan started",
		zap.String("path", t.cfg.TargetPath),
		zap.Int64("targetSize", t.cfg.TargetSize),
		zap.Int("maxDepth", t.cfg.MaxDepth))

	stopOnCancel := context.AfterFunc(ctx, t.Stop)
	defer stopOnCancel()

	defer func() {
		if r := recover(); r != nil {
			t.fail(fmt.Errorf("scan aborted: %v", r))
		}
	}()

	t.processLayer(ctx, t.cfg.TargetPath, 0)

	t.mutate(func() {
		t.log.Info("scan finished",
			zap.Int("deletable", len(t.deletable)),
			zap.Int64("cleanable", t.cleanable),
			zap.Int64("tokens", t.usage.Total))
		t.finishLocked(types.StatusDone, "")
	})
}

func (t *Task) fail(err error) {
	t.mutate(func() {
		t.log.Error("scan failed", zap.Error(err))
		t.finishLocked(types.StatusError, err.Error())
	})
}

// processLayer lists dir, classifies its entries batch by batch and
// descends into directories that need a closer look. Recursion is bounded
// by MaxDepth.
func (t *Task) processLayer(ctx context.Context, dir string, depth int) {
	if depth >= t.cfg.MaxDepth || t.halted() {
		return
	}
	if !t.mutate(func() {
		t.status = types.StatusScanning
		t.currentPath = dir
		t.currentDepth = depth
		t.progressLocked()
	}) {
		return
	}

	entries := protect.Filter(t.deps.Lister.List(ctx, dir))
	t.log.Debug("listed directory", zap.String("dir", dir), zap.Int("depth", depth), zap.Int("entries", len(entries)))
	if !t.mutate(func() {
		t.scanned += int64(len(entries))
		t.total += int64(len(entries))
	}) || len(entries) == 0 {
		return
	}

	size := t.cfg.BatchSize
	count := (len(entries) + size - 1) / size
	for b := 0; b < count; b++ {
		if t.halted() {
			return
		}
		batch := entries[b*size : min((b+1)*size, len(entries))]

		queued, ok := t.processBatch(ctx, dir, depth, b+1, count, batch)
		if !ok {
			return
		}
		for _, sub := range queued {
			if t.halted() {
				return
			}
			t.processLayer(ctx, sub.Path, depth+1)
		}
	}
}

// processBatch classifies one batch and returns the directories to descend
// into. ok is false when the walk must unwind.
func (t *Task) processBatch(ctx context.Context, dir string, depth, index, count int, batch []types.Entry) (queued []types.Entry, ok bool) {
	if !t.mutate(func() {
		t.status = types.StatusAnalyzing
		t.progressLocked()
		t.emitLocked(Event{Type: EventAgentCall, Call: &AgentCall{
			Kind:       KindClassify,
			BatchIndex: index,
			BatchCount: count,
			BatchSize:  len(batch),
			DirPath:    dir,
			Depth:      depth,
			Entries:    summaries(batch),
		}})
	}) {
		return nil, false
	}

	res := t.deps.Classifier.Classify(ctx, batch, dir)

	if !t.mutate(func() {
		tally := make(map[string]int)
		for _, v := range res.Verdicts {
			tally[string(v.Classification)]++
		}
		t.emitLocked(Event{Type: EventAgentResponse, Response: &AgentResponse{
			Kind:            KindClassify,
			DirPath:         dir,
			Model:           res.Trace.Model,
			ElapsedMS:       res.Trace.Elapsed.Milliseconds(),
			Reasoning:       res.Trace.Reasoning,
			RawContent:      res.Trace.RawContent,
			UserPrompt:      res.Trace.UserPrompt,
			Error:           res.Trace.Error,
			TokenUsage:      res.Usage,
			ResultsCount:    len(res.Verdicts),
			Classifications: tally,
		}})
		t.processed += int64(len(batch))
		t.usage.Add(res.Usage)
	}) {
		return nil, false
	}

	for _, v := range res.Verdicts {
		if v.Index < 1 || v.Index > len(batch) {
			continue
		}
		entry := batch[v.Index-1]

		switch v.Classification {
		case types.SafeToDelete:
			reason := v.Reason
			if entry.IsDir() {
				vr, ok := t.verify(ctx, depth, entry)
				if !ok {
					return nil, false
				}
				if !vr.Safe {
					t.log.Debug("directory failed verification",
						zap.String("path", entry.Path), zap.String("reason", vr.Reason))
					queued = append(queued, entry)
					continue
				}
				reason += verifiedSuffix
			}

			reached, ok := t.addDeletable(types.DeletableItem{
				Name:    entry.Name,
				Path:    entry.Path,
				Size:    entry.Size,
				Kind:    entry.Kind,
				Purpose: v.Purpose,
				Reason:  reason,
				Risk:    v.Risk,
			})
			if !ok || reached {
				return nil, false
			}

		case types.Suspicious:
			if entry.IsDir() {
				queued = append(queued, entry)
			}
		}
	}

	if !t.mutate(t.progressLocked) {
		return nil, false
	}
	return queued, true
}

// verify lists a directory afresh and asks the verifier about it.
func (t *Task) verify(ctx context.Context, depth int, entry types.Entry) (*agent.VerifyResult, bool) {
	if !t.mutate(func() {
		t.status = types.StatusAnalyzing
		t.progressLocked()
	}) {
		return nil, false
	}

	children := t.deps.Lister.List(ctx, entry.Path)

	if !t.mutate(func() {
		t.emitLocked(Event{Type: EventAgentCall, Call: &AgentCall{
			Kind:      KindVerify,
			BatchSize: len(children),
			DirPath:   entry.Path,
			Depth:     depth,
			Target:    entry.Name,
			Entries:   summaries(children),
		}})
	}) {
		return nil, false
	}

	vr := t.deps.Verifier.Verify(ctx, entry.Name, children, entry.Path)

	if !t.mutate(func() {
		t.usage.Add(vr.Usage)
		key := TallyRejected
		if vr.Safe {
			key = TallyVerifiedSafe
		}
		t.emitLocked(Event{Type: EventAgentResponse, Response: &AgentResponse{
			Kind:            KindVerify,
			DirPath:         entry.Path,
			Model:           vr.Trace.Model,
			ElapsedMS:       vr.Trace.Elapsed.Milliseconds(),
			Reasoning:       vr.Trace.Reasoning,
			RawContent:      vr.Trace.RawContent,
			UserPrompt:      vr.Trace.UserPrompt,
			Error:           vr.Trace.Error,
			TokenUsage:      vr.Usage,
			ResultsCount:    1,
			Classifications: map[string]int{key: 1},
			Reason:          vr.Reason,
		}})
	}) {
		return nil, false
	}
	return vr, true
}

// addDeletable records item and reports whether the target is now met.
func (t *Task) addDeletable(item types.DeletableItem) (reached, ok bool) {
	ok = t.mutate(func() {
		t.deletable = append(t.deletable, item)
		t.cleanable += item.Size
		it := item
		t.emitLocked(Event{Type: EventFound, Item: &it})
		metrics.RecordReclaimable(item.Size)

		reached = t.cleanable >= t.cfg.TargetSize
		if reached {
			t.log.Info("target size reached", zap.Int64("cleanable", t.cleanable))
			t.progressLocked()
		}
	})
	return reached, ok
}
