package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyallcooper/reclaim/internal/agent"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/types"
)

type mockLister struct{}

func (mockLister) List(_ context.Context, dir string) []types.Entry {
	return []types.Entry{{Name: "old.log", Path: filepath.Join(dir, "old.log"), Size: 10, Kind: types.KindFile}}
}

// blockingClassifier blocks until signaled
type blockingClassifier struct {
	started chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (m *blockingClassifier) Classify(_ context.Context, batch []types.Entry, _ string) *agent.ClassifyResult {
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.done != nil {
		<-m.done
	}
	res := &agent.ClassifyResult{}
	for i, e := range batch {
		res.Verdicts = append(res.Verdicts, types.Verdict{Index: i + 1, Name: e.Name, Classification: types.Keep, Risk: types.RiskLow})
	}
	return res
}

type mockVerifier struct{}

func (mockVerifier) Verify(_ context.Context, _ string, _ []types.Entry, _ string) *agent.VerifyResult {
	return &agent.VerifyResult{}
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testRegistry(t *testing.T, database *db.DB, classifier *blockingClassifier) *services.Registry {
	t.Helper()
	r := services.NewRegistry(services.RegistryConfig{DB: database, Retention: time.Minute})
	r.SetToolkit(&services.Toolkit{Lister: mockLister{}, Classifier: classifier, Verifier: mockVerifier{}})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Shutdown(ctx)
	})
	return r
}

func TestNew(t *testing.T) {
	database := testDB(t)
	registry := testRegistry(t, database, &blockingClassifier{})

	s := New(database, registry, nil)

	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.db != database {
		t.Error("scheduler.db not set correctly")
	}
	if s.registry != registry {
		t.Error("scheduler.registry not set correctly")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	database := testDB(t)
	s := New(database, testRegistry(t, database, &blockingClassifier{}), nil)

	// Start scheduler
	s.Start()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	// Stop scheduler
	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()

	if running {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestUpdateNextRun(t *testing.T) {
	database := testDB(t)
	s := New(database, testRegistry(t, database, &blockingClassifier{}), nil)

	job, err := database.CreateScheduledJob(&db.ScheduledJob{
		Name:           "Test Job",
		TargetPath:     "/tmp",
		TargetSizeGB:   1,
		MaxDepth:       5,
		Enabled:        true,
		CronExpression: "0 * * * *", // Every hour
	})
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	if err := s.UpdateNextRun(job); err != nil {
		t.Fatalf("UpdateNextRun failed: %v", err)
	}

	if job.NextRunAt == nil {
		t.Fatal("NextRunAt should be set")
	}

	// Should be within the next hour
	now := time.Now()
	if job.NextRunAt.Before(now) {
		t.Error("NextRunAt should be in the future")
	}
	if job.NextRunAt.After(now.Add(time.Hour)) {
		t.Error("NextRunAt should be within the next hour")
	}

	stored, err := database.GetScheduledJob(job.ID)
	if err != nil {
		t.Fatalf("GetScheduledJob failed: %v", err)
	}
	if stored.NextRunAt == nil {
		t.Error("NextRunAt should be persisted")
	}
}

func TestCronExpressionParsing(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"daily at midnight", "0 0 * * *", false},
		{"weekly on sunday", "0 0 * * 0", false},
		{"monthly first day", "0 0 1 * *", false},
		{"descriptor", "@daily", false},
		{"invalid", "invalid", true},
		{"too few fields", "* * *", true},
		{"too many fields", "* * * * * *", true}, // 6 fields (with seconds) not supported by our parser
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NextRun(tt.cron, time.Now())
			if (err != nil) != tt.wantErr {
				t.Errorf("NextRun(%q) error = %v, wantErr %v", tt.cron, err, tt.wantErr)
			}
		})
	}
}

func TestDueJobRunsAndAdvances(t *testing.T) {
	database := testDB(t)
	registry := testRegistry(t, database, &blockingClassifier{})
	s := New(database, registry, nil)

	pastTime := time.Now().Add(-time.Hour)
	job, err := database.CreateScheduledJob(&db.ScheduledJob{
		Name:           "Due Job",
		TargetPath:     t.TempDir(),
		TargetSizeGB:   1,
		MaxDepth:       1,
		Enabled:        true,
		CronExpression: "0 * * * *",
		NextRunAt:      &pastTime,
	})
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	s.checkJobs()
	s.wg.Wait()

	updated, err := database.GetScheduledJob(job.ID)
	if err != nil {
		t.Fatalf("GetScheduledJob failed: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Fatal("LastRunAt should be set")
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt should move into the future, got %v", updated.NextRunAt)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := database.GetLastRunForJob(job.ID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scan for job was not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCheckJobsSkipsFutureAndDisabled(t *testing.T) {
	database := testDB(t)
	s := New(database, testRegistry(t, database, &blockingClassifier{}), nil)

	pastTime := time.Now().Add(-time.Hour)
	futureTime := time.Now().Add(time.Hour)
	disabled, _ := database.CreateScheduledJob(&db.ScheduledJob{
		Name: "Disabled Job", TargetPath: "/tmp", TargetSizeGB: 1, MaxDepth: 1,
		Enabled: false, CronExpression: "0 * * * *", NextRunAt: &pastTime,
	})
	future, _ := database.CreateScheduledJob(&db.ScheduledJob{
		Name: "Future Job", TargetPath: "/tmp", TargetSizeGB: 1, MaxDepth: 1,
		Enabled: true, CronExpression: "0 * * * *", NextRunAt: &futureTime,
	})

	s.checkJobs()
	s.wg.Wait()

	for _, id := range []int64{disabled.ID, future.ID} {
		job, err := database.GetScheduledJob(id)
		if err != nil {
			t.Fatalf("GetScheduledJob failed: %v", err)
		}
		if job.LastRunAt != nil {
			t.Errorf("job %q should not have run", job.Name)
		}
	}
}

func TestGracefulShutdown(t *testing.T) {
	database := testDB(t)

	classifier := &blockingClassifier{
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	registry := testRegistry(t, database, classifier)
	s := New(database, registry, nil)

	// Create job that will trigger immediately
	pastTime := time.Now().Add(-time.Hour)
	database.CreateScheduledJob(&db.ScheduledJob{
		Name:           "Blocking Job",
		TargetPath:     t.TempDir(),
		TargetSizeGB:   1,
		MaxDepth:       1,
		Enabled:        true,
		CronExpression: "0 * * * *",
		NextRunAt:      &pastTime,
	})

	s.Start()

	// Wait for job to start
	select {
	case <-classifier.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	// Stop stops the scan it started and waits for it
	stopDone := make(chan struct{})
	go func() {
		s.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not complete in time")
	}

	active := registry.Active()
	if len(active) != 0 {
		t.Errorf("expected no active scans after Stop, got %d", len(active))
	}

	close(classifier.done)
}

func TestRunNow(t *testing.T) {
	database := testDB(t)
	s := New(database, testRegistry(t, database, &blockingClassifier{}), nil)

	job, _ := database.CreateScheduledJob(&db.ScheduledJob{
		Name: "Manual", TargetPath: t.TempDir(), TargetSizeGB: 1, MaxDepth: 1,
		Enabled: false, CronExpression: "@weekly",
	})

	task, err := s.RunNow(job)
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
	s.wg.Wait()

	if got := task.Status(); got != types.StatusDone {
		t.Errorf("status = %s, want done", got)
	}
}

func TestStopWithConcurrentRunNow(t *testing.T) {
	database := testDB(t)
	s := New(database, testRegistry(t, database, &blockingClassifier{}), nil)
	s.Start()

	job, _ := database.CreateScheduledJob(&db.ScheduledJob{
		Name: "Manual", TargetPath: t.TempDir(), TargetSizeGB: 1, MaxDepth: 1,
		Enabled: false, CronExpression: "@weekly",
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := s.RunNow(job); err != nil {
					t.Errorf("RunNow failed: %v", err)
					return
				}
			}
		}()
	}

	stopDone := make(chan struct{})
	go func() {
		s.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not complete in time")
	}
	wg.Wait()

	ran := false
	if s.spawn(func(context.Context) { ran = true }) {
		t.Error("spawn should refuse work after Stop")
	}
	if ran {
		t.Error("refused work must not run")
	}
}
