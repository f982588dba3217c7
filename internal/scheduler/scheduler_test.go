package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/akuafrica/jobrunr/internal/store"
	"github.com/rs/zerolog"
)

// mockConnector fails the "fail" command and blocks while hold is open.
type mockConnector struct {
	name string
	hold chan struct{}

	mu      sync.Mutex
	current int
	peak    int
}

func (m *mockConnector) Name() string {
	return m.name
}

func (m *mockConnector) Execute(ctx context.Context, job *models.Job) (*models.JobOutput, error) {
	m.mu.Lock()
	m.current++
	if m.current > m.peak {
		m.peak = m.current
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.current--
		m.mu.Unlock()
	}()

	if m.hold != nil {
		select {
		case <-m.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if job.Command == "fail" {
		return &models.JobOutput{ExitCode: 1, Stderr: "boom"}, nil
	}
	return &models.JobOutput{Stdout: "mock output"}, nil
}

func (m *mockConnector) peakWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func TestSchedulerProcessesJobs(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	ok, _ := s.CreateJob(ctx, "ok", "echo", []string{"hi"})
	bad, _ := s.CreateJob(ctx, "bad", "fail", nil)

	sch := New(s, &mockConnector{name: "test"}, &Config{GlobalMax: 2, ByConnector: map[string]int{"test": 2}, PollInterval: 20 * time.Millisecond}, zerolog.Nop())
	sch.Start()
	defer sch.Stop()

	waitFor(t, 10*time.Second, func() bool {
		stats, err := s.GetJobStats(ctx)
		return err == nil && stats.Succeeded+stats.Failed == 2
	})

	got, _ := s.GetJob(ctx, ok.ID)
	if got.Status != models.JobStatusSucceeded {
		t.Errorf("Expected ok job to succeed, got %s", got.Status)
	}
	got, _ = s.GetJob(ctx, bad.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Expected bad job to fail, got %s", got.Status)
	}

	runs, err := s.GetRunsForJob(ctx, bad.ID)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Expected one run for failed job, got %v (%v)", runs, err)
	}
	if runs[0].ExitCode != 1 || runs[0].Stderr != "boom" {
		t.Errorf("Unexpected run record %+v", runs[0])
	}

	stats, _ := s.GetJobStats(ctx)
	if stats.AllTimeSucceeded != 1 {
		t.Errorf("Expected AllTimeSucceeded 1, got %d", stats.AllTimeSucceeded)
	}
}

func TestSchedulerConcurrencyLimits(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	conn := &mockConnector{name: "test", hold: make(chan struct{})}
	cfg := &Config{
		GlobalMax:    3,
		ByConnector:  map[string]int{"test": 2},
		PollInterval: 20 * time.Millisecond,
	}
	sch := New(s, conn, cfg, zerolog.Nop())

	for i := 0; i < 10; i++ {
		if _, err := s.CreateJob(ctx, "Job", "echo", nil); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	sch.Start()
	defer sch.Stop()

	waitFor(t, 10*time.Second, func() bool { return sch.Stats().ActiveWorkers > 0 })

	// Give the scheduler a moment to exceed limits if buggy.
	time.Sleep(200 * time.Millisecond)
	stats := sch.Stats()
	if stats.ActiveWorkers > cfg.GlobalMax {
		t.Errorf("Active workers %d exceeds global max %d", stats.ActiveWorkers, cfg.GlobalMax)
	}
	if count := stats.ConnectorCounts["test"]; count > cfg.ByConnector["test"] {
		t.Errorf("Connector workers %d exceeds limit %d", count, cfg.ByConnector["test"])
	}

	close(conn.hold)
	waitFor(t, 10*time.Second, func() bool {
		st, err := s.GetJobStats(ctx)
		return err == nil && st.Succeeded == 10
	})
	if peak := conn.peakWorkers(); peak > 2 {
		t.Errorf("Peak concurrent executions %d exceeds connector limit 2", peak)
	}
}

func TestSchedulerDispatchRate(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := s.CreateJob(ctx, "Job", "echo", nil); err != nil {
			t.Fatalf("Failed to create job: %v", err)
		}
	}

	cfg := &Config{
		GlobalMax:      10,
		ByConnector:    map[string]int{"test": 10},
		PollInterval:   20 * time.Millisecond,
		DispatchPerSec: 2,
	}
	sch := New(s, &mockConnector{name: "test"}, cfg, zerolog.Nop())
	sch.Start()
	defer sch.Stop()

	time.Sleep(500 * time.Millisecond)
	stats, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatalf("GetJobStats failed: %v", err)
	}
	if started := stats.Total - stats.Enqueued; started < 2 || started > 4 {
		t.Errorf("Expected 2-4 jobs started in the first 500ms at 2/s, got %d", started)
	}

	waitFor(t, 10*time.Second, func() bool {
		st, err := s.GetJobStats(ctx)
		return err == nil && st.Succeeded == 6
	})
}

func TestRecurringRunOnStart(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sch := New(s, &mockConnector{name: "test"}, nil, zerolog.Nop())

	var runs atomic.Int32
	if err := sch.AddRecurring("check", "@every 1h", true, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddRecurring failed: %v", err)
	}
	var lazy atomic.Int32
	if err := sch.AddRecurring("lazy", "@every 1h", false, func(ctx context.Context) error {
		lazy.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddRecurring failed: %v", err)
	}

	sch.Start()
	waitFor(t, 5*time.Second, func() bool { return runs.Load() == 1 })

	stats := sch.Stats()
	if len(stats.Recurring) != 2 {
		t.Fatalf("Expected 2 recurring tasks, got %+v", stats.Recurring)
	}
	if stats.Recurring[0].LastRun.IsZero() {
		t.Error("Expected last run to be recorded")
	}
	if stats.Recurring[0].NextRun.IsZero() {
		t.Error("Expected next run to be scheduled")
	}
	sch.Stop()

	if lazy.Load() != 0 {
		t.Errorf("Expected task without runOnStart to wait for its schedule, ran %d times", lazy.Load())
	}
}

func TestRecurringRecordsError(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sch := New(s, &mockConnector{name: "test"}, nil, zerolog.Nop())
	done := make(chan struct{})
	sch.AddRecurring("broken", "@every 1h", true, func(ctx context.Context) error {
		defer close(done)
		return errors.New("storage unavailable")
	})
	sch.Start()
	defer sch.Stop()

	<-done
	waitFor(t, 5*time.Second, func() bool { return sch.Stats().Recurring[0].LastError != "" })
	if got := sch.Stats().Recurring[0].LastError; got != "storage unavailable" {
		t.Errorf("Unexpected last error %q", got)
	}
}

func TestRecurringDoesNotOverlap(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sch := New(s, &mockConnector{name: "test"}, nil, zerolog.Nop())

	release := make(chan struct{})
	var active, peak, total atomic.Int32
	err := sch.AddRecurring("slow", "@every 1s", true, func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		total.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddRecurring failed: %v", err)
	}

	sch.Start()
	time.Sleep(2500 * time.Millisecond)
	close(release)
	sch.Stop()

	if peak.Load() != 1 {
		t.Errorf("Expected invocations never to overlap, peak was %d", peak.Load())
	}
	if total.Load() < 1 {
		t.Error("Expected at least one invocation")
	}
}

func TestAddRecurringValidation(t *testing.T) {
	sch := New(nil, &mockConnector{name: "test"}, nil, zerolog.Nop())
	noop := func(ctx context.Context) error { return nil }

	if err := sch.AddRecurring("bad", "not a schedule", false, noop); err == nil {
		t.Error("Expected invalid spec to be rejected")
	}
	if err := sch.AddRecurring("check", "0 3 * * *", false, noop); err != nil {
		t.Fatalf("AddRecurring failed: %v", err)
	}
	if err := sch.AddRecurring("check", "@daily", false, noop); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("Expected ErrDuplicateTask, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestStore(t *testing.T) *store.Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
