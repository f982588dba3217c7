// Package scheduler runs the background job server: a poll loop that hands
// enqueued jobs to a bounded worker pool, and cron-driven recurring server
// tasks such as the new-version check.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Store is the job storage the scheduler works against.
type Store interface {
	ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error)
	CompleteJob(ctx context.Context, id string, status models.JobStatus) error
	CreateRun(ctx context.Context, jobID, command string, args []string) (*models.Run, error)
	UpdateRun(ctx context.Context, id string, exitCode int, stdout, stderr string) error
}

// Connector executes claimed jobs. Name keys the per-connector worker limit.
type Connector interface {
	Name() string
	Execute(ctx context.Context, job *models.Job) (*models.JobOutput, error)
}

// ErrDuplicateTask is returned when a recurring task name is already registered.
var ErrDuplicateTask = errors.New("recurring task already registered")

// TaskFunc is the body of a recurring task.
type TaskFunc func(ctx context.Context) error

// recurring is a registered recurring task. job is the wrapped cron job
// shared by scheduled and start-up invocations, so they never overlap.
type recurring struct {
	name       string
	spec       string
	schedule   cron.Schedule
	runOnStart bool
	job        cron.Job
	entryID    cron.EntryID

	lastRun   time.Time
	lastError string
}

// RecurringStatus describes a recurring task for the API.
type RecurringStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

// Stats is a snapshot of scheduler state.
type Stats struct {
	ActiveWorkers   int               `json:"active_workers"`
	GlobalMax       int               `json:"global_max"`
	ConnectorCounts map[string]int    `json:"connector_counts"`
	Recurring       []RecurringStatus `json:"recurring"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler manages job dispatching, the worker pool and recurring tasks.
type Scheduler struct {
	store     Store
	connector Connector
	config    *Config
	limiter   *rate.Limiter
	log       zerolog.Logger

	mu              sync.Mutex
	activeWorkers   int
	connectorCounts map[string]int
	recurring       []*recurring
	cron            *cron.Cron
	running         bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(s Store, conn Connector, cfg *Config, log zerolog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		store:           s,
		connector:       conn,
		config:          cfg,
		limiter:         cfg.limiter(),
		log:             log,
		connectorCounts: make(map[string]int),
	}
}

// AddRecurring registers fn to run on the cron spec. With runOnStart the task
// also runs once as soon as the scheduler starts. Invocations of one task
// never overlap: a run that is due while the previous one is still busy is
// skipped.
func (sch *Scheduler) AddRecurring(name, spec string, runOnStart bool, fn TaskFunc) error {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, name, err)
	}

	sch.mu.Lock()
	defer sch.mu.Unlock()

	for _, r := range sch.recurring {
		if r.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
		}
	}

	r := &recurring{name: name, spec: spec, schedule: schedule, runOnStart: runOnStart}
	cl := cronLogger{log: sch.log.With().Str("task", name).Logger()}
	r.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		sch.runRecurring(r, fn)
	}))
	sch.recurring = append(sch.recurring, r)

	if sch.running {
		r.entryID = sch.cron.Schedule(schedule, r.job)
		if runOnStart {
			sch.goRun(r.job)
		}
	}
	return nil
}

// Start begins the dispatch loop and the recurring tasks.
func (sch *Scheduler) Start() {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if sch.running {
		return
	}

	sch.ctx, sch.cancel = context.WithCancel(context.Background())
	sch.cron = cron.New(cron.WithParser(cronParser))
	for _, r := range sch.recurring {
		r.entryID = sch.cron.Schedule(r.schedule, r.job)
	}
	sch.running = true

	sch.cron.Start()
	for _, r := range sch.recurring {
		if r.runOnStart {
			sch.goRun(r.job)
		}
	}

	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.log.Info().Int("global_max", sch.config.GlobalMax).Int("recurring", len(sch.recurring)).Msg("Scheduler started")
}

// Stop gracefully stops the scheduler, waiting for running workers and tasks.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	if !sch.running {
		sch.mu.Unlock()
		return
	}
	sch.running = false
	sch.cancel()
	c := sch.cron
	sch.mu.Unlock()

	<-c.Stop().Done()
	sch.wg.Wait()
	sch.log.Info().Msg("Scheduler stopped")
}

func (sch *Scheduler) goRun(job cron.Job) {
	sch.wg.Add(1)
	go func() {
		defer sch.wg.Done()
		job.Run()
	}()
}

func (sch *Scheduler) runRecurring(r *recurring, fn TaskFunc) {
	sch.mu.Lock()
	ctx := sch.ctx
	sch.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := fn(ctx)

	sch.mu.Lock()
	r.lastRun = start
	r.lastError = ""
	if err != nil {
		r.lastError = err.Error()
	}
	sch.mu.Unlock()

	if err != nil {
		sch.log.Error().Err(err).Str("task", r.name).Msg("Recurring task failed")
	}
}

// schedulerLoop polls for enqueued jobs and dispatches them to workers.
func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch claims enqueued jobs while worker capacity remains.
func (sch *Scheduler) pollAndDispatch() {
	connectorName := sch.connector.Name()
	connectorLimit := sch.config.GetConnectorLimit(connectorName)

	for {
		sch.mu.Lock()
		full := sch.activeWorkers >= sch.config.GlobalMax || sch.connectorCounts[connectorName] >= connectorLimit
		sch.mu.Unlock()
		if full || sch.ctx.Err() != nil {
			return
		}
		if sch.limiter != nil && !sch.limiter.Allow() {
			return
		}

		workerID := uuid.New().String()
		job, err := sch.store.ClaimNextJob(sch.ctx, workerID)
		if err != nil {
			sch.log.Error().Err(err).Msg("Error claiming job")
			return
		}
		if job == nil {
			return
		}

		sch.log.Debug().Str("job_id", job.ID).Str("job", job.Name).Str("worker_id", workerID).Msg("Dispatched job")

		sch.mu.Lock()
		sch.activeWorkers++
		sch.connectorCounts[connectorName]++
		sch.mu.Unlock()

		sch.wg.Add(1)
		go sch.runWorker(job, workerID)
	}
}

// runWorker executes a job and records its outcome.
func (sch *Scheduler) runWorker(job *models.Job, workerID string) {
	defer sch.wg.Done()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.connectorCounts[sch.connector.Name()]--
		sch.mu.Unlock()
	}()

	log := sch.log.With().Str("job_id", job.ID).Str("worker_id", workerID).Logger()

	// Bookkeeping uses a fresh context so a shutdown does not leave the job half-recorded.
	bg := context.Background()

	run, err := sch.store.CreateRun(bg, job.ID, job.Command, job.Args)
	if err != nil {
		log.Error().Err(err).Msg("Error creating run")
		sch.complete(bg, log, job.ID, models.JobStatusFailed)
		return
	}

	status := models.JobStatusSucceeded
	var exitCode int
	var stdout, stderr string

	result, execErr := sch.connector.Execute(sch.ctx, job)
	if execErr != nil {
		status = models.JobStatusFailed
		exitCode = -1
		stderr = execErr.Error()
	} else {
		exitCode = result.ExitCode
		stdout = result.Stdout
		stderr = result.Stderr
		if exitCode != 0 {
			status = models.JobStatusFailed
		}
	}

	if err := sch.store.UpdateRun(bg, run.ID, exitCode, stdout, stderr); err != nil {
		log.Error().Err(err).Msg("Error updating run")
	}
	sch.complete(bg, log, job.ID, status)
	log.Info().Str("status", string(status)).Int("exit_code", exitCode).Msg("Job finished")
}

func (sch *Scheduler) complete(ctx context.Context, log zerolog.Logger, jobID string, status models.JobStatus) {
	if err := sch.store.CompleteJob(ctx, jobID, status); err != nil {
		log.Error().Err(err).Msg("Error completing job")
	}
}

// Stats returns current scheduler statistics.
func (sch *Scheduler) Stats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	counts := make(map[string]int, len(sch.connectorCounts))
	for k, v := range sch.connectorCounts {
		counts[k] = v
	}

	recurring := make([]RecurringStatus, 0, len(sch.recurring))
	for _, r := range sch.recurring {
		st := RecurringStatus{Name: r.name, Spec: r.spec, LastRun: r.lastRun, LastError: r.lastError}
		if sch.running {
			st.NextRun = sch.cron.Entry(r.entryID).Next
		}
		recurring = append(recurring, st)
	}

	return Stats{
		ActiveWorkers:   sch.activeWorkers,
		GlobalMax:       sch.config.GlobalMax,
		ConnectorCounts: counts,
		Recurring:       recurring,
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
