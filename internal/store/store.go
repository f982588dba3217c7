// Package store provides SQLite-backed persistence for jobrunr.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrJobNotFound indicates no job exists with the given ID.
var ErrJobNotFound = errors.New("job not found")

// Store provides access to the jobrunr SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT,
		status TEXT NOT NULL DEFAULT 'enqueued',
		processed_by TEXT,
		processed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT,
		exit_code INTEGER,
		stdout TEXT,
		stderr TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (job_id) REFERENCES jobs(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (name, owner)
	);

	CREATE TABLE IF NOT EXISTS dashboard_notifications (
		type TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_job_id ON runs(job_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Job Operations ---

const jobColumns = `id, name, command, args, status, processed_by, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var argsJSON sql.NullString
	var processedBy sql.NullString
	var processedAt sql.NullTime

	if err := row.Scan(&job.ID, &job.Name, &job.Command, &argsJSON, &job.Status, &processedBy, &processedAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if argsJSON.Valid && argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &job.Args); err != nil {
			return nil, fmt.Errorf("decode job args: %w", err)
		}
	}
	if processedBy.Valid {
		job.ProcessedBy = processedBy.String
	}
	if processedAt.Valid {
		job.ProcessedAt = &processedAt.Time
	}
	return &job, nil
}

// CreateJob inserts a new enqueued job.
func (s *Store) CreateJob(ctx context.Context, name, command string, args []string) (*models.Job, error) {
	now := time.Now().UTC()
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode job args: %w", err)
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Name:      name,
		Command:   command,
		Args:      args,
		Status:    models.JobStatusEnqueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, command, args, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Command, string(argsJSON), job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID. It returns nil, nil when no job matches.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimNextJob atomically moves the oldest enqueued job to processing and
// returns it. It returns nil, nil when nothing is enqueued.
func (s *Store) ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		models.JobStatusEnqueued,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query enqueued job: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, processed_by = ?, processed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.JobStatusProcessing, workerID, now, now, job.ID, models.JobStatusEnqueued,
	)
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		// Claimed by someone else between select and update.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	job.Status = models.JobStatusProcessing
	job.ProcessedBy = workerID
	job.ProcessedAt = &now
	job.UpdatedAt = now
	return job, nil
}

// CompleteJob moves a processing job to its final status. A succeeded job
// also bumps the cluster-wide succeeded counter in the same transaction.
func (s *Store) CompleteJob(ctx context.Context, id string, status models.JobStatus) error {
	if status != models.JobStatusSucceeded && status != models.JobStatusFailed {
		return fmt.Errorf("invalid final status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		return ErrJobNotFound
	}

	if status == models.JobStatusSucceeded {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO metadata (name, owner, value, created_at, updated_at) VALUES (?, ?, '1', ?, ?)
			 ON CONFLICT(name, owner) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT), updated_at = excluded.updated_at`,
			models.MetadataSucceededJobsCounter, models.MetadataOwnerCluster, now, now,
		)
		if err != nil {
			return fmt.Errorf("increment succeeded counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RequeueProcessingJobs puts jobs left in processing by a previous server
// instance back into the queue. It returns the number of jobs requeued.
func (s *Store) RequeueProcessingJobs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, processed_by = NULL, processed_at = NULL, updated_at = ? WHERE status = ?`,
		models.JobStatusEnqueued, time.Now().UTC(), models.JobStatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue jobs: %w", err)
	}
	return result.RowsAffected()
}

// GetJobStats counts jobs per status.
func (s *Store) GetJobStats(ctx context.Context) (models.JobStats, error) {
	stats := models.JobStats{Timestamp: time.Now().UTC()}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("query job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan job stats: %w", err)
		}
		switch status {
		case models.JobStatusEnqueued:
			stats.Enqueued = count
		case models.JobStatusProcessing:
			stats.Processing = count
		case models.JobStatusSucceeded:
			stats.Succeeded = count
		case models.JobStatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	counter, err := s.GetMetadata(ctx, models.MetadataSucceededJobsCounter, models.MetadataOwnerCluster)
	if err != nil {
		return stats, err
	}
	if counter != nil {
		n, err := strconv.ParseInt(counter.Value, 10, 64)
		if err != nil {
			return stats, fmt.Errorf("parse succeeded counter %q: %w", counter.Value, err)
		}
		stats.AllTimeSucceeded = n
	}
	return stats, nil
}

// --- Run Operations ---

// CreateRun inserts a new run record.
func (s *Store) CreateRun(ctx context.Context, jobID, command string, args []string) (*models.Run, error) {
	now := time.Now().UTC()
	argsJSON, _ := json.Marshal(args)

	run := &models.Run{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Command:   command,
		Args:      args,
		StartedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, command, args, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.JobID, run.Command, string(argsJSON), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRun updates a run with results.
func (s *Store) UpdateRun(ctx context.Context, id string, exitCode int, stdout, stderr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET exit_code = ?, stdout = ?, stderr = ?, ended_at = ? WHERE id = ?`,
		exitCode, stdout, stderr, time.Now().UTC(), id,
	)
	return err
}

// GetRunsForJob returns all runs for a job, newest first.
func (s *Store) GetRunsForJob(ctx context.Context, jobID string) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, command, args, exit_code, stdout, stderr, started_at, ended_at FROM runs WHERE job_id = ? ORDER BY started_at DESC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var argsJSON string
		var endedAt sql.NullTime
		var exitCode sql.NullInt64
		var stdout, stderr sql.NullString

		if err := rows.Scan(&run.ID, &run.JobID, &run.Command, &argsJSON, &exitCode, &stdout, &stderr, &run.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if argsJSON != "" {
			json.Unmarshal([]byte(argsJSON), &run.Args)
		}
		run.ExitCode = int(exitCode.Int64)
		run.Stdout = stdout.String
		run.Stderr = stderr.String
		if endedAt.Valid {
			run.EndedAt = endedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
