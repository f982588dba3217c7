// Package models defines the core domain types for jobrunr.
package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusEnqueued   JobStatus = "enqueued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusEnqueued, JobStatusProcessing, JobStatusSucceeded, JobStatusFailed:
		return true
	}
	return false
}

// Job is a unit of background work: a command executed through a connector.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Command     string     `json:"command"`
	Args        []string   `json:"args"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedBy string     `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Run represents one execution attempt of a job.
type Run struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// JobOutput is what executing a job's command produced. A non-zero exit code
// is reported here rather than as an error.
type JobOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Metadata is a small named value owned by a scope such as "cluster".
type Metadata struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known metadata keys.
const (
	MetadataOwnerCluster         = "cluster"
	MetadataClusterID            = "id"
	MetadataSucceededJobsCounter = "succeeded-jobs-counter"
)

// JobStats summarises the job table. AllTimeSucceeded survives job deletion.
type JobStats struct {
	Enqueued         int64     `json:"enqueued"`
	Processing       int64     `json:"processing"`
	Succeeded        int64     `json:"succeeded"`
	Failed           int64     `json:"failed"`
	Total            int64     `json:"total"`
	AllTimeSucceeded int64     `json:"all_time_succeeded"`
	Timestamp        time.Time `json:"timestamp"`
}

// NotificationType identifies a dashboard notification. At most one
// notification of each type exists at a time.
type NotificationType string

const (
	NotificationNewVersion NotificationType = "new-version-available"
)

// DashboardNotification is the persisted form of a dashboard notification.
type DashboardNotification struct {
	Type      NotificationType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
