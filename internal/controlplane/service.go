// Package controlplane provides the HTTP API and service layer for the jobrunr server.
package controlplane

import (
	"context"
	"fmt"
	"strings"

	"github.com/akuafrica/jobrunr/internal/dashboard"
	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/akuafrica/jobrunr/internal/store"
)

// CommandPolicy decides which commands may be enqueued as jobs.
type CommandPolicy interface {
	IsAllowed(cmd string, args []string) bool
}

// Service provides the control plane business logic.
type Service struct {
	store         *store.Store
	notifications *dashboard.Manager
	policy        CommandPolicy
}

// NewService creates a new control plane service.
func NewService(s *store.Store, notifications *dashboard.Manager, policy CommandPolicy) *Service {
	return &Service{
		store:         s,
		notifications: notifications,
		policy:        policy,
	}
}

// CreateJob enqueues a job after checking the command policy accepts it.
func (s *Service) CreateJob(ctx context.Context, name, command string, args []string) (*models.Job, error) {
	name = strings.TrimSpace(name)
	command = strings.TrimSpace(command)
	if name == "" || command == "" {
		return nil, ErrInvalidJob
	}
	if !s.policy.IsAllowed(command, args) {
		return nil, fmt.Errorf("%w: %s %s", ErrCommandNotAllowed, command, strings.Join(args, " "))
	}
	return s.store.CreateJob(ctx, name, command, args)
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, status string) ([]models.Job, error) {
	st := models.JobStatus(status)
	if st != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return s.store.ListJobs(ctx, st)
}

// GetJobRuns returns the execution history of a job.
func (s *Service) GetJobRuns(ctx context.Context, id string) ([]models.Run, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetRunsForJob(ctx, id)
}

// GetStats returns job counts.
func (s *Service) GetStats(ctx context.Context) (models.JobStats, error) {
	return s.store.GetJobStats(ctx)
}

// ListNotifications returns the current dashboard notifications.
func (s *Service) ListNotifications(ctx context.Context) ([]models.DashboardNotification, error) {
	return s.notifications.List(ctx)
}
