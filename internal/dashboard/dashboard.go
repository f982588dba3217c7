// Package dashboard manages the notifications shown to operators on the
// jobrunr dashboard. Each notification type exists at most once; the record's
// presence is itself meaningful.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akuafrica/jobrunr/internal/models"
)

// Notification is a typed dashboard notification. Implementations are
// persisted as JSON.
type Notification interface {
	Type() models.NotificationType
}

// NewVersionNotification signals that a newer release than the running one
// has been published.
type NewVersionNotification struct {
	LatestVersion string `json:"latestVersion"`
}

// Type implements Notification.
func (NewVersionNotification) Type() models.NotificationType {
	return models.NotificationNewVersion
}

// Store is the persistence the Manager needs.
type Store interface {
	GetNotification(ctx context.Context, typ models.NotificationType) (*models.DashboardNotification, error)
	SaveNotification(ctx context.Context, typ models.NotificationType, payload []byte) error
	DeleteNotification(ctx context.Context, typ models.NotificationType) error
	ListNotifications(ctx context.Context) ([]models.DashboardNotification, error)
}

// Manager reads and writes dashboard notifications.
type Manager struct {
	store Store
}

// NewManager creates a notification manager backed by s.
func NewManager(s Store) *Manager {
	return &Manager{store: s}
}

// Load decodes the stored notification of n's type into n. It reports false
// when no such notification exists.
func (m *Manager) Load(ctx context.Context, n Notification) (bool, error) {
	rec, err := m.store.GetNotification(ctx, n.Type())
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if err := json.Unmarshal(rec.Payload, n); err != nil {
		return false, fmt.Errorf("decode %s notification: %w", n.Type(), err)
	}
	return true, nil
}

// Notify creates the notification or replaces the existing one of the same type.
func (m *Manager) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", n.Type(), err)
	}
	return m.store.SaveNotification(ctx, n.Type(), payload)
}

// Delete removes the notification of the given type, if any.
func (m *Manager) Delete(ctx context.Context, typ models.NotificationType) error {
	return m.store.DeleteNotification(ctx, typ)
}

// List returns every stored notification.
func (m *Manager) List(ctx context.Context) ([]models.DashboardNotification, error) {
	return m.store.ListNotifications(ctx)
}
