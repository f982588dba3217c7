package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
)

// GetNotification returns the dashboard notification of the given type, or
// nil if none is stored.
func (s *Store) GetNotification(ctx context.Context, typ models.NotificationType) (*models.DashboardNotification, error) {
	n := &models.DashboardNotification{}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT type, payload, created_at, updated_at FROM dashboard_notifications WHERE type = ?`,
		typ,
	).Scan(&n.Type, &payload, &n.CreatedAt, &n.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	n.Payload = []byte(payload)
	return n, nil
}

// SaveNotification creates the notification or replaces the payload of an
// existing one of the same type. CreatedAt is kept on replace.
func (s *Store) SaveNotification(ctx context.Context, typ models.NotificationType, payload []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dashboard_notifications (type, payload, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(type) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		typ, string(payload), now, now,
	)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// DeleteNotification removes the notification of the given type. Deleting a
// missing notification is not an error.
func (s *Store) DeleteNotification(ctx context.Context, typ models.NotificationType) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dashboard_notifications WHERE type = ?`, typ)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// ListNotifications returns all stored notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]models.DashboardNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, payload, created_at, updated_at FROM dashboard_notifications ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.DashboardNotification
	for rows.Next() {
		var n models.DashboardNotification
		var payload string
		if err := rows.Scan(&n.Type, &payload, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Payload = []byte(payload)
		out = append(out, n)
	}
	return out, rows.Err()
}
