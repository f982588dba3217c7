package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/google/uuid"
)

// GetMetadata returns the metadata value stored under (name, owner), or nil
// if none exists.
func (s *Store) GetMetadata(ctx context.Context, name, owner string) (*models.Metadata, error) {
	m := &models.Metadata{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, owner, value, created_at, updated_at FROM metadata WHERE name = ? AND owner = ?`,
		name, owner,
	).Scan(&m.Name, &m.Owner, &m.Value, &m.CreatedAt, &m.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata %s/%s: %w", owner, name, err)
	}
	return m, nil
}

// SaveMetadata creates or replaces a metadata value.
func (s *Store) SaveMetadata(ctx context.Context, name, owner, value string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (name, owner, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name, owner) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, owner, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("save metadata %s/%s: %w", owner, name, err)
	}
	return nil
}

// EnsureClusterID returns the cluster identifier, generating and persisting
// a new one on first use.
func (s *Store) EnsureClusterID(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (name, owner, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name, owner) DO NOTHING`,
		models.MetadataClusterID, models.MetadataOwnerCluster, uuid.New().String(), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create cluster id: %w", err)
	}

	m, err := s.GetMetadata(ctx, models.MetadataClusterID, models.MetadataOwnerCluster)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("cluster id missing after insert")
	}
	return m.Value, nil
}
