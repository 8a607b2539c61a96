package repository

import (
	"context"

	"cardbored-api/internal/model"
)

// SnapshotStore persists the bulk price index between restarts.
type SnapshotStore interface {
	// Load returns the last saved snapshot, or nil when nothing was saved yet.
	Load(ctx context.Context) (*model.Snapshot, error)

	// Save replaces the stored snapshot with snap.
	Save(ctx context.Context, snap *model.Snapshot) error

	// Close releases the backing connection.
	Close() error
}
