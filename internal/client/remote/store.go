// Package remote is the client's access to the shared sync database. A
// connection lives only as long as the credential that opened it.
package remote

import (
	"context"

	"github.com/driftnotes/driftsync/internal/client/models"
)

// Store is the sync engine's view of the remote database.
type Store interface {
	// PullSince returns remote records changed strictly after the given
	// unix-millisecond watermark, tombstones included.
	PullSince(ctx context.Context, since int64) ([]models.Record, error)

	// Push uploads resolved local records. Records older than the remote
	// copy are dropped server-side, so replaying a push is harmless.
	Push(ctx context.Context, records []models.Record) error

	// Close releases the connection.
	Close() error
}
