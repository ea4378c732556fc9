package syncer

import "github.com/driftnotes/driftsync/internal/client/models"

// Resolve picks the winner between two versions of the same record under
// last-writer-wins. A strictly greater updated_at wins; equal timestamps
// break the tie on the greater content bytes, and an equal-content residual
// tie goes to the tombstone. The order is total over (updated_at, content,
// deleted), so both replicas pick the same winner without coordination. The
// loser is overwritten in place and keeps the record id.
//
// remoteWon reports whether the remote version is the winner; conflict
// reports whether the two versions actually diverged (a resolution worth
// logging).
func Resolve(local, remote models.Record) (winner models.Record, remoteWon, conflict bool) {
	if local.UpdatedAt == remote.UpdatedAt && local.Content == remote.Content && local.Deleted == remote.Deleted {
		return local, false, false
	}

	switch {
	case remote.UpdatedAt > local.UpdatedAt:
		return remote, true, true
	case remote.UpdatedAt < local.UpdatedAt:
		return local, false, true
	case remote.Content > local.Content:
		return remote, true, true
	case remote.Content < local.Content:
		return local, false, true
	case remote.Deleted:
		// equal timestamp and content, differing tombstone state
		return remote, true, true
	default:
		return local, false, true
	}
}
