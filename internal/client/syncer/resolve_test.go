package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftnotes/driftsync/internal/client/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		local      models.Record
		remote     models.Record
		wantWinner string
		remoteWon  bool
		conflict   bool
	}{
		{
			name:       "remote newer wins",
			local:      models.Record{ID: "r", Content: "a", UpdatedAt: 100},
			remote:     models.Record{ID: "r", Content: "b", UpdatedAt: 150},
			wantWinner: "b", remoteWon: true, conflict: true,
		},
		{
			name:       "local newer wins",
			local:      models.Record{ID: "r", Content: "b", UpdatedAt: 150},
			remote:     models.Record{ID: "r", Content: "a", UpdatedAt: 100},
			wantWinner: "b", remoteWon: false, conflict: true,
		},
		{
			name:       "tie broken by greater content, remote",
			local:      models.Record{ID: "r", Content: "alpha", UpdatedAt: 100},
			remote:     models.Record{ID: "r", Content: "beta", UpdatedAt: 100},
			wantWinner: "beta", remoteWon: true, conflict: true,
		},
		{
			name:       "tie broken by greater content, local",
			local:      models.Record{ID: "r", Content: "beta", UpdatedAt: 100},
			remote:     models.Record{ID: "r", Content: "alpha", UpdatedAt: 100},
			wantWinner: "beta", remoteWon: false, conflict: true,
		},
		{
			name:       "identical versions are not a conflict",
			local:      models.Record{ID: "r", Content: "same", UpdatedAt: 100},
			remote:     models.Record{ID: "r", Content: "same", UpdatedAt: 100},
			wantWinner: "same", remoteWon: false, conflict: false,
		},
		{
			name:       "remote tombstone newer wins",
			local:      models.Record{ID: "r", Content: "text", UpdatedAt: 100},
			remote:     models.Record{ID: "r", UpdatedAt: 200, Deleted: true},
			wantWinner: "", remoteWon: true, conflict: true,
		},
		{
			name:       "local edit newer than remote tombstone wins",
			local:      models.Record{ID: "r", Content: "revived", UpdatedAt: 300},
			remote:     models.Record{ID: "r", UpdatedAt: 200, Deleted: true},
			wantWinner: "revived", remoteWon: false, conflict: true,
		},
		{
			name:       "equal timestamp and content, remote tombstone wins",
			local:      models.Record{ID: "r", Content: "", UpdatedAt: 100},
			remote:     models.Record{ID: "r", Content: "", UpdatedAt: 100, Deleted: true},
			wantWinner: "", remoteWon: true, conflict: true,
		},
		{
			name:       "equal timestamp and content, local tombstone wins",
			local:      models.Record{ID: "r", Content: "", UpdatedAt: 100, Deleted: true},
			remote:     models.Record{ID: "r", Content: "", UpdatedAt: 100},
			wantWinner: "", remoteWon: false, conflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner, remoteWon, conflict := Resolve(tt.local, tt.remote)
			assert.Equal(t, tt.wantWinner, winner.Content)
			assert.Equal(t, tt.remoteWon, remoteWon)
			assert.Equal(t, tt.conflict, conflict)
		})
	}
}

func TestResolve_Symmetric(t *testing.T) {
	// Swapping the replicas' roles must elect the same version.
	a := models.Record{ID: "r", Content: "a", UpdatedAt: 100}
	b := models.Record{ID: "r", Content: "b", UpdatedAt: 100}

	w1, _, _ := Resolve(a, b)
	w2, _, _ := Resolve(b, a)
	assert.Equal(t, w1.Content, w2.Content)

	// a residual tie on timestamp and content must still converge
	live := models.Record{ID: "r", Content: "", UpdatedAt: 100}
	dead := models.Record{ID: "r", Content: "", UpdatedAt: 100, Deleted: true}
	w3, _, _ := Resolve(live, dead)
	w4, _, _ := Resolve(dead, live)
	assert.True(t, w3.Deleted)
	assert.True(t, w4.Deleted)
}
