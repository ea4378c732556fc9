// Package notes is the user-facing write path. Every operation lands in
// the local store synchronously and nudges the sync engine; nothing here
// ever waits on the network.
package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftnotes/driftsync/internal/client/models"
	"github.com/driftnotes/driftsync/internal/client/store"
)

// Kicker requests a sync cycle outside the regular cadence.
type Kicker interface {
	Kick()
}

// Service exposes note CRUD over the local store.
type Service struct {
	repo   *store.RecordRepository
	kicker Kicker
	now    func() time.Time
}

// NewService wires the note service to the local store and the sync
// engine's kick channel.
func NewService(repo *store.RecordRepository, kicker Kicker) *Service {
	return &Service{repo: repo, kicker: kicker, now: time.Now}
}

// Create stores a new note under a fresh id and returns it.
func (s *Service) Create(ctx context.Context, content string) (*models.Record, error) {
	rec := &models.Record{ID: uuid.NewString(), Content: content}
	rec.Touch(s.now())

	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	s.kicker.Kick()
	return rec, nil
}

// Update overwrites a note's content with a fresh timestamp.
func (s *Service) Update(ctx context.Context, id, content string) (*models.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, fmt.Errorf("record %s is deleted", id)
	}

	rec.Content = content
	rec.Touch(s.now())
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	s.kicker.Kick()
	return rec, nil
}

// Delete tombstones a note. The id and timestamp survive so the delete
// replicates.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id, s.now().UnixMilli()); err != nil {
		return err
	}
	s.kicker.Kick()
	return nil
}

// Get returns one note, tombstones included.
func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns all live notes, most recently updated first.
func (s *Service) List(ctx context.Context) ([]models.Record, error) {
	return s.repo.List(ctx)
}
