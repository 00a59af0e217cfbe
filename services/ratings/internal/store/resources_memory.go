package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryResourceStore is a development-only in-memory implementation.
type InMemoryResourceStore struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

func NewInMemoryResourceStore() *InMemoryResourceStore {
	return &InMemoryResourceStore{resources: make(map[string]*Resource)}
}

func (s *InMemoryResourceStore) Create(_ context.Context, p ResourceCreateParams) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Resource{
		ID:          uuid.NewString(),
		UploaderID:  p.UploaderID,
		Title:       p.Title,
		Description: p.Description,
		FileKey:     p.FileKey,
		CreatedAt:   time.Now().UTC(),
	}
	s.resources[r.ID] = r
	return *r, nil
}

func (s *InMemoryResourceStore) Get(_ context.Context, id string) (Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return *r, nil
}

func (s *InMemoryResourceStore) UpdateSummary(_ context.Context, id string, sum ResourceSummary, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[id]
	if !ok {
		return ErrNotFound
	}
	if r.SummaryVersion != expectedVersion {
		return ErrConflict
	}
	r.Summary = sum
	r.SummaryVersion++
	return nil
}
