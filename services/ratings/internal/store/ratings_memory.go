package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRatingStore is a development-only in-memory implementation.
type InMemoryRatingStore struct {
	mu         sync.RWMutex
	ratings    map[string]*Rating           // id -> rating
	byResource map[string]map[string]string // resource_id -> user_id -> rating id
}

func NewInMemoryRatingStore() *InMemoryRatingStore {
	return &InMemoryRatingStore{
		ratings:    make(map[string]*Rating),
		byResource: make(map[string]map[string]string),
	}
}

func (s *InMemoryRatingStore) Upsert(_ context.Context, p UpsertParams) (Rating, bool, error) {
	if err := p.validate(); err != nil {
		return Rating{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byResource[p.ResourceID][p.UserID]; ok {
		r := s.ratings[id]
		r.Value = p.Value
		r.Feedback = p.Feedback
		now := time.Now().UTC()
		r.UpdatedAt = &now
		return copyRating(r), false, nil
	}

	r := &Rating{
		ID:         uuid.NewString(),
		ResourceID: p.ResourceID,
		UserID:     p.UserID,
		Value:      p.Value,
		Feedback:   p.Feedback,
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	s.ratings[r.ID] = r
	if s.byResource[p.ResourceID] == nil {
		s.byResource[p.ResourceID] = make(map[string]string)
	}
	s.byResource[p.ResourceID][p.UserID] = r.ID
	return copyRating(r), true, nil
}

func (s *InMemoryRatingStore) ToggleHelpful(_ context.Context, ratingID, userID string) (Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ratings[ratingID]
	if !ok {
		return Rating{}, ErrNotFound
	}

	removed := false
	for i, v := range r.HelpfulVotes {
		if v.UserID == userID {
			r.HelpfulVotes = append(r.HelpfulVotes[:i], r.HelpfulVotes[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		r.HelpfulVotes = append(r.HelpfulVotes, HelpfulVote{UserID: userID, CreatedAt: time.Now().UTC()})
	}
	// Re-derived from the set on every mutation so the cache cannot drift.
	r.HelpfulCount = len(r.HelpfulVotes)
	return copyRating(r), nil
}

func (s *InMemoryRatingStore) Report(_ context.Context, ratingID, userID, reason string) (Rating, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ratings[ratingID]
	if !ok {
		return Rating{}, false, ErrNotFound
	}

	for _, rep := range r.Reports {
		if rep.UserID == userID {
			return copyRating(r), false, nil
		}
	}

	if reason == "" {
		reason = DefaultReportReason
	}
	r.Reports = append(r.Reports, Report{UserID: userID, Reason: reason, CreatedAt: time.Now().UTC()})

	// active -> hidden fires exactly once; hidden is terminal.
	if r.Status == StatusActive && len(r.Reports) >= ReportThreshold {
		r.Status = StatusHidden
		return copyRating(r), true, nil
	}
	return copyRating(r), false, nil
}

func (s *InMemoryRatingStore) FindByID(_ context.Context, ratingID string) (Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.ratings[ratingID]
	if !ok {
		return Rating{}, ErrNotFound
	}
	return copyRating(r), nil
}

func (s *InMemoryRatingStore) FindByResource(_ context.Context, resourceID string) ([]Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Rating{}
	for _, id := range s.byResource[resourceID] {
		out = append(out, copyRating(s.ratings[id]))
	}
	return out, nil
}

// copyRating returns a deep copy so callers never share slices with the store.
func copyRating(r *Rating) Rating {
	out := *r
	if r.HelpfulVotes != nil {
		out.HelpfulVotes = append([]HelpfulVote(nil), r.HelpfulVotes...)
	}
	if r.Reports != nil {
		out.Reports = append([]Report(nil), r.Reports...)
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}
