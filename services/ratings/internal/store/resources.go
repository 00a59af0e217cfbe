package store

import (
	"context"
	"time"
)

// ResourceSummary is the derived rating aggregate attached to a resource.
// It is always recomputed from the full active rating set, never patched.
type ResourceSummary struct {
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int     `json:"total_ratings"`
}

// Resource is an uploaded study material's metadata. File bytes live in the
// file gateway; only the storage key is kept here.
type Resource struct {
	ID          string          `json:"id"`
	UploaderID  string          `json:"uploader_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	FileKey     string          `json:"file_key"`
	Summary     ResourceSummary `json:"summary"`
	// SummaryVersion increments on every summary write and backs the
	// optimistic compare-and-set in UpdateSummary.
	SummaryVersion int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResourceCreateParams captures resource metadata registration.
type ResourceCreateParams struct {
	UploaderID  string
	Title       string
	Description string
	FileKey     string
}

// ResourceStore defines the contract for resource persistence.
type ResourceStore interface {
	Create(ctx context.Context, p ResourceCreateParams) (Resource, error)
	Get(ctx context.Context, id string) (Resource, error)

	// UpdateSummary persists the recomputed summary if expectedVersion still
	// matches the stored one, returning ErrConflict otherwise so the caller
	// can redo the whole read-recompute-write.
	UpdateSummary(ctx context.Context, id string, s ResourceSummary, expectedVersion int64) error
}
