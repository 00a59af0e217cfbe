// Package store provides persistence for resource ratings and the rated
// resources' derived summaries, with an in-memory backend for development
// and a Postgres backend for production.
package store

import (
	"context"
	"errors"
	"time"
)

// Rating value bounds and moderation constants.
const (
	MinValue       = 1
	MaxValue       = 5
	MaxFeedbackLen = 500

	// ReportThreshold is the number of distinct reporters that permanently
	// hides a rating.
	ReportThreshold = 3

	DefaultReportReason = "Inappropriate content"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidValue    = errors.New("rating value out of range")
	ErrFeedbackTooLong = errors.New("feedback exceeds maximum length")
	ErrSelfRating      = errors.New("uploader cannot rate own resource")
	ErrConflict        = errors.New("concurrent modification")
)

// RatingStatus is the visibility state of a rating. The hidden state is
// terminal: the store never transitions a rating back to active.
type RatingStatus string

const (
	StatusActive RatingStatus = "active"
	StatusHidden RatingStatus = "hidden"
)

// HelpfulVote marks one user's helpful vote on a rating.
type HelpfulVote struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Report is one user's abuse report against a rating.
type Report struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Rating is a single user's score and feedback for one resource.
// There is at most one per (user, resource) pair.
type Rating struct {
	ID           string        `json:"id"`
	ResourceID   string        `json:"resource_id"`
	UserID       string        `json:"user_id"`
	Value        int           `json:"value"`
	Feedback     string        `json:"feedback,omitempty"`
	HelpfulVotes []HelpfulVote `json:"helpful_votes,omitempty"`
	HelpfulCount int           `json:"helpful_count"`
	Reports      []Report      `json:"reports,omitempty"`
	Status       RatingStatus  `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    *time.Time    `json:"updated_at,omitempty"`
}

// UpsertParams captures a rating submission.
type UpsertParams struct {
	ResourceID string
	UserID     string
	Value      int
	Feedback   string
}

func (p UpsertParams) validate() error {
	if p.Value < MinValue || p.Value > MaxValue {
		return ErrInvalidValue
	}
	if len(p.Feedback) > MaxFeedbackLen {
		return ErrFeedbackTooLong
	}
	return nil
}

// RatingStore defines the contract for rating persistence.
type RatingStore interface {
	// Upsert creates the (user, resource) rating or overwrites its value and
	// feedback in place. Votes, reports and status are never touched by an
	// overwrite. The bool reports whether a new record was created.
	Upsert(ctx context.Context, p UpsertParams) (Rating, bool, error)

	// ToggleHelpful flips the user's membership in the rating's helpful-vote
	// set. Repeated calls alternate state; the call never fails for repeats.
	ToggleHelpful(ctx context.Context, ratingID, userID string) (Rating, error)

	// Report appends an abuse report unless the user already reported this
	// rating (no-op). The bool is true only on the call whose report crossed
	// ReportThreshold and hid the rating.
	Report(ctx context.Context, ratingID, userID, reason string) (Rating, bool, error)

	FindByID(ctx context.Context, ratingID string) (Rating, error)

	// FindByResource returns every rating for the resource, hidden included.
	// Callers filter by Status when computing public aggregates.
	FindByResource(ctx context.Context, resourceID string) ([]Rating, error)
}
