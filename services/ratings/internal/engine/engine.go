// Package engine maintains a resource's derived rating statistics across
// concurrent submissions, helpful votes and reports.
//
// Every operation that can change which ratings count toward a resource's
// summary runs the full recompute inside a critical section scoped to that
// resource's id, so two interleaved submissions can never both write a
// summary computed from a stale rating set. Operations on different
// resources never block each other, and no operation holds more than one
// resource scope at a time.
package engine

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/example/campus-share/internal/platform/analytics"
	"github.com/example/campus-share/services/ratings/internal/store"
)

// maxRecomputeAttempts bounds the optimistic read-recompute-write retries
// before ErrConflict surfaces to the caller.
const maxRecomputeAttempts = 5

// SummaryCache is the engine's view of the summary cache. Satisfied by
// cache.SummaryCache.
type SummaryCache interface {
	Get(ctx context.Context, resourceID string) (store.ResourceSummary, bool, error)
	Set(ctx context.Context, resourceID string, s store.ResourceSummary) error
}

// Options carries the engine's optional collaborators. All fields may be nil.
type Options struct {
	Cache     SummaryCache
	Analytics *analytics.Publisher
	Logger    *zap.Logger
}

type Engine struct {
	ratings   store.RatingStore
	resources store.ResourceStore
	summaries SummaryCache
	events    *analytics.Publisher
	log       *zap.Logger

	locks keyedMutex
}

func New(ratings store.RatingStore, resources store.ResourceStore, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		ratings:   ratings,
		resources: resources,
		summaries: opts.Cache,
		events:    opts.Analytics,
		log:       log,
	}
}

// SubmitResult is the outcome of a rating submission: the stored record, the
// freshly recomputed summary, and whether the record was newly created.
type SubmitResult struct {
	Rating  store.Rating          `json:"rating"`
	Summary store.ResourceSummary `json:"summary"`
	Created bool                  `json:"-"`
}

// SubmitRating upserts the user's rating for a resource and recomputes the
// resource summary before returning. The uploader of a resource cannot rate
// it (store.ErrSelfRating).
func (e *Engine) SubmitRating(ctx context.Context, resourceID, userID string, value int, feedback string) (SubmitResult, error) {
	res, err := e.resources.Get(ctx, resourceID)
	if err != nil {
		return SubmitResult{}, err
	}
	if res.UploaderID == userID {
		return SubmitResult{}, store.ErrSelfRating
	}

	unlock := e.locks.lock(resourceID)
	defer unlock()

	rating, created, err := e.ratings.Upsert(ctx, store.UpsertParams{
		ResourceID: resourceID,
		UserID:     userID,
		Value:      value,
		Feedback:   feedback,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	summary, err := e.recompute(ctx, resourceID)
	if err != nil {
		return SubmitResult{}, err
	}

	e.events.Publish(analytics.SubjectRatingSubmitted, "rating_submitted", userID, map[string]any{
		"resource_id": resourceID,
		"value":       value,
		"created":     created,
	})
	return SubmitResult{Rating: rating, Summary: summary, Created: created}, nil
}

// ToggleHelpful flips the user's helpful mark on a rating. Helpful votes do
// not affect the summary, so no recompute runs.
func (e *Engine) ToggleHelpful(ctx context.Context, ratingID, userID string) (store.Rating, error) {
	rating, err := e.ratings.ToggleHelpful(ctx, ratingID, userID)
	if err != nil {
		return store.Rating{}, err
	}
	e.events.Publish(analytics.SubjectRatingHelpfulToggled, "rating_helpful_toggled", userID, map[string]any{
		"rating_id":     ratingID,
		"helpful_count": rating.HelpfulCount,
	})
	return rating, nil
}

// ReportRating records an abuse report. Only a report that crosses the
// auto-hide threshold changes the rating's visibility, and only then does
// the resource summary get recomputed.
func (e *Engine) ReportRating(ctx context.Context, ratingID, userID, reason string) (store.Rating, error) {
	rating, hiddenNow, err := e.ratings.Report(ctx, ratingID, userID, reason)
	if err != nil {
		return store.Rating{}, err
	}

	e.events.Publish(analytics.SubjectRatingReported, "rating_reported", userID, map[string]any{
		"rating_id":    ratingID,
		"report_count": len(rating.Reports),
	})

	if hiddenNow {
		unlock := e.locks.lock(rating.ResourceID)
		if _, err := e.recompute(ctx, rating.ResourceID); err != nil {
			unlock()
			return store.Rating{}, err
		}
		unlock()

		e.events.Publish(analytics.SubjectRatingHidden, "rating_hidden", userID, map[string]any{
			"rating_id":    rating.ID,
			"resource_id":  rating.ResourceID,
			"report_count": len(rating.Reports),
		})
	}
	return rating, nil
}

// RecomputeSummary rebuilds and persists the resource's summary from the
// current rating set. Idempotent.
func (e *Engine) RecomputeSummary(ctx context.Context, resourceID string) (store.ResourceSummary, error) {
	unlock := e.locks.lock(resourceID)
	defer unlock()
	return e.recompute(ctx, resourceID)
}

// Summary returns the resource's current summary, consulting the cache
// first. Cache misses fall back to the store without populating the cache:
// only recompute writes entries, under the resource lock, so a slow reader
// can never resurrect a summary a concurrent recompute just replaced.
func (e *Engine) Summary(ctx context.Context, resourceID string) (store.ResourceSummary, error) {
	if e.summaries != nil {
		if s, ok, err := e.summaries.Get(ctx, resourceID); err == nil && ok {
			return s, nil
		} else if err != nil {
			e.log.Warn("summary cache read failed", zap.String("resource_id", resourceID), zap.Error(err))
		}
	}

	res, err := e.resources.Get(ctx, resourceID)
	if err != nil {
		return store.ResourceSummary{}, err
	}
	return res.Summary, nil
}

// recompute is the read-recompute-write cycle. The caller must hold the
// resource's lock; the version check still guards against writers outside
// this process.
func (e *Engine) recompute(ctx context.Context, resourceID string) (store.ResourceSummary, error) {
	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		res, err := e.resources.Get(ctx, resourceID)
		if err != nil {
			return store.ResourceSummary{}, err
		}
		ratings, err := e.ratings.FindByResource(ctx, resourceID)
		if err != nil {
			return store.ResourceSummary{}, err
		}

		summary := Summarize(ratings)
		err = e.resources.UpdateSummary(ctx, resourceID, summary, res.SummaryVersion)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return store.ResourceSummary{}, err
		}

		// Written through while the resource lock is held, so cached
		// entries only ever advance together with the persisted summary.
		if e.summaries != nil {
			if err := e.summaries.Set(ctx, resourceID, summary); err != nil {
				e.log.Warn("summary cache write failed", zap.String("resource_id", resourceID), zap.Error(err))
			}
		}
		return summary, nil
	}
	return store.ResourceSummary{}, store.ErrConflict
}

// Summarize computes the aggregate over the active ratings only: count, and
// mean value rounded to one decimal place (0 for an empty set).
func Summarize(ratings []store.Rating) store.ResourceSummary {
	sum, total := 0, 0
	for _, r := range ratings {
		if r.Status == store.StatusActive {
			sum += r.Value
			total++
		}
	}
	if total == 0 {
		return store.ResourceSummary{}
	}
	avg := math.Round(float64(sum)/float64(total)*10) / 10
	return store.ResourceSummary{AverageRating: avg, TotalRatings: total}
}
