package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/campus-share/internal/platform/api"
	"github.com/example/campus-share/internal/platform/auth"
	"github.com/example/campus-share/services/ratings/internal/engine"
	"github.com/example/campus-share/services/ratings/internal/store"
)

type submitRatingRequest struct {
	Value    int    `json:"value"`
	Feedback string `json:"feedback"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

// ratingView is the public shape of a rating: reporter identities are never
// echoed back, only how many reports exist.
type ratingView struct {
	store.Rating
	Reports     []store.Report `json:"reports,omitempty"`
	ReportCount int            `json:"report_count"`
}

func viewRating(r store.Rating) ratingView {
	return ratingView{Rating: r, ReportCount: len(r.Reports)}
}

type submitRatingResponse struct {
	Rating  ratingView            `json:"rating"`
	Summary store.ResourceSummary `json:"summary"`
}

type listRatingsResponse struct {
	Summary    store.ResourceSummary `json:"summary"`
	Ratings    []ratingView          `json:"ratings"`
	UserRating *ratingView           `json:"user_rating,omitempty"`
}

// SubmitRating handles POST /v1/resources/{resource_id}/ratings.
func SubmitRating(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		resourceID := strings.TrimSpace(chi.URLParam(r, "resource_id"))
		if resourceID == "" {
			api.BadRequest(w, "MISSING_ID", "resource_id is required", "", nil)
			return
		}

		var req submitRatingRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}

		result, err := e.SubmitRating(r.Context(), resourceID, userID, req.Value, req.Feedback)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		api.WriteJSON(w, status, submitRatingResponse{
			Rating:  viewRating(result.Rating),
			Summary: result.Summary,
		})
	}
}

// GetRatings handles GET /v1/resources/{resource_id}/ratings: the summary
// plus the active ratings. An authenticated caller additionally gets their
// own rating echoed even when hidden; the identity comes from the bearer
// token, never from request input, so hidden content stays invisible to
// everyone but its author.
func GetRatings(e *engine.Engine, ratings store.RatingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := strings.TrimSpace(chi.URLParam(r, "resource_id"))
		if resourceID == "" {
			api.BadRequest(w, "MISSING_ID", "resource_id is required", "", nil)
			return
		}

		summary, err := e.Summary(r.Context(), resourceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		all, err := ratings.FindByResource(r.Context(), resourceID)
		if err != nil {
			api.Internal(w, "")
			return
		}

		resp := listRatingsResponse{Summary: summary, Ratings: []ratingView{}}
		uid, _ := auth.UserIDFromContext(r.Context())
		for _, rt := range all {
			if rt.Status == store.StatusActive {
				resp.Ratings = append(resp.Ratings, viewRating(rt))
			}
			if uid != "" && rt.UserID == uid {
				v := viewRating(rt)
				resp.UserRating = &v
			}
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// ToggleHelpful handles POST /v1/ratings/{rating_id}/helpful.
func ToggleHelpful(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		ratingID := strings.TrimSpace(chi.URLParam(r, "rating_id"))
		if ratingID == "" {
			api.BadRequest(w, "MISSING_ID", "rating_id is required", "", nil)
			return
		}

		rating, err := e.ToggleHelpful(r.Context(), ratingID, userID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, viewRating(rating))
	}
}

// ReportRating handles POST /v1/ratings/{rating_id}/report.
func ReportRating(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		ratingID := strings.TrimSpace(chi.URLParam(r, "rating_id"))
		if ratingID == "" {
			api.BadRequest(w, "MISSING_ID", "rating_id is required", "", nil)
			return
		}

		var req reportRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}

		rating, err := e.ReportRating(r.Context(), ratingID, userID, strings.TrimSpace(req.Reason))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, viewRating(rating))
	}
}

// AuditRatings handles GET /v1/resources/{resource_id}/ratings/audit for
// moderators: every record, hidden included, with full report details.
func AuditRatings(ratings store.RatingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := strings.TrimSpace(chi.URLParam(r, "resource_id"))
		if resourceID == "" {
			api.BadRequest(w, "MISSING_ID", "resource_id is required", "", nil)
			return
		}

		all, err := ratings.FindByResource(r.Context(), resourceID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"ratings": all})
	}
}

// writeEngineError maps store/engine sentinels onto the API envelope.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidValue):
		api.BadRequest(w, "INVALID_VALUE", "value must be between 1 and 5", "", nil)
	case errors.Is(err, store.ErrFeedbackTooLong):
		api.BadRequest(w, "FEEDBACK_TOO_LONG", "feedback must be at most 500 characters", "", nil)
	case errors.Is(err, store.ErrSelfRating):
		api.Forbidden(w, "SELF_RATING", "you cannot rate your own resource", "")
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "resource or rating not found", "")
	case errors.Is(err, store.ErrConflict):
		api.Conflict(w, "CONCURRENT_MODIFICATION", "please retry the request", "", nil)
	default:
		api.Internal(w, "")
	}
}
