package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/campus-share/internal/platform/analytics"
	"github.com/example/campus-share/internal/platform/api"
	"github.com/example/campus-share/internal/platform/auth"
	"github.com/example/campus-share/internal/platform/signing"
	"github.com/example/campus-share/services/ratings/internal/engine"
	"github.com/example/campus-share/services/ratings/internal/store"
)

type createResourceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FileKey     string `json:"file_key"`
}

type resourceResponse struct {
	store.Resource
	Summary store.ResourceSummary `json:"summary"`
}

type downloadURLResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateResource handles POST /v1/resources: uploaded-file metadata
// registration. The file bytes themselves go through the file gateway.
func CreateResource(resources store.ResourceStore, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		var req createResourceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", "", nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			api.BadRequest(w, "MISSING_TITLE", "title is required", "", nil)
			return
		}
		if strings.TrimSpace(req.FileKey) == "" {
			api.BadRequest(w, "MISSING_FILE_KEY", "file_key is required", "", nil)
			return
		}

		created, err := resources.Create(r.Context(), store.ResourceCreateParams{
			UploaderID:  userID,
			Title:       strings.TrimSpace(req.Title),
			Description: strings.TrimSpace(req.Description),
			FileKey:     strings.TrimSpace(req.FileKey),
		})
		if err != nil {
			api.Internal(w, "")
			return
		}

		events.Publish(analytics.SubjectResourceRegistered, "resource_registered", userID, map[string]any{
			"resource_id": created.ID,
		})
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetResource handles GET /v1/resources/{resource_id}: metadata plus the
// cached summary.
func GetResource(resources store.ResourceStore, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := strings.TrimSpace(chi.URLParam(r, "resource_id"))
		if resourceID == "" {
			api.BadRequest(w, "MISSING_ID", "resource_id is required", "", nil)
			return
		}

		res, err := resources.Get(r.Context(), resourceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		summary, err := e.Summary(r.Context(), resourceID)
		if err != nil {
			summary = res.Summary
		}
		api.WriteJSON(w, http.StatusOK, resourceResponse{Resource: res, Summary: summary})
	}
}

// DownloadURL handles GET /v1/resources/{resource_id}/download-url: a signed,
// expiring link to the file gateway, scoped to the requesting user.
func DownloadURL(resources store.ResourceStore, signer *signing.Signer, gatewayBase string, ttl time.Duration) http.HandlerFunc {
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

		res, err := resources.Get(r.Context(), resourceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		exp := time.Now().Add(ttl)
		signed := signer.Sign(res.FileKey, userID, exp)
		u, err := signing.BuildDownloadURL(gatewayBase, signed)
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, downloadURLResponse{
			DownloadURL: u,
			ExpiresAt:   exp.UTC(),
		})
	}
}
