package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/campus-share/internal/platform/auth"
	"github.com/example/campus-share/services/ratings/internal/engine"
	"github.com/example/campus-share/services/ratings/internal/store"
)

// setupReq builds a request with chi URL params and optional user_id in context.
func setupReq(method, url string, body string, params map[string]string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

type handlerEnv struct {
	ratings   *store.InMemoryRatingStore
	resources *store.InMemoryResourceStore
	engine    *engine.Engine
	resource  store.Resource
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	ratings := store.NewInMemoryRatingStore()
	resources := store.NewInMemoryResourceStore()
	res, err := resources.Create(context.Background(), store.ResourceCreateParams{
		UploaderID: "uploader",
		Title:      "Orgo II Flashcards",
		FileKey:    "uploads/orgo-2.pdf",
	})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return &handlerEnv{
		ratings:   ratings,
		resources: resources,
		engine:    engine.New(ratings, resources, engine.Options{}),
		resource:  res,
	}
}

func (env *handlerEnv) mustSubmit(t *testing.T, userID string, value int) store.Rating {
	t.Helper()
	out, err := env.engine.SubmitRating(context.Background(), env.resource.ID, userID, value, "")
	if err != nil {
		t.Fatalf("submit rating: %v", err)
	}
	return out.Rating
}

func TestSubmitRating(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		`{"value":5,"feedback":"exactly what the prof covers"}`,
		map[string]string{"resource_id": env.resource.ID}, "user-a")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp submitRatingResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Rating.Value != 5 || resp.Rating.UserID != "user-a" {
		t.Fatalf("unexpected rating: %+v", resp.Rating)
	}
	if resp.Summary.AverageRating != 5.0 || resp.Summary.TotalRatings != 1 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}
}

func TestSubmitRating_UpdateReturns200(t *testing.T) {
	env := newHandlerEnv(t)
	env.mustSubmit(t, "user-a", 5)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		`{"value":2}`, map[string]string{"resource_id": env.resource.ID}, "user-a")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for overwrite, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp submitRatingResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Summary.TotalRatings != 1 || resp.Summary.AverageRating != 2.0 {
		t.Fatalf("unexpected summary after overwrite: %+v", resp.Summary)
	}
}

func TestSubmitRating_Unauthorized(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		`{"value":5}`, map[string]string{"resource_id": env.resource.ID}, "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSubmitRating_InvalidValue(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	for _, body := range []string{`{"value":0}`, `{"value":6}`, `{}`} {
		req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
			body, map[string]string{"resource_id": env.resource.ID}, "user-a")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestSubmitRating_FeedbackTooLong(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	body := `{"value":4,"feedback":"` + strings.Repeat("x", 501) + `"}`
	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		body, map[string]string{"resource_id": env.resource.ID}, "user-a")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSubmitRating_SelfRatingForbidden(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		`{"value":5}`, map[string]string{"resource_id": env.resource.ID}, "uploader")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitRating_UnknownResource(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/missing/ratings",
		`{"value":5}`, map[string]string{"resource_id": "missing"}, "user-a")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestSubmitRating_InvalidJSON(t *testing.T) {
	env := newHandlerEnv(t)
	handler := SubmitRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/resources/"+env.resource.ID+"/ratings",
		`{not json`, map[string]string{"resource_id": env.resource.ID}, "user-a")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetRatings_ExcludesHiddenAndEchoesOwn(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	env.mustSubmit(t, "user-a", 5)
	flagged := env.mustSubmit(t, "user-b", 1)
	for _, reporter := range []string{"rep-1", "rep-2", "rep-3"} {
		if _, err := env.engine.ReportRating(ctx, flagged.ID, reporter, ""); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	handler := GetRatings(env.engine, env.ratings)
	req := setupReq(http.MethodGet,
		"/v1/resources/"+env.resource.ID+"/ratings", "",
		map[string]string{"resource_id": env.resource.ID}, "user-b")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp listRatingsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Ratings) != 1 {
		t.Fatalf("expected only the active rating, got %d", len(resp.Ratings))
	}
	if resp.Ratings[0].UserID != "user-a" {
		t.Fatalf("expected user-a's rating, got %q", resp.Ratings[0].UserID)
	}
	if resp.Summary.AverageRating != 5.0 || resp.Summary.TotalRatings != 1 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}
	// The hidden rating is still visible to its own author.
	if resp.UserRating == nil || resp.UserRating.Status != store.StatusHidden {
		t.Fatalf("expected hidden own rating echoed, got %+v", resp.UserRating)
	}
}

func TestGetRatings_HiddenInvisibleToOtherCallers(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	env.mustSubmit(t, "user-a", 5)
	out, err := env.engine.SubmitRating(ctx, env.resource.ID, "user-b", 1, "harsh words")
	if err != nil {
		t.Fatalf("submit rating: %v", err)
	}
	for _, reporter := range []string{"rep-1", "rep-2", "rep-3"} {
		if _, err := env.engine.ReportRating(ctx, out.Rating.ID, reporter, ""); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	handler := GetRatings(env.engine, env.ratings)
	cases := []struct {
		name   string
		userID string
	}{
		{"anonymous", ""},
		{"other user", "user-c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// A caller-supplied query param must never select the echo
			// identity; only the authenticated caller's own hidden rating
			// is ever returned.
			req := setupReq(http.MethodGet,
				"/v1/resources/"+env.resource.ID+"/ratings?user_id=user-b", "",
				map[string]string{"resource_id": env.resource.ID}, tc.userID)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			body := rr.Body.String()
			if strings.Contains(body, "user-b") || strings.Contains(body, "harsh words") {
				t.Fatalf("hidden rating leaked: %s", body)
			}

			var resp listRatingsResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.UserRating != nil {
				t.Fatalf("expected no echoed rating, got %+v", resp.UserRating)
			}
			if len(resp.Ratings) != 1 || resp.Ratings[0].UserID != "user-a" {
				t.Fatalf("expected only the active rating, got %+v", resp.Ratings)
			}
		})
	}
}

func TestGetRatings_ReporterIdentitiesNotSerialized(t *testing.T) {
	env := newHandlerEnv(t)
	rating := env.mustSubmit(t, "user-a", 4)
	if _, err := env.engine.ReportRating(context.Background(), rating.ID, "rep-1", "spam"); err != nil {
		t.Fatalf("report: %v", err)
	}

	handler := GetRatings(env.engine, env.ratings)
	req := setupReq(http.MethodGet, "/v1/resources/"+env.resource.ID+"/ratings", "",
		map[string]string{"resource_id": env.resource.ID}, "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if strings.Contains(rr.Body.String(), "rep-1") {
		t.Fatalf("reporter identity leaked into public response: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"report_count":1`) {
		t.Fatalf("expected report_count in response: %s", rr.Body.String())
	}
}

func TestToggleHelpful(t *testing.T) {
	env := newHandlerEnv(t)
	rating := env.mustSubmit(t, "user-a", 4)
	handler := ToggleHelpful(env.engine)

	req := setupReq(http.MethodPost, "/v1/ratings/"+rating.ID+"/helpful", "",
		map[string]string{"rating_id": rating.ID}, "user-b")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view ratingView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.HelpfulCount != 1 {
		t.Fatalf("expected helpful_count 1, got %d", view.HelpfulCount)
	}

	// Second toggle retracts.
	req = setupReq(http.MethodPost, "/v1/ratings/"+rating.ID+"/helpful", "",
		map[string]string{"rating_id": rating.ID}, "user-b")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	view = ratingView{}
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.HelpfulCount != 0 {
		t.Fatalf("expected helpful_count 0 after retract, got %d", view.HelpfulCount)
	}
}

func TestToggleHelpful_UnknownRating(t *testing.T) {
	env := newHandlerEnv(t)
	handler := ToggleHelpful(env.engine)

	req := setupReq(http.MethodPost, "/v1/ratings/missing/helpful", "",
		map[string]string{"rating_id": "missing"}, "user-b")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestReportRating(t *testing.T) {
	env := newHandlerEnv(t)
	rating := env.mustSubmit(t, "user-a", 2)
	handler := ReportRating(env.engine)

	req := setupReq(http.MethodPost, "/v1/ratings/"+rating.ID+"/report",
		`{"reason":"off topic"}`, map[string]string{"rating_id": rating.ID}, "user-b")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view ratingView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ReportCount != 1 {
		t.Fatalf("expected report_count 1, got %d", view.ReportCount)
	}
	if view.Status != store.StatusActive {
		t.Fatalf("one report must not hide, got %q", view.Status)
	}
}

func TestReportRating_ThirdReporterHides(t *testing.T) {
	env := newHandlerEnv(t)
	rating := env.mustSubmit(t, "user-a", 2)
	handler := ReportRating(env.engine)

	var view ratingView
	for i, reporter := range []string{"rep-1", "rep-2", "rep-3"} {
		req := setupReq(http.MethodPost, "/v1/ratings/"+rating.ID+"/report",
			`{}`, map[string]string{"rating_id": rating.ID}, reporter)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("report %d: expected 200, got %d: %s", i+1, rr.Code, rr.Body.String())
		}
		view = ratingView{}
		if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if view.Status != store.StatusHidden {
		t.Fatalf("expected hidden after third distinct reporter, got %q", view.Status)
	}

	got, _ := env.resources.Get(context.Background(), env.resource.ID)
	if got.Summary.TotalRatings != 0 {
		t.Fatalf("hidden rating still counted: %+v", got.Summary)
	}
}

func TestAuditRatings_IncludesHiddenWithReports(t *testing.T) {
	env := newHandlerEnv(t)
	rating := env.mustSubmit(t, "user-a", 1)
	for _, reporter := range []string{"rep-1", "rep-2", "rep-3"} {
		if _, err := env.engine.ReportRating(context.Background(), rating.ID, reporter, "abusive"); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	handler := AuditRatings(env.ratings)
	req := setupReq(http.MethodGet, "/v1/resources/"+env.resource.ID+"/ratings/audit", "",
		map[string]string{"resource_id": env.resource.ID}, "admin-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Ratings []store.Rating `json:"ratings"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Ratings) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Ratings))
	}
	if resp.Ratings[0].Status != store.StatusHidden {
		t.Fatalf("expected hidden record in audit, got %q", resp.Ratings[0].Status)
	}
	if len(resp.Ratings[0].Reports) != 3 {
		t.Fatalf("audit must carry full report details, got %d", len(resp.Ratings[0].Reports))
	}
}
