package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kinship/backend/internal/activity"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// ActivityHandler serves the activity stream.
type ActivityHandler struct {
	Activities ActivityService
	Limiter    RateLimiter
	NowFunc    func() time.Time
}

// Activity handles GET /api/v1/activity (a feed page) and POST
// /api/v1/activity (post a status update).
func (h ActivityHandler) Activity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.feed(w, r)
	case http.MethodPost:
		h.post(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h ActivityHandler) feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := activity.FeedFilter{
		Scope:   q.Get("scope"),
		UserID:  strings.TrimSpace(q.Get("userId")),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "perPage"),
	}
	if filter.UserID != "" && !validID(filter.UserID) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	if filter.UserID == "" {
		filter.UserID, _ = auth.UserIDFromContext(ctx)
	}
	switch filter.Scope {
	case "", activity.ScopeSitewide:
	case activity.ScopeJustMe, activity.ScopeFriends:
		if filter.UserID == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required for this scope"})
			return
		}
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "scope must be sitewide, just-me or friends"})
		return
	}

	activities, err := h.Activities.Feed(ctx, filter)
	if err != nil {
		respondError(ctx, w, err, "failed to load activity")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"activities": h.Activities.Present(ctx, activities, h.now()),
	})
}

func (h ActivityHandler) post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !allowRequest(h.Limiter, r, "activity") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many updates"})
		return
	}

	var req postUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid activity payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	posted, err := h.Activities.PostUpdate(ctx, userID, req.Content)
	if err != nil {
		respondError(ctx, w, err, "failed to post update")
		return
	}
	entries := h.Activities.Present(ctx, []models.Activity{posted}, h.now())
	respondJSON(ctx, w, http.StatusCreated, entries[0])
}

// Delete handles POST /api/v1/activity/delete.
func (h ActivityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req deleteActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(req.ID), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "id must be a positive integer"})
		return
	}
	if err := h.Activities.Delete(ctx, id, userID); err != nil {
		respondError(ctx, w, err, "failed to delete activity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h ActivityHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type postUpdateRequest struct {
	Content string `json:"content"`
}

type deleteActivityRequest struct {
	ID string `json:"id"`
}
