package handlers

import (
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// ProfileHandler serves extended profile endpoints.
type ProfileHandler struct {
	Profiles ProfileService
}

// Profile handles GET /api/v1/profile?userId= and PUT /api/v1/profile.
// Anonymous viewers only see public fields.
func (h ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		viewerID, _ := auth.UserIDFromContext(ctx)
		ownerID := strings.TrimSpace(r.URL.Query().Get("userId"))
		if ownerID != "" && !validID(ownerID) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "member not found"})
			return
		}
		if ownerID == "" {
			ownerID = viewerID
		}
		if ownerID == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
			return
		}
		values, err := h.Profiles.View(ctx, viewerID, ownerID)
		if err != nil {
			respondError(ctx, w, err, "failed to load profile")
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"userId": ownerID, "fields": values})

	case http.MethodPut:
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req profileValueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			logging.FromContext(ctx).Warn("invalid profile payload", "error", err)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.FieldID <= 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "fieldId is required"})
			return
		}
		data, err := h.Profiles.SetValue(ctx, userID, req.FieldID, req.Value, req.Visibility)
		if err != nil {
			respondError(ctx, w, err, "failed to save profile field")
			return
		}
		respondJSON(ctx, w, http.StatusOK, data)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Schema handles GET /api/v1/profile/schema and, for administrators,
// POST /api/v1/profile/schema to add a field group.
func (h ProfileHandler) Schema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		groups, err := h.Profiles.Schema(ctx)
		if err != nil {
			respondError(ctx, w, err, "failed to load profile schema")
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"groups": groups})

	case http.MethodPost:
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var group models.ProfileFieldGroup
		if err := decodeJSON(w, r, &group); err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		created, err := h.Profiles.CreateGroup(ctx, userID, group)
		if err != nil {
			respondError(ctx, w, err, "failed to create field group")
			return
		}
		respondJSON(ctx, w, http.StatusCreated, created)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Fields handles POST /api/v1/profile/fields (administrators only).
func (h ProfileHandler) Fields(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var field models.ProfileField
	if err := decodeJSON(w, r, &field); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	created, err := h.Profiles.CreateField(ctx, userID, field)
	if err != nil {
		respondError(ctx, w, err, "failed to create profile field")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, created)
}

type profileValueRequest struct {
	FieldID    int64  `json:"fieldId"`
	Value      string `json:"value"`
	Visibility string `json:"visibility"`
}
