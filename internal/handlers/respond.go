package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kinship/backend/internal/activity"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/friends"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/members"
	"github.com/kinship/backend/internal/profile"
	"github.com/kinship/backend/internal/repositories"
	"github.com/kinship/backend/internal/rewrites"
)

// maxJSONBody bounds request bodies decoded as JSON.
const maxJSONBody = 1 << 20

var errorStatuses = []struct {
	target error
	status int
}{
	{repositories.ErrNotFound, http.StatusNotFound},
	{repositories.ErrConflict, http.StatusConflict},

	{friends.ErrSelfFriendship, http.StatusBadRequest},
	{friends.ErrFriendshipExists, http.StatusConflict},
	{friends.ErrFriendshipNotFound, http.StatusNotFound},
	{friends.ErrNotPending, http.StatusConflict},
	{friends.ErrNotFriends, http.StatusConflict},
	{friends.ErrForbidden, http.StatusForbidden},
	{friends.ErrUserNotFound, http.StatusNotFound},

	{activity.ErrThrottled, http.StatusTooManyRequests},
	{activity.ErrUnknownType, http.StatusBadRequest},
	{activity.ErrEmptyContent, http.StatusBadRequest},
	{activity.ErrContentTooLong, http.StatusBadRequest},
	{activity.ErrNotFound, http.StatusNotFound},
	{activity.ErrForbidden, http.StatusForbidden},

	{profile.ErrInvalidValue, http.StatusBadRequest},
	{profile.ErrFieldRequired, http.StatusBadRequest},
	{profile.ErrFieldNotFound, http.StatusNotFound},
	{profile.ErrGroupNotFound, http.StatusNotFound},
	{profile.ErrInvalidField, http.StatusBadRequest},
	{profile.ErrInvalidVisibility, http.StatusBadRequest},
	{profile.ErrVisibilityLocked, http.StatusBadRequest},
	{profile.ErrForbidden, http.StatusForbidden},

	{members.ErrInvalidEmail, http.StatusBadRequest},
	{members.ErrWeakPassword, http.StatusBadRequest},
	{members.ErrInvalidUsername, http.StatusBadRequest},
	{members.ErrAccountExists, http.StatusConflict},
	{members.ErrMemberNotFound, http.StatusNotFound},
	{members.ErrAvatarTooLarge, http.StatusRequestEntityTooLarge},
	{members.ErrUnsupportedAvatar, http.StatusUnsupportedMediaType},
	{members.ErrAvatarsUnavailable, http.StatusServiceUnavailable},
	{members.ErrInvalidOrder, http.StatusBadRequest},

	{rewrites.ErrUnknownComponent, http.StatusBadRequest},
	{rewrites.ErrInvalidArgs, http.StatusBadRequest},
	{rewrites.ErrNoRoute, http.StatusNotFound},
	{rewrites.ErrUnknownRewriteID, http.StatusBadRequest},
	{rewrites.ErrInvalidSlug, http.StatusBadRequest},
	{rewrites.ErrSlugConflict, http.StatusConflict},
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Unrecognised errors are
// reported with the generic fallback message so internals do not leak.
func respondError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error(fallback, "error", err)
		message = fallback
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst)
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

// requireUser returns the authenticated member or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}
	return userID, true
}

// requireAdmin returns the authenticated member when they are an
// administrator, writing a 401 or 403 otherwise.
func requireAdmin(w http.ResponseWriter, r *http.Request, users UserStore) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if users == nil {
		respondJSON(r.Context(), w, http.StatusForbidden, map[string]string{"error": "administrator access required"})
		return "", false
	}
	user, err := users.FindByID(r.Context(), userID)
	if err != nil || !user.IsAdmin {
		respondJSON(r.Context(), w, http.StatusForbidden, map[string]string{"error": "administrator access required"})
		return "", false
	}
	return userID, true
}

// validID reports whether raw is a well-formed member or friendship ID. IDs
// that cannot exist are answered as not found before reaching the database.
func validID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
