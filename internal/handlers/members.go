package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/members"
)

// MemberHandler serves the member directory and account endpoints.
type MemberHandler struct {
	Members MemberService
	Limiter RateLimiter
}

// Directory handles GET /api/v1/members (directory or ?username= lookup)
// and DELETE /api/v1/members (close the caller's account).
func (h MemberHandler) Directory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.deleteAccount(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h MemberHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if username := strings.TrimSpace(q.Get("username")); username != "" {
		member, err := h.Members.ByUsername(ctx, username)
		if err != nil {
			respondError(ctx, w, err, "failed to load member")
			return
		}
		respondJSON(ctx, w, http.StatusOK, member)
		return
	}

	page, err := h.Members.Directory(ctx, members.DirectoryQuery{
		Order:   q.Get("order"),
		Search:  strings.TrimSpace(q.Get("search")),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "perPage"),
	})
	if err != nil {
		respondError(ctx, w, err, "failed to list members")
		return
	}
	respondJSON(ctx, w, http.StatusOK, page)
}

func (h MemberHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Members.Delete(ctx, userID); err != nil {
		respondError(ctx, w, err, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Avatar handles POST /api/v1/members/avatar. The image is read from the
// "avatar" part of a multipart form or from the raw request body.
func (h MemberHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodPut) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !allowRequest(h.Limiter, r, "avatar") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many uploads"})
		return
	}

	// Allow some slack for multipart framing; the service enforces the real cap.
	r.Body = http.MaxBytesReader(w, r.Body, members.MaxAvatarBytes+64<<10)

	var body io.Reader = r.Body
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("avatar")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(ctx, w, members.ErrAvatarTooLarge, "")
				return
			}
			logging.FromContext(ctx).Warn("invalid avatar form", "error", err)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "avatar file is required"})
			return
		}
		defer file.Close()
		body = file
	}

	location, err := h.Members.UploadAvatar(ctx, userID, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = members.ErrAvatarTooLarge
		}
		respondError(ctx, w, err, "failed to upload avatar")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"avatarUrl": location})
}

// Export handles GET /api/v1/members/export.
func (h MemberHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	export, err := h.Members.Export(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to export member data")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="kinship-export.json"`)
	respondJSON(ctx, w, http.StatusOK, export)
}
