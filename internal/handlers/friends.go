package handlers

import (
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/friends"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// FriendHandler provides friendship endpoints.
type FriendHandler struct {
	Friends FriendService
	Users   UserStore
	Limiter RateLimiter
}

// List handles GET /api/v1/friends. Without userId it lists the caller's
// confirmed friendships; with a second member it can also list mutual friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if other := strings.TrimSpace(r.URL.Query().Get("userId")); other != "" {
		if !validID(other) {
			respondError(ctx, w, friends.ErrUserNotFound, "failed to list friendships")
			return
		}
		userID = other
	}

	friendships, err := h.Friends.Friendships(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to list friendships")
		return
	}
	total, err := h.Friends.TotalFriendCount(ctx, userID)
	if err != nil {
		respondError(ctx, w, err, "failed to count friends")
		return
	}

	resp := friendListResponse{UserID: userID, Friendships: friendships, Total: total}
	if mutualWith := strings.TrimSpace(r.URL.Query().Get("mutualWith")); mutualWith != "" {
		if !validID(mutualWith) {
			respondError(ctx, w, friends.ErrUserNotFound, "failed to list mutual friends")
			return
		}
		mutual, err := h.Friends.MutualFriendIDs(ctx, userID, mutualWith)
		if err != nil {
			respondError(ctx, w, err, "failed to list mutual friends")
			return
		}
		resp.Mutual = mutual
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

// Invite handles POST /api/v1/friends/invite.
func (h FriendHandler) Invite(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !allowRequest(h.Limiter, r, "friend-invite") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many friend requests"})
		return
	}

	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid invite payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.FriendID = strings.TrimSpace(req.FriendID)
	if req.FriendID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "friendId is required"})
		return
	}
	if !validID(req.FriendID) {
		respondError(ctx, w, friends.ErrUserNotFound, "failed to create friend request")
		return
	}

	if req.ForceAccept {
		if _, ok := requireAdmin(w, r, h.Users); !ok {
			return
		}
	}

	friendship, err := h.Friends.Request(ctx, userID, req.FriendID, req.ForceAccept)
	if err != nil {
		respondError(ctx, w, err, "failed to create friend request")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, friendship)
}

// Respond handles POST /api/v1/friends/respond. The recipient may accept or
// reject a pending request; the initiator may withdraw it.
func (h FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req respondRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid respond payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.FriendshipID = strings.TrimSpace(req.FriendshipID)
	if req.FriendshipID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "friendshipId is required"})
		return
	}
	if !validID(req.FriendshipID) {
		respondError(ctx, w, friends.ErrFriendshipNotFound, "failed to respond to friend request")
		return
	}

	switch strings.ToLower(req.Action) {
	case "accept":
		friendship, err := h.Friends.Accept(ctx, req.FriendshipID, userID)
		if err != nil {
			respondError(ctx, w, err, "failed to accept friend request")
			return
		}
		respondJSON(ctx, w, http.StatusOK, friendship)
	case "reject":
		if err := h.Friends.Reject(ctx, req.FriendshipID, userID); err != nil {
			respondError(ctx, w, err, "failed to reject friend request")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "withdraw":
		if err := h.Friends.Withdraw(ctx, req.FriendshipID, userID); err != nil {
			respondError(ctx, w, err, "failed to withdraw friend request")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "action must be accept, reject or withdraw"})
	}
}

// Remove handles POST /api/v1/friends/remove.
func (h FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.FriendID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "friendId is required"})
		return
	}
	req.FriendID = strings.TrimSpace(req.FriendID)
	if !validID(req.FriendID) {
		respondError(ctx, w, friends.ErrUserNotFound, "failed to remove friend")
		return
	}
	if err := h.Friends.Remove(ctx, userID, req.FriendID); err != nil {
		respondError(ctx, w, err, "failed to remove friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/friends/status?userId=.
func (h FriendHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	other := strings.TrimSpace(r.URL.Query().Get("userId"))
	if other == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}
	if !validID(other) {
		respondError(ctx, w, friends.ErrUserNotFound, "failed to load friendship status")
		return
	}

	status, err := h.Friends.Status(ctx, userID, other)
	if err != nil {
		respondError(ctx, w, err, "failed to load friendship status")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"userId": other, "status": string(status)})
}

// Recount handles POST /api/v1/friends/recount. Administrators use it to
// rebuild a member's friend counter from the friendship records.
func (h FriendHandler) Recount(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	adminID, ok := requireAdmin(w, r, h.Users)
	if !ok {
		return
	}

	var req recountRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !validID(req.UserID) {
		respondError(ctx, w, friends.ErrUserNotFound, "failed to recount friends")
		return
	}

	total, err := h.Friends.Recount(ctx, req.UserID)
	if err != nil {
		respondError(ctx, w, err, "failed to recount friends")
		return
	}
	logging.FromContext(ctx).Info("friend counter rebuilt", "adminId", adminID, "userId", req.UserID, "total", total)
	respondJSON(ctx, w, http.StatusOK, map[string]any{"userId": req.UserID, "total": total})
}

// Requests handles GET /api/v1/friends/requests?direction=incoming|outgoing.
func (h FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var (
		requests []models.Friendship
		err      error
	)
	switch direction := r.URL.Query().Get("direction"); direction {
	case "", models.FriendshipsIncoming:
		requests, err = h.Friends.IncomingRequests(ctx, userID)
	case models.FriendshipsOutgoing:
		requests, err = h.Friends.OutgoingRequests(ctx, userID)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "direction must be incoming or outgoing"})
		return
	}
	if err != nil {
		respondError(ctx, w, err, "failed to list friend requests")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"requests": requests})
}

type inviteRequest struct {
	FriendID    string `json:"friendId"`
	ForceAccept bool   `json:"forceAccept"`
}

type recountRequest struct {
	UserID string `json:"userId"`
}

type respondRequest struct {
	FriendshipID string `json:"friendshipId"`
	Action       string `json:"action"`
}

type friendListResponse struct {
	UserID      string              `json:"userId"`
	Friendships []models.Friendship `json:"friendships"`
	Total       int                 `json:"total"`
	Mutual      []string            `json:"mutual,omitempty"`
}
