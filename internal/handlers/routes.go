package handlers

import (
	"context"
	"net/http"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Check: deps.HealthCheck}
	auth := AuthHandler{Users: deps.Users, Members: deps.Members, Sessions: deps.Sessions, Limiter: deps.Limiter}
	friends := FriendHandler{Friends: deps.Friends, Users: deps.Users, Limiter: deps.Limiter}
	members := MemberHandler{Members: deps.Members, Limiter: deps.Limiter}
	profiles := ProfileHandler{Profiles: deps.Profiles}
	activity := ActivityHandler{Activities: deps.Activity, Limiter: deps.Limiter}
	urls := URLHandler{Router: deps.Router}
	rewrites := RewriteHandler{Users: deps.Users, Router: deps.Router, Settings: deps.Rewrites}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/friends", friends.List)
	mux.HandleFunc("/api/v1/friends/invite", friends.Invite)
	mux.HandleFunc("/api/v1/friends/respond", friends.Respond)
	mux.HandleFunc("/api/v1/friends/remove", friends.Remove)
	mux.HandleFunc("/api/v1/friends/status", friends.Status)
	mux.HandleFunc("/api/v1/friends/requests", friends.Requests)
	mux.HandleFunc("/api/v1/friends/recount", friends.Recount)
	mux.HandleFunc("/api/v1/members", members.Directory)
	mux.HandleFunc("/api/v1/members/avatar", members.Avatar)
	mux.HandleFunc("/api/v1/members/export", members.Export)
	mux.HandleFunc("/api/v1/profile", profiles.Profile)
	mux.HandleFunc("/api/v1/profile/schema", profiles.Schema)
	mux.HandleFunc("/api/v1/profile/fields", profiles.Fields)
	mux.HandleFunc("/api/v1/activity", activity.Activity)
	mux.HandleFunc("/api/v1/activity/delete", activity.Delete)
	mux.HandleFunc("/api/v1/urls", urls.Build)
	mux.HandleFunc("/api/v1/urls/resolve", urls.Resolve)
	mux.HandleFunc("/api/v1/rewrites", rewrites.Handle)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Sessions    SessionManager
	Members     MemberService
	Friends     FriendService
	Profiles    ProfileService
	Activity    ActivityService
	Router      URLRouter
	Rewrites    RewriteSettings
	Limiter     RateLimiter
	HealthCheck func(ctx context.Context) error
}
