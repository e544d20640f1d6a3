package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/kinship/backend/internal/rewrites"
)

// URLHandler exposes the URL builder and resolver.
type URLHandler struct {
	Router URLRouter
}

// Build handles GET /api/v1/urls?component=&item=&sub=&action=&var=.
func (h URLHandler) Build(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	args := rewrites.URLArgs{
		ComponentID:         strings.TrimSpace(q.Get("component")),
		SingleItem:          strings.TrimSpace(q.Get("item")),
		SingleItemComponent: strings.TrimSpace(q.Get("sub")),
		SingleItemAction:    strings.TrimSpace(q.Get("action")),
		ActionVariables:     q["var"],
	}
	if args.ComponentID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "component is required"})
		return
	}

	link, err := h.Router.URL(ctx, args)
	if err != nil {
		respondError(ctx, w, err, "failed to build url")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": link})
}

// Resolve handles GET /api/v1/urls/resolve?url=.
func (h URLHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	target, err := url.Parse(raw)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "url is malformed"})
		return
	}

	args, err := h.Router.Resolve(ctx, target)
	if err != nil {
		respondError(ctx, w, err, "failed to resolve url")
		return
	}
	respondJSON(ctx, w, http.StatusOK, args)
}
