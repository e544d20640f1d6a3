package handlers

import (
	"net/http"

	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/rewrites"
)

// RewriteHandler lets administrators inspect and customise URL slugs.
type RewriteHandler struct {
	Users    UserStore
	Router   URLRouter
	Settings RewriteSettings
}

// Handle serves GET and PUT /api/v1/rewrites.
func (h RewriteHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h RewriteHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.Settings.Settings(ctx)
	if err != nil {
		respondError(ctx, w, err, "failed to load rewrite settings")
		return
	}

	components := make([]rewriteComponent, 0)
	for _, c := range h.Router.Components() {
		directory, err := h.Router.URL(ctx, rewrites.URLArgs{ComponentID: c.ID})
		if err != nil {
			respondError(ctx, w, err, "failed to build directory url")
			return
		}
		components = append(components, rewriteComponent{
			ID:           c.ID,
			Name:         c.Name,
			RewriteIDs:   c.RewriteIDs(),
			DirectoryURL: directory,
		})
	}

	respondJSON(ctx, w, http.StatusOK, rewritesResponse{
		Pretty:     h.Router.Pretty(),
		Components: components,
		Settings:   settings,
	})
}

func (h RewriteHandler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireAdmin(w, r, h.Users)
	if !ok {
		return
	}

	var req rewrites.Update
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid rewrites payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	settings, err := h.Settings.Apply(ctx, req)
	if err != nil {
		respondError(ctx, w, err, "failed to save rewrite settings")
		return
	}

	logging.FromContext(ctx).Info("rewrite settings updated", "userId", userID, "slugs", len(req.Slugs), "pages", len(req.DirectoryPages))
	respondJSON(ctx, w, http.StatusOK, settings)
}

type rewriteComponent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RewriteIDs   []string `json:"rewriteIds"`
	DirectoryURL string   `json:"directoryUrl"`
}

type rewritesResponse struct {
	Pretty     bool               `json:"pretty"`
	Components []rewriteComponent `json:"components"`
	Settings   rewrites.Settings  `json:"settings"`
}
