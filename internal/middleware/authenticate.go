package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Authenticate(accessToken string) (string, error)
}

// Authenticate resolves the bearer token on each request into the acting
// member. Requests without a token pass through anonymously; a token that
// fails verification is rejected with 401.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "malformed authorization header")
				return
			}

			userID, err := verifier.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Warn("rejected access token", "error", err)
				unauthorized(w, r, "invalid access token")
				return
			}

			ctx := auth.WithUserID(r.Context(), userID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("userId", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="kinship"`)
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logging.FromContext(r.Context()).Error("encode response body", "error", err)
	}
}
