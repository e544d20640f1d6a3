package auth

import "context"

type userIDKey struct{}

// WithUserID stores the authenticated member ID on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated member ID, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

type clientIPKey struct{}

// WithClientIP records the address the request is attributed to.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address recorded by WithClientIP.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}
