package identity

import "context"

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var userIDContextKey = &contextKey{name: "user_id"}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the user id set by Middleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDContextKey).(int64)
	return id, ok && id > 0
}
