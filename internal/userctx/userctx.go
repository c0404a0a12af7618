// Package userctx carries the acting user on a context.Context.
package userctx

import "context"

type contextKey int

const userIDKey contextKey = iota

// DefaultUser is used when the context carries no user.
const DefaultUser = "default"

// WithUser stores the user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user id stored in ctx, or DefaultUser when absent.
func UserID(ctx context.Context) string {
	if id, _ := ctx.Value(userIDKey).(string); id != "" {
		return id
	}
	return DefaultUser
}
