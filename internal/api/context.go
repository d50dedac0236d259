package api

import "context"

type ctxKey int

const userIDKey ctxKey = iota

// withUserID injects the authenticated user's id into ctx.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFromContext returns the authenticated user id, or "" if the request
// was anonymous (auth disabled, or an opportunistic-auth read with no
// bearer token presented).
func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// userIDPtr converts the context user id to the *string ownership-scoping
// discipline every Store call expects: nil means "no scoping" (auth
// disabled or a route that tolerates anonymous reads).
func userIDPtr(ctx context.Context) *string {
	v := userIDFromContext(ctx)
	if v == "" {
		return nil
	}
	return &v
}
