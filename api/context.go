package api

import (
	"context"

	"escrowflow/account"
)

// Caller is the identity resolved by the authorization gate for a request.
type Caller struct {
	ID   string
	Role account.Role
}

type ctxKey int

const callerKey ctxKey = iota

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}
