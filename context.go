package recur

import (
	"context"
	"time"

	"github.com/xraph/recur/types"
)

// Context keys are unexported types so external packages cannot collide
// with the caller-context values the dispatcher attaches.
type contextKey int

const (
	callerKey contextKey = iota
	nowKey
)

// WithCaller attaches the caller identity to the context. The hosting
// environment's request dispatcher is expected to do this before every
// engine call.
func WithCaller(ctx context.Context, caller types.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom extracts the caller identity from the context. Returns the
// zero address when no caller is attached.
func CallerFrom(ctx context.Context) types.Address {
	if v, ok := ctx.Value(callerKey).(types.Address); ok {
		return v
	}
	return types.ZeroAddress
}

// WithNow attaches the caller-supplied current time to the context.
// Entitlement, expiry and renewal windows are computed from this clock,
// never from a background timer.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey, now)
}

// NowFrom extracts the caller clock from the context, falling back to
// the wall clock when none is attached.
func NowFrom(ctx context.Context) time.Time {
	if v, ok := ctx.Value(nowKey).(time.Time); ok {
		return v
	}
	return time.Now().UTC()
}
