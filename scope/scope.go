// Package scope provides helpers to capture and restore the acting
// user's identity from/to context.Context.
//
// The operation record carries the actor that initiated it; these
// helpers bridge between the record's AuditInfo and the context so
// backends and extensions see the same actor as the original API
// caller, even across process restarts.
package scope

import (
	"context"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

type actorKey struct{}

// Capture extracts the acting user from the context. Returns a zero
// AuditInfo and false if no actor is present.
func Capture(ctx context.Context) (operation.AuditInfo, bool) {
	info, ok := ctx.Value(actorKey{}).(operation.AuditInfo)
	return info, ok
}

// Restore attaches the acting user to the context. If the info is
// empty, the context is returned unchanged (no-op).
func Restore(ctx context.Context, info operation.AuditInfo) context.Context {
	if info.UserGUID == "" && info.UserName == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, info)
}
