package audit

import "context"

// Store defines the persistence contract for audit events. Events are
// append-only; there is no update or delete.
type Store interface {
	// AppendAuditEvent persists a new audit event.
	AppendAuditEvent(ctx context.Context, evt *Event) error

	// ListAuditEvents returns events for the given resource GUID in
	// chronological order. An empty GUID returns all events.
	ListAuditEvents(ctx context.Context, resourceGUID string) ([]*Event, error)
}
