package bunstore

import (
	"context"
	"fmt"

	"github.com/braunsonm/cloud-controller-ng/audit"
)

// AppendAuditEvent persists a new audit event.
func (s *Store) AppendAuditEvent(ctx context.Context, evt *audit.Event) error {
	m, err := toAuditEventModel(evt)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("ccng/bun: append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns events for the given resource GUID in
// chronological order. An empty GUID returns all events.
func (s *Store) ListAuditEvents(ctx context.Context, resourceGUID string) ([]*audit.Event, error) {
	var models []auditEventModel
	q := s.db.NewSelect().Model(&models)
	if resourceGUID != "" {
		q = q.Where("resource_guid = ?", resourceGUID)
	}
	if err := q.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("ccng/bun: list audit events: %w", err)
	}

	events := make([]*audit.Event, 0, len(models))
	for i := range models {
		evt, convErr := fromAuditEventModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ccng/bun: list audit convert: %w", convErr)
		}
		events = append(events, evt)
	}
	return events, nil
}
