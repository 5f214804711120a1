package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/braunsonm/cloud-controller-ng/audit"
)

// AppendAuditEvent persists a new audit event. Event IDs are appended
// to a global log and a per-resource log so both list shapes stay in
// chronological (append) order.
func (s *Store) AppendAuditEvent(ctx context.Context, evt *audit.Event) error {
	data, err := encodeAuditEvent(evt)
	if err != nil {
		return err
	}

	evtID := evt.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, auditEventKey(evtID), data, 0)
	pipe.RPush(ctx, auditLogKey, evtID)
	if evt.ResourceGUID != "" {
		pipe.RPush(ctx, auditResourceLogKey(evt.ResourceGUID), evtID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns events for the given resource GUID in
// chronological order. An empty GUID returns all events.
func (s *Store) ListAuditEvents(ctx context.Context, resourceGUID string) ([]*audit.Event, error) {
	logKey := auditLogKey
	if resourceGUID != "" {
		logKey = auditResourceLogKey(resourceGUID)
	}

	ids, err := s.client.LRange(ctx, logKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: list audit log: %w", err)
	}

	events := make([]*audit.Event, 0, len(ids))
	for _, evtID := range ids {
		data, getErr := s.client.Get(ctx, auditEventKey(evtID)).Bytes()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return nil, fmt.Errorf("ccng/redis: get audit event: %w", getErr)
		}
		evt, decErr := decodeAuditEvent(data)
		if decErr != nil {
			return nil, decErr
		}
		events = append(events, evt)
	}
	return events, nil
}
