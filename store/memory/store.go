// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ operation.Store = (*Store)(nil)
	_ binding.Store   = (*Store)(nil)
	_ audit.Store     = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	operations map[string]*operation.Operation
	bindings   map[string]*binding.Binding
	events     []*audit.Event
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		operations: make(map[string]*operation.Operation),
		bindings:   make(map[string]*binding.Binding),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Operation Store
// ──────────────────────────────────────────────────

// EnqueueOperation persists a new operation in pending state.
func (m *Store) EnqueueOperation(_ context.Context, op *operation.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := op.ID.String()
	if _, exists := m.operations[key]; exists {
		return ccng.ErrOperationAlreadyExists
	}
	cp := *op
	m.operations[key] = &cp
	return nil
}

// ClaimOperations atomically claims up to limit due pending operations.
func (m *Store) ClaimOperations(_ context.Context, workerID id.WorkerID, limit int) ([]*operation.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	candidates := make([]*operation.Operation, 0, len(m.operations))
	for _, op := range m.operations {
		if op.State != operation.StatePending {
			continue
		}
		if !op.RunAt.IsZero() && op.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, op)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*operation.Operation, len(candidates))
	for i, op := range candidates {
		op.State = operation.StateRunning
		op.WorkerID = workerID
		op.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *op
		result[i] = &cp
	}

	return result, nil
}

// GetOperation retrieves an operation by ID.
func (m *Store) GetOperation(_ context.Context, opID id.OperationID) (*operation.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.operations[opID.String()]
	if !ok {
		return nil, ccng.ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

// UpdateOperation persists changes to an existing operation.
func (m *Store) UpdateOperation(_ context.Context, op *operation.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := op.ID.String()
	if _, ok := m.operations[key]; !ok {
		return ccng.ErrOperationNotFound
	}
	cp := *op
	cp.UpdatedAt = time.Now().UTC()
	m.operations[key] = &cp
	return nil
}

// DeleteOperation removes an operation by ID.
func (m *Store) DeleteOperation(_ context.Context, opID id.OperationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := opID.String()
	if _, ok := m.operations[key]; !ok {
		return ccng.ErrOperationNotFound
	}
	delete(m.operations, key)
	return nil
}

// ListOperationsByState returns operations matching the given state.
func (m *Store) ListOperationsByState(_ context.Context, state operation.State, opts operation.ListOpts) ([]*operation.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*operation.Operation, 0, len(m.operations))
	for _, op := range m.operations {
		if op.State != state {
			continue
		}
		if opts.Kind != "" && op.Kind != opts.Kind {
			continue
		}
		cp := *op
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ExpiredOperations returns non-terminal operations whose deadline
// passed before now.
func (m *Store) ExpiredOperations(_ context.Context, now time.Time) ([]*operation.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*operation.Operation
	for _, op := range m.operations {
		if op.State.Terminal() {
			continue
		}
		deadline, ok := op.Deadline()
		if !ok || deadline.After(now) {
			continue
		}
		cp := *op
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// StaleOperations returns running operations not updated for longer
// than threshold.
func (m *Store) StaleOperations(_ context.Context, threshold time.Duration) ([]*operation.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)

	var result []*operation.Operation
	for _, op := range m.operations {
		if op.State != operation.StateRunning {
			continue
		}
		if op.UpdatedAt.After(cutoff) {
			continue
		}
		cp := *op
		result = append(result, &cp)
	}

	return result, nil
}

// PruneTerminalOperations removes terminal operations completed before
// the given time.
func (m *Store) PruneTerminalOperations(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for key, op := range m.operations {
		if !op.State.Terminal() {
			continue
		}
		if op.CompletedAt == nil || op.CompletedAt.After(before) {
			continue
		}
		delete(m.operations, key)
		pruned++
	}

	return pruned, nil
}

// CountOperations returns the number of operations matching the options.
func (m *Store) CountOperations(_ context.Context, opts operation.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, op := range m.operations {
		if opts.Kind != "" && op.Kind != opts.Kind {
			continue
		}
		if opts.State != "" && op.State != opts.State {
			continue
		}
		count++
	}

	return count, nil
}

// ──────────────────────────────────────────────────
// Binding Store
// ──────────────────────────────────────────────────

// CreateBinding persists a new precursor binding.
func (m *Store) CreateBinding(_ context.Context, b *binding.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bindings[b.GUID]; exists {
		return ccng.ErrBindingAlreadyExists
	}
	cp := *b
	m.bindings[b.GUID] = &cp
	return nil
}

// GetBinding retrieves a binding by GUID.
func (m *Store) GetBinding(_ context.Context, guid string) (*binding.Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bindings[guid]
	if !ok {
		return nil, ccng.ErrBindingNotFound
	}
	cp := *b
	return &cp, nil
}

// SaveWithOperation atomically replaces the binding's last operation.
func (m *Store) SaveWithOperation(_ context.Context, guid string, lo binding.LastOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.LastOperation = lo
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// SetCredentials stores broker-issued credentials on a credential binding.
func (m *Store) SetCredentials(_ context.Context, guid string, credentials json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.Credentials = credentials
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRouteServiceURL stores the broker-issued route service URL on a
// route binding.
func (m *Store) SetRouteServiceURL(_ context.Context, guid string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.RouteServiceURL = url
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// MaxPollingDuration reads the plan's bound on total polling time.
func (m *Store) MaxPollingDuration(_ context.Context, guid string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bindings[guid]
	if !ok {
		return 0, ccng.ErrBindingNotFound
	}
	return b.MaxPollingDuration, nil
}

// DeleteBinding removes a binding by GUID.
func (m *Store) DeleteBinding(_ context.Context, guid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bindings[guid]; !ok {
		return ccng.ErrBindingNotFound
	}
	delete(m.bindings, guid)
	return nil
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

// AppendAuditEvent persists a new audit event.
func (m *Store) AppendAuditEvent(_ context.Context, evt *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.events = append(m.events, &cp)
	return nil
}

// ListAuditEvents returns events for the given resource GUID in append
// order.
func (m *Store) ListAuditEvents(_ context.Context, resourceGUID string) ([]*audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*audit.Event, 0, len(m.events))
	for _, evt := range m.events {
		if resourceGUID != "" && evt.ResourceGUID != resourceGUID {
			continue
		}
		cp := *evt
		result = append(result, &cp)
	}

	return result, nil
}
