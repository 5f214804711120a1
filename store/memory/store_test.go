package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
	"github.com/braunsonm/cloud-controller-ng/store/memory"
)

func newOp(t *testing.T, s *memory.Store) *operation.Operation {
	t.Helper()
	op := operation.New(operation.KindCredential, "bnd-guid", nil, operation.AuditInfo{}, "")
	if err := s.EnqueueOperation(context.Background(), op); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return op
}

func TestEnqueueOperation_Duplicate(t *testing.T) {
	s := memory.New()
	op := newOp(t, s)

	err := s.EnqueueOperation(context.Background(), op)
	if !errors.Is(err, ccng.ErrOperationAlreadyExists) {
		t.Fatalf("expected ErrOperationAlreadyExists, got %v", err)
	}
}

func TestGetOperation_NotFound(t *testing.T) {
	s := memory.New()

	_, err := s.GetOperation(context.Background(), id.NewOperationID())
	if !errors.Is(err, ccng.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestClaimOperations_ClaimsDuePending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	workerID := id.NewWorkerID()

	due := newOp(t, s)

	// A future operation must not be claimed.
	future := operation.New(operation.KindCredential, "bnd-future", nil, operation.AuditInfo{}, "")
	future.RunAt = time.Now().UTC().Add(time.Hour)
	if err := s.EnqueueOperation(ctx, future); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := s.ClaimOperations(ctx, workerID, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d operations, want 1", len(claimed))
	}
	if claimed[0].ID != due.ID {
		t.Errorf("claimed %s, want %s", claimed[0].ID, due.ID)
	}
	if claimed[0].State != operation.StateRunning {
		t.Errorf("state = %q, want %q", claimed[0].State, operation.StateRunning)
	}
	if claimed[0].WorkerID != workerID {
		t.Errorf("worker ID not assigned on claim")
	}

	// A second claim must find nothing: the claim is exclusive.
	again, err := s.ClaimOperations(ctx, id.NewWorkerID(), 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim returned %d operations, want 0", len(again))
	}
}

func TestClaimOperations_OrdersByRunAt(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	older := operation.New(operation.KindCredential, "bnd-1", nil, operation.AuditInfo{}, "")
	older.RunAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := operation.New(operation.KindCredential, "bnd-2", nil, operation.AuditInfo{}, "")
	newer.RunAt = time.Now().UTC().Add(-time.Hour)

	if err := s.EnqueueOperation(ctx, newer); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.EnqueueOperation(ctx, older); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := s.ClaimOperations(ctx, id.NewWorkerID(), 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != older.ID {
		t.Fatalf("expected oldest RunAt first, got %v", claimed)
	}
}

func TestUpdateOperation_RoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	op := newOp(t, s)

	op.State = operation.StateSucceeded
	op.LastError = ""
	if err := s.UpdateOperation(ctx, op); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != operation.StateSucceeded {
		t.Errorf("state = %q, want %q", got.State, operation.StateSucceeded)
	}
}

func TestUpdateOperation_NotFound(t *testing.T) {
	s := memory.New()
	op := operation.New(operation.KindCredential, "bnd-guid", nil, operation.AuditInfo{}, "")

	err := s.UpdateOperation(context.Background(), op)
	if !errors.Is(err, ccng.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestListOperationsByState_FiltersAndPaginates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for range 3 {
		op := operation.New(operation.KindCredential, "bnd", nil, operation.AuditInfo{}, "")
		if err := s.EnqueueOperation(ctx, op); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	routeOp := operation.New(operation.KindRoute, "bnd-r", nil, operation.AuditInfo{}, "")
	if err := s.EnqueueOperation(ctx, routeOp); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	all, err := s.ListOperationsByState(ctx, operation.StatePending, operation.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("listed %d, want 4", len(all))
	}

	routes, err := s.ListOperationsByState(ctx, operation.StatePending, operation.ListOpts{Kind: operation.KindRoute})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 1 || routes[0].ID != routeOp.ID {
		t.Fatalf("kind filter returned %d, want the route operation", len(routes))
	}

	page, err := s.ListOperationsByState(ctx, operation.StatePending, operation.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
}

func TestExpiredOperations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	expired := operation.New(operation.KindCredential, "bnd-old", nil, operation.AuditInfo{}, "")
	started := time.Now().UTC().Add(-2 * time.Hour)
	expired.FirstStartedAt = &started
	expired.MaxDuration = time.Hour
	if err := s.EnqueueOperation(ctx, expired); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	fresh := operation.New(operation.KindCredential, "bnd-new", nil, operation.AuditInfo{}, "")
	justStarted := time.Now().UTC()
	fresh.FirstStartedAt = &justStarted
	fresh.MaxDuration = time.Hour
	if err := s.EnqueueOperation(ctx, fresh); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// An operation that never started has no deadline.
	unstarted := operation.New(operation.KindCredential, "bnd-unstarted", nil, operation.AuditInfo{}, "")
	unstarted.MaxDuration = time.Hour
	if err := s.EnqueueOperation(ctx, unstarted); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := s.ExpiredOperations(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("expected only the expired operation, got %d", len(got))
	}
}

func TestStaleOperations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	op := newOp(t, s)
	claimed, err := s.ClaimOperations(ctx, id.NewWorkerID(), 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	_ = op

	// With a generous threshold nothing is stale yet.
	stale, err := s.StaleOperations(ctx, time.Hour)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected 0 stale operations, got %d", len(stale))
	}

	// With a zero threshold the running claim is already stale.
	stale, err = s.StaleOperations(ctx, 0)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale operation, got %d", len(stale))
	}
}

func TestPruneTerminalOperations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	done := newOp(t, s)
	done.State = operation.StateSucceeded
	completed := time.Now().UTC().Add(-48 * time.Hour)
	done.CompletedAt = &completed
	if err := s.UpdateOperation(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	active := operation.New(operation.KindCredential, "bnd-active", nil, operation.AuditInfo{}, "")
	if err := s.EnqueueOperation(ctx, active); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pruned, err := s.PruneTerminalOperations(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	if _, err := s.GetOperation(ctx, done.ID); !errors.Is(err, ccng.ErrOperationNotFound) {
		t.Errorf("expected pruned operation to be gone, got %v", err)
	}
	if _, err := s.GetOperation(ctx, active.ID); err != nil {
		t.Errorf("active operation should survive pruning: %v", err)
	}
}

func TestCountOperations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	newOp(t, s)
	newOp(t, s)
	routeOp := operation.New(operation.KindRoute, "bnd-r", nil, operation.AuditInfo{}, "")
	if err := s.EnqueueOperation(ctx, routeOp); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	total, err := s.CountOperations(ctx, operation.CountOpts{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	routes, err := s.CountOperations(ctx, operation.CountOpts{Kind: operation.KindRoute})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if routes != 1 {
		t.Errorf("routes = %d, want 1", routes)
	}

	pending, err := s.CountOperations(ctx, operation.CountOpts{State: operation.StatePending})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if pending != 3 {
		t.Errorf("pending = %d, want 3", pending)
	}
}

// ──────────────────────────────────────────────────
// Binding store
// ──────────────────────────────────────────────────

func newBinding(t *testing.T, s *memory.Store, guid string) *binding.Binding {
	t.Helper()
	b := &binding.Binding{
		Entity:              ccng.NewEntity(),
		GUID:                guid,
		Kind:                operation.KindCredential,
		ServiceInstanceGUID: "si-guid",
		ServiceID:           "svc-1",
		PlanID:              "plan-1",
		AppGUID:             "app-guid",
		Retrievable:         true,
		MaxPollingDuration:  time.Hour,
		LastOperation:       binding.LastOperation{Type: "create", State: binding.StateInitial},
	}
	if err := s.CreateBinding(context.Background(), b); err != nil {
		t.Fatalf("create binding: %v", err)
	}
	return b
}

func TestCreateBinding_Duplicate(t *testing.T) {
	s := memory.New()
	b := newBinding(t, s, "bnd-1")

	err := s.CreateBinding(context.Background(), b)
	if !errors.Is(err, ccng.ErrBindingAlreadyExists) {
		t.Fatalf("expected ErrBindingAlreadyExists, got %v", err)
	}
}

func TestGetBinding_NotFound(t *testing.T) {
	s := memory.New()

	_, err := s.GetBinding(context.Background(), "nope")
	if !errors.Is(err, ccng.ErrBindingNotFound) {
		t.Fatalf("expected ErrBindingNotFound, got %v", err)
	}
}

func TestSaveWithOperation_ReplacesLastOperation(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	newBinding(t, s, "bnd-1")

	lo := binding.LastOperation{
		Type:        "create",
		State:       binding.StateFailed,
		Description: "broker exploded",
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.SaveWithOperation(ctx, "bnd-1", lo); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetBinding(ctx, "bnd-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastOperation.State != binding.StateFailed {
		t.Errorf("state = %q, want %q", got.LastOperation.State, binding.StateFailed)
	}
	if got.LastOperation.Description != "broker exploded" {
		t.Errorf("description = %q, want %q", got.LastOperation.Description, "broker exploded")
	}
}

func TestSetCredentials(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	newBinding(t, s, "bnd-1")

	creds := json.RawMessage(`{"user":"u","pass":"p"}`)
	if err := s.SetCredentials(ctx, "bnd-1", creds); err != nil {
		t.Fatalf("set credentials: %v", err)
	}

	got, err := s.GetBinding(ctx, "bnd-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Credentials) != string(creds) {
		t.Errorf("credentials = %s, want %s", got.Credentials, creds)
	}
}

func TestSetRouteServiceURL(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	newBinding(t, s, "bnd-1")

	if err := s.SetRouteServiceURL(ctx, "bnd-1", "https://rs.example.com"); err != nil {
		t.Fatalf("set route service url: %v", err)
	}

	got, err := s.GetBinding(ctx, "bnd-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RouteServiceURL != "https://rs.example.com" {
		t.Errorf("route service url = %q", got.RouteServiceURL)
	}
}

func TestMaxPollingDuration(t *testing.T) {
	s := memory.New()
	newBinding(t, s, "bnd-1")

	d, err := s.MaxPollingDuration(context.Background(), "bnd-1")
	if err != nil {
		t.Fatalf("max polling duration: %v", err)
	}
	if d != time.Hour {
		t.Errorf("duration = %v, want %v", d, time.Hour)
	}
}

func TestDeleteBinding(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	newBinding(t, s, "bnd-1")

	if err := s.DeleteBinding(ctx, "bnd-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetBinding(ctx, "bnd-1"); !errors.Is(err, ccng.ErrBindingNotFound) {
		t.Fatalf("expected ErrBindingNotFound after delete, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Audit store
// ──────────────────────────────────────────────────

func TestAuditEvents_AppendAndList(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i, guid := range []string{"bnd-1", "bnd-2", "bnd-1"} {
		evt := &audit.Event{
			ID:           id.NewAuditID(),
			Action:       audit.ActionOperationEnqueued,
			Resource:     "service_binding",
			ResourceGUID: guid,
			Outcome:      audit.OutcomeSuccess,
			Severity:     audit.SeverityInfo,
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.AppendAuditEvent(ctx, evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.ListAuditEvents(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	forOne, err := s.ListAuditEvents(ctx, "bnd-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(forOne) != 2 {
		t.Fatalf("bnd-1 events = %d, want 2", len(forOne))
	}
}
