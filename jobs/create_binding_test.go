package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/broker"
	"github.com/braunsonm/cloud-controller-ng/jobs"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type fakeBackend struct {
	bindCalls int
	pollCalls int

	bindResult binding.BindResult
	bindErr    error

	pollResults []binding.PollResult
	pollErr     error

	finalizeCalls int
	finalizeErr   error
}

func (f *fakeBackend) Bind(_ context.Context, _ *binding.Binding, _ json.RawMessage) (binding.BindResult, error) {
	f.bindCalls++
	return f.bindResult, f.bindErr
}

func (f *fakeBackend) Poll(_ context.Context, _ *binding.Binding, _ string) (binding.PollResult, error) {
	f.pollCalls++
	if f.pollErr != nil {
		return binding.PollResult{}, f.pollErr
	}
	idx := f.pollCalls - 1
	if idx >= len(f.pollResults) {
		idx = len(f.pollResults) - 1
	}
	return f.pollResults[idx], nil
}

func (f *fakeBackend) Finalize(_ context.Context, _ *binding.Binding) error {
	f.finalizeCalls++
	return f.finalizeErr
}

func (f *fakeBackend) DisplayName() string  { return "service_bindings.create" }
func (f *fakeBackend) ResourceType() string { return "service_binding" }

type fakeBindingStore struct {
	mu       sync.Mutex
	bindings map[string]*binding.Binding
	saves    []binding.LastOperation
	saveErr  error
}

func newFakeBindingStore(bs ...*binding.Binding) *fakeBindingStore {
	s := &fakeBindingStore{bindings: make(map[string]*binding.Binding)}
	for _, b := range bs {
		s.bindings[b.GUID] = b
	}
	return s
}

func (s *fakeBindingStore) CreateBinding(_ context.Context, b *binding.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[b.GUID] = b
	return nil
}

func (s *fakeBindingStore) GetBinding(_ context.Context, guid string) (*binding.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[guid]
	if !ok {
		return nil, ccng.ErrBindingNotFound
	}
	return b, nil
}

func (s *fakeBindingStore) SaveWithOperation(_ context.Context, guid string, lo binding.LastOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	b, ok := s.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.LastOperation = lo
	s.saves = append(s.saves, lo)
	return nil
}

func (s *fakeBindingStore) SetCredentials(_ context.Context, guid string, creds json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.Credentials = creds
	return nil
}

func (s *fakeBindingStore) SetRouteServiceURL(_ context.Context, guid, u string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[guid]
	if !ok {
		return ccng.ErrBindingNotFound
	}
	b.RouteServiceURL = u
	return nil
}

func (s *fakeBindingStore) MaxPollingDuration(_ context.Context, guid string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[guid]
	if !ok {
		return 0, ccng.ErrBindingNotFound
	}
	return b.MaxPollingDuration, nil
}

func (s *fakeBindingStore) DeleteBinding(_ context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, guid)
	return nil
}

func testBinding() *binding.Binding {
	return &binding.Binding{
		Entity:              ccng.NewEntity(),
		GUID:                "bnd-guid-1",
		Kind:                operation.KindCredential,
		ServiceInstanceGUID: "inst-1",
		ServiceID:           "svc-1",
		PlanID:              "plan-1",
		Retrievable:         true,
		MaxPollingDuration:  10 * time.Minute,
		LastOperation:       binding.LastOperation{Type: "create", State: binding.StateInitial},
	}
}

func testOperation() *operation.Operation {
	return operation.New(
		operation.KindCredential,
		"bnd-guid-1",
		json.RawMessage(`{"size":"small"}`),
		operation.AuditInfo{UserGUID: "user-1", UserName: "alice"},
		"abc123",
	)
}

func newJob(op *operation.Operation, be binding.Backend, store binding.Store) *jobs.CreateBindingJob {
	return jobs.NewCreateBinding(op, be, store, slog.Default())
}

// ──────────────────────────────────────────────────
// Bind-once guarantee
// ──────────────────────────────────────────────────

func TestPerform_BindCalledAtMostOnce(t *testing.T) {
	store := newFakeBindingStore(testBinding())
	be := &fakeBackend{
		bindResult:  binding.BindResult{Operation: "task-1"},
		pollResults: []binding.PollResult{{}},
	}
	op := testOperation()

	// First invocation binds; five more invocations only poll.
	for range 6 {
		j := newJob(op, be, store)
		if err := j.Perform(context.Background()); err != nil {
			t.Fatalf("Perform: %v", err)
		}
	}

	if be.bindCalls != 1 {
		t.Errorf("bind calls = %d, want exactly 1", be.bindCalls)
	}
	if be.pollCalls != 5 {
		t.Errorf("poll calls = %d, want 5", be.pollCalls)
	}
	if op.FirstAttempt {
		t.Error("FirstAttempt still true after first invocation")
	}
	if op.BrokerOperation != "task-1" {
		t.Errorf("BrokerOperation = %q, want %q", op.BrokerOperation, "task-1")
	}
}

// ──────────────────────────────────────────────────
// Synchronous completion
// ──────────────────────────────────────────────────

func TestPerform_SynchronousCompletionSkipsPolling(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{bindResult: binding.BindResult{Complete: true}}
	op := testOperation()

	j := newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if op.State != operation.StateSucceeded {
		t.Errorf("operation state = %q, want %q", op.State, operation.StateSucceeded)
	}
	if be.pollCalls != 0 {
		t.Errorf("poll calls = %d, want 0 after synchronous completion", be.pollCalls)
	}
	if b.LastOperation.State != binding.StateSucceeded {
		t.Errorf("binding last operation = %q, want %q", b.LastOperation.State, binding.StateSucceeded)
	}
}

// ──────────────────────────────────────────────────
// Retry-After override
// ──────────────────────────────────────────────────

func TestPerform_RetryAfterOverridesPollingInterval(t *testing.T) {
	store := newFakeBindingStore(testBinding())
	be := &fakeBackend{
		bindResult:  binding.BindResult{Operation: "task-1"},
		pollResults: []binding.PollResult{{RetryAfter: 30 * time.Second}},
	}
	op := testOperation()
	op.PollingInterval = 60 * time.Second

	j := newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil { // bind
		t.Fatalf("Perform (bind): %v", err)
	}
	j = newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil { // poll
		t.Fatalf("Perform (poll): %v", err)
	}

	if op.PollingInterval != 30*time.Second {
		t.Errorf("PollingInterval = %v, want 30s (broker override)", op.PollingInterval)
	}
}

func TestPerform_NoRetryAfterKeepsInterval(t *testing.T) {
	store := newFakeBindingStore(testBinding())
	be := &fakeBackend{
		bindResult:  binding.BindResult{Operation: "task-1"},
		pollResults: []binding.PollResult{{}},
	}
	op := testOperation()
	op.PollingInterval = 45 * time.Second
	op.FirstAttempt = false

	j := newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if op.PollingInterval != 45*time.Second {
		t.Errorf("PollingInterval = %v, want unchanged 45s", op.PollingInterval)
	}
}

// ──────────────────────────────────────────────────
// Missing resource
// ──────────────────────────────────────────────────

func TestPerform_ResourceMissing_FailsWithoutBindCall(t *testing.T) {
	store := newFakeBindingStore() // empty
	be := &fakeBackend{}
	op := testOperation()

	j := newJob(op, be, store)
	err := j.Perform(context.Background())

	f, ok := jobs.AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *jobs.Failure", err)
	}
	if f.Kind != jobs.KindNotFound {
		t.Errorf("Kind = %q, want %q", f.Kind, jobs.KindNotFound)
	}
	if be.bindCalls != 0 {
		t.Errorf("bind calls = %d, want 0 when resource is missing", be.bindCalls)
	}
}

// ──────────────────────────────────────────────────
// Error taxonomy
// ──────────────────────────────────────────────────

func TestPerform_BindingNotRetrievable_DistinctFailureKind(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{bindErr: broker.ErrBindingNotRetrievable}
	op := testOperation()

	j := newJob(op, be, store)
	err := j.Perform(context.Background())

	f, ok := jobs.AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *jobs.Failure", err)
	}
	if f.Kind != jobs.KindBindingNotRetrievable {
		t.Errorf("Kind = %q, want %q", f.Kind, jobs.KindBindingNotRetrievable)
	}
	if !strings.Contains(f.Error(), "responded asynchronously") {
		t.Errorf("message %q does not mention the async fetch limitation", f.Error())
	}
	if b.LastOperation.State != binding.StateFailed {
		t.Errorf("binding last operation = %q, want failed", b.LastOperation.State)
	}
}

func TestPerform_GenericBindError_BackendFailure(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{bindErr: errors.New("connection refused")}
	op := testOperation()

	j := newJob(op, be, store)
	err := j.Perform(context.Background())

	f, ok := jobs.AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *jobs.Failure", err)
	}
	if f.Kind != jobs.KindBackendFailure {
		t.Errorf("Kind = %q, want %q", f.Kind, jobs.KindBackendFailure)
	}
	if !strings.Contains(f.Error(), "connection refused") {
		t.Errorf("message %q does not carry the underlying error", f.Error())
	}
	if !strings.Contains(f.Error(), "service_bindings.create") {
		t.Errorf("message %q does not name the operation", f.Error())
	}
}

func TestPerform_PollReportsBrokerFailure(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{pollErr: errors.New("broker reported failure: quota exceeded")}
	op := testOperation()
	op.FirstAttempt = false

	j := newJob(op, be, store)
	err := j.Perform(context.Background())

	f, ok := jobs.AsFailure(err)
	if !ok {
		t.Fatalf("err = %v, want *jobs.Failure", err)
	}
	if f.Kind != jobs.KindBackendFailure {
		t.Errorf("Kind = %q, want %q", f.Kind, jobs.KindBackendFailure)
	}
	if b.LastOperation.Description == "" || !strings.Contains(b.LastOperation.Description, "quota exceeded") {
		t.Errorf("binding failure description = %q, want broker reason", b.LastOperation.Description)
	}
}

// ──────────────────────────────────────────────────
// Finalize on async success
// ──────────────────────────────────────────────────

func TestPerform_AsyncSuccessRunsFinalize(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{
		bindResult:  binding.BindResult{Operation: "task-1"},
		pollResults: []binding.PollResult{{Finished: true}},
	}
	op := testOperation()

	j := newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil { // bind
		t.Fatalf("Perform (bind): %v", err)
	}
	if b.LastOperation.State != binding.StateInProgress {
		t.Errorf("after accept: binding state = %q, want in progress", b.LastOperation.State)
	}

	j = newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil { // poll → finished
		t.Fatalf("Perform (poll): %v", err)
	}

	if be.finalizeCalls != 1 {
		t.Errorf("finalize calls = %d, want 1", be.finalizeCalls)
	}
	if op.State != operation.StateSucceeded {
		t.Errorf("operation state = %q, want succeeded", op.State)
	}
	if b.LastOperation.State != binding.StateSucceeded {
		t.Errorf("binding state = %q, want succeeded", b.LastOperation.State)
	}
}

// ──────────────────────────────────────────────────
// Timeout handling
// ──────────────────────────────────────────────────

func TestHandleTimeout_PersistsTimeoutDisposition(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	be := &fakeBackend{}
	op := testOperation()
	op.FirstAttempt = false

	j := newJob(op, be, store)
	j.HandleTimeout(context.Background())

	if op.State != operation.StateTimedOut {
		t.Errorf("operation state = %q, want %q", op.State, operation.StateTimedOut)
	}
	if b.LastOperation.State != binding.StateFailed {
		t.Errorf("binding state = %q, want failed", b.LastOperation.State)
	}
	if !strings.Contains(strings.ToLower(b.LastOperation.Description), "time") {
		t.Errorf("description %q does not mention the timeout", b.LastOperation.Description)
	}
	if be.bindCalls != 0 || be.pollCalls != 0 {
		t.Error("HandleTimeout must not involve the backend")
	}
}

func TestHandleTimeout_NeverPanicsOnSaveError(t *testing.T) {
	b := testBinding()
	store := newFakeBindingStore(b)
	store.saveErr = errors.New("store unavailable")
	op := testOperation()

	j := newJob(op, &fakeBackend{}, store)
	// Must not panic and has no error to return.
	j.HandleTimeout(context.Background())

	if op.State != operation.StateTimedOut {
		t.Errorf("operation state = %q, want timed_out even when save fails", op.State)
	}
}

// ──────────────────────────────────────────────────
// Contract surface
// ──────────────────────────────────────────────────

func TestJob_ContractMetadata(t *testing.T) {
	op := testOperation()
	j := newJob(op, &fakeBackend{}, newFakeBindingStore())

	if got := j.MaxAttempts(); got != 1 {
		t.Errorf("MaxAttempts() = %d, want 1", got)
	}
	if got := j.DisplayName(); got != "service_bindings.create" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := j.ResourceType(); got != "service_binding" {
		t.Errorf("ResourceType() = %q", got)
	}
	if got := j.ResourceGUID(); got != "bnd-guid-1" {
		t.Errorf("ResourceGUID() = %q", got)
	}
}

func TestPerform_MaxDurationRecomputedEachInvocation(t *testing.T) {
	b := testBinding()
	b.MaxPollingDuration = 10 * time.Minute
	store := newFakeBindingStore(b)
	be := &fakeBackend{
		bindResult:  binding.BindResult{Operation: "task-1"},
		pollResults: []binding.PollResult{{}},
	}
	op := testOperation()

	j := newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if op.MaxDuration != 10*time.Minute {
		t.Errorf("MaxDuration = %v, want 10m", op.MaxDuration)
	}

	// The plan changed mid-operation; the next invocation picks it up.
	b.MaxPollingDuration = 2 * time.Minute
	j = newJob(op, be, store)
	if err := j.Perform(context.Background()); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if op.MaxDuration != 2*time.Minute {
		t.Errorf("MaxDuration = %v, want recomputed 2m", op.MaxDuration)
	}
}
