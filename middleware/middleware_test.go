package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/braunsonm/cloud-controller-ng/middleware"
	"github.com/braunsonm/cloud-controller-ng/operation"
	"github.com/braunsonm/cloud-controller-ng/scope"
)

func newTestOperation() *operation.Operation {
	return operation.New(operation.KindCredential, "binding-guid", nil, operation.AuditInfo{
		UserGUID: "user-guid-1",
		UserName: "admin",
	}, "audit-hash")
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *operation.Operation, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *operation.Operation, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	op := newTestOperation()
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), op, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), newTestOperation(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *operation.Operation, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), newTestOperation(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Recover(logger)
	op := newTestOperation()

	err := mw(context.Background(), op, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if !strings.Contains(err.Error(), "test panic") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Recover(logger)

	called := false
	err := mw(context.Background(), newTestOperation(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Success(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Logging(logger)

	called := false
	err := mw(context.Background(), newTestOperation(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Logging(logger)
	want := errors.New("fail")

	err := mw(context.Background(), newTestOperation(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_CancelsContext(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Timeout(10*time.Millisecond, logger)

	err := mw(context.Background(), newTestOperation(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroIsNoOp(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := middleware.Timeout(0, logger)

	err := mw(context.Background(), newTestOperation(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("expected no deadline on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScope_RestoresActor(t *testing.T) {
	mw := middleware.Scope()
	op := newTestOperation()

	err := mw(context.Background(), op, func(ctx context.Context) error {
		info, ok := scope.Capture(ctx)
		if !ok {
			t.Fatal("expected actor in context")
		}
		if info.UserGUID != "user-guid-1" {
			t.Errorf("UserGUID = %q, want %q", info.UserGUID, "user-guid-1")
		}
		if info.UserName != "admin" {
			t.Errorf("UserName = %q, want %q", info.UserName, "admin")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScope_NoOpWhenEmpty(t *testing.T) {
	mw := middleware.Scope()
	op := operation.New(operation.KindRoute, "binding-guid", nil, operation.AuditInfo{}, "")

	err := mw(context.Background(), op, func(ctx context.Context) error {
		if _, ok := scope.Capture(ctx); ok {
			t.Fatal("expected no actor in context for anonymous operation")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
