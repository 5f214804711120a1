package binding

import (
	"context"
	"encoding/json"
	"time"
)

// Store defines the persistence contract for binding resources.
//
// SaveWithOperation is the single write path for operation status: both
// the polling job's terminal transitions and timeout handling go through
// it, so the binding's displayed state never regresses or races with a
// concurrent read.
type Store interface {
	// CreateBinding persists a new precursor binding.
	CreateBinding(ctx context.Context, b *Binding) error

	// GetBinding retrieves a binding by GUID.
	GetBinding(ctx context.Context, guid string) (*Binding, error)

	// SaveWithOperation atomically replaces the binding's last operation.
	SaveWithOperation(ctx context.Context, guid string, lo LastOperation) error

	// SetCredentials stores broker-issued credentials on a credential binding.
	SetCredentials(ctx context.Context, guid string, credentials json.RawMessage) error

	// SetRouteServiceURL stores the broker-issued route service URL on a
	// route binding.
	SetRouteServiceURL(ctx context.Context, guid string, url string) error

	// MaxPollingDuration reads the maximum polling duration from the
	// binding's service plan. Read fresh on every invocation rather than
	// cached at first attempt, so mid-operation plan updates take effect.
	MaxPollingDuration(ctx context.Context, guid string) (time.Duration, error)

	// DeleteBinding removes a binding by GUID.
	DeleteBinding(ctx context.Context, guid string) error
}
