package binding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/braunsonm/cloud-controller-ng/broker"
)

// CredentialBackend drives credential-binding operations: binding a
// service instance to an application and storing the issued credentials.
type CredentialBackend struct {
	client broker.Client
	store  Store
}

// NewCredentialBackend creates the credential-binding backend.
func NewCredentialBackend(client broker.Client, store Store) *CredentialBackend {
	return &CredentialBackend{client: client, store: store}
}

// Bind issues the bind call with the application as the bind resource.
// On a synchronous completion the credentials are persisted immediately.
func (cb *CredentialBackend) Bind(ctx context.Context, b *Binding, parameters json.RawMessage) (BindResult, error) {
	resp, err := cb.client.Bind(ctx, broker.BindRequest{
		InstanceGUID: b.ServiceInstanceGUID,
		BindingGUID:  b.GUID,
		ServiceID:    b.ServiceID,
		PlanID:       b.PlanID,
		Parameters:   parameters,
		BindResource: &broker.BindResource{AppGUID: b.AppGUID},
	})
	if err != nil {
		return BindResult{}, err
	}

	if resp.Async {
		if !b.Retrievable {
			return BindResult{}, broker.ErrBindingNotRetrievable
		}
		return BindResult{Operation: resp.Operation}, nil
	}

	if len(resp.Credentials) > 0 {
		if saveErr := cb.store.SetCredentials(ctx, b.GUID, resp.Credentials); saveErr != nil {
			return BindResult{}, fmt.Errorf("save credentials: %w", saveErr)
		}
	}
	return BindResult{Complete: true}, nil
}

// Poll checks the broker's last_operation for the credential binding.
func (cb *CredentialBackend) Poll(ctx context.Context, b *Binding, brokerOperation string) (PollResult, error) {
	return pollLastOperation(ctx, cb.client, b, brokerOperation)
}

// Finalize fetches the binding and persists the issued credentials.
func (cb *CredentialBackend) Finalize(ctx context.Context, b *Binding) error {
	resp, err := cb.client.GetBinding(ctx, broker.GetBindingRequest{
		InstanceGUID: b.ServiceInstanceGUID,
		BindingGUID:  b.GUID,
	})
	if err != nil {
		return fmt.Errorf("fetch credential binding: %w", err)
	}
	if len(resp.Credentials) == 0 {
		return nil
	}
	if err := cb.store.SetCredentials(ctx, b.GUID, resp.Credentials); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// DisplayName returns the operation's presentation name.
func (cb *CredentialBackend) DisplayName() string { return "service_bindings.create" }

// ResourceType returns the target resource's presentation type.
func (cb *CredentialBackend) ResourceType() string { return "service_binding" }
