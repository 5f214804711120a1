package binding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/braunsonm/cloud-controller-ng/broker"
)

// RouteBackend drives route-binding operations: binding a route to a
// route service so the broker can proxy its traffic.
type RouteBackend struct {
	client broker.Client
	store  Store
}

// NewRouteBackend creates the route-binding backend.
func NewRouteBackend(client broker.Client, store Store) *RouteBackend {
	return &RouteBackend{client: client, store: store}
}

// Bind issues the bind call with the route as the bind resource. On a
// synchronous completion the route service URL is persisted immediately.
func (rb *RouteBackend) Bind(ctx context.Context, b *Binding, parameters json.RawMessage) (BindResult, error) {
	resp, err := rb.client.Bind(ctx, broker.BindRequest{
		InstanceGUID: b.ServiceInstanceGUID,
		BindingGUID:  b.GUID,
		ServiceID:    b.ServiceID,
		PlanID:       b.PlanID,
		Parameters:   parameters,
		BindResource: &broker.BindResource{Route: b.RouteURL},
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

	if resp.RouteServiceURL != "" {
		if saveErr := rb.store.SetRouteServiceURL(ctx, b.GUID, resp.RouteServiceURL); saveErr != nil {
			return BindResult{}, fmt.Errorf("save route service url: %w", saveErr)
		}
	}
	return BindResult{Complete: true}, nil
}

// Poll checks the broker's last_operation for the route binding.
func (rb *RouteBackend) Poll(ctx context.Context, b *Binding, brokerOperation string) (PollResult, error) {
	return pollLastOperation(ctx, rb.client, b, brokerOperation)
}

// Finalize fetches the binding and persists the route service URL.
func (rb *RouteBackend) Finalize(ctx context.Context, b *Binding) error {
	resp, err := rb.client.GetBinding(ctx, broker.GetBindingRequest{
		InstanceGUID: b.ServiceInstanceGUID,
		BindingGUID:  b.GUID,
	})
	if err != nil {
		return fmt.Errorf("fetch route binding: %w", err)
	}
	if resp.RouteServiceURL == "" {
		return nil
	}
	if err := rb.store.SetRouteServiceURL(ctx, b.GUID, resp.RouteServiceURL); err != nil {
		return fmt.Errorf("save route service url: %w", err)
	}
	return nil
}

// DisplayName returns the operation's presentation name.
func (rb *RouteBackend) DisplayName() string { return "service_route_bindings.create" }

// ResourceType returns the target resource's presentation type.
func (rb *RouteBackend) ResourceType() string { return "service_route_binding" }

// pollLastOperation is the poll step shared by both backends. A broker
// "failed" state surfaces as an error carrying the broker's description.
func pollLastOperation(ctx context.Context, client broker.Client, b *Binding, brokerOperation string) (PollResult, error) {
	resp, err := client.LastOperation(ctx, broker.LastOperationRequest{
		InstanceGUID: b.ServiceInstanceGUID,
		BindingGUID:  b.GUID,
		ServiceID:    b.ServiceID,
		PlanID:       b.PlanID,
		Operation:    brokerOperation,
	})
	if err != nil {
		return PollResult{}, err
	}

	switch resp.State {
	case broker.OperationSucceeded:
		return PollResult{Finished: true}, nil
	case broker.OperationFailed:
		return PollResult{}, fmt.Errorf("broker reported failure: %s", resp.Description)
	default:
		return PollResult{RetryAfter: resp.RetryAfter}, nil
	}
}
