package bunstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/binding"
)

// CreateBinding persists a new precursor binding.
func (s *Store) CreateBinding(ctx context.Context, b *binding.Binding) error {
	m := toBindingModel(b)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return ccng.ErrBindingAlreadyExists
		}
		return fmt.Errorf("ccng/bun: create binding: %w", err)
	}
	return nil
}

// GetBinding retrieves a binding by GUID.
func (s *Store) GetBinding(ctx context.Context, guid string) (*binding.Binding, error) {
	m := new(bindingModel)
	err := s.db.NewSelect().Model(m).
		Where("guid = ?", guid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ccng.ErrBindingNotFound
		}
		return nil, fmt.Errorf("ccng/bun: get binding: %w", err)
	}
	return fromBindingModel(m), nil
}

// SaveWithOperation atomically replaces the binding's last operation.
// A single UPDATE keeps the displayed state from racing with concurrent
// readers or writers.
func (s *Store) SaveWithOperation(ctx context.Context, guid string, lo binding.LastOperation) error {
	res, err := s.db.NewUpdate().
		TableExpr("ccng_bindings").
		Set("last_operation_type = ?", lo.Type).
		Set("last_operation_state = ?", string(lo.State)).
		Set("last_operation_description = ?", lo.Description).
		Set("last_operation_updated_at = ?", lo.UpdatedAt).
		Set("updated_at = NOW()").
		Where("guid = ?", guid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: save binding operation: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrBindingNotFound
	}
	return nil
}

// SetCredentials stores broker-issued credentials on a credential binding.
func (s *Store) SetCredentials(ctx context.Context, guid string, credentials json.RawMessage) error {
	res, err := s.db.NewUpdate().
		TableExpr("ccng_bindings").
		Set("credentials = ?", []byte(credentials)).
		Set("updated_at = NOW()").
		Where("guid = ?", guid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: set credentials: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrBindingNotFound
	}
	return nil
}

// SetRouteServiceURL stores the broker-issued route service URL on a
// route binding.
func (s *Store) SetRouteServiceURL(ctx context.Context, guid string, url string) error {
	res, err := s.db.NewUpdate().
		TableExpr("ccng_bindings").
		Set("route_service_url = ?", url).
		Set("updated_at = NOW()").
		Where("guid = ?", guid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: set route service url: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrBindingNotFound
	}
	return nil
}

// MaxPollingDuration reads the maximum polling duration from the
// binding's service plan.
func (s *Store) MaxPollingDuration(ctx context.Context, guid string) (time.Duration, error) {
	var ns int64
	err := s.db.NewSelect().
		TableExpr("ccng_bindings").
		Column("max_polling_duration").
		Where("guid = ?", guid).
		Limit(1).
		Scan(ctx, &ns)
	if err != nil {
		if isNoRows(err) {
			return 0, ccng.ErrBindingNotFound
		}
		return 0, fmt.Errorf("ccng/bun: max polling duration: %w", err)
	}
	return time.Duration(ns), nil
}

// DeleteBinding removes a binding by GUID.
func (s *Store) DeleteBinding(ctx context.Context, guid string) error {
	res, err := s.db.NewDelete().
		TableExpr("ccng_bindings").
		Where("guid = ?", guid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: delete binding: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrBindingNotFound
	}
	return nil
}
