package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/binding"
)

// CreateBinding persists a new precursor binding.
func (s *Store) CreateBinding(ctx context.Context, b *binding.Binding) error {
	key := bindingKey(b.GUID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ccng/redis: create binding check exists: %w", err)
	}
	if exists > 0 {
		return ccng.ErrBindingAlreadyExists
	}

	data, err := encodeBinding(b)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, bindingGUIDsKey, b.GUID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: create binding: %w", err)
	}
	return nil
}

// GetBinding retrieves a binding by GUID.
func (s *Store) GetBinding(ctx context.Context, guid string) (*binding.Binding, error) {
	data, err := s.client.Get(ctx, bindingKey(guid)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ccng.ErrBindingNotFound
		}
		return nil, fmt.Errorf("ccng/redis: get binding: %w", err)
	}
	return decodeBinding(data)
}

// mutateBinding loads, modifies, and saves a binding under one logical
// write. Redis serves one command at a time, so the read-modify-write
// window is the only race surface; the operation scheduler guarantees a
// single writer per binding (at most one invocation in flight).
func (s *Store) mutateBinding(ctx context.Context, guid string, mutate func(*binding.Binding)) error {
	b, err := s.GetBinding(ctx, guid)
	if err != nil {
		return err
	}

	mutate(b)
	b.Touch()

	data, err := encodeBinding(b)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, bindingKey(guid), data, 0).Err(); err != nil {
		return fmt.Errorf("ccng/redis: save binding: %w", err)
	}
	return nil
}

// SaveWithOperation atomically replaces the binding's last operation.
func (s *Store) SaveWithOperation(ctx context.Context, guid string, lo binding.LastOperation) error {
	return s.mutateBinding(ctx, guid, func(b *binding.Binding) {
		b.LastOperation = lo
	})
}

// SetCredentials stores broker-issued credentials on a credential binding.
func (s *Store) SetCredentials(ctx context.Context, guid string, credentials json.RawMessage) error {
	return s.mutateBinding(ctx, guid, func(b *binding.Binding) {
		b.Credentials = credentials
	})
}

// SetRouteServiceURL stores the broker-issued route service URL on a
// route binding.
func (s *Store) SetRouteServiceURL(ctx context.Context, guid string, url string) error {
	return s.mutateBinding(ctx, guid, func(b *binding.Binding) {
		b.RouteServiceURL = url
	})
}

// MaxPollingDuration reads the maximum polling duration from the
// binding's service plan.
func (s *Store) MaxPollingDuration(ctx context.Context, guid string) (time.Duration, error) {
	b, err := s.GetBinding(ctx, guid)
	if err != nil {
		return 0, err
	}
	return b.MaxPollingDuration, nil
}

// DeleteBinding removes a binding by GUID.
func (s *Store) DeleteBinding(ctx context.Context, guid string) error {
	key := bindingKey(guid)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ccng/redis: delete binding check exists: %w", err)
	}
	if exists == 0 {
		return ccng.ErrBindingNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, bindingGUIDsKey, guid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: delete binding: %w", err)
	}
	return nil
}
