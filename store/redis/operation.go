package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// dueScore is the Sorted Set score for an operation: RunAt in unix
// nanoseconds, so ZRANGEBYSCORE up to "now" yields exactly the due set.
func dueScore(runAt time.Time) float64 {
	return float64(runAt.UnixNano())
}

// EnqueueOperation stores the operation and indexes it in the due set.
func (s *Store) EnqueueOperation(ctx context.Context, op *operation.Operation) error {
	opID := op.ID.String()
	key := operationKey(opID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ccng/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return ccng.ErrOperationAlreadyExists
	}

	data, err := encodeOperation(op)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, operationIDsKey, opID)
	if op.State == operation.StatePending {
		pipe.ZAdd(ctx, dueKey, goredis.Z{Score: dueScore(op.RunAt), Member: opID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: enqueue operation: %w", err)
	}
	return nil
}

// ClaimOperations pops up to limit due operations from the due set and
// marks them running. ZREM is the exclusion primitive: of any number of
// concurrent claimers only one removes a given member, so at most one
// invocation of an operation is ever in flight.
func (s *Store) ClaimOperations(ctx context.Context, workerID id.WorkerID, limit int) ([]*operation.Operation, error) {
	now := time.Now().UTC()
	candidates, err := s.client.ZRangeByScore(ctx, dueKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixNano(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: claim range: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(candidates))
	for _, opID := range candidates {
		removed, remErr := s.client.ZRem(ctx, dueKey, opID).Result()
		if remErr != nil {
			return nil, fmt.Errorf("ccng/redis: claim zrem: %w", remErr)
		}
		if removed == 0 {
			// Another worker won this claim.
			continue
		}

		op, getErr := s.getOperationByKey(ctx, operationKey(opID))
		if getErr != nil {
			if errors.Is(getErr, ccng.ErrOperationNotFound) {
				continue
			}
			return nil, getErr
		}

		op.State = operation.StateRunning
		op.WorkerID = workerID
		op.Touch()
		if saveErr := s.saveOperation(ctx, op); saveErr != nil {
			return nil, saveErr
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// GetOperation retrieves an operation by ID.
func (s *Store) GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	return s.getOperationByKey(ctx, operationKey(opID.String()))
}

func (s *Store) getOperationByKey(ctx context.Context, key string) (*operation.Operation, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ccng.ErrOperationNotFound
		}
		return nil, fmt.Errorf("ccng/redis: get operation: %w", err)
	}
	return decodeOperation(data)
}

func (s *Store) saveOperation(ctx context.Context, op *operation.Operation) error {
	data, err := encodeOperation(op)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, operationKey(op.ID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("ccng/redis: save operation: %w", err)
	}
	return nil
}

// UpdateOperation persists changes and keeps the due index consistent:
// pending operations are (re)scored by RunAt, all others drop out of
// the due set.
func (s *Store) UpdateOperation(ctx context.Context, op *operation.Operation) error {
	opID := op.ID.String()
	key := operationKey(opID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ccng/redis: update check exists: %w", err)
	}
	if exists == 0 {
		return ccng.ErrOperationNotFound
	}

	op.Touch()
	data, err := encodeOperation(op)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	if op.State == operation.StatePending {
		pipe.ZAdd(ctx, dueKey, goredis.Z{Score: dueScore(op.RunAt), Member: opID})
	} else {
		pipe.ZRem(ctx, dueKey, opID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: update operation: %w", err)
	}
	return nil
}

// DeleteOperation removes an operation by ID.
func (s *Store) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	sID := opID.String()
	key := operationKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ccng/redis: delete check exists: %w", err)
	}
	if exists == 0 {
		return ccng.ErrOperationNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, operationIDsKey, sID)
	pipe.ZRem(ctx, dueKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ccng/redis: delete operation: %w", err)
	}
	return nil
}

// allOperations loads every stored operation, skipping records that
// vanished between the enumeration and the load.
func (s *Store) allOperations(ctx context.Context) ([]*operation.Operation, error) {
	ids, err := s.client.SMembers(ctx, operationIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: list operation ids: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(ids))
	for _, opID := range ids {
		op, getErr := s.getOperationByKey(ctx, operationKey(opID))
		if getErr != nil {
			if errors.Is(getErr, ccng.ErrOperationNotFound) {
				continue
			}
			return nil, getErr
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ListOperationsByState returns operations matching the given state.
func (s *Store) ListOperationsByState(ctx context.Context, state operation.State, opts operation.ListOpts) ([]*operation.Operation, error) {
	all, err := s.allOperations(ctx)
	if err != nil {
		return nil, err
	}

	ops := make([]*operation.Operation, 0, len(all))
	for _, op := range all {
		if op.State != state {
			continue
		}
		if opts.Kind != "" && op.Kind != opts.Kind {
			continue
		}
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(ops) {
			return nil, nil
		}
		ops = ops[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(ops) {
		ops = ops[:opts.Limit]
	}
	return ops, nil
}

// ExpiredOperations returns non-terminal operations whose deadline
// passed before now.
func (s *Store) ExpiredOperations(ctx context.Context, now time.Time) ([]*operation.Operation, error) {
	all, err := s.allOperations(ctx)
	if err != nil {
		return nil, err
	}

	var expired []*operation.Operation
	for _, op := range all {
		if op.State.Terminal() {
			continue
		}
		deadline, ok := op.Deadline()
		if !ok || deadline.After(now) {
			continue
		}
		expired = append(expired, op)
	}
	return expired, nil
}

// StaleOperations returns running operations not updated for longer
// than the threshold.
func (s *Store) StaleOperations(ctx context.Context, threshold time.Duration) ([]*operation.Operation, error) {
	all, err := s.allOperations(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*operation.Operation
	for _, op := range all {
		if op.State != operation.StateRunning {
			continue
		}
		if op.UpdatedAt.After(cutoff) {
			continue
		}
		stale = append(stale, op)
	}
	return stale, nil
}

// PruneTerminalOperations removes terminal operations completed before
// the given time.
func (s *Store) PruneTerminalOperations(ctx context.Context, before time.Time) (int64, error) {
	all, err := s.allOperations(ctx)
	if err != nil {
		return 0, err
	}

	var pruned int64
	for _, op := range all {
		if !op.State.Terminal() {
			continue
		}
		if op.CompletedAt == nil || !op.CompletedAt.Before(before) {
			continue
		}

		sID := op.ID.String()
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, operationKey(sID))
		pipe.SRem(ctx, operationIDsKey, sID)
		pipe.ZRem(ctx, dueKey, sID)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return pruned, fmt.Errorf("ccng/redis: prune operation: %w", execErr)
		}
		pruned++
	}
	return pruned, nil
}

// CountOperations returns the number of operations matching the options.
func (s *Store) CountOperations(ctx context.Context, opts operation.CountOpts) (int64, error) {
	all, err := s.allOperations(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, op := range all {
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
