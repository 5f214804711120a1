package bunstore

import (
	"context"
	"fmt"
	"time"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// EnqueueOperation persists a new operation in pending state.
func (s *Store) EnqueueOperation(ctx context.Context, op *operation.Operation) error {
	m := toOperationModel(op)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return ccng.ErrOperationAlreadyExists
		}
		return fmt.Errorf("ccng/bun: enqueue operation: %w", err)
	}
	return nil
}

// ClaimOperations atomically claims up to limit due pending operations,
// sets them to running, and returns them. Uses SELECT FOR UPDATE SKIP
// LOCKED so concurrent workers never win the same claim.
func (s *Store) ClaimOperations(ctx context.Context, workerID id.WorkerID, limit int) ([]*operation.Operation, error) {
	var models []operationModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE ccng_operations
			SET state = 'running', worker_id = ?0, updated_at = NOW()
			WHERE id IN (
				SELECT id FROM ccng_operations
				WHERE state = 'pending'
				  AND run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?1
			)
			RETURNING *
		)
		SELECT * FROM claimed ORDER BY run_at ASC`,
		workerID.String(), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("ccng/bun: claim operations: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(models))
	for i := range models {
		op, convErr := fromOperationModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ccng/bun: claim convert: %w", convErr)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// GetOperation retrieves an operation by ID.
func (s *Store) GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	m := new(operationModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", opID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ccng.ErrOperationNotFound
		}
		return nil, fmt.Errorf("ccng/bun: get operation: %w", err)
	}
	return fromOperationModel(m)
}

// UpdateOperation persists changes to an existing operation.
func (s *Store) UpdateOperation(ctx context.Context, op *operation.Operation) error {
	m := toOperationModel(op)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: update operation: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrOperationNotFound
	}
	return nil
}

// DeleteOperation removes an operation by ID.
func (s *Store) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	res, err := s.db.NewDelete().
		TableExpr("ccng_operations").
		Where("id = ?", opID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ccng/bun: delete operation: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ccng.ErrOperationNotFound
	}
	return nil
}

// ListOperationsByState returns operations matching the given state.
func (s *Store) ListOperationsByState(ctx context.Context, state operation.State, opts operation.ListOpts) ([]*operation.Operation, error) {
	var models []operationModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ccng/bun: list operations by state: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(models))
	for i := range models {
		op, convErr := fromOperationModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ccng/bun: list operations convert: %w", convErr)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ExpiredOperations returns non-terminal operations whose deadline
// (first_started_at + max_duration) passed before now.
func (s *Store) ExpiredOperations(ctx context.Context, now time.Time) ([]*operation.Operation, error) {
	var models []operationModel
	err := s.db.NewSelect().Model(&models).
		Where("state IN ('pending', 'running')").
		Where("first_started_at IS NOT NULL").
		Where("max_duration > 0").
		Where("first_started_at + (max_duration * interval '1 nanosecond') <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ccng/bun: expired operations: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(models))
	for i := range models {
		op, convErr := fromOperationModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ccng/bun: expired convert: %w", convErr)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// StaleOperations returns running operations not updated for longer than
// the threshold, indicating the claiming worker may have crashed.
func (s *Store) StaleOperations(ctx context.Context, threshold time.Duration) ([]*operation.Operation, error) {
	var models []operationModel
	err := s.db.NewSelect().Model(&models).
		Where("state = 'running'").
		Where("updated_at < NOW() - ?::interval", threshold.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ccng/bun: stale operations: %w", err)
	}

	ops := make([]*operation.Operation, 0, len(models))
	for i := range models {
		op, convErr := fromOperationModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ccng/bun: stale convert: %w", convErr)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// PruneTerminalOperations removes terminal operations completed before
// the given time and returns how many were removed.
func (s *Store) PruneTerminalOperations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("ccng_operations").
		Where("state IN ('succeeded', 'failed', 'timed_out')").
		Where("completed_at IS NOT NULL").
		Where("completed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("ccng/bun: prune terminal operations: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountOperations returns the number of operations matching the options.
func (s *Store) CountOperations(ctx context.Context, opts operation.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("ccng_operations")

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ccng/bun: count operations: %w", err)
	}
	return int64(count), nil
}
