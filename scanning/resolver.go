package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"drumtrack/models"
)

// Resolver projects remaining work and owns the batch find-or-create
// rule: at most one batch per (purchase order, item), looked up before
// insert and reused rather than duplicated.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ListTransportTasks returns open purchase-order lines that still have
// drums to receive, in store order.
func (r *Resolver) ListTransportTasks(ctx context.Context) ([]TransportTask, error) {
	lines, err := r.store.ListOpenPOLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transport tasks: %w", err)
	}
	tasks := make([]TransportTask, 0, len(lines))
	for _, line := range lines {
		if line.RemainingQty() <= 0 {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks, nil
}

// ListProductionJobs returns schedulable jobs with drum quantities
// derived from input volume.
func (r *Resolver) ListProductionJobs(ctx context.Context) ([]ProductionJob, error) {
	jobs, err := r.store.ListSchedulableJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list production jobs: %w", err)
	}
	return jobs, nil
}

// FindTaskBatch looks up the batch already tied to a task, if any.
func (r *Resolver) FindTaskBatch(ctx context.Context, task TransportTask) (*models.Batch, error) {
	return r.store.FindBatch(ctx, task.PurchaseOrderID, task.ItemID)
}

// EnsureBatch resolves the batch for a task with an operator-entered
// code. It is idempotent under retry: an existing row is adopted (its
// code filled in if blank) and a row is inserted only when none exists.
func (r *Resolver) EnsureBatch(ctx context.Context, operatorID int64, task TransportTask, code string) (*models.Batch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("batch code is required")
	}
	batch := &models.Batch{
		Code:            code,
		ItemID:          task.ItemID,
		PurchaseOrderID: task.PurchaseOrderID,
		Kind:            BatchKindNew,
		Status:          BatchStatusActive,
	}
	if err := r.store.UpsertBatch(ctx, operatorID, batch); err != nil {
		return nil, fmt.Errorf("resolve batch: %w", err)
	}
	return batch, nil
}
