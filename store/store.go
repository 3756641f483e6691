package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"drumtrack/infrastructure/audit"
	"drumtrack/infrastructure/sqlite"
	"drumtrack/models"
	"drumtrack/scanning"
)

// SQL implements the scanning store gateway on the split read/write
// SQLite layer. Projections use raw SQL with derived counts; row CRUD
// goes through the bun query builder. Session and batch mutations write
// audit rows inside the same transaction.
type SQL struct {
	db    *sqlite.DB
	audit *audit.Service
}

var _ scanning.Store = (*SQL)(nil)

func New(db *sqlite.DB, auditSvc *audit.Service) *SQL {
	return &SQL{db: db, audit: auditSvc}
}

func (s *SQL) CreateSession(ctx context.Context, sess *models.ScanSession) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(sess).Exec(ctx); err != nil {
			return err
		}
		if s.audit != nil {
			return s.audit.Write(ctx, tx, sess.OperatorID, "session.start", "scan_sessions", sess.ID, nil, sess)
		}
		return nil
	})
}

func (s *SQL) CompleteSession(ctx context.Context, sessionID string, operatorID int64, endedAt time.Time) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var sess models.ScanSession
		err := tx.NewSelect().Model(&sess).Where("id = ?", sessionID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %s not found", sessionID)
		}
		if err != nil {
			return err
		}
		if sess.Status != string(scanning.SessionInProgress) {
			return scanning.ErrAlreadyCompleted
		}

		before := sess
		sess.Status = string(scanning.SessionCompleted)
		sess.EndedAt = &endedAt
		if _, err := tx.NewUpdate().Model(&sess).Column("status", "ended_at").WherePK().Exec(ctx); err != nil {
			return err
		}
		if s.audit != nil {
			return s.audit.Write(ctx, tx, operatorID, "session.complete", "scan_sessions", sess.ID, before, sess)
		}
		return nil
	})
}

func (s *SQL) FindOpenSession(ctx context.Context, deviceID string, operatorID int64) (*models.ScanSession, error) {
	var rows []models.ScanSession
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&rows).
			Where("device_id = ?", deviceID).
			Where("operator_id = ?", operatorID).
			Where("status = ?", string(scanning.SessionInProgress)).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, scanning.ErrAmbiguousSession
	}
}

func (s *SQL) ListSessionScans(ctx context.Context, sessionID string) ([]models.ScanLog, error) {
	logs := make([]models.ScanLog, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&logs).
			Where("session_id = ?", sessionID).
			OrderExpr("id ASC").
			Scan(ctx)
	})
	return logs, err
}

type poLineRow struct {
	ID              int64  `bun:"id"`
	PurchaseOrderID int64  `bun:"purchase_order_id"`
	ItemID          int64  `bun:"item_id"`
	PONumber        string `bun:"po_number"`
	Supplier        string `bun:"supplier"`
	ItemName        string `bun:"item_name"`
	OrderedQty      int64  `bun:"ordered_qty"`
	ReceivedQty     int64  `bun:"received_qty"`
}

func (r poLineRow) task() scanning.TransportTask {
	return scanning.TransportTask{
		LineID:          r.ID,
		PurchaseOrderID: r.PurchaseOrderID,
		ItemID:          r.ItemID,
		PONumber:        r.PONumber,
		Supplier:        r.Supplier,
		ItemName:        r.ItemName,
		OrderedQty:      r.OrderedQty,
		ReceivedQty:     r.ReceivedQty,
	}
}

func (s *SQL) ListOpenPOLines(ctx context.Context) ([]scanning.TransportTask, error) {
	var rows []poLineRow
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT l.id, l.purchase_order_id, l.item_id, l.po_number, l.supplier, l.item_name, l.ordered_qty,
       (SELECT COUNT(*) FROM inventory_drums d WHERE d.po_line_id = l.id AND d.is_received = 1) AS received_qty
FROM purchase_order_lines l
ORDER BY l.po_number ASC, l.id ASC`).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	tasks := make([]scanning.TransportTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.task())
	}
	return tasks, nil
}

func (s *SQL) GetPOLine(ctx context.Context, lineID int64) (*scanning.TransportTask, error) {
	var row poLineRow
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT l.id, l.purchase_order_id, l.item_id, l.po_number, l.supplier, l.item_name, l.ordered_qty,
       (SELECT COUNT(*) FROM inventory_drums d WHERE d.po_line_id = l.id AND d.is_received = 1) AS received_qty
FROM purchase_order_lines l
WHERE l.id = ?`, lineID).Scan(ctx, &row)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task := row.task()
	return &task, nil
}

type jobRow struct {
	ID            int64     `bun:"id"`
	ItemName      string    `bun:"item_name"`
	Status        string    `bun:"status"`
	PlannedStart  time.Time `bun:"planned_start"`
	Priority      int64     `bun:"priority"`
	InputBatchID  int64     `bun:"input_batch_id"`
	InputVolume   int64     `bun:"input_volume"`
	AssignedDrums int64     `bun:"assigned_drums"`
}

func (r jobRow) job() scanning.ProductionJob {
	return scanning.ProductionJob{
		JobID:         r.ID,
		ItemName:      r.ItemName,
		Status:        r.Status,
		PlannedStart:  r.PlannedStart,
		Priority:      r.Priority,
		InputBatchID:  r.InputBatchID,
		InputVolume:   r.InputVolume,
		AssignedDrums: r.AssignedDrums,
	}
}

func (s *SQL) ListSchedulableJobs(ctx context.Context) ([]scanning.ProductionJob, error) {
	var rows []jobRow
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT j.id, j.item_name, j.status, j.planned_start, j.priority, j.input_batch_id, j.input_volume,
       (SELECT COUNT(*) FROM operation_drums od
        JOIN job_operations o ON o.id = od.operation_id
        WHERE o.job_id = j.id) AS assigned_drums
FROM production_jobs j
WHERE j.status IN ('scheduled', 'active')
ORDER BY j.priority ASC, j.planned_start ASC, j.id ASC`).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	jobs := make([]scanning.ProductionJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.job())
	}
	return jobs, nil
}

func (s *SQL) GetJob(ctx context.Context, jobID int64) (*scanning.ProductionJob, error) {
	var row jobRow
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT j.id, j.item_name, j.status, j.planned_start, j.priority, j.input_batch_id, j.input_volume,
       (SELECT COUNT(*) FROM operation_drums od
        JOIN job_operations o ON o.id = od.operation_id
        WHERE o.job_id = j.id) AS assigned_drums
FROM production_jobs j
WHERE j.id = ?`, jobID).Scan(ctx, &row)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job := row.job()
	return &job, nil
}

func (s *SQL) FindBatch(ctx context.Context, purchaseOrderID, itemID int64) (*models.Batch, error) {
	var batch models.Batch
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&batch).
			Where("purchase_order_id = ?", purchaseOrderID).
			Where("item_id = ?", itemID).
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpsertBatch adopts the existing row for (purchase order, item) when
// one exists, filling its code if blank, and inserts otherwise. The
// re-check runs inside the write transaction so retries never create a
// second row.
func (s *SQL) UpsertBatch(ctx context.Context, operatorID int64, batch *models.Batch) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var existing models.Batch
		err := tx.NewSelect().
			Model(&existing).
			Where("purchase_order_id = ?", batch.PurchaseOrderID).
			Where("item_id = ?", batch.ItemID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err == nil {
			if strings.TrimSpace(existing.Code) == "" && strings.TrimSpace(batch.Code) != "" {
				before := existing
				existing.Code = strings.TrimSpace(batch.Code)
				existing.UpdatedAt = time.Now()
				if _, err := tx.NewUpdate().Model(&existing).Column("code", "updated_at").WherePK().Exec(ctx); err != nil {
					return err
				}
				if s.audit != nil {
					if err := s.audit.Write(ctx, tx, operatorID, "batch.code", "batches", fmt.Sprintf("%d", existing.ID), before, existing); err != nil {
						return err
					}
				}
			}
			*batch = existing
			return nil
		}

		if _, err := tx.NewInsert().Model(batch).Exec(ctx); err != nil {
			return err
		}
		if s.audit != nil {
			return s.audit.Write(ctx, tx, operatorID, "batch.create", "batches", fmt.Sprintf("%d", batch.ID), nil, batch)
		}
		return nil
	})
}

func (s *SQL) FindInventoryDrum(ctx context.Context, serial string, lineID int64) (*models.InventoryDrum, error) {
	var drum models.InventoryDrum
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&drum).
			Where("serial = ?", serial).
			Where("po_line_id = ?", lineID).
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &drum, nil
}

func (s *SQL) MarkDrumReceived(ctx context.Context, drumID int64, at time.Time) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.InventoryDrum)(nil)).
			Set("is_received = ?", true).
			Set("received_at = ?", at).
			Where("id = ?", drumID).
			Exec(ctx)
		return err
	})
}

func (s *SQL) FindStockDrum(ctx context.Context, serial string) (*models.StockDrum, error) {
	var drum models.StockDrum
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&drum).
			Where("serial = ?", serial).
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &drum, nil
}

func (s *SQL) UpdateStockDrumStatus(ctx context.Context, drumID int64, status scanning.DrumStatus) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.StockDrum)(nil)).
			Set("status = ?", string(status)).
			Set("updated_at = CURRENT_TIMESTAMP").
			Where("id = ?", drumID).
			Exec(ctx)
		return err
	})
}

func (s *SQL) FindNextOperation(ctx context.Context, jobID int64) (*models.JobOperation, error) {
	var operation models.JobOperation
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&operation).
			Where("job_id = ?", jobID).
			Where("status IN (?)", bun.In([]string{scanning.OperationPending, scanning.OperationActive})).
			OrderExpr("created_at ASC, id ASC").
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &operation, nil
}

func (s *SQL) AssignDrumToOperation(ctx context.Context, assignment *models.OperationDrum) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(assignment).Exec(ctx)
		return err
	})
}

func (s *SQL) InsertScanLog(ctx context.Context, entry *models.ScanLog) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
}

// ReconcileDrumStatuses re-derives stock-drum status from the
// operation-drum assignment rows, the system of record. A drum left
// in_stock by a crash between the assignment insert and the status
// update is moved to pre_production. Returns the number repaired.
func (s *SQL) ReconcileDrumStatuses(ctx context.Context) (int64, error) {
	var repaired int64
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewRaw(`
UPDATE stock_drums
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE status = ?
  AND id IN (SELECT drum_id FROM operation_drums)`,
			string(scanning.DrumPreProduction), string(scanning.DrumInStock)).Exec(ctx)
		if err != nil {
			return err
		}
		repaired, err = res.RowsAffected()
		return err
	})
	return repaired, err
}
