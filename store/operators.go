package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"drumtrack/models"
)

// FindOperatorByCode looks up an operator account. Returns (nil, nil)
// when no operator has the code.
func (s *SQL) FindOperatorByCode(ctx context.Context, code string) (*models.Operator, error) {
	var operator models.Operator
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&operator).
			Where("code = ?", code).
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &operator, nil
}

// UpsertOperator creates or refreshes an operator account with an
// already-hashed PIN. Used by the seed command.
func (s *SQL) UpsertOperator(ctx context.Context, code, name, pinHash string) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var existing models.Operator
		err := tx.NewSelect().Model(&existing).Where("code = ?", code).Limit(1).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			existing.Name = name
			existing.PinHash = pinHash
			existing.UpdatedAt = time.Now()
			_, err = tx.NewUpdate().Model(&existing).Column("name", "pin_hash", "updated_at").WherePK().Exec(ctx)
			return err
		}
		operator := models.Operator{Code: code, Name: name, PinHash: pinHash}
		_, err = tx.NewInsert().Model(&operator).Exec(ctx)
		return err
	})
}

// BatchLabelInfo is the data printed on a batch label.
type BatchLabelInfo struct {
	Code     string `bun:"code"`
	PONumber string `bun:"po_number"`
	Supplier string `bun:"supplier"`
	ItemName string `bun:"item_name"`
}

// FetchBatchLabel loads label data for a batch, joined to the matching
// purchase-order line. Returns (nil, nil) when the batch is unknown.
func (s *SQL) FetchBatchLabel(ctx context.Context, batchID int64) (*BatchLabelInfo, error) {
	var info BatchLabelInfo
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(`
SELECT COALESCE(b.code, '') AS code, l.po_number, l.supplier, l.item_name
FROM batches b
JOIN purchase_order_lines l
  ON l.purchase_order_id = b.purchase_order_id AND l.item_id = b.item_id
WHERE b.id = ?
LIMIT 1`, batchID).Scan(ctx, &info)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
