package scanning_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"drumtrack/infrastructure/audit"
	"drumtrack/infrastructure/sqlite"
	"drumtrack/scanning"
	"drumtrack/store"
)

const testDeviceID = "device-test-01"

func newTestStore(t *testing.T) (*store.SQL, *sqlite.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := sqlite.ApplyMigrations(context.Background(), db, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store.New(db, audit.NewService()), db
}

// newTestController returns a controller with operator 1 logged in, as
// if LoginHandler had run.
func newTestController(t *testing.T, st *store.SQL) *scanning.Controller {
	t.Helper()
	ctrl := scanning.NewController(st, testDeviceID, zerolog.Nop(), scanning.NewDebugLog(32))
	ctrl.SetOperator(1, "Test Operator")
	return ctrl
}

func mustExec(t *testing.T, db *sqlite.DB, query string, args ...any) {
	t.Helper()
	err := db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func queryInt(t *testing.T, db *sqlite.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	err := db.WithReadTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(query, args...).Scan(ctx, &n)
	})
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func queryString(t *testing.T, db *sqlite.DB, query string, args ...any) string {
	t.Helper()
	var s string
	err := db.WithReadTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(query, args...).Scan(ctx, &s)
	})
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return s
}

func seedOperator(t *testing.T, db *sqlite.DB) {
	t.Helper()
	mustExec(t, db, `INSERT INTO operators (id, code, name, pin_hash) VALUES (1, 'op1', 'Test Operator', 'hash')`)
}

func seedPOLine(t *testing.T, db *sqlite.DB, lineID, poID, itemID, orderedQty int64) {
	t.Helper()
	mustExec(t, db, `
INSERT INTO purchase_order_lines (id, purchase_order_id, item_id, po_number, supplier, item_name, ordered_qty)
VALUES (?, ?, ?, ?, 'Acme Chemicals', 'Solvent X', ?)`,
		lineID, poID, itemID, fmt.Sprintf("PO-%d", poID), orderedQty)
}

func seedInventoryDrum(t *testing.T, db *sqlite.DB, serial string, lineID int64, received bool) {
	t.Helper()
	mustExec(t, db, `INSERT INTO inventory_drums (serial, po_line_id, is_received) VALUES (?, ?, ?)`,
		serial, lineID, received)
}

func seedBatch(t *testing.T, db *sqlite.DB, batchID int64, code string, poID, itemID int64) {
	t.Helper()
	mustExec(t, db, `
INSERT INTO batches (id, code, item_id, purchase_order_id, kind, status)
VALUES (?, ?, ?, ?, 'new', 'active')`, batchID, code, itemID, poID)
}

func seedStockDrum(t *testing.T, db *sqlite.DB, drumID int64, serial string, batchID int64, status string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO stock_drums (id, serial, batch_id, status) VALUES (?, ?, ?, ?)`,
		drumID, serial, batchID, status)
}

func seedJob(t *testing.T, db *sqlite.DB, jobID, batchID, inputVolume int64) {
	t.Helper()
	mustExec(t, db, `
INSERT INTO production_jobs (id, item_name, status, planned_start, priority, input_batch_id, input_volume)
VALUES (?, 'Resin Y', 'scheduled', '2026-01-05 08:00:00', 0, ?, ?)`, jobID, batchID, inputVolume)
}

func seedOperation(t *testing.T, db *sqlite.DB, opID, jobID int64, name, status, createdAt string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO job_operations (id, job_id, name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		opID, jobID, name, status, createdAt)
}
