package scanning_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"drumtrack/scanning"
)

func TestResyncWithNoOpenSession(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)

	if err := ctrl.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if ctrl.State() != scanning.StateNoSession {
		t.Fatalf("expected no_session state, got %s", ctrl.State())
	}
	snap := ctrl.Snapshot()
	if snap.SessionID != "" || snap.Task != nil || snap.Job != nil {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestResyncRequiresOperator(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)
	ctrl.ClearOperator()

	if err := ctrl.Resync(context.Background()); !errors.Is(err, scanning.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestStartSessionBeforeResync(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)

	err := ctrl.StartSession(context.Background(), scanning.KindFreeScan, "Dock A")
	if err == nil || !strings.Contains(err.Error(), "resync") {
		t.Fatalf("expected resync precondition error, got %v", err)
	}
}

func TestFreeScanSessionLifecycle(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindFreeScan, "Dock A"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if ctrl.State() != scanning.StateScanning {
		t.Fatalf("expected scanning state, got %s", ctrl.State())
	}

	// Only one in_progress row may exist for this device and operator.
	if err := ctrl.StartSession(ctx, scanning.KindFreeScan, "Dock B"); !errors.Is(err, scanning.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	open := queryInt(t, db, `SELECT COUNT(*) FROM scan_sessions WHERE status = 'in_progress'`)
	if open != 1 {
		t.Fatalf("expected one open session row, got %d", open)
	}

	for _, barcode := range []string{"DRUM-001", "DRUM-002", "DRUM-001"} {
		res := ctrl.ProcessScan(ctx, barcode)
		if !res.OK() {
			t.Fatalf("free scan of %q failed: %s", barcode, res.Message)
		}
	}

	report, err := ctrl.EndSession(ctx)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	// Free scanning keeps duplicates.
	if report.ScanCount != 3 {
		t.Fatalf("expected 3 scans in report, got %d", report.ScanCount)
	}
	if report.Duration < 0 {
		t.Fatalf("negative duration: %v", report.Duration)
	}
	if ctrl.State() != scanning.StateNoSession {
		t.Fatalf("expected no_session after end, got %s", ctrl.State())
	}

	status := queryString(t, db, `SELECT status FROM scan_sessions WHERE id = ?`, report.SessionID)
	if status != "completed" {
		t.Fatalf("expected completed session row, got %q", status)
	}
	if n := queryInt(t, db, `SELECT COUNT(*) FROM scan_sessions WHERE id = ? AND ended_at IS NOT NULL`, report.SessionID); n != 1 {
		t.Fatalf("expected ended_at to be set")
	}

	if _, err := ctrl.EndSession(ctx); !errors.Is(err, scanning.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestTransportSessionAwaitsBatchCode(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	seedPOLine(t, db, 10, 1, 100, 5)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindTransportTask, "Dock A"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if ctrl.State() != scanning.StateSelectingTask {
		t.Fatalf("expected selecting_task, got %s", ctrl.State())
	}

	started, err := ctrl.SelectTransportTask(ctx, 10)
	if err != nil {
		t.Fatalf("select task: %v", err)
	}
	if started {
		t.Fatalf("no batch exists yet, session must not auto-start")
	}
	if ctrl.State() != scanning.StateAwaitingBatchCode {
		t.Fatalf("expected awaiting_batch_code, got %s", ctrl.State())
	}

	if err := ctrl.SubmitBatchCode(ctx, "  B-2026-01  "); err != nil {
		t.Fatalf("submit batch code: %v", err)
	}
	if ctrl.State() != scanning.StateScanning {
		t.Fatalf("expected scanning, got %s", ctrl.State())
	}

	snap := ctrl.Snapshot()
	if snap.Task == nil || snap.Task.LineID != 10 {
		t.Fatalf("expected task 10 in snapshot, got %+v", snap.Task)
	}
	code := queryString(t, db, `SELECT code FROM batches WHERE id = ?`, snap.BatchID)
	if code != "B-2026-01" {
		t.Fatalf("expected trimmed batch code, got %q", code)
	}
}

func TestTransportSessionAutoStartsWithExistingBatch(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	seedPOLine(t, db, 10, 1, 100, 5)
	seedBatch(t, db, 7, "B-EXISTING", 1, 100)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindTransportTask, "Dock A"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	started, err := ctrl.SelectTransportTask(ctx, 10)
	if err != nil {
		t.Fatalf("select task: %v", err)
	}
	if !started {
		t.Fatalf("expected auto-start with coded batch")
	}
	if ctrl.State() != scanning.StateScanning {
		t.Fatalf("expected scanning, got %s", ctrl.State())
	}
	snap := ctrl.Snapshot()
	if snap.BatchID != 7 {
		t.Fatalf("expected batch 7 adopted, got %d", snap.BatchID)
	}
	if n := queryInt(t, db, `SELECT auto_started FROM scan_sessions WHERE id = ?`, snap.SessionID); n != 1 {
		t.Fatalf("expected session row flagged auto_started")
	}
	if n := queryInt(t, db, `SELECT COUNT(*) FROM batches`); n != 1 {
		t.Fatalf("auto-start must not create a second batch, got %d rows", n)
	}
}

func TestSelectTransportTaskRejectsFinishedTask(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	seedPOLine(t, db, 10, 1, 100, 2)
	seedInventoryDrum(t, db, "D-1", 10, true)
	seedInventoryDrum(t, db, "D-2", 10, true)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindTransportTask, ""); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := ctrl.SelectTransportTask(ctx, 10); err == nil {
		t.Fatalf("expected rejection for fully received task")
	}
	if _, err := ctrl.SelectTransportTask(ctx, 99); !errors.Is(err, scanning.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestConfirmStartRequiresSelection(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindTransportTask, ""); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := ctrl.ConfirmStart(ctx); !errors.Is(err, scanning.ErrNoTaskSelected) {
		t.Fatalf("expected ErrNoTaskSelected, got %v", err)
	}
}

func TestProductionSessionLifecycle(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	seedBatch(t, db, 1, "B-1", 1, 100)
	seedJob(t, db, 5, 1, 500)
	seedOperation(t, db, 1, 5, "Mixing", "pending", "2026-01-05 08:00:00")
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindProductionTask, "Line 2"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := ctrl.ConfirmStart(ctx); !errors.Is(err, scanning.ErrNoJobSelected) {
		t.Fatalf("expected ErrNoJobSelected, got %v", err)
	}
	if err := ctrl.SelectProductionJob(ctx, 5); err != nil {
		t.Fatalf("select job: %v", err)
	}
	if err := ctrl.ConfirmStart(ctx); err != nil {
		t.Fatalf("confirm start: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Job == nil || snap.Job.JobID != 5 {
		t.Fatalf("expected job 5 in snapshot, got %+v", snap.Job)
	}
	// 500 volume units at 200 per drum rounds up to 3 drums.
	if snap.Job.TotalDrums() != 3 {
		t.Fatalf("expected 3 total drums, got %d", snap.Job.TotalDrums())
	}
	if n := queryInt(t, db, `SELECT COUNT(*) FROM scan_sessions WHERE job_id = 5 AND status = 'in_progress'`); n != 1 {
		t.Fatalf("expected one open session for job 5, got %d", n)
	}
}

func TestResyncRecoversTransportSession(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	seedPOLine(t, db, 10, 1, 100, 5)
	seedInventoryDrum(t, db, "D-1", 10, false)
	seedInventoryDrum(t, db, "D-2", 10, false)
	ctx := context.Background()

	first := newTestController(t, st)
	if err := first.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := first.StartSession(ctx, scanning.KindTransportTask, "Dock A"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := first.SelectTransportTask(ctx, 10); err != nil {
		t.Fatalf("select task: %v", err)
	}
	if err := first.SubmitBatchCode(ctx, "B-1"); err != nil {
		t.Fatalf("submit batch code: %v", err)
	}
	if res := first.ProcessScan(ctx, "D-1"); !res.OK() {
		t.Fatalf("scan failed: %s", res.Message)
	}
	sessionID := first.Snapshot().SessionID

	// A fresh process on the same device adopts the open session.
	second := newTestController(t, st)
	if err := second.Resync(ctx); err != nil {
		t.Fatalf("resync on second controller: %v", err)
	}
	if second.State() != scanning.StateScanning {
		t.Fatalf("expected recovered scanning state, got %s", second.State())
	}
	snap := second.Snapshot()
	if snap.SessionID != sessionID {
		t.Fatalf("expected session %s recovered, got %s", sessionID, snap.SessionID)
	}
	if snap.Task == nil || snap.Task.LineID != 10 {
		t.Fatalf("expected task 10 recovered, got %+v", snap.Task)
	}
	if snap.Task.ReceivedQty != 1 {
		t.Fatalf("expected derived received qty 1, got %d", snap.Task.ReceivedQty)
	}

	// Duplicate suppression survives the restart.
	if res := second.ProcessScan(ctx, "D-1"); res.OK() || res.Message != "already scanned" {
		t.Fatalf("expected duplicate rejection after resync, got %+v", res)
	}
	if res := second.ProcessScan(ctx, "D-2"); !res.OK() {
		t.Fatalf("scan of D-2 failed: %s", res.Message)
	}
}

func TestResyncAmbiguousSessions(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	mustExec(t, db, `
INSERT INTO scan_sessions (id, name, operator_id, device_id, kind, status, started_at)
VALUES ('s1', 'one', 1, ?, 'free_scan', 'in_progress', '2026-01-05 08:00:00'),
       ('s2', 'two', 1, ?, 'free_scan', 'in_progress', '2026-01-05 09:00:00')`,
		testDeviceID, testDeviceID)
	ctrl := newTestController(t, st)

	err := ctrl.Resync(context.Background())
	if !errors.Is(err, scanning.ErrAmbiguousSession) {
		t.Fatalf("expected ErrAmbiguousSession, got %v", err)
	}
	if !strings.Contains(err.Error(), "sync error") {
		t.Fatalf("expected sync error wrapping, got %v", err)
	}
	if ctrl.State() != scanning.StateNoSession {
		t.Fatalf("expected no_session after failed resync, got %s", ctrl.State())
	}
}

func TestEndSessionAlreadyCompletedRemotely(t *testing.T) {
	st, db := newTestStore(t)
	seedOperator(t, db)
	ctrl := newTestController(t, st)
	ctx := context.Background()

	if err := ctrl.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if err := ctrl.StartSession(ctx, scanning.KindFreeScan, ""); err != nil {
		t.Fatalf("start session: %v", err)
	}
	ctrl.ProcessScan(ctx, "DRUM-001")
	sessionID := ctrl.Snapshot().SessionID

	// Someone else completed the row, e.g. from a supervisor console.
	mustExec(t, db, `UPDATE scan_sessions SET status = 'completed', ended_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID)

	report, err := ctrl.EndSession(ctx)
	if err != nil {
		t.Fatalf("end session after remote completion: %v", err)
	}
	if !report.AlreadyEnded {
		t.Fatalf("expected AlreadyEnded flag")
	}
	if report.ScanCount != 1 {
		t.Fatalf("report must still come from local history, got %d scans", report.ScanCount)
	}
	if ctrl.State() != scanning.StateNoSession {
		t.Fatalf("expected local state cleared, got %s", ctrl.State())
	}
}
