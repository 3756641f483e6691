package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drumtrack/models"
)

// ProcessScan validates and records one decoded barcode. It is the hot
// path: every call produces exactly one scan log row, success or error,
// carrying whatever linkage fields were resolved before a failure.
// Calls are serialized by the controller mutex; use IsScanning to
// suppress input capture while one is in flight.
func (c *Controller) ProcessScan(ctx context.Context, barcode string) ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanInFlight.Store(true)
	defer c.scanInFlight.Store(false)

	barcode = strings.TrimSpace(barcode)
	res := ScanResult{Barcode: barcode, Status: ScanError}
	entry := &models.ScanLog{
		Barcode:  barcode,
		DeviceID: c.deviceID,
	}
	if c.operatorID != 0 {
		operatorID := c.operatorID
		entry.OperatorID = &operatorID
	}

	defer func() {
		entry.Status = string(res.Status)
		entry.Action = string(res.Action)
		entry.ItemName = res.ItemName
		if res.Status == ScanError {
			entry.ErrorMessage = res.Message
		}
		if res.DrumID != 0 {
			drumID := res.DrumID
			entry.DrumID = &drumID
		}
		if res.OperationID != 0 {
			operationID := res.OperationID
			entry.OperationID = &operationID
		}
		// The audit row must land even when the caller's context is
		// already done.
		if err := c.store.InsertScanLog(context.WithoutCancel(ctx), entry); err != nil {
			c.log.Error().Err(err).Str("barcode", barcode).Msg("scan log write failed")
		}
		c.lastScan = &res
		c.debug.Record("scan %q: %s %s", barcode, res.Status, res.Message)
	}()

	if c.session == nil || c.state != StateScanning {
		res.Message = "no active session"
		return res
	}
	sessionID := c.session.ID
	entry.SessionID = &sessionID

	if c.operatorID == 0 {
		res.Message = "authentication error"
		return res
	}

	switch SessionKind(c.session.Kind) {
	case KindFreeScan:
		c.freeScanLocked(&res)
	case KindTransportTask:
		c.transportScanLocked(ctx, &res, entry)
	case KindProductionTask:
		c.productionScanLocked(ctx, &res, entry)
	default:
		res.Message = fmt.Sprintf("unknown session kind %q", c.session.Kind)
	}
	return res
}

// freeScanLocked records the barcode with no further validation.
// Duplicates within a session are kept; free scanning is exploratory.
func (c *Controller) freeScanLocked(res *ScanResult) {
	res.Action = ActionFreeScan
	c.history = append(c.history, res.Barcode)
	res.Status = ScanSuccess
	res.Message = "recorded"
}

// transportScanLocked receives one drum against the linked transport
// task: duplicate check, lookup scoped to the task line, then the
// single mutating step. Task counters are patched only after the
// mutation succeeds.
func (c *Controller) transportScanLocked(ctx context.Context, res *ScanResult, entry *models.ScanLog) {
	res.Action = ActionReceiveDrum
	task := c.task
	lineID := task.LineID
	entry.TaskLineID = &lineID
	if c.batchID != 0 {
		batchID := c.batchID
		entry.BatchID = &batchID
	}

	if _, dup := c.received[res.Barcode]; dup {
		res.Message = "already scanned"
		return
	}

	drum, err := c.store.FindInventoryDrum(ctx, res.Barcode, task.LineID)
	if err != nil {
		res.Message = fmt.Sprintf("drum lookup failed: %v", err)
		return
	}
	if drum == nil {
		res.Message = "not part of current task"
		return
	}
	res.DrumID = drum.ID
	res.ItemName = task.ItemName

	if err := c.store.MarkDrumReceived(ctx, drum.ID, time.Now()); err != nil {
		// Duplicate set untouched so the operator can retry the drum.
		res.Message = fmt.Sprintf("receive failed: %v", err)
		return
	}

	c.received[res.Barcode] = struct{}{}
	c.history = append(c.history, res.Barcode)
	task.ReceivedQty++
	res.Status = ScanSuccess
	res.Message = fmt.Sprintf("received %s, %d remaining", task.ItemName, task.RemainingQty())
}

// productionScanLocked assigns one stock drum to the linked job's
// earliest open operation and moves the drum to its pre-production
// status. The assignment row is the system of record; a failed status
// update is repaired later by reconciliation, never by trusting the
// drum's own status field.
func (c *Controller) productionScanLocked(ctx context.Context, res *ScanResult, entry *models.ScanLog) {
	res.Action = ActionAssignDrum
	job := c.job
	jobID := job.JobID
	entry.JobID = &jobID

	if _, dup := c.assigned[res.Barcode]; dup {
		res.Message = "already assigned"
		return
	}

	drum, err := c.store.FindStockDrum(ctx, res.Barcode)
	if err != nil {
		res.Message = fmt.Sprintf("drum lookup failed: %v", err)
		return
	}
	if drum == nil {
		res.Message = "drum not found"
		return
	}
	res.DrumID = drum.ID
	batchID := drum.BatchID
	entry.BatchID = &batchID

	if DrumStatus(drum.Status) != DrumInStock {
		res.Message = "drum not in stock"
		return
	}
	if drum.BatchID != job.InputBatchID {
		res.Message = "wrong batch"
		return
	}

	operation, err := c.store.FindNextOperation(ctx, job.JobID)
	if err != nil {
		res.Message = fmt.Sprintf("operation lookup failed: %v", err)
		return
	}
	if operation == nil {
		res.Message = "no suitable operation"
		return
	}
	res.OperationID = operation.ID

	assignment := &models.OperationDrum{
		OperationID:       operation.ID,
		DrumID:            drum.ID,
		SessionID:         c.session.ID,
		TransferredVolume: DrumVolume,
	}
	if err := c.store.AssignDrumToOperation(ctx, assignment); err != nil {
		res.Message = fmt.Sprintf("assign failed: %v", err)
		return
	}
	if err := c.store.UpdateStockDrumStatus(ctx, drum.ID, DrumPreProduction); err != nil {
		// The scan counted: the assignment row exists. Leave the drum
		// for ReconcileDrumStatuses and report success.
		c.log.Warn().
			Err(err).
			Int64("drum_id", drum.ID).
			Msg("drum status update failed, pending reconciliation")
	}

	c.assigned[res.Barcode] = struct{}{}
	c.history = append(c.history, res.Barcode)
	job.AssignedDrums++
	res.ItemName = job.ItemName
	res.Status = ScanSuccess
	res.Message = fmt.Sprintf("assigned to %s, %d drums remaining", operation.Name, job.RemainingDrums())
}
