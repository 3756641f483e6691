package scanning

import (
	"errors"
	"time"
)

// SessionKind selects the per-scan pipeline for a session.
type SessionKind string

const (
	KindFreeScan       SessionKind = "free_scan"
	KindTransportTask  SessionKind = "task"
	KindProductionTask SessionKind = "production_task"
)

func (k SessionKind) Valid() bool {
	switch k {
	case KindFreeScan, KindTransportTask, KindProductionTask:
		return true
	}
	return false
}

// SessionStatus is the durable status of a session row.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// State is the controller's local state machine position.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateResyncing         State = "resyncing"
	StateNoSession         State = "no_session"
	StateSelectingTask     State = "selecting_task"
	StateAwaitingBatchCode State = "awaiting_batch_code"
	StateScanning          State = "scanning"
)

// ScanStatus is the outcome of one barcode event.
type ScanStatus string

const (
	ScanSuccess ScanStatus = "success"
	ScanError   ScanStatus = "error"
)

// ScanAction is the kind of mutation a scan attempted.
type ScanAction string

const (
	ActionFreeScan    ScanAction = "free_scan"
	ActionReceiveDrum ScanAction = "receive_drum"
	ActionAssignDrum  ScanAction = "assign_drum"
)

// DrumStatus is the stock-domain drum lifecycle status.
type DrumStatus string

const (
	DrumInStock       DrumStatus = "in_stock"
	DrumPreProduction DrumStatus = "pre_production"
	DrumConsumed      DrumStatus = "consumed"
)

// Batch kind and status values written by the resolver.
const (
	BatchKindNew      = "new"
	BatchStatusActive = "active"
)

// Operation statuses a drum may still be assigned to.
const (
	OperationPending = "pending"
	OperationActive  = "active"
)

// DrumVolume is the nominal volume of one drum. Jobs measure input in
// volume units and consume it drum by drum.
const DrumVolume = 200

var (
	ErrNoActiveSession  = errors.New("no active session")
	ErrNotAuthenticated = errors.New("authentication error")
	ErrSessionActive    = errors.New("a session is already in progress")
	ErrNoTaskSelected   = errors.New("no task selected")
	ErrNoJobSelected    = errors.New("no production job selected")
	ErrNoBatchCode      = errors.New("batch code not submitted")
	ErrTaskNotFound     = errors.New("transport task not found")
	ErrJobNotFound      = errors.New("production job not found")

	// ErrAlreadyCompleted is returned by Store.CompleteSession when the
	// session row was already completed, e.g. ended from another device.
	ErrAlreadyCompleted = errors.New("session already completed")

	// ErrAmbiguousSession is returned by Store.FindOpenSession when more
	// than one in_progress row matches the (device, operator) pair.
	ErrAmbiguousSession = errors.New("more than one session in progress")
)

// TransportTask is an open purchase-order line with drums still to be
// received. ReceivedQty is derived remotely and patched locally after
// each successful scan.
type TransportTask struct {
	LineID          int64
	PurchaseOrderID int64
	ItemID          int64
	PONumber        string
	Supplier        string
	ItemName        string
	OrderedQty      int64
	ReceivedQty     int64
}

func (t TransportTask) RemainingQty() int64 {
	return t.OrderedQty - t.ReceivedQty
}

// ProductionJob is a schedulable job consuming drums from its input
// batch. Quantities are derived: one drum per DrumVolume of input.
type ProductionJob struct {
	JobID         int64
	ItemName      string
	Status        string
	PlannedStart  time.Time
	Priority      int64
	InputBatchID  int64
	InputVolume   int64
	AssignedDrums int64
}

func (j ProductionJob) TotalDrums() int64 {
	return (j.InputVolume + DrumVolume - 1) / DrumVolume
}

func (j ProductionJob) RemainingDrums() int64 {
	remaining := j.TotalDrums() - j.AssignedDrums
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ScanResult is what the UI shows for the last barcode event.
type ScanResult struct {
	Barcode     string
	Status      ScanStatus
	Action      ScanAction
	Message     string
	ItemName    string
	DrumID      int64
	OperationID int64
}

func (r ScanResult) OK() bool {
	return r.Status == ScanSuccess
}

// SessionReport summarizes a session from locally accumulated scan
// history. It can be produced even when the completed-write fails.
type SessionReport struct {
	SessionID    string
	Name         string
	Kind         SessionKind
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	ScanCount    int
	Barcodes     []string
	AlreadyEnded bool
}

// Snapshot is a consistent read of the controller state for UI code.
type Snapshot struct {
	State       State
	Kind        SessionKind
	SessionID   string
	SessionName string
	Location    string
	BatchID     int64
	Task        *TransportTask
	Job         *ProductionJob
	ScanCount   int
	LastScan    *ScanResult
}
