package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Operator is a warehouse worker who logs in on a scanner device.
type Operator struct {
	bun.BaseModel `bun:"table:operators,alias:op"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Code      string    `bun:"code,unique,notnull"`
	Name      string    `bun:"name,notnull"`
	PinHash   string    `bun:"pin_hash,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ScanSession is one work session on a device. At most one row per
// (device_id, operator_id) may be in_progress at a time.
type ScanSession struct {
	bun.BaseModel `bun:"table:scan_sessions,alias:ss"`

	ID         string     `bun:"id,pk"`
	Name       string     `bun:"name,notnull"`
	OperatorID int64      `bun:"operator_id,notnull"`
	DeviceID   string     `bun:"device_id,notnull"`
	Kind       string     `bun:"kind,notnull"`
	Status     string     `bun:"status,notnull"`
	Location   string     `bun:"location"`
	StartedAt  time.Time  `bun:"started_at,notnull"`
	EndedAt    *time.Time `bun:"ended_at"`

	// Kind-specific linkage, nil where not applicable.
	TaskLineID      *int64 `bun:"task_line_id"`
	PurchaseOrderID *int64 `bun:"purchase_order_id"`
	BatchID         *int64 `bun:"batch_id"`
	JobID           *int64 `bun:"job_id"`
	AutoStarted     bool   `bun:"auto_started,notnull,default:false"`
}

// PurchaseOrderLine is one ordered item on a purchase order. Received
// quantity is derived from inventory_drums, never stored here.
type PurchaseOrderLine struct {
	bun.BaseModel `bun:"table:purchase_order_lines,alias:pol"`

	ID              int64     `bun:"id,pk,autoincrement"`
	PurchaseOrderID int64     `bun:"purchase_order_id,notnull"`
	ItemID          int64     `bun:"item_id,notnull"`
	PONumber        string    `bun:"po_number,notnull"`
	Supplier        string    `bun:"supplier,notnull"`
	ItemName        string    `bun:"item_name,notnull"`
	OrderedQty      int64     `bun:"ordered_qty,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// InventoryDrum is an expected drum on a purchase-order line.
type InventoryDrum struct {
	bun.BaseModel `bun:"table:inventory_drums,alias:invd"`

	ID         int64      `bun:"id,pk,autoincrement"`
	Serial     string     `bun:"serial,notnull"`
	POLineID   int64      `bun:"po_line_id,notnull"`
	IsReceived bool       `bun:"is_received,notnull,default:false"`
	ReceivedAt *time.Time `bun:"received_at"`
}

// Batch is the physical lot tied to a (purchase order, item) pair,
// created lazily when a transport task is first worked.
type Batch struct {
	bun.BaseModel `bun:"table:batches,alias:b"`

	ID              int64     `bun:"id,pk,autoincrement"`
	Code            string    `bun:"code"`
	ItemID          int64     `bun:"item_id,notnull"`
	PurchaseOrderID int64     `bun:"purchase_order_id,notnull"`
	Kind            string    `bun:"kind,notnull"`
	Status          string    `bun:"status,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// StockDrum is a drum in the stock domain, consumed by production jobs.
type StockDrum struct {
	bun.BaseModel `bun:"table:stock_drums,alias:sd"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Serial    string    `bun:"serial,unique,notnull"`
	BatchID   int64     `bun:"batch_id,notnull"`
	Status    string    `bun:"status,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ProductionJob is a schedulable unit of production consuming drums
// from its input batch.
type ProductionJob struct {
	bun.BaseModel `bun:"table:production_jobs,alias:pj"`

	ID           int64     `bun:"id,pk,autoincrement"`
	ItemName     string    `bun:"item_name,notnull"`
	Status       string    `bun:"status,notnull"`
	PlannedStart time.Time `bun:"planned_start,notnull"`
	Priority     int64     `bun:"priority,notnull,default:0"`
	InputBatchID int64     `bun:"input_batch_id,notnull"`
	InputVolume  int64     `bun:"input_volume,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// JobOperation is a step within a production job that drums are
// assigned to.
type JobOperation struct {
	bun.BaseModel `bun:"table:job_operations,alias:jo"`

	ID        int64     `bun:"id,pk,autoincrement"`
	JobID     int64     `bun:"job_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// OperationDrum records one drum assigned to a job operation. This
// table is the system of record for whether a production scan counted.
type OperationDrum struct {
	bun.BaseModel `bun:"table:operation_drums,alias:od"`

	ID                int64     `bun:"id,pk,autoincrement"`
	OperationID       int64     `bun:"operation_id,notnull"`
	DrumID            int64     `bun:"drum_id,notnull"`
	SessionID         string    `bun:"session_id"`
	TransferredVolume int64     `bun:"transferred_volume,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ScanLog is the append-only audit record of every barcode event,
// success or failure. Never updated or deleted.
type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs,alias:sl"`

	ID           int64     `bun:"id,pk,autoincrement"`
	SessionID    *string   `bun:"session_id"`
	Barcode      string    `bun:"barcode,notnull"`
	Status       string    `bun:"status,notnull"`
	Action       string    `bun:"action,notnull"`
	ErrorMessage string    `bun:"error_message"`
	OperatorID   *int64    `bun:"operator_id"`
	DeviceID     string    `bun:"device_id,notnull"`
	TaskLineID   *int64    `bun:"task_line_id"`
	BatchID      *int64    `bun:"batch_id"`
	JobID        *int64    `bun:"job_id"`
	OperationID  *int64    `bun:"operation_id"`
	DrumID       *int64    `bun:"drum_id"`
	ItemName     string    `bun:"item_name"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// AuditLog captures immutable change history for key operations.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         int64     `bun:"id,pk,autoincrement"`
	OperatorID int64     `bun:"operator_id,notnull"`
	Action     string    `bun:"action,notnull"`
	EntityType string    `bun:"entity_type,notnull"`
	EntityID   string    `bun:"entity_id,notnull"`
	BeforeJSON string    `bun:"before_json"`
	AfterJSON  string    `bun:"after_json"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
