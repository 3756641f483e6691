package scanning

import (
	"context"
	"time"

	"drumtrack/models"
)

// Store is the remote store gateway. It owns all durable state for
// sessions, tasks, batches, drums and scan logs; the controller holds
// only a read-through, write-through cache on top of it.
//
// Lookup methods return (nil, nil) when no row matches.
type Store interface {
	// Sessions.
	CreateSession(ctx context.Context, sess *models.ScanSession) error
	// CompleteSession returns ErrAlreadyCompleted when the row is no
	// longer in_progress.
	CompleteSession(ctx context.Context, sessionID string, operatorID int64, endedAt time.Time) error
	// FindOpenSession returns ErrAmbiguousSession when more than one
	// in_progress row matches.
	FindOpenSession(ctx context.Context, deviceID string, operatorID int64) (*models.ScanSession, error)
	ListSessionScans(ctx context.Context, sessionID string) ([]models.ScanLog, error)

	// Remaining-work projections.
	ListOpenPOLines(ctx context.Context) ([]TransportTask, error)
	GetPOLine(ctx context.Context, lineID int64) (*TransportTask, error)
	ListSchedulableJobs(ctx context.Context) ([]ProductionJob, error)
	GetJob(ctx context.Context, jobID int64) (*ProductionJob, error)

	// Batches. UpsertBatch reuses an existing (purchase order, item)
	// row, filling its code if blank, and reports the adopted row back
	// through the argument.
	FindBatch(ctx context.Context, purchaseOrderID, itemID int64) (*models.Batch, error)
	UpsertBatch(ctx context.Context, operatorID int64, batch *models.Batch) error

	// Drums, both domains.
	FindInventoryDrum(ctx context.Context, serial string, lineID int64) (*models.InventoryDrum, error)
	MarkDrumReceived(ctx context.Context, drumID int64, at time.Time) error
	FindStockDrum(ctx context.Context, serial string) (*models.StockDrum, error)
	UpdateStockDrumStatus(ctx context.Context, drumID int64, status DrumStatus) error

	// Job operations.
	FindNextOperation(ctx context.Context, jobID int64) (*models.JobOperation, error)
	AssignDrumToOperation(ctx context.Context, assignment *models.OperationDrum) error

	// Append-only scan audit.
	InsertScanLog(ctx context.Context, entry *models.ScanLog) error
}
