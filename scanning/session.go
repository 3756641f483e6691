package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drumtrack/models"
)

// Controller is the single authority for session state transitions and
// the session context handed to UI code. All in-memory state lives
// behind one mutex; callers see consistent state between operations and
// scan submissions are serialized (no two ProcessScan calls overlap).
type Controller struct {
	mu       sync.Mutex
	store    Store
	resolver *Resolver
	debug    *DebugLog
	log      zerolog.Logger
	deviceID string

	operatorID   int64
	operatorName string

	state    State
	kind     SessionKind
	session  *models.ScanSession
	task     *TransportTask
	job      *ProductionJob
	batchID  int64
	location string
	auto     bool

	history  []string
	received map[string]struct{}
	assigned map[string]struct{}
	lastScan *ScanResult

	scanInFlight atomic.Bool
}

func NewController(store Store, deviceID string, logger zerolog.Logger, debug *DebugLog) *Controller {
	if debug == nil {
		debug = NewDebugLog(0)
	}
	return &Controller{
		store:    store,
		resolver: NewResolver(store),
		debug:    debug,
		log:      logger,
		deviceID: deviceID,
		state:    StateUninitialized,
	}
}

// SetOperator records the authenticated operator driving this device.
func (c *Controller) SetOperator(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operatorID = id
	c.operatorName = name
	c.debug.Record("operator set: %d %s", id, name)
}

// ClearOperator drops the operator identity, e.g. on logout. Session
// state is untouched; an open session is recovered by the next resync.
func (c *Controller) ClearOperator() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operatorID = 0
	c.operatorName = ""
	c.debug.Record("operator cleared")
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsScanning reports whether a scan call is currently in flight, so the
// caller can suppress input capture until it completes.
func (c *Controller) IsScanning() bool {
	return c.scanInFlight.Load()
}

func (c *Controller) Debug() *DebugLog {
	return c.debug
}

// Snapshot returns a copy of the current state for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:     c.state,
		Kind:      c.kind,
		Location:  c.location,
		BatchID:   c.batchID,
		ScanCount: len(c.history),
	}
	if c.session != nil {
		snap.SessionID = c.session.ID
		snap.SessionName = c.session.Name
	}
	if c.task != nil {
		task := *c.task
		snap.Task = &task
	}
	if c.job != nil {
		job := *c.job
		snap.Job = &job
	}
	if c.lastScan != nil {
		last := *c.lastScan
		snap.LastScan = &last
	}
	return snap
}

// Resync recovers a session left in_progress by a prior process
// instance on this device. It must complete before any scan is
// accepted. Zero rows means no session; more than one row is an
// inconsistency surfaced as a sync error, never silently resolved.
func (c *Controller) Resync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.operatorID == 0 {
		return ErrNotAuthenticated
	}
	c.setStateLocked(StateResyncing)

	sess, err := c.store.FindOpenSession(ctx, c.deviceID, c.operatorID)
	if err != nil {
		c.clearSessionLocked()
		c.setStateLocked(StateNoSession)
		return fmt.Errorf("sync error: %w", err)
	}
	if sess == nil {
		c.clearSessionLocked()
		c.setStateLocked(StateNoSession)
		return nil
	}
	if err := c.adoptSessionLocked(ctx, sess); err != nil {
		c.clearSessionLocked()
		c.setStateLocked(StateNoSession)
		return fmt.Errorf("sync error: %w", err)
	}
	c.setStateLocked(StateScanning)
	c.log.Info().
		Str("session_id", sess.ID).
		Str("kind", sess.Kind).
		Msg("resumed session")
	return nil
}

// adoptSessionLocked reconstructs local state from a recovered session
// row: kind, linked task/job, batch, location and scan history.
func (c *Controller) adoptSessionLocked(ctx context.Context, sess *models.ScanSession) error {
	kind := SessionKind(sess.Kind)
	if !kind.Valid() {
		return fmt.Errorf("session %s has unknown kind %q", sess.ID, sess.Kind)
	}

	c.clearSessionLocked()
	c.kind = kind
	c.location = sess.Location
	c.auto = sess.AutoStarted

	switch kind {
	case KindTransportTask:
		if sess.TaskLineID == nil {
			return fmt.Errorf("session %s is missing its task line", sess.ID)
		}
		task, err := c.store.GetPOLine(ctx, *sess.TaskLineID)
		if err != nil {
			return fmt.Errorf("fetch task %d: %w", *sess.TaskLineID, err)
		}
		if task == nil {
			return fmt.Errorf("task %d no longer exists", *sess.TaskLineID)
		}
		c.task = task
		if sess.BatchID != nil {
			c.batchID = *sess.BatchID
		}
	case KindProductionTask:
		if sess.JobID == nil {
			return fmt.Errorf("session %s is missing its job", sess.ID)
		}
		job, err := c.store.GetJob(ctx, *sess.JobID)
		if err != nil {
			return fmt.Errorf("fetch job %d: %w", *sess.JobID, err)
		}
		if job == nil {
			return fmt.Errorf("job %d no longer exists", *sess.JobID)
		}
		c.job = job
	}

	logs, err := c.store.ListSessionScans(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("fetch session scans: %w", err)
	}
	for _, entry := range logs {
		if ScanStatus(entry.Status) != ScanSuccess {
			continue
		}
		c.history = append(c.history, entry.Barcode)
		switch ScanAction(entry.Action) {
		case ActionReceiveDrum:
			c.received[entry.Barcode] = struct{}{}
		case ActionAssignDrum:
			c.assigned[entry.Barcode] = struct{}{}
		}
	}

	c.session = sess
	return nil
}

// StartSession begins session setup. Free scan sessions are created
// immediately; task and production sessions defer creation until a task
// or job is selected (and, for transport, a batch code resolved).
func (c *Controller) StartSession(ctx context.Context, kind SessionKind, location string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.operatorID == 0 {
		return ErrNotAuthenticated
	}
	if c.session != nil {
		return ErrSessionActive
	}
	switch c.state {
	case StateUninitialized, StateResyncing:
		return errors.New("resync has not completed")
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown session kind %q", kind)
	}

	c.task = nil
	c.job = nil
	c.batchID = 0
	c.auto = false
	c.kind = kind
	c.location = location

	if kind == KindFreeScan {
		return c.confirmStartLocked(ctx)
	}
	c.setStateLocked(StateSelectingTask)
	return nil
}

// TransportTasks lists selectable receiving work.
func (c *Controller) TransportTasks(ctx context.Context) ([]TransportTask, error) {
	return c.resolver.ListTransportTasks(ctx)
}

// ProductionJobs lists selectable production work.
func (c *Controller) ProductionJobs(ctx context.Context) ([]ProductionJob, error) {
	return c.resolver.ListProductionJobs(ctx)
}

// SelectTransportTask picks a receiving task. When a batch with a code
// already exists for the task the session starts automatically, so the
// operator is not asked to re-enter a code for rework already tracked;
// the returned flag reports whether that happened. Otherwise the
// controller waits for SubmitBatchCode.
func (c *Controller) SelectTransportTask(ctx context.Context, lineID int64) (started bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSelectingTask || c.kind != KindTransportTask {
		return false, fmt.Errorf("cannot select a transport task in state %s", c.state)
	}

	task, err := c.store.GetPOLine(ctx, lineID)
	if err != nil {
		return false, fmt.Errorf("fetch task %d: %w", lineID, err)
	}
	if task == nil {
		return false, ErrTaskNotFound
	}
	if task.RemainingQty() <= 0 {
		return false, fmt.Errorf("task %d has nothing left to receive", lineID)
	}
	c.task = task

	batch, err := c.resolver.FindTaskBatch(ctx, *task)
	if err != nil {
		c.task = nil
		return false, fmt.Errorf("look up batch: %w", err)
	}
	if batch != nil && strings.TrimSpace(batch.Code) != "" {
		c.batchID = batch.ID
		c.auto = true
		if err := c.confirmStartLocked(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	c.setStateLocked(StateAwaitingBatchCode)
	return false, nil
}

// SubmitBatchCode resolves the batch for the selected task and starts
// the session. Safe to retry: resolving twice with the same code never
// creates two batch rows.
func (c *Controller) SubmitBatchCode(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingBatchCode || c.task == nil {
		return ErrNoTaskSelected
	}

	batch, err := c.resolver.EnsureBatch(ctx, c.operatorID, *c.task, code)
	if err != nil {
		return err
	}
	c.batchID = batch.ID
	return c.confirmStartLocked(ctx)
}

// SelectProductionJob picks the job a production session will feed.
func (c *Controller) SelectProductionJob(ctx context.Context, jobID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSelectingTask || c.kind != KindProductionTask {
		return fmt.Errorf("cannot select a production job in state %s", c.state)
	}
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job %d: %w", jobID, err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	c.job = job
	return nil
}

// ConfirmStart validates kind-specific preconditions and creates the
// session row. On failure state is left unchanged and scanning is not
// marked active.
func (c *Controller) ConfirmStart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrSessionActive
	}
	return c.confirmStartLocked(ctx)
}

func (c *Controller) confirmStartLocked(ctx context.Context) error {
	if c.operatorID == 0 {
		return ErrNotAuthenticated
	}

	switch c.kind {
	case KindFreeScan:
	case KindTransportTask:
		if c.task == nil {
			return ErrNoTaskSelected
		}
		if c.batchID == 0 {
			return ErrNoBatchCode
		}
	case KindProductionTask:
		if c.job == nil {
			return ErrNoJobSelected
		}
	default:
		return fmt.Errorf("unknown session kind %q", c.kind)
	}

	now := time.Now()
	sess := &models.ScanSession{
		ID:          uuid.NewString(),
		Name:        c.sessionNameLocked(now),
		OperatorID:  c.operatorID,
		DeviceID:    c.deviceID,
		Kind:        string(c.kind),
		Status:      string(SessionInProgress),
		Location:    c.location,
		StartedAt:   now,
		AutoStarted: c.auto,
	}
	if c.task != nil {
		lineID := c.task.LineID
		poID := c.task.PurchaseOrderID
		sess.TaskLineID = &lineID
		sess.PurchaseOrderID = &poID
	}
	if c.batchID != 0 {
		batchID := c.batchID
		sess.BatchID = &batchID
	}
	if c.job != nil {
		jobID := c.job.JobID
		sess.JobID = &jobID
	}

	if err := c.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.session = sess
	c.history = nil
	c.received = make(map[string]struct{})
	c.assigned = make(map[string]struct{})
	c.lastScan = nil
	c.setStateLocked(StateScanning)
	c.log.Info().
		Str("session_id", sess.ID).
		Str("kind", sess.Kind).
		Str("name", sess.Name).
		Msg("session started")
	return nil
}

func (c *Controller) sessionNameLocked(now time.Time) string {
	switch c.kind {
	case KindTransportTask:
		if c.task != nil {
			return fmt.Sprintf("Receiving %s %s", c.task.PONumber, c.task.ItemName)
		}
	case KindProductionTask:
		if c.job != nil {
			return fmt.Sprintf("Production %s", c.job.ItemName)
		}
	}
	return fmt.Sprintf("Free scan %s", now.Format("2006-01-02 15:04"))
}

// EndSession completes the session remotely and produces the report
// from local scan history. When the remote row was already completed,
// local state still clears and the report flags it; on any other write
// failure the session stays active locally so it is never left
// appearing ended while the remote row is still open.
func (c *Controller) EndSession(ctx context.Context) (*SessionReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNoActiveSession
	}

	now := time.Now()
	report := c.buildReportLocked(now)

	err := c.store.CompleteSession(ctx, c.session.ID, c.operatorID, now)
	switch {
	case errors.Is(err, ErrAlreadyCompleted):
		report.AlreadyEnded = true
		c.log.Warn().Str("session_id", report.SessionID).Msg("session was already ended remotely")
	case err != nil:
		return report, fmt.Errorf("end session: %w", err)
	}

	c.clearSessionLocked()
	c.setStateLocked(StateNoSession)
	c.log.Info().
		Str("session_id", report.SessionID).
		Int("scans", report.ScanCount).
		Dur("duration", report.Duration).
		Msg("session ended")
	return report, nil
}

func (c *Controller) buildReportLocked(endedAt time.Time) *SessionReport {
	barcodes := make([]string, len(c.history))
	copy(barcodes, c.history)
	return &SessionReport{
		SessionID: c.session.ID,
		Name:      c.session.Name,
		Kind:      SessionKind(c.session.Kind),
		StartedAt: c.session.StartedAt,
		EndedAt:   endedAt,
		Duration:  endedAt.Sub(c.session.StartedAt),
		ScanCount: len(barcodes),
		Barcodes:  barcodes,
	}
}

func (c *Controller) clearSessionLocked() {
	c.session = nil
	c.task = nil
	c.job = nil
	c.batchID = 0
	c.kind = ""
	c.location = ""
	c.auto = false
	c.history = nil
	c.received = make(map[string]struct{})
	c.assigned = make(map[string]struct{})
	c.lastScan = nil
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.debug.Record("state %s -> %s", c.state, next)
	c.state = next
}
