/*
store.go - Persistence interfaces for the payroll engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  calculators and the orchestrator only ever see these interfaces; tests run
  against the in-memory implementation in payroll/store, production against
  store/sqlite.

KEY INTERFACES:
  Store:   all reads and writes the engine needs
  TxStore: Store plus WithTx for the atomic recalculation cascades

OWNERSHIP:
  The eight computed fields on a line are written exclusively through
  UpdateLineFigures / UpdateLineFiguresBulk / ResetIntegral /
  SetQualifyingIntegral. CreateLine and UpdateLine persist input fields only.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - payroll/store/memory.go: in-memory for testing
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence for the engine.
type Store interface {
	// --- Workers ---

	CreateWorker(ctx context.Context, w *Worker) error
	UpdateWorker(ctx context.Context, w *Worker) error
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)
	GetWorkerByEmployeeRef(ctx context.Context, ref int64) (*Worker, error)
	GetWorkerByBadge(ctx context.Context, badge string) (*Worker, error)
	ListWorkers(ctx context.Context, includeInactive bool) ([]Worker, error)

	// ListWorkersByContractRef returns every worker referencing the upstream
	// contract id. Inside WithTx the returned rows are held for update so two
	// concurrent contract events cannot both read stale state. More than one
	// match is legal and handled defensively by the sync layer.
	ListWorkersByContractRef(ctx context.Context, ref int64) ([]Worker, error)

	// --- Master data ---

	CreateLaborType(ctx context.Context, lt *LaborType) error
	ListLaborTypes(ctx context.Context) ([]LaborType, error)
	CreateActivity(ctx context.Context, a *Activity) error
	GetActivity(ctx context.Context, id ActivityID) (*Activity, error)
	GetActivityByName(ctx context.Context, name string) (*Activity, error)
	ListActivities(ctx context.Context) ([]Activity, error)
	CreateFarm(ctx context.Context, f *Farm) error
	GetFarm(ctx context.Context, id FarmID) (*Farm, error)
	ListFarms(ctx context.Context) ([]Farm, error)
	CreateTariff(ctx context.Context, t *Tariff) error
	ListTariffs(ctx context.Context) ([]Tariff, error)

	// LookupTariff resolves the cost per unit for (activity, farm).
	// ok=false when no tariff exists; callers price the line at zero.
	LookupTariff(ctx context.Context, activityID ActivityID, farmID FarmID) (cost decimal.Decimal, ok bool, err error)

	// --- Settings (singleton) ---

	// GetSettings returns the singleton row, creating it with defaults on
	// first access.
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	// --- Batches ---

	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id BatchID) (*Batch, error)
	ListBatches(ctx context.Context) ([]Batch, error)
	SetBatchStatus(ctx context.Context, id BatchID, status BatchStatus, errMsg string) error

	// --- Lines ---

	CreateLine(ctx context.Context, l *Line) error
	UpdateLine(ctx context.Context, l *Line) error
	DeleteLine(ctx context.Context, id LineID) error
	GetLine(ctx context.Context, id LineID) (*Line, error)

	// InsertLines bulk-creates lines; the importer calls it in fixed-size
	// chunks with ISO week/year already derived.
	InsertLines(ctx context.Context, lines []Line) error

	ListBatchLines(ctx context.Context, batchID BatchID) ([]Line, error)
	ListWorkerBatchLines(ctx context.Context, workerID WorkerID, batchID BatchID) ([]Line, error)
	ListDayLines(ctx context.Context, workerID WorkerID, batchID BatchID, date time.Time) ([]Line, error)
	ListBatchWorkerIDs(ctx context.Context, batchID BatchID) ([]WorkerID, error)

	// CountWorkerDayLines counts a worker's lines on a date across all
	// batches, for the daily line limit check.
	CountWorkerDayLines(ctx context.Context, workerID WorkerID, date time.Time) (int, error)

	// CountQualifyingDays counts the distinct dates among the worker's lines
	// in the batch whose activity's labor type calculates the integral bonus.
	CountQualifyingDays(ctx context.Context, workerID WorkerID, batchID BatchID) (int, error)

	// --- Computed-field writes (engine only) ---

	UpdateLineFigures(ctx context.Context, id LineID, f LineFigures) error
	UpdateLineFiguresBulk(ctx context.Context, lines []Line) error
	ResetIntegral(ctx context.Context, workerID WorkerID, batchID BatchID) error

	// SetQualifyingIntegral writes the identical per-line value to every line
	// of the worker in the batch whose activity qualifies for the integral.
	SetQualifyingIntegral(ctx context.Context, workerID WorkerID, batchID BatchID, value decimal.Decimal) error
}

// TxStore wraps Store with transaction support. The cascade for one mutation
// runs entirely inside one WithTx: all-or-nothing.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
