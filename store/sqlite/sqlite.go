/*
Package sqlite provides the SQLite-backed implementation of the payroll
storage interfaces.

PURPOSE:
  Implements payroll.Store and payroll.TxStore over database/sql with the
  mattn/go-sqlite3 driver. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  workers:      master data synced from the upstream HR system
  labor_types:  bonus-eligibility flags per activity class
  activities:   units of field work, referenced by name in import files
  farms:        locations
  tariffs:      (activity, farm) -> cost per unit, unique per pair
  settings:     singleton engine tunables, lazily created
  batches:      pay-period containers with lifecycle status
  lines:        one (worker, activity, date, quantity) record per row

OWNERSHIP:
  The eight computed columns on lines are written only through
  UpdateLineFigures / UpdateLineFiguresBulk / ResetIntegral /
  SetQualifyingIntegral. CreateLine and UpdateLine never touch them.

CONSTRAINTS:
  idx_lines_unique (worker_id, activity_id, date) enforces the one-line-
  per-triple rule; a violation surfaces as payroll.ErrDuplicateLine.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time. A busy timeout
  covers writer contention between queue workers.

DECIMALS AND DATES:
  Monetary values are stored as TEXT via decimal.String() to avoid any
  float round-trip. Line dates are stored as "2006-01-02" so day grouping
  and the unique triple index work on the raw column; timestamps are
  RFC3339.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339
)

// querier is the common surface of *sql.DB and *sql.Tx. Every statement in
// this package runs against it, so the same code serves both the plain
// store and the transactional session handed out by WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session implements payroll.Store over a querier.
type session struct {
	q querier
}

// Store implements payroll.TxStore using SQLite.
type Store struct {
	session
	db *sql.DB
	// txMu serializes WithTx cascades; SQLite allows one writer at a time
	// and the busy timeout alone makes interleaved cascades easy to hit.
	txMu sync.Mutex
}

// New creates a SQLite store at the given path, migrating the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{session: session{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one database transaction. The cascade for a line
// mutation is all-or-nothing: any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&session{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Workers (synced from the upstream HR system)
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		employee_ref INTEGER NOT NULL UNIQUE,
		contract_ref INTEGER,
		name TEXT NOT NULL,
		mobile_phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		badge TEXT NOT NULL DEFAULT '',
		wage TEXT,
		start_date TEXT,
		end_date TEXT,
		contract_status TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_sync TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workers_contract_ref
		ON workers(contract_ref) WHERE contract_ref IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_workers_badge
		ON workers(badge);

	-- Labor types (bonus-eligibility flags)
	CREATE TABLE IF NOT EXISTS labor_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		calculates_integral BOOLEAN NOT NULL DEFAULT FALSE,
		calculates_thirteenth BOOLEAN NOT NULL DEFAULT FALSE,
		calculates_fourteenth BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Activities
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		labor_type_id TEXT NOT NULL REFERENCES labor_types(id),
		activity_group TEXT NOT NULL DEFAULT '',
		uom TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_activities_name
		ON activities(name);

	-- Farms
	CREATE TABLE IF NOT EXISTS farms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	-- Tariffs: (activity, farm) -> cost per unit
	CREATE TABLE IF NOT EXISTS tariffs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		activity_id TEXT NOT NULL REFERENCES activities(id),
		farm_id TEXT NOT NULL REFERENCES farms(id),
		cost_per_unit TEXT NOT NULL,
		UNIQUE(activity_id, farm_id)
	);

	-- Settings: exactly one row, lazily created
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		mobilization_pct TEXT NOT NULL,
		extra_hours_pct TEXT NOT NULL,
		extra_hour_multiplier TEXT NOT NULL,
		basic_monthly_wage TEXT NOT NULL,
		daily_line_limit INTEGER NOT NULL
	);

	-- Batches
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		farm_id TEXT NOT NULL REFERENCES farms(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		iso_year INTEGER NOT NULL,
		iso_week INTEGER NOT NULL,
		status TEXT NOT NULL,
		error_msg TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Lines: input fields plus the eight engine-owned computed columns
	CREATE TABLE IF NOT EXISTS lines (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		worker_id TEXT NOT NULL REFERENCES workers(id),
		activity_id TEXT NOT NULL REFERENCES activities(id),
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		iso_year INTEGER NOT NULL,
		iso_week INTEGER NOT NULL,
		total_cost TEXT NOT NULL DEFAULT '0',
		salary_surplus TEXT NOT NULL DEFAULT '0',
		mobilization_bonus TEXT NOT NULL DEFAULT '0',
		extra_hours_value TEXT NOT NULL DEFAULT '0',
		extra_hours_qty TEXT NOT NULL DEFAULT '0',
		thirteenth_bonus TEXT NOT NULL DEFAULT '0',
		fourteenth_bonus TEXT NOT NULL DEFAULT '0',
		integral_bonus TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one line per (worker, activity, date) triple
	CREATE UNIQUE INDEX IF NOT EXISTS idx_lines_unique
		ON lines(worker_id, activity_id, date);

	-- Batch-scoped listings (hot path during recalculation)
	CREATE INDEX IF NOT EXISTS idx_lines_batch
		ON lines(batch_id);
	CREATE INDEX IF NOT EXISTS idx_lines_worker_batch
		ON lines(worker_id, batch_id);
	CREATE INDEX IF NOT EXISTS idx_lines_worker_date
		ON lines(worker_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// WORKERS
// =============================================================================

const workerColumns = `id, employee_ref, contract_ref, name, mobile_phone, email, badge,
	wage, start_date, end_date, contract_status, active, last_sync, created_at, updated_at`

func (s *session) CreateWorker(ctx context.Context, w *payroll.Worker) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.LastSync.IsZero() {
		w.LastSync = now
	}

	query := `
		INSERT INTO workers (` + workerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		w.ID, w.EmployeeRef, w.ContractRef, w.Name, w.MobilePhone, w.Email, w.Badge,
		nullDecimal(w.Wage), nullDate(w.StartDate), nullDate(w.EndDate), w.ContractStatus,
		w.Active, w.LastSync.Format(tsLayout), w.CreatedAt.Format(tsLayout), w.UpdatedAt.Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	return nil
}

func (s *session) UpdateWorker(ctx context.Context, w *payroll.Worker) error {
	w.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workers
		SET employee_ref = ?, contract_ref = ?, name = ?, mobile_phone = ?, email = ?,
		    badge = ?, wage = ?, start_date = ?, end_date = ?, contract_status = ?,
		    active = ?, last_sync = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		w.EmployeeRef, w.ContractRef, w.Name, w.MobilePhone, w.Email,
		w.Badge, nullDecimal(w.Wage), nullDate(w.StartDate), nullDate(w.EndDate), w.ContractStatus,
		w.Active, w.LastSync.Format(tsLayout), w.UpdatedAt.Format(tsLayout),
		w.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update worker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrWorkerNotFound
	}
	return nil
}

func (s *session) GetWorker(ctx context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	return scanWorker(row)
}

func (s *session) GetWorkerByEmployeeRef(ctx context.Context, ref int64) (*payroll.Worker, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE employee_ref = ?`, ref)
	return scanWorker(row)
}

func (s *session) GetWorkerByBadge(ctx context.Context, badge string) (*payroll.Worker, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE badge = ?`, badge)
	return scanWorker(row)
}

func (s *session) ListWorkers(ctx context.Context, includeInactive bool) ([]payroll.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`

	return s.queryWorkers(ctx, query)
}

func (s *session) ListWorkersByContractRef(ctx context.Context, ref int64) ([]payroll.Worker, error) {
	// SQLite has no SELECT FOR UPDATE; inside WithTx the transaction's
	// write lock gives the same exclusion.
	return s.queryWorkers(ctx, `SELECT `+workerColumns+` FROM workers WHERE contract_ref = ? ORDER BY id ASC`, ref)
}

func (s *session) queryWorkers(ctx context.Context, query string, args ...any) ([]payroll.Worker, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []payroll.Worker
	for rows.Next() {
		w, err := scanWorkerRows(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkerFrom(sc rowScanner) (*payroll.Worker, error) {
	var (
		w                  payroll.Worker
		contractRef        sql.NullInt64
		wage               sql.NullString
		startDate, endDate sql.NullString
		lastSync, created  string
		updated            string
	)
	err := sc.Scan(&w.ID, &w.EmployeeRef, &contractRef, &w.Name, &w.MobilePhone, &w.Email, &w.Badge,
		&wage, &startDate, &endDate, &w.ContractStatus, &w.Active, &lastSync, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, payroll.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to scan worker: %w", err)
	}

	if contractRef.Valid {
		ref := contractRef.Int64
		w.ContractRef = &ref
	}
	if wage.Valid {
		d, err := decimal.NewFromString(wage.String)
		if err != nil {
			return nil, fmt.Errorf("invalid wage %q: %w", wage.String, err)
		}
		w.Wage = &d
	}
	if w.StartDate, err = parseNullDate(startDate); err != nil {
		return nil, err
	}
	if w.EndDate, err = parseNullDate(endDate); err != nil {
		return nil, err
	}
	if w.LastSync, err = time.Parse(tsLayout, lastSync); err != nil {
		return nil, fmt.Errorf("invalid last_sync: %w", err)
	}
	w.CreatedAt, _ = time.Parse(tsLayout, created)
	w.UpdatedAt, _ = time.Parse(tsLayout, updated)
	return &w, nil
}

func scanWorker(row *sql.Row) (*payroll.Worker, error)      { return scanWorkerFrom(row) }
func scanWorkerRows(rows *sql.Rows) (*payroll.Worker, error) { return scanWorkerFrom(rows) }

// =============================================================================
// MASTER DATA
// =============================================================================

func (s *session) CreateLaborType(ctx context.Context, lt *payroll.LaborType) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO labor_types (id, name, code, calculates_integral, calculates_thirteenth, calculates_fourteenth)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lt.ID, lt.Name, lt.Code, lt.CalculatesIntegral, lt.CalculatesThirteenth, lt.CalculatesFourteenth,
	)
	if err != nil {
		return fmt.Errorf("failed to create labor type: %w", err)
	}
	return nil
}

func (s *session) ListLaborTypes(ctx context.Context) ([]payroll.LaborType, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, code, calculates_integral, calculates_thirteenth, calculates_fourteenth
		FROM labor_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labor types: %w", err)
	}
	defer rows.Close()

	var out []payroll.LaborType
	for rows.Next() {
		var lt payroll.LaborType
		if err := rows.Scan(&lt.ID, &lt.Name, &lt.Code, &lt.CalculatesIntegral, &lt.CalculatesThirteenth, &lt.CalculatesFourteenth); err != nil {
			return nil, fmt.Errorf("failed to scan labor type: %w", err)
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func (s *session) CreateActivity(ctx context.Context, a *payroll.Activity) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO activities (id, name, labor_type_id, activity_group, uom)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.LaborTypeID, a.Group, a.Uom,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

func (s *session) GetActivity(ctx context.Context, id payroll.ActivityID) (*payroll.Activity, error) {
	return s.scanActivity(s.q.QueryRowContext(ctx,
		`SELECT id, name, labor_type_id, activity_group, uom FROM activities WHERE id = ?`, id))
}

func (s *session) GetActivityByName(ctx context.Context, name string) (*payroll.Activity, error) {
	return s.scanActivity(s.q.QueryRowContext(ctx,
		`SELECT id, name, labor_type_id, activity_group, uom FROM activities WHERE name = ?`, name))
}

func (s *session) scanActivity(row *sql.Row) (*payroll.Activity, error) {
	var a payroll.Activity
	err := row.Scan(&a.ID, &a.Name, &a.LaborTypeID, &a.Group, &a.Uom)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrActivityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	return &a, nil
}

func (s *session) ListActivities(ctx context.Context) ([]payroll.Activity, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, labor_type_id, activity_group, uom FROM activities ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []payroll.Activity
	for rows.Next() {
		var a payroll.Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.LaborTypeID, &a.Group, &a.Uom); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *session) CreateFarm(ctx context.Context, f *payroll.Farm) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO farms (id, name, code, description) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, f.Code, f.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create farm: %w", err)
	}
	return nil
}

func (s *session) GetFarm(ctx context.Context, id payroll.FarmID) (*payroll.Farm, error) {
	var f payroll.Farm
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, code, description FROM farms WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Code, &f.Description)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrFarmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan farm: %w", err)
	}
	return &f, nil
}

func (s *session) ListFarms(ctx context.Context) ([]payroll.Farm, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, code, description FROM farms ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query farms: %w", err)
	}
	defer rows.Close()

	var farms []payroll.Farm
	for rows.Next() {
		var f payroll.Farm
		if err := rows.Scan(&f.ID, &f.Name, &f.Code, &f.Description); err != nil {
			return nil, fmt.Errorf("failed to scan farm: %w", err)
		}
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

func (s *session) CreateTariff(ctx context.Context, t *payroll.Tariff) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tariffs (id, name, activity_id, farm_id, cost_per_unit)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.ActivityID, t.FarmID, t.CostPerUnit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create tariff: %w", err)
	}
	return nil
}

func (s *session) ListTariffs(ctx context.Context) ([]payroll.Tariff, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, activity_id, farm_id, cost_per_unit FROM tariffs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []payroll.Tariff
	for rows.Next() {
		var (
			t    payroll.Tariff
			cost string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.ActivityID, &t.FarmID, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		if t.CostPerUnit, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("invalid cost_per_unit %q: %w", cost, err)
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

func (s *session) LookupTariff(ctx context.Context, activityID payroll.ActivityID, farmID payroll.FarmID) (decimal.Decimal, bool, error) {
	var cost string
	err := s.q.QueryRowContext(ctx,
		`SELECT cost_per_unit FROM tariffs WHERE activity_id = ? AND farm_id = ?`,
		activityID, farmID).Scan(&cost)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to look up tariff: %w", err)
	}

	d, err := decimal.NewFromString(cost)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid cost_per_unit %q: %w", cost, err)
	}
	return d, true, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *session) GetSettings(ctx context.Context) (payroll.Settings, error) {
	var (
		set                                            payroll.Settings
		mobilization, extraPct, multiplier, basicWage string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT mobilization_pct, extra_hours_pct, extra_hour_multiplier, basic_monthly_wage, daily_line_limit
		FROM settings WHERE id = 1`).
		Scan(&mobilization, &extraPct, &multiplier, &basicWage, &set.DailyLineLimit)
	if err == sql.ErrNoRows {
		// Vivify the singleton with defaults on first access.
		set = payroll.DefaultSettings()
		if err := s.SaveSettings(ctx, set); err != nil {
			return payroll.Settings{}, err
		}
		return set, nil
	}
	if err != nil {
		return payroll.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	if set.MobilizationPct, err = decimal.NewFromString(mobilization); err != nil {
		return payroll.Settings{}, fmt.Errorf("invalid mobilization_pct: %w", err)
	}
	if set.ExtraHoursPct, err = decimal.NewFromString(extraPct); err != nil {
		return payroll.Settings{}, fmt.Errorf("invalid extra_hours_pct: %w", err)
	}
	if set.ExtraHourMultiplier, err = decimal.NewFromString(multiplier); err != nil {
		return payroll.Settings{}, fmt.Errorf("invalid extra_hour_multiplier: %w", err)
	}
	if set.BasicMonthlyWage, err = decimal.NewFromString(basicWage); err != nil {
		return payroll.Settings{}, fmt.Errorf("invalid basic_monthly_wage: %w", err)
	}
	return set, nil
}

func (s *session) SaveSettings(ctx context.Context, set payroll.Settings) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (id, mobilization_pct, extra_hours_pct, extra_hour_multiplier, basic_monthly_wage, daily_line_limit)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mobilization_pct = excluded.mobilization_pct,
			extra_hours_pct = excluded.extra_hours_pct,
			extra_hour_multiplier = excluded.extra_hour_multiplier,
			basic_monthly_wage = excluded.basic_monthly_wage,
			daily_line_limit = excluded.daily_line_limit`,
		set.MobilizationPct.String(), set.ExtraHoursPct.String(), set.ExtraHourMultiplier.String(),
		set.BasicMonthlyWage.String(), set.DailyLineLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (s *session) CreateBatch(ctx context.Context, b *payroll.Batch) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO batches (id, name, farm_id, start_date, end_date, iso_year, iso_week, status, error_msg, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.FarmID, b.StartDate.Format(dateLayout), b.EndDate.Format(dateLayout),
		b.ISOYear, b.ISOWeek, b.Status, b.ErrorMsg,
		b.CreatedAt.Format(tsLayout), b.UpdatedAt.Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (s *session) GetBatch(ctx context.Context, id payroll.BatchID) (*payroll.Batch, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, farm_id, start_date, end_date, iso_year, iso_week, status, error_msg, created_at, updated_at
		FROM batches WHERE id = ?`, id)
	return scanBatch(row)
}

func (s *session) ListBatches(ctx context.Context) ([]payroll.Batch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, farm_id, start_date, end_date, iso_year, iso_week, status, error_msg, created_at, updated_at
		FROM batches ORDER BY start_date DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []payroll.Batch
	for rows.Next() {
		b, err := scanBatchFrom(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (s *session) SetBatchStatus(ctx context.Context, id payroll.BatchID, status payroll.BatchStatus, errMsg string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE batches SET status = ?, error_msg = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC().Format(tsLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set batch status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrBatchNotFound
	}
	return nil
}

func scanBatchFrom(sc rowScanner) (*payroll.Batch, error) {
	var (
		b                         payroll.Batch
		start, end, created, upd string
	)
	err := sc.Scan(&b.ID, &b.Name, &b.FarmID, &start, &end, &b.ISOYear, &b.ISOWeek,
		&b.Status, &b.ErrorMsg, &created, &upd)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, payroll.ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	if b.StartDate, err = time.ParseInLocation(dateLayout, start, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid batch start_date: %w", err)
	}
	if b.EndDate, err = time.ParseInLocation(dateLayout, end, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid batch end_date: %w", err)
	}
	b.CreatedAt, _ = time.Parse(tsLayout, created)
	b.UpdatedAt, _ = time.Parse(tsLayout, upd)
	return &b, nil
}

func scanBatch(row *sql.Row) (*payroll.Batch, error) { return scanBatchFrom(row) }

// =============================================================================
// LINES
// =============================================================================

const lineColumns = `id, batch_id, worker_id, activity_id, date, quantity, iso_year, iso_week,
	total_cost, salary_surplus, mobilization_bonus, extra_hours_value, extra_hours_qty,
	thirteenth_bonus, fourteenth_bonus, integral_bonus, created_at, updated_at`

func (s *session) CreateLine(ctx context.Context, l *payroll.Line) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	query := `
		INSERT INTO lines (` + lineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query, lineArgs(l)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateLine
		}
		return fmt.Errorf("failed to create line: %w", err)
	}
	return nil
}

func (s *session) UpdateLine(ctx context.Context, l *payroll.Line) error {
	l.UpdatedAt = time.Now().UTC()

	res, err := s.q.ExecContext(ctx, `
		UPDATE lines
		SET batch_id = ?, worker_id = ?, activity_id = ?, date = ?, quantity = ?,
		    iso_year = ?, iso_week = ?, updated_at = ?
		WHERE id = ?`,
		l.BatchID, l.WorkerID, l.ActivityID, payroll.DateOnly(l.Date).Format(dateLayout), l.Quantity.String(),
		l.ISOYear, l.ISOWeek, l.UpdatedAt.Format(tsLayout),
		l.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateLine
		}
		return fmt.Errorf("failed to update line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrLineNotFound
	}
	return nil
}

func (s *session) DeleteLine(ctx context.Context, id payroll.LineID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM lines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrLineNotFound
	}
	return nil
}

func (s *session) GetLine(ctx context.Context, id payroll.LineID) (*payroll.Line, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM lines WHERE id = ?`, id)
	return scanLineFrom(row)
}

func (s *session) InsertLines(ctx context.Context, lines []payroll.Line) error {
	for i := range lines {
		if err := s.CreateLine(ctx, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) ListBatchLines(ctx context.Context, batchID payroll.BatchID) ([]payroll.Line, error) {
	return s.queryLines(ctx,
		`SELECT `+lineColumns+` FROM lines WHERE batch_id = ? ORDER BY date ASC, id ASC`, batchID)
}

func (s *session) ListWorkerBatchLines(ctx context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) ([]payroll.Line, error) {
	return s.queryLines(ctx,
		`SELECT `+lineColumns+` FROM lines WHERE worker_id = ? AND batch_id = ? ORDER BY date ASC, id ASC`,
		workerID, batchID)
}

func (s *session) ListDayLines(ctx context.Context, workerID payroll.WorkerID, batchID payroll.BatchID, date time.Time) ([]payroll.Line, error) {
	return s.queryLines(ctx,
		`SELECT `+lineColumns+` FROM lines WHERE worker_id = ? AND batch_id = ? AND date = ? ORDER BY id ASC`,
		workerID, batchID, payroll.DateOnly(date).Format(dateLayout))
}

func (s *session) ListBatchWorkerIDs(ctx context.Context, batchID payroll.BatchID) ([]payroll.WorkerID, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT worker_id FROM lines WHERE batch_id = ? ORDER BY worker_id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch workers: %w", err)
	}
	defer rows.Close()

	var ids []payroll.WorkerID
	for rows.Next() {
		var id payroll.WorkerID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan worker id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *session) CountWorkerDayLines(ctx context.Context, workerID payroll.WorkerID, date time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lines WHERE worker_id = ? AND date = ?`,
		workerID, payroll.DateOnly(date).Format(dateLayout)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count day lines: %w", err)
	}
	return n, nil
}

func (s *session) CountQualifyingDays(ctx context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT l.date)
		FROM lines l
		JOIN activities a ON a.id = l.activity_id
		JOIN labor_types lt ON lt.id = a.labor_type_id
		WHERE l.worker_id = ? AND l.batch_id = ? AND lt.calculates_integral = TRUE`,
		workerID, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count qualifying days: %w", err)
	}
	return n, nil
}

func (s *session) queryLines(ctx context.Context, query string, args ...any) ([]payroll.Line, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []payroll.Line
	for rows.Next() {
		l, err := scanLineFrom(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *l)
	}
	return lines, rows.Err()
}

func lineArgs(l *payroll.Line) []any {
	return []any{
		l.ID, l.BatchID, l.WorkerID, l.ActivityID,
		payroll.DateOnly(l.Date).Format(dateLayout), l.Quantity.String(),
		l.ISOYear, l.ISOWeek,
		l.Figures.TotalCost.String(), l.Figures.SalarySurplus.String(),
		l.Figures.MobilizationBonus.String(), l.Figures.ExtraHoursValue.String(),
		l.Figures.ExtraHoursQty.String(), l.Figures.ThirteenthBonus.String(),
		l.Figures.FourteenthBonus.String(), l.Figures.IntegralBonus.String(),
		l.CreatedAt.Format(tsLayout), l.UpdatedAt.Format(tsLayout),
	}
}

func scanLineFrom(sc rowScanner) (*payroll.Line, error) {
	var (
		l            payroll.Line
		date         string
		qty          string
		figs         [8]string
		created, upd string
	)
	err := sc.Scan(&l.ID, &l.BatchID, &l.WorkerID, &l.ActivityID, &date, &qty,
		&l.ISOYear, &l.ISOWeek,
		&figs[0], &figs[1], &figs[2], &figs[3], &figs[4], &figs[5], &figs[6], &figs[7],
		&created, &upd)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, payroll.ErrLineNotFound
		}
		return nil, fmt.Errorf("failed to scan line: %w", err)
	}

	if l.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid line date: %w", err)
	}
	if l.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", qty, err)
	}

	dst := []*decimal.Decimal{
		&l.Figures.TotalCost, &l.Figures.SalarySurplus, &l.Figures.MobilizationBonus,
		&l.Figures.ExtraHoursValue, &l.Figures.ExtraHoursQty, &l.Figures.ThirteenthBonus,
		&l.Figures.FourteenthBonus, &l.Figures.IntegralBonus,
	}
	for i, raw := range figs {
		if *dst[i], err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("invalid computed field %q: %w", raw, err)
		}
	}

	l.CreatedAt, _ = time.Parse(tsLayout, created)
	l.UpdatedAt, _ = time.Parse(tsLayout, upd)
	return &l, nil
}

// =============================================================================
// COMPUTED-FIELD WRITES (engine only)
// =============================================================================

func (s *session) UpdateLineFigures(ctx context.Context, id payroll.LineID, f payroll.LineFigures) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE lines
		SET total_cost = ?, salary_surplus = ?, mobilization_bonus = ?, extra_hours_value = ?,
		    extra_hours_qty = ?, thirteenth_bonus = ?, fourteenth_bonus = ?, integral_bonus = ?,
		    updated_at = ?
		WHERE id = ?`,
		f.TotalCost.String(), f.SalarySurplus.String(), f.MobilizationBonus.String(),
		f.ExtraHoursValue.String(), f.ExtraHoursQty.String(), f.ThirteenthBonus.String(),
		f.FourteenthBonus.String(), f.IntegralBonus.String(),
		time.Now().UTC().Format(tsLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update line figures: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrLineNotFound
	}
	return nil
}

func (s *session) UpdateLineFiguresBulk(ctx context.Context, lines []payroll.Line) error {
	for i := range lines {
		if err := s.UpdateLineFigures(ctx, lines[i].ID, lines[i].Figures); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) ResetIntegral(ctx context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE lines SET integral_bonus = '0', updated_at = ?
		WHERE worker_id = ? AND batch_id = ?`,
		time.Now().UTC().Format(tsLayout), workerID, batchID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset integral bonus: %w", err)
	}
	return nil
}

func (s *session) SetQualifyingIntegral(ctx context.Context, workerID payroll.WorkerID, batchID payroll.BatchID, value decimal.Decimal) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE lines SET integral_bonus = ?, updated_at = ?
		WHERE worker_id = ? AND batch_id = ?
		  AND activity_id IN (
			SELECT a.id FROM activities a
			JOIN labor_types lt ON lt.id = a.labor_type_id
			WHERE lt.calculates_integral = TRUE
		  )`,
		value.String(), time.Now().UTC().Format(tsLayout), workerID, batchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set integral bonus: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s.String, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s.String, err)
	}
	return &t, nil
}
