/*
Package payroll contains the core compensation engine.

PURPOSE:
  This package holds the domain model and the three-tier calculation engine
  for per-worker, per-day field compensation: inline (single line), day level
  (proportional redistribution across same-day lines) and week level (the
  integral attendance bonus across a batch).

KEY CONCEPTS IN THIS FILE (types.go):
  - Worker: a field worker with a monthly wage synced from the HR system
  - Activity/LaborType: what was done and which bonuses it qualifies for
  - Tariff: cost per unit for an (activity, farm) pair
  - Batch/Line: a pay-period container and its quantity entries
  - Settings: the singleton tunables consumed by every formula

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every monetary value, never float64
  2. Ownership: the eight computed fields on Line are written only by the
     calculators, never by API writers
  3. Derivation: ISO week/year always re-derived from the date at write time

SEE ALSO:
  - calc.go: the pure calculation formulas
  - calculators.go: store-backed calculators that persist results
  - orchestrator.go: the per-mutation cascade
  - store.go: persistence interfaces
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type ActivityID string
type LaborTypeID string
type FarmID string
type TariffID string
type BatchID string
type LineID string

// =============================================================================
// CALCULATION CONSTANTS
// =============================================================================

var (
	// DaysPerMonth prorates a monthly wage to a daily wage.
	DaysPerMonth = decimal.NewFromInt(30)
	// WorkHoursPerDay prorates a daily wage to an hourly wage.
	WorkHoursPerDay = decimal.NewFromInt(8)
	// MonthsPerYear spreads annual bonuses across the year.
	MonthsPerYear = decimal.NewFromInt(12)

	oneHundred = decimal.NewFromInt(100)
)

// =============================================================================
// WORKER - Master data synced from the external HR system
// =============================================================================

// Worker is a field worker. Identity and contract data flow in from the
// upstream HR system via webhooks; LastSync is the conflict-resolution
// timestamp for those updates (last-writer-wins by event time).
type Worker struct {
	ID          WorkerID
	EmployeeRef int64  // upstream employee id, unique
	ContractRef *int64 // upstream contract id, nil until a contract exists

	Name        string
	MobilePhone string
	Email       string
	Badge       string // identification number; import files reference workers by badge

	Wage           *decimal.Decimal // monthly wage, nil until a contract syncs
	StartDate      *time.Time
	EndDate        *time.Time
	ContractStatus string

	Active   bool
	LastSync time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailyWage is the monthly wage prorated over 30 days, zero when no wage
// has been synced yet.
func (w *Worker) DailyWage() decimal.Decimal {
	if w == nil || w.Wage == nil {
		return decimal.Zero
	}
	return w.Wage.Div(DaysPerMonth)
}

// =============================================================================
// MASTER DATA - Activities, labor types, farms, tariffs
// =============================================================================

// LaborType classifies activities and carries the bonus-eligibility flags.
// Only CalculatesIntegral is consumed by a formula today; the thirteenth and
// fourteenth flags are declared upstream but not yet wired into the engine.
type LaborType struct {
	ID                   LaborTypeID
	Name                 string
	Code                 string
	CalculatesIntegral   bool
	CalculatesThirteenth bool
	CalculatesFourteenth bool
}

// Activity is a unit of field work (pruning, harvesting, ...). Import files
// reference activities by Name.
type Activity struct {
	ID          ActivityID
	Name        string
	LaborTypeID LaborTypeID
	Group       string // descriptive grouping, not used in formulas
	Uom         string // unit of measure label
}

type Farm struct {
	ID          FarmID
	Name        string
	Code        string
	Description string
}

// Tariff prices one unit of an activity on one farm. Unique per
// (activity, farm); a missing tariff prices the line at zero.
type Tariff struct {
	ID          TariffID
	Name        string
	ActivityID  ActivityID
	FarmID      FarmID
	CostPerUnit decimal.Decimal
}

// =============================================================================
// SETTINGS - Singleton engine tunables
// =============================================================================

// Settings is the singleton configuration row. Percentages are stored on a
// 0-100 scale and divided by 100 inside the formulas. The row is lazily
// created with defaults on first read and can never be deleted.
type Settings struct {
	MobilizationPct     decimal.Decimal
	ExtraHoursPct       decimal.Decimal
	ExtraHourMultiplier decimal.Decimal
	BasicMonthlyWage    decimal.Decimal
	DailyLineLimit      int
}

// DefaultSettings are the values the singleton is vivified with.
func DefaultSettings() Settings {
	return Settings{
		MobilizationPct:     decimal.Zero,
		ExtraHoursPct:       decimal.Zero,
		ExtraHourMultiplier: decimal.Zero,
		BasicMonthlyWage:    decimal.Zero,
		DailyLineLimit:      3,
	}
}

// =============================================================================
// BATCH - A pay-period container with a lifecycle status
// =============================================================================

type BatchStatus string

const (
	BatchDraft      BatchStatus = "draft"
	BatchSubmitted  BatchStatus = "submitted"
	BatchProcessing BatchStatus = "processing"
	BatchReady      BatchStatus = "ready"
	BatchError      BatchStatus = "error"
	BatchApproved   BatchStatus = "approved"
	BatchRejected   BatchStatus = "rejected"
)

// Batch is a named collection of lines covering one pay period on one farm.
type Batch struct {
	ID        BatchID
	Name      string
	FarmID    FarmID
	StartDate time.Time
	EndDate   time.Time
	ISOYear   int
	ISOWeek   int
	Status    BatchStatus
	ErrorMsg  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveISO stamps the ISO calendar week/year from the start date.
func (b *Batch) DeriveISO() {
	b.ISOYear, b.ISOWeek = b.StartDate.ISOWeek()
}

// =============================================================================
// LINE - One (worker, activity, date, quantity) compensation record
// =============================================================================

// LineFigures are the computed outputs owned by the calculation engine.
// IntegralBonus is written only by the day and week tiers, never inline.
type LineFigures struct {
	TotalCost         decimal.Decimal
	SalarySurplus     decimal.Decimal
	MobilizationBonus decimal.Decimal
	ExtraHoursValue   decimal.Decimal
	ExtraHoursQty     decimal.Decimal
	ThirteenthBonus   decimal.Decimal
	FourteenthBonus   decimal.Decimal
	IntegralBonus     decimal.Decimal
}

// Line is one compensation record within a batch.
type Line struct {
	ID         LineID
	BatchID    BatchID
	WorkerID   WorkerID
	ActivityID ActivityID
	Date       time.Time
	Quantity   decimal.Decimal
	ISOYear    int
	ISOWeek    int

	Figures LineFigures

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveISO stamps the ISO calendar week/year from the line date.
func (l *Line) DeriveISO() {
	l.ISOYear, l.ISOWeek = l.Date.ISOWeek()
}

// IsWeekend reports whether the line falls on a Saturday or Sunday.
func (l *Line) IsWeekend() bool {
	return isWeekend(l.Date)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DateOnly truncates a timestamp to its calendar day in UTC. Lines are keyed
// by calendar day; all grouping and uniqueness checks go through this.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
