/*
calculators.go - Store-backed calculators that persist computed figures

PURPOSE:
  Wraps the pure formulas from calc.go with input resolution (worker, batch,
  tariff, settings) and persistence. Each calculator is a pure overwrite
  keyed by deterministic filters, so a re-run always converges to the same
  result - the batch pipeline relies on that for retry safety.

SEE ALSO:
  - calc.go: the formulas
  - orchestrator.go: sequencing for single-line mutations
  - importer/pipeline.go: staged bulk application
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INLINE CALCULATOR
// =============================================================================

// InlineCalculator computes all per-line fields from the line's own data.
type InlineCalculator struct{}

// Calculate recomputes and persists one line's figures. The stored integral
// bonus is preserved - inline never owns it.
func (InlineCalculator) Calculate(ctx context.Context, s Store, line *Line) error {
	worker, err := s.GetWorker(ctx, line.WorkerID)
	if err != nil {
		return err
	}
	batch, err := s.GetBatch(ctx, line.BatchID)
	if err != nil {
		return err
	}
	cfg, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	unitCost, ok, err := s.LookupTariff(ctx, line.ActivityID, batch.FarmID)
	if err != nil {
		return err
	}
	if !ok {
		unitCost = decimal.Zero
	}

	figures := ComputeLine(LineContext{
		Date:     line.Date,
		Quantity: line.Quantity,
		UnitCost: unitCost,
		Wage:     worker.Wage,
		Settings: cfg,
	})
	figures.IntegralBonus = line.Figures.IntegralBonus

	line.Figures = figures
	return s.UpdateLineFigures(ctx, line.ID, figures)
}

// CalculateBulk applies the inline formulas to a collection of lines and
// persists them in one write. Workers, tariffs and settings are resolved
// once per distinct key, not per line.
func (InlineCalculator) CalculateBulk(ctx context.Context, s Store, lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	cfg, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	workers := make(map[WorkerID]*Worker)
	batches := make(map[BatchID]*Batch)
	type tariffKey struct {
		activity ActivityID
		farm     FarmID
	}
	tariffs := make(map[tariffKey]decimal.Decimal)

	for i := range lines {
		line := &lines[i]

		worker, found := workers[line.WorkerID]
		if !found {
			worker, err = s.GetWorker(ctx, line.WorkerID)
			if err != nil {
				return nil, fmt.Errorf("line %s: %w", line.ID, err)
			}
			workers[line.WorkerID] = worker
		}

		batch, found := batches[line.BatchID]
		if !found {
			batch, err = s.GetBatch(ctx, line.BatchID)
			if err != nil {
				return nil, fmt.Errorf("line %s: %w", line.ID, err)
			}
			batches[line.BatchID] = batch
		}

		tk := tariffKey{activity: line.ActivityID, farm: batch.FarmID}
		unitCost, found := tariffs[tk]
		if !found {
			cost, ok, err := s.LookupTariff(ctx, line.ActivityID, batch.FarmID)
			if err != nil {
				return nil, err
			}
			if !ok {
				cost = decimal.Zero
			}
			unitCost = cost
			tariffs[tk] = cost
		}

		figures := ComputeLine(LineContext{
			Date:     line.Date,
			Quantity: line.Quantity,
			UnitCost: unitCost,
			Wage:     worker.Wage,
			Settings: cfg,
		})
		figures.IntegralBonus = line.Figures.IntegralBonus
		line.Figures = figures
	}

	if err := s.UpdateLineFiguresBulk(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// =============================================================================
// DAY CALCULATOR
// =============================================================================

// DayCalculator redistributes surplus-derived fields across a worker's
// same-day lines within a batch.
type DayCalculator struct{}

// Calculate rebalances the (worker, batch, date) group. A group of one line
// has nothing to redistribute: its figures revert to plain inline values
// (surplus clamped again on weekdays), which is what a group reduced by a
// deletion needs. A zero combined cost leaves the group unchanged.
func (DayCalculator) Calculate(ctx context.Context, s Store, workerID WorkerID, batchID BatchID, date time.Time) error {
	lines, err := s.ListDayLines(ctx, workerID, batchID, date)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	if len(lines) == 1 {
		return InlineCalculator{}.Calculate(ctx, s, &lines[0])
	}

	worker, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}
	cfg, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}

	group := DayGroupContext{
		Date:     date,
		Wage:     worker.Wage,
		Settings: cfg,
		Lines:    make([]DayLineShare, 0, len(lines)),
	}
	byID := make(map[LineID]*Line, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
		group.Lines = append(group.Lines, DayLineShare{
			LineID:        lines[i].ID,
			TotalCost:     lines[i].Figures.TotalCost,
			IntegralBonus: lines[i].Figures.IntegralBonus,
		})
	}

	results, ok := ComputeDayGroup(group)
	if !ok {
		return nil
	}

	for _, r := range results {
		line := byID[r.LineID]
		figures := LineFigures{
			TotalCost:         line.Figures.TotalCost,
			SalarySurplus:     r.SalarySurplus,
			MobilizationBonus: r.MobilizationBonus,
			ExtraHoursValue:   r.ExtraHoursValue,
			ExtraHoursQty:     r.ExtraHoursQty,
			ThirteenthBonus:   r.ThirteenthBonus,
			FourteenthBonus:   r.FourteenthBonus,
			IntegralBonus:     r.IntegralBonus,
		}
		line.Figures = figures
		if err := s.UpdateLineFigures(ctx, line.ID, figures); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// WEEK CALCULATOR
// =============================================================================

// WeekCalculator computes the integral attendance bonus for one worker
// across all lines in a batch.
type WeekCalculator struct{}

// Calculate resets every integral bonus for the worker in the batch, counts
// distinct qualifying worked days and, when the threshold is met, writes the
// identical per-line value to every qualifying line.
func (WeekCalculator) Calculate(ctx context.Context, s Store, workerID WorkerID, batchID BatchID) error {
	if err := s.ResetIntegral(ctx, workerID, batchID); err != nil {
		return err
	}

	workedDays, err := s.CountQualifyingDays(ctx, workerID, batchID)
	if err != nil {
		return err
	}
	worker, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}

	total, perLine := ComputeIntegral(WeekContext{Wage: worker.Wage, WorkedDays: workedDays})
	if !total.IsPositive() {
		return nil
	}
	return s.SetQualifyingIntegral(ctx, workerID, batchID, perLine)
}
