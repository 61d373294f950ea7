/*
orchestrator.go - Decides which calculation tiers run after a mutation

PURPOSE:
  Single entry points for recalculation after a line is created, edited or
  deleted. Each entry point wraps the whole cascade in one store transaction:
  a partially applied cascade never becomes visible.

SEQUENCING:
  RecalculateLine:          inline -> day (only if the group has >1 line)
                            -> week (only when requested)
  RecalculateAfterDeletion: day -> week, never inline (nothing remains to
                            compute inline for the deleted line)

ORDERING CAVEAT (confirmed behavior, not a bug):
  The day tier scales whatever integral bonus a line currently holds; the
  week tier unconditionally overwrites the integral for all qualifying lines.
  When both run, the week tier's day-count split is what persists. The day
  tier's scaled integral only survives mutations that skip the week tier
  (quantity-only edits).

SEE ALSO:
  - service.go: the call policy (which mutations request a week recompute)
*/
package payroll

import (
	"context"
	"time"
)

// Orchestrator runs the calculation cascade for single-line mutations.
type Orchestrator struct {
	Store TxStore

	inline InlineCalculator
	day    DayCalculator
	week   WeekCalculator
}

func NewOrchestrator(store TxStore) *Orchestrator {
	return &Orchestrator{Store: store}
}

// RecalculateLine recomputes one line and everything it influences, inside
// one transaction. recalcWeek forces the integral bonus to be rebuilt for
// the line's worker and batch.
func (o *Orchestrator) RecalculateLine(ctx context.Context, lineID LineID, recalcWeek bool) error {
	return o.Store.WithTx(ctx, func(s Store) error {
		line, err := s.GetLine(ctx, lineID)
		if err != nil {
			return err
		}

		if err := o.inline.Calculate(ctx, s, line); err != nil {
			return err
		}

		group, err := s.ListDayLines(ctx, line.WorkerID, line.BatchID, line.Date)
		if err != nil {
			return err
		}
		if len(group) > 1 {
			if err := o.day.Calculate(ctx, s, line.WorkerID, line.BatchID, line.Date); err != nil {
				return err
			}
		}

		if recalcWeek {
			if err := o.week.Calculate(ctx, s, line.WorkerID, line.BatchID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecalculateAfterDeletion rebalances what a removed line leaves behind:
// the day tier rebalances the remaining same-day lines and the week tier
// rebuilds the integral bonus against the reduced day count.
func (o *Orchestrator) RecalculateAfterDeletion(ctx context.Context, workerID WorkerID, batchID BatchID, date time.Time) error {
	return o.Store.WithTx(ctx, func(s Store) error {
		if err := o.day.Calculate(ctx, s, workerID, batchID, date); err != nil {
			return err
		}
		return o.week.Calculate(ctx, s, workerID, batchID)
	})
}
