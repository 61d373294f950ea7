/*
calc.go - Pure calculation formulas for the three tiers

PURPOSE:
  The complete formula set for line compensation, written as pure functions
  over explicit context structs. Nothing in this file touches a store; the
  calculators in calculators.go resolve inputs, call these, and persist.

THE THREE TIERS:
  ComputeLine:     everything derivable from a single line in isolation
  ComputeDayGroup: proportional redistribution when a worker has several
                   lines on one date
  ComputeIntegral: the attendance bonus from distinct qualifying worked days

FORMULA NOTES:
  - daily wage = monthly wage / 30 (zero when no wage synced)
  - weekend lines surrender no wage offset: surplus is the full cost
  - the day-level group surplus is intentionally NOT clamped at zero on
    weekdays; a group earning less than the daily wage redistributes a
    negative surplus
  - the integral bonus is split by count of distinct qualifying days, not
    by line cost; every qualifying line carries the same per-line value

SEE ALSO:
  - calculators.go: store-backed wrappers
  - orchestrator.go: which tiers run after which mutation
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INLINE TIER
// =============================================================================

// LineContext is everything the inline tier needs, resolved by the caller.
type LineContext struct {
	Date     time.Time
	Quantity decimal.Decimal
	UnitCost decimal.Decimal  // zero when no tariff exists for (activity, farm)
	Wage     *decimal.Decimal // worker's monthly wage, nil when not yet synced
	Settings Settings
}

// ComputeLine derives all per-line figures from the line's own data.
// IntegralBonus is never produced here; the returned figure keeps it at zero
// and persisting callers must preserve the stored value.
func ComputeLine(in LineContext) LineFigures {
	dailyWage := dailyWageOf(in.Wage)
	weekend := isWeekend(in.Date)

	totalCost := in.Quantity.Mul(in.UnitCost)
	surplus := surplusOf(totalCost, dailyWage, weekend)

	f := bonusesFromSurplus(surplus, in.Wage, in.Settings)
	f.TotalCost = totalCost
	f.SalarySurplus = surplus
	f.ThirteenthBonus = thirteenthOf(dailyWage, f.ExtraHoursValue, weekend)
	f.FourteenthBonus = fourteenthOf(in.Settings)
	return f
}

// =============================================================================
// DAY TIER - Proportional redistribution across a same-day group
// =============================================================================

// DayLineShare is one group member's slice of the day: its inline total cost
// and whatever integral bonus it currently holds.
type DayLineShare struct {
	LineID        LineID
	TotalCost     decimal.Decimal
	IntegralBonus decimal.Decimal
}

// DayGroupContext describes one (worker, date) group within a batch.
type DayGroupContext struct {
	Date     time.Time
	Wage     *decimal.Decimal
	Settings Settings
	Lines    []DayLineShare
}

// DayShareResult carries the redistributed figures for one group member.
// TotalCost stays untouched by this tier.
type DayShareResult struct {
	LineID            LineID
	SalarySurplus     decimal.Decimal
	MobilizationBonus decimal.Decimal
	ExtraHoursValue   decimal.Decimal
	ExtraHoursQty     decimal.Decimal
	ThirteenthBonus   decimal.Decimal
	FourteenthBonus   decimal.Decimal
	IntegralBonus     decimal.Decimal
}

// ComputeDayGroup redistributes the group-level surplus across the group's
// lines in proportion to each line's share of the combined cost. Returns
// ok=false when the group cannot be redistributed (fewer than two lines, or
// a zero combined cost which would divide by zero) - callers leave the lines
// unchanged in that case.
//
// The group surplus on a weekday is combined cost minus the full daily wage,
// deliberately unclamped: it can be negative and the proportional math must
// tolerate that.
func ComputeDayGroup(in DayGroupContext) ([]DayShareResult, bool) {
	if len(in.Lines) < 2 {
		return nil, false
	}

	groupCost := decimal.Zero
	for _, l := range in.Lines {
		groupCost = groupCost.Add(l.TotalCost)
	}
	if groupCost.IsZero() {
		return nil, false
	}

	dailyWage := dailyWageOf(in.Wage)
	weekend := isWeekend(in.Date)

	groupSurplus := groupCost
	if !weekend {
		groupSurplus = groupCost.Sub(dailyWage)
	}

	inlineFourteenth := fourteenthOf(in.Settings)

	results := make([]DayShareResult, 0, len(in.Lines))
	for _, l := range in.Lines {
		proportion := l.TotalCost.Div(groupCost)
		surplus := groupSurplus.Mul(proportion)

		b := bonusesFromSurplus(surplus, in.Wage, in.Settings)
		results = append(results, DayShareResult{
			LineID:            l.LineID,
			SalarySurplus:     surplus,
			MobilizationBonus: b.MobilizationBonus,
			ExtraHoursValue:   b.ExtraHoursValue,
			ExtraHoursQty:     b.ExtraHoursQty,
			ThirteenthBonus:   thirteenthOf(dailyWage.Mul(proportion), b.ExtraHoursValue, weekend),
			FourteenthBonus:   inlineFourteenth.Mul(proportion),
			IntegralBonus:     l.IntegralBonus.Mul(proportion),
		})
	}
	return results, true
}

// =============================================================================
// WEEK TIER - Integral attendance bonus
// =============================================================================

// WeekContext describes one worker's attendance within a batch.
type WeekContext struct {
	Wage       *decimal.Decimal
	WorkedDays int // distinct dates among the worker's qualifying lines
}

// ComputeIntegral returns the worker's total integral bonus and the value
// written to every qualifying line. The split is by count of distinct
// qualifying days: two lines on the same day each receive the full per-day
// value, not half of it.
func ComputeIntegral(in WeekContext) (total, perLine decimal.Decimal) {
	dailyWage := dailyWageOf(in.Wage)

	switch {
	case in.WorkedDays >= 5:
		total = dailyWage.Mul(decimal.NewFromInt(2))
	case in.WorkedDays == 4:
		total = dailyWage
	default:
		return decimal.Zero, decimal.Zero
	}

	if total.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return total, total.Div(decimal.NewFromInt(int64(in.WorkedDays)))
}

// =============================================================================
// SHARED FORMULA PIECES
// =============================================================================

func dailyWageOf(wage *decimal.Decimal) decimal.Decimal {
	if wage == nil {
		return decimal.Zero
	}
	return wage.Div(DaysPerMonth)
}

// surplusOf is the single-line surplus: full cost on weekends, cost above
// the daily wage (clamped at zero) on weekdays. The day tier uses its own
// unclamped group variant.
func surplusOf(totalCost, dailyWage decimal.Decimal, weekend bool) decimal.Decimal {
	if weekend {
		return totalCost
	}
	surplus := totalCost.Sub(dailyWage)
	if surplus.IsNegative() {
		return decimal.Zero
	}
	return surplus
}

// bonusesFromSurplus derives the surplus-driven bonuses: mobilization,
// extra-hours value and extra-hours quantity. The quantity prices extra
// hours off the worker's full (unscaled) hourly wage even inside the day
// tier, matching the group redistribution semantics.
func bonusesFromSurplus(surplus decimal.Decimal, wage *decimal.Decimal, cfg Settings) LineFigures {
	var f LineFigures
	f.MobilizationBonus = surplus.Mul(cfg.MobilizationPct.Div(oneHundred))
	f.ExtraHoursValue = surplus.Mul(cfg.ExtraHoursPct.Div(oneHundred))
	f.ExtraHoursQty = extraHoursQty(f.ExtraHoursValue, wage, cfg)
	return f
}

func extraHoursQty(extraHoursValue decimal.Decimal, wage *decimal.Decimal, cfg Settings) decimal.Decimal {
	if !extraHoursValue.IsPositive() {
		return decimal.Zero
	}
	hourlyWage := dailyWageOf(wage).Div(WorkHoursPerDay)
	extraHourPrice := hourlyWage.Mul(cfg.ExtraHourMultiplier)
	if extraHourPrice.IsZero() {
		// No synced wage or a zero multiplier: the quantity is undefined,
		// report zero rather than divide by zero.
		return decimal.Zero
	}
	return extraHoursValue.Div(extraHourPrice)
}

func thirteenthOf(dailyWage, extraHoursValue decimal.Decimal, weekend bool) decimal.Decimal {
	if weekend {
		return extraHoursValue
	}
	return extraHoursValue.Add(dailyWage.Div(MonthsPerYear))
}

// fourteenthOf is a per-line constant derived from the configured basic
// monthly wage, independent of the line's own cost.
func fourteenthOf(cfg Settings) decimal.Decimal {
	return cfg.BasicMonthlyWage.Div(MonthsPerYear).Div(DaysPerMonth)
}
