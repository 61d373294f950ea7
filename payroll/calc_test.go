package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/payroll-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// weekday/weekend anchors used throughout. 2025-06-02 is a Monday,
// 2025-06-07 a Saturday.
var (
	monday   = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC)
)

func testSettings() payroll.Settings {
	return payroll.Settings{
		MobilizationPct:     dec("10"),
		ExtraHoursPct:       dec("20"),
		ExtraHourMultiplier: dec("1.5"),
		BasicMonthlyWage:    dec("450"),
		DailyLineLimit:      3,
	}
}

// decEqual compares by numeric value, not representation.
func decEqual(t *testing.T, want, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// =============================================================================
// INLINE TIER
// =============================================================================

func TestComputeLine_ZeroInputsYieldZeroFigures(t *testing.T) {
	// GIVEN: A line with zero quantity
	// WHEN: Computing inline figures
	// THEN: Every output field is zero

	f := payroll.ComputeLine(payroll.LineContext{
		Date:     monday,
		Quantity: decimal.Zero,
		UnitCost: dec("2.5"),
		Wage:     decPtr("0"),
		Settings: testSettings(),
	})

	decEqual(t, decimal.Zero, f.TotalCost)
	decEqual(t, decimal.Zero, f.SalarySurplus)
	decEqual(t, decimal.Zero, f.MobilizationBonus)
	decEqual(t, decimal.Zero, f.ExtraHoursValue)
	decEqual(t, decimal.Zero, f.ExtraHoursQty)
	decEqual(t, decimal.Zero, f.ThirteenthBonus)
	decEqual(t, decimal.Zero, f.IntegralBonus)
}

func TestComputeLine_MissingTariffPricesLineAtZero(t *testing.T) {
	// GIVEN: No tariff (unit cost zero) but a real wage
	// WHEN: Computing inline figures on a weekday
	// THEN: Cost and surplus are zero; the 13th keeps its wage-derived part

	wage := decPtr("600") // daily 20
	f := payroll.ComputeLine(payroll.LineContext{
		Date:     monday,
		Quantity: dec("40"),
		UnitCost: decimal.Zero,
		Wage:     wage,
		Settings: testSettings(),
	})

	decEqual(t, decimal.Zero, f.TotalCost)
	decEqual(t, decimal.Zero, f.SalarySurplus)
	// 13th = extra_hours_value (0) + daily_wage/12 on weekdays
	decEqual(t, dec("600").Div(dec("30")).Div(dec("12")), f.ThirteenthBonus)
}

func TestComputeLine_WeekdaySurplusIsClampedAtZero(t *testing.T) {
	// GIVEN: A weekday line earning less than the daily wage
	// WHEN: Computing inline figures
	// THEN: Surplus is zero, not negative

	f := payroll.ComputeLine(payroll.LineContext{
		Date:     monday,
		Quantity: dec("4"),
		UnitCost: dec("2.5"), // cost 10, daily wage 20
		Wage:     decPtr("600"),
		Settings: testSettings(),
	})

	decEqual(t, dec("10"), f.TotalCost)
	decEqual(t, decimal.Zero, f.SalarySurplus)
	decEqual(t, decimal.Zero, f.MobilizationBonus)
}

func TestComputeLine_WeekendSurplusIsFullCost(t *testing.T) {
	// GIVEN: The same line on a Saturday
	// WHEN: Computing inline figures
	// THEN: The whole cost is surplus and the 13th has no wage part

	cfg := testSettings()
	f := payroll.ComputeLine(payroll.LineContext{
		Date:     saturday,
		Quantity: dec("4"),
		UnitCost: dec("2.5"),
		Wage:     decPtr("600"),
		Settings: cfg,
	})

	decEqual(t, dec("10"), f.SalarySurplus)
	decEqual(t, dec("1"), f.MobilizationBonus) // 10 * 10%
	decEqual(t, dec("2"), f.ExtraHoursValue)   // 10 * 20%
	// 13th on weekends is the extra-hours value alone
	decEqual(t, f.ExtraHoursValue, f.ThirteenthBonus)
}

func TestComputeLine_ExtraHoursQuantityPricing(t *testing.T) {
	// GIVEN: Wage 600 (hourly 20/8 = 2.5), multiplier 1.5 -> hour price 3.75
	// WHEN: A weekday line with cost 60 (surplus 40)
	// THEN: extra_hours_value = 8, qty = 8 / 3.75

	f := payroll.ComputeLine(payroll.LineContext{
		Date:     monday,
		Quantity: dec("24"),
		UnitCost: dec("2.5"), // cost 60
		Wage:     decPtr("600"),
		Settings: testSettings(),
	})

	decEqual(t, dec("40"), f.SalarySurplus)
	decEqual(t, dec("8"), f.ExtraHoursValue)
	decEqual(t, dec("8").Div(dec("3.75")), f.ExtraHoursQty)
}

func TestComputeLine_NilWageNeverPanics(t *testing.T) {
	// GIVEN: A worker whose contract has not synced yet (nil wage)
	// WHEN: Computing a weekend line with positive extra-hours value
	// THEN: The quantity is reported as zero instead of dividing by zero

	f := payroll.ComputeLine(payroll.LineContext{
		Date:     saturday,
		Quantity: dec("10"),
		UnitCost: dec("3"),
		Wage:     nil,
		Settings: testSettings(),
	})

	decEqual(t, dec("30"), f.SalarySurplus)
	decEqual(t, dec("6"), f.ExtraHoursValue)
	decEqual(t, decimal.Zero, f.ExtraHoursQty)
}

func TestComputeLine_TotalCostLinearity(t *testing.T) {
	// GIVEN: The same line at quantity q and 2q
	// WHEN: Computing inline figures
	// THEN: total_cost doubles exactly

	base := payroll.LineContext{
		Date:     monday,
		Quantity: dec("7"),
		UnitCost: dec("1.3"),
		Wage:     decPtr("600"),
		Settings: testSettings(),
	}
	doubled := base
	doubled.Quantity = base.Quantity.Mul(dec("2"))

	f1 := payroll.ComputeLine(base)
	f2 := payroll.ComputeLine(doubled)

	decEqual(t, f1.TotalCost.Mul(dec("2")), f2.TotalCost)
}

// =============================================================================
// DAY TIER
// =============================================================================

func TestComputeDayGroup_SingleLineIsNoOp(t *testing.T) {
	// GIVEN: A group with one line
	// WHEN: Running the day tier
	// THEN: Nothing is redistributed

	_, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     monday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines:    []payroll.DayLineShare{{LineID: "a", TotalCost: dec("10")}},
	})
	assert.False(t, ok)
}

func TestComputeDayGroup_ZeroGroupCostIsNoOp(t *testing.T) {
	// GIVEN: Two lines whose combined cost is zero
	// WHEN: Running the day tier
	// THEN: The group is left unchanged (no division by zero)

	_, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     monday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines: []payroll.DayLineShare{
			{LineID: "a", TotalCost: decimal.Zero},
			{LineID: "b", TotalCost: decimal.Zero},
		},
	})
	assert.False(t, ok)
}

func TestComputeDayGroup_DistributionConservation(t *testing.T) {
	// GIVEN: Costs 20 and 12 (proportions 5/8 and 3/8), daily wage 20
	// WHEN: Redistributing on a weekday (group surplus 32-20 = 12)
	// THEN: Lines receive surplus 7.5 and 4.5; shares sum to the group value

	results, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     monday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines: []payroll.DayLineShare{
			{LineID: "a", TotalCost: dec("20")},
			{LineID: "b", TotalCost: dec("12")},
		},
	})
	require.True(t, ok)
	require.Len(t, results, 2)

	decEqual(t, dec("7.5"), results[0].SalarySurplus)
	decEqual(t, dec("4.5"), results[1].SalarySurplus)

	sum := results[0].SalarySurplus.Add(results[1].SalarySurplus)
	decEqual(t, dec("12"), sum)

	mobSum := results[0].MobilizationBonus.Add(results[1].MobilizationBonus)
	decEqual(t, dec("1.2"), mobSum) // 12 * 10%
}

func TestComputeDayGroup_NegativeGroupSurplusFlowsThrough(t *testing.T) {
	// GIVEN: Combined cost 12 below the daily wage 20
	// WHEN: Redistributing on a weekday
	// THEN: The negative surplus is split proportionally, not clamped

	results, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     monday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines: []payroll.DayLineShare{
			{LineID: "a", TotalCost: dec("8")},
			{LineID: "b", TotalCost: dec("4")},
		},
	})
	require.True(t, ok)

	// group surplus = 12 - 20 = -8, proportions 2/3 and 1/3
	decEqual(t, dec("-8").Mul(dec("8").Div(dec("12"))), results[0].SalarySurplus)
	assert.True(t, results[0].SalarySurplus.IsNegative())
	assert.True(t, results[1].SalarySurplus.IsNegative())
	// negative extra-hours value yields no quantity
	decEqual(t, decimal.Zero, results[0].ExtraHoursQty)
}

func TestComputeDayGroup_ScalesExistingIntegral(t *testing.T) {
	// GIVEN: A line carrying an integral bonus of 6 with proportion 5/8
	// WHEN: Redistributing
	// THEN: Its integral bonus is scaled by its cost share

	results, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     saturday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines: []payroll.DayLineShare{
			{LineID: "a", TotalCost: dec("20"), IntegralBonus: dec("6")},
			{LineID: "b", TotalCost: dec("12"), IntegralBonus: dec("6")},
		},
	})
	require.True(t, ok)

	decEqual(t, dec("6").Mul(dec("20")).Div(dec("32")), results[0].IntegralBonus)
	decEqual(t, dec("6").Mul(dec("12")).Div(dec("32")), results[1].IntegralBonus)
}

func TestComputeDayGroup_FourteenthScalesByProportion(t *testing.T) {
	// GIVEN: Basic monthly wage 450 -> inline 14th = 450/12/30 = 1.25
	// WHEN: Redistributing with proportions 5/8 and 3/8
	// THEN: Each line's 14th is the inline value scaled by its share

	results, ok := payroll.ComputeDayGroup(payroll.DayGroupContext{
		Date:     monday,
		Wage:     decPtr("600"),
		Settings: testSettings(),
		Lines: []payroll.DayLineShare{
			{LineID: "a", TotalCost: dec("20")},
			{LineID: "b", TotalCost: dec("12")},
		},
	})
	require.True(t, ok)

	inline14th := dec("450").Div(dec("12")).Div(dec("30"))
	decEqual(t, inline14th.Mul(dec("20")).Div(dec("32")), results[0].FourteenthBonus)
	decEqual(t, inline14th.Mul(dec("12")).Div(dec("32")), results[1].FourteenthBonus)
	// the shares sum back to the undivided constant
	decEqual(t, inline14th, results[0].FourteenthBonus.Add(results[1].FourteenthBonus))
}

// =============================================================================
// WEEK TIER
// =============================================================================

func TestComputeIntegral_DayCountThresholds(t *testing.T) {
	wage := decPtr("600") // daily 20

	tests := []struct {
		name        string
		days        int
		wantTotal   string
		wantPerLine string
	}{
		{"three days pay nothing", 3, "0", "0"},
		{"four days pay one daily wage", 4, "20", "5"},
		{"five days pay double", 5, "40", "8"},
		{"six days still pay double", 6, "40", "6.6666666666666667"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, perLine := payroll.ComputeIntegral(payroll.WeekContext{
				Wage:       wage,
				WorkedDays: tt.days,
			})
			decEqual(t, dec(tt.wantTotal), total)
			if tt.days != 6 {
				decEqual(t, dec(tt.wantPerLine), perLine)
			} else {
				// 40/6 is non-terminating; compare within decimal's division precision
				assert.True(t, perLine.Sub(dec(tt.wantPerLine)).Abs().LessThan(dec("0.000001")))
			}
		})
	}
}

func TestComputeIntegral_NilWagePaysNothing(t *testing.T) {
	// GIVEN: A worker with no synced wage
	// WHEN: Computing the integral for a full week
	// THEN: Total and per-line are zero

	total, perLine := payroll.ComputeIntegral(payroll.WeekContext{Wage: nil, WorkedDays: 5})
	decEqual(t, decimal.Zero, total)
	decEqual(t, decimal.Zero, perLine)
}
