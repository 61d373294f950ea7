package importer_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/payroll-engine/importer"
)

// =============================================================================
// STRUCTURE CHECK
// =============================================================================

func TestCheckStructure_AllColumnsPresent(t *testing.T) {
	errs := importer.CheckStructure([]string{"date", "field_worker", "activity", "quantity", "notes"})
	assert.Empty(t, errs)
}

func TestCheckStructure_NamesEveryMissingColumn(t *testing.T) {
	// GIVEN: A file with only a date column
	// WHEN: Checking structure
	// THEN: One row-0 finding listing all three missing columns

	errs := importer.CheckStructure([]string{"date"})
	require.Len(t, errs, 1)
	assert.Equal(t, 0, errs[0].Row)
	assert.Equal(t, "missing required columns: field_worker, activity, quantity", errs[0].Message)
}

// =============================================================================
// ROW VALIDATION
// =============================================================================

func testValidator() *importer.Validator {
	return &importer.Validator{
		WorkerBadges:  map[string]bool{"1234567899": true},
		ActivityNames: map[string]bool{"Pruning": true},
	}
}

func TestValidateRows_CleanRowsParse(t *testing.T) {
	rows, errs := testValidator().ValidateRows([]importer.RawRow{
		{Number: 2, Date: "2025-06-02", Worker: "1234567899", Activity: "Pruning", Quantity: "8.5"},
	})
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "2025-06-02", rows[0].Date.Format("2006-01-02"))
	assert.Equal(t, "1234567899", rows[0].WorkerBadge)
	assert.Equal(t, "Pruning", rows[0].ActivityName)
	assert.Equal(t, "8.5", rows[0].Quantity.String())
}

func TestValidateRows_AcceptsSpreadsheetShortDates(t *testing.T) {
	// XLSX date cells often come back in the default short format.
	rows, errs := testValidator().ValidateRows([]importer.RawRow{
		{Number: 2, Date: "06-02-25", Worker: "1234567899", Activity: "Pruning", Quantity: "8"},
	})
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-02", rows[0].Date.Format("2006-01-02"))
}

func TestValidateRows_CollectsEveryFinding(t *testing.T) {
	// GIVEN: Four bad rows (blank field, bad date, bad quantity, unknown refs)
	// WHEN: Validating
	// THEN: Every row is examined; the unknown-ref row yields two findings

	rows, errs := testValidator().ValidateRows([]importer.RawRow{
		{Number: 2, Date: "", Worker: "1234567899", Activity: "Pruning", Quantity: "8"},
		{Number: 3, Date: "next tuesday", Worker: "1234567899", Activity: "Pruning", Quantity: "8"},
		{Number: 4, Date: "2025-06-02", Worker: "1234567899", Activity: "Pruning", Quantity: "lots"},
		{Number: 5, Date: "2025-06-02", Worker: "0000000000", Activity: "Mowing", Quantity: "8"},
	})
	assert.Empty(t, rows)
	require.Len(t, errs, 5)
	assert.Equal(t, "one of the required fields is blank", errs[0].Message)
	assert.Equal(t, `unrecognized date "next tuesday"`, errs[1].Message)
	assert.Equal(t, `invalid quantity "lots"`, errs[2].Message)
	assert.Equal(t, "invalid field worker: 0000000000", errs[3].Message)
	assert.Equal(t, "invalid activity: Mowing", errs[4].Message)
}

func TestValidateRows_GoodRowsSurviveBadOnes(t *testing.T) {
	rows, errs := testValidator().ValidateRows([]importer.RawRow{
		{Number: 2, Date: "2025-06-02", Worker: "1234567899", Activity: "Pruning", Quantity: "8"},
		{Number: 3, Date: "2025-06-02", Worker: "unknown", Activity: "Pruning", Quantity: "8"},
	})
	assert.Len(t, rows, 1)
	assert.Len(t, errs, 1)
}

// =============================================================================
// ERROR MESSAGE CAPPING
// =============================================================================

func TestFormatErrors_CapsAtTenPlusRemainder(t *testing.T) {
	var errs []importer.RowError
	for i := 0; i < 14; i++ {
		errs = append(errs, importer.RowError{Row: i + 2, Message: fmt.Sprintf("problem %d", i)})
	}

	msg := importer.FormatErrors(errs)
	assert.Contains(t, msg, "Row 2: problem 0")
	assert.Contains(t, msg, "Row 11: problem 9")
	assert.NotContains(t, msg, "problem 10")
	assert.Contains(t, msg, "... and 4 more")
}

func TestFormatErrors_ShortListIsUncapped(t *testing.T) {
	msg := importer.FormatErrors([]importer.RowError{
		{Row: 2, Message: "first"},
		{Row: 3, Message: "second"},
	})
	assert.Equal(t, "Row 2: first; Row 3: second", msg)
}
