/*
validate.go - Structure and row validation for uploaded payroll files

PURPOSE:
  Everything that can reject an upload before any line is created. Errors
  are collected, not short-circuited, so the user sees all problems at once;
  the final message is capped to the first 10 plus a remainder count.
*/
package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RowError is one validation finding. Row 0 means the file's structure
// itself is invalid.
type RowError struct {
	Row     int
	Message string
}

func (e RowError) String() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

// maxReportedErrors caps the aggregated batch error message.
const maxReportedErrors = 10

// FormatErrors renders findings as one batch error string, capped to the
// first maxReportedErrors plus a count of the remainder.
func FormatErrors(errs []RowError) string {
	parts := make([]string, 0, maxReportedErrors+1)
	for i, e := range errs {
		if i == maxReportedErrors {
			parts = append(parts, fmt.Sprintf("... and %d more", len(errs)-maxReportedErrors))
			break
		}
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

// Row is a validated, parsed upload row ready for line creation.
type Row struct {
	Number       int
	Date         time.Time
	WorkerBadge  string
	ActivityName string
	Quantity     decimal.Decimal
}

// Dates come in as ISO; XLSX sometimes renders date cells in its default
// short format instead.
var dateLayouts = []string{"2006-01-02", "01-02-06", "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Validator checks upload rows against the known reference data.
type Validator struct {
	WorkerBadges  map[string]bool
	ActivityNames map[string]bool
}

// CheckStructure verifies the required columns are present. A failure here
// is terminal for the whole file.
func CheckStructure(headers []string) []RowError {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return []RowError{{Row: 0, Message: "missing required columns: " + strings.Join(missing, ", ")}}
	}
	return nil
}

// ValidateRows checks every row and parses the clean ones. Any finding
// aborts the import, but all rows are still examined so the user gets a
// complete picture.
func (v *Validator) ValidateRows(raws []RawRow) ([]Row, []RowError) {
	var rows []Row
	var errs []RowError

	for _, raw := range raws {
		if raw.Date == "" || raw.Worker == "" || raw.Activity == "" || raw.Quantity == "" {
			errs = append(errs, RowError{Row: raw.Number, Message: "one of the required fields is blank"})
			continue
		}

		date, err := parseDate(raw.Date)
		if err != nil {
			errs = append(errs, RowError{Row: raw.Number, Message: err.Error()})
			continue
		}
		qty, err := decimal.NewFromString(raw.Quantity)
		if err != nil {
			errs = append(errs, RowError{Row: raw.Number, Message: fmt.Sprintf("invalid quantity %q", raw.Quantity)})
			continue
		}

		rowOK := true
		if !v.WorkerBadges[raw.Worker] {
			errs = append(errs, RowError{Row: raw.Number, Message: fmt.Sprintf("invalid field worker: %s", raw.Worker)})
			rowOK = false
		}
		if !v.ActivityNames[raw.Activity] {
			errs = append(errs, RowError{Row: raw.Number, Message: fmt.Sprintf("invalid activity: %s", raw.Activity)})
			rowOK = false
		}
		if !rowOK {
			continue
		}

		rows = append(rows, Row{
			Number:       raw.Number,
			Date:         date,
			WorkerBadge:  raw.Worker,
			ActivityName: raw.Activity,
			Quantity:     qty,
		})
	}
	return rows, errs
}
