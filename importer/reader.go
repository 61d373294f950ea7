/*
Package importer turns uploaded spreadsheets into calculated payroll lines.

PURPOSE:
  Bulk imports run as a chain of independently retryable queue stages:

    ingest -> create lines -> inline -> day -> week -> finalize

  Each stage is a pure overwrite keyed by the batch id, so a retry of any
  stage converges to the same result. A structural or row error anywhere in
  ingest aborts the chain and parks the batch in "error" with a capped,
  human-readable message.

THIS FILE (reader.go):
  Reading and normalizing the uploaded file. XLSX goes through excelize,
  CSV through encoding/csv. Headers are trimmed and lowercased, cells
  trimmed, exact duplicate rows dropped.

SEE ALSO:
  - validate.go: structure and row validation, error message capping
  - pipeline.go: the staged chain
*/
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Required spreadsheet columns (after header normalization).
const (
	colDate     = "date"
	colWorker   = "field_worker"
	colActivity = "activity"
	colQuantity = "quantity"
)

var requiredColumns = []string{colDate, colWorker, colActivity, colQuantity}

// RawRow is one spreadsheet row before validation. Number is the row's
// position in the file, header row counted as 1.
type RawRow struct {
	Number   int
	Date     string
	Worker   string
	Activity string
	Quantity string
}

// ReadFile reads an uploaded file into normalized header and row form.
// The extension picks the reader: .xlsx/.xlsm through excelize, anything
// else as CSV.
func ReadFile(path string) ([]string, []RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	default:
		return readCSV(path)
	}
}

func readXLSX(path string) ([]string, []RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return normalize(rows)
}

func readCSV(path string) ([]string, []RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are a validation problem, not a parse error

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return normalize(rows)
}

// normalize lowercases and trims headers, trims cells, maps cells onto the
// required columns by header position and drops exact duplicate rows.
func normalize(rows [][]string) ([]string, []RawRow, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("file is empty")
	}

	headers := make([]string, len(rows[0]))
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		headers[i] = h
		if _, taken := index[h]; !taken {
			index[h] = i
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	seen := make(map[string]bool)
	var out []RawRow
	for n, row := range rows[1:] {
		raw := RawRow{
			Number:   n + 2, // header is row 1
			Date:     cell(row, colDate),
			Worker:   cell(row, colWorker),
			Activity: cell(row, colActivity),
			Quantity: cell(row, colQuantity),
		}
		key := raw.Date + "\x00" + raw.Worker + "\x00" + raw.Activity + "\x00" + raw.Quantity
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, raw)
	}
	return headers, out, nil
}
