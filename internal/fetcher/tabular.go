package fetcher

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadCSV reads a whole CSV stream and returns the header row and data rows.
// Fields are trimmed; rows may have variable widths (short rows are padded
// with empty strings by RecordsFromTable).
func ReadCSV(r io.Reader) (header []string, rows [][]string, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "fetcher: read csv row")
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if first {
			header = record
			first = false
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, nil, eris.New("fetcher: csv has no header row")
	}
	return header, rows, nil
}

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads a spreadsheet and returns the header row and data rows
// from the selected sheet.
func ReadXLSX(path string, opts XLSXOptions) (header []string, rows [][]string, err error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "fetcher: open xlsx %s", path)
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}

	for i, row := range sheet.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			cells = append(cells, strings.TrimSpace(c.String()))
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, nil, eris.Errorf("fetcher: xlsx %s has no header row", path)
	}
	return header, rows, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: xlsx sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: xlsx sheet index %d out of range", opts.SheetIndex)
	}
	return f.Sheets[opts.SheetIndex], nil
}

// RecordsFromTable converts header + rows into field maps, coercing numeric
// cells. Empty cells become absent fields, matching the content hasher's
// null-means-absent rule.
func RecordsFromTable(header []string, rows [][]string) []map[string]any {
	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if col == "" || i >= len(row) || row[i] == "" {
				continue
			}
			rec[col] = coerce(row[i])
		}
		records = append(records, rec)
	}
	return records
}

// coerce turns numeric-looking strings into float64 so uploaded values
// compare cleanly against JSON-round-tripped database values.
func coerce(s string) any {
	// Leading zeros mean a code (postal codes, lot numbers), not a number.
	if len(s) > 1 && s[0] == '0' && !strings.HasPrefix(s, "0.") {
		return s
	}
	if n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return n
	}
	return s
}
