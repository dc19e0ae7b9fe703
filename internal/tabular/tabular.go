// Package tabular reads spreadsheet uploads and writes template-shaped
// workbooks for the header-mapping job.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// Table is a header row plus data rows, each padded to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the values of the named column, or nil when absent.
func (t *Table) Column(header string) []string {
	for i, h := range t.Headers {
		if h == header {
			out := make([]string, len(t.Rows))
			for r, row := range t.Rows {
				out[r] = row[i]
			}
			return out
		}
	}
	return nil
}

// SupportedExtension reports whether key names a readable sheet.
func SupportedExtension(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Read parses data according to the extension of name.
func Read(name string, data []byte) (*Table, error) {
	ext := strings.ToLower(path.Ext(name))
	var (
		records [][]string
		err     error
	)
	switch ext {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("%w %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return newTable(records), nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// newTable takes the first record as headers. Blank headers become
// "Unnamed: <index>" and repeated headers get ".1", ".2" suffixes.
func newTable(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}
	headers := make([]string, len(records[0]))
	seen := make(map[string]int)
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n+1)
		} else {
			seen[h] = 0
		}
		headers[i] = h
	}

	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(headers))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX renders t as a single-sheet workbook with a header row.
func WriteXLSX(t *Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	if err := writeRow(f, sheet, 1, t.Headers); err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}
