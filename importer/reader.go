package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RawRow is one spreadsheet row keyed by lower-cased header name. Values are
// raw cell strings; typing happens in the parser.
type RawRow map[string]string

// ReadRows decodes an uploaded spreadsheet into header-keyed rows. The format
// is picked by file extension: .csv or .xlsx. Empty rows are dropped.
func ReadRows(objectPath string, data []byte) ([]RawRow, error) {
	switch strings.ToLower(filepath.Ext(objectPath)) {
	case ".csv":
		return readCSVRows(data)
	case ".xlsx":
		return readXLSXRows(data)
	default:
		return nil, fmt.Errorf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(objectPath))
	}
}

func readCSVRows(data []byte) ([]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %v", err)
	}
	headers := normalizeHeaders(header)

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %v", err)
		}
		if row := recordToRow(headers, record); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func readXLSXRows(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %v", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	headers := normalizeHeaders(records[0])
	var rows []RawRow
	for _, record := range records[1:] {
		if row := recordToRow(headers, record); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func normalizeHeaders(header []string) []string {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return normalized
}

// recordToRow maps a record onto the headers; returns nil for all-empty rows.
func recordToRow(headers, record []string) RawRow {
	row := make(RawRow, len(headers))
	empty := true
	for i, h := range headers {
		if h == "" {
			continue
		}
		var v string
		if i < len(record) {
			v = strings.TrimSpace(record[i])
		}
		row[h] = v
		if v != "" {
			empty = false
		}
	}
	if empty {
		return nil
	}
	return row
}
