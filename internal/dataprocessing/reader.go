package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Table is an in-memory tabular file: a header row plus data rows, every
// cell kept as exact text. No type inference happens at read time so that
// identifiers keep leading zeros and full digit sequences.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, header := range t.Headers {
		if header == name {
			return i
		}
	}
	return -1
}

// Cell returns the value of the column at idx for the given row, tolerating
// short rows (ragged CSVs) by returning the empty string.
func (t *Table) Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// HasColumns reports whether every named header is present.
func (t *Table) HasColumns(names ...string) bool {
	for _, name := range names {
		if t.ColumnIndex(name) == -1 {
			return false
		}
	}
	return true
}

// NormalizeHeaders applies fn to every header in place.
func (t *Table) NormalizeHeaders(fn func(string) string) {
	for i, header := range t.Headers {
		t.Headers[i] = fn(header)
	}
}

// RenameHeaders replaces headers found in aliases with their canonical
// names. Unknown headers pass through untouched.
func (t *Table) RenameHeaders(aliases map[string]string) {
	for i, header := range t.Headers {
		if canonical, ok := aliases[header]; ok {
			t.Headers[i] = canonical
		}
	}
}

// LoadTable reads a tabular file tolerating format and encoding variance.
// Spreadsheet files go through excelize; everything else is parsed as
// delimited text, decoded as UTF-8 with a Latin-1 fallback for legacy
// exports. Failures are logged with the file's base name and surface as a
// nil table, which callers must treat as a skippable unit of work.
func LoadTable(logger *slog.Logger, path, sep string) *Table {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		table *Table
		err   error
	)
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		table, err = loadExcel(path)
	} else {
		table, err = loadDelimited(path, sep)
	}
	if err != nil {
		logger.Error("Failed to read tabular file",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()))
		return nil
	}
	return table
}

// loadExcel reads the first sheet of a spreadsheet, all cells as text.
func loadExcel(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	return &Table{Headers: rows[0], Rows: rows[1:]}, nil
}

// loadDelimited reads a separated-values file. UTF-8 input is used as-is;
// anything that fails UTF-8 validation is re-decoded as Latin-1, the
// encoding of the regulator's older exports.
func loadDelimited(path, sep string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode legacy encoding: %w", err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	if sep == "" {
		sep = ";"
	}
	reader.Comma = rune(sep[0])
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no rows")
	}

	return &Table{Headers: records[0], Rows: records[1:]}, nil
}
