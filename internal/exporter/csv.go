// Package exporter writes the pipeline's final artifacts: delimited text
// files tuned for downstream spreadsheet tools, packaged into single-file
// zip archives.
package exporter

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// utf8BOM is prepended to locale exports so spreadsheet tools pick up the
// encoding correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality for the pipeline artifacts.
type CSVWriter struct {
	logger    *slog.Logger
	separator rune
}

// NewCSVWriter creates a new CSV writer using the given field separator.
func NewCSVWriter(logger *slog.Logger, separator rune) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if separator == 0 {
		separator = ';'
	}
	return &CSVWriter{logger: logger, separator: separator}
}

// WriteQuoteAll writes a delimited file with every field quoted, headers
// included. Forced quoting keeps identifier strings (CNPJ, registry codes)
// from being reinterpreted as numbers by spreadsheet tools; encoding/csv
// only quotes when required, so the quoting is done by hand here.
func (w *CSVWriter) WriteQuoteAll(path string, headers []string, records [][]string) error {
	w.logger.Info("Writing quoted CSV file",
		slog.String("path", path),
		slog.Int("record_count", len(records)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := w.writeQuotedLine(writer, headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, record := range records {
		if err := w.writeQuotedLine(writer, record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return file.Sync()
}

// writeQuotedLine writes one row with every field wrapped in double quotes,
// doubling embedded quotes per RFC 4180.
func (w *CSVWriter) writeQuotedLine(writer *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if _, err := writer.WriteRune(w.separator); err != nil {
				return err
			}
		}
		quoted := "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
		if _, err := writer.WriteString(quoted); err != nil {
			return err
		}
	}
	return writer.WriteByte('\n')
}

// WriteLocalized writes a delimited file with a UTF-8 byte-order marker.
// Numeric fields must already be formatted by the caller (see
// FormatDecimalComma); quoting follows the standard library's minimal rules.
func (w *CSVWriter) WriteLocalized(path string, headers []string, records [][]string) error {
	w.logger.Info("Writing localized CSV file",
		slog.String("path", path),
		slog.Int("record_count", len(records)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	writer.Comma = w.separator

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return file.Sync()
}

// FormatDecimal renders a float with a period decimal separator and no
// exponent, the format of the consolidated export.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatDecimalComma renders a float in the Brazilian convention: comma
// decimal separator, no thousands grouping.
func FormatDecimalComma(v float64) string {
	return strings.ReplaceAll(FormatDecimal(v), ".", ",")
}
