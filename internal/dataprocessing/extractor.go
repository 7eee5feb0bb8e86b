package dataprocessing

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ansetl/internal/files"
	"ansetl/pkg/contracts/domain"
)

// Canonical accounting column names after normalization.
const (
	colContaContabil = "CD_CONTA_CONTABIL"
	colDescricao     = "DESCRICAO"
	colSaldoFinal    = "VL_SALDO_FINAL"
)

// accountingAliases renames the known header variants of the quarterly
// filings to their canonical names. Applied after normalizeHeader, so keys
// are already upper-cased with accents folded.
var accountingAliases = map[string]string{
	"CD_CONTA":    colContaContabil,
	"SALDO_FINAL": colSaldoFinal,
	"REG_ANS":     colRegistroANS,
}

// requiredAccountingColumns must all be present for an archive member to
// contribute rows; members missing any of them are skipped silently.
var requiredAccountingColumns = []string{
	colRegistroANS,
	colContaContabil,
	colDescricao,
	colSaldoFinal,
}

// normalizeHeader guards against the encoding drift seen in the filings:
// headers are trimmed, upper-cased and have the two accented characters
// that actually occur in them folded to ASCII.
func normalizeHeader(h string) string {
	h = strings.ToUpper(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "Ç", "C")
	h = strings.ReplaceAll(h, "Ã", "A")
	return h
}

// isExpenseDescription applies the business filter for expense-relevant
// account lines: a case-insensitive substring match on the claim/expense
// keywords. Empty descriptions never match.
func isExpenseDescription(description string) bool {
	upper := strings.ToUpper(description)
	return strings.Contains(upper, "EVENTO") || strings.Contains(upper, "SINISTRO")
}

// ParseLocalizedNumber converts Brazilian-formatted decimal text
// ("1.234,56") to a float. Returns nil for empty or unparseable input; the
// caller keeps such rows and lets consolidation drop them.
func ParseLocalizedNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Extractor unpacks quarterly accounting archives and turns their tabular
// members into period-tagged expense rows.
type Extractor struct {
	logger    *slog.Logger
	workspace *files.Workspace
	separator string
}

// NewExtractor creates an accounting extractor using the given scratch
// workspace for archive member extraction.
func NewExtractor(logger *slog.Logger, workspace *files.Workspace, separator string) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger:    logger,
		workspace: workspace,
		separator: separator,
	}
}

// ExtractExpenses processes every accounting archive in the input list and
// accumulates the qualifying general-ledger lines across all of them.
// Archives whose period cannot be inferred are skipped with a warning; a
// failure inside one archive is logged and does not stop the others.
// Returns an empty slice when nothing qualified.
func (e *Extractor) ExtractExpenses(ctx context.Context, inputs []string) []domain.ExpenseRecord {
	var archives []string
	for _, path := range inputs {
		if files.IsAccountingArchive(path) {
			archives = append(archives, path)
		}
	}

	e.logger.InfoContext(ctx, "Processing accounting archives",
		slog.Int("archive_count", len(archives)))

	var all []domain.ExpenseRecord
	for _, archivePath := range archives {
		name := filepath.Base(archivePath)

		year, quarter := ExtractPeriod(name)
		if year == "" || quarter == "" {
			e.logger.WarnContext(ctx, "Period not identified in archive name, skipping",
				slog.String("archive", name))
			continue
		}

		records, err := e.processArchive(ctx, archivePath, year, quarter)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to process accounting archive",
				slog.String("archive", name),
				slog.String("error", err.Error()))
			continue
		}
		all = append(all, records...)
	}

	e.logger.InfoContext(ctx, "Accounting extraction finished",
		slog.Int("expense_rows", len(all)))

	return all
}

// processArchive reads one archive, extracting each tabular member into the
// workspace, parsing it and deleting it immediately afterwards so peak
// scratch usage stays bounded to one member at a time.
func (e *Extractor) processArchive(ctx context.Context, archivePath, year, quarter string) ([]domain.ExpenseRecord, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	e.logger.InfoContext(ctx, "Processing archive",
		slog.String("archive", filepath.Base(archivePath)),
		slog.String("year", year),
		slog.String("quarter", quarter))

	var records []domain.ExpenseRecord
	for _, member := range reader.File {
		if member.FileInfo().IsDir() || !files.IsTabularMember(member.Name) {
			continue
		}

		memberPath, err := e.extractMember(member)
		if err != nil {
			return nil, err
		}

		memberRecords := e.processMember(ctx, memberPath, year, quarter)
		records = append(records, memberRecords...)

		if err := os.Remove(memberPath); err != nil {
			e.logger.WarnContext(ctx, "Failed to remove extracted member",
				slog.String("member", member.Name),
				slog.String("error", err.Error()))
		}
	}

	return records, nil
}

// extractMember writes one archive member into the workspace.
func (e *Extractor) extractMember(member *zip.File) (string, error) {
	target, err := e.workspace.MemberPath(member.Name)
	if err != nil {
		return "", err
	}

	src, err := member.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open archive member %s: %w", member.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create extracted file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to extract member %s: %w", member.Name, err)
	}

	return target, nil
}

// processMember loads one extracted member, normalizes its schema, applies
// the expense filter and numeric conversion, and tags surviving rows with
// the archive's period. Members missing required columns contribute nothing.
func (e *Extractor) processMember(ctx context.Context, path, year, quarter string) []domain.ExpenseRecord {
	table := LoadTable(e.logger, path, e.separator)
	if table == nil {
		return nil
	}

	table.NormalizeHeaders(normalizeHeader)
	table.RenameHeaders(accountingAliases)

	if !table.HasColumns(requiredAccountingColumns...) {
		e.logger.DebugContext(ctx, "Member missing required columns, skipping",
			slog.String("member", filepath.Base(path)),
			slog.Any("columns", table.Headers))
		return nil
	}

	regIdx := table.ColumnIndex(colRegistroANS)
	descIdx := table.ColumnIndex(colDescricao)
	saldoIdx := table.ColumnIndex(colSaldoFinal)

	var records []domain.ExpenseRecord
	for _, row := range table.Rows {
		if !isExpenseDescription(table.Cell(row, descIdx)) {
			continue
		}
		records = append(records, domain.ExpenseRecord{
			RegistroANS: table.Cell(row, regIdx),
			Ano:         year,
			Trimestre:   quarter,
			Saldo:       ParseLocalizedNumber(table.Cell(row, saldoIdx)),
		})
	}

	return records
}
