// Package store holds the pipeline's export artifacts in memory for the
// read side of the system. Data is loaded once per process and reused; an
// explicit Reload discards and reloads it. Concurrent loads are collapsed
// so the zip artifacts are never parsed twice in parallel.
package store

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"ansetl/internal/exporter"
	"ansetl/pkg/contracts/domain"
)

// Stats are the pre-computed global figures served alongside the tables.
type Stats struct {
	TotalDespesas   float64               `json:"total_despesas"`
	TotalOperadoras int                   `json:"total_operadoras"`
	TopOperadoras   []domain.AggregateRow `json:"top_operadoras"`
	PorUF           map[string]float64    `json:"por_uf"`
}

// Store is the process-wide in-memory holder for the consolidated and
// aggregated artifacts.
type Store struct {
	logger       *slog.Logger
	processedDir string

	group singleflight.Group

	mu         sync.RWMutex
	loaded     bool
	expenses   []domain.ConsolidatedExpense
	operators  []domain.Operator
	aggregates []domain.AggregateRow
	stats      Stats
}

// New creates a store reading artifacts from processedDir.
func New(processedDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:       logger,
		processedDir: processedDir,
	}
}

// Load reads both artifacts into memory. It is idempotent: once loaded,
// subsequent calls return immediately. Concurrent callers share a single
// underlying load.
func (s *Store) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.load(ctx)
}

// Reload discards the held tables and loads fresh copies.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	_, err, _ := s.group.Do("load", func() (interface{}, error) {
		expenses, operators, err := s.loadConsolidated(ctx)
		if err != nil {
			return nil, err
		}
		aggregates, stats, err := s.loadAggregate(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.expenses = expenses
		s.operators = operators
		s.aggregates = aggregates
		s.stats = stats
		s.loaded = true
		s.mu.Unlock()

		s.logger.InfoContext(ctx, "Artifact store loaded",
			slog.Int("expense_rows", len(expenses)),
			slog.Int("operators", len(operators)),
			slog.Int("aggregate_rows", len(aggregates)))
		return nil, nil
	})
	return err
}

// Expenses returns the consolidated fact table.
func (s *Store) Expenses() []domain.ConsolidatedExpense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expenses
}

// Operators returns the distinct operators (unique by CNPJ) present in the
// fact table, sorted by legal name.
func (s *Store) Operators() []domain.Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators
}

// Aggregates returns the analytic summary table.
func (s *Store) Aggregates() []domain.AggregateRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregates
}

// Stats returns the pre-computed global statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// loadConsolidated parses the consolidated fact archive.
func (s *Store) loadConsolidated(ctx context.Context) ([]domain.ConsolidatedExpense, []domain.Operator, error) {
	path := filepath.Join(s.processedDir, exporter.ConsolidatedArchiveName)
	rows, err := readZippedCSV(path, exporter.ConsolidatedCSVName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load consolidated artifact: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("consolidated artifact %s is empty", path)
	}

	col := columnIndex(rows[0])
	expenses := make([]domain.ConsolidatedExpense, 0, len(rows)-1)
	for _, row := range rows[1:] {
		expenses = append(expenses, domain.ConsolidatedExpense{
			CNPJ:              cell(row, col["CNPJ"]),
			RazaoSocial:       cell(row, col["RazaoSocial"]),
			RegistroANS:       cell(row, col["RegistroANS"]),
			Modalidade:        cell(row, col["Modalidade"]),
			UF:                cell(row, col["UF"]),
			Trimestre:         cell(row, col["Trimestre"]),
			Ano:               cell(row, col["Ano"]),
			ValorDespesas:     parseFloatOrZero(cell(row, col["ValorDespesas"])),
			CNPJValido:        parseBool(cell(row, col["CNPJ_Valido"])),
			RazaoSocialValida: parseBool(cell(row, col["RazaoSocial_Valida"])),
			ValorValido:       parseBool(cell(row, col["Valor_Valido"])),
			RegistroConforme:  parseBool(cell(row, col["Registro_Conforme"])),
		})
	}

	operators := distinctOperators(expenses)
	return expenses, operators, nil
}

// loadAggregate parses the aggregate archive and derives the global stats.
func (s *Store) loadAggregate(ctx context.Context) ([]domain.AggregateRow, Stats, error) {
	path := filepath.Join(s.processedDir, exporter.AggregateArchiveName)
	rows, err := readZippedCSV(path, exporter.AggregateCSVName)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to load aggregate artifact: %w", err)
	}
	if len(rows) == 0 {
		return nil, Stats{}, fmt.Errorf("aggregate artifact %s is empty", path)
	}

	col := columnIndex(rows[0])
	for _, name := range []string{"RazaoSocial", "UF", "ValorTotal", "MediaTrimestral", "DesvioPadrao"} {
		if _, ok := col[name]; !ok {
			return nil, Stats{}, fmt.Errorf("aggregate artifact missing required column %s", name)
		}
	}

	aggregates := make([]domain.AggregateRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		aggregates = append(aggregates, domain.AggregateRow{
			RazaoSocial:     cell(row, col["RazaoSocial"]),
			UF:              cell(row, col["UF"]),
			ValorTotal:      parseLocalizedOrZero(cell(row, col["ValorTotal"])),
			MediaTrimestral: parseLocalizedOrZero(cell(row, col["MediaTrimestral"])),
			DesvioPadrao:    parseLocalizedOrZero(cell(row, col["DesvioPadrao"])),
		})
	}

	stats := Stats{
		TotalOperadoras: len(aggregates),
		PorUF:           make(map[string]float64),
	}
	for _, row := range aggregates {
		stats.TotalDespesas += row.ValorTotal
		stats.PorUF[row.UF] += row.ValorTotal
	}

	top := make([]domain.AggregateRow, len(aggregates))
	copy(top, aggregates)
	sort.SliceStable(top, func(i, j int) bool { return top[i].ValorTotal > top[j].ValorTotal })
	if len(top) > 10 {
		top = top[:10]
	}
	stats.TopOperadoras = top

	return aggregates, stats, nil
}

// distinctOperators extracts the operator dimension from the fact table,
// unique by CNPJ (first occurrence wins), sorted by legal name.
func distinctOperators(expenses []domain.ConsolidatedExpense) []domain.Operator {
	seen := make(map[string]bool)
	var operators []domain.Operator
	for _, row := range expenses {
		if seen[row.CNPJ] {
			continue
		}
		seen[row.CNPJ] = true
		operators = append(operators, domain.Operator{
			RegistroANS: row.RegistroANS,
			CNPJ:        row.CNPJ,
			RazaoSocial: row.RazaoSocial,
			Modalidade:  row.Modalidade,
			UF:          row.UF,
		})
	}
	sort.SliceStable(operators, func(i, j int) bool {
		return operators[i].RazaoSocial < operators[j].RazaoSocial
	})
	return operators
}

// readZippedCSV opens the single CSV member of an artifact archive and
// returns its rows, header included. A UTF-8 BOM on the first header is
// stripped.
func readZippedCSV(zipPath, memberName string) ([][]string, error) {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer archive.Close()

	member, err := archive.Open(memberName)
	if err != nil {
		return nil, fmt.Errorf("failed to open member %s: %w", memberName, err)
	}
	defer member.Close()

	reader := csv.NewReader(member)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", memberName, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\uFEFF")
	}
	return rows, nil
}

func columnIndex(headers []string) map[string]int {
	col := make(map[string]int, len(headers))
	for i, header := range headers {
		col[header] = i
	}
	return col
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseFloatOrZero coerces period-decimal text to a float, 0.0 on failure.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0.0
	}
	return v
}

// parseLocalizedOrZero coerces comma-decimal text to a float, 0.0 on
// failure.
func parseLocalizedOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return parseFloatOrZero(s)
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return v
}
