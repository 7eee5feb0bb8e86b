package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ansetl/internal/exporter"
	"ansetl/internal/files"
	"ansetl/internal/validation"
	"ansetl/pkg/contracts/domain"
)

// Sentinel values filled in when an accounting row has no registry match.
// The left join preserves every financial row; these keep the unmatched
// ones identifiable downstream.
const (
	sentinelCNPJ        = "NAO_ENCONTRADO"
	sentinelRazaoSocial = "OPERADORA_NAO_IDENTIFICADA"
	sentinelModalidade  = "DESCONHECIDA"
	sentinelUF          = "XX"
)

// consolidatedHeaders is the column order of the final fact export.
var consolidatedHeaders = []string{
	"CNPJ", "RazaoSocial", "RegistroANS", "Modalidade", "UF",
	"Trimestre", "Ano", "ValorDespesas",
	"CNPJ_Valido", "RazaoSocial_Valida", "Valor_Valido", "Registro_Conforme",
}

// Consolidator joins the accounting facts to the operator master, collapses
// them to one row per entity per period, runs the quality audit and writes
// the final artifacts.
type Consolidator struct {
	logger    *slog.Logger
	outputDir string
	workspace *files.Workspace
	csv       *exporter.CSVWriter
}

// NewConsolidator creates a consolidation engine writing into outputDir.
func NewConsolidator(logger *slog.Logger, outputDir string, workspace *files.Workspace, separator rune) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		logger:    logger,
		outputDir: outputDir,
		workspace: workspace,
		csv:       exporter.NewCSVWriter(logger, separator),
	}
}

// Run executes enrichment, consolidation, validation, aggregate reporting
// and export. Empty inputs short-circuit with a warning and no output.
// Only export I/O failures surface as errors.
func (c *Consolidator) Run(ctx context.Context, expenses []domain.ExpenseRecord, master []domain.Operator) error {
	if len(expenses) == 0 || len(master) == 0 {
		c.logger.WarnContext(ctx, "Insufficient data for consolidation",
			slog.Int("expense_rows", len(expenses)),
			slog.Int("operators", len(master)))
		return nil
	}

	c.logger.InfoContext(ctx, "Starting enrichment (left join)",
		slog.Int("expense_rows", len(expenses)),
		slog.Int("operators", len(master)))

	consolidated := c.consolidate(expenses, master)

	consolidated = validation.RunQualityChecks(consolidated)
	if invalid := validation.CountNonConformant(consolidated); invalid > 0 {
		c.logger.WarnContext(ctx, "Rows flagged as non-conformant (kept with flags)",
			slog.Int("non_conformant", invalid))
	}

	if err := c.exportAggregateReport(ctx, consolidated); err != nil {
		return err
	}

	sort.SliceStable(consolidated, func(i, j int) bool {
		if consolidated[i].Ano != consolidated[j].Ano {
			return consolidated[i].Ano < consolidated[j].Ano
		}
		if consolidated[i].Trimestre != consolidated[j].Trimestre {
			return consolidated[i].Trimestre < consolidated[j].Trimestre
		}
		return consolidated[i].RazaoSocial < consolidated[j].RazaoSocial
	})

	c.logger.InfoContext(ctx, "Consolidation finished",
		slog.Int("unique_rows", len(consolidated)))

	if err := c.exportConsolidated(ctx, consolidated); err != nil {
		return err
	}

	if err := c.workspace.Purge(); err != nil {
		return fmt.Errorf("failed to purge extraction workspace: %w", err)
	}

	c.logger.InfoContext(ctx, "ETL and validation completed successfully")
	return nil
}

// groupKey is the identity tuple expenses are consolidated on.
type groupKey struct {
	CNPJ        string
	RazaoSocial string
	RegistroANS string
	Modalidade  string
	UF          string
	Trimestre   string
	Ano         string
}

// consolidate left-joins expenses to the master on the trimmed registry
// code, fills sentinel values for missing links, drops null and
// exactly-zero balances, and sums the remainder per identity tuple.
func (c *Consolidator) consolidate(expenses []domain.ExpenseRecord, master []domain.Operator) []domain.ConsolidatedExpense {
	operators := make(map[string]domain.Operator, len(master))
	for _, op := range master {
		key := strings.TrimSpace(op.RegistroANS)
		if _, exists := operators[key]; !exists {
			op.RegistroANS = key
			operators[key] = op
		}
	}

	sums := make(map[groupKey]float64)
	var order []groupKey

	for _, expense := range expenses {
		if expense.Saldo == nil || *expense.Saldo == 0 {
			continue
		}

		registro := strings.TrimSpace(expense.RegistroANS)
		key := groupKey{
			CNPJ:        sentinelCNPJ,
			RazaoSocial: sentinelRazaoSocial,
			RegistroANS: registro,
			Modalidade:  sentinelModalidade,
			UF:          sentinelUF,
			Trimestre:   expense.Trimestre,
			Ano:         expense.Ano,
		}
		if op, ok := operators[registro]; ok {
			if op.CNPJ != "" {
				key.CNPJ = op.CNPJ
			}
			if op.RazaoSocial != "" {
				key.RazaoSocial = op.RazaoSocial
			}
			if op.Modalidade != "" {
				key.Modalidade = op.Modalidade
			}
			if op.UF != "" {
				key.UF = op.UF
			}
		}

		if _, exists := sums[key]; !exists {
			order = append(order, key)
		}
		sums[key] += *expense.Saldo
	}

	consolidated := make([]domain.ConsolidatedExpense, 0, len(order))
	for _, key := range order {
		consolidated = append(consolidated, domain.ConsolidatedExpense{
			CNPJ:          key.CNPJ,
			RazaoSocial:   key.RazaoSocial,
			RegistroANS:   key.RegistroANS,
			Modalidade:    key.Modalidade,
			UF:            key.UF,
			Trimestre:     key.Trimestre,
			Ano:           key.Ano,
			ValorDespesas: sums[key],
		})
	}
	return consolidated
}

// exportAggregateReport builds the per (operator, UF) analytic summary and
// writes its artifact.
func (c *Consolidator) exportAggregateReport(ctx context.Context, consolidated []domain.ConsolidatedExpense) error {
	report := AggregationReport(consolidated)

	c.logger.InfoContext(ctx, "Generating aggregate report",
		slog.Int("groups", len(report)))

	records := make([][]string, 0, len(report))
	for _, row := range report {
		records = append(records, []string{
			row.RazaoSocial,
			row.UF,
			exporter.FormatDecimalComma(row.ValorTotal),
			exporter.FormatDecimalComma(row.MediaTrimestral),
			exporter.FormatDecimalComma(row.DesvioPadrao),
		})
	}

	csvPath := filepath.Join(c.outputDir, exporter.AggregateCSVName)
	headers := []string{"RazaoSocial", "UF", "ValorTotal", "MediaTrimestral", "DesvioPadrao"}
	if err := c.csv.WriteLocalized(csvPath, headers, records); err != nil {
		return fmt.Errorf("failed to write aggregate report: %w", err)
	}

	zipPath := filepath.Join(c.outputDir, exporter.AggregateArchiveName)
	if err := exporter.ZipSingleFile(zipPath, csvPath, exporter.AggregateCSVName); err != nil {
		return fmt.Errorf("failed to package aggregate report: %w", err)
	}

	c.logger.InfoContext(ctx, "Aggregate report written", slog.String("archive", zipPath))
	return nil
}

// exportConsolidated writes the quoted fact table and packages it.
func (c *Consolidator) exportConsolidated(ctx context.Context, consolidated []domain.ConsolidatedExpense) error {
	records := make([][]string, 0, len(consolidated))
	for _, row := range consolidated {
		records = append(records, []string{
			row.CNPJ,
			row.RazaoSocial,
			row.RegistroANS,
			row.Modalidade,
			row.UF,
			row.Trimestre,
			row.Ano,
			exporter.FormatDecimal(row.ValorDespesas),
			strconv.FormatBool(row.CNPJValido),
			strconv.FormatBool(row.RazaoSocialValida),
			strconv.FormatBool(row.ValorValido),
			strconv.FormatBool(row.RegistroConforme),
		})
	}

	csvPath := filepath.Join(c.outputDir, exporter.ConsolidatedCSVName)
	if err := c.csv.WriteQuoteAll(csvPath, consolidatedHeaders, records); err != nil {
		return fmt.Errorf("failed to write consolidated export: %w", err)
	}

	zipPath := filepath.Join(c.outputDir, exporter.ConsolidatedArchiveName)
	if err := exporter.ZipSingleFile(zipPath, csvPath, exporter.ConsolidatedCSVName); err != nil {
		return fmt.Errorf("failed to package consolidated export: %w", err)
	}

	c.logger.InfoContext(ctx, "Consolidated export written", slog.String("archive", zipPath))
	return nil
}
