package dataprocessing

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"ansetl/internal/files"
	"ansetl/pkg/contracts/domain"
)

// Canonical column names shared by the registry and accounting stages.
const (
	colRegistroANS = "RegistroANS"
	colCNPJ        = "CNPJ"
	colRazaoSocial = "RazaoSocial"
	colModalidade  = "Modalidade"
	colUF          = "UF"
)

// registryAliases maps the historical header variants seen across registry
// file generations to their canonical names. Schema drift is handled here
// rather than with scattered conditionals.
var registryAliases = map[string]string{
	"REGISTRO_ANS":       colRegistroANS,
	"REGISTRO_OPERADORA": colRegistroANS,
	"CD_NOTA":            colRegistroANS,
	"CNPJ":               colCNPJ,
	"RAZAO_SOCIAL":       colRazaoSocial,
	"NO_RAZAO_SOCIAL":    colRazaoSocial,
	"NM_RAZAO_SOCIAL":    colRazaoSocial,
	"MODALIDADE":         colModalidade,
	"UF":                 colUF,
}

// BuildOperatorMaster unifies every registry (cadop) source file into one
// deduplicated operator master table. Files are concatenated in input
// order; the first row seen for each RegistroANS wins. A master that ends
// up without a registry-code column cannot enrich anything, so it is
// reported and returned empty rather than failing the run.
func BuildOperatorMaster(ctx context.Context, logger *slog.Logger, inputs []string, sep string) []domain.Operator {
	if logger == nil {
		logger = slog.Default()
	}

	var registryFiles []string
	for _, path := range inputs {
		if files.IsRegistryFile(path) {
			registryFiles = append(registryFiles, path)
		}
	}

	logger.InfoContext(ctx, "Building operator master table",
		slog.Int("registry_files", len(registryFiles)))

	var tables []*Table
	for _, path := range registryFiles {
		table := LoadTable(logger, path, sep)
		if table == nil {
			continue
		}
		table.NormalizeHeaders(func(h string) string {
			return strings.ToUpper(strings.TrimSpace(h))
		})
		table.RenameHeaders(registryAliases)
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		logger.ErrorContext(ctx, "No readable registry (cadop) files found")
		return nil
	}

	keyed := false
	for _, table := range tables {
		if table.ColumnIndex(colRegistroANS) != -1 {
			keyed = true
			break
		}
	}
	if !keyed {
		logger.ErrorContext(ctx, "Registry key column missing after aliasing",
			slog.Any("available_columns", unionColumns(tables)))
		return nil
	}

	var master []domain.Operator
	seen := make(map[string]bool)

	for _, table := range tables {
		regIdx := table.ColumnIndex(colRegistroANS)
		if regIdx == -1 {
			logger.WarnContext(ctx, "Registry file lacks key column, skipping its rows",
				slog.Any("columns", table.Headers))
			continue
		}
		cnpjIdx := table.ColumnIndex(colCNPJ)
		nameIdx := table.ColumnIndex(colRazaoSocial)
		modIdx := table.ColumnIndex(colModalidade)
		ufIdx := table.ColumnIndex(colUF)

		for _, row := range table.Rows {
			registro := table.Cell(row, regIdx)
			if seen[registro] {
				continue
			}
			seen[registro] = true
			master = append(master, domain.Operator{
				RegistroANS: registro,
				CNPJ:        table.Cell(row, cnpjIdx),
				RazaoSocial: table.Cell(row, nameIdx),
				Modalidade:  table.Cell(row, modIdx),
				UF:          table.Cell(row, ufIdx),
			})
		}
	}

	logger.InfoContext(ctx, "Operator master table built",
		slog.Int("unique_operators", len(master)))

	return master
}

// unionColumns collects the distinct headers seen across tables, sorted,
// for the diagnostics emitted when the key column is missing.
func unionColumns(tables []*Table) []string {
	set := make(map[string]bool)
	for _, table := range tables {
		for _, header := range table.Headers {
			set[header] = true
		}
	}
	columns := make([]string, 0, len(set))
	for header := range set {
		columns = append(columns, header)
	}
	sort.Strings(columns)
	return columns
}
