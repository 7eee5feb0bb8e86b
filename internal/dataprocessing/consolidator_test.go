package dataprocessing

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansetl/internal/exporter"
	"ansetl/internal/files"
	"ansetl/pkg/contracts/domain"
)

func newTestConsolidator(t *testing.T) (*Consolidator, string) {
	t.Helper()
	outDir := t.TempDir()
	workspace := files.NewWorkspace(outDir, nil)
	require.NoError(t, workspace.Reset())
	return NewConsolidator(nil, outDir, workspace, ';'), outDir
}

func readArtifact(t *testing.T, zipPath, memberName string) [][]string {
	t.Helper()
	archive, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer archive.Close()

	member, err := archive.Open(memberName)
	require.NoError(t, err)
	defer member.Close()

	reader := csv.NewReader(member)
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	require.NoError(t, err)

	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\uFEFF")
	}
	return rows
}

func TestConsolidator_EndToEnd(t *testing.T) {
	master := []domain.Operator{
		{RegistroANS: "12345", CNPJ: "11222333000181", RazaoSocial: "ACME SAUDE", Modalidade: "MEDICINA DE GRUPO", UF: "SP"},
	}
	expenses := []domain.ExpenseRecord{
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: ptr(500.0)},
	}

	consolidator, outDir := newTestConsolidator(t)
	require.NoError(t, consolidator.Run(context.Background(), expenses, master))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.ConsolidatedArchiveName),
		exporter.ConsolidatedCSVName)

	require.Len(t, rows, 2)
	assert.Equal(t, consolidatedHeaders, rows[0])

	row := rows[1]
	assert.Equal(t, "11222333000181", row[0])
	assert.Equal(t, "ACME SAUDE", row[1])
	assert.Equal(t, "12345", row[2])
	assert.Equal(t, "MEDICINA DE GRUPO", row[3])
	assert.Equal(t, "SP", row[4])
	assert.Equal(t, "1", row[5])
	assert.Equal(t, "2024", row[6])
	assert.Equal(t, "500", row[7])
	assert.Equal(t, "true", row[8])  // CNPJ_Valido
	assert.Equal(t, "true", row[11]) // Registro_Conforme

	// The intermediate CSV is deleted after packaging.
	_, err := os.Stat(filepath.Join(outDir, exporter.ConsolidatedCSVName))
	assert.True(t, os.IsNotExist(err))

	// The scratch workspace is purged at successful completion.
	_, err = os.Stat(filepath.Join(outDir, "_temp_extraction"))
	assert.True(t, os.IsNotExist(err))
}

func TestConsolidator_LeftJoinFallback(t *testing.T) {
	master := []domain.Operator{
		{RegistroANS: "12345", CNPJ: "11222333000181", RazaoSocial: "ACME SAUDE", Modalidade: "MEDICINA DE GRUPO", UF: "SP"},
	}
	expenses := []domain.ExpenseRecord{
		{RegistroANS: "99999", Ano: "2024", Trimestre: "2", Saldo: ptr(42.0)},
	}

	consolidator, outDir := newTestConsolidator(t)
	require.NoError(t, consolidator.Run(context.Background(), expenses, master))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.ConsolidatedArchiveName),
		exporter.ConsolidatedCSVName)

	require.Len(t, rows, 2)
	row := rows[1]
	assert.Equal(t, "NAO_ENCONTRADO", row[0])
	assert.Equal(t, "OPERADORA_NAO_IDENTIFICADA", row[1])
	assert.Equal(t, "99999", row[2])
	assert.Equal(t, "DESCONHECIDA", row[3])
	assert.Equal(t, "XX", row[4])
	assert.Equal(t, "false", row[8])  // CNPJ is a sentinel, not valid
	assert.Equal(t, "false", row[11]) // hence not conformant
}

func TestConsolidator_DropsNullAndZeroBalances(t *testing.T) {
	master := []domain.Operator{
		{RegistroANS: "12345", CNPJ: "11222333000181", RazaoSocial: "ACME SAUDE", Modalidade: "MG", UF: "SP"},
	}
	expenses := []domain.ExpenseRecord{
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: nil},
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: ptr(0.0)},
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: ptr(10.0)},
	}

	consolidator, outDir := newTestConsolidator(t)
	require.NoError(t, consolidator.Run(context.Background(), expenses, master))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.ConsolidatedArchiveName),
		exporter.ConsolidatedCSVName)

	require.Len(t, rows, 2)
	assert.Equal(t, "10", rows[1][7])
}

func TestConsolidator_GroupsSubAccounts(t *testing.T) {
	master := []domain.Operator{
		{RegistroANS: "12345", CNPJ: "11222333000181", RazaoSocial: "ACME SAUDE", Modalidade: "MG", UF: "SP"},
	}
	expenses := []domain.ExpenseRecord{
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: ptr(100.5)},
		{RegistroANS: " 12345 ", Ano: "2024", Trimestre: "1", Saldo: ptr(200.25)},
		{RegistroANS: "12345", Ano: "2024", Trimestre: "2", Saldo: ptr(50.0)},
	}

	consolidator, outDir := newTestConsolidator(t)
	require.NoError(t, consolidator.Run(context.Background(), expenses, master))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.ConsolidatedArchiveName),
		exporter.ConsolidatedCSVName)

	require.Len(t, rows, 3)

	// Grouping keys are unique across output rows.
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		key := strings.Join(row[:7], "|")
		assert.False(t, seen[key], "duplicate group key %s", key)
		seen[key] = true
	}

	// Sorted by year, quarter, name; the Q1 sub-accounts collapse to one sum.
	assert.Equal(t, "1", rows[1][5])
	assert.Equal(t, "300.75", rows[1][7])
	assert.Equal(t, "2", rows[2][5])
	assert.Equal(t, "50", rows[2][7])
}

func TestConsolidator_EmptyInputsProduceNoOutput(t *testing.T) {
	tests := []struct {
		name     string
		expenses []domain.ExpenseRecord
		master   []domain.Operator
	}{
		{name: "no expenses", expenses: nil, master: []domain.Operator{{RegistroANS: "1"}}},
		{name: "no master", expenses: []domain.ExpenseRecord{{RegistroANS: "1"}}, master: nil},
		{name: "both empty", expenses: nil, master: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consolidator, outDir := newTestConsolidator(t)
			require.NoError(t, consolidator.Run(context.Background(), tt.expenses, tt.master))

			_, err := os.Stat(filepath.Join(outDir, exporter.ConsolidatedArchiveName))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestConsolidator_WritesAggregateArtifact(t *testing.T) {
	master := []domain.Operator{
		{RegistroANS: "12345", CNPJ: "11222333000181", RazaoSocial: "ACME SAUDE", Modalidade: "MG", UF: "SP"},
	}
	expenses := []domain.ExpenseRecord{
		{RegistroANS: "12345", Ano: "2024", Trimestre: "1", Saldo: ptr(100.0)},
		{RegistroANS: "12345", Ano: "2024", Trimestre: "2", Saldo: ptr(200.0)},
	}

	consolidator, outDir := newTestConsolidator(t)
	require.NoError(t, consolidator.Run(context.Background(), expenses, master))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.AggregateArchiveName),
		exporter.AggregateCSVName)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"RazaoSocial", "UF", "ValorTotal", "MediaTrimestral", "DesvioPadrao"}, rows[0])
	assert.Equal(t, "ACME SAUDE", rows[1][0])
	assert.Equal(t, "SP", rows[1][1])
	assert.Equal(t, "300", rows[1][2])
	assert.Equal(t, "150", rows[1][3])

	// The uncompressed intermediate is removed.
	_, err := os.Stat(filepath.Join(outDir, exporter.AggregateCSVName))
	assert.True(t, os.IsNotExist(err))
}

func TestPipeline_RunEndToEnd(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	registry := writeRegistryFile(t, rawDir, "cadop_ativas.csv",
		"REGISTRO_ANS;CNPJ;RAZAO_SOCIAL;MODALIDADE;UF\n"+
			"12345;11222333000181;ACME SAUDE;MEDICINA DE GRUPO;SP\n")
	archive := writeArchive(t, rawDir, "1T2024.zip", map[string]string{
		"demonstracoes.csv": "REG_ANS;CD_CONTA;DESCRIÇÃO;SALDO_FINAL\n" +
			"12345;41111;EVENTOS/SINISTROS CONHECIDOS;500,00\n",
	})

	pipeline := NewPipeline(nil, []string{registry, archive}, outDir, ";")
	require.NoError(t, pipeline.Run(context.Background()))

	rows := readArtifact(t,
		filepath.Join(outDir, exporter.ConsolidatedArchiveName),
		exporter.ConsolidatedCSVName)

	require.Len(t, rows, 2)
	row := rows[1]
	assert.Equal(t, "11222333000181", row[0])
	assert.Equal(t, "ACME SAUDE", row[1])
	assert.Equal(t, "1", row[5])
	assert.Equal(t, "2024", row[6])
	assert.Equal(t, "500", row[7])
	assert.Equal(t, "true", row[8])
	assert.Equal(t, "true", row[11])
}
