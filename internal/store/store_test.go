package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansetl/internal/exporter"
)

var consolidatedHeaders = []string{
	"CNPJ", "RazaoSocial", "RegistroANS", "Modalidade", "UF",
	"Trimestre", "Ano", "ValorDespesas",
	"CNPJ_Valido", "RazaoSocial_Valida", "Valor_Valido", "Registro_Conforme",
}

var aggregateHeaders = []string{"RazaoSocial", "UF", "ValorTotal", "MediaTrimestral", "DesvioPadrao"}

// writeArtifacts builds both export archives in dir the same way the
// pipeline does.
func writeArtifacts(t *testing.T, dir string, consolidated, aggregate [][]string) {
	t.Helper()
	writer := exporter.NewCSVWriter(nil, ';')

	csvPath := filepath.Join(dir, exporter.ConsolidatedCSVName)
	require.NoError(t, writer.WriteQuoteAll(csvPath, consolidatedHeaders, consolidated))
	require.NoError(t, exporter.ZipSingleFile(
		filepath.Join(dir, exporter.ConsolidatedArchiveName), csvPath, exporter.ConsolidatedCSVName))

	csvPath = filepath.Join(dir, exporter.AggregateCSVName)
	require.NoError(t, writer.WriteLocalized(csvPath, aggregateHeaders, aggregate))
	require.NoError(t, exporter.ZipSingleFile(
		filepath.Join(dir, exporter.AggregateArchiveName), csvPath, exporter.AggregateCSVName))
}

func sampleArtifacts(t *testing.T, dir string) {
	t.Helper()
	writeArtifacts(t, dir,
		[][]string{
			{"11222333000181", "ACME SAUDE", "12345", "Medicina de Grupo", "SP", "1", "2024", "500", "true", "true", "true", "true"},
			{"11222333000181", "ACME SAUDE", "12345", "Medicina de Grupo", "SP", "2", "2024", "300.75", "true", "true", "true", "true"},
			{"NAO_ENCONTRADO", "OPERADORA_NAO_IDENTIFICADA", "99999", "DESCONHECIDA", "XX", "1", "2024", "42", "false", "false", "true", "false"},
		},
		[][]string{
			{"ACME SAUDE", "SP", "800,75", "400,375", "140,9"},
			{"OPERADORA_NAO_IDENTIFICADA", "XX", "42", "42", "0"},
		})
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	sampleArtifacts(t, dir)

	s := New(dir, nil)
	require.NoError(t, s.Load(context.Background()))

	expenses := s.Expenses()
	require.Len(t, expenses, 3)
	assert.Equal(t, "ACME SAUDE", expenses[0].RazaoSocial)
	assert.Equal(t, 500.0, expenses[0].ValorDespesas)
	assert.True(t, expenses[0].CNPJValido)
	assert.Equal(t, 300.75, expenses[1].ValorDespesas)
	assert.False(t, expenses[2].CNPJValido)

	// Operators are unique by CNPJ, sorted by legal name.
	operators := s.Operators()
	require.Len(t, operators, 2)
	assert.Equal(t, "ACME SAUDE", operators[0].RazaoSocial)
	assert.Equal(t, "OPERADORA_NAO_IDENTIFICADA", operators[1].RazaoSocial)

	aggregates := s.Aggregates()
	require.Len(t, aggregates, 2)
	assert.Equal(t, 800.75, aggregates[0].ValorTotal)
	assert.Equal(t, 400.375, aggregates[0].MediaTrimestral)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalOperadoras)
	assert.InDelta(t, 842.75, stats.TotalDespesas, 1e-9)
	assert.Equal(t, 800.75, stats.PorUF["SP"])
	assert.Equal(t, 42.0, stats.PorUF["XX"])
	require.Len(t, stats.TopOperadoras, 2)
	assert.Equal(t, "ACME SAUDE", stats.TopOperadoras[0].RazaoSocial)
}

func TestStore_LoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	sampleArtifacts(t, dir)

	s := New(dir, nil)
	require.NoError(t, s.Load(context.Background()))

	// Removing the artifacts does not disturb an already-loaded store.
	require.NoError(t, os.Remove(filepath.Join(dir, exporter.ConsolidatedArchiveName)))
	require.NoError(t, os.Remove(filepath.Join(dir, exporter.AggregateArchiveName)))

	require.NoError(t, s.Load(context.Background()))
	assert.Len(t, s.Expenses(), 3)
}

func TestStore_ConcurrentLoad(t *testing.T) {
	dir := t.TempDir()
	sampleArtifacts(t, dir)

	s := New(dir, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Load(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, s.Expenses(), 3)
}

func TestStore_ReloadPicksUpNewArtifacts(t *testing.T) {
	dir := t.TempDir()
	sampleArtifacts(t, dir)

	s := New(dir, nil)
	require.NoError(t, s.Load(context.Background()))
	require.Len(t, s.Expenses(), 3)

	writeArtifacts(t, dir,
		[][]string{
			{"11222333000181", "ACME SAUDE", "12345", "Medicina de Grupo", "SP", "3", "2024", "999", "true", "true", "true", "true"},
		},
		[][]string{
			{"ACME SAUDE", "SP", "999", "999", "0"},
		})

	require.NoError(t, s.Reload(context.Background()))

	expenses := s.Expenses()
	require.Len(t, expenses, 1)
	assert.Equal(t, 999.0, expenses[0].ValorDespesas)
	assert.Equal(t, 999.0, s.Stats().TotalDespesas)
}

func TestStore_LoadFailsWhenArtifactsMissing(t *testing.T) {
	s := New(t.TempDir(), nil)

	err := s.Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "consolidated artifact")
}

func TestParseLocalizedOrZero(t *testing.T) {
	assert.Equal(t, 1234.56, parseLocalizedOrZero("1.234,56"))
	assert.Equal(t, 42.0, parseLocalizedOrZero("42"))
	assert.Equal(t, 0.0, parseLocalizedOrZero("abc"))
	assert.Equal(t, 0.0, parseLocalizedOrZero(""))
}
