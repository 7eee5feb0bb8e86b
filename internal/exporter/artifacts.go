package exporter

// Names of the final artifacts, fixed by contract with the downstream
// query layer.
const (
	ConsolidatedCSVName     = "consolidado_despesas.csv"
	ConsolidatedArchiveName = "consolidado_despesas.zip"
	AggregateCSVName        = "despesas_agregadas.csv"
	AggregateArchiveName    = "Teste_JoseGustavo.zip"
)
