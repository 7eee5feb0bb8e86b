package domain

// ExpenseRecord is one qualifying general-ledger line extracted from a
// quarterly accounting archive. Saldo is nil when the source balance could
// not be parsed; the consolidation stage drops those rows.
type ExpenseRecord struct {
	RegistroANS string   `json:"registro_ans"`
	Ano         string   `json:"ano"`
	Trimestre   string   `json:"trimestre"`
	Saldo       *float64 `json:"saldo"`
}

// ConsolidatedExpense is one row of the final fact table: expenses summed
// per operator per quarter, enriched with registry data and annotated with
// quality flags. Flags are additive; no row is ever dropped by validation.
type ConsolidatedExpense struct {
	CNPJ          string  `json:"cnpj"`
	RazaoSocial   string  `json:"razao_social"`
	RegistroANS   string  `json:"registro_ans"`
	Modalidade    string  `json:"modalidade"`
	UF            string  `json:"uf"`
	Trimestre     string  `json:"trimestre"`
	Ano           string  `json:"ano"`
	ValorDespesas float64 `json:"valor_despesas"`

	CNPJValido        bool `json:"cnpj_valido"`
	RazaoSocialValida bool `json:"razao_social_valida"`
	ValorValido       bool `json:"valor_valido"`
	RegistroConforme  bool `json:"registro_conforme"`
}

// AggregateRow summarizes expenses for one (operator name, UF) pair.
// DesvioPadrao is the sample standard deviation, 0.0 when the group has
// fewer than two observations.
type AggregateRow struct {
	RazaoSocial     string  `json:"razao_social"`
	UF              string  `json:"uf"`
	ValorTotal      float64 `json:"valor_total"`
	MediaTrimestral float64 `json:"media_trimestral"`
	DesvioPadrao    float64 `json:"desvio_padrao"`
}
