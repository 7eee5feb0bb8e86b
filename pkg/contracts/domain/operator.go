package domain

// Operator is one row of the deduplicated operator master table built from
// the regulator's registry (cadop) files. RegistroANS is unique across the
// table and is the join key against accounting data.
type Operator struct {
	RegistroANS string `json:"registro_ans"`
	CNPJ        string `json:"cnpj"`
	RazaoSocial string `json:"razao_social"`
	Modalidade  string `json:"modalidade"`
	UF          string `json:"uf"`
}
