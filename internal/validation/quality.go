// Package validation implements the data-quality audit layer of the
// pipeline. Checks are soft: rows are annotated with conformance flags and
// never discarded, so downstream consumers always see the full table.
package validation

import (
	"strings"

	"ansetl/pkg/contracts/domain"
)

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// checkDigit computes one CNPJ check digit over digits using the Módulo 11
// rule: weighted sum mod 11, digit is 0 when the remainder is below 2 and
// 11 minus the remainder otherwise.
func checkDigit(digits string, weights []int) int {
	sum := 0
	for i, weight := range weights {
		sum += int(digits[i]-'0') * weight
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// ValidateCNPJ reports whether the 14-digit national business identifier is
// mathematically valid. Non-digit characters (mask punctuation) are
// stripped before checking; sequences of one repeated digit are rejected
// even when the checksum arithmetic would pass.
func ValidateCNPJ(cnpj string) bool {
	var digits strings.Builder
	for _, r := range cnpj {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	clean := digits.String()

	if len(clean) != 14 {
		return false
	}
	allSame := true
	for i := 1; i < len(clean); i++ {
		if clean[i] != clean[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	digit1 := checkDigit(clean[:12], cnpjWeightsFirst)
	digit2 := checkDigit(clean[:13], cnpjWeightsSecond)

	return clean[12] == byte('0'+digit1) && clean[13] == byte('0'+digit2)
}

// RunQualityChecks annotates every consolidated row with its conformance
// flags. The input is returned augmented, never filtered; an empty input
// passes through unchanged.
func RunQualityChecks(rows []domain.ConsolidatedExpense) []domain.ConsolidatedExpense {
	for i := range rows {
		rows[i].CNPJValido = ValidateCNPJ(rows[i].CNPJ)
		rows[i].RazaoSocialValida = strings.TrimSpace(rows[i].RazaoSocial) != ""
		rows[i].ValorValido = rows[i].ValorDespesas > 0
		rows[i].RegistroConforme = rows[i].CNPJValido &&
			rows[i].RazaoSocialValida &&
			rows[i].ValorValido
	}
	return rows
}

// CountNonConformant returns how many rows failed at least one quality
// check. Used by the consolidation stage for its audit warning.
func CountNonConformant(rows []domain.ConsolidatedExpense) int {
	count := 0
	for _, row := range rows {
		if !row.RegistroConforme {
			count++
		}
	}
	return count
}
