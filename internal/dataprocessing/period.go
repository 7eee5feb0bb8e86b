package dataprocessing

import "regexp"

var (
	yearPattern    = regexp.MustCompile(`20\d{2}`)
	quarterPattern = regexp.MustCompile(`(?i)([1-4])(?:t|trim)`)
)

// ExtractPeriod infers the fiscal period from a source file name. The year
// is the first four-digit 20xx sequence anywhere in the name; the quarter
// is a digit 1-4 immediately followed by a quarter marker ("t" or "trim",
// any case). Either value is returned empty when absent; files without a
// determinable period are skipped by callers, never treated as fatal.
//
// Examples: "Relatorio_1T2025.zip" -> ("2025", "1"),
// "demonstracao_2024_3trim.csv" -> ("2024", "3").
func ExtractPeriod(filename string) (year, quarter string) {
	if m := yearPattern.FindString(filename); m != "" {
		year = m
	}
	if m := quarterPattern.FindStringSubmatch(filename); m != nil {
		quarter = m[1]
	}
	return year, quarter
}
