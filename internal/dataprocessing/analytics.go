package dataprocessing

import (
	"math"
	"sort"

	"ansetl/pkg/contracts/domain"
)

// AggregationReport computes per (RazaoSocial, UF) summary statistics over
// the validated fact table: total, mean per period and sample standard
// deviation of the expense value. Groups with a single observation get a
// standard deviation of exactly 0.0 rather than an undefined value. The
// result is sorted descending by total.
func AggregationReport(rows []domain.ConsolidatedExpense) []domain.AggregateRow {
	type aggKey struct {
		RazaoSocial string
		UF          string
	}

	values := make(map[aggKey][]float64)
	var order []aggKey

	for _, row := range rows {
		key := aggKey{RazaoSocial: row.RazaoSocial, UF: row.UF}
		if _, exists := values[key]; !exists {
			order = append(order, key)
		}
		values[key] = append(values[key], row.ValorDespesas)
	}

	report := make([]domain.AggregateRow, 0, len(order))
	for _, key := range order {
		samples := values[key]

		var total float64
		for _, v := range samples {
			total += v
		}
		mean := total / float64(len(samples))

		report = append(report, domain.AggregateRow{
			RazaoSocial:     key.RazaoSocial,
			UF:              key.UF,
			ValorTotal:      total,
			MediaTrimestral: mean,
			DesvioPadrao:    sampleStdDev(samples, mean),
		})
	}

	sort.SliceStable(report, func(i, j int) bool {
		return report[i].ValorTotal > report[j].ValorTotal
	})

	return report
}

// sampleStdDev computes the sample (n-1) standard deviation, 0.0 for fewer
// than two samples.
func sampleStdDev(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0.0
	}
	var sumSquares float64
	for _, v := range samples {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(samples)-1))
}
