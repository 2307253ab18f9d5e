package service

import (
	"sort"

	"github.com/bili-threshold-server/internal/domain"
)

// Reference tables for phototherapy and exchange transfusion thresholds.
// The knots are fitted to the documented anchor values (for example 12.1 at
// 24 h and 17.5 at 60 h on the 38-week phototherapy curve) and are not a
// transcription of the published AAP nomogram.
// Points are (postnatal age in hours, TSB in mg/dL). Curves end at two weeks
// (336 h); ages beyond the last knot are extrapolated from the final segment.
//
// Keys are gestational weeks. Curves for 35 and 36 weeks start at 12 h; the
// others start at birth.

var phototherapyNoRisk = domain.CurveTable{
	Category: domain.PHOTOTHERAPY,
	Risk:     domain.NO_RISK,
	MinWeeks: 35,
	MaxWeeks: 40,
	Curves: map[int]domain.ReferenceCurve{
		35: {{AgeHours: 12, Bilirubin: 7.4}, {AgeHours: 24, Bilirubin: 9.6}, {AgeHours: 48, Bilirubin: 12.6}, {AgeHours: 72, Bilirubin: 14.8}, {AgeHours: 96, Bilirubin: 16.3}, {AgeHours: 120, Bilirubin: 17.1}, {AgeHours: 336, Bilirubin: 17.8}},
		36: {{AgeHours: 12, Bilirubin: 7.8}, {AgeHours: 24, Bilirubin: 10.2}, {AgeHours: 48, Bilirubin: 13.5}, {AgeHours: 72, Bilirubin: 15.8}, {AgeHours: 96, Bilirubin: 17.3}, {AgeHours: 120, Bilirubin: 18.1}, {AgeHours: 336, Bilirubin: 18.8}},
		37: {{AgeHours: 0, Bilirubin: 7.2}, {AgeHours: 24, Bilirubin: 11.2}, {AgeHours: 48, Bilirubin: 14.6}, {AgeHours: 60, Bilirubin: 16.2}, {AgeHours: 96, Bilirubin: 19.2}, {AgeHours: 120, Bilirubin: 19.9}, {AgeHours: 336, Bilirubin: 20.1}},
		38: {{AgeHours: 0, Bilirubin: 8.0}, {AgeHours: 24, Bilirubin: 12.1}, {AgeHours: 48, Bilirubin: 15.8}, {AgeHours: 60, Bilirubin: 17.5}, {AgeHours: 96, Bilirubin: 20.7}, {AgeHours: 120, Bilirubin: 21.2}, {AgeHours: 336, Bilirubin: 21.4}},
		39: {{AgeHours: 0, Bilirubin: 8.5}, {AgeHours: 24, Bilirubin: 12.8}, {AgeHours: 48, Bilirubin: 16.5}, {AgeHours: 60, Bilirubin: 18.2}, {AgeHours: 96, Bilirubin: 21.3}, {AgeHours: 120, Bilirubin: 21.8}, {AgeHours: 336, Bilirubin: 22.0}},
		40: {{AgeHours: 0, Bilirubin: 9.0}, {AgeHours: 24, Bilirubin: 13.4}, {AgeHours: 48, Bilirubin: 17.2}, {AgeHours: 60, Bilirubin: 18.9}, {AgeHours: 96, Bilirubin: 21.8}, {AgeHours: 120, Bilirubin: 22.2}, {AgeHours: 336, Bilirubin: 22.4}},
	},
}

var phototherapyWithRisk = domain.CurveTable{
	Category: domain.PHOTOTHERAPY,
	Risk:     domain.WITH_RISK,
	MinWeeks: 35,
	MaxWeeks: 38,
	Curves: map[int]domain.ReferenceCurve{
		35: {{AgeHours: 12, Bilirubin: 6.5}, {AgeHours: 24, Bilirubin: 8.9}, {AgeHours: 48, Bilirubin: 11.3}, {AgeHours: 72, Bilirubin: 13.0}, {AgeHours: 96, Bilirubin: 14.1}, {AgeHours: 120, Bilirubin: 14.6}, {AgeHours: 336, Bilirubin: 15.0}},
		36: {{AgeHours: 12, Bilirubin: 6.9}, {AgeHours: 24, Bilirubin: 9.4}, {AgeHours: 48, Bilirubin: 12.0}, {AgeHours: 72, Bilirubin: 13.8}, {AgeHours: 96, Bilirubin: 14.9}, {AgeHours: 120, Bilirubin: 15.4}, {AgeHours: 336, Bilirubin: 15.8}},
		37: {{AgeHours: 0, Bilirubin: 5.8}, {AgeHours: 24, Bilirubin: 10.0}, {AgeHours: 48, Bilirubin: 12.9}, {AgeHours: 72, Bilirubin: 14.8}, {AgeHours: 96, Bilirubin: 15.9}, {AgeHours: 120, Bilirubin: 16.5}, {AgeHours: 336, Bilirubin: 16.9}},
		38: {{AgeHours: 0, Bilirubin: 6.2}, {AgeHours: 24, Bilirubin: 10.6}, {AgeHours: 48, Bilirubin: 13.6}, {AgeHours: 72, Bilirubin: 15.6}, {AgeHours: 96, Bilirubin: 16.9}, {AgeHours: 120, Bilirubin: 17.5}, {AgeHours: 336, Bilirubin: 17.9}},
	},
}

var exchangeNoRisk = domain.CurveTable{
	Category: domain.EXCHANGE,
	Risk:     domain.NO_RISK,
	MinWeeks: 35,
	MaxWeeks: 38,
	Curves: map[int]domain.ReferenceCurve{
		35: {{AgeHours: 0, Bilirubin: 14.8}, {AgeHours: 24, Bilirubin: 17.4}, {AgeHours: 48, Bilirubin: 19.6}, {AgeHours: 72, Bilirubin: 21.5}, {AgeHours: 96, Bilirubin: 22.6}, {AgeHours: 120, Bilirubin: 23.0}, {AgeHours: 336, Bilirubin: 23.0}},
		36: {{AgeHours: 0, Bilirubin: 15.5}, {AgeHours: 24, Bilirubin: 18.3}, {AgeHours: 48, Bilirubin: 20.8}, {AgeHours: 72, Bilirubin: 22.8}, {AgeHours: 96, Bilirubin: 23.8}, {AgeHours: 120, Bilirubin: 24.2}, {AgeHours: 336, Bilirubin: 24.2}},
		37: {{AgeHours: 0, Bilirubin: 16.2}, {AgeHours: 24, Bilirubin: 19.3}, {AgeHours: 48, Bilirubin: 22.0}, {AgeHours: 72, Bilirubin: 24.3}, {AgeHours: 96, Bilirubin: 25.1}, {AgeHours: 120, Bilirubin: 25.5}, {AgeHours: 336, Bilirubin: 25.5}},
		38: {{AgeHours: 0, Bilirubin: 17.0}, {AgeHours: 24, Bilirubin: 20.3}, {AgeHours: 48, Bilirubin: 23.2}, {AgeHours: 72, Bilirubin: 25.9}, {AgeHours: 96, Bilirubin: 26.6}, {AgeHours: 120, Bilirubin: 27.0}, {AgeHours: 336, Bilirubin: 27.0}},
	},
}

var exchangeWithRisk = domain.CurveTable{
	Category: domain.EXCHANGE,
	Risk:     domain.WITH_RISK,
	MinWeeks: 35,
	MaxWeeks: 38,
	Curves: map[int]domain.ReferenceCurve{
		35: {{AgeHours: 0, Bilirubin: 13.0}, {AgeHours: 24, Bilirubin: 15.3}, {AgeHours: 48, Bilirubin: 17.2}, {AgeHours: 72, Bilirubin: 18.6}, {AgeHours: 96, Bilirubin: 19.4}, {AgeHours: 120, Bilirubin: 19.8}, {AgeHours: 336, Bilirubin: 19.8}},
		36: {{AgeHours: 0, Bilirubin: 13.5}, {AgeHours: 24, Bilirubin: 15.9}, {AgeHours: 48, Bilirubin: 17.9}, {AgeHours: 72, Bilirubin: 19.4}, {AgeHours: 96, Bilirubin: 20.3}, {AgeHours: 120, Bilirubin: 20.6}, {AgeHours: 336, Bilirubin: 20.6}},
		37: {{AgeHours: 0, Bilirubin: 14.1}, {AgeHours: 24, Bilirubin: 16.6}, {AgeHours: 48, Bilirubin: 18.7}, {AgeHours: 72, Bilirubin: 20.3}, {AgeHours: 96, Bilirubin: 21.2}, {AgeHours: 120, Bilirubin: 21.5}, {AgeHours: 336, Bilirubin: 21.5}},
		38: {{AgeHours: 0, Bilirubin: 14.6}, {AgeHours: 24, Bilirubin: 17.3}, {AgeHours: 48, Bilirubin: 19.5}, {AgeHours: 72, Bilirubin: 21.2}, {AgeHours: 96, Bilirubin: 22.1}, {AgeHours: 120, Bilirubin: 22.4}, {AgeHours: 336, Bilirubin: 22.4}},
	},
}

// tableKey identifies one of the four curve tables.
type tableKey struct {
	category domain.TreatmentCategory
	risk     domain.RiskStatus
}

// referenceTables is read-only after package initialization.
var referenceTables = map[tableKey]*domain.CurveTable{
	{domain.PHOTOTHERAPY, domain.NO_RISK}:   &phototherapyNoRisk,
	{domain.PHOTOTHERAPY, domain.WITH_RISK}: &phototherapyWithRisk,
	{domain.EXCHANGE, domain.NO_RISK}:       &exchangeNoRisk,
	{domain.EXCHANGE, domain.WITH_RISK}:     &exchangeWithRisk,
}

// tableOrder fixes the order tables are listed in.
var tableOrder = []tableKey{
	{domain.PHOTOTHERAPY, domain.NO_RISK},
	{domain.PHOTOTHERAPY, domain.WITH_RISK},
	{domain.EXCHANGE, domain.NO_RISK},
	{domain.EXCHANGE, domain.WITH_RISK},
}

// Curves returns a copy of every reference table.
func Curves() []domain.CurveTable {
	tables := make([]domain.CurveTable, 0, len(tableOrder))
	for _, key := range tableOrder {
		tables = append(tables, copyTable(referenceTables[key]))
	}
	return tables
}

func copyTable(t *domain.CurveTable) domain.CurveTable {
	curves := make(map[int]domain.ReferenceCurve, len(t.Curves))
	for weeks, curve := range t.Curves {
		curves[weeks] = append(domain.ReferenceCurve(nil), curve...)
	}
	return domain.CurveTable{
		Category: t.Category,
		Risk:     t.Risk,
		MinWeeks: t.MinWeeks,
		MaxWeeks: t.MaxWeeks,
		Curves:   curves,
	}
}

// SummarizeCurves flattens tables into one entry per curve, ordered by table
// then gestational age.
func SummarizeCurves(tables []domain.CurveTable) []domain.CurveSummary {
	var out []domain.CurveSummary
	for _, table := range tables {
		weeks := make([]int, 0, len(table.Curves))
		for w := range table.Curves {
			weeks = append(weeks, w)
		}
		sort.Ints(weeks)
		for _, w := range weeks {
			out = append(out, domain.CurveSummary{
				Category:            table.Category,
				Risk:                table.Risk,
				GestationalAgeWeeks: w,
				Points:              table.Curves[w],
			})
		}
	}
	return out
}
