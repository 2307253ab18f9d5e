package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/domain"
)

// withRiskPretermWeeks is the one gestational age below a table's range that
// still maps to a curve: phototherapy with risk factors at 34 weeks uses the
// 35-week curve.
const withRiskPretermWeeks = 34

// ThresholdEngine looks up and interpolates bilirubin thresholds
// from the hour-specific reference curves.
type ThresholdEngine struct {
	logger *logrus.Logger
	tables map[tableKey]*domain.CurveTable
}

// NewThresholdEngine creates a threshold engine over the built-in reference tables
func NewThresholdEngine(logger *logrus.Logger) *ThresholdEngine {
	return &ThresholdEngine{
		logger: logger,
		tables: referenceTables,
	}
}

// Tables returns copies of the reference tables the engine consults
func (e *ThresholdEngine) Tables() []domain.CurveTable {
	return Curves()
}

// ComputeThreshold returns the interpolated threshold for the query.
// Out-of-coverage and too-young inputs produce a result without a threshold;
// only an unknown category is reported as an error.
func (e *ThresholdEngine) ComputeThreshold(query domain.ThresholdQuery) (domain.ThresholdResult, error) {
	risk := domain.RiskStatusFor(query.RiskFactorsPresent)
	table, ok := e.tables[tableKey{category: query.Category, risk: risk}]
	if !ok {
		return domain.ThresholdResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, query.Category)
	}

	curve, found := selectCurve(table, query.GestationalAgeWeeks)
	if !found {
		e.logger.WithFields(logrus.Fields{
			"category":        query.Category,
			"risk":            risk,
			"gestational_age": query.GestationalAgeWeeks,
		}).Warn("Gestational age outside reference curve coverage")

		return domain.ThresholdResult{
			Status: domain.STATUS_OUT_OF_COVERAGE,
			Message: fmt.Sprintf(
				"Gestational age %d weeks is outside the %s chart (%d to %d weeks); use the chart for that gestational age.",
				query.GestationalAgeWeeks, chartName(table), table.MinWeeks, table.MaxWeeks),
		}, nil
	}

	if query.PostnatalAgeHours < curve.MinAgeHours() {
		return domain.ThresholdResult{
			Status: domain.STATUS_TOO_YOUNG,
			Message: fmt.Sprintf(
				"Infant is %s hours old, younger than the %s hours at which the %s chart begins; this infant needs individualized attention.",
				formatNumber(query.PostnatalAgeHours), formatNumber(curve.MinAgeHours()), chartName(table)),
		}, nil
	}

	threshold := interpolate(curve, query.PostnatalAgeHours)
	needsAction := query.Bilirubin >= threshold

	e.logger.WithFields(logrus.Fields{
		"category":        query.Category,
		"risk":            risk,
		"gestational_age": query.GestationalAgeWeeks,
		"postnatal_age":   query.PostnatalAgeHours,
		"threshold":       threshold,
		"needs_action":    needsAction,
	}).Debug("Computed bilirubin threshold")

	return domain.ThresholdResult{
		Threshold:   &threshold,
		NeedsAction: needsAction,
		Status:      domain.STATUS_OK,
		Message:     summarize(query, threshold, needsAction),
	}, nil
}

// selectCurve picks the curve for a gestational age. Ages at or above the
// table maximum share the mature curve; ages below the minimum are never
// clamped upward except for the 34-week phototherapy/with-risk case.
func selectCurve(table *domain.CurveTable, weeks int) (domain.ReferenceCurve, bool) {
	if weeks >= table.MaxWeeks {
		curve, ok := table.Curves[table.MaxWeeks]
		return curve, ok
	}
	if curve, ok := table.Curves[weeks]; ok {
		return curve, true
	}
	if table.Category == domain.PHOTOTHERAPY && table.Risk == domain.WITH_RISK && weeks == withRiskPretermWeeks {
		curve, ok := table.Curves[withRiskPretermWeeks+1]
		return curve, ok
	}
	return nil, false
}

// interpolate walks the curve's segments and linearly interpolates at ageHours.
// Past the last knot the final segment's slope is extended.
func interpolate(curve domain.ReferenceCurve, ageHours float64) float64 {
	last := len(curve) - 1
	lo, hi := curve[last-1], curve[last]
	for i := 0; i < last; i++ {
		if ageHours >= curve[i].AgeHours && ageHours <= curve[i+1].AgeHours {
			lo, hi = curve[i], curve[i+1]
			break
		}
	}

	value := lo.Bilirubin + (ageHours-lo.AgeHours)*(hi.Bilirubin-lo.Bilirubin)/(hi.AgeHours-lo.AgeHours)
	return round2(value)
}

// roundingDigits is the precision v is trimmed to before rounding. Float
// noise below it (1.005 stored as 1.00499999999999989) does not decide the
// direction, while real digits such as 2.0049999995 still do.
const roundingDigits = 12

// round2 rounds half away from zero to two decimal places, deciding on the
// decimal digits of v rather than its binary approximation.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e15 {
		return v
	}

	trimmed, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', roundingDigits, 64), 64)
	if err != nil {
		return v
	}

	whole, frac, _ := strings.Cut(strconv.FormatFloat(math.Abs(trimmed), 'f', -1, 64), ".")
	frac += "000"
	hundredths, err := strconv.ParseInt(whole+frac[:2], 10, 64)
	if err != nil {
		return v
	}
	if frac[2] >= '5' {
		hundredths++
	}
	if hundredths == 0 {
		return 0
	}
	return math.Copysign(float64(hundredths)/100, v)
}

func chartName(table *domain.CurveTable) string {
	risk := "without"
	if table.Risk == domain.WITH_RISK {
		risk = "with"
	}
	return fmt.Sprintf("%s (%s neurotoxicity risk factors)", table.Category, risk)
}

func summarize(query domain.ThresholdQuery, threshold float64, needsAction bool) string {
	verdict := "below threshold, no treatment indicated"
	if needsAction {
		verdict = "at or above threshold, treatment indicated"
	}
	return fmt.Sprintf(
		"Gestational age %d weeks, postnatal age %s hours: %s threshold %s mg/dL, TSB %s mg/dL, %s.",
		query.GestationalAgeWeeks, formatNumber(query.PostnatalAgeHours), query.Category,
		formatNumber(threshold), formatNumber(query.Bilirubin), verdict)
}

// formatNumber prints up to two decimals without trailing zeros.
func formatNumber(v float64) string {
	return fmt.Sprintf("%g", round2(v))
}
