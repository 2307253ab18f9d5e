package domain

// CurvePoint is a single knot of a reference curve.
type CurvePoint struct {
	AgeHours  float64 `json:"age_hours"`
	Bilirubin float64 `json:"bilirubin"` // mg/dL
}

// ReferenceCurve is an ordered sequence of knots, strictly increasing in AgeHours.
// The first point marks the youngest age the curve is defined for.
type ReferenceCurve []CurvePoint

// MinAgeHours returns the earliest postnatal age covered by the curve.
func (c ReferenceCurve) MinAgeHours() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[0].AgeHours
}

// CurveTable maps gestational weeks to curves for one category/risk combination.
// Weeks between MinWeeks and MaxWeeks need not all be present.
type CurveTable struct {
	Category TreatmentCategory      `json:"category"`
	Risk     RiskStatus             `json:"risk"`
	MinWeeks int                    `json:"min_weeks"`
	MaxWeeks int                    `json:"max_weeks"`
	Curves   map[int]ReferenceCurve `json:"curves"`
}

// ThresholdQuery carries the inputs of a single threshold lookup.
// Bilirubin is only used for the NeedsAction verdict.
type ThresholdQuery struct {
	Category            TreatmentCategory `json:"category"`
	RiskFactorsPresent  bool              `json:"risk_factors_present"`
	GestationalAgeWeeks int               `json:"gestational_age_weeks"`
	PostnatalAgeHours   float64           `json:"postnatal_age_hours"`
	Bilirubin           float64           `json:"bilirubin"`
}

// ThresholdResult is the outcome of a threshold lookup.
// Threshold is nil when the inputs fall outside the curves' coverage.
type ThresholdResult struct {
	Threshold   *float64        `json:"threshold"`
	NeedsAction bool            `json:"needs_action"`
	Message     string          `json:"message"`
	Status      ThresholdStatus `json:"status"`
}

// HasThreshold reports whether the lookup produced a value.
func (r ThresholdResult) HasThreshold() bool {
	return r.Threshold != nil
}

// EvaluationInput is the per-request snapshot of clinical parameters.
// It is built fresh for every evaluation and never stored.
type EvaluationInput struct {
	RiskFactorsPresent      bool     `json:"risk_factors_present"`
	KernicterusSignsPresent bool     `json:"kernicterus_signs_present"`
	GestationalAgeWeeks     *int     `json:"gestational_age_weeks"`
	PostnatalAgeHours       *float64 `json:"postnatal_age_hours"`
	TotalBilirubin          *float64 `json:"total_bilirubin,omitempty"`
}

// ClassifierState is what the recommendation classifier consumes.
type ClassifierState struct {
	KernicterusSignsPresent bool
	PostnatalAgeHours       *float64
	GestationalAgeWeeks     *int
	TotalBilirubin          *float64
	Phototherapy            ThresholdResult
	Exchange                ThresholdResult
}

// Recommendation is the classifier output.
type Recommendation struct {
	Tier   RecommendationTier `json:"tier"`
	Detail string             `json:"detail"`
}

// IsEmpty reports whether no tier could be assigned.
func (r Recommendation) IsEmpty() bool {
	return r.Tier == TIER_NONE
}

// Evaluation is the combined output of both thresholds and the classifier.
type Evaluation struct {
	Input               EvaluationInput  `json:"input"`
	Phototherapy        *ThresholdResult `json:"phototherapy,omitempty"`
	Exchange            *ThresholdResult `json:"exchange,omitempty"`
	EscalationThreshold *float64         `json:"escalation_threshold,omitempty"`
	Bilirubin           float64          `json:"bilirubin"`
	Recommendation      Recommendation   `json:"recommendation"`
}

// CurveSummary is one gestational-age curve of a reference table, flattened for listing.
type CurveSummary struct {
	Category            TreatmentCategory `json:"category"`
	Risk                RiskStatus        `json:"risk"`
	GestationalAgeWeeks int               `json:"gestational_age_weeks"`
	Points              []CurvePoint      `json:"points"`
}
