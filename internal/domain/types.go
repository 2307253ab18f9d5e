// Package domain contains core entities and types for neonatal hyperbilirubinemia
// threshold evaluation: treatment categories, risk status, reference curves and
// the recommendation tiers produced by the classifier.
//
// Reference: Kemper AR et al. (2022) Clinical Practice Guideline Revision:
// Management of Hyperbilirubinemia in the Newborn Infant 35 or More Weeks of Gestation.
// Pediatrics 150(3):e2022058859.
package domain

import (
	"errors"
	"fmt"
)

// TreatmentCategory selects which family of reference curves is consulted.
type TreatmentCategory string

const (
	PHOTOTHERAPY TreatmentCategory = "phototherapy"
	EXCHANGE     TreatmentCategory = "exchange"
)

// RiskStatus reflects presence of hyperbilirubinemia neurotoxicity risk factors.
type RiskStatus string

const (
	NO_RISK   RiskStatus = "no_risk"
	WITH_RISK RiskStatus = "with_risk"
)

// RecommendationTier is the clinical action tier derived from a TSB measurement.
// Tiers are ordered from most to least severe within the threshold bands.
type RecommendationTier string

const (
	// TIER_NONE is returned when there is not enough data to classify.
	TIER_NONE                   RecommendationTier = ""
	TIER_EMERGENCY_OVERRIDE     RecommendationTier = "emergency-override"
	TIER_EMERGENCY_EXCHANGE     RecommendationTier = "emergency-exchange"
	TIER_EXCHANGE_NOW           RecommendationTier = "exchange-now"
	TIER_INTENSIVE_ESCALATED    RecommendationTier = "intensive-escalated"
	TIER_INTENSIVE              RecommendationTier = "intensive"
	TIER_INTENSIVE_DOUBLE       RecommendationTier = "intensive-double"
	TIER_INTENSIVE_SINGLE       RecommendationTier = "intensive-single"
	TIER_FOLLOW_UP              RecommendationTier = "follow-up"
	TIER_OUT_OF_GUIDELINE_RANGE RecommendationTier = "out-of-guideline-range"
	TIER_TOO_YOUNG              RecommendationTier = "too-young"
)

// ThresholdStatus explains why a ThresholdResult does or does not carry a value.
type ThresholdStatus string

const (
	STATUS_OK              ThresholdStatus = "ok"
	STATUS_OUT_OF_COVERAGE ThresholdStatus = "out_of_coverage"
	STATUS_TOO_YOUNG       ThresholdStatus = "too_young"
)

// Sentinel errors for threshold lookups
var (
	ErrInvalidCategory   = errors.New("invalid treatment category")
	ErrInvalidRiskStatus = errors.New("invalid risk status")
	ErrInvalidTier       = errors.New("invalid recommendation tier")
)

// IsValid reports whether the category names one of the two curve families.
func (c TreatmentCategory) IsValid() bool {
	switch c {
	case PHOTOTHERAPY, EXCHANGE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category.
func (c TreatmentCategory) String() string {
	return string(c)
}

// ParseTreatmentCategory converts user input into a TreatmentCategory.
func ParseTreatmentCategory(s string) (TreatmentCategory, error) {
	c := TreatmentCategory(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// IsValid reports whether the risk status is known.
func (r RiskStatus) IsValid() bool {
	switch r {
	case NO_RISK, WITH_RISK:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk status.
func (r RiskStatus) String() string {
	return string(r)
}

// RiskStatusFor maps the risk-factor checkbox onto a RiskStatus.
func RiskStatusFor(riskFactorsPresent bool) RiskStatus {
	if riskFactorsPresent {
		return WITH_RISK
	}
	return NO_RISK
}

// IsValid reports whether the tier is one of the declared tiers.
// TIER_NONE is not a valid tier; it marks an empty recommendation.
func (t RecommendationTier) IsValid() bool {
	switch t {
	case TIER_EMERGENCY_OVERRIDE, TIER_EMERGENCY_EXCHANGE, TIER_EXCHANGE_NOW,
		TIER_INTENSIVE_ESCALATED, TIER_INTENSIVE, TIER_INTENSIVE_DOUBLE,
		TIER_INTENSIVE_SINGLE, TIER_FOLLOW_UP, TIER_OUT_OF_GUIDELINE_RANGE,
		TIER_TOO_YOUNG:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tier.
func (t RecommendationTier) String() string {
	return string(t)
}

// ParseRecommendationTier converts a stored or submitted tier name.
func ParseRecommendationTier(s string) (RecommendationTier, error) {
	t := RecommendationTier(s)
	if !t.IsValid() {
		return TIER_NONE, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// AllTiers lists the declared tiers from most to least urgent.
func AllTiers() []RecommendationTier {
	return []RecommendationTier{
		TIER_EMERGENCY_OVERRIDE,
		TIER_EMERGENCY_EXCHANGE,
		TIER_EXCHANGE_NOW,
		TIER_INTENSIVE_ESCALATED,
		TIER_INTENSIVE,
		TIER_INTENSIVE_DOUBLE,
		TIER_INTENSIVE_SINGLE,
		TIER_FOLLOW_UP,
		TIER_OUT_OF_GUIDELINE_RANGE,
		TIER_TOO_YOUNG,
	}
}
