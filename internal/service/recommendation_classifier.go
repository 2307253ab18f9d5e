package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/domain"
)

const (
	// DefaultBilirubin fills an absent TSB so results stay populated before the first real entry.
	DefaultBilirubin = 8.0

	// MinGuidelineAgeHours is the youngest postnatal age the tiering applies to.
	MinGuidelineAgeHours = 24.0

	// EscalationMargin is subtracted from the exchange threshold to get the escalation threshold.
	EscalationMargin = 2.0

	// pastDeadlineAgeHours separates "recheck within days" from "clinical judgment" follow-up.
	pastDeadlineAgeHours = 72.0
)

// RecommendationClassifier derives an action tier from a TSB and its two thresholds.
// Rules are evaluated as a strict priority chain; the first match wins.
type RecommendationClassifier struct {
	logger *logrus.Logger
}

// NewRecommendationClassifier creates a new recommendation classifier
func NewRecommendationClassifier(logger *logrus.Logger) *RecommendationClassifier {
	return &RecommendationClassifier{logger: logger}
}

// EscalationThreshold returns the exchange threshold minus the escalation margin.
func EscalationThreshold(exchangeThreshold float64) float64 {
	return round2(exchangeThreshold - EscalationMargin)
}

// Classify applies the decision chain to the classifier state
func (c *RecommendationClassifier) Classify(state domain.ClassifierState) domain.Recommendation {
	rec := c.classify(state)

	if !rec.IsEmpty() {
		c.logger.WithFields(logrus.Fields{
			"tier":        rec.Tier,
			"kernicterus": state.KernicterusSignsPresent,
		}).Debug("Classified bilirubin recommendation")
	}

	return rec
}

func (c *RecommendationClassifier) classify(state domain.ClassifierState) domain.Recommendation {
	if state.KernicterusSignsPresent {
		return domain.Recommendation{
			Tier:   domain.TIER_EMERGENCY_OVERRIDE,
			Detail: "Signs of acute bilirubin encephalopathy: start intensive phototherapy and prepare for immediate exchange transfusion regardless of TSB.",
		}
	}

	if state.PostnatalAgeHours == nil || state.GestationalAgeWeeks == nil {
		return domain.Recommendation{}
	}
	ageHours := *state.PostnatalAgeHours

	if ageHours < MinGuidelineAgeHours {
		return domain.Recommendation{
			Tier:   domain.TIER_TOO_YOUNG,
			Detail: "These recommendations apply from 24 hours of age; hyperbilirubinemia in the first 24 hours needs individualized evaluation.",
		}
	}

	if !state.Phototherapy.HasThreshold() {
		return domain.Recommendation{Tier: domain.TIER_OUT_OF_GUIDELINE_RANGE, Detail: state.Phototherapy.Message}
	}
	if !state.Exchange.HasThreshold() {
		return domain.Recommendation{Tier: domain.TIER_OUT_OF_GUIDELINE_RANGE, Detail: state.Exchange.Message}
	}

	bilirubin := DefaultBilirubin
	if state.TotalBilirubin != nil {
		bilirubin = *state.TotalBilirubin
	}

	exchange := *state.Exchange.Threshold
	phototherapy := *state.Phototherapy.Threshold
	escalation := EscalationThreshold(exchange)
	difference := phototherapy - bilirubin

	switch {
	case bilirubin >= exchange:
		return domain.Recommendation{
			Tier:   domain.TIER_EXCHANGE_NOW,
			Detail: fmt.Sprintf("TSB is at or above the exchange transfusion threshold (%g mg/dL): exchange transfusion is recommended.", exchange),
		}
	case bilirubin >= escalation:
		return domain.Recommendation{
			Tier:   domain.TIER_INTENSIVE_ESCALATED,
			Detail: fmt.Sprintf("TSB is at or above the escalation of care threshold (%g mg/dL): start intensive phototherapy, send urgent labs and prepare for possible exchange transfusion.", escalation),
		}
	case bilirubin >= phototherapy:
		return domain.Recommendation{
			Tier:   domain.TIER_INTENSIVE,
			Detail: fmt.Sprintf("TSB is at or above the phototherapy threshold (%g mg/dL): start phototherapy.", phototherapy),
		}
	case difference <= 0.5:
		return domain.Recommendation{
			Tier:   domain.TIER_INTENSIVE,
			Detail: fmt.Sprintf("TSB is within 0.5 mg/dL of the phototherapy threshold (%g mg/dL): start phototherapy.", phototherapy),
		}
	case difference <= 2:
		return domain.Recommendation{
			Tier:   domain.TIER_INTENSIVE_DOUBLE,
			Detail: "TSB is within 2 mg/dL below the phototherapy threshold: consider phototherapy and repeat TSB in 4 to 8 hours.",
		}
	case difference <= 3:
		return domain.Recommendation{
			Tier:   domain.TIER_INTENSIVE_SINGLE,
			Detail: "TSB is within 3 mg/dL below the phototherapy threshold: repeat TSB or TcB in 4 to 24 hours.",
		}
	}

	return domain.Recommendation{Tier: domain.TIER_FOLLOW_UP, Detail: followUpDetail(difference, ageHours)}
}

// followUpDetail bands the distance below the phototherapy threshold into a recheck interval.
func followUpDetail(difference, ageHours float64) string {
	switch {
	case difference < 3.5:
		return "Repeat TSB or TcB in 4 to 24 hours."
	case difference < 5.5:
		return "Repeat TSB or TcB in 1 to 2 days."
	case difference < 7.0:
		if ageHours < pastDeadlineAgeHours {
			return "Follow up within 2 days; measure TSB or TcB based on clinical judgment."
		}
		return "Measure TSB or TcB based on clinical judgment."
	default:
		if ageHours < pastDeadlineAgeHours {
			return "Follow up within 3 days; measure TSB or TcB based on clinical judgment."
		}
		return "Measure TSB or TcB based on clinical judgment."
	}
}
