package domain

import (
	"errors"
	"testing"
)

func TestTreatmentCategoryConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    TreatmentCategory
		expected string
	}{
		{"Phototherapy", PHOTOTHERAPY, "phototherapy"},
		{"Exchange", EXCHANGE, "exchange"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}
}

func TestParseTreatmentCategory(t *testing.T) {
	c, err := ParseTreatmentCategory("exchange")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != EXCHANGE {
		t.Errorf("Expected %s, got %s", EXCHANGE, c)
	}

	_, err = ParseTreatmentCategory("transfusion")
	if !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("Expected ErrInvalidCategory, got %v", err)
	}
}

func TestRiskStatusFor(t *testing.T) {
	if RiskStatusFor(true) != WITH_RISK {
		t.Errorf("Expected %s for risk factors present", WITH_RISK)
	}
	if RiskStatusFor(false) != NO_RISK {
		t.Errorf("Expected %s for no risk factors", NO_RISK)
	}
}

func TestRecommendationTiers(t *testing.T) {
	tiers := AllTiers()
	if len(tiers) != 10 {
		t.Fatalf("Expected 10 tiers, got %d", len(tiers))
	}

	seen := make(map[RecommendationTier]bool)
	for _, tier := range tiers {
		if !tier.IsValid() {
			t.Errorf("Tier %q should be valid", tier)
		}
		if seen[tier] {
			t.Errorf("Tier %q listed twice", tier)
		}
		seen[tier] = true
	}

	if TIER_NONE.IsValid() {
		t.Error("TIER_NONE should not be a valid tier")
	}

	if _, err := ParseRecommendationTier("panic"); !errors.Is(err, ErrInvalidTier) {
		t.Errorf("Expected ErrInvalidTier, got %v", err)
	}
}

func TestReferenceCurveMinAge(t *testing.T) {
	curve := ReferenceCurve{{AgeHours: 12, Bilirubin: 7.4}, {AgeHours: 24, Bilirubin: 9.6}}
	if curve.MinAgeHours() != 12 {
		t.Errorf("Expected min age 12, got %v", curve.MinAgeHours())
	}
	if (ReferenceCurve{}).MinAgeHours() != 0 {
		t.Error("Expected empty curve to report min age 0")
	}
}
