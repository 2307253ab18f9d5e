package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostnatalAgeHours(t *testing.T) {
	birth := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		evaluatedAt time.Time
		expected    float64
	}{
		{"at birth", birth, 0},
		{"partial hour is floored", birth.Add(59 * time.Minute), 0},
		{"three days", birth.Add(72*time.Hour + 45*time.Minute), 72},
		{"before birth is clamped", birth.Add(-5 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PostnatalAgeHours(birth, tt.evaluatedAt))
		})
	}
}

func TestClampBilirubin(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"below minimum", 0.2, 1.0},
		{"above maximum", 31, 28.0},
		{"in range", 12.3, 12.3},
		{"snapped to step", 12.34, 12.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ClampBilirubin(tt.input), 1e-9)
		})
	}
}
