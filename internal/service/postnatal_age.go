package service

import (
	"math"
	"time"
)

// Bilirubin entry bounds for the TSB field, in mg/dL.
const (
	MinBilirubinEntry = 1.0
	MaxBilirubinEntry = 28.0

	// entries are snapped to 0.1 mg/dL
	bilirubinEntryScale = 10
)

// PostnatalAgeHours returns completed hours between birth and the evaluation time.
// Evaluation times before birth yield zero.
func PostnatalAgeHours(birth, evaluatedAt time.Time) float64 {
	hours := math.Floor(evaluatedAt.Sub(birth).Hours())
	if hours < 0 {
		return 0
	}
	return hours
}

// ClampBilirubin limits a TSB entry to the accepted range and snaps it to 0.1 mg/dL steps.
func ClampBilirubin(v float64) float64 {
	v = math.Max(MinBilirubinEntry, math.Min(MaxBilirubinEntry, v))
	return math.Round(v*bilirubinEntryScale) / bilirubinEntryScale
}
