package domain

import (
	"context"
)

// ThresholdEngine resolves a bilirubin threshold from the reference curves
type ThresholdEngine interface {
	ComputeThreshold(query ThresholdQuery) (ThresholdResult, error)
	Tables() []CurveTable
}

// RecommendationClassifier maps a measured TSB and its thresholds onto an action tier
type RecommendationClassifier interface {
	Classify(state ClassifierState) Recommendation
}

// EvaluationService runs the full threshold-and-classify pipeline for one input
type EvaluationService interface {
	Evaluate(ctx context.Context, input EvaluationInput) (*Evaluation, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
