package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/cache"
	"github.com/bili-threshold-server/internal/domain"
)

// Evaluator runs the full pipeline: two threshold lookups followed by classification.
type Evaluator struct {
	logger     *logrus.Logger
	engine     domain.ThresholdEngine
	classifier domain.RecommendationClassifier
	cache      *cache.MemoryCache[domain.Evaluation]
}

// EvaluatorOption is a functional option for Evaluator.
type EvaluatorOption func(*Evaluator)

// WithResultCache memoizes evaluations by input.
func WithResultCache(c *cache.MemoryCache[domain.Evaluation]) EvaluatorOption {
	return func(e *Evaluator) {
		e.cache = c
	}
}

// NewEvaluator creates an evaluator over the given engine and classifier
func NewEvaluator(logger *logrus.Logger, engine domain.ThresholdEngine, classifier domain.RecommendationClassifier, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		logger:     logger,
		engine:     engine,
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultEvaluator wires the built-in engine and classifier.
func NewDefaultEvaluator(logger *logrus.Logger, opts ...EvaluatorOption) *Evaluator {
	return NewEvaluator(logger, NewThresholdEngine(logger), NewRecommendationClassifier(logger), opts...)
}

// ComputeThreshold exposes a single lookup through the evaluator's engine
func (e *Evaluator) ComputeThreshold(query domain.ThresholdQuery) (domain.ThresholdResult, error) {
	return e.engine.ComputeThreshold(query)
}

// Tables returns the reference tables behind the evaluator's engine
func (e *Evaluator) Tables() []domain.CurveTable {
	return e.engine.Tables()
}

// Cache returns the result cache, or nil when evaluations are not memoized
func (e *Evaluator) Cache() *cache.MemoryCache[domain.Evaluation] {
	return e.cache
}

// Evaluate computes both thresholds and the recommendation for one input snapshot
func (e *Evaluator) Evaluate(ctx context.Context, input domain.EvaluationInput) (*domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateInput(input); err != nil {
		return nil, err
	}

	key := cacheKey(input)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cloneEvaluation(&cached), nil
		}
	}

	startTime := time.Now()
	evaluation, err := e.evaluate(input)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(key, *cloneEvaluation(evaluation))
	}

	e.logger.WithFields(logrus.Fields{
		"tier":            evaluation.Recommendation.Tier,
		"gestational_age": intValue(input.GestationalAgeWeeks),
		"postnatal_age":   floatValue(input.PostnatalAgeHours),
		"risk_factors":    input.RiskFactorsPresent,
		"processing_time": time.Since(startTime),
	}).Info("Bilirubin evaluation completed")

	return evaluation, nil
}

func (e *Evaluator) evaluate(input domain.EvaluationInput) (*domain.Evaluation, error) {
	bilirubin := DefaultBilirubin
	if input.TotalBilirubin != nil {
		bilirubin = *input.TotalBilirubin
	}

	evaluation := &domain.Evaluation{
		Input:     cloneInput(input),
		Bilirubin: bilirubin,
	}

	state := domain.ClassifierState{
		KernicterusSignsPresent: input.KernicterusSignsPresent,
		PostnatalAgeHours:       input.PostnatalAgeHours,
		GestationalAgeWeeks:     input.GestationalAgeWeeks,
		TotalBilirubin:          input.TotalBilirubin,
	}

	// Kernicterus overrides everything, so no lookup is needed.
	if input.KernicterusSignsPresent || input.PostnatalAgeHours == nil || input.GestationalAgeWeeks == nil {
		evaluation.Recommendation = e.classifier.Classify(state)
		return evaluation, nil
	}

	phototherapy, err := e.lookup(domain.PHOTOTHERAPY, input, bilirubin)
	if err != nil {
		return nil, err
	}
	exchange, err := e.lookup(domain.EXCHANGE, input, bilirubin)
	if err != nil {
		return nil, err
	}

	evaluation.Phototherapy = &phototherapy
	evaluation.Exchange = &exchange
	if exchange.HasThreshold() {
		escalation := EscalationThreshold(*exchange.Threshold)
		evaluation.EscalationThreshold = &escalation
	}

	state.Phototherapy = phototherapy
	state.Exchange = exchange
	evaluation.Recommendation = e.classifier.Classify(state)

	return evaluation, nil
}

func (e *Evaluator) lookup(category domain.TreatmentCategory, input domain.EvaluationInput, bilirubin float64) (domain.ThresholdResult, error) {
	result, err := e.engine.ComputeThreshold(domain.ThresholdQuery{
		Category:            category,
		RiskFactorsPresent:  input.RiskFactorsPresent,
		GestationalAgeWeeks: *input.GestationalAgeWeeks,
		PostnatalAgeHours:   *input.PostnatalAgeHours,
		Bilirubin:           bilirubin,
	})
	if err != nil {
		return domain.ThresholdResult{}, fmt.Errorf("failed to compute %s threshold: %w", category, err)
	}
	return result, nil
}

// ValidateInput rejects values no presentation layer should produce.
func ValidateInput(input domain.EvaluationInput) error {
	if input.PostnatalAgeHours != nil && *input.PostnatalAgeHours < 0 {
		return domain.NewValidationError("postnatal_age_hours", "must not be negative", *input.PostnatalAgeHours)
	}
	if input.GestationalAgeWeeks != nil && *input.GestationalAgeWeeks <= 0 {
		return domain.NewValidationError("gestational_age_weeks", "must be positive", *input.GestationalAgeWeeks)
	}
	if input.TotalBilirubin != nil && *input.TotalBilirubin < 0 {
		return domain.NewValidationError("total_bilirubin", "must not be negative", *input.TotalBilirubin)
	}
	return nil
}

// cloneInput detaches the stored input from caller-owned pointers.
func cloneInput(input domain.EvaluationInput) domain.EvaluationInput {
	out := input
	if input.GestationalAgeWeeks != nil {
		v := *input.GestationalAgeWeeks
		out.GestationalAgeWeeks = &v
	}
	if input.PostnatalAgeHours != nil {
		v := *input.PostnatalAgeHours
		out.PostnatalAgeHours = &v
	}
	if input.TotalBilirubin != nil {
		v := *input.TotalBilirubin
		out.TotalBilirubin = &v
	}
	return out
}

// cloneEvaluation deep-copies an evaluation so cache entries never share
// pointers with results handed to callers.
func cloneEvaluation(evaluation *domain.Evaluation) *domain.Evaluation {
	out := *evaluation
	out.Input = cloneInput(evaluation.Input)
	out.Phototherapy = cloneResult(evaluation.Phototherapy)
	out.Exchange = cloneResult(evaluation.Exchange)
	if evaluation.EscalationThreshold != nil {
		v := *evaluation.EscalationThreshold
		out.EscalationThreshold = &v
	}
	return &out
}

func cloneResult(result *domain.ThresholdResult) *domain.ThresholdResult {
	if result == nil {
		return nil
	}
	out := *result
	if result.Threshold != nil {
		v := *result.Threshold
		out.Threshold = &v
	}
	return &out
}

func cacheKey(input domain.EvaluationInput) string {
	return fmt.Sprintf("r=%t|k=%t|ga=%s|h=%s|tsb=%s",
		input.RiskFactorsPresent, input.KernicterusSignsPresent,
		optionalInt(input.GestationalAgeWeeks), optionalFloat(input.PostnatalAgeHours), optionalFloat(input.TotalBilirubin))
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func intValue(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
