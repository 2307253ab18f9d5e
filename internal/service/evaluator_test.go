package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bili-threshold-server/internal/cache"
	"github.com/bili-threshold-server/internal/domain"
)

// MockThresholdEngine is a mock implementation of the ThresholdEngine interface
type MockThresholdEngine struct {
	mock.Mock
}

func (m *MockThresholdEngine) ComputeThreshold(query domain.ThresholdQuery) (domain.ThresholdResult, error) {
	args := m.Called(query)
	return args.Get(0).(domain.ThresholdResult), args.Error(1)
}

func (m *MockThresholdEngine) Tables() []domain.CurveTable {
	args := m.Called()
	return args.Get(0).([]domain.CurveTable)
}

func TestEvaluate_EndToEnd(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		RiskFactorsPresent:  false,
		GestationalAgeWeeks: intPtr(38),
		PostnatalAgeHours:   floatPtr(72),
		TotalBilirubin:      floatPtr(19.5),
	})
	require.NoError(t, err)

	require.NotNil(t, evaluation.Phototherapy)
	require.NotNil(t, evaluation.Phototherapy.Threshold)
	assert.Equal(t, 18.57, *evaluation.Phototherapy.Threshold)
	assert.True(t, evaluation.Phototherapy.NeedsAction)

	require.NotNil(t, evaluation.Exchange)
	require.NotNil(t, evaluation.Exchange.Threshold)
	assert.Equal(t, 25.9, *evaluation.Exchange.Threshold)
	assert.False(t, evaluation.Exchange.NeedsAction)

	require.NotNil(t, evaluation.EscalationThreshold)
	assert.Equal(t, 23.9, *evaluation.EscalationThreshold)

	// 18.57 <= 19.5 < 23.9: at or above phototherapy, below escalation.
	assert.Equal(t, domain.TIER_INTENSIVE, evaluation.Recommendation.Tier)
	assert.Equal(t, 19.5, evaluation.Bilirubin)
}

func TestEvaluate_EscalationBand(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		GestationalAgeWeeks: intPtr(38),
		PostnatalAgeHours:   floatPtr(72),
		TotalBilirubin:      floatPtr(23.9),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TIER_INTENSIVE_ESCALATED, evaluation.Recommendation.Tier)
}

func TestEvaluate_KernicterusSkipsLookups(t *testing.T) {
	engine := new(MockThresholdEngine)
	evaluator := NewEvaluator(newTestLogger(), engine, NewRecommendationClassifier(newTestLogger()))

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		KernicterusSignsPresent: true,
		GestationalAgeWeeks:     intPtr(38),
		PostnatalAgeHours:       floatPtr(0),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TIER_EMERGENCY_OVERRIDE, evaluation.Recommendation.Tier)
	assert.Nil(t, evaluation.Phototherapy)
	assert.Nil(t, evaluation.Exchange)
	engine.AssertNotCalled(t, "ComputeThreshold", mock.Anything)
}

func TestEvaluate_InsufficientData(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		PostnatalAgeHours: floatPtr(48),
	})
	require.NoError(t, err)

	assert.True(t, evaluation.Recommendation.IsEmpty())
	assert.Empty(t, evaluation.Recommendation.Detail)
	assert.Nil(t, evaluation.Phototherapy)
}

func TestEvaluate_OutOfGuidelineRange(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		GestationalAgeWeeks: intPtr(30),
		PostnatalAgeHours:   floatPtr(48),
		TotalBilirubin:      floatPtr(12),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TIER_OUT_OF_GUIDELINE_RANGE, evaluation.Recommendation.Tier)
	assert.Equal(t, evaluation.Phototherapy.Message, evaluation.Recommendation.Detail)
	assert.Nil(t, evaluation.EscalationThreshold)
}

func TestEvaluate_TooYoungStillReportsThresholds(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	evaluation, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		GestationalAgeWeeks: intPtr(38),
		PostnatalAgeHours:   floatPtr(12),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TIER_TOO_YOUNG, evaluation.Recommendation.Tier)
	require.NotNil(t, evaluation.Phototherapy)
	assert.True(t, evaluation.Phototherapy.HasThreshold())
}

func TestEvaluate_EngineErrorIsWrapped(t *testing.T) {
	engine := new(MockThresholdEngine)
	engine.On("ComputeThreshold", mock.Anything).Return(domain.ThresholdResult{}, domain.ErrInvalidCategory)
	evaluator := NewEvaluator(newTestLogger(), engine, NewRecommendationClassifier(newTestLogger()))

	_, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		GestationalAgeWeeks: intPtr(38),
		PostnatalAgeHours:   floatPtr(48),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCategory))
}

func TestEvaluate_ValidationAndContext(t *testing.T) {
	evaluator := NewDefaultEvaluator(newTestLogger())

	_, err := evaluator.Evaluate(context.Background(), domain.EvaluationInput{
		GestationalAgeWeeks: intPtr(38),
		PostnatalAgeHours:   floatPtr(-1),
	})
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "postnatal_age_hours", validationErr.Field)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = evaluator.Evaluate(ctx, domain.EvaluationInput{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_UsesResultCache(t *testing.T) {
	engine := new(MockThresholdEngine)
	threshold := 15.0
	engine.On("ComputeThreshold", mock.Anything).Return(domain.ThresholdResult{Threshold: &threshold, Status: domain.STATUS_OK}, nil)

	resultCache, err := cache.NewMemoryCache[domain.Evaluation](10, time.Minute)
	require.NoError(t, err)
	evaluator := NewEvaluator(newTestLogger(), engine, NewRecommendationClassifier(newTestLogger()), WithResultCache(resultCache))

	input := domain.EvaluationInput{GestationalAgeWeeks: intPtr(38), PostnatalAgeHours: floatPtr(48), TotalBilirubin: floatPtr(10)}

	first, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)
	second, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.Recommendation, second.Recommendation)
	engine.AssertNumberOfCalls(t, "ComputeThreshold", 2)
	assert.Equal(t, int64(1), resultCache.Stats().Hits)
}

func TestEvaluate_CachedResultsAreIndependent(t *testing.T) {
	resultCache, err := cache.NewMemoryCache[domain.Evaluation](10, time.Minute)
	require.NoError(t, err)
	evaluator := NewDefaultEvaluator(newTestLogger(), WithResultCache(resultCache))

	input := domain.EvaluationInput{GestationalAgeWeeks: intPtr(38), PostnatalAgeHours: floatPtr(72), TotalBilirubin: floatPtr(19.5)}

	first, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)
	*first.Phototherapy.Threshold = 99
	first.Exchange.Message = "tampered"
	*first.EscalationThreshold = 1
	*first.Input.PostnatalAgeHours = 5

	second, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 18.57, *second.Phototherapy.Threshold)
	assert.NotEqual(t, "tampered", second.Exchange.Message)
	assert.Equal(t, 23.9, *second.EscalationThreshold)
	assert.Equal(t, 72.0, *second.Input.PostnatalAgeHours)

	*second.Phototherapy.Threshold = 42
	third, err := evaluator.Evaluate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 18.57, *third.Phototherapy.Threshold)
	assert.Equal(t, int64(2), resultCache.Stats().Hits)
}
