package mcp

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bili-threshold-server/internal/config"
	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/health"
)

func newTestServer(t *testing.T) *LiteServer {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "bili")

	server, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLiteServer(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.feedbackStore)
	assert.NotNil(t, server.health)

	_, err := os.Stat(server.config.FeedbackDBPath())
	assert.NoError(t, err)
}

func TestComputeThresholdTool(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, out, err := server.handleComputeThreshold(ctx, nil, ComputeThresholdParams{
		Category:            "exchange",
		GestationalAgeWeeks: 38,
		PostnatalAgeHours:   72,
		Bilirubin:           19.5,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	threshold, ok := out.(domain.ThresholdResult)
	require.True(t, ok)
	require.NotNil(t, threshold.Threshold)
	assert.Equal(t, 25.9, *threshold.Threshold)
	assert.False(t, threshold.NeedsAction)
	assert.Equal(t, threshold.Message, resultText(t, result))
}

func TestComputeThresholdTool_Errors(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params ComputeThresholdParams
		code   string
	}{
		{"unknown category", ComputeThresholdParams{Category: "uv", GestationalAgeWeeks: 38, PostnatalAgeHours: 24}, domain.ErrUnsupportedCategory},
		{"missing gestational age", ComputeThresholdParams{Category: "phototherapy", PostnatalAgeHours: 24}, domain.ErrInvalidInput},
		{"negative age", ComputeThresholdParams{Category: "phototherapy", GestationalAgeWeeks: 38, PostnatalAgeHours: -1}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, out, err := server.handleComputeThreshold(ctx, nil, tt.params)
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.code)
		})
	}
}

func TestEvaluateInfantTool(t *testing.T) {
	server := newTestServer(t)
	ga := 38
	age := 72.0
	tsb := 19.5

	result, out, err := server.handleEvaluateInfant(context.Background(), nil, EvaluateInfantParams{
		GestationalAgeWeeks: &ga,
		PostnatalAgeHours:   &age,
		TotalBilirubin:      &tsb,
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	evaluated, ok := out.(EvaluateInfantResult)
	require.True(t, ok)
	assert.Equal(t, domain.TIER_INTENSIVE, evaluated.Evaluation.Recommendation.Tier)
	assert.Contains(t, resultText(t, result), "Recommendation: intensive.")
	assert.Contains(t, resultText(t, result), "Phototherapy threshold: 18.57 mg/dL")
}

func TestEvaluateInfantTool_Timestamps(t *testing.T) {
	server := newTestServer(t)
	ga := 37

	_, out, err := server.handleEvaluateInfant(context.Background(), nil, EvaluateInfantParams{
		GestationalAgeWeeks: &ga,
		BirthTime:           "2026-05-01T06:00:00Z",
		LabTime:             "2026-05-02T12:30:00Z",
	})
	require.NoError(t, err)

	evaluated := out.(EvaluateInfantResult)
	require.NotNil(t, evaluated.Evaluation.Input.PostnatalAgeHours)
	assert.Equal(t, 30.0, *evaluated.Evaluation.Input.PostnatalAgeHours)
}

func TestEvaluateInfantTool_Invalid(t *testing.T) {
	server := newTestServer(t)

	result, _, err := server.handleEvaluateInfant(context.Background(), nil, EvaluateInfantParams{BirthTime: "yesterday"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), domain.ErrValidation)
}

func TestEvaluateInfantTool_Insufficient(t *testing.T) {
	server := newTestServer(t)

	result, _, err := server.handleEvaluateInfant(context.Background(), nil, EvaluateInfantParams{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Not enough information")
}

func TestListCurvesTool(t *testing.T) {
	server := newTestServer(t)

	_, out, err := server.handleListCurves(context.Background(), nil, ListCurvesParams{Category: "exchange"})
	require.NoError(t, err)

	curves := out.(ListCurvesResult)
	assert.Equal(t, 8, curves.Count)
	for _, c := range curves.Curves {
		assert.Equal(t, domain.EXCHANGE, c.Category)
	}
}

func TestFeedbackTools(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, out, err := server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{
		CaseRef:       "case-9",
		SuggestedTier: "intensive-double",
		ClinicianTier: "intensive",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	submitted := out.(SubmitFeedbackResult)
	assert.True(t, submitted.Success)
	assert.False(t, submitted.Feedback.Agreed)

	_, out, err = server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{CaseRef: "case-10", SuggestedTier: "follow-up"})
	require.NoError(t, err)
	assert.True(t, out.(SubmitFeedbackResult).Feedback.Agreed)

	result, out, err = server.handleListFeedback(ctx, nil, ListFeedbackParams{})
	require.NoError(t, err)
	listed := out.(ListFeedbackResult)
	assert.Len(t, listed.Feedback, 2)
	assert.Equal(t, int64(1), listed.Summary.Agreed)
	assert.Contains(t, resultText(t, result), "agreement rate 50%")

	result, out, err = server.handleExportFeedback(ctx, nil, ExportFeedbackParams{Filename: "out.json"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	exported := out.(ExportFeedbackResult)
	assert.Equal(t, int64(2), exported.Count)
	_, err = os.Stat(exported.Path)
	assert.NoError(t, err)
}

func TestFeedbackTools_Invalid(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, _, err := server.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{SuggestedTier: "intensive"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = server.handleExportFeedback(ctx, nil, ExportFeedbackParams{Filename: "../escape.json"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHealthCheckTool(t *testing.T) {
	server := newTestServer(t)

	result, out, err := server.handleHealthCheck(context.Background(), nil, HealthCheckParams{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "healthy")

	status, ok := out.(*health.Status)
	require.True(t, ok)
	assert.Equal(t, health.StateHealthy, status.Overall)
	assert.Len(t, status.Components, 3)
}

func TestEvaluateInfantTool_DefaultLanguage(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "bili")
	cfg.Language = "fa"

	server, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	ga := 38
	age := 72.0
	tsb := 19.5
	params := EvaluateInfantParams{GestationalAgeWeeks: &ga, PostnatalAgeHours: &age, TotalBilirubin: &tsb}

	_, out, err := server.handleEvaluateInfant(context.Background(), nil, params)
	require.NoError(t, err)
	display := out.(EvaluateInfantResult).Display
	assert.Equal(t, "fa", display.Language)
	assert.Equal(t, "۱۸٫۵۷", display.Cards[0].Value)

	params.Language = "en"
	_, out, err = server.handleEvaluateInfant(context.Background(), nil, params)
	require.NoError(t, err)
	assert.Equal(t, "18.57", out.(EvaluateInfantResult).Display.Cards[0].Value)
}

func TestFeedbackTools_ImportAndDelete(t *testing.T) {
	ctx := context.Background()
	source := newTestServer(t)
	for _, ref := range []string{"case-31", "case-32"} {
		_, _, err := source.handleSubmitFeedback(ctx, nil, SubmitFeedbackParams{CaseRef: ref, SuggestedTier: "intensive"})
		require.NoError(t, err)
	}
	_, out, err := source.handleExportFeedback(ctx, nil, ExportFeedbackParams{Filename: "handoff.json"})
	require.NoError(t, err)
	exported := out.(ExportFeedbackResult)

	target := newTestServer(t)
	payload, err := os.ReadFile(exported.Path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(target.config.ExportDir(), "handoff.json"), payload, 0644))

	result, out, err := target.handleImportFeedback(ctx, nil, ImportFeedbackParams{Filename: "handoff.json"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, ImportFeedbackResult{Imported: 2, Skipped: 0}, out)

	_, out, err = target.handleImportFeedback(ctx, nil, ImportFeedbackParams{Filename: "handoff.json"})
	require.NoError(t, err)
	assert.Equal(t, ImportFeedbackResult{Imported: 0, Skipped: 2}, out)

	_, out, err = target.handleListFeedback(ctx, nil, ListFeedbackParams{})
	require.NoError(t, err)
	listed := out.(ListFeedbackResult)
	require.Len(t, listed.Feedback, 2)

	id := listed.Feedback[0].ID
	result, out, err = target.handleDeleteFeedback(ctx, nil, DeleteFeedbackParams{ID: id})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, DeleteFeedbackResult{ID: id, Deleted: true}, out)

	result, _, err = target.handleDeleteFeedback(ctx, nil, DeleteFeedbackParams{ID: id})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), domain.ErrNotFound)
}

func TestImportFeedbackTool_Errors(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		code     string
	}{
		{"missing name", "", domain.ErrInvalidInput},
		{"path traversal", "../feedback.db", domain.ErrInvalidInput},
		{"no such export", "absent.json", domain.ErrNotFound},
		{"not an export", "garbage.json", domain.ErrInvalidInput},
	}
	require.NoError(t, os.WriteFile(filepath.Join(server.config.ExportDir(), "garbage.json"), []byte("<<<"), 0644))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := server.handleImportFeedback(ctx, nil, ImportFeedbackParams{Filename: tt.filename})
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.code)
		})
	}
}

// brokenExportStore writes a partial document and then fails.
type brokenExportStore struct {
	feedback.Store
}

func (brokenExportStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	io.WriteString(writer, `{"version": "1.0", "feedback": [`)
	return errors.New("connection reset")
}

func (brokenExportStore) Close() error { return nil }

func TestExportFeedbackTool_RemovesPartialFile(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "bili")

	server, err := NewLiteServer(cfg, WithLogger(logger), WithFeedbackStore(brokenExportStore{}))
	require.NoError(t, err)

	result, _, err := server.handleExportFeedback(context.Background(), nil, ExportFeedbackParams{Filename: "partial.json"})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	_, statErr := os.Stat(filepath.Join(cfg.ExportDir(), "partial.json"))
	assert.True(t, os.IsNotExist(statErr))
}
