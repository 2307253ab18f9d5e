package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/health"
	"github.com/bili-threshold-server/internal/presenter"
	"github.com/bili-threshold-server/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ComputeThresholdParams defines parameters for the compute_threshold tool
type ComputeThresholdParams struct {
	Category            string  `json:"category" jsonschema:"phototherapy or exchange"`
	RiskFactorsPresent  bool    `json:"risk_factors_present,omitempty" jsonschema:"true when any neurotoxicity risk factor is present"`
	GestationalAgeWeeks int     `json:"gestational_age_weeks" jsonschema:"completed weeks of gestation"`
	PostnatalAgeHours   float64 `json:"postnatal_age_hours" jsonschema:"hours since birth"`
	Bilirubin           float64 `json:"bilirubin,omitempty" jsonschema:"total serum bilirubin in mg/dL"`
}

// EvaluateInfantParams defines parameters for the evaluate_infant tool.
// Either postnatal_age_hours or birth_time is needed for a tier.
type EvaluateInfantParams struct {
	RiskFactorsPresent      bool     `json:"risk_factors_present,omitempty"`
	KernicterusSignsPresent bool     `json:"kernicterus_signs_present,omitempty" jsonschema:"signs of acute bilirubin encephalopathy"`
	GestationalAgeWeeks     *int     `json:"gestational_age_weeks,omitempty"`
	PostnatalAgeHours       *float64 `json:"postnatal_age_hours,omitempty"`
	BirthTime               string   `json:"birth_time,omitempty" jsonschema:"RFC 3339 birth date and time"`
	LabTime                 string   `json:"lab_time,omitempty" jsonschema:"RFC 3339 sample time; defaults to now"`
	TotalBilirubin          *float64 `json:"total_bilirubin,omitempty" jsonschema:"mg/dL; 8.0 is assumed when absent"`
	Language                string   `json:"language,omitempty" jsonschema:"BCP 47 tag for the display numerals"`
}

// EvaluateInfantResult defines the result of evaluate_infant
type EvaluateInfantResult struct {
	Evaluation *domain.Evaluation `json:"evaluation"`
	Display    presenter.View     `json:"display"`
}

// ListCurvesParams defines parameters for the list_curves tool
type ListCurvesParams struct {
	Category string `json:"category,omitempty" jsonschema:"restrict to phototherapy or exchange"`
}

// ListCurvesResult defines the result of list_curves
type ListCurvesResult struct {
	Curves []domain.CurveSummary `json:"curves"`
	Count  int                   `json:"count"`
}

// SubmitFeedbackParams defines parameters for the submit_feedback tool
type SubmitFeedbackParams struct {
	CaseRef       string `json:"case_ref" jsonschema:"opaque case reference; never a patient identifier"`
	Site          string `json:"site,omitempty"`
	SuggestedTier string `json:"suggested_tier"`
	ClinicianTier string `json:"clinician_tier,omitempty" jsonschema:"tier actually chosen; empty means the suggestion was followed"`
	Notes         string `json:"notes,omitempty"`
}

// SubmitFeedbackResult defines the result of submit_feedback
type SubmitFeedbackResult struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Feedback *feedback.Feedback `json:"feedback,omitempty"`
}

// ListFeedbackParams defines parameters for the list_feedback tool
type ListFeedbackParams struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ListFeedbackResult defines the result of list_feedback
type ListFeedbackResult struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Summary  *feedback.Summary    `json:"summary"`
}

// ExportFeedbackParams defines parameters for the export_feedback tool
type ExportFeedbackParams struct {
	Filename string `json:"filename,omitempty" jsonschema:"file name inside the export directory"`
}

// ImportFeedbackParams defines parameters for the import_feedback tool
type ImportFeedbackParams struct {
	Filename string `json:"filename" jsonschema:"file name of an earlier export inside the export directory"`
}

// ImportFeedbackResult defines the result of import_feedback
type ImportFeedbackResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// DeleteFeedbackParams defines parameters for the delete_feedback tool
type DeleteFeedbackParams struct {
	ID int64 `json:"id"`
}

// DeleteFeedbackResult defines the result of delete_feedback
type DeleteFeedbackResult struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// ExportFeedbackResult defines the result of export_feedback
type ExportFeedbackResult struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

func (s *LiteServer) handleComputeThreshold(ctx context.Context, req *mcp.CallToolRequest, params ComputeThresholdParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "compute_threshold").Debug("Tool invoked")

	category, err := domain.ParseTreatmentCategory(params.Category)
	if err != nil {
		return createErrorResult(domain.ErrUnsupportedCategory, err), nil, nil
	}
	if params.GestationalAgeWeeks <= 0 {
		return createErrorResult(domain.ErrInvalidInput, fmt.Errorf("gestational_age_weeks must be positive")), nil, nil
	}
	if params.PostnatalAgeHours < 0 {
		return createErrorResult(domain.ErrInvalidInput, fmt.Errorf("postnatal_age_hours must not be negative")), nil, nil
	}

	result, err := s.evaluator.ComputeThreshold(domain.ThresholdQuery{
		Category:            category,
		RiskFactorsPresent:  params.RiskFactorsPresent,
		GestationalAgeWeeks: params.GestationalAgeWeeks,
		PostnatalAgeHours:   params.PostnatalAgeHours,
		Bilirubin:           params.Bilirubin,
	})
	if err != nil {
		return createErrorResult(domain.ErrorCode(err), err), nil, nil
	}

	return textResult(result.Message), result, nil
}

func (s *LiteServer) handleEvaluateInfant(ctx context.Context, req *mcp.CallToolRequest, params EvaluateInfantParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "evaluate_infant").Debug("Tool invoked")

	input, err := params.toInput(time.Now())
	if err != nil {
		return createErrorResult(domain.ErrValidation, err), nil, nil
	}

	evaluation, err := s.evaluator.Evaluate(ctx, input)
	if err != nil {
		return createErrorResult(domain.ErrorCode(err), err), nil, nil
	}

	lang := params.Language
	if lang == "" {
		lang = s.config.Language
	}
	view := presenter.ForLanguage(lang).Cards(evaluation)
	result := EvaluateInfantResult{Evaluation: evaluation, Display: view}

	return textResult(describeEvaluation(view)), result, nil
}

func (p EvaluateInfantParams) toInput(now time.Time) (domain.EvaluationInput, error) {
	input := domain.EvaluationInput{
		RiskFactorsPresent:      p.RiskFactorsPresent,
		KernicterusSignsPresent: p.KernicterusSignsPresent,
		GestationalAgeWeeks:     p.GestationalAgeWeeks,
		PostnatalAgeHours:       p.PostnatalAgeHours,
	}

	if input.PostnatalAgeHours == nil && p.BirthTime != "" {
		birth, err := time.Parse(time.RFC3339, p.BirthTime)
		if err != nil {
			return input, domain.NewValidationError("birth_time", "must be an RFC 3339 timestamp", p.BirthTime)
		}
		evaluatedAt := now
		if p.LabTime != "" {
			evaluatedAt, err = time.Parse(time.RFC3339, p.LabTime)
			if err != nil {
				return input, domain.NewValidationError("lab_time", "must be an RFC 3339 timestamp", p.LabTime)
			}
			if evaluatedAt.Before(birth) {
				return input, domain.NewValidationError("lab_time", "must not be before birth_time", p.LabTime)
			}
		}
		hours := service.PostnatalAgeHours(birth, evaluatedAt)
		input.PostnatalAgeHours = &hours
	}

	if p.TotalBilirubin != nil {
		tsb := service.ClampBilirubin(*p.TotalBilirubin)
		input.TotalBilirubin = &tsb
	}

	return input, nil
}

func describeEvaluation(view presenter.View) string {
	if view.Recommendation.Tier == domain.TIER_NONE {
		return "Not enough information for a recommendation: gestational age and postnatal age are required."
	}
	text := fmt.Sprintf("Recommendation: %s. %s", view.Recommendation.Tier, view.Recommendation.Detail)
	for _, card := range view.Cards {
		text += fmt.Sprintf("\n%s: %s %s", card.Label, card.Value, card.Unit)
	}
	return text
}

func (s *LiteServer) handleListCurves(ctx context.Context, req *mcp.CallToolRequest, params ListCurvesParams) (*mcp.CallToolResult, any, error) {
	tables := s.evaluator.Tables()

	if params.Category != "" {
		category, err := domain.ParseTreatmentCategory(params.Category)
		if err != nil {
			return createErrorResult(domain.ErrUnsupportedCategory, err), nil, nil
		}
		filtered := tables[:0]
		for _, t := range tables {
			if t.Category == category {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}

	curves := service.SummarizeCurves(tables)
	result := ListCurvesResult{Curves: curves, Count: len(curves)}
	return textResult(fmt.Sprintf("%d reference curves", len(curves))), result, nil
}

func (s *LiteServer) handleSubmitFeedback(ctx context.Context, req *mcp.CallToolRequest, params SubmitFeedbackParams) (*mcp.CallToolResult, any, error) {
	fb := &feedback.Feedback{
		CaseRef:       params.CaseRef,
		Site:          params.Site,
		SuggestedTier: domain.RecommendationTier(params.SuggestedTier),
		ClinicianTier: domain.RecommendationTier(params.ClinicianTier),
		Notes:         params.Notes,
	}
	if err := fb.Prepare(); err != nil {
		return createErrorResult(domain.ErrValidation, err), nil, nil
	}

	if err := s.feedbackStore.Save(ctx, fb); err != nil {
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"agreed":      fb.Agreed,
	}).Info("Feedback saved")

	message := "Feedback saved: clinician followed the suggested tier."
	if !fb.Agreed {
		message = fmt.Sprintf("Feedback saved: clinician chose %s instead of %s.", fb.ClinicianTier, fb.SuggestedTier)
	}
	return textResult(message), SubmitFeedbackResult{Success: true, Message: message, Feedback: fb}, nil
}

func (s *LiteServer) handleListFeedback(ctx context.Context, req *mcp.CallToolRequest, params ListFeedbackParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	entries, err := s.feedbackStore.List(ctx, limit, offset)
	if err != nil {
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}
	summary, err := feedback.Summarize(ctx, s.feedbackStore)
	if err != nil {
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	text := fmt.Sprintf("%d feedback entries (showing %d); agreement rate %.0f%%",
		summary.Total, len(entries), summary.AgreementRate*100)
	return textResult(text), ListFeedbackResult{Feedback: entries, Summary: summary}, nil
}

func (s *LiteServer) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	filename := params.Filename
	if filename == "" {
		filename = fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	path, err := s.exportPath(filename)
	if err != nil {
		return createErrorResult(domain.ErrInvalidInput, err), nil, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return createErrorResult(domain.ErrInternalServer, fmt.Errorf("failed to create export file: %w", err)), nil, nil
	}
	if err := s.feedbackStore.ExportJSON(ctx, file); err != nil {
		file.Close()
		os.Remove(path)
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return createErrorResult(domain.ErrInternalServer, fmt.Errorf("failed to write export file: %w", err)), nil, nil
	}

	count, err := s.feedbackStore.Count(ctx)
	if err != nil {
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}

	return textResult(fmt.Sprintf("Exported %d feedback entries to %s", count, path)), ExportFeedbackResult{Path: path, Count: count}, nil
}

func (s *LiteServer) handleImportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ImportFeedbackParams) (*mcp.CallToolResult, any, error) {
	if params.Filename == "" {
		return createErrorResult(domain.ErrInvalidInput, fmt.Errorf("filename is required")), nil, nil
	}
	path, err := s.exportPath(params.Filename)
	if err != nil {
		return createErrorResult(domain.ErrInvalidInput, err), nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return createErrorResult(domain.ErrNotFound, fmt.Errorf("no export named %q", params.Filename)), nil, nil
		}
		return createErrorResult(domain.ErrInternalServer, fmt.Errorf("failed to open export file: %w", err)), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.feedbackStore.ImportJSON(ctx, file)
	if err != nil {
		code := domain.ErrDatabaseError
		if imported == 0 && skipped == 0 {
			code = domain.ErrInvalidInput
		}
		return createErrorResult(code, err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"file":     params.Filename,
		"imported": imported,
		"skipped":  skipped,
	}).Info("Feedback imported")

	result := ImportFeedbackResult{Imported: imported, Skipped: skipped}
	return textResult(fmt.Sprintf("Imported %d feedback entries, skipped %d", imported, skipped)), result, nil
}

func (s *LiteServer) handleDeleteFeedback(ctx context.Context, req *mcp.CallToolRequest, params DeleteFeedbackParams) (*mcp.CallToolResult, any, error) {
	if params.ID <= 0 {
		return createErrorResult(domain.ErrInvalidInput, fmt.Errorf("id must be positive")), nil, nil
	}

	if err := s.feedbackStore.Delete(ctx, params.ID); err != nil {
		if errors.Is(err, feedback.ErrNotFound) {
			return createErrorResult(domain.ErrNotFound, err), nil, nil
		}
		return createErrorResult(domain.ErrDatabaseError, err), nil, nil
	}

	return textResult(fmt.Sprintf("Deleted feedback %d", params.ID)), DeleteFeedbackResult{ID: params.ID, Deleted: true}, nil
}

// exportPath resolves a bare file name inside the export directory.
func (s *LiteServer) exportPath(filename string) (string, error) {
	if filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return "", fmt.Errorf("filename must not contain a path: %q", filename)
	}
	return filepath.Join(s.config.ExportDir(), filename), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func createErrorResult(code string, err error) *mcp.CallToolResult {
	mcpErr := domain.NewMCPError(code, err.Error(), "", "")
	body, _ := json.Marshal(mcpErr)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %s", mcpErr.Error())},
			&mcp.TextContent{Text: string(body)},
		},
		IsError: true,
	}
}

// HealthCheckParams takes no arguments.
type HealthCheckParams struct{}

func (s *LiteServer) handleHealthCheck(ctx context.Context, req *mcp.CallToolRequest, params HealthCheckParams) (*mcp.CallToolResult, any, error) {
	status := s.health.Run(ctx)

	result := textResult(fmt.Sprintf("Server is %s (%d components checked).", status.Overall, len(status.Components)))
	result.IsError = status.Overall == health.StateUnhealthy
	return result, status, nil
}
