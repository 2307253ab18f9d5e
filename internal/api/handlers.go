package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
	"github.com/bili-threshold-server/internal/presenter"
	"github.com/bili-threshold-server/internal/service"
)

const (
	defaultFeedbackLimit = 50
	maxFeedbackLimit     = 500
)

// ThresholdRequest is the body of POST /api/v1/threshold.
type ThresholdRequest struct {
	Category            string   `json:"category" binding:"required"`
	RiskFactorsPresent  bool     `json:"risk_factors_present"`
	GestationalAgeWeeks int      `json:"gestational_age_weeks" binding:"required,gt=0"`
	PostnatalAgeHours   *float64 `json:"postnatal_age_hours" binding:"required,gte=0"`
	Bilirubin           float64  `json:"bilirubin" binding:"gte=0"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate. Postnatal age is taken
// from PostnatalAgeHours when set, otherwise derived from BirthTime and
// LabTime (default: now).
type EvaluateRequest struct {
	RiskFactorsPresent      bool       `json:"risk_factors_present"`
	KernicterusSignsPresent bool       `json:"kernicterus_signs_present"`
	GestationalAgeWeeks     *int       `json:"gestational_age_weeks" binding:"omitempty,gt=0"`
	PostnatalAgeHours       *float64   `json:"postnatal_age_hours" binding:"omitempty,gte=0"`
	BirthTime               *time.Time `json:"birth_time"`
	LabTime                 *time.Time `json:"lab_time"`
	TotalBilirubin          *float64   `json:"total_bilirubin" binding:"omitempty,gte=0"`
	Language                string     `json:"language"`
}

// EvaluateResponse pairs the raw evaluation with its display view.
type EvaluateResponse struct {
	Evaluation *domain.Evaluation `json:"evaluation"`
	Display    presenter.View     `json:"display"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	CaseRef       string `json:"case_ref" binding:"required"`
	Site          string `json:"site"`
	SuggestedTier string `json:"suggested_tier" binding:"required"`
	ClinicianTier string `json:"clinician_tier"`
	Notes         string `json:"notes"`
}

func (s *Server) handleListCurves(c *gin.Context) {
	curves := service.SummarizeCurves(s.evaluator.Tables())
	c.JSON(http.StatusOK, gin.H{
		"curves": curves,
		"count":  len(curves),
	})
}

func (s *Server) handleComputeThreshold(c *gin.Context) {
	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	category, err := domain.ParseTreatmentCategory(req.Category)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrUnsupportedCategory, "Unsupported treatment category", err)
		return
	}

	result, err := s.evaluator.ComputeThreshold(domain.ThresholdQuery{
		Category:            category,
		RiskFactorsPresent:  req.RiskFactorsPresent,
		GestationalAgeWeeks: req.GestationalAgeWeeks,
		PostnatalAgeHours:   *req.PostnatalAgeHours,
		Bilirubin:           req.Bilirubin,
	})
	if err != nil {
		if code := domain.ErrorCode(err); code == domain.ErrUnsupportedCategory {
			s.respondError(c, http.StatusBadRequest, code, "Unsupported treatment category", err)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Threshold lookup failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	input, err := req.toInput(time.Now())
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid evaluation input", err)
		return
	}

	evaluation, err := s.evaluator.Evaluate(c.Request.Context(), input)
	if err != nil {
		s.respondEvaluationError(c, err)
		return
	}

	p := presenter.ForLanguage(req.Language)
	if req.Language == "" {
		p = presenter.FromAcceptLanguage(c.GetHeader("Accept-Language"))
	}

	c.JSON(http.StatusOK, EvaluateResponse{
		Evaluation: evaluation,
		Display:    p.Cards(evaluation),
	})
}

func (s *Server) respondEvaluationError(c *gin.Context, err error) {
	switch {
	case domain.ErrorCode(err) == domain.ErrValidation:
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid evaluation input", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.respondError(c, http.StatusGatewayTimeout, domain.ErrInternalServer, "Evaluation timed out", err)
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Evaluation failed", err)
	}
}

// toInput resolves the request into an evaluation input. TSB entries are
// clamped the way the bedside form clamps them.
func (r EvaluateRequest) toInput(now time.Time) (domain.EvaluationInput, error) {
	input := domain.EvaluationInput{
		RiskFactorsPresent:      r.RiskFactorsPresent,
		KernicterusSignsPresent: r.KernicterusSignsPresent,
		GestationalAgeWeeks:     r.GestationalAgeWeeks,
		PostnatalAgeHours:       r.PostnatalAgeHours,
	}

	if input.PostnatalAgeHours == nil && r.BirthTime != nil {
		evaluatedAt := now
		if r.LabTime != nil {
			if r.LabTime.Before(*r.BirthTime) {
				return input, domain.NewValidationError("lab_time", "must not be before birth_time", r.LabTime)
			}
			evaluatedAt = *r.LabTime
		}
		hours := service.PostnatalAgeHours(*r.BirthTime, evaluatedAt)
		input.PostnatalAgeHours = &hours
	}

	if r.TotalBilirubin != nil {
		tsb := service.ClampBilirubin(*r.TotalBilirubin)
		input.TotalBilirubin = &tsb
	}

	return input, nil
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err)
		return
	}

	fb := &feedback.Feedback{
		CaseRef:       req.CaseRef,
		Site:          req.Site,
		SuggestedTier: domain.RecommendationTier(req.SuggestedTier),
		ClinicianTier: domain.RecommendationTier(req.ClinicianTier),
		Notes:         req.Notes,
	}
	if err := fb.Prepare(); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid feedback", err)
		return
	}

	if err := s.feedbackStore.Save(c.Request.Context(), fb); err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to save feedback", err)
		return
	}

	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	limit := queryInt(c, "limit", defaultFeedbackLimit)
	if limit <= 0 || limit > maxFeedbackLimit {
		limit = defaultFeedbackLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	entries, err := s.feedbackStore.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to list feedback", err)
		return
	}
	total, err := s.feedbackStore.Count(ctx)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to count feedback", err)
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleFeedbackSummary(c *gin.Context) {
	summary, err := feedback.Summarize(c.Request.Context(), s.feedbackStore)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to summarize feedback", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleExportFeedback(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="feedback-export.json"`)
	c.Status(http.StatusOK)
	if err := s.feedbackStore.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Feedback export failed")
	}
}

func (s *Server) handleImportFeedback(c *gin.Context) {
	imported, skipped, err := s.feedbackStore.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		if imported == 0 && skipped == 0 {
			s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid feedback export", err)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Feedback import stopped", err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Feedback imported")

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}

func (s *Server) handleDeleteFeedback(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Feedback ID must be a positive integer", err)
		return
	}

	if err := s.feedbackStore.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, feedback.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, domain.ErrNotFound, "Feedback not found", err)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to delete feedback", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
