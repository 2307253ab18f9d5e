// Package feedback stores clinician feedback on suggested recommendation tiers.
// Entries are keyed by an opaque case reference chosen by the caller; no
// patient data or evaluation inputs are persisted.
package feedback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bili-threshold-server/internal/domain"
)

// ErrNotFound is returned when a feedback entry does not exist.
var ErrNotFound = errors.New("feedback not found")

// Feedback records whether a clinician acted on the suggested tier.
type Feedback struct {
	ID            int64                     `json:"id,omitempty"`
	CaseRef       string                    `json:"case_ref"`
	Site          string                    `json:"site,omitempty"`
	SuggestedTier domain.RecommendationTier `json:"suggested_tier"`
	ClinicianTier domain.RecommendationTier `json:"clinician_tier"`
	Agreed        bool                      `json:"agreed"`
	Notes         string                    `json:"notes,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// Prepare validates the entry and derives Agreed. An empty ClinicianTier means
// the clinician accepted the suggestion.
func (f *Feedback) Prepare() error {
	if f.CaseRef == "" {
		return domain.NewValidationError("case_ref", "is required", f.CaseRef)
	}
	if !f.SuggestedTier.IsValid() {
		return domain.NewValidationError("suggested_tier", "is not a known tier", f.SuggestedTier)
	}
	if f.ClinicianTier == domain.TIER_NONE {
		f.ClinicianTier = f.SuggestedTier
	}
	if !f.ClinicianTier.IsValid() {
		return domain.NewValidationError("clinician_tier", "is not a known tier", f.ClinicianTier)
	}
	f.Agreed = f.SuggestedTier == f.ClinicianTier
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save inserts feedback or updates the entry with the same case_ref and site.
	Save(ctx context.Context, feedback *Feedback) error

	// Get returns the entry for a case, or nil when there is none.
	Get(ctx context.Context, caseRef string, site string) (*Feedback, error)

	// List returns entries newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	Count(ctx context.Context) (int64, error)

	// Delete removes an entry by ID, returning ErrNotFound when none matched.
	Delete(ctx context.Context, id int64) error

	// ExportJSON writes every entry as a FeedbackExport document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads a FeedbackExport document, skipping cases already stored.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

// Summary aggregates agreement across stored feedback.
type Summary struct {
	Total         int64                               `json:"total"`
	Agreed        int64                               `json:"agreed"`
	AgreementRate float64                             `json:"agreement_rate"`
	ByTier        map[domain.RecommendationTier]int64 `json:"by_tier"`
}
