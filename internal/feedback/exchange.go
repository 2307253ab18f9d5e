package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bili-threshold-server/internal/domain"
)

const (
	exportVersion = "1.0"

	// maxExportLimit is the maximum number of entries to export at once.
	maxExportLimit = 1000000
)

func exportJSON(ctx context.Context, store Store, writer io.Writer) error {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}

	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		if err := fb.Prepare(); err != nil {
			skipped++
			continue
		}

		existing, err := store.Get(ctx, fb.CaseRef, fb.Site)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		fb.ID = 0
		if err := store.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Summarize computes agreement statistics over every stored entry.
func Summarize(ctx context.Context, store Store) (*Summary, error) {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	summary := &Summary{ByTier: make(map[domain.RecommendationTier]int64)}
	for _, fb := range all {
		summary.Total++
		summary.ByTier[fb.SuggestedTier]++
		if fb.Agreed {
			summary.Agreed++
		}
	}
	if summary.Total > 0 {
		summary.AgreementRate = float64(summary.Agreed) / float64(summary.Total)
	}
	return summary, nil
}

func requireDeleted(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
