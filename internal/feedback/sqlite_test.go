package feedback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bili-threshold-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newFeedback(caseRef string, suggested, clinician domain.RecommendationTier) *Feedback {
	fb := &Feedback{
		CaseRef:       caseRef,
		Site:          "nicu-a",
		SuggestedTier: suggested,
		ClinicianTier: clinician,
	}
	if err := fb.Prepare(); err != nil {
		panic(err)
	}
	return fb
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestFeedback_Prepare(t *testing.T) {
	t.Run("empty clinician tier accepts suggestion", func(t *testing.T) {
		fb := &Feedback{CaseRef: "case-1", SuggestedTier: domain.TIER_INTENSIVE}
		require.NoError(t, fb.Prepare())
		assert.Equal(t, domain.TIER_INTENSIVE, fb.ClinicianTier)
		assert.True(t, fb.Agreed)
	})

	t.Run("different tier is disagreement", func(t *testing.T) {
		fb := &Feedback{CaseRef: "case-1", SuggestedTier: domain.TIER_INTENSIVE, ClinicianTier: domain.TIER_INTENSIVE_DOUBLE}
		require.NoError(t, fb.Prepare())
		assert.False(t, fb.Agreed)
	})

	tests := []struct {
		name  string
		fb    Feedback
		field string
	}{
		{"missing case", Feedback{SuggestedTier: domain.TIER_INTENSIVE}, "case_ref"},
		{"empty suggestion", Feedback{CaseRef: "c"}, "suggested_tier"},
		{"unknown clinician tier", Feedback{CaseRef: "c", SuggestedTier: domain.TIER_INTENSIVE, ClinicianTier: "watchful"}, "clinician_tier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fb.Prepare()
			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := newFeedback("case-001", domain.TIER_INTENSIVE, domain.TIER_INTENSIVE_ESCALATED)
	fb.Notes = "Rapid rate of rise"

	require.NoError(t, store.Save(ctx, fb))
	assert.NotZero(t, fb.ID)
	assert.False(t, fb.CreatedAt.IsZero())

	got, err := store.Get(ctx, "case-001", "nicu-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fb.ID, got.ID)
	assert.Equal(t, domain.TIER_INTENSIVE, got.SuggestedTier)
	assert.Equal(t, domain.TIER_INTENSIVE_ESCALATED, got.ClinicianTier)
	assert.False(t, got.Agreed)
	assert.Equal(t, "Rapid rate of rise", got.Notes)
}

func TestSQLiteStore_SaveUpdatesSameCase(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	first := newFeedback("case-002", domain.TIER_FOLLOW_UP, domain.TIER_INTENSIVE_SINGLE)
	require.NoError(t, store.Save(ctx, first))

	second := newFeedback("case-002", domain.TIER_FOLLOW_UP, "")
	second.Notes = "Reconsidered"
	require.NoError(t, store.Save(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.Get(ctx, "case-002", "nicu-a")
	require.NoError(t, err)
	assert.True(t, got.Agreed)
	assert.Equal(t, "Reconsidered", got.Notes)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := createTestStore(t)

	got, err := store.Get(context.Background(), "missing", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ListCountDelete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, ref := range []string{"case-a", "case-b", "case-c"} {
		require.NoError(t, store.Save(ctx, newFeedback(ref, domain.TIER_INTENSIVE, "")))
	}

	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, "case-c", page[0].CaseRef)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	require.NoError(t, store.Delete(ctx, rest[0].ID))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.ErrorIs(t, store.Delete(ctx, rest[0].ID), ErrNotFound)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, newFeedback("case-x", domain.TIER_EXCHANGE_NOW, "")))
	require.NoError(t, source.Save(ctx, newFeedback("case-y", domain.TIER_FOLLOW_UP, domain.TIER_INTENSIVE_SINGLE)))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, newFeedback("case-x", domain.TIER_EXCHANGE_NOW, "")))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	got, err := target.Get(ctx, "case-y", "nicu-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Agreed)
}

func TestSQLiteStore_ImportRejectsBadJSON(t *testing.T) {
	store := createTestStore(t)

	_, _, err := store.ImportJSON(context.Background(), bytes.NewBufferString("{not json"))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newFeedback("s1", domain.TIER_INTENSIVE, "")))
	require.NoError(t, store.Save(ctx, newFeedback("s2", domain.TIER_INTENSIVE, domain.TIER_INTENSIVE_DOUBLE)))
	require.NoError(t, store.Save(ctx, newFeedback("s3", domain.TIER_FOLLOW_UP, "")))
	require.NoError(t, store.Save(ctx, newFeedback("s4", domain.TIER_FOLLOW_UP, "")))

	summary, err := Summarize(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, int64(3), summary.Agreed)
	assert.InDelta(t, 0.75, summary.AgreementRate, 1e-9)
	assert.Equal(t, int64(2), summary.ByTier[domain.TIER_INTENSIVE])
}
