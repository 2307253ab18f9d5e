package health

import (
	"context"
	"fmt"

	"github.com/bili-threshold-server/internal/cache"
	"github.com/bili-threshold-server/internal/domain"
	"github.com/bili-threshold-server/internal/feedback"
)

// expectedTables is the number of (category, risk) reference tables.
const expectedTables = 4

// ReferenceTablesCheck verifies that every reference table is loaded and non-empty.
type ReferenceTablesCheck struct {
	Engine domain.ThresholdEngine
}

// Name returns the check name.
func (c ReferenceTablesCheck) Name() string { return "reference_tables" }

// Check inspects the engine's tables.
func (c ReferenceTablesCheck) Check(ctx context.Context) ComponentHealth {
	tables := c.Engine.Tables()
	curves := 0
	for _, t := range tables {
		if len(t.Curves) == 0 {
			return ComponentHealth{
				Status:  StateUnhealthy,
				Message: fmt.Sprintf("%s/%s table has no curves", t.Category, t.Risk),
			}
		}
		curves += len(t.Curves)
	}
	if len(tables) != expectedTables {
		return ComponentHealth{
			Status:  StateUnhealthy,
			Message: fmt.Sprintf("expected %d reference tables, found %d", expectedTables, len(tables)),
		}
	}
	return ComponentHealth{
		Status:   StateHealthy,
		Message:  "Reference tables loaded",
		Metadata: map[string]interface{}{"tables": len(tables), "curves": curves},
	}
}

// FeedbackStoreCheck verifies the feedback store answers queries.
type FeedbackStoreCheck struct {
	Store feedback.Store
}

// Name returns the check name.
func (c FeedbackStoreCheck) Name() string { return "feedback_store" }

// Check counts feedback entries.
func (c FeedbackStoreCheck) Check(ctx context.Context) ComponentHealth {
	if c.Store == nil {
		return ComponentHealth{Status: StateWarning, Message: "Feedback store not configured"}
	}
	count, err := c.Store.Count(ctx)
	if err != nil {
		return ComponentHealth{
			Status:  StateUnhealthy,
			Message: "Feedback store query failed",
			Error:   err.Error(),
		}
	}
	return ComponentHealth{
		Status:   StateHealthy,
		Message:  "Feedback store reachable",
		Metadata: map[string]interface{}{"entries": count},
	}
}

// CacheCheck reports evaluation cache statistics. A missing cache is only a warning.
type CacheCheck struct {
	Cache *cache.MemoryCache[domain.Evaluation]
}

// Name returns the check name.
func (c CacheCheck) Name() string { return "evaluation_cache" }

// Check reads the cache counters.
func (c CacheCheck) Check(ctx context.Context) ComponentHealth {
	if c.Cache == nil {
		return ComponentHealth{Status: StateWarning, Message: "Evaluation cache disabled"}
	}
	stats := c.Cache.Stats()
	return ComponentHealth{
		Status:  StateHealthy,
		Message: "Evaluation cache active",
		Metadata: map[string]interface{}{
			"items":  stats.Items,
			"hits":   stats.Hits,
			"misses": stats.Misses,
		},
	}
}
