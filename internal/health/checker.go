// Package health runs component checks for the /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the health of one component or of the whole server.
type State string

const (
	StateHealthy   State = "healthy"
	StateWarning   State = "warning"
	StateUnhealthy State = "unhealthy"
)

// ComponentHealth is the outcome of one check.
type ComponentHealth struct {
	Name     string                 `json:"name"`
	Status   State                  `json:"status"`
	Message  string                 `json:"message"`
	Duration time.Duration          `json:"duration"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Status aggregates all component results.
type Status struct {
	Overall    State                      `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Check reports the health of one component.
type Check interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// Checker runs registered checks concurrently under a shared timeout.
type Checker struct {
	logger  *logrus.Logger
	version string
	timeout time.Duration
	started time.Time

	mu     sync.RWMutex
	checks []Check
}

// NewChecker creates a checker. Checks exceeding timeout see a cancelled context.
func NewChecker(logger *logrus.Logger, version string, timeout time.Duration) *Checker {
	return &Checker{
		logger:  logger,
		version: version,
		timeout: timeout,
		started: time.Now(),
	}
}

// Register adds a check.
func (h *Checker) Register(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// Run executes every check and derives the overall state: any unhealthy
// component makes the server unhealthy, any warning makes it a warning.
func (h *Checker) Run(ctx context.Context) *Status {
	h.mu.RLock()
	checks := append([]Check(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(chan ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			start := time.Now()
			result := c.Check(ctx)
			result.Name = c.Name()
			result.Duration = time.Since(start)
			results <- result
		}(check)
	}
	wg.Wait()
	close(results)

	components := make(map[string]ComponentHealth, len(checks))
	overall := StateHealthy
	for result := range results {
		components[result.Name] = result
		switch result.Status {
		case StateUnhealthy:
			overall = StateUnhealthy
		case StateWarning:
			if overall == StateHealthy {
				overall = StateWarning
			}
		}
	}

	if overall != StateHealthy {
		h.logger.WithFields(logrus.Fields{
			"overall_status":       overall,
			"unhealthy_components": failing(components),
		}).Warn("Health check completed with issues")
	}

	return &Status{
		Overall:    overall,
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: components,
	}
}

func failing(components map[string]ComponentHealth) []string {
	var names []string
	for name, c := range components {
		if c.Status != StateHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CheckFunc adapts a function into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) ComponentHealth
}

// Name returns the check name.
func (f CheckFunc) Name() string { return f.CheckName }

// Check runs the function.
func (f CheckFunc) Check(ctx context.Context) ComponentHealth { return f.Fn(ctx) }
