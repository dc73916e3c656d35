// Package health runs registered component checks in parallel and serves the
// aggregate over liveness and readiness endpoints. A degraded component (for
// example missing embeddings) keeps the service ready; only a down component
// fails readiness.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check is a function that tests a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every check concurrently. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(checks))
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
		results = append(results, ComponentHealth{})
	}
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res := checks[name](ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
		}()
	}
	wg.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if severity(results[i].Status) > severity(report.Status) {
			report.Status = results[i].Status
		}
	}
	return report
}

func severity(s Status) int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// LiveHandler answers liveness checks. It never runs the checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.write(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler runs the checks with a 5s budget. Only a down component
// answers 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.write(w, status, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Error("writing health response", "error", err)
	}
}

// PingCheck reports down when ping fails.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// DirCheck reports down when path is not a readable directory.
func DirCheck(path string) Check {
	return func(ctx context.Context) ComponentHealth {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		case !info.IsDir():
			return ComponentHealth{Status: StatusDown, Message: path + " is not a directory"}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// FlagCheck reports degraded with message while ok returns false.
func FlagCheck(ok func() bool, message string) Check {
	return func(ctx context.Context) ComponentHealth {
		if !ok() {
			return ComponentHealth{Status: StatusDegraded, Message: message}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Soft downgrades a failing check to degraded, for dependencies the service
// can run without.
func Soft(check Check) Check {
	return func(ctx context.Context) ComponentHealth {
		res := check(ctx)
		if res.Status == StatusDown {
			res.Status = StatusDegraded
		}
		return res
	}
}
