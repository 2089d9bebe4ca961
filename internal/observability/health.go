package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// checkTimeout bounds every readiness probe. A dependency that cannot answer
// within it counts as failed.
const checkTimeout = 3 * time.Second

// HealthChecker aggregates readiness from registered dependency checks. The
// zero set of checks reports ready, so a bare engine with no storage or
// backend probes still serves /readyz.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]func(ctx context.Context) error
	order  []string
	logger *slog.Logger
}

// HealthStatus is the JSON body served by the health and readiness
// endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency probe, with how long it took.
type CheckResult struct {
	Status    string `json:"status"` // "ok" or "fail"
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{checks: make(map[string]func(ctx context.Context) error), logger: logger}
}

// AddCheck registers a named readiness probe. Re-registering a name replaces
// the previous probe.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.checks[name]; !exists {
		h.order = append(h.order, name)
	}
	h.checks[name] = check
}

// CheckHealth is liveness: the process answered, so it is alive.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered probe concurrently under a shared timeout
// and aggregates the results. Any failure degrades the whole report; slow
// dependencies cost one timeout in total, not one each.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := append([]string(nil), h.order...)
	checks := make(map[string]func(ctx context.Context) error, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	if len(names) == 0 {
		return HealthStatus{Status: "ok"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(names)),
	}
	for _, name := range names {
		wg.Add(1)
		go func(name string, check func(ctx context.Context) error) {
			defer wg.Done()
			start := time.Now()
			err := check(checkCtx)
			result := CheckResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				result.Status = "fail"
				result.Message = err.Error()
				if h.logger != nil {
					h.logger.Warn("readiness check failed",
						slog.String("check", name),
						slog.String("error", err.Error()),
					)
				}
			}
			mu.Lock()
			if err != nil {
				status.Status = "degraded"
			}
			status.Checks[name] = result
			mu.Unlock()
		}(name, checks[name])
	}
	wg.Wait()

	return status
}
