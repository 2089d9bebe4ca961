// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and health checks for Msimamizi.
// All components are optional and nil-safe — when disabled, wrappers
// skip recording with a single nil check per operation.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// Observability is the top-level facade holding all observability components.
// Any field may be nil when that feature is disabled.
type Observability struct {
	Metrics    *MetricsCollector
	Supervisor *supervisor.SupervisorMetrics
	Tracer     *TracerSetup
	Health     *HealthChecker
}

// New creates an Observability instance from config.
// Returns nil when the config is nil (all features disabled).
func New(cfg *config.ObservabilityConfig, logger *slog.Logger) (*Observability, error) {
	if cfg == nil {
		return nil, nil
	}

	obs := &Observability{}

	// Metrics. Engine metrics register on the collector's registry so a
	// single exposition endpoint serves both.
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		obs.Metrics = NewMetricsCollector()
		obs.Supervisor = supervisor.NewSupervisorMetrics(obs.Metrics.Registry)
	}

	// Tracing.
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		ts, err := NewTracerSetup(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		obs.Tracer = ts
	}

	// Health checker (always created, checks added later in main).
	obs.Health = NewHealthChecker(logger)

	return obs, nil
}

// Shutdown releases observability resources.
func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	if o.Tracer != nil {
		_ = o.Tracer.Shutdown(ctx)
	}
}

// SupervisorMetricsOrNil returns the engine metrics or nil when disabled.
func (o *Observability) SupervisorMetricsOrNil() *supervisor.SupervisorMetrics {
	if o == nil {
		return nil
	}
	return o.Supervisor
}

// TracerOrNil returns the OTel tracer or nil if tracing is disabled.
func (o *Observability) TracerOrNil() *TracerSetup {
	if o == nil {
		return nil
	}
	return o.Tracer
}
