package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// InstrumentedBackend wraps a supervisor.Backend with metrics and tracing.
type InstrumentedBackend struct {
	inner   supervisor.Backend
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedBackend wraps an agent backend with observability.
func NewInstrumentedBackend(inner supervisor.Backend, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedBackend {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedBackend{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (b *InstrumentedBackend) Execute(ctx context.Context, agentID string, task *supervisor.AgentTask, conversation []supervisor.Message, sessionID string) (*supervisor.AgentResult, error) {
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "backend.execute",
			trace.WithAttributes(
				attribute.String("agent.id", agentID),
				attribute.String("task.id", task.TaskID),
				attribute.String("session.id", sessionID),
			))
		defer span.End()
	}

	start := time.Now()
	result, err := b.inner.Execute(ctx, agentID, task, conversation, sessionID)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if b.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if b.metrics != nil {
		b.metrics.BackendRequestsTotal.WithLabelValues(agentID, status).Inc()
		b.metrics.BackendRequestDuration.WithLabelValues(agentID).Observe(duration)
	}

	return result, err
}

var _ supervisor.Backend = (*InstrumentedBackend)(nil)
