// Package httpapi implements the HTTP API gateway for Msimamizi.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-caller rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/jkaninda/msimamizi/internal/observability"
	"github.com/jkaninda/msimamizi/internal/ratelimit"
	"github.com/jkaninda/msimamizi/internal/supervisor"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → caller name. Empty = unauthenticated.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	manager *supervisor.Manager
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server
	maxBody int64

	// Extra handlers mounted on the HTTP mux (e.g., the WebSocket event endpoint).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway around a run manager.
func NewGateway(cfg Config, m *supervisor.Manager, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:  cfg,
		manager: m,
		limiter: rl,
		logger:  logger,
		maxBody: maxSize,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// maxBytes caps the request body at limit bytes. A handler reading past the
// limit gets a *http.MaxBytesError and the server closes the connection, so
// an oversized payload never reaches a handler whole.
func maxBytes(limit int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Msimamizi",
			Version: "v0.0.1",
		},
	)
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
// Used for the WebSocket event stream endpoint alongside the API routes.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Body size cap, applied globally before anything reads the body.
	g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
		return maxBytes(g.maxBody, next)
	})

	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/runs", g.handleRunSubmit,
		okapi.DocSummary("Submit an objective for supervised execution"),
		okapi.DocTags("Runs"),
		okapi.DocRequestBody(RunSubmitRequest{}),
		okapi.DocResponse(http.StatusAccepted, RunResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/runs/wait", g.handleRunWait,
		okapi.DocSummary("Run an objective to completion and return the result"),
		okapi.DocTags("Runs"),
		okapi.DocRequestBody(RunSubmitRequest{}),
		okapi.DocResponse(RunResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Post("/runs/stream", g.handleRunStream,
		okapi.DocSummary("Run an objective and stream task results via SSE"),
		okapi.DocTags("Runs"),
		okapi.DocRequestBody(RunSubmitRequest{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Get("/runs", g.handleRunList,
		okapi.DocSummary("List runs"),
		okapi.DocTags("Runs"),
		okapi.DocResponse([]RunResponse{}),
	)
	g.group.Get("/runs/{id}", g.handleRunStatus,
		okapi.DocSummary("Get run status"),
		okapi.DocTags("Runs"),
		okapi.DocPathParam("id", "string", "Run ID (UUID)"),
		okapi.DocResponse(RunResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/runs/{id}/state", g.handleRunState,
		okapi.DocSummary("Get the full supervisor state snapshot for a run"),
		okapi.DocTags("Runs"),
		okapi.DocPathParam("id", "string", "Run ID (UUID)"),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/runs/{id}/tasks", g.handleRunTasks,
		okapi.DocSummary("List tasks in a run"),
		okapi.DocTags("Runs"),
		okapi.DocPathParam("id", "string", "Run ID (UUID)"),
		okapi.DocResponse([]TaskResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/runs/{id}/cancel", g.handleRunCancel,
		okapi.DocSummary("Cancel a running supervision"),
		okapi.DocTags("Runs"),
		okapi.DocPathParam("id", "string", "Run ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Extra handlers (e.g., WebSocket event endpoint).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// RunSubmitRequest is the JSON body for POST /v1/runs.
type RunSubmitRequest struct {
	Objective string `json:"objective"`
}

// RunResponse is the JSON representation of a run.
type RunResponse struct {
	ID             string     `json:"id"`
	Objective      string     `json:"objective"`
	Status         string     `json:"status"`
	Feedback       string     `json:"feedback,omitempty"`
	Phase          string     `json:"phase,omitempty"`
	Checkpoint     int        `json:"checkpoint,omitempty"`
	TaskCount      int        `json:"task_count,omitempty"`
	AgreementScore *float64   `json:"agreement_score,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (g *Gateway) handleRunSubmit(c *okapi.Context) error {
	callerID := c.GetString("callerID")

	if g.limiter != nil {
		if err := g.limiter.Allow(callerID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req RunSubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("objective is required")
	}
	if req.Objective == "" {
		return c.AbortBadRequest("objective is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http run submit",
		slog.String("caller_id", callerID),
		slog.String("correlation_id", correlationID),
	)

	rec, err := g.manager.Submit(c.Context(), req.Objective)
	if err != nil {
		g.logger.Error("run submission failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("run submission failed")
	}

	resp := runResponse(rec)
	resp.CorrelationID = correlationID
	return c.JSON(http.StatusAccepted, resp)
}

func (g *Gateway) handleRunWait(c *okapi.Context) error {
	callerID := c.GetString("callerID")

	if g.limiter != nil {
		if err := g.limiter.Allow(callerID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req RunSubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("objective is required")
	}
	if req.Objective == "" {
		return c.AbortBadRequest("objective is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http run wait",
		slog.String("caller_id", callerID),
		slog.String("correlation_id", correlationID),
	)

	rec, err := g.manager.Execute(c.Context(), req.Objective)
	if err != nil && rec == nil {
		g.logger.Error("run execution failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("run execution failed")
	}

	resp := runResponse(rec)
	resp.CorrelationID = correlationID
	return c.OK(resp)
}

func (g *Gateway) handleRunList(c *okapi.Context) error {
	recs, err := g.manager.List(c.Context())
	if err != nil {
		return c.AbortInternalServerError("listing runs failed")
	}

	resp := make([]RunResponse, len(recs))
	for i, rec := range recs {
		resp[i] = runResponse(rec)
	}
	return c.OK(resp)
}

func (g *Gateway) handleRunStatus(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid run ID")
	}

	rec, err := g.manager.Status(c.Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run not found"})
	}
	return c.OK(runResponse(rec))
}

// handleRunState returns the persisted supervisor state snapshot verbatim.
// It is the debugging view: tasks, results, messages, errors, consensus
// reports, and the review outcome in one document.
func (g *Gateway) handleRunState(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid run ID")
	}

	rec, err := g.manager.Status(c.Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run not found"})
	}
	if rec.State == nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run has no state snapshot yet"})
	}
	return c.OK(rec.State)
}

// TaskResponse is a single task in the run task list.
type TaskResponse struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Result      string `json:"result,omitempty"`
}

func (g *Gateway) handleRunTasks(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid run ID")
	}

	rec, err := g.manager.Status(c.Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run not found"})
	}

	if rec.State == nil {
		return c.OK([]TaskResponse{})
	}
	resp := make([]TaskResponse, len(rec.State.Tasks))
	for i, t := range rec.State.Tasks {
		resp[i] = TaskResponse{
			ID:          t.TaskID,
			AgentID:     t.AgentID,
			Description: t.Description,
			Priority:    string(t.Priority),
			Status:      string(t.Status),
			Error:       t.Error,
			Result:      t.Result,
		}
	}
	return c.OK(resp)
}

func (g *Gateway) handleRunCancel(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid run ID")
	}

	if err := g.manager.Cancel(c.Context(), id); err != nil {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "run not found"})
	}
	return c.OK(map[string]string{"status": "cancellation requested"})
}

// HealthResponse is the JSON response for GET /v1/healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped caller name on the
// context. When no API keys are configured the gateway runs unauthenticated
// and callers share the "anonymous" rate limit bucket.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("callerID", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		callerID := ""
		for key, caller := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				callerID = caller
			}
		}
		if callerID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("callerID", callerID)
		return next(c)
	}
}

// --- Helpers ---

// runResponse flattens a run record into its API representation.
func runResponse(rec *supervisor.RunRecord) RunResponse {
	resp := RunResponse{
		ID:          rec.ID.String(),
		Objective:   rec.Objective,
		Status:      string(rec.Status),
		Feedback:    rec.Feedback,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if rec.State != nil {
		resp.Phase = string(rec.State.CurrentPhase)
		resp.Checkpoint = rec.State.Checkpoint
		resp.TaskCount = len(rec.State.Tasks)
		if score, ok := rec.State.Metadata["agreementScore"].(float64); ok {
			resp.AgreementScore = &score
		}
	}
	return resp
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
