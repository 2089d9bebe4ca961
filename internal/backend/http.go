// Package backend implements agent execution backends for the supervision
// engine. The HTTP backend POSTs each task to the agent's endpoint; the echo
// backend answers locally and exists for smoke tests and dry runs.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

const executePath = "/v1/execute"

// HTTPBackend implements supervisor.Backend over HTTP. Each agent call is a
// single POST; the agent answers synchronously with its result. Timeouts and
// cancellation ride on the request context, which the engine bounds per call.
type HTTPBackend struct {
	baseURL    string
	token      string
	endpoints  map[string]string // Per-agent URL overrides.
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the HTTP backend.
type Option func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *HTTPBackend) { b.httpClient = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(b *HTTPBackend) { b.token = token }
}

// WithEndpoint routes a specific agent to its own URL instead of the base URL.
func WithEndpoint(agentID, url string) Option {
	return func(b *HTTPBackend) { b.endpoints[agentID] = url }
}

// NewHTTP creates an HTTP backend with the given default endpoint.
func NewHTTP(baseURL string, logger *slog.Logger, opts ...Option) *HTTPBackend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &HTTPBackend{
		baseURL:    baseURL,
		endpoints:  make(map[string]string),
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// executeRequest is the wire form of an agent call.
type executeRequest struct {
	AgentID      string                `json:"agent_id"`
	SessionID    string                `json:"session_id"`
	Task         *supervisor.AgentTask `json:"task"`
	Conversation []supervisor.Message  `json:"conversation,omitempty"`
}

// Execute implements supervisor.Backend.
func (b *HTTPBackend) Execute(ctx context.Context, agentID string, task *supervisor.AgentTask, conversation []supervisor.Message, sessionID string) (*supervisor.AgentResult, error) {
	body, err := json.Marshal(executeRequest{
		AgentID:      agentID,
		SessionID:    sessionID,
		Task:         task,
		Conversation: conversation,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := b.endpointFor(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling agent %s: %w", agentID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading agent %s response: %w", agentID, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		// Surfaces as a recoverable error to the retry protocol.
		return nil, fmt.Errorf("agent %s rate_limit: %s", agentID, snippet(respBody))
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("agent %s temporary_failure: status %d: %s", agentID, resp.StatusCode, snippet(respBody))
	default:
		return nil, fmt.Errorf("agent %s returned status %d: %s", agentID, resp.StatusCode, snippet(respBody))
	}

	var result supervisor.AgentResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding agent %s result: %w", agentID, err)
	}

	b.logger.Debug("agent call completed",
		slog.String("agent_id", agentID),
		slog.String("task_id", task.TaskID),
		slog.String("url", url),
	)
	return &result, nil
}

// endpointFor resolves the URL for an agent. Per-agent overrides win; the
// base URL gets the execute path appended.
func (b *HTTPBackend) endpointFor(agentID string) string {
	if url, ok := b.endpoints[agentID]; ok {
		return url
	}
	return b.baseURL + executePath
}

// snippet bounds an error body for log and error messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// compile-time interface check
var _ supervisor.Backend = (*HTTPBackend)(nil)
