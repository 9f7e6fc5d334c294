package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sitepulse/internal/config"
	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/resilience"
)

const maxResponseBytes = 4 << 20

// Endpoint describes how a check is requested from the backend
type Endpoint struct {
	Path string
	// BodyKey is the JSON field carrying the subject, "url" or "domain"
	BodyKey string
}

// Endpoints maps every kind to its backend endpoint
var Endpoints = map[Kind]Endpoint{
	KindPerformance: {Path: "/api/analyze", BodyKey: "url"},
	KindMonitor:     {Path: "/api/monitor", BodyKey: "url"},
	KindSSL:         {Path: "/api/ssl", BodyKey: "domain"},
	KindDNS:         {Path: "/api/dns", BodyKey: "domain"},
	KindSitemap:     {Path: "/api/sitemap", BodyKey: "url"},
	KindAPI:         {Path: "/api/api-test", BodyKey: "url"},
	KindLinks:       {Path: "/api/links", BodyKey: "url"},
	KindTypography:  {Path: "/api/typography", BodyKey: "url"},
}

type tokenKey struct{}

// WithToken attaches a bearer token to ctx. It takes precedence over the
// token configured on the Client.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached with WithToken
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client calls the backend check endpoints. Each endpoint is guarded by its
// own circuit breaker.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breakers   map[Kind]*resilience.Breaker
	tracer     trace.Tracer
	logger     *slog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the client logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTracer sets the tracer used for backend request spans
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = tracer }
}

// NewClient creates a client for the backend at cfg.BaseURL
func NewClient(cfg config.AnalysisConfig, breakerCfg config.BreakerConfig, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breakers:   make(map[Kind]*resilience.Breaker, len(Sequence)),
		tracer:     otel.Tracer("sitepulse/analysis"),
		logger:     slog.Default(),
	}
	for _, kind := range Sequence {
		c.breakers[kind] = resilience.NewBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.SuccessThreshold)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker returns the circuit breaker guarding kind's endpoint
func (c *Client) Breaker(kind Kind) *resilience.Breaker {
	return c.breakers[kind]
}

// BreakerStates reports the breaker position of every endpoint
func (c *Client) BreakerStates() map[Kind]string {
	states := make(map[Kind]string, len(c.breakers))
	for kind, b := range c.breakers {
		states[kind] = b.State().String()
	}
	return states
}

// Fetch requests the check for kind against subject and decodes the payload
// into T. When T has a Validate method its error is returned as well.
func Fetch[T any](ctx context.Context, c *Client, kind Kind, subject string) (T, error) {
	var out T

	raw, err := c.Do(ctx, kind, subject)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperrors.NewSemanticError(fmt.Sprintf("unexpected %s response: %v", kind, err))
	}
	if v, ok := any(out).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Do posts subject to kind's endpoint and returns the raw result payload.
// A non-2xx response yields an *apperrors.HTTPStatusError. A 2xx response
// that reports failure yields a semantic AppError.
func (c *Client) Do(ctx context.Context, kind Kind, subject string) (json.RawMessage, error) {
	endpoint, ok := Endpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}

	ctx, span := c.tracer.Start(ctx, "analysis.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("analysis.kind", string(kind)),
			attribute.String("analysis.subject", subject),
			attribute.String("http.route", endpoint.Path),
		))
	defer span.End()

	var payload json.RawMessage
	call := func() error {
		var err error
		payload, err = c.post(ctx, kind, endpoint, subject)
		return err
	}

	var err error
	if b := c.breakers[kind]; b != nil {
		err = b.Do(call)
	} else {
		err = call()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return payload, nil
}

func (c *Client) post(ctx context.Context, kind Kind, endpoint Endpoint, subject string) (json.RawMessage, error) {
	value := subject
	if endpoint.BodyKey == "url" {
		value = TargetURL(subject)
	}
	bodyData, err := json.Marshal(map[string]string{endpoint.BodyKey: value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint.Path, bytes.NewReader(bodyData))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", kind, err)
	}

	c.logger.DebugContext(ctx, "backend_request",
		slog.String("kind", string(kind)),
		slog.String("path", endpoint.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewHTTPStatusError(resp.StatusCode, errorMessage(data), resp.Header)
	}
	return unwrapPayload(data)
}

func (c *Client) bearerToken(ctx context.Context) string {
	if token := TokenFromContext(ctx); token != "" {
		return token
	}
	return c.token
}

// envelope is the optional {"success":..,"data":..} wrapper some endpoints use
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func unwrapPayload(data []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// not an object; hand the payload to the typed decoder as is
		return data, nil
	}

	if env.Success != nil && !*env.Success {
		msg := firstNonEmpty(env.Error, env.Message, "check could not be completed")
		return nil, apperrors.NewSemanticError(msg)
	}
	if env.Error != "" {
		return nil, apperrors.NewSemanticError(env.Error)
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data, nil
	}
	return data, nil
}

func errorMessage(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil {
		if msg := firstNonEmpty(env.Error, env.Message); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
