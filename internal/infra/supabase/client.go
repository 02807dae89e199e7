// Package supabase provides a client for Supabase PostgREST.
// It is the data backend for listings, appointments, inquiries, banners,
// users and the tenant dashboard.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	if apiKey == "" {
		apiKey = serviceRoleKey
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST response.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// doRequest executes an authenticated GET-style request to Supabase PostgREST.
// A 404/204 is reported as (nil, nil): PostgREST answers 404 for unknown tables.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	body, _, err := c.send(ctx, method, path, nil, "return=representation")
	return body, err
}

// doCount runs a GET with an exact count and returns the rows plus the total
// parsed from Content-Range ("0-9/42").
func (c *Client) doCount(ctx context.Context, path string) ([]byte, int, error) {
	body, header, err := c.send(ctx, http.MethodGet, path, nil, "count=exact")
	if err != nil {
		return nil, 0, err
	}
	return body, parseContentRange(header.Get("Content-Range")), nil
}

func (c *Client) send(ctx context.Context, method, path string, payload io.Reader, prefer string) ([]byte, http.Header, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, nil, err
	}

	if method == http.MethodGet && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent) {
		return nil, resp.Header, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		serr := &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(body)}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, nil, resilience.Permanent(serr)
		}
		return nil, nil, serr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, resp.Header, nil
}

// read runs a GET through the circuit breaker with retries.
func (c *Client) read(ctx context.Context, fn func() error) error {
	return resilience.Call(ctx, c.cb, c.cfg, fn)
}

// write runs a mutation through the circuit breaker without retries.
func (c *Client) write(ctx context.Context, fn func() error) error {
	return resilience.Call(ctx, c.cb, resilience.Config{}, fn)
}

// wrap tags infrastructure failures with the resource they touched and lets
// domain errors through untouched.
func wrap(resource string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	if errors.As(err, &notFound) || errors.As(err, &validation) ||
		errors.As(err, &circuitOpen) || errors.As(err, &timeout) {
		return err
	}
	return &domain.ErrExternalService{Service: "supabase/" + resource, Err: err}
}

// Ping probes PostgREST by reading a single user id.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	_, err := c.doRequest(ctx, http.MethodGet, "users?"+q.Encode())
	return wrap("users", err)
}

func parseContentRange(v string) int {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0
	}
	return n
}

func eq(v string) string { return "eq." + v }

func in(values []string) string {
	return "in.(" + strings.Join(values, ",") + ")"
}
