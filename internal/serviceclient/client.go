// Package serviceclient implements typed HTTP calls to a single downstream
// microservice: JSON POST, multipart POST, and binary POST, with retry,
// timeout, circuit breaking, and error classification. The retry/backoff
// loop follows the exponential-backoff idiom used by the gateway's fallback
// routing strategy, adapted from per-provider retries to per-downstream-
// service retries. Each Client owns one circuitbreaker.CircuitBreaker,
// generalized from the teacher's per-provider breaker to one breaker per
// downstream service.
package serviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/upskiller-xyz/lux-gateway/internal/circuitbreaker"
	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/logging"
	"github.com/upskiller-xyz/lux-gateway/internal/metrics"
)

// Config controls timeouts, retry, and circuit-breaker behavior for a
// Client.
type Config struct {
	ConnectTimeout      time.Duration // default 10s
	ReadTimeout         time.Duration // default 300s
	MaxAttempts         int           // default 3
	BackoffBase         time.Duration // default 300ms
	FailureThreshold    int           // default 5, see circuitbreaker.New
	SuccessThreshold    int           // default 1
	CircuitOpenDuration time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 300 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 300 * time.Millisecond
	}
	return c
}

// retriableStatuses is the closed set of HTTP statuses the client retries.
var retriableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Client sends typed requests to one downstream service. A Client is bound
// to a single service name for error-reporting purposes; the caller selects
// the base URL via the Service Registry.
type Client struct {
	ServiceName string
	HTTPClient  *http.Client
	cfg         Config
	bearerToken string
	tokenSource oauth2.TokenSource
	breaker     *circuitbreaker.CircuitBreaker
}

// New builds a Client. bearerToken, if non-empty, is attached to every
// outbound request as Authorization: Bearer <token> (auth pass-through).
func New(serviceName string, cfg Config, bearerToken string) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		ServiceName: serviceName,
		bearerToken: bearerToken,
		cfg:         cfg,
		breaker:     circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.CircuitOpenDuration),
		HTTPClient: &http.Client{
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     10,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
	c.observeBreakerState()
	return c
}

// WithTokenSource attaches an OAuth2 token source that supersedes the static
// bearer token: every outbound request calls Token() and sends its
// AccessToken, so a deployment that fronts its daylight-simulation services
// with an OAuth2-aware gateway gets automatic token refresh instead of a
// single long-lived shared secret.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	c.tokenSource = ts
	return c
}

// observeBreakerState mirrors circuitbreaker.State onto the gateway_circuit_
// breaker_state gauge (0=closed 1=open 2=half_open).
func (c *Client) observeBreakerState() {
	var v float64
	switch c.breaker.State() {
	case circuitbreaker.StateOpen:
		v = 1
	case circuitbreaker.StateHalfOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(c.ServiceName).Set(v)
}

// PostJSON sends body as a JSON POST and decodes the JSON response into a
// generic map.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("marshal request: %w", err))
	}

	raw, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// PostMultipart uploads fileBytes under fileField (named filename) alongside
// formFields, and decodes the JSON response into a generic map.
func (c *Client) PostMultipart(ctx context.Context, url, fileField, filename string, fileBytes []byte, formFields map[string]string) (map[string]interface{}, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range formFields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("write form field %s: %w", k, err))
		}
	}
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(fileBytes); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("write file bytes: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("close multipart writer: %w", err))
	}
	contentType := mw.FormDataContentType()
	body := buf.Bytes()

	raw, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// PostBinary sends body as JSON and returns the raw response bytes. If the
// response declares Content-Type: application/json, it is re-interpreted as
// a {"status":"error", ...} payload and surfaced as a Response error instead
// of being returned as opaque bytes.
func (c *Client) PostBinary(ctx context.Context, url string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, fmt.Errorf("marshal request: %w", err))
	}

	var contentType string
	raw, err := c.doWithRetryCapture(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &contentType)
	if err != nil {
		return nil, err
	}

	if isJSONContentType(contentType) {
		var errBody struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if jerr := json.Unmarshal(raw, &errBody); jerr == nil && errBody.Status == "error" {
			return nil, gwerrors.New(gwerrors.KindResponse, errBody.Error).WithStatus(http.StatusBadGateway)
		}
	}
	return raw, nil
}

func isJSONContentType(ct string) bool {
	return len(ct) >= 16 && ct[:16] == "application/json"
}

// doWithRetry performs the retry/backoff loop and returns the successful
// response body.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	return c.doWithRetryCapture(ctx, build, nil)
}

func (c *Client) doWithRetryCapture(ctx context.Context, build func() (*http.Request, error), contentTypeOut *string) ([]byte, error) {
	if !c.breaker.Allow() {
		c.observeBreakerState()
		metrics.DownstreamErrors.WithLabelValues(c.ServiceName, "circuit_open").Inc()
		return nil, gwerrors.New(gwerrors.KindConnection, "circuit breaker open for "+c.ServiceName).WithStatus(http.StatusServiceUnavailable)
	}

	if c.tokenSource != nil {
		orig := build
		build = func() (*http.Request, error) {
			req, err := orig()
			if err != nil {
				return nil, err
			}
			tok, err := c.tokenSource.Token()
			if err != nil {
				return nil, gwerrors.Wrap(gwerrors.KindAuthorization, c.ServiceName, err)
			}
			req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
			return req, nil
		}
	} else if c.bearerToken != "" {
		orig := build
		build = func() (*http.Request, error) {
			req, err := orig()
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
			return req, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.cfg.BackoffBase
			logging.FromContext(ctx).Info("retrying downstream call",
				"service", c.ServiceName, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, gwerrors.Wrap(gwerrors.KindTimeout, c.ServiceName, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := build()
		if err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindInternal, c.ServiceName, err)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, gwerrors.Wrap(gwerrors.KindTimeout, c.ServiceName, err)
			}
			c.breaker.RecordFailure()
			c.observeBreakerState()
			lastErr = gwerrors.Wrap(gwerrors.KindConnection, c.ServiceName, err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			c.observeBreakerState()
			lastErr = gwerrors.Wrap(gwerrors.KindConnection, c.ServiceName, readErr)
			continue
		}

		if resp.StatusCode == http.StatusForbidden {
			return nil, gwerrors.New(gwerrors.KindAuthorization, string(truncate(body, 200))).WithStatus(http.StatusForbidden)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.breaker.RecordSuccess()
			c.observeBreakerState()
			if contentTypeOut != nil {
				*contentTypeOut = resp.Header.Get("Content-Type")
			}
			return body, nil
		}

		if retriableStatuses[resp.StatusCode] {
			c.breaker.RecordFailure()
			c.observeBreakerState()
			respErr := gwerrors.New(gwerrors.KindResponse, string(truncate(body, 200))).WithStatus(resp.StatusCode)
			respErr.Service = c.ServiceName
			lastErr = respErr
			continue
		}

		// Non-retriable 4xx/5xx: fail immediately.
		e := gwerrors.New(gwerrors.KindResponse, string(truncate(body, 200))).WithStatus(resp.StatusCode)
		e.Service = c.ServiceName
		return nil, e
	}

	if e, ok := gwerrors.As(lastErr); ok {
		return nil, e
	}
	return nil, gwerrors.Wrap(gwerrors.KindConnection, c.ServiceName, lastErr)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
