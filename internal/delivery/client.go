// Package delivery implements the outbound SMS gateway client. It sends one
// notification per call over HTTP with a bounded per-attempt timeout,
// retries retryable outcomes with exponential backoff, and classifies every
// failure into a stable reason code for the attempt ledger.
//
// The client never writes to the ledger and never raises alerts; those are
// the Reminder Scheduler's responsibilities. Transport failures are values
// in the returned Result, not Go errors.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// maxResponseBodyRead limits how much of a gateway response body is read
// for error messages.
const maxResponseBodyRead = 4096

// Result is the structured outcome of one Send call. OK is true only when
// the gateway accepted the message. AttemptCount counts real transport
// attempts; it is zero when a precondition failed before any send.
type Result struct {
	OK            bool
	AttemptCount  int
	StatusCode    *int
	FailureReason types.ReasonCode
	ErrorMessage  string
}

// Message is one outbound SMS.
type Message struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	// ReferenceID is the idempotency key passed to the gateway, built from
	// the (appointment, notification type) pair by the scheduler.
	ReferenceID string `json:"reference_id,omitempty"`
}

// RetryPolicy configures retry behavior: up to MaxRetries additional
// attempts after the first, with exponential backoff doubling from
// BaseDelay. Only 5xx and 429 outcomes consume the retry budget.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Client sends SMS notifications to the configured gateway endpoint.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryPolicy
	logger     types.Logger
	sleepFn    func(time.Duration)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
// Intended for tests to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleepFn = fn }
}

// WithHTTPClient overrides the HTTP client. Intended for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client from configuration. An empty endpoint is a
// legal configuration: Send reports ENDPOINT_NOT_CONFIGURED without
// attempting any transport call.
func NewClient(cfg config.SMSConfig, logger types.Logger, opts ...Option) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "sms-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		endpoint:   cfg.EndpointURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    cb,
		retry: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
		},
		logger:  logger,
		sleepFn: time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send delivers one message. The returned Result always describes the final
// outcome; ordinary transport failures never surface as Go errors.
//
// Classification:
//   - endpoint unset            -> ENDPOINT_NOT_CONFIGURED, 0 attempts
//   - per-attempt timeout       -> TIMEOUT
//   - connection-level failure  -> NETWORK_ERROR
//   - 4xx (except 429)          -> HTTP_CLIENT_ERROR, no retry
//   - 5xx / 429, budget left    -> retried with backoff
//   - 5xx / 429, budget spent   -> HTTP_RETRY_EXHAUSTED
func (c *Client) Send(ctx context.Context, msg Message) Result {
	if c.endpoint == "" {
		return Result{
			OK:            false,
			AttemptCount:  0,
			FailureReason: types.ReasonEndpointNotConfigured,
			ErrorMessage:  "sms gateway endpoint is not configured",
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		// Marshal of a plain struct cannot realistically fail; treat as a
		// programming error surfaced through the result anyway.
		return Result{
			OK:            false,
			AttemptCount:  0,
			FailureReason: types.ReasonProcessingError,
			ErrorMessage:  fmt.Sprintf("encoding message: %v", err),
		}
	}

	maxAttempts := 1 + c.retry.MaxRetries
	var lastStatus *int
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, retryable, attemptErr := c.attempt(ctx, payload)
		lastStatus = status
		lastErr = attemptErr

		if attemptErr == nil && status != nil && *status >= 200 && *status < 300 {
			return Result{OK: true, AttemptCount: attempt, StatusCode: status}
		}

		// Non-retryable client errors fail immediately: retrying a
		// malformed request wastes latency and cannot succeed.
		if !retryable {
			return c.classifyFinal(attempt, status, attemptErr, false)
		}

		if attempt < maxAttempts {
			delay := c.retry.BaseDelay << (attempt - 1)
			c.logger.Warn("sms send attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"delay", delay.String(),
			)
			c.sleepFn(delay)
		}
	}

	return c.classifyFinal(maxAttempts, lastStatus, lastErr, true)
}

// attempt performs one transport call. It returns the HTTP status when a
// response was received, whether the outcome is retryable, and any
// connection-level error.
func (c *Client) attempt(ctx context.Context, payload []byte) (*int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		// Open breaker and connection failures are both transport-path
		// problems; both are retryable within the budget.
		return nil, true, err
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyRead))

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return &status, false, nil
	case status == http.StatusTooManyRequests:
		return &status, true, nil
	case status >= 500:
		return &status, true, nil
	default:
		// Remaining 4xx: permanent for this payload.
		return &status, false, nil
	}
}

// classifyFinal maps the last attempt's outcome to a failure reason.
// exhausted distinguishes "ran out of retries" from "failed immediately".
func (c *Client) classifyFinal(attempts int, status *int, err error, exhausted bool) Result {
	res := Result{
		OK:           false,
		AttemptCount: attempts,
		StatusCode:   status,
	}

	switch {
	case err != nil && isTimeout(err):
		res.FailureReason = types.ReasonTimeout
		res.ErrorMessage = fmt.Sprintf("gateway timed out: %v", err)
	case err != nil:
		res.FailureReason = types.ReasonNetworkError
		res.ErrorMessage = fmt.Sprintf("network error: %v", err)
	case exhausted:
		res.FailureReason = types.ReasonHTTPRetryExhausted
		res.ErrorMessage = fmt.Sprintf("gateway returned %d after %d attempts", derefStatus(status), attempts)
	default:
		res.FailureReason = types.ReasonHTTPClientError
		res.ErrorMessage = fmt.Sprintf("gateway rejected request with %d", derefStatus(status))
	}

	c.logger.Warn("sms delivery failed",
		"reason", string(res.FailureReason),
		"attempts", attempts,
		"status", derefStatus(status),
	)

	return res
}

// isTimeout reports whether err is a deadline/timeout failure rather than a
// generic connection error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func derefStatus(s *int) int {
	if s == nil {
		return 0
	}
	return *s
}
