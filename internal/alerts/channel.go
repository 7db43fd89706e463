// Package alerts delivers operator alerts to chat webhooks. It resolves
// subscriptions, applies severity-aware dedup suppression, formats payloads
// for the destination platform, and reports per-destination outcomes as
// values rather than errors.
package alerts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"remindpoint/internal/types"
)

// maxResponseBodyRead limits how much of a webhook response body is read for
// error messages.
const maxResponseBodyRead = 4096

// ChatWebhook posts alert payloads to chat webhook URLs, picking the payload
// shape from the destination host.
type ChatWebhook struct {
	httpClient *http.Client
	logger     types.Logger
}

// NewChatWebhook creates a ChatWebhook with the given per-post timeout.
func NewChatWebhook(timeout time.Duration, logger types.Logger) *ChatWebhook {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &ChatWebhook{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewChatWebhookWithClient creates a ChatWebhook with a caller-supplied HTTP
// client, for tests.
func NewChatWebhookWithClient(httpClient *http.Client, logger types.Logger) *ChatWebhook {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &ChatWebhook{httpClient: httpClient, logger: logger}
}

// Post formats the alert for the destination platform and delivers it with a
// single HTTP POST. One failed post is reported back as an outcome by the
// dispatcher; there is no retry here.
func (c *ChatWebhook) Post(ctx context.Context, address string, a types.Alert) error {
	p := detectPlatform(address)

	body, err := formatPayload(p, a)
	if err != nil {
		return fmt.Errorf("format %s payload: %w", p, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(types.ErrCodeUpstreamWebhook,
			fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, truncate(respBody, 200)), nil)
	}

	// Slack can soft-fail with HTTP 200 and an error body.
	if p == platformSlack {
		trimmed := strings.TrimSpace(string(respBody))
		if trimmed != "" && trimmed != "ok" && !strings.HasPrefix(trimmed, "{") {
			return fmt.Errorf("slack webhook error: %s", trimmed)
		}
	}

	return nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
