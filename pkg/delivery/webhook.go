package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 30 * time.Second

// WebhookRequest is a rendered webhook step.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Retry   RetryConfig
}

// RetryConfig re-issues the request on 5xx responses.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type WebhookResponse struct {
	StatusCode int
	Body       any
}

// WebhookCaller performs webhook step requests.
type WebhookCaller interface {
	Call(ctx context.Context, request WebhookRequest) (WebhookResponse, error)
}

// HTTPWebhookCaller calls webhooks with net/http.
type HTTPWebhookCaller struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPWebhookCaller(logger *slog.Logger, timeout time.Duration) *HTTPWebhookCaller {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &HTTPWebhookCaller{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "webhook_caller"),
	}
}

// Call sends the request. Non-2xx responses are returned with ErrWebhookStatus.
func (c *HTTPWebhookCaller) Call(ctx context.Context, request WebhookRequest) (WebhookResponse, error) {
	if !strings.HasPrefix(request.URL, "http://") && !strings.HasPrefix(request.URL, "https://") {
		return WebhookResponse{}, fmt.Errorf("%w: %q", ErrWebhookURL, request.URL)
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodPost
	}

	attempts := max(request.Retry.Attempts, 1)

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, "retrying webhook", "attempt", attempt, "attempts", attempts, "url", request.URL)

			select {
			case <-ctx.Done():
				return WebhookResponse{}, ctx.Err()
			case <-time.After(request.Retry.Delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, request.URL, strings.NewReader(request.Body))
		if err != nil {
			return WebhookResponse{}, fmt.Errorf("failed to create webhook request: %w", err)
		}

		if request.Body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		for key, value := range request.Headers {
			req.Header.Set(key, value)
		}

		resp, err = c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("webhook request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= 500 && attempt < attempts {
			c.closeBody(ctx, resp)

			lastErr = fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return WebhookResponse{}, fmt.Errorf("all webhook attempts failed: %w", lastErr)
	}

	return c.processResponse(ctx, resp)
}

func (c *HTTPWebhookCaller) processResponse(ctx context.Context, resp *http.Response) (WebhookResponse, error) {
	defer c.closeBody(ctx, resp)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return WebhookResponse{StatusCode: resp.StatusCode}, fmt.Errorf("failed to read webhook response: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	response := WebhookResponse{StatusCode: resp.StatusCode, Body: body}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}

	c.logger.DebugContext(ctx, "webhook completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return response, nil
}

func (c *HTTPWebhookCaller) closeBody(ctx context.Context, resp *http.Response) {
	err := resp.Body.Close()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
	}
}
