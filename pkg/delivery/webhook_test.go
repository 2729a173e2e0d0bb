package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPWebhookCaller_Call(t *testing.T) {
	t.Parallel()

	var received atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(r.Method + " " + r.Header.Get("X-Token") + " " + string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	caller := delivery.NewHTTPWebhookCaller(log.Discard(), time.Second)

	response, err := caller.Call(context.Background(), delivery.WebhookRequest{
		URL:     server.URL + "/hook",
		Method:  "post",
		Headers: map[string]string{"X-Token": "abc"},
		Body:    `{"lead_id": 7}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, response.Body)
	assert.Equal(t, `POST abc {"lead_id": 7}`, received.Load())
}

func TestHTTPWebhookCaller_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	caller := delivery.NewHTTPWebhookCaller(log.Discard(), time.Second)

	response, err := caller.Call(context.Background(), delivery.WebhookRequest{
		URL:   server.URL,
		Retry: delivery.RetryConfig{Attempts: 3, Delay: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", response.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPWebhookCaller_Failures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	caller := delivery.NewHTTPWebhookCaller(log.Discard(), time.Second)

	response, err := caller.Call(context.Background(), delivery.WebhookRequest{URL: server.URL, Method: http.MethodGet})
	require.ErrorIs(t, err, delivery.ErrWebhookStatus)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	_, err = caller.Call(context.Background(), delivery.WebhookRequest{URL: "ftp://example.com"})
	require.ErrorIs(t, err, delivery.ErrWebhookURL)
}

func TestLogDeliverer(t *testing.T) {
	t.Parallel()

	deliverer := delivery.NewLogDeliverer(log.Discard())

	receipt, err := deliverer.Deliver(context.Background(), delivery.Message{
		Channel: models.StepTypeEmail,
		To:      "lead@example.com",
		Content: "Hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ProviderMessageID)
}
