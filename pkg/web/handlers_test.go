package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/persistencetest"
	memqueue "github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app         *fiber.App
	store       *memory.Persistence
	queue       *memqueue.Queue
	participant *models.Participant
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	store := memory.NewPersistence()
	require.NoError(t, store.SaveJourney(ctx, persistencetest.SampleJourney()))
	require.NoError(t, store.SaveLead(ctx, &models.Lead{ID: 7, Status: "active", Email: "lead@example.com"}))

	participant := &models.Participant{JourneyID: 1, LeadID: 7, Status: models.ParticipantStatusActive}
	require.NoError(t, store.CreateParticipant(ctx, participant))

	processor, err := journey.NewProcessor(store, delivery.NewLogDeliverer(log.Discard()), log.Discard())
	require.NoError(t, err)

	stepValidator, err := stepconfig.NewValidator()
	require.NoError(t, err)

	q := memqueue.NewQueue()
	handlers := web.NewAPIHandlers(store, q, processor, validator.New(validator.WithRequiredStructEnabled()), stepValidator)

	app := fiber.New()
	web.RegisterRoutes(app, handlers)

	return &testEnv{app: app, store: store, queue: q, participant: participant}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, map[string]any{"store": "ok", "queue": "ok"}, health["checkers"])
}

func TestAPIHandlers_PublishEvent(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "accepted",
			body:           web.PublishEventRequest{EventType: "clicked", Data: map[string]any{"lead_id": 7}},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "delayed",
			body:           web.PublishEventRequest{EventType: "clicked", DelaySeconds: 900},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing event type",
			body:           web.PublishEventRequest{Data: map[string]any{"lead_id": 7}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "EventType",
		},
		{
			name:           "delay out of range",
			body:           web.PublishEventRequest{EventType: "clicked", DelaySeconds: 901},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "DelaySeconds",
		},
		{
			name:           "malformed json",
			body:           `{"event_type":`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			status, body := env.do(t, http.MethodPost, "/events", tt.body)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)

				return
			}

			var resp web.PublishEventResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.NotEmpty(t, resp.MessageID)
		})
	}
}

func TestAPIHandlers_GetQueueStats(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodPost, "/events", web.PublishEventRequest{EventType: "clicked"})
	require.Equal(t, http.StatusAccepted, status)

	status, _ = env.do(t, http.MethodPost, "/events", web.PublishEventRequest{EventType: "clicked", DelaySeconds: 60})
	require.Equal(t, http.StatusAccepted, status)

	status, body := env.do(t, http.MethodGet, "/queue/stats", nil)
	require.Equal(t, http.StatusOK, status)

	var stats web.QueueStatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, web.QueueStatsResponse{Available: 1, Delayed: 1, Total: 2}, stats)
}

func TestAPIHandlers_ProcessParticipant(t *testing.T) {
	env := setupTestApp(t)

	id := strconv.FormatInt(env.participant.ID, 10)

	status, body := env.do(t, http.MethodPost, "/participants/"+id+"/process", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var participant models.Participant
	require.NoError(t, json.Unmarshal(body, &participant))
	require.NotNil(t, participant.CurrentStepID)
	assert.Equal(t, int64(20), *participant.CurrentStepID)

	status, body = env.do(t, http.MethodGet, "/participants/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, status)

	var trail web.ParticipantEventsResponse
	require.NoError(t, json.Unmarshal(body, &trail))
	require.NotEmpty(t, trail.Events)
	assert.Equal(t, models.EventEnterJourney, trail.Events[0].EventType)
	assert.Equal(t, env.participant.ID, trail.Participant.ID)
}

func TestAPIHandlers_ParticipantErrors(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"process unknown participant", http.MethodPost, "/participants/999/process", http.StatusNotFound},
		{"process invalid id", http.MethodPost, "/participants/abc/process", http.StatusBadRequest},
		{"events unknown participant", http.MethodGet, "/participants/999/events", http.StatusNotFound},
		{"events negative id", http.MethodGet, "/participants/-4/events", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			status, body := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Contains(t, string(body), `"status":`)
		})
	}
}

func TestAPIHandlers_ProcessParticipant_NoEntryPoint(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	j := persistencetest.SampleJourney()
	j.ID = 2
	j.Steps = []*models.Step{{ID: 50, Name: "Pause", Order: 1, Type: models.StepTypeWait, IsActive: true}}
	j.Connections = nil
	require.NoError(t, env.store.SaveJourney(ctx, j))

	participant := &models.Participant{JourneyID: 2, LeadID: 7, Status: models.ParticipantStatusActive}
	require.NoError(t, env.store.CreateParticipant(ctx, participant))

	status, body := env.do(t, http.MethodPost, "/participants/"+strconv.FormatInt(participant.ID, 10)+"/process", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body), "journey_error")
}

func TestAPIHandlers_Journeys(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/journeys", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Journeys   []*models.Journey `json:"journeys"`
		TotalCount int               `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "Welcome series", list.Journeys[0].Name)

	status, body = env.do(t, http.MethodGet, "/journeys/1/validation", nil)
	require.Equal(t, http.StatusOK, status)

	var validation web.JourneyValidationResponse
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.True(t, validation.Valid)
	assert.Empty(t, validation.Problems)

	status, _ = env.do(t, http.MethodGet, "/journeys/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ValidateJourney_ReportsProblems(t *testing.T) {
	env := setupTestApp(t)

	j := persistencetest.SampleJourney()
	j.Steps[0].Config = map[string]any{}
	j.Steps[0].IsEntryPoint = false
	require.NoError(t, env.store.SaveJourney(context.Background(), j))

	status, body := env.do(t, http.MethodGet, "/journeys/1/validation", nil)
	require.Equal(t, http.StatusOK, status)

	var validation web.JourneyValidationResponse
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.False(t, validation.Valid)
	assert.Len(t, validation.Problems, 2)
}
