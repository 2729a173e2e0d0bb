package scanner_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/scanner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context) (int, error)

func (f processorFunc) ProcessTimedConnections(ctx context.Context) (int, error) {
	return f(ctx)
}

func TestNew_Schedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"default", "", false},
		{"descriptor", "@every 30s", false},
		{"standard cron", "*/5 * * * *", false},
		{"invalid", "every five minutes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanner.New(processorFunc(func(context.Context) (int, error) { return 0, nil }), tt.schedule, log.Discard())
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRunOnce_RecordsScan(t *testing.T) {
	m := metrics.New()
	calls := 0

	s, err := scanner.New(processorFunc(func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			return 1, errors.New("store unavailable")
		}

		return 3, nil
	}), "", log.Discard(), scanner.WithMetrics(m))
	require.NoError(t, err)

	transitioned, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, transitioned)

	_, err = s.RunOnce(context.Background())
	require.Error(t, err)

	expected := `
# HELP journeys_scan_failures_total Timed-connection scans that returned an error
# TYPE journeys_scan_failures_total counter
journeys_scan_failures_total 1
# HELP journeys_scan_transitions_total Participants transitioned by the timed-connection scanner
# TYPE journeys_scan_transitions_total counter
journeys_scan_transitions_total 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected),
		"journeys_scan_failures_total", "journeys_scan_transitions_total"))
}

func TestStart_SurvivesPanicsAndErrors(t *testing.T) {
	var calls atomic.Int32

	s, err := scanner.New(processorFunc(func(context.Context) (int, error) {
		switch calls.Add(1) {
		case 1:
			panic("corrupt participant row")
		case 2:
			return 0, errors.New("store unavailable")
		default:
			return 1, nil
		}
	}), "@every 1s", log.Discard())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))

	defer func() {
		<-s.Stop().Done()
	}()

	assert.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStop_WithoutStart(t *testing.T) {
	s, err := scanner.New(processorFunc(func(context.Context) (int, error) { return 0, nil }), "", log.Discard())
	require.NoError(t, err)

	select {
	case <-s.Stop().Done():
	default:
		t.Fatal("stop context should be done")
	}
}
