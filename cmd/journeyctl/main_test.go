package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	command := newCommand()
	command.Writer = &out

	err := command.Run(context.Background(), append([]string{"journeyctl"}, args...))

	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "testdata/welcome.yaml")
	require.NoError(t, err)
	assert.Equal(t, "journey 1 (Welcome series): ok\n", out)

	out, err = run(t, "validate", "testdata/broken.yaml")
	require.ErrorIs(t, err, errInvalidJourneys)
	assert.Contains(t, out, "journey 2 (Broken reminder): 2 problem(s)")

	_, err = run(t, "validate")
	require.Error(t, err)
}

func TestSeed(t *testing.T) {
	out, err := run(t, "seed", "--database-url", "memory://", "testdata/welcome.yaml")
	require.NoError(t, err)
	assert.Equal(t, "seeded journey 1 (Welcome series)\n", out)

	_, err = run(t, "seed", "--database-url", "memory://", "testdata/broken.yaml")
	require.Error(t, err)
}

func TestPublishAndQueueStats(t *testing.T) {
	mr := miniredis.RunT(t)
	queueURL := "redis://" + mr.Addr() + "/0"

	out, err := run(t, "publish", "--queue-url", queueURL, "--event-type", "clicked", "--data", `{"lead_id": 7}`)
	require.NoError(t, err)
	assert.Contains(t, out, "published ")

	_, err = run(t, "publish", "--queue-url", queueURL, "--event-type", "clicked", "--delay", "1m")
	require.NoError(t, err)

	out, err = run(t, "queue", "--queue-url", queueURL, "stats")
	require.NoError(t, err)
	assert.Equal(t, "available=1 in_flight=0 delayed=1 dead_letter=0 total=2\n", out)

	_, err = run(t, "queue", "--queue-url", queueURL, "purge")
	require.NoError(t, err)

	out, err = run(t, "queue", "--queue-url", queueURL, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total=0")
}

func TestPublish_Errors(t *testing.T) {
	_, err := run(t, "publish", "--event-type", "clicked", "--data", "not-json")
	require.Error(t, err)

	_, err = run(t, "publish", "--event-type", "clicked", "--delay", "16m")
	require.Error(t, err)
}
