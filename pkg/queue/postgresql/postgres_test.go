package postgresql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	pgqueue "github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/postgresql"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/queuetest"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func databaseURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("journeys_queue_test"),
			postgres.WithUsername("journeys"),
			postgres.WithPassword("journeys"),
			testcontainers.WithEnv(map[string]string{"TZ": "UTC"}),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	url, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return url
}

func resetSchema(ctx context.Context, t *testing.T, url string) {
	t.Helper()

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)

	for _, table := range []string{"queue_messages", "queue_schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func TestPostgresQueue(t *testing.T) {
	url := databaseURL(t)

	suite.Run(t, &queuetest.Suite{
		NewQueue: func(policy *queue.RedrivePolicy) queue.Queue {
			ctx := context.Background()
			resetSchema(ctx, t, url)

			db, err := sql.Open("postgres", url)
			require.NoError(t, err)

			q, err := pgqueue.NewQueue(ctx, log.Discard(), db, queue.Options{Name: "journey-events", Redrive: policy})
			require.NoError(t, err)

			return q
		},
	})
}

func TestOpen_ParsesQueueOptions(t *testing.T) {
	url := databaseURL(t)
	ctx := context.Background()
	resetSchema(ctx, t, url)

	q, err := pgqueue.Open(ctx, log.Discard(), url+"&queue=scoring&max_receive_count=2")
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, q.Close())
	}()

	policy, err := q.RedrivePolicy(ctx)
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, 2, policy.MaxReceiveCount)
	assert.Equal(t, "scoring-dlq", policy.DeadLetterTarget)

	ids, err := q.Send(ctx, queue.OutgoingMessage{Body: `{"event_type":"clicked"}`, Attributes: map[string]string{"EventType": "clicked"}})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	messages, err := q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, ids[0], messages[0].ID)
	assert.Equal(t, "clicked", messages[0].Attributes["EventType"])
}
