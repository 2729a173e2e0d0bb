// Package postgresql provides a PostgreSQL-backed queue. Receivers claim rows
// with FOR UPDATE SKIP LOCKED, so concurrent workers never share a message.
package postgresql

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/sqlbase"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	_ "github.com/lib/pq"
)

const pollInterval = 250 * time.Millisecond

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE queue_messages (
				seq BIGSERIAL PRIMARY KEY,
				id UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
				queue_name VARCHAR(255) NOT NULL,
				body TEXT NOT NULL,
				attributes JSONB NOT NULL DEFAULT '{}',
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				visible_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				receive_count INT NOT NULL DEFAULT 0,
				receipt_handle UUID,
				in_flight BOOLEAN NOT NULL DEFAULT false,
				dead_reason TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_queue_messages_visible ON queue_messages(queue_name, visible_at, seq);
			CREATE INDEX idx_queue_messages_receipt ON queue_messages(receipt_handle) WHERE receipt_handle IS NOT NULL;
		`,
	}
}

type Queue struct {
	db      *sql.DB
	logger  *slog.Logger
	options queue.Options
}

// Open connects to a postgres:// queue URL and applies the queue schema.
func Open(ctx context.Context, logger *slog.Logger, rawURL string) (*Queue, error) {
	cleaned, options, err := queue.SplitURL(rawURL)
	if err != nil {
		return nil, err
	}

	database, err := sql.Open("postgres", cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewQueue(ctx, logger, database, options)
}

// NewQueue runs the queue migrations on db and returns the queue named in
// options.
func NewQueue(ctx context.Context, logger *slog.Logger, db *sql.DB, options queue.Options) (*Queue, error) {
	if options.Name == "" {
		options.Name = queue.DefaultName
	}

	logger = logger.With("module", "postgres_queue", "queue", options.Name)

	err := sqlbase.NewMigrationManager(logger, db, "queue_schema_migrations", migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run queue migrations: %w", err)
	}

	return &Queue{db: db, logger: logger, options: options}, nil
}

func (q *Queue) Send(ctx context.Context, messages ...queue.OutgoingMessage) ([]string, error) {
	transaction, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	ids := make([]string, 0, len(messages))

	for _, message := range messages {
		attributes, err := json.Marshal(message.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attributes: %w", err)
		}

		if message.Attributes == nil {
			attributes = []byte("{}")
		}

		var id string

		err = transaction.QueryRowContext(ctx, `
			INSERT INTO queue_messages (queue_name, body, attributes, visible_at)
			VALUES ($1, $2, $3, NOW() + make_interval(secs => $4))
			RETURNING id`,
			q.options.Name, message.Body, attributes, message.Delay.Seconds(),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}

		ids = append(ids, id)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit messages: %w", err)
	}

	return ids, nil
}

func (q *Queue) Receive(ctx context.Context, options queue.ReceiveOptions) ([]queue.Message, error) {
	options = options.Normalize()
	deadline := time.Now().Add(options.WaitTime)

	for {
		messages, err := q.claim(ctx, options)
		if err != nil || len(messages) > 0 || !time.Now().Before(deadline) {
			return messages, err
		}

		timer := time.NewTimer(min(pollInterval, time.Until(deadline)))

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context, options queue.ReceiveOptions) ([]queue.Message, error) {
	transaction, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	rows, err := transaction.QueryContext(ctx, `
		WITH claimed AS (
			SELECT seq FROM queue_messages
			WHERE queue_name = $1 AND visible_at <= NOW()
			ORDER BY visible_at, seq
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET receive_count = m.receive_count + 1,
			visible_at = NOW() + make_interval(secs => $3),
			receipt_handle = gen_random_uuid(),
			in_flight = true
		FROM claimed
		WHERE m.seq = claimed.seq
		RETURNING m.seq, m.id, m.receipt_handle, m.body, m.attributes, m.receive_count, m.sent_at`,
		q.options.Name, options.MaxMessages, options.VisibilityTimeout.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	type claimed struct {
		seq     int64
		message queue.Message
	}

	batch := make([]claimed, 0, options.MaxMessages)

	for rows.Next() {
		var (
			c          claimed
			attributes []byte
		)

		err = rows.Scan(&c.seq, &c.message.ID, &c.message.ReceiptHandle, &c.message.Body,
			&attributes, &c.message.ReceiveCount, &c.message.SentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		err = json.Unmarshal(attributes, &c.message.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}

		batch = append(batch, c)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed messages: %w", err)
	}

	// RETURNING order is unspecified
	slices.SortFunc(batch, func(a, b claimed) int {
		return cmp.Compare(a.seq, b.seq)
	})

	messages := make([]queue.Message, 0, len(batch))

	for _, c := range batch {
		if q.options.Redrive != nil && c.message.ReceiveCount > q.options.Redrive.MaxReceiveCount {
			err = q.deadLetter(ctx, transaction, c.message.ID, "max receive count exceeded")
			if err != nil {
				return nil, err
			}

			continue
		}

		messages = append(messages, c.message)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return messages, nil
}

func (q *Queue) deadLetter(ctx context.Context, db querier, id, reason string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE queue_messages
		SET queue_name = $2, receipt_handle = NULL, in_flight = false, visible_at = NOW(), dead_reason = $3
		WHERE id = $1`,
		id, q.options.DeadLetterName(), reason,
	)
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", id, err)
	}

	return nil
}

func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE queue_name = $1 AND receipt_handle::text = $2`,
		q.options.Name, receiptHandle,
	)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return expectRow(result)
}

func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages SET visible_at = NOW() + make_interval(secs => $3)
		WHERE queue_name = $1 AND receipt_handle::text = $2`,
		q.options.Name, receiptHandle, timeout.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to change visibility: %w", err)
	}

	return expectRow(result)
}

func (q *Queue) SendToDeadLetter(ctx context.Context, message queue.Message, reason string) error {
	return q.deadLetter(ctx, q.db, message.ID, reason)
}

func (q *Queue) RedrivePolicy(context.Context) (*queue.RedrivePolicy, error) {
	if q.options.Redrive == nil {
		return nil, nil
	}

	policy := *q.options.Redrive

	return &policy, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	var stats queue.Stats

	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE queue_name = $1 AND visible_at <= NOW()),
			COUNT(*) FILTER (WHERE queue_name = $1 AND visible_at > NOW() AND in_flight),
			COUNT(*) FILTER (WHERE queue_name = $1 AND visible_at > NOW() AND NOT in_flight),
			COUNT(*) FILTER (WHERE queue_name = $2)
		FROM queue_messages
		WHERE queue_name IN ($1, $2)`,
		q.options.Name, q.options.DeadLetterName(),
	).Scan(&stats.Available, &stats.InFlight, &stats.Delayed, &stats.DeadLetter)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return stats, nil
}

// Purge drops every message of the queue. Dead letters are kept.
func (q *Queue) Purge(ctx context.Context) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE queue_name = $1`, q.options.Name)
	if err != nil {
		return fmt.Errorf("failed to purge queue: %w", err)
	}

	purged, _ := result.RowsAffected()
	q.logger.InfoContext(ctx, "queue purged", "messages", purged)

	return nil
}

func (q *Queue) Close() error {
	err := q.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func expectRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return queue.ErrReceiptNotFound
	}

	return nil
}
