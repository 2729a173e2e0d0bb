// Package redis provides a Redis-backed queue. Pending and in-flight messages
// live in sorted sets scored by the time they become visible; receive and
// delete run as Lua scripts so concurrent workers never claim the same message.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	redis "github.com/redis/go-redis/v9"
)

const pollInterval = 100 * time.Millisecond

// receiveScript claims up to ARGV[2] pending messages visible at ARGV[1].
// Messages past the redrive limit ARGV[4] go to the dead list instead.
// ARGV[5..] are fresh receipt handles.
var receiveScript = redis.NewScript(`
local now = ARGV[1]
local limit = tonumber(ARGV[2])
local deadline = ARGV[3]
local maxReceive = tonumber(ARGV[4])

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], now, id)
	local old = redis.call('HGET', KEYS[4], id)
	if old then
		redis.call('HDEL', KEYS[5], old)
		redis.call('HDEL', KEYS[4], id)
	end
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, limit)
local result = {}
local n = 0
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local count = redis.call('HINCRBY', KEYS[3], id, 1)
	if maxReceive > 0 and count > maxReceive then
		redis.call('RPUSH', KEYS[6], id)
	else
		n = n + 1
		local receipt = ARGV[4 + n]
		redis.call('ZADD', KEYS[2], deadline, id)
		redis.call('HSET', KEYS[4], id, receipt)
		redis.call('HSET', KEYS[5], receipt, id)
		table.insert(result, id)
		table.insert(result, receipt)
		table.insert(result, count)
	end
end
return result
`)

// deleteScript removes the message owning receipt ARGV[1].
var deleteScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[5], ARGV[1])
if not id then
	return 0
end
redis.call('HDEL', KEYS[5], ARGV[1])
redis.call('HDEL', KEYS[4], id)
redis.call('ZREM', KEYS[2], id)
redis.call('HDEL', KEYS[3], id)
redis.call('HDEL', KEYS[7], id)
return 1
`)

// visibilityScript moves the in-flight deadline of receipt ARGV[1] to ARGV[2].
var visibilityScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[5], ARGV[1])
if not id then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
return 1
`)

// deadLetterScript moves message ARGV[1] with receipt ARGV[2] to the dead list.
var deadLetterScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
if ARGV[2] ~= '' then
	redis.call('HDEL', KEYS[5], ARGV[2])
end
redis.call('RPUSH', KEYS[6], ARGV[1])
redis.call('HSET', KEYS[8], ARGV[1], ARGV[3])
return 1
`)

type record struct {
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

func WithRedrivePolicy(policy *queue.RedrivePolicy) Option {
	return func(q *Queue) {
		q.policy = policy
	}
}

type Queue struct {
	client redis.UniversalClient
	logger *slog.Logger
	policy *queue.RedrivePolicy
	now    func() time.Time
	name   string
	keys   []string
}

// NewQueue uses client for the queue called name.
func NewQueue(client redis.UniversalClient, logger *slog.Logger, name string, options ...Option) *Queue {
	prefix := "journeys:queue:" + name + ":"

	q := &Queue{
		client: client,
		logger: logger.With("module", "redis_queue", "queue", name),
		now:    time.Now,
		name:   name,
		keys: []string{
			prefix + "pending",
			prefix + "inflight",
			prefix + "receives",
			prefix + "handles",
			prefix + "receipts",
			prefix + "dead",
			prefix + "messages",
			prefix + "dead_reasons",
		},
	}

	for _, option := range options {
		option(q)
	}

	return q
}

// Open connects to the queue at a redis:// URL carrying the queue options.
func Open(ctx context.Context, logger *slog.Logger, rawURL string) (*Queue, error) {
	cleaned, options, err := queue.SplitURL(rawURL)
	if err != nil {
		return nil, err
	}

	redisOptions, err := redis.ParseURL(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(redisOptions)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", redisOptions.Addr, "db", redisOptions.DB)

	return NewQueue(client, logger, options.Name, WithRedrivePolicy(options.Redrive)), nil
}

func (q *Queue) key(i int) string {
	return q.keys[i]
}

const (
	keyPending = iota
	keyInFlight
	keyReceives
	keyHandles
	keyReceipts
	keyDead
	keyMessages
	keyDeadReasons
)

func (q *Queue) Send(ctx context.Context, messages ...queue.OutgoingMessage) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	last, err := q.client.IncrBy(ctx, q.key(keyMessages)+":seq", int64(len(messages))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve message ids: %w", err)
	}

	now := q.now()
	ids := make([]string, 0, len(messages))

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, outgoing := range messages {
			// zero padded sequence keeps equal-score members in send order
			id := fmt.Sprintf("%016d-%s", last-int64(len(messages)-1-i), uuid.NewString())

			data, err := json.Marshal(record{Body: outgoing.Body, Attributes: outgoing.Attributes, SentAt: now})
			if err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}

			pipe.HSet(ctx, q.key(keyMessages), id, data)
			pipe.ZAdd(ctx, q.key(keyPending), redis.Z{Score: float64(score(now.Add(outgoing.Delay))), Member: id})

			ids = append(ids, id)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send messages: %w", err)
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
	now := q.now()
	maxReceive := 0

	if q.policy != nil {
		maxReceive = q.policy.MaxReceiveCount
	}

	args := []any{score(now), options.MaxMessages, score(now.Add(options.VisibilityTimeout)), maxReceive}
	for range options.MaxMessages {
		args = append(args, uuid.NewString())
	}

	raw, err := receiveScript.Run(ctx, q.client, q.keys, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(raw)/3)
	messages := make([]queue.Message, 0, len(raw)/3)

	for i := 0; i+2 < len(raw); i += 3 {
		id, _ := raw[i].(string)
		receipt, _ := raw[i+1].(string)
		count, _ := raw[i+2].(int64)

		ids = append(ids, id)
		messages = append(messages, queue.Message{ID: id, ReceiptHandle: receipt, ReceiveCount: int(count)})
	}

	bodies, err := q.client.HMGet(ctx, q.key(keyMessages), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load message bodies: %w", err)
	}

	for i, body := range bodies {
		data, ok := body.(string)
		if !ok {
			q.logger.WarnContext(ctx, "received message without body", "message_id", ids[i])

			continue
		}

		var stored record

		err = json.Unmarshal([]byte(data), &stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", ids[i], err)
		}

		messages[i].Body = stored.Body
		messages[i].Attributes = stored.Attributes
		messages[i].SentAt = stored.SentAt
	}

	return messages, nil
}

func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	deleted, err := deleteScript.Run(ctx, q.client, q.keys, receiptHandle).Int()
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	if deleted == 0 {
		return queue.ErrReceiptNotFound
	}

	return nil
}

func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	changed, err := visibilityScript.Run(ctx, q.client, q.keys, receiptHandle, score(q.now().Add(timeout))).Int()
	if err != nil {
		return fmt.Errorf("failed to change visibility: %w", err)
	}

	if changed == 0 {
		return queue.ErrReceiptNotFound
	}

	return nil
}

func (q *Queue) SendToDeadLetter(ctx context.Context, message queue.Message, reason string) error {
	err := deadLetterScript.Run(ctx, q.client, q.keys, message.ID, message.ReceiptHandle, reason).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", message.ID, err)
	}

	return nil
}

func (q *Queue) RedrivePolicy(context.Context) (*queue.RedrivePolicy, error) {
	if q.policy == nil {
		return nil, nil
	}

	policy := *q.policy

	return &policy, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	now := strconv.FormatInt(score(q.now()), 10)

	var (
		available *redis.IntCmd
		delayed   *redis.IntCmd
		inFlight  *redis.IntCmd
		dead      *redis.IntCmd
	)

	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		available = pipe.ZCount(ctx, q.key(keyPending), "-inf", now)
		delayed = pipe.ZCount(ctx, q.key(keyPending), "("+now, "+inf")
		inFlight = pipe.ZCard(ctx, q.key(keyInFlight))
		dead = pipe.LLen(ctx, q.key(keyDead))

		return nil
	})
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return queue.Stats{
		Available:  available.Val(),
		InFlight:   inFlight.Val(),
		Delayed:    delayed.Val(),
		DeadLetter: dead.Val(),
	}, nil
}

// Purge drops pending and in-flight messages. Dead letters are kept.
func (q *Queue) Purge(ctx context.Context) error {
	pending, err := q.client.ZRange(ctx, q.key(keyPending), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list pending messages: %w", err)
	}

	inFlight, err := q.client.ZRange(ctx, q.key(keyInFlight), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list in-flight messages: %w", err)
	}

	ids := append(pending, inFlight...)

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, q.key(keyPending), q.key(keyInFlight), q.key(keyHandles), q.key(keyReceipts))

		if len(ids) > 0 {
			pipe.HDel(ctx, q.key(keyMessages), ids...)
			pipe.HDel(ctx, q.key(keyReceives), ids...)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge queue: %w", err)
	}

	q.logger.InfoContext(ctx, "queue purged", "messages", len(ids))

	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func score(t time.Time) int64 {
	return t.UnixMilli()
}
