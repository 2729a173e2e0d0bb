package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/postgresql"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/redis"
)

// NewQueue opens the queue named by queueURL: memory://, postgres:// or
// redis://. The queue, max_receive_count and dead_letter_target query
// parameters are understood by every backend.
//
//nolint:ireturn // callers depend on the Queue contract
func NewQueue(ctx context.Context, logger *slog.Logger, queueURL string) (queue.Queue, error) {
	switch scheme(queueURL) {
	case "memory":
		_, options, err := queue.SplitURL(queueURL)
		if err != nil {
			return nil, err
		}

		return memory.NewQueue(memory.WithRedrivePolicy(options.Redrive)), nil
	case "postgres", "postgresql":
		q, err := postgresql.Open(ctx, logger, queueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres queue: %w", err)
		}

		return q, nil
	case "redis", "rediss":
		q, err := redis.Open(ctx, logger, queueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis queue: %w", err)
		}

		return q, nil
	default:
		return nil, fmt.Errorf("%w: queue url %q", ErrUnsupportedProvider, redact(queueURL))
	}
}
