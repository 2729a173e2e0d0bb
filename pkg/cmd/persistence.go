package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/postgresql"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewPersistence opens the store named by databaseURL: memory:// or
// postgres:// (postgresql:// is accepted too).
//
//nolint:ireturn // callers depend on the Persistence contract
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch scheme(databaseURL) {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: database url %q", ErrUnsupportedProvider, redact(databaseURL))
	}
}

func scheme(rawURL string) string {
	provider, _, found := strings.Cut(rawURL, "://")
	if !found {
		return ""
	}

	return strings.ToLower(provider)
}

// redact keeps only the scheme so credentials never reach the logs.
func redact(rawURL string) string {
	if s := scheme(rawURL); s != "" {
		return s + "://..."
	}

	return "..."
}
