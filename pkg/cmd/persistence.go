package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/persistence/file"
	"github.com/dukex/agentgraph/pkg/persistence/memory"
	"github.com/dukex/agentgraph/pkg/persistence/postgresql"
	"github.com/dukex/agentgraph/pkg/persistence/redis"
)

// PersistenceProvider returns the backend named by the scheme of a database URL. URLs
// without a known scheme are file paths.
func PersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}

// NewPersistence opens the execution and node-log repositories of a database URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch PersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		logger.InfoContext(ctx, "Using file persistence", "path", databaseURL)

		return file.NewPersistence(databaseURL), nil
	}
}

// NewPauseStore opens the pause-state store. Without a redis URL pending reviews are kept
// in process memory and survive only as the copy on the execution record.
func NewPauseStore(ctx context.Context, logger *slog.Logger, redisURL string) (persistence.PauseStateStore, func() error, error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "Using in-memory pause-state store")

		return memory.NewPauseStore(), func() error { return nil }, nil
	}

	store, err := redis.Connect(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return store, store.Close, nil
}
