package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talentflow/approvals/pkg/persistence"
	"github.com/talentflow/approvals/pkg/persistence/memory"
	"github.com/talentflow/approvals/pkg/persistence/postgresql"
)

// NewPersistence picks the store implementation from the database URL scheme.
// "memory://" backs local development and tests; anything postgres-shaped
// connects and migrates.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported persistence provider in %q", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return scheme
}
