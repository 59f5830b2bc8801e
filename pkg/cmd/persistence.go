// Package cmd wires the shared infrastructure of the arion binaries:
// persistence backends and event bus providers selected from configuration.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/persistence/file"
	"github.com/arionlabs/arion/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres for postgres:// and postgresql://, file for everything
// else.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	scheme, _, _ := strings.Cut(databaseURL, "://")

	switch scheme {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic("failed to initialize postgres persistence: " + err.Error())
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}
