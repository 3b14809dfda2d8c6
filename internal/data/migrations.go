package data

import (
	"context"
	"database/sql"

	"github.com/target/harvestd/internal/migrate"
)

// RunMigrations executes database migrations to set up the required schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) (migrate.Result, error) {
	return migrate.Run(ctx, db)
}
