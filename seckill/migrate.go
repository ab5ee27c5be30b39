package seckill

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealrush/dealrush/pkg/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the voucher and order schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrationTable string, log *slog.Logger) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	return db.Migrate(ctx, pool, migrations, migrationTable, log)
}
