package cli

import (
	"context"
	"log/slog"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/config"
	"concrete-quiz-service/internal/infra/postgres"
)

// openLedger connects the reward ledger to Postgres, applying pending migrations.
func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.LedgerService, func(), error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrateDB(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	store := postgres.NewLedgerStore(db, config.Duration(cfg.Postgres.QueryTimeout, postgres.DefaultQueryTimeout))
	return app.NewLedgerService(store, logger), func() { db.Close() }, nil
}
