package main

import (
	"context"
	"fmt"
	"log/slog"

	"fcp-audit/internal/audit/retention"
	"fcp-audit/internal/audit/service"
	"fcp-audit/internal/audit/store/memory"
	auditmongo "fcp-audit/internal/audit/store/mongo"
	auditpg "fcp-audit/internal/audit/store/postgres"
	"fcp-audit/internal/platform/config"
	platformmongo "fcp-audit/internal/platform/mongo"
	platformpg "fcp-audit/internal/platform/postgres"
)

// openedStore is one configured backend seen through each role it plays.
type openedStore struct {
	records service.Store
	indexes retention.IndexStore
	// purger is nil when the backend expires records natively.
	purger retention.Purger
	health func(ctx context.Context) error
	close  func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*openedStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := platformmongo.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s := auditmongo.New(client.Database(),
			auditmongo.WithMaxTime(cfg.StoreMaxTime),
			auditmongo.WithReadPreference(client.ReadPreference()),
		)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		log.Info("connected to mongo", "database", cfg.Mongo.Database, "read_preference", cfg.Mongo.ReadPreference)
		return &openedStore{records: s, indexes: s, health: client.Health, close: client.Close}, nil

	case config.DriverPostgres:
		db, err := platformpg.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := auditpg.New(db.DB, cfg.StoreMaxTime)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("connected to postgres")
		return &openedStore{
			records: s,
			indexes: s,
			purger:  s,
			health:  db.Health,
			close:   func(context.Context) error { return db.Close() },
		}, nil

	default:
		s := memory.New()
		log.Warn("using in-memory store, records are lost on restart")
		return &openedStore{
			records: s,
			indexes: s,
			purger:  s,
			health:  func(context.Context) error { return nil },
			close:   func(context.Context) error { return nil },
		}, nil
	}
}
