package main

import (
	"context"

	"github.com/sells-group/menu-ingredients/internal/config"
	"github.com/sells-group/menu-ingredients/internal/store"
)

// initStore validates the store settings and opens the Postgres pool.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}
