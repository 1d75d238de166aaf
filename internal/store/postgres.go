package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/db"
	"github.com/sells-group/menu-ingredients/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Runs are written
// one at a time, so the pool is only shared across sequential runs and the
// read API.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	run_id           BIGSERIAL PRIMARY KEY,
	model_name       TEXT NOT NULL,
	prompt_version   TEXT,
	pipeline_version TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS restaurants (
	restaurant_id BIGINT PRIMARY KEY,
	name          TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS menu_items (
	item_id       BIGINT PRIMARY KEY,
	restaurant_id BIGINT NOT NULL REFERENCES restaurants(restaurant_id),
	item_name     TEXT NOT NULL,
	reasoning     TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingredients (
	ingredient_id  BIGSERIAL PRIMARY KEY,
	canonical_name TEXT NOT NULL UNIQUE,
	display_name   TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS menu_item_ingredient_observations (
	observation_id BIGSERIAL PRIMARY KEY,
	run_id         BIGINT NOT NULL REFERENCES extraction_runs(run_id),
	item_id        BIGINT NOT NULL REFERENCES menu_items(item_id),
	ingredient_id  BIGINT NOT NULL REFERENCES ingredients(ingredient_id),
	confidence     NUMERIC(4,3) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, item_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS menu_item_ingredients (
	item_id       BIGINT NOT NULL REFERENCES menu_items(item_id),
	ingredient_id BIGINT NOT NULL REFERENCES ingredients(ingredient_id),
	confidence    NUMERIC(4,3) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	PRIMARY KEY (item_id, ingredient_id)
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_observations_item ON menu_item_ingredient_observations(item_id);
CREATE INDEX IF NOT EXISTS idx_observations_ingredient ON menu_item_ingredient_observations(ingredient_id);
CREATE INDEX IF NOT EXISTS idx_current_ingredient ON menu_item_ingredients(ingredient_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// PersistRun writes one extraction run inside a single transaction and
// returns the new run_id. Nothing from the batch is visible unless every
// statement succeeds.
func (s *PostgresStore) PersistRun(ctx context.Context, results []model.ExtractionResult, meta model.RunMeta) (int64, error) {
	var runID int64
	err := db.InTx(ctx, s.pool, func(tx db.Querier) error {
		id, err := WriteRun(ctx, tx, results, meta)
		if err != nil {
			return err
		}
		runID = id
		return nil
	})
	if err != nil {
		zap.L().Error("store: rolled back run",
			zap.Int("results", len(results)),
			zap.Error(err),
		)
		return 0, eris.Wrap(err, "store: persist run")
	}

	zap.L().Info("store: committed run",
		zap.Int64("run_id", runID),
		zap.Int("results", len(results)),
	)
	return runID, nil
}

const runColumns = `r.run_id, r.model_name, r.prompt_version, r.pipeline_version, r.created_at,
	COUNT(DISTINCT o.item_id), COUNT(o.observation_id)`

// GetRun returns a run with its observation totals.
func (s *PostgresStore) GetRun(ctx context.Context, runID int64) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+`
		FROM extraction_runs r
		LEFT JOIN menu_item_ingredient_observations o ON o.run_id = r.run_id
		WHERE r.run_id = $1
		GROUP BY r.run_id`, runID)

	var r model.Run
	err := row.Scan(&r.RunID, &r.ModelName, &r.PromptVersion, &r.PipelineVersion, &r.CreatedAt,
		&r.ItemCount, &r.ObservationCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %d", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %d", runID)
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+`
		FROM extraction_runs r
		LEFT JOIN menu_item_ingredient_observations o ON o.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.run_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.RunID, &r.ModelName, &r.PromptVersion, &r.PipelineVersion, &r.CreatedAt,
			&r.ItemCount, &r.ObservationCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// CurrentIngredients returns the current snapshot for an item, most
// confident first.
func (s *PostgresStore) CurrentIngredients(ctx context.Context, itemID int64) ([]model.CurrentIngredient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.item_id, c.ingredient_id, i.canonical_name, i.display_name, c.confidence
		FROM menu_item_ingredients c
		JOIN ingredients i ON i.ingredient_id = c.ingredient_id
		WHERE c.item_id = $1
		ORDER BY c.confidence DESC, i.canonical_name`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: current ingredients for item %d", itemID)
	}
	defer rows.Close()

	var out []model.CurrentIngredient
	for rows.Next() {
		var c model.CurrentIngredient
		if err := rows.Scan(&c.ItemID, &c.IngredientID, &c.CanonicalName, &c.DisplayName, &c.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan current ingredient")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate current ingredients")
}

// ObservationHistory returns every observation recorded for an item across
// all runs, newest run first.
func (s *PostgresStore) ObservationHistory(ctx context.Context, itemID int64) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.run_id, o.item_id, o.ingredient_id, i.canonical_name, o.confidence, o.created_at
		FROM menu_item_ingredient_observations o
		JOIN ingredients i ON i.ingredient_id = o.ingredient_id
		WHERE o.item_id = $1
		ORDER BY o.run_id DESC, o.confidence DESC, i.canonical_name`, itemID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: observations for item %d", itemID)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.RunID, &o.ItemID, &o.IngredientID, &o.CanonicalName, &o.Confidence, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

// Counts returns row counts for every pipeline table.
func (s *PostgresStore) Counts(ctx context.Context) (*model.TableCounts, error) {
	var c model.TableCounts
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM extraction_runs),
		(SELECT COUNT(*) FROM restaurants),
		(SELECT COUNT(*) FROM menu_items),
		(SELECT COUNT(*) FROM ingredients),
		(SELECT COUNT(*) FROM menu_item_ingredient_observations),
		(SELECT COUNT(*) FROM menu_item_ingredients)`).Scan(
		&c.Runs, &c.Restaurants, &c.MenuItems, &c.Ingredients, &c.Observations, &c.CurrentLinks,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: table counts")
	}
	return &c, nil
}
