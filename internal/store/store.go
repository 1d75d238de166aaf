// Package store persists extraction runs and serves the current ingredient
// snapshot and observation history back out.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-ingredients/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Writes
	PersistRun(ctx context.Context, results []model.ExtractionResult, meta model.RunMeta) (int64, error)

	// Runs
	GetRun(ctx context.Context, runID int64) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Items
	CurrentIngredients(ctx context.Context, itemID int64) ([]model.CurrentIngredient, error)
	ObservationHistory(ctx context.Context, itemID int64) ([]model.Observation, error)

	// Stats
	Counts(ctx context.Context) (*model.TableCounts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
