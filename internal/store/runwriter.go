package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/db"
	"github.com/sells-group/menu-ingredients/internal/ingredient"
	"github.com/sells-group/menu-ingredients/internal/model"
)

// ErrIngredientUnresolved means an ingredient upsert returned no id. The
// statement always returns a row, so this points at store corruption.
var ErrIngredientUnresolved = eris.New("store: ingredient id unresolved")

const (
	insertRunSQL = `INSERT INTO extraction_runs (model_name, prompt_version, pipeline_version)
		VALUES ($1, $2, $3)
		RETURNING run_id`

	// A new restaurant starts with an unknown name; an existing name is never
	// overwritten.
	upsertRestaurantSQL = `INSERT INTO restaurants (restaurant_id, name)
		VALUES ($1, NULL)
		ON CONFLICT (restaurant_id) DO UPDATE SET updated_at = now()`

	upsertMenuItemSQL = `INSERT INTO menu_items (item_id, restaurant_id, item_name, reasoning)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO UPDATE SET
			restaurant_id = EXCLUDED.restaurant_id,
			item_name = EXCLUDED.item_name,
			reasoning = EXCLUDED.reasoning,
			updated_at = now()`

	// DO UPDATE (rather than DO NOTHING) makes RETURNING yield the id for
	// existing rows too, so insert-or-get is one statement.
	upsertIngredientSQL = `INSERT INTO ingredients (canonical_name, display_name)
		VALUES ($1, $2)
		ON CONFLICT (canonical_name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING ingredient_id`

	upsertObservationSQL = `INSERT INTO menu_item_ingredient_observations (run_id, item_id, ingredient_id, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, item_id, ingredient_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			created_at = now()`

	deleteCurrentSQL = `DELETE FROM menu_item_ingredients WHERE item_id = $1`
)

const currentTable = "menu_item_ingredients"

var currentColumns = []string{"item_id", "ingredient_id", "confidence"}

// WriteRun applies one batch of extraction results through q and returns the
// new run_id. It stops at the first error and never commits or rolls back;
// the caller owns the transaction.
func WriteRun(ctx context.Context, q db.Querier, results []model.ExtractionResult, meta model.RunMeta) (int64, error) {
	var runID int64
	if err := q.QueryRow(ctx, insertRunSQL, meta.ModelName, meta.PromptVersion, meta.PipelineVersion).Scan(&runID); err != nil {
		return 0, eris.Wrap(err, "store: insert extraction run")
	}
	zap.L().Info("store: inserted extraction run", zap.Int64("run_id", runID))

	for i := range results {
		if err := writeItem(ctx, q, runID, &results[i]); err != nil {
			return 0, eris.Wrapf(err, "store: result %d", i)
		}
	}
	return runID, nil
}

// snapshotEntry is one ingredient headed for an item's current snapshot.
type snapshotEntry struct {
	ingredientID int64
	confidence   float64
}

// snapshot accumulates an item's ingredients in list order. A repeated
// ingredient keeps its first position and takes the later confidence,
// matching the observation upsert.
type snapshot struct {
	entries []snapshotEntry
	index   map[int64]int
}

func (s *snapshot) add(ingredientID int64, confidence float64) {
	if s.index == nil {
		s.index = make(map[int64]int)
	}
	if i, ok := s.index[ingredientID]; ok {
		s.entries[i].confidence = confidence
		return
	}
	s.index[ingredientID] = len(s.entries)
	s.entries = append(s.entries, snapshotEntry{ingredientID: ingredientID, confidence: confidence})
}

func writeItem(ctx context.Context, q db.Querier, runID int64, r *model.ExtractionResult) error {
	itemID, err := r.ItemID.Int64()
	if err != nil {
		return eris.Wrap(err, "item_id")
	}
	restaurantID, err := r.RestaurantID.Int64()
	if err != nil {
		return eris.Wrapf(err, "restaurant_id for item %d", itemID)
	}

	if _, err := q.Exec(ctx, upsertRestaurantSQL, restaurantID); err != nil {
		return eris.Wrapf(err, "upsert restaurant %d", restaurantID)
	}
	if _, err := q.Exec(ctx, upsertMenuItemSQL, itemID, restaurantID, r.ItemName, r.Reasoning); err != nil {
		return eris.Wrapf(err, "upsert menu item %d", itemID)
	}

	var snap snapshot
	for _, entry := range r.Ingredients {
		canonical := ingredient.Canonicalize(entry.Name)
		if canonical == "" {
			continue
		}
		confidence := model.NormalizeConfidence(entry.Confidence)

		ingredientID, err := resolveIngredient(ctx, q, canonical, ingredient.DisplayName(entry.Name))
		if err != nil {
			return err
		}

		if _, err := q.Exec(ctx, upsertObservationSQL, runID, itemID, ingredientID, confidence); err != nil {
			return eris.Wrapf(err, "upsert observation item %d ingredient %d", itemID, ingredientID)
		}
		snap.add(ingredientID, confidence)
	}

	if err := syncSnapshot(ctx, q, itemID, snap.entries); err != nil {
		return err
	}

	zap.L().Debug("store: wrote item",
		zap.Int64("run_id", runID),
		zap.Int64("item_id", itemID),
		zap.Int("ingredients", len(snap.entries)),
	)
	return nil
}

// resolveIngredient upserts an ingredient by canonical name and returns its id
// in one statement.
func resolveIngredient(ctx context.Context, q db.Querier, canonical, display string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, upsertIngredientSQL, canonical, display).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(ErrIngredientUnresolved, "canonical_name=%q", canonical)
		}
		return 0, eris.Wrapf(err, "upsert ingredient %q", canonical)
	}
	return id, nil
}

// syncSnapshot replaces the item's current ingredient rows with entries.
func syncSnapshot(ctx context.Context, q db.Querier, itemID int64, entries []snapshotEntry) error {
	if _, err := q.Exec(ctx, deleteCurrentSQL, itemID); err != nil {
		return eris.Wrapf(err, "clear current ingredients for item %d", itemID)
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{itemID, e.ingredientID, e.confidence}
	}
	if _, err := db.CopyFrom(ctx, q, currentTable, currentColumns, rows); err != nil {
		return eris.Wrapf(err, "insert current ingredients for item %d", itemID)
	}
	return nil
}
