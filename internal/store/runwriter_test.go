package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-ingredients/internal/db"
	"github.com/sells-group/menu-ingredients/internal/model"
)

// ingredientExpect describes one expected ingredient upsert + observation.
type ingredientExpect struct {
	canonical  string
	display    string
	id         int64
	confidence float64
}

func expectRun(mock pgxmock.PgxPoolIface, meta model.RunMeta, runID int64) {
	mock.ExpectQuery(`INSERT INTO extraction_runs`).
		WithArgs(meta.ModelName, meta.PromptVersion, meta.PipelineVersion).
		WillReturnRows(pgxmock.NewRows([]string{"run_id"}).AddRow(runID))
}

// expectItem sets up the statement sequence for one extraction result.
// current lists the snapshot rows expected after reconciliation.
func expectItem(mock pgxmock.PgxPoolIface, runID, itemID, restaurantID int64, itemName, reasoning string, ings []ingredientExpect, current []snapshotEntry) {
	mock.ExpectExec(`INSERT INTO restaurants`).
		WithArgs(restaurantID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO menu_items`).
		WithArgs(itemID, restaurantID, itemName, reasoning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, ing := range ings {
		mock.ExpectQuery(`INSERT INTO ingredients`).
			WithArgs(ing.canonical, ing.display).
			WillReturnRows(pgxmock.NewRows([]string{"ingredient_id"}).AddRow(ing.id))
		mock.ExpectExec(`INSERT INTO menu_item_ingredient_observations`).
			WithArgs(runID, itemID, ing.id, ing.confidence).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`DELETE FROM menu_item_ingredients WHERE item_id = \$1`).
		WithArgs(itemID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if len(current) > 0 {
		mock.ExpectCopyFrom(pgx.Identifier{currentTable}, currentColumns).
			WillReturnResult(int64(len(current)))
	}
}

func margherita(ingredients ...model.IngredientEntry) model.ExtractionResult {
	return model.ExtractionResult{
		ItemID:       "1",
		ItemName:     "Margherita Pizza",
		RestaurantID: "10",
		Ingredients:  ingredients,
		Reasoning:    "classic",
	}
}

func strPtr(s string) *string { return &s }

func TestPersistRun_EndToEnd(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "claude-sonnet-4-5-20250929", PromptVersion: strPtr("v2")}

	mock.ExpectBegin()
	expectRun(mock, meta, 7)
	expectItem(mock, 7, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{
			{"tomato sauce", "Tomato Sauce", 100, 0.95},
			{"mozzarella", "Mozzarella.", 101, 0.8},
		},
		[]snapshotEntry{{100, 0.95}, {101, 0.8}},
	)
	mock.ExpectCommit()

	runID, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(
			model.IngredientEntry{Name: "Tomato Sauce", Confidence: 0.95},
			model.IngredientEntry{Name: "mozzarella.", Confidence: 0.8},
		),
	}, meta)

	require.NoError(t, err)
	assert.Equal(t, int64(7), runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_ReplayWithReducedList(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "claude-sonnet-4-5-20250929"}

	// The second run only mentions mozzarella: the snapshot is cleared and
	// rewritten with that single row, prior observations are not touched.
	mock.ExpectBegin()
	expectRun(mock, meta, 8)
	expectItem(mock, 8, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{{"mozzarella", "Mozzarella.", 101, 0.8}},
		[]snapshotEntry{{101, 0.8}},
	)
	mock.ExpectCommit()

	runID, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "mozzarella.", Confidence: 0.8}),
	}, meta)

	require.NoError(t, err)
	assert.Equal(t, int64(8), runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_SameInputTwice(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}
	batch := []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "Basil", Confidence: 0.5}),
	}

	for _, runID := range []int64{1, 2} {
		mock.ExpectBegin()
		expectRun(mock, meta, runID)
		expectItem(mock, runID, 1, 10, "Margherita Pizza", "classic",
			[]ingredientExpect{{"basil", "Basil", 55, 0.5}},
			[]snapshotEntry{{55, 0.5}},
		)
		mock.ExpectCommit()
	}

	first, err := s.PersistRun(context.Background(), batch, meta)
	require.NoError(t, err)
	second, err := s.PersistRun(context.Background(), batch, meta)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRun_SkipsEmptyCanonicalNames(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 3)
	expectItem(mock, 3, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{{"oregano", "Oregano", 9, 0.4}},
		[]snapshotEntry{{9, 0.4}},
	)
	mock.ExpectCommit()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(
			model.IngredientEntry{Name: "   ", Confidence: 0.9},
			model.IngredientEntry{Name: "...", Confidence: 0.9},
			model.IngredientEntry{Name: "", Confidence: 0.9},
			model.IngredientEntry{Name: "oregano", Confidence: 0.4},
		),
	}, meta)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRun_NoIngredientsClearsSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 4)
	expectItem(mock, 4, 1, 10, "Margherita Pizza", "classic", nil, nil)
	mock.ExpectCommit()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{margherita()}, meta)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRun_ClampsConfidence(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 5)
	expectItem(mock, 5, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{
			{"flour", "Flour", 1, 0},
			{"yeast", "Yeast", 2, 1},
			{"salt", "Salt", 3, 0.123},
		},
		[]snapshotEntry{{1, 0}, {2, 1}, {3, 0.123}},
	)
	mock.ExpectCommit()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(
			model.IngredientEntry{Name: "flour", Confidence: -0.2},
			model.IngredientEntry{Name: "yeast", Confidence: 1.7},
			model.IngredientEntry{Name: "salt", Confidence: 0.12345},
		),
	}, meta)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRun_DuplicateIngredientLastWins(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 6)
	expectItem(mock, 6, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{
			{"tomato", "Tomato", 100, 0.5},
			{"basil", "Basil", 200, 0.3},
			{"tomato", "Tomato.", 100, 0.9},
		},
		// One snapshot row per ingredient, first position kept, last confidence.
		[]snapshotEntry{{100, 0.9}, {200, 0.3}},
	)
	mock.ExpectCommit()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(
			model.IngredientEntry{Name: "Tomato", Confidence: 0.5},
			model.IngredientEntry{Name: "basil", Confidence: 0.3},
			model.IngredientEntry{Name: "tomato.", Confidence: 0.9},
		),
	}, meta)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRun_MultipleItemsInOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m", PipelineVersion: strPtr("2026.10")}

	mock.ExpectBegin()
	expectRun(mock, meta, 11)
	expectItem(mock, 11, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{{"tomato", "Tomato", 100, 0.9}},
		[]snapshotEntry{{100, 0.9}},
	)
	expectItem(mock, 11, 2, 10, "Caesar Salad", "romaine based",
		[]ingredientExpect{{"romaine lettuce", "Romaine  Lettuce", 300, 0.95}, {"tomato", "Tomato", 100, 0.1}},
		[]snapshotEntry{{300, 0.95}, {100, 0.1}},
	)
	mock.ExpectCommit()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "tomato", Confidence: 0.9}),
		{
			ItemID: "2", RestaurantID: "10", ItemName: "Caesar Salad", Reasoning: "romaine based",
			Ingredients: []model.IngredientEntry{
				{Name: "Romaine  Lettuce", Confidence: 0.95},
				{Name: "TOMATO", Confidence: 0.1},
			},
		},
	}, meta)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_InvalidItemIDRollsBackWholeBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	// The first item is written, then the second item's id fails to parse:
	// the whole transaction rolls back.
	mock.ExpectBegin()
	expectRun(mock, meta, 12)
	expectItem(mock, 12, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{{"tomato", "Tomato", 100, 0.9}},
		[]snapshotEntry{{100, 0.9}},
	)
	mock.ExpectRollback()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "tomato", Confidence: 0.9}),
		{ItemID: "abc", RestaurantID: "10", ItemName: "Mystery"},
	}, meta)

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_InvalidRestaurantID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 13)
	mock.ExpectRollback()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		{ItemID: "1", RestaurantID: "", ItemName: "Soup"},
	}, meta)

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidID))
	assert.Contains(t, err.Error(), "restaurant_id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_UnresolvedIngredient(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	expectRun(mock, meta, 14)
	mock.ExpectExec(`INSERT INTO restaurants`).WithArgs(int64(10)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO menu_items`).WithArgs(int64(1), int64(10), "Margherita Pizza", "classic").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO ingredients`).WithArgs("tomato", "Tomato").
		WillReturnRows(pgxmock.NewRows([]string{"ingredient_id"}))
	mock.ExpectRollback()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "tomato", Confidence: 0.9}),
	}, meta)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIngredientUnresolved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_StoreFailurePreservesError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}
	dbErr := errors.New("connection reset")

	mock.ExpectBegin()
	expectRun(mock, meta, 15)
	mock.ExpectExec(`INSERT INTO restaurants`).WithArgs(int64(10)).WillReturnError(dbErr)
	mock.ExpectRollback()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{margherita()}, meta)

	require.Error(t, err)
	assert.True(t, errors.Is(err, dbErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRun_RunInsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO extraction_runs`).
		WithArgs(meta.ModelName, meta.PromptVersion, meta.PipelineVersion).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err := s.PersistRun(context.Background(), []model.ExtractionResult{margherita()}, meta)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert extraction run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_Add(t *testing.T) {
	var s snapshot
	s.add(1, 0.5)
	s.add(2, 0.4)
	s.add(1, 0.7)
	s.add(3, 0.1)

	assert.Equal(t, []snapshotEntry{{1, 0.7}, {2, 0.4}, {3, 0.1}}, s.entries)
}

func TestUpsertRestaurantSQL_NeverOverwritesName(t *testing.T) {
	assert.NotContains(t, upsertRestaurantSQL, "name =")
	assert.Contains(t, upsertRestaurantSQL, "updated_at = now()")
}

// copyRecorder passes statements through to the mock and keeps the rows of
// every COPY so tests can assert what reached menu_item_ingredients.
type copyRecorder struct {
	db.Querier
	copies [][][]any
}

func (r *copyRecorder) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	var rows [][]any
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, v)
	}
	if err := src.Err(); err != nil {
		return 0, err
	}
	r.copies = append(r.copies, rows)
	return r.Querier.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
}

func TestWriteRun_SnapshotRows(t *testing.T) {
	tests := []struct {
		name  string
		ings  []ingredientExpect
		input []model.IngredientEntry
		want  [][]any
	}{
		{
			name: "two ingredients",
			ings: []ingredientExpect{
				{"tomato sauce", "Tomato Sauce", 100, 0.95},
				{"mozzarella", "Mozzarella.", 101, 0.8},
			},
			input: []model.IngredientEntry{
				{Name: "Tomato Sauce", Confidence: 0.95},
				{Name: "mozzarella.", Confidence: 0.8},
			},
			want: [][]any{{int64(1), int64(100), 0.95}, {int64(1), int64(101), 0.8}},
		},
		{
			name: "clamped and rounded",
			ings: []ingredientExpect{
				{"flour", "Flour", 1, 0},
				{"yeast", "Yeast", 2, 1},
				{"salt", "Salt", 3, 0.123},
			},
			input: []model.IngredientEntry{
				{Name: "flour", Confidence: -0.2},
				{Name: "yeast", Confidence: 1.7},
				{Name: "salt", Confidence: 0.12345},
			},
			want: [][]any{{int64(1), int64(1), 0.0}, {int64(1), int64(2), 1.0}, {int64(1), int64(3), 0.123}},
		},
		{
			name: "duplicate keeps first position and last confidence",
			ings: []ingredientExpect{
				{"tomato", "Tomato", 100, 0.5},
				{"basil", "Basil", 200, 0.3},
				{"tomato", "Tomato.", 100, 0.9},
			},
			input: []model.IngredientEntry{
				{Name: "Tomato", Confidence: 0.5},
				{Name: "basil", Confidence: 0.3},
				{Name: "tomato.", Confidence: 0.9},
			},
			want: [][]any{{int64(1), int64(100), 0.9}, {int64(1), int64(200), 0.3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock := newMockPostgresStore(t)
			meta := model.RunMeta{ModelName: "m"}

			expectRun(mock, meta, 9)
			current := make([]snapshotEntry, len(tt.want))
			expectItem(mock, 9, 1, 10, "Margherita Pizza", "classic", tt.ings, current)

			rec := &copyRecorder{Querier: mock}
			runID, err := WriteRun(context.Background(), rec, []model.ExtractionResult{margherita(tt.input...)}, meta)

			require.NoError(t, err)
			assert.Equal(t, int64(9), runID)
			require.Len(t, rec.copies, 1)
			assert.Equal(t, tt.want, rec.copies[0])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWriteRun_SnapshotRowsPerItem(t *testing.T) {
	_, mock := newMockPostgresStore(t)
	meta := model.RunMeta{ModelName: "m"}

	expectRun(mock, meta, 3)
	expectItem(mock, 3, 1, 10, "Margherita Pizza", "classic",
		[]ingredientExpect{{"basil", "Basil", 200, 0.7}}, make([]snapshotEntry, 1))
	expectItem(mock, 3, 2, 10, "Caesar Salad", "greens",
		[]ingredientExpect{{"romaine", "Romaine", 300, 0.9}}, make([]snapshotEntry, 1))

	rec := &copyRecorder{Querier: mock}
	_, err := WriteRun(context.Background(), rec, []model.ExtractionResult{
		margherita(model.IngredientEntry{Name: "basil", Confidence: 0.7}),
		{ItemID: "2", ItemName: "Caesar Salad", RestaurantID: "10", Reasoning: "greens",
			Ingredients: []model.IngredientEntry{{Name: "romaine", Confidence: 0.9}}},
	}, meta)

	require.NoError(t, err)
	assert.Equal(t, [][][]any{
		{{int64(1), int64(200), 0.7}},
		{{int64(2), int64(300), 0.9}},
	}, rec.copies)
	assert.NoError(t, mock.ExpectationsWereMet())
}
