package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-ingredients/internal/model"
	"github.com/sells-group/menu-ingredients/internal/monitoring"
	"github.com/sells-group/menu-ingredients/internal/store"
)

// fakeStore implements store.Store for handler tests.
type fakeStore struct {
	runs         []model.Run
	current      map[int64][]model.CurrentIngredient
	observations map[int64][]model.Observation
	counts       model.TableCounts
	pingErr      error
	err          error
	lastLimit    int
}

func (f *fakeStore) PersistRun(context.Context, []model.ExtractionResult, model.RunMeta) (int64, error) {
	return 0, errors.New("read only")
}

func (f *fakeStore) GetRun(_ context.Context, runID int64) (*model.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeStore) CurrentIngredients(_ context.Context, itemID int64) ([]model.CurrentIngredient, error) {
	return f.current[itemID], f.err
}

func (f *fakeStore) ObservationHistory(_ context.Context, itemID int64) ([]model.Observation, error) {
	return f.observations[itemID], f.err
}

func (f *fakeStore) Counts(context.Context) (*model.TableCounts, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := f.counts
	return &c, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error    { return f.pingErr }
func (f *fakeStore) Close() error                  { return nil }

var created = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func seededStore() *fakeStore {
	v1 := "v1"
	return &fakeStore{
		runs: []model.Run{
			{RunID: 7, ModelName: "claude-sonnet-4-5-20250929", PromptVersion: &v1, CreatedAt: created, ItemCount: 1, ObservationCount: 2},
			{RunID: 6, ModelName: "claude-sonnet-4-5-20250929", CreatedAt: created.Add(-time.Hour)},
		},
		current: map[int64][]model.CurrentIngredient{
			2: {
				{ItemID: 2, IngredientID: 100, CanonicalName: "mozzarella", DisplayName: "Mozzarella", Confidence: 0.95},
				{ItemID: 2, IngredientID: 101, CanonicalName: "basil", DisplayName: "Basil", Confidence: 0.8},
			},
		},
		observations: map[int64][]model.Observation{
			2: {
				{RunID: 7, ItemID: 2, IngredientID: 100, CanonicalName: "mozzarella", Confidence: 0.95, CreatedAt: created},
			},
		},
		counts: model.TableCounts{Runs: 2, Restaurants: 1, MenuItems: 1, Ingredients: 2, Observations: 2, CurrentLinks: 2},
	}
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	st := seededStore()
	h := NewRouter(st, Options{})

	rec := do(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	st.pingErr = errors.New("db down")
	rec = do(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListRuns(t *testing.T) {
	st := seededStore()
	h := NewRouter(st, Options{})

	rec := do(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 20, st.lastLimit)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, int64(7), runs[0].RunID)
	require.NotNil(t, runs[0].PromptVersion)
	assert.Equal(t, "v1", *runs[0].PromptVersion)

	rec = do(t, h, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, st.lastLimit)
}

func TestListRuns_BadLimit(t *testing.T) {
	h := NewRouter(seededStore(), Options{})
	for _, q := range []string{"0", "-3", "abc", "501"} {
		rec := do(t, h, "/runs?limit="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	h := NewRouter(&fakeStore{}, Options{})
	rec := do(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetRun(t *testing.T) {
	h := NewRouter(seededStore(), Options{})

	rec := do(t, h, "/runs/7")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, int64(2), run.ObservationCount)

	assert.Equal(t, http.StatusNotFound, do(t, h, "/runs/99").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/runs/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/runs/0").Code)
}

func TestCurrentIngredients(t *testing.T) {
	h := NewRouter(seededStore(), Options{})

	rec := do(t, h, "/items/2/ingredients")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ItemID      int64                     `json:"item_id"`
		Ingredients []model.CurrentIngredient `json:"ingredients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.ItemID)
	require.Len(t, body.Ingredients, 2)
	assert.Equal(t, "Mozzarella", body.Ingredients[0].DisplayName)
	assert.InDelta(t, 0.95, body.Ingredients[0].Confidence, 1e-9)

	rec = do(t, h, "/items/3/ingredients")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"item_id":3,"ingredients":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, "/items/x/ingredients").Code)
}

func TestObservations(t *testing.T) {
	h := NewRouter(seededStore(), Options{})

	rec := do(t, h, "/items/2/observations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"canonical_name":"mozzarella"`)
	assert.Contains(t, rec.Body.String(), `"run_id":7`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "/items/-1/observations").Code)
}

func TestStats(t *testing.T) {
	h := NewRouter(seededStore(), Options{})

	rec := do(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(2), snap.Counts.Ingredients)
	require.NotNil(t, snap.LatestRun)
	assert.Equal(t, int64(7), snap.LatestRun.RunID)
}

func TestStoreErrorsAre500(t *testing.T) {
	st := seededStore()
	st.err = errors.New("connection refused")
	h := NewRouter(st, Options{})

	for _, path := range []string{"/runs", "/runs/7", "/items/2/ingredients", "/items/2/observations", "/stats"} {
		rec := do(t, h, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "connection refused", path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	st := seededStore()
	reg := monitoring.NewRegistry(monitoring.NewCollector(st))
	h := NewRouter(st, Options{Registry: reg})

	rec := do(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `menu_table_rows{table="ingredients"} 2`)

	noMetrics := NewRouter(st, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, noMetrics, "/metrics").Code)
}

func TestCORS(t *testing.T) {
	h := NewRouter(seededStore(), Options{CORSOrigins: []string{"https://menus.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Origin", "https://menus.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://menus.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h := NewRouter(seededStore(), Options{})
	rec := do(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
