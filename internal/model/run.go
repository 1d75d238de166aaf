package model

import "time"

// RunMeta carries the per-invocation settings recorded on extraction_runs.
// Callers resolve these from flags or config and pass them in explicitly.
type RunMeta struct {
	ModelName       string
	PromptVersion   *string
	PipelineVersion *string
}

// Run is a persisted extraction_runs row.
type Run struct {
	RunID            int64     `json:"run_id" yaml:"run_id"`
	ModelName        string    `json:"model_name" yaml:"model_name"`
	PromptVersion    *string   `json:"prompt_version,omitempty" yaml:"prompt_version,omitempty"`
	PipelineVersion  *string   `json:"pipeline_version,omitempty" yaml:"pipeline_version,omitempty"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	ItemCount        int64     `json:"item_count" yaml:"item_count"`
	ObservationCount int64     `json:"observation_count" yaml:"observation_count"`
}

// CurrentIngredient is one row of an item's current ingredient snapshot.
type CurrentIngredient struct {
	ItemID        int64   `json:"item_id" yaml:"item_id"`
	IngredientID  int64   `json:"ingredient_id" yaml:"ingredient_id"`
	CanonicalName string  `json:"canonical_name" yaml:"canonical_name"`
	DisplayName   string  `json:"display_name" yaml:"display_name"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
}

// Observation is one audit row: a run believed an item contains an
// ingredient at a confidence.
type Observation struct {
	RunID         int64     `json:"run_id" yaml:"run_id"`
	ItemID        int64     `json:"item_id" yaml:"item_id"`
	IngredientID  int64     `json:"ingredient_id" yaml:"ingredient_id"`
	CanonicalName string    `json:"canonical_name" yaml:"canonical_name"`
	Confidence    float64   `json:"confidence" yaml:"confidence"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// TableCounts holds row counts for the pipeline tables.
type TableCounts struct {
	Runs         int64 `json:"runs" yaml:"runs"`
	Restaurants  int64 `json:"restaurants" yaml:"restaurants"`
	MenuItems    int64 `json:"menu_items" yaml:"menu_items"`
	Ingredients  int64 `json:"ingredients" yaml:"ingredients"`
	Observations int64 `json:"observations" yaml:"observations"`
	CurrentLinks int64 `json:"current_links" yaml:"current_links"`
}
