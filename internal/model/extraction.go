package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidID is returned when an item or restaurant identifier from the
// extraction model cannot be parsed as an integer.
var ErrInvalidID = eris.New("model: invalid identifier")

// confidencePrecision is the number of decimal places kept for stored
// confidences.
const confidencePrecision = 1000.0

// ID is an external identifier echoed back by the extraction model. The model
// may return it as a JSON string or a JSON number, so the raw text is kept and
// parsed on demand.
type ID string

// UnmarshalJSON accepts a JSON string, number or null. Integral numbers such
// as 1.0 decode to their integer form.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode id")
		}
		*id = ID(s)
		return nil
	}
	*id = ID(integralNumber(string(data)))
	return nil
}

// integralNumber rewrites an integral JSON number written with a fraction or
// exponent ("1.0", "1e1") as a plain integer. Anything else is returned as is
// and rejected later by Int64.
func integralNumber(raw string) string {
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return raw
	}
	return strconv.FormatInt(int64(f), 10)
}

// Int64 parses the identifier as a base-10 integer.
func (id ID) Int64() (int64, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return 0, eris.Wrap(ErrInvalidID, "empty id")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(ErrInvalidID, "parse %q", s)
	}
	return n, nil
}

// IngredientEntry is one ingredient guess for a menu item. List order is the
// model's prominence ranking.
type IngredientEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the validated record produced by the extraction service
// for a single menu item. The persistence layer reads it and never mutates it.
type ExtractionResult struct {
	ItemID       ID                `json:"item_id"`
	ItemName     string            `json:"item_name"`
	RestaurantID ID                `json:"restaurant_id"`
	Ingredients  []IngredientEntry `json:"ingredients"`
	Reasoning    string            `json:"reasoning"`
}

// ClampConfidence limits c to [0,1]. NaN is treated as 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// RoundConfidence rounds c to three decimal places.
func RoundConfidence(c float64) float64 {
	return math.Round(c*confidencePrecision) / confidencePrecision
}

// NormalizeConfidence clamps then rounds c to its stored form.
func NormalizeConfidence(c float64) float64 {
	return RoundConfidence(ClampConfidence(c))
}
