package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-ingredients/internal/model"
)

var (
	// ErrEmptyReply is returned when the model answers with no text.
	ErrEmptyReply = eris.New("extract: empty reply")
	// ErrMissingResults is returned when the reply has no results array.
	ErrMissingResults = eris.New("extract: reply missing results array")
)

type envelope struct {
	Results *[]model.ExtractionResult `json:"results"`
}

// parseResults decodes a `{"results": [...]}` reply.
func parseResults(text string) ([]model.ExtractionResult, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, ErrEmptyReply
	}

	var env envelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, eris.Wrap(err, "extract: decode reply")
	}
	if env.Results == nil {
		return nil, ErrMissingResults
	}
	return *env.Results, nil
}

// cleanJSON strips markdown fences and any prose around the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if rest, ok := strings.CutPrefix(text, "```json"); ok {
		text = rest
	} else if rest, ok := strings.CutPrefix(text, "```"); ok {
		text = rest
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
