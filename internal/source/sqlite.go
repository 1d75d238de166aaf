// Package source reads menu items from the cleaned SQLite snapshot and
// formats them for the extraction model.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/menu-ingredients/internal/model"
)

// Reader loads menu batches from a SQLite database.
type Reader struct {
	db *sql.DB
}

// Open opens the SQLite file at path read-only. The file must already exist.
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: sqlite file %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("source: %s is a directory", path)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "source: open")
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA query_only=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "source: exec %s", pragma)
		}
	}
	return &Reader{db: db}, nil
}

// readOnlyDSN builds a read-only SQLite URI for path. The path is made
// absolute and percent-escaped so '?', '#' and '%' stay part of the file name.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", eris.Wrapf(err, "source: resolve %s", path)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro"}
	return u.String(), nil
}

// Close releases the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// LoadMenuBatch returns up to limit menu items ordered by restaurant and
// name, so repeated runs over the same snapshot see the same items. The
// rowid is the stable item_id. A non-positive limit yields an empty batch.
func (r *Reader) LoadMenuBatch(ctx context.Context, limit int) ([]model.SourceItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT rowid AS item_id, restaurant_id, name AS item_name, description
		FROM menus
		ORDER BY restaurant_id, name
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "source: query menus")
	}
	defer rows.Close()

	var items []model.SourceItem
	for rows.Next() {
		var (
			it   model.SourceItem
			name sql.NullString
			desc sql.NullString
		)
		if err := rows.Scan(&it.ItemID, &it.RestaurantID, &name, &desc); err != nil {
			return nil, eris.Wrap(err, "source: scan menu row")
		}
		it.ItemName = name.String
		if desc.Valid {
			d := desc.String
			it.Description = &d
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "source: iterate menus")
}

// BuildMenuText renders items in the extraction input format:
// "1 item_id: 1; restaurant_id: 1; Item Name description 2 item_id: ...".
func BuildMenuText(items []model.SourceItem) string {
	parts := make([]string, 0, len(items))
	for i, it := range items {
		line := fmt.Sprintf("%d item_id: %d; restaurant_id: %d; %s", i+1, it.ItemID, it.RestaurantID, it.ItemName)
		if it.Description != nil {
			if desc := strings.TrimSpace(*it.Description); desc != "" {
				line += " " + desc
			}
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

// Chunk splits items into consecutive groups of at most size items.
// A size below 1 is treated as 1.
func Chunk(items []model.SourceItem, size int) [][]model.SourceItem {
	if size < 1 {
		size = 1
	}
	chunks := make([][]model.SourceItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
