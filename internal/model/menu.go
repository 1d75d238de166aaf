package model

// SourceItem is a menu row loaded from the source SQLite database.
type SourceItem struct {
	ItemID       int64   `json:"item_id"`
	RestaurantID int64   `json:"restaurant_id"`
	ItemName     string  `json:"item_name"`
	Description  *string `json:"description,omitempty"`
}
