package resolver

import (
	"fmt"

	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Query is one resolution request. LocationID is empty when the scanner
// has no current location.
type Query struct {
	Code       string       `json:"code"`
	LocationID string       `json:"location_id,omitempty"`
	Mode       scanner.Mode `json:"mode"`
}

// Item is an inventory item as seen by the scanner workflow.
type Item struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UPC         string `json:"upc"`
}

// SKU is a stock record of an item at a location.
type SKU struct {
	ID         int64   `json:"id"`
	ItemID     int64   `json:"item_id"`
	LocationID string  `json:"location_id"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit,omitempty"`
}

// Resolution is the outcome of resolving a code.
type Resolution struct {
	Found            bool     `json:"found"`
	Message          string   `json:"message"`
	Item             *Item    `json:"item,omitempty"`
	SKUs             []SKU    `json:"skus"`
	SuggestedActions []string `json:"suggested_actions"`
}

// Suggested actions.
const (
	ActionIncrement  = "increment"
	ActionDecrement  = "decrement"
	ActionDisplay    = "display"
	ActionCreateSKU  = "create_sku"
	ActionCreateItem = "create_item"
)

// ModeAction maps a scanner mode to the stock action it implies.
func ModeAction(m scanner.Mode) string {
	switch m {
	case scanner.ModeAdd:
		return ActionIncrement
	case scanner.ModeRemove:
		return ActionDecrement
	default:
		return ActionDisplay
	}
}

// found builds the Resolution for a known item.
func found(q Query, item Item, skus []SKU) Resolution {
	actions := []string{ModeAction(q.Mode)}
	if q.Mode == scanner.ModeAdd && q.LocationID != "" && !hasLocation(skus, q.LocationID) {
		actions = []string{ActionCreateSKU}
	}
	if skus == nil {
		skus = []SKU{}
	}
	return Resolution{
		Found:            true,
		Message:          fmt.Sprintf("Found item: %s", item.Name),
		Item:             &item,
		SKUs:             skus,
		SuggestedActions: actions,
	}
}

// notFound builds the Resolution for an unknown code.
func notFound(q Query) Resolution {
	return Resolution{
		Message:          fmt.Sprintf("Unknown UPC: %s", q.Code),
		SKUs:             []SKU{},
		SuggestedActions: []string{ActionCreateItem},
	}
}

func hasLocation(skus []SKU, locationID string) bool {
	for _, s := range skus {
		if s.LocationID == locationID {
			return true
		}
	}
	return false
}
