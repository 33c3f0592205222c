package feed

import (
	"context"
	"time"

	"github.com/splittab/splittab-backend/pkg/enums"
)

// Event is a change hint scoped to one bill. It never carries authoritative
// state; subscribers re-fetch the resource named by Kind. Item events
// additionally name the action and item so clients can decide which fetches
// to debounce together.
type Event struct {
	BillID string              `json:"bill_id"`
	Kind   enums.FeedEventKind `json:"kind"`
	Action enums.ItemAction    `json:"action,omitempty"`
	ItemID string              `json:"item_id,omitempty"`
	At     time.Time           `json:"at"`
}

// Broker fans change hints out to every subscriber of a bill.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(billID string) (<-chan Event, func())
}

// SelectionsChanged builds the hint fired when a durable selection is
// created, replaced or marked paid.
func SelectionsChanged(billID string) Event {
	return Event{BillID: billID, Kind: enums.FeedEventSelections, At: time.Now().UTC()}
}

// ItemsChanged builds the hint fired when the payer edits the item list.
func ItemsChanged(billID string, action enums.ItemAction, itemID string) Event {
	return Event{BillID: billID, Kind: enums.FeedEventItems, Action: action, ItemID: itemID, At: time.Now().UTC()}
}

// LiveClaimsChanged builds the hint fired when a live claim is upserted or
// released.
func LiveClaimsChanged(billID string) Event {
	return Event{BillID: billID, Kind: enums.FeedEventLiveClaims, At: time.Now().UTC()}
}
