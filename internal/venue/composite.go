package venue

import (
	"PerpBoost/internal/margin"
	"PerpBoost/internal/order"

	"github.com/google/uuid"
)

// OrderRouter is the outbound half of a venue: order placement and
// cancellation only. Live deployments plug a real adapter; replay runs
// with a nil router and accepts everything, since the resolution of each
// historical placement is already in the event log.
type OrderRouter interface {
	PlaceIncreaseOrder(params OrderParams) error
	PlaceDecreaseOrder(params OrderParams) error
	CancelOrder(subAccountID uuid.UUID, key order.Key) error
}

// Composite splits a Venue into an event-sourced read view and a
// pluggable order router. Position and funding reads come from the view,
// which only fill and index events mutate, so replays see exactly the
// state the original run saw regardless of what the live venue does now.
type Composite struct {
	View   *SimVenue
	Orders OrderRouter
}

func NewComposite(view *SimVenue, orders OrderRouter) *Composite {
	return &Composite{View: view, Orders: orders}
}

func (c *Composite) PlaceIncreaseOrder(params OrderParams) error {
	if c.Orders == nil {
		return nil
	}
	return c.Orders.PlaceIncreaseOrder(params)
}

func (c *Composite) PlaceDecreaseOrder(params OrderParams) error {
	if c.Orders == nil {
		return nil
	}
	return c.Orders.PlaceDecreaseOrder(params)
}

func (c *Composite) CancelOrder(subAccountID uuid.UUID, key order.Key) error {
	if c.Orders == nil {
		return nil
	}
	return c.Orders.CancelOrder(subAccountID, key)
}

func (c *Composite) GetPosition(subAccountID uuid.UUID, collateralToken, assetToken string, isLong bool) (margin.VenuePosition, error) {
	return c.View.GetPosition(subAccountID, collateralToken, assetToken, isLong)
}

func (c *Composite) GetFundingIndex(assetToken string) (int64, error) {
	return c.View.GetFundingIndex(assetToken)
}
