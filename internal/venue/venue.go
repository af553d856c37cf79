package venue

import (
	"PerpBoost/internal/margin"
	"PerpBoost/internal/order"

	"github.com/google/uuid"
)

// OrderParams carries the venue-specific request for a placement.
// Amounts at AmountConfig scale, USD at UsdConfig, prices at PriceConfig.
type OrderParams struct {
	SubAccountID    uuid.UUID
	Key             order.Key
	CollateralToken string
	AssetToken      string
	IsLong          bool
	IsMarket        bool
	CollateralDelta int64
	SizeDeltaUsd    int64
	AcceptablePrice int64
	ReferralCode    string
}

// Venue is the external perpetual-futures execution system. Placements
// return immediately; resolution arrives later through the fill/cancel
// callback path.
type Venue interface {
	PlaceIncreaseOrder(params OrderParams) error
	PlaceDecreaseOrder(params OrderParams) error
	CancelOrder(subAccountID uuid.UUID, key order.Key) error
	GetPosition(subAccountID uuid.UUID, collateralToken, assetToken string, isLong bool) (margin.VenuePosition, error)
	GetFundingIndex(assetToken string) (int64, error)
}

// PriceSource supplies point-in-time, untrusted prices.
type PriceSource interface {
	GetPrice(token string) (int64, error)
}
