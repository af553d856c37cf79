package margin

import (
	stdmath "math"

	"PerpBoost/internal/debt"
	"PerpBoost/internal/domain"
	fpmath "PerpBoost/internal/math"
)

// VenuePosition is the point-in-time position snapshot reported by the
// external venue. USD fields at UsdConfig scale, prices at PriceConfig.
type VenuePosition struct {
	SizeUsd          int64
	CollateralUsd    int64
	EntryFundingRate int64
	AveragePrice     int64
}

func (p VenuePosition) IsFlat() bool {
	return p.SizeUsd == 0
}

// MarginStatus represents a sub-account's margin health
type MarginStatus int

const (
	MarginStatusHealthy MarginStatus = iota
	MarginStatusImUnsafe
	MarginStatusMmUnsafe
)

func (ms MarginStatus) String() string {
	switch ms {
	case MarginStatusHealthy:
		return "Healthy"
	case MarginStatusImUnsafe:
		return "ImUnsafe"
	case MarginStatusMmUnsafe:
		return "MmUnsafe"
	default:
		return "Unknown"
	}
}

// Rates holds the margin thresholds from the asset configuration
// (RateConfig scale).
type Rates struct {
	InitialMarginRate     int64
	MaintenanceMarginRate int64
}

// Evaluator computes margin value and safety from venue position data,
// the debt record, and a point-in-time price. Prices are untrusted inputs
// passed per call; the evaluator never caches one.
type Evaluator struct {
	rates Rates
}

func NewEvaluator(rates Rates) *Evaluator {
	return &Evaluator{rates: rates}
}

// ComputeMarginValue returns
// collateralUsd + signedPnlUsd - debtUsd - feeUsd as a magnitude plus a
// sign flag, so callers can tell "near zero positive" from "negative"
// without unsigned underflow. Debt valuation rounds up: the margin check
// can only err against the borrower.
func (e *Evaluator) ComputeMarginValue(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) (valueUsd int64, positive bool) {
	pnl := signedPnlUsd(pos, isLong, assetPrice)

	debtUsd := fpmath.TokenToUsd(ds.TotalDebt(), collateralPrice, fpmath.RoundUp)
	feeUsd := fpmath.TokenToUsd(ds.TotalFee(fundingIndex), collateralPrice, fpmath.RoundUp)

	value := pos.CollateralUsd + pnl - debtUsd - feeUsd
	if value < 0 {
		return -value, false
	}
	return value, true
}

// MarginRate returns marginValue / sizeUsd at RateConfig scale. A flat
// position has no exposure and reports MaxInt64.
func (e *Evaluator) MarginRate(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) int64 {
	value, positive := e.ComputeMarginValue(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice)
	if pos.SizeUsd == 0 {
		return stdmath.MaxInt64
	}
	if !positive {
		return 0
	}
	return fpmath.MulDiv(value, fpmath.RateConfig.Scale, pos.SizeUsd, fpmath.RoundDown)
}

// IsInitialMarginSafe gates opening or increasing a position.
func (e *Evaluator) IsInitialMarginSafe(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) bool {
	value, positive := e.ComputeMarginValue(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice)
	if !positive {
		return false
	}
	required := fpmath.MarginRequirement(pos.SizeUsd, e.rates.InitialMarginRate)
	return value >= required
}

// IsMaintenanceMarginSafe gates holding; its violation is the
// liquidation trigger.
func (e *Evaluator) IsMaintenanceMarginSafe(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) bool {
	value, positive := e.ComputeMarginValue(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice)
	if !positive {
		return false
	}
	required := fpmath.MarginRequirement(pos.SizeUsd, e.rates.MaintenanceMarginRate)
	return value >= required
}

// CheckMarginHealth classifies the position against both thresholds.
func (e *Evaluator) CheckMarginHealth(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) MarginStatus {
	if !e.IsMaintenanceMarginSafe(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice) {
		return MarginStatusMmUnsafe
	}
	if !e.IsInitialMarginSafe(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice) {
		return MarginStatusImUnsafe
	}
	return MarginStatusHealthy
}

// CheckLiquidatable decides whether a liquidation may start.
func (e *Evaluator) CheckLiquidatable(
	pos VenuePosition,
	isLong bool,
	ds debt.State,
	fundingIndex int64,
	collateralPrice int64,
	assetPrice int64,
) error {
	if pos.IsFlat() && ds.TotalDebt() == 0 && ds.TotalFee(fundingIndex) == 0 {
		return domain.ErrNoPositionToLiquidate
	}
	if e.IsMaintenanceMarginSafe(pos, isLong, ds, fundingIndex, collateralPrice, assetPrice) {
		return domain.ErrMmMarginSafe
	}
	return nil
}

// signedPnlUsd computes sizeUsd * (price - avgPrice) / avgPrice with the
// side sign applied. A position with no recorded entry price carries no
// pnl.
func signedPnlUsd(pos VenuePosition, isLong bool, assetPrice int64) int64 {
	if pos.SizeUsd == 0 || pos.AveragePrice == 0 {
		return 0
	}
	diff := assetPrice - pos.AveragePrice
	pnl := fpmath.MulDiv(pos.SizeUsd, diff, pos.AveragePrice, fpmath.RoundDown)
	if !isLong {
		pnl = -pnl
	}
	return pnl
}
