package domain

import "errors"

// Business-rule errors surfaced to callers. Every rejected operation wraps
// exactly one of these so callers can branch with errors.Is.
var (
	// Permission / configuration
	ErrForbidden          = errors.New("Forbidden")
	ErrUnauthorizedCaller = errors.New("UnauthorizedCaller")

	// Liquidity
	ErrInsufficientSupply = errors.New("InsufficientSupply")

	// Safety
	ErrImMarginUnsafe = errors.New("ImMarginUnsafe")
	ErrMmMarginUnsafe = errors.New("MmMarginUnsafe")
	ErrMmMarginSafe   = errors.New("MmMarginSafe")
	ErrLiquidating    = errors.New("Liquidating")
	ErrPriceDeviation = errors.New("PriceDeviation")

	// State preconditions
	ErrNoPositionToLiquidate = errors.New("NoPositionToLiquidate")
	ErrNotEnoughBalance      = errors.New("NotEnoughBalance")
	ErrVirtualAsset          = errors.New("VirtualAsset")
)
