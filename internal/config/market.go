package config

import (
	"fmt"

	fpmath "PerpBoost/internal/math"
)

// Default order timeout windows (seconds)
const (
	DefaultMarketOrderTimeoutSec = 120
	DefaultLimitOrderTimeoutSec  = 86400 * 2
)

// AssetClass classifies a borrowable token
type AssetClass int32

const (
	AssetClassNormal  AssetClass = iota
	AssetClassVirtual // unboostable: any non-zero borrow fails closed
)

func (c AssetClass) String() string {
	switch c {
	case AssetClassNormal:
		return "Normal"
	case AssetClassVirtual:
		return "Virtual"
	default:
		return "Unknown"
	}
}

// ProjectConfig is the shared per-market configuration
type ProjectConfig struct {
	ProjectID             int64
	VenueID               string // external venue target identifier
	ReferralCode          string
	MarketOrderTimeoutSec int64
	LimitOrderTimeoutSec  int64
	FundingAsset          string
}

// AssetConfig is the per-asset sub-configuration (rates at RateConfig scale)
type AssetConfig struct {
	BoostFeeRate            int64
	InitialMarginRate       int64
	MaintenanceMarginRate   int64
	LiquidationFeeRate      int64
	ReferenceOracle         string
	ReferencePriceDeviation int64
}

// BorrowConfig caps outstanding borrow per asset
type BorrowConfig struct {
	AssetClass AssetClass
	Cap        int64 // outstanding principal cap; 0 for virtual assets
}

// ValidateProjectConfig checks timeout windows and the venue target.
func ValidateProjectConfig(cfg ProjectConfig) error {
	if cfg.VenueID == "" {
		return fmt.Errorf("venue_id must be set")
	}
	if cfg.MarketOrderTimeoutSec <= 0 {
		return fmt.Errorf("market_order_timeout must be > 0, got %d", cfg.MarketOrderTimeoutSec)
	}
	if cfg.LimitOrderTimeoutSec <= 0 {
		return fmt.Errorf("limit_order_timeout must be > 0, got %d", cfg.LimitOrderTimeoutSec)
	}
	return nil
}

// ValidateAssetConfig checks rate ordering: mm > 0, im > mm, rates < 1.0.
func ValidateAssetConfig(cfg AssetConfig) error {
	if cfg.MaintenanceMarginRate <= 0 {
		return fmt.Errorf("maintenance_margin_rate must be > 0, got %d", cfg.MaintenanceMarginRate)
	}
	if cfg.InitialMarginRate <= cfg.MaintenanceMarginRate {
		return fmt.Errorf("initial_margin_rate (%d) must be > maintenance_margin_rate (%d)",
			cfg.InitialMarginRate, cfg.MaintenanceMarginRate)
	}
	if cfg.InitialMarginRate >= fpmath.RateConfig.Scale {
		return fmt.Errorf("initial_margin_rate must be < %d, got %d", fpmath.RateConfig.Scale, cfg.InitialMarginRate)
	}
	if cfg.BoostFeeRate < 0 || cfg.BoostFeeRate >= fpmath.RateConfig.Scale {
		return fmt.Errorf("boost_fee_rate out of range: %d", cfg.BoostFeeRate)
	}
	if cfg.LiquidationFeeRate < 0 || cfg.LiquidationFeeRate >= fpmath.RateConfig.Scale {
		return fmt.Errorf("liquidation_fee_rate out of range: %d", cfg.LiquidationFeeRate)
	}
	return nil
}

// ValidateBorrowConfig checks the class/cap pairing.
func ValidateBorrowConfig(cfg BorrowConfig) error {
	if cfg.Cap < 0 {
		return fmt.Errorf("borrow cap must be >= 0, got %d", cfg.Cap)
	}
	if cfg.AssetClass == AssetClassVirtual && cfg.Cap != 0 {
		return fmt.Errorf("virtual asset must have zero cap, got %d", cfg.Cap)
	}
	return nil
}
