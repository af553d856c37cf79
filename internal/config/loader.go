package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bootstrap is the YAML market bootstrap file loaded at startup. It seeds
// the config store and the lending pool's asset flags; runtime mutations
// arrive as maintainer commands afterwards.
type Bootstrap struct {
	Projects []BootstrapProject `yaml:"projects"`
	Pool     []BootstrapAsset   `yaml:"pool_assets"`
}

type BootstrapProject struct {
	ProjectID             int64                   `yaml:"project_id"`
	VenueID               string                  `yaml:"venue_id"`
	ReferralCode          string                  `yaml:"referral_code"`
	MarketOrderTimeoutSec int64                   `yaml:"market_order_timeout_sec"`
	LimitOrderTimeoutSec  int64                   `yaml:"limit_order_timeout_sec"`
	FundingAsset          string                  `yaml:"funding_asset"`
	Assets                []BootstrapProjectAsset `yaml:"assets"`
}

type BootstrapProjectAsset struct {
	Token                   string `yaml:"token"`
	BoostFeeRate            int64  `yaml:"boost_fee_rate"`
	InitialMarginRate       int64  `yaml:"initial_margin_rate"`
	MaintenanceMarginRate   int64  `yaml:"maintenance_margin_rate"`
	LiquidationFeeRate      int64  `yaml:"liquidation_fee_rate"`
	ReferenceOracle         string `yaml:"reference_oracle"`
	ReferencePriceDeviation int64  `yaml:"reference_price_deviation"`
	AssetClass              string `yaml:"asset_class"` // "normal" or "virtual"
	BorrowCap               int64  `yaml:"borrow_cap"`
}

type BootstrapAsset struct {
	Token        string `yaml:"token"`
	Enabled      bool   `yaml:"enabled"`
	Borrowable   bool   `yaml:"borrowable"`
	Repayable    bool   `yaml:"repayable"`
	Depositable  bool   `yaml:"depositable"`
	Withdrawable bool   `yaml:"withdrawable"`
}

// LoadBootstrap reads and parses the market bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}

	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bootstrap file: %w", err)
	}
	return &b, nil
}

// Apply seeds a config store from the bootstrap file.
func (b *Bootstrap) Apply(store *Store) error {
	for _, p := range b.Projects {
		cfg := ProjectConfig{
			ProjectID:             p.ProjectID,
			VenueID:               p.VenueID,
			ReferralCode:          p.ReferralCode,
			MarketOrderTimeoutSec: p.MarketOrderTimeoutSec,
			LimitOrderTimeoutSec:  p.LimitOrderTimeoutSec,
			FundingAsset:          p.FundingAsset,
		}
		if cfg.MarketOrderTimeoutSec == 0 {
			cfg.MarketOrderTimeoutSec = DefaultMarketOrderTimeoutSec
		}
		if cfg.LimitOrderTimeoutSec == 0 {
			cfg.LimitOrderTimeoutSec = DefaultLimitOrderTimeoutSec
		}
		if err := store.SetProjectConfig(cfg); err != nil {
			return err
		}

		for _, a := range p.Assets {
			assetCfg := AssetConfig{
				BoostFeeRate:            a.BoostFeeRate,
				InitialMarginRate:       a.InitialMarginRate,
				MaintenanceMarginRate:   a.MaintenanceMarginRate,
				LiquidationFeeRate:      a.LiquidationFeeRate,
				ReferenceOracle:         a.ReferenceOracle,
				ReferencePriceDeviation: a.ReferencePriceDeviation,
			}
			if err := store.SetAssetConfig(p.ProjectID, a.Token, assetCfg); err != nil {
				return err
			}

			class := AssetClassNormal
			if a.AssetClass == "virtual" {
				class = AssetClassVirtual
			}
			borrowCfg := BorrowConfig{AssetClass: class, Cap: a.BorrowCap}
			if err := store.SetBorrowConfig(p.ProjectID, a.Token, borrowCfg); err != nil {
				return err
			}
		}
	}
	return nil
}
