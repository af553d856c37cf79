package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"PerpBoost/internal/config"
)

const bootstrapYAML = `
projects:
  - project_id: 1
    venue_id: gmx-arbitrum
    referral_code: boost
    funding_asset: WETH
    assets:
      - token: WETH
        boost_fee_rate: 2000
        initial_margin_rate: 10000
        maintenance_margin_rate: 5000
        liquidation_fee_rate: 1000
        reference_oracle: chainlink:eth-usd
        reference_price_deviation: 2000
        asset_class: normal
        borrow_cap: 1000000000000
      - token: vGLP
        boost_fee_rate: 0
        initial_margin_rate: 20000
        maintenance_margin_rate: 10000
        liquidation_fee_rate: 0
        reference_oracle: venue:glp
        reference_price_deviation: 1000
        asset_class: virtual
pool_assets:
  - token: WETH
    enabled: true
    borrowable: true
    repayable: true
    depositable: true
    withdrawable: true
`

func writeBootstrap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBootstrap(t *testing.T) {
	b, err := config.LoadBootstrap(writeBootstrap(t, bootstrapYAML))
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}

	if len(b.Projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(b.Projects))
	}
	if len(b.Projects[0].Assets) != 2 {
		t.Fatalf("got %d project assets, want 2", len(b.Projects[0].Assets))
	}
	if len(b.Pool) != 1 {
		t.Fatalf("got %d pool assets, want 1", len(b.Pool))
	}
	if b.Projects[0].VenueID != "gmx-arbitrum" {
		t.Errorf("venue_id = %q", b.Projects[0].VenueID)
	}
	if !b.Pool[0].Withdrawable {
		t.Error("pool asset should be withdrawable")
	}
}

func TestLoadBootstrap_MissingFile(t *testing.T) {
	if _, err := config.LoadBootstrap(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBootstrap_ApplySeedsStore(t *testing.T) {
	b, err := config.LoadBootstrap(writeBootstrap(t, bootstrapYAML))
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}

	store := config.NewStore()
	if err := b.Apply(store); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	proj, ok := store.ProjectConfig(1)
	if !ok {
		t.Fatal("project 1 not seeded")
	}
	// omitted timeouts fall back to defaults
	if proj.MarketOrderTimeoutSec != config.DefaultMarketOrderTimeoutSec {
		t.Errorf("market timeout = %d, want default %d", proj.MarketOrderTimeoutSec, config.DefaultMarketOrderTimeoutSec)
	}
	if proj.LimitOrderTimeoutSec != config.DefaultLimitOrderTimeoutSec {
		t.Errorf("limit timeout = %d, want default %d", proj.LimitOrderTimeoutSec, config.DefaultLimitOrderTimeoutSec)
	}

	asset, ok := store.AssetConfig(1, "WETH")
	if !ok {
		t.Fatal("WETH asset config not seeded")
	}
	if asset.BoostFeeRate != 2000 {
		t.Errorf("boost fee rate = %d", asset.BoostFeeRate)
	}

	borrow, ok := store.BorrowConfig(1, "vGLP")
	if !ok {
		t.Fatal("vGLP borrow config not seeded")
	}
	if borrow.AssetClass != config.AssetClassVirtual {
		t.Errorf("asset class = %v, want virtual", borrow.AssetClass)
	}

	if store.Version() <= 1 {
		t.Error("store version should advance after seeding")
	}
}
