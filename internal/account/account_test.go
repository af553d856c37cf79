package account_test

import (
	"errors"
	"testing"

	"PerpBoost/internal/account"
	"PerpBoost/internal/config"
	"PerpBoost/internal/domain"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/margin"
	"PerpBoost/internal/order"
	"PerpBoost/internal/pool"
	"PerpBoost/internal/venue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const unit = int64(1_000_000_000)

type fixture struct {
	sa      *account.SubAccount
	pool    *pool.LendingPool
	tracker *ledger.BalanceTracker
	venue   *venue.SimVenue
	ownerID uuid.UUID
	wethID  ledger.AssetID
	usdcID  ledger.AssetID
}

// marginPosition builds a venue position with an entry price equal to
// the current ETH price, so its pnl contribution is zero.
func marginPosition(sizeUsd, collateralUsd int64) margin.VenuePosition {
	return margin.VenuePosition{
		SizeUsd:       sizeUsd,
		CollateralUsd: collateralUsd,
		AveragePrice:  2000 * unit,
	}
}

func defaultSnapshot() config.Snapshot {
	return config.Snapshot{
		Version: 1,
		Project: config.ProjectConfig{
			ProjectID:             1,
			VenueID:               "gmx-v2-arbitrum",
			MarketOrderTimeoutSec: config.DefaultMarketOrderTimeoutSec,
			LimitOrderTimeoutSec:  config.DefaultLimitOrderTimeoutSec,
			FundingAsset:          "ETH",
		},
		Asset: config.AssetConfig{
			BoostFeeRate:          2_000,  // 2%
			InitialMarginRate:     10_000, // 10%
			MaintenanceMarginRate: 5_000,  // 5%
			LiquidationFeeRate:    1_000,  // 1%
		},
		Borrow: config.BorrowConfig{AssetClass: config.AssetClassNormal, Cap: 100 * unit},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tracker := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, tracker)
	lp := pool.NewLendingPool(jg, tracker)
	sim := venue.NewSimVenue()
	prices := venue.FixedPrices{"WETH": 2000 * unit, "USDC": 1 * unit, "ETH": 2000 * unit, "ETH-REF": 2100 * unit}

	lp.SetAssetFlags("WETH", pool.FlagsAll)
	lp.SetAssetFlags("USDC", pool.FlagsAll)
	if err := lp.Deposit("seed-weth", "WETH", 10*unit, 1); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	ownerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	subID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	wethID := ledger.RegisterAsset("WETH")
	usdcID := ledger.RegisterAsset("USDC")

	// Fund the owner wallet from outside the system.
	tracker.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		DebitAccount:  ledger.NewOwnerAccountKey(ownerID, wethID),
		CreditAccount: ledger.NewExternalFundsKey(wethID),
		AssetID:       wethID,
		Amount:        5 * unit,
		JournalType:   ledger.JournalTypeAdjustment,
	})

	sa := account.NewSubAccount(subID, 1, ownerID, "WETH", "ETH", true, defaultSnapshot(), account.Deps{
		Pool:       lp,
		JournalGen: jg,
		Tracker:    tracker,
		Venue:      sim,
		Prices:     prices,
		Logger:     zerolog.Nop(),
	})
	lp.AuthorizeBorrower(subID)

	return &fixture{sa: sa, pool: lp, tracker: tracker, venue: sim, ownerID: ownerID, wethID: wethID, usdcID: usdcID}
}

// openBoosted places and confirms a standard boosted open: 1 WETH
// attached, 1.5 WETH borrowed, 2.47 WETH escrowed at the venue.
func (f *fixture) openBoosted(t *testing.T) order.Key {
	t.Helper()
	key, err := f.sa.OpenPosition("evt-open", 1*unit, 1500_000_000, 5000*unit, true, 0, 1000)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	return key
}

func (f *fixture) fillConfirmed(t *testing.T, key order.Key) {
	t.Helper()
	_, err := f.sa.HandleFill("evt-fill", account.Fill{Key: key, ActualBorrowed: 1500_000_000}, 1010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
}

// ==== Open Position ====

func TestOpenPosition_BorrowsAndEscrows(t *testing.T) {
	f := newFixture(t)

	key := f.openBoosted(t)

	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 4*unit {
		t.Errorf("owner balance got %d, want %d", got, 4*unit)
	}
	if got := f.tracker.GetSubAccountBalance(f.sa.ID, f.wethID); got != 0 {
		t.Errorf("sub balance got %d, want 0", got)
	}
	if got := f.tracker.GetVenueEscrow(f.sa.ID, f.wethID); got != 2470_000_000 {
		t.Errorf("escrow got %d, want 2470000000", got)
	}
	if got := f.tracker.GetPoolSupply(f.wethID); got != 8500_000_000 {
		t.Errorf("pool supply got %d, want 8500000000", got)
	}
	if got := f.tracker.GetPoolFeeReserve(f.wethID); got != 30_000_000 {
		t.Errorf("fee reserve got %d, want 30000000", got)
	}
	if got := f.sa.Debt.InflightDebt; got != 1500_000_000 {
		t.Errorf("inflight debt got %d, want 1500000000", got)
	}
	if f.sa.Book.Len() != 1 {
		t.Errorf("pending orders got %d, want 1", f.sa.Book.Len())
	}
	if _, ok := f.venue.PlacedOrder(key); !ok {
		t.Error("order not placed at venue")
	}
}

func TestOpenPosition_VirtualAssetRejectsBorrow(t *testing.T) {
	f := newFixture(t)
	snap := defaultSnapshot()
	snap.Borrow = config.BorrowConfig{AssetClass: config.AssetClassVirtual, Cap: 0}
	f.sa.Cfg = snap

	_, err := f.sa.OpenPosition("evt", 1*unit, 1, 100*unit, true, 0, 1000)
	if !errors.Is(err, domain.ErrVirtualAsset) {
		t.Fatalf("got %v, want ErrVirtualAsset", err)
	}
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 5*unit {
		t.Errorf("owner balance mutated: got %d, want %d", got, 5*unit)
	}

	// Zero borrow against a virtual asset is still allowed.
	if _, err := f.sa.OpenPosition("evt2", 1*unit, 0, 1000*unit, true, 0, 1000); err != nil {
		t.Fatalf("unboosted open on virtual asset: %v", err)
	}
}

func TestOpenPosition_BorrowCapExceeded(t *testing.T) {
	f := newFixture(t)
	snap := defaultSnapshot()
	snap.Borrow.Cap = 1 * unit
	f.sa.Cfg = snap

	_, err := f.sa.OpenPosition("evt", 1*unit, 1500_000_000, 5000*unit, true, 0, 1000)
	if !errors.Is(err, domain.ErrInsufficientSupply) {
		t.Fatalf("got %v, want ErrInsufficientSupply", err)
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("pending orders got %d, want 0", f.sa.Book.Len())
	}
}

func TestOpenPosition_InitialMarginUnsafe(t *testing.T) {
	f := newFixture(t)

	// Escrow value ~4940 USD against debt 3000 USD leaves 1940 USD of
	// margin; 100k USD of size needs 10k.
	_, err := f.sa.OpenPosition("evt", 1*unit, 1500_000_000, 100_000*unit, true, 0, 1000)
	if !errors.Is(err, domain.ErrImMarginUnsafe) {
		t.Fatalf("got %v, want ErrImMarginUnsafe", err)
	}
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 5*unit {
		t.Errorf("owner balance mutated: got %d, want %d", got, 5*unit)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding debt got %d, want 0", got)
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt mutated: %+v", f.sa.Debt)
	}
}

func TestOpenPosition_VenueRejectUnwinds(t *testing.T) {
	f := newFixture(t)
	f.venue.SetFailPlacement(true)

	_, err := f.sa.OpenPosition("evt", 1*unit, 1500_000_000, 5000*unit, true, 0, 1000)
	if err == nil {
		t.Fatal("expected venue reject error")
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("pending orders got %d, want 0", f.sa.Book.Len())
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt not unwound: %+v", f.sa.Debt)
	}
	// The boost fee is the cost of the round trip; everything else comes back.
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 4970_000_000 {
		t.Errorf("owner balance got %d, want 4970000000", got)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding debt got %d, want 0", got)
	}
}

// ==== Fill Settlement ====

func TestHandleFill_OpenFullUse(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	res, err := f.sa.HandleFill("evt-fill", account.Fill{Key: key, ActualBorrowed: 1500_000_000}, 1010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if !res.Applied {
		t.Fatal("fill not applied")
	}
	if got := f.sa.Debt.DebtPrincipal; got != 1500_000_000 {
		t.Errorf("principal got %d, want 1500000000", got)
	}
	if got := f.sa.Debt.InflightDebt; got != 0 {
		t.Errorf("inflight got %d, want 0", got)
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("pending orders got %d, want 0", f.sa.Book.Len())
	}
}

func TestHandleFill_OpenPartialUseRepaysUnused(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	// Venue consumed only 1.0 of the 1.5 borrowed and returned 0.5.
	res, err := f.sa.HandleFill("evt-fill", account.Fill{
		Key:                key,
		ActualBorrowed:     1 * unit,
		ReturnedCollateral: 500_000_000,
	}, 1010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if got := res.RepaidDebt; got != 500_000_000 {
		t.Errorf("repaid got %d, want 500000000", got)
	}
	if got := f.sa.Debt.DebtPrincipal; got != 1*unit {
		t.Errorf("principal got %d, want %d", got, 1*unit)
	}
	if got := f.tracker.GetPoolSupply(f.wethID); got != 9*unit {
		t.Errorf("pool supply got %d, want %d", got, 9*unit)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 1*unit {
		t.Errorf("outstanding got %d, want %d", got, 1*unit)
	}
	if got := f.tracker.GetSubAccountBalance(f.sa.ID, f.wethID); got != 0 {
		t.Errorf("sub balance got %d, want 0", got)
	}
}

func TestHandleFill_OpenPartialShortfallStaysOwed(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	// Venue consumed 1.0 of the 1.5 borrowed but returned only 0.2, so
	// 0.3 of the unused principal cannot be repaid and stays confirmed.
	res, err := f.sa.HandleFill("evt-fill", account.Fill{
		Key:                key,
		ActualBorrowed:     1 * unit,
		ReturnedCollateral: 200_000_000,
	}, 1010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if got := res.RepaidDebt; got != 200_000_000 {
		t.Errorf("repaid got %d, want 200000000", got)
	}
	if got := res.UnpaidDebt; got != 300_000_000 {
		t.Errorf("unpaid got %d, want 300000000", got)
	}
	if got := f.sa.Debt.DebtPrincipal; got != 1300_000_000 {
		t.Errorf("principal got %d, want 1300000000", got)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != f.sa.Debt.DebtPrincipal {
		t.Errorf("outstanding %d diverged from principal %d", got, f.sa.Debt.DebtPrincipal)
	}
}

func TestHandleFill_UnknownKeyIsNoop(t *testing.T) {
	f := newFixture(t)
	f.openBoosted(t)

	var bogus order.Key
	bogus[0] = 0xff
	res, err := f.sa.HandleFill("evt", account.Fill{Key: bogus, ActualBorrowed: 1}, 1010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if res.Applied {
		t.Error("bogus key applied")
	}
	if f.sa.Book.Len() != 1 {
		t.Errorf("pending orders got %d, want 1", f.sa.Book.Len())
	}
}

func TestHandleFill_CloseRepaysAndSweeps(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 4940*unit))

	closeKey, err := f.sa.ClosePosition("evt-close", 5000*unit, 0, true, 0, 2000)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	res, err := f.sa.HandleFill("evt-close-fill", account.Fill{
		Key:                closeKey,
		ReturnedCollateral: 2400_000_000,
	}, 2010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if got := res.RepaidDebt; got != 1500_000_000 {
		t.Errorf("repaid debt got %d, want 1500000000", got)
	}
	if got := res.SurplusToOwner; got != 900_000_000 {
		t.Errorf("surplus got %d, want 900000000", got)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding got %d, want 0", got)
	}
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 4900_000_000 {
		t.Errorf("owner balance got %d, want 4900000000", got)
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt remains: %+v", f.sa.Debt)
	}
}

func TestHandleFill_CloseWithSecondaryProceeds(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 4940*unit))

	closeKey, err := f.sa.ClosePosition("evt-close", 5000*unit, 0, true, 0, 2000)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	// 0.5 WETH plus 2500 USDC come back. Primary covers 0.5 of the 1.5
	// debt; the remaining 1.0 WETH needs 2000 USDC at 2000 USD/WETH.
	res, err := f.sa.HandleFill("evt-close-fill", account.Fill{
		Key:                closeKey,
		ReturnedCollateral: 500_000_000,
		SecondaryToken:     "USDC",
		SecondaryAmount:    2500 * unit,
	}, 2010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if got := res.RepaidDebt; got != 1500_000_000 {
		t.Errorf("repaid debt got %d, want 1500000000", got)
	}
	if got := res.UnpaidDebt; got != 0 {
		t.Errorf("unpaid debt got %d, want 0", got)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("WETH outstanding got %d, want 0", got)
	}
	if got := f.tracker.GetPoolSupply(f.usdcID); got != 2000*unit {
		t.Errorf("USDC supply got %d, want %d", got, 2000*unit)
	}
	// Surplus: 500 USDC to the owner wallet, no WETH left.
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.usdcID); got != 500*unit {
		t.Errorf("owner USDC got %d, want %d", got, 500*unit)
	}
	if got := f.tracker.GetSubAccountBalance(f.sa.ID, f.usdcID); got != 0 {
		t.Errorf("sub USDC got %d, want 0", got)
	}
}

// ==== Cancel Settlement ====

func TestHandleCancel_OpenReversesInflight(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	res, err := f.sa.HandleCancel("evt-cancel", key, 1010)
	if err != nil {
		t.Fatalf("HandleCancel: %v", err)
	}
	if !res.Applied {
		t.Fatal("cancel not applied")
	}
	if got := res.RepaidDebt; got != 1500_000_000 {
		t.Errorf("repaid got %d, want 1500000000", got)
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt remains: %+v", f.sa.Debt)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding got %d, want 0", got)
	}
	// Pool kept the boost fee; the owner eats it out of attached collateral.
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 4970_000_000 {
		t.Errorf("owner balance got %d, want 4970000000", got)
	}
	if got := f.tracker.GetPoolSupply(f.wethID); got != 10*unit {
		t.Errorf("pool supply got %d, want %d", got, 10*unit)
	}
}

func TestHandleCancel_Idempotent(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	if _, err := f.sa.HandleCancel("evt-cancel", key, 1010); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	res, err := f.sa.HandleCancel("evt-cancel-2", key, 1020)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if res.Applied {
		t.Error("second cancel applied")
	}
	if got := f.tracker.GetOwnerBalance(f.ownerID, f.wethID); got != 4970_000_000 {
		t.Errorf("owner balance got %d, want 4970000000", got)
	}
}

// ==== Withdraw ====

func TestWithdraw_RepaysAndSweeps(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)

	// Venue never opened a position; everything comes back on the fill.
	if _, err := f.sa.HandleFill("evt-fill", account.Fill{
		Key:                key,
		ActualBorrowed:     1500_000_000,
		ReturnedCollateral: 2470_000_000,
	}, 1010); err != nil {
		t.Fatalf("HandleFill: %v", err)
	}

	swept, err := f.sa.Withdraw("evt-withdraw", 1020)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if swept != 970_000_000 {
		t.Errorf("swept got %d, want 970000000", swept)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding got %d, want 0", got)
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt remains: %+v", f.sa.Debt)
	}
}

func TestWithdraw_AccruesFundingFee(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	if _, err := f.sa.HandleFill("evt-fill", account.Fill{
		Key:                key,
		ActualBorrowed:     1500_000_000,
		ReturnedCollateral: 2470_000_000,
	}, 1010); err != nil {
		t.Fatalf("HandleFill: %v", err)
	}

	// Funding index advances 0.02: fee = 1.5 * 0.02 = 0.03 WETH.
	f.venue.SetFundingIndex("ETH", 20_000_000)

	swept, err := f.sa.Withdraw("evt-withdraw", 1020)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if swept != 940_000_000 {
		t.Errorf("swept got %d, want 940000000", swept)
	}
	// Boost fee 0.03 plus funding fee 0.03.
	if got := f.tracker.GetPoolFeeReserve(f.wethID); got != 60_000_000 {
		t.Errorf("fee reserve got %d, want 60000000", got)
	}
}

func TestWithdraw_BlockedByPendingOrders(t *testing.T) {
	f := newFixture(t)
	f.openBoosted(t)

	_, err := f.sa.Withdraw("evt-withdraw", 1020)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestWithdraw_BlockedByOpenPosition(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 4940*unit))

	_, err := f.sa.Withdraw("evt-withdraw", 1020)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestWithdraw_NotEnoughBalance(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	// Confirmed debt but the venue returned nothing.
	f.fillConfirmed(t, key)

	_, err := f.sa.Withdraw("evt-withdraw", 1020)
	if !errors.Is(err, domain.ErrNotEnoughBalance) {
		t.Fatalf("got %v, want ErrNotEnoughBalance", err)
	}
}

// ==== Liquidation ====

func TestLiquidate_FullCycle(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)

	// 3100 collateral against 3000 debt leaves 100 USD of margin,
	// below the 250 USD maintenance requirement on 5000 of size.
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 3100*unit))

	liquidatorID := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	liqKey, err := f.sa.Liquidate("evt-liq", liquidatorID, 0, 2000)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if !f.sa.Book.IsLiquidating() {
		t.Fatal("latch not set")
	}

	// User orders are blocked while the liquidation is unresolved.
	if _, err := f.sa.OpenPosition("evt-open2", 1*unit, 0, 100*unit, true, 0, 2001); !errors.Is(err, domain.ErrLiquidating) {
		t.Fatalf("open during liquidation: got %v, want ErrLiquidating", err)
	}

	res, err := f.sa.HandleFill("evt-liq-fill", account.Fill{
		Key:                liqKey,
		ReturnedCollateral: 1600_000_000,
	}, 2010)
	if err != nil {
		t.Fatalf("HandleFill: %v", err)
	}
	if got := res.LiquidationFee; got != 16_000_000 {
		t.Errorf("liquidation fee got %d, want 16000000", got)
	}
	if got := f.tracker.GetOwnerBalance(liquidatorID, f.wethID); got != 16_000_000 {
		t.Errorf("liquidator reward got %d, want 16000000", got)
	}
	if got := res.RepaidDebt; got != 1500_000_000 {
		t.Errorf("repaid debt got %d, want 1500000000", got)
	}
	if got := res.SurplusToOwner; got != 84_000_000 {
		t.Errorf("surplus got %d, want 84000000", got)
	}
	if f.sa.Book.IsLiquidating() {
		t.Error("latch not cleared")
	}
}

func TestLiquidate_MarginSafeRejected(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 4940*unit))

	_, err := f.sa.Liquidate("evt-liq", uuid.New(), 0, 2000)
	if !errors.Is(err, domain.ErrMmMarginSafe) {
		t.Fatalf("got %v, want ErrMmMarginSafe", err)
	}
}

func TestLiquidate_NothingToLiquidate(t *testing.T) {
	f := newFixture(t)

	_, err := f.sa.Liquidate("evt-liq", uuid.New(), 0, 2000)
	if !errors.Is(err, domain.ErrNoPositionToLiquidate) {
		t.Fatalf("got %v, want ErrNoPositionToLiquidate", err)
	}
}

func TestLiquidate_VenueRejectReleasesLatch(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 3100*unit))

	f.venue.SetFailPlacement(true)
	if _, err := f.sa.Liquidate("evt-liq", uuid.New(), 0, 2000); err == nil {
		t.Fatal("expected venue reject")
	}
	if f.sa.Book.IsLiquidating() {
		t.Fatal("latch held after rejected placement")
	}

	// Rollback must leave the account liquidatable again.
	f.venue.SetFailPlacement(false)
	if _, err := f.sa.Liquidate("evt-liq2", uuid.New(), 0, 2001); err != nil {
		t.Fatalf("retry after reject: %v", err)
	}
}

// ==== Timeout Cancels ====

func TestCancelTimeoutOrders_RespectsWindow(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t) // market order placed at t=1000

	cancelled, err := f.sa.CancelTimeoutOrders("evt-timeout", []order.Key{key}, 1000+119)
	if err != nil {
		t.Fatalf("CancelTimeoutOrders: %v", err)
	}
	if len(cancelled) != 0 {
		t.Fatalf("cancelled %d orders before timeout", len(cancelled))
	}

	var bogus order.Key
	bogus[1] = 0xab
	cancelled, err = f.sa.CancelTimeoutOrders("evt-timeout", []order.Key{bogus, key}, 1000+120)
	if err != nil {
		t.Fatalf("CancelTimeoutOrders: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0] != key {
		t.Fatalf("cancelled %v, want [%s]", cancelled, key)
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("pending orders got %d, want 0", f.sa.Book.Len())
	}
}

func TestOpenPosition_ReferencePriceDeviation(t *testing.T) {
	f := newFixture(t)

	// ETH trades at 2000 against a 2100 reference. A 2% tolerance (42)
	// cannot absorb the 100 gap; 5% (105) can.
	snap := defaultSnapshot()
	snap.Version = 2
	snap.Asset.ReferenceOracle = "ETH-REF"
	snap.Asset.ReferencePriceDeviation = 2_000
	if err := f.sa.UpdateConfigs("evt-cfg", snap, 999); err != nil {
		t.Fatalf("UpdateConfigs: %v", err)
	}

	_, err := f.sa.OpenPosition("evt-open", 1*unit, 1500_000_000, 5000*unit, true, 0, 1000)
	if !errors.Is(err, domain.ErrPriceDeviation) {
		t.Fatalf("got %v, want ErrPriceDeviation", err)
	}

	snap.Version = 3
	snap.Asset.ReferencePriceDeviation = 5_000
	if err := f.sa.UpdateConfigs("evt-cfg2", snap, 999); err != nil {
		t.Fatalf("UpdateConfigs: %v", err)
	}
	if _, err := f.sa.OpenPosition("evt-open2", 1*unit, 1500_000_000, 5000*unit, true, 0, 1000); err != nil {
		t.Fatalf("OpenPosition within tolerance: %v", err)
	}
}

func TestCancelOrders_NoTimeoutGate(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t) // market order placed at t=1000

	// Cancellation inside the timeout window goes through.
	var bogus order.Key
	bogus[2] = 0xcd
	cancelled, err := f.sa.CancelOrders("evt-cancel", []order.Key{bogus, key}, 1001)
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0] != key {
		t.Fatalf("cancelled %v, want [%s]", cancelled, key)
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("pending orders got %d, want 0", f.sa.Book.Len())
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt not reversed: %+v", f.sa.Debt)
	}
	if got := f.pool.OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding got %d, want 0", got)
	}
}

func TestCancelOrders_SkipsLiquidationOrder(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true, marginPosition(5000*unit, 100*unit))

	liqKey, err := f.sa.Liquidate("evt-liq", uuid.New(), 0, 2000)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}

	cancelled, err := f.sa.CancelOrders("evt-cancel", []order.Key{liqKey}, 2001)
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(cancelled) != 0 {
		t.Fatalf("cancelled a liquidation order: %v", cancelled)
	}
	if !f.sa.Book.IsLiquidating() {
		t.Error("liquidation latch cleared by cancel")
	}
}

// ==== Config Refresh ====

func TestUpdateConfigs_VenueChangePurgesPending(t *testing.T) {
	f := newFixture(t)
	f.openBoosted(t)

	snap := defaultSnapshot()
	snap.Version = 2
	snap.Project.VenueID = "gmx-v2-avalanche"
	if err := f.sa.UpdateConfigs("evt-cfg", snap, 1100); err != nil {
		t.Fatalf("UpdateConfigs: %v", err)
	}
	if f.sa.Book.Len() != 0 {
		t.Errorf("stale orders not purged: %d pending", f.sa.Book.Len())
	}
	if f.sa.Cfg.Version != 2 {
		t.Errorf("version got %d, want 2", f.sa.Cfg.Version)
	}
	if !f.sa.Debt.IsZero() {
		t.Errorf("debt not reversed: %+v", f.sa.Debt)
	}
}

func TestUpdateConfigs_SameVenueKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.openBoosted(t)

	snap := defaultSnapshot()
	snap.Version = 2
	snap.Asset.BoostFeeRate = 3_000
	if err := f.sa.UpdateConfigs("evt-cfg", snap, 1100); err != nil {
		t.Fatalf("UpdateConfigs: %v", err)
	}
	if f.sa.Book.Len() != 1 {
		t.Errorf("pending orders got %d, want 1", f.sa.Book.Len())
	}
}

func TestUpdateConfigs_BlockedDuringLiquidation(t *testing.T) {
	f := newFixture(t)
	key := f.openBoosted(t)
	f.fillConfirmed(t, key)
	f.venue.SetPosition(f.sa.ID, "WETH", "ETH", true,
		marginPosition(5000*unit, 3100*unit))
	if _, err := f.sa.Liquidate("evt-liq", uuid.New(), 0, 2000); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}

	err := f.sa.UpdateConfigs("evt-cfg", defaultSnapshot(), 2100)
	if !errors.Is(err, domain.ErrLiquidating) {
		t.Fatalf("got %v, want ErrLiquidating", err)
	}
}
