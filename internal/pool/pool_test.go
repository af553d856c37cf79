package pool_test

import (
	"errors"
	"testing"

	"PerpBoost/internal/domain"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/pool"

	"github.com/google/uuid"
)

const unit = int64(1_000_000_000)

func newPool() (*pool.LendingPool, *ledger.BalanceTracker, *ledger.JournalGenerator) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	return pool.NewLendingPool(jg, bt), bt, jg
}

// ============================================================================
// Test: Flags
// ============================================================================

func TestPool_UnknownAssetForbidden(t *testing.T) {
	p, _, _ := newPool()

	err := p.Deposit("dep-1", "WETH", unit, 1)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestPool_FlagBitsAreIndependent(t *testing.T) {
	p, _, _ := newPool()
	sub := uuid.New()
	p.AuthorizeBorrower(sub)

	// enabled + depositable only
	p.SetAssetFlags("WETH", pool.FlagEnabled|pool.FlagDepositable)

	if err := p.Deposit("dep-1", "WETH", 10*unit, 1); err != nil {
		t.Fatalf("deposit should pass with depositable bit: %v", err)
	}
	if err := p.Withdraw("wd-1", "WETH", unit, 2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("withdraw without bit: got %v, want ErrForbidden", err)
	}
	if err := p.BorrowToken("b-1", sub, "WETH", unit, 0, 3); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("borrow without bit: got %v, want ErrForbidden", err)
	}

	// disabled asset fails everything regardless of other bits
	p.SetAssetFlags("WETH", pool.FlagDepositable|pool.FlagWithdrawable)
	if err := p.Deposit("dep-2", "WETH", unit, 4); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("disabled asset: got %v, want ErrForbidden", err)
	}
}

// ============================================================================
// Test: Deposit / withdraw
// ============================================================================

func TestPool_WithdrawInsufficientSupply(t *testing.T) {
	p, _, _ := newPool()
	p.SetAssetFlags("WETH", pool.FlagsAll)

	if err := p.Deposit("dep-1", "WETH", 5*unit, 1); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	err := p.Withdraw("wd-1", "WETH", 6*unit, 2)
	if !errors.Is(err, domain.ErrInsufficientSupply) {
		t.Errorf("got %v, want ErrInsufficientSupply", err)
	}

	if err := p.Withdraw("wd-2", "WETH", 5*unit, 3); err != nil {
		t.Errorf("exact withdrawal should pass: %v", err)
	}

	st, _ := p.AssetState("WETH")
	if st.Supply != 0 {
		t.Errorf("supply after withdraw: got %d, want 0", st.Supply)
	}
}

// ============================================================================
// Test: Borrow
// ============================================================================

func TestPool_BorrowScenario(t *testing.T) {
	p, bt, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.AuthorizeBorrower(sub)

	if err := p.Deposit("dep-1", "WETH", 10*unit, 1); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// borrow 1.5 at 0.02 fee rate: fee 0.03, net 1.47
	if err := p.BorrowToken("b-1", sub, "WETH", 1_500_000_000, 30_000_000, 2); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}

	st, _ := p.AssetState("WETH")
	if st.Supply != 8_500_000_000 {
		t.Errorf("supply: got %d, want 8_500_000_000", st.Supply)
	}
	if st.TotalAmountOut != 1_500_000_000 {
		t.Errorf("totalAmountOut: got %d, want 1_500_000_000", st.TotalAmountOut)
	}
	if st.BorrowFeeAmount != 30_000_000 {
		t.Errorf("borrowFeeAmount: got %d, want 30_000_000", st.BorrowFeeAmount)
	}

	assetID, _ := ledger.GetAssetID("WETH")
	if got := bt.GetSubAccountBalance(sub, assetID); got != 1_470_000_000 {
		t.Errorf("net transferred: got %d, want 1_470_000_000", got)
	}
}

func TestPool_BorrowUnauthorized(t *testing.T) {
	p, _, _ := newPool()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.Deposit("dep-1", "WETH", 10*unit, 1)

	err := p.BorrowToken("b-1", uuid.New(), "WETH", unit, 0, 2)
	if !errors.Is(err, domain.ErrUnauthorizedCaller) {
		t.Errorf("got %v, want ErrUnauthorizedCaller", err)
	}
}

func TestPool_BorrowInsufficientSupply(t *testing.T) {
	p, _, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.AuthorizeBorrower(sub)
	p.Deposit("dep-1", "WETH", unit, 1)

	err := p.BorrowToken("b-1", sub, "WETH", 2*unit, 0, 2)
	if !errors.Is(err, domain.ErrInsufficientSupply) {
		t.Errorf("got %v, want ErrInsufficientSupply", err)
	}
}

// ============================================================================
// Test: Repay
// ============================================================================

func TestPool_RepayRestoresCounters(t *testing.T) {
	p, _, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.AuthorizeBorrower(sub)
	p.Deposit("dep-1", "WETH", 10*unit, 1)

	if err := p.BorrowToken("b-1", sub, "WETH", 1_500_000_000, 0, 2); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}

	// repay 1.2 principal + 0.1 fee from the 1.5 held
	if err := p.RepayToken("r-1", sub, "WETH", 1_200_000_000, 100_000_000, 3); err != nil {
		t.Fatalf("repay failed: %v", err)
	}

	st, _ := p.AssetState("WETH")
	if st.Supply != 9_700_000_000 {
		t.Errorf("supply: got %d, want 9_700_000_000", st.Supply)
	}
	if st.TotalAmountIn != 1_200_000_000 {
		t.Errorf("totalAmountIn: got %d, want 1_200_000_000", st.TotalAmountIn)
	}
	// repaid fee is pool revenue, never supply
	if st.BorrowFeeAmount != 100_000_000 {
		t.Errorf("borrowFeeAmount: got %d, want 100_000_000", st.BorrowFeeAmount)
	}

	if got := p.OutstandingDebt("WETH"); got != 300_000_000 {
		t.Errorf("outstanding debt: got %d, want 300_000_000", got)
	}
}

func TestPool_RepayNotEnoughBalance(t *testing.T) {
	p, _, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.AuthorizeBorrower(sub)
	p.Deposit("dep-1", "WETH", 10*unit, 1)
	p.BorrowToken("b-1", sub, "WETH", unit, 0, 2)

	// sub-account holds 1.0, forced repay of 1.2 must fail
	err := p.RepayToken("r-1", sub, "WETH", 1_200_000_000, 0, 3)
	if !errors.Is(err, domain.ErrNotEnoughBalance) {
		t.Errorf("got %v, want ErrNotEnoughBalance", err)
	}
}

// ============================================================================
// Test: Conservation and USD reporting
// ============================================================================

func TestPool_Conservation(t *testing.T) {
	p, bt, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.AuthorizeBorrower(sub)

	p.Deposit("dep-1", "WETH", 10*unit, 1)
	p.BorrowToken("b-1", sub, "WETH", 3*unit, 60_000_000, 2)
	p.RepayToken("r-1", sub, "WETH", 2*unit, 0, 3)
	p.Withdraw("wd-1", "WETH", unit, 4)

	st, _ := p.AssetState("WETH")
	assetID, _ := ledger.GetAssetID("WETH")

	// pool tracker balance == supply counter
	if got := bt.GetPoolSupply(assetID); got != st.Supply {
		t.Errorf("tracker supply %d != counter %d", got, st.Supply)
	}
	if got := bt.GetPoolFeeReserve(assetID); got != st.BorrowFeeAmount {
		t.Errorf("tracker fee reserve %d != counter %d", got, st.BorrowFeeAmount)
	}

	// zero-sum across the whole ledger
	v := ledger.NewInvariantValidator(bt)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance: %v", err)
	}
}

func TestPool_TotalDebtUSD(t *testing.T) {
	p, _, _ := newPool()
	sub := uuid.New()
	p.SetAssetFlags("WETH", pool.FlagsAll)
	p.SetAssetFlags("USDC", pool.FlagsAll)
	p.AuthorizeBorrower(sub)

	p.Deposit("dep-1", "WETH", 10*unit, 1)
	p.Deposit("dep-2", "USDC", 10_000*unit, 2)
	p.BorrowToken("b-1", sub, "WETH", 2*unit, 0, 3)
	p.BorrowToken("b-2", sub, "USDC", 1_000*unit, 0, 4)

	prices := map[string]int64{"WETH": 2000 * unit, "USDC": 1 * unit}
	total, err := p.TotalDebtUSD(func(token string) (int64, error) {
		return prices[token], nil
	})
	if err != nil {
		t.Fatalf("TotalDebtUSD failed: %v", err)
	}

	// 2 WETH * 2000 + 1000 USDC * 1 = 5000 USD
	if total != 5_000*unit {
		t.Errorf("total debt USD: got %d, want %d", total, 5_000*unit)
	}
}
