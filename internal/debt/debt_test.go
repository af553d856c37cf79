package debt_test

import (
	"PerpBoost/internal/debt"
	"testing"
)

const unit = int64(1_000_000_000) // 1.0 at amount scale

// ============================================================================
// Test: Funding fee accrual
// ============================================================================

func TestAccrue_OnlyConfirmedPrincipal(t *testing.T) {
	s := debt.State{
		DebtPrincipal:    8 * unit,
		AccruedFee:       1 * unit,
		FundingIndexLast: 0,
		InflightDebt:     2 * unit,
	}

	// index delta 0.02: fee grows by 8 * 0.02 = 0.16, inflight excluded
	total := s.TotalFee(20_000_000)
	if total != 1_160_000_000 {
		t.Errorf("total fee: got %d, want 1_160_000_000", total)
	}

	// inflight principal alone never accrues
	s2 := debt.State{InflightDebt: 2 * unit}
	if got := s2.TotalFee(20_000_000); got != 0 {
		t.Errorf("inflight-only fee: got %d, want 0", got)
	}
}

func TestAccrue_AdvancesCheckpoint(t *testing.T) {
	s := debt.State{DebtPrincipal: 10 * unit}

	s.Accrue(20_000_000)
	if s.AccruedFee != 200_000_000 {
		t.Errorf("accrued fee: got %d, want 200_000_000", s.AccruedFee)
	}
	if s.FundingIndexLast != 20_000_000 {
		t.Errorf("checkpoint: got %d, want 20_000_000", s.FundingIndexLast)
	}

	// Same index again: no double charge
	s.Accrue(20_000_000)
	if s.AccruedFee != 200_000_000 {
		t.Errorf("fee after repeat accrue: got %d, want 200_000_000", s.AccruedFee)
	}
}

func TestAccrue_StaleIndexIsNoGrowth(t *testing.T) {
	s := debt.State{DebtPrincipal: 10 * unit, FundingIndexLast: 50_000_000}

	s.Accrue(40_000_000)
	if s.AccruedFee != 0 {
		t.Errorf("stale index should not accrue, got %d", s.AccruedFee)
	}
	if s.FundingIndexLast != 50_000_000 {
		t.Errorf("checkpoint must not move backwards, got %d", s.FundingIndexLast)
	}
}

func TestAccrue_ZeroPrincipalNoFee(t *testing.T) {
	s := debt.State{}
	s.Accrue(1_000_000_000)
	if s.AccruedFee != 0 {
		t.Errorf("no principal should mean no fee, got %d", s.AccruedFee)
	}
}

// ============================================================================
// Test: Borrow / fill / cancel lifecycle
// ============================================================================

func TestAccrueAndBorrow_ChargesInflight(t *testing.T) {
	s := debt.State{DebtPrincipal: 10 * unit}

	s.AccrueAndBorrow(2*unit, 40_000_000, 20_000_000)

	if s.InflightDebt != 2*unit {
		t.Errorf("inflight debt: got %d, want %d", s.InflightDebt, 2*unit)
	}
	if s.InflightFee != 40_000_000 {
		t.Errorf("inflight fee: got %d, want 40_000_000", s.InflightFee)
	}
	// existing debt settled 10 * 0.02 = 0.2 before the new charge
	if s.AccruedFee != 200_000_000 {
		t.Errorf("accrued fee: got %d, want 200_000_000", s.AccruedFee)
	}
	if s.DebtPrincipal != 10*unit {
		t.Errorf("principal must not change on placement, got %d", s.DebtPrincipal)
	}
}

func TestConfirmFill_FoldsInflight(t *testing.T) {
	s := debt.State{}
	s.AccrueAndBorrow(2*unit, 40_000_000, 0)

	unused := s.ConfirmFill(2*unit, 0)

	if unused != 0 {
		t.Errorf("full fill should have no unused, got %d", unused)
	}
	if s.DebtPrincipal != 2*unit {
		t.Errorf("principal: got %d, want %d", s.DebtPrincipal, 2*unit)
	}
	if s.AccruedFee != 40_000_000 {
		t.Errorf("fee: got %d, want 40_000_000", s.AccruedFee)
	}
	if s.InflightDebt != 0 || s.InflightFee != 0 {
		t.Errorf("inflight must clear: debt=%d fee=%d", s.InflightDebt, s.InflightFee)
	}
}

func TestConfirmFill_PartialUseReturnsRemainder(t *testing.T) {
	s := debt.State{}
	s.AccrueAndBorrow(2*unit, 0, 0)

	unused := s.ConfirmFill(1_500_000_000, 0)

	if unused != 500_000_000 {
		t.Errorf("unused: got %d, want 500_000_000", unused)
	}
	if s.DebtPrincipal != 1_500_000_000 {
		t.Errorf("principal: got %d, want 1_500_000_000", s.DebtPrincipal)
	}
	if s.InflightDebt != 0 {
		t.Errorf("inflight must clear, got %d", s.InflightDebt)
	}
}

func TestCancelInflight_Idempotent(t *testing.T) {
	s := debt.State{DebtPrincipal: 5 * unit, AccruedFee: 1 * unit}
	s.AccrueAndBorrow(2*unit, 40_000_000, 0)

	d, f := s.CancelInflight()
	if d != 2*unit || f != 40_000_000 {
		t.Errorf("first cancel: got (%d, %d), want (%d, 40_000_000)", d, f, 2*unit)
	}
	if s.DebtPrincipal != 5*unit || s.AccruedFee != 1*unit {
		t.Errorf("cancel must not touch confirmed debt: principal=%d fee=%d", s.DebtPrincipal, s.AccruedFee)
	}

	d, f = s.CancelInflight()
	if d != 0 || f != 0 {
		t.Errorf("second cancel must be a no-op, got (%d, %d)", d, f)
	}
}

func TestDebtConservation_AcrossLifecycle(t *testing.T) {
	s := debt.State{}

	// two placements, one filled, one cancelled
	s.AccrueAndBorrow(3*unit, 0, 0)
	s.ConfirmFill(3*unit, 0)
	s.AccrueAndBorrow(2*unit, 0, 0)
	s.CancelInflight()

	if s.DebtPrincipal != 3*unit {
		t.Errorf("principal: got %d, want %d", s.DebtPrincipal, 3*unit)
	}
	if s.InflightDebt != 0 || s.InflightFee != 0 {
		t.Errorf("inflight must be zero once all orders resolve")
	}

	// repay part of it
	r := debt.RepayByCollateral(s.DebtPrincipal, s.TotalFee(0), 2*unit)
	s.ApplyRepayment(r.RepaidDebt, r.RepaidFee)
	if s.DebtPrincipal != 1*unit {
		t.Errorf("principal after repay: got %d, want %d", s.DebtPrincipal, 1*unit)
	}
}

func TestApplyRepayment_ClampsAtZero(t *testing.T) {
	s := debt.State{DebtPrincipal: 1 * unit, AccruedFee: 100_000_000}

	s.ApplyRepayment(2*unit, 1*unit)

	if s.DebtPrincipal != 0 {
		t.Errorf("principal must clamp at zero, got %d", s.DebtPrincipal)
	}
	if s.AccruedFee != 0 {
		t.Errorf("fee must clamp at zero, got %d", s.AccruedFee)
	}
}

// ============================================================================
// Test: Repay waterfall
// ============================================================================

func TestRepayByCollateral_PrincipalShortfall(t *testing.T) {
	r := debt.RepayByCollateral(1_500_000_000, 100_000_000, 1_200_000_000)

	if r.RepaidDebt != 1_200_000_000 {
		t.Errorf("repaid debt: got %d, want 1_200_000_000", r.RepaidDebt)
	}
	if r.RepaidFee != 0 {
		t.Errorf("repaid fee: got %d, want 0", r.RepaidFee)
	}
	if r.UnpaidDebt != 300_000_000 {
		t.Errorf("unpaid debt: got %d, want 300_000_000", r.UnpaidDebt)
	}
	if r.UnpaidFee != 100_000_000 {
		t.Errorf("unpaid fee: got %d, want 100_000_000", r.UnpaidFee)
	}
	if r.RemainCollateral != 0 {
		t.Errorf("remain: got %d, want 0", r.RemainCollateral)
	}
}

func TestRepayByCollateral_ExactPrincipal(t *testing.T) {
	r := debt.RepayByCollateral(1_200_000_000, 100_000_000, 1_200_000_000)

	if r.RepaidDebt != 1_200_000_000 || r.RepaidFee != 0 {
		t.Errorf("got repaid (%d, %d), want (1_200_000_000, 0)", r.RepaidDebt, r.RepaidFee)
	}
	if r.UnpaidFee != 100_000_000 {
		t.Errorf("unpaid fee: got %d, want 100_000_000", r.UnpaidFee)
	}
}

func TestRepayByCollateral_PartialFee(t *testing.T) {
	r := debt.RepayByCollateral(1_150_000_000, 100_000_000, 1_200_000_000)

	if r.RepaidDebt != 1_150_000_000 {
		t.Errorf("repaid debt: got %d, want 1_150_000_000", r.RepaidDebt)
	}
	if r.RepaidFee != 50_000_000 {
		t.Errorf("repaid fee: got %d, want 50_000_000", r.RepaidFee)
	}
	if r.UnpaidFee != 50_000_000 {
		t.Errorf("unpaid fee: got %d, want 50_000_000", r.UnpaidFee)
	}
	if r.RemainCollateral != 0 {
		t.Errorf("remain: got %d, want 0", r.RemainCollateral)
	}
}

func TestRepayByCollateral_FullyCovered(t *testing.T) {
	r := debt.RepayByCollateral(1_000_000_000, 100_000_000, 1_200_000_000)

	if r.RepaidDebt != 1_000_000_000 || r.RepaidFee != 100_000_000 {
		t.Errorf("got repaid (%d, %d), want (1_000_000_000, 100_000_000)", r.RepaidDebt, r.RepaidFee)
	}
	if r.UnpaidDebt != 0 || r.UnpaidFee != 0 {
		t.Errorf("expected nothing unpaid, got (%d, %d)", r.UnpaidDebt, r.UnpaidFee)
	}
	if r.RemainCollateral != 100_000_000 {
		t.Errorf("remain: got %d, want 100_000_000", r.RemainCollateral)
	}
}

func TestRepayByCollateral_ExactCover(t *testing.T) {
	r := debt.RepayByCollateral(1_100_000_000, 100_000_000, 1_200_000_000)

	if r.RepaidDebt != 1_100_000_000 || r.RepaidFee != 100_000_000 {
		t.Errorf("got repaid (%d, %d), want (1_100_000_000, 100_000_000)", r.RepaidDebt, r.RepaidFee)
	}
	if r.RemainCollateral != 0 {
		t.Errorf("remain: got %d, want 0", r.RemainCollateral)
	}
}

func TestRepayByCollateral_NothingAvailable(t *testing.T) {
	r := debt.RepayByCollateral(1_500_000_000, 100_000_000, 0)

	if r.RepaidDebt != 0 || r.RepaidFee != 0 || r.RemainCollateral != 0 {
		t.Errorf("zero available must repay nothing: %+v", r)
	}
	if r.UnpaidDebt != 1_500_000_000 || r.UnpaidFee != 100_000_000 {
		t.Errorf("unpaid must equal requested: %+v", r)
	}
}

// ============================================================================
// Test: Two-token waterfall
// ============================================================================

func TestRepayByTwoCollaterals_SecondaryCoversRemainder(t *testing.T) {
	// debt 2.0 WETH, fee 0.1 WETH; 1.5 WETH held, 3000 USDC proceeds
	// WETH at 2000 USD, USDC at 1 USD
	wethPrice := int64(2000) * unit
	usdcPrice := int64(1) * unit

	r := debt.RepayByTwoCollaterals(
		2*unit, 100_000_000,
		1_500_000_000, 3000*unit,
		wethPrice, usdcPrice,
	)

	if r.RepaidDebtPrimary != 1_500_000_000 {
		t.Errorf("primary debt leg: got %d, want 1_500_000_000", r.RepaidDebtPrimary)
	}
	if r.RepaidFeePrimary != 0 {
		t.Errorf("primary fee leg: got %d, want 0", r.RepaidFeePrimary)
	}
	// remaining 0.5 WETH debt = 1000 USDC, remaining 0.1 WETH fee = 200 USDC
	if r.RepaidDebtSecondary != 1000*unit {
		t.Errorf("secondary debt leg: got %d, want %d", r.RepaidDebtSecondary, 1000*unit)
	}
	if r.RepaidFeeSecondary != 200*unit {
		t.Errorf("secondary fee leg: got %d, want %d", r.RepaidFeeSecondary, 200*unit)
	}
	if r.UnpaidDebt != 0 || r.UnpaidFee != 0 {
		t.Errorf("expected full repayment, got unpaid (%d, %d)", r.UnpaidDebt, r.UnpaidFee)
	}
	if r.RemainSecondary != 1800*unit {
		t.Errorf("secondary surplus: got %d, want %d", r.RemainSecondary, 1800*unit)
	}
	if r.RemainPrimary != 0 {
		t.Errorf("primary surplus: got %d, want 0", r.RemainPrimary)
	}
}

func TestRepayByTwoCollaterals_SecondaryExhausted(t *testing.T) {
	wethPrice := int64(2000) * unit
	usdcPrice := int64(1) * unit

	// remaining debt after primary leg: 1.0 WETH = 2000 USDC, only 500 USDC there
	r := debt.RepayByTwoCollaterals(
		1*unit, 0,
		0, 500*unit,
		wethPrice, usdcPrice,
	)

	if r.RepaidDebtSecondary != 500*unit {
		t.Errorf("secondary spend: got %d, want %d", r.RepaidDebtSecondary, 500*unit)
	}
	// 500 USDC covers 0.25 WETH
	if r.UnpaidDebt != 750_000_000 {
		t.Errorf("unpaid debt: got %d, want 750_000_000", r.UnpaidDebt)
	}
	if r.RemainSecondary != 0 {
		t.Errorf("secondary surplus: got %d, want 0", r.RemainSecondary)
	}
}

func TestRepayByTwoCollaterals_PrimaryCoversAll(t *testing.T) {
	r := debt.RepayByTwoCollaterals(
		1*unit, 100_000_000,
		2*unit, 500*unit,
		2000*unit, 1*unit,
	)

	if r.RepaidDebtPrimary != 1*unit || r.RepaidFeePrimary != 100_000_000 {
		t.Errorf("primary legs: got (%d, %d)", r.RepaidDebtPrimary, r.RepaidFeePrimary)
	}
	if r.RepaidDebtSecondary != 0 || r.RepaidFeeSecondary != 0 {
		t.Errorf("secondary must be untouched: (%d, %d)", r.RepaidDebtSecondary, r.RepaidFeeSecondary)
	}
	if r.RemainPrimary != 900_000_000 {
		t.Errorf("primary surplus: got %d, want 900_000_000", r.RemainPrimary)
	}
	if r.RemainSecondary != 500*unit {
		t.Errorf("secondary surplus: got %d, want %d", r.RemainSecondary, 500*unit)
	}
}
