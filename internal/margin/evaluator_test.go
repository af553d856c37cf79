package margin_test

import (
	"errors"
	stdmath "math"
	"testing"

	"PerpBoost/internal/debt"
	"PerpBoost/internal/domain"
	"PerpBoost/internal/margin"
)

const unit = int64(1_000_000_000)

var testRates = margin.Rates{
	InitialMarginRate:     600, // 0.006
	MaintenanceMarginRate: 500, // 0.005
}

// ============================================================================
// Test: Margin value
// ============================================================================

func TestComputeMarginValue_NoDebtNoPnl(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 200 * unit,
		AveragePrice:  2000 * unit,
	}

	value, positive := e.ComputeMarginValue(pos, true, debt.State{}, 0, 2000*unit, 2000*unit)
	if !positive {
		t.Fatal("margin value should be positive")
	}
	if value != 200*unit {
		t.Errorf("margin value: got %d, want %d", value, 200*unit)
	}
}

func TestComputeMarginValue_DebtReducesMargin(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 400 * unit,
		AveragePrice:  2000 * unit,
	}
	// 0.1 WETH debt at 2000 USD = 200 USD
	ds := debt.State{DebtPrincipal: 100_000_000}

	value, positive := e.ComputeMarginValue(pos, true, ds, 0, 2000*unit, 2000*unit)
	if !positive {
		t.Fatal("margin value should be positive")
	}
	if value != 200*unit {
		t.Errorf("margin value: got %d, want %d", value, 200*unit)
	}

	rate := e.MarginRate(pos, true, ds, 0, 2000*unit, 2000*unit)
	if rate != 20_000 { // 0.2
		t.Errorf("margin rate: got %d, want 20_000", rate)
	}
}

func TestComputeMarginValue_NegativeReportsSign(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 100 * unit,
		AveragePrice:  2000 * unit,
	}
	// 0.1 WETH debt = 200 USD > collateral
	ds := debt.State{DebtPrincipal: 100_000_000}

	value, positive := e.ComputeMarginValue(pos, true, ds, 0, 2000*unit, 2000*unit)
	if positive {
		t.Fatal("margin value should be negative")
	}
	if value != 100*unit {
		t.Errorf("magnitude: got %d, want %d", value, 100*unit)
	}
}

func TestComputeMarginValue_PnlSign(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 100 * unit,
		AveragePrice:  2000 * unit,
	}

	// price up 10%: long gains 100 USD, short loses 100 USD
	longVal, longPos := e.ComputeMarginValue(pos, true, debt.State{}, 0, 2000*unit, 2200*unit)
	if !longPos || longVal != 200*unit {
		t.Errorf("long margin value: got (%d, %v), want (%d, true)", longVal, longPos, 200*unit)
	}

	// collateral 100 - loss 100 = 0, reported as positive zero
	shortVal, shortPos := e.ComputeMarginValue(pos, false, debt.State{}, 0, 2000*unit, 2200*unit)
	if !shortPos || shortVal != 0 {
		t.Errorf("short margin value: got (%d, %v), want (0, true)", shortVal, shortPos)
	}
}

func TestMarginRate_FlatPositionIsMax(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	rate := e.MarginRate(margin.VenuePosition{}, true, debt.State{}, 0, unit, unit)
	if rate != stdmath.MaxInt64 {
		t.Errorf("flat position rate: got %d, want MaxInt64", rate)
	}
}

// ============================================================================
// Test: Safety thresholds
// ============================================================================

func TestMarginSafety_Thresholds(t *testing.T) {
	e := margin.NewEvaluator(margin.Rates{
		InitialMarginRate:     10_000, // 0.1
		MaintenanceMarginRate: 5_000,  // 0.05
	})

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 70 * unit, // between MM (50) and IM (100)
		AveragePrice:  2000 * unit,
	}

	if e.IsInitialMarginSafe(pos, true, debt.State{}, 0, unit, 2000*unit) {
		t.Error("70 < 100 required: IM should be unsafe")
	}
	if !e.IsMaintenanceMarginSafe(pos, true, debt.State{}, 0, unit, 2000*unit) {
		t.Error("70 >= 50 required: MM should be safe")
	}

	status := e.CheckMarginHealth(pos, true, debt.State{}, 0, unit, 2000*unit)
	if status != margin.MarginStatusImUnsafe {
		t.Errorf("status: got %s, want ImUnsafe", status)
	}

	pos.CollateralUsd = 40 * unit
	status = e.CheckMarginHealth(pos, true, debt.State{}, 0, unit, 2000*unit)
	if status != margin.MarginStatusMmUnsafe {
		t.Errorf("status: got %s, want MmUnsafe", status)
	}

	pos.CollateralUsd = 100 * unit
	status = e.CheckMarginHealth(pos, true, debt.State{}, 0, unit, 2000*unit)
	if status != margin.MarginStatusHealthy {
		t.Errorf("status: got %s, want Healthy", status)
	}
}

// ============================================================================
// Test: Liquidation gate
// ============================================================================

func TestCheckLiquidatable_SafePositionRejected(t *testing.T) {
	e := margin.NewEvaluator(margin.Rates{
		InitialMarginRate:     600,
		MaintenanceMarginRate: 500,
	})

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 200 * unit,
		AveragePrice:  2000 * unit,
	}

	err := e.CheckLiquidatable(pos, true, debt.State{}, 0, unit, 2000*unit)
	if !errors.Is(err, domain.ErrMmMarginSafe) {
		t.Errorf("got %v, want ErrMmMarginSafe", err)
	}
}

func TestCheckLiquidatable_NothingToLiquidate(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	err := e.CheckLiquidatable(margin.VenuePosition{}, true, debt.State{}, 0, unit, unit)
	if !errors.Is(err, domain.ErrNoPositionToLiquidate) {
		t.Errorf("got %v, want ErrNoPositionToLiquidate", err)
	}
}

func TestCheckLiquidatable_UnsafePositionPasses(t *testing.T) {
	e := margin.NewEvaluator(margin.Rates{
		InitialMarginRate:     10_000,
		MaintenanceMarginRate: 5_000,
	})

	pos := margin.VenuePosition{
		SizeUsd:       1000 * unit,
		CollateralUsd: 40 * unit, // below 50 USD MM requirement
		AveragePrice:  2000 * unit,
	}

	if err := e.CheckLiquidatable(pos, true, debt.State{}, 0, unit, 2000*unit); err != nil {
		t.Errorf("unsafe position should be liquidatable: %v", err)
	}
}

func TestCheckLiquidatable_FlatWithDebtPasses(t *testing.T) {
	e := margin.NewEvaluator(testRates)

	// venue reports zero size but local debt remains
	ds := debt.State{DebtPrincipal: 1 * unit}
	if err := e.CheckLiquidatable(margin.VenuePosition{}, true, ds, 0, unit, unit); err != nil {
		t.Errorf("flat position with outstanding debt should be liquidatable: %v", err)
	}
}
