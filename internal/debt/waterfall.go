package debt

import (
	fpmath "PerpBoost/internal/math"
)

// RepayResult is the structured outcome of a waterfall repayment.
// All amounts are in the primary collateral token.
type RepayResult struct {
	RemainCollateral int64 // surplus left after both obligations
	RepaidDebt       int64
	RepaidFee        int64
	UnpaidDebt       int64
	UnpaidFee        int64
}

// RepayByCollateral applies available collateral to debt principal first,
// then to fee. Pure: callers apply the result to state and to the pool.
func RepayByCollateral(totalDebt, totalFee, available int64) RepayResult {
	var r RepayResult

	if available >= totalDebt {
		r.RepaidDebt = totalDebt
		available -= totalDebt
	} else {
		r.RepaidDebt = available
		r.UnpaidDebt = totalDebt - available
		available = 0
	}

	if available >= totalFee {
		r.RepaidFee = totalFee
		available -= totalFee
	} else {
		r.RepaidFee = available
		r.UnpaidFee = totalFee - available
		available = 0
	}

	r.RemainCollateral = available
	return r
}

// TwoTokenRepayResult extends the waterfall across a secondary token
// (e.g. stable proceeds from a short close). Debt and fee stay
// denominated in the primary token; secondary amounts are in secondary
// token units.
type TwoTokenRepayResult struct {
	RepaidDebtPrimary   int64
	RepaidFeePrimary    int64
	RepaidDebtSecondary int64 // secondary units spent on principal
	RepaidFeeSecondary  int64 // secondary units spent on fee
	RemainPrimary       int64
	RemainSecondary     int64
	UnpaidDebt          int64 // primary units
	UnpaidFee           int64 // primary units
}

// RepayByTwoCollaterals runs the waterfall over the primary token, then
// covers what remains from the secondary token converted through USD
// prices. Each leg pays principal before fee. Conversion credit granted
// to the pool rounds down; the residue stays with the payer.
func RepayByTwoCollaterals(
	totalDebt, totalFee int64,
	primaryAvail, secondaryAvail int64,
	primaryPrice, secondaryPrice int64,
) TwoTokenRepayResult {
	var r TwoTokenRepayResult

	primary := RepayByCollateral(totalDebt, totalFee, primaryAvail)
	r.RepaidDebtPrimary = primary.RepaidDebt
	r.RepaidFeePrimary = primary.RepaidFee
	r.RemainPrimary = primary.RemainCollateral

	remainingDebt := primary.UnpaidDebt
	remainingFee := primary.UnpaidFee
	remaining := secondaryAvail

	if remainingDebt > 0 && remaining > 0 {
		spent, covered := convertLeg(remainingDebt, remaining, primaryPrice, secondaryPrice)
		r.RepaidDebtSecondary = spent
		remainingDebt -= covered
		remaining -= spent
	}

	if remainingFee > 0 && remaining > 0 {
		spent, covered := convertLeg(remainingFee, remaining, primaryPrice, secondaryPrice)
		r.RepaidFeeSecondary = spent
		remainingFee -= covered
		remaining -= spent
	}

	r.UnpaidDebt = remainingDebt
	r.UnpaidFee = remainingFee
	r.RemainSecondary = remaining
	return r
}

// convertLeg figures how much of the secondary token to spend against a
// primary-denominated obligation and how much of the obligation that
// spend covers. Coverage rounds down so the pool is never over-credited.
func convertLeg(obligationPrimary, secondaryAvail, primaryPrice, secondaryPrice int64) (spent, covered int64) {
	needed := fpmath.ConvertToken(obligationPrimary, primaryPrice, secondaryPrice, fpmath.RoundUp)
	if secondaryAvail >= needed {
		return needed, obligationPrimary
	}
	covered = fpmath.ConvertToken(secondaryAvail, secondaryPrice, primaryPrice, fpmath.RoundDown)
	if covered > obligationPrimary {
		covered = obligationPrimary
	}
	return secondaryAvail, covered
}
