package account

import (
	"fmt"

	"PerpBoost/internal/config"
	"PerpBoost/internal/debt"
	"PerpBoost/internal/domain"
	"PerpBoost/internal/ledger"
	fpmath "PerpBoost/internal/math"
	"PerpBoost/internal/order"
	"PerpBoost/internal/venue"

	"github.com/google/uuid"
)

// Fill carries the venue's resolution of a pending order. ActualBorrowed
// is the portion of the escrowed borrow the venue actually consumed (open
// orders only). ReturnedCollateral is collateral-token proceeds handed
// back; SecondaryAmount is proceeds in SecondaryToken, if any.
type Fill struct {
	Key                order.Key
	ActualBorrowed     int64
	ReturnedCollateral int64
	SecondaryToken     string
	SecondaryAmount    int64
}

// FillResult summarizes what a fill settlement did to the books.
type FillResult struct {
	Applied        bool
	Category       order.Category
	RepaidDebt     int64
	RepaidFee      int64
	UnpaidDebt     int64
	UnpaidFee      int64
	SurplusToOwner int64
	LiquidationFee int64
}

// HandleFill settles a venue fill callback. Unknown keys are a silent
// no-op so replays and late callbacks stay harmless.
func (sa *SubAccount) HandleFill(eventRef string, fill Fill, now int64) (FillResult, error) {
	po, ok := sa.Book.Resolve(fill.Key)
	if !ok {
		return FillResult{}, nil
	}

	switch po.Category {
	case order.CategoryOpen:
		return sa.settleOpenFill(eventRef, po, fill, now)
	case order.CategoryClose:
		return sa.settleDecreaseFill(eventRef, po, fill, false, now)
	case order.CategoryLiquidate:
		return sa.settleDecreaseFill(eventRef, po, fill, true, now)
	default:
		return FillResult{}, fmt.Errorf("handle fill: unknown category %d", po.Category)
	}
}

func (sa *SubAccount) settleOpenFill(eventRef string, po *order.PendingOrder, fill Fill, now int64) (FillResult, error) {
	res := FillResult{Applied: true, Category: order.CategoryOpen}

	if fill.ReturnedCollateral > 0 {
		if err := sa.venueReturn(eventRef, sa.collateralAssetID(), fill.ReturnedCollateral, now); err != nil {
			return res, err
		}
	}

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return res, fmt.Errorf("settle open fill: funding index: %w", err)
	}

	actual := fill.ActualBorrowed
	if actual > po.DebtDelta {
		actual = po.DebtDelta
	}
	unused := sa.Debt.ConfirmFill(actual, fundingIndex)
	if unused > 0 {
		// Principal the venue never consumed goes straight back to the
		// pool out of the returned escrow. ConfirmFill already kept it
		// out of DebtPrincipal, so the repayment only moves pool state;
		// whatever the escrow cannot cover stays owed as confirmed debt.
		held := sa.HeldCollateral()
		repay := unused
		if repay > held {
			repay = held
		}
		if repay > 0 {
			if err := sa.pool.RepayToken(eventRef, sa.ID, sa.CollateralToken, repay, 0, now); err != nil {
				return res, fmt.Errorf("settle open fill: %w", err)
			}
			res.RepaidDebt = repay
		}
		if shortfall := unused - repay; shortfall > 0 {
			sa.Debt.DebtPrincipal += shortfall
			res.UnpaidDebt = shortfall
		}
	}

	sa.logger.Info().
		Str("key", fill.Key.String()).
		Int64("actual_borrowed", actual).
		Int64("unused", unused).
		Msg("increase order filled")
	return res, nil
}

func (sa *SubAccount) settleDecreaseFill(eventRef string, po *order.PendingOrder, fill Fill, isLiquidation bool, now int64) (FillResult, error) {
	res := FillResult{Applied: true, Category: po.Category}

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return res, fmt.Errorf("settle decrease fill: funding index: %w", err)
	}
	sa.Debt.Accrue(fundingIndex)

	if fill.ReturnedCollateral > 0 {
		if err := sa.venueReturn(eventRef, sa.collateralAssetID(), fill.ReturnedCollateral, now); err != nil {
			return res, err
		}
	}
	if fill.SecondaryAmount > 0 && fill.SecondaryToken != "" {
		if err := sa.venueReturn(eventRef, ledger.RegisterAsset(fill.SecondaryToken), fill.SecondaryAmount, now); err != nil {
			return res, err
		}
	}

	if isLiquidation {
		rate := sa.Cfg.Asset.LiquidationFeeRate
		if rate > 0 && fill.ReturnedCollateral > 0 {
			fee := fpmath.ApplyRate(fill.ReturnedCollateral, rate, fpmath.RoundDown)
			held := sa.HeldCollateral()
			if fee > held {
				fee = held
			}
			if fee > 0 {
				batch, err := sa.journalGen.GenerateLiquidationFee(eventRef, sa.ID, sa.liquidatorID, sa.collateralAssetID(), fee, now)
				if err != nil {
					return res, err
				}
				if err := sa.tracker.ApplyBatch(batch); err != nil {
					return res, err
				}
				res.LiquidationFee = fee
			}
		}
	}

	repaid, err := sa.repayFromHoldings(eventRef, fill.SecondaryToken, now)
	if err != nil {
		return res, err
	}
	res.RepaidDebt = repaid.repaidDebt
	res.RepaidFee = repaid.repaidFee
	res.UnpaidDebt = repaid.unpaidDebt
	res.UnpaidFee = repaid.unpaidFee

	surplus, err := sa.sweepToOwner(eventRef, fill.SecondaryToken, now)
	if err != nil {
		return res, err
	}
	res.SurplusToOwner = surplus

	if isLiquidation {
		sa.Book.EndLiquidation()
		sa.liquidatorID = uuid.Nil
	}

	sa.logger.Info().
		Str("key", fill.Key.String()).
		Bool("liquidation", isLiquidation).
		Int64("repaid_debt", res.RepaidDebt).
		Int64("repaid_fee", res.RepaidFee).
		Int64("unpaid_debt", res.UnpaidDebt).
		Int64("surplus", surplus).
		Msg("decrease order filled")
	return res, nil
}

// repayOutcome reports a holdings repayment in primary-token units.
type repayOutcome struct {
	repaidDebt int64
	repaidFee  int64
	unpaidDebt int64
	unpaidFee  int64
}

// repayFromHoldings runs the repayment waterfall over whatever the
// sub-account currently holds, primary collateral first, then the
// secondary token converted at oracle prices.
func (sa *SubAccount) repayFromHoldings(eventRef, secondaryToken string, now int64) (repayOutcome, error) {
	var out repayOutcome

	totalDebt := sa.Debt.DebtPrincipal
	totalFee := sa.Debt.AccruedFee
	primaryAvail := sa.HeldCollateral()

	secondaryAvail := int64(0)
	var secondaryPrice, primaryPrice int64
	if secondaryToken != "" && secondaryToken != sa.CollateralToken {
		secondaryAvail = sa.tracker.GetSubAccountBalance(sa.ID, ledger.RegisterAsset(secondaryToken))
	}

	if totalDebt == 0 && totalFee == 0 {
		return out, nil
	}

	if secondaryAvail > 0 {
		var err error
		primaryPrice, err = sa.prices.GetPrice(sa.CollateralToken)
		if err != nil {
			return out, fmt.Errorf("repay: %w", err)
		}
		secondaryPrice, err = sa.prices.GetPrice(secondaryToken)
		if err != nil {
			return out, fmt.Errorf("repay: %w", err)
		}
	}

	wf := debt.RepayByTwoCollaterals(totalDebt, totalFee, primaryAvail, secondaryAvail, primaryPrice, secondaryPrice)

	// The secondary legs cover what neither the primary repayment nor the
	// shortfall accounts for.
	coveredDebt := totalDebt - wf.RepaidDebtPrimary - wf.UnpaidDebt
	coveredFee := totalFee - wf.RepaidFeePrimary - wf.UnpaidFee

	if wf.RepaidDebtPrimary > 0 || wf.RepaidFeePrimary > 0 {
		if err := sa.pool.RepayToken(eventRef, sa.ID, sa.CollateralToken, wf.RepaidDebtPrimary, wf.RepaidFeePrimary, now); err != nil {
			return out, fmt.Errorf("repay: %w", err)
		}
	}
	if wf.RepaidDebtSecondary > 0 || wf.RepaidFeeSecondary > 0 {
		if err := sa.pool.RepayTokenCross(eventRef, sa.ID, sa.CollateralToken, secondaryToken,
			coveredDebt, wf.RepaidDebtSecondary, wf.RepaidFeeSecondary, now); err != nil {
			return out, fmt.Errorf("repay cross: %w", err)
		}
	}

	sa.Debt.ApplyRepayment(wf.RepaidDebtPrimary+coveredDebt, wf.RepaidFeePrimary+coveredFee)

	out.repaidDebt = wf.RepaidDebtPrimary + coveredDebt
	out.repaidFee = wf.RepaidFeePrimary + coveredFee
	out.unpaidDebt = wf.UnpaidDebt
	out.unpaidFee = wf.UnpaidFee
	return out, nil
}

// sweepToOwner returns everything the sub-account still holds to the
// owner wallet. Decrease settlements always end with an empty sub-account.
func (sa *SubAccount) sweepToOwner(eventRef, secondaryToken string, now int64) (int64, error) {
	var total int64

	if bal := sa.HeldCollateral(); bal > 0 {
		batch, err := sa.journalGen.GenerateSurplusReturn(eventRef, sa.OwnerID, sa.ID, sa.collateralAssetID(), bal, now)
		if err != nil {
			return total, err
		}
		if err := sa.tracker.ApplyBatch(batch); err != nil {
			return total, err
		}
		total += bal
	}
	if secondaryToken != "" && secondaryToken != sa.CollateralToken {
		assetID := ledger.RegisterAsset(secondaryToken)
		if bal := sa.tracker.GetSubAccountBalance(sa.ID, assetID); bal > 0 {
			batch, err := sa.journalGen.GenerateSurplusReturn(eventRef, sa.OwnerID, sa.ID, assetID, bal, now)
			if err != nil {
				return total, err
			}
			if err := sa.tracker.ApplyBatch(batch); err != nil {
				return total, err
			}
			total += bal
		}
	}
	return total, nil
}

func (sa *SubAccount) venueReturn(eventRef string, assetID ledger.AssetID, amount, now int64) error {
	batch, err := sa.journalGen.GenerateVenueTransferIn(eventRef, sa.ID, assetID, amount, now)
	if err != nil {
		return err
	}
	return sa.tracker.ApplyBatch(batch)
}

// HandleCancel settles a venue cancellation. The escrowed funds come
// back, the inflight principal is repaid as far as the holdings allow,
// and whatever the boost fee already consumed stays with the pool. A
// shortfall folds into confirmed debt rather than failing the cancel:
// partial repayment is a terminal outcome, not an error.
func (sa *SubAccount) HandleCancel(eventRef string, key order.Key, now int64) (FillResult, error) {
	po, ok := sa.Book.Resolve(key)
	if !ok {
		return FillResult{}, nil
	}
	res := FillResult{Applied: true, Category: po.Category}

	switch po.Category {
	case order.CategoryOpen:
		if po.CollateralDelta > 0 {
			if err := sa.venueReturn(eventRef, sa.collateralAssetID(), po.CollateralDelta, now); err != nil {
				return res, err
			}
		}
		cancelledDebt, _ := sa.Debt.CancelInflight()
		if cancelledDebt > 0 {
			held := sa.HeldCollateral()
			repay := cancelledDebt
			if repay > held {
				repay = held
			}
			if repay > 0 {
				if err := sa.pool.RepayToken(eventRef, sa.ID, sa.CollateralToken, repay, 0, now); err != nil {
					return res, fmt.Errorf("handle cancel: %w", err)
				}
			}
			res.RepaidDebt = repay
			if shortfall := cancelledDebt - repay; shortfall > 0 {
				sa.Debt.DebtPrincipal += shortfall
				res.UnpaidDebt = shortfall
			}
		}
		surplus, err := sa.sweepToOwner(eventRef, "", now)
		if err != nil {
			return res, err
		}
		res.SurplusToOwner = surplus

	case order.CategoryClose:
		// Nothing was escrowed for a decrease order.

	case order.CategoryLiquidate:
		sa.Book.EndLiquidation()
		sa.liquidatorID = uuid.Nil
	}

	sa.logger.Info().
		Str("key", key.String()).
		Int64("repaid_debt", res.RepaidDebt).
		Int64("unpaid_debt", res.UnpaidDebt).
		Msg("order cancelled")
	return res, nil
}

// Withdraw closes out the sub-account: no pending orders, no venue
// position, full repayment of debt and fees, remainder to the owner.
func (sa *SubAccount) Withdraw(eventRef string, now int64) (int64, error) {
	if sa.Book.IsLiquidating() {
		return 0, fmt.Errorf("withdraw: %w", domain.ErrLiquidating)
	}
	if sa.Book.Len() > 0 {
		return 0, fmt.Errorf("withdraw: %d pending orders: %w", sa.Book.Len(), domain.ErrForbidden)
	}

	pos, err := sa.venuePosition()
	if err != nil {
		return 0, fmt.Errorf("withdraw: venue position: %w", err)
	}
	if !pos.IsFlat() {
		return 0, fmt.Errorf("withdraw: position still open: %w", domain.ErrForbidden)
	}

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return 0, fmt.Errorf("withdraw: funding index: %w", err)
	}
	sa.Debt.Accrue(fundingIndex)

	totalDebt := sa.Debt.DebtPrincipal
	totalFee := sa.Debt.AccruedFee
	held := sa.HeldCollateral()
	if held < totalDebt+totalFee {
		return 0, fmt.Errorf("withdraw: held %d owes %d: %w", held, totalDebt+totalFee, domain.ErrNotEnoughBalance)
	}

	if totalDebt > 0 || totalFee > 0 {
		if err := sa.pool.RepayToken(eventRef, sa.ID, sa.CollateralToken, totalDebt, totalFee, now); err != nil {
			return 0, fmt.Errorf("withdraw: %w", err)
		}
		sa.Debt.ApplyRepayment(totalDebt, totalFee)
	}

	return sa.sweepToOwner(eventRef, "", now)
}

// Liquidate latches the account and places the forced close. The latch
// blocks every user-initiated order until the liquidation resolves.
func (sa *SubAccount) Liquidate(eventRef string, liquidatorID uuid.UUID, acceptablePrice, now int64) (order.Key, error) {
	var zero order.Key

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return zero, fmt.Errorf("liquidate: funding index: %w", err)
	}
	collateralPrice, err := sa.prices.GetPrice(sa.CollateralToken)
	if err != nil {
		return zero, fmt.Errorf("liquidate: %w", err)
	}
	assetPrice, err := sa.prices.GetPrice(sa.AssetToken)
	if err != nil {
		return zero, fmt.Errorf("liquidate: %w", err)
	}
	if err := sa.checkReferencePrice(assetPrice); err != nil {
		return zero, fmt.Errorf("liquidate: %w", err)
	}
	pos, err := sa.venuePosition()
	if err != nil {
		return zero, fmt.Errorf("liquidate: venue position: %w", err)
	}

	if err := sa.evaluator().CheckLiquidatable(pos, sa.IsLong, sa.Debt, fundingIndex, collateralPrice, assetPrice); err != nil {
		return zero, fmt.Errorf("liquidate: %w", err)
	}

	if err := sa.Book.BeginLiquidation(); err != nil {
		return zero, fmt.Errorf("liquidate: %w", err)
	}
	sa.liquidatorID = liquidatorID

	key, err := sa.Book.Place(order.CategoryLiquidate, 0, 0, true, now, sa.Cfg.Version)
	if err != nil {
		sa.Book.EndLiquidation()
		sa.liquidatorID = uuid.Nil
		return zero, err
	}

	params := venue.OrderParams{
		SubAccountID:    sa.ID,
		Key:             key,
		CollateralToken: sa.CollateralToken,
		AssetToken:      sa.AssetToken,
		IsLong:          sa.IsLong,
		IsMarket:        true,
		SizeDeltaUsd:    pos.SizeUsd,
		AcceptablePrice: acceptablePrice,
		ReferralCode:    sa.Cfg.Project.ReferralCode,
	}
	if err := sa.market.PlaceDecreaseOrder(params); err != nil {
		sa.Book.Resolve(key)
		sa.Book.EndLiquidation()
		sa.liquidatorID = uuid.Nil
		return zero, fmt.Errorf("liquidate: venue reject: %w", err)
	}

	sa.logger.Warn().
		Str("key", key.String()).
		Str("liquidator", liquidatorID.String()).
		Msg("liquidation order placed")
	return key, nil
}

// CancelOrders cancels the given pending orders regardless of age.
// Unknown keys are skipped silently; a pending liquidation order can
// only resolve through the liquidation path, never through here.
func (sa *SubAccount) CancelOrders(eventRef string, keys []order.Key, now int64) ([]order.Key, error) {
	cancelled := make([]order.Key, 0, len(keys))
	for _, key := range keys {
		po, ok := sa.Book.Get(key)
		if !ok || po.Category == order.CategoryLiquidate {
			continue
		}
		if err := sa.market.CancelOrder(sa.ID, key); err != nil {
			sa.logger.Warn().Err(err).Str("key", key.String()).Msg("venue cancel failed, skipping")
			continue
		}
		if _, err := sa.HandleCancel(eventRef, key, now); err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, key)
	}
	return cancelled, nil
}

// CancelTimeoutOrders cancels the subset of keys whose pending orders
// have exceeded their timeout class. Keys that are unknown or not yet
// timed out are skipped silently.
func (sa *SubAccount) CancelTimeoutOrders(eventRef string, keys []order.Key, now int64) ([]order.Key, error) {
	timedOut := sa.Book.TimedOut(keys, now, sa.Cfg.Project.MarketOrderTimeoutSec, sa.Cfg.Project.LimitOrderTimeoutSec)
	cancelled := make([]order.Key, 0, len(timedOut))
	for _, key := range timedOut {
		if err := sa.market.CancelOrder(sa.ID, key); err != nil {
			sa.logger.Warn().Err(err).Str("key", key.String()).Msg("venue cancel failed, skipping")
			continue
		}
		if _, err := sa.HandleCancel(eventRef, key, now); err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, key)
	}
	return cancelled, nil
}

// UpdateConfigs swaps in a fresh config snapshot. Orders placed under a
// different venue are purged first so stale venue keys cannot resolve
// against the new routing.
func (sa *SubAccount) UpdateConfigs(eventRef string, snap config.Snapshot, now int64) error {
	if sa.Book.IsLiquidating() {
		return fmt.Errorf("update configs: %w", domain.ErrLiquidating)
	}
	if snap.Project.VenueID != sa.Cfg.Project.VenueID {
		stale := sa.Book.StaleVenueOrders(snap.Version)
		for _, key := range stale {
			if err := sa.market.CancelOrder(sa.ID, key); err != nil {
				sa.logger.Warn().Err(err).Str("key", key.String()).Msg("stale order venue cancel failed")
			}
			if _, err := sa.HandleCancel(eventRef, key, now); err != nil {
				return fmt.Errorf("update configs: purge stale order: %w", err)
			}
		}
	}
	sa.Cfg = snap
	return nil
}
