package account

import (
	"encoding/binary"
	"fmt"

	"PerpBoost/internal/config"
	"PerpBoost/internal/debt"
	"PerpBoost/internal/domain"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/margin"
	fpmath "PerpBoost/internal/math"
	"PerpBoost/internal/order"
	"PerpBoost/internal/pool"
	"PerpBoost/internal/venue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubAccount is the isolated ledger for one (owner, collateral, asset,
// side) tuple. Every mutating operation runs engine-serialized; there is
// no locking here beyond the liquidation latch on the order book.
type SubAccount struct {
	ID              uuid.UUID
	ProjectID       int64
	OwnerID         uuid.UUID
	CollateralToken string
	AssetToken      string
	IsLong          bool

	Debt debt.State
	Book *order.Book
	Cfg  config.Snapshot

	liquidatorID uuid.UUID // set while the liquidation close is unresolved

	pool       *pool.LendingPool
	journalGen *ledger.JournalGenerator
	tracker    *ledger.BalanceTracker
	market     venue.Venue
	prices     venue.PriceSource
	logger     zerolog.Logger
}

// Deps bundles the shared collaborators a sub-account operates against.
type Deps struct {
	Pool       *pool.LendingPool
	JournalGen *ledger.JournalGenerator
	Tracker    *ledger.BalanceTracker
	Venue      venue.Venue
	Prices     venue.PriceSource
	Logger     zerolog.Logger
}

func NewSubAccount(
	id uuid.UUID,
	projectID int64,
	ownerID uuid.UUID,
	collateralToken, assetToken string,
	isLong bool,
	cfg config.Snapshot,
	deps Deps,
) *SubAccount {
	return &SubAccount{
		ID:              id,
		ProjectID:       projectID,
		OwnerID:         ownerID,
		CollateralToken: collateralToken,
		AssetToken:      assetToken,
		IsLong:          isLong,
		Cfg:             cfg,
		Book:            order.NewBook(id),
		pool:            deps.Pool,
		journalGen:      deps.JournalGen,
		tracker:         deps.Tracker,
		market:          deps.Venue,
		prices:          deps.Prices,
		logger: deps.Logger.With().
			Str("sub_account", id.String()).
			Str("collateral", collateralToken).
			Str("asset", assetToken).
			Bool("is_long", isLong).
			Logger(),
	}
}

func (sa *SubAccount) evaluator() *margin.Evaluator {
	return margin.NewEvaluator(margin.Rates{
		InitialMarginRate:     sa.Cfg.Asset.InitialMarginRate,
		MaintenanceMarginRate: sa.Cfg.Asset.MaintenanceMarginRate,
	})
}

func (sa *SubAccount) collateralAssetID() ledger.AssetID {
	return ledger.RegisterAsset(sa.CollateralToken)
}

// HeldCollateral reports the sub-account's unescrowed collateral balance.
func (sa *SubAccount) HeldCollateral() int64 {
	return sa.tracker.GetSubAccountBalance(sa.ID, sa.collateralAssetID())
}

// CanonicalBytes returns a deterministic serialization of the account's
// own state for hashing: identity, debt record, order book, and the
// held collateral balance.
func (sa *SubAccount) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, sa.ID[:]...)
	buf = append(buf, sa.Debt.CanonicalBytes()...)
	buf = append(buf, sa.Book.CanonicalBytes()...)
	var held [8]byte
	binary.LittleEndian.PutUint64(held[:], uint64(sa.HeldCollateral()))
	buf = append(buf, held[:]...)
	return buf
}

// LiquidatorID reports the caller of the unresolved liquidation, or the
// zero UUID when no liquidation is in flight.
func (sa *SubAccount) LiquidatorID() uuid.UUID {
	return sa.liquidatorID
}

// RestoreLiquidation reinstates the liquidation latch during replay.
func (sa *SubAccount) RestoreLiquidation(liquidatorID uuid.UUID) error {
	if err := sa.Book.BeginLiquidation(); err != nil {
		return err
	}
	sa.liquidatorID = liquidatorID
	return nil
}

// checkReferencePrice rejects an acting asset price that strays beyond
// the configured deviation from the reference oracle. Markets without a
// reference configured skip the check.
func (sa *SubAccount) checkReferencePrice(assetPrice int64) error {
	oracle := sa.Cfg.Asset.ReferenceOracle
	maxDeviation := sa.Cfg.Asset.ReferencePriceDeviation
	if oracle == "" || maxDeviation <= 0 {
		return nil
	}
	refPrice, err := sa.prices.GetPrice(oracle)
	if err != nil {
		return fmt.Errorf("reference price: %w", err)
	}
	diff := assetPrice - refPrice
	if diff < 0 {
		diff = -diff
	}
	if diff > fpmath.ApplyRate(refPrice, maxDeviation, fpmath.RoundDown) {
		return fmt.Errorf("asset price %d vs reference %d: %w", assetPrice, refPrice, domain.ErrPriceDeviation)
	}
	return nil
}

func (sa *SubAccount) venuePosition() (margin.VenuePosition, error) {
	return sa.market.GetPosition(sa.ID, sa.CollateralToken, sa.AssetToken, sa.IsLong)
}

func (sa *SubAccount) fundingIndex() (int64, error) {
	return sa.market.GetFundingIndex(sa.Cfg.Project.FundingAsset)
}

// OpenPosition borrows from the pool, charges the debt ledger's inflight
// counters, and places an increase order at the venue. Rejected calls
// leave no ledger mutation behind.
func (sa *SubAccount) OpenPosition(eventRef string, collateralIn, borrowAmount, sizeDeltaUsd int64, isMarket bool, acceptablePrice, now int64) (order.Key, error) {
	var zero order.Key

	if sa.Book.IsLiquidating() {
		return zero, fmt.Errorf("open position: %w", domain.ErrLiquidating)
	}
	if borrowAmount > 0 {
		if sa.Cfg.Borrow.AssetClass == config.AssetClassVirtual {
			return zero, fmt.Errorf("open position: borrow against %s: %w", sa.AssetToken, domain.ErrVirtualAsset)
		}
		if cap := sa.Cfg.Borrow.Cap; cap > 0 {
			outstanding := sa.pool.OutstandingDebt(sa.CollateralToken)
			if outstanding+borrowAmount > cap {
				return zero, fmt.Errorf("open position: borrow %d would exceed cap %d: %w",
					borrowAmount, cap, domain.ErrInsufficientSupply)
			}
		}
	}

	boostFee := fpmath.BoostFee(borrowAmount, sa.Cfg.Asset.BoostFeeRate)

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return zero, fmt.Errorf("open position: funding index: %w", err)
	}
	collateralPrice, err := sa.prices.GetPrice(sa.CollateralToken)
	if err != nil {
		return zero, fmt.Errorf("open position: %w", err)
	}
	assetPrice, err := sa.prices.GetPrice(sa.AssetToken)
	if err != nil {
		return zero, fmt.Errorf("open position: %w", err)
	}
	if err := sa.checkReferencePrice(assetPrice); err != nil {
		return zero, fmt.Errorf("open position: %w", err)
	}

	pos, err := sa.venuePosition()
	if err != nil {
		return zero, fmt.Errorf("open position: venue position: %w", err)
	}

	// Prospective IM check on the post-trade exposure: the new collateral
	// and borrowed principal are counted as if the fill already happened.
	projected := pos
	projected.SizeUsd += sizeDeltaUsd
	escrow := collateralIn + borrowAmount - boostFee
	projected.CollateralUsd += fpmath.TokenToUsd(escrow, collateralPrice, fpmath.RoundDown)
	projectedDebt := sa.Debt
	projectedDebt.AccrueAndBorrow(borrowAmount, 0, fundingIndex)

	if !sa.evaluator().IsInitialMarginSafe(projected, sa.IsLong, projectedDebt, fundingIndex, collateralPrice, assetPrice) {
		return zero, fmt.Errorf("open position: %w", domain.ErrImMarginUnsafe)
	}

	// Money movement: attached collateral in, borrow out of the pool,
	// full escrow to the venue.
	if collateralIn > 0 {
		batch, err := sa.journalGen.GenerateCollateralIn(eventRef, sa.OwnerID, sa.ID, sa.collateralAssetID(), collateralIn, now)
		if err != nil {
			return zero, fmt.Errorf("open position: %w", domain.ErrNotEnoughBalance)
		}
		if err := sa.tracker.ApplyBatch(batch); err != nil {
			return zero, err
		}
	}
	if borrowAmount > 0 {
		if err := sa.pool.BorrowToken(eventRef, sa.ID, sa.CollateralToken, borrowAmount, boostFee, now); err != nil {
			sa.unwindCollateralIn(eventRef, collateralIn, now)
			return zero, fmt.Errorf("open position: %w", err)
		}
	}

	sa.Debt.AccrueAndBorrow(borrowAmount, 0, fundingIndex)

	key, err := sa.Book.Place(order.CategoryOpen, borrowAmount, escrow, isMarket, now, sa.Cfg.Version)
	if err != nil {
		return zero, err
	}

	if escrow > 0 {
		batch, err := sa.journalGen.GenerateVenueTransferOut(eventRef, sa.ID, sa.collateralAssetID(), escrow, now)
		if err != nil {
			return zero, err
		}
		if err := sa.tracker.ApplyBatch(batch); err != nil {
			return zero, err
		}
	}

	params := venue.OrderParams{
		SubAccountID:    sa.ID,
		Key:             key,
		CollateralToken: sa.CollateralToken,
		AssetToken:      sa.AssetToken,
		IsLong:          sa.IsLong,
		IsMarket:        isMarket,
		CollateralDelta: escrow,
		SizeDeltaUsd:    sizeDeltaUsd,
		AcceptablePrice: acceptablePrice,
		ReferralCode:    sa.Cfg.Project.ReferralCode,
	}
	if err := sa.market.PlaceIncreaseOrder(params); err != nil {
		// Synchronous venue rejection resolves through the normal cancel
		// path so no order is silently dropped.
		sa.logger.Warn().Err(err).Str("key", key.String()).Msg("venue rejected increase order, unwinding")
		if _, cErr := sa.HandleCancel(eventRef, key, now); cErr != nil {
			return zero, fmt.Errorf("open position: unwind after venue reject: %w", cErr)
		}
		return zero, fmt.Errorf("open position: venue reject: %w", err)
	}

	sa.logger.Info().
		Str("key", key.String()).
		Int64("collateral_in", collateralIn).
		Int64("borrow", borrowAmount).
		Int64("size_delta_usd", sizeDeltaUsd).
		Msg("increase order placed")
	return key, nil
}

func (sa *SubAccount) unwindCollateralIn(eventRef string, collateralIn, now int64) {
	if collateralIn <= 0 {
		return
	}
	batch, err := sa.journalGen.GenerateSurplusReturn(eventRef+":unwind", sa.OwnerID, sa.ID, sa.collateralAssetID(), collateralIn, now)
	if err == nil {
		_ = sa.tracker.ApplyBatch(batch)
	}
}

// ClosePosition places a decrease order. A position already below
// maintenance margin belongs to the liquidator, not the user.
func (sa *SubAccount) ClosePosition(eventRef string, sizeDeltaUsd, collateralDeltaUsd int64, isMarket bool, acceptablePrice, now int64) (order.Key, error) {
	var zero order.Key

	if sa.Book.IsLiquidating() {
		return zero, fmt.Errorf("close position: %w", domain.ErrLiquidating)
	}

	fundingIndex, err := sa.fundingIndex()
	if err != nil {
		return zero, fmt.Errorf("close position: funding index: %w", err)
	}
	collateralPrice, err := sa.prices.GetPrice(sa.CollateralToken)
	if err != nil {
		return zero, fmt.Errorf("close position: %w", err)
	}
	assetPrice, err := sa.prices.GetPrice(sa.AssetToken)
	if err != nil {
		return zero, fmt.Errorf("close position: %w", err)
	}
	if err := sa.checkReferencePrice(assetPrice); err != nil {
		return zero, fmt.Errorf("close position: %w", err)
	}
	pos, err := sa.venuePosition()
	if err != nil {
		return zero, fmt.Errorf("close position: venue position: %w", err)
	}

	if !sa.evaluator().IsMaintenanceMarginSafe(pos, sa.IsLong, sa.Debt, fundingIndex, collateralPrice, assetPrice) {
		return zero, fmt.Errorf("close position: %w", domain.ErrMmMarginUnsafe)
	}

	key, err := sa.Book.Place(order.CategoryClose, 0, collateralDeltaUsd, isMarket, now, sa.Cfg.Version)
	if err != nil {
		return zero, err
	}

	params := venue.OrderParams{
		SubAccountID:    sa.ID,
		Key:             key,
		CollateralToken: sa.CollateralToken,
		AssetToken:      sa.AssetToken,
		IsLong:          sa.IsLong,
		IsMarket:        isMarket,
		CollateralDelta: collateralDeltaUsd,
		SizeDeltaUsd:    sizeDeltaUsd,
		AcceptablePrice: acceptablePrice,
		ReferralCode:    sa.Cfg.Project.ReferralCode,
	}
	if err := sa.market.PlaceDecreaseOrder(params); err != nil {
		if _, cErr := sa.HandleCancel(eventRef, key, now); cErr != nil {
			return zero, fmt.Errorf("close position: unwind after venue reject: %w", cErr)
		}
		return zero, fmt.Errorf("close position: venue reject: %w", err)
	}

	sa.logger.Info().
		Str("key", key.String()).
		Int64("size_delta_usd", sizeDeltaUsd).
		Msg("decrease order placed")
	return key, nil
}
