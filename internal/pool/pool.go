package pool

import (
	"encoding/binary"
	"fmt"
	"sort"

	"PerpBoost/internal/domain"
	"PerpBoost/internal/ledger"
	fpmath "PerpBoost/internal/math"

	"github.com/google/uuid"
)

// Flags are the independent per-asset permission bits. Every mutating
// operation checks exactly its own bit.
type Flags uint8

const (
	FlagEnabled      Flags = 0x1
	FlagBorrowable   Flags = 0x2
	FlagRepayable    Flags = 0x4
	FlagDepositable  Flags = 0x8
	FlagWithdrawable Flags = 0x10

	FlagsAll = FlagEnabled | FlagBorrowable | FlagRepayable | FlagDepositable | FlagWithdrawable
)

func (f Flags) Has(bit Flags) bool {
	return f&bit != 0
}

// AssetState holds the per-asset counters. The invariant
// totalAmountOut - totalAmountIn == sum of outstanding sub-account debt
// principal holds across every borrow/repay pair.
type AssetState struct {
	Token           string
	AssetID         ledger.AssetID
	Flags           Flags
	Supply          int64
	TotalAmountOut  int64
	TotalAmountIn   int64
	BorrowFeeAmount int64
}

// LendingPool is the multi-asset supply that backs the debt ledger.
// All money movement goes through double-entry journals so the balance
// tracker stays the source of truth for conservation checks.
type LendingPool struct {
	assets     map[string]*AssetState
	borrowers  map[uuid.UUID]bool
	journalGen *ledger.JournalGenerator
	tracker    *ledger.BalanceTracker
}

func NewLendingPool(jg *ledger.JournalGenerator, bt *ledger.BalanceTracker) *LendingPool {
	return &LendingPool{
		assets:     make(map[string]*AssetState),
		borrowers:  make(map[uuid.UUID]bool),
		journalGen: jg,
		tracker:    bt,
	}
}

// SetAssetFlags installs or updates an asset's permission bits,
// registering the asset on first use.
func (p *LendingPool) SetAssetFlags(token string, flags Flags) {
	st, ok := p.assets[token]
	if !ok {
		st = &AssetState{
			Token:   token,
			AssetID: ledger.RegisterAsset(token),
		}
		p.assets[token] = st
	}
	st.Flags = flags
}

// AuthorizeBorrower adds a sub-account to the borrow/repay allow-list.
func (p *LendingPool) AuthorizeBorrower(subAccountID uuid.UUID) {
	p.borrowers[subAccountID] = true
}

// RevokeBorrower removes a sub-account from the allow-list.
func (p *LendingPool) RevokeBorrower(subAccountID uuid.UUID) {
	delete(p.borrowers, subAccountID)
}

func (p *LendingPool) asset(token string) (*AssetState, error) {
	st, ok := p.assets[token]
	if !ok || !st.Flags.Has(FlagEnabled) {
		return nil, fmt.Errorf("asset %s: %w", token, domain.ErrForbidden)
	}
	return st, nil
}

// AssetState returns a copy of the per-asset counters.
func (p *LendingPool) AssetState(token string) (AssetState, bool) {
	st, ok := p.assets[token]
	if !ok {
		return AssetState{}, false
	}
	return *st, true
}

// Tokens lists configured assets in deterministic order.
func (p *LendingPool) Tokens() []string {
	tokens := make([]string, 0, len(p.assets))
	for t := range p.assets {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Deposit adds supply to an asset.
func (p *LendingPool) Deposit(eventRef, token string, amount, timestamp int64) error {
	st, err := p.asset(token)
	if err != nil {
		return err
	}
	if !st.Flags.Has(FlagDepositable) {
		return fmt.Errorf("deposit %s: %w", token, domain.ErrForbidden)
	}
	if amount <= 0 {
		return fmt.Errorf("deposit %s: non-positive amount %d", token, amount)
	}

	batch, err := p.journalGen.GeneratePoolDeposit(eventRef, st.AssetID, amount, timestamp)
	if err != nil {
		return err
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return err
	}

	st.Supply += amount
	return nil
}

// Withdraw removes supply from an asset. Fails with InsufficientSupply
// when the amount exceeds what the pool holds.
func (p *LendingPool) Withdraw(eventRef, token string, amount, timestamp int64) error {
	st, err := p.asset(token)
	if err != nil {
		return err
	}
	if !st.Flags.Has(FlagWithdrawable) {
		return fmt.Errorf("withdraw %s: %w", token, domain.ErrForbidden)
	}
	if amount > st.Supply {
		return fmt.Errorf("withdraw %s: amount %d > supply %d: %w",
			token, amount, st.Supply, domain.ErrInsufficientSupply)
	}

	batch, err := p.journalGen.GeneratePoolWithdrawal(eventRef, st.AssetID, amount, timestamp)
	if err != nil {
		return err
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return err
	}

	st.Supply -= amount
	return nil
}

// BorrowToken moves amount out of the supply for an authorized borrower:
// supply -= amount, totalAmountOut += amount, borrowFeeAmount += fee, and
// amount - fee lands on the sub-account (the fee stays as pool revenue).
func (p *LendingPool) BorrowToken(eventRef string, subAccountID uuid.UUID, token string, amount, feeAmount, timestamp int64) error {
	if !p.borrowers[subAccountID] {
		return fmt.Errorf("borrow %s by %s: %w", token, subAccountID, domain.ErrUnauthorizedCaller)
	}
	st, err := p.asset(token)
	if err != nil {
		return err
	}
	if !st.Flags.Has(FlagBorrowable) {
		return fmt.Errorf("borrow %s: %w", token, domain.ErrForbidden)
	}
	if amount <= 0 || feeAmount < 0 || feeAmount > amount {
		return fmt.Errorf("borrow %s: bad amounts amount=%d fee=%d", token, amount, feeAmount)
	}
	if amount > st.Supply {
		return fmt.Errorf("borrow %s: amount %d > supply %d: %w",
			token, amount, st.Supply, domain.ErrInsufficientSupply)
	}

	batch, err := p.journalGen.GenerateBorrow(eventRef, subAccountID, st.AssetID, amount, feeAmount, timestamp)
	if err != nil {
		return err
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return err
	}

	st.Supply -= amount
	st.TotalAmountOut += amount
	st.BorrowFeeAmount += feeAmount
	return nil
}

// RepayToken returns principal to the supply and fee to the revenue
// counter, both pulled from the sub-account's held collateral. Principal
// and fee are additive, non-overlapping amounts.
func (p *LendingPool) RepayToken(eventRef string, subAccountID uuid.UUID, token string, principal, feeAmount, timestamp int64) error {
	if !p.borrowers[subAccountID] {
		return fmt.Errorf("repay %s by %s: %w", token, subAccountID, domain.ErrUnauthorizedCaller)
	}
	st, err := p.asset(token)
	if err != nil {
		return err
	}
	if !st.Flags.Has(FlagRepayable) {
		return fmt.Errorf("repay %s: %w", token, domain.ErrForbidden)
	}
	if principal < 0 || feeAmount < 0 || principal+feeAmount == 0 {
		return fmt.Errorf("repay %s: bad amounts principal=%d fee=%d", token, principal, feeAmount)
	}

	held := p.tracker.GetSubAccountBalance(subAccountID, st.AssetID)
	if held < principal+feeAmount {
		return fmt.Errorf("repay %s: held %d < principal %d + fee %d: %w",
			token, held, principal, feeAmount, domain.ErrNotEnoughBalance)
	}

	batch, err := p.journalGen.GenerateRepay(eventRef, subAccountID, st.AssetID, principal, feeAmount, timestamp)
	if err != nil {
		return err
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return err
	}

	st.Supply += principal
	st.TotalAmountIn += principal
	st.BorrowFeeAmount += feeAmount
	return nil
}

// RepayTokenCross settles debt denominated in debtToken with funds held
// in payToken (e.g. stable proceeds from a short close). The pay asset's
// supply absorbs the tokens actually received while the debt asset's
// totalAmountIn is credited with the covered principal, so the per-asset
// debt invariant holds on both sides.
func (p *LendingPool) RepayTokenCross(
	eventRef string,
	subAccountID uuid.UUID,
	debtToken, payToken string,
	coveredPrincipal, paidPrincipal, paidFee int64,
	timestamp int64,
) error {
	if !p.borrowers[subAccountID] {
		return fmt.Errorf("repay %s via %s by %s: %w", debtToken, payToken, subAccountID, domain.ErrUnauthorizedCaller)
	}
	debtSt, err := p.asset(debtToken)
	if err != nil {
		return err
	}
	paySt, err := p.asset(payToken)
	if err != nil {
		return err
	}
	if !debtSt.Flags.Has(FlagRepayable) {
		return fmt.Errorf("repay %s: %w", debtToken, domain.ErrForbidden)
	}
	if coveredPrincipal < 0 || paidPrincipal < 0 || paidFee < 0 || paidPrincipal+paidFee == 0 {
		return fmt.Errorf("repay %s via %s: bad amounts covered=%d paid=%d fee=%d",
			debtToken, payToken, coveredPrincipal, paidPrincipal, paidFee)
	}

	held := p.tracker.GetSubAccountBalance(subAccountID, paySt.AssetID)
	if held < paidPrincipal+paidFee {
		return fmt.Errorf("repay %s via %s: held %d < paid %d + fee %d: %w",
			debtToken, payToken, held, paidPrincipal, paidFee, domain.ErrNotEnoughBalance)
	}

	batch, err := p.journalGen.GenerateRepay(eventRef, subAccountID, paySt.AssetID, paidPrincipal, paidFee, timestamp)
	if err != nil {
		return err
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return err
	}

	paySt.Supply += paidPrincipal
	paySt.BorrowFeeAmount += paidFee
	debtSt.TotalAmountIn += coveredPrincipal
	return nil
}

// OutstandingDebt reports totalAmountOut - totalAmountIn for an asset.
func (p *LendingPool) OutstandingDebt(token string) int64 {
	st, ok := p.assets[token]
	if !ok {
		return 0
	}
	return st.TotalAmountOut - st.TotalAmountIn
}

// DebtUSDOf values one asset's outstanding debt at the given price.
func (p *LendingPool) DebtUSDOf(token string, price int64) int64 {
	return fpmath.TokenToUsd(p.OutstandingDebt(token), price, fpmath.RoundDown)
}

// TotalDebtUSD sums outstanding debt across all assets. Used for risk
// reporting; the borrow cap is enforced upstream at borrow-config level.
func (p *LendingPool) TotalDebtUSD(priceOf func(token string) (int64, error)) (int64, error) {
	var total int64
	for _, token := range p.Tokens() {
		price, err := priceOf(token)
		if err != nil {
			return 0, fmt.Errorf("price for %s: %w", token, err)
		}
		total += p.DebtUSDOf(token, price)
	}
	return total, nil
}

// CanonicalBytes returns a deterministic serialization of all asset
// counters for state hashing.
func (p *LendingPool) CanonicalBytes() []byte {
	tokens := p.Tokens()
	buf := make([]byte, 0, len(tokens)*48)
	for _, token := range tokens {
		st := p.assets[token]
		buf = append(buf, byte(len(token)))
		buf = append(buf, token...)
		buf = append(buf, byte(st.Flags))
		buf = appendInt64LE(buf, st.Supply)
		buf = appendInt64LE(buf, st.TotalAmountOut)
		buf = appendInt64LE(buf, st.TotalAmountIn)
		buf = appendInt64LE(buf, st.BorrowFeeAmount)
	}
	return buf
}

// RestoreAsset reinstates per-asset counters during replay.
func (p *LendingPool) RestoreAsset(st AssetState) {
	copied := st
	copied.AssetID = ledger.RegisterAsset(st.Token)
	p.assets[st.Token] = &copied
}

func appendInt64LE(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}
