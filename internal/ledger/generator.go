package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for pool and
// sub-account money movements
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
	pending        []*Batch
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the journal sequence during snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	batch := &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
	jg.pending = append(jg.pending, batch)
	return batch
}

// TakePending drains the batches generated since the last drain. The
// engine calls this once per event to collect everything the pool and
// account layers produced, including compensating entries on unwind.
func (jg *JournalGenerator) TakePending() []*Batch {
	batches := jg.pending
	jg.pending = nil
	return batches
}

// DiscardPending drops un-drained batches after a rejected event.
func (jg *JournalGenerator) DiscardPending() {
	jg.pending = nil
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GeneratePoolDeposit moves funds: external:funds → system:pool_supply
func (jg *JournalGenerator) GeneratePoolDeposit(eventRef string, assetID AssetID, amount int64, timestamp int64) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSystemAccountKey("pool", SubTypePoolSupply, assetID),
		NewExternalFundsKey(assetID),
		assetID, amount, JournalTypePoolDeposit)
	jg.sequence++
	return batch, nil
}

// GeneratePoolWithdrawal moves funds: system:pool_supply → external:funds.
// Pre-check: pool supply must cover the amount.
func (jg *JournalGenerator) GeneratePoolWithdrawal(eventRef string, assetID AssetID, amount int64, timestamp int64) (*Batch, error) {
	supplyKey := NewSystemAccountKey("pool", SubTypePoolSupply, assetID)
	if err := jg.balanceTracker.ValidateSufficient(supplyKey, amount); err != nil {
		return nil, fmt.Errorf("pool withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewExternalFundsKey(assetID),
		supplyKey,
		assetID, amount, JournalTypePoolWithdrawal)
	jg.sequence++
	return batch, nil
}

// GenerateBorrow moves the borrowed principal out of the pool:
// net (amount - fee) to the sub-account, fee to system:pool_fee_reserve.
// Pre-check: pool supply must cover the full amount.
func (jg *JournalGenerator) GenerateBorrow(
	eventRef string,
	subAccountID uuid.UUID,
	assetID AssetID,
	amount, feeAmount int64,
	timestamp int64,
) (*Batch, error) {
	supplyKey := NewSystemAccountKey("pool", SubTypePoolSupply, assetID)
	if err := jg.balanceTracker.ValidateSufficient(supplyKey, amount); err != nil {
		return nil, fmt.Errorf("borrow pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)

	net := amount - feeAmount
	if net > 0 {
		jg.appendJournal(batch,
			NewSubAccountKey(subAccountID, assetID),
			supplyKey,
			assetID, net, JournalTypeBorrowPrincipal)
	}
	if feeAmount > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey("pool", SubTypePoolFeeReserve, assetID),
			supplyKey,
			assetID, feeAmount, JournalTypeBorrowFee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateRepay returns principal to the pool supply and fee to the fee
// reserve, both pulled from the sub-account's held collateral.
// Pre-check: the sub-account must hold principal + fee.
func (jg *JournalGenerator) GenerateRepay(
	eventRef string,
	subAccountID uuid.UUID,
	assetID AssetID,
	principal, feeAmount int64,
	timestamp int64,
) (*Batch, error) {
	subKey := NewSubAccountKey(subAccountID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(subKey, principal+feeAmount); err != nil {
		return nil, fmt.Errorf("repay pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)

	if principal > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey("pool", SubTypePoolSupply, assetID),
			subKey,
			assetID, principal, JournalTypeRepayPrincipal)
	}
	if feeAmount > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey("pool", SubTypePoolFeeReserve, assetID),
			subKey,
			assetID, feeAmount, JournalTypeRepayFee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateWalletDeposit credits an owner wallet from external funds.
func (jg *JournalGenerator) GenerateWalletDeposit(eventRef string, ownerID uuid.UUID, assetID AssetID, amount, timestamp int64) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewOwnerAccountKey(ownerID, assetID),
		NewExternalFundsKey(assetID),
		assetID, amount, JournalTypeWalletDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateWalletWithdrawal debits an owner wallet back to external funds.
// Pre-check: the wallet must hold the amount.
func (jg *JournalGenerator) GenerateWalletWithdrawal(eventRef string, ownerID uuid.UUID, assetID AssetID, amount, timestamp int64) (*Batch, error) {
	ownerKey := NewOwnerAccountKey(ownerID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(ownerKey, amount); err != nil {
		return nil, fmt.Errorf("wallet withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewExternalFundsKey(assetID),
		ownerKey,
		assetID, amount, JournalTypeWalletWithdrawal)
	jg.sequence++
	return batch, nil
}

// GenerateCollateralIn moves attached collateral from the owner wallet
// into the sub-account's held balance.
func (jg *JournalGenerator) GenerateCollateralIn(
	eventRef string,
	ownerID, subAccountID uuid.UUID,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	ownerKey := NewOwnerAccountKey(ownerID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(ownerKey, amount); err != nil {
		return nil, fmt.Errorf("collateral pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSubAccountKey(subAccountID, assetID),
		ownerKey,
		assetID, amount, JournalTypeCollateralIn)
	jg.sequence++
	return batch, nil
}

// GenerateVenueTransferOut parks held collateral at the venue escrow
// when an increase order is placed.
func (jg *JournalGenerator) GenerateVenueTransferOut(
	eventRef string,
	subAccountID uuid.UUID,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	subKey := NewSubAccountKey(subAccountID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(subKey, amount); err != nil {
		return nil, fmt.Errorf("venue transfer pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewVenueEscrowKey(subAccountID, assetID),
		subKey,
		assetID, amount, JournalTypeVenueTransferOut)
	jg.sequence++
	return batch, nil
}

// GenerateVenueTransferIn books proceeds returned from the venue
// (cancelled escrow or close proceeds) back into the sub-account.
func (jg *JournalGenerator) GenerateVenueTransferIn(
	eventRef string,
	subAccountID uuid.UUID,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSubAccountKey(subAccountID, assetID),
		NewVenueEscrowKey(subAccountID, assetID),
		assetID, amount, JournalTypeVenueTransferIn)
	jg.sequence++
	return batch, nil
}

// GenerateSurplusReturn sweeps residual sub-account collateral back to the owner.
func (jg *JournalGenerator) GenerateSurplusReturn(
	eventRef string,
	ownerID, subAccountID uuid.UUID,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	subKey := NewSubAccountKey(subAccountID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(subKey, amount); err != nil {
		return nil, fmt.Errorf("surplus return pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewOwnerAccountKey(ownerID, assetID),
		subKey,
		assetID, amount, JournalTypeSurplusReturn)
	jg.sequence++
	return batch, nil
}

// GenerateLiquidationFee pays the liquidator reward out of recovered collateral.
func (jg *JournalGenerator) GenerateLiquidationFee(
	eventRef string,
	subAccountID, liquidatorID uuid.UUID,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	subKey := NewSubAccountKey(subAccountID, assetID)
	if err := jg.balanceTracker.ValidateSufficient(subKey, amount); err != nil {
		return nil, fmt.Errorf("liquidation fee pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewOwnerAccountKey(liquidatorID, assetID),
		subKey,
		assetID, amount, JournalTypeLiquidationFee)
	jg.sequence++
	return batch, nil
}
