package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetOwnerBalance returns an owner wallet balance
func (bt *BalanceTracker) GetOwnerBalance(ownerID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewOwnerAccountKey(ownerID, assetID))
}

// GetSubAccountBalance returns a sub-account's held collateral
func (bt *BalanceTracker) GetSubAccountBalance(subAccountID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewSubAccountKey(subAccountID, assetID))
}

// GetVenueEscrow returns collateral currently parked at the venue for a sub-account
func (bt *BalanceTracker) GetVenueEscrow(subAccountID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewVenueEscrowKey(subAccountID, assetID))
}

// GetPoolSupply returns the pool's supply balance for an asset
func (bt *BalanceTracker) GetPoolSupply(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey("pool", SubTypePoolSupply, assetID))
}

// GetPoolFeeReserve returns the pool's accumulated fee revenue for an asset
func (bt *BalanceTracker) GetPoolFeeReserve(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey("pool", SubTypePoolFeeReserve, assetID))
}

// === Invariant Checks ===

// ValidateSufficient checks an account can cover a transfer of the given amount
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("insufficient balance on %s: have=%d, need=%d", key.AccountPath(), balance, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// SetBalance overwrites one account balance during snapshot restore.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}
