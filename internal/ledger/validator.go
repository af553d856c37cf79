package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidatePoolNonNegative checks pool supply and fee reserve never go below zero
func (v *InvariantValidator) ValidatePoolNonNegative(assetID AssetID) error {
	if err := v.tracker.ValidateNonNegative(NewSystemAccountKey("pool", SubTypePoolSupply, assetID)); err != nil {
		return err
	}
	return v.tracker.ValidateNonNegative(NewSystemAccountKey("pool", SubTypePoolFeeReserve, assetID))
}

// ValidateSubAccountNonNegative checks held collateral >= 0
func (v *InvariantValidator) ValidateSubAccountNonNegative(subAccountID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewSubAccountKey(subAccountID, assetID))
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
