package event

import (
	"fmt"

	"github.com/google/uuid"
)

// WalletDeposit credits an owner wallet from confirmed external funds.
// Wallet events partition per owner so a withdrawal can never overtake
// the deposit that should cover it.
type WalletDeposit struct {
	EventID   uuid.UUID
	OwnerID   uuid.UUID
	Token     string
	Amount    int64
	Sequence  int64
	Timestamp int64
}

func (e *WalletDeposit) IdempotencyKey() string { return e.EventID.String() }
func (e *WalletDeposit) EventType() EventType   { return EventTypeWalletDeposit }
func (e *WalletDeposit) PartitionKey() string   { return fmt.Sprintf("wallet:%s", e.OwnerID) }
func (e *WalletDeposit) SourceSequence() int64  { return e.Sequence }
func (e *WalletDeposit) EventTimestamp() int64  { return e.Timestamp }

// WalletWithdraw debits an owner wallet back to external funds.
type WalletWithdraw struct {
	EventID   uuid.UUID
	OwnerID   uuid.UUID
	Token     string
	Amount    int64
	Sequence  int64
	Timestamp int64
}

func (e *WalletWithdraw) IdempotencyKey() string { return e.EventID.String() }
func (e *WalletWithdraw) EventType() EventType   { return EventTypeWalletWithdraw }
func (e *WalletWithdraw) PartitionKey() string   { return fmt.Sprintf("wallet:%s", e.OwnerID) }
func (e *WalletWithdraw) SourceSequence() int64  { return e.Sequence }
func (e *WalletWithdraw) EventTimestamp() int64  { return e.Timestamp }
