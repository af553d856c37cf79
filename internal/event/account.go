package event

import (
	"fmt"

	"github.com/google/uuid"
)

// Tuple identifies one sub-account by the binding it was derived from.
// All commands and venue callbacks for the same tuple share a partition,
// so per-account ordering is guaranteed end to end.
type Tuple struct {
	ProjectID       int64
	OwnerID         uuid.UUID
	CollateralToken string
	AssetToken      string
	IsLong          bool
}

func (t Tuple) PartitionKey() string {
	side := "short"
	if t.IsLong {
		side = "long"
	}
	return fmt.Sprintf("acct:%d:%s:%s:%s:%s", t.ProjectID, t.OwnerID, t.CollateralToken, t.AssetToken, side)
}

// SubAccountCreate materializes the sub-account for a tuple.
type SubAccountCreate struct {
	EventID   uuid.UUID
	Caller    uuid.UUID
	Tuple     Tuple
	Sequence  int64
	Timestamp int64
}

func (e *SubAccountCreate) IdempotencyKey() string { return e.EventID.String() }
func (e *SubAccountCreate) EventType() EventType   { return EventTypeSubAccountCreate }
func (e *SubAccountCreate) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *SubAccountCreate) SourceSequence() int64  { return e.Sequence }
func (e *SubAccountCreate) EventTimestamp() int64  { return e.Timestamp }

// PositionOpen places a boosted increase order.
type PositionOpen struct {
	EventID         uuid.UUID
	Caller          uuid.UUID
	Tuple           Tuple
	CollateralIn    int64
	BorrowAmount    int64
	SizeDeltaUsd    int64
	IsMarket        bool
	AcceptablePrice int64
	Sequence        int64
	Timestamp       int64
}

func (e *PositionOpen) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionOpen) EventType() EventType   { return EventTypePositionOpen }
func (e *PositionOpen) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *PositionOpen) SourceSequence() int64  { return e.Sequence }
func (e *PositionOpen) EventTimestamp() int64  { return e.Timestamp }

// PositionClose places a decrease order.
type PositionClose struct {
	EventID            uuid.UUID
	Caller             uuid.UUID
	Tuple              Tuple
	SizeDeltaUsd       int64
	CollateralDeltaUsd int64
	IsMarket           bool
	AcceptablePrice    int64
	Sequence           int64
	Timestamp          int64
}

func (e *PositionClose) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionClose) EventType() EventType   { return EventTypePositionClose }
func (e *PositionClose) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *PositionClose) SourceSequence() int64  { return e.Sequence }
func (e *PositionClose) EventTimestamp() int64  { return e.Timestamp }

// AccountWithdraw closes out a sub-account and sweeps it to the owner.
type AccountWithdraw struct {
	EventID   uuid.UUID
	Caller    uuid.UUID
	Tuple     Tuple
	Sequence  int64
	Timestamp int64
}

func (e *AccountWithdraw) IdempotencyKey() string { return e.EventID.String() }
func (e *AccountWithdraw) EventType() EventType   { return EventTypeAccountWithdraw }
func (e *AccountWithdraw) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *AccountWithdraw) SourceSequence() int64  { return e.Sequence }
func (e *AccountWithdraw) EventTimestamp() int64  { return e.Timestamp }

// OrderCancel cancels the given pending orders (hex-encoded keys)
// unconditionally. Owner- or keeper-initiated; no timeout gate.
type OrderCancel struct {
	EventID   uuid.UUID
	Caller    uuid.UUID
	Tuple     Tuple
	OrderKeys []string
	Sequence  int64
	Timestamp int64
}

func (e *OrderCancel) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderCancel) EventType() EventType   { return EventTypeOrderCancel }
func (e *OrderCancel) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *OrderCancel) SourceSequence() int64  { return e.Sequence }
func (e *OrderCancel) EventTimestamp() int64  { return e.Timestamp }

// OrderCancelTimeout cancels the timed-out subset of the given order
// keys (hex-encoded). The set may be a superset.
type OrderCancelTimeout struct {
	EventID   uuid.UUID
	Caller    uuid.UUID
	Tuple     Tuple
	OrderKeys []string
	Sequence  int64
	Timestamp int64
}

func (e *OrderCancelTimeout) IdempotencyKey() string { return e.EventID.String() }
func (e *OrderCancelTimeout) EventType() EventType   { return EventTypeOrderCancelTimeout }
func (e *OrderCancelTimeout) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *OrderCancelTimeout) SourceSequence() int64  { return e.Sequence }
func (e *OrderCancelTimeout) EventTimestamp() int64  { return e.Timestamp }

// PositionLiquidate starts a forced close for an unsafe account.
type PositionLiquidate struct {
	EventID         uuid.UUID
	Caller          uuid.UUID
	Tuple           Tuple
	AcceptablePrice int64
	Sequence        int64
	Timestamp       int64
}

func (e *PositionLiquidate) IdempotencyKey() string { return e.EventID.String() }
func (e *PositionLiquidate) EventType() EventType   { return EventTypePositionLiquidate }
func (e *PositionLiquidate) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *PositionLiquidate) SourceSequence() int64  { return e.Sequence }
func (e *PositionLiquidate) EventTimestamp() int64  { return e.Timestamp }

// ConfigRefresh re-resolves one sub-account's cached config snapshot.
type ConfigRefresh struct {
	EventID   uuid.UUID
	Caller    uuid.UUID
	Tuple     Tuple
	Sequence  int64
	Timestamp int64
}

func (e *ConfigRefresh) IdempotencyKey() string { return e.EventID.String() }
func (e *ConfigRefresh) EventType() EventType   { return EventTypeConfigRefresh }
func (e *ConfigRefresh) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *ConfigRefresh) SourceSequence() int64  { return e.Sequence }
func (e *ConfigRefresh) EventTimestamp() int64  { return e.Timestamp }
