package event

import "github.com/google/uuid"

// PoolDeposit adds supplier liquidity to one pool asset.
// Idempotency key: event_id.
type PoolDeposit struct {
	EventID   uuid.UUID
	Token     string
	Amount    int64 // Fixed-point: AmountConfig scale
	Sequence  int64
	Timestamp int64 // Versioned input timestamp (epoch micros)
}

func (e *PoolDeposit) IdempotencyKey() string { return e.EventID.String() }
func (e *PoolDeposit) EventType() EventType   { return EventTypePoolDeposit }
func (e *PoolDeposit) PartitionKey() string   { return "pool" }
func (e *PoolDeposit) SourceSequence() int64  { return e.Sequence }
func (e *PoolDeposit) EventTimestamp() int64  { return e.Timestamp }

// PoolWithdraw removes supplier liquidity from one pool asset.
type PoolWithdraw struct {
	EventID   uuid.UUID
	Token     string
	Amount    int64
	Sequence  int64
	Timestamp int64
}

func (e *PoolWithdraw) IdempotencyKey() string { return e.EventID.String() }
func (e *PoolWithdraw) EventType() EventType   { return EventTypePoolWithdraw }
func (e *PoolWithdraw) PartitionKey() string   { return "pool" }
func (e *PoolWithdraw) SourceSequence() int64  { return e.Sequence }
func (e *PoolWithdraw) EventTimestamp() int64  { return e.Timestamp }

// PoolSetFlags replaces the operation flag bits of one pool asset.
type PoolSetFlags struct {
	EventID   uuid.UUID
	Token     string
	Flags     uint32
	Sequence  int64
	Timestamp int64
}

func (e *PoolSetFlags) IdempotencyKey() string { return e.EventID.String() }
func (e *PoolSetFlags) EventType() EventType   { return EventTypePoolSetFlags }
func (e *PoolSetFlags) PartitionKey() string   { return "pool" }
func (e *PoolSetFlags) SourceSequence() int64  { return e.Sequence }
func (e *PoolSetFlags) EventTimestamp() int64  { return e.Timestamp }
