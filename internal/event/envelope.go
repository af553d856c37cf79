package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolDeposit
	EventTypePoolWithdraw
	EventTypePoolSetFlags
	EventTypeSubAccountCreate
	EventTypePositionOpen
	EventTypePositionClose
	EventTypeAccountWithdraw
	EventTypeOrderCancelTimeout
	EventTypePositionLiquidate
	EventTypeConfigRefresh
	EventTypeProjectConfigSet
	EventTypeAssetConfigSet
	EventTypeBorrowConfigSet
	EventTypeRoleSet
	EventTypeVenueFill
	EventTypeVenueCancel
	EventTypeFundingIndexUpdate
	EventTypePriceUpdate
	EventTypeWalletDeposit
	EventTypeWalletWithdraw
	EventTypeOrderCancel
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Partition the event was sequence-validated under
	Partition string

	// Versioned input timestamp (NOT wall-clock), epoch microseconds
	Timestamp int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PartitionKey returns the sequence-validation partition
	PartitionKey() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// EventTimestamp returns the versioned input timestamp (epoch micros)
	EventTimestamp() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypePoolDeposit:
		return "PoolDeposit"
	case EventTypePoolWithdraw:
		return "PoolWithdraw"
	case EventTypePoolSetFlags:
		return "PoolSetFlags"
	case EventTypeSubAccountCreate:
		return "SubAccountCreate"
	case EventTypePositionOpen:
		return "PositionOpen"
	case EventTypePositionClose:
		return "PositionClose"
	case EventTypeAccountWithdraw:
		return "AccountWithdraw"
	case EventTypeOrderCancel:
		return "OrderCancel"
	case EventTypeOrderCancelTimeout:
		return "OrderCancelTimeout"
	case EventTypePositionLiquidate:
		return "PositionLiquidate"
	case EventTypeConfigRefresh:
		return "ConfigRefresh"
	case EventTypeProjectConfigSet:
		return "ProjectConfigSet"
	case EventTypeAssetConfigSet:
		return "AssetConfigSet"
	case EventTypeBorrowConfigSet:
		return "BorrowConfigSet"
	case EventTypeRoleSet:
		return "RoleSet"
	case EventTypeVenueFill:
		return "VenueFill"
	case EventTypeVenueCancel:
		return "VenueCancel"
	case EventTypeFundingIndexUpdate:
		return "FundingIndexUpdate"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeWalletDeposit:
		return "WalletDeposit"
	case EventTypeWalletWithdraw:
		return "WalletWithdraw"
	default:
		return "Unknown"
	}
}
