package event

import (
	"fmt"

	"github.com/google/uuid"
)

// VenueFill reports execution of a pending order. It carries both the
// settlement legs (what the venue returned) and the post-fill position,
// so replay never has to ask the venue anything.
type VenueFill struct {
	EventID  uuid.UUID
	Tuple    Tuple
	OrderKey string

	ActualBorrowed     int64
	ReturnedCollateral int64
	SecondaryToken     string
	SecondaryAmount    int64

	PositionSizeUsd       int64
	PositionCollateralUsd int64
	PositionAveragePrice  int64

	Sequence  int64
	Timestamp int64
}

func (e *VenueFill) IdempotencyKey() string { return e.EventID.String() }
func (e *VenueFill) EventType() EventType   { return EventTypeVenueFill }
func (e *VenueFill) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *VenueFill) SourceSequence() int64  { return e.Sequence }
func (e *VenueFill) EventTimestamp() int64  { return e.Timestamp }

// VenueCancel reports that the venue dropped a pending order without
// executing it.
type VenueCancel struct {
	EventID   uuid.UUID
	Tuple     Tuple
	OrderKey  string
	Sequence  int64
	Timestamp int64
}

func (e *VenueCancel) IdempotencyKey() string { return e.EventID.String() }
func (e *VenueCancel) EventType() EventType   { return EventTypeVenueCancel }
func (e *VenueCancel) PartitionKey() string   { return e.Tuple.PartitionKey() }
func (e *VenueCancel) SourceSequence() int64  { return e.Sequence }
func (e *VenueCancel) EventTimestamp() int64  { return e.Timestamp }

// FundingIndexUpdate advances the cumulative funding fee index for an
// asset. Its partition tolerates sequence gaps since feeds are sampled.
type FundingIndexUpdate struct {
	EventID   uuid.UUID
	Asset     string
	Index     int64
	Sequence  int64
	Timestamp int64
}

func (e *FundingIndexUpdate) IdempotencyKey() string { return e.EventID.String() }
func (e *FundingIndexUpdate) EventType() EventType   { return EventTypeFundingIndexUpdate }
func (e *FundingIndexUpdate) PartitionKey() string   { return fmt.Sprintf("funding:%s", e.Asset) }
func (e *FundingIndexUpdate) SourceSequence() int64  { return e.Sequence }
func (e *FundingIndexUpdate) EventTimestamp() int64  { return e.Timestamp }

// PriceUpdate sets the reference price for a token. Gap-tolerant like
// funding updates.
type PriceUpdate struct {
	EventID   uuid.UUID
	Token     string
	Price     int64
	Sequence  int64
	Timestamp int64
}

func (e *PriceUpdate) IdempotencyKey() string { return e.EventID.String() }
func (e *PriceUpdate) EventType() EventType   { return EventTypePriceUpdate }
func (e *PriceUpdate) PartitionKey() string   { return fmt.Sprintf("price:%s", e.Token) }
func (e *PriceUpdate) SourceSequence() int64  { return e.Sequence }
func (e *PriceUpdate) EventTimestamp() int64  { return e.Timestamp }
