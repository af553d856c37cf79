package venue

import (
	"bytes"
	"fmt"
	"sort"

	"PerpBoost/internal/margin"
	"PerpBoost/internal/order"

	"github.com/google/uuid"
)

type positionKey struct {
	subAccountID uuid.UUID
	collateral   string
	asset        string
	isLong       bool
}

// SimVenue is an in-memory venue used by tests and the local runner.
// Placed orders sit in its book until the test (acting as the venue
// keeper) fills or cancels them.
type SimVenue struct {
	placed        map[order.Key]OrderParams
	positions     map[positionKey]margin.VenuePosition
	fundingIndex  map[string]int64
	failPlacement bool
}

func NewSimVenue() *SimVenue {
	return &SimVenue{
		placed:       make(map[order.Key]OrderParams),
		positions:    make(map[positionKey]margin.VenuePosition),
		fundingIndex: make(map[string]int64),
	}
}

func (v *SimVenue) PlaceIncreaseOrder(params OrderParams) error {
	if v.failPlacement {
		return fmt.Errorf("sim venue: placement rejected")
	}
	v.placed[params.Key] = params
	return nil
}

func (v *SimVenue) PlaceDecreaseOrder(params OrderParams) error {
	if v.failPlacement {
		return fmt.Errorf("sim venue: placement rejected")
	}
	v.placed[params.Key] = params
	return nil
}

func (v *SimVenue) CancelOrder(subAccountID uuid.UUID, key order.Key) error {
	delete(v.placed, key)
	return nil
}

func (v *SimVenue) GetPosition(subAccountID uuid.UUID, collateralToken, assetToken string, isLong bool) (margin.VenuePosition, error) {
	pos := v.positions[positionKey{subAccountID, collateralToken, assetToken, isLong}]
	return pos, nil
}

func (v *SimVenue) GetFundingIndex(assetToken string) (int64, error) {
	return v.fundingIndex[assetToken], nil
}

// === Test controls ===

// SetPosition overrides the reported position for a sub-account tuple.
func (v *SimVenue) SetPosition(subAccountID uuid.UUID, collateralToken, assetToken string, isLong bool, pos margin.VenuePosition) {
	v.positions[positionKey{subAccountID, collateralToken, assetToken, isLong}] = pos
}

// SetFundingIndex advances the reported funding accumulator for an asset.
func (v *SimVenue) SetFundingIndex(assetToken string, index int64) {
	v.fundingIndex[assetToken] = index
}

// SetFailPlacement makes subsequent placements error out.
func (v *SimVenue) SetFailPlacement(fail bool) {
	v.failPlacement = fail
}

// PlacedOrder returns the recorded request for a key.
func (v *SimVenue) PlacedOrder(key order.Key) (OrderParams, bool) {
	p, ok := v.placed[key]
	return p, ok
}

// PlacedCount reports how many requests sit unresolved at the venue.
func (v *SimVenue) PlacedCount() int {
	return len(v.placed)
}

// PositionEntry is one tuple's tracked position, in exportable form.
type PositionEntry struct {
	SubAccountID    uuid.UUID
	CollateralToken string
	AssetToken      string
	IsLong          bool
	Position        margin.VenuePosition
}

// Positions exports all tracked positions, sorted for determinism.
func (v *SimVenue) Positions() []PositionEntry {
	out := make([]PositionEntry, 0, len(v.positions))
	for key, pos := range v.positions {
		out = append(out, PositionEntry{key.subAccountID, key.collateral, key.asset, key.isLong, pos})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := bytes.Compare(a.SubAccountID[:], b.SubAccountID[:]); c != 0 {
			return c < 0
		}
		if a.CollateralToken != b.CollateralToken {
			return a.CollateralToken < b.CollateralToken
		}
		if a.AssetToken != b.AssetToken {
			return a.AssetToken < b.AssetToken
		}
		return !a.IsLong && b.IsLong
	})
	return out
}

// FundingIndices exports the per-asset funding accumulators.
func (v *SimVenue) FundingIndices() map[string]int64 {
	out := make(map[string]int64, len(v.fundingIndex))
	for asset, idx := range v.fundingIndex {
		out[asset] = idx
	}
	return out
}
