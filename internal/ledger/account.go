package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeOwner      AccountScope = iota // user wallets
	AccountScopeSubAccount                     // isolated per-tuple ledgers
	AccountScopeSystem                         // pool and protocol reserves
	AccountScopeExternal                       // venue boundary
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Owner sub-types
	SubTypeWallet AccountSubType = iota

	// Sub-account sub-types
	SubTypeCollateral

	// System sub-types
	SubTypePoolSupply
	SubTypePoolFeeReserve
	SubTypeLiquidatorReward

	// External sub-types
	SubTypeVenueEscrow
	SubTypeExternalFunds
)

// AssetID maps asset symbols to numeric IDs for compact keys
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"WETH": 1,
		"USDC": 2,
		"WBTC": 3,
		"ARB":  4,
	}
	idToAsset = map[AssetID]string{
		1: "WETH",
		2: "USDC",
		3: "WBTC",
		4: "ARB",
	}
	nextAssetID AssetID = 5
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// RegisterAsset assigns an ID to a symbol not in the default table.
// Idempotent for already-known symbols.
func RegisterAsset(asset string) AssetID {
	if id, ok := assetToID[asset]; ok {
		return id
	}
	id := nextAssetID
	nextAssetID++
	assetToID[asset] = id
	idToAsset[id] = asset
	return id
}

// AccountKey is the in-memory key for balance tracking (20 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // owner or sub-account UUID; name hash for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewOwnerAccountKey creates a key for an owner wallet
func NewOwnerAccountKey(ownerID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeOwner,
		EntityID: ownerID,
		SubType:  SubTypeWallet,
		AssetID:  assetID,
	}
}

// NewSubAccountKey creates a key for a sub-account's held collateral
func NewSubAccountKey(subAccountID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeSubAccount,
		EntityID: subAccountID,
		SubType:  SubTypeCollateral,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewVenueEscrowKey creates a key for collateral parked at the external venue
func NewVenueEscrowKey(subAccountID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeExternal,
		EntityID: subAccountID,
		SubType:  SubTypeVenueEscrow,
		AssetID:  assetID,
	}
}

// NewExternalFundsKey creates a key for the deposit/withdraw boundary
func NewExternalFundsKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalFunds,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeOwner:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("owner:%s:%s", uid.String(), assetName)
	case AccountScopeSubAccount:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("subaccount:%s:%s", uid.String(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		if k.SubType == SubTypeVenueEscrow {
			uid := uuid.UUID(k.EntityID)
			return fmt.Sprintf("venue:%s:%s", uid.String(), assetName)
		}
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeCollateral:
		return "collateral"
	case SubTypePoolSupply:
		return "pool_supply"
	case SubTypePoolFeeReserve:
		return "pool_fee_reserve"
	case SubTypeLiquidatorReward:
		return "liquidator_reward"
	case SubTypeVenueEscrow:
		return "venue_escrow"
	case SubTypeExternalFunds:
		return "external_funds"
	default:
		return "unknown"
	}
}
