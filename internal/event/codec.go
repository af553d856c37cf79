package event

import (
	"encoding/json"
	"fmt"
)

// DecodeEvent unmarshals an envelope payload back into its typed event.
// Payloads are written by the core with encoding/json over the concrete
// event structs, so replay round-trips through the same encoding.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	evt, err := newEvent(eventType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return evt, nil
}

func newEvent(eventType string) (Event, error) {
	switch eventType {
	case "PoolDeposit":
		return &PoolDeposit{}, nil
	case "PoolWithdraw":
		return &PoolWithdraw{}, nil
	case "PoolSetFlags":
		return &PoolSetFlags{}, nil
	case "SubAccountCreate":
		return &SubAccountCreate{}, nil
	case "PositionOpen":
		return &PositionOpen{}, nil
	case "PositionClose":
		return &PositionClose{}, nil
	case "AccountWithdraw":
		return &AccountWithdraw{}, nil
	case "OrderCancel":
		return &OrderCancel{}, nil
	case "OrderCancelTimeout":
		return &OrderCancelTimeout{}, nil
	case "PositionLiquidate":
		return &PositionLiquidate{}, nil
	case "ConfigRefresh":
		return &ConfigRefresh{}, nil
	case "ProjectConfigSet":
		return &ProjectConfigSet{}, nil
	case "AssetConfigSet":
		return &AssetConfigSet{}, nil
	case "BorrowConfigSet":
		return &BorrowConfigSet{}, nil
	case "RoleSet":
		return &RoleSet{}, nil
	case "VenueFill":
		return &VenueFill{}, nil
	case "VenueCancel":
		return &VenueCancel{}, nil
	case "FundingIndexUpdate":
		return &FundingIndexUpdate{}, nil
	case "PriceUpdate":
		return &PriceUpdate{}, nil
	case "WalletDeposit":
		return &WalletDeposit{}, nil
	case "WalletWithdraw":
		return &WalletWithdraw{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
