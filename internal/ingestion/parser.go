package ingestion

import (
	"encoding/json"
	"fmt"

	"PerpBoost/internal/config"
	"PerpBoost/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and converts raw events
// before handing them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PoolDeposit":
		return parsePoolDeposit(raw.Data)
	case "PoolWithdraw":
		return parsePoolWithdraw(raw.Data)
	case "PoolSetFlags":
		return parsePoolSetFlags(raw.Data)
	case "WalletDeposit":
		return parseWalletDeposit(raw.Data)
	case "WalletWithdraw":
		return parseWalletWithdraw(raw.Data)
	case "SubAccountCreate":
		return parseSubAccountCreate(raw.Data)
	case "PositionOpen":
		return parsePositionOpen(raw.Data)
	case "PositionClose":
		return parsePositionClose(raw.Data)
	case "AccountWithdraw":
		return parseAccountWithdraw(raw.Data)
	case "OrderCancel":
		return parseOrderCancel(raw.Data)
	case "OrderCancelTimeout":
		return parseOrderCancelTimeout(raw.Data)
	case "PositionLiquidate":
		return parsePositionLiquidate(raw.Data)
	case "ConfigRefresh":
		return parseConfigRefresh(raw.Data)
	case "ProjectConfigSet":
		return parseProjectConfigSet(raw.Data)
	case "AssetConfigSet":
		return parseAssetConfigSet(raw.Data)
	case "BorrowConfigSet":
		return parseBorrowConfigSet(raw.Data)
	case "RoleSet":
		return parseRoleSet(raw.Data)
	case "VenueFill":
		return parseVenueFill(raw.Data)
	case "VenueCancel":
		return parseVenueCancel(raw.Data)
	case "FundingIndexUpdate":
		return parseFundingIndexUpdate(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type tupleJSON struct {
	ProjectID       int64  `json:"project_id"`
	OwnerID         string `json:"owner_id"`
	CollateralToken string `json:"collateral_token"`
	AssetToken      string `json:"asset_token"`
	IsLong          bool   `json:"is_long"`
}

func (j tupleJSON) toTuple() (event.Tuple, error) {
	ownerID, err := uuid.Parse(j.OwnerID)
	if err != nil {
		return event.Tuple{}, fmt.Errorf("parse owner_id: %w", err)
	}
	return event.Tuple{
		ProjectID:       j.ProjectID,
		OwnerID:         ownerID,
		CollateralToken: j.CollateralToken,
		AssetToken:      j.AssetToken,
		IsLong:          j.IsLong,
	}, nil
}

type poolMoveJSON struct {
	EventID     string `json:"event_id"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePoolDeposit(data []byte) (*event.PoolDeposit, error) {
	var j poolMoveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolDeposit: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.PoolDeposit{
		EventID:   eventID,
		Token:     j.Token,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parsePoolWithdraw(data []byte) (*event.PoolWithdraw, error) {
	var j poolMoveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolWithdraw: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.PoolWithdraw{
		EventID:   eventID,
		Token:     j.Token,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type poolFlagsJSON struct {
	EventID     string `json:"event_id"`
	Token       string `json:"token"`
	Flags       uint32 `json:"flags"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePoolSetFlags(data []byte) (*event.PoolSetFlags, error) {
	var j poolFlagsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolSetFlags: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.PoolSetFlags{
		EventID:   eventID,
		Token:     j.Token,
		Flags:     j.Flags,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type walletMoveJSON struct {
	EventID     string `json:"event_id"`
	OwnerID     string `json:"owner_id"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWalletDeposit(data []byte) (*event.WalletDeposit, error) {
	var j walletMoveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletDeposit: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	ownerID, err := uuid.Parse(j.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner_id: %w", err)
	}
	return &event.WalletDeposit{
		EventID:   eventID,
		OwnerID:   ownerID,
		Token:     j.Token,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseWalletWithdraw(data []byte) (*event.WalletWithdraw, error) {
	var j walletMoveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletWithdraw: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	ownerID, err := uuid.Parse(j.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner_id: %w", err)
	}
	return &event.WalletWithdraw{
		EventID:   eventID,
		OwnerID:   ownerID,
		Token:     j.Token,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type accountCommandJSON struct {
	EventID     string    `json:"event_id"`
	Caller      string    `json:"caller"`
	Tuple       tupleJSON `json:"tuple"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`

	CollateralIn       int64    `json:"collateral_in,omitempty"`
	BorrowAmount       int64    `json:"borrow_amount,omitempty"`
	SizeDeltaUsd       int64    `json:"size_delta_usd,omitempty"`
	CollateralDeltaUsd int64    `json:"collateral_delta_usd,omitempty"`
	IsMarket           bool     `json:"is_market,omitempty"`
	AcceptablePrice    int64    `json:"acceptable_price,omitempty"`
	OrderKeys          []string `json:"order_keys,omitempty"`
}

func (j accountCommandJSON) header() (uuid.UUID, uuid.UUID, event.Tuple, error) {
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return uuid.Nil, uuid.Nil, event.Tuple{}, fmt.Errorf("parse event_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return uuid.Nil, uuid.Nil, event.Tuple{}, fmt.Errorf("parse caller: %w", err)
	}
	tuple, err := j.Tuple.toTuple()
	if err != nil {
		return uuid.Nil, uuid.Nil, event.Tuple{}, err
	}
	return eventID, caller, tuple, nil
}

func parseSubAccountCreate(data []byte) (*event.SubAccountCreate, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SubAccountCreate: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.SubAccountCreate{
		EventID:   eventID,
		Caller:    caller,
		Tuple:     tuple,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parsePositionOpen(data []byte) (*event.PositionOpen, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionOpen: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.PositionOpen{
		EventID:         eventID,
		Caller:          caller,
		Tuple:           tuple,
		CollateralIn:    j.CollateralIn,
		BorrowAmount:    j.BorrowAmount,
		SizeDeltaUsd:    j.SizeDeltaUsd,
		IsMarket:        j.IsMarket,
		AcceptablePrice: j.AcceptablePrice,
		Sequence:        j.Sequence,
		Timestamp:       j.TimestampUs,
	}, nil
}

func parsePositionClose(data []byte) (*event.PositionClose, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionClose: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.PositionClose{
		EventID:            eventID,
		Caller:             caller,
		Tuple:              tuple,
		SizeDeltaUsd:       j.SizeDeltaUsd,
		CollateralDeltaUsd: j.CollateralDeltaUsd,
		IsMarket:           j.IsMarket,
		AcceptablePrice:    j.AcceptablePrice,
		Sequence:           j.Sequence,
		Timestamp:          j.TimestampUs,
	}, nil
}

func parseAccountWithdraw(data []byte) (*event.AccountWithdraw, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccountWithdraw: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.AccountWithdraw{
		EventID:   eventID,
		Caller:    caller,
		Tuple:     tuple,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseOrderCancel(data []byte) (*event.OrderCancel, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderCancel: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.OrderCancel{
		EventID:   eventID,
		Caller:    caller,
		Tuple:     tuple,
		OrderKeys: j.OrderKeys,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseOrderCancelTimeout(data []byte) (*event.OrderCancelTimeout, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OrderCancelTimeout: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.OrderCancelTimeout{
		EventID:   eventID,
		Caller:    caller,
		Tuple:     tuple,
		OrderKeys: j.OrderKeys,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parsePositionLiquidate(data []byte) (*event.PositionLiquidate, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionLiquidate: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.PositionLiquidate{
		EventID:         eventID,
		Caller:          caller,
		Tuple:           tuple,
		AcceptablePrice: j.AcceptablePrice,
		Sequence:        j.Sequence,
		Timestamp:       j.TimestampUs,
	}, nil
}

func parseConfigRefresh(data []byte) (*event.ConfigRefresh, error) {
	var j accountCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigRefresh: %w", err)
	}
	eventID, caller, tuple, err := j.header()
	if err != nil {
		return nil, err
	}
	return &event.ConfigRefresh{
		EventID:   eventID,
		Caller:    caller,
		Tuple:     tuple,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type projectConfigJSON struct {
	ProjectID             int64  `json:"project_id"`
	VenueID               string `json:"venue_id"`
	ReferralCode          string `json:"referral_code"`
	MarketOrderTimeoutSec int64  `json:"market_order_timeout_sec"`
	LimitOrderTimeoutSec  int64  `json:"limit_order_timeout_sec"`
	FundingAsset          string `json:"funding_asset"`
}

type projectConfigSetJSON struct {
	EventID     string            `json:"event_id"`
	Caller      string            `json:"caller"`
	Project     projectConfigJSON `json:"project"`
	Sequence    int64             `json:"sequence"`
	TimestampUs int64             `json:"timestamp_us"`
}

func parseProjectConfigSet(data []byte) (*event.ProjectConfigSet, error) {
	var j projectConfigSetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProjectConfigSet: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.ProjectConfigSet{
		EventID: eventID,
		Caller:  caller,
		Project: config.ProjectConfig{
			ProjectID:             j.Project.ProjectID,
			VenueID:               j.Project.VenueID,
			ReferralCode:          j.Project.ReferralCode,
			MarketOrderTimeoutSec: j.Project.MarketOrderTimeoutSec,
			LimitOrderTimeoutSec:  j.Project.LimitOrderTimeoutSec,
			FundingAsset:          j.Project.FundingAsset,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type assetConfigJSON struct {
	BoostFeeRate            int64  `json:"boost_fee_rate"`
	InitialMarginRate       int64  `json:"initial_margin_rate"`
	MaintenanceMarginRate   int64  `json:"maintenance_margin_rate"`
	LiquidationFeeRate      int64  `json:"liquidation_fee_rate"`
	ReferenceOracle         string `json:"reference_oracle"`
	ReferencePriceDeviation int64  `json:"reference_price_deviation"`
}

type assetConfigSetJSON struct {
	EventID     string          `json:"event_id"`
	Caller      string          `json:"caller"`
	ProjectID   int64           `json:"project_id"`
	Token       string          `json:"token"`
	Config      assetConfigJSON `json:"config"`
	Sequence    int64           `json:"sequence"`
	TimestampUs int64           `json:"timestamp_us"`
}

func parseAssetConfigSet(data []byte) (*event.AssetConfigSet, error) {
	var j assetConfigSetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AssetConfigSet: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.AssetConfigSet{
		EventID:   eventID,
		Caller:    caller,
		ProjectID: j.ProjectID,
		Token:     j.Token,
		Config: config.AssetConfig{
			BoostFeeRate:            j.Config.BoostFeeRate,
			InitialMarginRate:       j.Config.InitialMarginRate,
			MaintenanceMarginRate:   j.Config.MaintenanceMarginRate,
			LiquidationFeeRate:      j.Config.LiquidationFeeRate,
			ReferenceOracle:         j.Config.ReferenceOracle,
			ReferencePriceDeviation: j.Config.ReferencePriceDeviation,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type borrowConfigJSON struct {
	AssetClass int32 `json:"asset_class"`
	Cap        int64 `json:"cap"`
}

type borrowConfigSetJSON struct {
	EventID     string           `json:"event_id"`
	Caller      string           `json:"caller"`
	ProjectID   int64            `json:"project_id"`
	Token       string           `json:"token"`
	Config      borrowConfigJSON `json:"config"`
	Sequence    int64            `json:"sequence"`
	TimestampUs int64            `json:"timestamp_us"`
}

func parseBorrowConfigSet(data []byte) (*event.BorrowConfigSet, error) {
	var j borrowConfigSetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BorrowConfigSet: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.BorrowConfigSet{
		EventID:   eventID,
		Caller:    caller,
		ProjectID: j.ProjectID,
		Token:     j.Token,
		Config: config.BorrowConfig{
			AssetClass: config.AssetClass(j.Config.AssetClass),
			Cap:        j.Config.Cap,
		},
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type roleSetJSON struct {
	EventID     string `json:"event_id"`
	Caller      string `json:"caller"`
	Target      string `json:"target"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRoleSet(data []byte) (*event.RoleSet, error) {
	var j roleSetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RoleSet: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	target, err := uuid.Parse(j.Target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if err := event.ValidateRole(j.Role); err != nil {
		return nil, err
	}
	return &event.RoleSet{
		EventID:   eventID,
		Caller:    caller,
		Target:    target,
		Role:      j.Role,
		Enabled:   j.Enabled,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type venueFillJSON struct {
	EventID     string    `json:"event_id"`
	Tuple       tupleJSON `json:"tuple"`
	OrderKey    string    `json:"order_key"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`

	ActualBorrowed     int64  `json:"actual_borrowed"`
	ReturnedCollateral int64  `json:"returned_collateral"`
	SecondaryToken     string `json:"secondary_token,omitempty"`
	SecondaryAmount    int64  `json:"secondary_amount,omitempty"`

	PositionSizeUsd       int64 `json:"position_size_usd"`
	PositionCollateralUsd int64 `json:"position_collateral_usd"`
	PositionAveragePrice  int64 `json:"position_average_price"`
}

func parseVenueFill(data []byte) (*event.VenueFill, error) {
	var j venueFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VenueFill: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	tuple, err := j.Tuple.toTuple()
	if err != nil {
		return nil, err
	}
	return &event.VenueFill{
		EventID:               eventID,
		Tuple:                 tuple,
		OrderKey:              j.OrderKey,
		ActualBorrowed:        j.ActualBorrowed,
		ReturnedCollateral:    j.ReturnedCollateral,
		SecondaryToken:        j.SecondaryToken,
		SecondaryAmount:       j.SecondaryAmount,
		PositionSizeUsd:       j.PositionSizeUsd,
		PositionCollateralUsd: j.PositionCollateralUsd,
		PositionAveragePrice:  j.PositionAveragePrice,
		Sequence:              j.Sequence,
		Timestamp:             j.TimestampUs,
	}, nil
}

type venueCancelJSON struct {
	EventID     string    `json:"event_id"`
	Tuple       tupleJSON `json:"tuple"`
	OrderKey    string    `json:"order_key"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func parseVenueCancel(data []byte) (*event.VenueCancel, error) {
	var j venueCancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VenueCancel: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	tuple, err := j.Tuple.toTuple()
	if err != nil {
		return nil, err
	}
	return &event.VenueCancel{
		EventID:   eventID,
		Tuple:     tuple,
		OrderKey:  j.OrderKey,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type fundingIndexJSON struct {
	EventID     string `json:"event_id"`
	Asset       string `json:"asset"`
	Index       int64  `json:"index"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFundingIndexUpdate(data []byte) (*event.FundingIndexUpdate, error) {
	var j fundingIndexJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingIndexUpdate: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.FundingIndexUpdate{
		EventID:   eventID,
		Asset:     j.Asset,
		Index:     j.Index,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type priceUpdateJSON struct {
	EventID     string `json:"event_id"`
	Token       string `json:"token"`
	Price       int64  `json:"price"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	eventID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.PriceUpdate{
		EventID:   eventID,
		Token:     j.Token,
		Price:     j.Price,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}
