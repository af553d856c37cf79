package query

import "github.com/google/uuid"

// DebtStateResponse is a sub-account's debt ledger entry for API queries.
type DebtStateResponse struct {
	SubAccountID     uuid.UUID `json:"sub_account_id"`
	ProjectID        uuid.UUID `json:"project_id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	CollateralToken  string    `json:"collateral_token"`
	AssetToken       string    `json:"asset_token"`
	IsLong           bool      `json:"is_long"`
	DebtPrincipal    int64     `json:"debt_principal"`
	AccruedFee       int64     `json:"accrued_fee"`
	FundingIndexLast int64     `json:"funding_index_last"`
	InflightDebt     int64     `json:"inflight_debt"`
	InflightFee      int64     `json:"inflight_fee"`
	HeldCollateral   int64     `json:"held_collateral"`
	Liquidating      bool      `json:"liquidating"`
	LastSequence     int64     `json:"last_sequence"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// PendingOrderResponse is an outstanding async order for API queries.
type PendingOrderResponse struct {
	OrderKey        string    `json:"order_key"`
	SubAccountID    uuid.UUID `json:"sub_account_id"`
	OrderIndex      uint64    `json:"order_index"`
	Category        int32     `json:"category"`
	IsMarket        bool      `json:"is_market"`
	DebtDelta       int64     `json:"debt_delta"`
	CollateralDelta int64     `json:"collateral_delta"`
	CreatedAtSec    int64     `json:"created_at_sec"`
	LastSequence    int64     `json:"last_sequence"`
	AsOfSequence    int64     `json:"as_of_sequence"`
}

// PoolAssetResponse is the lending pool state for one asset.
// Outstanding is derived as total_amount_out - total_amount_in.
type PoolAssetResponse struct {
	Token           string `json:"token"`
	Flags           uint8  `json:"flags"`
	Supply          int64  `json:"supply"`
	TotalAmountOut  int64  `json:"total_amount_out"`
	TotalAmountIn   int64  `json:"total_amount_in"`
	BorrowFeeAmount int64  `json:"borrow_fee_amount"`
	Outstanding     int64  `json:"outstanding"`
	LastSequence    int64  `json:"last_sequence"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// FundingHistoryResponse is one funding index point for API queries.
type FundingHistoryResponse struct {
	Asset        string `json:"asset"`
	Sequence     int64  `json:"sequence"`
	FundingIndex int64  `json:"funding_index"`
	TimestampUs  int64  `json:"timestamp_us"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventResponse is an applied event from the log for API queries.
type EventResponse struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Partition      string `json:"partition"`
	Payload        []byte `json:"payload"`
	SourceSequence int64  `json:"source_sequence"`
	Timestamp      int64  `json:"timestamp"`
}

// JournalHistoryEntry is a double-entry journal row for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose global balance sum is non-zero.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
