package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. All
// responses carry as_of_sequence so callers can reason about freshness
// relative to the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetDebtState returns the debt ledger entry for a single sub-account.
func (qs *QueryService) GetDebtState(
	ctx context.Context,
	subAccountID uuid.UUID,
) (*DebtStateResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var d DebtStateResponse
	d.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT sub_account_id, project_id, owner_id, collateral_token, asset_token, is_long,
		       debt_principal, accrued_fee, funding_index_last, inflight_debt, inflight_fee,
		       held_collateral, liquidating, last_sequence
		FROM projections.debt_states
		WHERE sub_account_id = $1
	`, subAccountID).Scan(
		&d.SubAccountID, &d.ProjectID, &d.OwnerID, &d.CollateralToken, &d.AssetToken, &d.IsLong,
		&d.DebtPrincipal, &d.AccruedFee, &d.FundingIndexLast, &d.InflightDebt, &d.InflightFee,
		&d.HeldCollateral, &d.Liquidating, &d.LastSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDebtStatesByOwner returns every sub-account debt entry owned by ownerID.
func (qs *QueryService) GetDebtStatesByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
) ([]DebtStateResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sub_account_id, project_id, owner_id, collateral_token, asset_token, is_long,
		       debt_principal, accrued_fee, funding_index_last, inflight_debt, inflight_fee,
		       held_collateral, liquidating, last_sequence
		FROM projections.debt_states
		WHERE owner_id = $1
		ORDER BY sub_account_id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []DebtStateResponse
	for rows.Next() {
		var d DebtStateResponse
		d.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&d.SubAccountID, &d.ProjectID, &d.OwnerID, &d.CollateralToken, &d.AssetToken, &d.IsLong,
			&d.DebtPrincipal, &d.AccruedFee, &d.FundingIndexLast, &d.InflightDebt, &d.InflightFee,
			&d.HeldCollateral, &d.Liquidating, &d.LastSequence,
		); err != nil {
			return nil, err
		}
		states = append(states, d)
	}
	return states, rows.Err()
}

// GetPendingOrders returns the outstanding async orders for a sub-account,
// oldest first.
func (qs *QueryService) GetPendingOrders(
	ctx context.Context,
	subAccountID uuid.UUID,
) ([]PendingOrderResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT order_key, sub_account_id, order_index, category, is_market,
		       debt_delta, collateral_delta, created_at_sec, last_sequence
		FROM projections.pending_orders
		WHERE sub_account_id = $1
		ORDER BY order_index
	`, subAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []PendingOrderResponse
	for rows.Next() {
		var o PendingOrderResponse
		o.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&o.OrderKey, &o.SubAccountID, &o.OrderIndex, &o.Category, &o.IsMarket,
			&o.DebtDelta, &o.CollateralDelta, &o.CreatedAtSec, &o.LastSequence,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetPoolAssets returns the lending pool state for every listed asset.
func (qs *QueryService) GetPoolAssets(ctx context.Context) ([]PoolAssetResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT token, flags, supply, total_amount_out, total_amount_in, borrow_fee_amount, last_sequence
		FROM projections.pool_assets
		ORDER BY token
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []PoolAssetResponse
	for rows.Next() {
		var a PoolAssetResponse
		a.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&a.Token, &a.Flags, &a.Supply, &a.TotalAmountOut,
			&a.TotalAmountIn, &a.BorrowFeeAmount, &a.LastSequence,
		); err != nil {
			return nil, err
		}
		a.Outstanding = a.TotalAmountOut - a.TotalAmountIn
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetFundingHistory returns funding index points for an asset, newest first.
// Cursor pagination: pass the sequence of the last row seen as afterSequence.
func (qs *QueryService) GetFundingHistory(
	ctx context.Context,
	asset string,
	limit int,
	afterSequence *int64,
) ([]FundingHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT asset, sequence, funding_index, timestamp_us
		FROM projections.funding_history
		WHERE asset = $1
	`
	args := []interface{}{asset}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []FundingHistoryResponse
	for rows.Next() {
		var h FundingHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(&h.Asset, &h.Sequence, &h.FundingIndex, &h.TimestampUs); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetEventHistory returns applied events for a partition, newest first,
// with cursor pagination on sequence.
func (qs *QueryService) GetEventHistory(
	ctx context.Context,
	partition string,
	limit int,
	afterSequence *int64,
) ([]EventResponse, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, partition_key, payload, source_sequence,
		       EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM event_log.events
		WHERE partition_key = $1
	`
	args := []interface{}{partition}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.SourceSequence, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetJournalHistory returns double-entry journal rows touching any of an
// owner's accounts, newest first, with cursor pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	ownerID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("owner:%s:%%", ownerID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global double-entry
// invariant (balances sum to zero per asset across all accounts).
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
