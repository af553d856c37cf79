package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ProjectionOutput carries everything the projection worker needs for one
// applied event. The orchestrator bridges between core output and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Partition      string
	Timestamp      int64
	JournalEntries []JournalEntry
	DebtStates     []DebtStateRow
	PoolAssets     []PoolAssetRow
	PendingOrders  []PendingOrderRow
	RemovedOrders  []OrderRef
	FundingPoint   *FundingPoint
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// DebtStateRow is the post-event debt ledger view of one sub-account.
type DebtStateRow struct {
	SubAccountID     string
	ProjectID        int64
	OwnerID          string
	CollateralToken  string
	AssetToken       string
	IsLong           bool
	DebtPrincipal    int64
	AccruedFee       int64
	FundingIndexLast int64
	InflightDebt     int64
	InflightFee      int64
	HeldCollateral   int64
	Liquidating      bool
}

// PoolAssetRow is the post-event state of one pool asset.
type PoolAssetRow struct {
	Token           string
	Flags           uint8
	Supply          int64
	TotalAmountOut  int64
	TotalAmountIn   int64
	BorrowFeeAmount int64
}

// PendingOrderRow is one live order on a sub-account's book.
type PendingOrderRow struct {
	OrderKey        string
	SubAccountID    string
	OrderIndex      uint64
	Category        int32
	IsMarket        bool
	DebtDelta       int64
	CollateralDelta int64
	CreatedAtSec    int64
}

// OrderRef identifies an order resolved off the book (filled or cancelled).
type OrderRef struct {
	OrderKey string
}

// FundingPoint is one funding index observation for an asset.
type FundingPoint struct {
	Asset string
	Index int64
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	for _, d := range output.DebtStates {
		if err := upsertDebtState(ctx, tx, d, output.Sequence); err != nil {
			return fmt.Errorf("debt projection: %w", err)
		}
	}

	for _, p := range output.PoolAssets {
		if err := upsertPoolAsset(ctx, tx, p, output.Sequence); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}
	}

	for _, o := range output.PendingOrders {
		if err := upsertPendingOrder(ctx, tx, o, output.Sequence); err != nil {
			return fmt.Errorf("order projection: %w", err)
		}
	}

	for _, ref := range output.RemovedOrders {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM projections.pending_orders WHERE order_key = $1`, ref.OrderKey,
		); err != nil {
			return fmt.Errorf("order removal: %w", err)
		}
	}

	if fp := output.FundingPoint; fp != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.funding_history (asset, sequence, funding_index, timestamp_us)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (asset, sequence) DO NOTHING
		`, fp.Asset, output.Sequence, fp.Index, output.Timestamp); err != nil {
			return fmt.Errorf("funding history: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection applies one journal entry. Debits increase the
// account balance, credits decrease it, matching the in-memory tracker.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func upsertDebtState(ctx context.Context, tx *sql.Tx, d DebtStateRow, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.debt_states
			(sub_account_id, project_id, owner_id, collateral_token, asset_token, is_long,
			 debt_principal, accrued_fee, funding_index_last, inflight_debt, inflight_fee,
			 held_collateral, liquidating, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (sub_account_id) DO UPDATE SET
			debt_principal = $7, accrued_fee = $8, funding_index_last = $9,
			inflight_debt = $10, inflight_fee = $11, held_collateral = $12,
			liquidating = $13, last_sequence = $14, updated_at = NOW()
	`, d.SubAccountID, d.ProjectID, d.OwnerID, d.CollateralToken, d.AssetToken, d.IsLong,
		d.DebtPrincipal, d.AccruedFee, d.FundingIndexLast, d.InflightDebt, d.InflightFee,
		d.HeldCollateral, d.Liquidating, seq)
	return err
}

func upsertPoolAsset(ctx context.Context, tx *sql.Tx, p PoolAssetRow, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pool_assets
			(token, flags, supply, total_amount_out, total_amount_in, borrow_fee_amount, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (token) DO UPDATE SET
			flags = $2, supply = $3, total_amount_out = $4, total_amount_in = $5,
			borrow_fee_amount = $6, last_sequence = $7, updated_at = NOW()
	`, p.Token, p.Flags, p.Supply, p.TotalAmountOut, p.TotalAmountIn, p.BorrowFeeAmount, seq)
	return err
}

func upsertPendingOrder(ctx context.Context, tx *sql.Tx, o PendingOrderRow, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pending_orders
			(order_key, sub_account_id, order_index, category, is_market,
			 debt_delta, collateral_delta, created_at_sec, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_key) DO UPDATE SET last_sequence = $9
	`, o.OrderKey, o.SubAccountID, o.OrderIndex, o.Category, o.IsMarket,
		o.DebtDelta, o.CollateralDelta, o.CreatedAtSec, seq)
	return err
}

// RebuildProjections rebuilds the balance projection from the event log.
// Domain projections (debt, orders, pool) are rebuilt by replaying the
// event log through the core, not from SQL.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.debt_states`,
		`TRUNCATE projections.pending_orders`,
		`TRUNCATE projections.pool_assets`,
		`TRUNCATE projections.funding_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits increase balances
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Credits decrease balances
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
