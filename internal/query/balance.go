package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WalletBalanceResponse is an owner's internal wallet balance for one asset.
type WalletBalanceResponse struct {
	OwnerID      uuid.UUID `json:"owner_id"`
	Asset        string    `json:"asset"`
	Balance      int64     `json:"balance"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// GetWalletBalance returns an owner's projected wallet balance for one asset.
// Missing rows read as zero, same as a freshly created wallet.
func (qs *QueryService) GetWalletBalance(
	ctx context.Context,
	ownerID uuid.UUID,
	asset string,
) (*WalletBalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	accountPath := fmt.Sprintf("owner:%s:%s", ownerID, asset)
	balance, err := qs.getProjectedBalance(ctx, accountPath)
	if err != nil {
		return nil, err
	}

	return &WalletBalanceResponse{
		OwnerID:      ownerID,
		Asset:        asset,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetWalletBalances returns every non-zero wallet balance an owner holds.
func (qs *QueryService) GetWalletBalances(
	ctx context.Context,
	ownerID uuid.UUID,
) ([]WalletBalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("owner:%s:%%", ownerID)
	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, balance
		FROM projections.balances
		WHERE account_path LIKE $1 AND balance != 0
		ORDER BY account_path
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assetOffset := len(fmt.Sprintf("owner:%s:", ownerID))

	var balances []WalletBalanceResponse
	for rows.Next() {
		var accountPath string
		var balance int64
		if err := rows.Scan(&accountPath, &balance); err != nil {
			return nil, err
		}
		if len(accountPath) <= assetOffset {
			log.Warn().Str("account_path", accountPath).Msg("malformed account path in balances projection")
			continue
		}
		balances = append(balances, WalletBalanceResponse{
			OwnerID:      ownerID,
			Asset:        accountPath[assetOffset:],
			Balance:      balance,
			AsOfSequence: asOfSeq,
		})
	}
	return balances, rows.Err()
}
