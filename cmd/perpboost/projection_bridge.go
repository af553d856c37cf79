package main

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"PerpBoost/internal/core"
	"PerpBoost/internal/event"
	"PerpBoost/internal/observability"
	"PerpBoost/internal/projection"
)

// projectionBridge enriches core outputs with read-model rows before
// handing them to the projection worker. It reads registry and pool
// state, so drain runs on the core goroutine only.
type projectionBridge struct {
	core    *core.DeterministicCore
	in      <-chan core.CoreOutput
	out     chan<- projection.ProjectionOutput
	metrics *observability.Metrics

	// order keys already projected per sub-account, diffed to find
	// orders resolved off the book
	knownOrders map[uuid.UUID]map[string]bool
}

func newProjectionBridge(
	c *core.DeterministicCore,
	in <-chan core.CoreOutput,
	out chan<- projection.ProjectionOutput,
	metrics *observability.Metrics,
) *projectionBridge {
	return &projectionBridge{
		core:        c,
		in:          in,
		out:         out,
		metrics:     metrics,
		knownOrders: make(map[uuid.UUID]map[string]bool),
	}
}

// drain converts every queued core output. Called after each processed
// event, so the channel holds at most a handful of entries.
func (pb *projectionBridge) drain() {
	for {
		select {
		case output, ok := <-pb.in:
			if !ok {
				return
			}
			pOutput := pb.build(output)
			select {
			case pb.out <- pOutput:
			default:
				pb.metrics.ProjectionDrops.WithLabelValues("worker").Inc()
			}
		default:
			return
		}
	}
}

func (pb *projectionBridge) build(output core.CoreOutput) projection.ProjectionOutput {
	env := output.Envelope
	pOutput := projection.ProjectionOutput{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		Partition: env.Partition,
		Timestamp: env.Timestamp,
	}

	for _, batch := range output.Batches {
		for _, j := range batch.Journals {
			pOutput.JournalEntries = append(pOutput.JournalEntries, projection.JournalEntry{
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				AssetID:       uint16(j.AssetID),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
			})
		}
	}

	switch {
	case env.Partition == "pool":
		pOutput.PoolAssets = pb.poolRows()

	case strings.HasPrefix(env.Partition, "acct:"):
		pb.addAccountRows(&pOutput, env.Partition)
		pOutput.PoolAssets = pb.poolRows()

	case strings.HasPrefix(env.Partition, "funding:"):
		var fi event.FundingIndexUpdate
		if err := json.Unmarshal(env.Payload, &fi); err != nil {
			log.Printf("WARN: funding payload decode seq=%d: %v", env.Sequence, err)
		} else {
			pOutput.FundingPoint = &projection.FundingPoint{Asset: fi.Asset, Index: fi.Index}
		}
	}

	return pOutput
}

func (pb *projectionBridge) poolRows() []projection.PoolAssetRow {
	p := pb.core.Pool()
	tokens := p.Tokens()
	rows := make([]projection.PoolAssetRow, 0, len(tokens))
	for _, token := range tokens {
		st, ok := p.AssetState(token)
		if !ok {
			continue
		}
		rows = append(rows, projection.PoolAssetRow{
			Token:           st.Token,
			Flags:           uint8(st.Flags),
			Supply:          st.Supply,
			TotalAmountOut:  st.TotalAmountOut,
			TotalAmountIn:   st.TotalAmountIn,
			BorrowFeeAmount: st.BorrowFeeAmount,
		})

		pb.metrics.PoolSupply.WithLabelValues(token).Set(float64(st.Supply))
		pb.metrics.PoolOutstanding.WithLabelValues(token).Set(float64(st.TotalAmountOut - st.TotalAmountIn))
		pb.metrics.PoolFeeReserve.WithLabelValues(token).Set(float64(st.BorrowFeeAmount))
	}
	return rows
}

func (pb *projectionBridge) addAccountRows(pOutput *projection.ProjectionOutput, partition string) {
	projectID, ownerID, collateralToken, assetToken, isLong, ok := parseAccountPartition(partition)
	if !ok {
		log.Printf("WARN: malformed account partition: %s", partition)
		return
	}

	sa, found := pb.core.Registry().Resolve(projectID, ownerID, collateralToken, assetToken, isLong)
	if !found {
		// Rejected creates never materialize the account
		return
	}

	pOutput.DebtStates = append(pOutput.DebtStates, projection.DebtStateRow{
		SubAccountID:     sa.ID.String(),
		ProjectID:        sa.ProjectID,
		OwnerID:          sa.OwnerID.String(),
		CollateralToken:  sa.CollateralToken,
		AssetToken:       sa.AssetToken,
		IsLong:           sa.IsLong,
		DebtPrincipal:    sa.Debt.DebtPrincipal,
		AccruedFee:       sa.Debt.AccruedFee,
		FundingIndexLast: sa.Debt.FundingIndexLast,
		InflightDebt:     sa.Debt.InflightDebt,
		InflightFee:      sa.Debt.InflightFee,
		HeldCollateral:   sa.HeldCollateral(),
		Liquidating:      sa.Book.IsLiquidating(),
	})

	current := make(map[string]bool, sa.Book.Len())
	for _, key := range sa.Book.PendingKeys() {
		o, ok := sa.Book.Get(key)
		if !ok {
			continue
		}
		keyStr := key.String()
		current[keyStr] = true
		pOutput.PendingOrders = append(pOutput.PendingOrders, projection.PendingOrderRow{
			OrderKey:        keyStr,
			SubAccountID:    sa.ID.String(),
			OrderIndex:      o.Index,
			Category:        int32(o.Category),
			IsMarket:        o.IsMarket,
			DebtDelta:       o.DebtDelta,
			CollateralDelta: o.CollateralDelta,
			CreatedAtSec:    o.CreatedAt,
		})
	}

	for keyStr := range pb.knownOrders[sa.ID] {
		if !current[keyStr] {
			pOutput.RemovedOrders = append(pOutput.RemovedOrders, projection.OrderRef{OrderKey: keyStr})
		}
	}
	pb.knownOrders[sa.ID] = current
}

// parseAccountPartition splits "acct:<project>:<owner>:<collateral>:<asset>:<side>".
func parseAccountPartition(partition string) (int64, uuid.UUID, string, string, bool, bool) {
	parts := strings.SplitN(partition, ":", 6)
	if len(parts) != 6 || parts[0] != "acct" {
		return 0, uuid.Nil, "", "", false, false
	}
	projectID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, uuid.Nil, "", "", false, false
	}
	ownerID, err := uuid.Parse(parts[2])
	if err != nil {
		return 0, uuid.Nil, "", "", false, false
	}
	if parts[5] != "long" && parts[5] != "short" {
		return 0, uuid.Nil, "", "", false, false
	}
	return projectID, ownerID, parts[3], parts[4], parts[5] == "long", true
}
