// Command bootstrap publishes a market bootstrap file as maintainer
// commands on NATS. The aggregator consumes them like any other admin
// command, so bootstrap state flows through the event log and survives
// replay. Sequences continue from the given per-partition cursors; for
// a fresh deployment both start at 0.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"PerpBoost/internal/config"
	"PerpBoost/internal/ingestion"
	"PerpBoost/internal/pool"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

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

type poolFlagsJSON struct {
	EventID     string `json:"event_id"`
	Token       string `json:"token"`
	Flags       uint32 `json:"flags"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func main() {
	var (
		bootstrapPath = flag.String("file", "bootstrap.yaml", "path to the market bootstrap file")
		natsURL       = flag.String("nats", "nats://localhost:4222", "NATS server URL")
		adminIDArg    = flag.String("admin-id", "", "maintainer UUID used as the command caller (required)")
		adminSeq      = flag.Int64("admin-seq", 0, "next sequence on the admin partition")
		poolSeq       = flag.Int64("pool-seq", 0, "next sequence on the pool partition")
	)
	flag.Parse()

	if *adminIDArg == "" {
		fmt.Fprintln(os.Stderr, "missing -admin-id")
		flag.Usage()
		os.Exit(1)
	}
	adminID, err := uuid.Parse(*adminIDArg)
	if err != nil {
		log.Fatalf("FATAL: parse admin-id: %v", err)
	}

	boot, err := config.LoadBootstrap(*bootstrapPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	nc, js, err := ingestion.ConnectNATS(*natsURL)
	if err != nil {
		log.Fatalf("FATAL: connect NATS: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure streams: %v", err)
	}

	published, err := publishBootstrap(ctx, js, boot, adminID, *adminSeq, *poolSeq)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Printf("INFO: published %d bootstrap commands from %s", published, *bootstrapPath)
}

func publishBootstrap(
	ctx context.Context,
	js jetstream.JetStream,
	boot *config.Bootstrap,
	adminID uuid.UUID,
	adminSeq, poolSeq int64,
) (int, error) {
	now := time.Now().UnixMicro()
	published := 0

	publish := func(subject string, cmd any) error {
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", subject, err)
		}
		if _, err := js.Publish(ctx, subject, data); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		published++
		return nil
	}

	for _, p := range boot.Projects {
		marketTimeout := p.MarketOrderTimeoutSec
		if marketTimeout == 0 {
			marketTimeout = config.DefaultMarketOrderTimeoutSec
		}
		limitTimeout := p.LimitOrderTimeoutSec
		if limitTimeout == 0 {
			limitTimeout = config.DefaultLimitOrderTimeoutSec
		}

		cmd := projectConfigSetJSON{
			EventID: uuid.New().String(),
			Caller:  adminID.String(),
			Project: projectConfigJSON{
				ProjectID:             p.ProjectID,
				VenueID:               p.VenueID,
				ReferralCode:          p.ReferralCode,
				MarketOrderTimeoutSec: marketTimeout,
				LimitOrderTimeoutSec:  limitTimeout,
				FundingAsset:          p.FundingAsset,
			},
			Sequence:    adminSeq,
			TimestampUs: now,
		}
		if err := publish("perpboost.cmd.admin.project.bootstrap", cmd); err != nil {
			return published, err
		}
		adminSeq++

		for _, a := range p.Assets {
			assetCmd := assetConfigSetJSON{
				EventID:   uuid.New().String(),
				Caller:    adminID.String(),
				ProjectID: p.ProjectID,
				Token:     a.Token,
				Config: assetConfigJSON{
					BoostFeeRate:            a.BoostFeeRate,
					InitialMarginRate:       a.InitialMarginRate,
					MaintenanceMarginRate:   a.MaintenanceMarginRate,
					LiquidationFeeRate:      a.LiquidationFeeRate,
					ReferenceOracle:         a.ReferenceOracle,
					ReferencePriceDeviation: a.ReferencePriceDeviation,
				},
				Sequence:    adminSeq,
				TimestampUs: now,
			}
			if err := publish("perpboost.cmd.admin.asset.bootstrap", assetCmd); err != nil {
				return published, err
			}
			adminSeq++

			class := config.AssetClassNormal
			if a.AssetClass == "virtual" {
				class = config.AssetClassVirtual
			}
			borrowCmd := borrowConfigSetJSON{
				EventID:   uuid.New().String(),
				Caller:    adminID.String(),
				ProjectID: p.ProjectID,
				Token:     a.Token,
				Config: borrowConfigJSON{
					AssetClass: int32(class),
					Cap:        a.BorrowCap,
				},
				Sequence:    adminSeq,
				TimestampUs: now,
			}
			if err := publish("perpboost.cmd.admin.borrow.bootstrap", borrowCmd); err != nil {
				return published, err
			}
			adminSeq++
		}
	}

	for _, a := range boot.Pool {
		cmd := poolFlagsJSON{
			EventID:     uuid.New().String(),
			Token:       a.Token,
			Flags:       uint32(assetFlags(a)),
			Sequence:    poolSeq,
			TimestampUs: now,
		}
		if err := publish("perpboost.cmd.pool.flags.bootstrap", cmd); err != nil {
			return published, err
		}
		poolSeq++
	}

	return published, nil
}

func assetFlags(a config.BootstrapAsset) pool.Flags {
	var f pool.Flags
	if a.Enabled {
		f |= pool.FlagEnabled
	}
	if a.Borrowable {
		f |= pool.FlagBorrowable
	}
	if a.Repayable {
		f |= pool.FlagRepayable
	}
	if a.Depositable {
		f |= pool.FlagDepositable
	}
	if a.Withdrawable {
		f |= pool.FlagWithdrawable
	}
	return f
}
