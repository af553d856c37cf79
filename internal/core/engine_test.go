package core_test

import (
	"errors"
	"fmt"
	"testing"

	"PerpBoost/internal/config"
	"PerpBoost/internal/core"
	"PerpBoost/internal/domain"
	"PerpBoost/internal/event"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/order"
	"PerpBoost/internal/pool"
	"PerpBoost/internal/registry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const unit = int64(1_000_000_000)

var (
	adminID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	ownerID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

func evtID(n int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("engine-test-%d", n)))
}

func micros(sec int64) int64 { return sec * 1_000_000 }

func tuple() event.Tuple {
	return event.Tuple{ProjectID: 1, OwnerID: ownerID, CollateralToken: "WETH", AssetToken: "ETH", IsLong: true}
}

func newCore(t *testing.T) (*core.DeterministicCore, chan core.CoreOutput) {
	t.Helper()
	persist := make(chan core.CoreOutput, 256)
	projection := make(chan core.CoreOutput, 256)
	return core.NewDeterministicCore(adminID, 1, persist, projection, nil, nil, nil, zerolog.Nop()), persist
}

// baseScript configures the system, funds the pool and the owner wallet,
// and seeds prices. Partition sequences are strict per partition.
func baseScript() []event.Event {
	return []event.Event{
		&event.ProjectConfigSet{EventID: evtID(1), Caller: adminID, Project: config.ProjectConfig{
			ProjectID:             1,
			VenueID:               "gmx-v2-arbitrum",
			MarketOrderTimeoutSec: config.DefaultMarketOrderTimeoutSec,
			LimitOrderTimeoutSec:  config.DefaultLimitOrderTimeoutSec,
			FundingAsset:          "ETH",
		}, Sequence: 0, Timestamp: micros(100)},
		&event.AssetConfigSet{EventID: evtID(2), Caller: adminID, ProjectID: 1, Token: "ETH", Config: config.AssetConfig{
			BoostFeeRate:          2_000,
			InitialMarginRate:     10_000,
			MaintenanceMarginRate: 5_000,
			LiquidationFeeRate:    1_000,
		}, Sequence: 1, Timestamp: micros(101)},
		&event.BorrowConfigSet{EventID: evtID(3), Caller: adminID, ProjectID: 1, Token: "ETH", Config: config.BorrowConfig{
			AssetClass: config.AssetClassNormal,
			Cap:        100 * unit,
		}, Sequence: 2, Timestamp: micros(102)},

		&event.PoolSetFlags{EventID: evtID(4), Token: "WETH", Flags: uint32(pool.FlagsAll), Sequence: 0, Timestamp: micros(103)},
		&event.PoolSetFlags{EventID: evtID(5), Token: "USDC", Flags: uint32(pool.FlagsAll), Sequence: 1, Timestamp: micros(104)},
		&event.PoolDeposit{EventID: evtID(6), Token: "WETH", Amount: 10 * unit, Sequence: 2, Timestamp: micros(105)},

		&event.WalletDeposit{EventID: evtID(7), OwnerID: ownerID, Token: "WETH", Amount: 5 * unit, Sequence: 0, Timestamp: micros(106)},

		&event.PriceUpdate{EventID: evtID(8), Token: "WETH", Price: 2000 * unit, Sequence: 1, Timestamp: micros(107)},
		&event.PriceUpdate{EventID: evtID(9), Token: "USDC", Price: 1 * unit, Sequence: 1, Timestamp: micros(108)},
		&event.PriceUpdate{EventID: evtID(10), Token: "ETH", Price: 2000 * unit, Sequence: 1, Timestamp: micros(109)},
	}
}

// tradeScript opens a boosted position, fills it, closes it, fills the
// close, and empties the sub-account. Order keys are derived from the
// deterministic sub-account ID and the book's index counter.
func tradeScript() []event.Event {
	subID := registry.SubAccountID(1, ownerID, "WETH", "ETH", true)
	openKey := order.DeriveKey(subID, 1)
	closeKey := order.DeriveKey(subID, 2)

	return []event.Event{
		&event.SubAccountCreate{EventID: evtID(20), Caller: ownerID, Tuple: tuple(), Sequence: 0, Timestamp: micros(200)},
		&event.PositionOpen{EventID: evtID(21), Caller: ownerID, Tuple: tuple(),
			CollateralIn: 1 * unit, BorrowAmount: 1_500_000_000, SizeDeltaUsd: 5000 * unit,
			IsMarket: true, Sequence: 1, Timestamp: micros(201)},
		&event.VenueFill{EventID: evtID(22), Tuple: tuple(), OrderKey: openKey.String(),
			ActualBorrowed:        1_500_000_000,
			PositionSizeUsd:       5000 * unit,
			PositionCollateralUsd: 4940 * unit,
			PositionAveragePrice:  2000 * unit,
			Sequence:              2, Timestamp: micros(202)},
		&event.PositionClose{EventID: evtID(23), Caller: ownerID, Tuple: tuple(),
			SizeDeltaUsd: 5000 * unit, CollateralDeltaUsd: 4940 * unit,
			IsMarket: true, Sequence: 3, Timestamp: micros(203)},
		&event.VenueFill{EventID: evtID(24), Tuple: tuple(), OrderKey: closeKey.String(),
			ReturnedCollateral: 2_400_000_000,
			Sequence:           4, Timestamp: micros(204)},
		&event.AccountWithdraw{EventID: evtID(25), Caller: ownerID, Tuple: tuple(), Sequence: 5, Timestamp: micros(205)},
	}
}

func runScript(t *testing.T, c *core.DeterministicCore, events []event.Event) {
	t.Helper()
	for _, evt := range events {
		if err := c.ProcessEvent(evt); err != nil {
			t.Fatalf("ProcessEvent(%s): %v", evt.EventType(), err)
		}
	}
}

func TestProcessEvent_FullTradeLifecycle(t *testing.T) {
	c, persist := newCore(t)
	runScript(t, c, baseScript())
	runScript(t, c, tradeScript())

	wethID := ledger.RegisterAsset("WETH")

	// The pool recovered its principal and kept the boost fee.
	st, ok := c.Pool().AssetState("WETH")
	if !ok {
		t.Fatal("WETH not registered in pool")
	}
	if st.Supply != 10*unit {
		t.Errorf("pool supply = %d, want %d", st.Supply, 10*unit)
	}
	if got := c.Balances().GetPoolFeeReserve(wethID); got != 30_000_000 {
		t.Errorf("fee reserve = %d, want 30000000", got)
	}
	if got := c.Pool().OutstandingDebt("WETH"); got != 0 {
		t.Errorf("outstanding debt = %d, want 0", got)
	}

	// Owner: 5 deposited, 1 attached, 2.4 returned of which 1.5 repaid.
	if got := c.Balances().GetOwnerBalance(ownerID, wethID); got != 4_900_000_000 {
		t.Errorf("owner balance = %d, want 4900000000", got)
	}

	sa, ok := c.Registry().Resolve(1, ownerID, "WETH", "ETH", true)
	if !ok {
		t.Fatal("sub-account not materialized")
	}
	if !sa.Debt.IsZero() {
		t.Errorf("debt not cleared: %+v", sa.Debt)
	}
	if sa.Book.Len() != 0 {
		t.Errorf("pending orders = %d, want 0", sa.Book.Len())
	}

	// The persist stream is a strictly sequential hash chain.
	close(persist)
	var prev *event.EventEnvelope
	for out := range persist {
		env := out.Envelope
		if prev != nil {
			if env.Sequence != prev.Sequence+1 {
				t.Errorf("sequence jump: %d -> %d", prev.Sequence, env.Sequence)
			}
			if env.PrevHash != prev.StateHash {
				t.Errorf("hash chain broken at sequence %d", env.Sequence)
			}
		}
		prev = env
	}
	if prev == nil {
		t.Fatal("no outputs persisted")
	}
}

func TestProcessEvent_DeterministicReplay(t *testing.T) {
	c1, _ := newCore(t)
	runScript(t, c1, baseScript())
	runScript(t, c1, tradeScript())

	c2, _ := newCore(t)
	runScript(t, c2, baseScript())
	runScript(t, c2, tradeScript())

	if c1.GetStateHash() != c2.GetStateHash() {
		t.Error("identical event logs produced different state hashes")
	}
	if c1.GetSequence() != c2.GetSequence() {
		t.Errorf("sequence mismatch: %d vs %d", c1.GetSequence(), c2.GetSequence())
	}
}

func TestProcessEvent_DuplicateIsNoop(t *testing.T) {
	c, _ := newCore(t)
	runScript(t, c, baseScript())

	before := c.GetStateHash()
	seqBefore := c.GetSequence()

	// Replay the last base event verbatim.
	dup := baseScript()[len(baseScript())-1]
	if err := c.ProcessEvent(dup); err != nil {
		t.Fatalf("duplicate replay: %v", err)
	}

	if c.GetStateHash() != before {
		t.Error("duplicate event mutated the state hash")
	}
	if c.GetSequence() != seqBefore {
		t.Error("duplicate event consumed a sequence number")
	}
}

func TestProcessEvent_RejectedCommandConsumesSlot(t *testing.T) {
	c, _ := newCore(t)
	runScript(t, c, baseScript())

	// Oversized open: IM check fails, no state mutation.
	err := c.ProcessEvent(&event.PositionOpen{EventID: evtID(40), Caller: ownerID, Tuple: tuple(),
		CollateralIn: 1 * unit, BorrowAmount: 1_500_000_000, SizeDeltaUsd: 100_000 * unit,
		IsMarket: true, Sequence: 0, Timestamp: micros(300)})
	if !errors.Is(err, domain.ErrImMarginUnsafe) {
		t.Fatalf("err = %v, want ErrImMarginUnsafe", err)
	}

	wethID := ledger.RegisterAsset("WETH")
	if got := c.Balances().GetOwnerBalance(ownerID, wethID); got != 5*unit {
		t.Errorf("owner balance mutated by rejected open: %d", got)
	}

	// The rejected command consumed its partition slot: the next command
	// on the same partition carries the next source sequence.
	err = c.ProcessEvent(&event.SubAccountCreate{EventID: evtID(41), Caller: ownerID, Tuple: tuple(), Sequence: 1, Timestamp: micros(301)})
	if err != nil {
		t.Fatalf("follow-up event after rejection: %v", err)
	}
}

func TestProcessEvent_OutOfOrderRejected(t *testing.T) {
	c, _ := newCore(t)
	runScript(t, c, baseScript())

	err := c.ProcessEvent(&event.SubAccountCreate{EventID: evtID(50), Caller: ownerID, Tuple: tuple(), Sequence: 3, Timestamp: micros(400)})
	if err == nil {
		t.Fatal("expected sequence gap rejection")
	}
}

func TestProcessEvent_UnauthorizedCallerRejected(t *testing.T) {
	c, _ := newCore(t)
	runScript(t, c, baseScript())

	intruder := uuid.MustParse("aaaaaaaa-0000-0000-0000-00000000000f")
	err := c.ProcessEvent(&event.ProjectConfigSet{EventID: evtID(60), Caller: intruder, Project: config.ProjectConfig{
		ProjectID:             2,
		VenueID:               "gmx-v2-arbitrum",
		MarketOrderTimeoutSec: 120,
		LimitOrderTimeoutSec:  3600,
		FundingAsset:          "ETH",
	}, Sequence: 3, Timestamp: micros(500)})
	if !errors.Is(err, domain.ErrUnauthorizedCaller) {
		t.Fatalf("err = %v, want ErrUnauthorizedCaller", err)
	}
}

func TestProcessEvent_KeeperCancelsTimedOutOrder(t *testing.T) {
	c, _ := newCore(t)
	runScript(t, c, baseScript())

	keeperID := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003")
	if err := c.ProcessEvent(&event.RoleSet{EventID: evtID(70), Caller: adminID, Target: keeperID,
		Role: event.RoleKeeper, Enabled: true, Sequence: 3, Timestamp: micros(600)}); err != nil {
		t.Fatalf("RoleSet: %v", err)
	}

	if err := c.ProcessEvent(&event.PositionOpen{EventID: evtID(71), Caller: ownerID, Tuple: tuple(),
		CollateralIn: 1 * unit, BorrowAmount: 1_500_000_000, SizeDeltaUsd: 5000 * unit,
		IsMarket: true, Sequence: 0, Timestamp: micros(1000)}); err != nil {
		t.Fatalf("open: %v", err)
	}

	subID := registry.SubAccountID(1, ownerID, "WETH", "ETH", true)
	key := order.DeriveKey(subID, 1)

	// Market timeout is 120s: at t=1000+120 the order is cancellable.
	if err := c.ProcessEvent(&event.OrderCancelTimeout{EventID: evtID(72), Caller: keeperID, Tuple: tuple(),
		OrderKeys: []string{key.String()}, Sequence: 1, Timestamp: micros(1120)}); err != nil {
		t.Fatalf("cancel timeout: %v", err)
	}

	sa, _ := c.Registry().Resolve(1, ownerID, "WETH", "ETH", true)
	if sa.Book.Len() != 0 {
		t.Errorf("pending orders = %d, want 0", sa.Book.Len())
	}

	// The escrow plus attached collateral covered the full principal;
	// the owner eats only the boost fee.
	wethID := ledger.RegisterAsset("WETH")
	if got := c.Balances().GetOwnerBalance(ownerID, wethID); got != 4_970_000_000 {
		t.Errorf("owner balance = %d, want 4970000000", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c1, _ := newCore(t)
	runScript(t, c1, baseScript())
	runScript(t, c1, tradeScript())

	snap := c1.CreateSnapshotState()

	c2, _ := newCore(t)
	c2.RestoreFromSnapshot(snap)

	if c2.GetStateHash() != c1.GetStateHash() {
		t.Error("restored chain tip differs")
	}
	if c2.GetSequence() != c1.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", c2.GetSequence(), c1.GetSequence())
	}

	sa, ok := c2.Registry().Resolve(1, ownerID, "WETH", "ETH", true)
	if !ok {
		t.Fatal("sub-account missing after restore")
	}
	if !sa.Debt.IsZero() {
		t.Errorf("restored debt: %+v", sa.Debt)
	}

	wethID := ledger.RegisterAsset("WETH")
	if got := c2.Balances().GetOwnerBalance(ownerID, wethID); got != 4_900_000_000 {
		t.Errorf("restored owner balance = %d, want 4900000000", got)
	}

	// Both cores accept the same continuation event and stay in lockstep.
	next := &event.WalletWithdraw{EventID: evtID(80), OwnerID: ownerID, Token: "WETH", Amount: 1 * unit, Sequence: 1, Timestamp: micros(900)}
	if err := c1.ProcessEvent(next); err != nil {
		t.Fatalf("continuation on source core: %v", err)
	}
	if err := c2.ProcessEvent(next); err != nil {
		t.Fatalf("continuation on restored core: %v", err)
	}
	if c1.GetStateHash() != c2.GetStateHash() {
		t.Error("cores diverged after restore")
	}
}
