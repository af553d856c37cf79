package order_test

import (
	"errors"
	"testing"

	"PerpBoost/internal/domain"
	"PerpBoost/internal/order"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Status transitions
// ============================================================================

func TestStatus_Transitions(t *testing.T) {
	if !order.StatusPending.CanTransitionTo(order.StatusFilled) {
		t.Error("Pending -> Filled should be allowed")
	}
	if !order.StatusPending.CanTransitionTo(order.StatusCancelled) {
		t.Error("Pending -> Cancelled should be allowed")
	}
	if order.StatusFilled.CanTransitionTo(order.StatusPending) {
		t.Error("Filled is terminal")
	}
	if order.StatusCancelled.CanTransitionTo(order.StatusFilled) {
		t.Error("Cancelled is terminal")
	}
}

// ============================================================================
// Test: Key derivation
// ============================================================================

func TestDeriveKey_Deterministic(t *testing.T) {
	subID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	k1 := order.DeriveKey(subID, 1)
	k2 := order.DeriveKey(subID, 1)
	if k1 != k2 {
		t.Error("same (sub-account, index) must derive the same key")
	}

	k3 := order.DeriveKey(subID, 2)
	if k1 == k3 {
		t.Error("different indices must derive different keys")
	}

	other := uuid.New()
	k4 := order.DeriveKey(other, 1)
	if k1 == k4 {
		t.Error("different sub-accounts must derive different keys")
	}
}

func TestKey_RoundTrip(t *testing.T) {
	k := order.DeriveKey(uuid.New(), 7)
	parsed, err := order.ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed != k {
		t.Error("key should round-trip through its string form")
	}
}

// ============================================================================
// Test: Book placement and index monotonicity
// ============================================================================

func TestBook_IndexMonotonicity(t *testing.T) {
	b := order.NewBook(uuid.New())

	var keys []order.Key
	for i := 0; i < 5; i++ {
		k, err := b.Place(order.CategoryOpen, 100, 0, true, 1000, 1)
		if err != nil {
			t.Fatalf("Place failed: %v", err)
		}
		keys = append(keys, k)
	}

	// interleave a cancel, then keep placing
	if _, ok := b.Resolve(keys[2]); !ok {
		t.Fatal("Resolve of a pending key should succeed")
	}
	k6, err := b.Place(order.CategoryOpen, 100, 0, true, 1001, 1)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	o, ok := b.Get(k6)
	if !ok {
		t.Fatal("order should be pending")
	}
	if o.Index != 6 {
		t.Errorf("index after 5 placements and a cancel: got %d, want 6", o.Index)
	}

	seen := make(map[uint64]bool)
	for _, k := range b.PendingKeys() {
		po, _ := b.Get(k)
		if seen[po.Index] {
			t.Errorf("index %d repeated", po.Index)
		}
		seen[po.Index] = true
	}
}

func TestBook_ResolveUnknownKey_NoOp(t *testing.T) {
	b := order.NewBook(uuid.New())

	var bogus order.Key
	bogus[0] = 0xAB

	if _, ok := b.Resolve(bogus); ok {
		t.Error("resolving an unknown key must report false")
	}
	if b.Len() != 0 {
		t.Errorf("book length: got %d, want 0", b.Len())
	}
}

func TestBook_PendingKeysInIndexOrder(t *testing.T) {
	b := order.NewBook(uuid.New())
	for i := 0; i < 4; i++ {
		if _, err := b.Place(order.CategoryOpen, 1, 0, false, 10, 1); err != nil {
			t.Fatalf("Place failed: %v", err)
		}
	}

	keys := b.PendingKeys()
	var last uint64
	for _, k := range keys {
		o, _ := b.Get(k)
		if o.Index <= last {
			t.Errorf("keys not in index order: %d after %d", o.Index, last)
		}
		last = o.Index
	}
}

// ============================================================================
// Test: Timeout gating
// ============================================================================

func TestBook_TimedOut_GatesByAge(t *testing.T) {
	b := order.NewBook(uuid.New())

	createdAt := int64(1000)
	key, err := b.Place(order.CategoryOpen, 100, 0, true, createdAt, 1)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	const marketTimeout = int64(120)
	const limitTimeout = int64(172800)

	// before timeout: untouched
	due := b.TimedOut([]order.Key{key}, createdAt+marketTimeout-1, marketTimeout, limitTimeout)
	if len(due) != 0 {
		t.Errorf("order not past timeout should not be sweepable, got %d keys", len(due))
	}

	// at timeout: sweepable
	due = b.TimedOut([]order.Key{key}, createdAt+marketTimeout, marketTimeout, limitTimeout)
	if len(due) != 1 {
		t.Fatalf("order past timeout should be sweepable, got %d keys", len(due))
	}
	if due[0] != key {
		t.Error("wrong key reported")
	}
}

func TestBook_TimedOut_LimitClass(t *testing.T) {
	b := order.NewBook(uuid.New())

	createdAt := int64(0)
	key, _ := b.Place(order.CategoryOpen, 100, 0, false, createdAt, 1)

	// market window elapsed but the limit window has not
	due := b.TimedOut([]order.Key{key}, 5000, 120, 172800)
	if len(due) != 0 {
		t.Error("limit order must use the limit timeout class")
	}

	due = b.TimedOut([]order.Key{key}, 172800, 120, 172800)
	if len(due) != 1 {
		t.Error("limit order past the limit timeout should be sweepable")
	}
}

func TestBook_TimedOut_SupersetOfKeys(t *testing.T) {
	b := order.NewBook(uuid.New())
	key, _ := b.Place(order.CategoryOpen, 100, 0, true, 0, 1)

	var unknown order.Key
	unknown[31] = 0x01

	due := b.TimedOut([]order.Key{key, unknown}, 500, 120, 172800)
	if len(due) != 1 {
		t.Errorf("unknown keys must be skipped silently, got %d", len(due))
	}
}

// ============================================================================
// Test: Liquidation latch
// ============================================================================

func TestBook_LiquidationLatch(t *testing.T) {
	b := order.NewBook(uuid.New())

	if err := b.BeginLiquidation(); err != nil {
		t.Fatalf("BeginLiquidation failed: %v", err)
	}

	if _, err := b.Place(order.CategoryOpen, 1, 0, true, 0, 1); !errors.Is(err, domain.ErrLiquidating) {
		t.Errorf("Open during liquidation: got %v, want ErrLiquidating", err)
	}
	if _, err := b.Place(order.CategoryClose, 1, 0, true, 0, 1); !errors.Is(err, domain.ErrLiquidating) {
		t.Errorf("Close during liquidation: got %v, want ErrLiquidating", err)
	}

	// the liquidation close itself must pass
	key, err := b.Place(order.CategoryLiquidate, 0, 0, true, 0, 1)
	if err != nil {
		t.Fatalf("Liquidate placement should pass the latch: %v", err)
	}

	// double-trigger rejected
	if err := b.BeginLiquidation(); !errors.Is(err, domain.ErrLiquidating) {
		t.Errorf("second BeginLiquidation: got %v, want ErrLiquidating", err)
	}

	b.Resolve(key)
	b.EndLiquidation()

	if _, err := b.Place(order.CategoryOpen, 1, 0, true, 0, 1); err != nil {
		t.Errorf("placement after latch clears should pass: %v", err)
	}
}

// ============================================================================
// Test: Stale venue orders
// ============================================================================

func TestBook_StaleVenueOrders(t *testing.T) {
	b := order.NewBook(uuid.New())

	oldKey, _ := b.Place(order.CategoryOpen, 1, 0, true, 0, 1)
	newKey, _ := b.Place(order.CategoryOpen, 1, 0, true, 0, 2)

	stale := b.StaleVenueOrders(2)
	if len(stale) != 1 || stale[0] != oldKey {
		t.Fatalf("expected exactly the old-version order, got %d keys", len(stale))
	}

	if _, ok := b.Get(newKey); !ok {
		t.Error("current-version order must stay pending")
	}
}

// ============================================================================
// Test: Replay restore
// ============================================================================

func TestBook_RestoreOrder_AdvancesIndex(t *testing.T) {
	b := order.NewBook(uuid.New())

	b.RestoreOrder(&order.PendingOrder{
		Key:   order.DeriveKey(uuid.New(), 9),
		Index: 9,
	})

	if b.NextIndex() != 10 {
		t.Errorf("next index after restore: got %d, want 10", b.NextIndex())
	}

	k, err := b.Place(order.CategoryOpen, 1, 0, true, 0, 1)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	o, _ := b.Get(k)
	if o.Index != 10 {
		t.Errorf("index after restore: got %d, want 10", o.Index)
	}
}
