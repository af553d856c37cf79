package order

import (
	"fmt"
	"sort"

	"PerpBoost/internal/domain"

	"github.com/google/uuid"
)

// Book tracks the pending orders of one sub-account. Indices are strictly
// increasing and survive cancels, so N placements observe indices 1..N
// with no gaps or repeats.
type Book struct {
	subAccountID uuid.UUID
	nextIndex    uint64
	pending      map[Key]*PendingOrder
	liquidating  bool
}

func NewBook(subAccountID uuid.UUID) *Book {
	return &Book{
		subAccountID: subAccountID,
		nextIndex:    1,
		pending:      make(map[Key]*PendingOrder),
	}
}

// Place records a new pending order and returns its key. Open/Close
// placements are rejected while a liquidation is unresolved.
func (b *Book) Place(category Category, debtDelta, collateralDelta int64, isMarket bool, now int64, configVersion int64) (Key, error) {
	if b.liquidating && category != CategoryLiquidate {
		return Key{}, fmt.Errorf("sub-account %s: %w", b.subAccountID, domain.ErrLiquidating)
	}

	index := b.nextIndex
	b.nextIndex++

	key := DeriveKey(b.subAccountID, index)
	b.pending[key] = &PendingOrder{
		Key:             key,
		Index:           index,
		Category:        category,
		CreatedAt:       now,
		DebtDelta:       debtDelta,
		CollateralDelta: collateralDelta,
		IsMarket:        isMarket,
		VenueVersion:    configVersion,
	}

	return key, nil
}

// Resolve removes a pending order on fill or cancel. Unknown keys are a
// no-op so duplicate callbacks stay idempotent.
func (b *Book) Resolve(key Key) (*PendingOrder, bool) {
	o, ok := b.pending[key]
	if !ok {
		return nil, false
	}
	delete(b.pending, key)
	return o, true
}

// Get reads a pending order without removing it.
func (b *Book) Get(key Key) (*PendingOrder, bool) {
	o, ok := b.pending[key]
	return o, ok
}

// TimedOut reports the subset of keys whose order age has reached its
// timeout class. Orders not yet past timeout are skipped without error;
// callers may pass a superset of keys.
func (b *Book) TimedOut(keys []Key, now, marketTimeoutSec, limitTimeoutSec int64) []Key {
	out := make([]Key, 0, len(keys))
	for _, key := range keys {
		o, ok := b.pending[key]
		if !ok {
			continue
		}
		timeout := limitTimeoutSec
		if o.IsMarket {
			timeout = marketTimeoutSec
		}
		if now-o.CreatedAt >= timeout {
			out = append(out, key)
		}
	}
	return out
}

// StaleVenueOrders reports pending orders placed under an older config
// version. Used to purge in-flight orders when the venue target changes.
func (b *Book) StaleVenueOrders(currentVersion int64) []Key {
	out := make([]Key, 0)
	for key, o := range b.pending {
		if o.VenueVersion < currentVersion {
			out = append(out, key)
		}
	}
	sortKeys(out)
	return out
}

// PendingKeys returns all unresolved keys in index order.
func (b *Book) PendingKeys() []Key {
	keys := make([]Key, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return b.pending[keys[i]].Index < b.pending[keys[j]].Index
	})
	return keys
}

func (b *Book) Len() int {
	return len(b.pending)
}

func (b *Book) NextIndex() uint64 {
	return b.nextIndex
}

// === Liquidation latch ===

// BeginLiquidation sets the latch blocking user-initiated placements and
// config refreshes until the liquidation order resolves.
func (b *Book) BeginLiquidation() error {
	if b.liquidating {
		return fmt.Errorf("sub-account %s: %w", b.subAccountID, domain.ErrLiquidating)
	}
	b.liquidating = true
	return nil
}

// EndLiquidation clears the latch once the liquidation close resolves.
func (b *Book) EndLiquidation() {
	b.liquidating = false
}

func (b *Book) IsLiquidating() bool {
	return b.liquidating
}

// CanonicalBytes returns a deterministic serialization of the book for
// state hashing: the index counter, the latch, then all pending orders
// in index order.
func (b *Book) CanonicalBytes() []byte {
	buf := make([]byte, 0, 16+len(b.pending)*80)
	buf = appendUint64LE(buf, b.nextIndex)
	if b.liquidating {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	for _, key := range b.PendingKeys() {
		buf = append(buf, b.pending[key].CanonicalBytes()...)
	}
	return buf
}

// RestoreIndex rewinds internal counters during replay. Never moves the
// counter backwards.
func (b *Book) RestoreIndex(next uint64) {
	if next > b.nextIndex {
		b.nextIndex = next
	}
}

// RestoreOrder reinstates a pending order during replay.
func (b *Book) RestoreOrder(o *PendingOrder) {
	b.pending[o.Key] = o
	if o.Index >= b.nextIndex {
		b.nextIndex = o.Index + 1
	}
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		for n := 0; n < len(keys[i]); n++ {
			if keys[i][n] != keys[j][n] {
				return keys[i][n] < keys[j][n]
			}
		}
		return false
	})
}
