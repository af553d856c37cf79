package order

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// Status tracks a pending order's lifecycle
type Status int32

const (
	StatusPending Status = iota
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusFilled:
		return "Filled"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions. Filled and Cancelled are
// terminal.
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusPending: {
			StatusFilled,
			StatusCancelled,
		},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// Category classifies the venue request behind a pending order
type Category int32

const (
	CategoryOpen Category = iota
	CategoryClose
	CategoryLiquidate
)

func (c Category) String() string {
	switch c {
	case CategoryOpen:
		return "Open"
	case CategoryClose:
		return "Close"
	case CategoryLiquidate:
		return "Liquidate"
	default:
		return "Unknown"
	}
}

// Key identifies one pending order for its sub-account's lifetime
type Key [32]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey decodes a hex key string
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// DeriveKey computes the order key for (sub-account, index). Indices are
// never reused, so the key is unique for the sub-account's lifetime and a
// callback can never be mis-attributed to another order.
func DeriveKey(subAccountID uuid.UUID, index uint64) Key {
	hasher := sha256.New()
	hasher.Write(subAccountID[:])

	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], index)
	hasher.Write(idxBuf[:])

	var k Key
	copy(k[:], hasher.Sum(nil))
	return k
}

// PendingOrder is one unresolved venue request
type PendingOrder struct {
	Key             Key
	Index           uint64
	Category        Category
	CreatedAt       int64 // epoch seconds
	DebtDelta       int64 // collateral charged inflight (Open)
	CollateralDelta int64 // collateral attached or expected back
	IsMarket        bool  // market vs. limit timeout class
	VenueVersion    int64 // config version the order was placed under
}

// CanonicalBytes returns deterministic serialization for state hashing
func (o *PendingOrder) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)
	buf = append(buf, o.Key[:]...)
	buf = appendUint64LE(buf, o.Index)
	buf = appendInt64LE(buf, int64(o.Category))
	buf = appendInt64LE(buf, o.CreatedAt)
	buf = appendInt64LE(buf, o.DebtDelta)
	buf = appendInt64LE(buf, o.CollateralDelta)
	if o.IsMarket {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
