package debt

import (
	"encoding/binary"

	fpmath "PerpBoost/internal/math"
)

// State is the per-sub-account debt record, denominated in the collateral
// token. Principal and fee never go negative; inflight amounts belong to
// exactly one unresolved order placement and are folded into (fill) or
// reversed out of (cancel) the record exactly once.
type State struct {
	DebtPrincipal    int64 // confirmed borrowed collateral
	AccruedFee       int64 // settled funding fee
	FundingIndexLast int64 // checkpoint at last settle
	InflightDebt     int64 // charged to a not-yet-confirmed order
	InflightFee      int64
}

func (s State) IsZero() bool {
	return s.DebtPrincipal == 0 && s.AccruedFee == 0 && s.InflightDebt == 0 && s.InflightFee == 0
}

// Accrue settles the funding fee grown since the last checkpoint into
// AccruedFee and advances the checkpoint. Only confirmed principal
// accrues; inflight debt does not.
func (s *State) Accrue(currentFundingIndex int64) {
	fee := fpmath.FundingFee(s.DebtPrincipal, s.FundingIndexLast, currentFundingIndex)
	s.AccruedFee += fee
	if currentFundingIndex > s.FundingIndexLast {
		s.FundingIndexLast = currentFundingIndex
	}
}

// TotalFee reports accrued fee plus the unsettled delta since the last
// checkpoint, without mutating the record.
func (s State) TotalFee(currentFundingIndex int64) int64 {
	return s.AccruedFee + fpmath.FundingFee(s.DebtPrincipal, s.FundingIndexLast, currentFundingIndex)
}

// TotalDebt reports confirmed plus inflight principal.
func (s State) TotalDebt() int64 {
	return s.DebtPrincipal + s.InflightDebt
}

// AccrueAndBorrow settles outstanding fee, then charges amount and fee
// to the inflight counters pending order resolution.
func (s *State) AccrueAndBorrow(amount, fee, currentFundingIndex int64) {
	s.Accrue(currentFundingIndex)
	s.InflightDebt += amount
	s.InflightFee += fee
}

// ConfirmFill folds inflight amounts into the confirmed record. When the
// venue used less collateral than requested, the unused remainder is
// returned for immediate repayment rather than left inflight.
// Returns the unused principal.
func (s *State) ConfirmFill(actualUsed, currentFundingIndex int64) (unused int64) {
	s.Accrue(currentFundingIndex)

	confirmed := s.InflightDebt
	if actualUsed >= 0 && actualUsed < confirmed {
		unused = confirmed - actualUsed
		confirmed = actualUsed
	}

	s.DebtPrincipal += confirmed
	s.AccruedFee += s.InflightFee
	s.InflightDebt = 0
	s.InflightFee = 0
	return unused
}

// CancelInflight reverses the inflight charge without touching confirmed
// debt. Idempotent: a second cancel finds nothing inflight and is a no-op.
// Returns the reversed principal and fee.
func (s *State) CancelInflight() (debt, fee int64) {
	debt = s.InflightDebt
	fee = s.InflightFee
	s.InflightDebt = 0
	s.InflightFee = 0
	return debt, fee
}

// ApplyRepayment reduces confirmed principal and fee by the repaid
// amounts, clamping at zero. Any excess is surplus owed back to the
// caller, never negative debt.
func (s *State) ApplyRepayment(repaidDebt, repaidFee int64) {
	s.DebtPrincipal -= repaidDebt
	if s.DebtPrincipal < 0 {
		s.DebtPrincipal = 0
	}
	s.AccruedFee -= repaidFee
	if s.AccruedFee < 0 {
		s.AccruedFee = 0
	}
}

// CanonicalBytes returns a deterministic serialization for state hashing.
func (s State) CanonicalBytes() []byte {
	buf := make([]byte, 0, 40)
	buf = appendInt64LE(buf, s.DebtPrincipal)
	buf = appendInt64LE(buf, s.AccruedFee)
	buf = appendInt64LE(buf, s.FundingIndexLast)
	buf = appendInt64LE(buf, s.InflightDebt)
	buf = appendInt64LE(buf, s.InflightFee)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}
