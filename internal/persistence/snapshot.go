package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"PerpBoost/internal/config"
	"PerpBoost/internal/core"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/pool"
	"PerpBoost/internal/registry"
	"PerpBoost/internal/venue"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, pool assets, config store, roles, sub-account
// state, venue view, sequence cursors, the idempotency LRU tail, and the
// last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of core.SnapshotState. The only
// structural difference is the balance map: ledger.AccountKey is a struct
// key, so balances are flattened into a sorted slice for JSON.
type SnapshotData struct {
	Sequence        int64                  `json:"sequence"`
	StateHash       []byte                 `json:"state_hash"`
	JournalSequence int64                  `json:"journal_sequence"`
	Balances        []BalanceSnapshot      `json:"balances"`
	PoolAssets      []pool.AssetState      `json:"pool_assets"`
	StoreState      config.StoreState      `json:"store_state"`
	Roles           []registry.RoleGrant   `json:"roles"`
	Accounts        []core.AccountSnapshot `json:"accounts"`
	SequenceState   map[string]int64       `json:"sequence_state"`
	IdempotencyKeys []string               `json:"idempotency_keys"`
	Prices          map[string]int64       `json:"prices"`
	FundingIndices  map[string]int64       `json:"funding_indices"`
	Positions       []venue.PositionEntry  `json:"positions"`
	CreatedAt       time.Time              `json:"created_at"`
}

// BalanceSnapshot is one flattened ledger account balance.
type BalanceSnapshot struct {
	Scope    uint8     `json:"scope"`
	EntityID uuid.UUID `json:"entity_id"`
	SubType  uint8     `json:"sub_type"`
	AssetID  uint16    `json:"asset_id"`
	Balance  int64     `json:"balance"`
}

// FromCoreSnapshot converts the core's in-memory snapshot to its
// serializable form.
func FromCoreSnapshot(snap *core.SnapshotState, createdAt time.Time) *SnapshotData {
	sd := &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		JournalSequence: snap.JournalSequence,
		PoolAssets:      snap.PoolAssets,
		StoreState:      snap.StoreState,
		Roles:           snap.Roles,
		Accounts:        snap.Accounts,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		Prices:          snap.Prices,
		FundingIndices:  snap.FundingIndices,
		Positions:       snap.Positions,
		CreatedAt:       createdAt,
	}

	for key, balance := range snap.Balances {
		sd.Balances = append(sd.Balances, BalanceSnapshot{
			Scope:    uint8(key.Scope),
			EntityID: uuid.UUID(key.EntityID),
			SubType:  uint8(key.SubType),
			AssetID:  uint16(key.AssetID),
			Balance:  balance,
		})
	}
	sort.Slice(sd.Balances, func(i, j int) bool {
		a, b := sd.Balances[i], sd.Balances[j]
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.EntityID != b.EntityID {
			return a.EntityID.String() < b.EntityID.String()
		}
		if a.SubType != b.SubType {
			return a.SubType < b.SubType
		}
		return a.AssetID < b.AssetID
	})

	return sd
}

// ToCoreSnapshot converts back to the shape core.RestoreFromSnapshot expects.
func (sd *SnapshotData) ToCoreSnapshot() *core.SnapshotState {
	snap := &core.SnapshotState{
		Sequence:        sd.Sequence,
		JournalSequence: sd.JournalSequence,
		Balances:        make(map[ledger.AccountKey]int64, len(sd.Balances)),
		PoolAssets:      sd.PoolAssets,
		StoreState:      sd.StoreState,
		Roles:           sd.Roles,
		Accounts:        sd.Accounts,
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
		Prices:          sd.Prices,
		FundingIndices:  sd.FundingIndices,
		Positions:       sd.Positions,
	}
	copy(snap.StateHash[:], sd.StateHash)

	for _, b := range sd.Balances {
		key := ledger.AccountKey{
			Scope:    ledger.AccountScope(b.Scope),
			EntityID: [16]byte(b.EntityID),
			SubType:  ledger.AccountSubType(b.SubType),
			AssetID:  ledger.AssetID(b.AssetID),
		}
		snap.Balances[key] = b.Balance
	}

	return snap
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot
// sequence forward before being trusted for restarts.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, restore from it then replay events from snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition_key, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
