package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"PerpBoost/internal/account"
	"PerpBoost/internal/config"
	"PerpBoost/internal/debt"
	"PerpBoost/internal/event"
	"PerpBoost/internal/ledger"
	"PerpBoost/internal/margin"
	"PerpBoost/internal/observability"
	"PerpBoost/internal/order"
	"PerpBoost/internal/pool"
	"PerpBoost/internal/registry"
	"PerpBoost/internal/venue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeterministicCore is the single-threaded event processor. All domain
// state lives behind it; the same event log replayed from genesis
// reproduces the same state hash chain.
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	pool              *pool.LendingPool
	store             *config.Store
	registry          *registry.Registry
	venueView         *venue.SimVenue
	prices            *venue.PriceView
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	logger            zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput carries one processed event to the persistence and
// projection workers: the envelope plus every journal batch the event
// produced, already applied to in-memory balances.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batches    []*ledger.Batch
	StateDelta []byte
}

func NewDeterministicCore(
	adminID uuid.UUID,
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	router venue.OrderRouter,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)
	lendingPool := pool.NewLendingPool(journalGen, balanceTracker)
	venueView := venue.NewSimVenue()
	prices := venue.NewPriceView()
	store := config.NewStore()

	reg := registry.NewRegistry(adminID, store, account.Deps{
		Pool:       lendingPool,
		JournalGen: journalGen,
		Tracker:    balanceTracker,
		Venue:      venue.NewComposite(venueView, router),
		Prices:     prices,
		Logger:     logger,
	})

	// Capacity of 1M keys (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		pool:              lendingPool,
		store:             store,
		registry:          reg,
		venueView:         venueView,
		prices:            prices,
		idempotency:       idempotencyChecker,
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		logger:            logger.With().Str("component", "core").Logger(),
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// digestScope names the state regions an event touched, so the digest
// covers them on top of the per-journal balance deltas.
type digestScope struct {
	pool     bool
	config   bool
	accounts []uuid.UUID
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Price and funding feeds are sampled,
	// so their partitions tolerate gaps; everything else is strict.
	partition := evt.PartitionKey()
	sourceSequence := evt.SourceSequence()

	switch evt.(type) {
	case *event.PriceUpdate, *event.FundingIndexUpdate:
		if err := c.sequenceValidator.ValidateLenientSequence(partition, sourceSequence); err != nil {
			return err
		}
	default:
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. The pool and account layers apply their journal
	// batches to balances as they go; rejected operations leave only
	// net-zero compensating entries behind, which we drop.
	scope, err := c.dispatchEvent(evt)
	if err != nil {
		c.journalGen.DiscardPending()
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}

	// Step 4: Drain and validate the batches the event produced.
	batches := c.journalGen.TakePending()
	for _, batch := range batches {
		if len(batch.Journals) == 0 {
			continue
		}
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
	}

	// Step 5: State digest over the touched regions
	stateDigest := c.computeStateDigest(batches, scope)

	// Step 6: Hash chain
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: event payload not serializable: %v", err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Partition:      partition,
		Timestamp:      evt.EventTimestamp(),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batches:    batches,
		StateDelta: stateDigest,
	}

	c.sequence++

	// Step 7: Post-checks
	if err := c.postCheckInvariants(scope); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Emit. Persistence uses a blocking send (backpressure, no
	// event lost); projections use a non-blocking send and rebuild from
	// the event log if they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Dropped — projection catches up via rebuild
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// computeStateDigest builds the canonical bytes hashed into the chain:
// the config version, every balance a journal touched (sorted by account
// path), then the pool counters and affected sub-accounts per scope.
func (c *DeterministicCore) computeStateDigest(batches []*ledger.Batch, scope digestScope) []byte {
	affected := make(map[ledger.AccountKey]bool)
	for _, batch := range batches {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	keys := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].AccountPath() < keys[j].AccountPath()
	})

	digest := make([]byte, 0, 16+len(keys)*64)
	digest = appendInt64LE(digest, c.store.Version())

	for _, key := range keys {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	if scope.pool {
		digest = append(digest, c.pool.CanonicalBytes()...)
	}

	ids := append([]uuid.UUID(nil), scope.accounts...)
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	for _, id := range ids {
		sa, ok := c.registry.SubAccount(id)
		if !ok {
			continue
		}
		digest = append(digest, sa.CanonicalBytes()...)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(scope digestScope) error {
	if scope.pool {
		for _, token := range c.pool.Tokens() {
			st, _ := c.pool.AssetState(token)
			if err := c.validator.ValidatePoolNonNegative(st.AssetID); err != nil {
				return err
			}
			if st.TotalAmountOut < st.TotalAmountIn {
				return fmt.Errorf("pool %s: repaid %d exceeds borrowed %d", token, st.TotalAmountIn, st.TotalAmountOut)
			}
		}
	}

	for _, id := range scope.accounts {
		sa, ok := c.registry.SubAccount(id)
		if !ok {
			continue
		}
		if sa.HeldCollateral() < 0 {
			return fmt.Errorf("sub-account %s: negative held collateral", id)
		}
		if sa.Debt.DebtPrincipal < 0 || sa.Debt.AccruedFee < 0 {
			return fmt.Errorf("sub-account %s: negative debt record", id)
		}
	}

	// Periodic global balance check: the sum of every account must be
	// zero under double-entry bookkeeping.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("global balance non-zero for asset %d: %d (at seq %d)", assetID, total, c.sequence)
			}
		}
	}

	return nil
}

// nowSeconds converts the event's microsecond timestamp to the epoch
// seconds the order book tracks timeouts in. The core never calls
// time.Now(): all timestamps are versioned inputs.
func nowSeconds(evt event.Event) int64 {
	return evt.EventTimestamp() / 1_000_000
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (digestScope, error) {
	switch e := evt.(type) {
	case *event.PoolDeposit:
		return digestScope{pool: true},
			c.pool.Deposit(e.IdempotencyKey(), e.Token, e.Amount, e.Timestamp)

	case *event.PoolWithdraw:
		return digestScope{pool: true},
			c.pool.Withdraw(e.IdempotencyKey(), e.Token, e.Amount, e.Timestamp)

	case *event.PoolSetFlags:
		c.pool.SetAssetFlags(e.Token, pool.Flags(e.Flags))
		return digestScope{pool: true}, nil

	case *event.WalletDeposit:
		return digestScope{}, c.applyWalletMove(e.IdempotencyKey(), e.OwnerID, e.Token, e.Amount, e.Timestamp, true)

	case *event.WalletWithdraw:
		return digestScope{}, c.applyWalletMove(e.IdempotencyKey(), e.OwnerID, e.Token, e.Amount, e.Timestamp, false)

	case *event.SubAccountCreate:
		sa, err := c.registry.CreateSubAccount(e.Caller, e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong)
		if err != nil {
			return digestScope{}, err
		}
		return digestScope{accounts: []uuid.UUID{sa.ID}}, nil

	case *event.PositionOpen:
		_, err := c.registry.OpenPosition(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			e.CollateralIn, e.BorrowAmount, e.SizeDeltaUsd, e.IsMarket, e.AcceptablePrice, nowSeconds(e))
		return c.tupleScope(e.Tuple, true), err

	case *event.PositionClose:
		_, err := c.registry.ClosePosition(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			e.SizeDeltaUsd, e.CollateralDeltaUsd, e.IsMarket, e.AcceptablePrice, nowSeconds(e))
		return c.tupleScope(e.Tuple, false), err

	case *event.AccountWithdraw:
		_, err := c.registry.Withdraw(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			nowSeconds(e))
		return c.tupleScope(e.Tuple, true), err

	case *event.OrderCancel:
		keys, err := parseOrderKeys(e.OrderKeys)
		if err != nil {
			return digestScope{}, err
		}
		_, err = c.registry.CancelOrders(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			keys, nowSeconds(e))
		return c.tupleScope(e.Tuple, true), err

	case *event.OrderCancelTimeout:
		keys, err := parseOrderKeys(e.OrderKeys)
		if err != nil {
			return digestScope{}, err
		}
		_, err = c.registry.CancelTimeoutOrders(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			keys, nowSeconds(e))
		return c.tupleScope(e.Tuple, true), err

	case *event.PositionLiquidate:
		_, err := c.registry.LiquidatePosition(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			e.AcceptablePrice, nowSeconds(e))
		return c.tupleScope(e.Tuple, false), err

	case *event.ConfigRefresh:
		err := c.registry.UpdateConfigs(e.Caller, e.IdempotencyKey(),
			e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong,
			nowSeconds(e))
		return c.tupleScope(e.Tuple, true), err

	case *event.ProjectConfigSet:
		return digestScope{config: true}, c.registry.SetProjectConfig(e.Caller, e.Project)

	case *event.AssetConfigSet:
		return digestScope{config: true}, c.registry.SetAssetConfig(e.Caller, e.ProjectID, e.Token, e.Config)

	case *event.BorrowConfigSet:
		return digestScope{config: true}, c.registry.SetBorrowConfig(e.Caller, e.ProjectID, e.Token, e.Config)

	case *event.RoleSet:
		return digestScope{config: true}, c.handleRoleSet(e)

	case *event.VenueFill:
		return c.handleVenueFill(e)

	case *event.VenueCancel:
		return c.handleVenueCancel(e)

	case *event.FundingIndexUpdate:
		c.venueView.SetFundingIndex(e.Asset, e.Index)
		return digestScope{}, nil

	case *event.PriceUpdate:
		c.prices.SetPrice(e.Token, e.Price)
		return digestScope{}, nil

	default:
		return digestScope{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) applyWalletMove(eventRef string, ownerID uuid.UUID, token string, amount, timestamp int64, deposit bool) error {
	if amount <= 0 {
		return fmt.Errorf("wallet move: non-positive amount %d", amount)
	}
	assetID := ledger.RegisterAsset(token)

	var batch *ledger.Batch
	var err error
	if deposit {
		batch, err = c.journalGen.GenerateWalletDeposit(eventRef, ownerID, assetID, amount, timestamp)
	} else {
		batch, err = c.journalGen.GenerateWalletWithdrawal(eventRef, ownerID, assetID, amount, timestamp)
	}
	if err != nil {
		return err
	}
	return c.balanceTracker.ApplyBatch(batch)
}

func (c *DeterministicCore) tupleScope(t event.Tuple, poolTouched bool) digestScope {
	id := registry.SubAccountID(t.ProjectID, t.OwnerID, t.CollateralToken, t.AssetToken, t.IsLong)
	return digestScope{pool: poolTouched, accounts: []uuid.UUID{id}}
}

func (c *DeterministicCore) handleRoleSet(e *event.RoleSet) error {
	switch e.Role {
	case event.RoleKeeper:
		return c.registry.SetKeeper(e.Caller, e.Target, e.Enabled)
	case event.RoleMaintainer:
		return c.registry.SetMaintainer(e.Caller, e.Target, e.Enabled)
	case event.RoleLiquidator:
		return c.registry.SetLiquidator(e.Caller, e.Target, e.Enabled)
	default:
		return event.ValidateRole(e.Role)
	}
}

// handleVenueFill applies the reported post-fill position to the venue
// view first, then settles the pending order against it. Fills for
// tuples or keys this ledger does not know are silent no-ops so the
// callback stream stays idempotent.
func (c *DeterministicCore) handleVenueFill(e *event.VenueFill) (digestScope, error) {
	sa, ok := c.registry.Resolve(e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong)
	if !ok {
		c.logger.Warn().Str("partition", e.PartitionKey()).Msg("fill for unknown sub-account dropped")
		return digestScope{}, nil
	}

	c.venueView.SetPosition(sa.ID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong, margin.VenuePosition{
		SizeUsd:       e.PositionSizeUsd,
		CollateralUsd: e.PositionCollateralUsd,
		AveragePrice:  e.PositionAveragePrice,
	})

	key, err := order.ParseKey(e.OrderKey)
	if err != nil {
		return digestScope{}, fmt.Errorf("venue fill: %w", err)
	}

	_, err = sa.HandleFill(e.IdempotencyKey(), account.Fill{
		Key:                key,
		ActualBorrowed:     e.ActualBorrowed,
		ReturnedCollateral: e.ReturnedCollateral,
		SecondaryToken:     e.SecondaryToken,
		SecondaryAmount:    e.SecondaryAmount,
	}, nowSeconds(e))
	return digestScope{pool: true, accounts: []uuid.UUID{sa.ID}}, err
}

func (c *DeterministicCore) handleVenueCancel(e *event.VenueCancel) (digestScope, error) {
	sa, ok := c.registry.Resolve(e.Tuple.ProjectID, e.Tuple.OwnerID, e.Tuple.CollateralToken, e.Tuple.AssetToken, e.Tuple.IsLong)
	if !ok {
		c.logger.Warn().Str("partition", e.PartitionKey()).Msg("cancel for unknown sub-account dropped")
		return digestScope{}, nil
	}

	key, err := order.ParseKey(e.OrderKey)
	if err != nil {
		return digestScope{}, fmt.Errorf("venue cancel: %w", err)
	}

	_, err = sa.HandleCancel(e.IdempotencyKey(), key, nowSeconds(e))
	return digestScope{pool: true, accounts: []uuid.UUID{sa.ID}}, err
}

func parseOrderKeys(hexKeys []string) ([]order.Key, error) {
	keys := make([]order.Key, 0, len(hexKeys))
	for _, s := range hexKeys {
		key, err := order.ParseKey(s)
		if err != nil {
			return nil, fmt.Errorf("order key %q: %w", s, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// --- Snapshot Restore & Startup Methods ---

// AccountSnapshot is one sub-account's serializable state.
type AccountSnapshot struct {
	ProjectID       int64                `json:"project_id"`
	OwnerID         uuid.UUID            `json:"owner_id"`
	CollateralToken string               `json:"collateral_token"`
	AssetToken      string               `json:"asset_token"`
	IsLong          bool                 `json:"is_long"`
	Cfg             config.Snapshot      `json:"cfg"`
	Debt            debt.State           `json:"debt"`
	NextOrderIndex  uint64               `json:"next_order_index"`
	PendingOrders   []order.PendingOrder `json:"pending_orders"`
	Liquidating     bool                 `json:"liquidating"`
	LiquidatorID    uuid.UUID            `json:"liquidator_id"`
}

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	JournalSequence int64
	Balances        map[ledger.AccountKey]int64
	PoolAssets      []pool.AssetState
	StoreState      config.StoreState
	Roles           []registry.RoleGrant
	Accounts        []AccountSnapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
	Prices          map[string]int64
	FundingIndices  map[string]int64
	Positions       []venue.PositionEntry
}

// RestoreFromSnapshot rebuilds the core's in-memory state. On warm
// restart the caller loads the latest snapshot, restores, then replays
// the event log tail.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)
	c.journalGen.SetSequence(snap.JournalSequence)

	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	for _, st := range snap.PoolAssets {
		c.pool.RestoreAsset(st)
	}

	c.store.Restore(snap.StoreState)

	for _, grant := range snap.Roles {
		c.registry.RestoreRole(grant.Role, grant.ID)
	}

	for _, acc := range snap.Accounts {
		sa := c.registry.RestoreSubAccount(acc.ProjectID, acc.OwnerID, acc.CollateralToken, acc.AssetToken, acc.IsLong, acc.Cfg)
		sa.Debt = acc.Debt
		sa.Book.RestoreIndex(acc.NextOrderIndex)
		for i := range acc.PendingOrders {
			o := acc.PendingOrders[i]
			sa.Book.RestoreOrder(&o)
		}
		if acc.Liquidating {
			if err := sa.RestoreLiquidation(acc.LiquidatorID); err != nil {
				c.logger.Error().Err(err).Str("sub_account", sa.ID.String()).Msg("latch restore failed")
			}
		}
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	for token, price := range snap.Prices {
		c.prices.SetPrice(token, price)
	}
	for asset, index := range snap.FundingIndices {
		c.venueView.SetFundingIndex(asset, index)
	}
	for _, entry := range snap.Positions {
		c.venueView.SetPosition(entry.SubAccountID, entry.CollateralToken, entry.AssetToken, entry.IsLong, entry.Position)
	}
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	var poolAssets []pool.AssetState
	for _, token := range c.pool.Tokens() {
		st, _ := c.pool.AssetState(token)
		poolAssets = append(poolAssets, st)
	}

	accounts := c.registry.Accounts()
	ids := make([]uuid.UUID, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	accSnaps := make([]AccountSnapshot, 0, len(ids))
	for _, id := range ids {
		sa := accounts[id]
		pending := make([]order.PendingOrder, 0, sa.Book.Len())
		for _, key := range sa.Book.PendingKeys() {
			o, _ := sa.Book.Get(key)
			pending = append(pending, *o)
		}
		accSnaps = append(accSnaps, AccountSnapshot{
			ProjectID:       sa.ProjectID,
			OwnerID:         sa.OwnerID,
			CollateralToken: sa.CollateralToken,
			AssetToken:      sa.AssetToken,
			IsLong:          sa.IsLong,
			Cfg:             sa.Cfg,
			Debt:            sa.Debt,
			NextOrderIndex:  sa.Book.NextIndex(),
			PendingOrders:   pending,
			Liquidating:     sa.Book.IsLiquidating(),
			LiquidatorID:    sa.LiquidatorID(),
		})
	}

	return &SnapshotState{
		Sequence:        c.sequence - 1, // last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		JournalSequence: c.journalGen.Sequence(),
		Balances:        c.balanceTracker.Snapshot(),
		PoolAssets:      poolAssets,
		StoreState:      c.store.Dump(),
		Roles:           c.registry.Roles(),
		Accounts:        accSnaps,
		SequenceState:   c.sequenceValidator.AllSequences(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
		Prices:          c.prices.Prices(),
		FundingIndices:  c.venueView.FundingIndices(),
		Positions:       c.venueView.Positions(),
	}
}

// WarmLRU preloads recent idempotency keys so replays of the tail event
// log never hit the database cold path.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Registry exposes the sub-account registry for read paths.
func (c *DeterministicCore) Registry() *registry.Registry {
	return c.registry
}

// Pool exposes the lending pool for read paths.
func (c *DeterministicCore) Pool() *pool.LendingPool {
	return c.pool
}

// Balances exposes the balance tracker for read paths.
func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}
