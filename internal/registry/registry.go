package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"PerpBoost/internal/account"
	"PerpBoost/internal/config"
	"PerpBoost/internal/domain"
	fpmath "PerpBoost/internal/math"
	"PerpBoost/internal/order"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Namespace for deriving sub-account IDs. Never change this: the same
// (project, owner, collateral, asset, side) tuple must map to the same
// ID across restarts and before the account even exists.
var subAccountNamespace = uuid.MustParse("8f1c9a47-5b2e-4d30-9c61-2a7e84d0f5b3")

// SubAccountID derives the deterministic identity of a tuple. Callers
// may compute it before CreateSubAccount has ever run.
func SubAccountID(projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool) uuid.UUID {
	buf := make([]byte, 0, 8+16+len(collateralToken)+len(assetToken)+3)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(projectID))
	buf = append(buf, ownerID[:]...)
	buf = append(buf, collateralToken...)
	buf = append(buf, 0)
	buf = append(buf, assetToken...)
	buf = append(buf, 0)
	if isLong {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return uuid.NewSHA1(subAccountNamespace, buf)
}

// Registry owns the sub-account map and the caller role model. All
// methods run engine-serialized.
type Registry struct {
	adminID     uuid.UUID
	store       *config.Store
	deps        account.Deps
	accounts    map[uuid.UUID]*account.SubAccount
	keepers     map[uuid.UUID]bool
	maintainers map[uuid.UUID]bool
	liquidators map[uuid.UUID]bool
	logger      zerolog.Logger
}

func NewRegistry(adminID uuid.UUID, store *config.Store, deps account.Deps) *Registry {
	return &Registry{
		adminID:     adminID,
		store:       store,
		deps:        deps,
		accounts:    make(map[uuid.UUID]*account.SubAccount),
		keepers:     make(map[uuid.UUID]bool),
		maintainers: make(map[uuid.UUID]bool),
		liquidators: make(map[uuid.UUID]bool),
		logger:      deps.Logger.With().Str("component", "registry").Logger(),
	}
}

// === Roles ===

func (r *Registry) SetKeeper(caller, keeper uuid.UUID, enabled bool) error {
	if caller != r.adminID {
		return fmt.Errorf("set keeper: %w", domain.ErrUnauthorizedCaller)
	}
	r.keepers[keeper] = enabled
	return nil
}

func (r *Registry) SetMaintainer(caller, maintainer uuid.UUID, enabled bool) error {
	if caller != r.adminID {
		return fmt.Errorf("set maintainer: %w", domain.ErrUnauthorizedCaller)
	}
	r.maintainers[maintainer] = enabled
	return nil
}

func (r *Registry) SetLiquidator(caller, liquidator uuid.UUID, enabled bool) error {
	if caller != r.adminID {
		return fmt.Errorf("set liquidator: %w", domain.ErrUnauthorizedCaller)
	}
	r.liquidators[liquidator] = enabled
	return nil
}

func (r *Registry) IsKeeper(id uuid.UUID) bool     { return r.keepers[id] }
func (r *Registry) IsMaintainer(id uuid.UUID) bool { return r.maintainers[id] }
func (r *Registry) IsLiquidator(id uuid.UUID) bool { return r.liquidators[id] }

// === Config management ===

func (r *Registry) SetProjectConfig(caller uuid.UUID, cfg config.ProjectConfig) error {
	if !r.maintainers[caller] && caller != r.adminID {
		return fmt.Errorf("set project config: %w", domain.ErrUnauthorizedCaller)
	}
	return r.store.SetProjectConfig(cfg)
}

func (r *Registry) SetAssetConfig(caller uuid.UUID, projectID int64, token string, cfg config.AssetConfig) error {
	if !r.maintainers[caller] && caller != r.adminID {
		return fmt.Errorf("set asset config: %w", domain.ErrUnauthorizedCaller)
	}
	return r.store.SetAssetConfig(projectID, token, cfg)
}

func (r *Registry) SetBorrowConfig(caller uuid.UUID, projectID int64, token string, cfg config.BorrowConfig) error {
	if !r.maintainers[caller] && caller != r.adminID {
		return fmt.Errorf("set borrow config: %w", domain.ErrUnauthorizedCaller)
	}
	return r.store.SetBorrowConfig(projectID, token, cfg)
}

// === Sub-account lifecycle ===

// CreateSubAccount materializes the sub-account for a tuple. Idempotent:
// a second create for the same tuple returns the existing account.
func (r *Registry) CreateSubAccount(caller uuid.UUID, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool) (*account.SubAccount, error) {
	if caller != ownerID && !r.keepers[caller] {
		return nil, fmt.Errorf("create sub-account: %w", domain.ErrUnauthorizedCaller)
	}

	id := SubAccountID(projectID, ownerID, collateralToken, assetToken, isLong)
	if sa, ok := r.accounts[id]; ok {
		return sa, nil
	}

	snap, err := r.store.Snapshot(projectID, assetToken)
	if err != nil {
		return nil, fmt.Errorf("create sub-account: %w", err)
	}

	sa := account.NewSubAccount(id, projectID, ownerID, collateralToken, assetToken, isLong, snap, r.deps)
	r.accounts[id] = sa
	r.deps.Pool.AuthorizeBorrower(id)

	r.logger.Info().
		Str("sub_account", id.String()).
		Str("owner", ownerID.String()).
		Int64("project", projectID).
		Msg("sub-account created")
	return sa, nil
}

// RestoreSubAccount reinstates a sub-account during snapshot restore,
// bypassing role checks. The caller rebuilds debt, book, and latch state
// on the returned account.
func (r *Registry) RestoreSubAccount(projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, snap config.Snapshot) *account.SubAccount {
	id := SubAccountID(projectID, ownerID, collateralToken, assetToken, isLong)
	if sa, ok := r.accounts[id]; ok {
		return sa
	}
	sa := account.NewSubAccount(id, projectID, ownerID, collateralToken, assetToken, isLong, snap, r.deps)
	r.accounts[id] = sa
	r.deps.Pool.AuthorizeBorrower(id)
	return sa
}

// RestoreRole reinstates a role grant during snapshot restore.
func (r *Registry) RestoreRole(role string, id uuid.UUID) {
	switch role {
	case "keeper":
		r.keepers[id] = true
	case "maintainer":
		r.maintainers[id] = true
	case "liquidator":
		r.liquidators[id] = true
	}
}

// Roles exports all granted roles for snapshots, sorted by role then ID.
func (r *Registry) Roles() []RoleGrant {
	var out []RoleGrant
	for id := range r.keepers {
		out = append(out, RoleGrant{Role: "keeper", ID: id})
	}
	for id := range r.maintainers {
		out = append(out, RoleGrant{Role: "maintainer", ID: id})
	}
	for id := range r.liquidators {
		out = append(out, RoleGrant{Role: "liquidator", ID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// RoleGrant is one (role, account) pair in exportable form.
type RoleGrant struct {
	Role string    `json:"role"`
	ID   uuid.UUID `json:"id"`
}

// SubAccount resolves an existing account by its derived ID.
func (r *Registry) SubAccount(id uuid.UUID) (*account.SubAccount, bool) {
	sa, ok := r.accounts[id]
	return sa, ok
}

// Resolve looks up the account for a tuple without creating it.
func (r *Registry) Resolve(projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool) (*account.SubAccount, bool) {
	return r.SubAccount(SubAccountID(projectID, ownerID, collateralToken, assetToken, isLong))
}

// Accounts returns all materialized sub-accounts. Iteration order is
// unspecified; callers that hash must sort.
func (r *Registry) Accounts() map[uuid.UUID]*account.SubAccount {
	return r.accounts
}

// DebtUSDOf values one sub-account's outstanding debt, confirmed plus
// inflight, at the current price of its collateral token.
func (r *Registry) DebtUSDOf(subAccountID uuid.UUID, priceOf func(token string) (int64, error)) (int64, error) {
	sa, ok := r.accounts[subAccountID]
	if !ok {
		return 0, fmt.Errorf("debt usd of %s: %w", subAccountID, domain.ErrForbidden)
	}
	price, err := priceOf(sa.CollateralToken)
	if err != nil {
		return 0, fmt.Errorf("debt usd of %s: %w", subAccountID, err)
	}
	return fpmath.TokenToUsd(sa.Debt.TotalDebt(), price, fpmath.RoundDown), nil
}

// OwnerDebtUSD sums debt exposure across all of one owner's
// sub-accounts.
func (r *Registry) OwnerDebtUSD(ownerID uuid.UUID, priceOf func(token string) (int64, error)) (int64, error) {
	var total int64
	for id, sa := range r.accounts {
		if sa.OwnerID != ownerID {
			continue
		}
		usd, err := r.DebtUSDOf(id, priceOf)
		if err != nil {
			return 0, err
		}
		total += usd
	}
	return total, nil
}

// === Gated passthroughs ===

func (r *Registry) resolveFor(projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool) (*account.SubAccount, error) {
	sa, ok := r.Resolve(projectID, ownerID, collateralToken, assetToken, isLong)
	if !ok {
		return nil, fmt.Errorf("sub-account for owner %s not found: %w", ownerID, domain.ErrForbidden)
	}
	return sa, nil
}

// OpenPosition is owner-only.
func (r *Registry) OpenPosition(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, collateralIn, borrowAmount, sizeDeltaUsd int64, isMarket bool, acceptablePrice, now int64) (order.Key, error) {
	if caller != ownerID {
		return order.Key{}, fmt.Errorf("open position: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.CreateSubAccount(caller, projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return order.Key{}, err
	}
	return sa.OpenPosition(eventRef, collateralIn, borrowAmount, sizeDeltaUsd, isMarket, acceptablePrice, now)
}

// ClosePosition is owner-only.
func (r *Registry) ClosePosition(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, sizeDeltaUsd, collateralDeltaUsd int64, isMarket bool, acceptablePrice, now int64) (order.Key, error) {
	if caller != ownerID {
		return order.Key{}, fmt.Errorf("close position: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return order.Key{}, err
	}
	return sa.ClosePosition(eventRef, sizeDeltaUsd, collateralDeltaUsd, isMarket, acceptablePrice, now)
}

// Withdraw may be called by the owner or a keeper sweeping dust.
func (r *Registry) Withdraw(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, now int64) (int64, error) {
	if caller != ownerID && !r.keepers[caller] {
		return 0, fmt.Errorf("withdraw: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return 0, err
	}
	return sa.Withdraw(eventRef, now)
}

// LiquidatePosition is liquidator-only.
func (r *Registry) LiquidatePosition(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, acceptablePrice, now int64) (order.Key, error) {
	if !r.liquidators[caller] {
		return order.Key{}, fmt.Errorf("liquidate position: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return order.Key{}, err
	}
	return sa.Liquidate(eventRef, caller, acceptablePrice, now)
}

// CancelOrders cancels pending orders without any timeout gate. The
// owner may pull their own orders at any time; keepers may too.
func (r *Registry) CancelOrders(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, keys []order.Key, now int64) ([]order.Key, error) {
	if caller != ownerID && !r.keepers[caller] {
		return nil, fmt.Errorf("cancel orders: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return nil, err
	}
	return sa.CancelOrders(eventRef, keys, now)
}

// CancelTimeoutOrders is keeper-only. The key set may be a superset;
// orders not yet timed out are skipped.
func (r *Registry) CancelTimeoutOrders(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, keys []order.Key, now int64) ([]order.Key, error) {
	if !r.keepers[caller] {
		return nil, fmt.Errorf("cancel timeout orders: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return nil, err
	}
	return sa.CancelTimeoutOrders(eventRef, keys, now)
}

// UpdateConfigs refreshes one sub-account's cached snapshot from the
// store. Owner and keepers may trigger it.
func (r *Registry) UpdateConfigs(caller uuid.UUID, eventRef string, projectID int64, ownerID uuid.UUID, collateralToken, assetToken string, isLong bool, now int64) error {
	if caller != ownerID && !r.keepers[caller] {
		return fmt.Errorf("update configs: %w", domain.ErrUnauthorizedCaller)
	}
	sa, err := r.resolveFor(projectID, ownerID, collateralToken, assetToken, isLong)
	if err != nil {
		return err
	}
	snap, err := r.store.Snapshot(projectID, assetToken)
	if err != nil {
		return fmt.Errorf("update configs: %w", err)
	}
	return sa.UpdateConfigs(eventRef, snap, now)
}
