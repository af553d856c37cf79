package query

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"PerpBoost/internal/observability"
)

// Handler serves the read API over HTTP/JSON.
type Handler struct {
	svc     *QueryService
	metrics *observability.Metrics
}

func NewHandler(svc *QueryService, metrics *observability.Metrics) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

// Register attaches all query routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/pool/assets", h.instrument("pool_assets", h.handlePoolAssets))
	mux.HandleFunc("GET /v1/wallets/{owner}/balances", h.instrument("wallet_balances", h.handleWalletBalances))
	mux.HandleFunc("GET /v1/wallets/{owner}/balances/{asset}", h.instrument("wallet_balance", h.handleWalletBalance))
	mux.HandleFunc("GET /v1/owners/{owner}/accounts", h.instrument("owner_accounts", h.handleOwnerAccounts))
	mux.HandleFunc("GET /v1/owners/{owner}/journal", h.instrument("owner_journal", h.handleOwnerJournal))
	mux.HandleFunc("GET /v1/accounts/{id}/debt", h.instrument("account_debt", h.handleAccountDebt))
	mux.HandleFunc("GET /v1/accounts/{id}/orders", h.instrument("account_orders", h.handleAccountOrders))
	mux.HandleFunc("GET /v1/funding/{asset}", h.instrument("funding_history", h.handleFundingHistory))
	mux.HandleFunc("GET /v1/events", h.instrument("event_history", h.handleEventHistory))
	mux.HandleFunc("GET /v1/admin/integrity", h.instrument("integrity", h.handleIntegrity))
}

func (h *Handler) instrument(endpoint string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		h.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		h.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
		if sw.status >= 500 {
			h.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (h *Handler) handlePoolAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.svc.GetPoolAssets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, assets)
}

func (h *Handler) handleWalletBalances(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUUID(w, r.PathValue("owner"))
	if !ok {
		return
	}
	balances, err := h.svc.GetWalletBalances(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, balances)
}

func (h *Handler) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUUID(w, r.PathValue("owner"))
	if !ok {
		return
	}
	balance, err := h.svc.GetWalletBalance(r.Context(), ownerID, r.PathValue("asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, balance)
}

func (h *Handler) handleOwnerAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUUID(w, r.PathValue("owner"))
	if !ok {
		return
	}
	states, err := h.svc.GetDebtStatesByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, states)
}

func (h *Handler) handleOwnerJournal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUUID(w, r.PathValue("owner"))
	if !ok {
		return
	}
	limit, after := pagination(r)
	entries, err := h.svc.GetJournalHistory(r.Context(), ownerID, limit, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (h *Handler) handleAccountDebt(w http.ResponseWriter, r *http.Request) {
	subAccountID, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	state, err := h.svc.GetDebtState(r.Context(), subAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	if state == nil {
		http.Error(w, "sub-account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) handleAccountOrders(w http.ResponseWriter, r *http.Request) {
	subAccountID, ok := parseUUID(w, r.PathValue("id"))
	if !ok {
		return
	}
	orders, err := h.svc.GetPendingOrders(r.Context(), subAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, orders)
}

func (h *Handler) handleFundingHistory(w http.ResponseWriter, r *http.Request) {
	limit, after := pagination(r)
	history, err := h.svc.GetFundingHistory(r.Context(), r.PathValue("asset"), limit, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, history)
}

func (h *Handler) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	partition := r.URL.Query().Get("partition")
	if partition == "" {
		http.Error(w, "partition query parameter required", http.StatusBadRequest)
		return
	}
	limit, after := pagination(r)
	events, err := h.svc.GetEventHistory(r.Context(), partition, limit, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, events)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

func pagination(r *http.Request) (int, *int64) {
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var after *int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			after = &n
		}
	}
	return limit, after
}

func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid uuid", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("query response encode failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("query failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
