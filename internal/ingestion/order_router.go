package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"PerpBoost/internal/order"
	"PerpBoost/internal/venue"
)

// NATSOrderRouter forwards order placements and cancellations to the
// venue adapter over NATS. Publishes are fire-and-forget: resolution
// comes back asynchronously on the venue fill/cancel subjects.
//
// The router starts disabled so event-log replay never re-places
// historical orders; the shell enables it once replay reaches head.
type NATSOrderRouter struct {
	nc      *nats.Conn
	enabled atomic.Bool
}

func NewNATSOrderRouter(nc *nats.Conn) *NATSOrderRouter {
	return &NATSOrderRouter{nc: nc}
}

// Enable turns on live publishing. Called after replay completes.
func (r *NATSOrderRouter) Enable() {
	r.enabled.Store(true)
}

type orderRequestJSON struct {
	SubAccountID    uuid.UUID `json:"sub_account_id"`
	OrderKey        string    `json:"order_key"`
	CollateralToken string    `json:"collateral_token"`
	AssetToken      string    `json:"asset_token"`
	IsLong          bool      `json:"is_long"`
	IsMarket        bool      `json:"is_market"`
	CollateralDelta int64     `json:"collateral_delta"`
	SizeDeltaUsd    int64     `json:"size_delta_usd"`
	AcceptablePrice int64     `json:"acceptable_price"`
	ReferralCode    string    `json:"referral_code"`
}

type orderCancelJSON struct {
	SubAccountID uuid.UUID `json:"sub_account_id"`
	OrderKey     string    `json:"order_key"`
}

func (r *NATSOrderRouter) PlaceIncreaseOrder(params venue.OrderParams) error {
	return r.publishOrder("perpboost.orders.place.increase", params)
}

func (r *NATSOrderRouter) PlaceDecreaseOrder(params venue.OrderParams) error {
	return r.publishOrder("perpboost.orders.place.decrease", params)
}

func (r *NATSOrderRouter) CancelOrder(subAccountID uuid.UUID, key order.Key) error {
	if !r.enabled.Load() {
		return nil
	}
	data, err := json.Marshal(orderCancelJSON{
		SubAccountID: subAccountID,
		OrderKey:     key.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}
	if err := r.nc.Publish("perpboost.orders.cancel", data); err != nil {
		// The order stays pending and times out if the venue never sees
		// the cancel; the keeper path retries via OrderCancelTimeout.
		log.Printf("WARN: cancel publish failed key=%s: %v", key, err)
	}
	return nil
}

func (r *NATSOrderRouter) publishOrder(subject string, params venue.OrderParams) error {
	if !r.enabled.Load() {
		return nil
	}
	data, err := json.Marshal(orderRequestJSON{
		SubAccountID:    params.SubAccountID,
		OrderKey:        params.Key.String(),
		CollateralToken: params.CollateralToken,
		AssetToken:      params.AssetToken,
		IsLong:          params.IsLong,
		IsMarket:        params.IsMarket,
		CollateralDelta: params.CollateralDelta,
		SizeDeltaUsd:    params.SizeDeltaUsd,
		AcceptablePrice: params.AcceptablePrice,
		ReferralCode:    params.ReferralCode,
	})
	if err != nil {
		return fmt.Errorf("marshal order request: %w", err)
	}
	return r.nc.Publish(subject, data)
}

// EnsureOrderStream creates the outbound order request stream consumed
// by the venue adapter.
func EnsureOrderStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERPBOOST_ORDERS",
		Subjects:  []string{"perpboost.orders.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create order stream: %w", err)
	}
	log.Println("INFO: ensured order stream PERPBOOST_ORDERS")
	return nil
}
