package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. NATS JetStream is the
// primary high-throughput ingestion surface. Each subject maps to an
// event type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each event
// type has its own subject so consumers can scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perpboost.cmd.pool.deposit.>", EventType: "PoolDeposit", ConsumerName: "boost-pool-deposit", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.pool.withdraw.>", EventType: "PoolWithdraw", ConsumerName: "boost-pool-withdraw", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.pool.flags.>", EventType: "PoolSetFlags", ConsumerName: "boost-pool-flags", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.wallet.deposit.>", EventType: "WalletDeposit", ConsumerName: "boost-wallet-deposit", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.wallet.withdraw.>", EventType: "WalletWithdraw", ConsumerName: "boost-wallet-withdraw", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.create.>", EventType: "SubAccountCreate", ConsumerName: "boost-acct-create", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.open.>", EventType: "PositionOpen", ConsumerName: "boost-acct-open", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.close.>", EventType: "PositionClose", ConsumerName: "boost-acct-close", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.withdraw.>", EventType: "AccountWithdraw", ConsumerName: "boost-acct-withdraw", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.cancel.>", EventType: "OrderCancel", ConsumerName: "boost-acct-cancel", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.timeout.>", EventType: "OrderCancelTimeout", ConsumerName: "boost-acct-timeout", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.liquidate.>", EventType: "PositionLiquidate", ConsumerName: "boost-acct-liquidate", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.account.refresh.>", EventType: "ConfigRefresh", ConsumerName: "boost-acct-refresh", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.admin.project.>", EventType: "ProjectConfigSet", ConsumerName: "boost-admin-project", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.admin.asset.>", EventType: "AssetConfigSet", ConsumerName: "boost-admin-asset", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.admin.borrow.>", EventType: "BorrowConfigSet", ConsumerName: "boost-admin-borrow", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.cmd.admin.role.>", EventType: "RoleSet", ConsumerName: "boost-admin-role", StreamName: "PERPBOOST_CMDS"},
		{Subject: "perpboost.venue.fill.>", EventType: "VenueFill", ConsumerName: "boost-venue-fill", StreamName: "PERPBOOST_VENUE"},
		{Subject: "perpboost.venue.cancel.>", EventType: "VenueCancel", ConsumerName: "boost-venue-cancel", StreamName: "PERPBOOST_VENUE"},
		{Subject: "perpboost.venue.funding.>", EventType: "FundingIndexUpdate", ConsumerName: "boost-venue-funding", StreamName: "PERPBOOST_VENUE"},
		{Subject: "perpboost.venue.price.>", EventType: "PriceUpdate", ConsumerName: "boost-venue-price", StreamName: "PERPBOOST_VENUE"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "PERPBOOST_CMDS",
			Subjects:  []string{"perpboost.cmd.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERPBOOST_VENUE",
			Subjects:  []string{"perpboost.venue.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
