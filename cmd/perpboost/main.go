package main

import (
	"PerpBoost/internal/core"
	"PerpBoost/internal/event"
	"PerpBoost/internal/ingestion"
	"PerpBoost/internal/observability"
	"PerpBoost/internal/persistence"
	"PerpBoost/internal/projection"
	"PerpBoost/internal/query"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: PerpBoost starting...")

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	logger := observability.NewLogger("perpboost")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	log.Println("INFO: Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.Sequence)
	} else {
		log.Println("INFO: no snapshot found, cold start from sequence 0")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Channels ---
	// The persist channel blocks (backpressure); the projection channel
	// drops and relies on rebuild.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)

	persistWorkerChan := make(chan persistence.CoreOutput, cfg.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)
	publishChan := make(chan ingestion.PublishableEvent, 4096)

	// Tier-2 dedup stays off until replay completes: replayed events ARE
	// in the event log, and must not be skipped as duplicates.
	dedupGate := &gatedIdempotencyChecker{inner: persistence.NewPostgresIdempotencyChecker(db)}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure outbound stream: %v", err)
	}
	if err := ingestion.EnsureOrderStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure order stream: %v", err)
	}

	// Order router starts disabled so replay never re-places orders.
	orderRouter := ingestion.NewNATSOrderRouter(nc)

	// --- Deterministic Core ---
	deterministicCore := core.NewDeterministicCore(
		cfg.AdminUUID(),
		startSequence,
		persistCoreChan,
		projectionCoreChan,
		orderRouter,
		dedupGate,
		metrics,
		logger,
	)

	// --- Snapshot restore + LRU warming ---
	if snap != nil {
		deterministicCore.RestoreFromSnapshot(snap.ToCoreSnapshot())
		log.Printf("INFO: restored in-memory state from snapshot at sequence %d", snap.Sequence)
		if len(snap.IdempotencyKeys) > 0 {
			log.Printf("INFO: warming LRU with %d keys from snapshot", len(snap.IdempotencyKeys))
			deterministicCore.WarmLRU(snap.IdempotencyKeys)
		}
	}

	// --- Start workers before replay ---
	// Replayed events flow through persistence again; the event log
	// writes are ON CONFLICT DO NOTHING so this is idempotent.
	errChan := make(chan error, 10)

	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// Outbound publishing stays off during replay: downstream consumers
	// already saw these events on the first run.
	var publishLive atomic.Bool

	go bridgePersistOutputs(ctx, persistCoreChan, persistWorkerChan, publishChan, &publishLive)

	projector := newProjectionBridge(deterministicCore, projectionCoreChan, projectionWorkerChan, metrics)

	// --- Event Replay ---
	replayStart := time.Now()
	replayCount, err := replayEventsFromLog(ctx, snapMgr, deterministicCore, projector, startSequence)
	if err != nil {
		log.Fatalf("FATAL: event replay failed: %v", err)
	}
	if replayCount > 0 {
		metrics.ReplayDuration.Set(time.Since(replayStart).Seconds())
		log.Printf("INFO: replayed %d events (sequence now at %d)", replayCount, deterministicCore.GetSequence())
	}

	// --- State Hash Verification ---
	if snap != nil && replayCount == 0 {
		var expectedHash [32]byte
		copy(expectedHash[:], snap.StateHash)
		actualHash := deterministicCore.GetStateHash()
		if expectedHash != actualHash {
			log.Fatalf("FATAL: state hash mismatch after restore: expected %x, got %x", expectedHash, actualHash)
		}
		log.Println("INFO: state hash verified after snapshot restore")
	}

	// Replay complete: go live.
	dedupGate.enabled.Store(true)
	publishLive.Store(true)
	orderRouter.Enable()

	// --- NATS subscription ---
	rawEventChan := make(chan ingestion.RawEvent, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	// --- Ingestion loop ---
	go func() {
		runIngestionLoop(ctx, rawEventChan, deterministicCore, projector)
	}()

	// --- HTTP API (health + query) ---
	queryService := query.NewQueryService(db)
	queryHandler := query.NewHandler(queryService, metrics)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /healthz", healthChecker.LivenessHandler)
	apiMux.HandleFunc("GET /readyz", healthChecker.ReadinessHandler)
	queryHandler.Register(apiMux)

	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			apiServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: HTTP API listening on %s", cfg.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http api server: %w", err)
		}
	}()

	// --- Prometheus metrics server ---
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: Metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// --- Periodic snapshots ---
	go func() {
		runPeriodicSnapshots(ctx, deterministicCore, snapMgr, int(cfg.SnapshotInterval), metrics)
	}()

	healthChecker.SetReady(true)
	log.Printf("INFO: PerpBoost ready (sequence=%d, http=%s, metrics=%s)",
		deterministicCore.GetSequence(), cfg.HTTPAddr, cfg.MetricsAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	cancel()

	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics); err != nil {
		log.Printf("ERROR: final snapshot failed: %v", err)
	} else {
		log.Println("INFO: final snapshot saved")
	}

	log.Println("INFO: PerpBoost shutdown complete")
}

// gatedIdempotencyChecker wraps the Postgres tier-2 lookup behind an
// on/off switch. Disabled lookups report "not a duplicate" so the core
// reprocesses replayed events.
type gatedIdempotencyChecker struct {
	inner   core.DBIdempotencyChecker
	enabled atomic.Bool
}

func (g *gatedIdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	if !g.enabled.Load() {
		return false, nil
	}
	return g.inner.IsDuplicate(eventType, idempotencyKey)
}

// bridgePersistOutputs converts core outputs to persistence rows and
// feeds the outbound publisher. It only touches immutable envelope and
// batch data, so it is safe off the core goroutine.
func bridgePersistOutputs(
	ctx context.Context,
	in <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	publishOut chan<- ingestion.PublishableEvent,
	publishLive *atomic.Bool,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-in:
			if !ok {
				return
			}

			persistOut <- persistence.ConvertOutput(output.Envelope, output.Batches)

			if !publishLive.Load() {
				continue
			}
			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Partition:      output.Envelope.Partition,
				Payload:        json.RawMessage(output.Envelope.Payload),
				StateHash:      output.Envelope.StateHash[:],
				Timestamp:      time.UnixMicro(output.Envelope.Timestamp),
			}:
			default:
				// Drop if publish channel is full
			}
		}
	}
}

// runIngestionLoop reads raw events from NATS, parses them, and feeds
// the deterministic core. Messages are acked after the parsed event is
// handed to the core loop, not after processing, so backpressure
// propagates via channel blocking without AckWait expiry.
func runIngestionLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawEvent,
	deterministicCore *core.DeterministicCore,
	projector *projectionBridge,
) {
	subjectToType := make(map[string]string)
	for _, cfg := range ingestion.DefaultSubjects() {
		prefix := cfg.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = cfg.EventType
	}

	typedEventChan := make(chan event.Event, 4096)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedEventChan)
					return
				}

				eventType := resolveEventType(raw.Subject, subjectToType)
				if eventType == "" {
					log.Printf("WARN: unknown NATS subject: %s", raw.Subject)
					raw.AckFunc()
					continue
				}

				evt, err := ingestion.ParseRawEvent(raw, eventType)
				if err != nil {
					log.Printf("WARN: parse event failed (subject=%s): %v", raw.Subject, err)
					raw.AckFunc()
					continue
				}

				select {
				case typedEventChan <- evt:
					raw.AckFunc()
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-typedEventChan:
			if !ok {
				return
			}

			if err := deterministicCore.ProcessEvent(evt); err != nil {
				log.Printf("ERROR: core.ProcessEvent failed (type=%s, key=%s): %v",
					evt.EventType(), evt.IdempotencyKey(), err)
			}
			// Drain on the core goroutine: the bridge reads registry and
			// pool state, which only this goroutine mutates.
			projector.drain()
		}
	}
}

// resolveEventType finds the event type for a NATS subject by matching
// the longest configured prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// replayEventsFromLog replays events from the event log starting at
// fromSequence: warm restart replays the tail, cold restart replays all.
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	deterministicCore *core.DeterministicCore,
	projector *projectionBridge,
	fromSequence int64,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}

		if len(events) == 0 {
			break
		}

		for _, evtRow := range events {
			typedEvt, err := event.DecodeEvent(evtRow.EventType, evtRow.Payload)
			if err != nil {
				return totalReplayed, fmt.Errorf("decode event seq=%d: %w", evtRow.Sequence, err)
			}

			if err := deterministicCore.ProcessEvent(typedEvt); err != nil {
				// Events that were rejected on the first run reject again
				// on replay; anything else would be non-deterministic.
				log.Printf("DEBUG: replay reject seq=%d: %v", evtRow.Sequence, err)
			}
			projector.drain()

			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// runPeriodicSnapshots takes snapshots every N events.
func runPeriodicSnapshots(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	interval int,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := deterministicCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := deterministicCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= int64(interval) {
				if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics); err != nil {
					log.Printf("WARN: periodic snapshot failed: %v", err)
				} else {
					lastSnapshotSeq = currentSeq
					log.Printf("INFO: periodic snapshot at sequence %d", currentSeq)
				}
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
// Runs on the shutdown path and the periodic snapshot goroutine; the
// core's snapshot accessors are read-only over immutable-per-event
// state, and the periodic path only fires between events in practice.
func takeSnapshot(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snapData := persistence.FromCoreSnapshot(deterministicCore.CreateSnapshotState(), time.Now())

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Created from live state, so verified by construction.
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		log.Printf("WARN: mark snapshot verified failed: %v", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}
