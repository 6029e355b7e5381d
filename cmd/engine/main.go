package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"matchcore/internal/admin"
	"matchcore/internal/config"
	"matchcore/internal/feed"
	"matchcore/internal/journal"
	"matchcore/internal/outbox"
	"matchcore/internal/pipeline"
	"matchcore/internal/publish"
	"matchcore/internal/sequence"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	// ---------------- Journal ----------------

	jr, err := journal.Open(journal.Config{
		Dir:         cfg.Journal.Dir,
		SegmentSize: int64(cfg.Journal.SegmentSizeMiB) << 20,
	})
	if err != nil {
		logger.Fatalf("journal init failed: %v", err)
	}
	defer jr.Close()

	// ---------------- Outbox ----------------

	box, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		logger.Fatalf("outbox init failed: %v", err)
	}
	defer box.Close()

	// ---------------- Sequencer ----------------

	seqGen := sequence.New(0)

	// ---------------- Pipeline (book + epoch reclamation) ----------------

	p, err := pipeline.New(cfg.Book.RingCapacity, cfg.Book.NodePoolCapacity, cfg.Book.SymbolTag)
	if err != nil {
		logger.Fatalf("pipeline init failed: %v", err)
	}
	p.Book().EnableEpochReclamation(cfg.Book.RetireRingCap)

	// ---------------- Journal replay ----------------

	lastSeq, err := journal.Replay(cfg.Journal.Dir, func(rec *journal.Record) error { return nil })
	if err != nil {
		logger.Fatalf("journal replay failed: %v", err)
	}
	seqGen.Reset(lastSeq)
	logger.WithField("last_seq", lastSeq).Info("engine: journal replay complete")

	// ---------------- Outbox-backed sinks ----------------

	tradeSink := &tradeOutboxSink{box: box, symbolTag: cfg.Book.SymbolTag}
	ackSink := &ackOutboxSink{box: box}

	go p.ConsumerRun(tradeSink, ackSink)

	// ---------------- Admin HTTP ----------------

	adminSrv := admin.NewServer(p, logger)
	go func() {
		if err := adminSrv.Start(cfg.Admin.ListenAddr); err != nil {
			logger.WithError(err).Error("admin: server exited")
		}
	}()

	// ---------------- Kafka intake bridge ----------------

	bridge, err := feed.NewBridge(feed.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.IntakeTopic,
		GroupID: cfg.Kafka.IntakeGroupID,
	}, p.ProducerHandle(), jr, seqGen, logger)
	if err != nil {
		logger.Fatalf("feed bridge init failed: %v", err)
	}
	defer bridge.Close()
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("feed: bridge exited")
		}
	}()

	// ---------------- Kafka trade/ack publisher ----------------

	pub := publish.New(publish.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.TradesTopic,
	}, box, logger, nil)
	defer pub.Close()
	go pub.Run(ctx)

	logger.WithField("symbol_tag", cfg.Book.SymbolTag).Info("engine: running")

	<-ctx.Done()
	logger.Info("engine: shutting down")

	p.ProducerHandle().TryPush(pipeline.ShutdownEvent(uint64(time.Now().UnixNano())))
	time.Sleep(100 * time.Millisecond)
	logger.Info("engine: stopped")
}
