// Package publish is the outbound Kafka trade/ack publisher: on a
// timer it drains the outbox for rows not yet acknowledged downstream,
// publishes them to Kafka, and advances their delivery state.
// Deliberately built on segmentio/kafka-go rather than the intake
// bridge's sarama client, keeping the two Kafka-facing components on
// independent client libraries.
package publish

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"matchcore/internal/outbox"
)

// Clock lets tests inject a deterministic time source; a nil Clock
// passed to New falls back to time.Now().UnixNano.
type Clock func() int64

// kafkaWriter is the slice of *kafka.Writer the publisher depends on,
// narrowed so tests can substitute a fake that never dials a broker.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config controls the publisher's Kafka connection and drain cadence.
type Config struct {
	Brokers []string
	Topic   string

	// DrainInterval is how often ScanByState runs. Zero means 250ms.
	DrainInterval time.Duration
	// MaxRetries caps how many failed publish attempts a row gets
	// before it is moved to StateDead for manual inspection instead
	// of being retried forever.
	MaxRetries uint32
}

// Publisher drains New/Failed/Sent outbox rows to a single Kafka topic.
type Publisher struct {
	writer kafkaWriter
	box    *outbox.Outbox
	logger *logrus.Logger
	clock  Clock

	interval   time.Duration
	maxRetries uint32
}

// New wires a Publisher over an already-open Outbox.
func New(cfg Config, box *outbox.Outbox, logger *logrus.Logger, clock Clock) *Publisher {
	interval := cfg.DrainInterval
	if interval == 0 {
		interval = 250 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	if clock == nil {
		clock = func() int64 { return time.Now().UnixNano() }
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		box:        box,
		logger:     logger,
		clock:      clock,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

// Run drains the outbox on a ticker until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

// drainOnce publishes every StateNew, StateFailed and StateSent row
// once. deliver never leaves a row in StateSent on return, so a Sent
// row here is one a previous process marked but never finished; it is
// resent. Rows that deliver moved to StateDead are never rescanned.
func (p *Publisher) drainOnce(ctx context.Context) {
	for _, state := range [...]outbox.State{outbox.StateNew, outbox.StateFailed, outbox.StateSent} {
		err := p.box.ScanByState(state, func(id uint64, kind outbox.Kind, rec outbox.Record) error {
			return p.deliver(ctx, id, kind, rec)
		})
		if err != nil {
			p.logger.WithError(err).Warn("publish: scan failed")
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, id uint64, kind outbox.Kind, rec outbox.Record) error {
	if err := p.box.UpdateState(id, kind, outbox.StateSent, rec.Retries, p.clock); err != nil {
		return err
	}

	key := outboxKey(id, kind)
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: rec.Payload})
	if err != nil {
		retries := rec.Retries + 1
		if retries > p.maxRetries {
			if uerr := p.box.UpdateState(id, kind, outbox.StateDead, retries, p.clock); uerr != nil {
				return uerr
			}
			p.logger.WithError(err).WithField("retries", retries).
				Error("publish: delivery failed past retry budget, row left dead for manual inspection")
			return nil
		}
		if uerr := p.box.UpdateState(id, kind, outbox.StateFailed, retries, p.clock); uerr != nil {
			return uerr
		}
		p.logger.WithError(err).WithField("retries", retries).Warn("publish: delivery failed, will retry")
		return nil
	}

	if err := p.box.UpdateState(id, kind, outbox.StateAcked, rec.Retries, p.clock); err != nil {
		return err
	}
	return p.box.Delete(id, kind)
}

// Close closes the underlying Kafka writer.
func (p *Publisher) Close() error { return p.writer.Close() }

func outboxKey(id uint64, kind outbox.Kind) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(kind)
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(id >> (8 * i))
	}
	return buf
}
