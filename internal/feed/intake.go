// Package feed is the Kafka order-intake bridge: it consumes
// externally-published order/cancel/modify messages and retries them
// into the pipeline's producer handle, journaling each message first
// so a crash between consume and TryPush is replayable. The role is
// the mirror image of a broadcaster job, a sarama consumer group
// rather than a producer.
package feed

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"matchcore/internal/journal"
	"matchcore/internal/pipeline"
	"matchcore/internal/sequence"
)

// Bridge consumes one Kafka topic and retries each decoded event into
// a pipeline.ProducerHandle, journaling every message before the
// retry loop so a crash mid-retry can be replayed from the journal.
type Bridge struct {
	handle  *pipeline.ProducerHandle
	journal *journal.Journal
	seq     *sequence.Sequencer
	logger  *logrus.Logger

	group sarama.ConsumerGroup
	topic string

	pushRetryLimit int
	pushRetryDelay time.Duration

	dropped atomic.Int64
}

// Config controls the bridge's Kafka connection and retry behaviour.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	// PushRetryLimit bounds how many spin-then-yield attempts TryPush
	// gets before the message is counted as dropped. Zero means 256.
	PushRetryLimit int
	// PushRetryDelay is the yield sleep between spins. Zero means 0
	// (pure runtime.Gosched backoff).
	PushRetryDelay time.Duration
}

// NewBridge dials brokers and joins the consumer group for topic.
func NewBridge(cfg Config, handle *pipeline.ProducerHandle, jr *journal.Journal, seq *sequence.Sequencer, logger *logrus.Logger) (*Bridge, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("feed: new consumer group: %w", err)
	}

	retryLimit := cfg.PushRetryLimit
	if retryLimit == 0 {
		retryLimit = 256
	}

	return &Bridge{
		handle:         handle,
		journal:        jr,
		seq:            seq,
		logger:         logger,
		group:          group,
		topic:          cfg.Topic,
		pushRetryLimit: retryLimit,
		pushRetryDelay: cfg.PushRetryDelay,
	}, nil
}

// Run joins the consumer group and processes claims until ctx is
// cancelled or the group returns a fatal error. It also drains the
// group's error channel into the logger on a background goroutine.
func (b *Bridge) Run(ctx context.Context) error {
	go func() {
		for err := range b.group.Errors() {
			b.logger.WithError(err).Warn("feed: consumer group error")
		}
	}()

	for {
		if err := b.group.Consume(ctx, []string{b.topic}, b); err != nil {
			return fmt.Errorf("feed: consume: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Dropped reports how many messages exhausted their TryPush retry
// budget and were counted as lost rather than blocking the consumer
// loop forever.
func (b *Bridge) Dropped() int64 { return b.dropped.Load() }

// Close leaves the consumer group.
func (b *Bridge) Close() error { return b.group.Close() }

// Setup implements sarama.ConsumerGroupHandler.
func (b *Bridge) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (b *Bridge) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler: decode, journal,
// retry-push, mark consumed, in that order, per message.
func (b *Bridge) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		e, err := pipeline.DecodeEvent(msg.Value)
		if err != nil {
			b.logger.WithError(err).Warn("feed: dropping undecodable message")
			sess.MarkMessage(msg, "")
			continue
		}

		recSeq := b.seq.Next()
		if err := b.journal.Append(journalRecordType(e.Kind), recSeq, msg.Value); err != nil {
			return fmt.Errorf("feed: journal append: %w", err)
		}

		if !b.retryPush(e) {
			b.dropped.Add(1)
			b.logger.WithFields(logrus.Fields{
				"kind": e.Kind,
				"seq":  recSeq,
			}).Warn("feed: dropped event past retry budget")
		}

		sess.MarkMessage(msg, "")
	}
	return nil
}

// retryPush spins with a bounded retry budget and never blocks
// indefinitely; a message that exhausts the budget increments the
// drop counter instead of vanishing silently.
func (b *Bridge) retryPush(e pipeline.Event) bool {
	for i := 0; i < b.pushRetryLimit; i++ {
		if b.handle.TryPush(e) {
			return true
		}
		if b.pushRetryDelay > 0 {
			time.Sleep(b.pushRetryDelay)
		} else {
			runtime.Gosched()
		}
	}
	return false
}

func journalRecordType(k pipeline.EventKind) journal.RecordType {
	return journal.RecordType(k)
}
