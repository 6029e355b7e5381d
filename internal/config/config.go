// Package config builds the engine's runtime configuration from
// environment variables: explicit defaults, no global mutable
// singleton, a single Load entry point.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

const (
	defaultSymbolTag         = 1
	defaultRingCapacity      = 1 << 16
	defaultNodePoolCapacity  = 1 << 20
	defaultRetireRingCap     = 1 << 12
	defaultJournalSegmentMB  = 64
	defaultAdminAddr         = "0.0.0.0:8090"
	defaultOutboxDir         = "./data/outbox"
	defaultJournalDir        = "./data/journal"
	defaultKafkaIntakeTopic  = "orders.intake"
	defaultKafkaTradesTopic  = "trades.out"
	defaultKafkaConsumerGrp  = "matchcore-intake"
)

// Config is the engine's full runtime configuration.
type Config struct {
	Env     string
	Book    BookConfig
	Journal JournalConfig
	Outbox  OutboxConfig
	Kafka   KafkaConfig
	Admin   AdminConfig
}

// BookConfig sizes the pipeline's ring and node pool.
type BookConfig struct {
	SymbolTag        uint32
	RingCapacity     int
	NodePoolCapacity int
	RetireRingCap    int
}

// JournalConfig controls the event journal.
type JournalConfig struct {
	Dir            string
	SegmentSizeMiB int
}

// OutboxConfig controls the pebble-backed outbox.
type OutboxConfig struct {
	Dir string
}

// KafkaConfig configures both the sarama-based intake bridge and the
// kafka-go-based trade/ack publisher.
type KafkaConfig struct {
	Brokers       []string
	IntakeTopic   string
	IntakeGroupID string
	TradesTopic   string
}

// AdminConfig configures the read-only HTTP surface.
type AdminConfig struct {
	ListenAddr string
}

// Load builds Config from environment variables, applying the
// package defaults for anything unset.
func Load() (*Config, error) {
	symbolTag, err := getInt("MATCHCORE_SYMBOL_TAG", defaultSymbolTag)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHCORE_SYMBOL_TAG: %w", err)
	}
	ringCap, err := getInt("MATCHCORE_RING_CAPACITY", defaultRingCapacity)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHCORE_RING_CAPACITY: %w", err)
	}
	poolCap, err := getInt("MATCHCORE_NODE_POOL_CAPACITY", defaultNodePoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHCORE_NODE_POOL_CAPACITY: %w", err)
	}
	retireCap, err := getInt("MATCHCORE_RETIRE_RING_CAPACITY", defaultRetireRingCap)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHCORE_RETIRE_RING_CAPACITY: %w", err)
	}
	segMiB, err := getInt("MATCHCORE_JOURNAL_SEGMENT_MB", defaultJournalSegmentMB)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHCORE_JOURNAL_SEGMENT_MB: %w", err)
	}

	brokersRaw := getString("MATCHCORE_KAFKA_BROKERS", "")
	if brokersRaw == "" {
		return nil, errors.New("MATCHCORE_KAFKA_BROKERS is required")
	}

	return &Config{
		Env: getString("MATCHCORE_ENV", "development"),
		Book: BookConfig{
			SymbolTag:        uint32(symbolTag),
			RingCapacity:     ringCap,
			NodePoolCapacity: poolCap,
			RetireRingCap:    retireCap,
		},
		Journal: JournalConfig{
			Dir:            getString("MATCHCORE_JOURNAL_DIR", defaultJournalDir),
			SegmentSizeMiB: segMiB,
		},
		Outbox: OutboxConfig{
			Dir: getString("MATCHCORE_OUTBOX_DIR", defaultOutboxDir),
		},
		Kafka: KafkaConfig{
			Brokers:       splitCSV(brokersRaw),
			IntakeTopic:   getString("MATCHCORE_KAFKA_INTAKE_TOPIC", defaultKafkaIntakeTopic),
			IntakeGroupID: getString("MATCHCORE_KAFKA_INTAKE_GROUP", defaultKafkaConsumerGrp),
			TradesTopic:   getString("MATCHCORE_KAFKA_TRADES_TOPIC", defaultKafkaTradesTopic),
		},
		Admin: AdminConfig{
			ListenAddr: getString("MATCHCORE_ADMIN_ADDR", defaultAdminAddr),
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
