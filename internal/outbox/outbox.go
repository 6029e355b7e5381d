// Package outbox is a pebble-backed durable store of emitted trade
// and ack records awaiting downstream Kafka delivery, in the style of
// an exit write-ahead log. A publisher restart resumes from whatever
// rows are not yet Acked instead of silently dropping fills.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// State is the delivery lifecycle of one outbox row.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
	// StateDead is terminal: a row that failed past its retry budget.
	// ScanByState(StateFailed, ...) never sees it again, so a
	// permanently-unreachable broker cannot spin the outbox scan
	// forever on the same poisoned row.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes a Trade row from an Ack row sharing the id space.
type Kind uint8

const (
	KindTrade Kind = iota
	KindAck
)

// Record is one outbox row: delivery bookkeeping plus the exact wire
// payload (from pipeline.EncodeTrade/EncodeAck) to publish.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][last_attempt:8][payload_len:4][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+8+4+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(r.Payload)))
	copy(buf[17:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 17 {
		return Record{}, errors.New("outbox: truncated record")
	}
	plen := binary.BigEndian.Uint32(b[13:17])
	if len(b) != 17+int(plen) {
		return Record{}, errors.New("outbox: payload length mismatch")
	}
	payload := make([]byte, plen)
	copy(payload, b[17:])
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// Outbox is the durable key-value store of pending trade/ack deliveries.
type Outbox struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble-backed outbox at dir.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability is the entire point of this store
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

// Close releases the underlying pebble handle.
func (o *Outbox) Close() error { return o.db.Close() }

// PutNew inserts a fresh outbox row for id/kind with its wire payload.
func (o *Outbox) PutNew(id uint64, kind Kind, payload []byte) error {
	rec := Record{State: StateNew, Payload: payload}
	return o.db.Set(keyFor(id, kind), encodeRecord(rec), pebble.Sync)
}

// UpdateState transitions an existing row's delivery state, preserving
// its payload.
func (o *Outbox) UpdateState(id uint64, kind Kind, state State, retries uint32, now func() int64) error {
	existing, err := o.Get(id, kind)
	if err != nil {
		return err
	}
	existing.State = state
	existing.Retries = retries
	existing.LastAttempt = now()
	return o.db.Set(keyFor(id, kind), encodeRecord(existing), pebble.Sync)
}

// Delete removes a row, typically after it reaches StateAcked.
func (o *Outbox) Delete(id uint64, kind Kind) error {
	return o.db.Delete(keyFor(id, kind), pebble.Sync)
}

// Get returns the current row for id/kind.
func (o *Outbox) Get(id uint64, kind Kind) (Record, error) {
	val, closer, err := o.db.Get(keyFor(id, kind))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

// ScanByState iterates every row currently in state, invoking fn per row.
// Used by the Kafka publisher to find New/Failed rows to (re)send.
func (o *Outbox) ScanByState(state State, fn func(id uint64, kind Kind, rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("row/"),
		UpperBound: []byte("row/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		id, kind, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, kind, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(id uint64, kind Kind) []byte {
	return []byte(fmt.Sprintf("row/%d/%020d", kind, id))
}

func parseKey(b []byte) (uint64, Kind, error) {
	var kind uint8
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("row/"))), "%d/%d", &kind, &id)
	return id, Kind(kind), err
}
