package pipeline

import (
	"fmt"
	"runtime"

	"matchcore/internal/book"
	"matchcore/internal/ring"
)

// Sink accepts emitted records. The recommended implementation is a
// second SPSC ring (see RingSink); anything satisfying Push will do.
type Sink[T any] interface {
	Push(v T) bool
}

// RingSink adapts a ring.Ring to the Sink interface and exposes the
// consumer-side TryPop so the same ring can feed an outside reader.
type RingSink[T any] struct {
	r *ring.Ring[T]
}

// NewRingSink allocates a ring-backed sink of the given power-of-two capacity.
func NewRingSink[T any](capacity int) *RingSink[T] {
	return &RingSink[T]{r: ring.New[T](capacity)}
}

func (s *RingSink[T]) Push(v T) bool       { return s.r.TryPush(v) }
func (s *RingSink[T]) TryPop() (T, bool)   { return s.r.TryPop() }
func (s *RingSink[T]) Len() int            { return s.r.Len() }

// ProducerHandle is the sole write entry point exposed to producer
// goroutines. Pipeline.ProducerHandle always returns the same handle.
type ProducerHandle struct {
	p *Pipeline
}

// TryPush enqueues an event. It returns false if the ring is full;
// the caller owns the backoff policy.
func (h *ProducerHandle) TryPush(e Event) bool {
	return h.p.ring.TryPush(e)
}

// Pipeline binds one SPSC ring of Events to one Order Book Core. A
// Pipeline is constructed once per symbol.
type Pipeline struct {
	ring    *ring.Ring[Event]
	book    *book.OrderBook
	handle  *ProducerHandle
	running bool
}

// New constructs a Pipeline with a ring of the given power-of-two
// capacity and a node pool of nodePoolCapacity cells.
func New(ringCapacityPow2, nodePoolCapacity int, symbolTag uint32) (p *Pipeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("pipeline: %v", r)
		}
	}()
	pl := &Pipeline{
		ring: ring.New[Event](ringCapacityPow2),
		book: book.New(symbolTag, nodePoolCapacity),
	}
	pl.handle = &ProducerHandle{p: pl}
	return pl, nil
}

// ProducerHandle returns the pipeline's single producer handle.
func (p *Pipeline) ProducerHandle() *ProducerHandle { return p.handle }

// Book exposes the underlying order book. Every OrderBook method that
// touches the live ladders is single-goroutine-only; callers on other
// goroutines (e.g. the admin surface) must stick to methods explicitly
// documented as safe for concurrent use, such as LatestDepthSnapshot.
func (p *Pipeline) Book() *book.OrderBook { return p.book }

// ConsumerRun drains the ring on the calling goroutine, applying each
// event to the order book and forwarding emitted trades/acks to the
// given sinks. It returns when a Shutdown event is processed.
func (p *Pipeline) ConsumerRun(tradeSink Sink[book.Trade], ackSink Sink[book.Ack]) {
	p.running = true
	for p.running {
		e, ok := p.ring.TryPop()
		if !ok {
			runtime.Gosched()
			continue
		}
		p.apply(e, tradeSink, ackSink)
	}
}

func (p *Pipeline) apply(e Event, tradeSink Sink[book.Trade], ackSink Sink[book.Ack]) {
	switch e.Kind {
	case EventNewOrder:
		_, trades, ack := p.book.Submit(book.NewOrderFields{
			ClientOrderId: e.ClientOrderId,
			Side:          e.Side,
			Type:          e.Type,
			Price:         e.Price,
			Qty:           e.Qty,
			TimestampNs:   e.TimestampNs,
		})
		for _, tr := range trades {
			tradeSink.Push(tr)
		}
		ackSink.Push(ack)
		p.book.RefreshDepthSnapshot()

	case EventCancel:
		ack := p.book.Cancel(e.OrderId, e.TimestampNs)
		ackSink.Push(ack)
		p.book.RefreshDepthSnapshot()

	case EventModify:
		trades, ack := p.book.Modify(e.OrderId, e.NewQty, e.NewPrice, e.TimestampNs)
		for _, tr := range trades {
			tradeSink.Push(tr)
		}
		ackSink.Push(ack)
		p.book.RefreshDepthSnapshot()

	case EventShutdown:
		p.running = false
		p.book.ReleaseAll()

	default:
		panic(fmt.Sprintf("pipeline: unknown event kind %d reached consumer", e.Kind))
	}
}
