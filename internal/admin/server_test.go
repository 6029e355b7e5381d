package admin

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"matchcore/internal/book"
	"matchcore/internal/pipeline"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHealthzReportsUptime(t *testing.T) {
	p, err := pipeline.New(4, 16, 1)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(p, testLogger())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %v", body["status"])
	}
}

func TestMetricsReflectsNodePoolUsage(t *testing.T) {
	p, err := pipeline.New(4, 16, 1)
	if err != nil {
		t.Fatal(err)
	}
	p.Book().EnableEpochReclamation(8)
	p.Book().Submit(book.NewOrderFields{Side: book.Buy, Type: book.Limit, Price: 100, Qty: 5, TimestampNs: 1})

	s := NewServer(p, testLogger())
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["node_pool_live"].(float64) != 1 {
		t.Fatalf("expected 1 live node, got %v", body["node_pool_live"])
	}
}

func TestDepthReturnsRestingOrdersByPriceLevel(t *testing.T) {
	p, err := pipeline.New(4, 16, 1)
	if err != nil {
		t.Fatal(err)
	}
	p.Book().EnableEpochReclamation(8)
	p.Book().Submit(book.NewOrderFields{Side: book.Buy, Type: book.Limit, Price: 100, Qty: 5, TimestampNs: 1})
	p.Book().Submit(book.NewOrderFields{Side: book.Buy, Type: book.Limit, Price: 99, Qty: 3, TimestampNs: 2})
	p.Book().Submit(book.NewOrderFields{Side: book.Sell, Type: book.Limit, Price: 105, Qty: 7, TimestampNs: 3})
	p.Book().RefreshDepthSnapshot()

	s := NewServer(p, testLogger())
	req := httptest.NewRequest("GET", "/depth?levels=5", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp depthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Bids) != 2 || len(resp.Asks) != 1 {
		t.Fatalf("unexpected depth: %+v", resp)
	}
	if resp.Bids[0].Price != 100 {
		t.Fatalf("expected best bid first at 100, got %v", resp.Bids[0].Price)
	}
}

// TestDepthSnapshotSafeDuringConcurrentConsumerActivity drives real
// concurrent traffic through the pipeline's consumer goroutine while
// hammering /depth from the calling goroutine, the same shape of
// concurrency cmd/engine/main.go wires in production. It only asserts
// every response decodes cleanly; the point is that this is safe to
// run under go test -race at all, since /depth no longer walks the
// live ladders directly.
func TestDepthSnapshotSafeDuringConcurrentConsumerActivity(t *testing.T) {
	p, err := pipeline.New(1024, 256, 1)
	if err != nil {
		t.Fatal(err)
	}
	p.Book().EnableEpochReclamation(64)

	tradeSink := pipeline.NewRingSink[book.Trade](64)
	ackSink := pipeline.NewRingSink[book.Ack](64)
	consumerDone := make(chan struct{})
	go func() {
		p.ConsumerRun(tradeSink, ackSink)
		close(consumerDone)
	}()

	s := NewServer(p, testLogger())
	handle := p.ProducerHandle()

	var producers sync.WaitGroup
	producers.Add(1)
	go func() {
		defer producers.Done()
		for i := 0; i < 500; i++ {
			side := book.Buy
			if i%2 == 0 {
				side = book.Sell
			}
			price := book.Price(100 + i%20)
			ev := pipeline.NewOrderEvent(book.ClientOrderId(i), 1, side, book.Limit, price, 1, uint64(i))
			for !handle.TryPush(ev) {
				runtime.Gosched()
			}
		}
	}()

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/depth?levels=5", nil)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		if w.Code != 200 {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp depthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("depth response %d did not decode: %v", i, err)
		}
	}

	producers.Wait()
	for !handle.TryPush(pipeline.ShutdownEvent(0)) {
		runtime.Gosched()
	}
	<-consumerDone
}
