package publish

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"matchcore/internal/outbox"
)

// fakeWriter never reaches a broker; it always fails WriteMessages so
// tests can drive the retry-ceiling path deterministically.
type fakeWriter struct {
	writes int
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.writes++
	return errors.New("fake: broker unreachable")
}

func (f *fakeWriter) Close() error { return nil }

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestPublisher(t *testing.T, maxRetries uint32) (*Publisher, *outbox.Outbox, *fakeWriter) {
	t.Helper()
	box, err := outbox.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { box.Close() })

	fw := &fakeWriter{}
	clock := func() int64 { return 1 }
	p := &Publisher{
		writer:     fw,
		box:        box,
		logger:     discardLogger(),
		clock:      clock,
		maxRetries: maxRetries,
	}
	return p, box, fw
}

func TestDeliverRetriesUntilMaxRetriesThenGoesDead(t *testing.T) {
	p, box, fw := newTestPublisher(t, 2)

	if err := box.PutNew(1, outbox.KindTrade, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	rec, err := box.Get(1, outbox.KindTrade)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := p.deliver(context.Background(), 1, outbox.KindTrade, rec); err != nil {
			t.Fatal(err)
		}
		rec, err = box.Get(1, outbox.KindTrade)
		if err != nil {
			t.Fatal(err)
		}
		if rec.State != outbox.StateFailed {
			t.Fatalf("attempt %d: expected StateFailed, got %v", i+1, rec.State)
		}
	}

	// Third attempt pushes retries past maxRetries=2: terminal StateDead.
	if err := p.deliver(context.Background(), 1, outbox.KindTrade, rec); err != nil {
		t.Fatal(err)
	}
	rec, err = box.Get(1, outbox.KindTrade)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != outbox.StateDead {
		t.Fatalf("expected StateDead past retry budget, got %v", rec.State)
	}
	if rec.Retries != 3 {
		t.Fatalf("expected 3 recorded retries, got %d", rec.Retries)
	}
	if fw.writes != 3 {
		t.Fatalf("expected 3 write attempts, got %d", fw.writes)
	}
}

func TestDrainOnceNeverRescansDeadRows(t *testing.T) {
	p, box, fw := newTestPublisher(t, 0)

	if err := box.PutNew(9, outbox.KindAck, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	// maxRetries=0: the very first failure is already past budget.
	p.drainOnce(context.Background())

	rec, err := box.Get(9, outbox.KindAck)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != outbox.StateDead {
		t.Fatalf("expected row dead after one failed attempt with maxRetries=0, got %v", rec.State)
	}

	writesAfterFirstDrain := fw.writes
	p.drainOnce(context.Background())
	p.drainOnce(context.Background())

	if fw.writes != writesAfterFirstDrain {
		t.Fatalf("expected no further write attempts against a dead row, got %d additional writes",
			fw.writes-writesAfterFirstDrain)
	}
}

func TestDeliverAcksAndDeletesOnSuccess(t *testing.T) {
	box, err := outbox.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer box.Close()

	if err := box.PutNew(3, outbox.KindTrade, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	rec, err := box.Get(3, outbox.KindTrade)
	if err != nil {
		t.Fatal(err)
	}

	p := &Publisher{
		writer:     &succeedingWriter{},
		box:        box,
		logger:     discardLogger(),
		clock:      func() int64 { return 1 },
		maxRetries: 5,
	}
	if err := p.deliver(context.Background(), 3, outbox.KindTrade, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := box.Get(3, outbox.KindTrade); err == nil {
		t.Fatal("expected row deleted after successful delivery")
	}
}

type succeedingWriter struct{}

func (succeedingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error { return nil }
func (succeedingWriter) Close() error                                                   { return nil }
