package pipeline

import (
	"testing"

	"matchcore/internal/book"
)

func TestEventRoundTripNewOrder(t *testing.T) {
	e := NewOrderEvent(42, 7, book.Sell, book.ImmediateOrCancel, 10050, 250, 123456789)
	buf := EncodeEvent(e)
	if len(buf) != 35 {
		t.Fatalf("expected 35-byte frame, got %d", len(buf))
	}
	got, err := DecodeEvent(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestEventRoundTripCancel(t *testing.T) {
	e := CancelEvent(999, 42)
	buf := EncodeEvent(e)
	if len(buf) != 9 {
		t.Fatalf("expected 9-byte frame, got %d", len(buf))
	}
	got, err := DecodeEvent(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != EventCancel || got.OrderId != e.OrderId {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestEventRoundTripModify(t *testing.T) {
	e := ModifyEvent(7, 15, 200, 1)
	buf := EncodeEvent(e)
	if len(buf) != 21 {
		t.Fatalf("expected 21-byte frame, got %d", len(buf))
	}
	got, err := DecodeEvent(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.OrderId != e.OrderId || got.NewQty != e.NewQty || got.NewPrice != e.NewPrice {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestEventRoundTripShutdown(t *testing.T) {
	buf := EncodeEvent(ShutdownEvent(0))
	if len(buf) != 1 {
		t.Fatalf("expected 1-byte frame, got %d", len(buf))
	}
	got, err := DecodeEvent(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != EventShutdown {
		t.Fatalf("expected Shutdown, got %v", got.Kind)
	}
}

func TestDecodeEventShortFrameErrors(t *testing.T) {
	if _, err := DecodeEvent([]byte{byte(EventNewOrder), 1, 2}); err == nil {
		t.Fatal("expected error on short NewOrder frame")
	}
	if _, err := DecodeEvent(nil); err == nil {
		t.Fatal("expected error on empty frame")
	}
}

func TestTradeRoundTrip(t *testing.T) {
	tr := book.Trade{
		ExecId: 5, AggressorSide: book.Buy, BuyOrderId: 1, SellOrderId: 2,
		Price: 10050, Qty: 30, TimestampNs: 987654321,
	}
	buf := EncodeTrade(7, tr)
	if len(buf) != 49 {
		t.Fatalf("expected 49-byte frame, got %d", len(buf))
	}
	symbolTag, got, err := DecodeTrade(buf)
	if err != nil {
		t.Fatal(err)
	}
	if symbolTag != 7 || got != tr {
		t.Fatalf("round trip mismatch: got %+v (symbol=%d), want %+v", got, symbolTag, tr)
	}
}

func TestAckRoundTrip(t *testing.T) {
	a := book.Ack{Kind: book.Rejected, Reason: book.FillOrKillUnfillable, OrderId: 0, ClientOrderId: 9, RemainingQty: 0, TimestampNs: 42}
	buf := EncodeAck(a)
	got, err := DecodeAck(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, a)
	}
}
