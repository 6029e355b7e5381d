package pipeline

import (
	"encoding/binary"
	"fmt"

	"matchcore/internal/book"
)

// EncodeEvent serialises an Event to its fixed-width little-endian
// wire form. This is the format the journal and the Kafka intake
// bridge read and write; the in-memory Event is otherwise free to
// change.
func EncodeEvent(e Event) []byte {
	switch e.Kind {
	case EventNewOrder:
		buf := make([]byte, 1+34)
		buf[0] = byte(EventNewOrder)
		binary.LittleEndian.PutUint64(buf[1:9], uint64(e.ClientOrderId))
		binary.LittleEndian.PutUint32(buf[9:13], e.SymbolTag)
		buf[13] = byte(e.Side)
		buf[14] = byte(e.Type)
		binary.LittleEndian.PutUint64(buf[15:23], uint64(e.Price))
		binary.LittleEndian.PutUint32(buf[23:27], uint32(e.Qty))
		binary.LittleEndian.PutUint64(buf[27:35], e.TimestampNs)
		return buf
	case EventCancel:
		buf := make([]byte, 1+8)
		buf[0] = byte(EventCancel)
		binary.LittleEndian.PutUint64(buf[1:9], uint64(e.OrderId))
		return buf
	case EventModify:
		buf := make([]byte, 1+20)
		buf[0] = byte(EventModify)
		binary.LittleEndian.PutUint64(buf[1:9], uint64(e.OrderId))
		binary.LittleEndian.PutUint32(buf[9:13], uint32(e.NewQty))
		binary.LittleEndian.PutUint64(buf[13:21], uint64(e.NewPrice))
		return buf
	case EventShutdown:
		return []byte{byte(EventShutdown)}
	default:
		panic(fmt.Sprintf("pipeline: unknown event kind %d", e.Kind))
	}
}

// DecodeEvent parses the wire form produced by EncodeEvent.
func DecodeEvent(buf []byte) (Event, error) {
	if len(buf) == 0 {
		return Event{}, fmt.Errorf("pipeline: empty event frame")
	}
	kind := EventKind(buf[0])
	switch kind {
	case EventNewOrder:
		if len(buf) < 1+34 {
			return Event{}, fmt.Errorf("pipeline: short NewOrder frame (%d bytes)", len(buf))
		}
		return Event{
			Kind:          EventNewOrder,
			ClientOrderId: book.ClientOrderId(binary.LittleEndian.Uint64(buf[1:9])),
			SymbolTag:     binary.LittleEndian.Uint32(buf[9:13]),
			Side:          book.Side(buf[13]),
			Type:          book.OrderType(buf[14]),
			Price:         book.Price(binary.LittleEndian.Uint64(buf[15:23])),
			Qty:           book.Qty(binary.LittleEndian.Uint32(buf[23:27])),
			TimestampNs:   binary.LittleEndian.Uint64(buf[27:35]),
		}, nil
	case EventCancel:
		if len(buf) < 1+8 {
			return Event{}, fmt.Errorf("pipeline: short Cancel frame (%d bytes)", len(buf))
		}
		return Event{
			Kind:    EventCancel,
			OrderId: book.OrderId(binary.LittleEndian.Uint64(buf[1:9])),
		}, nil
	case EventModify:
		if len(buf) < 1+20 {
			return Event{}, fmt.Errorf("pipeline: short Modify frame (%d bytes)", len(buf))
		}
		return Event{
			Kind:     EventModify,
			OrderId:  book.OrderId(binary.LittleEndian.Uint64(buf[1:9])),
			NewQty:   book.Qty(binary.LittleEndian.Uint32(buf[9:13])),
			NewPrice: book.Price(binary.LittleEndian.Uint64(buf[13:21])),
		}, nil
	case EventShutdown:
		return Event{Kind: EventShutdown}, nil
	default:
		return Event{}, fmt.Errorf("pipeline: unknown event kind %d", kind)
	}
}

// EncodeTrade serialises a Trade to its 49-byte wire form.
func EncodeTrade(symbolTag uint32, tr book.Trade) []byte {
	buf := make([]byte, 49)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(tr.ExecId))
	binary.LittleEndian.PutUint32(buf[8:12], symbolTag)
	buf[12] = byte(tr.AggressorSide)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(tr.BuyOrderId))
	binary.LittleEndian.PutUint64(buf[21:29], uint64(tr.SellOrderId))
	binary.LittleEndian.PutUint64(buf[29:37], uint64(tr.Price))
	binary.LittleEndian.PutUint32(buf[37:41], uint32(tr.Qty))
	binary.LittleEndian.PutUint64(buf[41:49], tr.TimestampNs)
	return buf
}

// DecodeTrade parses the wire form produced by EncodeTrade, returning
// the symbol tag alongside the reconstructed Trade.
func DecodeTrade(buf []byte) (uint32, book.Trade, error) {
	if len(buf) < 49 {
		return 0, book.Trade{}, fmt.Errorf("pipeline: short Trade frame (%d bytes)", len(buf))
	}
	tr := book.Trade{
		ExecId:        book.ExecId(binary.LittleEndian.Uint64(buf[0:8])),
		AggressorSide: book.Side(buf[12]),
		BuyOrderId:    book.OrderId(binary.LittleEndian.Uint64(buf[13:21])),
		SellOrderId:   book.OrderId(binary.LittleEndian.Uint64(buf[21:29])),
		Price:         book.Price(binary.LittleEndian.Uint64(buf[29:37])),
		Qty:           book.Qty(binary.LittleEndian.Uint32(buf[37:41])),
		TimestampNs:   binary.LittleEndian.Uint64(buf[41:49]),
	}
	symbolTag := binary.LittleEndian.Uint32(buf[8:12])
	return symbolTag, tr, nil
}

// EncodeAck serialises an Ack to its wire form: 1-byte kind, 8-byte
// order_id, 8-byte client_order_id, 4-byte remaining_qty, 1-byte
// reason (meaningful only for Rejected), 8-byte ts_ns.
func EncodeAck(a book.Ack) []byte {
	buf := make([]byte, 1+8+8+4+1+8)
	buf[0] = byte(a.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(a.OrderId))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(a.ClientOrderId))
	binary.LittleEndian.PutUint32(buf[17:21], uint32(a.RemainingQty))
	buf[21] = byte(a.Reason)
	binary.LittleEndian.PutUint64(buf[22:30], a.TimestampNs)
	return buf
}

// DecodeAck parses the wire form produced by EncodeAck.
func DecodeAck(buf []byte) (book.Ack, error) {
	if len(buf) < 30 {
		return book.Ack{}, fmt.Errorf("pipeline: short Ack frame (%d bytes)", len(buf))
	}
	return book.Ack{
		Kind:          book.AckKind(buf[0]),
		OrderId:       book.OrderId(binary.LittleEndian.Uint64(buf[1:9])),
		ClientOrderId: book.ClientOrderId(binary.LittleEndian.Uint64(buf[9:17])),
		RemainingQty:  book.Qty(binary.LittleEndian.Uint32(buf[17:21])),
		Reason:        book.RejectReason(buf[21]),
		TimestampNs:   binary.LittleEndian.Uint64(buf[22:30]),
	}, nil
}
