// Package pipeline binds a producer goroutine to the order book's
// consumer goroutine via the SPSC ring, and defines the event/codec
// boundary the rest of the engine serialises across.
package pipeline

import "matchcore/internal/book"

// EventKind tags the variant carried by an Event.
type EventKind uint8

const (
	EventNewOrder EventKind = 1
	EventCancel   EventKind = 2
	EventModify   EventKind = 3
	EventShutdown EventKind = 255
)

// Event is the uniform record pushed through the producer ring. Only
// the fields relevant to Kind are meaningful; the zero value of the
// others is ignored by the consumer.
type Event struct {
	Kind EventKind

	// NewOrder
	ClientOrderId book.ClientOrderId
	SymbolTag     uint32
	Side          book.Side
	Type          book.OrderType
	Price         book.Price
	Qty           book.Qty

	// Cancel / Modify
	OrderId  book.OrderId
	NewQty   book.Qty
	NewPrice book.Price

	TimestampNs uint64
}

// NewOrderEvent builds a NewOrder event.
func NewOrderEvent(clientOrderId book.ClientOrderId, symbolTag uint32, side book.Side, otype book.OrderType, price book.Price, qty book.Qty, tsNs uint64) Event {
	return Event{
		Kind: EventNewOrder, ClientOrderId: clientOrderId, SymbolTag: symbolTag,
		Side: side, Type: otype, Price: price, Qty: qty, TimestampNs: tsNs,
	}
}

// CancelEvent builds a Cancel event.
func CancelEvent(orderId book.OrderId, tsNs uint64) Event {
	return Event{Kind: EventCancel, OrderId: orderId, TimestampNs: tsNs}
}

// ModifyEvent builds a Modify event.
func ModifyEvent(orderId book.OrderId, newQty book.Qty, newPrice book.Price, tsNs uint64) Event {
	return Event{Kind: EventModify, OrderId: orderId, NewQty: newQty, NewPrice: newPrice, TimestampNs: tsNs}
}

// ShutdownEvent builds the cooperative shutdown sentinel.
func ShutdownEvent(tsNs uint64) Event {
	return Event{Kind: EventShutdown, TimestampNs: tsNs}
}
