// Package book implements the symbol-scoped limit order book: the
// price-level FIFO lists and the matching core that sit on top of a
// bounded node pool.
package book

import "matchcore/internal/pool"

// Price is an integer tick count. The core never performs rounding
// or floating point arithmetic on it.
type Price uint64

// Qty is an order quantity in whole units.
type Qty uint32

// OrderId is assigned by the book on admission.
type OrderId uint64

// ClientOrderId is an opaque id supplied by the caller.
type ClientOrderId uint64

// ExecId is assigned by the book to every emitted trade, strictly
// monotonic per book.
type ExecId uint64

// Side is which side of the book an order rests on or aggresses.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// OrderType selects admission and residual-handling behavior.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
	ImmediateOrCancel
	FillOrKill
)

// NoPrice is the sentinel limit price carried by Market orders; it is
// never compared against real ladder prices — Market bypasses the
// crossability check entirely (see matchAgainst).
const NoPrice Price = 0

// nodeHandle names a live OrderNode cell in the pool's arena.
type nodeHandle = pool.Handle

const invalidHandle nodeHandle = -1

// NewOrderFields is the caller-supplied shape of an admission request.
type NewOrderFields struct {
	ClientOrderId ClientOrderId
	Side          Side
	Type          OrderType
	Price         Price
	Qty           Qty
	TimestampNs   uint64
}

// Order is the value-type snapshot of an order's public fields. It is
// what OrderNode carries.
type Order struct {
	OrderId       OrderId
	ClientOrderId ClientOrderId
	Side          Side
	Type          OrderType
	Price         Price
	OriginalQty   Qty
	RemainingQty  Qty
	ArrivalSeq    uint64
	ArrivalTs     uint64
}

// Trade is emitted whenever an aggressive order matches a resting one.
type Trade struct {
	ExecId        ExecId
	AggressorSide Side
	BuyOrderId    OrderId
	SellOrderId   OrderId
	Price         Price
	Qty           Qty
	TimestampNs   uint64
}

// AckKind tags the outcome of an admission, cancel, or modify.
type AckKind uint8

const (
	Accepted AckKind = iota
	Rejected
	Cancelled
	Modified
	Filled
	PartiallyFilled
)

func (k AckKind) String() string {
	switch k {
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case Cancelled:
		return "Cancelled"
	case Modified:
		return "Modified"
	case Filled:
		return "Filled"
	case PartiallyFilled:
		return "PartiallyFilled"
	default:
		return "Unknown"
	}
}

// RejectReason explains a Rejected ack.
type RejectReason uint8

const (
	NoReject RejectReason = iota
	InvalidQuantity
	InvalidPrice
	UnknownOrder
	PoolExhausted
	FillOrKillUnfillable
)

func (r RejectReason) String() string {
	switch r {
	case InvalidQuantity:
		return "InvalidQuantity"
	case InvalidPrice:
		return "InvalidPrice"
	case UnknownOrder:
		return "UnknownOrder"
	case PoolExhausted:
		return "PoolExhausted"
	case FillOrKillUnfillable:
		return "FillOrKillUnfillable"
	default:
		return "NoReject"
	}
}

// Ack reports the outcome of a Submit/Cancel/Modify call.
type Ack struct {
	Kind          AckKind
	Reason        RejectReason
	OrderId       OrderId
	ClientOrderId ClientOrderId
	RemainingQty  Qty
	TimestampNs   uint64
}
