package book

import "matchcore/internal/pool"

// priceLevel is the per-price FIFO of live orders. Nodes are
// addressed by handle into the caller-supplied arena; the level
// itself holds no reference to the pool so it stays a plain value
// the ladder can allocate and free freely.
type priceLevel struct {
	price      Price
	head       nodeHandle
	tail       nodeHandle
	totalQty   Qty
	orderCount int
}

func newPriceLevel(price Price) *priceLevel {
	return &priceLevel{price: price, head: invalidHandle, tail: invalidHandle}
}

func (p *priceLevel) empty() bool { return p.orderCount == 0 }

// append links h at the tail. O(1).
func (p *priceLevel) append(arena *pool.Pool[orderNode], h nodeHandle) {
	n := arena.At(h)
	n.level = p
	n.prev = p.tail
	n.next = invalidHandle
	if p.tail == invalidHandle {
		p.head = h
	} else {
		arena.At(p.tail).next = h
	}
	p.tail = h
	p.totalQty += n.order.RemainingQty
	p.orderCount++
}

// remove unlinks h given its handle. O(1).
func (p *priceLevel) remove(arena *pool.Pool[orderNode], h nodeHandle) {
	n := arena.At(h)
	if n.prev != invalidHandle {
		arena.At(n.prev).next = n.next
	} else {
		p.head = n.next
	}
	if n.next != invalidHandle {
		arena.At(n.next).prev = n.prev
	} else {
		p.tail = n.prev
	}
	p.totalQty -= n.order.RemainingQty
	p.orderCount--
	n.prev = invalidHandle
	n.next = invalidHandle
	n.level = nil
}

// front returns the oldest resident node's handle.
func (p *priceLevel) front() (nodeHandle, bool) {
	if p.head == invalidHandle {
		return invalidHandle, false
	}
	return p.head, true
}

// decrementFront reduces the head node's remaining quantity (and the
// level's total) by qty, which must not exceed the head's remaining.
func (p *priceLevel) decrementFront(arena *pool.Pool[orderNode], qty Qty) {
	n := arena.At(p.head)
	if qty > n.order.RemainingQty {
		panic("book: decrementFront exceeds head remaining qty")
	}
	n.order.RemainingQty -= qty
	p.totalQty -= qty
}
