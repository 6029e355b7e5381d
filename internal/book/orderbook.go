package book

import (
	"sync/atomic"

	"matchcore/internal/memory"
	"matchcore/internal/pool"
)

// OrderBook is a single symbol's dual-sided price ladder together
// with its order-id directory and node arena. Every method is meant
// to be called from exactly one goroutine (the pipeline's consumer);
// nothing here is safe for concurrent use, by design.
type OrderBook struct {
	SymbolTag uint32

	bids *ladder // best = max price
	asks *ladder // best = min price

	directory map[OrderId]nodeHandle
	arena     *pool.Pool[orderNode]

	bestBid    Price
	hasBestBid bool
	bestAsk    Price
	hasBestAsk bool

	nextOrderId    OrderId
	nextExecId     ExecId
	nextArrivalSeq uint64

	// Epoch reclamation, nil unless EnableEpochReclamation is called.
	// When set, a released node handle is not returned to the arena's
	// free list (and so is not eligible for reuse by a later order)
	// until every registered reader has exited its read section. This
	// guards a component that walks live node pointers directly; it
	// says nothing about concurrent mutation of the ladder's tree
	// shape or price-level totals, which is why the admin surface
	// reads from depthSnapshot instead of walking the ladders itself.
	globalEpoch *memory.GlobalEpoch
	retireRing  *memory.RetireRing[nodeHandle]
	readers     []*memory.ReaderEpoch

	// depthSnapshot holds the most recently published Depth, refreshed
	// by the consumer goroutine after every event that can change the
	// book. It carries no pointers into the ladders, so any goroutine
	// may load it without coordinating with the consumer at all.
	depthSnapshot atomic.Value
}

// New constructs an empty book backed by a node arena of the given
// capacity — one OrderNode pool per symbol.
func New(symbolTag uint32, nodeCapacity int) *OrderBook {
	b := &OrderBook{
		SymbolTag:   symbolTag,
		bids:        newLadder(),
		asks:        newLadder(),
		directory:   make(map[OrderId]nodeHandle),
		arena:       pool.New[orderNode](nodeCapacity),
		globalEpoch: &memory.GlobalEpoch{},
	}
	b.depthSnapshot.Store(Depth{})
	return b
}

// Epoch returns the book's global epoch counter. It is always
// non-nil, whether or not EnableEpochReclamation has been called, so
// a reader can always register and Enter/Exit around a read section;
// until EnableEpochReclamation is called, node release stays
// immediate and the epoch is simply unread by releaseNode.
func (b *OrderBook) Epoch() *memory.GlobalEpoch { return b.globalEpoch }

// EnableEpochReclamation switches node release from immediate to
// epoch-guarded. retireCapacity must be a power of two and should be
// sized to the worst-case number of nodes released between two calls
// to the registered readers' Exit.
func (b *OrderBook) EnableEpochReclamation(retireCapacity int) {
	b.retireRing = memory.NewRetireRing[nodeHandle](uint64(retireCapacity))
}

// RegisterReader adds a reader whose active epoch must be respected
// before a retired node handle is reclaimed. Call EnableEpochReclamation first.
func (b *OrderBook) RegisterReader(r *memory.ReaderEpoch) {
	b.readers = append(b.readers, r)
}

// releaseNode frees h, immediately if epoch reclamation is disabled,
// or via the retire ring otherwise.
func (b *OrderBook) releaseNode(h nodeHandle) {
	if b.retireRing == nil {
		b.arena.Release(h)
		return
	}
	if !b.retireRing.Enqueue(h) {
		// Retire ring exhausted: fall back to an immediate release
		// rather than leak the handle. A sized-correctly retire ring
		// should never hit this in practice.
		b.arena.Release(h)
		return
	}
	memory.AdvanceEpochAndReclaim(b.globalEpoch, b.retireRing, b.arena, b.readers...)
}

// BestBid returns the best bid price and whether the bid side is non-empty.
func (b *OrderBook) BestBid() (Price, bool) { return b.bestBid, b.hasBestBid }

// BestAsk returns the best ask price and whether the ask side is non-empty.
func (b *OrderBook) BestAsk() (Price, bool) { return b.bestAsk, b.hasBestAsk }

func (b *OrderBook) ladderFor(s Side) *ladder {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) oppositeLadder(s Side) *ladder {
	if s == Buy {
		return b.asks
	}
	return b.bids
}

// Submit admits a new order and returns its assigned id, any trades
// produced while matching it, and the terminal ack.
func (b *OrderBook) Submit(f NewOrderFields) (OrderId, []Trade, Ack) {
	if f.Qty == 0 {
		return 0, nil, Ack{Kind: Rejected, Reason: InvalidQuantity, ClientOrderId: f.ClientOrderId, TimestampNs: f.TimestampNs}
	}
	if f.Type != Market && f.Price == NoPrice {
		return 0, nil, Ack{Kind: Rejected, Reason: InvalidPrice, ClientOrderId: f.ClientOrderId, TimestampNs: f.TimestampNs}
	}

	if f.Type == FillOrKill {
		if !b.canFullyFill(f.Side, f.Type, f.Price, f.Qty) {
			return 0, nil, Ack{Kind: Rejected, Reason: FillOrKillUnfillable, ClientOrderId: f.ClientOrderId, TimestampNs: f.TimestampNs}
		}
	}

	orderId := b.nextOrderId + 1
	b.nextOrderId = orderId
	arrivalSeq := b.nextArrivalSeq + 1
	b.nextArrivalSeq = arrivalSeq

	aggressor := Order{
		OrderId:       orderId,
		ClientOrderId: f.ClientOrderId,
		Side:          f.Side,
		Type:          f.Type,
		Price:         f.Price,
		OriginalQty:   f.Qty,
		RemainingQty:  f.Qty,
		ArrivalSeq:    arrivalSeq,
		ArrivalTs:     f.TimestampNs,
	}

	trades := b.matchAgainst(&aggressor)

	ack := b.settleResidual(&aggressor)
	return orderId, trades, ack
}

// settleResidual applies the per-order-type policy to whatever
// quantity survived matching, and returns the terminal ack.
func (b *OrderBook) settleResidual(a *Order) Ack {
	switch a.Type {
	case Limit:
		if a.RemainingQty > 0 {
			h, err := b.arena.Acquire()
			if err != nil {
				if a.RemainingQty == a.OriginalQty {
					// Nothing matched, so nothing has changed: reject and
					// give back the ids this admission drew.
					b.nextOrderId--
					b.nextArrivalSeq--
					return Ack{Kind: Rejected, Reason: PoolExhausted, ClientOrderId: a.ClientOrderId, TimestampNs: a.ArrivalTs}
				}
				// The aggressor already consumed liquidity (trades were
				// emitted) but has nowhere to rest; report what filled.
				return Ack{Kind: PartiallyFilled, Reason: PoolExhausted, OrderId: a.OrderId,
					ClientOrderId: a.ClientOrderId, RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
			}
			n := b.arena.At(h)
			n.order = *a
			lvl := b.ladderFor(a.Side).upsert(a.Price)
			lvl.append(b.arena, h)
			b.directory[a.OrderId] = h
			b.refreshBest(a.Side)
			if a.RemainingQty == a.OriginalQty {
				return Ack{Kind: Accepted, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
					RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
			}
			return Ack{Kind: PartiallyFilled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
				RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
		}
		return Ack{Kind: Filled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId, TimestampNs: a.ArrivalTs}

	case Market:
		if a.RemainingQty == 0 {
			return Ack{Kind: Filled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId, TimestampNs: a.ArrivalTs}
		}
		if a.RemainingQty == a.OriginalQty {
			// No opposite liquidity at all: a market order never rests.
			return Ack{Kind: Cancelled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
				RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
		}
		return Ack{Kind: PartiallyFilled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
			RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}

	case ImmediateOrCancel:
		if a.RemainingQty > 0 && a.RemainingQty < a.OriginalQty {
			return Ack{Kind: Cancelled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
				RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
		}
		if a.RemainingQty == a.OriginalQty {
			return Ack{Kind: Cancelled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId,
				RemainingQty: a.RemainingQty, TimestampNs: a.ArrivalTs}
		}
		return Ack{Kind: Filled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId, TimestampNs: a.ArrivalTs}

	case FillOrKill:
		// canFullyFill already guaranteed complete execution.
		return Ack{Kind: Filled, OrderId: a.OrderId, ClientOrderId: a.ClientOrderId, TimestampNs: a.ArrivalTs}

	default:
		panic("book: unknown order type")
	}
}

// matchAgainst runs the price-time matching loop for the aggressor
// against the opposite side, mutating a.RemainingQty in place and
// returning every trade produced.
func (b *OrderBook) matchAgainst(a *Order) []Trade {
	var trades []Trade
	opp := b.oppositeLadder(a.Side)

	for a.RemainingQty > 0 {
		var lvl *priceLevel
		if a.Side == Buy {
			lvl = opp.min() // best ask
		} else {
			lvl = opp.max() // best bid
		}
		if lvl == nil {
			break
		}
		if a.Type != Market && !crossable(a.Side, a.Price, lvl.price) {
			break
		}

		for a.RemainingQty > 0 {
			h, ok := lvl.front()
			if !ok {
				break
			}
			passive := b.arena.At(h)
			m := a.RemainingQty
			if passive.order.RemainingQty < m {
				m = passive.order.RemainingQty
			}

			execId := b.nextExecId + 1
			b.nextExecId = execId

			buyId, sellId := a.OrderId, passive.order.OrderId
			if a.Side == Sell {
				buyId, sellId = sellId, buyId
			}
			trades = append(trades, Trade{
				ExecId:        execId,
				AggressorSide: a.Side,
				BuyOrderId:    buyId,
				SellOrderId:   sellId,
				Price:         lvl.price,
				Qty:           m,
				TimestampNs:   a.ArrivalTs,
			})

			a.RemainingQty -= m
			lvl.decrementFront(b.arena, m)

			if passive.order.RemainingQty == 0 {
				lvl.remove(b.arena, h)
				delete(b.directory, passive.order.OrderId)
				b.releaseNode(h)
			}
		}

		if lvl.empty() {
			opp.delete(lvl.price)
			b.refreshBest(oppositeSide(a.Side))
		}
	}

	return trades
}

// canFullyFill computes, without mutating any state, whether an
// aggressor could be completely filled by the opposite ladder as it
// stands right now. Used only for FillOrKill admission.
func (b *OrderBook) canFullyFill(side Side, otype OrderType, price Price, qty Qty) bool {
	opp := b.oppositeLadder(side)
	remaining := qty
	walker := opp.walkAscending
	if side == Sell {
		walker = opp.walkDescending
	}
	walker(func(lvl *priceLevel) bool {
		if otype != Market && !crossable(side, price, lvl.price) {
			remaining = qty + 1 // force failure: not enough crossable depth
			return false
		}
		if lvl.totalQty >= remaining {
			remaining = 0
		} else {
			remaining -= lvl.totalQty
		}
		return remaining > 0
	})
	return remaining == 0
}

// Cancel removes a live order from the book.
func (b *OrderBook) Cancel(orderId OrderId, timestampNs uint64) Ack {
	h, ok := b.directory[orderId]
	if !ok {
		return Ack{Kind: Rejected, Reason: UnknownOrder, OrderId: orderId, TimestampNs: timestampNs}
	}
	n := b.arena.At(h)
	side := n.order.Side
	price := n.order.Price
	clientId := n.order.ClientOrderId

	lvl := n.level
	lvl.remove(b.arena, h)
	delete(b.directory, orderId)
	b.releaseNode(h)

	if lvl.empty() {
		b.ladderFor(side).delete(price)
		b.refreshBest(side)
	}

	return Ack{Kind: Cancelled, OrderId: orderId, ClientOrderId: clientId, TimestampNs: timestampNs}
}

// Modify applies an in-place quantity reduction when priority can be
// preserved, or a cancel-and-replace otherwise. On replace, trades
// may result if the new order crosses the book.
func (b *OrderBook) Modify(orderId OrderId, newQty Qty, newPrice Price, timestampNs uint64) ([]Trade, Ack) {
	h, ok := b.directory[orderId]
	if !ok {
		return nil, Ack{Kind: Rejected, Reason: UnknownOrder, OrderId: orderId, TimestampNs: timestampNs}
	}
	if newQty == 0 {
		return nil, Ack{Kind: Rejected, Reason: InvalidQuantity, OrderId: orderId, TimestampNs: timestampNs}
	}

	n := b.arena.At(h)
	oldPrice := n.order.Price
	oldRemaining := n.order.RemainingQty

	if newPrice == NoPrice && n.order.Type != Market {
		return nil, Ack{Kind: Rejected, Reason: InvalidPrice, OrderId: orderId, ClientOrderId: n.order.ClientOrderId, TimestampNs: timestampNs}
	}

	if newPrice == oldPrice && newQty < oldRemaining {
		delta := oldRemaining - newQty
		n.order.RemainingQty = newQty
		n.level.totalQty -= delta
		return nil, Ack{Kind: Modified, OrderId: orderId, ClientOrderId: n.order.ClientOrderId,
			RemainingQty: newQty, TimestampNs: timestampNs}
	}

	// Cancel-and-replace: loses priority.
	side := n.order.Side
	otype := n.order.Type
	clientId := n.order.ClientOrderId

	cancelAck := b.Cancel(orderId, timestampNs)
	_ = cancelAck

	newId, trades, ack := b.Submit(NewOrderFields{
		ClientOrderId: clientId,
		Side:          side,
		Type:          otype,
		Price:         newPrice,
		Qty:           newQty,
		TimestampNs:   timestampNs,
	})
	_ = newId
	return trades, ack
}

func (b *OrderBook) refreshBest(side Side) {
	if side == Buy {
		if lvl := b.bids.max(); lvl != nil {
			b.bestBid, b.hasBestBid = lvl.price, true
		} else {
			b.hasBestBid = false
		}
		return
	}
	if lvl := b.asks.min(); lvl != nil {
		b.bestAsk, b.hasBestAsk = lvl.price, true
	} else {
		b.hasBestAsk = false
	}
}

// WalkBids visits bid levels best-to-worst (descending price). Like
// every other OrderBook method, this must only be called from the
// consumer goroutine that owns the book — it walks live rbNode and
// priceLevel pointers with no synchronization of its own.
func (b *OrderBook) WalkBids(fn func(price Price, totalQty Qty, orderCount int) bool) {
	b.bids.walkDescending(func(lvl *priceLevel) bool {
		return fn(lvl.price, lvl.totalQty, lvl.orderCount)
	})
}

// WalkAsks visits ask levels best-to-worst (ascending price). Same
// single-goroutine restriction as WalkBids.
func (b *OrderBook) WalkAsks(fn func(price Price, totalQty Qty, orderCount int) bool) {
	b.asks.walkAscending(func(lvl *priceLevel) bool {
		return fn(lvl.price, lvl.totalQty, lvl.orderCount)
	})
}

// maxSnapshotLevels bounds how many rows per side RefreshDepthSnapshot
// copies out, so the cost of publishing a snapshot after every event
// stays flat regardless of how deep either ladder actually runs.
const maxSnapshotLevels = 50

// DepthLevel is one row of a Depth snapshot.
type DepthLevel struct {
	Price      Price
	TotalQty   Qty
	OrderCount int
}

// Depth is a self-contained copy of the top of both ladders: no field
// aliases anything inside the live book, so once published it is safe
// to read from any goroutine indefinitely.
type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// RefreshDepthSnapshot walks the live ladders and atomically publishes
// the result as the new Depth returned by LatestDepthSnapshot. Must
// only be called from the consumer goroutine; the atomic.Value store
// is what makes the published copy safe for others to read afterward.
func (b *OrderBook) RefreshDepthSnapshot() {
	var d Depth
	count := 0
	b.WalkBids(func(price Price, totalQty Qty, orderCount int) bool {
		d.Bids = append(d.Bids, DepthLevel{Price: price, TotalQty: totalQty, OrderCount: orderCount})
		count++
		return count < maxSnapshotLevels
	})
	count = 0
	b.WalkAsks(func(price Price, totalQty Qty, orderCount int) bool {
		d.Asks = append(d.Asks, DepthLevel{Price: price, TotalQty: totalQty, OrderCount: orderCount})
		count++
		return count < maxSnapshotLevels
	})
	b.depthSnapshot.Store(d)
}

// LatestDepthSnapshot returns the most recently published Depth. Safe
// to call from any goroutine, including concurrently with the
// consumer goroutine mutating the live book: the returned value was
// copied out under RefreshDepthSnapshot and never aliases live state.
func (b *OrderBook) LatestDepthSnapshot() Depth {
	return b.depthSnapshot.Load().(Depth)
}

// ReleaseAll returns every outstanding node handle straight to the
// arena and empties both ladders. Called once, by the consumer
// goroutine tearing the book down for good on shutdown — at that
// point priority no longer matters, so handles are freed in
// directory-iteration order rather than unwound level by level.
func (b *OrderBook) ReleaseAll() {
	for orderId, h := range b.directory {
		b.arena.Release(h)
		delete(b.directory, orderId)
	}
	b.bids = newLadder()
	b.asks = newLadder()
	b.hasBestBid = false
	b.hasBestAsk = false
}

// NodeCapacity and NodesLive expose pool occupancy for admin/metrics use.
func (b *OrderBook) NodeCapacity() int { return b.arena.Capacity() }
func (b *OrderBook) NodesLive() int    { return b.arena.Live() }

func crossable(side Side, limitPrice, levelPrice Price) bool {
	if side == Buy {
		return limitPrice >= levelPrice
	}
	return limitPrice <= levelPrice
}

func oppositeSide(s Side) Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
