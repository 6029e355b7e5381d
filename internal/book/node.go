package book

// orderNode is the pool-resident cell: an Order plus the intrusive
// doubly-linked-list pointers for its price level. Handles (indices),
// not pointers, name neighbouring nodes, keeping the arena free of
// pointer chasing across cells.
type orderNode struct {
	order Order
	prev  nodeHandle
	next  nodeHandle
	level *priceLevel
}

func (n *orderNode) reset() {
	n.order = Order{}
	n.prev = invalidHandle
	n.next = invalidHandle
	n.level = nil
}
