package main

import (
	"matchcore/internal/book"
	"matchcore/internal/outbox"
	"matchcore/internal/pipeline"
)

// tradeOutboxSink writes every emitted Trade into the durable outbox
// as a StateNew row, keyed by exec id, for the Kafka publisher to
// drain. It implements pipeline.Sink[book.Trade].
type tradeOutboxSink struct {
	box       *outbox.Outbox
	symbolTag uint32
}

func (s *tradeOutboxSink) Push(tr book.Trade) bool {
	payload := pipeline.EncodeTrade(s.symbolTag, tr)
	if err := s.box.PutNew(uint64(tr.ExecId), outbox.KindTrade, payload); err != nil {
		return false
	}
	return true
}

// ackOutboxSink writes every emitted Ack into the durable outbox as a
// StateNew row, keyed by order id. It implements pipeline.Sink[book.Ack].
type ackOutboxSink struct {
	box *outbox.Outbox
}

func (s *ackOutboxSink) Push(a book.Ack) bool {
	payload := pipeline.EncodeAck(a)
	if err := s.box.PutNew(uint64(a.OrderId), outbox.KindAck, payload); err != nil {
		return false
	}
	return true
}
