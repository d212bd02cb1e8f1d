package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// OrderFulfilledEvent records one order's settled items. Recipient is the
// fulfiller-chosen recipient, or zero when orders were matched pairwise.
type OrderFulfilledEvent struct {
	OrderHash common.Hash          `json:"orderHash"`
	Offerer   common.Address       `json:"offerer"`
	Zone      common.Address       `json:"zone"`
	Recipient common.Address       `json:"recipient"`
	Spent     []order.SpentItem    `json:"offer"`
	Received  []order.ReceivedItem `json:"consideration"`
}

// OrdersMatchedEvent lists the order hashes settled together by one match
type OrdersMatchedEvent struct {
	OrderHashes []common.Hash `json:"orderHashes"`
}

// SettlementOutcomeEvent is the final word on one settlement request
type SettlementOutcomeEvent struct {
	RequestID uuid.UUID `json:"requestId"`
	Success   bool      `json:"success"`
	Path      string    `json:"path"`
}

// EventSink receives settlement lifecycle events. Fulfillment and match
// events arrive only after every transfer has landed; an outcome event
// arrives for every request, successful or rolled back. Sinks are called
// on the settlement goroutine and must not block.
type EventSink interface {
	OrderFulfilled(ev OrderFulfilledEvent)
	OrdersMatched(ev OrdersMatchedEvent)
	SettlementOutcome(ev SettlementOutcomeEvent)
}

// LogSink writes every event to the structured log
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{log: logger.Sugar()}
}

func (s *LogSink) OrderFulfilled(ev OrderFulfilledEvent) {
	s.log.Infow("order_fulfilled",
		"order_hash", ev.OrderHash.Hex(),
		"offerer", ev.Offerer.Hex(),
		"recipient", ev.Recipient.Hex(),
		"spent_items", len(ev.Spent),
		"received_items", len(ev.Received),
	)
}

func (s *LogSink) OrdersMatched(ev OrdersMatchedEvent) {
	hashes := make([]string, len(ev.OrderHashes))
	for i, h := range ev.OrderHashes {
		hashes[i] = h.Hex()
	}
	s.log.Infow("orders_matched", "order_hashes", hashes)
}

func (s *LogSink) SettlementOutcome(ev SettlementOutcomeEvent) {
	s.log.Infow("settlement_outcome",
		"request_id", ev.RequestID.String(),
		"success", ev.Success,
		"path", ev.Path,
	)
}

// MultiSink fans events out to several sinks in order
type MultiSink []EventSink

func (m MultiSink) OrderFulfilled(ev OrderFulfilledEvent) {
	for _, s := range m {
		s.OrderFulfilled(ev)
	}
}

func (m MultiSink) OrdersMatched(ev OrdersMatchedEvent) {
	for _, s := range m {
		s.OrdersMatched(ev)
	}
}

func (m MultiSink) SettlementOutcome(ev SettlementOutcomeEvent) {
	for _, s := range m {
		s.SettlementOutcome(ev)
	}
}

// eventBuffer parks fulfillment and match events until the transfers they
// describe have landed. A rolled-back settlement drops the buffer without
// replaying it, so observers never see events for transfers that were
// unwound.
type eventBuffer struct {
	events []func(EventSink)
}

func (b *eventBuffer) orderFulfilled(ev OrderFulfilledEvent) {
	b.events = append(b.events, func(s EventSink) { s.OrderFulfilled(ev) })
}

func (b *eventBuffer) ordersMatched(ev OrdersMatchedEvent) {
	b.events = append(b.events, func(s EventSink) { s.OrdersMatched(ev) })
}

func (b *eventBuffer) replay(sink EventSink) {
	for _, emit := range b.events {
		emit(sink)
	}
	b.events = nil
}
