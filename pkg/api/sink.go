package api

import (
	"github.com/smemoshui/seaport-core/pkg/engine"
)

// WebSocket channels served by the hub. Clients subscribe with
// {"op":"subscribe","channels":["fulfillments"]}; per-order streams use
// "orders:" + the order hash.
const (
	ChannelFulfillments = "fulfillments"
	ChannelMatches      = "matches"
	ChannelOutcomes     = "outcomes"

	orderChannelPrefix = "orders:"
)

// HubSink forwards settlement events to WebSocket subscribers
type HubSink struct {
	hub *Hub
}

// NewHubSink creates an event sink backed by the server's hub
func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

var _ engine.EventSink = (*HubSink)(nil)

func (s *HubSink) OrderFulfilled(ev engine.OrderFulfilledEvent) {
	update := FulfillmentUpdate{Type: "fulfillment", Event: ev}
	s.hub.BroadcastToChannel(ChannelFulfillments, update)
	s.hub.BroadcastToChannel(orderChannelPrefix+ev.OrderHash.Hex(), update)
}

func (s *HubSink) OrdersMatched(ev engine.OrdersMatchedEvent) {
	s.hub.BroadcastToChannel(ChannelMatches, MatchUpdate{Type: "match", Event: ev})
}

func (s *HubSink) SettlementOutcome(ev engine.SettlementOutcomeEvent) {
	s.hub.BroadcastToChannel(ChannelOutcomes, OutcomeUpdate{Type: "outcome", Event: ev})
}
