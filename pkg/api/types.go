package api

import (
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/order"
)

// Request and response types for REST endpoints and WebSocket messages.
// Addresses travel as 0x-prefixed hex strings and are validated at the
// handler; amounts inside orders use the canonical order JSON encoding.

// MatchOrdersRequest is the payload for POST /api/v1/settlements/match
type MatchOrdersRequest struct {
	Caller       string              `json:"caller"`
	Orders       []*order.Advanced   `json:"orders"`
	Fulfillments []order.Fulfillment `json:"fulfillments"`
	NativeValue  *uint256.Int        `json:"nativeValue,omitempty"`
}

// FulfillAvailableRequest is the payload for POST /api/v1/settlements/fulfill-available
type FulfillAvailableRequest struct {
	Caller              string                         `json:"caller"`
	Orders              []*order.Advanced              `json:"orders"`
	OfferGroups         [][]order.FulfillmentComponent `json:"offerGroups"`
	ConsiderationGroups [][]order.FulfillmentComponent `json:"considerationGroups"`
	FulfillerConduitKey order.ConduitKey               `json:"fulfillerConduitKey,omitempty"`
	Recipient           string                         `json:"recipient,omitempty"`
	MaximumFulfilled    int                            `json:"maximumFulfilled,omitempty"`
	NativeValue         *uint256.Int                   `json:"nativeValue,omitempty"`
}

// LuckySettlementRequest is the payload for POST /api/v1/settlements/lucky
type LuckySettlementRequest struct {
	Caller       string              `json:"caller"`
	Orders       []*order.Advanced   `json:"orders"`
	Fulfillments []order.Fulfillment `json:"fulfillments"`
	Odds         order.Fraction      `json:"odds"`
	Round        uint64              `json:"round"`
	NativeValue  *uint256.Int        `json:"nativeValue,omitempty"`
}

// ResolveLuckyRequest is the payload for POST /api/v1/settlements/lucky/{id}/resolve
type ResolveLuckyRequest struct {
	RoundSignature string `json:"roundSignature"` // hex-encoded beacon signature
}

// ValidateOrdersRequest is the payload for POST /api/v1/orders/validate
type ValidateOrdersRequest struct {
	Orders []*order.Order `json:"orders"`
}

// CancelOrdersRequest is the payload for POST /api/v1/orders/cancel
type CancelOrdersRequest struct {
	Caller string              `json:"caller"`
	Orders []*order.Parameters `json:"orders"`
}

// SettlementResponse reports one settled or rolled-back settlement call
type SettlementResponse struct {
	RequestID   string            `json:"requestId"`
	Success     bool              `json:"success"`
	OrderHashes []string          `json:"orderHashes"`
	Executions  []order.Execution `json:"executions"`
	Incomplete  *IncompleteInfo   `json:"incomplete,omitempty"`
}

// LuckyReceiptResponse acknowledges a parked probabilistic settlement
type LuckyReceiptResponse struct {
	RequestID   string   `json:"requestId"`
	Round       uint64   `json:"round"`
	OrderHashes []string `json:"orderHashes"`
}

// LuckyResultResponse reports a resolved probabilistic settlement
type LuckyResultResponse struct {
	RequestID   string            `json:"requestId"`
	Won         bool              `json:"won"`
	Success     bool              `json:"success"`
	OrderHashes []string          `json:"orderHashes"`
	Executions  []order.Execution `json:"executions"`
	Incomplete  *IncompleteInfo   `json:"incomplete,omitempty"`
}

// IncompleteInfo locates the consideration item a rolled-back settlement
// left unmet
type IncompleteInfo struct {
	OrderIndex int    `json:"orderIndex"`
	ItemIndex  int    `json:"itemIndex"`
	Shortfall  string `json:"shortfall,omitempty"`
	Truncated  bool   `json:"truncated"`
}

// OrderStatusResponse is the fill state of one order hash
type OrderStatusResponse struct {
	OrderHash   string `json:"orderHash"`
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
	Validated   bool   `json:"validated"`
	Cancelled   bool   `json:"cancelled"`
}

// CounterResponse carries an offerer's current counter
type CounterResponse struct {
	Offerer string `json:"offerer"`
	Counter uint64 `json:"counter"`
}

// OrderHashesResponse lists the order hashes an operation touched
type OrderHashesResponse struct {
	OrderHashes []string `json:"orderHashes"`
}

// NativeBalanceResponse is an account's native balance as a decimal string
type NativeBalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSSubscribeRequest is sent by a client to manage channel subscriptions
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["fulfillments", "orders:0x..."]
}

// FulfillmentUpdate is broadcast when an order settles
type FulfillmentUpdate struct {
	Type  string                    `json:"type"` // "fulfillment"
	Event engine.OrderFulfilledEvent `json:"event"`
}

// MatchUpdate is broadcast when a batch of orders settles together
type MatchUpdate struct {
	Type  string                   `json:"type"` // "match"
	Event engine.OrdersMatchedEvent `json:"event"`
}

// OutcomeUpdate is broadcast for every settlement request, successful or
// rolled back
type OutcomeUpdate struct {
	Type  string                        `json:"type"` // "outcome"
	Event engine.SettlementOutcomeEvent `json:"event"`
}
