package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/conduit"
	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/ledger"
	"github.com/smemoshui/seaport-core/pkg/metrics"
	"github.com/smemoshui/seaport-core/pkg/order"
	"github.com/smemoshui/seaport-core/pkg/status"
)

var (
	weth       = common.HexToAddress("0x00000000000000000000000000000000000e7e01")
	dai        = common.HexToAddress("0x00000000000000000000000000000000000da101")
	escrowAcct = common.HexToAddress("0x00000000000000000000000000000000005e7701")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// testServer runs the full stack behind the HTTP handler: persistent
// status store, ledger book, beacon-enabled engine, WebSocket hub.
type testServer struct {
	srv    *Server
	book   *ledger.Book
	signer *crypto.TypedSigner
	alice  *crypto.Signer
	bob    *crypto.Signer
	beacon *crypto.BeaconSigner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := status.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	typed := crypto.NewTypedSigner(crypto.DefaultDomain())
	clock := &fakeClock{now: time.Unix(5000, 0)}
	resolver, err := status.NewResolver(status.Config{
		Store:  store,
		Signer: typed,
		Clock:  clock,
	})
	require.NoError(t, err)

	book, err := ledger.NewBook(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })

	beacon, err := crypto.NewBeaconSignerFromSeed([]byte("api-test-beacon-seed-0123456789ab"))
	require.NoError(t, err)
	pub, err := beacon.PublicKey()
	require.NoError(t, err)
	verifier, err := crypto.NewBeaconVerifier(pub)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	hub := NewHub(zap.NewNop())
	eng, err := engine.New(engine.Config{
		Resolver:   resolver,
		Book:       book,
		Conduits:   conduit.NewRegistry(),
		Pending:    status.NewPendingStore(store),
		Beacon:     verifier,
		Sink:       NewHubSink(hub),
		Metrics:    metrics.New(registry),
		Clock:      clock,
		Account:    escrowAcct,
		PendingTTL: time.Hour,
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Engine:   eng,
		Resolver: resolver,
		Book:     book,
		Gatherer: registry,
		Hub:      hub,
	})
	require.NoError(t, err)

	alice, err := crypto.GenerateKey()
	require.NoError(t, err)
	bob, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &testServer{
		srv:    srv,
		book:   book,
		signer: typed,
		alice:  alice,
		bob:    bob,
		beacon: beacon,
	}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (ts *testServer) mintFungible(t *testing.T, token, to common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, ts.book.MintFungible(token, to, uint256.NewInt(amount)))
	require.NoError(t, ts.book.Commit())
}

func (ts *testServer) mintNative(t *testing.T, to common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, ts.book.MintNative(to, uint256.NewInt(amount)))
	require.NoError(t, ts.book.Commit())
}

var saltCounter uint64

func (ts *testServer) signedOrder(t *testing.T, wallet *crypto.Signer, offer []order.OfferItem, consideration []order.ConsiderationItem) *order.Advanced {
	t.Helper()
	saltCounter++
	p := order.Parameters{
		Offerer:       wallet.Address(),
		Offer:         offer,
		Consideration: consideration,
		Kind:          order.PartialOpen,
		StartTime:     0,
		EndTime:       10_000,
		Salt:          uint256.NewInt(saltCounter),
	}
	sig, err := ts.signer.SignOrder(wallet, &p)
	require.NoError(t, err)
	return &order.Advanced{Order: order.Order{Parameters: p, Signature: sig}}
}

func fungibleOffer(token common.Address, amount uint64) order.OfferItem {
	return order.OfferItem{
		Class: order.Fungible, Token: token,
		Identifier:  uint256.NewInt(0),
		StartAmount: uint256.NewInt(amount), EndAmount: uint256.NewInt(amount),
	}
}

func nativeOffer(amount uint64) order.OfferItem {
	return order.OfferItem{
		Class:       order.Native,
		Identifier:  uint256.NewInt(0),
		StartAmount: uint256.NewInt(amount), EndAmount: uint256.NewInt(amount),
	}
}

func fungibleWant(token common.Address, amount uint64, to common.Address) order.ConsiderationItem {
	return order.ConsiderationItem{
		Class: order.Fungible, Token: token,
		Identifier:  uint256.NewInt(0),
		StartAmount: uint256.NewInt(amount), EndAmount: uint256.NewInt(amount),
		Recipient:   to,
	}
}

func nativeWant(amount uint64, to common.Address) order.ConsiderationItem {
	return order.ConsiderationItem{
		Class:       order.Native,
		Identifier:  uint256.NewInt(0),
		StartAmount: uint256.NewInt(amount), EndAmount: uint256.NewInt(amount),
		Recipient:   to,
	}
}

// swapOrders builds a WETH-for-DAI pair: alice sells 100 WETH for 40 DAI,
// bob the mirror image, with the fulfillments that pair them up
func (ts *testServer) swapOrders(t *testing.T) ([]*order.Advanced, []order.Fulfillment) {
	t.Helper()
	ts.mintFungible(t, weth, ts.alice.Address(), 100)
	ts.mintFungible(t, dai, ts.bob.Address(), 40)

	sell := ts.signedOrder(t, ts.alice,
		[]order.OfferItem{fungibleOffer(weth, 100)},
		[]order.ConsiderationItem{fungibleWant(dai, 40, ts.alice.Address())})
	buy := ts.signedOrder(t, ts.bob,
		[]order.OfferItem{fungibleOffer(dai, 40)},
		[]order.ConsiderationItem{fungibleWant(weth, 100, ts.bob.Address())})

	fulfillments := []order.Fulfillment{
		{
			OfferComponents:         []order.FulfillmentComponent{{OrderIndex: 0, ItemIndex: 0}},
			ConsiderationComponents: []order.FulfillmentComponent{{OrderIndex: 1, ItemIndex: 0}},
		},
		{
			OfferComponents:         []order.FulfillmentComponent{{OrderIndex: 1, ItemIndex: 0}},
			ConsiderationComponents: []order.FulfillmentComponent{{OrderIndex: 0, ItemIndex: 0}},
		},
	}
	return []*order.Advanced{sell, buy}, fulfillments
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seaport_pending_settlements")
}

func TestMatchOrdersSettles(t *testing.T) {
	ts := newTestServer(t)

	// alice sells 100 WETH for 5 native; bob pays with attached value
	ts.mintFungible(t, weth, ts.alice.Address(), 100)
	ts.mintNative(t, ts.bob.Address(), 5)

	sell := ts.signedOrder(t, ts.alice,
		[]order.OfferItem{fungibleOffer(weth, 100)},
		[]order.ConsiderationItem{nativeWant(5, ts.alice.Address())})
	buy := ts.signedOrder(t, ts.bob,
		[]order.OfferItem{nativeOffer(5)},
		[]order.ConsiderationItem{fungibleWant(weth, 100, ts.bob.Address())})

	rec := ts.post(t, "/api/v1/settlements/match", MatchOrdersRequest{
		Caller: ts.bob.Address().Hex(),
		Orders: []*order.Advanced{sell, buy},
		Fulfillments: []order.Fulfillment{
			{
				OfferComponents:         []order.FulfillmentComponent{{OrderIndex: 0, ItemIndex: 0}},
				ConsiderationComponents: []order.FulfillmentComponent{{OrderIndex: 1, ItemIndex: 0}},
			},
			{
				OfferComponents:         []order.FulfillmentComponent{{OrderIndex: 1, ItemIndex: 0}},
				ConsiderationComponents: []order.FulfillmentComponent{{OrderIndex: 0, ItemIndex: 0}},
			},
		},
		NativeValue: uint256.NewInt(5),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SettlementResponse
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Incomplete)
	assert.Len(t, resp.Executions, 2)
	_, err := uuid.Parse(resp.RequestID)
	assert.NoError(t, err)

	sellHash, err := ts.signer.OrderHash(&sell.Parameters)
	require.NoError(t, err)
	buyHash, err := ts.signer.OrderHash(&buy.Parameters)
	require.NoError(t, err)
	assert.Equal(t, []string{sellHash.Hex(), buyHash.Hex()}, resp.OrderHashes)

	// funds moved: WETH to bob, attached native to alice
	assert.Equal(t, "100", ts.book.FungibleBalance(weth, ts.bob.Address()).Dec())
	assert.Equal(t, "5", ts.book.NativeBalance(ts.alice.Address()).Dec())
	assert.Equal(t, "0", ts.book.NativeBalance(ts.bob.Address()).Dec())

	// fill status is queryable by hash
	rec = ts.get(t, "/api/v1/orders/"+sellHash.Hex()+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st OrderStatusResponse
	decodeJSON(t, rec, &st)
	assert.Equal(t, "1", st.Numerator)
	assert.Equal(t, "1", st.Denominator)
	assert.True(t, st.Validated)
	assert.False(t, st.Cancelled)

	// the settlement shows up on the metrics endpoint
	rec = ts.get(t, "/metrics")
	assert.Contains(t, rec.Body.String(), "seaport_settlements_total")
}

func TestMatchRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/match", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		ts.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad caller address", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/settlements/match", MatchOrdersRequest{Caller: "not-an-address"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var er ErrorResponse
		decodeJSON(t, rec, &er)
		assert.Equal(t, "invalid address", er.Error)
	})

	t.Run("tampered signature reverts", func(t *testing.T) {
		orders, fulfillments := ts.swapOrders(t)
		orders[0].Signature[10] ^= 0xff
		rec := ts.post(t, "/api/v1/settlements/match", MatchOrdersRequest{
			Caller:       ts.bob.Address().Hex(),
			Orders:       orders,
			Fulfillments: fulfillments,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var er ErrorResponse
		decodeJSON(t, rec, &er)
		assert.Equal(t, "invalid order", er.Error)
	})

	t.Run("attached value exceeds balance", func(t *testing.T) {
		orders, fulfillments := ts.swapOrders(t)
		rec := ts.post(t, "/api/v1/settlements/match", MatchOrdersRequest{
			Caller:       ts.bob.Address().Hex(),
			Orders:       orders,
			Fulfillments: fulfillments,
			NativeValue:  uint256.NewInt(1_000_000),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFulfillAvailableSkipsInvalid(t *testing.T) {
	ts := newTestServer(t)

	// two identical sell orders from alice; one gets its signature mangled
	ts.mintFungible(t, weth, ts.alice.Address(), 100)
	ts.mintFungible(t, dai, ts.bob.Address(), 40)

	good := ts.signedOrder(t, ts.alice,
		[]order.OfferItem{fungibleOffer(weth, 50)},
		[]order.ConsiderationItem{fungibleWant(dai, 20, ts.alice.Address())})
	bad := ts.signedOrder(t, ts.alice,
		[]order.OfferItem{fungibleOffer(weth, 50)},
		[]order.ConsiderationItem{fungibleWant(dai, 20, ts.alice.Address())})
	bad.Signature[4] ^= 0xff

	rec := ts.post(t, "/api/v1/settlements/fulfill-available", FulfillAvailableRequest{
		Caller: ts.bob.Address().Hex(),
		Orders: []*order.Advanced{good, bad},
		OfferGroups: [][]order.FulfillmentComponent{
			{{OrderIndex: 0, ItemIndex: 0}},
			{{OrderIndex: 1, ItemIndex: 0}},
		},
		ConsiderationGroups: [][]order.FulfillmentComponent{
			{{OrderIndex: 0, ItemIndex: 0}},
			{{OrderIndex: 1, ItemIndex: 0}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SettlementResponse
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Success)

	// only the clean order settled
	assert.Equal(t, "50", ts.book.FungibleBalance(weth, ts.bob.Address()).Dec())
	assert.Equal(t, "20", ts.book.FungibleBalance(dai, ts.alice.Address()).Dec())
	assert.Equal(t, "20", ts.book.FungibleBalance(dai, ts.bob.Address()).Dec())
}

func TestLuckySettlementFlow(t *testing.T) {
	ts := newTestServer(t)
	orders, fulfillments := ts.swapOrders(t)

	rec := ts.post(t, "/api/v1/settlements/lucky", LuckySettlementRequest{
		Caller:       ts.bob.Address().Hex(),
		Orders:       orders,
		Fulfillments: fulfillments,
		Odds:         order.WholeFraction(),
		Round:        7,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt LuckyReceiptResponse
	decodeJSON(t, rec, &receipt)
	assert.Equal(t, uint64(7), receipt.Round)
	assert.Len(t, receipt.OrderHashes, 2)
	_, err := uuid.Parse(receipt.RequestID)
	require.NoError(t, err)

	// parked: nothing has moved yet
	assert.Equal(t, "0", ts.book.FungibleBalance(weth, ts.bob.Address()).Dec())

	resolvePath := "/api/v1/settlements/lucky/" + receipt.RequestID + "/resolve"

	t.Run("wrong round signature", func(t *testing.T) {
		rec := ts.post(t, resolvePath, ResolveLuckyRequest{
			RoundSignature: common.Bytes2Hex(ts.beacon.SignRound(8)),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("settles at certain odds", func(t *testing.T) {
		rec := ts.post(t, resolvePath, ResolveLuckyRequest{
			RoundSignature: common.Bytes2Hex(ts.beacon.SignRound(7)),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LuckyResultResponse
		decodeJSON(t, rec, &res)
		assert.True(t, res.Won)
		assert.True(t, res.Success)
		assert.Len(t, res.Executions, 2)
		assert.Equal(t, "100", ts.book.FungibleBalance(weth, ts.bob.Address()).Dec())
		assert.Equal(t, "40", ts.book.FungibleBalance(dai, ts.alice.Address()).Dec())
	})

	t.Run("request is consumed", func(t *testing.T) {
		rec := ts.post(t, resolvePath, ResolveLuckyRequest{
			RoundSignature: common.Bytes2Hex(ts.beacon.SignRound(7)),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestLuckyResolveRequestChecks(t *testing.T) {
	ts := newTestServer(t)
	sig := common.Bytes2Hex(ts.beacon.SignRound(7))

	t.Run("bad request id", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/settlements/lucky/not-a-uuid/resolve", ResolveLuckyRequest{RoundSignature: sig})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown request id", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/settlements/lucky/"+uuid.New().String()+"/resolve", ResolveLuckyRequest{RoundSignature: sig})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing signature", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/settlements/lucky/"+uuid.New().String()+"/resolve", ResolveLuckyRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidateAndCancelEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ord := ts.signedOrder(t, ts.alice,
		[]order.OfferItem{fungibleOffer(weth, 10)},
		[]order.ConsiderationItem{fungibleWant(dai, 5, ts.alice.Address())})
	hash, err := ts.signer.OrderHash(&ord.Parameters)
	require.NoError(t, err)

	rec := ts.post(t, "/api/v1/orders/validate", ValidateOrdersRequest{Orders: []*order.Order{&ord.Order}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var hashes OrderHashesResponse
	decodeJSON(t, rec, &hashes)
	assert.Equal(t, []string{hash.Hex()}, hashes.OrderHashes)

	rec = ts.get(t, "/api/v1/orders/"+hash.Hex()+"/status")
	var st OrderStatusResponse
	decodeJSON(t, rec, &st)
	assert.True(t, st.Validated)

	t.Run("strangers may not cancel", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/orders/cancel", CancelOrdersRequest{
			Caller: ts.bob.Address().Hex(),
			Orders: []*order.Parameters{&ord.Parameters},
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("offerer cancels", func(t *testing.T) {
		rec := ts.post(t, "/api/v1/orders/cancel", CancelOrdersRequest{
			Caller: ts.alice.Address().Hex(),
			Orders: []*order.Parameters{&ord.Parameters},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.get(t, "/api/v1/orders/"+hash.Hex()+"/status")
		var st OrderStatusResponse
		decodeJSON(t, rec, &st)
		assert.True(t, st.Cancelled)
		assert.False(t, st.Validated)
	})
}

func TestOrderStatusRejectsBadHash(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get(t, "/api/v1/orders/xyz/status")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCounterEndpoints(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/orders/" + ts.alice.Address().Hex() + "/counter"

	rec := ts.get(t, path)
	require.Equal(t, http.StatusOK, rec.Code)
	var c CounterResponse
	decodeJSON(t, rec, &c)
	assert.Equal(t, uint64(0), c.Counter)

	rec = ts.post(t, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &c)
	assert.Equal(t, uint64(1), c.Counter)

	rec = ts.get(t, path)
	decodeJSON(t, rec, &c)
	assert.Equal(t, uint64(1), c.Counter)

	t.Run("bad offerer address", func(t *testing.T) {
		rec := ts.get(t, "/api/v1/orders/zzz/counter")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNativeBalanceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.mintNative(t, ts.alice.Address(), 77)

	rec := ts.get(t, "/api/v1/accounts/"+ts.alice.Address().Hex()+"/balances/native")
	require.Equal(t, http.StatusOK, rec.Code)
	var bal NativeBalanceResponse
	decodeJSON(t, rec, &bal)
	assert.Equal(t, "77", bal.Balance)

	t.Run("bad address", func(t *testing.T) {
		rec := ts.get(t, "/api/v1/accounts/nope/balances/native")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHubSinkChannelRouting(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := &Client{
		hub:           hub,
		send:          make(chan []byte, 16),
		id:            "test",
		subscriptions: map[string]bool{ChannelMatches: true},
	}
	hub.clients[client] = true

	sink := NewHubSink(hub)
	sink.OrderFulfilled(engine.OrderFulfilledEvent{})
	sink.OrdersMatched(engine.OrdersMatchedEvent{OrderHashes: []common.Hash{{0x01}}})

	select {
	case raw := <-client.send:
		var update MatchUpdate
		require.NoError(t, json.Unmarshal(raw, &update))
		assert.Equal(t, "match", update.Type)
		assert.Len(t, update.Event.OrderHashes, 1)
	default:
		t.Fatal("expected a match update")
	}
	// the fulfillment went to a channel this client never subscribed to
	assert.Zero(t, len(client.send))
}

func TestWebSocketStreamsSettlementEvents(t *testing.T) {
	ts := newTestServer(t)
	go ts.srv.hub.Run()

	hts := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(hts.Close)

	wsURL := "ws" + strings.TrimPrefix(hts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{
		Op:       "subscribe",
		Channels: []string{ChannelFulfillments, ChannelOutcomes},
	}))

	// the subscribe frame is handled on the client's read pump; wait for it
	require.Eventually(t, func() bool {
		ts.srv.hub.mu.RLock()
		defer ts.srv.hub.mu.RUnlock()
		for c := range ts.srv.hub.clients {
			if c.IsSubscribed(ChannelFulfillments) && c.IsSubscribed(ChannelOutcomes) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	orders, fulfillments := ts.swapOrders(t)
	rec := ts.post(t, "/api/v1/settlements/match", MatchOrdersRequest{
		Caller:       ts.bob.Address().Hex(),
		Orders:       orders,
		Fulfillments: fulfillments,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// expect one fulfillment per order plus the settlement outcome; the
	// write pump may coalesce queued messages into one newline-joined frame
	fulfillments2, outcomes := 0, 0
	deadline := time.Now().Add(3 * time.Second)
	for fulfillments2 < 2 || outcomes < 1 {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, raw := range bytes.Split(frame, []byte{'\n'}) {
			if len(raw) == 0 {
				continue
			}
			var envelope struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(raw, &envelope))
			switch envelope.Type {
			case "fulfillment":
				fulfillments2++
			case "outcome":
				outcomes++
			}
		}
	}
}
