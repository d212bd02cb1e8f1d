package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/ledger"
	"github.com/smemoshui/seaport-core/pkg/status"
)

// Server exposes the settlement engine over REST and WebSocket
type Server struct {
	engine   *engine.Engine
	resolver *status.Resolver
	book     *ledger.Book
	gatherer prometheus.Gatherer
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

// Config wires the server's collaborators. Engine, Resolver and Book are
// required; Gatherer enables the /metrics endpoint when set. Hub lets the
// caller build the WebSocket hub first and feed it to the engine as an
// event sink before the server exists; left nil, the server makes its own.
type Config struct {
	Engine   *engine.Engine
	Resolver *status.Resolver
	Book     *ledger.Book
	Gatherer prometheus.Gatherer
	Hub      *Hub
	Logger   *zap.Logger
}

// NewServer creates an API server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("api: status resolver is required")
	}
	if cfg.Book == nil {
		return nil, errors.New("api: ledger book is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	s := &Server{
		engine:   cfg.Engine,
		resolver: cfg.Resolver,
		book:     cfg.Book,
		gatherer: cfg.Gatherer,
		router:   mux.NewRouter(),
		hub:      hub,
		log:      logger.Sugar(),
	}
	s.setupRoutes()
	return s, nil
}

// Hub returns the WebSocket hub, so the node can wire it into the
// engine's event sink
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Settlement endpoints
	api.HandleFunc("/settlements/match", s.handleMatch).Methods("POST")
	api.HandleFunc("/settlements/fulfill-available", s.handleFulfillAvailable).Methods("POST")
	api.HandleFunc("/settlements/lucky", s.handleLuckyRequest).Methods("POST")
	api.HandleFunc("/settlements/lucky/{id}/resolve", s.handleLuckyResolve).Methods("POST")

	// Order lifecycle endpoints
	api.HandleFunc("/orders/validate", s.handleValidateOrders).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrders).Methods("POST")
	api.HandleFunc("/orders/{hash}/status", s.handleOrderStatus).Methods("GET")
	api.HandleFunc("/orders/{offerer}/counter", s.handleGetCounter).Methods("GET")
	api.HandleFunc("/orders/{offerer}/counter", s.handleIncrementCounter).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balances/native", s.handleNativeBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the complete HTTP handler including CORS, for serving
// or for tests
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on addr, blocking until
// the listener fails
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ==============================
// Settlement handlers
// ==============================

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}

	result, err := s.engine.MatchOrders(r.Context(), engine.MatchRequest{
		Caller:       caller,
		Orders:       req.Orders,
		Fulfillments: req.Fulfillments,
		NativeValue:  req.NativeValue,
	})
	if err != nil {
		s.respondSettlementError(w, err)
		return
	}
	respondJSON(w, settlementResponse(result))
}

func (s *Server) handleFulfillAvailable(w http.ResponseWriter, r *http.Request) {
	var req FulfillAvailableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	var recipient common.Address
	if req.Recipient != "" {
		if recipient, ok = parseAddress(w, req.Recipient); !ok {
			return
		}
	}

	result, err := s.engine.FulfillAvailableOrders(r.Context(), engine.FulfillAvailableRequest{
		Caller:              caller,
		Orders:              req.Orders,
		OfferGroups:         req.OfferGroups,
		ConsiderationGroups: req.ConsiderationGroups,
		FulfillerConduitKey: req.FulfillerConduitKey,
		Recipient:           recipient,
		MaximumFulfilled:    req.MaximumFulfilled,
		NativeValue:         req.NativeValue,
	})
	if err != nil {
		s.respondSettlementError(w, err)
		return
	}
	respondJSON(w, settlementResponse(result))
}

func (s *Server) handleLuckyRequest(w http.ResponseWriter, r *http.Request) {
	var req LuckySettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}

	receipt, err := s.engine.RequestLuckySettlement(r.Context(), engine.LuckyRequest{
		Caller:       caller,
		Orders:       req.Orders,
		Fulfillments: req.Fulfillments,
		Odds:         req.Odds,
		Round:        req.Round,
		NativeValue:  req.NativeValue,
	})
	if err != nil {
		s.respondSettlementError(w, err)
		return
	}
	respondJSON(w, LuckyReceiptResponse{
		RequestID:   receipt.RequestID.String(),
		Round:       receipt.Round,
		OrderHashes: hexHashes(receipt.OrderHashes),
	})
}

func (s *Server) handleLuckyResolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id", err.Error())
		return
	}
	var req ResolveLuckyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sig := common.FromHex(req.RoundSignature)
	if len(sig) == 0 {
		respondError(w, http.StatusBadRequest, "missing round signature", "")
		return
	}

	result, err := s.engine.ResolveLuckySettlement(r.Context(), id, sig)
	if err != nil {
		s.respondSettlementError(w, err)
		return
	}
	respondJSON(w, LuckyResultResponse{
		RequestID:   result.RequestID.String(),
		Won:         result.Won,
		Success:     result.Success,
		OrderHashes: hexHashes(result.OrderHashes),
		Executions:  result.Executions,
		Incomplete:  incompleteInfo(result.Incomplete),
	})
}

// ==============================
// Order lifecycle handlers
// ==============================

func (s *Server) handleValidateOrders(w http.ResponseWriter, r *http.Request) {
	var req ValidateOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Orders) == 0 {
		respondError(w, http.StatusBadRequest, "no orders supplied", "")
		return
	}

	hashes, err := s.resolver.Validate(req.Orders)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "invalid order", verr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "validation failed", err.Error())
		return
	}
	respondJSON(w, OrderHashesResponse{OrderHashes: hexHashes(hashes)})
}

func (s *Server) handleCancelOrders(w http.ResponseWriter, r *http.Request) {
	var req CancelOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	if len(req.Orders) == 0 {
		respondError(w, http.StatusBadRequest, "no orders supplied", "")
		return
	}

	hashes, err := s.resolver.Cancel(req.Orders, caller)
	if err != nil {
		if errors.Is(err, status.ErrInvalidCanceller) {
			respondError(w, http.StatusForbidden, "not authorized", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
		return
	}
	respondJSON(w, OrderHashesResponse{OrderHashes: hexHashes(hashes)})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["hash"]
	if len(common.FromHex(raw)) != common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid order hash", "")
		return
	}
	hash := common.HexToHash(raw)

	st, err := s.resolver.Status(hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "status lookup failed", err.Error())
		return
	}
	respondJSON(w, OrderStatusResponse{
		OrderHash:   hash.Hex(),
		Numerator:   st.Fill.Numerator.Dec(),
		Denominator: st.Fill.Denominator.Dec(),
		Validated:   st.Validated,
		Cancelled:   st.Cancelled,
	})
}

func (s *Server) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	offerer, ok := parseAddress(w, mux.Vars(r)["offerer"])
	if !ok {
		return
	}
	c, err := s.resolver.Counter(offerer)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "counter lookup failed", err.Error())
		return
	}
	respondJSON(w, CounterResponse{Offerer: offerer.Hex(), Counter: c})
}

func (s *Server) handleIncrementCounter(w http.ResponseWriter, r *http.Request) {
	offerer, ok := parseAddress(w, mux.Vars(r)["offerer"])
	if !ok {
		return
	}
	c, err := s.resolver.IncrementCounter(offerer)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "counter bump failed", err.Error())
		return
	}
	respondJSON(w, CounterResponse{Offerer: offerer.Hex(), Counter: c})
}

// ==============================
// Account handlers
// ==============================

func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	respondJSON(w, NativeBalanceResponse{
		Address: addr.Hex(),
		Balance: s.book.NativeBalance(addr).Dec(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

// respondSettlementError maps engine errors onto HTTP statuses. A
// rolled-back settlement is not an error: it comes back through the
// normal result with Success false.
func (s *Server) respondSettlementError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrReentrancy):
		respondError(w, http.StatusConflict, "settlement in progress", err.Error())
	case errors.Is(err, engine.ErrUnknownRequest):
		respondError(w, http.StatusNotFound, "unknown request", err.Error())
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, "invalid order", verr.Error())
	case errors.Is(err, engine.ErrNoOrdersAvailable),
		errors.Is(err, engine.ErrLuckyDisabled),
		errors.Is(err, engine.ErrInsufficientNativeValue),
		errors.Is(err, engine.ErrInvalidNativeOfferItem),
		errors.Is(err, engine.ErrMissingFulfillmentComponent),
		errors.Is(err, engine.ErrInvalidFulfillmentIndex),
		errors.Is(err, engine.ErrMismatchedComponents),
		errors.Is(err, crypto.ErrBadRoundSignature),
		engine.IsArithmetic(err):
		respondError(w, http.StatusBadRequest, "settlement rejected", err.Error())
	default:
		s.log.Errorw("settlement_error", "err", err)
		respondError(w, http.StatusInternalServerError, "settlement failed", err.Error())
	}
}

func settlementResponse(result *engine.MatchResult) SettlementResponse {
	return SettlementResponse{
		RequestID:   result.RequestID.String(),
		Success:     result.Success,
		OrderHashes: hexHashes(result.OrderHashes),
		Executions:  result.Executions,
		Incomplete:  incompleteInfo(result.Incomplete),
	}
}

func incompleteInfo(inc *engine.IncompleteSettlement) *IncompleteInfo {
	if inc == nil {
		return nil
	}
	info := &IncompleteInfo{
		OrderIndex: inc.OrderIndex,
		ItemIndex:  inc.ItemIndex,
		Truncated:  inc.Truncated,
	}
	if inc.Shortfall != nil {
		info.Shortfall = inc.Shortfall.Dec()
	}
	return info
}

func hexHashes(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}

// parseAddress validates a hex address from a request, answering the
// error itself when the input is malformed
func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errText string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errText,
		Message: message,
	})
}
