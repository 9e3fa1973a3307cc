package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/uhyunpark/safeswap/params"
	"github.com/uhyunpark/safeswap/pkg/escrow"
	"github.com/uhyunpark/safeswap/pkg/ledger"
)

// Server handles REST API and WebSocket connections
type Server struct {
	engine *escrow.Engine
	bank   *ledger.Bank
	tokens *ledger.TokenLedger
	cfg    params.Config
	router *mux.Router
	hub    *Hub
}

// NewServer creates a new API server over the engine and its devnet ledgers
func NewServer(engine *escrow.Engine, bank *ledger.Bank, tokens *ledger.TokenLedger, cfg params.Config) *Server {
	s := &Server{
		engine: engine,
		bank:   bank,
		tokens: tokens,
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}

	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub so the engine emitter can broadcast events
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the route table for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order lifecycle
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/closed", s.handleListClosed).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/commit", s.handleCommitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Balances and escrow bookkeeping
	api.HandleFunc("/balances/{address}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/escrow", s.handleGetEscrow).Methods("GET")

	// Devnet faucet
	if s.cfg.Devnet.FaucetEnabled {
		api.HandleFunc("/faucet/mint", s.handleFaucetMint).Methods("POST")
		api.HandleFunc("/faucet/approve", s.handleFaucetApprove).Methods("POST")
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// BroadcastEvent fans a lifecycle event out to WebSocket subscribers.
// Installed as the engine's Emitter in main.
func (s *Server) BroadcastEvent(ev escrow.Event) {
	update := OrderEventUpdate{
		Type:      string(ev.Type),
		OrderID:   ev.OrderID,
		Creator:   ev.Creator.Hex(),
		Timestamp: ev.Timestamp,
	}
	if ev.Filler != (common.Address{}) {
		update.Filler = ev.Filler.Hex()
	}
	s.hub.BroadcastToChannel("orders", update)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	creator, err := parseAddress(req.Creator)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	p := escrow.CreateParams{TimeToFill: req.TimeToFill}
	if p.PurchaseAsset, err = escrow.ParseAsset(req.PurchaseAsset); err == nil {
		if p.PaymentAsset, err = escrow.ParseAsset(req.PaymentAsset); err == nil {
			p.CollateralAsset, err = escrow.ParseAsset(req.CollateralAsset)
		}
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if p.PurchaseValue, err = parseAmount(req.PurchaseValue); err == nil {
		if p.PaymentValue, err = parseAmount(req.PaymentValue); err == nil {
			p.CollateralValue, err = parseAmount(req.CollateralValue)
		}
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	attached, err := parseOptionalAmount(req.AttachedValue)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := s.engine.CreatePurchaseOrder(creator, p, attached)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, CreateOrderResponse{Status: "created", OrderID: id})
}

func (s *Server) handleCommitOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req CommitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filler, err := parseAddress(req.Filler)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	attached, err := parseOptionalAmount(req.AttachedValue)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := s.engine.CommitToPurchaseOrder(id, filler, attached); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, OpResponse{Status: "committed", OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := s.engine.CancelPurchaseOrder(id, caller); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, OpResponse{Status: "cancelled", OrderID: id})
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req FillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	attached, err := parseOptionalAmount(req.AttachedValue)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := s.engine.FillPurchaseOrder(id, caller, attached); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, OpResponse{Status: "filled", OrderID: id})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := s.engine.GetOrder(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if order != nil {
		respondJSON(w, orderInfo(order))
		return
	}

	// Fall back to the archive so closed orders stay queryable
	closed, err := s.engine.GetClosedOrder(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if closed == nil {
		respondError(w, http.StatusNotFound, "state", escrow.ErrOrderNotFound.Error())
		return
	}
	respondJSON(w, closedInfo(closed))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.engine.ListOpenOrders()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleListClosed(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Devnet.ClosedHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	closed, err := s.engine.ListClosedOrders(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	response := make([]OrderInfo, len(closed))
	for i, c := range closed {
		response[i] = closedInfo(c)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := parseAddress(vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	asset, err := escrow.ParseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var balance *big.Int
	if asset.IsNative() {
		balance = s.bank.BalanceOf(addr)
	} else {
		balance = s.tokens.BalanceOf(asset.Token, addr)
	}

	respondJSON(w, BalanceInfo{Address: addr.Hex(), Asset: asset.String(), Balance: balance.String()})
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	asset, err := escrow.ParseAsset(r.URL.Query().Get("asset"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	total := s.engine.Custodian().Escrowed(asset)
	respondJSON(w, EscrowInfo{Asset: asset.String(), Escrowed: total.String()})
}

func (s *Server) handleFaucetMint(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if req.Token == "" || req.Token == "native" {
		err = s.bank.Mint(addr, amount)
	} else {
		var token common.Address
		if token, err = parseAddress(req.Token); err == nil {
			err = s.tokens.Mint(token, addr, amount)
		}
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	log.Printf("[api] faucet mint: %s %s to %s", amount, req.Token, addr.Hex())
	respondJSON(w, map[string]string{"status": "minted"})
}

func (s *Server) handleFaucetApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	token, err := parseAddress(req.Token)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	// Approve the engine vault as spender
	if err := s.tokens.Approve(token, owner, s.engine.Custodian().Vault(), amount); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	respondJSON(w, map[string]string{"status": "approved"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func orderInfo(o *escrow.PurchaseOrder) OrderInfo {
	info := OrderInfo{
		ID:              o.ID,
		Creator:         o.Creator.Hex(),
		PurchaseAsset:   o.PurchaseAsset.String(),
		PurchaseValue:   o.PurchaseValue.String(),
		PaymentAsset:    o.PaymentAsset.String(),
		PaymentValue:    o.PaymentValue.String(),
		CollateralAsset: o.CollateralAsset.String(),
		CollateralValue: o.CollateralValue.String(),
		Committed:       o.Committed,
		TimeToFill:      o.TimeToFill,
		CreatedAt:       o.CreatedAt,
		CommittedAt:     o.CommittedAt,
	}
	if o.Committed {
		info.Filler = o.Filler.Hex()
	}
	return info
}

func closedInfo(c *escrow.ClosedOrder) OrderInfo {
	info := orderInfo(&c.PurchaseOrder)
	info.Outcome = c.Outcome.String()
	info.ClosedAt = c.ClosedAt
	return info
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid order id %q", vars["id"]))
		return 0, false
	}
	return id, true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(s)
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses,
// keeping the stable reason string in the body
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch escrow.KindOf(err) {
	case escrow.KindAuthorization:
		status = http.StatusForbidden
	case escrow.KindState:
		status = http.StatusConflict
		if errors.Is(err, escrow.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
	case escrow.KindValueMismatch:
		status = http.StatusBadRequest
	case escrow.KindTransfer:
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, escrow.KindOf(err).String(), err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   kind,
		Message: message,
	})
}
