package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/openperp/margind/pkg/engine"
	"github.com/openperp/margind/pkg/metrics"
	"github.com/openperp/margind/pkg/util"
)

// Server exposes the margin engine over REST and streams its events over
// WebSocket. Role authorization is the host gateway's job: it validates the
// caller's capability token and forwards the resulting role in the X-Role
// header, which the server maps to an engine.Role argument.
type Server struct {
	eng    *engine.Engine
	clock  util.Clock
	router *mux.Router
	hub    *Hub
}

// NewServer creates a new API server around an engine.
func NewServer(eng *engine.Engine, clock util.Clock) *Server {
	s := &Server{
		eng:    eng,
		clock:  clock,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub so it can be wired as the engine's sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Queries
	api.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/pool", s.handleGetPool).Methods("GET")
	api.HandleFunc("/price", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions/{address}", s.handleGetPosition).Methods("GET")

	// Position lifecycle
	api.HandleFunc("/positions/open", s.handleOpenPosition).Methods("POST")
	api.HandleFunc("/positions/close", s.handleClosePosition).Methods("POST")
	api.HandleFunc("/positions/liquidate", s.handleLiquidate).Methods("POST")

	// Liquidity
	api.HandleFunc("/liquidity/add", s.handleAddLiquidity).Methods("POST")
	api.HandleFunc("/liquidity/remove", s.handleRemoveLiquidity).Methods("POST")

	// Admin & oracle
	api.HandleFunc("/admin/pause", s.handleSetPaused).Methods("POST")
	api.HandleFunc("/admin/leverage", s.handleEditLeverage).Methods("POST")
	api.HandleFunc("/oracle/price", s.handleUpdatePrice).Methods("POST")

	// Event stream, metrics, health
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Role"},
		AllowCredentials: true,
	})
	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// Query Handlers
// ==============================

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, MarketInfo{
		Symbol:    s.eng.Symbol(),
		Leverage:  s.eng.Leverage(),
		Paused:    s.eng.IsPaused(),
		Positions: len(s.eng.Positions()),
	})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, PoolInfo{Balance: s.eng.PoolBalance()})
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	price, updated := s.eng.GetPrice()
	respondJSON(w, PriceInfo{Price: price, LastUpdated: updated})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.eng.Positions()
	out := make([]PositionInfo, 0, len(positions))
	for _, pos := range positions {
		out = append(out, positionInfo(pos))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	pos := s.eng.PositionOf(addr)
	if pos == nil {
		respondError(w, http.StatusNotFound, "position not found", "")
		return
	}
	respondJSON(w, positionInfo(pos))
}

// ==============================
// Mutating Handlers
// ==============================

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	var dir engine.Direction
	switch req.Direction {
	case "long":
		dir = engine.Long
	case "short":
		dir = engine.Short
	}

	err := s.eng.OpenPosition(addr, req.Size, dir, engine.NewCoin(req.Collateral), s.clock.NowMillis())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req ClosePositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	paid, err := s.eng.ClosePosition(addr, s.clock.NowMillis())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PayoutResponse{Status: "closed", Paid: paid.Value()})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	keeper, ok := parseAddress(w, req.Liquidator)
	if !ok {
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}

	paid, err := s.eng.Liquidate(keeper, owner, s.clock.NowMillis())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PayoutResponse{Status: "liquidated", Paid: paid.Value()})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	provider, ok := parseAddress(w, req.Provider)
	if !ok {
		return
	}

	balance, err := s.eng.AddLiquidity(roleFromRequest(r), provider, engine.NewCoin(req.Amount), s.clock.NowMillis())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceResponse{Status: "ok", Balance: balance})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	provider, ok := parseAddress(w, req.Provider)
	if !ok {
		return
	}

	out, err := s.eng.RemoveLiquidity(roleFromRequest(r), provider, req.Amount, s.clock.NowMillis())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PayoutResponse{Status: "ok", Paid: out.Value()})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.eng.SetPaused(roleFromRequest(r), req.Paused, s.clock.NowMillis()); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleEditLeverage(w http.ResponseWriter, r *http.Request) {
	var req LeverageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.eng.EditLeverage(roleFromRequest(r), req.Leverage, s.clock.NowMillis()); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.eng.UpdatePrice(roleFromRequest(r), req.Price, s.clock.NowMillis()); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// roleFromRequest maps the gateway-set X-Role header to an engine role.
func roleFromRequest(r *http.Request) engine.Role {
	switch r.Header.Get("X-Role") {
	case "admin":
		return engine.RoleAdmin
	case "liquidity_provider":
		return engine.RoleLiquidityProvider
	case "oracle_operator":
		return engine.RoleOracleOperator
	default:
		return engine.RoleNone
	}
}

func positionInfo(pos *engine.Position) PositionInfo {
	return PositionInfo{
		Owner:      pos.Owner.Hex(),
		Size:       pos.Size,
		Collateral: pos.Collateral,
		EntryPrice: pos.EntryPrice,
		Direction:  pos.Direction.String(),
		OpenedAt:   pos.OpenedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// respondEngineError maps engine sentinel errors to HTTP status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrMarketPaused),
		errors.Is(err, engine.ErrInsufficientLiquidity),
		errors.Is(err, engine.ErrDirectionMismatch),
		errors.Is(err, engine.ErrStaleUpdate),
		errors.Is(err, engine.ErrCannotLiquidate):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrInvalidSize),
		errors.Is(err, engine.ErrInvalidDirection),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidCollateral),
		errors.Is(err, engine.ErrInvalidLeverage):
		status = http.StatusBadRequest
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
