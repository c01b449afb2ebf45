package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bot-trading-go/internal/models"
	"go.uber.org/zap"
)

// APIServer provides the HTTP interface for the trading engine. Request
// routing and authentication live outside this system; handlers here are
// thin adapters over the engine and bot manager.
type APIServer struct {
	server *http.Server
	engine *Engine
	bots   *BotManager
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer.
func NewAPIServer(engine *Engine, bots *BotManager, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		bots:   bots,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("POST /api/trading/execute-now", s.executeNowHandler)
	mux.HandleFunc("GET /api/bots", s.listBotsHandler)
	mux.HandleFunc("POST /api/bots", s.createBotHandler)
	mux.HandleFunc("GET /api/bots/{id}", s.getBotHandler)
	mux.HandleFunc("PUT /api/bots/{id}", s.updateBotHandler)
	mux.HandleFunc("POST /api/bots/{id}/start", s.startBotHandler)
	mux.HandleFunc("POST /api/bots/{id}/pause", s.pauseBotHandler)
	mux.HandleFunc("DELETE /api/bots/{id}", s.deleteBotHandler)
	mux.HandleFunc("POST /api/bots/{id}/process", s.processBotHandler)
	mux.HandleFunc("GET /api/debug/bots/{id}/signal", s.debugSignalHandler)
	mux.HandleFunc("GET /api/trades", s.listTradesHandler)
	mux.HandleFunc("GET /api/trades/analytics", s.analyticsHandler)
	mux.HandleFunc("GET /api/trades/{id}", s.getTradeHandler)
	mux.HandleFunc("POST /api/trades/manual", s.manualTradeHandler)
	mux.HandleFunc("GET /api/accounts/{id}/holdings", s.holdingsHandler)
	mux.HandleFunc("GET /api/portfolio", s.portfolioHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy to HTTP statuses without leaking
// internals.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBotNotFound), errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTradeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrStrategyUnavailable),
		errors.Is(err, ErrInsufficientHoldings),
		errors.Is(err, ErrAccountInactive):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *APIServer) pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return uint(id), nil
}

func queryUint(r *http.Request, key string) uint {
	v, _ := strconv.ParseUint(r.URL.Query().Get(key), 10, 32)
	return uint(v)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "running",
		"start_time": s.engine.StartTime.Format(time.RFC3339),
		"uptime":     time.Since(s.engine.StartTime).String(),
	})
}

func (s *APIServer) executeNowHandler(w http.ResponseWriter, r *http.Request) {
	s.engine.ExecuteCycle(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Trading cycle completed"})
}

func (s *APIServer) listBotsHandler(w http.ResponseWriter, r *http.Request) {
	bots, err := s.bots.ListBots(queryUint(r, "user_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *APIServer) createBotHandler(w http.ResponseWriter, r *http.Request) {
	var bot models.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&bot); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.bots.CreateBot(&bot); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, bot)
}

func (s *APIServer) getBotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	bot, err := s.bots.GetBot(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bot)
}

func (s *APIServer) updateBotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var upd BotUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	bot, err := s.bots.UpdateBot(id, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bot)
}

func (s *APIServer) startBotHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.bots.StartBot, "Bot started")
}

func (s *APIServer) pauseBotHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.bots.PauseBot, "Bot paused")
}

func (s *APIServer) deleteBotHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.bots.DeleteBot, "Bot deleted")
}

func (s *APIServer) transitionHandler(w http.ResponseWriter, r *http.Request, fn func(uint) error, message string) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := fn(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *APIServer) processBotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.ProcessBot(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Bot processed"})
}

func (s *APIServer) debugSignalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	signal, err := s.engine.EvaluateSignal(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, signal)
}

func (s *APIServer) listTradesHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	trades, total, err := s.engine.ListTrades(TradeFilter{
		UserID: queryUint(r, "user_id"),
		BotID:  queryUint(r, "bot_id"),
		Status: models.OrderStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"trades": trades,
	})
}

func (s *APIServer) getTradeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	trade, err := s.engine.GetTrade(queryUint(r, "user_id"), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *APIServer) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	analytics, err := s.engine.Analytics(queryUint(r, "user_id"), queryUint(r, "bot_id"), days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analytics)
}

func (s *APIServer) manualTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req ManualTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	trade, err := s.engine.ExecuteManualTrade(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *APIServer) holdingsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	holdings, err := s.engine.AccountHoldings(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, holdings)
}

func (s *APIServer) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.PortfolioSummaryFor(r.Context(), queryUint(r, "user_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
