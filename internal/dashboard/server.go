// Package dashboard implements the Dashboard Adapter (§6, item 10): a
// pull/push view surface over the Trade Engine's state. It never makes a
// decision itself — positions, stats, recent shocks, active cycles,
// cumulative take-profits, and the session log are all pulled straight
// from the engine, and the two push actions (force-sell, force-entry) call
// the identical admission-gated entry points a live Shock would.
//
// Grounded on the teacher's internal/api/server.go: an AppState interface
// decoupling the HTTP layer from the trading app, a net/http.ServeMux of
// /api/* routes, NewServer/Start/Shutdown, and a shared writeJSON helper.
// The route surface itself is scoped to what this spec's Dashboard Adapter
// names — the teacher's grant-readiness, coaching, and builder-analytics
// routes are a business concern specific to that repo, not part of this
// contract, and are not carried over.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// AppState exposes the Trade Engine's state to the dashboard HTTP layer.
// Satisfied by *engine.Engine; an interface so the server can be tested
// against a stub.
type AppState interface {
	Stats() engine.Stats
	OpenPositions() []types.FadePosition
	ClosedPositions() []types.FadePosition
	ActiveCycles() []types.Cycle
	CumulativeTakeProfits() []types.CumulativeTakeProfit
	RecentShocks(limit int) []types.Shock
	SessionLog(limit int) []engine.Event
	RiskSnapshot() risk.Snapshot
	SetEmergencyStop(on bool)
	ForceExit(ctx context.Context, positionID string) error
	ForceEntry(ctx context.Context, marketSlug, tokenID string) error
}

var _ AppState = (*engine.Engine)(nil)

// Server is a lightweight HTTP view over an AppState.
type Server struct {
	httpServer *http.Server
	app        AppState
	logger     *slog.Logger
	startedAt  time.Time
}

// NewServer creates a dashboard server bound to addr, not yet listening.
func NewServer(addr string, app AppState, logger *slog.Logger) *Server {
	s := &Server{
		app:       app,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/positions/open", s.handleOpenPositions)
	mux.HandleFunc("/api/positions/closed", s.handleClosedPositions)
	mux.HandleFunc("/api/cycles", s.handleActiveCycles)
	mux.HandleFunc("/api/take-profits", s.handleCumulativeTakeProfits)
	mux.HandleFunc("/api/shocks", s.handleRecentShocks)
	mux.HandleFunc("/api/log", s.handleSessionLog)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/emergency-stop", s.handleEmergencyStop)
	mux.HandleFunc("/api/force-sell", s.handleForceSell)
	mux.HandleFunc("/api/force-entry", s.handleForceEntry)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("dashboard server listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server stopped", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func limitParam(r *http.Request, def int) int {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/stats — running PnL, win rate, averages (§6).
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.app.Stats())
}

// GET /api/positions/open
func (s *Server) handleOpenPositions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.app.OpenPositions())
}

// GET /api/positions/closed?limit=N
func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	closed := s.app.ClosedPositions()
	if limit := limitParam(r, 0); limit > 0 && limit < len(closed) {
		closed = closed[:limit]
	}
	s.writeJSON(w, closed)
}

// GET /api/cycles — active trading cycles.
func (s *Server) handleActiveCycles(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.app.ActiveCycles())
}

// GET /api/take-profits — cumulative take-profit rows for active cycles.
func (s *Server) handleCumulativeTakeProfits(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.app.CumulativeTakeProfits())
}

// GET /api/shocks?limit=N — recent detected shocks.
func (s *Server) handleRecentShocks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.app.RecentShocks(limitParam(r, 50)))
}

// GET /api/log?limit=N — session log lines.
func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.app.SessionLog(limitParam(r, 100)))
}

// GET /api/risk — the admission gate's current state.
func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.app.RiskSnapshot())
}

// POST /api/emergency-stop {"on": true}
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.app.SetEmergencyStop(body.On)
	s.writeJSON(w, map[string]bool{"emergency_stop": body.On})
}

// POST /api/force-sell {"position_id": "..."} — same Trade Engine exit
// path a TAKE_PROFIT trigger uses, gated the same way (§6).
func (s *Server) handleForceSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		PositionID string `json:"position_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.app.ForceExit(r.Context(), body.PositionID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, map[string]string{"status": "force_sell_submitted"})
}

// POST /api/force-entry {"market_slug": "...", "token_id": "..."} — same
// admission-gated entry a detected Shock would take (§6).
func (s *Server) handleForceEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		MarketSlug string `json:"market_slug"`
		TokenID    string `json:"token_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.app.ForceEntry(r.Context(), body.MarketSlug, body.TokenID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, map[string]string{"status": "force_entry_submitted"})
}
