package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

var errNotFound = errors.New("position not found")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeApp struct {
	stats          engine.Stats
	open           []types.FadePosition
	closed         []types.FadePosition
	cycles         []types.Cycle
	tps            []types.CumulativeTakeProfit
	shocks         []types.Shock
	log            []engine.Event
	risk           risk.Snapshot
	emergencyStops []bool
	forceSells     []string
	forceEntries   [][2]string
	forceErr       error
}

func (f *fakeApp) Stats() engine.Stats                                 { return f.stats }
func (f *fakeApp) OpenPositions() []types.FadePosition                 { return f.open }
func (f *fakeApp) ClosedPositions() []types.FadePosition               { return f.closed }
func (f *fakeApp) ActiveCycles() []types.Cycle                         { return f.cycles }
func (f *fakeApp) CumulativeTakeProfits() []types.CumulativeTakeProfit { return f.tps }
func (f *fakeApp) RecentShocks(limit int) []types.Shock                { return f.shocks }
func (f *fakeApp) SessionLog(limit int) []engine.Event                 { return f.log }
func (f *fakeApp) RiskSnapshot() risk.Snapshot                         { return f.risk }
func (f *fakeApp) SetEmergencyStop(on bool)                            { f.emergencyStops = append(f.emergencyStops, on) }
func (f *fakeApp) ForceExit(ctx context.Context, positionID string) error {
	f.forceSells = append(f.forceSells, positionID)
	return f.forceErr
}
func (f *fakeApp) ForceEntry(ctx context.Context, marketSlug, tokenID string) error {
	f.forceEntries = append(f.forceEntries, [2]string{marketSlug, tokenID})
	return f.forceErr
}

func newTestServer(app *fakeApp) *Server {
	return NewServer("127.0.0.1:0", app, testLogger())
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatsReturnsAppStats(t *testing.T) {
	app := &fakeApp{stats: engine.Stats{ClosedTrades: 3, Wins: 2, WinRate: 0.666, RealizedPnL: 12.5}}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got engine.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ClosedTrades != 3 || got.Wins != 2 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestHandleClosedPositionsAppliesLimit(t *testing.T) {
	app := &fakeApp{closed: []types.FadePosition{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodGet, "/api/positions/closed?limit=2", nil)
	var got []types.FadePosition
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(got))
	}
}

func TestHandleEmergencyStopRequiresPost(t *testing.T) {
	app := &fakeApp{}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodGet, "/api/emergency-stop", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/emergency-stop", map[string]bool{"on": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(app.emergencyStops) != 1 || !app.emergencyStops[0] {
		t.Fatalf("expected SetEmergencyStop(true) to be called once, got %+v", app.emergencyStops)
	}
}

func TestHandleForceSellCallsForceExit(t *testing.T) {
	app := &fakeApp{}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodPost, "/api/force-sell", map[string]string{"position_id": "pos-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(app.forceSells) != 1 || app.forceSells[0] != "pos-1" {
		t.Fatalf("expected ForceExit(pos-1), got %+v", app.forceSells)
	}
}

func TestHandleForceEntryCallsForceEntry(t *testing.T) {
	app := &fakeApp{}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodPost, "/api/force-entry", map[string]string{"market_slug": "nba-lal-bos", "token_id": "tok-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(app.forceEntries) != 1 || app.forceEntries[0] != [2]string{"nba-lal-bos", "tok-1"} {
		t.Fatalf("expected ForceEntry(nba-lal-bos, tok-1), got %+v", app.forceEntries)
	}
}

func TestHandleForceSellPropagatesError(t *testing.T) {
	app := &fakeApp{forceErr: errNotFound}
	s := newTestServer(app)

	rec := doRequest(t, s, http.MethodPost, "/api/force-sell", map[string]string{"position_id": "missing"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
