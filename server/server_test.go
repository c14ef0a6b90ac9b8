package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "letmein"

type testServer struct {
	srv     *Server
	handler http.Handler
	clock   *clock.Fake
	ledger  *wallet.Ledger
	results *round.ResultsStore
}

func newTestServer(t *testing.T, r gamemath.Rand, enabled ...string) *testServer {
	t.Helper()
	gs, err := config.LoadGameStore("")
	require.NoError(t, err)
	c := clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	ledger := wallet.NewLedger(wallet.NewMemory())
	require.NoError(t, ledger.Register(context.Background(), "alice", decimal.NewFromInt(1000)))
	results := round.NewResultsStore("", nil)
	srv := New(Options{
		Config:   &config.Config{AdminToken: adminToken},
		Games:    gs,
		Registry: games.NewRegistry(enabled),
		Ledger:   ledger,
		Results:  results,
		Journal:  round.NewJournal(""),
		Clock:    c,
		Rand:     r,
	})
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, handler: srv.Handler(), clock: c, ledger: ledger, results: results}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	if user == "admin" {
		req.Header.Del(userHeader)
		req.Header.Set(adminHeader, adminToken)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestBalance(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, body := ts.do(t, http.MethodGet, "/rgs/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "USER_REQUIRED", body["code"])

	rec, body = ts.do(t, http.MethodGet, "/rgs/balance", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(round.UnknownUser), body["code"])

	rec, body = ts.do(t, http.MethodGet, "/rgs/balance", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", body["balance"])
}

func TestAdmin_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, _ := ts.do(t, http.MethodGet, "/rgs/admin/game-config", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/rgs/admin/game-config", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["crashCommissionPercent"])
}

func TestAdmin_SetUserBalance(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, _ := ts.do(t, http.MethodPost, "/rgs/admin/users/bob/balance", "admin", map[string]string{"balance": "250.555"})
	require.Equal(t, http.StatusOK, rec.Code)

	bal, err := ts.ledger.Balance(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("250.56")), "got %s", bal)

	rec, _ = ts.do(t, http.MethodPost, "/rgs/admin/users/bob/balance", "admin", map[string]string{"balance": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_PatchGameConfig(t *testing.T) {
	ts := newTestServer(t, gamemath.Sequence(0.1))

	rec, body := ts.do(t, http.MethodPatch, "/rgs/admin/game-config", "admin", map[string]float64{"coinflipMultiplier": 1.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.5, body["coinflipMultiplier"])

	rec, body = ts.do(t, http.MethodPatch, "/rgs/admin/game-config", "admin", map[string]float64{"diceCommissionPercent": 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CONFIG", body["code"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/coinflip/play", "alice", map[string]any{"stake": 100, "choice": "heads"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "150", body["payout"], "new multiplier applies to the next play")
}

func TestCoinflip_PlayAndHistory(t *testing.T) {
	ts := newTestServer(t, gamemath.Sequence(0.1))

	rec, body := ts.do(t, http.MethodPost, "/rgs/coinflip/play", "alice", map[string]any{"stake": "100", "choice": "heads"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["win"])
	assert.Equal(t, "195", body["payout"])
	assert.Equal(t, "1095", body["newBalance"])

	rec, body = ts.do(t, http.MethodGet, "/rgs/coinflip/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["results"], 1)

	rec, body = ts.do(t, http.MethodPost, "/rgs/coinflip/play", "alice", map[string]any{"stake": "5000", "choice": "heads"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, string(round.InsufficientFunds), body["code"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/coinflip/play", "alice", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BODY", body["code"])
}

func TestDisabledGameIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil, "crash")

	rec, body := ts.do(t, http.MethodPost, "/rgs/dice/play", "alice", map[string]any{"stake": 1, "percent": 50, "side": "less"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "GAME_DISABLED", body["code"])

	rec, _ = ts.do(t, http.MethodGet, "/rgs/dice/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/rgs/games/list", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["games"], 1)
}

func TestCrash_JoinCashoutOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodPost, "/rgs/admin/crash/next-point", "admin", map[string]any{"crashPoint": 3.0})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := ts.do(t, http.MethodGet, "/rgs/admin/crash/next-point", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["crashPoint"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/crash/join", "alice", map[string]any{"stake": 100})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "900", body["balance"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/crash/cashout", "alice", map[string]any{"coefficient": 2.5})
	assert.Equal(t, http.StatusConflict, rec.Code, "no cash-out while accepting")
	assert.Equal(t, string(round.PhaseViolation), body["code"])

	ts.clock.Advance(11 * time.Second)
	rec, body = ts.do(t, http.MethodGet, "/rgs/crash/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(round.PhaseResolving), body["phase"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/crash/cashout", "alice", map[string]any{"coefficient": 2.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "245", body["payout"])
	assert.Equal(t, "1145", body["newBalance"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/crash/cashout", "alice", map[string]any{"coefficient": 2.6})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(round.AlreadySettled), body["code"])
}

func TestLottery_JoinAndState(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.ledger.Register(context.Background(), "bob", decimal.NewFromInt(100)))

	rec, _ := ts.do(t, http.MethodPost, "/rgs/lottery/join", "alice", map[string]any{"stake": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := ts.do(t, http.MethodGet, "/rgs/lottery/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["drawAt"], "one player does not start the draw timer")

	rec, _ = ts.do(t, http.MethodPost, "/rgs/lottery/join", "bob", map[string]any{"stake": 30})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = ts.do(t, http.MethodGet, "/rgs/lottery/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, body["drawAt"])
	assert.Equal(t, "40", body["total"])
}

func TestDrop_ConfigAndPlay(t *testing.T) {
	ts := newTestServer(t, gamemath.Sequence(0.9))

	rec, body := ts.do(t, http.MethodGet, "/rgs/drop/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, body["maxBalls"])

	rec, body = ts.do(t, http.MethodPost, "/rgs/drop/play", "alice", map[string]any{"stake": 10, "risk": "medium", "rows": 12})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "800", body["totalPayout"])
	assert.Len(t, body["results"], 1)

	rec, body = ts.do(t, http.MethodPost, "/rgs/drop/play", "alice", map[string]any{"stake": 10, "risk": "medium", "rows": 20})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(round.InvalidInput), body["code"])
}

func TestDice_Play(t *testing.T) {
	ts := newTestServer(t, gamemath.Sequence(0.1))
	rec, body := ts.do(t, http.MethodPost, "/rgs/dice/play", "alice", map[string]any{"stake": 10, "percent": 25, "side": "less"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100000.0, body["roll"])
	assert.Equal(t, "39.2", body["payout"])
}

func TestHistoryRoundLookup(t *testing.T) {
	ts := newTestServer(t, gamemath.Sequence(0.7))
	rec, body := ts.do(t, http.MethodPost, "/rgs/coinflip/play", "alice", map[string]any{"stake": 1, "choice": "heads"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["roundId"].(string)

	rec, body = ts.do(t, http.MethodGet, "/rgs/coinflip/history/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["roundId"])

	rec, _ = ts.do(t, http.MethodGet, "/rgs/coinflip/history/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_ToggleGame(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, _ := ts.do(t, http.MethodPost, "/rgs/admin/games/dice/enabled", "admin", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/rgs/dice/play", "alice", map[string]any{"stake": 1, "percent": 50, "side": "less"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "GAME_DISABLED", body["code"])

	rec, _ = ts.do(t, http.MethodPost, "/rgs/admin/games/poker/enabled", "admin", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
