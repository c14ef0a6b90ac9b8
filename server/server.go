package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/clock"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games/crash"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games/drop"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games/instant"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/games/lottery"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/logger"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"
)

const (
	userHeader  = "X-User-Id"
	adminHeader = "X-Admin-Token"
)

// Options carries everything the server needs. Clock and Rand default to
// the wall clock and crypto/rand.
type Options struct {
	Config   *config.Config
	Games    *config.GameStore
	Registry *games.Registry
	Ledger   *wallet.Ledger
	Results  *round.ResultsStore
	Sink     round.Sink // defaults to Results
	Journal  *round.Journal
	Tables   *gamemath.TableBuilder
	Clock    clock.Clock
	Rand     gamemath.Rand
	Logger   *slog.Logger
}

type Server struct {
	cfg      *config.Config
	games    *config.GameStore
	registry *games.Registry
	ledger   *wallet.Ledger
	results  *round.ResultsStore
	log      *slog.Logger

	crash   *crash.Engine
	lottery *lottery.Engine
	drop    *drop.Simulator
	instant *instant.Games
}

// New builds the engines and wires their settings to the live game config.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}
	if opts.Registry == nil {
		opts.Registry = games.NewRegistry(opts.Config.Games)
	}
	if opts.Sink == nil {
		opts.Sink = opts.Results
	}
	if opts.Journal != nil && opts.Clock != nil {
		opts.Journal.WithClock(opts.Clock)
	}
	gs := opts.Games
	s := &Server{
		cfg:      opts.Config,
		games:    gs,
		registry: opts.Registry,
		ledger:   opts.Ledger,
		results:  opts.Results,
		log:      opts.Logger,
	}
	s.crash = crash.New(crash.Options{
		Clock:    opts.Clock,
		Rand:     opts.Rand,
		Ledger:   opts.Ledger,
		Sink:     opts.Sink,
		Journal:  opts.Journal,
		Logger:   opts.Logger.With("game", round.KindCrash),
		Settings: func() crash.Settings { return CrashSettings(gs.Get()) },
	})
	s.lottery = lottery.New(lottery.Options{
		Clock:    opts.Clock,
		Rand:     opts.Rand,
		Ledger:   opts.Ledger,
		Sink:     opts.Sink,
		Journal:  opts.Journal,
		Logger:   opts.Logger.With("game", round.KindLottery),
		Settings: func() lottery.Settings { return LotterySettings(gs.Get()) },
	})
	s.drop = drop.New(drop.Options{
		Clock:    opts.Clock,
		Rand:     opts.Rand,
		Ledger:   opts.Ledger,
		Tables:   opts.Tables,
		Sink:     opts.Sink,
		Journal:  opts.Journal,
		Logger:   opts.Logger.With("game", round.KindDrop),
		MaxBalls: func() int { return gs.Get().DropMaxBalls },
	})
	s.instant = instant.New(instant.Options{
		Clock:    opts.Clock,
		Rand:     opts.Rand,
		Ledger:   opts.Ledger,
		Sink:     opts.Sink,
		Journal:  opts.Journal,
		Logger:   opts.Logger.With("game", "instant"),
		Settings: func() instant.Settings { return InstantSettings(gs.Get()) },
	})
	return s
}

// CrashSettings maps the game config onto a new crash round.
func CrashSettings(g config.GameConfig) crash.Settings {
	return crash.Settings{
		BetDelay:       g.Crash.BetDelay,
		Curve:          crash.Curve{BaseSpeed: g.Crash.BaseSpeed, Accel: g.Crash.Accel},
		CommissionRate: config.Rate(g.CrashCommissionPercent),
	}
}

func LotterySettings(g config.GameConfig) lottery.Settings {
	return lottery.Settings{
		DrawDelay:      g.Lottery.DrawDelay,
		CommissionRate: config.Rate(g.LotteryCommissionPercent),
	}
}

func InstantSettings(g config.GameConfig) instant.Settings {
	return instant.Settings{
		CoinflipMultiplier: g.CoinflipMultiplier,
		DiceCommissionRate: config.Rate(g.DiceCommissionPercent),
	}
}

// Close stops the round engines. Rounds in flight stay in the journal.
func (s *Server) Close() {
	s.crash.Close()
	s.lottery.Close()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /rgs/games/list", s.handleGamesList)
	mux.HandleFunc("GET /rgs/balance", s.withUser(s.getBalance))
	mux.HandleFunc("GET /rgs/{game}/history", s.handleHistory)
	mux.HandleFunc("GET /rgs/{game}/history/{roundId}", s.handleHistoryRound)

	mux.HandleFunc("POST /rgs/crash/join", s.enabled(round.KindCrash, s.withUser(s.handleCrashJoin)))
	mux.HandleFunc("POST /rgs/crash/cashout", s.enabled(round.KindCrash, s.withUser(s.handleCrashCashout)))
	mux.HandleFunc("GET /rgs/crash/state", s.enabled(round.KindCrash, s.handleCrashState))

	mux.HandleFunc("POST /rgs/lottery/join", s.enabled(round.KindLottery, s.withUser(s.handleLotteryJoin)))
	mux.HandleFunc("GET /rgs/lottery/state", s.enabled(round.KindLottery, s.handleLotteryState))

	mux.HandleFunc("GET /rgs/drop/config", s.enabled(round.KindDrop, s.handleDropConfig))
	mux.HandleFunc("POST /rgs/drop/play", s.enabled(round.KindDrop, s.withUser(s.handleDropPlay)))

	mux.HandleFunc("POST /rgs/coinflip/play", s.enabled(round.KindCoinflip, s.withUser(s.handleCoinflip)))
	mux.HandleFunc("POST /rgs/dice/play", s.enabled(round.KindDice, s.withUser(s.handleDice)))

	mux.HandleFunc("GET /rgs/admin/game-config", s.admin(s.getGameConfig))
	mux.HandleFunc("PATCH /rgs/admin/game-config", s.admin(s.patchGameConfig))
	mux.HandleFunc("GET /rgs/admin/crash/next-point", s.admin(s.getNextCrashPoint))
	mux.HandleFunc("POST /rgs/admin/crash/next-point", s.admin(s.setNextCrashPoint))
	mux.HandleFunc("POST /rgs/admin/users/{user}/balance", s.admin(s.setUserBalance))
	mux.HandleFunc("POST /rgs/admin/games/{game}/enabled", s.admin(s.setGameEnabled))

	return cors(s.requestLogger(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.RGSPort
	if port <= 0 {
		port = 8081
	}
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("RGS listening", "addr", srv.Addr, "store", s.cfg.BalanceStore)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+userHeader+", "+adminHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// requestLogger logs method and path for each request (no body or secrets).
func (s *Server) requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		s.log.Debug("RGS request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(userHeader))
		if user == "" {
			writeError(w, http.StatusUnauthorized, "user id required", "USER_REQUIRED")
			return
		}
		h(w, r, user)
	}
}

func (s *Server) enabled(kind round.Kind, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.registry.Enabled(string(kind)) {
			writeError(w, http.StatusNotFound, "game not enabled", "GAME_DISABLED")
			return
		}
		h(w, r)
	}
}

// admin requires X-Admin-Token to match the configured token. With no token
// configured the admin routes are closed.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" || r.Header.Get(adminHeader) != s.cfg.AdminToken {
			writeError(w, http.StatusForbidden, "admin token required", "FORBIDDEN")
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "rgs"})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request, user string) {
	bal, err := s.ledger.Balance(r.Context(), user)
	if err != nil {
		s.writeRoundError(w, round.FromWallet(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "balance": bal})
}

func (s *Server) handleGamesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": s.registry.List()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	kind := round.Kind(r.PathValue("game"))
	if !s.registry.Enabled(string(kind)) {
		writeError(w, http.StatusNotFound, "game not enabled", "GAME_DISABLED")
		return
	}
	list := s.results.List(kind)
	if list == nil {
		list = []*round.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"game": kind, "results": list})
}

func (s *Server) handleHistoryRound(w http.ResponseWriter, r *http.Request) {
	kind := round.Kind(r.PathValue("game"))
	if !s.registry.Enabled(string(kind)) {
		writeError(w, http.StatusNotFound, "game not enabled", "GAME_DISABLED")
		return
	}
	res, ok := s.results.GetByRoundID(kind, r.PathValue("roundId"))
	if !ok {
		writeError(w, http.StatusNotFound, "round not found", "ROUND_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", "INVALID_BODY")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
