package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"

	"github.com/shopspring/decimal"
)

func (s *Server) getGameConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.games.Get())
}

// patchGameConfig applies a partial update. Running rounds keep the settings
// they were created with.
func (s *Server) patchGameConfig(w http.ResponseWriter, r *http.Request) {
	var p config.Patch
	if !decodeBody(w, r, &p) {
		return
	}
	cfg, err := s.games.Apply(p)
	if errors.Is(err, config.ErrInvalidGameConfig) {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CONFIG")
		return
	}
	if err != nil {
		s.log.Error("RGS game config save failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save game config", "CONFIG_SAVE_FAILED")
		return
	}
	s.log.Info("RGS game config updated", "config", cfg)
	writeJSON(w, http.StatusOK, cfg)
}

type NextCrashPointRequest struct {
	CrashPoint *float64 `json:"crashPoint"` // null clears the override
}

func (s *Server) getNextCrashPoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.crash.NextCrashPoint(r.Context())
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NextCrashPointRequest{CrashPoint: cp})
}

func (s *Server) setNextCrashPoint(w http.ResponseWriter, r *http.Request) {
	var req NextCrashPointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.crash.SetNextCrashPoint(r.Context(), req.CrashPoint); err != nil {
		s.writeRoundError(w, err)
		return
	}
	s.log.Info("RGS crash override set", "crashPoint", req.CrashPoint)
	writeJSON(w, http.StatusOK, req)
}

type BalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

// setUserBalance creates the account or resets its balance.
func (s *Server) setUserBalance(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.PathValue("user"))
	var req BalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if user == "" || req.Balance.IsNegative() {
		writeError(w, http.StatusBadRequest, "user and a non-negative balance are required", "INVALID_INPUT")
		return
	}
	if err := s.ledger.Register(r.Context(), user, req.Balance); err != nil {
		s.writeRoundError(w, &round.Error{Kind: round.Unavailable, Reason: "register " + user, Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "balance": req.Balance.Round(2)})
}

type GameEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// setGameEnabled switches a game on or off for this process.
func (s *Server) setGameEnabled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("game")
	var req GameEnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.registry.SetEnabled(id, req.Enabled) {
		writeError(w, http.StatusNotFound, "unknown game", "GAME_NOT_FOUND")
		return
	}
	s.log.Info("RGS game toggled", "game", id, "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"game_id": id, "enabled": req.Enabled})
}
