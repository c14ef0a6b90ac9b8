package server

import (
	"net/http"

	"github.com/shopspring/decimal"
)

// Crash

type CrashJoinRequest struct {
	Stake       decimal.Decimal `json:"stake"`
	AutoCashout *float64        `json:"autoCashout,omitempty"`
}

type CrashCashoutRequest struct {
	Coefficient float64 `json:"coefficient"`
}

func (s *Server) handleCrashJoin(w http.ResponseWriter, r *http.Request, user string) {
	var req CrashJoinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.crash.Join(r.Context(), user, req.Stake, req.AutoCashout)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCrashCashout(w http.ResponseWriter, r *http.Request, user string) {
	var req CrashCashoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.crash.Cashout(r.Context(), user, req.Coefficient)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCrashState settles any due auto cash-outs before answering.
func (s *Server) handleCrashState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.crash.State(r.Context())
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Lottery

type LotteryJoinRequest struct {
	Stake decimal.Decimal `json:"stake"`
}

func (s *Server) handleLotteryJoin(w http.ResponseWriter, r *http.Request, user string) {
	var req LotteryJoinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.lottery.Join(r.Context(), user, req.Stake)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLotteryState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lottery.State(r.Context())
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
