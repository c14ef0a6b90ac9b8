package server

import (
	"net/http"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"

	"github.com/shopspring/decimal"
)

type DropPlayRequest struct {
	Stake decimal.Decimal `json:"stake"`
	Risk  string          `json:"risk"`
	Rows  int             `json:"rows"`
	Count int             `json:"count,omitempty"` // balls; defaults to 1
}

type CoinflipRequest struct {
	Stake  decimal.Decimal `json:"stake"`
	Choice string          `json:"choice"`
}

type DiceRequest struct {
	Stake   decimal.Decimal `json:"stake"`
	Percent float64         `json:"percent"`
	Side    string          `json:"side"`
}

func (s *Server) handleDropConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.drop.Config()
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDropPlay(w http.ResponseWriter, r *http.Request, user string) {
	var req DropPlayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	res, err := s.drop.Play(r.Context(), user, req.Stake, gamemath.Risk(req.Risk), req.Rows, req.Count)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCoinflip(w http.ResponseWriter, r *http.Request, user string) {
	var req CoinflipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.instant.Coinflip(r.Context(), user, req.Stake, req.Choice)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDice(w http.ResponseWriter, r *http.Request, user string) {
	var req DiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.instant.Dice(r.Context(), user, req.Stake, req.Percent, req.Side)
	if err != nil {
		s.writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
