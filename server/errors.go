package server

import (
	"encoding/json"
	"net/http"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/round"
)

// APIError is the standard error response for RGS APIs.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errMsg, codeStr string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:   errMsg,
		Code:    codeStr,
		Message: errMsg,
	})
}

var kindStatus = map[round.ErrorKind]int{
	round.InvalidInput:      http.StatusBadRequest,
	round.InsufficientFunds: http.StatusPaymentRequired,
	round.UnknownUser:       http.StatusNotFound,
	round.PhaseViolation:    http.StatusConflict,
	round.AlreadySettled:    http.StatusConflict,
	round.TooLate:           http.StatusConflict,
	round.Unavailable:       http.StatusServiceUnavailable,
}

// writeRoundError maps an engine error to its status. Anything that is not a
// *round.Error is a 500 and is logged.
func (s *Server) writeRoundError(w http.ResponseWriter, err error) {
	kind := round.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		s.log.Error("RGS unexpected error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
		return
	}
	if kind == round.Unavailable {
		s.log.Error("RGS request failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:   string(kind),
		Code:    string(kind),
		Message: err.Error(),
	})
}
