package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/tablehold/internal/domain/reservation"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeUnauthorized       = "unauthorized"
	codeSessionsDisabled   = "sessions_disabled"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reservation.ErrReconciliationRequired):
		return http.StatusAccepted
	case errors.Is(err, reservation.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, reservation.ErrDuplicateActiveHold),
		errors.Is(err, reservation.ErrSlotFull),
		errors.Is(err, reservation.ErrSlotBusy),
		errors.Is(err, reservation.ErrAlreadyTerminal),
		errors.Is(err, reservation.ErrModificationClosed),
		errors.Is(err, reservation.ErrNotModifiable),
		errors.Is(err, reservation.ErrDuplicateReservation),
		errors.Is(err, reservation.ErrSettlementNotOpen):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrHoldNotFound),
		errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, reservation.ErrRestaurantNotFound):
		return http.StatusNotFound
	case errors.Is(err, reservation.ErrHoldExpired):
		return http.StatusGone
	case errors.Is(err, reservation.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, reservation.ErrNotOwner):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeEngineError answers with the mapped status. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, codeInternalError, "internal error")
		return
	}
	if status == http.StatusAccepted {
		writeError(w, status, reservation.ErrorKind(err),
			"Your deposit was received but the booking needs attention. Our team will contact you to complete or refund it.")
		return
	}
	writeError(w, status, reservation.ErrorKind(err), err.Error())
}
