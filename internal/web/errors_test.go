package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/tablehold/internal/domain/reservation"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad date", reservation.ErrInvalidRequest), http.StatusBadRequest},
		{reservation.ErrDuplicateActiveHold, http.StatusConflict},
		{fmt.Errorf("%w: r1|2025-03-02|19:00", reservation.ErrSlotFull), http.StatusConflict},
		{reservation.ErrSlotBusy, http.StatusConflict},
		{reservation.ErrAlreadyTerminal, http.StatusConflict},
		{reservation.ErrModificationClosed, http.StatusConflict},
		{reservation.ErrNotModifiable, http.StatusConflict},
		{reservation.ErrDuplicateReservation, http.StatusConflict},
		{reservation.ErrSettlementNotOpen, http.StatusConflict},
		{reservation.ErrHoldNotFound, http.StatusNotFound},
		{reservation.ErrReservationNotFound, http.StatusNotFound},
		{reservation.ErrHoldExpired, http.StatusGone},
		{fmt.Errorf("%w: %w", reservation.ErrPaymentFailed, errors.New("declined")), http.StatusPaymentRequired},
		{reservation.ErrNotOwner, http.StatusForbidden},
		{&reservation.ReconciliationError{HoldID: "h1"}, http.StatusAccepted},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestWriteEngineError(t *testing.T) {
	s := &Server{Log: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/api/confirm", nil)

	t.Run("reconciliation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.writeEngineError(rec, req, &reservation.ReconciliationError{
			HoldID: "h1", ReservationID: "r1", Amount: 5000, PaymentRef: "pay_1",
			Cause: errors.New("hold no longer occupies the slot"),
		})
		expectStatus(t, rec, http.StatusAccepted)
		got := decodeBody[errorResponse](t, rec)
		if got.Code != "reconciliation_required" {
			t.Fatalf("unexpected code %q", got.Code)
		}
	})

	t.Run("internal errors hide detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.writeEngineError(rec, req, errors.New("connection reset by peer"))
		expectStatus(t, rec, http.StatusInternalServerError)
		got := decodeBody[errorResponse](t, rec)
		if got.Code != codeInternalError || got.Error != "internal error" {
			t.Fatalf("unexpected body %+v", got)
		}
	})
}
