package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrSlotFull               = errors.New("slot full")
	ErrSlotBusy               = errors.New("slot busy")
	ErrDuplicateActiveHold    = errors.New("user already has an active hold")
	ErrHoldNotFound           = errors.New("hold not found")
	ErrNotOwner               = errors.New("not owner")
	ErrAlreadyTerminal        = errors.New("hold already terminal")
	ErrHoldExpired            = errors.New("hold expired")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrNotModifiable          = errors.New("reservation cannot be changed in its current status")
	ErrModificationClosed     = errors.New("reservation can no longer be modified")
	ErrDuplicateReservation   = errors.New("user already has a reservation for this slot")
	ErrRestaurantNotFound     = errors.New("restaurant not found")
	ErrSettlementNotOpen      = errors.New("reservation cannot be settled before its slot starts")
	ErrReconciliationRequired = errors.New("payment taken but reservation could not be recorded")
)

// ReconciliationError reports a deposit that was charged for a hold whose
// capacity could not be promoted to a reservation. It needs manual refund or repair.
type ReconciliationError struct {
	HoldID        string
	ReservationID string
	Amount        int64
	PaymentRef    string
	Cause         error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required: hold=%s reservation=%s amount=%d payment=%s: %v",
		e.HoldID, e.ReservationID, e.Amount, e.PaymentRef, e.Cause)
}

func (e *ReconciliationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrReconciliationRequired}
	}
	return []error{ErrReconciliationRequired, e.Cause}
}

// ErrorKind maps engine errors to a stable label for logs and API codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrReconciliationRequired):
		return "reconciliation_required"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrSlotBusy):
		return "slot_busy"
	case errors.Is(err, ErrDuplicateActiveHold):
		return "duplicate_active_hold"
	case errors.Is(err, ErrHoldNotFound):
		return "hold_not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrNotModifiable):
		return "not_modifiable"
	case errors.Is(err, ErrModificationClosed):
		return "modification_closed"
	case errors.Is(err, ErrDuplicateReservation):
		return "duplicate_reservation"
	case errors.Is(err, ErrRestaurantNotFound):
		return "restaurant_not_found"
	case errors.Is(err, ErrSettlementNotOpen):
		return "settlement_not_open"
	}
	return "unexpected"
}
