package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/events"
)

// ReservationManager converts holds into paid reservations and owns them afterwards.
type ReservationManager struct {
	c        *core
	holds    *HoldManager
	payments reservation.PaymentGateway

	mu           sync.Mutex
	reservations map[string]*reservation.Reservation
	byHold       map[string]string
	// open indexes confirmed and modified reservations by user and slot.
	open  map[slotUser]string
	codes map[string]string
}

type slotUser struct {
	slot   reservation.SlotKey
	userID string
}

func newReservationManager(c *core, holds *HoldManager, payments reservation.PaymentGateway) *ReservationManager {
	return &ReservationManager{
		c:            c,
		holds:        holds,
		payments:     payments,
		reservations: make(map[string]*reservation.Reservation),
		byHold:       make(map[string]string),
		open:         make(map[slotUser]string),
		codes:        make(map[string]string),
	}
}

type ConfirmInput struct {
	HoldID          string `json:"holdId"`
	UserID          string `json:"userId"`
	PaymentMethod   string `json:"paymentMethod"`
	SpecialRequests string `json:"specialRequests,omitempty"`
}

// ConfirmReservation charges the hold's deposit and converts the hold into a
// reservation. Retried calls for the same hold return the first reservation
// without charging again.
func (m *ReservationManager) ConfirmReservation(ctx context.Context, in ConfirmInput) (reservation.Reservation, error) {
	if in.HoldID == "" || in.UserID == "" {
		return reservation.Reservation{}, fmt.Errorf("%w: holdId and userId required", reservation.ErrInvalidRequest)
	}
	if in.PaymentMethod == "" {
		return reservation.Reservation{}, fmt.Errorf("%w: paymentMethod required", reservation.ErrInvalidRequest)
	}

	if res, ok := m.forHold(in.HoldID); ok {
		return confirmedAgain(res, in.UserID)
	}

	hold, ok := m.holds.Hold(in.HoldID)
	if !ok {
		return reservation.Reservation{}, reservation.ErrHoldNotFound
	}
	if hold.UserID != in.UserID {
		return reservation.Reservation{}, reservation.ErrNotOwner
	}

	if res, ok := m.openFor(hold.Slot(), hold.UserID); ok {
		if hold.Status == reservation.HoldStatusHeld {
			if _, err := m.holds.CancelHold(ctx, hold.ID, hold.UserID); err != nil && !errors.Is(err, reservation.ErrAlreadyTerminal) {
				m.c.log.Warn().Err(err).Str("hold_id", hold.ID).Msg("cancel redundant hold failed")
			}
		}
		return res, nil
	}

	var out reservation.Reservation
	err := m.c.records.WithLock(ctx, holdKey(in.HoldID), 0, func() error {
		if res, ok := m.forHold(in.HoldID); ok {
			var err error
			out, err = confirmedAgain(res, in.UserID)
			return err
		}

		hold, _ := m.holds.Hold(in.HoldID)
		switch hold.Status {
		case reservation.HoldStatusExpired:
			return reservation.ErrHoldExpired
		case reservation.HoldStatusCancelled, reservation.HoldStatusConverted:
			return fmt.Errorf("%w: hold is %s", reservation.ErrAlreadyTerminal, hold.Status)
		}
		if !hold.LiveAt(m.c.clock.Now()) {
			m.holds.terminateLocked(ctx, hold.ID, reservation.HoldStatusExpired)
			return reservation.ErrHoldExpired
		}

		receipt, err := m.payments.Charge(ctx, reservation.Charge{
			Amount:         hold.DepositAmount,
			Method:         in.PaymentMethod,
			IdempotencyKey: hold.ID,
		})
		if err != nil {
			m.c.log.Warn().Err(err).Str("hold_id", hold.ID).Int64("amount", hold.DepositAmount).Msg("deposit charge failed")
			return fmt.Errorf("%w: %w", reservation.ErrPaymentFailed, err)
		}

		// Money has moved; nothing below may be abandoned because the caller went away.
		ctx := context.WithoutCancel(ctx)
		res, err := m.convert(ctx, hold, in, receipt)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	return out, nil
}

// confirmedAgain answers a retried confirmation for a hold that already
// became a reservation. A cancelled reservation is not handed back.
func confirmedAgain(res reservation.Reservation, userID string) (reservation.Reservation, error) {
	if res.UserID != userID {
		return reservation.Reservation{}, reservation.ErrNotOwner
	}
	if res.Status == reservation.StatusCancelled {
		return reservation.Reservation{}, fmt.Errorf("%w: reservation %s was cancelled", reservation.ErrAlreadyTerminal, res.ID)
	}
	return res, nil
}

// convert promotes the hold's table to a new reservation after a successful charge.
func (m *ReservationManager) convert(ctx context.Context, hold reservation.Hold, in ConfirmInput, receipt reservation.Receipt) (reservation.Reservation, error) {
	key := hold.Slot()
	resID := m.c.ids.NewID()

	var promoted bool
	if err := m.c.withSlot(ctx, key, 0, func() error {
		promoted = m.c.inventory.Promote(key, hold.ID, resID)
		return nil
	}); err != nil {
		return reservation.Reservation{}, err
	}
	if !promoted {
		recErr := &reservation.ReconciliationError{
			HoldID:        hold.ID,
			ReservationID: resID,
			Amount:        hold.DepositAmount,
			PaymentRef:    receipt.Reference,
			Cause:         errors.New("hold no longer occupies its slot"),
		}
		m.c.log.Error().
			Err(recErr).
			Str("hold_id", hold.ID).
			Str("reservation_id", resID).
			Int64("amount", hold.DepositAmount).
			Str("payment_ref", receipt.Reference).
			Msg("deposit charged but table could not be promoted")
		m.c.publish(ctx, events.ReservationReconciliationRequired, recErr)
		return reservation.Reservation{}, recErr
	}

	res := reservation.Reservation{
		ID:               resID,
		HoldID:           hold.ID,
		UserID:           hold.UserID,
		RestaurantID:     hold.RestaurantID,
		Date:             hold.Date,
		Time:             hold.Time,
		PartySize:        hold.PartySize,
		Status:           reservation.StatusConfirmed,
		ConfirmationCode: m.uniqueCode(resID),
		DepositAmount:    hold.DepositAmount,
		DepositPaid:      true,
		PaymentMethod:    in.PaymentMethod,
		PaymentRef:       receipt.Reference,
		SpecialRequests:  in.SpecialRequests,
		CreatedAt:        m.c.clock.Now(),
	}
	if err := m.c.repo.SaveReservation(ctx, res); err != nil {
		recErr := &reservation.ReconciliationError{
			HoldID:        hold.ID,
			ReservationID: resID,
			Amount:        hold.DepositAmount,
			PaymentRef:    receipt.Reference,
			Cause:         fmt.Errorf("journal reservation: %w", err),
		}
		m.c.log.Error().
			Err(recErr).
			Str("hold_id", hold.ID).
			Str("reservation_id", resID).
			Int64("amount", hold.DepositAmount).
			Str("payment_ref", receipt.Reference).
			Msg("deposit charged but reservation was not journaled")
		m.c.publish(ctx, events.ReservationReconciliationRequired, recErr)
	}
	m.store(res)
	m.holds.terminateLocked(ctx, hold.ID, reservation.HoldStatusConverted)

	m.c.log.Info().
		Str("reservation_id", res.ID).
		Str("hold_id", hold.ID).
		Str("user_id", res.UserID).
		Str("confirmation_code", res.ConfirmationCode).
		Msg("reservation confirmed")
	m.c.publish(ctx, events.ReservationConfirmed, res)
	return res, nil
}

func (m *ReservationManager) uniqueCode(resID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		code := m.c.ids.NewConfirmationCode()
		if _, taken := m.codes[code]; !taken {
			m.codes[code] = resID
			return code
		}
	}
}

// Refund is the deposit share returned for a cancellation. The engine only
// computes it; the payment collaborator moves the money.
type Refund struct {
	Amount     int64 `json:"refundAmount"`
	Percentage int   `json:"refundPercentage"`
}

// CancelReservation cancels an open reservation, frees its table and returns
// the refund due. Cancelling again returns the refund recorded the first time.
func (m *ReservationManager) CancelReservation(ctx context.Context, reservationID, userID string) (Refund, error) {
	if _, err := m.owned(reservationID, userID); err != nil {
		return Refund{}, err
	}

	var refund Refund
	err := m.c.records.WithLock(ctx, reservationKey(reservationID), 0, func() error {
		res, _ := m.Reservation(reservationID)
		switch {
		case res.Status == reservation.StatusCancelled:
			refund = Refund{Amount: res.RefundAmount, Percentage: res.RefundPercentage}
			return nil
		case !res.Status.Open():
			return fmt.Errorf("%w: reservation is %s", reservation.ErrNotModifiable, res.Status)
		}

		notice, err := m.notice(ctx, res)
		if err != nil {
			return err
		}
		amount, pct := reservation.RefundAmount(res.DepositAmount, notice)
		now := m.c.clock.Now()
		res.Status = reservation.StatusCancelled
		res.CancelledAt = &now
		res.RefundAmount = amount
		res.RefundPercentage = pct

		ctx := context.WithoutCancel(ctx)
		m.c.release(ctx, res.Slot(), res.ID)
		if err := m.c.repo.SaveReservation(ctx, res); err != nil {
			m.c.log.Error().Err(err).Str("reservation_id", res.ID).Msg("journal cancellation failed")
		}
		m.store(res)

		m.c.log.Info().
			Str("reservation_id", res.ID).
			Int64("refund_amount", amount).
			Int("refund_percentage", pct).
			Msg("reservation cancelled")
		m.c.publish(ctx, events.ReservationCancelled, res)
		refund = Refund{Amount: amount, Percentage: pct}
		return nil
	})
	return refund, err
}

// ModifyReservation applies changes to an open reservation at least four hours
// before it starts. A date or time change seats the reservation in the new slot
// before its old table is released.
func (m *ReservationManager) ModifyReservation(ctx context.Context, reservationID, userID string, changes reservation.Changes) (reservation.Reservation, error) {
	if changes.Empty() {
		return reservation.Reservation{}, fmt.Errorf("%w: no changes", reservation.ErrInvalidRequest)
	}
	if changes.PartySize != nil && *changes.PartySize < 1 {
		return reservation.Reservation{}, fmt.Errorf("%w: partySize must be at least 1", reservation.ErrInvalidRequest)
	}
	if _, err := m.owned(reservationID, userID); err != nil {
		return reservation.Reservation{}, err
	}

	var out reservation.Reservation
	err := m.c.records.WithLock(ctx, reservationKey(reservationID), 0, func() error {
		res, _ := m.Reservation(reservationID)
		if !res.Status.Open() {
			return fmt.Errorf("%w: reservation is %s", reservation.ErrNotModifiable, res.Status)
		}
		notice, err := m.notice(ctx, res)
		if err != nil {
			return err
		}
		if notice < reservation.PartialRefundNotice {
			return reservation.ErrModificationClosed
		}

		oldKey := res.Slot()
		newKey := oldKey
		if changes.Date != nil {
			newKey.Date = *changes.Date
		}
		if changes.Time != nil {
			newKey.Time = *changes.Time
		}
		if newKey, err = newKey.Validate(); err != nil {
			return err
		}
		if newKey != oldKey {
			if err := m.move(ctx, res, newKey); err != nil {
				return err
			}
			res.Date, res.Time = newKey.Date, newKey.Time
		}
		if changes.PartySize != nil {
			res.PartySize = *changes.PartySize
		}
		if changes.Notes != nil {
			res.Notes = *changes.Notes
		}
		now := m.c.clock.Now()
		res.Status = reservation.StatusModified
		res.ModifiedAt = &now

		ctx := context.WithoutCancel(ctx)
		if err := m.c.repo.SaveReservation(ctx, res); err != nil {
			m.c.log.Error().Err(err).Str("reservation_id", res.ID).Msg("journal modification failed")
		}
		m.store(res)

		m.c.log.Info().Str("reservation_id", res.ID).Str("slot", newKey.String()).Msg("reservation modified")
		m.c.publish(ctx, events.ReservationModified, res)
		out = res
		return nil
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	return out, nil
}

// move seats the reservation in newKey and then frees its table in the old slot.
func (m *ReservationManager) move(ctx context.Context, res reservation.Reservation, newKey reservation.SlotKey) error {
	restaurant, err := m.c.catalog.Restaurant(ctx, newKey.RestaurantID)
	if err != nil {
		return err
	}
	if err := m.c.checkBookable(restaurant, newKey); err != nil {
		return err
	}
	if other, ok := m.openFor(newKey, res.UserID); ok && other.ID != res.ID {
		return reservation.ErrDuplicateReservation
	}

	err = m.c.withSlot(ctx, newKey, m.c.lockTimeout, func() error {
		ok, err := m.c.inventory.Seat(ctx, newKey, res.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", reservation.ErrSlotFull, newKey)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.c.release(ctx, res.Slot(), res.ID)
	return nil
}

// Settle records the outcome of a reservation once the party has or has not
// arrived. It is refused before the slot starts. The table stays consumed for
// the slot's history.
func (m *ReservationManager) Settle(ctx context.Context, reservationID string, outcome reservation.Status) (reservation.Reservation, error) {
	if outcome != reservation.StatusCompleted && outcome != reservation.StatusNoShow {
		return reservation.Reservation{}, fmt.Errorf("%w: outcome must be completed or no-show", reservation.ErrInvalidRequest)
	}
	if _, ok := m.Reservation(reservationID); !ok {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}

	var out reservation.Reservation
	err := m.c.records.WithLock(ctx, reservationKey(reservationID), 0, func() error {
		res, _ := m.Reservation(reservationID)
		if res.Status == outcome {
			out = res
			return nil
		}
		if !res.Status.Open() {
			return fmt.Errorf("%w: reservation is %s", reservation.ErrNotModifiable, res.Status)
		}
		notice, err := m.notice(ctx, res)
		if err != nil {
			return err
		}
		if notice > 0 {
			return reservation.ErrSettlementNotOpen
		}
		res.Status = outcome

		ctx := context.WithoutCancel(ctx)
		if err := m.c.repo.SaveReservation(ctx, res); err != nil {
			m.c.log.Error().Err(err).Str("reservation_id", res.ID).Msg("journal settlement failed")
		}
		m.store(res)

		m.c.log.Info().Str("reservation_id", res.ID).Str("status", string(outcome)).Msg("reservation settled")
		m.c.publish(ctx, events.ReservationSettled, res)
		out = res
		return nil
	})
	return out, err
}

// notice is the time left before the reservation's slot starts, in the restaurant's timezone.
func (m *ReservationManager) notice(ctx context.Context, res reservation.Reservation) (time.Duration, error) {
	loc, err := m.c.location(ctx, res.RestaurantID)
	if err != nil {
		return 0, err
	}
	start, err := res.Slot().StartsAt(loc)
	if err != nil {
		return 0, err
	}
	return start.Sub(m.c.clock.Now()), nil
}

// Reservation returns a copy of the reservation record.
func (m *ReservationManager) Reservation(id string) (reservation.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return reservation.Reservation{}, false
	}
	return *res, true
}

// ListByUser returns the user's reservations, newest first.
func (m *ReservationManager) ListByUser(userID string) []reservation.Reservation {
	m.mu.Lock()
	out := []reservation.Reservation{}
	for _, res := range m.reservations {
		if res.UserID == userID {
			out = append(out, *res)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *ReservationManager) owned(reservationID, userID string) (reservation.Reservation, error) {
	res, ok := m.Reservation(reservationID)
	if !ok {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	if res.UserID != userID {
		return reservation.Reservation{}, reservation.ErrNotOwner
	}
	return res, nil
}

func (m *ReservationManager) forHold(holdID string) (reservation.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHold[holdID]
	if !ok {
		return reservation.Reservation{}, false
	}
	return *m.reservations[id], true
}

func (m *ReservationManager) openFor(key reservation.SlotKey, userID string) (reservation.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.open[slotUser{slot: key, userID: userID}]
	if !ok {
		return reservation.Reservation{}, false
	}
	return *m.reservations[id], true
}

// store writes the record and keeps the indexes in step with its status and slot.
func (m *ReservationManager) store(res reservation.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.reservations[res.ID]; ok {
		k := slotUser{slot: prev.Slot(), userID: prev.UserID}
		if m.open[k] == prev.ID {
			delete(m.open, k)
		}
	}
	stored := res
	m.reservations[res.ID] = &stored
	if res.HoldID != "" {
		m.byHold[res.HoldID] = res.ID
	}
	if res.ConfirmationCode != "" {
		m.codes[res.ConfirmationCode] = res.ID
	}
	if res.Status.Open() {
		m.open[slotUser{slot: res.Slot(), userID: res.UserID}] = res.ID
	}
}

// restore loads a journaled reservation; open ones take their table back.
func (m *ReservationManager) restore(ctx context.Context, res reservation.Reservation) error {
	if res.Status.Open() {
		key := res.Slot()
		var seated bool
		err := m.c.withSlot(ctx, key, 0, func() error {
			ok, err := m.c.inventory.Seat(ctx, key, res.ID)
			seated = ok
			return err
		})
		if err != nil {
			return fmt.Errorf("restore reservation %s: %w", res.ID, err)
		}
		if !seated {
			m.c.log.Error().Str("reservation_id", res.ID).Str("slot", key.String()).Msg("restored reservation exceeds slot capacity")
		}
	}
	m.store(res)
	return nil
}
