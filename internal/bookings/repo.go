// Package bookings journals holds and reservations in Postgres.
package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/example/tablehold/internal/crypto"
	"github.com/example/tablehold/internal/db"
	"github.com/example/tablehold/internal/domain/reservation"
)

// Repo stores the payment method sealed, bound to its reservation id.
type Repo struct {
	db   *db.DB
	aead *crypto.AEAD
}

func NewRepo(d *db.DB, aead *crypto.AEAD) *Repo { return &Repo{db: d, aead: aead} }

func (r *Repo) SaveHold(ctx context.Context, h reservation.Hold) error {
	return r.db.Exec(ctx, `
INSERT INTO holds(id,user_id,restaurant_id,slot_date,slot_time,party_size,deposit_amount,status,created_at,expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, updated_at=now()`,
		h.ID, h.UserID, h.RestaurantID, h.Date, h.Time, h.PartySize, h.DepositAmount, string(h.Status), h.CreatedAt, h.ExpiresAt)
}

func (r *Repo) UpdateHoldStatus(ctx context.Context, holdID string, status reservation.HoldStatus) error {
	n, err := r.db.ExecCount(ctx, `UPDATE holds SET status=$2, updated_at=now() WHERE id=$1`, holdID, string(status))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("hold %s: %w", holdID, db.ErrNotFound)
	}
	return nil
}

func (r *Repo) LiveHolds(ctx context.Context) ([]reservation.Hold, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,user_id,restaurant_id,slot_date,slot_time,party_size,deposit_amount,status,created_at,expires_at
FROM holds
WHERE status='held'
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Hold
	for rows.Next() {
		var h reservation.Hold
		var status string
		if err := rows.Scan(&h.ID, &h.UserID, &h.RestaurantID, &h.Date, &h.Time, &h.PartySize, &h.DepositAmount, &status, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		h.Status = reservation.HoldStatus(status)
		h.CreatedAt = h.CreatedAt.UTC()
		h.ExpiresAt = h.ExpiresAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) SaveReservation(ctx context.Context, res reservation.Reservation) error {
	sealed, err := r.aead.EncryptToString(res.PaymentMethod, res.ID)
	if err != nil {
		return fmt.Errorf("seal payment method: %w", err)
	}
	return r.db.Exec(ctx, `
INSERT INTO reservations(id,hold_id,user_id,restaurant_id,slot_date,slot_time,party_size,status,confirmation_code,
  deposit_amount,deposit_paid,payment_method_enc,payment_ref,special_requests,notes,refund_amount,refund_percentage,
  created_at,modified_at,cancelled_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  slot_date=EXCLUDED.slot_date,
  slot_time=EXCLUDED.slot_time,
  party_size=EXCLUDED.party_size,
  status=EXCLUDED.status,
  notes=EXCLUDED.notes,
  refund_amount=EXCLUDED.refund_amount,
  refund_percentage=EXCLUDED.refund_percentage,
  modified_at=EXCLUDED.modified_at,
  cancelled_at=EXCLUDED.cancelled_at`,
		res.ID, res.HoldID, res.UserID, res.RestaurantID, res.Date, res.Time, res.PartySize, string(res.Status), res.ConfirmationCode,
		res.DepositAmount, res.DepositPaid, sealed, res.PaymentRef, res.SpecialRequests, res.Notes, res.RefundAmount, res.RefundPercentage,
		res.CreatedAt, res.ModifiedAt, res.CancelledAt)
}

const reservationColumns = `id,hold_id,user_id,restaurant_id,slot_date,slot_time,party_size,status,confirmation_code,
  deposit_amount,deposit_paid,payment_method_enc,payment_ref,special_requests,notes,refund_amount,refund_percentage,
  created_at,modified_at,cancelled_at`

func (r *Repo) Reservations(ctx context.Context) ([]reservation.Reservation, error) {
	return r.queryReservations(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY created_at ASC`)
}

// ListByUser returns the user's reservations, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	return r.queryReservations(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) queryReservations(ctx context.Context, sql string, args ...any) ([]reservation.Reservation, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var res reservation.Reservation
		var status, sealed string
		var modifiedAt, cancelledAt *time.Time
		if err := rows.Scan(
			&res.ID, &res.HoldID, &res.UserID, &res.RestaurantID, &res.Date, &res.Time, &res.PartySize, &status, &res.ConfirmationCode,
			&res.DepositAmount, &res.DepositPaid, &sealed, &res.PaymentRef, &res.SpecialRequests, &res.Notes, &res.RefundAmount, &res.RefundPercentage,
			&res.CreatedAt, &modifiedAt, &cancelledAt,
		); err != nil {
			return nil, err
		}
		res.Status = reservation.Status(status)
		res.CreatedAt = res.CreatedAt.UTC()
		res.ModifiedAt = utcPtr(modifiedAt)
		res.CancelledAt = utcPtr(cancelledAt)
		if res.PaymentMethod, err = r.aead.DecryptString(sealed, res.ID); err != nil {
			return nil, fmt.Errorf("open payment method for %s: %w", res.ID, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
