package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/tablehold/internal/booking"
	"github.com/example/tablehold/internal/crypto"
	"github.com/example/tablehold/internal/db"
	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/testutil"
)

var _ booking.Repository = (*Repo)(nil)

func TestRepo(t *testing.T) {
	d := testutil.NewTestDB(t)
	key, err := crypto.NewKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	aead, err := crypto.New(key)
	if err != nil {
		t.Fatalf("aead: %v", err)
	}
	repo := NewRepo(d, aead)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("hold lifecycle", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, d)

		h := reservation.Hold{
			ID: "h1", UserID: "u1", RestaurantID: "r1", Date: "2025-03-02", Time: "19:00",
			PartySize: 2, DepositAmount: 5000, Status: reservation.HoldStatusHeld,
			CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		}
		if err := repo.SaveHold(ctx, h); err != nil {
			t.Fatalf("save hold: %v", err)
		}
		live, err := repo.LiveHolds(ctx)
		if err != nil || len(live) != 1 || live[0] != h {
			t.Fatalf("expected stored hold, got %+v %v", live, err)
		}

		if err := repo.UpdateHoldStatus(ctx, "h1", reservation.HoldStatusExpired); err != nil {
			t.Fatalf("update: %v", err)
		}
		if live, _ := repo.LiveHolds(ctx); len(live) != 0 {
			t.Fatalf("expected no live holds, got %+v", live)
		}
		if err := repo.UpdateHoldStatus(ctx, "missing", reservation.HoldStatusExpired); !errors.Is(err, db.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reservation upsert seals payment method", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, d)

		res := reservation.Reservation{
			ID: "res1", HoldID: "h1", UserID: "u1", RestaurantID: "r1", Date: "2025-03-02", Time: "19:00",
			PartySize: 2, Status: reservation.StatusConfirmed, ConfirmationCode: "TH-ABCDEF",
			DepositAmount: 5000, DepositPaid: true, PaymentMethod: "pm_visa", PaymentRef: "ch_1", CreatedAt: now,
		}
		if err := repo.SaveReservation(ctx, res); err != nil {
			t.Fatalf("save: %v", err)
		}

		var sealed string
		if err := d.QueryRow(ctx, `SELECT payment_method_enc FROM reservations WHERE id=$1`, "res1").Scan(&sealed); err != nil {
			t.Fatalf("read raw: %v", err)
		}
		if sealed == "pm_visa" {
			t.Fatalf("payment method stored in clear")
		}

		cancelled := now.Add(time.Hour)
		res.Status = reservation.StatusCancelled
		res.CancelledAt = &cancelled
		res.RefundAmount = 5000
		res.RefundPercentage = 100
		if err := repo.SaveReservation(ctx, res); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := repo.ListByUser(ctx, "u1")
		if err != nil || len(got) != 1 {
			t.Fatalf("list: %+v %v", got, err)
		}
		if got[0].PaymentMethod != "pm_visa" || got[0].Status != reservation.StatusCancelled || got[0].RefundAmount != 5000 {
			t.Fatalf("unexpected reservation %+v", got[0])
		}
		if got[0].CancelledAt == nil || !got[0].CancelledAt.Equal(cancelled) {
			t.Fatalf("unexpected cancelledAt %v", got[0].CancelledAt)
		}
		all, err := repo.Reservations(ctx)
		if err != nil || len(all) != 1 {
			t.Fatalf("reservations: %+v %v", all, err)
		}
	})
}
