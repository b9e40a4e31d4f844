package reservation

import (
	"errors"
	"testing"
	"time"
)

func TestRefundAmount_Tiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		notice  time.Duration
		amount  int64
		percent int
	}{
		{name: "25 hours", notice: 25 * time.Hour, amount: 10000, percent: 100},
		{name: "exactly 24 hours", notice: 24 * time.Hour, amount: 10000, percent: 100},
		{name: "10 hours", notice: 10 * time.Hour, amount: 5000, percent: 50},
		{name: "exactly 4 hours", notice: 4 * time.Hour, amount: 5000, percent: 50},
		{name: "2 hours", notice: 2 * time.Hour, amount: 0, percent: 0},
		{name: "after start", notice: -time.Hour, amount: 0, percent: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			amount, pct := RefundAmount(10000, tt.notice)
			if amount != tt.amount || pct != tt.percent {
				t.Fatalf("expected %d (%d%%), got %d (%d%%)", tt.amount, tt.percent, amount, pct)
			}
		})
	}
}

func TestSlotKey_Validate(t *testing.T) {
	t.Parallel()

	key, err := SlotKey{RestaurantID: "r1", Date: "2025-03-04", Time: "19:30:00"}.Validate()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if key.Time != "19:30" {
		t.Fatalf("expected normalized time 19:30, got %s", key.Time)
	}

	for _, bad := range []SlotKey{
		{Date: "2025-03-04", Time: "19:30"},
		{RestaurantID: "r1", Date: "03/04/2025", Time: "19:30"},
		{RestaurantID: "r1", Date: "2025-03-04", Time: "7pm"},
	} {
		if _, err := bad.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", bad, err)
		}
	}
}

func TestReconciliationError_Unwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("promote failed")
	err := error(&ReconciliationError{HoldID: "h1", ReservationID: "r1", Amount: 5000, Cause: cause})
	if !errors.Is(err, ErrReconciliationRequired) {
		t.Fatalf("expected ErrReconciliationRequired in chain")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if ErrorKind(err) != "reconciliation_required" {
		t.Fatalf("unexpected kind %q", ErrorKind(err))
	}
}

func TestNormalizeTimes(t *testing.T) {
	t.Parallel()

	got := NormalizeTimes([]string{"19:00", "18:30:00", "bogus", "19:00:00", " 17:45 "})
	want := []string{"17:45", "18:30", "19:00"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
