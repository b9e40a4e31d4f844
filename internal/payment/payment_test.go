package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/tablehold/internal/domain/reservation"
)

func TestHTTPGateway_Charge(t *testing.T) {
	t.Parallel()

	var seen chargeRequest
	var seenKey, seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/charges" {
			http.NotFound(w, r)
			return
		}
		seenKey = r.Header.Get("Idempotency-Key")
		seenAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&seen)

		switch seen.PaymentMethod {
		case "pm_declined":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"message":"insufficient funds"}`))
		case "pm_broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"reference":"ch_123"}`))
		}
	}))
	t.Cleanup(srv.Close)

	g := NewHTTPGateway(srv.URL+"/", "secret")

	t.Run("success", func(t *testing.T) {
		r, err := g.Charge(context.Background(), reservation.Charge{Amount: 5000, Method: "pm_ok", IdempotencyKey: "hold-1"})
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if r.Reference != "ch_123" {
			t.Fatalf("unexpected reference %q", r.Reference)
		}
		if seen.Amount != 5000 || seen.IdempotencyKey != "hold-1" || seenKey != "hold-1" || seenAuth != "Bearer secret" {
			t.Fatalf("unexpected request %+v key=%q auth=%q", seen, seenKey, seenAuth)
		}
	})

	t.Run("declined", func(t *testing.T) {
		_, err := g.Charge(context.Background(), reservation.Charge{Amount: 5000, Method: "pm_declined", IdempotencyKey: "hold-2"})
		if !errors.Is(err, ErrDeclined) {
			t.Fatalf("expected ErrDeclined, got %v", err)
		}
	})

	t.Run("gateway error", func(t *testing.T) {
		_, err := g.Charge(context.Background(), reservation.Charge{Amount: 5000, Method: "pm_broken", IdempotencyKey: "hold-3"})
		if err == nil || errors.Is(err, ErrDeclined) {
			t.Fatalf("expected gateway failure, got %v", err)
		}
	})
}

func TestFake(t *testing.T) {
	t.Parallel()

	f := NewFake()
	ctx := context.Background()

	if _, err := f.Charge(ctx, reservation.Charge{Amount: 100, Method: "fail-visa", IdempotencyKey: "a"}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}

	if _, err := f.Charge(ctx, reservation.Charge{Amount: 100, Method: "flaky-visa", IdempotencyKey: "b"}); err == nil {
		t.Fatalf("expected first flaky attempt to fail")
	}
	first, err := f.Charge(ctx, reservation.Charge{Amount: 100, Method: "flaky-visa", IdempotencyKey: "b"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	again, err := f.Charge(ctx, reservation.Charge{Amount: 100, Method: "flaky-visa", IdempotencyKey: "b"})
	if err != nil || again != first {
		t.Fatalf("expected same receipt on repeat, got %+v %v", again, err)
	}
	if f.Charged() != 100 {
		t.Fatalf("expected a single charge, got %d", f.Charged())
	}
}
