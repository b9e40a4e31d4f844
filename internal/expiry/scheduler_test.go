package expiry

import (
	"testing"
	"time"

	"github.com/example/tablehold/internal/clock"
)

func TestScheduler(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC)

	t.Run("fires once at deadline", func(t *testing.T) {
		clk := clock.NewManual(start)
		s := New(clk)
		calls := 0
		s.Schedule("h1", start.Add(10*time.Minute), func() { calls++ })

		clk.Advance(9 * time.Minute)
		if calls != 0 {
			t.Fatalf("fired early")
		}
		clk.Advance(time.Minute)
		clk.Advance(time.Hour)
		if calls != 1 {
			t.Fatalf("expected exactly one call, got %d", calls)
		}
		if s.Pending() != 0 {
			t.Fatalf("expected nothing pending, got %d", s.Pending())
		}
	})

	t.Run("cancel prevents firing", func(t *testing.T) {
		clk := clock.NewManual(start)
		s := New(clk)
		s.Schedule("h1", start.Add(time.Minute), func() { t.Fatalf("cancelled callback fired") })
		if !s.Cancel("h1") {
			t.Fatalf("expected pending callback to be cancelled")
		}
		if s.Cancel("h1") {
			t.Fatalf("expected second cancel to report false")
		}
		clk.Advance(time.Hour)
	})

	t.Run("reschedule replaces callback", func(t *testing.T) {
		clk := clock.NewManual(start)
		s := New(clk)
		var got []string
		s.Schedule("h1", start.Add(time.Minute), func() { got = append(got, "first") })
		s.Schedule("h1", start.Add(2*time.Minute), func() { got = append(got, "second") })
		clk.Advance(5 * time.Minute)
		if len(got) != 1 || got[0] != "second" {
			t.Fatalf("expected only second callback, got %v", got)
		}
	})

	t.Run("past deadline fires on next tick", func(t *testing.T) {
		clk := clock.NewManual(start)
		s := New(clk)
		calls := 0
		s.Schedule("h1", start.Add(-time.Minute), func() { calls++ })
		clk.Advance(0)
		if calls != 1 {
			t.Fatalf("expected overdue callback to fire, got %d", calls)
		}
	})

	t.Run("stop disarms everything", func(t *testing.T) {
		clk := clock.NewManual(start)
		s := New(clk)
		s.Schedule("h1", start.Add(time.Minute), func() { t.Fatalf("fired after stop") })
		s.Stop()
		s.Schedule("h2", start.Add(time.Minute), func() { t.Fatalf("scheduled after stop") })
		clk.Advance(time.Hour)
		if s.Pending() != 0 {
			t.Fatalf("expected nothing pending after stop")
		}
	})
}
