package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestScheduler_Run(t *testing.T) {
	t.Run("sweeps immediately and on every tick", func(t *testing.T) {
		sw := &countingSweeper{}
		s := &Scheduler{Holds: sw, Interval: 5 * time.Millisecond, Log: zerolog.Nop()}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		err := s.Run(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if sw.calls.Load() < 2 {
			t.Fatalf("expected repeated sweeps, got %d", sw.calls.Load())
		}
	})

	t.Run("keeps running after a failed sweep", func(t *testing.T) {
		sw := &countingSweeper{err: errors.New("journal down")}
		s := &Scheduler{Holds: sw, Interval: 5 * time.Millisecond, Log: zerolog.Nop()}

		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()
		_ = s.Run(ctx)
		if sw.calls.Load() < 2 {
			t.Fatalf("expected sweeps to continue, got %d", sw.calls.Load())
		}
	})

	t.Run("returns on cancelled context", func(t *testing.T) {
		sw := &countingSweeper{}
		s := &Scheduler{Holds: sw, Interval: time.Hour, Log: zerolog.Nop()}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if sw.calls.Load() != 1 {
			t.Fatalf("expected the initial sweep only, got %d", sw.calls.Load())
		}
	})
}
