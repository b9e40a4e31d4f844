// Package scheduler runs the reconciling sweep that expires overdue holds
// whose timers did not fire.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the piece of the booking engine the loop drives.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type Scheduler struct {
	Holds    Sweeper
	Interval time.Duration
	Log      zerolog.Logger
}

// Run sweeps immediately and then every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.Holds.SweepExpired(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Int("expired", n).Msg("hold sweep incomplete")
		return
	}
	if n > 0 {
		s.Log.Info().Int("expired", n).Msg("swept overdue holds")
	}
}
