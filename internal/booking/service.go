// Package booking is the table-hold engine: holds on slot capacity, their
// expiry, and conversion of holds into paid reservations.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/tablehold/internal/clock"
	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/events"
	"github.com/example/tablehold/internal/expiry"
	"github.com/example/tablehold/internal/ids"
	"github.com/example/tablehold/internal/inventory"
	"github.com/example/tablehold/internal/slotlock"
)

const (
	defaultHoldTTL     = 10 * time.Minute
	defaultLockTimeout = 5 * time.Second

	// terminalRetention is how long terminal holds stay queryable before a sweep drops them.
	terminalRetention = 24 * time.Hour
)

// core carries the collaborators shared by the hold and reservation managers.
type core struct {
	catalog   reservation.RestaurantCatalog
	inventory *inventory.Store
	slots     *slotlock.Manager
	// records serializes work on one hold or reservation, keyed by recordKey.
	records *slotlock.Manager
	expiry  *expiry.Scheduler

	clock       clock.Clock
	ids         reservation.IDGenerator
	repo        Repository
	publisher   events.Publisher
	log         zerolog.Logger
	holdTTL     time.Duration
	lockTimeout time.Duration
}

func holdKey(id string) string        { return "hold:" + id }
func reservationKey(id string) string { return "reservation:" + id }

// withSlot runs fn under the slot lock. A bounded wait that runs out becomes ErrSlotBusy.
func (c *core) withSlot(ctx context.Context, key reservation.SlotKey, timeout time.Duration, fn func() error) error {
	err := c.slots.WithLock(ctx, key.String(), timeout, fn)
	if errors.Is(err, slotlock.ErrLockTimeout) {
		return fmt.Errorf("%w: %s", reservation.ErrSlotBusy, key)
	}
	return err
}

// release returns an occupant's table. It always waits for the slot lock and
// ignores caller cancellation so capacity is never leaked.
func (c *core) release(ctx context.Context, key reservation.SlotKey, occupantID string) {
	_ = c.slots.WithLock(context.WithoutCancel(ctx), key.String(), 0, func() error {
		c.inventory.Release(key, occupantID)
		return nil
	})
}

func (c *core) publish(ctx context.Context, typ string, data any) {
	ev := events.Event{Type: typ, OccurredAt: c.clock.Now(), Data: data}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		c.log.Warn().Err(err).Str("event", typ).Msg("publish event failed")
	}
}

func (c *core) location(ctx context.Context, restaurantID string) (*time.Location, error) {
	r, err := c.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return c.loadLocation(r), nil
}

func (c *core) loadLocation(r reservation.Restaurant) *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		c.log.Warn().Err(err).Str("restaurant_id", r.ID).Str("timezone", r.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

// Service owns all engine state and is the single entry point for callers.
type Service struct {
	*HoldManager
	*ReservationManager

	c *core
}

type Option func(*core)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) Option {
	return func(c *core) {
		if d > 0 {
			c.holdTTL = d
		}
	}
}

// WithLockTimeout bounds how long a request waits for a busy slot.
func WithLockTimeout(d time.Duration) Option {
	return func(c *core) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *core) { c.clock = clk }
}

func WithIDGenerator(g reservation.IDGenerator) Option {
	return func(c *core) { c.ids = g }
}

func WithRepository(r Repository) Option {
	return func(c *core) { c.repo = r }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *core) { c.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *core) { c.log = l }
}

func New(catalog reservation.RestaurantCatalog, payments reservation.PaymentGateway, opts ...Option) *Service {
	c := &core{
		catalog:     catalog,
		inventory:   inventory.New(catalog),
		slots:       slotlock.New(),
		records:     slotlock.New(),
		clock:       clock.NewSystem(),
		ids:         ids.New(),
		repo:        NewMemoryRepository(),
		publisher:   events.Nop{},
		log:         zerolog.Nop(),
		holdTTL:     defaultHoldTTL,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "booking").Logger()
	c.expiry = expiry.New(c.clock)

	holds := newHoldManager(c)
	return &Service{
		HoldManager:        holds,
		ReservationManager: newReservationManager(c, holds, payments),
		c:                  c,
	}
}

// SlotAvailability describes one bookable time on a date.
type SlotAvailability struct {
	Time              string `json:"time"`
	Available         bool   `json:"available"`
	RemainingCapacity int    `json:"remainingCapacity"`
	DepositPerPerson  int64  `json:"depositPerPerson"`
}

type Availability struct {
	Slots            []SlotAvailability `json:"slots"`
	DepositPerPerson int64              `json:"depositPerPerson"`
	TotalDeposit     int64              `json:"totalDeposit"`
}

// Availability lists the restaurant's slot times on date with remaining tables.
// Times that have already started are reported unavailable.
func (s *Service) Availability(ctx context.Context, restaurantID, date string, partySize int) (Availability, error) {
	if partySize < 1 {
		return Availability{}, fmt.Errorf("%w: partySize must be at least 1", reservation.ErrInvalidRequest)
	}
	if _, err := (reservation.SlotKey{RestaurantID: restaurantID, Date: date, Time: "00:00"}).Validate(); err != nil {
		return Availability{}, err
	}
	r, err := s.c.catalog.Restaurant(ctx, restaurantID)
	if err != nil {
		return Availability{}, err
	}
	loc := s.c.loadLocation(r)
	now := s.c.clock.Now()

	out := Availability{
		Slots:            []SlotAvailability{},
		DepositPerPerson: r.DepositPerPerson,
		TotalDeposit:     r.DepositPerPerson * int64(partySize),
	}
	for _, t := range reservation.NormalizeTimes(r.SlotTimes) {
		key := reservation.SlotKey{RestaurantID: restaurantID, Date: date, Time: t}
		capacity, err := s.c.inventory.GetOrInitSlot(ctx, key)
		if err != nil {
			return Availability{}, err
		}
		start, err := key.StartsAt(loc)
		if err != nil {
			return Availability{}, err
		}
		out.Slots = append(out.Slots, SlotAvailability{
			Time:              t,
			Available:         capacity.AvailableTables > 0 && start.After(now),
			RemainingCapacity: capacity.AvailableTables,
			DepositPerPerson:  r.DepositPerPerson,
		})
	}
	return out, nil
}

// Slot returns the capacity snapshot for one slot, initializing it if needed.
func (s *Service) Slot(ctx context.Context, key reservation.SlotKey) (reservation.SlotCapacity, error) {
	key, err := key.Validate()
	if err != nil {
		return reservation.SlotCapacity{}, err
	}
	return s.c.inventory.GetOrInitSlot(ctx, key)
}

// RecoveryStats summarizes what Recover restored from the journal.
type RecoveryStats struct {
	Reservations int
	Holds        int
	Expired      int
}

// Recover reloads journaled reservations and live holds into memory. Open
// reservations take their tables back, live holds are re-armed for expiry and
// holds whose TTL elapsed while the process was down are expired.
func (s *Service) Recover(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats

	rs, err := s.c.repo.Reservations(ctx)
	if err != nil {
		return stats, fmt.Errorf("load reservations: %w", err)
	}
	for _, r := range rs {
		if err := s.ReservationManager.restore(ctx, r); err != nil {
			return stats, err
		}
		stats.Reservations++
	}

	hs, err := s.c.repo.LiveHolds(ctx)
	if err != nil {
		return stats, fmt.Errorf("load holds: %w", err)
	}
	for _, h := range hs {
		if _, converted := s.ReservationManager.forHold(h.ID); converted {
			s.HoldManager.adoptConverted(ctx, h)
			continue
		}
		restored, err := s.HoldManager.restore(ctx, h)
		if err != nil {
			return stats, err
		}
		if restored {
			stats.Holds++
		} else {
			stats.Expired++
		}
	}

	s.c.log.Info().
		Int("reservations", stats.Reservations).
		Int("holds", stats.Holds).
		Int("expired", stats.Expired).
		Msg("recovered booking state")
	return stats, nil
}

// Close disarms pending expiry timers. Holds stay journaled and are recovered
// or swept on the next start.
func (s *Service) Close() {
	s.c.expiry.Stop()
}
