package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/tablehold/internal/clock"
	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/events"
)

var (
	base     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	slotDate = "2025-03-02"
	// slotStart is 19:00 on slotDate, 31 hours after base.
	slotStart = time.Date(2025, 3, 2, 19, 0, 0, 0, time.UTC)
)

type fakeCatalog struct {
	restaurants map[string]reservation.Restaurant
}

func newFakeCatalog(rs ...reservation.Restaurant) *fakeCatalog {
	c := &fakeCatalog{restaurants: make(map[string]reservation.Restaurant)}
	for _, r := range rs {
		c.restaurants[r.ID] = r
	}
	return c
}

func (c *fakeCatalog) Restaurant(_ context.Context, id string) (reservation.Restaurant, error) {
	r, ok := c.restaurants[id]
	if !ok {
		return reservation.Restaurant{}, reservation.ErrRestaurantNotFound
	}
	return r, nil
}

func restaurant(id string, tables int) reservation.Restaurant {
	return reservation.Restaurant{
		ID:               id,
		Name:             "Restaurant " + id,
		TotalTables:      tables,
		DepositPerPerson: 2500,
		Timezone:         "UTC",
		SlotTimes:        []string{"18:00", "19:00", "20:00"},
	}
}

// fakePayments declines methods starting with "fail" and declines the first
// attempt per hold for methods starting with "flaky".
type fakePayments struct {
	mu       sync.Mutex
	attempts map[string]int
	charges  map[string]int
}

func newFakePayments() *fakePayments {
	return &fakePayments{attempts: make(map[string]int), charges: make(map[string]int)}
}

func (p *fakePayments) Charge(_ context.Context, c reservation.Charge) (reservation.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[c.IdempotencyKey]++
	if strings.HasPrefix(c.Method, "fail") {
		return reservation.Receipt{}, errors.New("card declined")
	}
	if strings.HasPrefix(c.Method, "flaky") && p.attempts[c.IdempotencyKey] == 1 {
		return reservation.Receipt{}, errors.New("gateway timeout")
	}
	p.charges[c.IdempotencyKey]++
	return reservation.Receipt{Reference: "pay-" + c.IdempotencyKey}, nil
}

func (p *fakePayments) chargesFor(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charges[key]
}

// stalledClock moves only when set and never fires timers, standing in for
// an expiry callback that has not run yet.
type stalledClock struct {
	mu  sync.Mutex
	now time.Time
}

type inertTimer struct{}

func (inertTimer) Stop() bool { return false }

func (c *stalledClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stalledClock) AfterFunc(time.Duration, func()) clock.Timer { return inertTimer{} }

func (c *stalledClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc      *Service
	payments *fakePayments
	repo     *MemoryRepository
	events   *events.Recorder
}

func newFixture(t *testing.T, clk clock.Clock, rs ...reservation.Restaurant) fixture {
	t.Helper()
	if len(rs) == 0 {
		rs = []reservation.Restaurant{restaurant("r1", 2)}
	}
	f := fixture{
		payments: newFakePayments(),
		repo:     NewMemoryRepository(),
		events:   &events.Recorder{},
	}
	f.svc = New(newFakeCatalog(rs...), f.payments,
		WithClock(clk),
		WithHoldTTL(10*time.Minute),
		WithRepository(f.repo),
		WithPublisher(f.events),
	)
	t.Cleanup(f.svc.Close)
	return f
}

func holdInput(user, at string) CreateHoldInput {
	return CreateHoldInput{UserID: user, RestaurantID: "r1", Date: slotDate, Time: at, PartySize: 2}
}

func slotKey(at string) reservation.SlotKey {
	return reservation.SlotKey{RestaurantID: "r1", Date: slotDate, Time: at}
}

func mustHold(t *testing.T, svc *Service, in CreateHoldInput) reservation.Hold {
	t.Helper()
	h, err := svc.CreateHold(context.Background(), in)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	return h
}

func mustConfirm(t *testing.T, svc *Service, h reservation.Hold) reservation.Reservation {
	t.Helper()
	res, err := svc.ConfirmReservation(context.Background(), ConfirmInput{HoldID: h.ID, UserID: h.UserID, PaymentMethod: "card-ok"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return res
}

func mustSlot(t *testing.T, svc *Service, key reservation.SlotKey) reservation.SlotCapacity {
	t.Helper()
	c, err := svc.Slot(context.Background(), key)
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	if !c.Balanced() {
		t.Fatalf("slot %s unbalanced: %+v", key, c)
	}
	return c
}
