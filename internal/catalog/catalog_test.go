package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/testutil"
)

var defaults = Defaults{
	TotalTables:      10,
	DepositPerPerson: 2500,
	Timezone:         "America/New_York",
	SlotTimes:        []string{"17:00", "17:30"},
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := NewStatic(defaults, reservation.Restaurant{ID: "r1", Name: "Chez", TotalTables: 3, DepositPerPerson: 1000, Timezone: "UTC"})

	r, err := s.Restaurant(context.Background(), "r1")
	if err != nil || r.TotalTables != 3 || r.Name != "Chez" {
		t.Fatalf("expected override, got %+v %v", r, err)
	}

	r, err = s.Restaurant(context.Background(), "yelp-abc")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if r.ID != "yelp-abc" || r.TotalTables != 10 || r.DepositPerPerson != 2500 || len(r.SlotTimes) != 2 {
		t.Fatalf("expected defaults, got %+v", r)
	}
	r.SlotTimes[0] = "mutated"
	if again, _ := s.Restaurant(context.Background(), "yelp-abc"); again.SlotTimes[0] != "17:00" {
		t.Fatalf("defaults must not share slices with callers")
	}

	if _, err := s.Restaurant(context.Background(), ""); !errors.Is(err, reservation.ErrRestaurantNotFound) {
		t.Fatalf("expected ErrRestaurantNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r, err := Validate(reservation.Restaurant{ID: " r1 ", TotalTables: 4, Timezone: "Europe/Paris", SlotTimes: []string{"19:00:00", "18:00", "junk"}})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if r.ID != "r1" || r.Name != "r1" || len(r.SlotTimes) != 2 || r.SlotTimes[0] != "18:00" {
		t.Fatalf("unexpected normalization %+v", r)
	}

	bad := []reservation.Restaurant{
		{ID: "", Timezone: "UTC"},
		{ID: "r1", TotalTables: -1, Timezone: "UTC"},
		{ID: "r1", DepositPerPerson: -5, Timezone: "UTC"},
		{ID: "r1", Timezone: "Mars/Olympus"},
	}
	for _, r := range bad {
		if _, err := Validate(r); !errors.Is(err, reservation.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", r, err)
		}
	}
}

type countingCatalog struct {
	lookups atomic.Int32
	err     error
}

func (c *countingCatalog) Restaurant(_ context.Context, id string) (reservation.Restaurant, error) {
	c.lookups.Add(1)
	if c.err != nil {
		return reservation.Restaurant{}, c.err
	}
	return defaults.Restaurant(id), nil
}

func TestCached(t *testing.T) {
	t.Parallel()

	t.Run("serves repeat lookups from cache", func(t *testing.T) {
		next := &countingCatalog{}
		c := NewCached(next, 16, time.Minute)
		for i := 0; i < 5; i++ {
			if _, err := c.Restaurant(context.Background(), "r1"); err != nil {
				t.Fatalf("lookup: %v", err)
			}
		}
		if n := next.lookups.Load(); n != 1 {
			t.Fatalf("expected 1 upstream lookup, got %d", n)
		}
		c.Invalidate("r1")
		_, _ = c.Restaurant(context.Background(), "r1")
		if n := next.lookups.Load(); n != 2 {
			t.Fatalf("expected lookup after invalidation, got %d", n)
		}
	})

	t.Run("does not cache errors", func(t *testing.T) {
		next := &countingCatalog{err: errors.New("down")}
		c := NewCached(next, 16, time.Minute)
		for i := 0; i < 2; i++ {
			if _, err := c.Restaurant(context.Background(), "r1"); err == nil {
				t.Fatalf("expected error")
			}
		}
		if n := next.lookups.Load(); n != 2 {
			t.Fatalf("expected every failed lookup to reach upstream, got %d", n)
		}
	})
}

func TestPostgres(t *testing.T) {
	d := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, d)
	p := NewPostgres(d, defaults)

	if err := p.Upsert(ctx, reservation.Restaurant{ID: "r1", Name: "Chez", TotalTables: 4, DepositPerPerson: 1500, Timezone: "UTC", SlotTimes: []string{"19:00", "18:00"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r, err := p.Restaurant(ctx, "r1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if r.TotalTables != 4 || r.DepositPerPerson != 1500 || len(r.SlotTimes) != 2 || r.SlotTimes[0] != "18:00" {
		t.Fatalf("unexpected record %+v", r)
	}

	if err := p.Upsert(ctx, reservation.Restaurant{ID: "r1", Name: "Chez", TotalTables: 6, Timezone: "UTC"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if r, _ := p.Restaurant(ctx, "r1"); r.TotalTables != 6 {
		t.Fatalf("expected update, got %+v", r)
	}

	r, err = p.Restaurant(ctx, "unknown")
	if err != nil || r.TotalTables != defaults.TotalTables {
		t.Fatalf("expected defaults for unknown id, got %+v %v", r, err)
	}

	list, err := p.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one stored restaurant, got %+v %v", list, err)
	}
}
