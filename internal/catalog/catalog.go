// Package catalog supplies table counts, deposits and schedules per restaurant.
//
// Restaurants are identified by ids owned by an upstream directory, so any id
// the catalog has no record for is served with the configured defaults.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/tablehold/internal/domain/reservation"
)

// Defaults apply to restaurants without an explicit record.
type Defaults struct {
	TotalTables      int
	DepositPerPerson int64
	Timezone         string
	SlotTimes        []string
}

func (d Defaults) Restaurant(id string) reservation.Restaurant {
	return reservation.Restaurant{
		ID:               id,
		Name:             id,
		TotalTables:      d.TotalTables,
		DepositPerPerson: d.DepositPerPerson,
		Timezone:         d.Timezone,
		SlotTimes:        append([]string(nil), d.SlotTimes...),
	}
}

// Validate checks a restaurant record before it is stored.
func Validate(r reservation.Restaurant) (reservation.Restaurant, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, fmt.Errorf("%w: restaurant id required", reservation.ErrInvalidRequest)
	}
	if r.TotalTables < 0 {
		return r, fmt.Errorf("%w: totalTables must not be negative", reservation.ErrInvalidRequest)
	}
	if r.DepositPerPerson < 0 {
		return r, fmt.Errorf("%w: depositPerPerson must not be negative", reservation.ErrInvalidRequest)
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return r, fmt.Errorf("%w: unknown timezone %q", reservation.ErrInvalidRequest, r.Timezone)
	}
	r.SlotTimes = reservation.NormalizeTimes(r.SlotTimes)
	if r.Name == "" {
		r.Name = r.ID
	}
	return r, nil
}

// Static serves restaurants from memory.
type Static struct {
	defaults Defaults

	mu          sync.RWMutex
	restaurants map[string]reservation.Restaurant
}

func NewStatic(defaults Defaults, rs ...reservation.Restaurant) *Static {
	s := &Static{defaults: defaults, restaurants: make(map[string]reservation.Restaurant)}
	for _, r := range rs {
		s.restaurants[r.ID] = r
	}
	return s
}

func (s *Static) Restaurant(_ context.Context, id string) (reservation.Restaurant, error) {
	if id == "" {
		return reservation.Restaurant{}, reservation.ErrRestaurantNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.restaurants[id]; ok {
		return r, nil
	}
	return s.defaults.Restaurant(id), nil
}

func (s *Static) Set(r reservation.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[r.ID] = r
}

// Cached keeps recent lookups from another catalog for a bounded time.
type Cached struct {
	next  reservation.RestaurantCatalog
	cache *expirable.LRU[string, reservation.Restaurant]
}

func NewCached(next reservation.RestaurantCatalog, size int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, reservation.Restaurant](size, nil, ttl),
	}
}

func (c *Cached) Restaurant(ctx context.Context, id string) (reservation.Restaurant, error) {
	if r, ok := c.cache.Get(id); ok {
		return r, nil
	}
	r, err := c.next.Restaurant(ctx, id)
	if err != nil {
		return reservation.Restaurant{}, err
	}
	c.cache.Add(id, r)
	return r, nil
}

// Invalidate drops a cached restaurant after its record changed.
func (c *Cached) Invalidate(id string) {
	c.cache.Remove(id)
}
