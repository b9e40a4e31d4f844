// Package inventory owns per-slot table counts and the occupants holding them.
//
// Mutating calls must be made while the caller holds the slot lock for the
// key; the store's own mutex only protects its maps.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/tablehold/internal/domain/reservation"
)

type Store struct {
	catalog reservation.RestaurantCatalog

	mu    sync.Mutex
	slots map[reservation.SlotKey]*slot
}

type slot struct {
	total        int
	available    int
	holds        map[string]struct{}
	reservations map[string]struct{}
	version      uint64
}

func New(catalog reservation.RestaurantCatalog) *Store {
	return &Store{
		catalog: catalog,
		slots:   make(map[reservation.SlotKey]*slot),
	}
}

// GetOrInitSlot returns the slot, creating it with the restaurant's table count on first use.
func (s *Store) GetOrInitSlot(ctx context.Context, key reservation.SlotKey) (reservation.SlotCapacity, error) {
	sl, err := s.slot(ctx, key)
	if err != nil {
		return reservation.SlotCapacity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sl.snapshot(key), nil
}

// TryOccupy claims one table for a hold. It is a no-op returning true when the
// occupant is already present, and returns false when no table is available.
func (s *Store) TryOccupy(ctx context.Context, key reservation.SlotKey, occupantID string) (bool, error) {
	sl, err := s.slot(ctx, key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl.has(occupantID) {
		return true, nil
	}
	if sl.available <= 0 {
		return false, nil
	}
	sl.available--
	sl.holds[occupantID] = struct{}{}
	sl.version++
	return true, nil
}

// Seat claims one table directly for a reservation, used when a reservation
// moves slots or is restored after a restart.
func (s *Store) Seat(ctx context.Context, key reservation.SlotKey, reservationID string) (bool, error) {
	sl, err := s.slot(ctx, key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := sl.reservations[reservationID]; ok {
		return true, nil
	}
	if _, ok := sl.holds[reservationID]; ok {
		delete(sl.holds, reservationID)
		sl.reservations[reservationID] = struct{}{}
		sl.version++
		return true, nil
	}
	if sl.available <= 0 {
		return false, nil
	}
	sl.available--
	sl.reservations[reservationID] = struct{}{}
	sl.version++
	return true, nil
}

// Release frees the occupant's table. Absent occupants are ignored so repeated
// releases are safe. It reports whether a table was freed.
func (s *Store) Release(key reservation.SlotKey, occupantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return false
	}
	if _, ok := sl.holds[occupantID]; ok {
		delete(sl.holds, occupantID)
	} else if _, ok := sl.reservations[occupantID]; ok {
		delete(sl.reservations, occupantID)
	} else {
		return false
	}
	sl.available++
	sl.version++
	return true
}

// Promote moves a table from a hold to a reservation without changing availability.
func (s *Store) Promote(key reservation.SlotKey, holdID, reservationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return false
	}
	if _, ok := sl.holds[holdID]; !ok {
		return false
	}
	delete(sl.holds, holdID)
	sl.reservations[reservationID] = struct{}{}
	sl.version++
	return true
}

// Snapshot returns the slot without initializing it.
func (s *Store) Snapshot(key reservation.SlotKey) (reservation.SlotCapacity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return reservation.SlotCapacity{}, false
	}
	return sl.snapshot(key), true
}

func (s *Store) slot(ctx context.Context, key reservation.SlotKey) (*slot, error) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if ok {
		return sl, nil
	}

	restaurant, err := s.catalog.Restaurant(ctx, key.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("load restaurant %s: %w", key.RestaurantID, err)
	}
	total := restaurant.TotalTables
	if total < 0 {
		total = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have initialized the slot while the catalog was consulted.
	if sl, ok := s.slots[key]; ok {
		return sl, nil
	}
	sl = &slot{
		total:        total,
		available:    total,
		holds:        make(map[string]struct{}),
		reservations: make(map[string]struct{}),
	}
	s.slots[key] = sl
	return sl, nil
}

func (sl *slot) has(id string) bool {
	if _, ok := sl.holds[id]; ok {
		return true
	}
	_, ok := sl.reservations[id]
	return ok
}

func (sl *slot) snapshot(key reservation.SlotKey) reservation.SlotCapacity {
	return reservation.SlotCapacity{
		SlotKey:         key,
		TotalTables:     sl.total,
		AvailableTables: sl.available,
		HoldIDs:         sortedKeys(sl.holds),
		ReservationIDs:  sortedKeys(sl.reservations),
		Version:         sl.version,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
