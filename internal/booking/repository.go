package booking

import (
	"context"
	"sort"
	"sync"

	"github.com/example/tablehold/internal/domain/reservation"
)

// Repository journals holds and reservations so the engine can rebuild its
// state after a restart. The in-memory maps stay authoritative while running.
type Repository interface {
	SaveHold(ctx context.Context, h reservation.Hold) error
	UpdateHoldStatus(ctx context.Context, holdID string, status reservation.HoldStatus) error
	SaveReservation(ctx context.Context, r reservation.Reservation) error
	LiveHolds(ctx context.Context) ([]reservation.Hold, error)
	Reservations(ctx context.Context) ([]reservation.Reservation, error)
}

// MemoryRepository is a Repository that lives only as long as the process.
type MemoryRepository struct {
	mu           sync.Mutex
	holds        map[string]reservation.Hold
	reservations map[string]reservation.Reservation
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		holds:        make(map[string]reservation.Hold),
		reservations: make(map[string]reservation.Reservation),
	}
}

func (m *MemoryRepository) SaveHold(_ context.Context, h reservation.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[h.ID] = h
	return nil
}

func (m *MemoryRepository) UpdateHoldStatus(_ context.Context, holdID string, status reservation.HoldStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return reservation.ErrHoldNotFound
	}
	h.Status = status
	m.holds[holdID] = h
	return nil
}

func (m *MemoryRepository) SaveReservation(_ context.Context, r reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
	return nil
}

func (m *MemoryRepository) LiveHolds(context.Context) ([]reservation.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reservation.Hold
	for _, h := range m.holds {
		if h.Status == reservation.HoldStatusHeld {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Reservations(context.Context) ([]reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reservation.Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Hold returns the journaled copy of a hold.
func (m *MemoryRepository) Hold(id string) (reservation.Hold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	return h, ok
}
