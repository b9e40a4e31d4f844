package booking

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/example/tablehold/internal/domain/reservation"
	"github.com/example/tablehold/internal/events"
)

// HoldManager owns hold records and the per-user active hold index.
type HoldManager struct {
	c *core

	mu    sync.Mutex
	holds map[string]*reservation.Hold
	// byUser maps a user to their held hold. An empty id marks a creation in flight.
	byUser map[string]string
}

func newHoldManager(c *core) *HoldManager {
	return &HoldManager{
		c:      c,
		holds:  make(map[string]*reservation.Hold),
		byUser: make(map[string]string),
	}
}

type CreateHoldInput struct {
	UserID       string `json:"userId"`
	RestaurantID string `json:"restaurantId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	PartySize    int    `json:"partySize"`
}

// CreateHold claims one table of the slot for the user for the hold TTL.
func (h *HoldManager) CreateHold(ctx context.Context, in CreateHoldInput) (reservation.Hold, error) {
	if in.UserID == "" {
		return reservation.Hold{}, fmt.Errorf("%w: userId required", reservation.ErrInvalidRequest)
	}
	if in.PartySize < 1 {
		return reservation.Hold{}, fmt.Errorf("%w: partySize must be at least 1", reservation.ErrInvalidRequest)
	}
	key, err := reservation.SlotKey{RestaurantID: in.RestaurantID, Date: in.Date, Time: in.Time}.Validate()
	if err != nil {
		return reservation.Hold{}, err
	}
	restaurant, err := h.c.catalog.Restaurant(ctx, key.RestaurantID)
	if err != nil {
		return reservation.Hold{}, err
	}
	if err := h.c.checkBookable(restaurant, key); err != nil {
		return reservation.Hold{}, err
	}

	if err := h.claimUser(ctx, in.UserID); err != nil {
		return reservation.Hold{}, err
	}
	created := false
	defer func() {
		if !created {
			h.unclaimUser(in.UserID)
		}
	}()

	var hold reservation.Hold
	err = h.c.withSlot(ctx, key, h.c.lockTimeout, func() error {
		id := h.c.ids.NewID()
		ok, err := h.c.inventory.TryOccupy(ctx, key, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", reservation.ErrSlotFull, key)
		}

		now := h.c.clock.Now()
		hold = reservation.Hold{
			ID:            id,
			UserID:        in.UserID,
			RestaurantID:  key.RestaurantID,
			Date:          key.Date,
			Time:          key.Time,
			PartySize:     in.PartySize,
			DepositAmount: restaurant.DepositPerPerson * int64(in.PartySize),
			Status:        reservation.HoldStatusHeld,
			CreatedAt:     now,
			ExpiresAt:     now.Add(h.c.holdTTL),
		}
		if err := h.c.repo.SaveHold(ctx, hold); err != nil {
			h.c.inventory.Release(key, id)
			return fmt.Errorf("save hold: %w", err)
		}

		h.mu.Lock()
		stored := hold
		h.holds[id] = &stored
		h.byUser[in.UserID] = id
		h.mu.Unlock()
		created = true

		h.arm(hold)
		return nil
	})
	if err != nil {
		return reservation.Hold{}, err
	}

	h.c.log.Info().
		Str("hold_id", hold.ID).
		Str("user_id", hold.UserID).
		Str("slot", key.String()).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold created")
	h.c.publish(ctx, events.HoldCreated, hold)
	return hold, nil
}

// checkBookable rejects slot times outside the restaurant's schedule and slots that already started.
func (c *core) checkBookable(r reservation.Restaurant, key reservation.SlotKey) error {
	if times := reservation.NormalizeTimes(r.SlotTimes); len(times) > 0 && !slices.Contains(times, key.Time) {
		return fmt.Errorf("%w: %s is not a bookable time", reservation.ErrInvalidRequest, key.Time)
	}
	start, err := key.StartsAt(c.loadLocation(r))
	if err != nil {
		return err
	}
	if !start.After(c.clock.Now()) {
		return fmt.Errorf("%w: slot %s has already started", reservation.ErrInvalidRequest, key)
	}
	return nil
}

// claimUser reserves the user's index entry for a creation in flight. A held
// hold whose TTL elapsed without its timer firing yet is expired on the spot.
func (h *HoldManager) claimUser(ctx context.Context, userID string) error {
	for {
		h.mu.Lock()
		id, ok := h.byUser[userID]
		if !ok {
			h.byUser[userID] = ""
			h.mu.Unlock()
			return nil
		}
		if id == "" {
			h.mu.Unlock()
			return reservation.ErrDuplicateActiveHold
		}
		existing := h.holds[id]
		if existing == nil || existing.Status.Terminal() {
			delete(h.byUser, userID)
			h.mu.Unlock()
			continue
		}
		if existing.LiveAt(h.c.clock.Now()) {
			h.mu.Unlock()
			return reservation.ErrDuplicateActiveHold
		}
		h.mu.Unlock()

		if err := h.ExpireHold(ctx, id); err != nil {
			return err
		}
	}
}

func (h *HoldManager) unclaimUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] == "" {
		delete(h.byUser, userID)
	}
}

func (h *HoldManager) arm(hold reservation.Hold) {
	id := hold.ID
	h.c.expiry.Schedule(id, hold.ExpiresAt, func() {
		if err := h.ExpireHold(context.Background(), id); err != nil {
			h.c.log.Error().Err(err).Str("hold_id", id).Msg("scheduled expiry failed")
		}
	})
}

// ExpireHold moves a held hold to expired and frees its table. Terminal holds
// are left alone, so it is safe to call any number of times.
func (h *HoldManager) ExpireHold(ctx context.Context, holdID string) error {
	return h.c.records.WithLock(ctx, holdKey(holdID), 0, func() error {
		h.terminateLocked(ctx, holdID, reservation.HoldStatusExpired)
		return nil
	})
}

// CancelHold releases the user's hold before it expires.
func (h *HoldManager) CancelHold(ctx context.Context, holdID, userID string) (reservation.Hold, error) {
	hold, ok := h.Hold(holdID)
	if !ok {
		return reservation.Hold{}, reservation.ErrHoldNotFound
	}
	if hold.UserID != userID {
		return reservation.Hold{}, reservation.ErrNotOwner
	}

	err := h.c.records.WithLock(ctx, holdKey(holdID), 0, func() error {
		status := reservation.HoldStatusCancelled
		if cur, _ := h.Hold(holdID); cur.Status == reservation.HoldStatusHeld && !cur.LiveAt(h.c.clock.Now()) {
			// Past its TTL with the timer not yet run: it expired, it was not cancelled.
			status = reservation.HoldStatusExpired
		}
		var ok bool
		hold, ok = h.terminateLocked(ctx, holdID, status)
		if !ok || status == reservation.HoldStatusExpired {
			return fmt.Errorf("%w: hold is %s", reservation.ErrAlreadyTerminal, hold.Status)
		}
		return nil
	})
	return hold, err
}

// terminateLocked performs the single terminal transition of a held hold.
// The caller holds the hold's record lock. It returns the hold as it now
// stands and whether this call made the transition.
func (h *HoldManager) terminateLocked(ctx context.Context, holdID string, status reservation.HoldStatus) (reservation.Hold, bool) {
	h.mu.Lock()
	hold, ok := h.holds[holdID]
	if !ok {
		h.mu.Unlock()
		return reservation.Hold{}, false
	}
	if hold.Status.Terminal() {
		out := *hold
		h.mu.Unlock()
		return out, false
	}
	hold.Status = status
	if h.byUser[hold.UserID] == holdID {
		delete(h.byUser, hold.UserID)
	}
	out := *hold
	h.mu.Unlock()

	h.c.expiry.Cancel(holdID)
	if status != reservation.HoldStatusConverted {
		h.c.release(ctx, out.Slot(), holdID)
	}
	if err := h.c.repo.UpdateHoldStatus(context.WithoutCancel(ctx), holdID, status); err != nil {
		h.c.log.Error().Err(err).Str("hold_id", holdID).Str("status", string(status)).Msg("journal hold status failed")
	}

	switch status {
	case reservation.HoldStatusExpired:
		h.c.log.Info().Str("hold_id", holdID).Str("user_id", out.UserID).Msg("hold expired")
		h.c.publish(ctx, events.HoldExpired, out)
	case reservation.HoldStatusCancelled:
		h.c.log.Info().Str("hold_id", holdID).Str("user_id", out.UserID).Msg("hold cancelled")
		h.c.publish(ctx, events.HoldCancelled, out)
	}
	return out, true
}

// GetActiveHold returns the user's live hold, or nil when there is none. A
// hold past its expiry is never reported even if its timer has not fired.
func (h *HoldManager) GetActiveHold(userID string) *reservation.Hold {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.byUser[userID]
	if id == "" {
		return nil
	}
	hold, ok := h.holds[id]
	if !ok || !hold.LiveAt(h.c.clock.Now()) {
		return nil
	}
	out := *hold
	return &out
}

// Hold returns a copy of the hold record.
func (h *HoldManager) Hold(holdID string) (reservation.Hold, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hold, ok := h.holds[holdID]
	if !ok {
		return reservation.Hold{}, false
	}
	return *hold, true
}

// SweepExpired expires held holds whose TTL has elapsed and drops terminal
// holds past retention. It returns how many holds it expired.
func (h *HoldManager) SweepExpired(ctx context.Context) (int, error) {
	now := h.c.clock.Now()

	var overdue []string
	h.mu.Lock()
	for id, hold := range h.holds {
		switch {
		case hold.Status == reservation.HoldStatusHeld && !now.Before(hold.ExpiresAt):
			overdue = append(overdue, id)
		case hold.Status.Terminal() && now.Sub(hold.ExpiresAt) > terminalRetention:
			delete(h.holds, id)
		}
	}
	h.mu.Unlock()

	expired := 0
	for _, id := range overdue {
		var done bool
		err := h.c.records.WithLock(ctx, holdKey(id), 0, func() error {
			_, done = h.terminateLocked(ctx, id, reservation.HoldStatusExpired)
			return nil
		})
		if err != nil {
			return expired, err
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

// restore loads a journaled held hold. Holds past their TTL, or whose table
// was taken while the process was down, are journaled as expired instead.
func (h *HoldManager) restore(ctx context.Context, hold reservation.Hold) (bool, error) {
	key := hold.Slot()
	live := hold.LiveAt(h.c.clock.Now())
	if live {
		err := h.c.withSlot(ctx, key, 0, func() error {
			ok, err := h.c.inventory.TryOccupy(ctx, key, hold.ID)
			if err != nil {
				return err
			}
			live = ok
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("restore hold %s: %w", hold.ID, err)
		}
	}

	h.mu.Lock()
	if !live {
		hold.Status = reservation.HoldStatusExpired
	} else if cur, taken := h.byUser[hold.UserID]; taken && cur != "" {
		// A user has at most one held hold; keep the first one restored.
		hold.Status = reservation.HoldStatusExpired
		live = false
	}
	stored := hold
	h.holds[hold.ID] = &stored
	if live {
		h.byUser[hold.UserID] = hold.ID
	}
	h.mu.Unlock()

	if !live {
		h.c.release(ctx, key, hold.ID)
		if err := h.c.repo.UpdateHoldStatus(ctx, hold.ID, reservation.HoldStatusExpired); err != nil {
			return false, fmt.Errorf("expire stale hold %s: %w", hold.ID, err)
		}
		h.c.log.Info().Str("hold_id", hold.ID).Msg("stale hold expired on recovery")
		return false, nil
	}
	h.arm(hold)
	return true, nil
}

// adoptConverted records a hold the journal still lists as held although its
// reservation was already written.
func (h *HoldManager) adoptConverted(ctx context.Context, hold reservation.Hold) {
	hold.Status = reservation.HoldStatusConverted
	h.mu.Lock()
	h.holds[hold.ID] = &hold
	h.mu.Unlock()
	if err := h.c.repo.UpdateHoldStatus(ctx, hold.ID, hold.Status); err != nil {
		h.c.log.Error().Err(err).Str("hold_id", hold.ID).Msg("journal converted hold failed")
	}
}
