package reservation

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotKey identifies one bookable slot: a restaurant, a calendar date and a time of day.
type SlotKey struct {
	RestaurantID string `json:"restaurantId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

func (k SlotKey) String() string {
	return k.RestaurantID + "|" + k.Date + "|" + k.Time
}

// Validate checks the date and time layouts. The time is normalized to HH:MM.
func (k SlotKey) Validate() (SlotKey, error) {
	if k.RestaurantID == "" {
		return k, fmt.Errorf("%w: restaurantId required", ErrInvalidRequest)
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return k, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	t, err := NormalizeTime(k.Time)
	if err != nil {
		return k, err
	}
	k.Time = t
	return k, nil
}

// StartsAt returns the instant the slot begins in loc.
func (k SlotKey) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, k.Date+" "+k.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid slot %s", ErrInvalidRequest, k)
	}
	return start, nil
}

type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"
	HoldStatusExpired   HoldStatus = "expired"
	HoldStatusConverted HoldStatus = "converted"
	HoldStatusCancelled HoldStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s HoldStatus) Terminal() bool {
	return s != HoldStatusHeld
}

// Hold is a time-boxed exclusive claim on one table of a slot.
type Hold struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	RestaurantID  string     `json:"restaurantId"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	PartySize     int        `json:"partySize"`
	DepositAmount int64      `json:"depositAmount"`
	Status        HoldStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
}

func (h Hold) Slot() SlotKey {
	return SlotKey{RestaurantID: h.RestaurantID, Date: h.Date, Time: h.Time}
}

// LiveAt reports whether the hold is held and its TTL has not elapsed at now.
func (h Hold) LiveAt(now time.Time) bool {
	return h.Status == HoldStatusHeld && now.Before(h.ExpiresAt)
}

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusModified  Status = "modified"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// Open reports whether the reservation still occupies capacity and may change.
func (s Status) Open() bool {
	return s == StatusConfirmed || s == StatusModified
}

// Reservation is a paid booking created from exactly one hold.
type Reservation struct {
	ID               string     `json:"id"`
	HoldID           string     `json:"holdId"`
	UserID           string     `json:"userId"`
	RestaurantID     string     `json:"restaurantId"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	PartySize        int        `json:"partySize"`
	Status           Status     `json:"status"`
	ConfirmationCode string     `json:"confirmationCode"`
	DepositAmount    int64      `json:"depositAmount"`
	DepositPaid      bool       `json:"depositPaid"`
	PaymentMethod    string     `json:"paymentMethod"`
	PaymentRef       string     `json:"paymentRef,omitempty"`
	SpecialRequests  string     `json:"specialRequests,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	RefundAmount     int64      `json:"refundAmount,omitempty"`
	RefundPercentage int        `json:"refundPercentage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	ModifiedAt       *time.Time `json:"modifiedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
}

func (r Reservation) Slot() SlotKey {
	return SlotKey{RestaurantID: r.RestaurantID, Date: r.Date, Time: r.Time}
}

// Changes lists the fields a modification may touch. Nil fields are left alone.
type Changes struct {
	Date      *string `json:"date,omitempty"`
	Time      *string `json:"time,omitempty"`
	PartySize *int    `json:"partySize,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

func (c Changes) Empty() bool {
	return c.Date == nil && c.Time == nil && c.PartySize == nil && c.Notes == nil
}

// SlotCapacity is a point-in-time view of one slot's occupancy.
type SlotCapacity struct {
	SlotKey
	TotalTables     int      `json:"totalTables"`
	AvailableTables int      `json:"availableTables"`
	HoldIDs         []string `json:"holdIds"`
	ReservationIDs  []string `json:"reservationIds"`
	Version         uint64   `json:"version"`
}

// Balanced reports whether available + holds + reservations equals the total.
func (c SlotCapacity) Balanced() bool {
	return c.AvailableTables >= 0 &&
		c.AvailableTables+len(c.HoldIDs)+len(c.ReservationIDs) == c.TotalTables
}
