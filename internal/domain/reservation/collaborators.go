package reservation

import "context"

// Restaurant is the catalog data the engine needs for one restaurant.
type Restaurant struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	TotalTables      int      `json:"totalTables"`
	DepositPerPerson int64    `json:"depositPerPerson"`
	Timezone         string   `json:"timezone"`
	SlotTimes        []string `json:"slotTimes"`
}

// RestaurantCatalog supplies capacity, deposit and schedule data per restaurant.
type RestaurantCatalog interface {
	Restaurant(ctx context.Context, restaurantID string) (Restaurant, error)
}

// Charge asks the payment gateway to take a deposit.
type Charge struct {
	Amount         int64
	Method         string
	IdempotencyKey string
}

// Receipt identifies a successful charge at the gateway.
type Receipt struct {
	Reference string
}

// PaymentGateway takes deposits. A non-nil error means the charge did not succeed.
type PaymentGateway interface {
	Charge(ctx context.Context, charge Charge) (Receipt, error)
}

// IDGenerator mints opaque identifiers and human-readable confirmation codes.
type IDGenerator interface {
	NewID() string
	NewConfirmationCode() string
}
