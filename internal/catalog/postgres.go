package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/tablehold/internal/db"
	"github.com/example/tablehold/internal/domain/reservation"
)

// Postgres serves restaurant records from the restaurants table and falls back
// to defaults for ids without a row.
type Postgres struct {
	db       *db.DB
	defaults Defaults
}

func NewPostgres(d *db.DB, defaults Defaults) *Postgres {
	return &Postgres{db: d, defaults: defaults}
}

func (p *Postgres) Restaurant(ctx context.Context, id string) (reservation.Restaurant, error) {
	if id == "" {
		return reservation.Restaurant{}, reservation.ErrRestaurantNotFound
	}
	var r reservation.Restaurant
	var slotTimes string
	err := p.db.QueryRow(ctx, `
SELECT id,name,image_url,total_tables,deposit_per_person,timezone,slot_times
FROM restaurants
WHERE id=$1`, id).
		Scan(&r.ID, &r.Name, &r.ImageURL, &r.TotalTables, &r.DepositPerPerson, &r.Timezone, &slotTimes)
	if err != nil {
		if db.IsNotFound(err) {
			return p.defaults.Restaurant(id), nil
		}
		return reservation.Restaurant{}, fmt.Errorf("load restaurant %s: %w", id, err)
	}
	r.SlotTimes = splitTimes(slotTimes)
	if len(r.SlotTimes) == 0 {
		r.SlotTimes = append([]string(nil), p.defaults.SlotTimes...)
	}
	return r, nil
}

// Upsert stores a restaurant record, replacing any previous one.
func (p *Postgres) Upsert(ctx context.Context, r reservation.Restaurant) error {
	r, err := Validate(r)
	if err != nil {
		return err
	}
	return p.db.Exec(ctx, `
INSERT INTO restaurants(id,name,image_url,total_tables,deposit_per_person,timezone,slot_times)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name,
  image_url=EXCLUDED.image_url,
  total_tables=EXCLUDED.total_tables,
  deposit_per_person=EXCLUDED.deposit_per_person,
  timezone=EXCLUDED.timezone,
  slot_times=EXCLUDED.slot_times,
  updated_at=now()`,
		r.ID, r.Name, r.ImageURL, r.TotalTables, r.DepositPerPerson, r.Timezone, strings.Join(r.SlotTimes, ","))
}

func (p *Postgres) List(ctx context.Context) ([]reservation.Restaurant, error) {
	rows, err := p.db.Query(ctx, `
SELECT id,name,image_url,total_tables,deposit_per_person,timezone,slot_times
FROM restaurants
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Restaurant
	for rows.Next() {
		var r reservation.Restaurant
		var slotTimes string
		if err := rows.Scan(&r.ID, &r.Name, &r.ImageURL, &r.TotalTables, &r.DepositPerPerson, &r.Timezone, &slotTimes); err != nil {
			return nil, err
		}
		r.SlotTimes = splitTimes(slotTimes)
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitTimes(s string) []string {
	return reservation.NormalizeTimes(strings.Split(s, ","))
}
