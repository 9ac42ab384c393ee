package model

import (
	"time"

	"github.com/google/uuid"
)

type SpotStatus string

const (
	SpotAvailable   SpotStatus = "available"
	SpotReserved    SpotStatus = "reserved"
	SpotInUse       SpotStatus = "in_use"
	SpotMaintenance SpotStatus = "maintenance"
)

type ParkingLot struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Address      string    `db:"address" json:"address"`
	PricePerHour float64   `db:"price_per_hour" json:"price_per_hour"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type ParkingSpot struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	LotID     uuid.UUID  `db:"lot_id" json:"lot_id"`
	Status    SpotStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Availability is a per-status spot count for one lot.
type Availability struct {
	LotID  uuid.UUID          `json:"lot_id"`
	Counts map[SpotStatus]int `json:"counts"`
}

type MaintenanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type LotRequest struct {
	Name         string  `json:"name" validate:"required,max=50"`
	Address      string  `json:"address" validate:"required,max=100"`
	PricePerHour float64 `json:"price_per_hour" validate:"gt=0"`
}

type SpotsRequest struct {
	Count int `json:"count" validate:"required,min=1,max=500"`
}
