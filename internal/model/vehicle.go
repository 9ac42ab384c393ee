package model

import (
	"time"

	"github.com/google/uuid"
)

type Vehicle struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	LicensePlate string    `db:"license_plate" json:"license_plate"`
	Color        string    `db:"color" json:"color"`
	Brand        string    `db:"brand" json:"brand"`
	CarModel     string    `db:"car_model" json:"car_model"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type VehicleRequest struct {
	LicensePlate string `json:"license_plate" validate:"required,max=8"`
	Color        string `json:"color" validate:"required,max=20"`
	Brand        string `json:"brand" validate:"required,max=20"`
	CarModel     string `json:"car_model" validate:"required,max=20"`
}
