package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

// A booking is created disabled and stays that way until its first payment
// is confirmed; it also returns to disabled once the visit is over.
const (
	BookingDisabled  BookingStatus = "disable"
	BookingAvailable BookingStatus = "available"
	BookingInUse     BookingStatus = "in_use"
)

type Booking struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	UserID    uuid.UUID     `db:"user_id" json:"user_id"`
	SpotID    uuid.UUID     `db:"spot_id" json:"spot_id"`
	VehicleID uuid.UUID     `db:"vehicle_id" json:"vehicle_id"`
	StartTime time.Time     `db:"start_time" json:"start_time"`
	EndTime   time.Time     `db:"end_time" json:"end_time"`
	Status    BookingStatus `db:"status" json:"status"`
	ShortLink string        `db:"short_link" json:"short_link"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Hours is the booked duration, fractional.
func (b Booking) Hours() float64 {
	return b.EndTime.Sub(b.StartTime).Hours()
}

// Covers reports whether t falls inside [StartTime, EndTime].
func (b Booking) Covers(t time.Time) bool {
	return !t.Before(b.StartTime) && !t.After(b.EndTime)
}

type BookingRequest struct {
	SpotID    string    `json:"spot_id" validate:"required,uuid4"`
	VehicleID string    `json:"vehicle_id" validate:"required,uuid4"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}
