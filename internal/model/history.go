package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrHistoryOwner = errors.New("parking history may reference a booking or a subscription, not both")

type ParkingHistory struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	SpotID         uuid.UUID  `db:"spot_id" json:"spot_id"`
	VehicleID      uuid.UUID  `db:"vehicle_id" json:"vehicle_id"`
	BookingID      *uuid.UUID `db:"booking_id" json:"booking,omitempty"`
	SubscriptionID *uuid.UUID `db:"subscription_id" json:"subscription,omitempty"`
	EntryTime      time.Time  `db:"entry_time" json:"entry_time"`
	ExitTime       *time.Time `db:"exit_time" json:"exit_time,omitempty"`
	EntryImage     string     `db:"entry_image" json:"entry_image"`
	ExitImage      string     `db:"exit_image" json:"exit_image,omitempty"`
}

func (h ParkingHistory) Open() bool { return h.ExitTime == nil }

func (h ParkingHistory) Validate() error {
	if h.BookingID != nil && h.SubscriptionID != nil {
		return ErrHistoryOwner
	}
	return nil
}

type GateRequest struct {
	LicensePlate string `json:"license_plate" validate:"required,max=8"`
}
