package store

import (
	"context"
	"errors"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing one")
)

type BookingFilter struct {
	UserID    *uuid.UUID
	VehicleID *uuid.UUID
	Status    *model.BookingStatus
	// EndBefore keeps bookings whose end_time is strictly before it.
	EndBefore *time.Time
}

type SubscriptionFilter struct {
	UserID *uuid.UUID
	Status *model.SubscriptionStatus
	// ActiveOn keeps subscriptions with start_date <= day <= end_date.
	ActiveOn *time.Time
	// EndBefore keeps subscriptions whose end_date is strictly before it.
	EndBefore *time.Time
}

// Repository is the data access surface of the parking core. Implementations
// must be safe to use from inside a transaction started by Store.InTx.
type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	ListFaceProfiles(ctx context.Context) ([]model.User, error)

	CreateLot(ctx context.Context, lot *model.ParkingLot) error
	GetLot(ctx context.Context, id uuid.UUID) (*model.ParkingLot, error)
	ListLots(ctx context.Context) ([]model.ParkingLot, error)

	CreateSpot(ctx context.Context, spot *model.ParkingSpot) error
	GetSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error)
	// LockSpot reads the spot and holds a row lock on it until the
	// surrounding transaction ends.
	LockSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error)
	SetSpotStatus(ctx context.Context, id uuid.UUID, status model.SpotStatus) error
	// DeleteSpot returns ErrConflict while reservations or visits still
	// reference the spot.
	DeleteSpot(ctx context.Context, id uuid.UUID) error
	CountSpots(ctx context.Context, lotID uuid.UUID) (map[model.SpotStatus]int, error)

	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	GetVehicle(ctx context.Context, id uuid.UUID) (*model.Vehicle, error)
	FindVehicle(ctx context.Context, userID uuid.UUID, plate string) (*model.Vehicle, error)
	ListVehicles(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error)
	UpdateVehicle(ctx context.Context, v *model.Vehicle) error
	// DeleteVehicle returns ErrConflict while bookings or visits still
	// reference the vehicle.
	DeleteVehicle(ctx context.Context, id uuid.UUID) error

	CreateSubscriptionType(ctx context.Context, t *model.SubscriptionType) error
	GetSubscriptionType(ctx context.Context, id uuid.UUID) (*model.SubscriptionType, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	UpdateBooking(ctx context.Context, b *model.Booking) error
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)

	CreateSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, s *model.Subscription) error
	ListSubscriptions(ctx context.Context, f SubscriptionFilter) ([]model.Subscription, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error
	ListPayments(ctx context.Context, userID uuid.UUID) ([]model.Payment, error)
	ListUnconfirmedPayments(ctx context.Context) ([]model.Payment, error)

	CreateHistory(ctx context.Context, h *model.ParkingHistory) error
	FindOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error)
	// LockOpenHistory is FindOpenHistory holding a row lock on the visit
	// until the surrounding transaction ends.
	LockOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error)
	// CloseHistory sets the exit fields of an open visit. It returns
	// ErrNotFound when the visit does not exist or is already closed.
	CloseHistory(ctx context.Context, id uuid.UUID, exitTime time.Time, exitImage string) error
	ListHistory(ctx context.Context, userID uuid.UUID) ([]model.ParkingHistory, error)
	CountOpenHistoryForSpot(ctx context.Context, spotID uuid.UUID) (int, error)
}

// Store groups repository calls into units of work.
type Store interface {
	// View runs fn outside of a write transaction.
	View(ctx context.Context, fn func(r Repository) error) error
	// InTx runs fn in a transaction that commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(r Repository) error) error
}

func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
