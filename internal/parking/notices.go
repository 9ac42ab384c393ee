package parking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
)

const brand = "Green Car Park"

// recipient loads the user to notify. An unknown user gets an empty address,
// which the dispatcher drops.
func recipient(ctx context.Context, r store.Repository, userID uuid.UUID) (*model.User, error) {
	u, err := r.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.User{ID: userID}, nil
	}
	return u, err
}

// lotOf resolves the lot a spot belongs to.
func lotOf(ctx context.Context, r store.Repository, spotID uuid.UUID) (*model.ParkingLot, error) {
	spot, err := r.GetSpot(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("spot %s: %w", spotID, err)
	}
	return r.GetLot(ctx, spot.LotID)
}

func bookingNotice(lot *model.ParkingLot, b *model.Booking) (string, string) {
	return "Booking at " + brand + " confirmed",
		fmt.Sprintf("Your booking at %s is confirmed.\nAddress: %s\nBooking: %s\nSpot: %s\nFrom %s to %s",
			lot.Name, lot.Address, b.ID, b.SpotID, stamp(b.StartTime), stamp(b.EndTime))
}

func subscriptionNotice(lot *model.ParkingLot, sub *model.Subscription) (string, string) {
	return "Subscription at " + brand + " confirmed",
		fmt.Sprintf("Your subscription at %s is active.\nAddress: %s\nSubscription: %s\nSpot: %s\nValid %s to %s",
			lot.Name, lot.Address, sub.ID, sub.SpotID, day(sub.StartDate), day(sub.EndDate))
}

func renewalNotice(lot *model.ParkingLot, sub *model.Subscription, kind string) (string, string) {
	return "Subscription at " + brand + " renewed",
		fmt.Sprintf("Your subscription at %s was renewed.\nAddress: %s\nType: %s\nSubscription: %s\nSpot: %s\nValid until %s",
			lot.Name, lot.Address, kind, sub.ID, sub.SpotID, day(sub.EndDate))
}

func entryNotice(lot *model.ParkingLot, plate string, at time.Time) (string, string) {
	return "Vehicle entered " + lot.Name,
		fmt.Sprintf("Vehicle %s entered %s at %s.", plate, lot.Name, stamp(at))
}

func exitNotice(lot *model.ParkingLot, plate string, at time.Time) (string, string) {
	return "Vehicle left " + lot.Name,
		fmt.Sprintf("Vehicle %s left %s at %s. Thank you for parking with %s.", plate, lot.Name, stamp(at), brand)
}

func penaltyNotice(pay *model.Payment) (string, string) {
	return "Overstay penalty at " + brand,
		fmt.Sprintf("An overstay penalty of %d was charged for your last visit.\nPayment: %s\nPay here: %s",
			pay.Amount, pay.ID, pay.PayURL)
}

func stamp(t time.Time) string { return t.Format("2006-01-02 15:04") }

func day(t time.Time) string { return t.Format("2006-01-02") }
