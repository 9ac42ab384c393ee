package parking

import (
	"context"
	"errors"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
)

type BookingInput struct {
	SpotID    uuid.UUID
	VehicleID uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

// CreateBooking reserves a spot for one of the caller's vehicles and charges
// for the booked window. When the charge fails the booking is returned in
// its pending (disable) state together with a GatewayError.
func (s *Service) CreateBooking(ctx context.Context, p auth.Principal, in BookingInput, now time.Time) (*model.Booking, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, fail(KindTimeWindowViolation, "start_time must be before end_time")
	}
	if !in.EndTime.After(now) {
		return nil, fail(KindTimeWindowViolation, "booking window has already ended")
	}

	var (
		b   *model.Booking
		pay *model.Payment
	)
	err := s.inTx(ctx, func(w *work) error {
		if err := ownVehicle(ctx, w.r, p.UserID, in.VehicleID); err != nil {
			return err
		}
		spot, err := w.occupy(ctx, in.SpotID, EventReserve)
		if err != nil {
			return err
		}
		lot, err := w.r.GetLot(ctx, spot.LotID)
		if err != nil {
			return err
		}
		b = &model.Booking{
			UserID:    p.UserID,
			SpotID:    spot.ID,
			VehicleID: in.VehicleID,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			Status:    model.BookingDisabled,
			CreatedAt: now,
		}
		if err := w.r.CreateBooking(ctx, b); err != nil {
			return err
		}
		pay = &model.Payment{
			BookingID: &b.ID,
			Amount:    BookingCharge(*b, *lot),
			Method:    s.paymentMethod,
			Note:      model.NoteBooking,
			CreatedAt: now,
		}
		return w.r.CreatePayment(ctx, pay)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.settle(ctx, pay.ID, s.activate); err != nil {
		return b, err
	}
	return s.reloadBooking(ctx, b.ID)
}

// CreateSubscription reserves a spot for a monthly or quarterly period
// starting today.
func (s *Service) CreateSubscription(ctx context.Context, p auth.Principal, spotID, typeID uuid.UUID, now time.Time) (*model.Subscription, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}

	var (
		sub *model.Subscription
		pay *model.Payment
	)
	err := s.inTx(ctx, func(w *work) error {
		t, err := subscriptionType(ctx, w.r, typeID)
		if err != nil {
			return err
		}
		start, end, err := SubscriptionPeriod(t.Kind, s.today(now))
		if err != nil {
			return err
		}
		spot, err := w.occupy(ctx, spotID, EventReserve)
		if err != nil {
			return err
		}
		sub = &model.Subscription{
			UserID:    p.UserID,
			SpotID:    spot.ID,
			TypeID:    t.ID,
			StartDate: start,
			EndDate:   end,
			Status:    model.SubscriptionCancel,
			CreatedAt: now,
		}
		if err := w.r.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		pay = &model.Payment{
			SubscriptionID: &sub.ID,
			Amount:         SubscriptionCharge(*t),
			Method:         s.paymentMethod,
			Note:           model.NoteSubscription,
			CreatedAt:      now,
		}
		return w.r.CreatePayment(ctx, pay)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.settle(ctx, pay.ID, s.activate); err != nil {
		return sub, err
	}
	return s.reloadSubscription(ctx, sub.ID)
}

// RenewSubscription extends an active subscription under a (possibly new)
// type. The subscription changes only once the renewal is paid.
func (s *Service) RenewSubscription(ctx context.Context, p auth.Principal, subID, typeID uuid.UUID, now time.Time) (*model.Subscription, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}

	var (
		sub *model.Subscription
		t   *model.SubscriptionType
		pay *model.Payment
	)
	err := s.inTx(ctx, func(w *work) error {
		var err error
		sub, err = w.r.GetSubscription(ctx, subID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && sub.UserID != p.UserID) {
			return fail(KindNotFound, "subscription %s does not exist", subID)
		}
		if err != nil {
			return err
		}
		if sub.Status != model.SubscriptionAvailable {
			return fail(KindInvalidState, "subscription %s is %s and cannot be renewed", sub.ID, sub.Status)
		}
		if t, err = subscriptionType(ctx, w.r, typeID); err != nil {
			return err
		}
		if _, err = RenewalEndDate(sub.EndDate, t.Kind); err != nil {
			return err
		}
		pay = &model.Payment{
			SubscriptionID: &sub.ID,
			Amount:         SubscriptionCharge(*t),
			Method:         s.paymentMethod,
			Note:           model.RenewalNote(t.Kind),
			CreatedAt:      now,
		}
		return w.r.CreatePayment(ctx, pay)
	})
	if err != nil {
		return nil, err
	}

	_, err = s.settle(ctx, pay.ID, func(ctx context.Context, w *work, pay *model.Payment) error {
		// The spot lock serializes confirmations for the same subscription, so
		// each paid renewal extends the end date the previous one left.
		if _, err := w.lock(ctx, sub.SpotID); err != nil {
			return err
		}
		cur, err := w.r.GetSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.SubscriptionAvailable {
			return fail(KindInvalidState, "subscription %s is %s and cannot be renewed", cur.ID, cur.Status)
		}
		newEnd, err := RenewalEndDate(cur.EndDate, t.Kind)
		if err != nil {
			return err
		}
		cur.TypeID = t.ID
		cur.EndDate = newEnd
		cur.ShortLink = pay.PayURL
		if err := w.r.UpdateSubscription(ctx, cur); err != nil {
			return err
		}
		lot, err := lotOf(ctx, w.r, cur.SpotID)
		if err != nil {
			return err
		}
		u, err := recipient(ctx, w.r, cur.UserID)
		if err != nil {
			return err
		}
		subject, body := renewalNotice(lot, cur, t.Kind)
		w.notify(u, subject, body)
		return nil
	})
	if err != nil {
		return sub, err
	}
	return s.reloadSubscription(ctx, sub.ID)
}

func ownVehicle(ctx context.Context, r store.Repository, userID, vehicleID uuid.UUID) error {
	v, err := r.GetVehicle(ctx, vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(KindVehicleNotFound, "vehicle %s does not exist", vehicleID)
	}
	if err != nil {
		return err
	}
	if v.UserID != userID {
		return fail(KindVehicleOwnershipMismatch, "vehicle %s does not belong to the caller", vehicleID)
	}
	return nil
}

func subscriptionType(ctx context.Context, r store.Repository, id uuid.UUID) (*model.SubscriptionType, error) {
	t, err := r.GetSubscriptionType(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(KindInvalidSubscriptionType, "subscription type %s does not exist", id)
	}
	return t, err
}

func (s *Service) reloadBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b *model.Booking
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		b, err = r.GetBooking(ctx, id)
		return err
	})
	return b, err
}

func (s *Service) reloadSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		sub, err = r.GetSubscription(ctx, id)
		return err
	})
	return sub, err
}
