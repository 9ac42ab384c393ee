package parking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExitResult describes a completed exit. Penalty is set only when an
// overstay fee was charged.
type ExitResult struct {
	Visit    *model.ParkingHistory `json:"visit"`
	Penalty  *model.Payment        `json:"penalty,omitempty"`
	Overstay time.Duration         `json:"-"`
}

// NormalizePlate is the canonical form plates are stored and matched in.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// RecordEntry matches a vehicle arriving at the gate to one of its owner's
// reservations and opens a visit. Subscriptions take precedence over
// bookings.
func (s *Service) RecordEntry(ctx context.Context, p auth.Principal, plate, image string, now time.Time) (*model.ParkingHistory, error) {
	if err := requireGate(p); err != nil {
		return nil, err
	}
	if image == "" {
		return nil, fail(KindImageRequired, "entry image is required")
	}
	plate = NormalizePlate(plate)

	var (
		visit *model.ParkingHistory
		kind  string
	)
	err := s.inTx(ctx, func(w *work) error {
		v, err := gateVehicle(ctx, w.r, p.UserID, plate)
		if err != nil {
			return err
		}
		open, err := w.r.FindOpenHistory(ctx, p.UserID, v.ID)
		if err == nil {
			return fail(KindVisitAlreadyOpen, "vehicle %s is already inside (visit %s)", plate, open.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		visit = &model.ParkingHistory{
			UserID:     p.UserID,
			VehicleID:  v.ID,
			EntryTime:  now,
			EntryImage: image,
		}
		sub, err := s.enterSubscription(ctx, w, p.UserID, now)
		if err != nil {
			return err
		}
		if sub != nil {
			kind = "subscription"
			visit.SpotID = sub.SpotID
			visit.SubscriptionID = &sub.ID
		} else {
			b, err := s.enterBooking(ctx, w, p.UserID, v.ID, now)
			if err != nil {
				return err
			}
			kind = "booking"
			visit.SpotID = b.SpotID
			visit.BookingID = &b.ID
		}

		if err := w.r.CreateHistory(ctx, visit); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return failWrap(KindVisitAlreadyOpen, err, "vehicle %s is already inside", plate)
			}
			return err
		}
		lot, err := lotOf(ctx, w.r, visit.SpotID)
		if err != nil {
			return err
		}
		u, err := recipient(ctx, w.r, p.UserID)
		if err != nil {
			return err
		}
		subject, body := entryNotice(lot, plate, now)
		w.notify(u, subject, body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Entry(kind)
	s.log.WithFields(logrus.Fields{
		"visit": visit.ID,
		"spot":  visit.SpotID,
		"kind":  kind,
	}).Info("vehicle entered")
	return visit, nil
}

// enterSubscription takes the first active subscription, in stored order,
// whose spot is held for its subscriber.
func (s *Service) enterSubscription(ctx context.Context, w *work, userID uuid.UUID, now time.Time) (*model.Subscription, error) {
	status := model.SubscriptionAvailable
	today := s.today(now)
	subs, err := w.r.ListSubscriptions(ctx, store.SubscriptionFilter{
		UserID:   &userID,
		Status:   &status,
		ActiveOn: &today,
	})
	if err != nil {
		return nil, err
	}
	for i := range subs {
		spot, err := w.lock(ctx, subs[i].SpotID)
		if err != nil {
			return nil, err
		}
		if spot.Status != model.SpotReserved {
			continue
		}
		if err := w.apply(ctx, spot, EventEnter); err != nil {
			return nil, err
		}
		return &subs[i], nil
	}
	return nil, nil
}

func (s *Service) enterBooking(ctx context.Context, w *work, userID, vehicleID uuid.UUID, now time.Time) (*model.Booking, error) {
	status := model.BookingAvailable
	bookings, err := w.r.ListBookings(ctx, store.BookingFilter{
		UserID:    &userID,
		VehicleID: &vehicleID,
		Status:    &status,
	})
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		b := &bookings[i]
		if !b.Covers(now) {
			continue
		}
		if _, err := w.occupy(ctx, b.SpotID, EventEnter); err != nil {
			return nil, err
		}
		b.Status = model.BookingInUse
		if err := w.r.UpdateBooking(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fail(KindNoActiveReservation, "no active subscription or booking covers vehicle at %s", stamp(now))
}

// RecordExit closes the vehicle's open visit, releases or holds its spot and
// charges an overstay penalty when the reservation ran out. A penalty whose
// charge fails is returned with the result and a GatewayError; the exit
// itself stays recorded.
func (s *Service) RecordExit(ctx context.Context, p auth.Principal, plate, image string, now time.Time) (*ExitResult, error) {
	if err := requireGate(p); err != nil {
		return nil, err
	}
	if image == "" {
		return nil, fail(KindImageRequired, "exit image is required")
	}
	plate = NormalizePlate(plate)

	res := &ExitResult{}
	err := s.inTx(ctx, func(w *work) error {
		v, err := gateVehicle(ctx, w.r, p.UserID, plate)
		if err != nil {
			return err
		}
		// A concurrent exit of the same vehicle waits here and then finds
		// the visit closed.
		visit, err := w.r.LockOpenHistory(ctx, p.UserID, v.ID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNoOpenVisit, "vehicle %s has no open visit", plate)
		}
		if err != nil {
			return err
		}

		var penalty *model.Payment
		switch {
		case visit.SubscriptionID != nil:
			penalty, err = s.leaveSubscription(ctx, w, *visit.SubscriptionID, res, now)
		case visit.BookingID != nil:
			penalty, err = s.leaveBooking(ctx, w, *visit.BookingID, res, now)
		default:
			_, err = w.occupy(ctx, visit.SpotID, EventExitRelease)
		}
		if err != nil {
			return err
		}
		if penalty != nil {
			if err := w.r.CreatePayment(ctx, penalty); err != nil {
				return err
			}
			res.Penalty = penalty
		}

		err = w.r.CloseHistory(ctx, visit.ID, now, image)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNoOpenVisit, "visit %s is already closed", visit.ID)
		}
		if err != nil {
			return err
		}
		visit.ExitTime = &now
		visit.ExitImage = image
		res.Visit = visit

		lot, err := lotOf(ctx, w.r, visit.SpotID)
		if err != nil {
			return err
		}
		u, err := recipient(ctx, w.r, p.UserID)
		if err != nil {
			return err
		}
		subject, body := exitNotice(lot, plate, now)
		w.notify(u, subject, body)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"visit":    res.Visit.ID,
		"spot":     res.Visit.SpotID,
		"overstay": res.Overstay.String(),
	}).Info("vehicle exited")
	if res.Penalty == nil {
		return res, nil
	}
	s.metrics.Penalty(res.Penalty.Amount)
	pay, err := s.settle(ctx, res.Penalty.ID, s.activate)
	if pay != nil {
		res.Penalty = pay
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) leaveSubscription(ctx context.Context, w *work, id uuid.UUID, res *ExitResult, now time.Time) (*model.Payment, error) {
	sub, err := w.r.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	boundary := s.endOfDate(sub.EndDate)
	if now.Before(boundary) {
		_, err := w.occupy(ctx, sub.SpotID, EventExitHold)
		return nil, err
	}
	if _, err := w.occupy(ctx, sub.SpotID, EventExitRelease); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriptionCancel
	if err := w.r.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	res.Overstay = now.Sub(boundary)
	return s.penalty(res.Overstay, nil, &sub.ID, now), nil
}

// leaveBooking always ends the booking, on time or late.
func (s *Service) leaveBooking(ctx context.Context, w *work, id uuid.UUID, res *ExitResult, now time.Time) (*model.Payment, error) {
	b, err := w.r.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := w.occupy(ctx, b.SpotID, EventExitRelease); err != nil {
		return nil, err
	}
	b.Status = model.BookingDisabled
	if err := w.r.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	if !now.After(b.EndTime) {
		return nil, nil
	}
	res.Overstay = now.Sub(b.EndTime)
	return s.penalty(res.Overstay, &b.ID, nil, now), nil
}

func (s *Service) penalty(overstay time.Duration, bookingID, subID *uuid.UUID, now time.Time) *model.Payment {
	amount := Penalty(overstay)
	if amount <= 0 {
		return nil
	}
	return &model.Payment{
		BookingID:      bookingID,
		SubscriptionID: subID,
		Amount:         amount,
		Method:         s.paymentMethod,
		Note:           model.NotePenalty,
		CreatedAt:      now,
	}
}

func gateVehicle(ctx context.Context, r store.Repository, userID uuid.UUID, plate string) (*model.Vehicle, error) {
	v, err := r.FindVehicle(ctx, userID, plate)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(KindVehicleNotFound, "no vehicle %s registered to the caller", plate)
	}
	return v, err
}
