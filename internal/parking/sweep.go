package parking

import (
	"context"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SweepReport struct {
	Bookings      int `json:"bookings"`
	Subscriptions int `json:"subscriptions"`
}

// ExpireStale ends reservations that ran out without the vehicle arriving
// and releases their spots. That covers paid reservations and ones still
// waiting on their first payment; the latter's payment is marked lapsed.
// Every reservation is handled in its own transaction; one failure does not
// stop the rest.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (SweepReport, error) {
	var (
		rep      SweepReport
		bookings []model.Booking
		subs     []model.Subscription
		pending  []model.Payment
	)
	today := s.today(now)
	err := s.view(ctx, func(r store.Repository) error {
		bs := model.BookingAvailable
		var err error
		bookings, err = r.ListBookings(ctx, store.BookingFilter{Status: &bs, EndBefore: &now})
		if err != nil {
			return err
		}
		ss := model.SubscriptionAvailable
		subs, err = r.ListSubscriptions(ctx, store.SubscriptionFilter{Status: &ss, EndBefore: &today})
		if err != nil {
			return err
		}
		pending, err = r.ListUnconfirmedPayments(ctx)
		return err
	})
	if err != nil {
		return rep, err
	}

	var firstErr error
	for _, b := range bookings {
		done, err := s.expireBooking(ctx, b.ID, now)
		if err != nil {
			s.log.WithError(err).WithField("booking", b.ID).Warn("booking expiry failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if done {
			rep.Bookings++
		}
	}
	for _, sub := range subs {
		done, err := s.expireSubscription(ctx, sub.ID, today)
		if err != nil {
			s.log.WithError(err).WithField("subscription", sub.ID).Warn("subscription expiry failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if done {
			rep.Subscriptions++
		}
	}
	for _, pay := range pending {
		if pay.Note != model.NoteBooking && pay.Note != model.NoteSubscription {
			continue
		}
		done, err := s.expireUnpaid(ctx, pay.ID, now, today)
		if err != nil {
			s.log.WithError(err).WithField("payment", pay.ID).Warn("unpaid reservation expiry failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if done && pay.BookingID != nil {
			rep.Bookings++
		} else if done {
			rep.Subscriptions++
		}
	}
	s.log.WithFields(logrus.Fields{
		"bookings":      rep.Bookings,
		"subscriptions": rep.Subscriptions,
	}).Info("expiry sweep finished")
	return rep, firstErr
}

func (s *Service) expireBooking(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	done := false
	err := s.inTx(ctx, func(w *work) error {
		b, err := w.r.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != model.BookingAvailable || !b.EndTime.Before(now) {
			return nil
		}
		spot, err := w.lock(ctx, b.SpotID)
		if err != nil {
			return err
		}
		if spot.Status == model.SpotReserved {
			if err := w.apply(ctx, spot, EventLapse); err != nil {
				return err
			}
		}
		b.Status = model.BookingDisabled
		done = true
		return w.r.UpdateBooking(ctx, b)
	})
	return done, err
}

// expireSubscription leaves subscriptions alone while their vehicle is still
// inside; the exit settles those.
func (s *Service) expireSubscription(ctx context.Context, id uuid.UUID, today time.Time) (bool, error) {
	done := false
	err := s.inTx(ctx, func(w *work) error {
		sub, err := w.r.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != model.SubscriptionAvailable || !civil(sub.EndDate).Before(today) {
			return nil
		}
		inside, err := w.r.CountOpenHistoryForSpot(ctx, sub.SpotID)
		if err != nil {
			return err
		}
		if inside > 0 {
			return nil
		}
		spot, err := w.lock(ctx, sub.SpotID)
		if err != nil {
			return err
		}
		if spot.Status == model.SpotReserved {
			if err := w.apply(ctx, spot, EventLapse); err != nil {
				return err
			}
		}
		sub.Status = model.SubscriptionCancel
		done = true
		return w.r.UpdateSubscription(ctx, sub)
	})
	return done, err
}

// expireUnpaid releases the spot held by a booking or subscription whose
// first payment never went through and whose period is over. The booking
// stays disable and the subscription cancel; the payment note is marked
// lapsed so a retry cannot revive the reservation.
func (s *Service) expireUnpaid(ctx context.Context, paymentID uuid.UUID, now, today time.Time) (bool, error) {
	done := false
	err := s.inTx(ctx, func(w *work) error {
		pay, err := w.r.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.Confirmed {
			return nil
		}
		var spotID uuid.UUID
		switch {
		case pay.Note == model.NoteBooking && pay.BookingID != nil:
			b, err := w.r.GetBooking(ctx, *pay.BookingID)
			if err != nil {
				return err
			}
			if b.Status != model.BookingDisabled || !b.EndTime.Before(now) {
				return nil
			}
			spotID = b.SpotID
		case pay.Note == model.NoteSubscription && pay.SubscriptionID != nil:
			sub, err := w.r.GetSubscription(ctx, *pay.SubscriptionID)
			if err != nil {
				return err
			}
			if sub.Status != model.SubscriptionCancel || !civil(sub.EndDate).Before(today) {
				return nil
			}
			spotID = sub.SpotID
		default:
			return nil
		}
		spot, err := w.lock(ctx, spotID)
		if err != nil {
			return err
		}
		if spot.Status == model.SpotReserved {
			if err := w.apply(ctx, spot, EventLapse); err != nil {
				return err
			}
		}
		pay.Note = model.LapsedNote(pay.Note)
		done = true
		return w.r.UpdatePayment(ctx, pay)
	})
	return done, err
}
