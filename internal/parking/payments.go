package parking

import (
	"context"
	"errors"
	"fmt"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/gateway"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// confirmFunc applies the effects of a confirmed payment inside the
// confirming transaction.
type confirmFunc func(ctx context.Context, w *work, pay *model.Payment) error

// settle charges an unconfirmed payment and, when the gateway accepts it,
// confirms it in a fresh transaction together with onConfirm. The gateway is
// never called while a transaction is open. On failure the payment and its
// owner stay as they are.
func (s *Service) settle(ctx context.Context, paymentID uuid.UUID, onConfirm confirmFunc) (*model.Payment, error) {
	var pay *model.Payment
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		pay, err = r.GetPayment(ctx, paymentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if pay.Confirmed {
		return pay, nil
	}

	var res gateway.ChargeResult
	if pay.Amount > 0 {
		res, err = s.charge(ctx, pay)
		if err != nil {
			return pay, err
		}
	}

	// The charge went through; a caller hanging up now must not leave it
	// unconfirmed.
	ctx = context.WithoutCancel(ctx)
	err = s.inTx(ctx, func(w *work) error {
		cur, err := w.r.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if cur.Confirmed {
			pay = cur
			return nil
		}
		cur.Confirmed = true
		cur.PayURL = res.PayURL
		if err := w.r.UpdatePayment(ctx, cur); err != nil {
			return err
		}
		pay = cur
		if onConfirm == nil {
			return nil
		}
		return onConfirm(ctx, w, cur)
	})
	if err != nil {
		return pay, fmt.Errorf("confirm payment %s: %w", paymentID, err)
	}
	return pay, nil
}

func (s *Service) charge(ctx context.Context, pay *model.Payment) (gateway.ChargeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	entry := s.log.WithFields(logrus.Fields{
		"payment": pay.ID,
		"amount":  pay.Amount,
		"note":    pay.Note,
	})
	res, err := s.gateway.Charge(cctx, gateway.ChargeRequest{
		OrderID: pay.ID.String(),
		Amount:  pay.Amount,
		Info:    pay.Note,
	})
	if err != nil {
		s.metrics.GatewayOutcome("error")
		entry.WithError(err).Warn("gateway charge failed")
		return res, failWrap(KindGatewayError, err, "payment %s could not be charged", pay.ID)
	}
	if !res.OK() {
		s.metrics.GatewayOutcome("declined")
		entry.WithField("result_code", res.ResultCode).Warn("gateway declined charge")
		return res, fail(KindGatewayError, "payment %s declined (code %d): %s", pay.ID, res.ResultCode, res.Message)
	}
	s.metrics.GatewayOutcome("ok")
	return res, nil
}

// activate is the confirmation step for booking, subscription and penalty
// payments.
func (s *Service) activate(ctx context.Context, w *work, pay *model.Payment) error {
	switch pay.Note {
	case model.NoteBooking:
		return s.activateBooking(ctx, w, *pay.BookingID, pay.PayURL)
	case model.NoteSubscription:
		return s.activateSubscription(ctx, w, *pay.SubscriptionID, pay.PayURL)
	case model.NotePenalty:
		userID, err := paymentOwner(ctx, w.r, pay)
		if err != nil {
			return err
		}
		u, err := recipient(ctx, w.r, userID)
		if err != nil {
			return err
		}
		subject, body := penaltyNotice(pay)
		w.notify(u, subject, body)
		return nil
	}
	return fail(KindInvalidState, "payment %s with note %q cannot be settled here", pay.ID, pay.Note)
}

func (s *Service) activateBooking(ctx context.Context, w *work, id uuid.UUID, payURL string) error {
	b, err := w.r.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != model.BookingDisabled {
		return nil
	}
	b.Status = model.BookingAvailable
	b.ShortLink = payURL
	if err := w.r.UpdateBooking(ctx, b); err != nil {
		return err
	}
	lot, err := lotOf(ctx, w.r, b.SpotID)
	if err != nil {
		return err
	}
	u, err := recipient(ctx, w.r, b.UserID)
	if err != nil {
		return err
	}
	subject, body := bookingNotice(lot, b)
	w.notify(u, subject, body)
	return nil
}

func (s *Service) activateSubscription(ctx context.Context, w *work, id uuid.UUID, payURL string) error {
	sub, err := w.r.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionCancel {
		return nil
	}
	sub.Status = model.SubscriptionAvailable
	sub.ShortLink = payURL
	if err := w.r.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	lot, err := lotOf(ctx, w.r, sub.SpotID)
	if err != nil {
		return err
	}
	u, err := recipient(ctx, w.r, sub.UserID)
	if err != nil {
		return err
	}
	subject, body := subscriptionNotice(lot, sub)
	w.notify(u, subject, body)
	return nil
}

func paymentOwner(ctx context.Context, r store.Repository, pay *model.Payment) (uuid.UUID, error) {
	switch {
	case pay.BookingID != nil:
		b, err := r.GetBooking(ctx, *pay.BookingID)
		if err != nil {
			return uuid.Nil, err
		}
		return b.UserID, nil
	case pay.SubscriptionID != nil:
		sub, err := r.GetSubscription(ctx, *pay.SubscriptionID)
		if err != nil {
			return uuid.Nil, err
		}
		return sub.UserID, nil
	}
	return uuid.Nil, model.ErrPaymentOwner
}

// RetryPayment charges an unconfirmed payment again and applies the
// confirmation effects on success. Renewal payments are not retried; the
// subscriber renews again instead.
func (s *Service) RetryPayment(ctx context.Context, p auth.Principal, paymentID uuid.UUID) (*model.Payment, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var pay *model.Payment
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		pay, err = r.GetPayment(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNotFound, "payment %s does not exist", paymentID)
		}
		if err != nil {
			return err
		}
		owner, err := paymentOwner(ctx, r, pay)
		if err != nil {
			return err
		}
		if owner != p.UserID {
			return fail(KindNotFound, "payment %s does not exist", paymentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pay.Confirmed {
		return pay, nil
	}
	switch pay.Note {
	case model.NoteBooking, model.NoteSubscription, model.NotePenalty:
	default:
		return nil, fail(KindInvalidState, "payment %s (%s) cannot be retried", pay.ID, pay.Note)
	}
	return s.settle(ctx, pay.ID, s.activate)
}
