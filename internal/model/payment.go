package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payment notes.
const (
	NoteBooking      = "Booking"
	NoteSubscription = "Subscription"
	NotePenalty      = "penalty_payment"
)

// RenewalNote is the payment note for a renewal with the given kind.
func RenewalNote(kind string) string {
	return kind + " lease renewal"
}

// LapsedNote marks a payment whose reservation ran out before it was paid.
// Such payments are never charged again.
func LapsedNote(note string) string {
	return note + " lapsed"
}

var ErrPaymentOwner = errors.New("payment must reference exactly one of booking or subscription")

type Payment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	BookingID      *uuid.UUID `db:"booking_id" json:"booking,omitempty"`
	SubscriptionID *uuid.UUID `db:"subscription_id" json:"subscription,omitempty"`
	Amount         int64      `db:"amount" json:"amount"`
	Method         string     `db:"payment_method" json:"payment_method"`
	Confirmed      bool       `db:"payment_status" json:"payment_status"`
	Note           string     `db:"payment_note" json:"payment_note"`
	PayURL         string     `db:"pay_url" json:"pay_url,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Validate checks the booking/subscription exclusivity rule.
func (p Payment) Validate() error {
	if (p.BookingID == nil) == (p.SubscriptionID == nil) {
		return ErrPaymentOwner
	}
	return nil
}
