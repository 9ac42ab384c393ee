package model

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionAvailable SubscriptionStatus = "available"
	SubscriptionCancel    SubscriptionStatus = "cancel"
)

// Recognised subscription kinds.
const (
	KindMonthly   = "monthly"
	KindQuarterly = "quarterly"
)

type SubscriptionType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Kind        string    `db:"kind" json:"type"`
	TotalAmount float64   `db:"total_amount" json:"total_amount"`
}

// StartDate and EndDate are calendar dates; only their Y/M/D fields matter.
type Subscription struct {
	ID        uuid.UUID          `db:"id" json:"id"`
	UserID    uuid.UUID          `db:"user_id" json:"user_id"`
	SpotID    uuid.UUID          `db:"spot_id" json:"spot_id"`
	TypeID    uuid.UUID          `db:"subscription_type_id" json:"subscription_type"`
	StartDate time.Time          `db:"start_date" json:"start_date"`
	EndDate   time.Time          `db:"end_date" json:"end_date"`
	Status    SubscriptionStatus `db:"status" json:"status"`
	ShortLink string             `db:"short_link" json:"short_link"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

type SubscriptionRequest struct {
	SpotID string `json:"spot_id" validate:"required,uuid4"`
	TypeID string `json:"subscription_type" validate:"required,uuid4"`
}

type RenewRequest struct {
	TypeID string `json:"subscription_type" validate:"required,uuid4"`
}

type SubscriptionTypeRequest struct {
	Kind        string  `json:"type" validate:"required,oneof=monthly quarterly"`
	TotalAmount float64 `json:"total_amount" validate:"gt=0"`
}
