package parking

import (
	"time"

	"github.com/effectivemobile/parking/internal/model"
)

// BookingCharge is the booked duration in hours times the lot's hourly
// price, truncated to whole currency units.
func BookingCharge(b model.Booking, lot model.ParkingLot) int64 {
	return int64(b.Hours() * lot.PricePerHour)
}

func SubscriptionCharge(t model.SubscriptionType) int64 {
	return int64(t.TotalAmount)
}

// SubscriptionPeriod is the date range of a new subscription starting today.
func SubscriptionPeriod(kind string, today time.Time) (time.Time, time.Time, error) {
	start := civil(today)
	switch kind {
	case model.KindMonthly:
		return start, addMonths(start, 1), nil
	case model.KindQuarterly:
		return start, addMonths(start, 3), nil
	}
	return time.Time{}, time.Time{}, fail(KindInvalidSubscriptionType, "unknown subscription type %q", kind)
}

// RenewalEndDate extends a subscription by a fixed number of days.
func RenewalEndDate(end time.Time, kind string) (time.Time, error) {
	switch kind {
	case model.KindMonthly:
		return civil(end).AddDate(0, 0, 30), nil
	case model.KindQuarterly:
		return civil(end).AddDate(0, 0, 90), nil
	}
	return time.Time{}, fail(KindInvalidSubscriptionType, "cannot renew with subscription type %q", kind)
}

const (
	penaltyGrace     = 15 * time.Minute
	penaltyFlatLimit = 8 * time.Hour
	penaltyHourly    = 70_000
)

// Penalty is the overstay fee for exiting overstay after the contractual
// end. Non-positive durations cost nothing.
func Penalty(overstay time.Duration) int64 {
	switch {
	case overstay <= penaltyGrace:
		return 0
	case overstay <= 2*time.Hour:
		return 50_000
	case overstay <= 4*time.Hour:
		return 100_000
	case overstay <= penaltyFlatLimit:
		return 200_000
	}
	extra := overstay - penaltyFlatLimit
	hours := int64((extra + time.Hour - 1) / time.Hour)
	return 500_000 + penaltyHourly*hours
}
