package parking

import (
	"testing"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireStaleBookings(t *testing.T) {
	f := newFixture(t)
	missed := f.book(0, testNow, testNow.Add(time.Hour))
	upcoming := f.book(1, testNow.Add(5*time.Hour), testNow.Add(6*time.Hour))

	rep, err := f.svc.ExpireStale(f.ctx, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Bookings: 1}, rep)

	assert.Equal(t, model.BookingDisabled, f.booking(missed.ID).Status)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.BookingAvailable, f.booking(upcoming.ID).Status)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[1].ID))

	rep, err = f.svc.ExpireStale(f.ctx, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)
}

func TestExpireStaleSubscriptions(t *testing.T) {
	f := newFixture(t)
	bought := time.Date(2023, 12, 1, 8, 0, 0, 0, time.UTC)
	inside := f.subscribe(0, f.monthly, bought)
	idle := f.subscribe(1, f.monthly, bought)
	current := f.subscribe(2, f.monthly, testNow)

	// The vehicle takes the first subscription's spot and never leaves.
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", time.Date(2023, 12, 20, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))

	rep, err := f.svc.ExpireStale(f.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Subscriptions: 1}, rep)

	assert.Equal(t, model.SubscriptionAvailable, f.subscription(inside.ID).Status)
	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.SubscriptionCancel, f.subscription(idle.ID).Status)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[1].ID))
	assert.Equal(t, model.SubscriptionAvailable, f.subscription(current.ID).Status)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[2].ID))
}

func TestExpireStaleUnpaidBooking(t *testing.T) {
	f := newFixture(t)
	f.gw.decline()
	start := testNow.Add(time.Hour)
	b, err := f.svc.CreateBooking(f.ctx, f.driver(), BookingInput{
		SpotID:    f.spots[0].ID,
		VehicleID: f.vehicle.ID,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}, testNow)
	require.ErrorIs(t, err, ErrGateway)
	require.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))

	// Nothing happens while the booked window is still ahead.
	rep, err := f.svc.ExpireStale(f.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))

	rep, err = f.svc.ExpireStale(f.ctx, testNow.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Bookings: 1}, rep)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.BookingDisabled, f.booking(b.ID).Status)

	pays := f.payments()
	require.Len(t, pays, 1)
	assert.False(t, pays[0].Confirmed)
	assert.Equal(t, model.LapsedNote(model.NoteBooking), pays[0].Note)

	f.gw.accept()
	_, err = f.svc.RetryPayment(f.ctx, f.driver(), pays[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, model.BookingDisabled, f.booking(b.ID).Status)

	rep, err = f.svc.ExpireStale(f.ctx, testNow.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)
}

func TestExpireStaleUnpaidSubscription(t *testing.T) {
	f := newFixture(t)
	f.gw.fail()
	sub, err := f.svc.CreateSubscription(f.ctx, f.driver(), f.spots[1].ID, f.monthly.ID, testNow)
	require.ErrorIs(t, err, ErrGateway)
	require.Equal(t, model.SubscriptionCancel, sub.Status)

	rep, err := f.svc.ExpireStale(f.ctx, sub.EndDate.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[1].ID))

	rep, err = f.svc.ExpireStale(f.ctx, sub.EndDate.AddDate(0, 0, 1).Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Subscriptions: 1}, rep)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[1].ID))
	assert.Equal(t, model.SubscriptionCancel, f.subscription(sub.ID).Status)
	assert.Equal(t, model.LapsedNote(model.NoteSubscription), f.payments()[0].Note)
}
