package parking

import (
	"sync"
	"testing"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEntryValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "", testNow)
	require.ErrorIs(t, err, ErrImageRequired)

	_, err = f.svc.RecordEntry(f.ctx, f.gate(), "99Z00000", "in.jpg", testNow)
	require.ErrorIs(t, err, ErrVehicleNotFound)

	_, err = f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.ErrorIs(t, err, ErrNoActiveReservation)
	assert.Zero(t, f.openVisits())
}

func TestRecordEntryWithBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(0, testNow, testNow.Add(2*time.Hour))

	visit, err := f.svc.RecordEntry(f.ctx, f.gate(), " 51a12345 ", "in.jpg", testNow.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, visit.BookingID)
	assert.Equal(t, b.ID, *visit.BookingID)
	assert.Nil(t, visit.SubscriptionID)
	assert.True(t, visit.Open())
	assert.Equal(t, "in.jpg", visit.EntryImage)

	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.BookingInUse, f.booking(b.ID).Status)
	assert.Equal(t, f.inUseSpots(), f.openVisits())

	_, err = f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in2.jpg", testNow.Add(40*time.Minute))
	require.ErrorIs(t, err, ErrVisitAlreadyOpen)
}

func TestRecordEntryOutsideBookingWindow(t *testing.T) {
	f := newFixture(t)
	f.book(0, testNow.Add(time.Hour), testNow.Add(2*time.Hour))

	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.ErrorIs(t, err, ErrNoActiveReservation)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))
}

func TestRecordEntryPrefersSubscription(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(0, f.monthly, testNow)
	b := f.book(1, testNow, testNow.Add(3*time.Hour))

	visit, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, visit.SubscriptionID)
	assert.Equal(t, sub.ID, *visit.SubscriptionID)
	assert.Nil(t, visit.BookingID)

	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[1].ID))
	assert.Equal(t, model.BookingAvailable, f.booking(b.ID).Status)
}

func TestRecordExitBookingOnTime(t *testing.T) {
	f := newFixture(t)
	b := f.book(0, testNow, testNow.Add(2*time.Hour))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, res.Penalty)
	require.NotNil(t, res.Visit.ExitTime)
	assert.Equal(t, "out.jpg", res.Visit.ExitImage)

	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.BookingDisabled, f.booking(b.ID).Status)
	assert.Len(t, f.payments(), 1)
	assert.Zero(t, f.openVisits())

	_, err = f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(3*time.Hour))
	require.ErrorIs(t, err, ErrNoOpenVisit)
}

func TestRecordExitBookingLate(t *testing.T) {
	f := newFixture(t)
	b := f.book(0, testNow, testNow.Add(2*time.Hour))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, res.Overstay)
	require.NotNil(t, res.Penalty)
	assert.Equal(t, int64(100000), res.Penalty.Amount)
	assert.True(t, res.Penalty.Confirmed)
	assert.Equal(t, model.NotePenalty, res.Penalty.Note)
	require.NotNil(t, res.Penalty.BookingID)
	assert.Equal(t, b.ID, *res.Penalty.BookingID)

	assert.Equal(t, model.BookingDisabled, f.booking(b.ID).Status)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))

	msgs := f.notes.Messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Body, res.Penalty.PayURL)
}

func TestRecordExitWithinGraceHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	f.book(0, testNow, testNow.Add(2*time.Hour))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(2*time.Hour+15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, res.Overstay)
	assert.Nil(t, res.Penalty)
	assert.Len(t, f.payments(), 1)
}

func TestRecordExitSubscriptionStillValid(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(0, f.monthly, testNow)
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow.Add(time.Hour))
	require.NoError(t, err)

	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, res.Penalty)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.SubscriptionAvailable, f.subscription(sub.ID).Status)

	// The held spot admits the subscriber again.
	_, err = f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in2.jpg", testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))
}

func TestRecordExitSubscriptionExpired(t *testing.T) {
	f := newFixture(t)
	bought := time.Date(2023, 12, 10, 10, 0, 0, 0, time.UTC)
	sub := f.subscribe(0, f.monthly, bought)
	require.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), sub.EndDate)

	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	exit := time.Date(2024, 1, 11, 8, 1, 0, 0, time.UTC)
	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", exit)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+time.Minute, res.Overstay)
	require.NotNil(t, res.Penalty)
	assert.Equal(t, int64(570000), res.Penalty.Amount)
	require.NotNil(t, res.Penalty.SubscriptionID)
	assert.Equal(t, sub.ID, *res.Penalty.SubscriptionID)

	assert.Equal(t, model.SubscriptionCancel, f.subscription(sub.ID).Status)
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))
}

func TestRecordExitLastDayOfSubscriptionIsFree(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(0, f.monthly, time.Date(2023, 12, 10, 10, 0, 0, 0, time.UTC))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, res.Penalty)
	assert.Equal(t, model.SubscriptionAvailable, f.subscription(sub.ID).Status)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))
}

func TestRecordExitPenaltyGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.book(0, testNow, testNow.Add(time.Hour))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	f.gw.fail()
	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrGateway)
	require.NotNil(t, res)
	require.NotNil(t, res.Penalty)
	assert.False(t, res.Penalty.Confirmed)
	assert.Equal(t, int64(50000), res.Penalty.Amount)

	assert.Zero(t, f.openVisits())
	assert.Equal(t, model.SpotAvailable, f.spotStatus(f.spots[0].ID))

	f.gw.accept()
	pay, err := f.svc.RetryPayment(f.ctx, f.driver(), res.Penalty.ID)
	require.NoError(t, err)
	assert.True(t, pay.Confirmed)
}

func TestRecordExitRequiresImage(t *testing.T) {
	f := newFixture(t)
	f.book(0, testNow, testNow.Add(time.Hour))
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	_, err = f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "", testNow.Add(time.Hour))
	require.ErrorIs(t, err, ErrImageRequired)
	assert.Equal(t, 1, f.openVisits())
	assert.Equal(t, model.SpotInUse, f.spotStatus(f.spots[0].ID))
}

func TestLocationShiftsSubscriptionBoundary(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	f := newFixture(t, WithLocation(loc))
	bought := time.Date(2023, 12, 10, 10, 0, 0, 0, loc)
	sub := f.subscribe(0, f.monthly, bought)
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", time.Date(2024, 1, 10, 9, 0, 0, 0, loc))
	require.NoError(t, err)

	// 2024-01-11 00:30 local time is half an hour past the boundary.
	exit := time.Date(2024, 1, 10, 17, 30, 0, 0, time.UTC)
	res, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", exit)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, res.Overstay)
	require.NotNil(t, res.Penalty)
	assert.Equal(t, int64(50000), res.Penalty.Amount)
	assert.Equal(t, model.SubscriptionCancel, f.subscription(sub.ID).Status)
}

func TestConcurrentExitsCloseOnce(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(0, f.monthly, testNow)
	_, err := f.svc.RecordEntry(f.ctx, f.gate(), "51A12345", "in.jpg", testNow)
	require.NoError(t, err)

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		exited int
		noOpen int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordExit(f.ctx, f.gate(), "51A12345", "out.jpg", testNow.Add(time.Hour))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				exited++
			case KindIs(err, KindNoOpenVisit):
				noOpen++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, exited)
	assert.Equal(t, n-1, noOpen)
	assert.Equal(t, model.SpotReserved, f.spotStatus(f.spots[0].ID))
	assert.Equal(t, model.SubscriptionAvailable, f.subscription(sub.ID).Status)
	assert.Zero(t, f.openVisits())
}
