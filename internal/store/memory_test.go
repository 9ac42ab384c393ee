package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSpot(t *testing.T, s *MemoryStore) (model.ParkingLot, model.ParkingSpot) {
	t.Helper()
	var lot model.ParkingLot
	var spot model.ParkingSpot
	err := s.InTx(context.Background(), func(r Repository) error {
		lot = model.ParkingLot{Name: "Central", Address: "1 Main St", PricePerHour: 20000}
		if err := r.CreateLot(context.Background(), &lot); err != nil {
			return err
		}
		spot = model.ParkingSpot{LotID: lot.ID}
		return r.CreateSpot(context.Background(), &spot)
	})
	require.NoError(t, err)
	return lot, spot
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(r Repository) error {
		if err := r.SetSpotStatus(ctx, spot.ID, model.SpotReserved); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_ = s.View(ctx, func(r Repository) error {
		got, err := r.GetSpot(ctx, spot.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SpotAvailable, got.Status)
		return nil
	})
}

func TestMemoryStore_CancelledContextDoesNotCommit(t *testing.T) {
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(r Repository) error {
		cancel()
		return r.SetSpotStatus(ctx, spot.ID, model.SpotInUse)
	})
	require.ErrorIs(t, err, context.Canceled)

	_ = s.View(context.Background(), func(r Repository) error {
		got, _ := r.GetSpot(context.Background(), spot.ID)
		assert.Equal(t, model.SpotAvailable, got.Status)
		return nil
	})
}

func TestMemoryStore_ViewIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)

	_ = s.View(ctx, func(r Repository) error {
		return r.SetSpotStatus(ctx, spot.ID, model.SpotMaintenance)
	})
	_ = s.View(ctx, func(r Repository) error {
		got, _ := r.GetSpot(ctx, spot.ID)
		assert.Equal(t, model.SpotAvailable, got.Status)
		return nil
	})
}

func TestMemoryStore_Constraints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)
	userID := uuid.New()

	err := s.InTx(ctx, func(r Repository) error {
		v := model.Vehicle{UserID: userID, LicensePlate: "51A12345"}
		require.NoError(t, r.CreateVehicle(ctx, &v))

		dup := model.Vehicle{UserID: uuid.New(), LicensePlate: "51a12345"}
		assert.ErrorIs(t, r.CreateVehicle(ctx, &dup), ErrConflict)

		assert.ErrorIs(t, r.CreatePayment(ctx, &model.Payment{Amount: 1}), model.ErrPaymentOwner)

		bid, sid := uuid.New(), uuid.New()
		both := model.ParkingHistory{UserID: userID, SpotID: spot.ID, VehicleID: v.ID, BookingID: &bid, SubscriptionID: &sid}
		assert.ErrorIs(t, r.CreateHistory(ctx, &both), model.ErrHistoryOwner)

		open := model.ParkingHistory{UserID: userID, SpotID: spot.ID, VehicleID: v.ID, EntryTime: time.Now()}
		require.NoError(t, r.CreateHistory(ctx, &open))
		again := model.ParkingHistory{UserID: userID, SpotID: spot.ID, VehicleID: v.ID, EntryTime: time.Now()}
		assert.ErrorIs(t, r.CreateHistory(ctx, &again), ErrConflict)

		n, err := r.CountOpenHistoryForSpot(ctx, spot.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, r.CloseHistory(ctx, open.ID, time.Now(), "exit.jpg"))
		assert.ErrorIs(t, r.CloseHistory(ctx, open.ID, time.Now(), "exit.jpg"), ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_SubscriptionFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)
	userID := uuid.New()
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

	err := s.InTx(ctx, func(r Repository) error {
		for _, sub := range []model.Subscription{
			{UserID: userID, SpotID: spot.ID, StartDate: day(1, 1), EndDate: day(1, 31), Status: model.SubscriptionAvailable},
			{UserID: userID, SpotID: spot.ID, StartDate: day(2, 1), EndDate: day(4, 30), Status: model.SubscriptionAvailable},
			{UserID: uuid.New(), SpotID: spot.ID, StartDate: day(1, 1), EndDate: day(3, 31), Status: model.SubscriptionCancel},
		} {
			sub := sub
			if err := r.CreateSubscription(ctx, &sub); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	available := model.SubscriptionAvailable
	// late evening in a location east of UTC is still the 31st there
	ict := time.FixedZone("ICT", 7*3600)
	lastDay := time.Date(2024, 1, 31, 23, 0, 0, 0, ict)
	feb := day(2, 1)

	_ = s.View(ctx, func(r Repository) error {
		got, err := r.ListSubscriptions(ctx, SubscriptionFilter{UserID: &userID, ActiveOn: &lastDay})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, day(1, 31), got[0].EndDate)

		got, err = r.ListSubscriptions(ctx, SubscriptionFilter{Status: &available, EndBefore: &feb})
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = r.ListSubscriptions(ctx, SubscriptionFilter{})
		require.NoError(t, err)
		assert.Len(t, got, 3)
		return nil
	})
}

func TestMemoryStore_ListPaymentsByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)
	alice, bob := uuid.New(), uuid.New()

	err := s.InTx(ctx, func(r Repository) error {
		b := model.Booking{UserID: alice, SpotID: spot.ID, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), Status: model.BookingDisabled}
		if err := r.CreateBooking(ctx, &b); err != nil {
			return err
		}
		sub := model.Subscription{UserID: bob, SpotID: spot.ID, Status: model.SubscriptionAvailable}
		if err := r.CreateSubscription(ctx, &sub); err != nil {
			return err
		}
		if err := r.CreatePayment(ctx, &model.Payment{BookingID: &b.ID, Amount: 20000, Note: model.NoteBooking}); err != nil {
			return err
		}
		return r.CreatePayment(ctx, &model.Payment{SubscriptionID: &sub.ID, Amount: 1500000, Note: model.NoteSubscription})
	})
	require.NoError(t, err)

	_ = s.View(ctx, func(r Repository) error {
		got, err := r.ListPayments(ctx, alice)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.NoteBooking, got[0].Note)

		got, err = r.ListPayments(ctx, bob)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(1500000), got[0].Amount)
		return nil
	})
}

func TestMemoryStore_FaceProfilesSkipUsersWithoutDescriptor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	err := s.InTx(ctx, func(r Repository) error {
		if err := r.CreateUser(ctx, &model.User{Username: "plain", Email: "p@example.com"}); err != nil {
			return err
		}
		if err := r.CreateUser(ctx, &model.User{Username: "face", Email: "f@example.com", FaceDescriptor: []float64{0.1, 0.2}}); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(r Repository) error {
		return r.CreateUser(ctx, &model.User{Username: "plain"})
	})
	assert.ErrorIs(t, err, ErrConflict)

	_ = s.View(ctx, func(r Repository) error {
		got, err := r.ListFaceProfiles(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "face", got[0].Username)
		return nil
	})
}

func TestMemoryStore_DeletesRestrictedByReferences(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)
	_, spare := seedSpot(t, s)
	userID := uuid.New()

	err := s.InTx(ctx, func(r Repository) error {
		v := model.Vehicle{UserID: userID, LicensePlate: "51A12345"}
		require.NoError(t, r.CreateVehicle(ctx, &v))
		idle := model.Vehicle{UserID: userID, LicensePlate: "30F99999"}
		require.NoError(t, r.CreateVehicle(ctx, &idle))

		b := model.Booking{UserID: userID, SpotID: spot.ID, VehicleID: v.ID, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), Status: model.BookingDisabled}
		require.NoError(t, r.CreateBooking(ctx, &b))

		assert.ErrorIs(t, r.DeleteVehicle(ctx, v.ID), ErrConflict)
		assert.ErrorIs(t, r.DeleteSpot(ctx, spot.ID), ErrConflict)
		assert.NoError(t, r.DeleteVehicle(ctx, idle.ID))
		assert.NoError(t, r.DeleteSpot(ctx, spare.ID))
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_Updates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	userID := uuid.New()

	err := s.InTx(ctx, func(r Repository) error {
		a := model.Vehicle{UserID: userID, LicensePlate: "51A12345", Color: "red"}
		require.NoError(t, r.CreateVehicle(ctx, &a))
		b := model.Vehicle{UserID: userID, LicensePlate: "30F99999"}
		require.NoError(t, r.CreateVehicle(ctx, &b))

		a.Color = "blue"
		require.NoError(t, r.UpdateVehicle(ctx, &a))
		got, err := r.GetVehicle(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "blue", got.Color)

		b.LicensePlate = "51a12345"
		assert.ErrorIs(t, r.UpdateVehicle(ctx, &b), ErrConflict)
		assert.ErrorIs(t, r.UpdateVehicle(ctx, &model.Vehicle{ID: uuid.New()}), ErrNotFound)

		u := model.User{Username: "driver", Email: "d@example.com"}
		require.NoError(t, r.CreateUser(ctx, &u))
		o := model.User{Username: "other", Email: "o@example.com"}
		require.NoError(t, r.CreateUser(ctx, &o))

		u.Email = "new@example.com"
		u.FaceDescriptor = []float64{0.3}
		require.NoError(t, r.UpdateUser(ctx, &u))
		gu, err := r.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", gu.Email)
		assert.Equal(t, []float64{0.3}, []float64(gu.FaceDescriptor))

		o.Username = "driver"
		assert.ErrorIs(t, r.UpdateUser(ctx, &o), ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ListUnconfirmedPayments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, spot := seedSpot(t, s)

	err := s.InTx(ctx, func(r Repository) error {
		b := model.Booking{UserID: uuid.New(), SpotID: spot.ID, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
		require.NoError(t, r.CreateBooking(ctx, &b))
		require.NoError(t, r.CreatePayment(ctx, &model.Payment{BookingID: &b.ID, Amount: 1, Confirmed: true, Note: model.NoteBooking}))
		require.NoError(t, r.CreatePayment(ctx, &model.Payment{BookingID: &b.ID, Amount: 2, Note: model.NotePenalty}))
		return nil
	})
	require.NoError(t, err)

	_ = s.View(ctx, func(r Repository) error {
		got, err := r.ListUnconfirmedPayments(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.NotePenalty, got[0].Note)
		return nil
	})
}
