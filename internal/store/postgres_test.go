package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock"), nil), mock
}

func TestPostgresStore_LockSpotUsesRowLock(t *testing.T) {
	st, mock := newMockStore(t)
	spotID, lotID := uuid.New(), uuid.New()
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id,lot_id,status,created_at FROM parking_spots WHERE id=$1 FOR UPDATE`)).
		WithArgs(spotID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lot_id", "status", "created_at"}).
			AddRow(spotID.String(), lotID.String(), "reserved", now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE parking_spots SET status=$1 WHERE id=$2`)).
		WithArgs("in_use", spotID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(r Repository) error {
		spot, err := r.LockSpot(context.Background(), spotID)
		if err != nil {
			return err
		}
		if spot.Status != model.SpotReserved || spot.LotID != lotID {
			t.Fatalf("unexpected spot %+v", spot)
		}
		return r.SetSpotStatus(context.Background(), spotID, model.SpotInUse)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_RollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(r Repository) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_UniqueViolationIsConflict(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO vehicles`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "vehicles_license_plate_key"})

	err := st.View(context.Background(), func(r Repository) error {
		return r.CreateVehicle(context.Background(), &model.Vehicle{UserID: uuid.New(), LicensePlate: "51A12345"})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgresRepo_MissingRows(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM payments WHERE id=\$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`UPDATE parking_history SET exit_time`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.View(context.Background(), func(r Repository) error {
		if _, err := r.GetPayment(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetPayment: expected ErrNotFound, got %v", err)
		}
		if err := r.CloseHistory(context.Background(), id, time.Now(), "x.jpg"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("CloseHistory: expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPostgresRepo_CreatePaymentChecksOwner(t *testing.T) {
	st, mock := newMockStore(t)
	err := st.View(context.Background(), func(r Repository) error {
		return r.CreatePayment(context.Background(), &model.Payment{Amount: 100})
	})
	if !errors.Is(err, model.ErrPaymentOwner) {
		t.Fatalf("expected ErrPaymentOwner, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query should run: %v", err)
	}
}

func TestPostgresRepo_ListSubscriptionsBuildsFilter(t *testing.T) {
	st, mock := newMockStore(t)
	userID := uuid.New()
	status := model.SubscriptionAvailable
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE 1=1 AND user_id=$1 AND status=$2 AND start_date<=$3 AND end_date>=$3 ORDER BY created_at, id`
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs(userID.String(), "available", day).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "spot_id", "subscription_type_id", "start_date", "end_date", "status", "short_link", "created_at"}).
			AddRow(uuid.NewString(), userID.String(), uuid.NewString(), uuid.NewString(), day, day, "available", "", day))

	err := st.View(context.Background(), func(r Repository) error {
		rows, err := r.ListSubscriptions(context.Background(), SubscriptionFilter{UserID: &userID, Status: &status, ActiveOn: &day})
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].UserID != userID {
			t.Fatalf("unexpected rows %+v", rows)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_CountSpots(t *testing.T) {
	st, mock := newMockStore(t)
	lotID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) AS n FROM parking_spots WHERE lot_id=$1 GROUP BY status`)).
		WithArgs(lotID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("available", 3).AddRow("in_use", 1))

	err := st.View(context.Background(), func(r Repository) error {
		counts, err := r.CountSpots(context.Background(), lotID)
		if err != nil {
			return err
		}
		if counts[model.SpotAvailable] != 3 || counts[model.SpotInUse] != 1 {
			t.Fatalf("unexpected counts %v", counts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPostgresRepo_LockOpenHistoryUsesRowLock(t *testing.T) {
	st, mock := newMockStore(t)
	userID, vehicleID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM parking_history WHERE user_id=$1 AND vehicle_id=$2 AND exit_time IS NULL FOR UPDATE`)).
		WithArgs(userID.String(), vehicleID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(r Repository) error {
		_, err := r.LockOpenHistory(context.Background(), userID, vehicleID)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_ForeignKeyViolationIsConflict(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM vehicles WHERE id=$1`)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "bookings_vehicle_id_fkey"})

	err := st.View(context.Background(), func(r Repository) error {
		return r.DeleteVehicle(context.Background(), uuid.New())
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgresRepo_ListUnconfirmedPayments(t *testing.T) {
	st, mock := newMockStore(t)
	id, bookingID := uuid.New(), uuid.New()
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE payment_status=false ORDER BY created_at, id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "subscription_id", "amount", "payment_method", "payment_status", "payment_note", "pay_url", "created_at"}).
			AddRow(id.String(), bookingID.String(), nil, 20000, "momo", false, model.NoteBooking, "", now))

	err := st.View(context.Background(), func(r Repository) error {
		got, err := r.ListUnconfirmedPayments(context.Background())
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].ID != id || got[0].BookingID == nil || *got[0].BookingID != bookingID {
			t.Fatalf("unexpected payments %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
