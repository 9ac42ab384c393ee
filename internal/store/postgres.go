package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	userColumns         = `id,username,email,face_descriptor,created_at`
	lotColumns          = `id,name,address,price_per_hour,created_at`
	spotColumns         = `id,lot_id,status,created_at`
	vehicleColumns      = `id,user_id,license_plate,color,brand,car_model,created_at`
	subTypeColumns      = `id,kind,total_amount`
	bookingColumns      = `id,user_id,spot_id,vehicle_id,start_time,end_time,status,short_link,created_at`
	subscriptionColumns = `id,user_id,spot_id,subscription_type_id,start_date,end_date,status,short_link,created_at`
	paymentColumns      = `id,booking_id,subscription_id,amount,payment_method,payment_status,payment_note,pay_url,created_at`
	historyColumns      = `id,user_id,spot_id,vehicle_id,booking_id,subscription_id,entry_time,exit_time,entry_image,exit_image`
)

type PostgresStore struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewPostgresStore(db *sqlx.DB, log *logrus.Logger) *PostgresStore {
	if log == nil {
		log = logrus.New()
	}
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) View(ctx context.Context, fn func(r Repository) error) error {
	return fn(&PostgresRepo{db: s.db})
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(r Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresRepo{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PostgresRepo runs queries against either the pool or an open transaction.
type PostgresRepo struct {
	db sqlx.ExtContext
}

func EnsureMigrations(db *sqlx.DB) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			face_descriptor DOUBLE PRECISION[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS parking_lots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(50) NOT NULL,
			address VARCHAR(100) NOT NULL,
			price_per_hour DOUBLE PRECISION NOT NULL CHECK (price_per_hour >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS parking_spots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			lot_id UUID NOT NULL REFERENCES parking_lots(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL DEFAULT 'available'
				CHECK (status IN ('available','reserved','in_use','maintenance')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			license_plate VARCHAR(8) NOT NULL UNIQUE,
			color VARCHAR(20) NOT NULL,
			brand VARCHAR(20) NOT NULL,
			car_model VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS subscription_types (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			kind VARCHAR(50) NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			spot_id UUID NOT NULL REFERENCES parking_spots(id) ON DELETE RESTRICT,
			subscription_type_id UUID NOT NULL REFERENCES subscription_types(id),
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			status VARCHAR(20) NOT NULL CHECK (status IN ('available','cancel')),
			short_link TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (start_date <= end_date)
		);`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			spot_id UUID NOT NULL REFERENCES parking_spots(id) ON DELETE RESTRICT,
			vehicle_id UUID NOT NULL REFERENCES vehicles(id) ON DELETE RESTRICT,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL CHECK (status IN ('disable','available','in_use')),
			short_link TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (start_time < end_time)
		);`,
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			booking_id UUID REFERENCES bookings(id) ON DELETE RESTRICT,
			subscription_id UUID REFERENCES subscriptions(id) ON DELETE RESTRICT,
			amount BIGINT NOT NULL,
			payment_method VARCHAR(50) NOT NULL,
			payment_status BOOLEAN NOT NULL DEFAULT false,
			payment_note VARCHAR(50) NOT NULL DEFAULT '',
			pay_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (num_nonnulls(booking_id, subscription_id) = 1)
		);`,
		`CREATE TABLE IF NOT EXISTS parking_history (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			spot_id UUID NOT NULL REFERENCES parking_spots(id) ON DELETE RESTRICT,
			vehicle_id UUID NOT NULL REFERENCES vehicles(id) ON DELETE RESTRICT,
			booking_id UUID REFERENCES bookings(id) ON DELETE RESTRICT,
			subscription_id UUID REFERENCES subscriptions(id) ON DELETE RESTRICT,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ,
			entry_image TEXT NOT NULL DEFAULT '',
			exit_image TEXT NOT NULL DEFAULT '',
			CHECK (num_nonnulls(booking_id, subscription_id) <= 1)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_open_visit
			ON parking_history(user_id, vehicle_id) WHERE exit_time IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_spots_lot ON parking_spots(lot_id);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresRepo) CreateUser(ctx context.Context, u *model.User) error {
	newID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO users (` + userColumns + `) VALUES ($1,$2,$3,$4,$5)`
	return p.exec(ctx, q, u.ID, u.Username, u.Email, u.FaceDescriptor, u.CreatedAt)
}

func (p *PostgresRepo) UpdateUser(ctx context.Context, u *model.User) error {
	q := `UPDATE users SET username=$1, email=$2, face_descriptor=$3 WHERE id=$4`
	return p.execOne(ctx, q, u.Username, u.Email, u.FaceDescriptor, u.ID)
}

func (p *PostgresRepo) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	if err := p.get(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresRepo) ListFaceProfiles(ctx context.Context) ([]model.User, error) {
	var rows []model.User
	q := `SELECT ` + userColumns + ` FROM users WHERE face_descriptor IS NOT NULL ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, p.db, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CreateLot(ctx context.Context, lot *model.ParkingLot) error {
	newID(&lot.ID)
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO parking_lots (` + lotColumns + `) VALUES ($1,$2,$3,$4,$5)`
	return p.exec(ctx, q, lot.ID, lot.Name, lot.Address, lot.PricePerHour, lot.CreatedAt)
}

func (p *PostgresRepo) GetLot(ctx context.Context, id uuid.UUID) (*model.ParkingLot, error) {
	var lot model.ParkingLot
	q := `SELECT ` + lotColumns + ` FROM parking_lots WHERE id=$1`
	if err := p.get(ctx, &lot, q, id); err != nil {
		return nil, err
	}
	return &lot, nil
}

func (p *PostgresRepo) ListLots(ctx context.Context) ([]model.ParkingLot, error) {
	var rows []model.ParkingLot
	q := `SELECT ` + lotColumns + ` FROM parking_lots ORDER BY name`
	if err := sqlx.SelectContext(ctx, p.db, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CreateSpot(ctx context.Context, spot *model.ParkingSpot) error {
	newID(&spot.ID)
	if spot.Status == "" {
		spot.Status = model.SpotAvailable
	}
	if spot.CreatedAt.IsZero() {
		spot.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO parking_spots (` + spotColumns + `) VALUES ($1,$2,$3,$4)`
	return p.exec(ctx, q, spot.ID, spot.LotID, spot.Status, spot.CreatedAt)
}

func (p *PostgresRepo) GetSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error) {
	var s model.ParkingSpot
	q := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id=$1`
	if err := p.get(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresRepo) LockSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error) {
	var s model.ParkingSpot
	q := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id=$1 FOR UPDATE`
	if err := p.get(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresRepo) SetSpotStatus(ctx context.Context, id uuid.UUID, status model.SpotStatus) error {
	q := `UPDATE parking_spots SET status=$1 WHERE id=$2`
	return p.execOne(ctx, q, status, id)
}

func (p *PostgresRepo) DeleteSpot(ctx context.Context, id uuid.UUID) error {
	q := `DELETE FROM parking_spots WHERE id=$1`
	return p.execOne(ctx, q, id)
}

func (p *PostgresRepo) CountSpots(ctx context.Context, lotID uuid.UUID) (map[model.SpotStatus]int, error) {
	type row struct {
		Status model.SpotStatus `db:"status"`
		N      int              `db:"n"`
	}
	var rows []row
	q := `SELECT status, COUNT(*) AS n FROM parking_spots WHERE lot_id=$1 GROUP BY status`
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, lotID); err != nil {
		return nil, err
	}
	counts := make(map[model.SpotStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

func (p *PostgresRepo) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	newID(&v.ID)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	return p.exec(ctx, q, v.ID, v.UserID, v.LicensePlate, v.Color, v.Brand, v.CarModel, v.CreatedAt)
}

func (p *PostgresRepo) GetVehicle(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	var v model.Vehicle
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id=$1`
	if err := p.get(ctx, &v, q, id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *PostgresRepo) FindVehicle(ctx context.Context, userID uuid.UUID, plate string) (*model.Vehicle, error) {
	var v model.Vehicle
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE user_id=$1 AND license_plate=$2`
	if err := p.get(ctx, &v, q, userID, plate); err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *PostgresRepo) ListVehicles(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error) {
	var rows []model.Vehicle
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE user_id=$1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) UpdateVehicle(ctx context.Context, v *model.Vehicle) error {
	q := `UPDATE vehicles SET license_plate=$1, color=$2, brand=$3, car_model=$4 WHERE id=$5`
	return p.execOne(ctx, q, v.LicensePlate, v.Color, v.Brand, v.CarModel, v.ID)
}

func (p *PostgresRepo) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	return p.execOne(ctx, `DELETE FROM vehicles WHERE id=$1`, id)
}

func (p *PostgresRepo) CreateSubscriptionType(ctx context.Context, t *model.SubscriptionType) error {
	newID(&t.ID)
	q := `INSERT INTO subscription_types (` + subTypeColumns + `) VALUES ($1,$2,$3)`
	return p.exec(ctx, q, t.ID, t.Kind, t.TotalAmount)
}

func (p *PostgresRepo) GetSubscriptionType(ctx context.Context, id uuid.UUID) (*model.SubscriptionType, error) {
	var t model.SubscriptionType
	q := `SELECT ` + subTypeColumns + ` FROM subscription_types WHERE id=$1`
	if err := p.get(ctx, &t, q, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	newID(&b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	return p.exec(ctx, q, b.ID, b.UserID, b.SpotID, b.VehicleID, b.StartTime, b.EndTime, b.Status, b.ShortLink, b.CreatedAt)
}

func (p *PostgresRepo) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id=$1`
	if err := p.get(ctx, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresRepo) UpdateBooking(ctx context.Context, b *model.Booking) error {
	q := `UPDATE bookings SET start_time=$1, end_time=$2, status=$3, short_link=$4 WHERE id=$5`
	return p.execOne(ctx, q, b.StartTime, b.EndTime, b.Status, b.ShortLink, b.ID)
}

func (p *PostgresRepo) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.UserID != nil {
		q += ` AND user_id=$` + itoa(idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.VehicleID != nil {
		q += ` AND vehicle_id=$` + itoa(idx)
		args = append(args, *f.VehicleID)
		idx++
	}
	if f.Status != nil {
		q += ` AND status=$` + itoa(idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.EndBefore != nil {
		q += ` AND end_time<$` + itoa(idx)
		args = append(args, *f.EndBefore)
		idx++
	}
	q += ` ORDER BY created_at, id`
	var rows []model.Booking
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	newID(&s.ID)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	return p.exec(ctx, q, s.ID, s.UserID, s.SpotID, s.TypeID, s.StartDate, s.EndDate, s.Status, s.ShortLink, s.CreatedAt)
}

func (p *PostgresRepo) GetSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	var s model.Subscription
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if err := p.get(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresRepo) UpdateSubscription(ctx context.Context, s *model.Subscription) error {
	q := `UPDATE subscriptions SET subscription_type_id=$1, start_date=$2, end_date=$3, status=$4, short_link=$5 WHERE id=$6`
	return p.execOne(ctx, q, s.TypeID, s.StartDate, s.EndDate, s.Status, s.ShortLink, s.ID)
}

func (p *PostgresRepo) ListSubscriptions(ctx context.Context, f SubscriptionFilter) ([]model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.UserID != nil {
		q += ` AND user_id=$` + itoa(idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.Status != nil {
		q += ` AND status=$` + itoa(idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.ActiveOn != nil {
		q += ` AND start_date<=$` + itoa(idx) + ` AND end_date>=$` + itoa(idx)
		args = append(args, *f.ActiveOn)
		idx++
	}
	if f.EndBefore != nil {
		q += ` AND end_date<$` + itoa(idx)
		args = append(args, *f.EndBefore)
		idx++
	}
	q += ` ORDER BY created_at, id`
	var rows []model.Subscription
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CreatePayment(ctx context.Context, pay *model.Payment) error {
	if err := pay.Validate(); err != nil {
		return err
	}
	newID(&pay.ID)
	if pay.CreatedAt.IsZero() {
		pay.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	return p.exec(ctx, q, pay.ID, pay.BookingID, pay.SubscriptionID, pay.Amount, pay.Method,
		pay.Confirmed, pay.Note, pay.PayURL, pay.CreatedAt)
}

func (p *PostgresRepo) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var pay model.Payment
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if err := p.get(ctx, &pay, q, id); err != nil {
		return nil, err
	}
	return &pay, nil
}

func (p *PostgresRepo) UpdatePayment(ctx context.Context, pay *model.Payment) error {
	q := `UPDATE payments SET payment_status=$1, payment_note=$2, pay_url=$3 WHERE id=$4`
	return p.execOne(ctx, q, pay.Confirmed, pay.Note, pay.PayURL, pay.ID)
}

func (p *PostgresRepo) ListPayments(ctx context.Context, userID uuid.UUID) ([]model.Payment, error) {
	q := `SELECT p.id,p.booking_id,p.subscription_id,p.amount,p.payment_method,p.payment_status,p.payment_note,p.pay_url,p.created_at
	FROM payments p
	LEFT JOIN bookings b ON b.id = p.booking_id
	LEFT JOIN subscriptions s ON s.id = p.subscription_id
	WHERE b.user_id=$1 OR s.user_id=$1
	ORDER BY p.created_at, p.id`
	var rows []model.Payment
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) ListUnconfirmedPayments(ctx context.Context) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_status=false ORDER BY created_at, id`
	var rows []model.Payment
	if err := sqlx.SelectContext(ctx, p.db, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CreateHistory(ctx context.Context, h *model.ParkingHistory) error {
	if err := h.Validate(); err != nil {
		return err
	}
	newID(&h.ID)
	q := `INSERT INTO parking_history (` + historyColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	return p.exec(ctx, q, h.ID, h.UserID, h.SpotID, h.VehicleID, h.BookingID, h.SubscriptionID,
		h.EntryTime, h.ExitTime, h.EntryImage, h.ExitImage)
}

func (p *PostgresRepo) FindOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error) {
	var h model.ParkingHistory
	q := `SELECT ` + historyColumns + ` FROM parking_history WHERE user_id=$1 AND vehicle_id=$2 AND exit_time IS NULL`
	if err := p.get(ctx, &h, q, userID, vehicleID); err != nil {
		return nil, err
	}
	return &h, nil
}

func (p *PostgresRepo) LockOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error) {
	var h model.ParkingHistory
	q := `SELECT ` + historyColumns + ` FROM parking_history WHERE user_id=$1 AND vehicle_id=$2 AND exit_time IS NULL FOR UPDATE`
	if err := p.get(ctx, &h, q, userID, vehicleID); err != nil {
		return nil, err
	}
	return &h, nil
}

func (p *PostgresRepo) CloseHistory(ctx context.Context, id uuid.UUID, exitTime time.Time, exitImage string) error {
	q := `UPDATE parking_history SET exit_time=$1, exit_image=$2 WHERE id=$3 AND exit_time IS NULL`
	return p.execOne(ctx, q, exitTime, exitImage, id)
}

func (p *PostgresRepo) ListHistory(ctx context.Context, userID uuid.UUID) ([]model.ParkingHistory, error) {
	var rows []model.ParkingHistory
	q := `SELECT ` + historyColumns + ` FROM parking_history WHERE user_id=$1 ORDER BY entry_time DESC`
	if err := sqlx.SelectContext(ctx, p.db, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *PostgresRepo) CountOpenHistoryForSpot(ctx context.Context, spotID uuid.UUID) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM parking_history WHERE spot_id=$1 AND exit_time IS NULL`
	if err := sqlx.GetContext(ctx, p.db, &n, q, spotID); err != nil {
		return 0, err
	}
	return n, nil
}

// helpers

func (p *PostgresRepo) get(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, p.db, dest, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (p *PostgresRepo) exec(ctx context.Context, q string, args ...interface{}) error {
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return translate(err)
	}
	return nil
}

// execOne runs a statement that must touch exactly one row.
func (p *PostgresRepo) execOne(ctx context.Context, q string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translate maps unique and foreign key violations to ErrConflict.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		}
	}
	return err
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
