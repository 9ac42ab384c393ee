package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps every entity in process memory. Transactions are fully
// serialized and work on a copy that replaces the live data on commit.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{}}
}

func (s *MemoryStore) View(ctx context.Context, fn func(r Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data.clone())
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(r Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

// memData holds rows in insertion order.
type memData struct {
	users     []model.User
	lots      []model.ParkingLot
	spots     []model.ParkingSpot
	vehicles  []model.Vehicle
	subTypes  []model.SubscriptionType
	bookings  []model.Booking
	subs      []model.Subscription
	payments  []model.Payment
	histories []model.ParkingHistory
}

func (d *memData) clone() *memData {
	c := &memData{
		users:     make([]model.User, len(d.users)),
		lots:      append([]model.ParkingLot(nil), d.lots...),
		spots:     append([]model.ParkingSpot(nil), d.spots...),
		vehicles:  append([]model.Vehicle(nil), d.vehicles...),
		subTypes:  append([]model.SubscriptionType(nil), d.subTypes...),
		bookings:  append([]model.Booking(nil), d.bookings...),
		subs:      append([]model.Subscription(nil), d.subs...),
		payments:  make([]model.Payment, len(d.payments)),
		histories: make([]model.ParkingHistory, len(d.histories)),
	}
	for i, u := range d.users {
		u.FaceDescriptor = append([]float64(nil), u.FaceDescriptor...)
		c.users[i] = u
	}
	for i, p := range d.payments {
		p.BookingID = cloneID(p.BookingID)
		p.SubscriptionID = cloneID(p.SubscriptionID)
		c.payments[i] = p
	}
	for i, h := range d.histories {
		h.BookingID = cloneID(h.BookingID)
		h.SubscriptionID = cloneID(h.SubscriptionID)
		if h.ExitTime != nil {
			t := *h.ExitTime
			h.ExitTime = &t
		}
		c.histories[i] = h
	}
	return c
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (d *memData) CreateUser(ctx context.Context, u *model.User) error {
	newID(&u.ID)
	for _, x := range d.users {
		if x.Username == u.Username {
			return fmt.Errorf("%w: username", ErrConflict)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	d.users = append(d.users, *u)
	return nil
}

func (d *memData) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) UpdateUser(ctx context.Context, u *model.User) error {
	idx := -1
	for i, x := range d.users {
		if x.ID == u.ID {
			idx = i
		} else if x.Username == u.Username {
			return fmt.Errorf("%w: username", ErrConflict)
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	d.users[idx].Username = u.Username
	d.users[idx].Email = u.Email
	d.users[idx].FaceDescriptor = append([]float64(nil), u.FaceDescriptor...)
	return nil
}

func (d *memData) ListFaceProfiles(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range d.users {
		if len(u.FaceDescriptor) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *memData) CreateLot(ctx context.Context, lot *model.ParkingLot) error {
	newID(&lot.ID)
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	d.lots = append(d.lots, *lot)
	return nil
}

func (d *memData) GetLot(ctx context.Context, id uuid.UUID) (*model.ParkingLot, error) {
	for _, l := range d.lots {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListLots(ctx context.Context) ([]model.ParkingLot, error) {
	out := append([]model.ParkingLot(nil), d.lots...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *memData) CreateSpot(ctx context.Context, spot *model.ParkingSpot) error {
	newID(&spot.ID)
	if spot.Status == "" {
		spot.Status = model.SpotAvailable
	}
	if spot.CreatedAt.IsZero() {
		spot.CreatedAt = time.Now().UTC()
	}
	d.spots = append(d.spots, *spot)
	return nil
}

func (d *memData) GetSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error) {
	for _, s := range d.spots {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// LockSpot is GetSpot here: the whole transaction already holds the store lock.
func (d *memData) LockSpot(ctx context.Context, id uuid.UUID) (*model.ParkingSpot, error) {
	return d.GetSpot(ctx, id)
}

func (d *memData) SetSpotStatus(ctx context.Context, id uuid.UUID, status model.SpotStatus) error {
	for i := range d.spots {
		if d.spots[i].ID == id {
			d.spots[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) DeleteSpot(ctx context.Context, id uuid.UUID) error {
	for _, b := range d.bookings {
		if b.SpotID == id {
			return fmt.Errorf("%w: bookings_spot_id_fkey", ErrConflict)
		}
	}
	for _, s := range d.subs {
		if s.SpotID == id {
			return fmt.Errorf("%w: subscriptions_spot_id_fkey", ErrConflict)
		}
	}
	for _, h := range d.histories {
		if h.SpotID == id {
			return fmt.Errorf("%w: parking_history_spot_id_fkey", ErrConflict)
		}
	}
	for i := range d.spots {
		if d.spots[i].ID == id {
			d.spots = append(d.spots[:i], d.spots[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) CountSpots(ctx context.Context, lotID uuid.UUID) (map[model.SpotStatus]int, error) {
	counts := map[model.SpotStatus]int{}
	for _, s := range d.spots {
		if s.LotID == lotID {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func (d *memData) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	newID(&v.ID)
	for _, x := range d.vehicles {
		if strings.EqualFold(x.LicensePlate, v.LicensePlate) {
			return fmt.Errorf("%w: license_plate", ErrConflict)
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	d.vehicles = append(d.vehicles, *v)
	return nil
}

func (d *memData) GetVehicle(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	for _, v := range d.vehicles {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) FindVehicle(ctx context.Context, userID uuid.UUID, plate string) (*model.Vehicle, error) {
	for _, v := range d.vehicles {
		if v.UserID == userID && v.LicensePlate == plate {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListVehicles(ctx context.Context, userID uuid.UUID) ([]model.Vehicle, error) {
	var out []model.Vehicle
	for _, v := range d.vehicles {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (d *memData) UpdateVehicle(ctx context.Context, v *model.Vehicle) error {
	idx := -1
	for i, x := range d.vehicles {
		if x.ID == v.ID {
			idx = i
		} else if strings.EqualFold(x.LicensePlate, v.LicensePlate) {
			return fmt.Errorf("%w: license_plate", ErrConflict)
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	d.vehicles[idx].LicensePlate = v.LicensePlate
	d.vehicles[idx].Color = v.Color
	d.vehicles[idx].Brand = v.Brand
	d.vehicles[idx].CarModel = v.CarModel
	return nil
}

func (d *memData) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	for _, b := range d.bookings {
		if b.VehicleID == id {
			return fmt.Errorf("%w: bookings_vehicle_id_fkey", ErrConflict)
		}
	}
	for _, h := range d.histories {
		if h.VehicleID == id {
			return fmt.Errorf("%w: parking_history_vehicle_id_fkey", ErrConflict)
		}
	}
	for i := range d.vehicles {
		if d.vehicles[i].ID == id {
			d.vehicles = append(d.vehicles[:i], d.vehicles[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) CreateSubscriptionType(ctx context.Context, t *model.SubscriptionType) error {
	newID(&t.ID)
	d.subTypes = append(d.subTypes, *t)
	return nil
}

func (d *memData) GetSubscriptionType(ctx context.Context, id uuid.UUID) (*model.SubscriptionType, error) {
	for _, t := range d.subTypes {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) CreateBooking(ctx context.Context, b *model.Booking) error {
	newID(&b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	d.bookings = append(d.bookings, *b)
	return nil
}

func (d *memData) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	for _, b := range d.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) UpdateBooking(ctx context.Context, b *model.Booking) error {
	for i := range d.bookings {
		if d.bookings[i].ID == b.ID {
			d.bookings[i] = *b
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range d.bookings {
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		if f.VehicleID != nil && b.VehicleID != *f.VehicleID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.EndBefore != nil && !b.EndTime.Before(*f.EndBefore) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (d *memData) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	newID(&s.ID)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	d.subs = append(d.subs, *s)
	return nil
}

func (d *memData) GetSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	for _, s := range d.subs {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) UpdateSubscription(ctx context.Context, s *model.Subscription) error {
	for i := range d.subs {
		if d.subs[i].ID == s.ID {
			d.subs[i] = *s
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) ListSubscriptions(ctx context.Context, f SubscriptionFilter) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range d.subs {
		if f.UserID != nil && s.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		if f.ActiveOn != nil {
			day := dateKey(*f.ActiveOn)
			if dateKey(s.StartDate) > day || dateKey(s.EndDate) < day {
				continue
			}
		}
		if f.EndBefore != nil && dateKey(s.EndDate) >= dateKey(*f.EndBefore) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *memData) CreatePayment(ctx context.Context, p *model.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	newID(&p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	d.payments = append(d.payments, *p)
	return nil
}

func (d *memData) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	for _, p := range d.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) UpdatePayment(ctx context.Context, p *model.Payment) error {
	for i := range d.payments {
		if d.payments[i].ID == p.ID {
			d.payments[i].Confirmed = p.Confirmed
			d.payments[i].Note = p.Note
			d.payments[i].PayURL = p.PayURL
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) ListPayments(ctx context.Context, userID uuid.UUID) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range d.payments {
		var owner uuid.UUID
		if p.BookingID != nil {
			if b, err := d.GetBooking(ctx, *p.BookingID); err == nil {
				owner = b.UserID
			}
		} else if p.SubscriptionID != nil {
			if s, err := d.GetSubscription(ctx, *p.SubscriptionID); err == nil {
				owner = s.UserID
			}
		}
		if owner == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *memData) ListUnconfirmedPayments(ctx context.Context) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range d.payments {
		if !p.Confirmed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *memData) CreateHistory(ctx context.Context, h *model.ParkingHistory) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.ExitTime == nil {
		if _, err := d.FindOpenHistory(ctx, h.UserID, h.VehicleID); err == nil {
			return fmt.Errorf("%w: open visit", ErrConflict)
		}
	}
	newID(&h.ID)
	d.histories = append(d.histories, *h)
	return nil
}

func (d *memData) FindOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error) {
	for _, h := range d.histories {
		if h.UserID == userID && h.VehicleID == vehicleID && h.ExitTime == nil {
			return &h, nil
		}
	}
	return nil, ErrNotFound
}

// LockOpenHistory needs no lock here; transactions are already serialized.
func (d *memData) LockOpenHistory(ctx context.Context, userID, vehicleID uuid.UUID) (*model.ParkingHistory, error) {
	return d.FindOpenHistory(ctx, userID, vehicleID)
}

func (d *memData) CloseHistory(ctx context.Context, id uuid.UUID, exitTime time.Time, exitImage string) error {
	for i := range d.histories {
		if d.histories[i].ID == id && d.histories[i].ExitTime == nil {
			t := exitTime
			d.histories[i].ExitTime = &t
			d.histories[i].ExitImage = exitImage
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) ListHistory(ctx context.Context, userID uuid.UUID) ([]model.ParkingHistory, error) {
	var out []model.ParkingHistory
	for _, h := range d.histories {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return out, nil
}

func (d *memData) CountOpenHistoryForSpot(ctx context.Context, spotID uuid.UUID) (int, error) {
	n := 0
	for _, h := range d.histories {
		if h.SpotID == spotID && h.ExitTime == nil {
			n++
		}
	}
	return n, nil
}

// dateKey orders calendar dates as yyyymmdd regardless of location.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
