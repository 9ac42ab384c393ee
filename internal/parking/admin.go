package parking

import (
	"context"
	"errors"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
)

func (s *Service) DeleteSpot(ctx context.Context, p auth.Principal, spotID uuid.UUID) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	return s.inTx(ctx, func(w *work) error {
		spot, err := w.lock(ctx, spotID)
		if err != nil {
			return err
		}
		if !Deletable(spot.Status) {
			return fail(KindSpotUnavailable, "spot %s is %s and cannot be deleted", spot.ID, spot.Status)
		}
		err = w.r.DeleteSpot(ctx, spot.ID)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "spot %s has reservation or visit records", spot.ID)
		}
		if err != nil {
			return err
		}
		w.touch(spot.LotID)
		return nil
	})
}

// SetMaintenance takes an available spot out of service, or returns a spot
// under maintenance to service.
func (s *Service) SetMaintenance(ctx context.Context, p auth.Principal, spotID uuid.UUID, enabled bool) (*model.ParkingSpot, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	ev := EventMaintenanceOff
	if enabled {
		ev = EventMaintenanceOn
	}
	var spot *model.ParkingSpot
	err := s.inTx(ctx, func(w *work) error {
		var err error
		spot, err = w.occupy(ctx, spotID, ev)
		return err
	})
	return spot, err
}

func (s *Service) RegisterVehicle(ctx context.Context, p auth.Principal, in model.VehicleRequest, now time.Time) (*model.Vehicle, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	v := &model.Vehicle{
		UserID:       p.UserID,
		LicensePlate: NormalizePlate(in.LicensePlate),
		Color:        in.Color,
		Brand:        in.Brand,
		CarModel:     in.CarModel,
		CreatedAt:    now,
	}
	err := s.inTx(ctx, func(w *work) error {
		err := w.r.CreateVehicle(ctx, v)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "license plate %s is already registered", v.LicensePlate)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateVehicle replaces the details of one of the caller's vehicles. The
// plate cannot change while the vehicle is parked, since the exit is matched
// on it.
func (s *Service) UpdateVehicle(ctx context.Context, p auth.Principal, vehicleID uuid.UUID, in model.VehicleRequest) (*model.Vehicle, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var v *model.Vehicle
	err := s.inTx(ctx, func(w *work) error {
		if err := ownVehicle(ctx, w.r, p.UserID, vehicleID); err != nil {
			return err
		}
		var err error
		if v, err = w.r.GetVehicle(ctx, vehicleID); err != nil {
			return err
		}
		plate := NormalizePlate(in.LicensePlate)
		if plate != v.LicensePlate {
			_, err := w.r.FindOpenHistory(ctx, p.UserID, vehicleID)
			if err == nil {
				return fail(KindVisitAlreadyOpen, "vehicle %s is parked; its plate cannot change", vehicleID)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		v.LicensePlate = plate
		v.Color = in.Color
		v.Brand = in.Brand
		v.CarModel = in.CarModel
		err = w.r.UpdateVehicle(ctx, v)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "license plate %s is already registered", plate)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListVehicles(ctx context.Context, p auth.Principal) ([]model.Vehicle, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var out []model.Vehicle
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListVehicles(ctx, p.UserID)
		return err
	})
	return out, err
}

// DeleteVehicle removes one of the caller's vehicles. A vehicle that is
// parked, has a live booking, or appears in any billing or visit record
// cannot be removed.
func (s *Service) DeleteVehicle(ctx context.Context, p auth.Principal, vehicleID uuid.UUID) error {
	if err := denyGate(p); err != nil {
		return err
	}
	return s.inTx(ctx, func(w *work) error {
		if err := ownVehicle(ctx, w.r, p.UserID, vehicleID); err != nil {
			return err
		}
		_, err := w.r.FindOpenHistory(ctx, p.UserID, vehicleID)
		if err == nil {
			return fail(KindVisitAlreadyOpen, "vehicle %s is parked", vehicleID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		live, err := liveBooking(ctx, w.r, p.UserID, vehicleID)
		if err != nil {
			return err
		}
		if live != nil {
			return fail(KindInvalidState, "vehicle %s has %s booking %s", vehicleID, live.Status, live.ID)
		}
		err = w.r.DeleteVehicle(ctx, vehicleID)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "vehicle %s has booking or visit records", vehicleID)
		}
		return err
	})
}

// liveBooking finds a booking of the vehicle that still holds or may still
// claim its spot: an active one, or a pending one whose payment can yet be
// retried.
func liveBooking(ctx context.Context, r store.Repository, userID, vehicleID uuid.UUID) (*model.Booking, error) {
	bookings, err := r.ListBookings(ctx, store.BookingFilter{VehicleID: &vehicleID})
	if err != nil {
		return nil, err
	}
	var pending map[uuid.UUID]bool
	for i := range bookings {
		b := &bookings[i]
		if b.Status != model.BookingDisabled {
			return b, nil
		}
		if pending == nil {
			pays, err := r.ListPayments(ctx, userID)
			if err != nil {
				return nil, err
			}
			pending = map[uuid.UUID]bool{}
			for _, pay := range pays {
				if !pay.Confirmed && pay.Note == model.NoteBooking && pay.BookingID != nil {
					pending[*pay.BookingID] = true
				}
			}
		}
		if pending[b.ID] {
			return b, nil
		}
	}
	return nil, nil
}

func (s *Service) ListBookings(ctx context.Context, p auth.Principal) ([]model.Booking, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var out []model.Booking
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListBookings(ctx, store.BookingFilter{UserID: &p.UserID})
		return err
	})
	return out, err
}

func (s *Service) ListSubscriptions(ctx context.Context, p auth.Principal) ([]model.Subscription, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var out []model.Subscription
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListSubscriptions(ctx, store.SubscriptionFilter{UserID: &p.UserID})
		return err
	})
	return out, err
}

func (s *Service) ListPayments(ctx context.Context, p auth.Principal) ([]model.Payment, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var out []model.Payment
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListPayments(ctx, p.UserID)
		return err
	})
	return out, err
}

// ListHistory is open to every scope, gate tokens included.
func (s *Service) ListHistory(ctx context.Context, p auth.Principal) ([]model.ParkingHistory, error) {
	var out []model.ParkingHistory
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListHistory(ctx, p.UserID)
		return err
	})
	return out, err
}

func (s *Service) ListLots(ctx context.Context) ([]model.ParkingLot, error) {
	var out []model.ParkingLot
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		out, err = r.ListLots(ctx)
		return err
	})
	return out, err
}

// Availability counts a lot's spots by status, served from the cache when
// one is configured. Cache errors fall back to the store.
func (s *Service) Availability(ctx context.Context, lotID uuid.UUID) (*model.Availability, error) {
	if s.cache != nil {
		counts, ok, err := s.cache.Get(ctx, lotID)
		if err != nil {
			s.log.WithError(err).WithField("lot", lotID).Warn("availability cache read failed")
		}
		if ok {
			return &model.Availability{LotID: lotID, Counts: withAllStatuses(counts)}, nil
		}
	}

	var counts map[model.SpotStatus]int
	err := s.view(ctx, func(r store.Repository) error {
		if _, err := r.GetLot(ctx, lotID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fail(KindNotFound, "lot %s does not exist", lotID)
			}
			return err
		}
		var err error
		counts, err = r.CountSpots(ctx, lotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	counts = withAllStatuses(counts)
	if s.cache != nil {
		if err := s.cache.Set(ctx, lotID, counts); err != nil {
			s.log.WithError(err).WithField("lot", lotID).Warn("availability cache write failed")
		}
	}
	return &model.Availability{LotID: lotID, Counts: counts}, nil
}

func withAllStatuses(counts map[model.SpotStatus]int) map[model.SpotStatus]int {
	out := map[model.SpotStatus]int{
		model.SpotAvailable:   0,
		model.SpotReserved:    0,
		model.SpotInUse:       0,
		model.SpotMaintenance: 0,
	}
	for k, v := range counts {
		out[k] = v
	}
	return out
}

// FaceProfiles lists the users enrolled for face login.
func (s *Service) FaceProfiles(ctx context.Context) ([]auth.Profile, error) {
	var users []model.User
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		users, err = r.ListFaceProfiles(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]auth.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, auth.Profile{UserID: u.ID, Descriptor: u.FaceDescriptor})
	}
	return out, nil
}

// RegisterUser enrols a new user, optionally with a face descriptor for gate
// login.
func (s *Service) RegisterUser(ctx context.Context, in model.UserRequest, now time.Time) (*model.User, error) {
	u := &model.User{
		Username:       in.Username,
		Email:          in.Email,
		FaceDescriptor: in.FaceDescriptor,
		CreatedAt:      now,
	}
	err := s.inTx(ctx, func(w *work) error {
		err := w.r.CreateUser(ctx, u)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "username %s is taken", u.Username)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) CurrentUser(ctx context.Context, p auth.Principal) (*model.User, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var u *model.User
	err := s.view(ctx, func(r store.Repository) error {
		var err error
		u, err = r.GetUser(ctx, p.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNotFound, "user %s does not exist", p.UserID)
		}
		return err
	})
	return u, err
}

// UpdateProfile changes the caller's username, email or face descriptor.
func (s *Service) UpdateProfile(ctx context.Context, p auth.Principal, in model.ProfileRequest) (*model.User, error) {
	if err := denyGate(p); err != nil {
		return nil, err
	}
	var u *model.User
	err := s.inTx(ctx, func(w *work) error {
		var err error
		u, err = w.r.GetUser(ctx, p.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNotFound, "user %s does not exist", p.UserID)
		}
		if err != nil {
			return err
		}
		if in.Username != nil {
			u.Username = *in.Username
		}
		if in.Email != nil {
			u.Email = *in.Email
		}
		if in.FaceDescriptor != nil {
			u.FaceDescriptor = in.FaceDescriptor
		}
		err = w.r.UpdateUser(ctx, u)
		if errors.Is(err, store.ErrConflict) {
			return failWrap(KindInvalidState, err, "username %s is taken", u.Username)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) CreateLot(ctx context.Context, p auth.Principal, in model.LotRequest, now time.Time) (*model.ParkingLot, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	lot := &model.ParkingLot{Name: in.Name, Address: in.Address, PricePerHour: in.PricePerHour, CreatedAt: now}
	err := s.inTx(ctx, func(w *work) error {
		return w.r.CreateLot(ctx, lot)
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// AddSpots creates count available spots in a lot.
func (s *Service) AddSpots(ctx context.Context, p auth.Principal, lotID uuid.UUID, count int, now time.Time) ([]model.ParkingSpot, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var spots []model.ParkingSpot
	err := s.inTx(ctx, func(w *work) error {
		if _, err := w.r.GetLot(ctx, lotID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fail(KindNotFound, "lot %s does not exist", lotID)
			}
			return err
		}
		for i := 0; i < count; i++ {
			spot := model.ParkingSpot{LotID: lotID, Status: model.SpotAvailable, CreatedAt: now}
			if err := w.r.CreateSpot(ctx, &spot); err != nil {
				return err
			}
			spots = append(spots, spot)
		}
		w.touch(lotID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spots, nil
}

func (s *Service) CreateSubscriptionType(ctx context.Context, p auth.Principal, in model.SubscriptionTypeRequest) (*model.SubscriptionType, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := RenewalEndDate(time.Time{}, in.Kind); err != nil {
		return nil, err
	}
	t := &model.SubscriptionType{Kind: in.Kind, TotalAmount: in.TotalAmount}
	err := s.inTx(ctx, func(w *work) error {
		return w.r.CreateSubscriptionType(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
