package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/evidence"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/parking"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ParkingService is the slice of the parking engine the HTTP layer drives.
type ParkingService interface {
	RegisterUser(ctx context.Context, in model.UserRequest, now time.Time) (*model.User, error)
	CurrentUser(ctx context.Context, p auth.Principal) (*model.User, error)
	UpdateProfile(ctx context.Context, p auth.Principal, in model.ProfileRequest) (*model.User, error)
	CreateLot(ctx context.Context, p auth.Principal, in model.LotRequest, now time.Time) (*model.ParkingLot, error)
	AddSpots(ctx context.Context, p auth.Principal, lotID uuid.UUID, count int, now time.Time) ([]model.ParkingSpot, error)
	CreateSubscriptionType(ctx context.Context, p auth.Principal, in model.SubscriptionTypeRequest) (*model.SubscriptionType, error)
	ListLots(ctx context.Context) ([]model.ParkingLot, error)
	Availability(ctx context.Context, lotID uuid.UUID) (*model.Availability, error)
	DeleteSpot(ctx context.Context, p auth.Principal, spotID uuid.UUID) error
	SetMaintenance(ctx context.Context, p auth.Principal, spotID uuid.UUID, enabled bool) (*model.ParkingSpot, error)

	RegisterVehicle(ctx context.Context, p auth.Principal, in model.VehicleRequest, now time.Time) (*model.Vehicle, error)
	ListVehicles(ctx context.Context, p auth.Principal) ([]model.Vehicle, error)
	UpdateVehicle(ctx context.Context, p auth.Principal, vehicleID uuid.UUID, in model.VehicleRequest) (*model.Vehicle, error)
	DeleteVehicle(ctx context.Context, p auth.Principal, vehicleID uuid.UUID) error

	CreateBooking(ctx context.Context, p auth.Principal, in parking.BookingInput, now time.Time) (*model.Booking, error)
	ListBookings(ctx context.Context, p auth.Principal) ([]model.Booking, error)
	CreateSubscription(ctx context.Context, p auth.Principal, spotID, typeID uuid.UUID, now time.Time) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, p auth.Principal) ([]model.Subscription, error)
	RenewSubscription(ctx context.Context, p auth.Principal, subID, typeID uuid.UUID, now time.Time) (*model.Subscription, error)
	ListPayments(ctx context.Context, p auth.Principal) ([]model.Payment, error)
	RetryPayment(ctx context.Context, p auth.Principal, paymentID uuid.UUID) (*model.Payment, error)

	RecordEntry(ctx context.Context, p auth.Principal, plate, image string, now time.Time) (*model.ParkingHistory, error)
	RecordExit(ctx context.Context, p auth.Principal, plate, image string, now time.Time) (*parking.ExitResult, error)
	ListHistory(ctx context.Context, p auth.Principal) ([]model.ParkingHistory, error)
}

type FaceLogin interface {
	Login(ctx context.Context, descriptor []float64) (auth.Token, error)
}

type Handler struct {
	svc      ParkingService
	faces    FaceLogin
	evidence evidence.Store
	log      *logrus.Logger
	val      *validator.Validate
	now      func() time.Time
}

func NewHandler(svc ParkingService, faces FaceLogin, ev evidence.Store, l *logrus.Logger) *Handler {
	return &Handler{svc: svc, faces: faces, evidence: ev, log: l, val: validator.New(), now: time.Now}
}

// Register mounts the API on r. Everything except face login and lot
// browsing goes through authn.
func (h *Handler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Post("/auth/face-login", h.FaceLogin)
	r.Post("/users", h.RegisterUser)
	r.Get("/lots", h.ListLots)
	r.Get("/lots/{id}/availability", h.Availability)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Get("/users/me", h.CurrentUser)
		r.Patch("/users/me", h.UpdateProfile)
		r.Post("/lots", h.CreateLot)
		r.Post("/lots/{id}/spots", h.AddSpots)
		r.Post("/subscription-types", h.CreateSubscriptionType)
		r.Delete("/spots/{id}", h.DeleteSpot)
		r.Put("/spots/{id}/maintenance", h.SetMaintenance)

		r.Route("/vehicles", func(r chi.Router) {
			r.Post("/", h.RegisterVehicle)
			r.Get("/", h.ListVehicles)
			r.Put("/{id}", h.UpdateVehicle)
			r.Delete("/{id}", h.DeleteVehicle)
		})
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/", h.ListBookings)
		})
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.CreateSubscription)
			r.Get("/", h.ListSubscriptions)
			r.Post("/{id}/renew", h.RenewSubscription)
		})
		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/{id}/retry", h.RetryPayment)
		})

		r.Post("/entries", h.RecordEntry)
		r.Post("/exits", h.RecordExit)
		r.Get("/history", h.ListHistory)
	})
}

func (h *Handler) FaceLogin(w http.ResponseWriter, r *http.Request) {
	var req model.FaceLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.val.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := h.faces.Login(r.Context(), req.FaceDescriptor)
	if errors.Is(err, auth.ErrNoFaceMatch) {
		h.writeError(w, http.StatusUnauthorized, "face not recognised")
		return
	}
	if err != nil {
		h.log.Errorf("face login failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req model.UserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.RegisterUser(r.Context(), req, h.now())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), p, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.LotRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.svc.CreateLot(r.Context(), p, req, h.now())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (h *Handler) AddSpots(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req model.SpotsRequest
	if !h.decode(w, r, &req) {
		return
	}
	spots, err := h.svc.AddSpots(r.Context(), p, id, req.Count, h.now())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, spots)
}

func (h *Handler) CreateSubscriptionType(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.SubscriptionTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.svc.CreateSubscriptionType(r.Context(), p, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.svc.ListLots(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Availability(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteSpot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteSpot(r.Context(), p, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req model.MaintenanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	spot, err := h.svc.SetMaintenance(r.Context(), p, id, *req.Enabled)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListHistory(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// utilities

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
	}
	return p, ok
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Warnf("invalid body on %s: %v", r.URL.Path, err)
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	if err := h.val.Struct(v); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
