package handlers

import (
	"net/http"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/parking"
	"github.com/google/uuid"
)

func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.VehicleRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.svc.RegisterVehicle(r.Context(), p, req, h.now())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListVehicles(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req model.VehicleRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.svc.UpdateVehicle(r.Context(), p, id, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteVehicle(r.Context(), p, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.BookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	// validated as uuid4 above
	spotID, _ := uuid.Parse(req.SpotID)
	vehicleID, _ := uuid.Parse(req.VehicleID)
	b, err := h.svc.CreateBooking(r.Context(), p, parking.BookingInput{
		SpotID:    spotID,
		VehicleID: vehicleID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}, h.now())
	if err != nil {
		if b != nil {
			h.failPending(w, err, b)
			return
		}
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListBookings(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req model.SubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	spotID, _ := uuid.Parse(req.SpotID)
	typeID, _ := uuid.Parse(req.TypeID)
	sub, err := h.svc.CreateSubscription(r.Context(), p, spotID, typeID, h.now())
	if err != nil {
		if sub != nil {
			h.failPending(w, err, sub)
			return
		}
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListSubscriptions(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req model.RenewRequest
	if !h.decode(w, r, &req) {
		return
	}
	typeID, _ := uuid.Parse(req.TypeID)
	sub, err := h.svc.RenewSubscription(r.Context(), p, id, typeID, h.now())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListPayments(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pay, err := h.svc.RetryPayment(r.Context(), p, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pay)
}
