package handlers

import (
	"net/http"

	"github.com/effectivemobile/parking/internal/parking"
)

var statusByKind = map[parking.Kind]int{
	parking.KindSpotUnavailable:          http.StatusConflict,
	parking.KindVehicleNotFound:          http.StatusNotFound,
	parking.KindVehicleOwnershipMismatch: http.StatusForbidden,
	parking.KindNoActiveReservation:      http.StatusConflict,
	parking.KindNoOpenVisit:              http.StatusConflict,
	parking.KindImageRequired:            http.StatusBadRequest,
	parking.KindInvalidSubscriptionType:  http.StatusBadRequest,
	parking.KindGatewayError:             http.StatusBadGateway,
	parking.KindTimeWindowViolation:      http.StatusBadRequest,
	parking.KindScopeDenied:              http.StatusForbidden,
	parking.KindNotFound:                 http.StatusNotFound,
	parking.KindVisitAlreadyOpen:         http.StatusConflict,
	parking.KindInvalidState:             http.StatusConflict,
}

// fail writes a parking error with its mapped status; anything else is a 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind, ok := parking.KindOf(err)
	if !ok {
		h.log.Errorf("request failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeError(w, statusByKind[kind], err.Error())
}

// failPending reports a gateway failure that left a pending record behind,
// so the caller can retry its payment.
func (h *Handler) failPending(w http.ResponseWriter, err error, pending interface{}) {
	if kind, ok := parking.KindOf(err); !ok || kind != parking.KindGatewayError || pending == nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":   err.Error(),
		"pending": pending,
	})
}
