package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/evidence"
	"github.com/effectivemobile/parking/internal/model"
)

const maxGateUpload = 10 << 20

func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	p, plate, image, now, ok := h.gateRequest(w, r, "entry")
	if !ok {
		return
	}
	visit, err := h.svc.RecordEntry(r.Context(), p, plate, image, now)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, visit)
}

func (h *Handler) RecordExit(w http.ResponseWriter, r *http.Request) {
	p, plate, image, now, ok := h.gateRequest(w, r, "exit")
	if !ok {
		return
	}
	res, err := h.svc.RecordExit(r.Context(), p, plate, image, now)
	if err != nil {
		if res != nil {
			h.failPending(w, err, res)
			return
		}
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// gateRequest reads the multipart license_plate and image fields and uploads
// the image. A missing image yields an empty reference, which the service
// rejects.
func (h *Handler) gateRequest(w http.ResponseWriter, r *http.Request, direction string) (auth.Principal, string, string, time.Time, bool) {
	now := h.now()
	p, ok := h.principal(w, r)
	if !ok {
		return p, "", "", now, false
	}
	if !p.Has(auth.ScopeParkingHistory) {
		h.writeError(w, http.StatusForbidden, "gate operations require the parking_history scope")
		return p, "", "", now, false
	}
	if err := r.ParseMultipartForm(maxGateUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return p, "", "", now, false
	}
	req := model.GateRequest{LicensePlate: r.FormValue("license_plate")}
	if err := h.val.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return p, "", "", now, false
	}

	file, hdr, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return p, req.LicensePlate, "", now, true
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid image")
		return p, "", "", now, false
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	key := evidence.Key(direction, p.UserID, now, ext)
	ref, err := h.evidence.Put(r.Context(), key, file, hdr.Header.Get("Content-Type"))
	if err != nil {
		h.log.Errorf("store %s image: %v", direction, err)
		h.writeError(w, http.StatusInternalServerError, "failed to store image")
		return p, "", "", now, false
	}
	return p, req.LicensePlate, ref, now, true
}
