package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

type handlers struct {
	svc    *booking.Service
	idem   *IdempotencyCache
	logger zerolog.Logger
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, h.logger.With().Str("request_id", GetRequestID(r.Context())).Logger(), err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	var providerID uuid.UUID
	if req.ProviderID != "" {
		if providerID, err = uuid.Parse(req.ProviderID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
	}

	key := r.Header.Get(IdempotencyHeader)
	if resp, ok := h.idem.Get(key, patientID.String()); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking.CreateAppointmentRequest{
		PatientID:         patientID,
		ProviderID:        providerID,
		SlotID:            slotID,
		AppointmentTypeID: req.AppointmentTypeID,
		Reason:            req.Reason,
		Notes:             req.Notes,
		Paid:              req.Paid,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := toAppointmentResponse(appt)
	h.idem.Put(key, patientID.String(), resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleChain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	chain, err := h.svc.RescheduleChain(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(chain))
}

// listAppointments serves ?patient_id= (paged by limit/offset) or ?slot_id=.
func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("patient_id") != "":
		patientID, ok := queryUUID(w, r, "patient_id")
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset")
		if !ok {
			return
		}
		appts, err := h.svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	case q.Get("slot_id") != "":
		slotID, ok := queryUUID(w, r, "slot_id")
		if !ok {
			return
		}
		appts, err := h.svc.ListAppointmentsBySlot(r.Context(), slotID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	default:
		writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or slot_id is required")
	}
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req CancelAppointmentRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.CancelAppointment(r.Context(), id, req.CancelledBy, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.RescheduleAppointment(r.Context(), id, req.NewSlotID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// lifecycle adapts one of the body-less status transitions to a handler.
func (h *handlers) lifecycle(step func(context.Context, uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := step(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
