package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

func (h *handlers) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req JoinWaitlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	entry, err := h.svc.JoinWaitlist(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(entry))
}

func (h *handlers) getWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entry, err := h.svc.GetWaitlistEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
}

func (h *handlers) listWaitlist(w http.ResponseWriter, r *http.Request) {
	providerID, ok := queryUUID(w, r, "provider_id")
	if !ok {
		return
	}
	entries, err := h.svc.ListWaitlist(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]WaitlistEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toWaitlistEntryResponse(&entries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) offerSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req OfferSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.OfferSlot(r.Context(), id, req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
}

func (h *handlers) promoteWaitlist(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.PromoteWaitlist(r.Context(), req.ProviderID, req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var resp PromoteResponse
	if entry != nil {
		e := toWaitlistEntryResponse(entry)
		resp.Entry = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) acceptOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entry, appt, err := h.svc.AcceptOffer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AcceptOfferResponse{
		Entry:       toWaitlistEntryResponse(entry),
		Appointment: toAppointmentResponse(appt),
	})
}

func (h *handlers) waitlistStep(step func(context.Context, uuid.UUID) (*booking.WaitlistEntry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		entry, err := step(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
	}
}
