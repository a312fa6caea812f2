package api

import "net/http"

func (h *handlers) createSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slot, err := h.svc.CreateSlot(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

func (h *handlers) createSlots(w http.ResponseWriter, r *http.Request) {
	var req BulkSlotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bulk, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	slots, err := h.svc.CreateSlots(r.Context(), bulk)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponses(slots))
}

func (h *handlers) getSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	slot, err := h.svc.GetSlot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := queryUUID(w, r, "provider_id")
	if !ok {
		return
	}
	from, ok := queryTime(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryTime(w, r, "to")
	if !ok {
		return
	}
	slots, err := h.svc.ListSlots(r.Context(), providerID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) blockSlots(w http.ResponseWriter, r *http.Request) {
	var req SlotRangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slots, err := h.svc.BlockSlots(r.Context(), req.ProviderID, req.From, req.To, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) unblockSlots(w http.ResponseWriter, r *http.Request) {
	var req SlotRangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slots, err := h.svc.UnblockSlots(r.Context(), req.ProviderID, req.From, req.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *handlers) cancelSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	slot, err := h.svc.CancelSlot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(slot))
}
