package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps booking errors to HTTP responses. Anything that is
// not a *booking.Error is an infrastructure failure and is logged.
func writeDomainError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var e *booking.Error
	if !errors.As(err, &e) {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindValidation, booking.KindInvalidTransition, booking.KindInvalidState:
		status = http.StatusBadRequest
	case booking.KindConflict:
		status = http.StatusConflict
	case booking.KindOfferExpired:
		status = http.StatusGone
	}
	writeError(w, status, e.Code, e.Message)
}
