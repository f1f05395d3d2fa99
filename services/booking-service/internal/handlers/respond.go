package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// resultStatus maps a business outcome onto an HTTP status.
func resultStatus(ok bool, errs []model.BookingError, created bool) int {
	if ok {
		if created {
			return http.StatusCreated
		}
		return http.StatusOK
	}
	if len(errs) == 0 {
		return http.StatusUnprocessableEntity
	}
	switch code := errs[0].Code; {
	case code.NotFound():
		return http.StatusNotFound
	case code.Conflict(), code == model.CodeInvalidStatusTransition:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// writeInfraError reports an infrastructure failure. Lock timeouts and
// serialization failures are safe to retry.
func writeInfraError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if storage.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
		return
	}
	logger.Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeQueryError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, booking.ErrProviderNotFound), errors.Is(err, booking.ErrAppointmentMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrServiceNotOffered), errors.Is(err, booking.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInfraError(w, logger, op, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
