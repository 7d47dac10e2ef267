package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// errorStatus maps a service error onto an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, appointment.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found"
	case errors.Is(err, appointment.ErrPhysicianNotFound):
		return http.StatusNotFound, "physician_not_found"
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found"
	case errors.Is(err, appointment.ErrNationalIDTaken):
		return http.StatusConflict, "national_id_taken"
	case errors.Is(err, appointment.ErrLicenseTaken):
		return http.StatusConflict, "license_taken"
	case errors.Is(err, appointment.ErrBlockedDate):
		return http.StatusUnprocessableEntity, "blocked_date"
	case errors.Is(err, appointment.ErrNotWorkingDay):
		return http.StatusUnprocessableEntity, "not_working_day"
	case errors.Is(err, appointment.ErrOutsideWorkingHours):
		return http.StatusUnprocessableEntity, "outside_working_hours"
	case errors.Is(err, appointment.ErrConflict):
		return http.StatusConflict, "appointment_conflict"
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		return http.StatusConflict, "invalid_status_transition"
	case errors.Is(err, appointment.ErrScheduleBusy):
		return http.StatusConflict, "schedule_busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

// bookingOutcome labels the bookings_total counter.
func bookingOutcome(err error) string {
	if err == nil {
		return "booked"
	}
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, appointment.ErrNotFound):
		return "not_found"
	case errors.Is(err, appointment.ErrRuleViolation):
		return "rule_violation"
	case errors.Is(err, appointment.ErrConflict):
		return "conflict"
	case errors.Is(err, appointment.ErrScheduleBusy):
		return "busy"
	default:
		return "error"
	}
}
