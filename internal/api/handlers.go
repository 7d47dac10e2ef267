package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type Handler struct {
	svc     *appointment.Service
	metrics *metrics.Collector
	log     *zap.Logger
}

func NewHandler(svc *appointment.Service, m *metrics.Collector, log *zap.Logger) *Handler {
	return &Handler{svc: svc, metrics: m, log: log}
}

func urlUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	return true
}

func queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	day, err := time.Parse(DateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

// Patients

func (h *Handler) registerPatient(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.svc.RegisterPatient(r.Context(), appointment.NewPatient{
		Name:          req.Name,
		NationalID:    req.NationalID,
		Phone:         req.Phone,
		InsurancePlan: req.InsurancePlan,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.metrics.RegistrationsTotal.WithLabelValues(string(appointment.KindPatient)).Inc()
	writeJSON(w, http.StatusCreated, newPatientResponse(p))
}

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.svc.ListPatients(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]PatientResponse, 0, len(patients))
	for i := range patients {
		resp = append(resp, newPatientResponse(&patients[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_patient_id")
	if !ok {
		return
	}

	p, err := h.svc.GetPatient(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatientResponse(p))
}

func (h *Handler) updatePatientContact(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_patient_id")
	if !ok {
		return
	}
	var req UpdateContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.svc.UpdatePatientContact(r.Context(), id, req.Phone, req.InsurancePlan)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatientResponse(p))
}

func (h *Handler) listPatientAppointments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_patient_id")
	if !ok {
		return
	}

	appts, err := h.svc.ListAppointmentsByPatient(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentList(appts))
}

// Physicians

func (h *Handler) registerPhysician(w http.ResponseWriter, r *http.Request) {
	var req RegisterPhysicianRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.svc.RegisterPhysician(r.Context(), appointment.NewPhysician{
		Name:         req.Name,
		NationalID:   req.NationalID,
		Phone:        req.Phone,
		License:      req.License,
		Specialty:    req.Specialty,
		Availability: req.Availability,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.metrics.RegistrationsTotal.WithLabelValues(string(appointment.KindPhysician)).Inc()
	writeJSON(w, http.StatusCreated, newPhysicianResponse(p))
}

func (h *Handler) listPhysicians(w http.ResponseWriter, r *http.Request) {
	physicians, err := h.svc.ListPhysicians(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]PhysicianResponse, 0, len(physicians))
	for i := range physicians {
		resp = append(resp, newPhysicianResponse(&physicians[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPhysician(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_physician_id")
	if !ok {
		return
	}

	p, err := h.svc.GetPhysician(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPhysicianResponse(p))
}

func (h *Handler) listPhysicianAppointments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_physician_id")
	if !ok {
		return
	}
	day, ok := queryDate(w, r)
	if !ok {
		return
	}

	appts, err := h.svc.ListAppointmentsByPhysicianOnDate(r.Context(), id, day)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentList(appts))
}

func (h *Handler) freeSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_physician_id")
	if !ok {
		return
	}
	day, ok := queryDate(w, r)
	if !ok {
		return
	}
	duration := 30
	if raw := r.URL.Query().Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be an integer number of minutes")
			return
		}
		duration = n
	}

	slots, err := h.svc.FreeSlots(r.Context(), id, day, duration)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := FreeSlotsResponse{
		PhysicianID:     id,
		Date:            day.Format(DateLayout),
		DurationMinutes: duration,
		Slots:           make([]string, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.Format(WallClockLayout))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, newMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Appointments

func (h *Handler) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	physicianID, err := uuid.Parse(req.PhysicianID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_physician_id", "physician_id must be a valid UUID")
		return
	}

	start, ok := ParseWallClock(req.Start)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must look like 2006-01-02T15:04")
		return
	}

	appt, err := h.svc.Book(r.Context(), patientID, physicianID, start, req.DurationMinutes)
	h.metrics.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.Cancel, appointment.StatusCancelled)
}

func (h *Handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.Complete, appointment.StatusCompleted)
}

type statusChange func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, apply statusChange, to appointment.AppointmentStatus) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := apply(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.metrics.StatusChangesTotal.WithLabelValues(string(to)).Inc()
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

func (h *Handler) appointmentEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}

	events, err := h.svc.AppointmentHistory(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, EventResponse{
			ID:        ev.ID,
			EventType: ev.EventType,
			Status:    string(ev.Status),
			CreatedAt: ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
