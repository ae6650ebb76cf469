package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/usecase"
	"clinic-scheduler/pkg/response"
	"clinic-scheduler/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type AppointmentHandler struct {
	appointmentUsecase usecase.AppointmentUsecase
	validator          *validator.CustomValidator
	log                *logrus.Logger
}

func NewAppointmentHandler(appointmentUsecase usecase.AppointmentUsecase, validator *validator.CustomValidator, log *logrus.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		appointmentUsecase: appointmentUsecase,
		validator:          validator,
		log:                log,
	}
}

func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *AppointmentHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.CreateAppointment(r.Context(), &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to create appointment")
		return
	}

	response.Success(w, http.StatusCreated, "Appointment created successfully", appointment)
}

func (h *AppointmentHandler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid appointment ID", nil)
		return
	}

	var req dto.RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.RescheduleAppointment(r.Context(), appointmentID, &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to reschedule appointment")
		return
	}

	response.Success(w, http.StatusOK, "Appointment rescheduled successfully", appointment)
}

func (h *AppointmentHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid appointment ID", nil)
		return
	}

	var req dto.UpdateAppointmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	appointment, err := h.appointmentUsecase.UpdateAppointmentStatus(r.Context(), appointmentID, &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to update appointment status")
		return
	}

	response.Success(w, http.StatusOK, "Appointment status updated successfully", appointment)
}

func (h *AppointmentHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid appointment ID", nil)
		return
	}

	if err := h.appointmentUsecase.DeleteAppointment(r.Context(), appointmentID); err != nil {
		writeUsecaseError(w, h.log, err, "Failed to delete appointment")
		return
	}

	response.NoContent(w)
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid appointment ID", nil)
		return
	}

	appointment, err := h.appointmentUsecase.GetAppointment(r.Context(), appointmentID)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get appointment")
		return
	}

	response.Success(w, http.StatusOK, "Appointment retrieved successfully", appointment)
}

// FilterAppointments handles GET /appointments?date=&doctorId=&patientId=&status=
func (h *AppointmentHandler) FilterAppointments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := dto.AppointmentFilterRequest{
		Date:   query.Get("date"),
		Status: query.Get("status"),
	}

	var ok bool
	if req.DoctorID, ok = optionalIntParam(query.Get("doctorId")); !ok {
		response.Error(w, http.StatusBadRequest, "Invalid doctorId", nil)
		return
	}
	if req.PatientID, ok = optionalIntParam(query.Get("patientId")); !ok {
		response.Error(w, http.StatusBadRequest, "Invalid patientId", nil)
		return
	}

	appointments, err := h.appointmentUsecase.FilterAppointments(r.Context(), &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get appointments")
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func optionalIntParam(raw string) (*int, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return nil, false
	}
	return &v, true
}

func (h *AppointmentHandler) GetAppointmentsByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(r, "patientId")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid patient ID", nil)
		return
	}

	appointments, err := h.appointmentUsecase.GetAppointmentsByPatient(r.Context(), patientID)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get appointments")
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func (h *AppointmentHandler) GetAppointmentsByDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "doctorId")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
		return
	}

	appointments, err := h.appointmentUsecase.GetAppointmentsByDoctor(r.Context(), doctorID)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get appointments")
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func (h *AppointmentHandler) GetMyAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.appointmentUsecase.GetMyAppointments(r.Context())
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get appointments")
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

// CheckAvailability handles GET /appointments/availability?doctorId=&date=&startTime=&endTime=
func (h *AppointmentHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	doctorID, err := strconv.Atoi(query.Get("doctorId"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid doctorId", nil)
		return
	}

	req := dto.AvailabilityRequest{
		DoctorID:  doctorID,
		Date:      query.Get("date"),
		StartTime: query.Get("startTime"),
		EndTime:   query.Get("endTime"),
	}
	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	availability, err := h.appointmentUsecase.CheckAvailability(r.Context(), &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to check availability")
		return
	}

	response.Success(w, http.StatusOK, "Availability checked successfully", availability)
}
