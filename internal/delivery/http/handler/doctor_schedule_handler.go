package handler

import (
	"encoding/json"
	"net/http"

	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/usecase"
	"clinic-scheduler/pkg/response"
	"clinic-scheduler/pkg/validator"

	"github.com/sirupsen/logrus"
)

type DoctorScheduleHandler struct {
	scheduleUsecase usecase.DoctorScheduleUsecase
	validator       *validator.CustomValidator
	log             *logrus.Logger
}

func NewDoctorScheduleHandler(scheduleUsecase usecase.DoctorScheduleUsecase, validator *validator.CustomValidator, log *logrus.Logger) *DoctorScheduleHandler {
	return &DoctorScheduleHandler{
		scheduleUsecase: scheduleUsecase,
		validator:       validator,
		log:             log,
	}
}

func (h *DoctorScheduleHandler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
		return
	}

	hours, err := h.scheduleUsecase.GetWorkingHours(r.Context(), doctorID)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get working hours")
		return
	}

	response.Success(w, http.StatusOK, "Working hours retrieved successfully", hours)
}

func (h *DoctorScheduleHandler) UpdateWorkingHours(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
		return
	}

	var req dto.UpdateWorkingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	hours, err := h.scheduleUsecase.UpsertWorkingHours(r.Context(), doctorID, &req)
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to update working hours")
		return
	}

	response.Success(w, http.StatusOK, "Working hours updated successfully", hours)
}

func (h *DoctorScheduleHandler) GetAvailableDoctorsToday(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.scheduleUsecase.GetAvailableDoctorsToday(r.Context())
	if err != nil {
		writeUsecaseError(w, h.log, err, "Failed to get doctors")
		return
	}

	response.Success(w, http.StatusOK, "Doctors retrieved successfully", doctors)
}
