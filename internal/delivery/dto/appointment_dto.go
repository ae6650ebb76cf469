package dto

import "time"

// Request DTOs

type CreateAppointmentRequest struct {
	PatientID       int    `json:"patientId" validate:"required,gt=0"`
	DoctorID        int    `json:"doctorId" validate:"required,gt=0"`
	AppointmentDate string `json:"appointmentDate" validate:"required,isodate"` // Format: YYYY-MM-DD
	StartTime       string `json:"startTime" validate:"required,timeofday"`     // Format: HH:MM
	EndTime         string `json:"endTime" validate:"required,timeofday"`       // Format: HH:MM
	Notes           string `json:"notes" validate:"max=500"`
}

type RescheduleAppointmentRequest struct {
	AppointmentDate string  `json:"appointmentDate" validate:"required,isodate"`
	StartTime       string  `json:"startTime" validate:"required,timeofday"`
	EndTime         string  `json:"endTime" validate:"required,timeofday"`
	Notes           *string `json:"notes" validate:"omitempty,max=500"`
}

type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=500"`
}

// AppointmentFilterRequest is bound from query parameters; empty fields are ignored.
type AppointmentFilterRequest struct {
	Date      string `validate:"omitempty,isodate"`
	DoctorID  *int   `validate:"omitempty,gt=0"`
	PatientID *int   `validate:"omitempty,gt=0"`
	Status    string
}

type AvailabilityRequest struct {
	DoctorID  int    `json:"doctorId" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,isodate"`
	StartTime string `json:"startTime" validate:"required,timeofday"`
	EndTime   string `json:"endTime" validate:"required,timeofday"`
}

// Response DTOs

type AppointmentResponse struct {
	ID              int       `json:"id"`
	DoctorID        int       `json:"doctorId"`
	PatientID       int       `json:"patientId"`
	AppointmentDate string    `json:"appointmentDate"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
}

type AvailabilityResponse struct {
	IsAvailable bool   `json:"isAvailable"`
	Reason      string `json:"reason,omitempty"`
	DoctorID    int    `json:"doctorId"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}
