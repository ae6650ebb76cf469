package dto

import "github.com/google/uuid"

// Request DTOs

type WorkingHoursEntryRequest struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,gte=0,lte=6"` // 0 = Sunday
	StartTime string `json:"startTime" validate:"required,timeofday"`
	EndTime   string `json:"endTime" validate:"required,timeofday"`
}

type UpdateWorkingHoursRequest struct {
	WorkingHours []WorkingHoursEntryRequest `json:"workingHours" validate:"required,min=1,max=7,dive"`
}

// Response DTOs

type WorkingHoursResponse struct {
	DayOfWeek int    `json:"dayOfWeek"`
	DayName   string `json:"dayName"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type DoctorWorkingHoursResponse struct {
	DoctorID     int                    `json:"doctorId"`
	WorkingHours []WorkingHoursResponse `json:"workingHours"`
}

type DoctorResponse struct {
	ID               int       `json:"id"`
	UserID           uuid.UUID `json:"userId"`
	Name             string    `json:"name"`
	Specialty        string    `json:"specialty,omitempty"`
	IsAvailableToday bool      `json:"isAvailableToday"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
	Total   int              `json:"total"`
}
