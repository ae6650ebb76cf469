package converter

import (
	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/domain/entity"
)

// DoctorToResponse converts a Doctor entity to DoctorResponse DTO
func DoctorToResponse(doctor *entity.Doctor) *dto.DoctorResponse {
	if doctor == nil {
		return nil
	}

	return &dto.DoctorResponse{
		ID:               doctor.ID,
		UserID:           doctor.UserID,
		Name:             doctor.Name,
		Specialty:        doctor.Specialty,
		IsAvailableToday: doctor.IsAvailableToday,
	}
}

// DoctorsToListResponse converts a slice of Doctor entities to a list DTO
func DoctorsToListResponse(doctors []entity.Doctor) *dto.DoctorListResponse {
	responses := make([]dto.DoctorResponse, len(doctors))
	for i := range doctors {
		responses[i] = *DoctorToResponse(&doctors[i])
	}
	return &dto.DoctorListResponse{
		Doctors: responses,
		Total:   len(responses),
	}
}

// WorkingHoursToResponse converts a doctor's working hours to the schedule DTO
func WorkingHoursToResponse(doctorID int, hours []entity.WorkingHours) *dto.DoctorWorkingHoursResponse {
	entries := make([]dto.WorkingHoursResponse, len(hours))
	for i, wh := range hours {
		entries[i] = dto.WorkingHoursResponse{
			DayOfWeek: int(wh.DayOfWeek),
			DayName:   wh.DayOfWeek.String(),
			StartTime: wh.StartTime.String(),
			EndTime:   wh.EndTime.String(),
		}
	}
	return &dto.DoctorWorkingHoursResponse{
		DoctorID:     doctorID,
		WorkingHours: entries,
	}
}
