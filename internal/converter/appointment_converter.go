package converter

import (
	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/domain/entity"
)

// AppointmentToResponse converts an Appointment entity to AppointmentResponse DTO
func AppointmentToResponse(appointment *entity.Appointment) *dto.AppointmentResponse {
	if appointment == nil {
		return nil
	}

	return &dto.AppointmentResponse{
		ID:              appointment.ID,
		DoctorID:        appointment.DoctorID,
		PatientID:       appointment.PatientID,
		AppointmentDate: appointment.AppointmentDate.Format(entity.DateLayout),
		StartTime:       appointment.StartTime.String(),
		EndTime:         appointment.EndTime.String(),
		Status:          string(appointment.Status),
		Notes:           appointment.Notes,
		CreatedAt:       appointment.CreatedAt,
		UpdatedAt:       appointment.UpdatedAt,
	}
}

// AppointmentsToListResponse converts a slice of Appointment entities to a list DTO
func AppointmentsToListResponse(appointments []entity.Appointment) *dto.AppointmentListResponse {
	responses := make([]dto.AppointmentResponse, len(appointments))
	for i := range appointments {
		responses[i] = *AppointmentToResponse(&appointments[i])
	}
	return &dto.AppointmentListResponse{
		Appointments: responses,
		Total:        len(responses),
	}
}
