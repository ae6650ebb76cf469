package entity

import "time"

// AppointmentFilter is a domain-level filter for querying appointments.
// Nil fields are ignored; set fields are combined with AND.
type AppointmentFilter struct {
	Date      *time.Time
	DoctorID  *int
	PatientID *int
	Status    *AppointmentStatus
}
