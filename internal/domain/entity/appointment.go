package entity

import (
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus represents the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "Scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "Confirmed"
	AppointmentStatusCompleted AppointmentStatus = "Completed"
	AppointmentStatusCancelled AppointmentStatus = "Cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "NoShow"
)

// MaxNotesLength bounds the stored notes of an appointment, in characters.
const MaxNotesLength = 500

var allStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
	AppointmentStatusNoShow,
}

// ParseAppointmentStatus matches a status name case-insensitively.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	for _, status := range allStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// allowedTransitions lists the targets reachable from each status.
// Same-status updates are always permitted and not listed here.
var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled: {
		AppointmentStatusConfirmed,
		AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
}

// CanTransitionTo reports whether the status may move to next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no other status is reachable.
func (s AppointmentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Appointment is a booked slot between a patient and a doctor on one date
type Appointment struct {
	ID              int               `gorm:"primaryKey;autoIncrement" json:"id"`
	DoctorID        int               `gorm:"not null;index" json:"doctor_id"`
	PatientID       int               `gorm:"not null;index" json:"patient_id"`
	AppointmentDate time.Time         `gorm:"type:date;not null;index" json:"appointment_date"`
	StartTime       TimeOfDay         `gorm:"type:time;not null" json:"start_time"`
	EndTime         TimeOfDay         `gorm:"type:time;not null" json:"end_time"`
	Status          AppointmentStatus `gorm:"type:varchar(20);not null;default:'Scheduled';index" json:"status"`
	Notes           string            `gorm:"type:varchar(500)" json:"notes,omitempty"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Doctor  *Doctor  `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// IsCancelled checks if the appointment no longer blocks its slot
func (a *Appointment) IsCancelled() bool {
	return a.Status == AppointmentStatusCancelled
}

// OverlapsWith reports whether the appointment's slot intersects [start, end).
func (a *Appointment) OverlapsWith(start, end TimeOfDay) bool {
	return Overlaps(start, end, a.StartTime, a.EndTime)
}

// AppendNotes joins extra onto the existing notes with a newline.
func (a *Appointment) AppendNotes(extra string) {
	if extra == "" {
		return
	}
	if a.Notes == "" {
		a.Notes = extra
		return
	}
	a.Notes = a.Notes + "\n" + extra
}
