package entity

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is the scheduling view of a doctor; profile data lives in the clinic directory
type Doctor struct {
	ID               int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Name             string    `gorm:"type:varchar(150);not null" json:"name"`
	Specialty        string    `gorm:"type:varchar(100)" json:"specialty,omitempty"`
	IsAvailableToday bool      `gorm:"not null;default:false" json:"is_available_today"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	WorkingHours []WorkingHours `gorm:"foreignKey:DoctorID" json:"working_hours,omitempty"`
}

func (Doctor) TableName() string {
	return "doctors"
}

// WorkingHours is a doctor's recurring window for one weekday.
// DayOfWeek follows time.Weekday: 0 is Sunday.
type WorkingHours struct {
	ID        int          `gorm:"primaryKey;autoIncrement" json:"id"`
	DoctorID  int          `gorm:"not null;uniqueIndex:idx_working_hours_doctor_day" json:"doctor_id"`
	DayOfWeek time.Weekday `gorm:"not null;uniqueIndex:idx_working_hours_doctor_day" json:"day_of_week"`
	StartTime TimeOfDay    `gorm:"type:time;not null" json:"start_time"`
	EndTime   TimeOfDay    `gorm:"type:time;not null" json:"end_time"`
}

func (WorkingHours) TableName() string {
	return "working_hours"
}

// Contains reports whether [start, end) lies inside the window.
func (w WorkingHours) Contains(start, end TimeOfDay) bool {
	return start >= w.StartTime && end <= w.EndTime
}

// WorkingHoursFor returns the entry for the given weekday, if any.
func WorkingHoursFor(hours []WorkingHours, day time.Weekday) (WorkingHours, bool) {
	for _, wh := range hours {
		if wh.DayOfWeek == day {
			return wh, true
		}
	}
	return WorkingHours{}, false
}
