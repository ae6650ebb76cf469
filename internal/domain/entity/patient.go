package entity

import (
	"time"

	"github.com/google/uuid"
)

// Patient represents the identity of a patient who can hold appointments
type Patient struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Patient) TableName() string {
	return "patients"
}
