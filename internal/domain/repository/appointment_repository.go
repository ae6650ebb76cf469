package repository

import (
	"context"
	"time"

	"clinic-scheduler/internal/domain/entity"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appointment *entity.Appointment) error
	FindByID(ctx context.Context, id int) (*entity.Appointment, error)
	// FindByIDForUpdate row-locks the appointment; use inside Transactor.WithinTransaction.
	FindByIDForUpdate(ctx context.Context, id int) (*entity.Appointment, error)
	Update(ctx context.Context, appointment *entity.Appointment) error
	Delete(ctx context.Context, id int) (int64, error)
	Filter(ctx context.Context, filter *entity.AppointmentFilter) ([]entity.Appointment, error)
	// FindActiveByDoctorAndDate returns the doctor's non-cancelled appointments on date,
	// skipping excludeID when set.
	FindActiveByDoctorAndDate(ctx context.Context, doctorID int, date time.Time, excludeID *int) ([]entity.Appointment, error)
	// LockDoctorDay serialises writers of one doctor's day until the surrounding
	// transaction ends. It must be called inside Transactor.WithinTransaction.
	LockDoctorDay(ctx context.Context, doctorID int, date time.Time) error
}
