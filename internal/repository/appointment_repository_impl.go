package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-scheduler/internal/domain/entity"
	domainRepo "clinic-scheduler/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type appointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) domainRepo.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *entity.Appointment) error {
	err := conn(ctx, r.db).Omit("Doctor", "Patient").Create(appointment).Error
	return translateError(err)
}

func (r *appointmentRepository) FindByID(ctx context.Context, id int) (*entity.Appointment, error) {
	var appointment entity.Appointment
	err := conn(ctx, r.db).Where("id = ?", id).First(&appointment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

func (r *appointmentRepository) FindByIDForUpdate(ctx context.Context, id int) (*entity.Appointment, error) {
	var appointment entity.Appointment
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&appointment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *entity.Appointment) error {
	err := conn(ctx, r.db).Omit("Doctor", "Patient").Save(appointment).Error
	return translateError(err)
}

func (r *appointmentRepository) Delete(ctx context.Context, id int) (int64, error) {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&entity.Appointment{})
	return result.RowsAffected, result.Error
}

func (r *appointmentRepository) Filter(ctx context.Context, filter *entity.AppointmentFilter) ([]entity.Appointment, error) {
	var appointments []entity.Appointment
	query := conn(ctx, r.db)

	if filter != nil {
		if filter.Date != nil {
			query = query.Where("appointment_date = ?", filter.Date.Format(entity.DateLayout))
		}
		if filter.DoctorID != nil {
			query = query.Where("doctor_id = ?", *filter.DoctorID)
		}
		if filter.PatientID != nil {
			query = query.Where("patient_id = ?", *filter.PatientID)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
	}

	err := query.Order("appointment_date ASC, start_time ASC, id ASC").Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *appointmentRepository) FindActiveByDoctorAndDate(ctx context.Context, doctorID int, date time.Time, excludeID *int) ([]entity.Appointment, error) {
	var appointments []entity.Appointment
	query := conn(ctx, r.db).
		Where("doctor_id = ? AND appointment_date = ? AND status <> ?",
			doctorID, date.Format(entity.DateLayout), entity.AppointmentStatusCancelled)

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	if err := query.Order("start_time ASC").Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

// LockDoctorDay takes a transaction-scoped advisory lock keyed by (doctor, day).
func (r *appointmentRepository) LockDoctorDay(ctx context.Context, doctorID int, date time.Time) error {
	if !inTransaction(ctx) {
		return errors.New("LockDoctorDay called outside a transaction")
	}

	dayKey := int32(date.Year()*10000 + int(date.Month())*100 + date.Day())
	err := conn(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(?::int4, ?::int4)", int32(doctorID), dayKey).Error
	if err != nil {
		return fmt.Errorf("advisory lock doctor %d on %s: %w", doctorID, date.Format(entity.DateLayout), err)
	}
	return nil
}
