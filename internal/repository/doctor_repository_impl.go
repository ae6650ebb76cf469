package repository

import (
	"context"
	"errors"

	"clinic-scheduler/internal/domain/entity"
	domainRepo "clinic-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type doctorRepository struct {
	db *gorm.DB
}

func NewDoctorRepository(db *gorm.DB) domainRepo.DoctorRepository {
	return &doctorRepository{db: db}
}

func (r *doctorRepository) FindByID(ctx context.Context, id int) (*entity.Doctor, error) {
	var doctor entity.Doctor
	err := conn(ctx, r.db).Where("id = ?", id).First(&doctor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doctor, nil
}

func (r *doctorRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Doctor, error) {
	var doctor entity.Doctor
	err := conn(ctx, r.db).Where("user_id = ?", userID).First(&doctor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doctor, nil
}

func (r *doctorRepository) FindAvailableToday(ctx context.Context) ([]entity.Doctor, error) {
	var doctors []entity.Doctor
	err := conn(ctx, r.db).
		Where("is_available_today = ?", true).
		Order("name ASC").
		Find(&doctors).Error
	if err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *doctorRepository) FindAllWithWorkingHours(ctx context.Context, limit, offset int) ([]entity.Doctor, error) {
	var doctors []entity.Doctor
	err := conn(ctx, r.db).
		Preload("WorkingHours", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_of_week ASC")
		}).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&doctors).Error
	if err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *doctorRepository) FindWorkingHours(ctx context.Context, doctorID int) ([]entity.WorkingHours, error) {
	var hours []entity.WorkingHours
	err := conn(ctx, r.db).
		Where("doctor_id = ?", doctorID).
		Order("day_of_week ASC").
		Find(&hours).Error
	if err != nil {
		return nil, err
	}
	return hours, nil
}

// UpsertWorkingHours inserts the given days and overwrites the window of days that
// already have an entry. Days not mentioned are left as they are.
func (r *doctorRepository) UpsertWorkingHours(ctx context.Context, doctorID int, hours []entity.WorkingHours) error {
	if len(hours) == 0 {
		return nil
	}

	rows := make([]entity.WorkingHours, len(hours))
	for i, wh := range hours {
		rows[i] = entity.WorkingHours{
			DoctorID:  doctorID,
			DayOfWeek: wh.DayOfWeek,
			StartTime: wh.StartTime,
			EndTime:   wh.EndTime,
		}
	}

	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doctor_id"}, {Name: "day_of_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time"}),
	}).Create(&rows).Error
	return translateError(err)
}
