package repository

import (
	"context"

	"clinic-scheduler/internal/domain/entity"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	FindByID(ctx context.Context, id int) (*entity.Doctor, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Doctor, error)
	FindAvailableToday(ctx context.Context) ([]entity.Doctor, error)
	// FindAllWithWorkingHours pages through doctors ordered by id, preloading their hours.
	FindAllWithWorkingHours(ctx context.Context, limit, offset int) ([]entity.Doctor, error)
	FindWorkingHours(ctx context.Context, doctorID int) ([]entity.WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, doctorID int, hours []entity.WorkingHours) error
}
