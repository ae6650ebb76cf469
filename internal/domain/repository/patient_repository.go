package repository

import (
	"context"

	"clinic-scheduler/internal/domain/entity"

	"github.com/google/uuid"
)

type PatientRepository interface {
	FindByID(ctx context.Context, id int) (*entity.Patient, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Patient, error)
}
