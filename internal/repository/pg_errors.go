package repository

import (
	"errors"
	"fmt"

	domainRepo "clinic-scheduler/internal/domain/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgExclusionViolation  = "23P01"
)

// translateError maps constraint violations onto domain repository errors.
// Other errors pass through untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgExclusionViolation:
		return fmt.Errorf("%w: %s", domainRepo.ErrSlotTaken, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", domainRepo.ErrReferenceNotFound, pgErr.ConstraintName)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", domainRepo.ErrDuplicate, pgErr.ConstraintName)
	default:
		return err
	}
}
