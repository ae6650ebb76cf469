package handler

import (
	"errors"
	"net/http"
	"strings"

	"clinic-scheduler/internal/service"
	"clinic-scheduler/internal/usecase"
	"clinic-scheduler/pkg/response"

	"github.com/sirupsen/logrus"
)

// writeUsecaseError maps usecase error families onto HTTP responses. Storage and
// other unexpected faults are logged and hidden behind a generic 500.
func writeUsecaseError(w http.ResponseWriter, log *logrus.Logger, err error, fallback string) {
	var conflict *usecase.SchedulingConflictError

	switch {
	case errors.As(err, &conflict):
		response.Error(w, http.StatusBadRequest, "Doctor is not available for the requested slot",
			map[string]string{"reason": conflict.Reason})
	case errors.Is(err, usecase.ErrInvalidInput):
		response.BadRequest(w, inputMessage(err))
	case errors.Is(err, usecase.ErrNotFound):
		response.NotFound(w, capitalize(err.Error()))
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, "You don't have permission to access this resource")
	case errors.Is(err, service.ErrLockTimeout):
		response.ServiceUnavailable(w, "Slot is busy, please retry")
	default:
		log.Errorf("%s: %+v", fallback, err)
		response.InternalServerError(w, fallback)
	}
}

// inputMessage strips the family prefix from an InvalidInput error.
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), usecase.ErrInvalidInput.Error()+": ")
	return capitalize(msg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
