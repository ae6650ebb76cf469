package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clinic-scheduler/internal/converter"
	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"
	"clinic-scheduler/internal/service"

	"github.com/sirupsen/logrus"
)

type DoctorScheduleUsecase interface {
	GetWorkingHours(ctx context.Context, doctorID int) (*dto.DoctorWorkingHoursResponse, error)
	UpsertWorkingHours(ctx context.Context, doctorID int, req *dto.UpdateWorkingHoursRequest) (*dto.DoctorWorkingHoursResponse, error)
	GetAvailableDoctorsToday(ctx context.Context) (*dto.DoctorListResponse, error)
}

type doctorScheduleUsecase struct {
	log        *logrus.Logger
	doctorRepo repository.DoctorRepository
	hoursCache service.HoursCache
	policy     *service.AccessPolicy
}

// NewDoctorScheduleUsecase builds the schedule usecase. hoursCache may be nil.
func NewDoctorScheduleUsecase(
	log *logrus.Logger,
	doctorRepo repository.DoctorRepository,
	hoursCache service.HoursCache,
	policy *service.AccessPolicy,
) DoctorScheduleUsecase {
	return &doctorScheduleUsecase{
		log:        log,
		doctorRepo: doctorRepo,
		hoursCache: hoursCache,
		policy:     policy,
	}
}

func (u *doctorScheduleUsecase) GetWorkingHours(ctx context.Context, doctorID int) (*dto.DoctorWorkingHoursResponse, error) {
	if err := u.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	hours, err := u.doctorRepo.FindWorkingHours(ctx, doctorID)
	if err != nil {
		u.log.Warnf("Failed to find working hours for doctor %d: %+v", doctorID, err)
		return nil, err
	}

	sortByWeekday(hours)
	return converter.WorkingHoursToResponse(doctorID, hours), nil
}

// UpsertWorkingHours replaces the entries for the weekdays in the request.
// Weekdays not mentioned keep their current hours.
func (u *doctorScheduleUsecase) UpsertWorkingHours(ctx context.Context, doctorID int, req *dto.UpdateWorkingHoursRequest) (*dto.DoctorWorkingHoursResponse, error) {
	p, ok := service.PrincipalFromContext(ctx)
	if !ok {
		return nil, service.ErrForbidden
	}
	if err := u.policy.CanManageWorkingHours(p, doctorID).Err(); err != nil {
		return nil, err
	}

	hours, err := parseWorkingHours(doctorID, req.WorkingHours)
	if err != nil {
		return nil, err
	}

	if err := u.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	if err := u.doctorRepo.UpsertWorkingHours(ctx, doctorID, hours); err != nil {
		u.log.Warnf("Failed to upsert working hours for doctor %d: %+v", doctorID, err)
		return nil, err
	}

	if u.hoursCache != nil {
		u.hoursCache.Invalidate(ctx, doctorID)
	}

	u.log.Infof("Working hours updated: doctor=%d, entries=%d", doctorID, len(hours))
	return u.GetWorkingHours(ctx, doctorID)
}

func (u *doctorScheduleUsecase) GetAvailableDoctorsToday(ctx context.Context) (*dto.DoctorListResponse, error) {
	doctors, err := u.doctorRepo.FindAvailableToday(ctx)
	if err != nil {
		u.log.Warnf("Failed to find doctors available today: %+v", err)
		return nil, err
	}
	return converter.DoctorsToListResponse(doctors), nil
}

func (u *doctorScheduleUsecase) ensureDoctor(ctx context.Context, doctorID int) error {
	doctor, err := u.doctorRepo.FindByID(ctx, doctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %d: %+v", doctorID, err)
		return err
	}
	if doctor == nil {
		return ErrDoctorNotFound
	}
	return nil
}

func parseWorkingHours(doctorID int, entries []dto.WorkingHoursEntryRequest) ([]entity.WorkingHours, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: at least one entry is required", ErrInvalidWorkingHours)
	}

	seen := make(map[time.Weekday]bool, len(entries))
	hours := make([]entity.WorkingHours, 0, len(entries))
	for _, e := range entries {
		if e.DayOfWeek == nil || *e.DayOfWeek < 0 || *e.DayOfWeek > 6 {
			return nil, fmt.Errorf("%w: dayOfWeek must be between 0 and 6", ErrInvalidWorkingHours)
		}
		day := time.Weekday(*e.DayOfWeek)
		if seen[day] {
			return nil, fmt.Errorf("%w: %s listed more than once", ErrInvalidWorkingHours, day)
		}
		seen[day] = true

		start, err := entity.ParseTimeOfDay(e.StartTime)
		if err != nil {
			return nil, ErrInvalidTimeFormat
		}
		end, err := entity.ParseTimeOfDay(e.EndTime)
		if err != nil {
			return nil, ErrInvalidTimeFormat
		}
		if end <= start {
			return nil, fmt.Errorf("%w: %s ends before it starts", ErrInvalidWorkingHours, day)
		}

		hours = append(hours, entity.WorkingHours{
			DoctorID:  doctorID,
			DayOfWeek: day,
			StartTime: start,
			EndTime:   end,
		})
	}
	return hours, nil
}

func sortByWeekday(hours []entity.WorkingHours) {
	sort.Slice(hours, func(i, j int) bool { return hours[i].DayOfWeek < hours[j].DayOfWeek })
}
