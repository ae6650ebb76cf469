package usecase

import (
	"context"
	"fmt"
	"time"

	"clinic-scheduler/config"
	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"
	"clinic-scheduler/internal/service"
	"clinic-scheduler/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// AvailabilityPolicy controls what happens on weekdays without a working-hours entry.
type AvailabilityPolicy struct {
	FallbackPolicy string
	DefaultStart   entity.TimeOfDay
	DefaultEnd     entity.TimeOfDay
	WeekendDays    []time.Weekday
}

// DefaultAvailabilityPolicy is 09:00-17:00 on weekdays, closed Saturday and Sunday.
func DefaultAvailabilityPolicy() AvailabilityPolicy {
	return AvailabilityPolicy{
		FallbackPolicy: config.FallbackDefaultHours,
		DefaultStart:   entity.MustTimeOfDay("09:00"),
		DefaultEnd:     entity.MustTimeOfDay("17:00"),
		WeekendDays:    []time.Weekday{time.Saturday, time.Sunday},
	}
}

func NewAvailabilityPolicy(cfg config.SchedulingConfig) (AvailabilityPolicy, error) {
	start, err := entity.ParseTimeOfDay(cfg.DefaultStart)
	if err != nil {
		return AvailabilityPolicy{}, fmt.Errorf("default start: %w", err)
	}
	end, err := entity.ParseTimeOfDay(cfg.DefaultEnd)
	if err != nil {
		return AvailabilityPolicy{}, fmt.Errorf("default end: %w", err)
	}
	if end <= start {
		return AvailabilityPolicy{}, fmt.Errorf("default hours %s-%s: %w", start, end, ErrInvalidTimeRange)
	}

	return AvailabilityPolicy{
		FallbackPolicy: cfg.FallbackPolicy,
		DefaultStart:   start,
		DefaultEnd:     end,
		WeekendDays:    cfg.WeekendDays,
	}, nil
}

func (p AvailabilityPolicy) isWeekend(day time.Weekday) bool {
	for _, d := range p.WeekendDays {
		if d == day {
			return true
		}
	}
	return false
}

// Availability is the checker's decision. Reason is empty when Available.
type Availability struct {
	Available bool
	Reason    string
}

func available() Availability            { return Availability{Available: true} }
func rejected(reason string) Availability { return Availability{Reason: reason} }

type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) bool
	// Check never returns an error: lookup faults are logged and reported as lookup_failed.
	Check(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) Availability
	// Evaluate is Check with lookup faults returned instead of folded into a reason.
	Evaluate(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) (Availability, error)
}

type availabilityChecker struct {
	log             *logrus.Logger
	doctorRepo      repository.DoctorRepository
	appointmentRepo repository.AppointmentRepository
	hoursCache      service.HoursCache
	policy          AvailabilityPolicy
	metrics         *metrics.Collector
}

// NewAvailabilityChecker builds the checker. hoursCache and collector may be nil.
func NewAvailabilityChecker(
	log *logrus.Logger,
	doctorRepo repository.DoctorRepository,
	appointmentRepo repository.AppointmentRepository,
	hoursCache service.HoursCache,
	policy AvailabilityPolicy,
	collector *metrics.Collector,
) AvailabilityChecker {
	return &availabilityChecker{
		log:             log,
		doctorRepo:      doctorRepo,
		appointmentRepo: appointmentRepo,
		hoursCache:      hoursCache,
		policy:          policy,
		metrics:         collector,
	}
}

func (c *availabilityChecker) IsAvailable(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) bool {
	return c.Check(ctx, doctorID, date, start, end, excludeAppointmentID).Available
}

func (c *availabilityChecker) Check(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) Availability {
	result, err := c.Evaluate(ctx, doctorID, date, start, end, excludeAppointmentID)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"doctor_id": doctorID,
			"date":      date.Format(entity.DateLayout),
		}).Errorf("Availability lookup failed: %+v", err)
		result = rejected(ReasonLookupFailed)
		c.metrics.ObserveAvailability(false, result.Reason)
	}
	return result
}

func (c *availabilityChecker) Evaluate(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) (Availability, error) {
	fields := logrus.Fields{
		"doctor_id":  doctorID,
		"date":       date.Format(entity.DateLayout),
		"start_time": start.String(),
		"end_time":   end.String(),
	}

	reject := func(reason string) (Availability, error) {
		c.log.WithFields(fields).WithField("reason", reason).Info("Doctor not available for requested slot")
		c.metrics.ObserveAvailability(false, reason)
		return rejected(reason), nil
	}

	doctor, err := c.doctorRepo.FindByID(ctx, doctorID)
	if err != nil {
		return Availability{}, fmt.Errorf("find doctor %d: %w", doctorID, err)
	}
	if doctor == nil {
		return reject(ReasonDoctorNotFound)
	}

	if end <= start {
		return reject(ReasonInvalidTimeRange)
	}

	hours, err := c.workingHours(ctx, doctorID)
	if err != nil {
		return Availability{}, err
	}

	day := date.Weekday()
	if entry, ok := entity.WorkingHoursFor(hours, day); ok {
		if !entry.Contains(start, end) {
			return reject(ReasonOutsideWorkingHours)
		}
	} else {
		switch c.policy.FallbackPolicy {
		case config.FallbackClosed:
			return reject(ReasonNoWorkingHours)
		default:
			if c.policy.isWeekend(day) {
				return reject(ReasonWeekend)
			}
			if start < c.policy.DefaultStart || end > c.policy.DefaultEnd {
				return reject(ReasonOutsideDefaultHours)
			}
		}
	}

	existing, err := c.appointmentRepo.FindActiveByDoctorAndDate(ctx, doctorID, date, excludeAppointmentID)
	if err != nil {
		return Availability{}, fmt.Errorf("find appointments for doctor %d: %w", doctorID, err)
	}
	for i := range existing {
		// Cancelled appointments never block a slot.
		if existing[i].IsCancelled() {
			continue
		}
		if existing[i].OverlapsWith(start, end) {
			fields["conflicting_appointment_id"] = existing[i].ID
			return reject(ReasonConflict)
		}
	}

	c.metrics.ObserveAvailability(true, "")
	return available(), nil
}

// workingHours reads through the cache. The generation is taken before the store
// read so a concurrent update makes the fill a no-op.
func (c *availabilityChecker) workingHours(ctx context.Context, doctorID int) ([]entity.WorkingHours, error) {
	generation := service.NoGeneration
	if c.hoursCache != nil {
		hours, gen, ok := c.hoursCache.Get(ctx, doctorID)
		if ok {
			return hours, nil
		}
		generation = gen
	}

	hours, err := c.doctorRepo.FindWorkingHours(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("find working hours for doctor %d: %w", doctorID, err)
	}

	if c.hoursCache != nil {
		c.hoursCache.Set(ctx, doctorID, generation, hours)
	}
	return hours, nil
}
