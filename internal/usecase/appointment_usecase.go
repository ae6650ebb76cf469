package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"clinic-scheduler/internal/converter"
	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"
	"clinic-scheduler/internal/service"
	"clinic-scheduler/pkg/metrics"

	"github.com/sirupsen/logrus"
)

type AppointmentUsecase interface {
	CreateAppointment(ctx context.Context, req *dto.CreateAppointmentRequest) (*dto.AppointmentResponse, error)
	RescheduleAppointment(ctx context.Context, appointmentID int, req *dto.RescheduleAppointmentRequest) (*dto.AppointmentResponse, error)
	UpdateAppointmentStatus(ctx context.Context, appointmentID int, req *dto.UpdateAppointmentStatusRequest) (*dto.AppointmentResponse, error)
	DeleteAppointment(ctx context.Context, appointmentID int) error
	GetAppointment(ctx context.Context, appointmentID int) (*dto.AppointmentResponse, error)
	FilterAppointments(ctx context.Context, req *dto.AppointmentFilterRequest) (*dto.AppointmentListResponse, error)
	GetAllAppointments(ctx context.Context) (*dto.AppointmentListResponse, error)
	GetAppointmentsByPatient(ctx context.Context, patientID int) (*dto.AppointmentListResponse, error)
	GetAppointmentsByDoctor(ctx context.Context, doctorID int) (*dto.AppointmentListResponse, error)
	GetMyAppointments(ctx context.Context) (*dto.AppointmentListResponse, error)
	CheckAvailability(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error)
}

type appointmentUsecase struct {
	log             *logrus.Logger
	transactor      repository.Transactor
	appointmentRepo repository.AppointmentRepository
	doctorRepo      repository.DoctorRepository
	patientRepo     repository.PatientRepository
	checker         AvailabilityChecker
	locker          service.SlotLocker
	policy          *service.AccessPolicy
	metrics         *metrics.Collector
}

func NewAppointmentUsecase(
	log *logrus.Logger,
	transactor repository.Transactor,
	appointmentRepo repository.AppointmentRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	checker AvailabilityChecker,
	locker service.SlotLocker,
	policy *service.AccessPolicy,
	collector *metrics.Collector,
) AppointmentUsecase {
	return &appointmentUsecase{
		log:             log,
		transactor:      transactor,
		appointmentRepo: appointmentRepo,
		doctorRepo:      doctorRepo,
		patientRepo:     patientRepo,
		checker:         checker,
		locker:          locker,
		policy:          policy,
		metrics:         collector,
	}
}

// slot is a parsed and range-checked (date, start, end) triple.
type slot struct {
	date  time.Time
	start entity.TimeOfDay
	end   entity.TimeOfDay
}

func parseSlot(date, start, end string) (slot, error) {
	d, err := entity.ParseDate(date)
	if err != nil {
		return slot{}, ErrInvalidDateFormat
	}
	s, err := entity.ParseTimeOfDay(start)
	if err != nil {
		return slot{}, ErrInvalidTimeFormat
	}
	e, err := entity.ParseTimeOfDay(end)
	if err != nil {
		return slot{}, ErrInvalidTimeFormat
	}
	if e <= s {
		return slot{}, ErrInvalidTimeRange
	}
	return slot{date: d, start: s, end: e}, nil
}

func checkNotesLength(notes string) error {
	if utf8.RuneCountInString(notes) > entity.MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

func (u *appointmentUsecase) principal(ctx context.Context) (*service.Principal, error) {
	p, ok := service.PrincipalFromContext(ctx)
	if !ok {
		return nil, service.ErrForbidden
	}
	return p, nil
}

// withSlotLock runs fn while holding the (doctor, date) slot lock and a transaction
// that has taken the matching advisory lock.
func (u *appointmentUsecase) withSlotLock(ctx context.Context, doctorID int, date time.Time, fn func(ctx context.Context) error) error {
	waitStart := time.Now()
	unlock, err := u.locker.Lock(ctx, doctorID, date)
	u.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		u.log.Warnf("Failed to acquire slot lock for doctor %d on %s: %+v", doctorID, date.Format(entity.DateLayout), err)
		return err
	}
	defer unlock()

	return u.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := u.appointmentRepo.LockDoctorDay(txCtx, doctorID, date); err != nil {
			return err
		}
		return fn(txCtx)
	})
}

// ensureAvailable turns a negative checker decision into the caller-facing error.
func (u *appointmentUsecase) ensureAvailable(ctx context.Context, doctorID int, s slot, excludeID *int) error {
	result, err := u.checker.Evaluate(ctx, doctorID, s.date, s.start, s.end, excludeID)
	if err != nil {
		return err
	}
	if result.Available {
		return nil
	}
	if result.Reason == ReasonDoctorNotFound {
		return ErrDoctorNotFound
	}
	return newConflict(result.Reason)
}

// translateWriteError maps store-level constraint violations onto usecase errors.
func translateWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrSlotTaken):
		return newConflict(ReasonConflict)
	case errors.Is(err, repository.ErrReferenceNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// CreateAppointment books a new slot.
//
// Flow:
// 1. Parse and range-check the slot
// 2. Authorise and verify the patient exists
// 3. Under the (doctor, date) lock: check availability, insert with status Scheduled
func (u *appointmentUsecase) CreateAppointment(ctx context.Context, req *dto.CreateAppointmentRequest) (resp *dto.AppointmentResponse, err error) {
	defer func() { u.metrics.ObserveAppointment("create", outcomeOf(err)) }()

	s, err := parseSlot(req.AppointmentDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := checkNotesLength(req.Notes); err != nil {
		return nil, err
	}

	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.policy.CanCreate(p, req.PatientID, req.DoctorID).Err(); err != nil {
		return nil, err
	}

	patient, err := u.patientRepo.FindByID(ctx, req.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %d: %+v", req.PatientID, err)
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}

	appointment := &entity.Appointment{
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		AppointmentDate: s.date,
		StartTime:       s.start,
		EndTime:         s.end,
		Status:          entity.AppointmentStatusScheduled,
		Notes:           req.Notes,
	}

	err = u.withSlotLock(ctx, req.DoctorID, s.date, func(txCtx context.Context) error {
		if err := u.ensureAvailable(txCtx, req.DoctorID, s, nil); err != nil {
			return err
		}
		return u.appointmentRepo.Create(txCtx, appointment)
	})
	if err != nil {
		err = translateWriteError(err)
		if outcomeOf(err) == "error" {
			u.log.Warnf("Failed to create appointment: %+v", err)
		}
		return nil, err
	}

	u.log.Infof("Appointment created: id=%d, doctor=%d, patient=%d, date=%s, %s-%s",
		appointment.ID, appointment.DoctorID, appointment.PatientID, s.date.Format(entity.DateLayout), s.start, s.end)
	return converter.AppointmentToResponse(appointment), nil
}

// RescheduleAppointment moves an appointment to a new slot. Availability is only
// re-checked when the date or times change, excluding the appointment itself.
func (u *appointmentUsecase) RescheduleAppointment(ctx context.Context, appointmentID int, req *dto.RescheduleAppointmentRequest) (resp *dto.AppointmentResponse, err error) {
	defer func() { u.metrics.ObserveAppointment("reschedule", outcomeOf(err)) }()

	s, err := parseSlot(req.AppointmentDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if req.Notes != nil {
		if err := checkNotesLength(*req.Notes); err != nil {
			return nil, err
		}
	}

	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment %d: %+v", appointmentID, err)
		return nil, err
	}
	if existing == nil {
		return nil, ErrAppointmentNotFound
	}
	if err := u.policy.CanReschedule(p, existing).Err(); err != nil {
		return nil, err
	}

	var updated *entity.Appointment
	err = u.withSlotLock(ctx, existing.DoctorID, s.date, func(txCtx context.Context) error {
		appointment, err := u.appointmentRepo.FindByIDForUpdate(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}

		changed := !sameDay(appointment.AppointmentDate, s.date) ||
			appointment.StartTime != s.start ||
			appointment.EndTime != s.end
		if changed {
			if err := u.ensureAvailable(txCtx, appointment.DoctorID, s, &appointment.ID); err != nil {
				return err
			}
		}

		appointment.AppointmentDate = s.date
		appointment.StartTime = s.start
		appointment.EndTime = s.end
		if req.Notes != nil {
			appointment.Notes = *req.Notes
		}

		if err := u.appointmentRepo.Update(txCtx, appointment); err != nil {
			return err
		}
		updated = appointment
		return nil
	})
	if err != nil {
		err = translateWriteError(err)
		if outcomeOf(err) == "error" {
			u.log.Warnf("Failed to reschedule appointment %d: %+v", appointmentID, err)
		}
		return nil, err
	}

	u.log.Infof("Appointment rescheduled: id=%d, date=%s, %s-%s", appointmentID, s.date.Format(entity.DateLayout), s.start, s.end)
	return converter.AppointmentToResponse(updated), nil
}

func sameDay(a, b time.Time) bool {
	return a.Format(entity.DateLayout) == b.Format(entity.DateLayout)
}

// UpdateAppointmentStatus applies a status transition. Notes are appended to the
// existing notes, never replacing them.
func (u *appointmentUsecase) UpdateAppointmentStatus(ctx context.Context, appointmentID int, req *dto.UpdateAppointmentStatusRequest) (resp *dto.AppointmentResponse, err error) {
	defer func() { u.metrics.ObserveAppointment("update_status", outcomeOf(err)) }()

	target, err := entity.ParseAppointmentStatus(req.Status)
	if err != nil {
		return nil, ErrInvalidStatus
	}

	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}

	var updated *entity.Appointment
	var from entity.AppointmentStatus
	err = u.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		appointment, err := u.appointmentRepo.FindByIDForUpdate(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if appointment == nil {
			return ErrAppointmentNotFound
		}
		if err := u.policy.CanUpdateStatus(p, appointment, target).Err(); err != nil {
			return err
		}
		if !appointment.Status.CanTransitionTo(target) {
			return ErrInvalidStatusTransition
		}

		from = appointment.Status
		appointment.Status = target
		appointment.AppendNotes(req.Notes)
		if err := checkNotesLength(appointment.Notes); err != nil {
			return err
		}

		if err := u.appointmentRepo.Update(txCtx, appointment); err != nil {
			return err
		}
		updated = appointment
		return nil
	})
	if err != nil {
		if outcomeOf(err) == "error" {
			u.log.Warnf("Failed to update status of appointment %d: %+v", appointmentID, err)
		}
		return nil, err
	}

	u.metrics.ObserveTransition(string(from), string(target))
	u.log.Infof("Appointment status updated: id=%d, %s -> %s", appointmentID, from, target)
	return converter.AppointmentToResponse(updated), nil
}

func (u *appointmentUsecase) DeleteAppointment(ctx context.Context, appointmentID int) (err error) {
	defer func() { u.metrics.ObserveAppointment("delete", outcomeOf(err)) }()

	p, err := u.principal(ctx)
	if err != nil {
		return err
	}
	if err := u.policy.CanDelete(p).Err(); err != nil {
		return err
	}

	affected, err := u.appointmentRepo.Delete(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to delete appointment %d: %+v", appointmentID, err)
		return err
	}
	if affected == 0 {
		return ErrAppointmentNotFound
	}

	u.log.Infof("Appointment deleted: id=%d", appointmentID)
	return nil
}

func (u *appointmentUsecase) GetAppointment(ctx context.Context, appointmentID int) (*dto.AppointmentResponse, error) {
	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}

	appointment, err := u.appointmentRepo.FindByID(ctx, appointmentID)
	if err != nil {
		u.log.Warnf("Failed to find appointment %d: %+v", appointmentID, err)
		return nil, err
	}
	if appointment == nil {
		return nil, ErrAppointmentNotFound
	}
	if err := u.policy.CanView(p, appointment).Err(); err != nil {
		return nil, err
	}

	return converter.AppointmentToResponse(appointment), nil
}

// FilterAppointments combines every supplied predicate with AND. Doctors and patients
// only ever see their own appointments.
func (u *appointmentUsecase) FilterAppointments(ctx context.Context, req *dto.AppointmentFilterRequest) (*dto.AppointmentListResponse, error) {
	filter := &entity.AppointmentFilter{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
	}

	if req.Date != "" {
		date, err := entity.ParseDate(req.Date)
		if err != nil {
			return nil, ErrInvalidDateFormat
		}
		filter.Date = &date
	}
	if req.Status != "" {
		status, err := entity.ParseAppointmentStatus(req.Status)
		if err != nil {
			return nil, ErrInvalidStatus
		}
		filter.Status = &status
	}

	return u.scopedList(ctx, filter)
}

func (u *appointmentUsecase) GetAllAppointments(ctx context.Context) (*dto.AppointmentListResponse, error) {
	return u.scopedList(ctx, &entity.AppointmentFilter{})
}

func (u *appointmentUsecase) GetAppointmentsByPatient(ctx context.Context, patientID int) (*dto.AppointmentListResponse, error) {
	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}
	if p.IsPatient() && (p.PatientID == nil || *p.PatientID != patientID) {
		return nil, service.ErrForbidden
	}
	return u.scopedList(ctx, &entity.AppointmentFilter{PatientID: &patientID})
}

func (u *appointmentUsecase) GetAppointmentsByDoctor(ctx context.Context, doctorID int) (*dto.AppointmentListResponse, error) {
	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}
	if p.IsDoctor() && (p.DoctorID == nil || *p.DoctorID != doctorID) {
		return nil, service.ErrForbidden
	}
	return u.scopedList(ctx, &entity.AppointmentFilter{DoctorID: &doctorID})
}

// GetMyAppointments returns the caller's own appointments as patient or doctor.
// Callers with neither record get an empty list.
func (u *appointmentUsecase) GetMyAppointments(ctx context.Context) (*dto.AppointmentListResponse, error) {
	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}

	filter := &entity.AppointmentFilter{}
	switch {
	case p.IsPatient() && p.PatientID != nil:
		filter.PatientID = p.PatientID
	case p.IsDoctor() && p.DoctorID != nil:
		filter.DoctorID = p.DoctorID
	default:
		return converter.AppointmentsToListResponse(nil), nil
	}

	return u.list(ctx, filter)
}

func (u *appointmentUsecase) scopedList(ctx context.Context, filter *entity.AppointmentFilter) (*dto.AppointmentListResponse, error) {
	p, err := u.principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.policy.ScopeFilter(p, filter).Err(); err != nil {
		return nil, err
	}
	return u.list(ctx, filter)
}

func (u *appointmentUsecase) list(ctx context.Context, filter *entity.AppointmentFilter) (*dto.AppointmentListResponse, error) {
	appointments, err := u.appointmentRepo.Filter(ctx, filter)
	if err != nil {
		u.log.Warnf("Failed to filter appointments: %+v", err)
		return nil, err
	}
	return converter.AppointmentsToListResponse(appointments), nil
}

// CheckAvailability is the read-only pre-flight check. A malformed range is an input
// error, reported before any lookup.
func (u *appointmentUsecase) CheckAvailability(ctx context.Context, req *dto.AvailabilityRequest) (*dto.AvailabilityResponse, error) {
	s, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	result := u.checker.Check(ctx, req.DoctorID, s.date, s.start, s.end, nil)

	return &dto.AvailabilityResponse{
		IsAvailable: result.Available,
		Reason:      result.Reason,
		DoctorID:    req.DoctorID,
		Date:        s.date.Format(entity.DateLayout),
		StartTime:   s.start.String(),
		EndTime:     s.end.String(),
	}, nil
}
