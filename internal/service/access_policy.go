package service

import (
	"context"
	"errors"
	"fmt"

	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrForbidden is returned when a Deny decision stops a request.
var ErrForbidden = errors.New("you don't have permission to access this resource")

// Decision is the outcome of an access check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) Allowed() bool { return d == Allow }

// Err converts a Deny into ErrForbidden.
func (d Decision) Err() error {
	if d == Allow {
		return nil
	}
	return ErrForbidden
}

// Principal is an authenticated caller mapped onto scheduling identities.
// PatientID and DoctorID are set only when the user has that record.
type Principal struct {
	UserID    uuid.UUID
	RoleID    int
	Role      string
	PatientID *int
	DoctorID  *int
}

func (p *Principal) IsAdmin() bool   { return p != nil && p.RoleID == entity.RoleIDAdmin }
func (p *Principal) IsDoctor() bool  { return p != nil && p.RoleID == entity.RoleIDDoctor }
func (p *Principal) IsPatient() bool { return p != nil && p.RoleID == entity.RoleIDPatient }

func (p *Principal) ownsAsPatient(patientID int) bool {
	return p.IsPatient() && p.PatientID != nil && *p.PatientID == patientID
}

func (p *Principal) ownsAsDoctor(doctorID int) bool {
	return p.IsDoctor() && p.DoctorID != nil && *p.DoctorID == doctorID
}

type principalKey struct{}

// WithPrincipal attaches the authenticated caller to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the caller set by WithPrincipal
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// AccessPolicy decides what a principal may do with appointments and schedules.
type AccessPolicy struct {
	doctorRepo  repository.DoctorRepository
	patientRepo repository.PatientRepository
	log         *logrus.Logger
}

func NewAccessPolicy(doctorRepo repository.DoctorRepository, patientRepo repository.PatientRepository, log *logrus.Logger) *AccessPolicy {
	return &AccessPolicy{
		doctorRepo:  doctorRepo,
		patientRepo: patientRepo,
		log:         log,
	}
}

// Resolve looks up the patient or doctor record behind a user. A doctor or patient
// without a record gets a principal that every ownership check denies.
func (a *AccessPolicy) Resolve(ctx context.Context, userID uuid.UUID, roleID int) (*Principal, error) {
	principal := &Principal{
		UserID: userID,
		RoleID: roleID,
		Role:   entity.RoleName(roleID),
	}

	switch roleID {
	case entity.RoleIDPatient:
		patient, err := a.patientRepo.FindByUserID(ctx, userID)
		if err != nil {
			a.log.Warnf("Failed to resolve patient for user %s: %+v", userID, err)
			return nil, fmt.Errorf("resolve patient for user %s: %w", userID, err)
		}
		if patient != nil {
			principal.PatientID = &patient.ID
		}
	case entity.RoleIDDoctor:
		doctor, err := a.doctorRepo.FindByUserID(ctx, userID)
		if err != nil {
			a.log.Warnf("Failed to resolve doctor for user %s: %+v", userID, err)
			return nil, fmt.Errorf("resolve doctor for user %s: %w", userID, err)
		}
		if doctor != nil {
			principal.DoctorID = &doctor.ID
		}
	}

	return principal, nil
}

// CanCreate: patients book only for themselves; doctors for their own calendar.
func (a *AccessPolicy) CanCreate(p *Principal, patientID, doctorID int) Decision {
	switch {
	case p.IsAdmin():
		return Allow
	case p.ownsAsPatient(patientID):
		return Allow
	case p.ownsAsDoctor(doctorID):
		return Allow
	}
	return Deny
}

func (a *AccessPolicy) CanView(p *Principal, appointment *entity.Appointment) Decision {
	switch {
	case p.IsAdmin():
		return Allow
	case p.ownsAsPatient(appointment.PatientID):
		return Allow
	case p.ownsAsDoctor(appointment.DoctorID):
		return Allow
	}
	return Deny
}

func (a *AccessPolicy) CanReschedule(p *Principal, appointment *entity.Appointment) Decision {
	return a.CanView(p, appointment)
}

// CanUpdateStatus limits patients to cancelling their own appointments.
func (a *AccessPolicy) CanUpdateStatus(p *Principal, appointment *entity.Appointment, target entity.AppointmentStatus) Decision {
	switch {
	case p.IsAdmin():
		return Allow
	case p.ownsAsDoctor(appointment.DoctorID):
		return Allow
	case p.ownsAsPatient(appointment.PatientID) && target == entity.AppointmentStatusCancelled:
		return Allow
	}
	return Deny
}

func (a *AccessPolicy) CanDelete(p *Principal) Decision {
	if p.IsAdmin() {
		return Allow
	}
	return Deny
}

func (a *AccessPolicy) CanManageWorkingHours(p *Principal, doctorID int) Decision {
	if p.IsAdmin() || p.ownsAsDoctor(doctorID) {
		return Allow
	}
	return Deny
}

// ScopeFilter narrows a filter to what the principal may see. Doctors and patients
// are pinned to their own id regardless of what they asked for.
func (a *AccessPolicy) ScopeFilter(p *Principal, filter *entity.AppointmentFilter) Decision {
	switch {
	case p.IsAdmin():
		return Allow
	case p.IsDoctor() && p.DoctorID != nil:
		doctorID := *p.DoctorID
		filter.DoctorID = &doctorID
		return Allow
	case p.IsPatient() && p.PatientID != nil:
		patientID := *p.PatientID
		filter.PatientID = &patientID
		return Allow
	}
	return Deny
}
