package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"
	"clinic-scheduler/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errStoreDown = errors.New("connection refused")

// 2024-06-03 is a Monday.
var (
	monday   = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func tod(s string) entity.TimeOfDay { return entity.MustTimeOfDay(s) }

func intPtr(v int) *int { return &v }

// fakeAppointmentRepo is an in-memory store. Create and Update honour the no-overlap
// rule the database enforces with its exclusion constraint unless withoutConstraint
// is set.
type fakeAppointmentRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]entity.Appointment

	findErr error

	withoutConstraint bool
	// activeReadDelay stalls FindActiveByDoctorAndDate after it has read the rows.
	activeReadDelay time.Duration
}

func newFakeAppointmentRepo(seed ...entity.Appointment) *fakeAppointmentRepo {
	r := &fakeAppointmentRepo{nextID: 1, rows: map[int]entity.Appointment{}}
	for _, a := range seed {
		if a.ID == 0 {
			a.ID = r.nextID
		}
		if a.ID >= r.nextID {
			r.nextID = a.ID + 1
		}
		r.rows[a.ID] = a
	}
	return r
}

func (r *fakeAppointmentRepo) overlapsLocked(a *entity.Appointment) bool {
	if r.withoutConstraint || a.IsCancelled() {
		return false
	}
	for id, row := range r.rows {
		if id == a.ID || row.IsCancelled() || row.DoctorID != a.DoctorID || !sameDay(row.AppointmentDate, a.AppointmentDate) {
			continue
		}
		if row.OverlapsWith(a.StartTime, a.EndTime) {
			return true
		}
	}
	return false
}

func (r *fakeAppointmentRepo) Create(ctx context.Context, a *entity.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlapsLocked(a) {
		return repository.ErrSlotTaken
	}
	a.ID = r.nextID
	r.nextID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.rows[a.ID] = *a
	return nil
}

func (r *fakeAppointmentRepo) FindByID(ctx context.Context, id int) (*entity.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeAppointmentRepo) FindByIDForUpdate(ctx context.Context, id int) (*entity.Appointment, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeAppointmentRepo) Update(ctx context.Context, a *entity.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return errors.New("update of missing row")
	}
	if r.overlapsLocked(a) {
		return repository.ErrSlotTaken
	}
	a.UpdatedAt = time.Now()
	r.rows[a.ID] = *a
	return nil
}

func (r *fakeAppointmentRepo) Delete(ctx context.Context, id int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return 0, nil
	}
	delete(r.rows, id)
	return 1, nil
}

func (r *fakeAppointmentRepo) Filter(ctx context.Context, f *entity.AppointmentFilter) ([]entity.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Appointment
	for _, row := range r.rows {
		if f.Date != nil && !sameDay(row.AppointmentDate, *f.Date) {
			continue
		}
		if f.DoctorID != nil && row.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && row.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAppointmentRepo) FindActiveByDoctorAndDate(ctx context.Context, doctorID int, date time.Time, excludeID *int) ([]entity.Appointment, error) {
	out, err := r.activeRows(doctorID, date, excludeID)
	if r.activeReadDelay > 0 {
		time.Sleep(r.activeReadDelay)
	}
	return out, err
}

func (r *fakeAppointmentRepo) activeRows(doctorID int, date time.Time, excludeID *int) ([]entity.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []entity.Appointment
	for id, row := range r.rows {
		if row.DoctorID != doctorID || !sameDay(row.AppointmentDate, date) || row.IsCancelled() {
			continue
		}
		if excludeID != nil && id == *excludeID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeAppointmentRepo) LockDoctorDay(ctx context.Context, doctorID int, date time.Time) error {
	return nil
}

func (r *fakeAppointmentRepo) get(id int) entity.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *fakeAppointmentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeDoctorRepo struct {
	mu      sync.Mutex
	doctors map[int]entity.Doctor
	hours   map[int][]entity.WorkingHours

	findErr   error
	hoursErr  error
	hoursHits int

	// afterHoursRead runs once after the next FindWorkingHours, outside the lock.
	afterHoursRead func()
}

func newFakeDoctorRepo(doctors ...entity.Doctor) *fakeDoctorRepo {
	r := &fakeDoctorRepo{doctors: map[int]entity.Doctor{}, hours: map[int][]entity.WorkingHours{}}
	for _, d := range doctors {
		r.doctors[d.ID] = d
	}
	return r
}

func (r *fakeDoctorRepo) withHours(doctorID int, day time.Weekday, start, end string) *fakeDoctorRepo {
	r.hours[doctorID] = append(r.hours[doctorID], entity.WorkingHours{
		DoctorID: doctorID, DayOfWeek: day, StartTime: tod(start), EndTime: tod(end),
	})
	return r
}

func (r *fakeDoctorRepo) FindByID(ctx context.Context, id int) (*entity.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	d, ok := r.doctors[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *fakeDoctorRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.UserID == userID {
			return &d, nil
		}
	}
	return nil, nil
}

func (r *fakeDoctorRepo) FindAvailableToday(ctx context.Context) ([]entity.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Doctor
	for _, d := range r.doctors {
		if d.IsAvailableToday {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDoctorRepo) FindAllWithWorkingHours(ctx context.Context, limit, offset int) ([]entity.Doctor, error) {
	return nil, nil
}

func (r *fakeDoctorRepo) FindWorkingHours(ctx context.Context, doctorID int) ([]entity.WorkingHours, error) {
	r.mu.Lock()
	r.hoursHits++
	if r.hoursErr != nil {
		r.mu.Unlock()
		return nil, r.hoursErr
	}
	hours := append([]entity.WorkingHours(nil), r.hours[doctorID]...)
	hook := r.afterHoursRead
	r.afterHoursRead = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return hours, nil
}

func (r *fakeDoctorRepo) UpsertWorkingHours(ctx context.Context, doctorID int, hours []entity.WorkingHours) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.hours[doctorID]
	for _, h := range hours {
		replaced := false
		for i := range current {
			if current[i].DayOfWeek == h.DayOfWeek {
				current[i].StartTime, current[i].EndTime = h.StartTime, h.EndTime
				replaced = true
			}
		}
		if !replaced {
			current = append(current, h)
		}
	}
	r.hours[doctorID] = current
	return nil
}

type fakePatientRepo struct {
	patients map[int]entity.Patient
}

func newFakePatientRepo(patients ...entity.Patient) *fakePatientRepo {
	r := &fakePatientRepo{patients: map[int]entity.Patient{}}
	for _, p := range patients {
		r.patients[p.ID] = p
	}
	return r
}

func (r *fakePatientRepo) FindByID(ctx context.Context, id int) (*entity.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakePatientRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Patient, error) {
	for _, p := range r.patients {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, nil
}

// fakeTransactor runs fn directly; the fakes have no rollback.
type fakeTransactor struct{}

func (fakeTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeHoursCache is a map-backed service.HoursCache with the same generation rule
// as the Redis cache: Invalidate bumps the generation and Set only stores when the
// generation it was given is still current.
type fakeHoursCache struct {
	mu          sync.Mutex
	entries     map[int][]entity.WorkingHours
	generations map[int]int64
	invalidated []int
}

func newFakeHoursCache() *fakeHoursCache {
	return &fakeHoursCache{entries: map[int][]entity.WorkingHours{}, generations: map[int]int64{}}
}

func (c *fakeHoursCache) Get(ctx context.Context, doctorID int) ([]entity.WorkingHours, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hours, ok := c.entries[doctorID]
	return hours, c.generations[doctorID], ok
}

func (c *fakeHoursCache) Set(ctx context.Context, doctorID int, generation int64, hours []entity.WorkingHours) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation < 0 || generation != c.generations[doctorID] {
		return
	}
	c.entries[doctorID] = hours
}

func (c *fakeHoursCache) Invalidate(ctx context.Context, doctorID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[doctorID]++
	delete(c.entries, doctorID)
	c.invalidated = append(c.invalidated, doctorID)
}

func (c *fakeHoursCache) cached(doctorID int) ([]entity.WorkingHours, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hours, ok := c.entries[doctorID]
	return hours, ok
}

var _ service.HoursCache = (*fakeHoursCache)(nil)

// noopSlotLocker grants every lock immediately.
type noopSlotLocker struct{}

func (noopSlotLocker) Lock(ctx context.Context, doctorID int, date time.Time) (func(), error) {
	return func() {}, nil
}

// availableChecker approves every slot without looking at the store.
type availableChecker struct{}

func (availableChecker) IsAvailable(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) bool {
	return true
}

func (availableChecker) Check(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) Availability {
	return available()
}

func (availableChecker) Evaluate(ctx context.Context, doctorID int, date time.Time, start, end entity.TimeOfDay, excludeAppointmentID *int) (Availability, error) {
	return available(), nil
}

// Principals used across tests. Patient 10 and doctor 1 are the default fixture.
var (
	adminUser   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	doctorUser  = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	patientUser = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

func asAdmin(ctx context.Context) context.Context {
	return service.WithPrincipal(ctx, &service.Principal{UserID: adminUser, RoleID: entity.RoleIDAdmin, Role: entity.RoleAdmin})
}

func asDoctor(ctx context.Context, doctorID int) context.Context {
	return service.WithPrincipal(ctx, &service.Principal{UserID: doctorUser, RoleID: entity.RoleIDDoctor, Role: entity.RoleDoctor, DoctorID: intPtr(doctorID)})
}

func asPatient(ctx context.Context, patientID int) context.Context {
	return service.WithPrincipal(ctx, &service.Principal{UserID: patientUser, RoleID: entity.RoleIDPatient, Role: entity.RolePatient, PatientID: intPtr(patientID)})
}
