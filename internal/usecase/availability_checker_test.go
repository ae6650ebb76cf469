package usecase

import (
	"context"
	"testing"
	"time"

	"clinic-scheduler/config"
	"clinic-scheduler/internal/delivery/dto"
	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/service"
	"clinic-scheduler/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestChecker(doctors *fakeDoctorRepo, appointments *fakeAppointmentRepo, policy AvailabilityPolicy) AvailabilityChecker {
	return NewAvailabilityChecker(testLogger(), doctors, appointments, nil, policy, nil)
}

func TestCheckerWorkingHoursWindow(t *testing.T) {
	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1}).withHours(1, time.Monday, "09:00", "12:00")
	checker := newTestChecker(doctors, newFakeAppointmentRepo(), DefaultAvailabilityPolicy())

	tests := []struct {
		name       string
		start, end string
		want       Availability
	}{
		{"inside window", "10:00", "11:00", Availability{Available: true}},
		{"exact window", "09:00", "12:00", Availability{Available: true}},
		{"starts before window", "08:00", "09:30", Availability{Reason: ReasonOutsideWorkingHours}},
		{"starts at window end", "12:00", "13:00", Availability{Reason: ReasonOutsideWorkingHours}},
		{"ends after window", "11:30", "12:30", Availability{Reason: ReasonOutsideWorkingHours}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.Check(context.Background(), 1, monday, tod(tt.start), tod(tt.end), nil)
			if got != tt.want {
				t.Errorf("Check(%s-%s) = %+v, want %+v", tt.start, tt.end, got, tt.want)
			}
			if checker.IsAvailable(context.Background(), 1, monday, tod(tt.start), tod(tt.end), nil) != tt.want.Available {
				t.Errorf("IsAvailable disagrees with Check for %s-%s", tt.start, tt.end)
			}
		})
	}
}

func TestCheckerConfiguredEntryOverridesWeekend(t *testing.T) {
	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1}).withHours(1, time.Saturday, "10:00", "14:00")
	checker := newTestChecker(doctors, newFakeAppointmentRepo(), DefaultAvailabilityPolicy())

	if !checker.IsAvailable(context.Background(), 1, saturday, tod("10:00"), tod("11:00"), nil) {
		t.Error("configured Saturday hours should make the slot available")
	}
}

func TestCheckerDefaultHoursFallback(t *testing.T) {
	// Hours exist for Tuesday only, so Monday and Saturday fall back to the policy.
	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1}).withHours(1, time.Tuesday, "13:00", "15:00")
	checker := newTestChecker(doctors, newFakeAppointmentRepo(), DefaultAvailabilityPolicy())
	sunday := saturday.AddDate(0, 0, 1)

	tests := []struct {
		name       string
		date       time.Time
		start, end string
		want       Availability
	}{
		{"weekday inside default window", monday, "09:00", "17:00", Availability{Available: true}},
		{"weekday mid-day", monday, "12:00", "12:30", Availability{Available: true}},
		{"weekday before default window", monday, "08:30", "09:30", Availability{Reason: ReasonOutsideDefaultHours}},
		{"weekday after default window", monday, "16:30", "17:30", Availability{Reason: ReasonOutsideDefaultHours}},
		{"saturday morning", saturday, "10:00", "11:00", Availability{Reason: ReasonWeekend}},
		{"saturday outside hours", saturday, "20:00", "21:00", Availability{Reason: ReasonWeekend}},
		{"sunday", sunday, "10:00", "11:00", Availability{Reason: ReasonWeekend}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.Check(context.Background(), 1, tt.date, tod(tt.start), tod(tt.end), nil)
			if got != tt.want {
				t.Errorf("Check = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckerClosedFallback(t *testing.T) {
	policy := DefaultAvailabilityPolicy()
	policy.FallbackPolicy = config.FallbackClosed

	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1}).withHours(1, time.Tuesday, "09:00", "17:00")
	checker := newTestChecker(doctors, newFakeAppointmentRepo(), policy)

	got := checker.Check(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil)
	if got.Available || got.Reason != ReasonNoWorkingHours {
		t.Errorf("Check = %+v, want rejected with %q", got, ReasonNoWorkingHours)
	}
}

func TestCheckerCustomWeekendDays(t *testing.T) {
	policy := DefaultAvailabilityPolicy()
	policy.WeekendDays = []time.Weekday{time.Friday}

	checker := newTestChecker(newFakeDoctorRepo(entity.Doctor{ID: 1}), newFakeAppointmentRepo(), policy)
	friday := monday.AddDate(0, 0, 4)

	if checker.IsAvailable(context.Background(), 1, friday, tod("10:00"), tod("11:00"), nil) {
		t.Error("Friday is configured as a weekend day")
	}
	if !checker.IsAvailable(context.Background(), 1, saturday, tod("10:00"), tod("11:00"), nil) {
		t.Error("Saturday is a working day under this policy")
	}
}

func TestCheckerOverlap(t *testing.T) {
	existing := entity.Appointment{
		ID: 5, DoctorID: 1, PatientID: 10, AppointmentDate: monday,
		StartTime: tod("10:00"), EndTime: tod("10:30"), Status: entity.AppointmentStatusScheduled,
	}

	tests := []struct {
		name       string
		status     entity.AppointmentStatus
		start, end string
		exclude    *int
		want       Availability
	}{
		{"overlapping", entity.AppointmentStatusScheduled, "10:15", "10:45", nil, Availability{Reason: ReasonConflict}},
		{"enclosing", entity.AppointmentStatusConfirmed, "09:30", "11:00", nil, Availability{Reason: ReasonConflict}},
		{"adjacent after", entity.AppointmentStatusScheduled, "10:30", "11:00", nil, Availability{Available: true}},
		{"adjacent before", entity.AppointmentStatusScheduled, "09:30", "10:00", nil, Availability{Available: true}},
		{"existing cancelled", entity.AppointmentStatusCancelled, "10:15", "10:45", nil, Availability{Available: true}},
		{"completed still blocks", entity.AppointmentStatusCompleted, "10:00", "10:30", nil, Availability{Reason: ReasonConflict}},
		{"self excluded", entity.AppointmentStatusScheduled, "10:00", "10:30", intPtr(5), Availability{Available: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := existing
			a.Status = tt.status
			checker := newTestChecker(newFakeDoctorRepo(entity.Doctor{ID: 1}), newFakeAppointmentRepo(a), DefaultAvailabilityPolicy())

			got := checker.Check(context.Background(), 1, monday, tod(tt.start), tod(tt.end), tt.exclude)
			if got != tt.want {
				t.Errorf("Check = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckerOtherDoctorOrDayDoesNotConflict(t *testing.T) {
	appointments := newFakeAppointmentRepo(
		entity.Appointment{DoctorID: 2, AppointmentDate: monday, StartTime: tod("10:00"), EndTime: tod("11:00"), Status: entity.AppointmentStatusScheduled},
		entity.Appointment{DoctorID: 1, AppointmentDate: monday.AddDate(0, 0, 1), StartTime: tod("10:00"), EndTime: tod("11:00"), Status: entity.AppointmentStatusScheduled},
	)
	checker := newTestChecker(newFakeDoctorRepo(entity.Doctor{ID: 1}, entity.Doctor{ID: 2}), appointments, DefaultAvailabilityPolicy())

	if !checker.IsAvailable(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil) {
		t.Error("appointments of another doctor or day must not block the slot")
	}
}

func TestCheckerShortCircuitOrder(t *testing.T) {
	checker := newTestChecker(newFakeDoctorRepo(entity.Doctor{ID: 1}), newFakeAppointmentRepo(), DefaultAvailabilityPolicy())

	got := checker.Check(context.Background(), 99, saturday, tod("11:00"), tod("10:00"), nil)
	if got.Reason != ReasonDoctorNotFound {
		t.Errorf("unknown doctor: reason = %q, want %q", got.Reason, ReasonDoctorNotFound)
	}

	got = checker.Check(context.Background(), 1, saturday, tod("11:00"), tod("10:00"), nil)
	if got.Reason != ReasonInvalidTimeRange {
		t.Errorf("reversed range: reason = %q, want %q", got.Reason, ReasonInvalidTimeRange)
	}

	got = checker.Check(context.Background(), 1, monday, tod("10:00"), tod("10:00"), nil)
	if got.Reason != ReasonInvalidTimeRange {
		t.Errorf("empty range: reason = %q, want %q", got.Reason, ReasonInvalidTimeRange)
	}
}

func TestCheckerLookupFailureFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *fakeDoctorRepo, a *fakeAppointmentRepo)
	}{
		{"doctor lookup", func(d *fakeDoctorRepo, a *fakeAppointmentRepo) { d.findErr = errStoreDown }},
		{"working hours lookup", func(d *fakeDoctorRepo, a *fakeAppointmentRepo) { d.hoursErr = errStoreDown }},
		{"appointment lookup", func(d *fakeDoctorRepo, a *fakeAppointmentRepo) { a.findErr = errStoreDown }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doctors := newFakeDoctorRepo(entity.Doctor{ID: 1})
			appointments := newFakeAppointmentRepo()
			tt.setup(doctors, appointments)
			checker := newTestChecker(doctors, appointments, DefaultAvailabilityPolicy())

			got := checker.Check(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil)
			if got.Available || got.Reason != ReasonLookupFailed {
				t.Errorf("Check = %+v, want rejected with %q", got, ReasonLookupFailed)
			}

			if _, err := checker.Evaluate(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil); err == nil {
				t.Error("Evaluate should return the lookup error")
			}
		})
	}
}

func TestCheckerUsesHoursCache(t *testing.T) {
	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1}).withHours(1, time.Monday, "09:00", "12:00")
	cache := newFakeHoursCache()
	checker := NewAvailabilityChecker(testLogger(), doctors, newFakeAppointmentRepo(), cache, DefaultAvailabilityPolicy(), nil)

	for i := 0; i < 3; i++ {
		if !checker.IsAvailable(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil) {
			t.Fatalf("call %d: slot should be available", i)
		}
	}
	if doctors.hoursHits != 1 {
		t.Errorf("store hit %d times, want 1 (then served from cache)", doctors.hoursHits)
	}

	cache.Invalidate(context.Background(), 1)
	checker.IsAvailable(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil)
	if doctors.hoursHits != 2 {
		t.Errorf("store hit %d times after invalidation, want 2", doctors.hoursHits)
	}
}

func TestCheckerDropsCacheFillRacingHoursUpdate(t *testing.T) {
	log := testLogger()
	doctors := newFakeDoctorRepo(entity.Doctor{ID: 1, UserID: doctorUser}).withHours(1, time.Monday, "09:00", "12:00")
	cache := newFakeHoursCache()
	checker := NewAvailabilityChecker(log, doctors, newFakeAppointmentRepo(), cache, DefaultAvailabilityPolicy(), nil)
	schedules := NewDoctorScheduleUsecase(log, doctors, cache, service.NewAccessPolicy(doctors, newFakePatientRepo(), log))

	// The doctor moves Monday to the afternoon between the checker's store read
	// and its cache fill.
	doctors.afterHoursRead = func() {
		_, err := schedules.UpsertWorkingHours(asDoctor(context.Background(), 1), 1, &dto.UpdateWorkingHoursRequest{
			WorkingHours: []dto.WorkingHoursEntryRequest{hoursEntry(1, "13:00", "17:00")},
		})
		if err != nil {
			t.Errorf("UpsertWorkingHours: %v", err)
		}
	}

	checker.Check(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil)

	if hours, ok := cache.cached(1); ok {
		t.Fatalf("hours read before the update were cached: %+v", hours)
	}

	if got := checker.Check(context.Background(), 1, monday, tod("14:00"), tod("15:00"), nil); !got.Available {
		t.Errorf("14:00-15:00 after update: available=false reason=%q", got.Reason)
	}
	if got := checker.Check(context.Background(), 1, monday, tod("10:00"), tod("11:00"), nil); got.Available || got.Reason != ReasonOutsideWorkingHours {
		t.Errorf("10:00-11:00 after update = %+v, want %s", got, ReasonOutsideWorkingHours)
	}
}

func TestCheckerRecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector("test")
	appointments := newFakeAppointmentRepo(entity.Appointment{
		DoctorID: 1, AppointmentDate: monday, StartTime: tod("10:00"), EndTime: tod("10:30"), Status: entity.AppointmentStatusScheduled,
	})
	checker := NewAvailabilityChecker(testLogger(), newFakeDoctorRepo(entity.Doctor{ID: 1}), appointments, nil, DefaultAvailabilityPolicy(), collector)

	checker.Check(context.Background(), 1, monday, tod("10:00"), tod("10:30"), nil)
	checker.Check(context.Background(), 1, monday, tod("11:00"), tod("11:30"), nil)
	checker.Check(context.Background(), 1, saturday, tod("11:00"), tod("11:30"), nil)

	if got := testutil.ToFloat64(collector.AvailabilityChecksTotal.WithLabelValues("rejected", ReasonConflict)); got != 1 {
		t.Errorf("conflict rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.AvailabilityChecksTotal.WithLabelValues("rejected", ReasonWeekend)); got != 1 {
		t.Errorf("weekend rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.AvailabilityChecksTotal.WithLabelValues("available", "")); got != 1 {
		t.Errorf("available = %v, want 1", got)
	}
}

func TestNewAvailabilityPolicy(t *testing.T) {
	policy, err := NewAvailabilityPolicy(config.SchedulingConfig{
		FallbackPolicy: config.FallbackDefaultHours,
		DefaultStart:   "08:00",
		DefaultEnd:     "16:00",
		WeekendDays:    []time.Weekday{time.Sunday},
	})
	if err != nil {
		t.Fatalf("NewAvailabilityPolicy: %v", err)
	}
	if policy.DefaultStart != tod("08:00") || policy.DefaultEnd != tod("16:00") {
		t.Errorf("window = %s-%s, want 08:00-16:00", policy.DefaultStart, policy.DefaultEnd)
	}

	if _, err := NewAvailabilityPolicy(config.SchedulingConfig{DefaultStart: "17:00", DefaultEnd: "09:00"}); err == nil {
		t.Error("reversed default window should be rejected")
	}
	if _, err := NewAvailabilityPolicy(config.SchedulingConfig{DefaultStart: "nine", DefaultEnd: "17:00"}); err == nil {
		t.Error("malformed default start should be rejected")
	}
}
