package http

import (
	"net/http"

	"clinic-scheduler/internal/delivery/http/handler"
	"clinic-scheduler/internal/delivery/http/middleware"
	"clinic-scheduler/pkg/metrics"

	"github.com/gorilla/mux"
)

type Router struct {
	router                *mux.Router
	appointmentHandler    *handler.AppointmentHandler
	doctorScheduleHandler *handler.DoctorScheduleHandler
	authMiddleware        *middleware.AuthMiddleware
	corsMiddleware        *middleware.CORSMiddleware
	rateLimiter           *middleware.RateLimiter
	metrics               *metrics.Collector
}

func NewRouter(
	appointmentHandler *handler.AppointmentHandler,
	doctorScheduleHandler *handler.DoctorScheduleHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	rateLimiter *middleware.RateLimiter,
	collector *metrics.Collector,
) *Router {
	return &Router{
		router:                mux.NewRouter(),
		appointmentHandler:    appointmentHandler,
		doctorScheduleHandler: doctorScheduleHandler,
		authMiddleware:        authMiddleware,
		corsMiddleware:        corsMiddleware,
		rateLimiter:           rateLimiter,
		metrics:               collector,
	}
}

func (r *Router) Setup() *mux.Router {
	// Prometheus scrape endpoint
	r.router.Handle("/metrics", r.metrics.Handler()).Methods(http.MethodGet)

	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Availability pre-flight (public, rate limited). Registered before the
	// protected /appointments routes so it is matched first.
	api.Handle("/appointments/availability",
		r.rateLimiter.Handle(http.HandlerFunc(r.appointmentHandler.CheckAvailability)),
	).Methods(http.MethodGet)

	// Appointment routes (protected)
	appointments := api.PathPrefix("/appointments").Subrouter()
	appointments.Use(r.authMiddleware.Authenticate)
	appointments.HandleFunc("", r.appointmentHandler.CreateAppointment).Methods(http.MethodPost)
	appointments.HandleFunc("", r.appointmentHandler.FilterAppointments).Methods(http.MethodGet)
	appointments.HandleFunc("/mine", r.appointmentHandler.GetMyAppointments).Methods(http.MethodGet)
	appointments.HandleFunc("/patient/{patientId:[0-9]+}", r.appointmentHandler.GetAppointmentsByPatient).Methods(http.MethodGet)
	appointments.HandleFunc("/doctor/{doctorId:[0-9]+}", r.appointmentHandler.GetAppointmentsByDoctor).Methods(http.MethodGet)
	appointments.HandleFunc("/{id:[0-9]+}", r.appointmentHandler.GetAppointment).Methods(http.MethodGet)
	appointments.HandleFunc("/{id:[0-9]+}", r.appointmentHandler.RescheduleAppointment).Methods(http.MethodPut)
	appointments.HandleFunc("/{id:[0-9]+}/status", r.appointmentHandler.UpdateAppointmentStatus).Methods(http.MethodPut)
	appointments.Handle("/{id:[0-9]+}",
		middleware.RequireAdmin(http.HandlerFunc(r.appointmentHandler.DeleteAppointment)),
	).Methods(http.MethodDelete)

	// Doctor schedule routes (protected)
	doctors := api.PathPrefix("/doctors").Subrouter()
	doctors.Use(r.authMiddleware.Authenticate)
	doctors.HandleFunc("/available-today", r.doctorScheduleHandler.GetAvailableDoctorsToday).Methods(http.MethodGet)
	doctors.HandleFunc("/{id:[0-9]+}/working-hours", r.doctorScheduleHandler.GetWorkingHours).Methods(http.MethodGet)
	doctors.Handle("/{id:[0-9]+}/working-hours",
		middleware.RequireStaff(http.HandlerFunc(r.doctorScheduleHandler.UpdateWorkingHours)),
	).Methods(http.MethodPut)

	r.router.Use(r.metrics.Middleware)
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
