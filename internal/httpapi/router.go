// Package httpapi exposes the appointment operations over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/service"
)

const defaultRequestsPerSecond = 20

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	SupportAPIKey     string
	RequestsPerSecond int
	AllowedOrigins    []string
	// Health is checked by /healthz when set.
	Health Pinger
}

type Handler struct {
	appointments *service.AppointmentService
	gate         *service.SessionGate
	opts         Options
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewHandler(appointments *service.AppointmentService, gate *service.SessionGate, opts Options, logger *zap.Logger) *Handler {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		appointments: appointments,
		gate:         gate,
		opts:         opts,
		validate:     validate,
		logger:       logger,
	}
}

// Routes builds the router. Everything lives under /api/v1 except /healthz.
func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(h.accessLog)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerActorRole, headerActorID, headerSupportKey},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.opts.RequestsPerSecond, time.Second))

		r.Route("/appointments", func(r chi.Router) {
			r.With(h.requireActor).Post("/", h.createAppointment)

			r.Route("/{id}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(h.requireActor)
					r.Get("/", h.getAppointment)
					r.Post("/respond", h.respond)
					r.Post("/session/start", h.startSession)
					r.Post("/session/complete", h.completeSession)
					r.Post("/cancel", h.cancel)
					r.Post("/no-show", h.reportNoShow)
					r.Get("/policy", h.policy)
					r.Get("/countdown", h.countdown)
					r.Get("/countdown/stream", h.countdownStream)
					r.Get("/calendar.ics", h.calendar)
				})

				r.Group(func(r chi.Router) {
					r.Use(h.requireSupport)
					r.Get("/pins/{mode}", h.pinAttempts)
					r.Post("/pins/{mode}/unlock", h.unlockPin)
				})
			})
		})

		r.With(h.requireSupport).Put("/parties/{role}/{partyID}/telegram", h.linkParty)
	})

	return otelhttp.NewHandler(router, "appointments-api")
}
