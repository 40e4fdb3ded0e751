package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/NelsonFranklinWere/emil/backend/internal/config"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/gate"
	"github.com/NelsonFranklinWere/emil/backend/internal/metrics"
)

// EventLister serves the audit trail. nil disables the endpoint.
type EventLister interface {
	ListAccessEvents(ctx context.Context, limit int) ([]*domain.AccessEvent, error)
}

type Handler struct {
	validate   *validator.Validate
	translator ut.Translator
	config     *config.Config
	gate       *gate.Gate
	upstream   http.Handler
	metrics    *metrics.Metrics
	events     EventLister
	log        *slog.Logger

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, g *gate.Gate, upstream http.Handler, m *metrics.Metrics, events EventLister, logger *slog.Logger) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	en := en.New()
	uni := ut.New(en, en)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	return &Handler{
		validate:   validate,
		translator: trans,
		config:     cfg,
		gate:       g,
		upstream:   upstream,
		metrics:    m,
		events:     events,
		log:        logger,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)
	h.Mux.Use(h.metrics.Instrument)

	h.Mux.Get("/healthz", h.Health)
	h.Mux.Handle("/metrics", h.metrics.Handler())
	h.Mux.Get(h.forbiddenPath(), h.Forbidden)

	// everything below passes the gate; it only acts on the restricted namespace
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.gate.Handler)

		r.Route("/api/admin/gateway", func(r chi.Router) {
			r.Use(h.RequiredRole([]domain.Role{domain.RoleAdmin}))
			r.Get("/whoami", h.WhoAmI)
			if h.events != nil {
				r.Get("/access-events", h.ListAccessEvents)
			}
		})

		r.Handle("/*", h.upstream)
	})
}

func (h *Handler) forbiddenPath() string {
	if h.config != nil && h.config.Gate.ForbiddenPath != "" {
		return h.config.Gate.ForbiddenPath
	}
	return gate.DefaultForbiddenPath
}
