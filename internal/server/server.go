// Package server exposes the decoder flow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/common/errors"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/flow"
	"breakfear-decoder/internal/payments"
)

const maxWebhookBody = 64 << 10

// ReadyCheck reports whether a backing dependency is usable.
type ReadyCheck func(ctx context.Context) error

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

type Options struct {
	CookieSecure   bool
	RequestTimeout time.Duration
}

type Server struct {
	flow    *flow.Service
	proxy   http.Handler
	webhook WebhookProcessor
	checks  map[string]ReadyCheck
	opts    Options
	router  *chi.Mux
	logger  logger.Logger
}

func New(svc *flow.Service, opts Options, log logger.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Server{
		flow:   svc,
		checks: make(map[string]ReadyCheck),
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "server"}),
	}
}

func (s *Server) WithProxy(h http.Handler) *Server {
	s.proxy = h
	return s
}

func (s *Server) WithWebhook(p WebhookProcessor) *Server {
	s.webhook = p
	return s
}

// WithReadyCheck adds a dependency checked by /ready.
func (s *Server) WithReadyCheck(name string, check ReadyCheck) *Server {
	s.checks[name] = check
	return s
}

// Handler builds the router. Call it once all dependencies are attached.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.setupRoutes()
	}
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if s.proxy != nil {
		r.Handle("/api/decoder", s.proxy)
		r.Handle("/.netlify/functions/decoder", s.proxy)
	}
	if s.webhook != nil {
		r.Post("/api/v1/payments/webhook", s.handleWebhook)
	}

	r.With(middleware.Timeout(s.opts.RequestTimeout)).Get("/return", s.handleReturn)

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Use(s.session)

		r.Get("/", s.handleView)
		r.Post("/begin", s.handleBegin)
		r.Post("/consent", s.handleConsent)
		r.Post("/questions", s.handleSubmit)
		r.Post("/next", s.handleNext)
	})

	s.router = r
}

// ==========================
// Session handlers
// ==========================

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.flow.View(r.Context(), visitorID(r.Context()))
	s.respondView(w, view, err)
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	view, err := s.flow.Begin(r.Context(), visitorID(r.Context()))
	s.respondView(w, view, err)
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	var form flow.DisclaimerForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}
	view, err := s.flow.Consent(r.Context(), visitorID(r.Context()), form)
	s.respondView(w, view, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var form flow.QuestionForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}
	view, err := s.flow.Submit(r.Context(), visitorID(r.Context()), form)
	s.respondView(w, view, err)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	view, err := s.flow.AskAnother(r.Context(), visitorID(r.Context()))
	s.respondView(w, view, err)
}

// handleReturn is the payment link success URL. The purchase parameter is
// consumed once, then the browser is sent back to the app without it.
func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := cookieVisitor(r)
	if !ok {
		id, ok = validID(r.URL.Query().Get("session"))
	}
	if ok {
		s.setCookie(w, id)
		sig := access.NewSignal(r.URL.Query().Get("purchase"))
		if _, err := s.flow.ReturnFromPayment(r.Context(), id, sig); err != nil {
			s.logger.WithError(err).Error("payment return failed", map[string]interface{}{"visitorId": id})
		}
	} else {
		s.logger.Warn("payment return without a session", nil)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ==========================
// Payments webhook
// ==========================

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}
	if err := s.webhook.Process(r.Context(), payload, r.Header.Get(payments.SignatureHeader)); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ==========================
// Health
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ==========================
// Responses
// ==========================

type errorBody struct {
	Code     errors.ErrorCode       `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) respondView(w http.ResponseWriter, view *flow.View, err error) {
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	std := errors.AsStandard(err)
	status := errors.HTTPStatus(std.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{"code": string(std.Code), "error": err.Error()})
	}
	respondJSON(w, status, errorBody{
		Code:     std.Code,
		Message:  std.Message,
		Details:  std.Details,
		Metadata: std.Metadata,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
