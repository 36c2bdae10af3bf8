package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/interest"
	"github.com/joescharf/ghostvault/internal/logging"
	"github.com/joescharf/ghostvault/internal/notify"
	"github.com/joescharf/ghostvault/internal/store"
	"github.com/joescharf/ghostvault/internal/vault"
)

// Deps are the services behind the API.
type Deps struct {
	Auth       *auth.Service
	Vault      *vault.Service
	Interests  *interest.Service
	Notify     *notify.Service
	Hub        *events.Hub
	Logger     *zap.Logger
	CORSOrigin string        // defaults to "*"
	Heartbeat  time.Duration // SSE keep-alive interval
}

// Server provides the REST API handlers.
type Server struct {
	auth       *auth.Service
	vault      *vault.Service
	interests  *interest.Service
	notify     *notify.Service
	hub        *events.Hub
	logger     *zap.Logger
	corsOrigin string
	heartbeat  time.Duration
}

// NewServer creates a new API server.
func NewServer(d Deps) *Server {
	s := &Server{
		auth:       d.Auth,
		vault:      d.Vault,
		interests:  d.Interests,
		notify:     d.Notify,
		hub:        d.Hub,
		logger:     d.Logger,
		corsOrigin: d.CORSOrigin,
		heartbeat:  d.Heartbeat,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 25 * time.Second
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/signup", s.signUp)
	mux.HandleFunc("POST /api/v1/auth/signin", s.signIn)
	mux.HandleFunc("POST /api/v1/auth/signout", s.authed(s.signOut))

	mux.HandleFunc("GET /api/v1/me", s.authed(s.getMe))
	mux.HandleFunc("PUT /api/v1/me", s.authed(s.updateMe))
	mux.HandleFunc("POST /api/v1/me/device", s.authed(s.registerDevice))

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.authed(s.createProject))
	mux.HandleFunc("POST /api/v1/projects/analyze", s.authed(s.analyzeProject))
	mux.HandleFunc("POST /api/v1/projects/refresh", s.authed(s.refreshAllProjects))
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.authed(s.deleteProject))
	mux.HandleFunc("POST /api/v1/projects/{id}/refresh", s.authed(s.refreshProject))
	mux.HandleFunc("GET /api/v1/projects/{id}/contact", s.authed(s.projectContact))
	mux.HandleFunc("GET /api/v1/projects/{id}/interests", s.authed(s.projectInterestStatus))
	mux.HandleFunc("POST /api/v1/projects/{id}/interests", s.authed(s.createInterest))

	mux.HandleFunc("GET /api/v1/interests/sent", s.authed(s.sentInterests))
	mux.HandleFunc("GET /api/v1/interests/incoming", s.authed(s.incomingInterests))
	mux.HandleFunc("PUT /api/v1/interests/{id}", s.authed(s.decideInterest))

	mux.HandleFunc("GET /api/v1/dashboard", s.authed(s.dashboard))
	mux.HandleFunc("GET /api/v1/dashboard/stream", s.authed(s.dashboardStream))

	mux.HandleFunc("GET /api/v1/notifications", s.authed(s.listNotifications))
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", s.authed(s.markNotificationRead))

	mux.HandleFunc("GET /api/v1/vitality", s.vitality)

	return s.corsMiddleware(recoverMiddleware(s.logger, requestIDMiddleware(s.observe(mux))))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrNotCreator),
		errors.Is(err, interest.ErrNotSenior),
		errors.Is(err, interest.ErrContactLocked):
		return http.StatusForbidden
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, interest.ErrAlreadyRequested):
		return http.StatusConflict
	case errors.Is(err, vault.ErrRepoUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, vault.ErrTitleRequired),
		errors.Is(err, interest.ErrMessageRequired),
		errors.Is(err, interest.ErrNoCreatorEmail),
		errors.Is(err, interest.ErrOwnProject),
		errors.Is(err, interest.ErrInvalidStatus),
		errors.Is(err, notify.ErrEmptyToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.For(r.Context(), s.logger).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
