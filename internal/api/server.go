// Package api provides the HTTP server for the AxStore back office.
// It exposes the bon ledger API, the account/auth flow the original
// storefront pages talk to, and the admin user directory.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axstore/axstore/internal/app/auth"
	"github.com/axstore/axstore/internal/app/bon"
	"github.com/axstore/axstore/internal/domain"
	"github.com/axstore/axstore/internal/infra/observability"
)

// Server is the back office HTTP API server.
type Server struct {
	ledger         *bon.Service
	accounts       *auth.Service
	sessions       *SessionCodec
	adminPassword  string
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(ledger *bon.Service, accounts *auth.Service, sessions *SessionCodec, adminPassword string) *Server {
	return &Server{
		ledger:        ledger,
		accounts:      accounts,
		sessions:      sessions,
		adminPassword: adminPassword,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(observability.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account flow (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/reset-start", s.handleResetStart)
		r.Post("/reset-verify", s.handleResetVerify)
		r.Post("/reset-final", s.handleResetFinal)
	})

	// Bon ledger (requires a session)
	r.Route("/api/bon", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/list-customers", s.handleListCustomers)
		r.Get("/get", s.handleGetCustomer)
		r.Get("/summary", s.handleSummary)
		r.Post("/create-customer", s.handleCreateCustomer)
		r.Post("/add-trx", s.handleAddTransaction)
		r.Post("/update-trx", s.handleUpdateTransaction)
		r.Post("/delete-trx", s.handleDeleteTransaction)
		r.Post("/rename", s.handleRename)
		r.Post("/rekey", s.handleRekey)
	})

	// Admin (requires a session plus the admin password)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Use(s.requireAdmin)
		r.Get("/users", s.handleListUsers)
		r.Post("/delete-user", s.handleDeleteUser)
		r.Post("/generate-reset-code", s.handleGenerateResetCode)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Response Helpers ───────────────────────────────────────────────────────
// Responses carry the {"ok": ...} envelope the storefront pages expect.

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOK writes a success envelope with extra fields merged in.
func writeOK(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError maps a service error to its stable status and message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	msg := domain.ErrStoreUnavailable.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidDisplayName),
		errors.Is(err, domain.ErrNoOpIdentity),
		errors.Is(err, domain.ErrPasswordMismatch),
		errors.Is(err, domain.ErrResetCodeInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrWrongPassword):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrVersionConflict):
		status, msg = http.StatusConflict, err.Error()
	}

	writeJSON(w, status, map[string]interface{}{
		"ok":      false,
		"message": msg,
	})
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"ok":      false,
		"message": msg,
	})
}
