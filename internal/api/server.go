// SPDX-License-Identifier: MIT

// Package api exposes the command surface over HTTP for the local desktop
// shell and operator tooling. Every command is a POST under /api/commands;
// validation failures map to 422, everything else to 500.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/commands"
	"github.com/gymops/leadpilot/internal/log"
)

const headerRequestID = "X-Request-ID"

// Server routes HTTP requests to the command service.
type Server struct {
	service *commands.Service
	logger  zerolog.Logger
}

// New builds a Server over the command service.
func New(service *commands.Service) *Server {
	return &Server{
		service: service,
		logger:  log.WithComponent("api"),
	}
}

// Router assembles the chi router with request IDs, rate limiting, the
// command endpoints, health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/commands", func(r chi.Router) {
		r.Use(commandRateLimit())

		r.Post("/create_lead", s.handleCreateLead)
		r.Post("/list_leads", s.handleListLeads)
		r.Post("/search_leads", s.handleSearchLeads)
		r.Post("/list_agent_queue", s.handleListAgentQueue)
		r.Post("/get_lead_detail", s.handleGetLeadDetail)
		r.Post("/simulate_inbound_sms", s.handleSimulateInboundSMS)
		r.Post("/get_today_report", s.handleGetTodayReport)
		r.Post("/get_kill_switch", s.handleGetKillSwitch)
		r.Post("/set_kill_switch", s.handleSetKillSwitch)
		r.Post("/run_due_jobs", s.handleRunDueJobs)
		r.Post("/agent_dry_run", s.handleAgentDryRun)
		r.Post("/agent_execute", s.handleAgentExecute)
		r.Post("/log_client_error", s.handleLogClientError)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestID adds a unique ID to every request.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(headerRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger := log.WithContext(r.Context(), s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
