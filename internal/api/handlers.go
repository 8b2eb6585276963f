// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gymops/leadpilot/internal/agent"
	"github.com/gymops/leadpilot/internal/commands"
	"github.com/gymops/leadpilot/internal/validate"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCommandError maps validation failures to 422 and everything else to
// 500; the body carries the Alert message verbatim.
func writeCommandError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var verr *validate.Error
	if errors.As(err, &verr) {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var input commands.LeadCreateInput
	if !decode(w, r, &input) {
		return
	}
	result, err := s.service.CreateLead(r.Context(), input)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.service.ListLeads(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleSearchLeads(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &req) {
		return
	}
	leads, err := s.service.SearchLeads(r.Context(), req.Query)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleListAgentQueue(w http.ResponseWriter, r *http.Request) {
	leads, err := s.service.ListAgentQueue(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleGetLeadDetail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID int64 `json:"lead_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	detail, err := s.service.GetLeadDetail(r.Context(), req.LeadID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSimulateInboundSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID int64  `json:"lead_id"`
		Body   string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.service.SimulateInboundSMS(r.Context(), req.LeadID, req.Body); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTodayReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetTodayReport(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetKillSwitch(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.service.GetKillSwitch(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleSetKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.service.SetKillSwitch(r.Context(), req.Enabled); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleRunDueJobs(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunDueJobs(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgentDryRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action agent.Action `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := s.service.AgentDryRun(r.Context(), req.Action)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAgentExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action agent.Action `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.AgentExecute(r.Context(), req.Action))
}

func (s *Server) handleLogClientError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source  string  `json:"source"`
		Message string  `json:"message"`
		Stack   *string `json:"stack"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.service.LogClientError(r.Context(), req.Source, req.Message, req.Stack); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
