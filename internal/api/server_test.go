// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/leadpilot/internal/agent"
	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/commands"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/inbound"
	"github.com/gymops/leadpilot/internal/jobs"
	"github.com/gymops/leadpilot/internal/slots"
	"github.com/gymops/leadpilot/internal/testutil"
)

var testStart = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	clock := testutil.NewClock(testStart)
	st := testutil.OpenStoreAlwaysOpen(t, clock)
	oracle := testutil.Oracle(t, st)
	recorder := audit.New(st.Queries, clock.Now)
	gw := gateway.New(st, oracle, recorder, clock.Now)
	generator := slots.New(st.Queries, oracle)
	processor := inbound.New(st, gw, generator, clock.Now)
	runner := jobs.New(st, gw, recorder, clock.Now)
	channel := agent.New(gw, recorder)
	service := commands.New(st, gw, processor, runner, channel, recorder, oracle,
		clock.Now, filepath.Join(t.TempDir(), "client_errors.log"))
	return New(service).Router()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateLeadRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, "/api/commands/create_lead",
		`{"phone_e164":"+15550001111","first_name":"Jamie","consent":true,"source":"walk-in"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"created":true`)

	rec = post(t, h, "/api/commands/list_leads", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "+15550001111")
}

func TestValidationFailureMapsTo422(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, "/api/commands/create_lead",
		`{"phone_e164":"5550001111","consent":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alert: ")
	assert.Contains(t, rec.Body.String(), "phone_e164 must be non-empty and start with '+'")
}

func TestMalformedBodyMapsTo400(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, "/api/commands/create_lead", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "fixed-id-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id-123", rec.Header().Get(headerRequestID))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestKillSwitchEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, "/api/commands/get_kill_switch", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())

	rec = post(t, h, "/api/commands/set_kill_switch", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, "/api/commands/get_kill_switch", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())
}

func TestAgentDryRunEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, "/api/commands/create_lead",
		`{"phone_e164":"+15550001111","first_name":"Jamie","consent":true,"source":"walk-in"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, "/api/commands/agent_dry_run",
		`{"action":{"action_type":"send_outbound","lead_id":1,"conversation_id":1,"body":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowed":true`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
