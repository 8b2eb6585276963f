// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus business metrics for the lead core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboundSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadpilot_outbound_sent_total",
		Help: "Outbound messages accepted by the gateway",
	})

	outboundBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadpilot_outbound_blocked_total",
		Help: "Outbound messages rejected by the gateway, by policy gate",
	}, []string{"gate"}) // gate=kill_switch|consent|opt_out|business_hours|rate_limit|idempotency|other

	inboundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadpilot_inbound_total",
		Help: "Inbound messages processed by the state machine",
	})

	bookingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadpilot_bookings_total",
		Help: "Appointments booked",
	})

	optOutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadpilot_opt_outs_total",
		Help: "Leads opted out",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadpilot_jobs_total",
		Help: "Scheduled job executions by result",
	}, []string{"result"}) // result=completed|failed|skipped

	staffFlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadpilot_staff_flags_total",
		Help: "Leads flagged for staff attention, by reason",
	}, []string{"reason"})
)

func IncOutboundSent()              { outboundSentTotal.Inc() }
func IncOutboundBlocked(gate string) { outboundBlockedTotal.WithLabelValues(gate).Inc() }
func IncInbound()                   { inboundTotal.Inc() }
func IncBooking()                   { bookingsTotal.Inc() }
func IncOptOut()                    { optOutsTotal.Inc() }
func IncJob(result string)          { jobsTotal.WithLabelValues(result).Inc() }
func IncStaffFlag(reason string)    { staffFlagsTotal.WithLabelValues(reason).Inc() }
