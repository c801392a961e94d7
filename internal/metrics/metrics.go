package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnero_webhook_events_ingested_total",
			Help: "Normalized webhook events durably stored in the inbox",
		},
		[]string{"event_type"},
	)

	WebhookEventsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_webhook_events_deduped_total",
			Help: "Webhook events absorbed by the inbox uniqueness constraint",
		},
	)

	WebhookAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_webhook_auth_failures_total",
			Help: "Webhook deliveries rejected for a bad signature",
		},
	)

	InboxRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnero_inbox_rows_processed_total",
			Help: "Inbox rows handled to completion, by event type",
		},
		[]string{"event_type"},
	)

	InboxRowsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_inbox_rows_failed_total",
			Help: "Inbox row processing attempts that failed",
		},
	)

	InboxRowsPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_inbox_rows_poisoned_total",
			Help: "Inbox rows parked after exhausting the retry budget",
		},
	)

	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnero_outbound_messages_total",
			Help: "Outbound provider sends, by result",
		},
		[]string{"status"},
	)

	AppointmentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnero_appointments_created_total",
			Help: "Appointments inserted, by initial status",
		},
		[]string{"status"},
	)

	AppointmentsCanceled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_appointments_canceled_total",
			Help: "Appointments explicitly canceled",
		},
	)

	AppointmentsRescheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_appointments_rescheduled_total",
			Help: "Appointments moved to a new time range",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turnero_holds_expired_total",
			Help: "Holds canceled by the expiry sweep",
		},
	)
)
