// Package metrics provides Prometheus metrics for the bridge daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Results used as label values.
const (
	ResultOK         = "ok"
	ResultIncomplete = "incomplete"
	ResultError      = "error"
	ResultSkipped    = "skipped"
	ResultCached     = "cached"
)

var (
	// ProtocolUpdatesTotal counts reads of protocol files by outcome.
	ProtocolUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beebridge_protocol_updates_total",
		Help: "Total number of protocol file reads, by file and result.",
	}, []string{"file", "result"})

	// ActionsTotal counts actions written to the action file.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beebridge_actions_total",
		Help: "Total number of actions posted for the remote player, by verb.",
	}, []string{"verb"})

	// MailboxOverwritesTotal counts actions replaced before they were written.
	MailboxOverwritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beebridge_mailbox_overwrites_total",
		Help: "Total number of pending actions overwritten by a newer one.",
	})

	// LifecycleTransitionsTotal counts lifecycle transitions by target state.
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beebridge_lifecycle_transitions_total",
		Help: "Total number of lifecycle transitions, by target state.",
	}, []string{"state"})

	// UploadsTotal counts artwork uploads by outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beebridge_uploads_total",
		Help: "Total number of artwork uploads, by result.",
	}, []string{"result"})

	// PresenceUpdatesTotal counts presence updates by outcome.
	PresenceUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beebridge_presence_updates_total",
		Help: "Total number of presence updates, by result.",
	}, []string{"result"})

	// Attached is 1 while the remote plugin is active.
	Attached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beebridge_attached",
		Help: "Whether the remote player plugin is currently active.",
	})
)

// RecordProtocolUpdate increments the protocol update counter.
func RecordProtocolUpdate(file, result string) {
	ProtocolUpdatesTotal.WithLabelValues(file, result).Inc()
}

// RecordAction increments the action counter.
func RecordAction(verb string) {
	ActionsTotal.WithLabelValues(verb).Inc()
}

// RecordMailboxOverwrite increments the overwrite counter.
func RecordMailboxOverwrite() {
	MailboxOverwritesTotal.Inc()
}

// RecordTransition increments the transition counter and updates the gauge.
func RecordTransition(state string, attached bool) {
	LifecycleTransitionsTotal.WithLabelValues(state).Inc()
	if attached {
		Attached.Set(1)
	} else {
		Attached.Set(0)
	}
}

// RecordUpload increments the upload counter.
func RecordUpload(result string) {
	UploadsTotal.WithLabelValues(result).Inc()
}

// RecordPresenceUpdate increments the presence update counter.
func RecordPresenceUpdate(result string) {
	PresenceUpdatesTotal.WithLabelValues(result).Inc()
}
