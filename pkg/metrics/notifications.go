package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics records outbound email outcomes. Failures never block
// the transition that queued the message.
type NotificationMetrics struct {
	sent   *prometheus.CounterVec
	failed *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_notifications_sent_total",
		Help: "Notifications delivered to the mail relay.",
	}, []string{"kind"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_notifications_failed_total",
		Help: "Notification attempts that failed.",
	}, []string{"kind"})
	reg.MustRegister(sent, failed)
	return &NotificationMetrics{sent: sent, failed: failed}
}

func (m *NotificationMetrics) IncSent(kind string) {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *NotificationMetrics) IncFailed(kind string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(kind)).Inc()
}
