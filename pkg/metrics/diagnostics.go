package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DiagnosticsMetrics exposes the latest consistency report.
type DiagnosticsMetrics struct {
	status   prometheus.Gauge
	findings *prometheus.GaugeVec
}

func NewDiagnosticsMetrics(reg prometheus.Registerer) *DiagnosticsMetrics {
	if reg == nil {
		return &DiagnosticsMetrics{}
	}
	status := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sourcing_diagnostics_status",
		Help: "Latest diagnostics status: 0 healthy, 1 warning, 2 critical.",
	})
	findings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sourcing_diagnostics_findings",
		Help: "Findings per check in the latest diagnostics run.",
	}, []string{"check", "status"})
	reg.MustRegister(status, findings)
	return &DiagnosticsMetrics{status: status, findings: findings}
}

// SetStatus records the aggregate severity of the latest report.
func (m *DiagnosticsMetrics) SetStatus(severity int) {
	if m == nil || m.status == nil {
		return
	}
	m.status.Set(float64(severity))
}

// SetFindings records the finding count for a check. Label sets from previous
// runs are reset so a check that changed status does not linger.
func (m *DiagnosticsMetrics) SetFindings(check, status string, count int) {
	if m == nil || m.findings == nil {
		return
	}
	m.findings.DeletePartialMatch(prometheus.Labels{"check": normalizeLabel(check)})
	m.findings.WithLabelValues(normalizeLabel(check), normalizeLabel(status)).Set(float64(count))
}
