package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics counts state transitions and rejected operations across
// requests, supplier quotes and client quotes.
type LifecycleMetrics struct {
	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	winnerConflicts prometheus.Counter
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_transitions_total",
		Help: "Committed lifecycle transitions.",
	}, []string{"entity", "from", "to"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_operation_rejections_total",
		Help: "Lifecycle operations rejected with a typed error.",
	}, []string{"operation", "code"})
	winnerConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_winner_conflicts_total",
		Help: "Winner selections that lost to an existing or concurrent selection.",
	})
	reg.MustRegister(transitions, rejections, winnerConflicts)
	return &LifecycleMetrics{
		transitions:     transitions,
		rejections:      rejections,
		winnerConflicts: winnerConflicts,
	}
}

func (m *LifecycleMetrics) IncTransition(entity, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *LifecycleMetrics) IncRejection(operation, code string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

func (m *LifecycleMetrics) IncWinnerConflict() {
	if m == nil || m.winnerConflicts == nil {
		return
	}
	m.winnerConflicts.Inc()
}
