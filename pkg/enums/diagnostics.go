package enums

// CheckStatus is the outcome of a single consistency check.
type CheckStatus string

const (
	CheckStatusPass    CheckStatus = "pass"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusFail    CheckStatus = "fail"
)

// HealthStatus is the aggregate outcome of a diagnostics report.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// Severity orders health statuses for metrics; higher is worse.
func (h HealthStatus) Severity() int {
	switch h {
	case HealthStatusWarning:
		return 1
	case HealthStatusCritical:
		return 2
	default:
		return 0
	}
}
