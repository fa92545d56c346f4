// Package diagnostics scans the store for data that breaks the lifecycle
// invariants and reports it. It never writes.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// Finding points at one offending row.
type Finding struct {
	EntityType string            `json:"entity_type"`
	EntityID   uuid.UUID         `json:"entity_id"`
	Severity   enums.CheckStatus `json:"severity"`
	Detail     string            `json:"detail"`
}

type CheckResult struct {
	Name     string            `json:"name"`
	Status   enums.CheckStatus `json:"status"`
	Detail   string            `json:"detail"`
	Findings []Finding         `json:"findings"`
}

type Report struct {
	Status      enums.HealthStatus `json:"status"`
	GeneratedAt time.Time          `json:"generated_at"`
	Checks      []CheckResult      `json:"checks"`
}

// Aggregate folds check outcomes into a report status: any fail is critical,
// otherwise any warning is a warning.
func Aggregate(checks []CheckResult) enums.HealthStatus {
	status := enums.HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case enums.CheckStatusFail:
			return enums.HealthStatusCritical
		case enums.CheckStatusWarning:
			status = enums.HealthStatusWarning
		}
	}
	return status
}

func newResult(name, description string, findings []Finding) CheckResult {
	status := enums.CheckStatusPass
	for _, f := range findings {
		if f.Severity == enums.CheckStatusFail {
			status = enums.CheckStatusFail
			break
		}
		status = enums.CheckStatusWarning
	}
	detail := description + ": no issues"
	if len(findings) > 0 {
		detail = fmt.Sprintf("%s: %d finding(s)", description, len(findings))
	}
	if findings == nil {
		findings = []Finding{}
	}
	return CheckResult{Name: name, Status: status, Detail: detail, Findings: findings}
}
