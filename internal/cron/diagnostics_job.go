package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/sourcing-engine/internal/diagnostics"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

type diagnosticsRunner interface {
	Run(ctx context.Context) (*diagnostics.Report, error)
}

type DiagnosticsJobParams struct {
	Logger      *logger.Logger
	Diagnostics diagnosticsRunner
	// FailOnCritical makes a critical report count as a failed job run.
	FailOnCritical bool
}

// NewDiagnosticsJob runs the consistency report on the cron cadence. The
// report itself is published through the diagnostics metrics.
func NewDiagnosticsJob(params DiagnosticsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Diagnostics == nil {
		return nil, fmt.Errorf("diagnostics service required")
	}
	return &diagnosticsJob{
		logg:           params.Logger,
		svc:            params.Diagnostics,
		failOnCritical: params.FailOnCritical,
	}, nil
}

type diagnosticsJob struct {
	logg           *logger.Logger
	svc            diagnosticsRunner
	failOnCritical bool
}

func (j *diagnosticsJob) Name() string { return "diagnostics" }

func (j *diagnosticsJob) Run(ctx context.Context) error {
	report, err := j.svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	failing := []string{}
	for _, check := range report.Checks {
		if check.Status != enums.CheckStatusPass {
			failing = append(failing, check.Name)
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"status":         report.Status,
		"checks":         len(report.Checks),
		"checks_flagged": failing,
	})
	j.logg.Info(logCtx, "diagnostics report generated")
	if j.failOnCritical && report.Status == enums.HealthStatusCritical {
		return fmt.Errorf("diagnostics report is critical: %v", failing)
	}
	return nil
}
