package diagnostics

import (
	"context"
	"errors"
	"time"

	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

// Service produces consistency reports on demand.
type Service interface {
	Run(ctx context.Context) (*Report, error)
}

type ServiceParams struct {
	Store   Store
	Metrics *metrics.DiagnosticsMetrics
	Logger  *logger.Logger
	Runner  retry.Runner
	Clock   func() time.Time
}

type service struct {
	store   Store
	metrics *metrics.DiagnosticsMetrics
	logg    *logger.Logger
	runner  retry.Runner
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, errors.New("diagnostics store required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:   params.Store,
		metrics: params.Metrics,
		logg:    params.Logger,
		runner:  params.Runner,
		now:     params.Clock,
	}, nil
}

func (s *service) Run(ctx context.Context) (*Report, error) {
	var snap *Snapshot
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			return dbpkg.Classify(err, "load diagnostics snapshot")
		}
		snap = loaded
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "diagnostics.snapshot_failed", err)
		return nil, err
	}

	report := Evaluate(snap, s.now())
	s.metrics.SetStatus(report.Status.Severity())
	findings := 0
	for _, check := range report.Checks {
		s.metrics.SetFindings(check.Name, string(check.Status), len(check.Findings))
		findings += len(check.Findings)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"status":   report.Status,
		"findings": findings,
		"requests": len(snap.Requests),
		"quotes":   len(snap.Quotes),
	})
	switch report.Status {
	case enums.HealthStatusCritical:
		s.logg.Error(logCtx, "diagnostics.critical", errors.New(failedChecks(report)))
	case enums.HealthStatusWarning:
		s.logg.Warn(logCtx, "diagnostics.warning")
	default:
		s.logg.Info(logCtx, "diagnostics.healthy")
	}
	return report, nil
}

func failedChecks(report *Report) string {
	msg := "failed checks:"
	for _, check := range report.Checks {
		if check.Status == enums.CheckStatusFail {
			msg += " " + check.Name
		}
	}
	return msg
}
