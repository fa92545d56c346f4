// Package finance serves monthly revenue and cost summaries built by the
// rollup calculator from persisted quotes.
package finance

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

type Service interface {
	Summary(ctx context.Context, input SummaryInput) (*rollup.PeriodSummary, error)
}

// SummaryInput bounds the summary window. From is inclusive and To exclusive.
// An empty Currency uses the configured reporting currency.
type SummaryInput struct {
	From     *time.Time
	To       *time.Time
	Currency enums.Currency
}

type ServiceParams struct {
	Repository        Repository
	Rates             *money.RateTable
	ReportingCurrency enums.Currency
	Logger            *logger.Logger
	Runner            retry.Runner
}

type service struct {
	repo      Repository
	rates     *money.RateTable
	reporting enums.Currency
	logg      *logger.Logger
	runner    retry.Runner
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, errors.New("finance repository required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Rates == nil {
		params.Rates = money.NewRateTable()
	}
	if params.ReportingCurrency == "" {
		params.ReportingCurrency = enums.CurrencyEUR
	}
	return &service{
		repo:      params.Repository,
		rates:     params.Rates,
		reporting: params.ReportingCurrency,
		logg:      params.Logger,
		runner:    params.Runner,
	}, nil
}

func (s *service) Summary(ctx context.Context, input SummaryInput) (*rollup.PeriodSummary, error) {
	currency := input.Currency
	if currency == "" {
		currency = s.reporting
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", currency)
	}
	if input.From != nil && input.To != nil && !input.From.Before(*input.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}

	var (
		income []models.ClientQuote
		costs  []rollup.CostRecord
	)
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			rows, err := s.repo.ListIncome(gctx)
			if err != nil {
				return dbpkg.Classify(err, "load income")
			}
			income = rows
			return nil
		})
		g.Go(func() error {
			rows, err := s.repo.ListCosts(gctx)
			if err != nil {
				return dbpkg.Classify(err, "load costs")
			}
			costs = rows
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		s.logg.Error(ctx, "finance.load_failed", err)
		return nil, err
	}

	summary, err := rollup.Summarize(income, costs, rollup.SummaryOptions{
		ReportingCurrency: currency,
		Rates:             s.rates,
		From:              input.From,
		To:                input.To,
	})
	if err != nil {
		logCtx := s.logg.WithField(ctx, "currency", string(currency))
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "finance.summary_rejected")
		return nil, err
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"currency": string(currency),
		"months":   len(summary.Months),
		"sales":    summary.Totals.Sales,
		"costs":    summary.Totals.Purchases,
	}), "finance.summary_built")
	return summary, nil
}
