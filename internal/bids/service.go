package bids

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	"github.com/angelmondragon/sourcing-engine/internal/locking"
	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

const (
	selectedIndex = "uniq_supplier_quotes_selected_per_request"
	// sqlite reports the indexed column rather than the index name.
	selectedIndexSQLite = "supplier_quotes.request_id"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs bidding and winner selection on requests.
type Service interface {
	SubmitBid(ctx context.Context, input SubmitBidInput) (*models.SupplierQuote, error)
	SelectWinner(ctx context.Context, input SelectWinnerInput) (*Selection, error)
	RejectBid(ctx context.Context, input RejectBidInput) (*models.SupplierQuote, error)
	ReverseSelection(ctx context.Context, input ReverseSelectionInput) (*Selection, error)
	ListBids(ctx context.Context, requestID uuid.UUID) ([]models.SupplierQuote, error)
	Compare(ctx context.Context, requestID uuid.UUID, currency enums.Currency) (*rollup.QuoteComparison, error)
	History(ctx context.Context, quoteID uuid.UUID) ([]models.LedgerEntry, error)
}

type ServiceParams struct {
	Repository        Repository
	Tx                txRunner
	Ledger            ledger.Service
	Locker            locking.Locker
	Metrics           *metrics.LifecycleMetrics
	Logger            *logger.Logger
	Runner            retry.Runner
	Rates             *money.RateTable
	ReportingCurrency enums.Currency
	Clock             func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	ledger    ledger.Service
	locker    locking.Locker
	metrics   *metrics.LifecycleMetrics
	logg      *logger.Logger
	runner    retry.Runner
	rates     *money.RateTable
	reporting enums.Currency
	now       func() time.Time
}

// NewService builds the supplier quote engine. A nil Locker falls back to an
// in-process keyed mutex.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("bids repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	locker := params.Locker
	if locker == nil {
		locker = locking.NewKeyedMutex()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	reporting := params.ReportingCurrency
	if reporting == "" {
		reporting = enums.CurrencyEUR
	}
	return &service{
		repo:      params.Repository,
		tx:        params.Tx,
		ledger:    params.Ledger,
		locker:    locker,
		metrics:   params.Metrics,
		logg:      logg,
		runner:    params.Runner,
		rates:     params.Rates,
		reporting: reporting,
		now:       clock,
	}, nil
}

func (s *service) SubmitBid(ctx context.Context, input SubmitBidInput) (*models.SupplierQuote, error) {
	if err := validateBid(&input); err != nil {
		return nil, err
	}

	var created *models.SupplierQuote
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindRequest(ctx, input.RequestID)
			if err != nil {
				return classifyLoad(err, "request")
			}
			if req.Status != enums.RequestStatusOpenForQuotes {
				return pkgerrors.Newf(pkgerrors.CodeInvalidRequestState, "request is %s, bids are closed", req.Status).
					WithDetails(map[string]any{"request_id": req.ID, "status": req.Status})
			}

			components := make(map[uuid.UUID]struct{}, len(req.Components))
			for _, c := range req.Components {
				components[c.ID] = struct{}{}
			}
			quote := &models.SupplierQuote{
				ID:             uuid.New(),
				RequestID:      req.ID,
				Bidder:         input.Bidder,
				Currency:       input.Currency,
				ShippingCost:   input.ShippingCost,
				ImportationTax: input.ImportationTax,
				LeadTimeDays:   input.LeadTimeDays,
				Note:           input.Note,
				Status:         enums.SupplierQuoteStatusPending,
				Version:        1,
			}
			for i, item := range input.LineItems {
				if _, ok := components[item.ComponentID]; !ok {
					return pkgerrors.Newf(pkgerrors.CodeUnknownLineItem, "line item %d references a component outside the request", i).
						WithDetails(map[string]any{"component_id": item.ComponentID, "request_id": req.ID})
				}
				quote.LineItems = append(quote.LineItems, models.QuoteLineItem{
					ID:                   uuid.New(),
					QuoteID:              quote.ID,
					ComponentID:          item.ComponentID,
					UnitPrice:            item.UnitPrice,
					Quantity:             item.Quantity,
					LeadTimeDays:         item.LeadTimeDays,
					SubstitutePartNumber: item.SubstitutePartNumber,
				})
			}
			quote.Price = rollup.LineItemsPrice(quote).Value
			quote.Total = rollup.LandedCost(quote).Value

			if err := repo.CreateQuote(ctx, quote); err != nil {
				return dbpkg.Classify(err, "create supplier quote")
			}
			led := s.ledger.WithTx(tx)
			if _, err := led.Append(ctx, ledger.SupplierQuoteRef(quote.ID), "bid submitted by "+input.Bidder, input.Actor); err != nil {
				return err
			}
			if _, err := led.Append(ctx, ledger.RequestRef(req.ID), fmt.Sprintf("bid %s submitted by %s", quote.ID, input.Bidder), input.Actor); err != nil {
				return err
			}
			created = quote
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "bid.submit", err)
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entity":     "supplier_quote",
		"entity_id":  created.ID.String(),
		"request_id": created.RequestID.String(),
		"total":      rollup.FrozenTotal(created).Display(),
	})
	s.logg.Info(logCtx, "bid submitted")
	return created, nil
}

// SelectWinner marks one pending quote as the request's winner. Callers for
// the same request are serialized by the locker; the conditional writes and
// the partial unique index keep the at-most-one guarantee when they are not.
func (s *service) SelectWinner(ctx context.Context, input SelectWinnerInput) (*Selection, error) {
	if input.RequestID == uuid.Nil || input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id and quote id are required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}

	var out *Selection
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		unlock, err := s.locker.Lock(ctx, lockKey(input.RequestID))
		if err != nil {
			return err
		}
		defer unlock()

		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindRequest(ctx, input.RequestID)
			if err != nil {
				return classifyLoad(err, "request")
			}
			selected, err := repo.CountSelected(ctx, req.ID)
			if err != nil {
				return dbpkg.Classify(err, "count selected quotes")
			}
			if selected > 0 {
				return winnerTaken(req.ID)
			}
			if req.Status != enums.RequestStatusOpenForQuotes {
				return pkgerrors.Newf(pkgerrors.CodeInvalidRequestState, "request is %s, a winner can only be chosen while open for quotes", req.Status).
					WithDetails(map[string]any{"request_id": req.ID, "status": req.Status})
			}

			quote, err := repo.FindQuote(ctx, input.QuoteID)
			if err != nil {
				return classifyLoad(err, "supplier quote")
			}
			if quote.RequestID != req.ID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "supplier quote not found on this request").
					WithDetails(map[string]any{"request_id": req.ID, "quote_id": quote.ID})
			}
			if quote.Status != enums.SupplierQuoteStatusPending {
				return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "supplier quote is %s, only pending quotes can win", quote.Status).
					WithDetails(map[string]any{"quote_id": quote.ID, "status": quote.Status})
			}

			now := s.now()
			ok, err := repo.UpdateQuoteIf(ctx, quote.ID, quote.Version, enums.SupplierQuoteStatusPending, map[string]any{
				"status":      enums.SupplierQuoteStatusSelected,
				"selected_at": now,
				"updated_at":  now,
			})
			if err != nil {
				if isSelectedIndexViolation(err) {
					return winnerTaken(req.ID)
				}
				return dbpkg.Classify(err, "select supplier quote")
			}
			if !ok {
				return s.lostRace(ctx, repo, req.ID)
			}
			quote.Status = enums.SupplierQuoteStatusSelected
			quote.SelectedAt = &now
			quote.Version++

			ok, err = repo.UpdateRequestVersioned(ctx, req.ID, req.Version, map[string]any{
				"status":     enums.RequestStatusQuoteSelected,
				"updated_at": now,
			})
			if err != nil {
				return dbpkg.Classify(err, "update request")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "request was modified concurrently").
					WithDetails(map[string]any{"request_id": req.ID, "version": req.Version})
			}
			req.Status = enums.RequestStatusQuoteSelected
			req.Version++

			led := s.ledger.WithTx(tx)
			action := fmt.Sprintf("status changed from %s to %s: quote %s selected", enums.RequestStatusOpenForQuotes, enums.RequestStatusQuoteSelected, quote.ID)
			if _, err := led.Append(ctx, ledger.RequestRef(req.ID), action, input.Actor); err != nil {
				return err
			}
			if _, err := led.Append(ctx, ledger.SupplierQuoteRef(quote.ID), "quote selected as winner", input.Actor); err != nil {
				return err
			}
			out = &Selection{Request: req, Quote: quote}
			return nil
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeWinnerAlreadySelected) {
			s.metrics.IncWinnerConflict()
		}
		s.reject(ctx, "bid.select_winner", err)
		return nil, err
	}

	s.metrics.IncTransition("request", string(enums.RequestStatusOpenForQuotes), string(enums.RequestStatusQuoteSelected))
	s.metrics.IncTransition("supplier_quote", string(enums.SupplierQuoteStatusPending), string(enums.SupplierQuoteStatusSelected))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entity":      "request",
		"entity_id":   out.Request.ID.String(),
		"quote_id":    out.Quote.ID.String(),
		"landed_cost": rollup.LandedCost(out.Quote).Display(),
	})
	s.logg.Info(logCtx, "winning quote selected")
	return out, nil
}

func (s *service) RejectBid(ctx context.Context, input RejectBidInput) (*models.SupplierQuote, error) {
	if input.RequestID == uuid.Nil || input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id and quote id are required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	var rejected *models.SupplierQuote
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			quote, err := repo.FindQuote(ctx, input.QuoteID)
			if err != nil {
				return classifyLoad(err, "supplier quote")
			}
			if quote.RequestID != input.RequestID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "supplier quote not found on this request")
			}
			switch quote.Status {
			case enums.SupplierQuoteStatusSelected:
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "selected quote must be reversed before it can be rejected").
					WithDetails(map[string]any{"quote_id": quote.ID, "from": quote.Status, "to": enums.SupplierQuoteStatusRejected})
			case enums.SupplierQuoteStatusRejected:
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "supplier quote is already rejected").
					WithDetails(map[string]any{"quote_id": quote.ID, "from": quote.Status, "to": enums.SupplierQuoteStatusRejected})
			}

			ok, err := repo.UpdateQuoteIf(ctx, quote.ID, quote.Version, enums.SupplierQuoteStatusPending, map[string]any{
				"status":     enums.SupplierQuoteStatusRejected,
				"updated_at": s.now(),
			})
			if err != nil {
				return dbpkg.Classify(err, "reject supplier quote")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "supplier quote was modified concurrently").
					WithDetails(map[string]any{"quote_id": quote.ID, "version": quote.Version})
			}
			quote.Status = enums.SupplierQuoteStatusRejected
			quote.Version++

			action := "bid rejected"
			if reason != "" {
				action += ": " + reason
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.SupplierQuoteRef(quote.ID), action, input.Actor); err != nil {
				return err
			}
			rejected = quote
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "bid.reject", err)
		return nil, err
	}
	s.metrics.IncTransition("supplier_quote", string(enums.SupplierQuoteStatusPending), string(enums.SupplierQuoteStatusRejected))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"entity": "supplier_quote", "entity_id": rejected.ID.String()}), "bid rejected")
	return rejected, nil
}

// ReverseSelection reopens a request whose winner has not been ordered yet.
func (s *service) ReverseSelection(ctx context.Context, input ReverseSelectionInput) (*Selection, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	var out *Selection
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		unlock, err := s.locker.Lock(ctx, lockKey(input.RequestID))
		if err != nil {
			return err
		}
		defer unlock()

		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindRequest(ctx, input.RequestID)
			if err != nil {
				return classifyLoad(err, "request")
			}
			if req.Status != enums.RequestStatusQuoteSelected {
				return pkgerrors.Newf(pkgerrors.CodeInvalidRequestState, "request is %s, only quote_selected can be reversed", req.Status).
					WithDetails(map[string]any{"request_id": req.ID, "status": req.Status})
			}
			quote, err := repo.FindSelected(ctx, req.ID)
			if err != nil {
				return dbpkg.Classify(err, "load selected quote")
			}
			if quote == nil {
				return pkgerrors.New(pkgerrors.CodeInvalidRequestState, "request has no selected supplier quote").
					WithDetails(map[string]any{"request_id": req.ID})
			}

			now := s.now()
			ok, err := repo.UpdateQuoteIf(ctx, quote.ID, quote.Version, enums.SupplierQuoteStatusSelected, map[string]any{
				"status":      enums.SupplierQuoteStatusPending,
				"selected_at": nil,
				"updated_at":  now,
			})
			if err != nil {
				return dbpkg.Classify(err, "reverse supplier quote")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "supplier quote was modified concurrently").
					WithDetails(map[string]any{"quote_id": quote.ID, "version": quote.Version})
			}
			quote.Status = enums.SupplierQuoteStatusPending
			quote.SelectedAt = nil
			quote.Version++

			ok, err = repo.UpdateRequestVersioned(ctx, req.ID, req.Version, map[string]any{
				"status":     enums.RequestStatusOpenForQuotes,
				"updated_at": now,
			})
			if err != nil {
				return dbpkg.Classify(err, "update request")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "request was modified concurrently").
					WithDetails(map[string]any{"request_id": req.ID, "version": req.Version})
			}
			req.Status = enums.RequestStatusOpenForQuotes
			req.Version++

			action := fmt.Sprintf("status changed from %s to %s: selection of quote %s reversed", enums.RequestStatusQuoteSelected, enums.RequestStatusOpenForQuotes, quote.ID)
			if reason != "" {
				action += ": " + reason
			}
			led := s.ledger.WithTx(tx)
			if _, err := led.Append(ctx, ledger.RequestRef(req.ID), action, input.Actor); err != nil {
				return err
			}
			if _, err := led.Append(ctx, ledger.SupplierQuoteRef(quote.ID), "selection reversed", input.Actor); err != nil {
				return err
			}
			out = &Selection{Request: req, Quote: quote}
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "bid.reverse_selection", err)
		return nil, err
	}
	s.metrics.IncTransition("request", string(enums.RequestStatusQuoteSelected), string(enums.RequestStatusOpenForQuotes))
	s.metrics.IncTransition("supplier_quote", string(enums.SupplierQuoteStatusSelected), string(enums.SupplierQuoteStatusPending))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"entity": "request", "entity_id": out.Request.ID.String()}), "winner selection reversed")
	return out, nil
}

func (s *service) ListBids(ctx context.Context, requestID uuid.UUID) ([]models.SupplierQuote, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	var quotes []models.SupplierQuote
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindRequest(ctx, requestID); err != nil {
			return classifyLoad(err, "request")
		}
		found, err := s.repo.ListQuotes(ctx, requestID)
		if err != nil {
			return dbpkg.Classify(err, "list supplier quotes")
		}
		quotes = found
		return nil
	})
	return quotes, err
}

func (s *service) Compare(ctx context.Context, requestID uuid.UUID, currency enums.Currency) (*rollup.QuoteComparison, error) {
	if currency == "" {
		currency = s.reporting
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown currency %q", currency)
	}
	quotes, err := s.ListBids(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return rollup.CompareQuotes(requestID, quotes, currency, s.rates)
}

func (s *service) History(ctx context.Context, quoteID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		found, err := s.ledger.History(ctx, ledger.SupplierQuoteRef(quoteID))
		if err != nil {
			return err
		}
		entries = found
		return nil
	})
	return entries, err
}

// lostRace decides what a failed conditional quote write means: another
// winner landed, or the quote itself changed under us.
func (s *service) lostRace(ctx context.Context, repo Repository, requestID uuid.UUID) error {
	selected, err := repo.CountSelected(ctx, requestID)
	if err != nil {
		return dbpkg.Classify(err, "count selected quotes")
	}
	if selected > 0 {
		return winnerTaken(requestID)
	}
	return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "supplier quote was modified concurrently").
		WithDetails(map[string]any{"request_id": requestID})
}

func (s *service) reject(ctx context.Context, op string, err error) {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	s.metrics.IncRejection(op, string(code))
	if code == pkgerrors.CodeInternal || pkgerrors.MetadataFor(code).Retryable {
		s.logg.Error(s.logg.WithField(ctx, "operation", op), "bid operation failed", err)
	}
}

func validateBid(input *SubmitBidInput) error {
	if input.RequestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if err := requireActor(input.Actor); err != nil {
		return err
	}
	input.Bidder = strings.TrimSpace(input.Bidder)
	if input.Bidder == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "bidder is required")
	}
	currency, err := enums.ParseCurrency(string(input.Currency))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	input.Currency = currency
	if len(input.LineItems) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "a bid needs at least one line item")
	}
	for i, item := range input.LineItems {
		if item.ComponentID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line item %d component id is required", i)
		}
		if item.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line item %d quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line item %d unit price cannot be negative", i)
		}
		if !money.PriceColumn.Fits(item.UnitPrice) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line item %d unit price %s exceeds %d decimal places or the supported range", i, item.UnitPrice, money.PriceColumn.Scale)
		}
		if item.LeadTimeDays != nil && *item.LeadTimeDays < 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line item %d lead time cannot be negative", i)
		}
	}
	if input.ShippingCost.LessThan(decimal.Zero) || input.ImportationTax.LessThan(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping cost and importation tax cannot be negative")
	}
	if !money.PriceColumn.Fits(input.ShippingCost) || !money.PriceColumn.Fits(input.ImportationTax) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "shipping cost and importation tax allow at most %d decimal places", money.PriceColumn.Scale)
	}
	if input.LeadTimeDays < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "lead time cannot be negative")
	}
	return nil
}

func isSelectedIndexViolation(err error) bool {
	return dbpkg.IsUniqueViolation(err, selectedIndex) || dbpkg.IsUniqueViolation(err, selectedIndexSQLite)
}

func winnerTaken(requestID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeWinnerAlreadySelected, "a winning quote is already selected for this request").
		WithDetails(map[string]any{"request_id": requestID})
}

func lockKey(requestID uuid.UUID) string {
	return "select-winner:" + requestID.String()
}

func classifyLoad(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, what+" not found")
	}
	return dbpkg.Classify(err, "load "+what)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return nil
}
