package salesquotes

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
	"github.com/angelmondragon/sourcing-engine/internal/notifications"
	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

const (
	sequenceQuote   = "quote"
	sequenceInvoice = "invoice"
)

var maxTVARate = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the client sales-quote lifecycle. Every result carries totals
// recomputed from the stored items.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*View, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context, filter ListFilter) ([]View, error)
	Update(ctx context.Context, input UpdateInput) (*View, error)
	MarkSent(ctx context.Context, input ActionInput) (*View, error)
	ClientRespond(ctx context.Context, input RespondInput) (*View, error)
	PromoteToSale(ctx context.Context, input ActionInput) (*View, error)
	GenerateInvoice(ctx context.Context, input ActionInput) (*View, error)
	History(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error)
}

type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Ledger     ledger.Service
	Outbox     outboxPublisher
	Composer   *notifications.Composer
	Metrics    *metrics.LifecycleMetrics
	Logger     *logger.Logger
	Runner     retry.Runner
	Clock      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	outbox   outboxPublisher
	composer *notifications.Composer
	metrics  *metrics.LifecycleMetrics
	logg     *logger.Logger
	runner   retry.Runner
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("sales quote repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	composer := params.Composer
	if composer == nil {
		composer = notifications.NewComposer("")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repository,
		tx:       params.Tx,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		composer: composer,
		metrics:  params.Metrics,
		logg:     logg,
		runner:   params.Runner,
		now:      clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*View, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.ClientCompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client company is required")
	}
	currency, err := enums.ParseCurrency(string(input.Currency))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	if err := validateTVARate(input.TVARate); err != nil {
		return nil, err
	}
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	var created *models.ClientQuote
	err = s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := repo.FindCompany(ctx, input.ClientCompanyID); err != nil {
				return classifyLoad(err, "client company")
			}
			date := s.now()
			if input.Date != nil {
				date = input.Date.UTC()
			}
			if input.ValidUntil != nil && input.ValidUntil.Before(date) {
				return pkgerrors.New(pkgerrors.CodeValidation, "valid_until cannot precede the quote date")
			}
			seq, err := repo.NextNumber(ctx, sequenceQuote, date.Year())
			if err != nil {
				return dbpkg.Classify(err, "allocate quote number")
			}
			quote := &models.ClientQuote{
				ID:              uuid.New(),
				ClientCompanyID: input.ClientCompanyID,
				RequestID:       input.RequestID,
				QuoteNumber:     formatNumber("Q", date.Year(), seq),
				Date:            date,
				ValidUntil:      input.ValidUntil,
				TVARate:         input.TVARate,
				Currency:        currency,
				Status:          enums.ClientQuoteStatusDraft,
				Notes:           input.Notes,
				Version:         1,
			}
			quote.Items = buildItems(quote.ID, input.Items)
			if err := repo.Create(ctx, quote); err != nil {
				return dbpkg.Classify(err, "create client quote")
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.ClientQuoteRef(quote.ID), "quote "+quote.QuoteNumber+" created", input.Actor); err != nil {
				return err
			}
			created = quote
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "client_quote.create", err)
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"entity":       "client_quote",
		"entity_id":    created.ID.String(),
		"quote_number": created.QuoteNumber,
	}), "client quote created")
	return newView(created), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	var view *View
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		quote, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return classifyLoad(err, "client quote")
		}
		view = newView(quote)
		return nil
	})
	return view, err
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]View, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown client quote status %q", *filter.Status)
	}
	var views []View
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		rows, err := s.repo.List(ctx, filter)
		if err != nil {
			return dbpkg.Classify(err, "list client quotes")
		}
		views = make([]View, 0, len(rows))
		for i := range rows {
			views = append(views, *newView(&rows[i]))
		}
		return nil
	})
	return views, err
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*View, error) {
	if input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Items != nil {
		if err := validateItems(*input.Items); err != nil {
			return nil, err
		}
	}
	if input.TVARate != nil {
		if err := validateTVARate(*input.TVARate); err != nil {
			return nil, err
		}
	}

	var updated *models.ClientQuote
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			quote, err := s.load(ctx, repo, input.QuoteID, input.ExpectedVersion)
			if err != nil {
				return err
			}
			if !Editable(quote.Status) {
				return pkgerrors.Newf(pkgerrors.CodeQuoteLocked, "quote %s is %s and can no longer be edited", quote.QuoteNumber, quote.Status).
					WithDetails(map[string]any{"quote_id": quote.ID, "status": quote.Status})
			}

			now := s.now()
			updates := map[string]any{"updated_at": now}
			var changed []string
			if input.TVARate != nil {
				updates["tva_rate"] = *input.TVARate
				quote.TVARate = *input.TVARate
				changed = append(changed, "tva rate")
			}
			if input.ValidUntil != nil {
				if input.ValidUntil.Before(quote.Date) {
					return pkgerrors.New(pkgerrors.CodeValidation, "valid_until cannot precede the quote date")
				}
				updates["valid_until"] = *input.ValidUntil
				quote.ValidUntil = input.ValidUntil
				changed = append(changed, "validity")
			}
			if input.Notes != nil {
				updates["notes"] = *input.Notes
				quote.Notes = input.Notes
				changed = append(changed, "notes")
			}
			if err := s.writeVersioned(ctx, repo, quote, updates); err != nil {
				return err
			}
			if input.Items != nil {
				items := buildItems(quote.ID, *input.Items)
				if err := repo.ReplaceItems(ctx, quote.ID, items); err != nil {
					return dbpkg.Classify(err, "replace client quote items")
				}
				quote.Items = items
				changed = append(changed, "items")
			}

			action := "quote updated"
			if len(changed) > 0 {
				action += ": " + strings.Join(changed, ", ")
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.ClientQuoteRef(quote.ID), action, input.Actor); err != nil {
				return err
			}
			updated = quote
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "client_quote.update", err)
		return nil, err
	}
	return newView(updated), nil
}

func (s *service) MarkSent(ctx context.Context, input ActionInput) (*View, error) {
	return s.advance(ctx, "client_quote.mark_sent", input, enums.ClientQuoteStatusSent,
		func(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, now time.Time, updates map[string]any) ([]string, error) {
			if len(quote.Items) == 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote has no items to send")
			}
			updates["sent_at"] = now
			quote.SentAt = &now
			return []string{statusAction(enums.ClientQuoteStatusDraft, enums.ClientQuoteStatusSent, input.Note)}, nil
		})
}

func (s *service) ClientRespond(ctx context.Context, input RespondInput) (*View, error) {
	to := enums.ClientQuoteStatusRejected
	if input.Accept {
		to = enums.ClientQuoteStatusAccepted
	}
	return s.advance(ctx, "client_quote.respond", input.ActionInput, to,
		func(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, now time.Time, updates map[string]any) ([]string, error) {
			updates["responded_at"] = now
			quote.RespondedAt = &now
			return []string{statusAction(quote.Status, to, input.Note)}, nil
		})
}

// PromoteToSale records a sale. From sent it also records the client's
// acceptance, so the ledger shows both steps.
func (s *service) PromoteToSale(ctx context.Context, input ActionInput) (*View, error) {
	return s.advance(ctx, "client_quote.promote", input, enums.ClientQuoteStatusSale,
		func(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, now time.Time, updates map[string]any) ([]string, error) {
			var actions []string
			if quote.Status == enums.ClientQuoteStatusSent {
				updates["responded_at"] = now
				quote.RespondedAt = &now
				actions = append(actions, statusAction(enums.ClientQuoteStatusSent, enums.ClientQuoteStatusAccepted, ""))
			}
			updates["sold_at"] = now
			quote.SoldAt = &now
			actions = append(actions, statusAction(enums.ClientQuoteStatusAccepted, enums.ClientQuoteStatusSale, input.Note))
			return actions, nil
		})
}

func (s *service) GenerateInvoice(ctx context.Context, input ActionInput) (*View, error) {
	return s.advance(ctx, "client_quote.invoice", input, enums.ClientQuoteStatusInvoiced,
		func(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, now time.Time, updates map[string]any) ([]string, error) {
			seq, err := repo.NextNumber(ctx, sequenceInvoice, now.Year())
			if err != nil {
				return nil, dbpkg.Classify(err, "allocate invoice number")
			}
			number := formatNumber("INV", now.Year(), seq)
			updates["invoice_number"] = number
			updates["invoiced_at"] = now
			quote.InvoiceNumber = &number
			quote.InvoicedAt = &now
			return []string{
				statusAction(enums.ClientQuoteStatusSale, enums.ClientQuoteStatusInvoiced, input.Note),
				"invoice " + number + " generated",
			}, nil
		})
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		found, err := s.ledger.History(ctx, ledger.ClientQuoteRef(id))
		if err != nil {
			return err
		}
		entries = found
		return nil
	})
	return entries, err
}

type applyFunc func(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, now time.Time, updates map[string]any) ([]string, error)

// advance moves a quote to status to after re-reading it inside a transaction.
// apply adds the status-specific fields and returns the ledger actions.
func (s *service) advance(ctx context.Context, op string, input ActionInput, to enums.ClientQuoteStatus, apply applyFunc) (*View, error) {
	if input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}

	var (
		updated *models.ClientQuote
		from    enums.ClientQuoteStatus
	)
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			quote, err := s.load(ctx, repo, input.QuoteID, input.ExpectedVersion)
			if err != nil {
				return err
			}
			from = quote.Status
			if err := CheckTransition(quote.Status, to); err != nil {
				return err
			}
			now := s.now()
			updates := map[string]any{"status": to, "updated_at": now}
			actions, err := apply(ctx, tx, repo, quote, now, updates)
			if err != nil {
				return err
			}
			if err := s.writeVersioned(ctx, repo, quote, updates); err != nil {
				return err
			}
			quote.Status = to
			quote.UpdatedAt = now

			led := s.ledger.WithTx(tx)
			for _, action := range actions {
				if _, err := led.Append(ctx, ledger.ClientQuoteRef(quote.ID), action, input.Actor); err != nil {
					return err
				}
			}
			if to == enums.ClientQuoteStatusSent {
				if err := s.queueSent(ctx, tx, repo, quote, input.Actor); err != nil {
					return err
				}
			}
			updated = quote
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}

	s.metrics.IncTransition("client_quote", string(from), string(to))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"entity":       "client_quote",
		"entity_id":    updated.ID.String(),
		"quote_number": updated.QuoteNumber,
		"from":         from,
		"to":           to,
	}), "client quote status changed")
	return newView(updated), nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID, expectedVersion int) (*models.ClientQuote, error) {
	quote, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, classifyLoad(err, "client quote")
	}
	if expectedVersion != 0 && quote.Version != expectedVersion {
		return nil, pkgerrors.Newf(pkgerrors.CodeConcurrencyConflict, "client quote is at version %d, not %d", quote.Version, expectedVersion).
			WithDetails(map[string]any{"quote_id": quote.ID, "version": quote.Version, "expected": expectedVersion})
	}
	return quote, nil
}

func (s *service) writeVersioned(ctx context.Context, repo Repository, quote *models.ClientQuote, updates map[string]any) error {
	ok, err := repo.UpdateVersioned(ctx, quote.ID, quote.Version, updates)
	if err != nil {
		return dbpkg.Classify(err, "update client quote")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "client quote was modified concurrently").
			WithDetails(map[string]any{"quote_id": quote.ID, "version": quote.Version})
	}
	quote.Version++
	return nil
}

func (s *service) queueSent(ctx context.Context, tx *gorm.DB, repo Repository, quote *models.ClientQuote, actor string) error {
	company, err := repo.FindCompany(ctx, quote.ClientCompanyID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dbpkg.Classify(err, "load client company")
	}
	recipient := ""
	if company != nil && company.ContactEmail != nil {
		recipient = *company.ContactEmail
	}
	event, ok := s.composer.ClientQuoteSent(quote, recipient, rollup.SalesTotal(quote))
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "entity_id", quote.ID.String()), "client company has no contact email; notification skipped")
		return nil
	}
	if err := notifications.Queue(ctx, s.outbox, tx, enums.AggregateClientQuote, quote.ID, actor, event); err != nil {
		return dbpkg.Classify(err, "queue notification")
	}
	return nil
}

func (s *service) reject(ctx context.Context, op string, err error) {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	s.metrics.IncRejection(op, string(code))
	if code == pkgerrors.CodeInternal || pkgerrors.MetadataFor(code).Retryable {
		s.logg.Error(s.logg.WithField(ctx, "operation", op), "client quote operation failed", err)
	}
}

func validateItems(items []ItemInput) error {
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d description is required", i)
		}
		if !item.Quantity.IsPositive() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d unit price cannot be negative", i)
		}
		if !money.QuantityColumn.Fits(item.Quantity) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d quantity %s exceeds %d decimal places or the supported range", i, item.Quantity, money.QuantityColumn.Scale)
		}
		if !money.PriceColumn.Fits(item.UnitPrice) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d unit price %s exceeds %d decimal places or the supported range", i, item.UnitPrice, money.PriceColumn.Scale)
		}
	}
	return nil
}

func validateTVARate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxTVARate) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "tva rate %s must be between 0 and 100", rate)
	}
	if !money.RateColumn.Fits(rate) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "tva rate %s allows at most %d decimal places", rate, money.RateColumn.Scale)
	}
	return nil
}

func buildItems(quoteID uuid.UUID, inputs []ItemInput) []models.ClientQuoteItem {
	items := make([]models.ClientQuoteItem, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, models.ClientQuoteItem{
			ID:            uuid.New(),
			ClientQuoteID: quoteID,
			Position:      i + 1,
			Description:   strings.TrimSpace(in.Description),
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
		})
	}
	return items
}

func formatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

func statusAction(from, to enums.ClientQuoteStatus, note string) string {
	action := fmt.Sprintf("status changed from %s to %s", from, to)
	if note = strings.TrimSpace(note); note != "" {
		action += ": " + note
	}
	return action
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
