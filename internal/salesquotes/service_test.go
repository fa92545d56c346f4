package salesquotes

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox/payloads"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	mu        sync.Mutex
	quotes    map[uuid.UUID]models.ClientQuote
	companies map[uuid.UUID]models.CompanyProfile
	sequences map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		quotes:    map[uuid.UUID]models.ClientQuote{},
		companies: map[uuid.UUID]models.CompanyProfile{},
		sequences: map[string]int{},
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, quote *models.ClientQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[quote.ID] = *quote
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote, ok := f.quotes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	quote.Items = append([]models.ClientQuoteItem(nil), quote.Items...)
	return &quote, nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]models.ClientQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClientQuote
	for _, q := range f.quotes {
		if filter.Status == nil || q.Status == *filter.Status {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote, ok := f.quotes[id]
	if !ok || quote.Version != version {
		return false, nil
	}
	if status, ok := updates["status"].(enums.ClientQuoteStatus); ok {
		quote.Status = status
	}
	if rate, ok := updates["tva_rate"].(decimal.Decimal); ok {
		quote.TVARate = rate
	}
	if number, ok := updates["invoice_number"].(string); ok {
		quote.InvoiceNumber = &number
	}
	quote.Version++
	f.quotes[id] = quote
	return true, nil
}

func (f *fakeRepo) ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []models.ClientQuoteItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote := f.quotes[quoteID]
	quote.Items = append([]models.ClientQuoteItem(nil), items...)
	f.quotes[quoteID] = quote
	return nil
}

func (f *fakeRepo) NextNumber(ctx context.Context, kind string, year int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s:%d", kind, year)
	f.sequences[key]++
	return f.sequences[key], nil
}

func (f *fakeRepo) FindCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	company, ok := f.companies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &company, nil
}

type fakeLedger struct {
	entries []models.LedgerEntry
}

func (f *fakeLedger) WithTx(tx *gorm.DB) ledger.Service { return f }

func (f *fakeLedger) Append(ctx context.Context, ref ledger.EntityRef, action, actor string) (*models.LedgerEntry, error) {
	entry := models.LedgerEntry{ID: uuid.New(), EntityType: ref.Type, EntityID: ref.ID, Action: action, Actor: actor}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) History(ctx context.Context, ref ledger.EntityRef) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.EntityID == ref.ID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fixture struct {
	svc     Service
	repo    *fakeRepo
	ledger  *fakeLedger
	outbox  *fakeOutbox
	company uuid.UUID
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := newFakeRepo()
	contact := "buyer@garage.example.com"
	company := models.CompanyProfile{ID: uuid.New(), Name: "Garage Martin", ContactEmail: &contact}
	repo.companies[company.ID] = company

	led := &fakeLedger{}
	box := &fakeOutbox{}
	svc, err := NewService(ServiceParams{
		Repository: repo,
		Tx:         fakeTx{},
		Ledger:     led,
		Outbox:     box,
		Clock:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{svc: svc, repo: repo, ledger: led, outbox: box, company: company.ID}
}

func (f fixture) create(t *testing.T, items ...ItemInput) *View {
	t.Helper()
	view, err := f.svc.Create(context.Background(), CreateInput{
		ClientCompanyID: f.company,
		TVARate:         decimal.NewFromInt(20),
		Currency:        enums.CurrencyEUR,
		Items:           items,
		Actor:           "manager-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return view
}

func item(qty, price int64) ItemInput {
	return ItemInput{Description: "Connector CONN-12", Quantity: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(price)}
}

func TestCreateNumbersQuotesPerYear(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, item(1, 10))
	second := f.create(t, item(1, 10))

	if first.Quote.QuoteNumber != "Q-2026-0001" || second.Quote.QuoteNumber != "Q-2026-0002" {
		t.Fatalf("unexpected numbers %s %s", first.Quote.QuoteNumber, second.Quote.QuoteNumber)
	}
	if first.Quote.Status != enums.ClientQuoteStatusDraft {
		t.Fatalf("expected draft, got %s", first.Quote.Status)
	}
}

func TestSentQuoteIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, item(2, 50))
	if got := created.Totals.Total.Display(); got != "120.00 EUR" {
		t.Fatalf("expected total 120.00 EUR, got %s", got)
	}

	sent, err := f.svc.MarkSent(ctx, ActionInput{QuoteID: created.Quote.ID, Actor: "manager-1"})
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if sent.Quote.SentAt == nil {
		t.Fatalf("expected sent_at to be stamped")
	}

	items := []ItemInput{item(3, 50)}
	_, err = f.svc.Update(ctx, UpdateInput{QuoteID: created.Quote.ID, Items: &items, Actor: "manager-1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeQuoteLocked) {
		t.Fatalf("expected QUOTE_LOCKED, got %v", err)
	}

	after, err := f.svc.Get(ctx, created.Quote.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := after.Totals.Total.Display(); got != "120.00 EUR" {
		t.Fatalf("total must stay 120.00 EUR, got %s", got)
	}

	if len(f.outbox.events) != 1 {
		t.Fatalf("expected one queued email, got %d", len(f.outbox.events))
	}
	event := f.outbox.events[0].Data.(payloads.NotificationRequestedEvent)
	if event.Kind != enums.NotificationClientQuoteSent || event.Recipient != "buyer@garage.example.com" {
		t.Fatalf("unexpected notification %+v", event)
	}
}

func TestDraftUpdateRecomputesTotals(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, item(2, 50))

	items := []ItemInput{item(3, 50)}
	rate := decimal.NewFromInt(10)
	updated, err := f.svc.Update(context.Background(), UpdateInput{
		QuoteID:         created.Quote.ID,
		ExpectedVersion: created.Quote.Version,
		Items:           &items,
		TVARate:         &rate,
		Actor:           "manager-1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := updated.Totals.Total.Display(); got != "165.00 EUR" {
		t.Fatalf("expected 165.00 EUR, got %s", got)
	}

	_, err = f.svc.Update(context.Background(), UpdateInput{QuoteID: created.Quote.ID, ExpectedVersion: created.Quote.Version, TVARate: &rate, Actor: "manager-1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected stale version to conflict, got %v", err)
	}
}

func TestLifecycleToInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, item(1, 100))
	id := created.Quote.ID

	if _, err := f.svc.PromoteToSale(ctx, ActionInput{QuoteID: id, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("draft cannot be promoted, got %v", err)
	}
	if _, err := f.svc.GenerateInvoice(ctx, ActionInput{QuoteID: id, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("draft cannot be invoiced, got %v", err)
	}
	if _, err := f.svc.MarkSent(ctx, ActionInput{QuoteID: id, Actor: "m"}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	accepted, err := f.svc.ClientRespond(ctx, RespondInput{ActionInput: ActionInput{QuoteID: id, Actor: "client"}, Accept: true})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if accepted.Quote.Status != enums.ClientQuoteStatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Quote.Status)
	}
	if _, err := f.svc.ClientRespond(ctx, RespondInput{ActionInput: ActionInput{QuoteID: id, Actor: "client"}}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("only sent quotes take responses, got %v", err)
	}
	if _, err := f.svc.PromoteToSale(ctx, ActionInput{QuoteID: id, Actor: "m"}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	invoiced, err := f.svc.GenerateInvoice(ctx, ActionInput{QuoteID: id, Actor: "m"})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if invoiced.Quote.InvoiceNumber == nil || *invoiced.Quote.InvoiceNumber != "INV-2026-0001" {
		t.Fatalf("unexpected invoice number %v", invoiced.Quote.InvoiceNumber)
	}
	if _, err := f.svc.MarkSent(ctx, ActionInput{QuoteID: id, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("invoiced quotes are terminal, got %v", err)
	}
}

func TestPromoteFromSentLedgersAcceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, item(1, 100))

	if _, err := f.svc.MarkSent(ctx, ActionInput{QuoteID: created.Quote.ID, Actor: "m"}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	sale, err := f.svc.PromoteToSale(ctx, ActionInput{QuoteID: created.Quote.ID, Actor: "m"})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if sale.Quote.Status != enums.ClientQuoteStatusSale || sale.Quote.RespondedAt == nil || sale.Quote.SoldAt == nil {
		t.Fatalf("unexpected sale %+v", sale.Quote)
	}

	history, _ := f.svc.History(ctx, created.Quote.ID)
	want := []string{
		"quote Q-2026-0001 created",
		"status changed from draft to sent",
		"status changed from sent to accepted",
		"status changed from accepted to sale",
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), history)
	}
	for i, action := range want {
		if history[i].Action != action {
			t.Fatalf("entry %d: expected %q, got %q", i, action, history[i].Action)
		}
	}
}

func TestMarkSentWithoutContactSkipsEmail(t *testing.T) {
	f := newFixture(t)
	company := models.CompanyProfile{ID: uuid.New(), Name: "No Mail SARL"}
	f.repo.companies[company.ID] = company
	view, err := f.svc.Create(context.Background(), CreateInput{
		ClientCompanyID: company.ID,
		Currency:        enums.CurrencyEUR,
		Items:           []ItemInput{item(1, 10)},
		Actor:           "m",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.MarkSent(context.Background(), ActionInput{QuoteID: view.Quote.ID, Actor: "m"}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("expected no email without a contact")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]CreateInput{
		"unknown currency": {ClientCompanyID: f.company, Currency: "ZZZ", Actor: "m"},
		"negative tva":     {ClientCompanyID: f.company, Currency: enums.CurrencyEUR, TVARate: decimal.NewFromInt(-1), Actor: "m"},
		"zero quantity":    {ClientCompanyID: f.company, Currency: enums.CurrencyEUR, Items: []ItemInput{item(0, 10)}, Actor: "m"},
		"missing company":  {Currency: enums.CurrencyEUR, Actor: "m"},
		"tva too precise":  {ClientCompanyID: f.company, Currency: enums.CurrencyEUR, TVARate: decimal.RequireFromString("20.0001"), Actor: "m"},
		"price too precise": {ClientCompanyID: f.company, Currency: enums.CurrencyEUR, Actor: "m", Items: []ItemInput{
			{Description: "Connector", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("0.00005")},
		}},
		"quantity too precise": {ClientCompanyID: f.company, Currency: enums.CurrencyEUR, Actor: "m", Items: []ItemInput{
			{Description: "Cable", Quantity: decimal.RequireFromString("1.2345"), UnitPrice: decimal.NewFromInt(3)},
		}},
	}
	for name, input := range cases {
		if _, err := f.svc.Create(ctx, input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := f.svc.Create(ctx, CreateInput{ClientCompanyID: uuid.New(), Currency: enums.CurrencyEUR, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected unknown company to be NOT_FOUND, got %v", err)
	}
}
