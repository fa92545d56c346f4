package requests

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]models.Request
	selected    map[uuid.UUID]int64
	updateCalls int
	updateFn    func(id uuid.UUID, version int, updates map[string]any) (bool, error)
	deleted     []uuid.UUID
	dependents  map[uuid.UUID]Dependents
}

func newFakeRepo(reqs ...models.Request) *fakeRepo {
	r := &fakeRepo{requests: map[uuid.UUID]models.Request{}, selected: map[uuid.UUID]int64{}}
	for _, req := range reqs {
		r.requests[req.ID] = req
	}
	return r
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, req *models.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[req.ID] = *req
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Request
	for _, req := range f.requests {
		if filter.Status == nil || req.Status == *filter.Status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateFn != nil {
		return f.updateFn(id, version, updates)
	}
	req, ok := f.requests[id]
	if !ok || req.Version != version {
		return false, nil
	}
	if status, ok := updates["status"].(enums.RequestStatus); ok {
		req.Status = status
	}
	if carrier, ok := updates["carrier"].(string); ok {
		req.Carrier = &carrier
	}
	if tracking, ok := updates["tracking_number"].(string); ok {
		req.TrackingNumber = &tracking
	}
	req.Version++
	f.requests[id] = req
	return true, nil
}

func (f *fakeRepo) CountSelectedQuotes(ctx context.Context, requestID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected[requestID], nil
}

func (f *fakeRepo) CountDependents(ctx context.Context, requestID uuid.UUID) (Dependents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dependents[requestID], nil
}

func (f *fakeRepo) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
}

func (f *fakeLedger) WithTx(tx *gorm.DB) ledger.Service { return f }

func (f *fakeLedger) Append(ctx context.Context, ref ledger.EntityRef, action, actor string) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := models.LedgerEntry{ID: uuid.New(), EntityType: ref.Type, EntityID: ref.ID, Action: action, Actor: actor, CreatedAt: time.Now()}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) History(ctx context.Context, ref ledger.EntityRef) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	svc    Service
	repo   *fakeRepo
	ledger *fakeLedger
	outbox *fakeOutbox
}

func newFixture(t *testing.T, reqs ...models.Request) fixture {
	t.Helper()
	repo := newFakeRepo(reqs...)
	led := &fakeLedger{}
	box := &fakeOutbox{}
	svc, err := NewService(ServiceParams{
		Repository: repo,
		Tx:         fakeTx{},
		Ledger:     led,
		Outbox:     box,
		Runner:     retry.Runner{Policy: retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{svc: svc, repo: repo, ledger: led, outbox: box}
}

func newRequest(status enums.RequestStatus) models.Request {
	return models.Request{
		ID:          uuid.New(),
		ClientEmail: "client@example.com",
		Status:      status,
		Version:     1,
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	req := newRequest(enums.RequestStatusQuoteSelected)
	f := newFixture(t, req)
	f.repo.selected[req.ID] = 1
	ctx := context.Background()

	if _, err := f.svc.MarkOrdered(ctx, req.ID, "manager-1"); err != nil {
		t.Fatalf("mark ordered: %v", err)
	}
	if _, err := f.svc.StartProduction(ctx, req.ID, "manager-1"); err != nil {
		t.Fatalf("start production: %v", err)
	}
	shipped, err := f.svc.MarkShipped(ctx, req.ID, "manager-1", "DHL", " JD014600 ")
	if err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if shipped.TrackingNumber == nil || *shipped.TrackingNumber != "JD014600" {
		t.Fatalf("expected trimmed tracking number, got %v", shipped.TrackingNumber)
	}
	delivered, err := f.svc.MarkDelivered(ctx, req.ID, "manager-1")
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if delivered.Status != enums.RequestStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("unexpected delivered request %+v", delivered)
	}
	if delivered.Version != 5 {
		t.Fatalf("expected version 5 after four writes, got %d", delivered.Version)
	}

	if len(f.ledger.entries) != 4 {
		t.Fatalf("expected four ledger entries, got %d", len(f.ledger.entries))
	}
	if f.ledger.entries[0].Action != "status changed from quote_selected to ordered" {
		t.Fatalf("unexpected ledger action %q", f.ledger.entries[0].Action)
	}

	if len(f.outbox.events) != 2 {
		t.Fatalf("expected two notifications queued, got %d", len(f.outbox.events))
	}
	first, ok := f.outbox.events[0].Data.(payloads.NotificationRequestedEvent)
	if !ok || first.Kind != enums.NotificationRequestInTransit || first.TrackingRef != "JD014600" {
		t.Fatalf("unexpected first notification %+v", f.outbox.events[0].Data)
	}
	second := f.outbox.events[1].Data.(payloads.NotificationRequestedEvent)
	if second.Kind != enums.NotificationRequestDelivered || second.Recipient != "client@example.com" {
		t.Fatalf("unexpected second notification %+v", second)
	}
}

func TestTransitionRejectsSkipsAndBackwardMoves(t *testing.T) {
	ordered := newRequest(enums.RequestStatusOrdered)
	delivered := newRequest(enums.RequestStatusDelivered)
	open := newRequest(enums.RequestStatusOpenForQuotes)
	f := newFixture(t, ordered, delivered, open)
	ctx := context.Background()

	if _, err := f.svc.MarkDelivered(ctx, ordered.ID, "m"); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected skip to fail, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{RequestID: delivered.ID, To: enums.RequestStatusInTransit, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected backward move to fail, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, TransitionInput{RequestID: open.ID, To: enums.RequestStatusQuoteSelected, Actor: "m"}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected manual selection to fail, got %v", err)
	}
	if f.repo.updateCalls != 0 || len(f.ledger.entries) != 0 {
		t.Fatalf("rejected transitions must not write")
	}
}

func TestMarkOrderedRequiresSelectedQuote(t *testing.T) {
	req := newRequest(enums.RequestStatusQuoteSelected)
	f := newFixture(t, req)

	_, err := f.svc.MarkOrdered(context.Background(), req.ID, "manager-1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequestState) {
		t.Fatalf("expected INVALID_REQUEST_STATE, got %v", err)
	}
}

func TestProblemBranch(t *testing.T) {
	req := newRequest(enums.RequestStatusInTransit)
	orderedAt := time.Now().Add(-48 * time.Hour)
	req.OrderedAt = &orderedAt
	f := newFixture(t, req)
	f.repo.selected[req.ID] = 1
	ctx := context.Background()

	if _, err := f.svc.ReportProblem(ctx, req.ID, "manager-1", "  "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected missing reason to fail validation, got %v", err)
	}
	if _, err := f.svc.ReportProblem(ctx, req.ID, "manager-1", "customs hold"); err != nil {
		t.Fatalf("report problem: %v", err)
	}
	if got := f.ledger.entries[0].Action; got != "status changed from in_transit to problem: customs hold" {
		t.Fatalf("unexpected ledger action %q", got)
	}
	if _, err := f.svc.MarkDelivered(ctx, req.ID, "manager-1"); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("problem must only resume production, got %v", err)
	}
	resumed, err := f.svc.ResumeProduction(ctx, req.ID, "manager-1")
	if err != nil {
		t.Fatalf("resume production: %v", err)
	}
	if resumed.Status != enums.RequestStatusInProduction {
		t.Fatalf("expected in_production, got %s", resumed.Status)
	}
}

func TestResumeProductionRequiresOrderedSelection(t *testing.T) {
	open := newRequest(enums.RequestStatusOpenForQuotes)
	delivered := newRequest(enums.RequestStatusDelivered)
	orderedAt := time.Now().Add(-72 * time.Hour)
	deliveredAt := time.Now().Add(-time.Hour)
	delivered.OrderedAt = &orderedAt
	delivered.DeliveredAt = &deliveredAt
	f := newFixture(t, open, delivered)
	f.repo.selected[delivered.ID] = 1
	ctx := context.Background()

	for _, req := range []models.Request{open, delivered} {
		if _, err := f.svc.ReportProblem(ctx, req.ID, "manager-1", "client unreachable"); err != nil {
			t.Fatalf("report problem on %s: %v", req.Status, err)
		}
		_, err := f.svc.ResumeProduction(ctx, req.ID, "manager-1")
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequestState) {
			t.Fatalf("resume from %s via problem: expected INVALID_REQUEST_STATE, got %v", req.Status, err)
		}
		stored := f.repo.requests[req.ID]
		if stored.Status != enums.RequestStatusProblem {
			t.Fatalf("request must stay in problem, got %s", stored.Status)
		}
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("refused resumes must not queue notifications, got %d", len(f.outbox.events))
	}
}

func TestTransitionStaleVersionIsRetriedThenSurfaced(t *testing.T) {
	req := newRequest(enums.RequestStatusOrdered)
	f := newFixture(t, req)
	f.repo.updateFn = func(uuid.UUID, int, map[string]any) (bool, error) { return false, nil }

	_, err := f.svc.StartProduction(context.Background(), req.ID, "manager-1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected CONCURRENCY_CONFLICT, got %v", err)
	}
	if f.repo.updateCalls != 3 {
		t.Fatalf("expected initial attempt plus two retries, got %d", f.repo.updateCalls)
	}
	if len(f.ledger.entries) != 0 {
		t.Fatalf("no ledger entry may be written for a lost write")
	}
}

func TestTransitionUnknownRequestAndActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.StartProduction(ctx, uuid.New(), "m"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := f.svc.StartProduction(ctx, uuid.New(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED without actor, got %v", err)
	}
}

func TestUpdateTrackingAndDocuments(t *testing.T) {
	open := newRequest(enums.RequestStatusOpenForQuotes)
	ordered := newRequest(enums.RequestStatusOrdered)
	f := newFixture(t, open, ordered)
	ctx := context.Background()

	if _, err := f.svc.UpdateTracking(ctx, open.ID, "m", "UPS", "1Z"); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequestState) {
		t.Fatalf("expected tracking edits to be refused before ordering, got %v", err)
	}
	updated, err := f.svc.UpdateTracking(ctx, ordered.ID, "m", "UPS", "")
	if err != nil {
		t.Fatalf("update tracking: %v", err)
	}
	if updated.Carrier == nil || *updated.Carrier != "UPS" || updated.TrackingNumber != nil {
		t.Fatalf("unexpected tracking fields %+v", updated)
	}
	if !strings.HasPrefix(f.ledger.entries[len(f.ledger.entries)-1].Action, "tracking updated") {
		t.Fatalf("expected tracking ledger entry")
	}

	withDoc, err := f.svc.AttachDocument(ctx, open.ID, "m", "https://files.example.com/invoice.pdf")
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if len(withDoc.DocumentURLs) != 1 {
		t.Fatalf("expected one document, got %v", withDoc.DocumentURLs)
	}
	if _, err := f.svc.AttachDocument(ctx, open.ID, "m", ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected empty url to fail validation, got %v", err)
	}
}

func TestDeleteRefusedWhileReferenced(t *testing.T) {
	purchased := newRequest(enums.RequestStatusDelivered)
	quoted := newRequest(enums.RequestStatusOpenForQuotes)
	f := newFixture(t, purchased, quoted)
	f.repo.dependents = map[uuid.UUID]Dependents{
		purchased.ID: {Purchases: 1},
		quoted.ID:    {ClientQuotes: 2},
	}
	ctx := context.Background()

	for _, req := range []models.Request{purchased, quoted} {
		err := f.svc.Delete(ctx, req.ID, "manager-1")
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequestState) {
			t.Fatalf("expected INVALID_REQUEST_STATE for %s, got %v", req.ID, err)
		}
	}
	if len(f.repo.deleted) != 0 || len(f.ledger.entries) != 0 {
		t.Fatalf("refused deletes must not write, deleted=%d ledger=%d", len(f.repo.deleted), len(f.ledger.entries))
	}
}

func TestCreateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, CreateInput{
		ClientEmail: "client@example.com",
		Spec:        []byte(`{"brand":"Peugeot","model":"208","vin":"VF3XXXX"}`),
		Components:  []ComponentInput{{Reference: "CONN-12"}, {Reference: "HARN-2", Quantity: 2}},
		Actor:       "client@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != enums.RequestStatusOpenForQuotes || len(created.Components) != 2 || created.Components[0].Quantity != 1 {
		t.Fatalf("unexpected created request %+v", created)
	}

	if _, err := f.svc.Create(ctx, CreateInput{ClientEmail: "x@example.com", Spec: []byte("{not json"), Actor: "a"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected invalid spec to fail, got %v", err)
	}

	if err := f.svc.Delete(ctx, created.ID, "manager-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.repo.deleted) != 1 {
		t.Fatalf("expected cascade delete to run")
	}
	history, err := f.svc.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Action != "request deleted" {
		t.Fatalf("ledger must survive deletion, got %+v", history)
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
	if _, err := NewService(ServiceParams{Repository: newFakeRepo(), Tx: fakeTx{}, Ledger: &fakeLedger{}}); err == nil {
		t.Fatal("expected missing outbox to fail")
	}
}
