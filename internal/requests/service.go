package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	"github.com/angelmondragon/sourcing-engine/internal/notifications"
	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/retry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the request lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Request, error)
	List(ctx context.Context, filter ListFilter) ([]models.Request, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Request, error)
	MarkOrdered(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error)
	StartProduction(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error)
	MarkShipped(ctx context.Context, id uuid.UUID, actor, carrier, trackingNumber string) (*models.Request, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error)
	ReportProblem(ctx context.Context, id uuid.UUID, actor, reason string) (*models.Request, error)
	ResumeProduction(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error)
	UpdateTracking(ctx context.Context, id uuid.UUID, actor, carrier, trackingNumber string) (*models.Request, error)
	AttachDocument(ctx context.Context, id uuid.UUID, actor, documentURL string) (*models.Request, error)
	Delete(ctx context.Context, id uuid.UUID, actor string) error
	History(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error)
}

// ServiceParams wires the request service.
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

// NewService builds the request lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("requests repository required")
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

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Request, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.ClientEmail)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client email is required")
	}
	spec := datatypes.JSON("{}")
	if len(input.Spec) > 0 {
		if !json.Valid(input.Spec) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "spec must be a JSON document")
		}
		spec = datatypes.JSON(input.Spec)
	}
	components := make([]models.RequestComponent, 0, len(input.Components))
	for i, c := range input.Components {
		ref := strings.TrimSpace(c.Reference)
		if ref == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "component %d reference is required", i)
		}
		qty := c.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "component %d quantity must be positive", i)
		}
		components = append(components, models.RequestComponent{
			ID:          uuid.New(),
			Reference:   ref,
			Description: c.Description,
			Quantity:    qty,
		})
	}
	docs, err := cleanDocumentURLs(input.DocumentURLs)
	if err != nil {
		return nil, err
	}

	var created *models.Request
	err = s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			req := &models.Request{
				ID:              uuid.New(),
				ClientEmail:     email,
				ClientCompanyID: input.ClientCompanyID,
				Spec:            spec,
				Status:          enums.RequestStatusOpenForQuotes,
				DocumentURLs:    datatypes.JSONSlice[string](docs),
				Version:         1,
				Components:      append([]models.RequestComponent(nil), components...),
			}
			if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
				return dbpkg.Classify(err, "create request")
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.RequestRef(req.ID), "request created", input.Actor); err != nil {
				return err
			}
			created = req
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "request.create", err)
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"entity": "request", "entity_id": created.ID.String()}), "request created")
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	var req *models.Request
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return classifyLoad(err)
		}
		req = found
		return nil
	})
	return req, err
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Request, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown request status %q", *filter.Status)
	}
	var rows []models.Request
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		found, err := s.repo.List(ctx, filter)
		if err != nil {
			return dbpkg.Classify(err, "list requests")
		}
		rows = found
		return nil
	})
	return rows, err
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Request, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	var (
		updated *models.Request
		from    enums.RequestStatus
	)
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindByID(ctx, input.RequestID)
			if err != nil {
				return classifyLoad(err)
			}
			from = req.Status
			if err := CheckTransition(req.Status, input.To, reason); err != nil {
				return err
			}
			switch {
			case input.To == enums.RequestStatusOrdered:
				selected, err := repo.CountSelectedQuotes(ctx, req.ID)
				if err != nil {
					return dbpkg.Classify(err, "count selected quotes")
				}
				if selected == 0 {
					return pkgerrors.New(pkgerrors.CodeInvalidRequestState, "request has no selected supplier quote").
						WithDetails(map[string]any{"request_id": req.ID})
				}
			case from == enums.RequestStatusProblem && input.To == enums.RequestStatusInProduction:
				selected, err := repo.CountSelectedQuotes(ctx, req.ID)
				if err != nil {
					return dbpkg.Classify(err, "count selected quotes")
				}
				if err := CheckResume(req, selected); err != nil {
					return err
				}
			}

			now := s.now()
			updates := map[string]any{"status": input.To, "updated_at": now}
			switch input.To {
			case enums.RequestStatusOrdered:
				updates["ordered_at"] = now
				req.OrderedAt = &now
			case enums.RequestStatusDelivered:
				updates["delivered_at"] = now
				req.DeliveredAt = &now
			}
			if carrier := trimmed(input.Carrier); carrier != nil {
				updates["carrier"] = *carrier
				req.Carrier = carrier
			}
			if tracking := trimmed(input.TrackingNumber); tracking != nil {
				updates["tracking_number"] = *tracking
				req.TrackingNumber = tracking
			}

			if err := s.writeVersioned(ctx, repo, req, updates); err != nil {
				return err
			}
			req.Status = input.To
			req.UpdatedAt = now

			action := fmt.Sprintf("status changed from %s to %s", from, input.To)
			if reason != "" {
				action += ": " + reason
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.RequestRef(req.ID), action, input.Actor); err != nil {
				return err
			}
			if err := s.queueStatusNotification(ctx, tx, req, input.Actor); err != nil {
				return err
			}
			updated = req
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "request.transition", err)
		return nil, err
	}

	s.metrics.IncTransition("request", string(from), string(updated.Status))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entity":    "request",
		"entity_id": updated.ID.String(),
		"from":      from,
		"to":        updated.Status,
	})
	s.logg.Info(logCtx, "request status changed")
	return updated, nil
}

func (s *service) MarkOrdered(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{RequestID: id, To: enums.RequestStatusOrdered, Actor: actor})
}

func (s *service) StartProduction(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{RequestID: id, To: enums.RequestStatusInProduction, Actor: actor})
}

func (s *service) MarkShipped(ctx context.Context, id uuid.UUID, actor, carrier, trackingNumber string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{
		RequestID:      id,
		To:             enums.RequestStatusInTransit,
		Actor:          actor,
		Carrier:        &carrier,
		TrackingNumber: &trackingNumber,
	})
}

func (s *service) MarkDelivered(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{RequestID: id, To: enums.RequestStatusDelivered, Actor: actor})
}

func (s *service) ReportProblem(ctx context.Context, id uuid.UUID, actor, reason string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{RequestID: id, To: enums.RequestStatusProblem, Actor: actor, Reason: reason})
}

func (s *service) ResumeProduction(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error) {
	return s.Transition(ctx, TransitionInput{RequestID: id, To: enums.RequestStatusInProduction, Actor: actor})
}

func (s *service) UpdateTracking(ctx context.Context, id uuid.UUID, actor, carrier, trackingNumber string) (*models.Request, error) {
	carrierPtr := trimmed(&carrier)
	trackingPtr := trimmed(&trackingNumber)
	if carrierPtr == nil && trackingPtr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier or tracking number is required")
	}
	return s.mutate(ctx, "request.update_tracking", id, actor, func(req *models.Request) (map[string]any, string, error) {
		if !TrackingEditable(req.Status) {
			return nil, "", pkgerrors.Newf(pkgerrors.CodeInvalidRequestState, "tracking cannot change while request is %s", req.Status)
		}
		updates := map[string]any{}
		parts := []string{}
		if carrierPtr != nil {
			updates["carrier"] = *carrierPtr
			req.Carrier = carrierPtr
			parts = append(parts, "carrier "+*carrierPtr)
		}
		if trackingPtr != nil {
			updates["tracking_number"] = *trackingPtr
			req.TrackingNumber = trackingPtr
			parts = append(parts, "tracking number "+*trackingPtr)
		}
		return updates, "tracking updated: " + strings.Join(parts, ", "), nil
	})
}

func (s *service) AttachDocument(ctx context.Context, id uuid.UUID, actor, documentURL string) (*models.Request, error) {
	docs, err := cleanDocumentURLs([]string{documentURL})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document url is required")
	}
	doc := docs[0]
	return s.mutate(ctx, "request.attach_document", id, actor, func(req *models.Request) (map[string]any, string, error) {
		next := append(append([]string(nil), req.DocumentURLs...), doc)
		req.DocumentURLs = datatypes.JSONSlice[string](next)
		return map[string]any{"document_urls": req.DocumentURLs}, "document attached", nil
	})
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if err := requireActor(actor); err != nil {
		return err
	}
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindByID(ctx, id)
			if err != nil {
				return classifyLoad(err)
			}
			deps, err := repo.CountDependents(ctx, req.ID)
			if err != nil {
				return dbpkg.Classify(err, "count request dependents")
			}
			if deps.Any() {
				return pkgerrors.New(pkgerrors.CodeInvalidRequestState, "request has purchases or client quotes and cannot be deleted").
					WithDetails(map[string]any{"request_id": req.ID, "purchases": deps.Purchases, "client_quotes": deps.ClientQuotes})
			}
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.RequestRef(req.ID), "request deleted", actor); err != nil {
				return err
			}
			if err := repo.DeleteCascade(ctx, req.ID); err != nil {
				return dbpkg.Classify(err, "delete request")
			}
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, "request.delete", err)
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"entity": "request", "entity_id": id.String()}), "request deleted")
	return nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		found, err := s.ledger.History(ctx, ledger.RequestRef(id))
		if err != nil {
			return err
		}
		entries = found
		return nil
	})
	return entries, err
}

// mutate runs a non-status change under the usual load, version check and
// ledger append.
func (s *service) mutate(ctx context.Context, op string, id uuid.UUID, actor string, apply func(req *models.Request) (map[string]any, string, error)) (*models.Request, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var updated *models.Request
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			req, err := repo.FindByID(ctx, id)
			if err != nil {
				return classifyLoad(err)
			}
			updates, action, err := apply(req)
			if err != nil {
				return err
			}
			now := s.now()
			updates["updated_at"] = now
			if err := s.writeVersioned(ctx, repo, req, updates); err != nil {
				return err
			}
			req.UpdatedAt = now
			if _, err := s.ledger.WithTx(tx).Append(ctx, ledger.RequestRef(req.ID), action, actor); err != nil {
				return err
			}
			updated = req
			return nil
		})
	})
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}
	return updated, nil
}

func (s *service) writeVersioned(ctx context.Context, repo Repository, req *models.Request, updates map[string]any) error {
	ok, err := repo.UpdateVersioned(ctx, req.ID, req.Version, updates)
	if err != nil {
		return dbpkg.Classify(err, "update request")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "request was modified concurrently").
			WithDetails(map[string]any{"request_id": req.ID, "version": req.Version})
	}
	req.Version++
	return nil
}

func (s *service) queueStatusNotification(ctx context.Context, tx *gorm.DB, req *models.Request, actor string) error {
	if req.Status != enums.RequestStatusInTransit && req.Status != enums.RequestStatusDelivered {
		return nil
	}
	event, ok := s.composer.RequestStatus(req, req.Status)
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "entity_id", req.ID.String()), "request has no client email; notification skipped")
		return nil
	}
	if err := notifications.Queue(ctx, s.outbox, tx, enums.AggregateRequest, req.ID, actor, event); err != nil {
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
		s.logg.Error(s.logg.WithField(ctx, "operation", op), "request operation failed", err)
	}
}

func classifyLoad(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "request not found")
	}
	return dbpkg.Classify(err, "load request")
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}

func cleanDocumentURLs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, err := url.Parse(u); err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid document url %q", u)
		}
		out = append(out, u)
	}
	return out, nil
}
