package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

// tick is the smallest step used to keep per-entity timestamps increasing.
// Postgres stores microseconds.
const tick = time.Microsecond

// Service appends and reads audit entries.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Append(ctx context.Context, ref EntityRef, action, actor string) (*models.LedgerEntry, error)
	History(ctx context.Context, ref EntityRef) ([]models.LedgerEntry, error)
}

type service struct {
	repo  Repository
	clock func() time.Time
}

// NewService wires a ledger service. A nil clock uses the wall clock in UTC.
func NewService(repo Repository, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, clock: clock}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), clock: s.clock}
}

func (s *service) Append(ctx context.Context, ref EntityRef, action, actor string) (*models.LedgerEntry, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger action is required")
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger actor is required")
	}

	exists, err := s.repo.EntityExists(ctx, ref)
	if err != nil {
		return nil, dbpkg.Classify(err, "check ledger entity")
	}
	if !exists {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %s not found", ref.Type, ref.ID)
	}

	createdAt := s.clock().UTC().Truncate(tick)
	latest, err := s.repo.LatestCreatedAt(ctx, ref)
	if err != nil {
		return nil, dbpkg.Classify(err, "read latest ledger entry")
	}
	if latest != nil && !createdAt.After(*latest) {
		createdAt = latest.UTC().Add(tick)
	}

	entry := &models.LedgerEntry{
		ID:         uuid.New(),
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Action:     action,
		Actor:      actor,
		CreatedAt:  createdAt,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, dbpkg.Classify(err, "append ledger entry")
	}
	return entry, nil
}

func (s *service) History(ctx context.Context, ref EntityRef) ([]models.LedgerEntry, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByEntity(ctx, ref)
	if err != nil {
		return nil, dbpkg.Classify(err, "list ledger entries")
	}
	return entries, nil
}

func validateRef(ref EntityRef) error {
	if !ref.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid ledger entity type %q", ref.Type)
	}
	if ref.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger entity id is required")
	}
	return nil
}
