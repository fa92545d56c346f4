package requests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/api/controllers/presenters"
	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/api/validators"
	internalrequests "github.com/angelmondragon/sourcing-engine/internal/requests"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

const (
	paramRequestID = "requestID"
	maxNoteLength  = 500
)

type componentPayload struct {
	Reference   string  `json:"reference" validate:"required,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity    int     `json:"quantity" validate:"min=1"`
}

type createPayload struct {
	ClientEmail     string             `json:"client_email" validate:"required,email"`
	ClientCompanyID *uuid.UUID         `json:"client_company_id,omitempty"`
	Spec            json.RawMessage    `json:"spec,omitempty"`
	Components      []componentPayload `json:"components" validate:"dive"`
	DocumentURLs    []string           `json:"document_urls,omitempty" validate:"dive,url"`
}

func (p createPayload) toInput(actor string) internalrequests.CreateInput {
	input := internalrequests.CreateInput{
		ClientEmail:     strings.TrimSpace(p.ClientEmail),
		ClientCompanyID: p.ClientCompanyID,
		Spec:            p.Spec,
		DocumentURLs:    p.DocumentURLs,
		Actor:           actor,
	}
	for _, c := range p.Components {
		input.Components = append(input.Components, internalrequests.ComponentInput{
			Reference:   strings.TrimSpace(c.Reference),
			Description: c.Description,
			Quantity:    c.Quantity,
		})
	}
	return input
}

// Create registers a new request open for supplier quotes.
func Create(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		var payload createPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.Create(r.Context(), payload.toInput(middleware.ActorIDFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, presenters.NewRequest(req))
	}
}

// List returns requests filtered by status and client email.
func List(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := internalrequests.ListFilter{
			ClientEmail: strings.TrimSpace(r.URL.Query().Get("client_email")),
			Limit:       limit,
			Offset:      offset,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.NormalizeRequestStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequests(rows))
	}
}

func Detail(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

type transitionPayload struct {
	To             string  `json:"to" validate:"required"`
	Reason         string  `json:"reason,omitempty" validate:"max=500"`
	Carrier        *string `json:"carrier,omitempty" validate:"omitempty,max=120"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=120"`
}

// Transition moves a request to any status the lifecycle allows from its
// current one. Legacy spellings of the target are accepted.
func Transition(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.NormalizeRequestStatus(payload.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		req, err := svc.Transition(r.Context(), internalrequests.TransitionInput{
			RequestID:      id,
			To:             to,
			Actor:          middleware.ActorIDFromContext(r.Context()),
			Reason:         validators.SanitizeString(payload.Reason, maxNoteLength),
			Carrier:        payload.Carrier,
			TrackingNumber: payload.TrackingNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

type simpleTransition func(ctx context.Context, id uuid.UUID, actor string) (*models.Request, error)

// Step wraps a lifecycle shortcut that needs no payload, such as ordering or
// resuming production.
func Step(op simpleTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if op == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := op(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

type trackingPayload struct {
	Carrier        string `json:"carrier" validate:"required,max=120"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=120"`
}

// Ship moves a request in production to in transit with its tracking data.
func Ship(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return trackingHandler(svc, logg, func(ctx context.Context, id uuid.UUID, actor string, p trackingPayload) (*models.Request, error) {
		return svc.MarkShipped(ctx, id, actor, p.Carrier, p.TrackingNumber)
	})
}

// UpdateTracking corrects carrier data without changing status.
func UpdateTracking(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return trackingHandler(svc, logg, func(ctx context.Context, id uuid.UUID, actor string, p trackingPayload) (*models.Request, error) {
		return svc.UpdateTracking(ctx, id, actor, p.Carrier, p.TrackingNumber)
	})
}

func trackingHandler(svc internalrequests.Service, logg *logger.Logger, apply func(ctx context.Context, id uuid.UUID, actor string, p trackingPayload) (*models.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload trackingPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Carrier = strings.TrimSpace(payload.Carrier)
		payload.TrackingNumber = strings.TrimSpace(payload.TrackingNumber)

		req, err := apply(r.Context(), id, middleware.ActorIDFromContext(r.Context()), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

type problemPayload struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReportProblem flags a request that needs attention.
func ReportProblem(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload problemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.ReportProblem(r.Context(), id, middleware.ActorIDFromContext(r.Context()), validators.SanitizeString(payload.Reason, maxNoteLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

type documentPayload struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

func AttachDocument(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload documentPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.AttachDocument(r.Context(), id, middleware.ActorIDFromContext(r.Context()), strings.TrimSpace(payload.URL))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewRequest(req))
	}
}

// Delete removes a request with its components and bids.
func Delete(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id, middleware.ActorIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func History(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.History(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewHistory(entries))
	}
}
