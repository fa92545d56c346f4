package salesquotes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/api/controllers/presenters"
	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/api/validators"
	internalsales "github.com/angelmondragon/sourcing-engine/internal/salesquotes"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

const paramQuoteID = "quoteID"

type itemPayload struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity" validate:"decimal_pos"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"decimal_nonneg"`
}

func toItems(in []itemPayload) []internalsales.ItemInput {
	out := make([]internalsales.ItemInput, 0, len(in))
	for _, item := range in {
		out = append(out, internalsales.ItemInput{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return out
}

type createPayload struct {
	ClientCompanyID uuid.UUID       `json:"client_company_id"`
	RequestID       *uuid.UUID      `json:"request_id,omitempty"`
	Date            *time.Time      `json:"date,omitempty"`
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
	TVARate         decimal.Decimal `json:"tva_rate" validate:"decimal_nonneg"`
	Currency        string          `json:"currency" validate:"required,currency"`
	Items           []itemPayload   `json:"items" validate:"required,min=1,dive"`
	Notes           *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func present(view *internalsales.View) presenters.SalesQuote {
	return presenters.NewSalesQuote(view.Quote, view.Totals)
}

// Create drafts a sales quote with a fresh quote number.
func Create(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		var payload createPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ClientCompanyID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "client_company_id is required"))
			return
		}

		view, err := svc.Create(r.Context(), internalsales.CreateInput{
			ClientCompanyID: payload.ClientCompanyID,
			RequestID:       payload.RequestID,
			Date:            payload.Date,
			ValidUntil:      payload.ValidUntil,
			TVARate:         payload.TVARate,
			Currency:        enums.Currency(strings.ToUpper(strings.TrimSpace(payload.Currency))),
			Items:           toItems(payload.Items),
			Notes:           payload.Notes,
			Actor:           middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, present(view))
	}
}

// List returns sales quotes. Client callers must scope the listing with
// client_company_id.
func List(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
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
		companyID, err := validators.ParseQueryUUID(r, "client_company_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if companyID == nil && middleware.RoleFromContext(r.Context()) == enums.ActorRoleClient {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "client_company_id is required"))
			return
		}

		filter := internalsales.ListFilter{ClientCompanyID: companyID, Limit: limit, Offset: offset}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseClientQuoteStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		views, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]presenters.SalesQuote, 0, len(views))
		for i := range views {
			out = append(out, present(&views[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func Detail(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, present(view))
	}
}

type updatePayload struct {
	ExpectedVersion int              `json:"expected_version" validate:"gte=0"`
	Items           *[]itemPayload   `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	TVARate         *decimal.Decimal `json:"tva_rate,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	Notes           *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Update edits a draft quote. Omitted fields are left as they are.
func Update(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalsales.UpdateInput{
			QuoteID:         id,
			ExpectedVersion: payload.ExpectedVersion,
			TVARate:         payload.TVARate,
			ValidUntil:      payload.ValidUntil,
			Notes:           payload.Notes,
			Actor:           middleware.ActorIDFromContext(r.Context()),
		}
		if payload.Items != nil {
			items := toItems(*payload.Items)
			input.Items = &items
		}

		view, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, present(view))
	}
}

type actionPayload struct {
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"gte=0"`
	Note            string `json:"note,omitempty" validate:"max=500"`
}

type actionFunc func(ctx context.Context, input internalsales.ActionInput) (*internalsales.View, error)

// Action drives a status change that takes only an optional version check
// and note: send, promote to sale and invoice.
func Action(op actionFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if op == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload actionPayload
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := op(r.Context(), internalsales.ActionInput{
			QuoteID:         id,
			ExpectedVersion: payload.ExpectedVersion,
			Actor:           middleware.ActorIDFromContext(r.Context()),
			Note:            validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, present(view))
	}
}

type respondPayload struct {
	Accept          *bool  `json:"accept" validate:"required"`
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"gte=0"`
	Note            string `json:"note,omitempty" validate:"max=500"`
}

// Respond records the client's acceptance or rejection of a sent quote.
func Respond(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload respondPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.ClientRespond(r.Context(), internalsales.RespondInput{
			ActionInput: internalsales.ActionInput{
				QuoteID:         id,
				ExpectedVersion: payload.ExpectedVersion,
				Actor:           middleware.ActorIDFromContext(r.Context()),
				Note:            validators.SanitizeString(payload.Note, 500),
			},
			Accept: *payload.Accept,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, present(view))
	}
}

func History(svc internalsales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales quote service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, paramQuoteID)
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
