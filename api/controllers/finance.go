package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/api/validators"
	"github.com/angelmondragon/sourcing-engine/internal/finance"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

// FinanceSummary returns monthly revenue, cost and margin. from and to accept
// YYYY-MM-DD or RFC 3339; to is exclusive.
func FinanceSummary(svc finance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "finance service unavailable"))
			return
		}
		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := finance.SummaryInput{From: from, To: to}
		if raw := strings.TrimSpace(r.URL.Query().Get("currency")); raw != "" {
			input.Currency = enums.Currency(strings.ToUpper(raw))
		}

		summary, err := svc.Summary(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
