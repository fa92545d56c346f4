package controllers

import (
	"net/http"

	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/internal/diagnostics"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

// Diagnostics runs the consistency checks on demand. A critical report is
// still a 200; the status lives in the payload.
func Diagnostics(svc diagnostics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "diagnostics unavailable"))
			return
		}
		report, err := svc.Run(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
