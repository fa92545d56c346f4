package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/sourcing-engine/api/controllers"
	bidcontrollers "github.com/angelmondragon/sourcing-engine/api/controllers/bids"
	requestcontrollers "github.com/angelmondragon/sourcing-engine/api/controllers/requests"
	salescontrollers "github.com/angelmondragon/sourcing-engine/api/controllers/salesquotes"
	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/internal/bids"
	"github.com/angelmondragon/sourcing-engine/internal/diagnostics"
	"github.com/angelmondragon/sourcing-engine/internal/finance"
	"github.com/angelmondragon/sourcing-engine/internal/requests"
	"github.com/angelmondragon/sourcing-engine/internal/salesquotes"
	"github.com/angelmondragon/sourcing-engine/pkg/config"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
)

// Dependencies are the collaborators the HTTP surface is wired to. Idempotency
// is optional; when nil, Idempotency-Key headers are ignored.
type Dependencies struct {
	Probes         []controllers.ReadinessProbe
	Idempotency    middleware.IdempotencyStore
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Requests    requests.Service
	Bids        bids.Service
	SalesQuotes salesquotes.Service
	Finance     finance.Service
	Diagnostics diagnostics.Service
}

const (
	manager  = enums.ActorRoleManager
	supplier = enums.ActorRoleSupplier
	client   = enums.ActorRoleClient
)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotent := middleware.Idempotency(deps.Idempotency, cfg.App.IdempotencyTTL, logg)
	roles := func(allowed ...enums.ActorRole) func(http.Handler) http.Handler {
		return middleware.RequireRole(logg, allowed...)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Probes...))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Get("/me", controllers.WhoAmI())

		r.Route("/requests", func(r chi.Router) {
			r.With(roles(manager, client), idempotent).Post("/", requestcontrollers.Create(deps.Requests, logg))
			r.With(roles(manager)).Get("/", requestcontrollers.List(deps.Requests, logg))

			r.Route("/{requestID}", func(r chi.Router) {
				r.Get("/", requestcontrollers.Detail(deps.Requests, logg))
				r.With(roles(manager, client)).Post("/documents", requestcontrollers.AttachDocument(deps.Requests, logg))

				r.Group(func(r chi.Router) {
					r.Use(roles(manager))
					r.Delete("/", requestcontrollers.Delete(deps.Requests, logg))
					r.Get("/history", requestcontrollers.History(deps.Requests, logg))
					r.Post("/transitions", requestcontrollers.Transition(deps.Requests, logg))
					r.Post("/ship", requestcontrollers.Ship(deps.Requests, logg))
					r.Put("/tracking", requestcontrollers.UpdateTracking(deps.Requests, logg))
					r.Post("/problem", requestcontrollers.ReportProblem(deps.Requests, logg))
					if deps.Requests != nil {
						r.Post("/order", requestcontrollers.Step(deps.Requests.MarkOrdered, logg))
						r.Post("/production", requestcontrollers.Step(deps.Requests.StartProduction, logg))
						r.Post("/deliver", requestcontrollers.Step(deps.Requests.MarkDelivered, logg))
						r.Post("/resume", requestcontrollers.Step(deps.Requests.ResumeProduction, logg))
					}

					r.With(idempotent).Post("/winner", bidcontrollers.SelectWinner(deps.Bids, logg))
					r.Post("/winner/reverse", bidcontrollers.ReverseSelection(deps.Bids, logg))
				})

				r.Route("/bids", func(r chi.Router) {
					r.With(roles(manager, supplier), idempotent).Post("/", bidcontrollers.Submit(deps.Bids, logg))
					r.Group(func(r chi.Router) {
						r.Use(roles(manager))
						r.Get("/", bidcontrollers.List(deps.Bids, logg))
						r.Get("/comparison", bidcontrollers.Compare(deps.Bids, logg))
						r.Post("/{quoteID}/reject", bidcontrollers.Reject(deps.Bids, logg))
						r.Get("/{quoteID}/history", bidcontrollers.History(deps.Bids, logg))
					})
				})
			})
		})

		r.Route("/sales-quotes", func(r chi.Router) {
			r.With(roles(manager), idempotent).Post("/", salescontrollers.Create(deps.SalesQuotes, logg))
			r.With(roles(manager, client)).Get("/", salescontrollers.List(deps.SalesQuotes, logg))

			r.Route("/{quoteID}", func(r chi.Router) {
				r.With(roles(manager, client)).Get("/", salescontrollers.Detail(deps.SalesQuotes, logg))
				r.With(roles(manager, client)).Post("/respond", salescontrollers.Respond(deps.SalesQuotes, logg))

				r.Group(func(r chi.Router) {
					r.Use(roles(manager))
					r.Patch("/", salescontrollers.Update(deps.SalesQuotes, logg))
					r.Get("/history", salescontrollers.History(deps.SalesQuotes, logg))
					if deps.SalesQuotes != nil {
						r.Post("/send", salescontrollers.Action(deps.SalesQuotes.MarkSent, logg))
						r.Post("/promote", salescontrollers.Action(deps.SalesQuotes.PromoteToSale, logg))
						r.With(idempotent).Post("/invoice", salescontrollers.Action(deps.SalesQuotes.GenerateInvoice, logg))
					}
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(roles(manager))
			r.Get("/finance/summary", controllers.FinanceSummary(deps.Finance, logg))
			r.Get("/diagnostics", controllers.Diagnostics(deps.Diagnostics, logg))
		})
	})

	return r
}
