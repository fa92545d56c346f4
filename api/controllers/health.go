package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

const (
	envHeader    = "X-Sourcing-Env"
	probeTimeout = 2 * time.Second
)

// ReadinessProbe checks one backing dependency.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady runs every probe concurrently and reports 503 when any fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, probes ...ReadinessProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(probes))
			g       errgroup.Group
		)
		for _, probe := range probes {
			probe := probe
			g.Go(func() error {
				status := "ok"
				err := probe.Check(ctx)
				if err != nil {
					status = "unavailable"
				}
				mu.Lock()
				results[probe.Name] = status
				mu.Unlock()
				return err
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "dependency not ready").
				WithDetails(results))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": results})
	}
}
