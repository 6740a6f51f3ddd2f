package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kentramx/kentramx-sub001/api/responses"
	"github.com/kentramx/kentramx-sub001/pkg/config"
	"github.com/kentramx/kentramx-sub001/pkg/db"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kentra-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings postgres and redis concurrently. A nil redis pinger
// means the deployment runs without redis and is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kentra-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok"}
		if redisP != nil {
			checks["redis"] = "ok"
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if dbP == nil {
				return pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
			}
			if err := dbP.Ping(gctx); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
			}
			return nil
		})
		if redisP != nil {
			g.Go(func() error {
				if err := redisP.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
