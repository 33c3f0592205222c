package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/db"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/redis"
	"github.com/splittab/splittab-backend/pkg/storage/gcs"
)

const readyCheckTimeout = 2 * time.Second

// Pinger covers dependencies without a package-level health interface, the
// pubsub client among them.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SplitTab-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired backing service; one failure fails the whole
// probe so the instance drops out of rotation before serving broken requests.
// Nil dependencies are skipped, which keeps dev setups without object
// storage or pubsub honest instead of permanently unready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger, gcsP gcs.Pinger, pubsubP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SplitTab-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		check := func(name string, dep Pinger) {
			if dep == nil {
				checks[name] = "skipped"
				return
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				checks[name] = "down"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				return
			}
			checks[name] = "up"
		}

		check("db", dbP)
		check("redis", redisP)
		check("gcs", gcsP)
		check("pubsub", pubsubP)

		if !healthy {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
