package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splittab/splittab-backend/api/controllers"
	"github.com/splittab/splittab-backend/api/middleware"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/internal/receipts"
	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/db"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/metrics"
	"github.com/splittab/splittab-backend/pkg/redis"
	"github.com/splittab/splittab-backend/pkg/storage/gcs"
)

// Deps carries everything the HTTP surface needs. cmd/api fills it from the
// bootstrap; tests fill it with stubs.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB     db.Pinger
	Redis  redis.Pinger
	GCS    gcs.Pinger
	PubSub controllers.Pinger

	Bills    bills.Service
	Claims   claims.Service
	Receipts receipts.Service
	Broker   feed.Broker

	FeedMetrics *metrics.FeedMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Session(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis, d.GCS, d.PubSub))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/bills", func(r chi.Router) {
		r.Post("/", controllers.BillCreate(d.Bills, logg))

		r.Route("/{ownerToken}", func(r chi.Router) {
			r.Get("/", controllers.BillGet(d.Bills, logg))
			r.Patch("/", controllers.BillUpdate(d.Bills, logg))

			r.Route("/items", func(r chi.Router) {
				r.Post("/", controllers.ItemAdd(d.Bills, logg))
				r.Put("/{itemId}", controllers.ItemUpdate(d.Bills, logg))
				r.Delete("/{itemId}", controllers.ItemDelete(d.Bills, logg))
			})

			r.Route("/selections", func(r chi.Router) {
				r.Get("/", controllers.OwnerSelectionsList(d.Bills, d.Claims, logg))
				r.Post("/", controllers.OwnerSelectionCreate(d.Bills, d.Claims, logg))
				r.Put("/{selectionId}/paid", controllers.SelectionSetPaid(d.Bills, d.Claims, logg))
			})

			r.Route("/receipts", func(r chi.Router) {
				r.Post("/", controllers.ReceiptUpload(d.Bills, d.Receipts, logg))
				r.Get("/{scanId}", controllers.ScanStatus(d.Bills, d.Receipts, logg))
			})
		})
	})

	r.Route("/api/v1/shared/{shareToken}", func(r chi.Router) {
		r.Get("/", controllers.SharedBillGet(d.Bills, d.Claims, logg))
		r.Get("/breakdown", controllers.SharedBreakdown(d.Bills, d.Claims, logg))
		r.Get("/events", controllers.FeedEvents(d.Bills, d.Broker, d.FeedMetrics, cfg.Feed.KeepAliveInterval, logg))

		r.Route("/selections", func(r chi.Router) {
			r.Get("/", controllers.SharedSelectionsList(d.Bills, d.Claims, logg))
			r.Post("/", controllers.SelectionSubmit(d.Bills, d.Claims, logg))
		})

		r.Route("/claims", func(r chi.Router) {
			r.Get("/", controllers.LiveClaimsList(d.Bills, d.Claims, logg))
			r.Route("/{itemId}", func(r chi.Router) {
				r.Put("/", controllers.LiveClaimUpsert(d.Bills, d.Claims, logg))
				r.Delete("/", controllers.LiveClaimRelease(d.Bills, d.Claims, logg))
			})
		})
	})

	return r
}
