package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RouterServices groups what NewRouter mounts.
type RouterServices struct {
	Harvest *HarvestHandlers // Required
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Checks back GET /readyz. Liveness on /healthz never consults them.
	Checks         map[string]HealthCheck
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the operator API router.
func NewRouter(svcs RouterServices) http.Handler {
	logger := svcs.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if svcs.Harvest != nil && svcs.Harvest.Logger == nil {
		svcs.Harvest.Logger = logger
	}

	r := chi.NewRouter()
	r.Use(Recover(logger), Logging(logger))

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	ready := readinessHandler(svcs.Checks)
	r.Get("/readyz", ready)
	r.Head("/readyz", ready)

	if svcs.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svcs.Metrics)
	}

	if h := svcs.Harvest; h != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(Timeout(svcs.RequestTimeout))
			r.Post("/harvest/run", h.RunPass)
			r.Post("/sources/reindex", h.ReindexAll)
			r.Route("/sources/{id}", func(r chi.Router) {
				r.Post("/jobs", h.CreateJob)
				r.Post("/reindex", h.ReindexSource)
				r.Post("/clear", h.ClearSource)
				r.Post("/index/clear", h.ClearSourceIndex)
			})
			r.Post("/objects/import", h.ImportObjects)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "route not found"})
	})

	return r
}
