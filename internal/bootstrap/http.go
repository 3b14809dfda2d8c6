package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/harvestd/config"
	httpx "github.com/target/harvestd/internal/http"
	"github.com/target/harvestd/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := buildHTTPHandler(cfg, appCfg.HTTP, logger)
	return startServer(logger, handler, appCfg.HTTP)
}

func buildHTTPHandler(cfg *HTTPServerConfig, httpCfg config.HTTPConfig, logger *slog.Logger) http.Handler {
	services := httpx.RouterServices{
		Checks:         healthChecks(cfg.DB, cfg.RedisClient),
		RequestTimeout: httpCfg.RequestTimeout,
		Logger:         logger,
	}
	if svcs := cfg.Services; svcs != nil {
		services.Metrics = svcs.Observability.MetricsHandler
		services.Harvest = &httpx.HarvestHandlers{
			Jobs:    svcs.Jobs,
			Reindex: svcs.Reindex,
			Admin:   svcs.SourceAdmin,
			Logger:  logger,
		}
		if svcs.Passes != nil {
			services.Harvest.Passes = svcs.Passes
		} else {
			services.Harvest.Passes = unavailablePasses{}
		}
	}
	return httpx.NewRouter(services)
}

func healthChecks(db *sql.DB, redisClient redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}

var errPassesUnavailable = errors.New("harvest passes are unavailable without a gather queue")

// unavailablePasses answers manual pass triggers when no queue is configured.
type unavailablePasses struct{}

func (unavailablePasses) RunPass(context.Context, string) (service.PassResult, error) {
	return service.PassResult{}, errPassesUnavailable
}
