package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/forecast-cache/internal/alerts"
	httpapi "github.com/i474232898/forecast-cache/internal/api/http"
	"github.com/i474232898/forecast-cache/internal/config"
	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/metrics"
	"github.com/i474232898/forecast-cache/internal/notify"
	"github.com/i474232898/forecast-cache/internal/preferences"
	"github.com/i474232898/forecast-cache/internal/query"
	"github.com/i474232898/forecast-cache/internal/scheduler"
	"github.com/i474232898/forecast-cache/internal/store"
	"github.com/i474232898/forecast-cache/internal/weather"
	"github.com/i474232898/forecast-cache/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	recorder := metrics.New()
	notifier := notify.New()

	forecasts, err := openStore(cfg, notifier)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer forecasts.Close()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := newProvider(cfg, httpClient)

	prefs, err := preferences.NewFileStore(cfg.PreferencesFile, cfg.NotificationsEnabled, nil)
	if err != nil {
		logger.Fatalf("failed to load preferences: %v", err)
	}

	var alert weather.NotificationSignal = alerts.LogSignal{Location: cfg.Location}
	if cfg.NotifyWebhookURL != "" {
		alert = alerts.NewWebhookSignal(cfg.NotifyWebhookURL, httpClient, cfg.Location)
	}

	syncer := weather.NewSyncer(weather.SyncerConfig{
		Store:       forecasts,
		Fetcher:     provider,
		Decoder:     provider,
		Preferences: prefs,
		Signal:      alert,
		Location:    cfg.Location,
		Recorder:    recorder,
	})

	router := query.New(forecasts, notifier, recorder)

	// Scheduler that periodically refreshes the cache.
	sched := scheduler.New(cfg.SyncInterval, 2*cfg.HTTPTimeout+30*time.Second, syncer)
	if err := sched.Start(); err != nil {
		logger.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "forecast-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "forecast-cache",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(recorder.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, router, syncer)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Errorf("fiber server stopped: %v", err)
		}
	}()
	logger.Infof("forecast-cache listening on :%s (provider=%s, store=%s)", cfg.Port, provider.Name(), cfg.StoreDriver)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("error during shutdown: %v", err)
	}
	syncer.Wait()
}

func openStore(cfg *config.AppConfig, pub weather.ChangePublisher) (weather.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warnf("store: using in-memory store; forecasts are lost on restart")
		return store.NewMemoryStore(pub), nil
	}
	return store.OpenSQLite(cfg.DBPath, pub)
}

// newProvider selects the forecast feed. Providers carry their own resilience
// (backoff, circuit breaker and rate limit).
func newProvider(cfg *config.AppConfig, client *http.Client) weather.Provider {
	opts := providers.Options{
		Client:        client,
		Days:          cfg.ForecastDays,
		RatePerSecond: cfg.FeedRateLimit,
	}
	switch cfg.FeedProvider {
	case "weatherapi":
		return providers.NewWeatherAPIProvider(cfg.WeatherAPIKey, opts)
	case "openmeteo":
		return providers.NewOpenMeteoProvider(opts)
	default:
		return providers.NewOpenWeatherProvider(cfg.OpenWeatherAPIKey, opts)
	}
}
