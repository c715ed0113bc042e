package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kibarashidev/config"
	"kibarashidev/contextual"
	"kibarashidev/fallback"
	"kibarashidev/httpapi"
	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/modelapi/geminiapi"
	"kibarashidev/modelapi/weatherapi"
	"kibarashidev/orchestrator"
	"kibarashidev/suggestion"

	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Error loading configuration - %v", err)
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %e", err)
	}
	defer otelShutdown()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(context.Background())

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: cfg.Production, LoggerProvider: loggerProvider})
	defer LogMiddleware.Sync()
	Logger := LogMiddleware.Logger(ctx)

	pool := keypool.Connect(ctx, keypool.KeyPoolConnectProps{
		Logger:          LogMiddleware,
		Secrets:         cfg.Gemini.Secrets,
		RotationEnabled: cfg.Gemini.RotationEnabled,
		RetryAttempts:   cfg.Gemini.RetryAttempts,
		Cooldown:        cfg.Gemini.Cooldown(),
		TestMode:        cfg.TestMode(),
	})
	gemini := geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{
		Logger:     LogMiddleware,
		Model:      cfg.Gemini.Model,
		MaxWorkers: cfg.Gemini.MaxWorkers,
	})

	providerProps := contextual.ProviderConnectProps{Logger: LogMiddleware}
	if cfg.Weather.APIKey != "" {
		weather, err := weatherapi.Connect(ctx, weatherapi.WeatherConnectProps{
			Logger:   LogMiddleware,
			APIKey:   cfg.Weather.APIKey,
			Location: cfg.Weather.Location,
			CacheTTL: cfg.Weather.CacheTTL(),
		})
		if err != nil {
			Logger.Warn("[Server] Weather client unavailable, continuing without weather", zap.Error(err))
		} else {
			defer weather.Close()
			providerProps.Weather = weather
		}
	}
	provider := contextual.Connect(ctx, providerProps)

	catalog, err := fallback.Connect(ctx, fallback.CatalogConnectProps{Logger: LogMiddleware})
	if err != nil {
		Logger.Fatal("[Server] Could not load fallback catalog", zap.Error(err))
	}

	orch, err := orchestrator.Connect(ctx, orchestrator.OrchestratorConnectProps{
		Logger:      LogMiddleware,
		Pool:        pool,
		Generator:   gemini,
		Context:     provider,
		Catalog:     catalog,
		History:     suggestion.NewHistory(),
		MaxAttempts: cfg.Gemini.RetryAttempts,
		CallTimeout: cfg.Gemini.Timeout(),
	})
	if err != nil {
		Logger.Fatal("[Server] Could not build orchestrator", zap.Error(err))
	}

	router := httpapi.NewRouter(httpapi.RouterConnectProps{
		Logger:            LogMiddleware,
		Suggestions:       orch,
		Context:           provider,
		RateLimit:         httpapi.RateLimit{Max: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window()},
		EnhancedRateLimit: httpapi.RateLimit{Max: cfg.RateLimit.EnhancedMax, Window: cfg.RateLimit.Window()},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if cfg.Production {
			Logger.Info("[Server] Starting in production mode", zap.String("addr", srv.Addr))
		} else {
			Logger.Info("[Server] Starting in development mode", zap.String("addr", srv.Addr))
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("[Server] Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	Logger.Info("[Server] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Error("[Server] Graceful shutdown failed", zap.Error(err))
	}
}
