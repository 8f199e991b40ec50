package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/openmorph/metamorph/internal/adapter/auth"
	"github.com/openmorph/metamorph/internal/adapter/fsm"
	"github.com/openmorph/metamorph/internal/adapter/oracle"
	"github.com/openmorph/metamorph/internal/adapter/sqlite"
	"github.com/openmorph/metamorph/internal/app"
	"github.com/openmorph/metamorph/internal/config"

	handler "github.com/openmorph/metamorph/internal/adapter/http"
	otelx "github.com/openmorph/metamorph/internal/adapter/otel"
	riverx "github.com/openmorph/metamorph/internal/adapter/river"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("metamorph: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// --- Observability ---
	providers, err := otelx.Setup(ctx, otelx.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	// --- Adapters (out) ---
	db, err := otelx.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureState(ctx, cfg.UpkeepInterval, cfg.MaxUpdates); err != nil {
		return fmt.Errorf("collection state: %w", err)
	}

	traced := otelx.NewTracingRepository(repo)
	publisher := riverx.NewPublisher()
	authorizer := auth.New(cfg.AdminKey)

	// --- Application ---
	svc := app.NewTokenService(
		traced,
		traced,
		otelx.NewTracingPublisher(publisher),
		fsm.New(),
		authorizer,
		cfg.BaseImageURI,
	)

	var pusher handler.ReadingPusher
	if cfg.WeatherMode {
		if cfg.OracleURL != "" {
			svc.WithWeatherSource(oracle.NewClient(cfg.OracleURL))
		} else {
			manual := oracle.NewManual()
			svc.WithWeatherSource(manual)
			pusher = manual
		}
	}

	// --- Scheduler ---
	client, err := riverx.Setup(ctx, db, svc, cfg.CheckInterval)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	publisher.Bind(client)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("metamorph", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("metamorph", "0.1.0"))
	handler.Register(api, svc, authorizer, pusher)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("metamorph listening on :%s", cfg.Port)
		log.Printf("API docs: http://localhost:%s/docs", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		log.Printf("river shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}

	log.Println("stopped")
	return nil
}
