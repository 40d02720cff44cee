package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/auth"
	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/covers"
	http_controllers "github.com/mrlokans/campuslib/internal/http"
	"github.com/mrlokans/campuslib/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// within the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server at %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	log.Printf("Shutdown Server, waiting %v before killing", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
	return nil
}

// Run starts the library server with its background jobs.
func Run(cfg *config.Config, version string) error {
	log.Printf("Starting campuslib v%s", version)

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	sqlDB, err := app.DB.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB for sessions: %w", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}
	defer sessionManager.Close()

	rateLimiter := auth.NewRateLimiter(auth.RateLimitConfig{
		MaxAttempts:      cfg.Auth.MaxLoginAttempts,
		MaxAttemptsPerIP: cfg.Auth.MaxAttemptsPerIP,
		WindowDuration:   cfg.Auth.RateLimitWindow,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	})
	defer rateLimiter.Stop()

	var csrfSecret []byte
	if cfg.Auth.CSRFEnabled {
		if csrfSecret, err = loadCSRFSecret(cfg.Auth.SessionSecret); err != nil {
			return err
		}
	}
	if !cfg.Auth.SecureCookies {
		log.Printf("WARNING: AUTH_SECURE_COOKIES is false, session cookies will be sent over plain HTTP")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	taskClient, err := startTasks(bgCtx, cfg, app)
	if err != nil {
		return err
	}
	jobs, err := newScheduler(cfg, app, taskClient)
	if err != nil {
		return err
	}
	jobs.Start(bgCtx)

	routerCfg := http_controllers.RouterConfig{
		Catalog:         app.Catalog,
		Lender:          app.Ledger,
		Students:        app.Members,
		Database:        app.DB,
		Auditor:         app.Auditor,
		SessionManager:  sessionManager,
		RateLimiter:     rateLimiter,
		CSRFSecret:      csrfSecret,
		SecureCookies:   cfg.Auth.SecureCookies,
		DefaultLoanDays: cfg.Lending.DefaultLoanDays,
		Version:         version,
	}
	if taskClient != nil {
		routerCfg.HealthChecks = append(routerCfg.HealthChecks,
			http_controllers.HealthCheck{Name: "tasks", Probe: taskClient.Ping})
	}
	if cfg.Catalog.CoverCacheDir != "" {
		coverCache, err := covers.NewCache(cfg.Catalog.CoverCacheDir)
		if err != nil {
			return err
		}
		routerCfg.Covers = coverCache
	}
	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		jobs.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}
		bgCancel()
	}

	return Serve(router, cfg, onShutdown)
}

// loadCSRFSecret decodes AUTH_SESSION_SECRET (hex, or raw bytes when not
// hex) or generates a fresh one that lasts until restart.
func loadCSRFSecret(configured string) ([]byte, error) {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret, nil
		}
		return []byte(configured), nil
	}

	generated, err := auth.GenerateSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF secret: %w", err)
	}
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return hex.DecodeString(generated)
}

// startTasks opens the task queue and starts its workers. It returns nil
// when tasks are disabled.
func startTasks(ctx context.Context, cfg *config.Config, app *App) (*tasks.Client, error) {
	if !cfg.Tasks.Enabled {
		log.Printf("Task queue disabled, scheduled jobs run inline")
		return nil, nil
	}

	client, err := tasks.NewClient(cfg.Tasks.DatabasePath, tasks.ConfigFrom(cfg.Tasks))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task queue: %w", err)
	}
	client.Register(
		tasks.NewScanOverdueQueue(tasks.NewOverdueScanner(app.Ledger, app.Auditor)),
		tasks.NewCleanupAuditEventsQueue(app.Auditor),
	)
	client.Start(ctx)
	return client, nil
}
