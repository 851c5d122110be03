// Package server wires the recovery engine to its adapters and runs the
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/config"
	"github.com/MrEthical07/goRecover/internal/database"
	"github.com/MrEthical07/goRecover/internal/directory"
	"github.com/MrEthical07/goRecover/internal/httpapi"
	"github.com/MrEthical07/goRecover/internal/repository"
	"github.com/MrEthical07/goRecover/metrics/export/prometheus"
	"github.com/MrEthical07/goRecover/password"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"mail", cfg.Mail.Driver,
	)

	// Redis
	rdb, err := newRedis(cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			logger.Error("failed to close redis", "error", closeErr)
		}
	}()

	// Database
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	// Directory
	roster, err := directory.LoadFile(cfg.Directory.RosterFile)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	logger.Info("roster loaded", "people", roster.Len())

	// Repository
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	repo := repository.New(db)
	users := repository.NewUserStore(repo)
	passwords := repository.NewPasswordStore(repo, hasher, repository.PasswordOptions{
		HistorySize: cfg.Password.HistorySize,
		MaxAge:      cfg.Password.MaxAge,
	})
	methods := repository.NewMethodStore(repo)

	// Collaborators
	mail, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up mailer: %w", err)
	}
	events, err := newEventLog(cfg, rdb, stdout)
	if err != nil {
		return err
	}
	mirror, err := newAuditMirror(cfg, stdout)
	if err != nil {
		return err
	}

	engine, err := goRecover.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithDirectory(roster).
		WithUserStore(users).
		WithPasswordStore(passwords).
		WithMailer(mail).
		WithMfaGateway(methods).
		WithEventLog(events).
		WithAuditMirror(mirror).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer engine.Close()

	if pingErr := engine.Ping(ctx); pingErr != nil {
		logger.Warn("redis not reachable at startup", "error", pingErr)
	}

	report := engine.SecurityReport()
	logger.Info("security posture",
		"signing", report.SigningAlgorithm,
		"code_digits", report.CodeDigits,
		"code_ttl", report.CodeTTL,
		"max_attempts", report.MaxAttempts,
		"device_delivery", report.DeviceDelivery,
		"high_findings", report.HighFindings,
	)

	opts := httpapi.Options{
		Engine:         engine,
		Captcha:        newCaptcha(cfg),
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookie:   cfg.Server.SecureCookie,
	}
	if cfg.Server.Metrics {
		opts.Metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}
	e, err := httpapi.New(opts)
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(e, cfg, roster, logger)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config, roster *directory.Roster, logger *slog.Logger) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

wait:
	for {
		select {
		case sig := <-quit:
			if sig == syscall.SIGHUP {
				if err := roster.Reload(); err != nil {
					logger.Error("roster reload failed", "error", err)
				} else {
					logger.Info("roster reloaded", "people", roster.Len())
				}
				continue
			}
			logger.Info("shutting down server")
			break wait
		case err := <-errChan:
			logger.Error("server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
