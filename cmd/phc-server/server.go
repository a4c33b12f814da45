package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/phc/phc/internal/domain/account"
	"github.com/phc/phc/internal/domain/lab"
	"github.com/phc/phc/internal/domain/opd"
	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/domain/pharmacy"
	"github.com/phc/phc/internal/domain/tenant"
	"github.com/phc/phc/internal/domain/ward"
	"github.com/phc/phc/internal/platform/apperr"
	"github.com/phc/phc/internal/platform/auth"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/middleware"
	"github.com/phc/phc/internal/platform/reporting"
)

const version = "0.1.0"

// newServer builds the echo instance with every route mounted.
func newServer(a *app) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.SecurityHeaders())
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(a.registry, a.cache))
	e.GET("/metrics", a.metrics.Handler())

	requireAuth := auth.JWTMiddleware(a.issuer, a.revoked, logger)
	audited := middleware.Audit(a.auditLog, logger)

	accountHandler := account.NewHandler(a.accounts, a.auditLog)
	loginLimit := middleware.RateLimit(middleware.LoginRateLimitConfig(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst))
	accountHandler.RegisterAuthRoutes(e.Group("/api/auth"), requireAuth, loginLimit)

	// Super-admin routes run against the registry only.
	platform := e.Group("/api", requireAuth)
	tenant.NewHandler(a.tenants).RegisterRoutes(platform.Group("", audited))

	// Clinic routes: the partition comes from the token, never the request.
	rateCfg := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rateCfg.RequestsPerSecond <= 0 {
		rateCfg = middleware.DefaultRateLimitConfig()
	}
	clinic := platform.Group("",
		middleware.RequestTimeout(cfg.RequestTimeout),
		db.TenantMiddleware(a.cache, logger),
		middleware.RateLimit(rateCfg),
		audited,
	)
	patient.NewHandler(a.patients).RegisterRoutes(clinic)
	opd.NewHandler(a.opd).RegisterRoutes(clinic)
	lab.NewHandler(a.lab).RegisterRoutes(clinic)
	pharmacy.NewHandler(a.pharmacy).RegisterRoutes(clinic)
	ward.NewHandler(a.ward).RegisterRoutes(clinic)
	accountHandler.RegisterAdminRoutes(clinic)
	reporting.NewHandler(a.reporting).RegisterRoutes(clinic)

	return e
}

func runServer() error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		l := newLogger(nil)
		l.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()
	logger := a.logger

	if _, err := a.migrator().Up(ctx, "public"); err != nil {
		logger.Error().Err(err).Msg("registry migration failed")
		return err
	}

	if a.cfg.SuperAdminEmail != "" {
		created, err := a.accounts.EnsureSuperAdmin(ctx, a.cfg.SuperAdminEmail, a.cfg.SuperAdminName, a.cfg.SuperAdminPassword)
		if err != nil {
			logger.Error().Err(err).Msg("failed to seed super admin")
			return err
		}
		if created {
			logger.Info().Str("email", a.cfg.SuperAdminEmail).Msg("super admin created")
		}
	}

	e := newServer(a)

	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Int("tenant_handles", a.cache.Len()).Msg("server stopped")
	return nil
}
