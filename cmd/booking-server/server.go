package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medicall/booking/internal/config"
	"github.com/medicall/booking/internal/domain/availability"
	"github.com/medicall/booking/internal/domain/directory"
	"github.com/medicall/booking/internal/domain/scheduling"
	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/internal/platform/db"
	"github.com/medicall/booking/internal/platform/middleware"
	"github.com/medicall/booking/internal/platform/notification"
	"github.com/medicall/booking/internal/platform/otp"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "1M"
)

// app holds the wired services shared by serve and jobs run.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool       *pgxpool.Pool
	redis      *redis.Client
	codes      otp.Store
	dispatcher *notification.Dispatcher
	tokens     *auth.TokenIssuer

	availability *availability.Handler
	directory    *directory.Handler
	scheduling   *scheduling.Handler
	jobs         *scheduling.Jobs
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")

	a := &app{cfg: cfg, logger: logger, pool: pool}

	a.codes = otp.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := otp.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.redis = client
		a.codes = otp.NewRedisStore(client)
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, OTP codes are kept in process memory")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		logger.Warn().Msg("JWT_SECRET not set, tokens will not survive a restart")
	}
	a.tokens = auth.NewTokenIssuer(secret, cfg.JWTTTL)

	email, sms := senders(cfg, logger)
	a.dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		Workers:        cfg.NotifyWorkers,
		QueueSize:      cfg.NotifyQueueSize,
		EnqueueTimeout: cfg.NotifyEnqueueTimeout,
		MaxAttempts:    cfg.NotifyMaxAttempts,
		RetryBackoff:   time.Second,
		Location:       loc,
	}, email, sms, notification.NewTemplateEngine(), logger)
	a.dispatcher.Start(context.Background())

	// Repositories
	templateRepo := availability.NewRepo(pool)
	userRepo := directory.NewUserRepo(pool)
	doctorRepo := directory.NewDoctorRepo(pool)
	ledger := scheduling.NewLedger(pool)

	// Services
	availSvc := availability.NewService(templateRepo)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	dirSvc := directory.NewService(userRepo, doctorRepo, templateRepo, inTx, a.codes, a.tokens, a.dispatcher,
		directory.Config{
			DefaultSlotMinutes: int(cfg.SlotDuration / time.Minute),
			OTPTTL:             cfg.OTPTTL,
			SMSCountryCode:     cfg.SMSCountryCode,
		}, logger)
	schedCfg := scheduling.Config{Location: loc, SMSCountryCode: cfg.SMSCountryCode}
	schedSvc := scheduling.NewService(ledger, dirSvc, availSvc, a.dispatcher, schedCfg, logger)
	resolver := scheduling.NewResolver(dirSvc, availSvc, ledger, loc)

	a.availability = availability.NewHandler(availSvc)
	a.directory = directory.NewHandler(dirSvc)
	a.scheduling = scheduling.NewHandler(schedSvc, resolver)
	a.jobs = scheduling.NewJobs(ledger, dirSvc, a.dispatcher, schedCfg, logger)

	return a, nil
}

// close drains the notification queue and releases connections.
func (a *app) close(ctx context.Context) {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("notification queue not drained")
		}
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}

func senders(cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, notification.SMSSender) {
	fallback := notification.NewLogSender(logger)

	var email notification.EmailSender = fallback
	if cfg.SendGridEnabled() {
		email = notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	} else {
		logger.Warn().Msg("SendGrid not configured, emails are logged only")
	}

	var sms notification.SMSSender = fallback
	if cfg.TwilioEnabled() {
		sms = notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.SMSCountryCode)
	} else {
		logger.Warn().Msg("Twilio not configured, SMS are logged only")
	}
	return email, sms
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// routes builds the echo instance. The returned limiters need Run to sweep
// idle clients.
func (a *app) routes() (*echo.Echo, []*middleware.RateLimiter) {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(a.logger)

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Total-Count", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health", "/health/db"))
	e.Use(middleware.BodyLimit(bodyLimit))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.healthChecks()...))
	e.GET("/health/notifications", func(c echo.Context) error {
		return c.JSON(http.StatusOK, a.dispatcher.Stats())
	})

	// API
	general := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		general.RequestsPerSecond = cfg.RateLimitRPS
		general.BurstSize = cfg.RateLimitBurst
	}
	credentials := general
	credentials.RequestsPerSecond = cfg.AuthRateLimitRPS
	credentials.BurstSize = cfg.AuthRateLimitBurst
	generalLimiter := middleware.NewRateLimiter(general)
	credentialLimiter := middleware.NewRateLimiter(credentials)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(generalLimiter.Middleware())
	apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:  a.tokens,
		Skipper: auth.AuthSkipper,
	}))

	a.directory.RegisterRoutes(apiV1, credentialLimiter.Middleware())
	a.availability.RegisterRoutes(apiV1)
	a.scheduling.RegisterRoutes(apiV1)

	return e, []*middleware.RateLimiter{generalLimiter, credentialLimiter}
}

// healthChecks lists the dependencies /health/db pings besides the pool.
func (a *app) healthChecks() []db.Check {
	return []db.Check{{Name: "otp", Ping: a.codes.Ping}}
}

// errorHandler logs internal errors with their cause before echo writes the
// generic response.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code >= http.StatusInternalServerError && he.Internal != nil {
			logger.Error().Err(he.Internal).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Path()).
				Msg("request failed")
		}
		c.Echo().DefaultHTTPErrorHandler(err, c)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid config")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close(context.Background())

	e, limiters := a.routes()

	scheduler := cron.New(cron.WithLocation(a.location()))
	if err := a.jobs.Schedule(scheduler, cfg.ReminderSchedule, cfg.CompletionSchedule); err != nil {
		return err
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	for _, rl := range limiters {
		rl := rl
		g.Go(func() error {
			rl.Run(gctx.Done())
			return nil
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		cronCtx := scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		select {
		case <-cronCtx.Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("background job still running at shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// location falls back to UTC; Validate has already rejected a bad TIMEZONE.
func (a *app) location() *time.Location {
	loc, err := a.cfg.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}
