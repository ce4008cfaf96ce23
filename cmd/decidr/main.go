package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/decidr-app/decidr-server/internal/api"
	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/attachment"
	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/cache"
	"github.com/decidr-app/decidr-server/internal/config"
	"github.com/decidr-app/decidr-server/internal/gateway"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/httputil"
	"github.com/decidr-app/decidr-server/internal/member"
	"github.com/decidr-app/decidr-server/internal/message"
	"github.com/decidr-app/decidr-server/internal/postgres"
	"github.com/decidr-app/decidr-server/internal/presence"
	"github.com/decidr-app/decidr-server/internal/user"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.ServerEnv).Msg("Starting Decidr Server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx := context.Background()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Redis
	rdb, err := cache.Connect(ctx, cfg.RedisURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Token verification and refresh sessions
	keys, err := auth.LoadKeyPair(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("load jwt keys: %w", err)
	}
	verifier := auth.NewVerifier(keys, cfg.JWTIssuer, cfg.JWTAudience)
	sessions := auth.NewSessionStore(rdb, cfg.JWTRefreshTTL)

	// Repositories
	userRepo := user.NewPGRepository(db)
	groupRepo := group.NewPGRepository(db, log.Logger)
	memberRepo := member.NewPGRepository(db, log.Logger)
	messageRepo := message.NewPGRepository(db, log.Logger)
	attachmentRepo := attachment.NewPGRepository(db)

	// Presence cache and authorization oracle
	presenceStore := presence.NewStore(rdb)
	oracle := authz.NewOracle(verifier, groupRepo, memberRepo)

	// Gateway hub
	hub := gateway.NewHub(cfg, oracle, userRepo, memberRepo, messageRepo, presenceStore, log.Logger)

	// REST app
	httpApp := newApp()
	httpApp.Use(requestid.New())
	httpApp.Use(httputil.RequestLogger(log.Logger))
	httpApp.Use(cors.New(cors.Config{
		AllowOrigins:  []string{cfg.CORSAllowOrigins},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	httpApp.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAPIRequests,
		Expiration: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second,
	}))
	httpApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.RegisterHTTP(httpApp, api.Deps{
		Cfg:         cfg,
		DB:          db,
		RDB:         rdb,
		Verifier:    verifier,
		Sessions:    sessions,
		Oracle:      oracle,
		Users:       userRepo,
		Groups:      groupRepo,
		Members:     memberRepo,
		Messages:    messageRepo,
		Attachments: attachmentRepo,
		Rooms:       hub,
		Log:         log.Logger,
	})

	// Socket app, on its own port so the WebSocket listener can be scaled and
	// fronted independently of the REST surface.
	socketApp := newApp()
	socketApp.Use(requestid.New())
	socketApp.Use(httputil.RequestLogger(log.Logger))
	api.RegisterSocket(socketApp, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	listen := func(app *fiber.App, port int, name string) {
		addr := fmt.Sprintf(":%d", port)
		log.Info().Str("addr", addr).Msg(name + " listening")
		if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			errCh <- fmt.Errorf("%s server error: %w", name, err)
		}
	}
	go listen(httpApp, cfg.HTTPPort, "HTTP")
	go listen(socketApp, cfg.SocketPort, "Socket")

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down server")
	hub.Shutdown()
	_ = socketApp.ShutdownWithTimeout(10 * time.Second)
	_ = httpApp.ShutdownWithTimeout(10 * time.Second)

	return nil
}

// newApp builds a Fiber app whose error handler converts unmapped errors
// (Fiber's built-in 404/405 included) into the structured API envelope.
func newApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName: "Decidr",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			apiCode := apierrors.InternalError

			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
				message = fe.Message
				apiCode = fiberStatusToAPICode(fe.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{
					Code:    apiCode,
					Message: message,
				},
			})
		},
	})
}

// fiberStatusToAPICode maps an HTTP status from Fiber's built-in errors to the
// closest protocol error code.
func fiberStatusToAPICode(status int) apierrors.Code {
	switch {
	case status == fiber.StatusNotFound:
		return apierrors.NotFound
	case status == fiber.StatusUnauthorized:
		return apierrors.Unauthorized
	case status == fiber.StatusForbidden:
		return apierrors.Forbidden
	case status == fiber.StatusConflict:
		return apierrors.Conflict
	case status >= 400 && status < 500:
		return apierrors.ValidationError
	default:
		return apierrors.InternalError
	}
}
