// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"whisperbox/internal/cache"
	"whisperbox/internal/config"
	"whisperbox/internal/database"
	"whisperbox/internal/email"
	"whisperbox/internal/identity"
	"whisperbox/internal/middleware"
	"whisperbox/internal/models"
	"whisperbox/internal/repository"
	"whisperbox/internal/service"
	"whisperbox/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus

	userRepo    repository.UserRepository
	tokenRepo   repository.TokenRepository
	messageRepo repository.MessageRepository

	tokenService   *service.TokenService
	authService    *service.AuthService
	userService    *service.UserService
	messageService *service.MessageService
}

// NewServer creates a server instance and initializes all dependencies.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	mailer := email.NewSMTPMailer(cfg)
	verifier := identity.NewGoogleVerifier(cfg.GoogleClientID, cfg.IdentityTimeout)
	store, err := storage.NewS3Store(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, redisClient, mailer, verifier, store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this to inject an in-memory database and stub collaborators.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, mailer email.Mailer, verifier identity.Verifier, store storage.ObjectStore) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	prom := middleware.InitMetrics("whisperbox-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		tokenRepo:      tokenRepo,
		messageRepo:    messageRepo,
	}

	server.tokenService = service.NewTokenService(cfg, tokenRepo)
	server.authService = service.NewAuthService(cfg, userRepo, server.tokenService, mailer, verifier)
	server.userService = service.NewUserService(cfg, userRepo, messageRepo, server.tokenService, store)
	server.messageService = service.NewMessageService(userRepo, messageRepo)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Propagate request ID and user ID into the request context
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting per IP
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; CORS handles those.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c,
				models.NewRateLimitedError("Too many requests, please try again later"))
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/google", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "google_login"), s.GoogleLogin)
	auth.Post("/refresh-token", s.Refresh)
	auth.Post("/verify-email", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "verify_email"), s.VerifyEmail)
	auth.Post("/resend-code", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "resend_code"), s.ResendCode)
	auth.Post("/forgot-password", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "forgot_password"), s.ForgotPassword)
	auth.Post("/reset-password", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "reset_password"), s.ResetPassword)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Post("/logout-all", s.AuthRequired(), s.LogoutAll)

	users := api.Group("/users")
	users.Get("/profile/me", s.AuthRequired(), s.GetMyProfile)
	users.Patch("/profile", s.AuthRequired(), s.UpdateProfile)
	users.Patch("/profile-pic", s.AuthRequired(), middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "avatar_upload"), s.UploadAvatar)
	users.Patch("/update-password", s.AuthRequired(), s.UpdatePassword)
	users.Patch("/freeze-account", s.AuthRequired(), s.FreezeAccount)
	users.Patch("/freeze-account/:userId", s.AuthRequired(), s.RequireRole(models.RoleAdmin), s.FreezeAccount)
	users.Patch("/restore-account/:userId", s.AuthRequired(), s.RequireRole(models.RoleAdmin), s.RestoreAccount)
	users.Delete("/delete-account/:userId", s.AuthRequired(), s.RequireRole(models.RoleAdmin), s.DeleteAccount)
	users.Get("/profile/:userId", s.GetPublicProfile)

	messages := api.Group("/messages")
	messages.Post("/", s.OptionalAuth(), middleware.RateLimit(
		s.redis, 15, time.Minute, "send_message"), s.SendMessage)
	messages.Get("/", s.AuthRequired(), s.ListInbox)
	messages.Patch("/:id/read", s.AuthRequired(), s.MarkMessageRead)
	messages.Delete("/:id/delete", s.AuthRequired(), s.DeleteMessage)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The API keeps serving without Redis, readiness just reports it.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName:   "Whisperbox API",
		BodyLimit: (s.config.AvatarMaxSizeMB + 1) << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			return err
		}
	}
	return nil
}
