package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tidepool-web/internal/audit"
	"tidepool-web/internal/config"
	"tidepool-web/internal/domain"
	"tidepool-web/internal/handler"
	"tidepool-web/internal/middleware"
	"tidepool-web/internal/observability"
	"tidepool-web/internal/ratelimit"
	"tidepool-web/internal/repository/postgres"
	"tidepool-web/internal/security"
	"tidepool-web/internal/service"
	"tidepool-web/internal/view"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting web server", slog.String("environment", cfg.Environment))

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter, err := ratelimit.New(ctx, cfg.LimiterOptions())
	if err != nil {
		slog.Error("failed to create rate limiter", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if c, ok := limiter.(io.Closer); ok {
		defer c.Close()
	}
	slog.Info("rate limiter ready", slog.String("driver", cfg.RateLimitDriver))

	// The audit trail rides RabbitMQ. Development falls back to the
	// structured log when no broker is reachable; production does not
	// start without one.
	var recorder audit.Recorder
	var broker *audit.AMQPRecorder

	broker, err = audit.NewAMQPRecorderWithRetry(cfg.RabbitMQURL, 12, 5*time.Second)
	if err != nil {
		if cfg.IsProduction() {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Warn("audit broker unavailable, falling back to log recorder",
			slog.String("error", err.Error()))
		broker = nil
		recorder = audit.NewLogRecorder()
	} else {
		defer broker.Close()
		recorder = broker
	}

	userRepo, err := postgres.NewUserRepository(db)
	if err != nil {
		slog.Error("failed to create user repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		slog.Error("failed to create session repository", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authService := service.NewAuthService(userRepo, sessionRepo, limiter)

	renderer, err := view.New()
	if err != nil {
		slog.Error("failed to parse templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cookies := security.NewCookieCodec(cfg.CookieOptions())

	authHandler := handler.NewAuthHandler(authService, handler.AuthHandlerOptions{
		Limiter:       limiter,
		LoginLimit:    cfg.LoginRateLimit(),
		RegisterLimit: cfg.RegisterRateLimit(),
		Cookies:       cookies,
		Renderer:      renderer,
		Recorder:      recorder,
	})

	go startSessionSweep(ctx, sessionRepo)
	slog.Info("session sweep task started")

	// Only the redis limiter exposes a readiness ping; the in-memory
	// driver has nothing to probe.
	var cache handler.Pinger
	if p, ok := limiter.(handler.Pinger); ok {
		cache = p
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, broker, cache))
	r.Handle("/metrics", promhttp.Handler())

	// Per-IP backstops; the per-email budgets live inside the auth flow
	authBackstop := middleware.NewRateLimiter(5, 10)
	defer authBackstop.Stop()
	apiBackstop := middleware.NewRateLimiter(20, 50)
	defer apiBackstop.Stop()

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(authService, cookies, middleware.ModeRedirect))
		r.Get("/", authHandler.Home)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.LoginPage)
		r.Get("/register", authHandler.RegisterPage)

		r.Group(func(r chi.Router) {
			r.Use(authBackstop.Middleware())
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
		r.Use(apiBackstop.Middleware())
		r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authService, cookies, middleware.ModeAPI))
			r.Get("/auth/me", authHandler.Me)
		})
	})

	// Block all other routes to prevent access to files we're not explicitly serving
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("web server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("server stopped gracefully")
}

// startSessionSweep deletes expired sessions hourly and refreshes the
// active-session gauge.
func startSessionSweep(ctx context.Context, repo domain.SessionRepository) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session sweep task")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := repo.DeleteExpired(sweepCtx)
			if err != nil {
				slog.Error("session sweep failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session sweep completed",
					slog.Int64("sessions_deleted", count))
			}
			if active, err := repo.CountActive(sweepCtx); err == nil {
				observability.SessionsActive.Set(float64(active))
			}
			cancel()
		}
	}
}
