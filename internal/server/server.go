package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/ai"
	"github.com/calmspace/apiserver/internal/auth"
	"github.com/calmspace/apiserver/internal/db"
	"github.com/calmspace/apiserver/internal/handlers"
	"github.com/calmspace/apiserver/internal/lockout"
	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/metrics"
	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/internal/storage"
	"github.com/calmspace/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server wraps the HTTP server, its router, and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     mq.Backend
	objects    storage.ObjectStorage
	accounts   *services.AccountService
	cleanup    time.Duration
	stop       context.CancelFunc
}

// New migrates the database, connects optional backends, and wires routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, cfg); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{db: dbConn, cleanup: cfg.Auth.CleanupInterval}
	if err := s.connectBackends(ctx, cfg); err != nil {
		_ = s.closeBackends()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	chatRepo := store.NewChatRepository(dbConn)
	moodRepo := store.NewMoodRepository(dbConn)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	events := mq.NewPublisher(s.broker, cfg.MQ.EventsChannel)

	var limiter lockout.Limiter = lockout.Noop{}
	if s.redis != nil {
		limiter = lockout.NewRedisLimiter(s.redis, cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration)
	}

	exportService := services.NewExportService(userRepo, chatRepo, moodRepo, s.objects)
	s.accounts = services.NewAccountService(services.AccountDeps{
		Users:      userRepo,
		Sessions:   sessionRepo,
		Chats:      chatRepo,
		Moods:      moodRepo,
		Hasher:     auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:     tokens,
		SessionTTL: cfg.Auth.SessionTTL,
		Limiter:    limiter,
		Events:     events,
		Exports:    exportService,
	})
	chatService := services.NewChatService(chatRepo, ai.NewClient(cfg.AI), events)
	moodService := services.NewMoodService(moodRepo, events)

	authMiddleware := handlers.RequireAuth(tokens)

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger,
		middleware.Recoverer,
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(rateLimit("global", cfg.Server.RateLimit, cfg.Server.RateLimitWindow))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, s.accounts, rateLimit("auth", cfg.Server.AuthRateLimit, cfg.Server.RateLimitWindow))
		})
		r.Route("/user", func(r chi.Router) {
			handlers.UserRouter(r, s.accounts, exportService, authMiddleware)
		})
		r.Route("/chat", func(r chi.Router) {
			handlers.ChatRouter(r, chatService, authMiddleware)
		})
		r.Route("/mood", func(r chi.Router) {
			handlers.MoodRouter(r, moodService, authMiddleware)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) connectBackends(ctx context.Context, cfg config.Config) error {
	if cfg.Redis.Addr != "" {
		client, err := lockout.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.redis = client
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("connect message broker: %w", err)
	}
	s.broker = broker

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("connect object storage: %w", err)
	}
	s.objects = objects
	return nil
}

// rateLimit limits requests per client IP. A non-positive limit disables it.
func rateLimit(scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimitHits.WithLabelValues(scope).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests, please try again later"}`))
		}),
	)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs background jobs and serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.accounts.RunSessionCleanup(ctx, s.cleanup)

	logging.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires, and closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.closeBackends())
}

func (s *Server) closeBackends() error {
	var errs []error
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	if closer, ok := s.objects.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
