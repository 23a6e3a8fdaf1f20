package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hazardwatch/apiserver/config"
	"github.com/hazardwatch/apiserver/internal/db"
	"github.com/hazardwatch/apiserver/internal/handlers"
	"github.com/hazardwatch/apiserver/internal/metrics"
	"github.com/hazardwatch/apiserver/internal/mq"
	"github.com/hazardwatch/apiserver/internal/ratelimit"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/storage"
	"github.com/hazardwatch/apiserver/internal/store"
	"github.com/hazardwatch/apiserver/internal/urgency"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	events     *mq.EventBus
	logger     *slog.Logger
}

// New opens every backing service named in cfg and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, logger: logger}
	if err := s.build(ctx, cfg, jwtSecret); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg config.Config, jwtSecret string) error {
	userRepo := store.NewUserRepository(s.db)
	roleRepo := store.NewRoleRepository(s.db)
	complaintRepo := store.NewComplaintRepository(s.db)

	photos, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open photo storage: %w", err)
	}
	var uploader handlers.PhotoUploader
	if photos != nil {
		if err := photos.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure photo bucket: %w", err)
		}
		uploader = photos
	}

	backend, err := mq.NewBackend(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	var publisher services.EventPublisher
	if backend != nil {
		s.events = mq.NewEventBus(backend, cfg.Queue.Channel)
		publisher = s.events
	}

	limiter := s.submissionLimiter(ctx, cfg)

	classifier := urgency.NewClassifier(cfg.OverdueAfter)
	userService := services.NewUserService(userRepo)
	roleService := services.NewRoleService(roleRepo)
	complaintService := services.NewComplaintService(complaintRepo, publisher, limiter, classifier, s.logger)

	authThrottle := ratelimit.NewIPLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", s.ready)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(handlers.Identify(jwtSecret, roleService, s.logger))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(userService, jwtSecret, cfg.JWT.TokenTTL), authThrottle.Middleware)
		})
		r.Route("/complaints", func(r chi.Router) {
			handlers.ComplaintRouter(r, handlers.NewComplaintHandler(complaintService, uploader, cfg.Storage.MaxPhotoBytes))
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, handlers.NewAdminHandler(complaintService))
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
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// submissionLimiter prefers the shared Redis counter and falls back to an
// in-process limiter when Redis is not configured or unreachable.
func (s *Server) submissionLimiter(ctx context.Context, cfg config.Config) services.SubmissionLimiter {
	rl := cfg.RateLimit
	if rl.Submissions <= 0 {
		return nil
	}
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("could not connect to redis, using in-process submission limiter", "error", err)
			_ = client.Close()
		} else {
			s.redis = client
			return ratelimit.NewRedisLimiter(client, rl.Submissions, rl.Window, rl.KeyPrefix)
		}
	}
	return ratelimit.NewLocalLimiter(rl.Submissions, rl.Window)
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then drains it.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		_ = s.close()
		return err
	}
}

// Shutdown stops the server immediately and releases backing services.
func (s *Server) Shutdown() error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Close()
	}
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	var errs []error
	if s.events != nil {
		errs = append(errs, s.events.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
