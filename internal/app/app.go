package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"livetimers/timetracker/internal/audit"
	"livetimers/timetracker/internal/auth"
	"livetimers/timetracker/internal/config"
	"livetimers/timetracker/internal/httpserver"
	"livetimers/timetracker/internal/livesync"
	"livetimers/timetracker/internal/migrations"
	"livetimers/timetracker/internal/observability"
	"livetimers/timetracker/internal/timers"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	hub    *livesync.Hub
	server *httpserver.Server
}

type timerStore interface {
	httpserver.TimerService
	livesync.TimerLister
}

// OpenDB opens and pings a Postgres pool with the configured limits.
func OpenDB(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	var db *sql.DB
	if cfg.DB.URL != "" {
		var err error
		db, err = OpenDB(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := migrations.NewService().Up(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
	}

	a, err := build(cfg, db, logger, metrics)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return a, nil
}

func build(cfg config.Config, db *sql.DB, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	var (
		userStore    auth.UserStore
		sessionStore auth.SessionStore
		timerSvc     timerStore
	)
	if db != nil {
		users, err := auth.NewPostgresUserStore(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
		sessions, err := auth.NewPostgresSessionStore(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres session store: %w", err)
		}
		pg, err := timers.NewPGService(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres timer service: %w", err)
		}
		userStore, sessionStore, timerSvc = users, sessions, pg
	} else {
		users, err := auth.NewFileUserStore(cfg.Auth.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
		sessions, err := auth.NewFileSessionStore(cfg.Auth.SessionStateFile)
		if err != nil {
			return nil, fmt.Errorf("create session store: %w", err)
		}
		fileTimers, err := timers.NewServiceWithFile(cfg.TimerFile)
		if err != nil {
			return nil, fmt.Errorf("create timer service: %w", err)
		}
		userStore, sessionStore, timerSvc = users, sessions, fileTimers
		logger.Warn("DATABASE_URL not set, using JSON file stores",
			"users", cfg.Auth.UserStateFile,
			"sessions", cfg.Auth.SessionStateFile,
			"timers", cfg.TimerFile,
		)
	}

	authService, err := auth.NewService(userStore, sessionStore, auth.ServiceConfig{
		BcryptCost:  cfg.Auth.BcryptCost,
		TokenLength: cfg.Auth.TokenLength,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	gate := auth.NewGate(authService, cfg.Auth.CookieName)
	hub := livesync.NewHub()
	live := livesync.NewHandler(gate, timerSvc, hub, livesync.Config{
		PushInterval:   cfg.Live.PushInterval,
		AllowedOrigins: cfg.Live.AllowedOrigins,
	}, logger, metrics)

	var ready func(context.Context) error
	if db != nil {
		ready = db.PingContext
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:         authService,
		Timers:       timerSvc,
		Gate:         gate,
		Live:         live,
		Audit:        audit.NewLogger(cfg.AuditLogFile),
		Metrics:      metrics,
		Logger:       logger,
		Ready:        ready,
		PublicDir:    cfg.PublicDir,
		SecureCookie: cfg.Auth.CookieSecure,
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		hub:    hub,
		server: server,
	}, nil
}

// Run serves until ctx is cancelled. Live connections are closed and drained
// before the HTTP server shuts down and the database closes.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received", "live_connections", a.hub.Count())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.hub.CloseAll()
		if err := a.hub.Wait(shutdownCtx); err != nil {
			a.log.Warn("live connections did not drain", "remaining", a.hub.Count(), "error", err)
		}
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		a.hub.CloseAll()
		drainCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = a.hub.Wait(drainCtx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
