package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/audit"
	"github.com/JonMunkholm/sheetusers/internal/auth"
	"github.com/JonMunkholm/sheetusers/internal/config"
	"github.com/JonMunkholm/sheetusers/internal/grid"
	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/store"
	"github.com/JonMunkholm/sheetusers/internal/user"
	"github.com/JonMunkholm/sheetusers/internal/web"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if envLoaded {
		log.Info("loaded .env file (overwriting existing env vars)")
	}
	log.Infow("configuration loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"id_strategy", cfg.Store.IDStrategy,
		"password_hasher", cfg.Auth.PasswordHasher,
		"audit_enabled", cfg.Audit.Enabled,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := run(cfg, log); err != nil {
		log.Errorw("server exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx := context.Background()

	loc, err := cfg.Auth.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	book, closeBook, err := openBook(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBook()

	if cfg.Store.Bootstrap {
		if err := bootstrap(ctx, cfg, book); err != nil {
			return err
		}
	}

	ids, err := store.NewIDGenerator(cfg.Store.IDStrategy, loc, cfg.Store.SnowflakeNode)
	if err != nil {
		return err
	}
	hasher, err := user.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	opts := []user.Option{
		user.WithHasher(hasher),
		user.WithLocation(loc),
		user.WithSerializedWrites(cfg.Auth.SerializeWrites),
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var auditLog web.AuditLog
	if cfg.Audit.Enabled {
		logger := audit.NewLogger(store.NewTable(book, cfg.Store.AuditSheet, ids))
		auditLog = logger
		opts = append(opts, user.WithAudit(logger))

		scheduler, err := audit.NewScheduler(logger, audit.SchedulerConfig{
			Schedule:      cfg.Audit.PruneSchedule,
			RetentionDays: cfg.Audit.RetentionDays,
		}, log)
		if err != nil {
			return err
		}
		go scheduler.Start(jobCtx)
	}

	users := user.NewService(
		user.NewRepository(store.NewTable(book, cfg.Store.UsersSheet, ids)),
		opts...,
	)
	if err := seedAdmin(ctx, cfg, users, log); err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	server := web.NewServer(cfg, users, auditLog, issuer)

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	log.Info("server stopped")
	return nil
}

// openBook connects the configured grid backend and applies its migrations.
// The returned func releases the backend.
func openBook(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (grid.Book, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		return grid.NewMemoryBook(cfg.Store.Book), func() {}, nil

	case "sqlite":
		db, err := grid.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := grid.Migrate(ctx, db, grid.DialectSQLite); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Infow("opened sqlite store", "path", cfg.Store.SQLitePath, "book", cfg.Store.Book)
		return grid.NewSQLBook(db, grid.DialectSQLite, cfg.Store.Book), func() { _ = db.Close() }, nil

	case "postgres":
		pool, db, err := grid.OpenPostgres(ctx, cfg.Database.URL, grid.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		closeAll := func() {
			_ = db.Close()
			pool.Close()
		}
		if err := grid.Migrate(ctx, db, grid.DialectPostgres); err != nil {
			closeAll()
			return nil, nil, err
		}
		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			log.Infow("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "book", cfg.Store.Book)
		}
		return grid.NewSQLBook(db, grid.DialectPostgres, cfg.Store.Book), closeAll, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// seedAdmin creates the configured admin on an empty users sheet. Without
// one, a token-protected API with no users can never be used.
func seedAdmin(ctx context.Context, cfg *config.Config, users *user.Service, log *zap.SugaredLogger) error {
	doc := cfg.Auth.BootstrapAdminDocument
	if doc == "" {
		if cfg.Auth.RequireToken {
			log.Warn("AUTH_BOOTSTRAP_ADMIN_DOCUMENT is not set; an empty users sheet cannot be logged into")
		}
		return nil
	}
	if _, err := users.EnsureAdmin(ctx, doc, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}

// bootstrap creates missing sheets with their header rows. Existing sheets
// are left as they are; a wrong header row still fails schema validation on
// first use.
func bootstrap(ctx context.Context, cfg *config.Config, book grid.Book) error {
	sheets := map[string][]string{cfg.Store.UsersSheet: user.Fields}
	if cfg.Audit.Enabled {
		sheets[cfg.Store.AuditSheet] = audit.Fields
	}
	for name, headers := range sheets {
		start := time.Now()
		if _, err := grid.OpenOrCreate(ctx, book, name, headers); err != nil {
			return fmt.Errorf("bootstrap sheet %s: %w", name, err)
		}
		zap.S().Debugw("sheet ready", "sheet", name, "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}
