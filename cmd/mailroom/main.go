// Command mailroom runs the mailroom tracking service's security and
// coordination core: HTTP API, embedded SQLite store, and the serial write
// queue that backs it. Grounded on zurustar-sdd01/cmd/scheduler/main.go's
// wiring shape (load config, open storage, build adapters, build services,
// build the router, run with signal-driven graceful shutdown), adapted from
// its mux-based protected/public split to httpapi's chi router and
// AuthenticationBinding middleware.
package main

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

	"github.com/google/uuid"

	"github.com/example/mailroom-core/internal/config"
	"github.com/example/mailroom-core/internal/domain"
	"github.com/example/mailroom-core/internal/httpapi"
	"github.com/example/mailroom-core/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logOut := os.Stdout
	if cfg.LogFile != "" {
		f, ferr := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			logger.Error("failed to open log file", "error", ferr)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	level, _ := parseLogLevel(cfg.LogLevel)
	logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))
	isProd := cfg.AppEnv == "production"

	st, err := store.Open(ctx, store.Config{
		Path:               cfg.DatabasePath,
		CheckpointInterval: cfg.DatabaseCheckpointInterval,
		BusyTimeout:        5 * time.Second,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	queueCfg := store.DefaultWriteQueueConfig
	queueCfg.CheckpointInterval = cfg.DatabaseCheckpointInterval
	queue := store.NewWriteQueue(st, queueCfg, logger)

	userRepo := store.NewUserRepository(st, queue)
	sessionRepo := store.NewSessionRepository(st, queue)
	auditWriter := store.NewAuditRepository(queue)
	auditReader := store.NewAuditRepositoryReader(st)
	packageRepo := store.NewPackageRepository(st, queue)
	recipientRepo := store.NewRecipientRepository(st, queue)
	settingsRepo := store.NewSettingsRepository(st, queue)
	reportingRepo := store.NewReportingRepository(st)

	policy, err := domain.NewAccessPolicy()
	if err != nil {
		logger.Error("failed to build access policy", "error", err)
		os.Exit(1)
	}

	newID := func() string { return uuid.NewString() }

	identity := domain.NewIdentityServiceWithLogger(userRepo, sessionRepo, auditWriter, policy, domain.IdentityServiceConfig{
		Argon2Params: domain.Argon2idParams{
			Memory:      uint32(cfg.Argon2MemoryCost),
			Iterations:  uint32(cfg.Argon2TimeCost),
			Parallelism: uint8(cfg.Argon2Parallelism),
			SaltLength:  domain.DefaultArgon2idParams.SaltLength,
			KeyLength:   domain.DefaultArgon2idParams.KeyLength,
		},
		PasswordPolicy:    domain.PasswordPolicy{MinLength: cfg.PasswordMinLength, HistoryCount: cfg.PasswordHistoryCount},
		SessionTTL:        cfg.SessionTimeout,
		MaxConcurrentSess: cfg.MaxConcurrentSessions,
		MaxFailedLogins:   cfg.MaxFailedLogins,
		LockoutDuration:   cfg.AccountLockoutDuration,
	}, newID, logger)

	packages := domain.NewPackageCoreWithLogger(packageRepo, recipientRepo, auditWriter, newID, domain.PackageCoreConfig{
		AttachmentPolicy: domain.AttachmentPolicy{
			MaxBytes:    cfg.MaxUploadSize,
			AllowedMIME: allowedMIMEExtensions(cfg.AllowedImageTypeList()),
			UploadRoot:  cfg.UploadDir,
		},
	}, logger)
	recipients := domain.NewRecipientServiceWithLogger(recipientRepo, auditWriter, newID, logger)
	settings := domain.NewSettingsServiceWithLogger(settingsRepo, auditWriter, logger)
	users := domain.NewUserManagementServiceWithLogger(userRepo, sessionRepo, auditWriter, policy, newID, logger)
	reporting := domain.NewReportingService(reportingRepo)
	health := domain.NewHealthService(st, newDiskSpaceChecker(cfg.DatabasePath), "1.0.0", time.Now())

	authHandler := httpapi.NewAuthHandler(identity, logger, isProd)
	packageHandler := httpapi.NewPackageHandler(packages, recipients, settings, logger, cfg.MaxUploadSize)
	recipientHandler := httpapi.NewRecipientHandler(recipients, logger)
	adminUserHandler := httpapi.NewAdminUserHandler(users, identity, logger)
	reportHandler := httpapi.NewAdminReportHandler(reporting, settings, auditReader, logger)
	healthHandler := httpapi.NewHealthHandler(health, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Auth:             authHandler,
		Packages:         packageHandler,
		Recipients:       recipientHandler,
		AdminUsers:       adminUserHandler,
		Reports:          reportHandler,
		Health:           healthHandler,
		SessionValidator: identity,
		MustChange: func(ctx context.Context, principal domain.Principal) (bool, error) {
			return identity.MustChangePassword(ctx, principal.UserID)
		},
		Logger:         logger,
		IsProduction:   isProd,
		RateLimitLogin: cfg.RateLimitLogin,
		RateLimitAPI:   cfg.RateLimitAPI,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shut down http server", "error", err)
		}

		queueCtx, queueCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer queueCancel()
		if err := queue.Shutdown(queueCtx); err != nil {
			logger.Error("failed to drain write queue", "error", err)
		}
		if err := st.Checkpoint(context.Background()); err != nil {
			logger.Error("final checkpoint failed", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	logger.Info("mailroom core listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// allowedMIMEExtensions maps each configured MIME type to its canonical
// extension, limited to the three image types spec §6's default policy
// recognizes; unrecognized configured types are dropped rather than guessed.
func allowedMIMEExtensions(types []string) map[string]string {
	known := map[string]string{"image/jpeg": ".jpg", "image/png": ".png", "image/webp": ".webp"}
	out := make(map[string]string, len(types))
	for _, t := range types {
		if ext, ok := known[t]; ok {
			out[t] = ext
		}
	}
	if len(out) == 0 {
		return domain.DefaultAttachmentPolicy.AllowedMIME
	}
	return out
}
