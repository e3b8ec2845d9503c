package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/rosterhub/rosterhub/internal/adapter/driven/jsonstore"
	"github.com/rosterhub/rosterhub/internal/adapter/driven/platform"
	sqliteadapter "github.com/rosterhub/rosterhub/internal/adapter/driven/sqlite"
	httphandler "github.com/rosterhub/rosterhub/internal/adapter/driving/http"
	"github.com/rosterhub/rosterhub/internal/application"
	"github.com/rosterhub/rosterhub/internal/config"
	"github.com/rosterhub/rosterhub/internal/pagetoken"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store_path", cfg.StorePath,
		"db_path", cfg.DBPath,
		"refresh_interval", cfg.RefreshInterval,
		"group_id", cfg.GroupID,
		"operators", len(cfg.Operators),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	members := jsonstore.New(cfg.StorePath, slog.Default())
	runs := sqliteadapter.NewRunRepo(db)
	settings := sqliteadapter.NewSettingRepo(db)

	platformClient := platform.NewClient(platform.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		APIBaseURL:   cfg.APIBaseURL,
		ServiceToken: cfg.ServiceToken,
	}, slog.Default())

	// 6. Create and start the refresh service. The first pass runs one full
	// interval after startup.
	refreshSvc := application.NewRefreshService(members, platformClient, runs, cfg.RefreshInterval)
	go refreshSvc.Start(ctx)

	// 7. Create application services.
	codec := pagetoken.New([]byte(cfg.PageTokenSecret), pagetoken.WithTTL(cfg.PageTokenTTL))
	rosterSvc := application.NewRosterService(members, codec, cfg.PageSize)
	dispatchSvc := application.NewDispatchService(
		members, platformClient, runs, refreshSvc,
		cfg.GroupID, cfg.BatchSize, cfg.BatchDelay,
	)

	// 8. Create the HTTP handler and register routes.
	apiHandler := httphandler.NewHandler(
		rosterSvc, dispatchSvc, refreshSvc,
		members, runs, settings, platformClient,
		cfg.GroupID, cfg.Operators, cfg.ReplaceSecret,
		slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("rosterhub started",
		"listen_addr", cfg.ListenAddr,
		"refresh_interval", cfg.RefreshInterval,
		"batch_size", cfg.BatchSize,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
