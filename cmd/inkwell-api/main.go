// Command inkwell-api runs the collaborative editor's persistence
// gateway: document, content, version, collaborator, presence,
// invitation and comment APIs behind bearer auth.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/auth"
	"github.com/inkwell-labs/inkwell/backend/internal/config"
	"github.com/inkwell-labs/inkwell/backend/internal/database"
	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/logging"
	"github.com/inkwell-labs/inkwell/backend/internal/server"
	"github.com/inkwell-labs/inkwell/backend/internal/users"
)

const shutdownGrace = 10 * time.Second

func main() {
	configViper := config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "inkwell-api",
		Short: "Inkwell collaborative editor API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configViper)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.String("http-address", "", "listen address for the HTTP server")
	flags.String("database-path", "", "path to the SQLite database file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(configViper, "http.address", flags.Lookup("http-address"))
	bindFlag(configViper, "database.path", flags.Lookup("database-path"))
	bindFlag(configViper, "log.level", flags.Lookup("log-level"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bindFlag(configViper *viper.Viper, key string, flag *pflag.Flag) {
	if err := configViper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return fmt.Errorf("build user service: %w", err)
	}
	documentService, err := documents.NewService(documents.ServiceConfig{
		Database:          db,
		IDProvider:        documents.NewUUIDProvider(),
		Logger:            logger,
		PresenceFreshness: cfg.Sync.PresenceFreshness,
		VersionListLimit:  cfg.Sync.VersionListLimit,
	})
	if err != nil {
		return fmt.Errorf("build document service: %w", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
		TokenTTL:      cfg.TokenTTL,
	})

	engine, err := server.NewRouter(server.RouterConfig{
		Logger:          logger,
		Documents:       documentService,
		Users:           userService,
		TokenIssuer:     tokenIssuer,
		Events:          server.NewDispatcher(logger),
		BootstrapSecret: cfg.BootstrapSecret,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server.listening", zap.String("address", cfg.HTTPAddress))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-signalCtx.Done():
	}

	logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
