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

	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/auth"
	"github.com/ratherlab/rather/backend/internal/config"
	"github.com/ratherlab/rather/backend/internal/database"
	"github.com/ratherlab/rather/backend/internal/logging"
	"github.com/ratherlab/rather/backend/internal/observability"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"github.com/ratherlab/rather/backend/internal/realtime"
	"github.com/ratherlab/rather/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	version = "dev"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rather-api",
		Short:   "Would-you-rather backend service",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newImportCommand(), newHashPasswordCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Postgres connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Admin session TTL in minutes")
	cmd.PersistentFlags().Int("display-factor", defaults.GetInt("tally.display_factor"), "Multiplier applied to public vote counts")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().Bool("tracing-enabled", defaults.GetBool("tracing.enabled"), "Enable OpenTelemetry tracing")
	cmd.PersistentFlags().String("tracing-endpoint", defaults.GetString("tracing.endpoint"), "OTLP/HTTP endpoint for traces")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("realtime.redis_address"), "Redis address for shared realtime events")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "tally.display_factor", "display-factor")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "tracing.enabled", "tracing-enabled")
	bindFlag(cmd, "tracing.endpoint", "tracing-endpoint")
	bindFlag(cmd, "realtime.redis_address", "redis-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return readConfigFile(viper.GetViper(), cfgFile)
}

// readConfigFile loads an explicit --config path and fails on any read or
// parse error. Without a path only a missing default file is tolerated.
func readConfigFile(configViper *viper.Viper, path string) error {
	if path != "" {
		configViper.SetConfigFile(path)
		if err := configViper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(signalCtx, observability.TracingConfig{
		Enabled:  appConfig.TracingEnabled,
		Version:  version,
		Endpoint: appConfig.TracingEndpoint,
		Insecure: true,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(databaseConfig(appConfig), logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	adminService, err := admins.NewService(admins.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	if appConfig.AdminPasswordHash != "" {
		if _, err := adminService.EnsureAccount(signalCtx, appConfig.AdminUsername, appConfig.AdminPasswordHash); err != nil {
			return err
		}
	} else {
		logger.Warn("admin.password_hash is empty; no admin account seeded")
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	var observer preferences.VoteObserver = dispatcher
	var redisBus *realtime.RedisBus
	if appConfig.RedisAddress != "" {
		redisBus, err = realtime.NewRedisBus(signalCtx, realtime.RedisBusConfig{
			Address: appConfig.RedisAddress,
			Channel: appConfig.RedisChannel,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer redisBus.Close() //nolint:errcheck
		observer = redisBus
	}

	preferenceService, err := preferences.NewService(preferences.ServiceConfig{
		Database: db,
		Logger:   logger,
		Observer: observer,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Preferences:      preferenceService,
		Admins:           adminService,
		SessionValidator: sessionValidator,
		SessionIssuer:    tokenIssuer,
		Realtime:         dispatcher,
		Logger:           logger,
		AllowedOrigins:   appConfig.AllowedOrigins,
		DisplayFactor:    appConfig.TallyDisplayFactor,
		TracingEnabled:   appConfig.TracingEnabled,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	})
	if redisBus != nil {
		group.Go(func() error {
			return redisBus.Forward(groupCtx, dispatcher.PublishEvent)
		})
	}

	return group.Wait()
}

func databaseConfig(appConfig config.AppConfig) database.Config {
	return database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}
}
