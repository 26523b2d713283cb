// Command registry-server starts the package registry HTTP API and its
// gRPC operations listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/pkg-registry/internal/limiter"
	"github.com/and161185/pkg-registry/internal/mail"
	"github.com/and161185/pkg-registry/internal/migrate"
	"github.com/and161185/pkg-registry/internal/repository/postgres"
	grpcserver "github.com/and161185/pkg-registry/internal/server/grpc"
	httpserver "github.com/and161185/pkg-registry/internal/server/http"
	"github.com/and161185/pkg-registry/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:          "registry-server",
		Short:        "Serve the package registry API.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")
	f.String("http-address", ":8080", "HTTP API listen address")
	f.String("ops-address", ":9090", "gRPC health listen address")
	f.Bool("dev", false, "enable gRPC server reflection")
	f.String("dsn", "", "PostgreSQL DSN")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	for key, flag := range map[string]string{
		"http.address":   "http-address",
		"ops.address":    "ops-address",
		"ops.reflection": "dev",
		"db.dsn":         "dsn",
		"log.level":      "log-level",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cfg.Build()
}

// run migrates the schema, wires the dependencies and serves until ctx is done.
func run(ctx context.Context, cfg *Config, log *zap.Logger) error {
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTP.Address),
		zap.String("ops", cfg.Ops.Address),
	)

	schema, err := migrate.Up(ctx, cfg.DB.DSN, log)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	log.Info("schema ready", zap.Int64("version", schema))

	db, err := postgres.New(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	namespaces := postgres.NewNamespaceRepo(db)
	packages := postgres.NewPackageRepo(db)
	tokens := postgres.NewTokenRepo(db)
	blobs := postgres.NewBlobRepo(db)

	lim := limiter.NewPG(db.Pool, cfg.Limiter)
	sender := mail.New(cfg.SMTP, log)

	authSvc := service.NewAuthService(users, lim, sender, cfg.Auth, log)
	tokenSvc := service.NewTokenService(users, namespaces, packages, tokens)
	api := httpserver.New(httpserver.Services{
		Auth:       authSvc,
		Packages:   service.NewPackageService(users, namespaces, packages, blobs, tokenSvc),
		Namespaces: service.NewNamespaceService(users, namespaces, packages),
		Tokens:     tokenSvc,
		Users:      service.NewUserService(users, namespaces, packages, authSvc),
	}, log, cfg.Upload.MaxBytes)

	ops := grpcserver.NewOps(log, cfg.Ops.Reflection)
	lis, err := net.Listen("tcp", cfg.Ops.Address)
	if err != nil {
		return fmt.Errorf("listen ops: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("ops listening", zap.String("addr", cfg.Ops.Address))
		errCh <- ops.Serve(lis)
	}()
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Address))
		errCh <- api.Listen(cfg.HTTP.Address)
	}()

	probeEvery := cfg.Ops.ProbeEvery
	if probeEvery <= 0 {
		probeEvery = 10 * time.Second
	}
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go ops.Watch(watchCtx, db, probeEvery)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("server error", zap.Error(serveErr))
	}

	cancelWatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		ops.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("ops shutdown timed out")
	}

	log.Info("shutdown complete")
	if serveErr != nil && !errors.Is(serveErr, net.ErrClosed) {
		return serveErr
	}
	return nil
}
