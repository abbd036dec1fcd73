// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/term"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/lib/verification"
	"github.com/bureau-foundation/gatekeeper/lib/version"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("gatekeeper", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $GATEKEEPER_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("gatekeeper")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := newLogger(level)
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	directory, err := cfg.Directory()
	if err != nil {
		return err
	}
	userID, err := ref.ParseUserID(cfg.Matrix.UserID)
	if err != nil {
		return fmt.Errorf("matrix.user_id: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := newMeterProvider(ctx, cfg)
	if err != nil {
		return err
	}
	var meter metric.Meter
	if provider != nil {
		meter = provider.Meter(meterName)
		defer func() {
			// ctx is already cancelled here; the final push gets its own deadline.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("flushing metrics failed", "error", err)
			}
		}()
		logger.Info("exporting metrics", "endpoint", cfg.Metrics.OTLPEndpoint, "interval", cfg.Metrics.Interval)
	}

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     cfg.Matrix.HomeserverURL,
		Logger:            logger,
		RequestsPerSecond: cfg.Matrix.RequestsPerSecond,
		Burst:             cfg.Matrix.Burst,
	})
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}
	session, err := client.SessionFromToken(userID, cfg.Secrets.AccessToken)
	if err != nil {
		return err
	}
	defer session.CloseIdleConnections()

	// Validate the token before doing anything that could half-apply.
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating matrix session: %w", err)
	}
	if whoami != userID {
		return fmt.Errorf("access token belongs to %s, config says %s", whoami, userID)
	}
	logger.Info("matrix session valid", "user_id", userID)

	service, err := newGatekeeper(gatekeeperConfig{
		Directory: directory,
		Backend:   backend,
		Platform:  messaging.NewMatrixPlatform(session, logger),
		Policy:    quorumPolicy(cfg.Quorum, directory),
		Self:      userID,
		Clock:     clock.Real(),
		Meter:     meter,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	stream := messaging.NewEventStream(session, messaging.StreamConfig{
		Timeout:      cfg.Matrix.SyncTimeout,
		AcceptInvite: directory.Manages,
		Logger:       logger,
	})
	initial, err := stream.Initial(ctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	service.start(ctx, initial)

	logger.Info("gatekeeper running",
		"version", version.Info(),
		"guilds", len(directory.Spaces()),
		"store", cfg.Store.Backend,
	)
	if err := stream.Run(ctx, service.handle); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// newLogger writes JSON to stderr, or text when stderr is a terminal.
func newLogger(level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		backend, err := store.OpenSQLite(cfg.Store.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return backend, nil
	case config.StoreRedis:
		backend, err := store.NewRedisBackend(ctx, store.RedisConfig{
			Addr:      cfg.Store.Redis.Address,
			Password:  cfg.Secrets.RedisPassword,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis store: %w", err)
		}
		return backend, nil
	default:
		logger.Warn("using the in-memory store; documents are lost on restart")
		return store.NewMemoryBackend(), nil
	}
}

func quorumPolicy(quorum config.QuorumConfig, directory *config.Directory) verification.Policy {
	if quorum.Policy == config.PolicyProportional {
		return verification.ProportionalPolicy{
			AcceptRatio: quorum.AcceptRatio,
			RejectRatio: quorum.RejectRatio,
			Voters:      directory.Voters,
		}
	}
	return verification.StaticPolicy{Accept: quorum.Accept, Reject: quorum.Reject}
}
