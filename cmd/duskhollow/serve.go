// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/duskhollow/duskhollow/internal/auth"
	authpg "github.com/duskhollow/duskhollow/internal/auth/postgres"
	"github.com/duskhollow/duskhollow/internal/channel"
	"github.com/duskhollow/duskhollow/internal/config"
	"github.com/duskhollow/duskhollow/internal/gate"
	"github.com/duskhollow/duskhollow/internal/logging"
	"github.com/duskhollow/duskhollow/internal/mail"
	"github.com/duskhollow/duskhollow/internal/observability"
	"github.com/duskhollow/duskhollow/internal/session"
	"github.com/duskhollow/duskhollow/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth gate",
		Long: `Start the auth gate: listen for client connections, perform the
key-exchange handshake, and serve authentication requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flag names match config keys so file settings and flags layer
	// through the same loader.
	cmd.Flags().String("gate.addr", config.DefaultGateAddr, "gate listen address")
	cmd.Flags().String("gate.metrics_addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("log.format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().String("smtp.addr", "", "SMTP server address (empty = log outbound mail)")
	cmd.Flags().String("smtp.from", "", "From address for outbound mail")

	return cmd
}

// runServe wires the gate together and blocks until shutdown.
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("duskhollow", version, cfg.Log.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected")

	var mailer auth.Mailer
	if cfg.SMTP.Addr != "" {
		mailer, err = mail.NewSMTPDispatcher(cfg.SMTP.Addr, cfg.SMTP.From,
			cfg.SMTP.Username, cfg.SMTP.Password, logger)
		if err != nil {
			return err
		}
	} else {
		mailer = mail.NewLogDispatcher(logger)
	}

	keys := channel.NewTable()
	sessions := session.NewRegistry()

	svc, err := auth.NewServiceWithLogger(
		authpg.NewAccountRepository(pool),
		authpg.NewCodeRepository(pool),
		auth.NewArgon2idHasher(),
		keys,
		sessions,
		mailer,
		cfg.Email.Policy(),
		logger,
	)
	if err != nil {
		return err
	}

	handler, err := gate.NewAuthHandler(svc, keys, logger)
	if err != nil {
		return err
	}
	router := gate.NewRouter(handler.Routes(), logger)

	// Disconnects invalidate the channel key and any session entry.
	teardown := func(conn gate.Conn) {
		keys.Drop(conn.ID())
		sessions.End(conn.ID())
	}

	server, err := gate.NewServer(cfg.Gate.Addr, router, logger, teardown)
	if err != nil {
		return err
	}

	var obsServer *observability.Server
	if cfg.Gate.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Gate.MetricsAddr, func() bool {
			if server.Addr() == "" {
				return false
			}
			pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go func() {
			if serveErr := <-obsErrCh; serveErr != nil {
				logger.Error("observability server failed", "error", serveErr)
			}
		}()
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- server.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErrCh:
		if err != nil {
			err = oops.With("operation", "run gate server").Wrap(err)
		}
	}

	if obsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}

	logger.Info("shutdown complete")
	return err
}
