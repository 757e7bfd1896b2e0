// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/httpapi"
	"github.com/holomush/authcore/internal/logging"
	"github.com/holomush/authcore/internal/observability"
)

// Timeouts for serve.
const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication API",
		Long: `Start the JSON API for login, logout and password reset, plus the
metrics and health endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(deps.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, deps)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServe wires every component from cfg and blocks until ctx is done or
// a server fails.
func runServe(ctx context.Context, cfg *config.Config, deps *Deps) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup("authcore", version, cfg.Log.Format, cfg.Log.Level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting authcore",
		"listen", cfg.Listen,
		"store", cfg.Store.Backend,
		"ratelimit", cfg.RateLimit.Backend,
		"notify", cfg.Notify.Backend)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storage, err := deps.StorageOpener(ctx, cfg, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "open storage").Wrap(err)
	}
	defer storage.Close()

	var ready atomic.Bool
	registry := prometheus.NewRegistry()
	auth.RegisterMetrics(registry)

	limiter, err := buildLimiter(ctx, cfg, deps, registry, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build rate limiter").Wrap(err)
	}
	defer limiter.close()

	svc, closeSvc, err := buildService(ctx, cfg, deps, storage, limiter.limiter, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build service").Wrap(err)
	}
	defer closeSvc()

	janitor, err := auth.NewJanitor(storage.Challenges, storage.Sessions, nil, logger, cfg.Janitor.Interval)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "start janitor").Wrap(err)
	}
	defer janitor.Close()

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, observability.Options{
			Registry: registry,
			Gate:     ready.Load,
			Probes: []observability.Probe{
				{Name: "storage", Check: storage.Ping},
				{Name: "ratelimit", Check: limiter.ping},
			},
			ProbeTimeout: readinessTimeout,
			Logger:       logger,
		})
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(registry)
	}

	api := httpapi.NewServer(cfg.Listen, httpapi.NewHandler(svc, logger, metrics), logger)
	apiErrCh, err := api.Start()
	if err != nil {
		stopServer(obsServer, logger)
		return oops.Code("SERVE_FAILED").With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	ready.Store(true)
	logger.Info("authcore ready", "api_addr", api.Addr())
	deps.Ready(api.Addr())

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopServer(obsServer, logger)

	logger.Info("shutdown complete")
	return nil
}

// buildService assembles the auth service. The returned func drains the
// delivery queue.
func buildService(ctx context.Context, cfg *config.Config, deps *Deps, storage *Storage, limiter auth.RateLimiter, logger *slog.Logger) (*auth.Service, func(), error) {
	credentials, err := newCredentialStore(storage.Accounts)
	if err != nil {
		return nil, nil, err
	}

	otp, err := auth.NewOTPManager(storage.Challenges, limiter, auth.OTPConfig{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Pepper:      []byte(cfg.Secrets.OTPPepper),
	})
	if err != nil {
		return nil, nil, err
	}

	sessions, err := auth.NewSessionIssuer(storage.Sessions, cfg.Session.TTL, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := buildNotifier(ctx, cfg, deps.CodeOutput, logger)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := auth.NewDispatcher(notifier, logger, auth.DeliveryConfig{
		Timeout: cfg.Notify.Timeout,
		Workers: cfg.Notify.Workers,
		Queue:   cfg.Notify.Queue,
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Credentials: credentials,
		OTP:         otp,
		Limiter:     limiter,
		Sessions:    sessions,
		Delivery:    dispatcher,
		Logger:      logger,
	}, auth.ServiceConfig{
		ResetMinResponse: cfg.Reset.MinResponse,
		SessionOnReset:   cfg.Reset.SessionOnReset,
	})
	if err != nil {
		dispatcher.Close()
		return nil, nil, err
	}
	return svc, dispatcher.Close, nil
}

func stopServer(s *observability.Server, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors watches a server error channel and cancels the context
// on error. It exits when the context is cancelled or the channel closes.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
