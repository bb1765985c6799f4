package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/authuser/cmd/authapi/cmd/cmdutil"
	"github.com/terraconstructs/authuser/internal/auth"
	authmiddleware "github.com/terraconstructs/authuser/internal/middleware"
	"github.com/terraconstructs/authuser/internal/server"
	"github.com/terraconstructs/authuser/internal/services/iam"
	"github.com/terraconstructs/authuser/internal/telemetry"
)

var sweepInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authapi server",
	Long:  `Starts the HTTP server with the principal, role, login and logout endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Reject a bad pipeline before touching storage.
		defaultChain, err := authmiddleware.ParseSelectors(cfg.Auth.Chain)
		if err != nil {
			return fmt.Errorf("invalid auth.chain: %w", err)
		}
		var createChain []authmiddleware.Selector
		if cfg.Auth.CreateChain != "" {
			createChain, err = authmiddleware.ParseSelectors(cfg.Auth.CreateChain)
			if err != nil {
				return fmt.Errorf("invalid auth.create_chain: %w", err)
			}
		}

		bundle, err := cmdutil.NewIAMServiceBundle(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer bundle.Close()

		logger.Info("connected to database", "session_store", cfg.Session.Store)

		enforcer, err := auth.InitEnforcer(auth.DefaultPolicies)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		metrics := telemetry.NewServerMetrics()

		pipeline := authmiddleware.NewBuilder(
			authmiddleware.AuthnDependencies{
				Principals: bundle.Repos.Principals,
				Tokens:     bundle.Repos.Tokens,
				Roles:      bundle.Repos.PrincipalRoles,
				Sessions:   bundle.Sessions,
				Hasher:     bundle.Hasher,
				Enforcer:   enforcer,
				Metrics:    metrics,
				Logger:     logger,
			},
			authmiddleware.PipelineConfig{
				DefaultChain:      defaultChain,
				LoginPath:         cfg.Auth.LoginPath,
				SessionCookieName: cfg.Session.CookieName,
				SessionTTL:        cfg.Session.TTL,
				StorageTimeout:    cfg.StorageTimeout,
			},
		)
		if _, err := pipeline.Build(); err != nil {
			return fmt.Errorf("invalid auth.chain: %w", err)
		}
		if len(createChain) > 0 {
			if _, err := pipeline.Build(createChain...); err != nil {
				return fmt.Errorf("invalid auth.create_chain: %w", err)
			}
		}

		limiter := authmiddleware.NewLoginRateLimiter(float64(cfg.LoginRate.RPS), cfg.LoginRate.Burst, metrics)
		defer limiter.Close()

		// Background expiry of tokens and bun-backed sessions.
		sweepCtx, cancelSweep := context.WithCancel(cmd.Context())
		defer cancelSweep()
		go iam.RunSweeper(sweepCtx, bundle.Service, sweepInterval, logger)

		corsOpts := server.DefaultCORSOptions()
		corsOpts.AllowedOrigins = cfg.AllowedOrigins

		r := server.NewRouter(server.RouterOptions{
			IAMService:     bundle.Service,
			Pipeline:       pipeline,
			CreateChain:    createChain,
			RBACEnabled:    cfg.RBAC.Enabled,
			LoginLimiter:   limiter,
			LoginRedirect:  cfg.Auth.LoginRedirect,
			LogoutRedirect: cfg.Auth.LogoutRedirect,
			Metrics:        metrics,
			Logger:         logger,
			CORSOptions:    &corsOpts,
		})

		// Create HTTP server
		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr, "chain", cfg.Auth.Chain, "rbac", cfg.RBAC.Enabled)
			serverErrors <- srv.ListenAndServe()
		}()

		// Wait for interrupt signal or sweep signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP triggers an immediate expiry sweep
		sweepNow := make(chan os.Signal, 1)
		signal.Notify(sweepNow, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case sig := <-sweepNow:
				logger.Info("received signal, sweeping expired credentials", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				iam.Sweep(ctx, bundle.Service, logger)
				cancel()

			case sig := <-shutdown:
				logger.Info("shutting down gracefully", "signal", sig.String())

				// Graceful shutdown with timeout
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				logger.Info("server stopped")
				return nil
			}
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", iam.DefaultSweepInterval, "Interval between expired token and session sweeps")
	rootCmd.AddCommand(serveCmd)
}
