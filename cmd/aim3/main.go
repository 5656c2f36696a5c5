package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/aim3/internal/config"
	logpkg "github.com/kailas-cloud/aim3/internal/logger"
	"github.com/kailas-cloud/aim3/internal/tracing"
	"github.com/kailas-cloud/aim3/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	env        string
	configPath string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "aim3",
		Short:         "Context-weighted serendipity ranking with a self-tuning strategy",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "Environment (local, dev, prod); selects config/<env>.yaml")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Explicit config file path (overrides --env lookup)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the evolution loop",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), g)
			},
		},
		&cobra.Command{
			Use:   "evolve",
			Short: "Run one evolution cycle and print the new strategy",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runEvolve(cmd.Context(), g, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "strategy",
			Short: "Print the persisted strategy",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runStrategy(cmd.Context(), g, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}

func loadConfig(g globalFlags) (config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(g.env)
}

func setup(g globalFlags) (config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(g.env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(ctx context.Context, g globalFlags) error {
	cfg, logger, err := setup(g)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting aim3 API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", g.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("strategy_driver", cfg.Strategy.Driver),
		zap.String("outcomes_driver", cfg.Outcomes.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "aim3",
		ServiceVersion: version.Version,
		Environment:    g.env,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	registerMetrics()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      a.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.loop != nil {
		grp.Go(func() error {
			return a.loop.Run(gctx)
		})
	} else {
		logger.Info("Evolution loop disabled")
	}
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func runEvolve(ctx context.Context, g globalFlags, out io.Writer) error {
	cfg, logger, err := setup(g)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	registerMetrics()

	// A one-shot cycle runs even when the background loop is disabled.
	cfg.Evolution.Enabled = true
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.loop.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("evolution cycle: %w", err)
	}
	logger.Info("Evolution cycle complete",
		zap.String("transition", string(c.Transition)),
		zap.Float64("reward", c.Reward),
		zap.Int("outcomes", c.Outcomes),
	)
	return printJSON(out, c.State)
}

func runStrategy(ctx context.Context, g globalFlags, out io.Writer) error {
	cfg, logger, err := setup(g)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	registerMetrics()

	st, closeFn, err := openStrategy(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	state, err := st.Load(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, state)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
