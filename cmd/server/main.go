package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/history"
	"github.com/eos/lss/internal/logging"
	"github.com/eos/lss/internal/metrics"
	"github.com/eos/lss/internal/ratelimit"
	"github.com/eos/lss/internal/server"
	"github.com/eos/lss/internal/store"
)

type cliParams struct {
	configPath  string
	port        string
	logLevel    string
	historyPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var params cliParams
	cmd := &cobra.Command{
		Use:           "lss-server",
		Short:         "Run the Lee Soon Sin game server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(params)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&params.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&params.port, "port", "", "listen address, overrides config and SERVER_PORT")
	cmd.Flags().StringVar(&params.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&params.historyPath, "history", "", "bbolt file for the Lee Soon Sin journal")
	return cmd
}

// resolveConfig layers flags over the file and environment.
func resolveConfig(params cliParams) (server.Config, error) {
	cfg, err := server.LoadConfig(params.configPath)
	if err != nil {
		return server.Config{}, err
	}
	if params.port != "" {
		cfg.Port = params.port
	}
	if params.logLevel != "" {
		if _, err := logging.ParseLevel(params.logLevel); err != nil {
			return server.Config{}, err
		}
		cfg.Log.Level = params.logLevel
	}
	if params.historyPath != "" {
		cfg.History.Path = params.historyPath
	}
	return cfg.Sanitize(), nil
}

func run(ctx context.Context, cfg server.Config) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting LSS server",
		zap.String("port", cfg.Port),
		zap.Strings("allowedOrigins", cfg.AllowedOrigins),
		zap.Duration("gameDuration", cfg.Game.Duration))

	journal, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Warn("History close failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	sessions := store.New(store.Options{TTL: cfg.Game.SessionTTL})
	defer sessions.Close()

	svc := game.NewService(sessions, nil, game.Options{
		GameDuration: cfg.Game.Duration,
		Logger:       log.Named("game"),
		History:      journal,
		Metrics:      m,
	})
	defer svc.Close()
	sessions.OnEvict(svc.SessionEvicted)

	limiter := ratelimit.New(cfg.ActionLimits.Rules, cfg.ActionLimits.Default)

	srv := server.New(cfg, server.Deps{
		Game:    svc,
		Limiter: limiter,
		Metrics: m,
		Logger:  log,
	})
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Port, srv.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})
	g.Go(func() error {
		return limiter.Run(gctx, cfg.ActionLimits.CleanupInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		httpErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
		if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.Warn("Hub shutdown incomplete", zap.Error(err))
		}
		return httpErr
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("LSS server stopped")
	return nil
}
