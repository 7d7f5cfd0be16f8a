package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rishta/api"
	"rishta/config"
	"rishta/db"
	"rishta/identity"
	"rishta/lifecycle"
	"rishta/metrics"
	"rishta/notify"
	"rishta/profiles"
	"rishta/server"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "rishta",
		Short:        "Matchmaking backend: profiles, connections and one-to-one chat",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the line protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	ctl := &cobra.Command{
		Use:   "ctl",
		Short: "Talk to a running server over its control socket",
	}
	ctl.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print connection and storage counters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runControl(cmd, configPath, "stats")
			},
		},
		&cobra.Command{
			Use:   "shutdown [reason] [completion-time]",
			Short: "Disconnect clients and stop the server",
			Args:  cobra.MaximumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runControl(cmd, configPath, strings.Join(append([]string{"shutdown"}, args...), "|"))
			},
		},
	)

	root.AddCommand(serve, ctl)
	return root
}

func runControl(cmd *cobra.Command, configPath, line string) error {
	cfg := config.Default()
	if configPath != "" || os.Getenv("RISHTA_CONFIG") != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if v := os.Getenv("RISHTA_CONTROL_SOCKET"); v != "" {
		cfg.ControlSocket = v
	}
	reply, err := sendControl(cfg.ControlSocket, line)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	hub := notify.NewHub()
	metrics.RegisterSubscriptions(hub.Count)

	svc := lifecycle.NewService(database, hub, lifecycle.Options{
		SendRetries:      cfg.SendRetries,
		SendRetryBackoff: cfg.SendRetryBackoff,
		Logger:           logger,
	})
	ident := identity.NewService(database, cfg.JWTSecret, cfg.TokenTTL)
	prof := profiles.NewService(database)

	tcp := server.New(svc, ident, &server.ServerConfig{
		Port:         cfg.Port,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(svc, ident, prof, api.Options{
		SendRate:  cfg.SendRate,
		SendBurst: cfg.SendBurst,
		Logger:    logger,
		Storage:   database,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctl := &control{
		path:     cfg.ControlSocket,
		tcp:      tcp,
		counters: database,
		logger:   logger.With("component", "control"),
		stop:     cancel,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcp.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("http server started", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ctl.serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if !ctl.shutdownRequested() {
			tcp.Shutdown("maintenance", time.Time{})
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
