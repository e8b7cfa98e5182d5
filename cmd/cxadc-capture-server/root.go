package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cxadc-tools/capture-server/internal/api"
	"github.com/cxadc-tools/capture-server/internal/capture"
	"github.com/cxadc-tools/capture-server/internal/config"
	"github.com/cxadc-tools/capture-server/internal/history"
	"github.com/cxadc-tools/capture-server/internal/httpd"
	"github.com/cxadc-tools/capture-server/internal/logging"
)

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "cxadc-capture-server <port>|unix:<socket>",
		Short: "Stream cxadc and baseband captures over HTTP",
		Long: `cxadc-capture-server buffers raw samples from a cxadc capture card and an
optional baseband device, and streams them to HTTP clients. A capture is
controlled with GET /start and GET /stop and read from GET /cxadc and
GET /baseband.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runServer(cmd.Context(), v, args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
			return err
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return root
}

// runServer loads the configuration, binds the endpoint and serves until
// SIGINT or SIGTERM.
func runServer(parent context.Context, v *viper.Viper, listenArg string) error {
	endpoint, err := httpd.ParseEndpoint(listenArg)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting cxadc-capture-server", "version", Version, "endpoint", endpoint.String())
	return serve(ctx, cfg, endpoint, logger.Logger)
}

// serve wires the capture controller, journal and routes to a listener and
// blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, endpoint httpd.Endpoint, logger *slog.Logger) error {
	ctrl := capture.NewController(capture.Options{
		CxadcDevice:    cfg.Capture.CxadcDevice,
		BasebandDevice: cfg.Capture.BasebandDevice,
		CxadcBuffer:    cfg.Capture.CxadcBuffer,
		BasebandBuffer: cfg.Capture.BasebandBuffer,
		ChunkSize:      cfg.Capture.ChunkSize,
		SyntheticRate:  cfg.Capture.SyntheticRate,
		StopTimeout:    cfg.Capture.StopTimeout,
	}, logger)

	var journal api.HistoryPort
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		ctrl.SetJournal(store)
		journal = store
	}
	defer ctrl.Close()

	router, err := api.NewServer(ctrl, journal, api.Options{
		Version:      Version,
		PollInterval: cfg.Server.PollInterval,
		ChunkSize:    cfg.Capture.ChunkSize,
		HistoryLimit: cfg.History.Limit,
	}, logger).Router()
	if err != nil {
		return err
	}

	policy, err := httpd.ParsePolicy(cfg.Server.Policy)
	if err != nil {
		return err
	}
	srv, err := httpd.NewServer(router, httpd.Options{
		Policy:       policy,
		PoolSize:     cfg.Server.PoolSize,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AllowedCIDRs: cfg.Server.AllowedCIDRs,
	}, logger)
	if err != nil {
		return err
	}

	ln, err := httpd.Listen(endpoint)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}
