package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fetchedge/fetchedge"
	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/logging"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <js_path>",
		Short: "Serve HTTP requests through a fetch-event worker pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "listen port")
	flags.String("ip", "", "listen address (default: all interfaces)")
	flags.Int("max-js-threads", fetchedge.DefaultMaxWorkers, "maximum number of JS worker threads")
	flags.String("script", "script", "source mode: \"script\" or \"module\"")
	flags.String("mode", "default", "request-handler mode (only \"default\" is implemented)")
	flags.Bool("single-threaded", false, "run a single worker instead of a pool")
	flags.Int("shutdown-timeout", 60, "seconds to wait for workers to drain on shutdown (0 = unbounded)")
	flags.String("fs-root", "", "sandbox root directory for the fs standard module (empty disables it)")
	flags.String("log-level", "info", "operational log level: debug, info, warn, error")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.SetEnvPrefix("FETCHEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	// PORT/LISTEN_IP are named directly by spec.md §6, outside the
	// FETCHEDGE_ prefix the other flags bind under.
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("ip", "LISTEN_IP")

	logging.SetLevelFromString(v.GetString("log-level"))

	if v.GetString("mode") != "default" {
		return fmt.Errorf("unsupported handler mode %q: only \"default\" is implemented", v.GetString("mode"))
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading script %s: %w", args[0], err)
	}

	mode := core.ModeScript
	if v.GetString("script") == "module" {
		mode = core.ModeModule
	}

	maxWorkers := v.GetInt("max-js-threads")
	if v.GetBool("single-threaded") {
		maxWorkers = 1
	}

	dispatcher, err := fetchedge.NewDispatcher(
		fetchedge.UserCode{Source: string(source), Mode: mode},
		fetchedge.DispatcherConfig{
			MaxWorkers:      maxWorkers,
			Host:            core.HostConfig{FSRoot: v.GetString("fs-root")},
			ShutdownTimeout: time.Duration(v.GetInt("shutdown-timeout")) * time.Second,
		},
		nil,
	)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(v.GetString("ip"), fmt.Sprintf("%d", v.GetInt("port")))
	httpServer := &http.Server{Addr: addr, Handler: &fetchedge.Server{Dispatcher: dispatcher}}

	errCh := make(chan error, 1)
	go func() {
		logging.Op().Info("fetchedge serving", "addr", addr, "backend", fetchedge.BackendName, "max_js_threads", maxWorkers)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Op().Info("shutdown signal received", "signal", sig.String())
		shutdownTimeout := time.Duration(v.GetInt("shutdown-timeout")) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), max(shutdownTimeout, 5*time.Second))
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Op().Warn("http shutdown error", "error", err)
		}
		dispatcher.Shutdown(shutdownTimeout)
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
