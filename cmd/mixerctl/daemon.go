package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/chaz8081/mixerctl/internal/config"
	"github.com/chaz8081/mixerctl/internal/control"
	"github.com/chaz8081/mixerctl/internal/monitor"
)

func runDaemon(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platform, manager, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	var telemetry *monitor.History
	if cfg.Monitor.Port != "" {
		mon, err := monitor.Open(ctx, monitorOptions(cfg), nil)
		if err != nil {
			slog.Warn("[MONITOR] telemetry disabled", "error", err)
		} else {
			defer mon.Close()
			telemetry = mon.History()
			go func() {
				if err := mon.Run(ctx); err != nil {
					slog.Warn("[MONITOR] telemetry stopped", "error", err)
				}
			}()
		}
	}

	session := control.NewSession(manager, control.Options{
		PollInterval:  cfg.PollInterval,
		DefaultName:   cfg.Device.DefaultName,
		ProfileLabels: profileLabels(cfg),
		Telemetry:     telemetry,
		Watch:         platform.Watch,
	})
	session.Start()
	defer session.Close()

	// Try once at startup; later attempts come from POST /api/connect.
	go func() {
		if err := session.Connect(ctx); err != nil {
			slog.Warn("[LINK] initial connect failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Control.Listen,
		Handler:           control.NewServer(session),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("[API] listening", "addr", cfg.Control.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("sd_notify ready failed", "error", err)
	} else if ok {
		slog.Debug("notified systemd: ready")
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errc:
		return fmt.Errorf("control server: %w", err)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	return nil
}

func monitorOptions(cfg *config.Config) monitor.Options {
	opts := monitor.DefaultOptions()
	opts.Port = cfg.Monitor.Port
	opts.Baud = cfg.Monitor.Baud
	opts.LineSkip = cfg.Monitor.LineSkip
	opts.History = cfg.Monitor.History
	return opts
}
