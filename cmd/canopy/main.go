package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canopy/internal/config"
	"canopy/internal/ics"
	appLog "canopy/internal/log"
	"canopy/internal/refresh"
	"canopy/internal/store"
	"canopy/internal/web"
)

const shutdownTimeout = 10 * time.Second

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	setupLogging(conf, flags.debug)
	defer appLog.Close()

	appLog.Info("canopy starting", "version", "0.1.0")

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"hour_height", conf.Layout.HourHeight,
		"slot_minutes", conf.Layout.SlotMinutes,
		"spanning_events", conf.Layout.IncludeSpanningEvents,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"dump", flags.dump,
	)

	snap := store.New()
	refresher := refresh.New(conf, loc, ics.NewFetcher(conf.CacheDir), snap)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once || flags.dump {
		res, err := refresher.RunOnce(ctx)
		if err != nil {
			appLog.Error("refresh failed", err)
			os.Exit(1)
		}
		if flags.dump {
			_, _ = os.Stdout.WriteString(ics.Export(snap.All(), res.Completed))
		}
		return
	}

	if err := refresher.Start(ctx, conf.RefreshCron); err != nil {
		appLog.Error("failed to schedule refresh", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}

	srv := web.NewServer(conf, loc, snap, web.WithRefresher(refresher))
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("canopy exiting")
}

func setupLogging(conf *config.Config, debug bool) {
	level := appLog.ParseLevel(conf.Log.Level)
	if debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	if conf.Log.File != "" {
		appLog.SetFile(appLog.FileOptions{
			Path:       conf.Log.File,
			MaxSizeMB:  conf.Log.MaxSizeMB,
			MaxBackups: conf.Log.MaxBackups,
			MaxAgeDays: conf.Log.MaxAgeDays,
		})
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/canopy/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle and exit")
	flag.BoolVar(&cfg.dump, "dump", false, "Run one refresh cycle and write the merged calendar as ICS to stdout")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
