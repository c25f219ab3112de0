package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/transitbeacon/beacon/device/internal/api"
	"github.com/transitbeacon/beacon/device/internal/config"
	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/engine"
	"github.com/transitbeacon/beacon/device/internal/metrics"
	"github.com/transitbeacon/beacon/device/internal/output"
	"github.com/transitbeacon/beacon/device/internal/registry"
	"github.com/transitbeacon/beacon/device/internal/router"
	"github.com/transitbeacon/beacon/device/internal/security"
	"github.com/transitbeacon/beacon/device/internal/transport"
	"github.com/transitbeacon/beacon/device/internal/ws"
)

func main() {
	configPath := flag.StringP("config", "c", "beacon.yaml", "path to config file")
	logLevel := flag.String("log-level", "", "override device.log_level (debug|info|warn|error)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("beacon starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	dev := cfg.Device
	applyLevel(level, dev, *logLevel)

	slog.Info("config loaded",
		"device", dev.Name,
		"routes", len(dev.Routes),
		"broker", dev.Broker.URL,
		"output", dev.Output.Mode,
		"tick_interval", dev.TickInterval,
		"http_port", dev.Diagnostics.HTTPPort,
	)

	reg, err := registry.FromConfig(dev.Routes)
	if err != nil {
		slog.Error("failed to build route registry", "err", err)
		os.Exit(1)
	}
	for _, rt := range reg.Snapshot().Routes {
		slog.Info("registered route", "name", rt.Name, "channel", rt.Channel, "slot", rt.Slot)
	}

	sink, closeSink, err := buildSink(dev.Output)
	if err != nil {
		slog.Error("failed to open output", "mode", dev.Output.Mode, "err", err)
		os.Exit(1)
	}
	defer closeSink()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt := router.New(reg, dev.Channels.Enable, dev.Channels.Alert, dev.MaxPayload)
	rend := display.NewRenderer(reg, sink, dev.StaleAfter)

	// Hot-reload applies the log level; route and broker changes need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			applyLevel(level, updated.Device, *logLevel)
			if !config.SameRoutes(dev.Routes, updated.Device.Routes) || dev.Broker != updated.Device.Broker {
				slog.Warn("config: route or broker changes take effect after restart")
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// The transport is the only producer; the engine is the only consumer.
	inbox := make(chan router.Message, dev.InboxSize)
	channels := append([]string{dev.Channels.Enable, dev.Channels.Alert}, reg.Channels()...)
	sub := transport.New(dev.Broker, channels, inbox)
	go func() {
		if err := sub.Run(ctx); err != nil {
			slog.Error("transport stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if dev.Diagnostics.HTTPPort > 0 {
		handler := api.New(dev.Name, metrics.Sources{Registry: reg, Router: rt, Renderer: rend})

		go func() {
			cs := security.Check(ctx, dev.Broker)
			if cs == nil {
				return
			}
			handler.SetBrokerCert(cs)
			if cs.Status != security.StatusValid {
				slog.Warn("broker certificate needs attention",
					"broker", cs.Broker, "status", cs.Status, "days_left", cs.DaysLeft)
			}
		}()

		hub := ws.New(rend, dev.Diagnostics.WSInterval)
		go hub.Run(ctx)

		mux := http.NewServeMux()
		mux.Handle("/api/", handler)
		mux.Handle("/metrics", handler)
		mux.Handle("/ws/panel", hub)

		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", dev.Diagnostics.HTTPPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("diagnostics listening", "port", dev.Diagnostics.HTTPPort)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("diagnostics server stopped", "err", err)
			}
		}()
	}

	// Blocks until shutdown; indicators are off when it returns.
	engine.New(rt, rend, sink, dev.TickInterval).Run(ctx, inbox)

	slog.Info("beacon shutting down")
	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
}

// applyLevel sets the log level from config unless the flag overrides it.
func applyLevel(level *slog.LevelVar, dev config.DeviceConfig, override string) {
	if override != "" {
		dev.LogLevel = override
	}
	level.Set(dev.Level())
}

// buildSink opens the configured indicator output. The returned close
// function is always safe to call.
func buildSink(cfg config.OutputConfig) (output.Sink, func(), error) {
	switch cfg.Mode {
	case "gpio":
		g, err := output.NewGPIO(cfg.Pins)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := g.Close(); err != nil {
				slog.Error("gpio close failed", "err", err)
			}
		}
		// Mirror panel changes to the log so a bench run shows what the pins did.
		return output.Multi{g, output.NewLog(nil)}, closeFn, nil
	case "none":
		return output.Nop{}, func() {}, nil
	default:
		return output.NewLog(nil), func() {}, nil
	}
}
