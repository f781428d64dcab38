// Command trunkrx runs one trunking-system receiver core: it loads a
// JSON configuration document, starts the I/Q ingest, signaling and
// call-manager workers, and serves the configured metrics/event
// endpoints until terminated. Grounded on the teacher's main.go, which
// parses flags, loads config, wires its HTTP server and background
// workers off one context, and tears them all down on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"trunkrx/internal/config"
	"trunkrx/internal/events"
	"trunkrx/internal/health"
	"trunkrx/internal/iqsource"
	"trunkrx/internal/logging"
	"trunkrx/internal/metrics"
	"trunkrx/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "config.json", "path to the JSON configuration document")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warning, error")
	logFile := pflag.String("log-file", "", "optional file to tee log output to")
	showDevices := pflag.Bool("devices", false, "list the rtl_tcp device at the configured sdr.address and exit")
	showHelp := pflag.BoolP("help", "h", false, "print usage and exit")
	pflag.Parse()

	if *showHelp {
		pflag.Usage()
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trunkrx: %v\n", err)
		return exitCodeFor(err)
	}

	if *showDevices {
		return listDevices(cfg)
	}

	levelName := *logLevel
	if env := config.LogLevelOverride(); env != "" && !pflag.CommandLine.Changed("log-level") {
		levelName = env
	}
	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(levelName),
		LogFile: *logFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trunkrx: %v\n", err)
		return 1
	}

	reg := metrics.New()
	bus := events.NewBus(256)

	if cfg.MQTT.Enabled {
		sink, err := events.NewMQTTSink(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			logger.Error("mqtt sink unavailable", logging.Err(err))
		} else {
			bus.AddSink(sink)
			defer sink.Close()
		}
	}

	var wsSink *events.WebSocketSink
	if cfg.Server.Enabled {
		wsSink = events.NewWebSocketSink()
		bus.AddSink(wsSink)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	go bus.Run()
	defer bus.Stop()

	sampler, err := health.NewSampler(time.Minute)
	if err == nil {
		sampler.OnSample = func(s health.Sample) {
			reg.ProcessCPUPercent.Set(s.CPUPercent)
			reg.ProcessRSSBytes.Set(float64(s.RSSBytes))
		}
		go sampler.Run(ctx)
	}

	var httpServer *http.Server
	if cfg.Metrics.Enabled || cfg.Server.Enabled {
		mux := http.NewServeMux()
		if cfg.Metrics.Enabled {
			mux.Handle("/metrics", metrics.Handler())
		}
		if cfg.Server.Enabled && wsSink != nil {
			mux.Handle("/events", wsSink)
		}
		addr := cfg.Server.Addr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		if addr == "" {
			addr = ":9090"
		}
		httpServer = &http.Server{Addr: addr, Handler: mux}
		go func() {
			logger.Info("serving http", logging.String("addr", addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server failed", logging.Err(err))
			}
		}()
	}

	pl, err := pipeline.New(cfg, logger, reg, bus)
	if err != nil {
		logger.Error("building pipeline", logging.Err(err))
		return exitCodeFor(err)
	}

	runErr := pl.Run(ctx)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if runErr != nil && ctx.Err() == nil {
		logger.Error("pipeline exited", logging.Err(runErr))
		return exitCodeFor(runErr)
	}
	return 0
}

// exitCodeFor maps any startup or pipeline failure to exit code 1, per
// spec.md §7's error taxonomy (0 normal exit, 1 configuration or
// device failure).
func exitCodeFor(err error) int {
	return 1
}

// listDevices implements the `--devices` CLI surface (spec.md §6): for
// an rtl_tcp-based source there is no USB bus to walk (that control
// path is explicitly out of this module's scope, spec.md §1), so this
// dials the configured address and reports the dongle-info header the
// server sends on connect.
func listDevices(cfg *config.Config) int {
	if cfg.SDR.Transport == "mock" {
		fmt.Println("sdr.transport is \"mock\": no physical device to list")
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := iqsource.ListDevices(ctx, cfg.SDR.Address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trunkrx: --devices: %v\n", err)
		return 1
	}
	fmt.Printf("device 0: %s at %s (tuner_type=%d, tuner_gains=%d)\n",
		info.Magic, cfg.SDR.Address, info.TunerType, info.TunerGains)
	return 0
}
