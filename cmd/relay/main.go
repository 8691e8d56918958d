package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/remindly/callcore/pkg/config"
	"github.com/remindly/callcore/pkg/profiling"
	"github.com/remindly/callcore/pkg/relay"
	"github.com/remindly/callcore/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	// Define functions that are called before exiting.
	// This is useful to stop the profiler if it's enabled.
	deferredFunctions := []func(){}
	if *cpuProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitCPUProfiling(*cpuProfile))
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitMemoryProfiling(*memProfile))
	}

	// Handle signal interruptions.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		for _, function := range deferredFunctions {
			function()
		}
		os.Exit(0)
	}()

	// Load the config file from the environment variable or path.
	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	setLogLevel(cfg.LogLevel)

	if cfg.Telemetry.OTLP.Host != "" {
		tracerProvider, err := telemetry.SetupTelemetry(cfg.Telemetry)
		if err != nil {
			logrus.WithError(err).Fatal("could not set up telemetry")
		}
		defer tracerProvider.Shutdown(context.Background()) //nolint:errcheck
	}

	if cfg.Relay.Address == "" {
		cfg.Relay.Address = ":8085"
	}
	if cfg.Relay.JWTSecret == "" {
		logrus.Fatal("relay.jwtSecret must be configured")
	}

	logger := logrus.NewEntry(logrus.StandardLogger())

	hub := relay.NewHub(logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/api/signaling/", relay.NewHandler(hub, cfg.Relay, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logrus.WithField("address", cfg.Relay.Address).Info("relay listening")
	if err := http.ListenAndServe(cfg.Relay.Address, mux); err != nil {
		logrus.WithError(err).Fatal("relay server failed")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
