package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/loqalabs/loqa-transcribe/internal/audio"
	"github.com/loqalabs/loqa-transcribe/internal/bus"
	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/driver"
	"github.com/loqalabs/loqa-transcribe/internal/eventstore"
	"github.com/loqalabs/loqa-transcribe/internal/stt"
	"github.com/loqalabs/loqa-transcribe/internal/telemetry"
)

var version = "0.1.0-dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := cli.NewFlagSet("loqa-transcribe", cli.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "Path to configuration file")
	envFile := flags.StringP("env", "e", ".env", "Env file path")
	showVersion := flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: loqa-transcribe [--config file.yaml] [--env .env] FILE...")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	paths := flags.Args()
	if len(paths) == 0 {
		flags.Usage()
		return exitUsage
	}

	bootLog := telemetry.NewLogger(config.Default().Telemetry, stderr)
	if err := config.LoadDotEnv(*envFile); err != nil {
		bootLog.Error("failed to load env file", slog.String("path", *envFile), slog.String("error", err.Error()))
		return exitUsage
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error("failed to load config", slog.String("error", err.Error()))
		return exitUsage
	}
	logger := telemetry.NewLogger(cfg.Telemetry, stderr)

	tel, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to setup telemetry", slog.String("error", err.Error()))
		return exitFailed
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	engine, err := stt.NewEngine(cfg.Engine)
	if err != nil {
		logger.Error("failed to create engine", slog.String("mode", cfg.Engine.Mode), slog.String("error", err.Error()))
		return exitFailed
	}
	handle := stt.NewHandle(engine, stt.HandleConfig{
		LogLevel:           cfg.Engine.LogLevel,
		ConcurrentSessions: cfg.Engine.ConcurrentSessions,
	}, logger)
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Error("recognizer teardown error", slog.String("error", err.Error()))
		}
	}()

	reporter, err := driver.NewReporter(cfg.Output.Format, stdout, stderr)
	if err != nil {
		logger.Error("invalid output format", slog.String("error", err.Error()))
		return exitUsage
	}

	opts := driver.Options{
		Handle:   handle,
		Opener:   audio.NewOpener(nil, cfg.Audio.ChunkFrames),
		Config:   cfg,
		Reporter: reporter,
		Logger:   logger,
	}

	if cfg.EventStore.RetentionMode != "ephemeral" {
		store, err := eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "eventstore")))
		if err != nil {
			logger.Error("failed to open event store", slog.String("error", err.Error()))
			return exitFailed
		}
		defer store.Close()
		opts.Recorder = store
	}

	if cfg.Bus.Enabled {
		client, err := bus.Connect(ctx, cfg.Bus, logger.With(slog.String("component", "bus")))
		if err != nil {
			logger.Error("failed to connect to bus", slog.String("error", err.Error()))
			return exitFailed
		}
		defer client.Close()
		opts.Publisher = client
	}

	d, err := driver.New(opts)
	if err != nil {
		logger.Error("failed to create driver", slog.String("error", err.Error()))
		return exitFailed
	}

	summary := d.Run(ctx, paths)
	if summary.Failed() > 0 {
		return exitFailed
	}
	return exitOK
}
