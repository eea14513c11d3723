// Package main implements the versiad entry point. versiad is the
// federation core daemon: it accepts inbound federation HTTP, drains the
// durable inbox and delivery queues, and exposes health and metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/delivery"
	"github.com/versia-works/federation/gateway"
	"github.com/versia-works/federation/inbox"
	"github.com/versia-works/federation/metric"
	"github.com/versia-works/federation/natsclient"
	"github.com/versia-works/federation/queue"
	"github.com/versia-works/federation/signature"
	"github.com/versia-works/federation/store"
	"github.com/versia-works/federation/trust"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "versiad"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cli.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	level := cfg.Logging.Level
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	format := cfg.Logging.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	logger.Info("starting versiad",
		"version", Version,
		"domain", cfg.Federation.Domain,
		"config_path", cli.ConfigPath)

	metrics := metric.NewMetrics()
	registry, err := metric.NewRegistry(metrics)
	if err != nil {
		return fmt.Errorf("metrics registry: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := natsclient.Connect(ctx, cfg.NATS, logger, metrics)
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	defer broker.Close()

	if err := queue.SetupStreams(ctx, broker, cfg); err != nil {
		return fmt.Errorf("stream setup: %w", err)
	}

	priv, err := cfg.SigningKey()
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	instanceSigner := signature.NewInstanceSigner(priv, cfg.Federation.Domain)

	mem := store.NewMemory(logger, instanceSigner)
	producer, err := queue.NewProducer(broker, logger)
	if err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	resolver := trust.NewResolver(cfg.Bridge, cfg.Federation.Blocked)

	inboxProc, err := inbox.NewProcessor(mem.Stores(), resolver, producer, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("inbox processor: %w", err)
	}
	deliveryProc, err := delivery.NewProcessor(mem, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("delivery processor: %w", err)
	}

	worker, err := queue.NewWorker(broker, cfg.Queue, logger, metrics)
	if err != nil {
		return fmt.Errorf("queue worker: %w", err)
	}
	if err := worker.StartInbox(ctx, inboxProc); err != nil {
		return fmt.Errorf("inbox worker: %w", err)
	}
	if err := worker.StartDelivery(ctx, deliveryProc.Send); err != nil {
		return fmt.Errorf("delivery worker: %w", err)
	}

	gw, err := gateway.New(producer, cfg.HTTP, logger, broker.Healthy)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	mux := http.NewServeMux()
	gw.Register(mux, metric.Handler(registry))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return gw.Start(groupCtx, mux)
	})

	logger.Info("versiad running", "bind", cfg.HTTP.Bind)

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", "timeout", cli.ShutdownTimeout)
		select {
		case err := <-done:
			if err != nil {
				return err
			}
		case <-time.After(cli.ShutdownTimeout):
			return fmt.Errorf("shutdown timed out after %s", cli.ShutdownTimeout)
		}
	}
	logger.Info("versiad stopped")
	return nil
}
