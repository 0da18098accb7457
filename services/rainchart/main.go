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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/broker"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/config"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/feed"
	httpserver "github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/http"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/logging"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/poller"
)

const appName = "rainchart"

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"metric", cfg.Metric,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := feed.NewClient(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.FeedBaseURL,
		cfg.FeedPath,
		string(cfg.Metric),
		cfg.FeedMaxBytes,
	)
	if err != nil {
		return err
	}

	b := broker.New(16)
	go b.Start()
	defer b.Stop()

	renderer := chart.NewRenderer()
	c := chart.New(
		cfg.ElementID,
		chart.DefaultOptions(cfg.ChartTitle, cfg.ChartWidth, cfg.ChartHeight),
		renderer,
	)
	c.AddSurface(b)

	p := poller.New(client, c, poller.Options{
		Interval:    cfg.PollInterval,
		Timeout:     cfg.RequestTimeout,
		Metric:      string(cfg.Metric),
		PollOnStart: cfg.PollOnStart,
		Logger:      logger.With("component", "poller"),
		Metrics:     poller.NewMetrics(reg),
	})
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	srv, err := httpserver.New(cfg, httpserver.Deps{
		Chart:    c,
		Renderer: renderer,
		Broker:   b,
		Poller:   p,
		Gatherer: reg,
		Logger:   logger.With("component", "http"),
	})
	if err != nil {
		return err
	}

	slog.Info("polling feed",
		"endpoint", client.Endpoint(),
		"interval", cfg.PollInterval.String(),
	)
	slog.Info("dashboard listening",
		"addr", cfg.ListenAddr(),
		"page", cfg.PagePath(),
	)

	return srv.Run(ctx)
}
