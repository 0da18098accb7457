package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultFeedBaseURL    = "http://localhost:5000/"
	defaultPollInterval   = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultFeedMaxBytes   = 4 << 20
	defaultPort           = 8080
	defaultElementID      = "rain_temp_canvas"
	defaultChartWidth     = 1024
	defaultChartHeight    = 512
)

// Metric selects which per-station series is charted.
type Metric string

const (
	MetricRain Metric = "rain"
	MetricTemp Metric = "temp"
)

// Title returns the default chart title for the metric.
func (m Metric) Title() string {
	if m == MetricTemp {
		return "Temperature"
	}
	return "Rain"
}

// Config holds runtime configuration for the rain chart service.
type Config struct {
	AppEnv   string
	LogLevel slog.Level

	FeedBaseURL    string
	FeedPath       string
	FeedMaxBytes   int64
	Metric         Metric
	PollInterval   time.Duration
	PollOnStart    bool
	RequestTimeout time.Duration

	Port        int
	ElementID   string
	ChartTitle  string
	ChartWidth  int
	ChartHeight int
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		AppEnv:         "dev",
		LogLevel:       slog.LevelInfo,
		FeedBaseURL:    defaultFeedBaseURL,
		FeedMaxBytes:   defaultFeedMaxBytes,
		Metric:         MetricRain,
		PollInterval:   defaultPollInterval,
		RequestTimeout: defaultRequestTimeout,
		Port:           defaultPort,
		ElementID:      defaultElementID,
		ChartWidth:     defaultChartWidth,
		ChartHeight:    defaultChartHeight,
	}

	if v := get("APP_ENV"); v != "" {
		switch v {
		case "dev", "prod":
			cfg.AppEnv = v
		default:
			return cfg, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", v)
		}
	}

	if v := get("LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}

	if v := get("FEED_BASE_URL"); v != "" {
		cfg.FeedBaseURL = v
	}
	u, err := url.Parse(cfg.FeedBaseURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid FEED_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return cfg, fmt.Errorf("invalid FEED_BASE_URL %q: scheme must be http or https", cfg.FeedBaseURL)
	}

	if v := get("CHART_METRIC"); v != "" {
		switch Metric(strings.ToLower(v)) {
		case MetricRain:
			cfg.Metric = MetricRain
		case MetricTemp:
			cfg.Metric = MetricTemp
		default:
			return cfg, fmt.Errorf("invalid CHART_METRIC %q (allowed: rain, temp)", v)
		}
	}

	cfg.FeedPath = "display_" + string(cfg.Metric) + "/update"
	if v := get("FEED_PATH"); v != "" {
		cfg.FeedPath = v
	}

	if v := get("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		if d <= 0 {
			return cfg, errors.New("POLL_INTERVAL must be positive")
		}
		cfg.PollInterval = d
	}

	if v := get("POLL_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_ON_START: %w", err)
		}
		cfg.PollOnStart = b
	}

	if v := get("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := get("FEED_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid FEED_MAX_BYTES: %s", v)
		}
		cfg.FeedMaxBytes = n
	}

	if portStr := get("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := get("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if v := get("CHART_ELEMENT_ID"); v != "" {
		cfg.ElementID = v
	}

	cfg.ChartTitle = cfg.Metric.Title()
	if v := get("CHART_TITLE"); v != "" {
		cfg.ChartTitle = v
	}

	if v := get("CHART_WIDTH"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil || w <= 0 {
			return cfg, fmt.Errorf("invalid CHART_WIDTH: %s", v)
		}
		cfg.ChartWidth = w
	}

	if v := get("CHART_HEIGHT"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return cfg, fmt.Errorf("invalid CHART_HEIGHT: %s", v)
		}
		cfg.ChartHeight = h
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// PagePath is the dashboard route, e.g. /display_rain.
func (c Config) PagePath() string {
	return "/display_" + string(c.Metric)
}

// ParseLogLevel maps a LOG_LEVEL value onto a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
