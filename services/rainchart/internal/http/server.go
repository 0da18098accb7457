package http

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/broker"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/config"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/poller"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Refresher is the part of the poller the HTTP layer drives.
type Refresher interface {
	Refresh(ctx context.Context) poller.Result
	Status() poller.Status
}

// Deps are the long-lived handles the server reads from.
type Deps struct {
	Chart    *chart.Chart
	Renderer *chart.Renderer
	Broker   *broker.Broker
	Poller   Refresher
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server bundles router and dependencies for the chart dashboard.
type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) (*Server, error) {
	page, err := template.ParseFS(templatesFS, "templates/rain.html")
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.SetHTMLTemplate(page)
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, deps: deps, logger: logger, engine: engine}
	server.registerRoutes()
	server.registerV1Routes()
	return server, nil
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)

	s.engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, s.cfg.PagePath())
	})
	s.engine.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	s.engine.GET(s.cfg.PagePath(), s.handlePage)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	status := s.deps.Poller.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"poller":        status,
		"chart_version": s.deps.Chart.Snapshot().Version,
	})
}

type pageData struct {
	Title       string
	ElementID   string
	Width       int
	Height      int
	Version     uint64
	ImagePath   string
	WSPath      string
	ReconnectMs int64
	TempData    [][]float64
	RainData    [][]float64
	TheLabels   []string
}

func (s *Server) handlePage(c *gin.Context) {
	snap := s.deps.Chart.Snapshot()

	values := make([][]float64, 0, len(snap.Data.Datasets))
	for _, ds := range snap.Data.Datasets {
		values = append(values, ds.Data)
	}

	data := pageData{
		Title:       snap.Options.Title.Text,
		ElementID:   snap.ElementID,
		Width:       snap.Options.Width,
		Height:      snap.Options.Height,
		Version:     snap.Version,
		ImagePath:   "/api/v1/chart/image",
		WSPath:      "/api/v1/chart/ws",
		ReconnectMs: s.cfg.PollInterval.Milliseconds(),
		TempData:    [][]float64{},
		RainData:    [][]float64{},
		TheLabels:   snap.Data.Labels,
	}
	if s.cfg.Metric == config.MetricTemp {
		data.TempData = values
	} else {
		data.RainData = values
	}

	c.HTML(http.StatusOK, "rain.html", data)
}
