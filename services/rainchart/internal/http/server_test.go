package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/broker"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/config"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/poller"
)

type fakePoller struct {
	result poller.Result
	status poller.Status
	calls  int
}

func (f *fakePoller) Refresh(context.Context) poller.Result {
	f.calls++
	return f.result
}

func (f *fakePoller) Status() poller.Status {
	return f.status
}

type fixture struct {
	srv      *Server
	chart    *chart.Chart
	renderer *chart.Renderer
	broker   *broker.Broker
	poller   *fakePoller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Config{
		Metric:       config.MetricRain,
		PollInterval: 5 * time.Second,
		Port:         0,
	}

	r := chart.NewRenderer()
	b := broker.New(4)
	go b.Start()
	t.Cleanup(b.Stop)

	c := chart.New("rain_temp_canvas", chart.DefaultOptions("Rain", 320, 200), r, b)
	p := &fakePoller{status: poller.Status{Running: true}}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "rainchart_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv, err := New(cfg, Deps{
		Chart:    c,
		Renderer: r,
		Broker:   b,
		Poller:   p,
		Gatherer: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	return &fixture{srv: srv, chart: c, renderer: r, broker: b, poller: p}
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	f.chart.Replace(chart.Data{
		Labels: []string{"00:00", "01:00"},
		Datasets: []chart.Dataset{{
			Type:        "line",
			Label:       "Station 1",
			Data:        []float64{1, 2},
			BorderColor: "#00f",
		}},
	})
	require.NoError(t, f.chart.Update(context.Background()))
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status       string        `json:"status"`
		Poller       poller.Status `json:"poller"`
		ChartVersion uint64        `json:"chart_version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Poller.Running)
	assert.Zero(t, body.ChartVersion)
}

func TestRootRedirectsToDashboard(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/display_rain", rec.Header().Get("Location"))
}

func TestDashboardPage(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	rec := f.do(http.MethodGet, "/display_rain")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	page := rec.Body.String()
	assert.Contains(t, page, `id="rain_temp_canvas"`)
	assert.Contains(t, page, `const rain_data = [[1,2]];`)
	assert.Contains(t, page, `const temp_data = [];`)
	assert.Contains(t, page, `"00:00"`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodOptions, "/api/v1/chart")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestV1Chart(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	rec := f.do(http.MethodGet, "/api/v1/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))

	var body struct {
		Data chart.Snapshot `json:"data"`
		Meta struct {
			Series string `json:"series"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body.Data.Version)
	assert.Equal(t, "rain_temp_canvas", body.Data.ElementID)
	require.Len(t, body.Data.Data.Datasets, 1)
	assert.Equal(t, "Station 1", body.Data.Data.Datasets[0].Label)
	assert.NotEmpty(t, body.Meta.Series)
}

func TestV1ChartImage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/chart/image")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	f.load(t)
	rec = f.do(http.MethodGet, "/api/v1/chart/image")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Chart-Version"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = f.do(http.MethodGet, "/api/v1/chart/image?format=svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = f.do(http.MethodGet, "/api/v1/chart/image?format=gif")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestV1ChartImageEmptyChart(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.chart.Replace(chart.Data{})
	require.NoError(t, f.chart.Update(context.Background()))

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/api/v1/chart/image").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/api/v1/chart/image?format=svg").Code)
}

func TestV1ChartRefresh(t *testing.T) {
	f := newFixture(t)
	f.poller.result = poller.Result{Seq: 1, Outcome: poller.OutcomeApplied, Series: 2, Version: 1}

	rec := f.do(http.MethodPost, "/api/v1/chart/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.poller.calls)

	var body struct {
		Result poller.Result `json:"result"`
		Error  string        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, poller.OutcomeApplied, body.Result.Outcome)
	assert.Equal(t, 2, body.Result.Series)
	assert.Empty(t, body.Error)

	f.poller.result = poller.Result{Seq: 2, Outcome: poller.OutcomeFailed, Err: errors.New("fetch: unexpected status")}
	rec = f.do(http.MethodPost, "/api/v1/chart/refresh")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fetch: unexpected status", body.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rainchart_test_total 1")
}

func TestFavicon(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/favicon.ico").Code)
}

func TestV1ChartWSPushesRedraws(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/chart/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first broker.Redraw
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Zero(t, first.Version)

	require.Eventually(t, func() bool { return f.broker.SubCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.load(t)

	var next broker.Redraw
	require.NoError(t, wsjson.Read(ctx, conn, &next))
	assert.EqualValues(t, 1, next.Version)
	assert.Equal(t, 1, next.Series)
	assert.Equal(t, 2, next.Labels)
}
