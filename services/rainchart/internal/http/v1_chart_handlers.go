package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/broker"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/poller"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/utils"
)

// handleV1Chart returns the current chart state
// GET /api/v1/chart
func (s *Server) handleV1Chart(c *gin.Context) {
	snap := s.deps.Chart.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"data": snap,
		"meta": gin.H{
			"series":       utils.SeriesSummary(snap.Data),
			"poller":       s.deps.Poller.Status(),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleV1ChartImage serves the latest PNG frame, or renders on demand for
// ?format=svg.
// GET /api/v1/chart/image
func (s *Server) handleV1ChartImage(c *gin.Context) {
	switch chart.Format(c.DefaultQuery("format", string(chart.FormatPNG))) {
	case chart.FormatPNG:
		frame, ok := s.deps.Renderer.Frame()
		if !ok || len(frame.Image) == 0 {
			c.Status(http.StatusNoContent)
			return
		}
		c.Header("X-Chart-Version", strconv.FormatUint(frame.Version, 10))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, chart.FormatPNG.ContentType(), frame.Image)
	case chart.FormatSVG:
		snap := s.deps.Chart.Snapshot()
		var buf bytes.Buffer
		err := chart.Render(&buf, snap, chart.FormatSVG)
		if errors.Is(err, chart.ErrNothingToDraw) {
			c.Status(http.StatusNoContent)
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("X-Chart-Version", strconv.FormatUint(snap.Version, 10))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, chart.FormatSVG.ContentType(), buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid format"})
	}
}

// handleV1ChartRefresh runs one poll outside the schedule
// POST /api/v1/chart/refresh
func (s *Server) handleV1ChartRefresh(c *gin.Context) {
	res := s.deps.Poller.Refresh(c.Request.Context())

	body := gin.H{"result": res}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}

	status := http.StatusOK
	if res.Outcome == poller.OutcomeFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, body)
}

// handleV1ChartWS pushes a message on every redraw. The current version is
// sent first so clients can sync without waiting for the next poll.
// GET /api/v1/chart/ws
func (s *Server) handleV1ChartWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "closed unexpectedly")
	}()

	ctx := conn.CloseRead(c.Request.Context())

	msgCh := s.deps.Broker.Subscribe()
	defer s.deps.Broker.Unsubscribe(msgCh)

	snap := s.deps.Chart.Snapshot()
	if err := s.writeRedraw(ctx, conn, broker.Redraw{
		Version:   snap.Version,
		Series:    len(snap.Data.Datasets),
		Labels:    len(snap.Data.Labels),
		UpdatedAt: snap.UpdatedAt,
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := s.writeRedraw(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeRedraw(ctx context.Context, conn *websocket.Conn, msg broker.Redraw) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.logger.Debug("ws write failed", "error", err)
		return err
	}
	return nil
}
