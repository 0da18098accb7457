package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// ErrNothingToDraw is returned when no dataset has any value.
var ErrNothingToDraw = errors.New("no dataset with values")

// Format picks the go-chart backend.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ContentType for HTTP responses.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() gochart.RendererProvider {
	if f == FormatSVG {
		return gochart.SVG
	}
	return gochart.PNG
}

// Frame is one rendered image. Image is empty when the chart had nothing
// to draw.
type Frame struct {
	Image      []byte
	Version    uint64
	RenderedAt time.Time
}

// Renderer is a Surface that keeps the latest PNG frame in memory.
type Renderer struct {
	render func(io.Writer, Snapshot, Format) error

	mu    sync.RWMutex
	frame *Frame
}

func NewRenderer() *Renderer {
	return &Renderer{render: Render}
}

// Draw renders snap. On failure the previous frame is kept.
func (r *Renderer) Draw(_ context.Context, snap Snapshot) error {
	var buf bytes.Buffer
	err := r.render(&buf, snap, FormatPNG)
	switch {
	case errors.Is(err, ErrNothingToDraw):
		buf.Reset()
	case err != nil:
		return fmt.Errorf("render png: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frame != nil && r.frame.Version > snap.Version {
		return nil
	}
	r.frame = &Frame{Image: buf.Bytes(), Version: snap.Version, RenderedAt: time.Now().UTC()}
	return nil
}

// Frame returns the latest frame, if any has been rendered.
func (r *Renderer) Frame() (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.frame == nil {
		return Frame{}, false
	}
	return *r.frame, true
}

// yLimit bounds the y axis so its span stays finite.
const yLimit = math.MaxFloat64 / 4

// Render draws snap as a line chart: one series per dataset, x ticks from the
// shared labels, y axis starting at zero, no legend. Points past the last
// label are not drawn.
func Render(w io.Writer, snap Snapshot, format Format) error {
	visible := len(snap.Data.Labels)
	if visible == 0 {
		for _, ds := range snap.Data.Datasets {
			visible = max(visible, len(ds.Data))
		}
	}

	var (
		series []gochart.Series
		lo     = math.Inf(1)
		hi     = math.Inf(-1)
	)
	for i, ds := range snap.Data.Datasets {
		n := min(len(ds.Data), visible)
		if n == 0 {
			continue
		}
		xs := make([]float64, n)
		ys := make([]float64, n)
		for j, v := range ds.Data[:n] {
			xs[j] = float64(j)
			if !math.IsNaN(v) {
				v = math.Max(-yLimit, math.Min(yLimit, v))
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			ys[j] = v
		}

		col, ok := ParseColor(ds.BorderColor)
		if !ok {
			col, _ = ParseColor(PaletteColor(i))
		}
		style := gochart.Style{
			StrokeColor: col,
			StrokeWidth: 2,
			DotColor:    col,
			DotWidth:    3,
		}
		if ds.Fill {
			if fill, ok := ParseColor(ds.BackgroundColor); ok {
				style.FillColor = fill.WithAlpha(64)
			}
		}

		series = append(series, gochart.ContinuousSeries{
			Name:    ds.Label,
			Style:   style,
			XValues: xs,
			YValues: ys,
		})
	}

	if len(series) == 0 {
		return ErrNothingToDraw
	}

	minY, maxY := lo, hi
	if math.IsInf(lo, 1) {
		minY, maxY = 0, 1
	}
	if snap.Options.Scales.Y.BeginAtZero {
		minY = math.Min(minY, 0)
		maxY = math.Max(maxY, 0)
	}
	if maxY <= minY {
		maxY = minY + 1
	}

	// go-chart derives the x range from the ticks, so a lone label needs an
	// empty companion tick at the right edge.
	maxX := math.Max(1, float64(visible-1))
	ticks := make([]gochart.Tick, 0, len(snap.Data.Labels)+1)
	for i, label := range snap.Data.Labels {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: label})
	}
	if len(ticks) == 1 {
		ticks = append(ticks, gochart.Tick{Value: maxX})
	}

	ch := gochart.Chart{
		Width:      snap.Options.Width,
		Height:     snap.Options.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{Min: 0, Max: maxX},
		},
		YAxis: gochart.YAxis{
			Range:          &gochart.ContinuousRange{Min: minY, Max: maxY},
			ValueFormatter: compactValue,
		},
		Series: series,
	}
	if snap.Options.Title.Display {
		ch.Title = snap.Options.Title.Text
	}

	return ch.Render(format.provider(), w)
}

func compactValue(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'g', 4, 64)
	}
	return ""
}
