package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Dataset is a single line series, shaped like a Chart.js dataset.
type Dataset struct {
	Type            string    `json:"type"`
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	Fill            bool      `json:"fill"`
	BackgroundColor string    `json:"backgroundColor"`
	BorderColor     string    `json:"borderColor"`
}

// Data is the mutable part of the chart: series plus shared x axis labels.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

func (d Data) clone() Data {
	out := Data{
		Labels:   append([]string{}, d.Labels...),
		Datasets: make([]Dataset, len(d.Datasets)),
	}
	for i, ds := range d.Datasets {
		ds.Data = append([]float64{}, ds.Data...)
		out.Datasets[i] = ds
	}
	return out
}

// Options are fixed at construction.
type Options struct {
	Scales    Scales  `json:"scales"`
	Legend    Display `json:"legend"`
	Title     Title   `json:"title"`
	Animation bool    `json:"animation"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

type Scales struct {
	Y Axis `json:"y"`
}

type Axis struct {
	BeginAtZero bool `json:"beginAtZero"`
}

type Display struct {
	Display bool `json:"display"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text,omitempty"`
}

// DefaultOptions: y axis from zero, no legend, title shown, no animation.
func DefaultOptions(title string, width, height int) Options {
	return Options{
		Scales:    Scales{Y: Axis{BeginAtZero: true}},
		Legend:    Display{Display: false},
		Title:     Title{Display: true, Text: title},
		Animation: false,
		Width:     width,
		Height:    height,
	}
}

// Snapshot is an immutable view of the chart at one version.
type Snapshot struct {
	ElementID string    `json:"element_id"`
	Options   Options   `json:"options"`
	Data      Data      `json:"data"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Surface is anything that draws a snapshot.
type Surface interface {
	Draw(ctx context.Context, snap Snapshot) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, snap Snapshot) error

func (f SurfaceFunc) Draw(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Chart owns the series buffers bound to one page element.
type Chart struct {
	elementID string
	options   Options

	mu        sync.RWMutex
	data      Data
	version   uint64
	updatedAt time.Time

	updateMu sync.Mutex
	surfaces []Surface
}

// New creates a chart handle with empty data.
func New(elementID string, opts Options, surfaces ...Surface) *Chart {
	return &Chart{
		elementID: elementID,
		options:   opts,
		data:      Data{Labels: []string{}, Datasets: []Dataset{}},
		surfaces:  surfaces,
	}
}

// AddSurface attaches another surface; it is drawn on subsequent updates.
func (c *Chart) AddSurface(s Surface) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	c.surfaces = append(c.surfaces, s)
}

// ElementID is the page element the chart is bound to.
func (c *Chart) ElementID() string {
	return c.elementID
}

// Replace discards every series and the labels and installs d.
func (c *Chart) Replace(d Data) {
	d = d.clone()
	c.mu.Lock()
	c.data = d
	c.mu.Unlock()
}

// Update bumps the version and draws the current data on every surface.
// Data is never rolled back on a surface error.
func (c *Chart) Update(ctx context.Context) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	c.version++
	c.updatedAt = time.Now().UTC()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	var errs []error
	for _, s := range c.surfaces {
		if err := s.Draw(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("redraw version %d: %w", snap.Version, errors.Join(errs...))
	}
	return nil
}

// Snapshot returns a deep copy of the chart state.
func (c *Chart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Chart) snapshotLocked() Snapshot {
	return Snapshot{
		ElementID: c.elementID,
		Options:   c.options,
		Data:      c.data.clone(),
		Version:   c.version,
		UpdatedAt: c.updatedAt,
	}
}
