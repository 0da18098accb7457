package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/models"
	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/utils"
)

// ErrAlreadyRunning is returned by Start on a running poller.
var ErrAlreadyRunning = errors.New("poller already running")

// Fetcher returns the current station readings.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.StationReading, error)
}

// Outcome classifies a poll.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
	OutcomeStale   Outcome = "stale"
	OutcomeSkipped Outcome = "skipped"
)

// Result describes one poll. Seq is zero for skipped ticks.
type Result struct {
	Seq      uint64        `json:"seq"`
	Outcome  Outcome       `json:"outcome"`
	Series   int           `json:"series"`
	Labels   int           `json:"labels"`
	Version  uint64        `json:"version"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Status is the poller's view of its recent history.
type Status struct {
	Running     bool      `json:"running"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
}

// Options configure a Poller.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	Metric      string
	PollOnStart bool
	Logger      *slog.Logger
	Metrics     *Metrics
	// OnResult, when set, sees every result including skipped ticks.
	OnResult func(Result)
}

// Poller refreshes a chart from a Fetcher on a fixed-rate ticker.
type Poller struct {
	fetcher Fetcher
	chart   *chart.Chart
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	seq      atomic.Uint64
	inFlight atomic.Bool

	applyMu     sync.Mutex
	lastApplied uint64

	statusMu sync.RWMutex
	status   Status

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetcher Fetcher, c *chart.Chart, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Metric == "" {
		opts.Metric = "rain"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Poller{
		fetcher: fetcher,
		chart:   c,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the poll loop. It runs until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.setRunning(true)

	go p.loop(ctx, p.done)
	return nil
}

// Stop cancels the loop and any in-flight poll, then waits for them.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// loopDone is closed once the current loop exits. Nil when not started.
func (p *Poller) loopDone() <-chan struct{} {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	var wg sync.WaitGroup
	defer close(done)
	defer p.setRunning(false)
	defer wg.Wait()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.opts.Interval, "metric", p.opts.Metric)

	if p.opts.PollOnStart {
		p.tick(ctx, &wg)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.tick(ctx, &wg)
		}
	}
}

// tick starts a poll unless one is still in flight; the ticker never waits.
func (p *Poller) tick(ctx context.Context, wg *sync.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.finish(Result{Outcome: OutcomeSkipped})
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.inFlight.Store(false)
		p.Refresh(ctx)
	}()
}

// Refresh performs one poll and applies it unless a newer poll already has.
// A failed poll leaves the chart as it was.
func (p *Poller) Refresh(ctx context.Context) Result {
	seq := p.seq.Add(1)
	start := time.Now()

	fetchCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	readings, err := p.fetcher.Fetch(fetchCtx)
	p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return p.finish(Result{
			Seq:      seq,
			Outcome:  OutcomeFailed,
			Duration: time.Since(start),
			Err:      fmt.Errorf("fetch: %w", err),
		})
	}

	data := utils.BuildChartData(readings, p.opts.Metric)

	p.applyMu.Lock()
	if seq < p.lastApplied {
		p.applyMu.Unlock()
		return p.finish(Result{Seq: seq, Outcome: OutcomeStale, Duration: time.Since(start)})
	}
	p.lastApplied = seq
	p.chart.Replace(data)
	drawErr := p.chart.Update(ctx)
	version := p.chart.Snapshot().Version
	p.applyMu.Unlock()

	res := Result{
		Seq:      seq,
		Outcome:  OutcomeApplied,
		Series:   len(data.Datasets),
		Labels:   len(data.Labels),
		Version:  version,
		Duration: time.Since(start),
	}
	if drawErr != nil {
		res.Outcome = OutcomeFailed
		res.Err = drawErr
	}
	p.logger.Debug("chart data", "seq", seq, "summary", utils.SeriesSummary(data))
	return p.finish(res)
}

func (p *Poller) finish(r Result) Result {
	p.metrics.Polls.WithLabelValues(string(r.Outcome)).Inc()

	now := time.Now().UTC()
	p.statusMu.Lock()
	p.status.LastOutcome = r.Outcome
	switch {
	case r.Err != nil:
		p.status.LastError = r.Err.Error()
		p.status.LastErrorAt = now
	case r.Outcome == OutcomeApplied:
		p.status.LastSuccess = now
	}
	p.statusMu.Unlock()

	switch {
	case r.Err != nil:
		p.logger.Warn("poll failed", "seq", r.Seq, "duration", r.Duration, "error", r.Err)
	case r.Outcome == OutcomeApplied:
		p.metrics.Series.Set(float64(r.Series))
		p.metrics.LastSuccess.Set(float64(now.Unix()))
		p.logger.Debug("poll applied", "seq", r.Seq, "series", r.Series, "labels", r.Labels, "version", r.Version)
	case r.Outcome == OutcomeStale:
		p.logger.Debug("poll result discarded; newer poll already applied", "seq", r.Seq)
	case r.Outcome == OutcomeSkipped:
		p.logger.Debug("tick skipped; previous poll still in flight")
	}

	if p.opts.OnResult != nil {
		p.opts.OnResult(r)
	}
	return r
}

// Status reports the last outcome, success and error.
func (p *Poller) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

func (p *Poller) setRunning(running bool) {
	p.statusMu.Lock()
	p.status.Running = running
	p.statusMu.Unlock()
}
