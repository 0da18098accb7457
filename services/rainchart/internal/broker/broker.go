package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
)

// Redraw announces that the chart reached a new version.
type Redraw struct {
	Version   uint64    `json:"version"`
	Series    int       `json:"series"`
	Labels    int       `json:"labels"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Broker fans redraw events out to subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type Broker struct {
	subCount  atomic.Int64
	dropCount atomic.Uint64

	stopOnce  sync.Once
	stopCh    chan struct{}
	publishCh chan Redraw
	subCh     chan chan Redraw
	unsubCh   chan chan Redraw
	bufSize   int
}

func New(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Broker{
		stopCh:    make(chan struct{}),
		publishCh: make(chan Redraw, 1),
		subCh:     make(chan chan Redraw),
		unsubCh:   make(chan chan Redraw),
		bufSize:   bufSize,
	}
}

// Start runs the dispatch loop until Stop.
func (b *Broker) Start() {
	subs := map[chan Redraw]struct{}{}
	defer func() {
		for msgCh := range subs {
			close(msgCh)
		}
		b.subCount.Store(0)
	}()
	for {
		select {
		case <-b.stopCh:
			return
		case msgCh := <-b.subCh:
			subs[msgCh] = struct{}{}
			b.subCount.Store(int64(len(subs)))
		case msgCh := <-b.unsubCh:
			if _, ok := subs[msgCh]; ok {
				delete(subs, msgCh)
				close(msgCh)
			}
			b.subCount.Store(int64(len(subs)))
		case msg := <-b.publishCh:
			for msgCh := range subs {
				select {
				case msgCh <- msg:
				default:
					b.dropCount.Add(1)
				}
			}
		}
	}
}

func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel that is closed on Unsubscribe or Stop. It
// returns once the dispatch loop has registered the channel.
func (b *Broker) Subscribe() chan Redraw {
	msgCh := make(chan Redraw, b.bufSize)
	select {
	case b.subCh <- msgCh:
	case <-b.stopCh:
		close(msgCh)
	}
	return msgCh
}

func (b *Broker) Unsubscribe(msgCh chan Redraw) {
	select {
	case b.unsubCh <- msgCh:
	case <-b.stopCh:
	}
}


func (b *Broker) SubCount() int {
	return int(b.subCount.Load())
}

func (b *Broker) DropCount() int {
	return int(b.dropCount.Load())
}

// Draw makes the broker a chart surface: every redraw is published.
func (b *Broker) Draw(ctx context.Context, snap chart.Snapshot) error {
	return b.publish(ctx, Redraw{
		Version:   snap.Version,
		Series:    len(snap.Data.Datasets),
		Labels:    len(snap.Data.Labels),
		UpdatedAt: snap.UpdatedAt,
	})
}

func (b *Broker) publish(ctx context.Context, msg Redraw) error {
	select {
	case b.publishCh <- msg:
	case <-b.stopCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
