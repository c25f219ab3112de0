package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/output"
	"github.com/transitbeacon/beacon/device/internal/router"
)

// Engine runs message routing and rendering on one goroutine, so a tick
// never observes a message half-applied and messages are applied in the
// order they were queued.
type Engine struct {
	router   *router.Router
	renderer *display.Renderer
	sink     output.Sink
	interval time.Duration

	// tickFn supplies the tick channel. Injectable so tests drive ticks by hand.
	tickFn func(d time.Duration) (<-chan time.Time, func())
}

// New returns an Engine that renders every interval.
func New(rt *router.Router, rend *display.Renderer, sink output.Sink, interval time.Duration) *Engine {
	if sink == nil {
		sink = output.Nop{}
	}
	return &Engine{
		router:   rt,
		renderer: rend,
		sink:     sink,
		interval: interval,
		tickFn: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run processes inbox messages and render ticks until ctx is cancelled or
// inbox is closed, then turns every indicator off.
func (e *Engine) Run(ctx context.Context, inbox <-chan router.Message) {
	ticks, stop := e.tickFn(e.interval)
	defer stop()
	defer e.shutdown()

	slog.Info("engine: running", "tick_interval", e.interval)
	e.renderer.Tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-inbox:
			if !ok {
				slog.Warn("engine: inbox closed")
				return
			}
			e.router.Dispatch(m)

		case now := <-ticks:
			e.renderer.Tick(now)
		}
	}
}

func (e *Engine) shutdown() {
	e.sink.AllOff()
	e.sink.SetStatus(false)
	slog.Info("engine: stopped, indicators off")
}
