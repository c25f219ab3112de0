package output

import (
	"log/slog"
	"sync"

	"github.com/transitbeacon/beacon/device/internal/registry"
)

// Log is a Sink for bench testing without hardware. It tracks the virtual
// panel and logs only when the visible state changes, so a 20ms render
// cadence does not flood the log.
type Log struct {
	mu     sync.Mutex
	logger *slog.Logger
	color  registry.Color // "" when no color is lit
	arrow  registry.Direction
	on     bool // arrow lit
	status bool
}

// NewLog returns a Log sink writing to logger, or slog.Default() if nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) SetArrow(dir registry.Direction, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.arrow == dir && l.on == on {
		return
	}
	l.arrow, l.on = dir, on
	// Blinking toggles this several times a second.
	l.logger.Debug("output: arrow", "direction", dir, "on", on)
}

func (l *Log) SetColor(c registry.Color, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case on && l.color != c:
		l.color = c
	case !on && l.color == c:
		l.color = ""
	default:
		return
	}
	l.logger.Info("output: color", "color", c, "on", on)
}

func (l *Log) SetStatus(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == on {
		return
	}
	l.status = on
	l.logger.Info("output: status", "on", on)
}

func (l *Log) AllOff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color == "" && !l.on {
		return
	}
	l.color, l.on = "", false
	l.logger.Info("output: all off")
}

// Panel returns the currently lit color (or ""), the arrow direction, whether
// the arrow is lit, and the status indicator.
func (l *Log) Panel() (registry.Color, registry.Direction, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color, l.arrow, l.on, l.status
}
