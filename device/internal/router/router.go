package router

import (
	"bytes"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/transitbeacon/beacon/device/internal/registry"
)

// payloadOn is the only control payload that turns a flag on.
const payloadOn = "ON"

// Message is one inbound publish: the channel key it arrived on and its raw
// payload.
type Message struct {
	Channel string
	Payload []byte
}

// Stats counts routed messages by outcome.
type Stats struct {
	Enable    uint64
	Alert     uint64
	ETA       uint64
	Unknown   uint64
	Malformed uint64
	Truncated uint64
}

// Router applies inbound messages to the registry. Each call mutates at most
// one thing: the enable flag, the alert flag, or one route's ETA. Nothing it
// receives is treated as an error.
type Router struct {
	reg           *registry.Registry
	enableChannel string
	alertChannel  string
	maxPayload    int
	now           func() time.Time // injectable for deterministic tests

	enable, alert, eta, unknown, malformed, truncated atomic.Uint64
}

// New returns a Router writing to reg. Payloads longer than maxPayload bytes
// are truncated before decoding.
func New(reg *registry.Registry, enableChannel, alertChannel string, maxPayload int) *Router {
	return &Router{
		reg:           reg,
		enableChannel: enableChannel,
		alertChannel:  alertChannel,
		maxPayload:    maxPayload,
		now:           time.Now,
	}
}

// Dispatch routes m.
func (r *Router) Dispatch(m Message) {
	r.Route(m.Channel, m.Payload)
}

// Route handles one message. Calls must be made in arrival order.
func (r *Router) Route(channel string, payload []byte) {
	if r.maxPayload > 0 && len(payload) > r.maxPayload {
		slog.Debug("router: payload truncated",
			"channel", channel, "len", len(payload), "max", r.maxPayload)
		payload = payload[:r.maxPayload]
		r.truncated.Add(1)
	}
	token := string(bytes.TrimSpace(payload))

	switch channel {
	case r.enableChannel:
		on := token == payloadOn
		r.reg.SetEnabled(on)
		r.enable.Add(1)
		slog.Info("router: system enabled", "on", on)

	case r.alertChannel:
		on := token == payloadOn
		r.reg.SetAlert(on)
		r.alert.Add(1)
		slog.Info("router: alert", "on", on)

	default:
		if !r.reg.Has(channel) {
			r.unknown.Add(1)
			slog.Warn("router: unknown channel, message dropped", "channel", channel)
			return
		}
		secs, ok := parseSeconds(token)
		if !ok {
			r.malformed.Add(1)
			slog.Warn("router: malformed eta, treating as unknown",
				"channel", channel, "payload", token)
		}
		r.reg.SetETA(channel, secs, r.now())
		r.eta.Add(1)
		slog.Debug("router: eta updated", "channel", channel, "eta", secs)
	}
}

// Stats returns the message counters.
func (r *Router) Stats() Stats {
	return Stats{
		Enable:    r.enable.Load(),
		Alert:     r.alert.Load(),
		ETA:       r.eta.Load(),
		Unknown:   r.unknown.Load(),
		Malformed: r.malformed.Load(),
		Truncated: r.truncated.Load(),
	}
}

// parseSeconds decodes an unsigned decimal integer. Anything else (signs,
// decimal points, empty input, overflow) yields 0 and false.
func parseSeconds(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
