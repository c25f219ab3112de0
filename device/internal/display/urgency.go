package display

import "fmt"

// PolicyKind is the shape of a blink policy.
type PolicyKind int

const (
	PolicyOff PolicyKind = iota
	PolicyBlink
	PolicySolid
)

// Urgency thresholds in seconds. Each bound is inclusive below and
// exclusive above.
const (
	etaImminent = 90
	etaNear     = 300
	etaSoon     = 600
	etaLater    = 900
	etaHorizon  = 5000
)

// Blink intervals in milliseconds for each urgency band.
const (
	intervalImminent = 180
	intervalNear     = 360
	intervalSoon     = 600
	intervalLater    = 900
)

// Policy is the derived on/off behaviour of a route's arrow. It is computed
// from an ETA on every tick and never stored.
type Policy struct {
	Kind PolicyKind
	// IntervalMs is the full on+off period. Only meaningful for PolicyBlink.
	IntervalMs int64
}

var (
	Off   = Policy{Kind: PolicyOff}
	Solid = Policy{Kind: PolicySolid}
)

// Blink returns a blinking policy with the given period.
func Blink(intervalMs int64) Policy {
	return Policy{Kind: PolicyBlink, IntervalMs: intervalMs}
}

// Classify maps an ETA in seconds to a blink policy:
//
//	eta <= 0          Off (no data)
//	0 < eta < 90      Blink(180)
//	90 <= eta < 300   Blink(360)
//	300 <= eta < 600  Blink(600)
//	600 <= eta < 900  Blink(900)
//	900 <= eta < 5000 Solid
//	eta >= 5000       Off
func Classify(eta int) Policy {
	switch {
	case eta <= 0:
		return Off
	case eta < etaImminent:
		return Blink(intervalImminent)
	case eta < etaNear:
		return Blink(intervalNear)
	case eta < etaSoon:
		return Blink(intervalSoon)
	case eta < etaLater:
		return Blink(intervalLater)
	case eta < etaHorizon:
		return Solid
	default:
		return Off
	}
}

// IsOn reports whether the indicator is lit at nowMs. A blinking indicator is
// on for the first half of each interval, so the phase depends only on the
// clock.
func (p Policy) IsOn(nowMs int64) bool {
	switch p.Kind {
	case PolicySolid:
		return true
	case PolicyBlink:
		if p.IntervalMs <= 0 {
			return false
		}
		return mod(nowMs, p.IntervalMs) < p.IntervalMs/2
	default:
		return false
	}
}

// String renders the policy as "off", "solid" or "blink(360ms)".
func (p Policy) String() string {
	switch p.Kind {
	case PolicySolid:
		return "solid"
	case PolicyBlink:
		return fmt.Sprintf("blink(%dms)", p.IntervalMs)
	default:
		return "off"
	}
}

// mod is a non-negative modulo so clocks before the epoch still work.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
