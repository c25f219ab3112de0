package metrics

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/registry"
	"github.com/transitbeacon/beacon/device/internal/router"
)

// Metric names exposed on /metrics.
const (
	nameMessages     = "beacon_messages_total"
	nameMalformed    = "beacon_malformed_payloads_total"
	nameTruncated    = "beacon_truncated_payloads_total"
	nameTicks        = "beacon_render_ticks_total"
	nameEnabled      = "beacon_system_enabled"
	nameAlert        = "beacon_alert_active"
	nameActiveSlot   = "beacon_active_slot"
	nameRouteETA     = "beacon_route_eta_seconds"
	nameRouteAge     = "beacon_route_last_update_timestamp_seconds"
	nameIndicatorLit = "beacon_indicator_lit"
	nameArrowLit     = "beacon_arrow_lit"
)

// Sources are the components the collector reads from.
type Sources struct {
	Registry *registry.Registry
	Router   *router.Router
	Renderer *display.Renderer
}

// Gather builds the current metric families. Counters come from the router
// and renderer; gauges from a registry snapshot and the last frame.
func Gather(src Sources) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	if src.Router != nil {
		st := src.Router.Stats()
		out = append(out,
			family(nameMessages, "Inbound messages by kind.", dto.MetricType_COUNTER,
				counter(float64(st.Enable), "kind", "enable"),
				counter(float64(st.Alert), "kind", "alert"),
				counter(float64(st.ETA), "kind", "eta"),
				counter(float64(st.Unknown), "kind", "unknown"),
			),
			family(nameMalformed, "ETA payloads that failed to parse.", dto.MetricType_COUNTER,
				counter(float64(st.Malformed)),
			),
			family(nameTruncated, "Payloads truncated to the maximum length.", dto.MetricType_COUNTER,
				counter(float64(st.Truncated)),
			),
		)
	}

	if src.Renderer != nil {
		f := src.Renderer.Last()
		out = append(out,
			family(nameTicks, "Frames rendered.", dto.MetricType_COUNTER,
				counter(float64(src.Renderer.Ticks())),
			),
			family(nameActiveSlot, "Slot shown in the last frame.", dto.MetricType_GAUGE,
				gauge(float64(f.Slot)),
			),
			family(nameIndicatorLit, "1 if route indicators were lit in the last frame.", dto.MetricType_GAUGE,
				gauge(boolValue(f.Lit)),
			),
			family(nameArrowLit, "1 if the arrow was lit in the last frame.", dto.MetricType_GAUGE,
				gauge(boolValue(f.ArrowOn)),
			),
		)
	}

	if src.Registry != nil {
		snap := src.Registry.Snapshot()
		etas := make([]*dto.Metric, 0, len(snap.Routes))
		ages := make([]*dto.Metric, 0, len(snap.Routes))
		for _, rt := range snap.Routes {
			labels := []string{"channel", rt.Channel, "route", rt.Name, "slot", fmt.Sprint(rt.Slot)}
			etas = append(etas, gauge(float64(rt.ETA), labels...))
			var ts float64
			if !rt.UpdatedAt.IsZero() {
				ts = float64(rt.UpdatedAt.UnixMilli()) / 1000
			}
			ages = append(ages, gauge(ts, labels...))
		}
		out = append(out,
			family(nameEnabled, "1 if route display is enabled.", dto.MetricType_GAUGE,
				gauge(boolValue(snap.Enabled)),
			),
			family(nameAlert, "1 if the alert indicator is on.", dto.MetricType_GAUGE,
				gauge(boolValue(snap.Alert)),
			),
			family(nameRouteETA, "Last received ETA per route; 0 means unknown.", dto.MetricType_GAUGE, etas...),
			family(nameRouteAge, "Unix time of the last ETA update per route; 0 if never.", dto.MetricType_GAUGE, ages...),
		)
	}
	return out
}

// WriteText encodes families in the Prometheus text exposition format.
func WriteText(w io.Writer, mfs []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ContentType is the Content-Type for WriteText output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

func family(name, help string, typ dto.MetricType, ms ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: ms,
	}
}

func counter(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gauge(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

// labelPairs turns name/value pairs into label pairs. Names must already be
// in sorted order.
func labelPairs(kv []string) []*dto.LabelPair {
	if len(kv) == 0 {
		return nil
	}
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: proto.String(kv[i]), Value: proto.String(kv[i+1])})
	}
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
