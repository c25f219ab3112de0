// Package metrics exposes device counters and gauges in the Prometheus text
// format. Gather reads the router's message counters, the renderer's tick
// count and last frame, and a registry snapshot, and builds client_model
// MetricFamily values; WriteText encodes them with expfmt.
//
// There is no global registry: values are read from their owners at scrape
// time.
package metrics
