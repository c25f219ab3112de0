// Package display decides what the panel shows.
//
// urgency.go maps an ETA to a blink Policy (Classify) and evaluates the blink
// phase from the clock (Policy.IsOn). slot.go maps the clock to the active
// slot of the 60s cycle (ActiveSlot). Both are pure functions of their inputs.
//
// render.go provides the Renderer: each Tick reads the registry, builds a
// Frame for the active slot and writes it to an output.Sink. The current time
// is always passed in, so tests are deterministic.
//
// Bands: <90s blink 180ms, <300s 360ms, <600s 600ms, <900s 900ms,
// <5000s solid, otherwise off.
package display
