// Package output implements the indicator side of the device: the Sink the
// renderer writes to every tick.
//
//   - GPIO drives Raspberry Pi pins through go-rpio (one pin per color, per
//     arrow, plus the status LED).
//   - Log keeps a virtual panel and logs changes, for running without hardware.
//   - Nop discards everything; Multi fans out to several sinks.
package output
