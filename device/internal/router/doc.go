// Package router dispatches inbound (channel, payload) messages to the
// registry.
//
//   - enable channel: enabled = payload == "ON"
//   - alert channel:  alert = payload == "ON"
//   - route channel:  that route's ETA = payload as unsigned seconds
//   - anything else:  dropped and logged
//
// Payloads are truncated to the configured maximum and trimmed of surrounding
// whitespace before decoding. Any control payload other than "ON" means off;
// an unparsable ETA means unknown (0). No input is an error.
package router
