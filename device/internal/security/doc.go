// Package security checks the TLS certificate of the MQTT broker. Check
// returns a CertStatus (valid | expiring | expired | unreachable) for TLS
// broker URLs and nil for plain TCP ones. The result is reported by the
// diagnostics health endpoint.
package security
