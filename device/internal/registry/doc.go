// Package registry holds the device's only mutable state: the route table
// (one Route per display slot, keyed by channel) and the two system flags,
// enabled and alert.
//
// Identity and display attributes are fixed when the Registry is built; only
// a route's ETA (and its update time) and the two flags change afterwards.
// Reads return copies so callers never observe a half-written route.
package registry
