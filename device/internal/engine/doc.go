// Package engine is the device's main loop. A single goroutine selects over
// the inbound message queue and the render ticker: messages go to the router,
// ticks go to the renderer. Because both run on the same goroutine, routing
// and rendering never overlap.
package engine
