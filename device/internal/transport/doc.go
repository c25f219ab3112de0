// Package transport connects the device to its MQTT broker.
//
// Subscriber subscribes to TopicPrefix+key for the enable, alert and route
// channels, strips the prefix from each received topic and queues a
// router.Message on the engine's inbox. The paho client is configured with
// order-matters delivery, so messages reach the inbox in arrival order.
//
// The first connection is retried with truncated exponential backoff
// (1s→60s, ±25% jitter); afterwards paho's auto-reconnect takes over and
// the on-connect handler renews subscriptions.
//
// Auth: username/password (password read from an environment variable),
// mTLS via tls.Config, or none.
package transport
