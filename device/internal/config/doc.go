// Package config loads and watches the device configuration file (beacon.yaml).
//
// Top-level types:
//   - Config{Device} - full config tree parsed from YAML
//   - DeviceConfig - tick_interval, inbox_size, max_payload, stale_after,
//     log_level, channels, routes [], broker, output, diagnostics
//   - Route - name, channel, category (bus|rail), color, arrow (left|right), slot
//   - BrokerConfig, AuthConfig - MQTT url, client id, topic prefix, qos and
//     credentials; Password() resolves from an environment variable
//   - OutputConfig, PinConfig - gpio|log|none and BCM pin assignments
//
// Load(path) reads the YAML file, applies defaults (20ms tick, 64 inbox,
// 16 byte payloads, qos 1, log output, port 8080), then validates required
// fields, enums and the route table invariants: unique channel keys and
// unique slots in 0..5.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after each
// reload so rename-based saves keep being observed.
package config
