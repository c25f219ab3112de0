package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTickInterval   = 20 * time.Millisecond
	DefaultInboxSize      = 64
	DefaultMaxPayload     = 16
	DefaultLogLevel       = "info"
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultQoS            = 1
	DefaultOutputMode     = "log"
	DefaultHTTPPort       = 8080
	DefaultWSInterval     = 1 * time.Second

	// SlotCount is the number of display slots in one cycle. Route slots
	// must fall in [0, SlotCount).
	SlotCount = 6

	// MinPin and MaxPin bound the BCM numbers of the 40-pin header GPIOs an
	// indicator may use. BCM 0 and 1 are reserved for the HAT ID EEPROM.
	MinPin = 2
	MaxPin = 27
)

// Config is the top-level configuration parsed from beacon.yaml.
type Config struct {
	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig holds all device-side settings.
type DeviceConfig struct {
	// Name identifies this device in logs and the diagnostics API.
	Name string `yaml:"name"`

	// TickInterval is the render cadence. It must be well under the shortest
	// blink half-period (90ms) for blinking to look even.
	TickInterval time.Duration `yaml:"tick_interval"`

	// InboxSize bounds the queue between the transport and the engine loop.
	InboxSize int `yaml:"inbox_size"`

	// MaxPayload is the number of payload bytes kept before decoding; longer
	// payloads are truncated.
	MaxPayload int `yaml:"max_payload"`

	// StaleAfter blanks a route whose ETA has not been refreshed for this
	// long. Zero keeps the last value forever.
	StaleAfter time.Duration `yaml:"stale_after"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Channels    ChannelsConfig    `yaml:"channels"`
	Routes      []Route           `yaml:"routes"`
	Broker      BrokerConfig      `yaml:"broker"`
	Output      OutputConfig      `yaml:"output"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ChannelsConfig names the two control channels.
type ChannelsConfig struct {
	Enable string `yaml:"enable"`
	Alert  string `yaml:"alert"`
}

// Route describes one transit line/direction shown on the panel.
type Route struct {
	Name     string `yaml:"name"`
	Channel  string `yaml:"channel"`
	Category string `yaml:"category"` // bus | rail
	Color    string `yaml:"color"`    // red | green | blue | yellow | white
	Arrow    string `yaml:"arrow"`    // left | right
	Slot     int    `yaml:"slot"`
}

// BrokerConfig describes the MQTT broker connection.
type BrokerConfig struct {
	// URL is the broker address, e.g. tcp://io.adafruit.com:1883 or
	// ssl://io.adafruit.com:8883.
	URL string `yaml:"url"`

	ClientID string `yaml:"client_id"`

	// TopicPrefix is prepended to every channel key to form the topic,
	// e.g. "myuser/feeds/".
	TopicPrefix string `yaml:"topic_prefix"`

	QoS            int           `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how the device authenticates to the broker.
type AuthConfig struct {
	// Mode is one of: userpass | mtls | none.
	Mode string `yaml:"mode"`

	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the
	// password or API key.
	PasswordEnv string `yaml:"password_env"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Password returns the broker password resolved from the environment.
// Returns empty string if PasswordEnv is unset or the variable is not found.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds broker TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for brokers with a private CA during development.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// OutputConfig selects and configures the indicator output.
type OutputConfig struct {
	// Mode is one of: gpio | log | none.
	Mode string    `yaml:"mode"`
	Pins PinConfig `yaml:"pins"`
}

// PinConfig maps indicators to BCM GPIO pin numbers.
type PinConfig struct {
	Colors map[string]int `yaml:"colors"`
	Arrows map[string]int `yaml:"arrows"`
	Status int            `yaml:"status"`
}

// DiagnosticsConfig configures the local read-only HTTP API.
type DiagnosticsConfig struct {
	// HTTPPort is the port the diagnostics API listens on. 0 disables it.
	HTTPPort int `yaml:"http_port"`

	// WSInterval is how often the panel mirror broadcasts the current frame.
	WSInterval time.Duration `yaml:"ws_interval"`
}

// Valid enumerations shared with the registry and output packages.
var (
	Categories = []string{"bus", "rail"}
	Colors     = []string{"red", "green", "blue", "yellow", "white"}
	Arrows     = []string{"left", "right"}
)

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			TickInterval: DefaultTickInterval,
			InboxSize:    DefaultInboxSize,
			MaxPayload:   DefaultMaxPayload,
			LogLevel:     DefaultLogLevel,
			Broker: BrokerConfig{
				QoS:            DefaultQoS,
				KeepAlive:      DefaultKeepAlive,
				ConnectTimeout: DefaultConnectTimeout,
			},
			Output: OutputConfig{Mode: DefaultOutputMode},
			Diagnostics: DiagnosticsConfig{
				HTTPPort:   DefaultHTTPPort,
				WSInterval: DefaultWSInterval,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	d := &cfg.Device
	if d.TickInterval <= 0 {
		return fmt.Errorf("device.tick_interval must be positive")
	}
	if d.InboxSize <= 0 {
		return fmt.Errorf("device.inbox_size must be positive")
	}
	if d.MaxPayload <= 0 {
		return fmt.Errorf("device.max_payload must be positive")
	}
	if d.StaleAfter < 0 {
		return fmt.Errorf("device.stale_after must not be negative")
	}
	switch d.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("device.log_level: unknown level %q", d.LogLevel)
	}

	if d.Channels.Enable == "" {
		return fmt.Errorf("device.channels.enable is required")
	}
	if d.Channels.Alert == "" {
		return fmt.Errorf("device.channels.alert is required")
	}
	if d.Channels.Enable == d.Channels.Alert {
		return fmt.Errorf("device.channels: enable and alert must differ")
	}

	if len(d.Routes) > SlotCount {
		return fmt.Errorf("device.routes: at most %d routes, got %d", SlotCount, len(d.Routes))
	}
	channels := map[string]bool{d.Channels.Enable: true, d.Channels.Alert: true}
	slots := make(map[int]string, len(d.Routes))
	for i, r := range d.Routes {
		if r.Name == "" {
			return fmt.Errorf("routes[%d]: name is required", i)
		}
		if r.Channel == "" {
			return fmt.Errorf("routes[%d] %q: channel is required", i, r.Name)
		}
		if channels[r.Channel] {
			return fmt.Errorf("routes[%d] %q: channel %q already in use", i, r.Name, r.Channel)
		}
		channels[r.Channel] = true
		if r.Slot < 0 || r.Slot >= SlotCount {
			return fmt.Errorf("routes[%d] %q: slot %d out of range 0..%d", i, r.Name, r.Slot, SlotCount-1)
		}
		if other, ok := slots[r.Slot]; ok {
			return fmt.Errorf("routes[%d] %q: slot %d already used by %q", i, r.Name, r.Slot, other)
		}
		slots[r.Slot] = r.Name
		if !oneOf(r.Category, Categories) {
			return fmt.Errorf("routes[%d] %q: unknown category %q", i, r.Name, r.Category)
		}
		if !oneOf(r.Color, Colors) {
			return fmt.Errorf("routes[%d] %q: unknown color %q", i, r.Name, r.Color)
		}
		if !oneOf(r.Arrow, Arrows) {
			return fmt.Errorf("routes[%d] %q: unknown arrow %q", i, r.Name, r.Arrow)
		}
	}

	b := &d.Broker
	if b.URL == "" {
		return fmt.Errorf("device.broker.url is required")
	}
	if b.QoS < 0 || b.QoS > 2 {
		return fmt.Errorf("device.broker.qos must be 0, 1 or 2")
	}
	if b.KeepAlive <= 0 {
		return fmt.Errorf("device.broker.keep_alive must be positive")
	}
	if b.ConnectTimeout <= 0 {
		return fmt.Errorf("device.broker.connect_timeout must be positive")
	}
	switch b.Auth.Mode {
	case "userpass", "mtls", "none", "":
	default:
		return fmt.Errorf("device.broker.auth: unknown mode %q", b.Auth.Mode)
	}
	if b.Auth.Mode == "mtls" && (b.Auth.CertFile == "" || b.Auth.KeyFile == "") {
		return fmt.Errorf("device.broker.auth: mtls requires cert_file and key_file")
	}

	switch d.Output.Mode {
	case "gpio":
		if err := ValidatePins(d.Output.Pins); err != nil {
			return fmt.Errorf("device.output.pins: %w", err)
		}
		for i, r := range d.Routes {
			if _, ok := d.Output.Pins.Colors[r.Color]; !ok {
				return fmt.Errorf("routes[%d] %q: no pin for color %q", i, r.Name, r.Color)
			}
			if _, ok := d.Output.Pins.Arrows[r.Arrow]; !ok {
				return fmt.Errorf("routes[%d] %q: no pin for arrow %q", i, r.Name, r.Arrow)
			}
		}
	case "log", "none":
	default:
		return fmt.Errorf("device.output: unknown mode %q", d.Output.Mode)
	}

	if d.Diagnostics.HTTPPort < 0 || d.Diagnostics.HTTPPort > 65535 {
		return fmt.Errorf("device.diagnostics.http_port out of range")
	}
	if d.Diagnostics.WSInterval <= 0 {
		return fmt.Errorf("device.diagnostics.ws_interval must be positive")
	}
	return nil
}

// ValidatePins checks pin names, that every pin is a usable header GPIO
// and that no pin is assigned twice.
func ValidatePins(p PinConfig) error {
	used := make(map[int]string)
	claim := func(pin int, what string) error {
		if pin < MinPin || pin > MaxPin {
			return fmt.Errorf("%s: pin %d outside BCM %d..%d", what, pin, MinPin, MaxPin)
		}
		if other, ok := used[pin]; ok {
			return fmt.Errorf("%s: pin %d already assigned to %s", what, pin, other)
		}
		used[pin] = what
		return nil
	}
	for c, pin := range p.Colors {
		if !oneOf(c, Colors) {
			return fmt.Errorf("unknown color %q", c)
		}
		if err := claim(pin, "color "+c); err != nil {
			return err
		}
	}
	for a, pin := range p.Arrows {
		if !oneOf(a, Arrows) {
			return fmt.Errorf("unknown arrow %q", a)
		}
		if err := claim(pin, "arrow "+a); err != nil {
			return err
		}
	}
	return claim(p.Status, "status")
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
