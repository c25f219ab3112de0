package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/transitbeacon/beacon/device/internal/config"
	"github.com/transitbeacon/beacon/device/internal/router"
)

const disconnectQuiesce = 250 // ms

// Subscriber receives channel messages from an MQTT broker and queues them
// for the engine in arrival order. Connection loss is handled by the client's
// auto-reconnect; subscriptions are renewed on every (re)connect.
type Subscriber struct {
	cfg      config.BrokerConfig
	channels []string
	inbox    chan<- router.Message
	done     <-chan struct{}

	// newClient builds the MQTT client. Injectable for tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// New returns a Subscriber for channels. Messages are sent to inbox, which
// the caller must drain.
func New(cfg config.BrokerConfig, channels []string, inbox chan<- router.Message) *Subscriber {
	return &Subscriber{
		cfg:       cfg,
		channels:  channels,
		inbox:     inbox,
		done:      make(chan struct{}),
		newClient: mqtt.NewClient,
	}
}

// Run connects to the broker, retrying with exponential backoff until the
// first connection succeeds, then blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.done = ctx.Done()

	opts, err := s.options()
	if err != nil {
		return err
	}
	client := s.newClient(opts)

	for attempt := 0; ; attempt++ {
		tok := client.Connect()
		err := waitToken(ctx, tok, s.cfg.ConnectTimeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			// The connect may still complete; stop the client's goroutines.
			client.Disconnect(disconnectQuiesce)
			return nil
		}
		wait := retryDelay(attempt, randomJitter())
		slog.Error("transport: connect failed, will retry",
			"broker", s.cfg.URL, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}

	<-ctx.Done()
	client.Disconnect(disconnectQuiesce)
	slog.Info("transport: disconnected", "broker", s.cfg.URL)
	return nil
}

// Topics returns the topic for each channel key.
func (s *Subscriber) Topics() map[string]byte {
	out := make(map[string]byte, len(s.channels))
	for _, ch := range s.channels {
		out[s.cfg.TopicPrefix+ch] = byte(s.cfg.QoS)
	}
	return out
}

func (s *Subscriber) options() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.URL).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(s.cfg.KeepAlive).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(backoffMax).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("transport: connection lost, reconnecting", "broker", s.cfg.URL, "err", err)
		})

	switch s.cfg.Auth.Mode {
	case "userpass":
		opts.SetUsername(s.cfg.Auth.Username)
		opts.SetPassword(s.cfg.Auth.Password())
	case "mtls":
		tlsCfg, err := buildTLSConfig(s.cfg)
		if err != nil {
			return nil, fmt.Errorf("transport: build mtls config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
		return opts, nil
	}

	if s.cfg.TLS.InsecureSkipVerify {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user-configured
	}
	return opts, nil
}

// onConnect subscribes to every channel. It runs after the first connect and
// after each automatic reconnect.
func (s *Subscriber) onConnect(c mqtt.Client) {
	topics := s.Topics()
	slog.Info("transport: connected, subscribing", "broker", s.cfg.URL, "topics", len(topics))
	tok := c.SubscribeMultiple(topics, s.handle)
	go func() {
		if !tok.WaitTimeout(s.cfg.ConnectTimeout) {
			slog.Error("transport: subscribe timed out", "broker", s.cfg.URL)
			return
		}
		if err := tok.Error(); err != nil {
			slog.Error("transport: subscribe failed", "broker", s.cfg.URL, "err", err)
		}
	}()
}

// handle queues one message. With order-matters set, the client calls it
// sequentially, so blocking on a full inbox applies backpressure without
// reordering.
func (s *Subscriber) handle(_ mqtt.Client, m mqtt.Message) {
	channel, ok := strings.CutPrefix(m.Topic(), s.cfg.TopicPrefix)
	if !ok {
		slog.Warn("transport: message outside topic prefix", "topic", m.Topic())
		return
	}
	payload := append([]byte(nil), m.Payload()...)
	select {
	case s.inbox <- router.Message{Channel: channel, Payload: payload}:
	case <-s.done:
	}
}

// waitToken waits for tok, ctx or the timeout, whichever comes first.
func waitToken(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}

// buildTLSConfig loads the client certificate and optional CA from the
// broker auth config.
func buildTLSConfig(cfg config.BrokerConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", cfg.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
