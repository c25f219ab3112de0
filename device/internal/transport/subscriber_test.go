package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/transitbeacon/beacon/device/internal/config"
	"github.com/transitbeacon/beacon/device/internal/router"
)

// fakeMessage implements mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeToken implements mqtt.Token, completed on creation.
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

// pendingToken returns a token that never completes.
func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient implements the parts of mqtt.Client the subscriber uses.
// Calling anything else panics on the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu          sync.Mutex
	connectErr  error
	hang        bool // Connect returns a token that never completes
	connects    int
	disconnects int
	subscribed  map[string]byte
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.hang {
		return pendingToken()
	}
	return doneToken(c.connectErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.subscribed = filters
	c.mu.Unlock()
	return doneToken(nil)
}

func (c *fakeClient) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.disconnects
}

func testBroker() config.BrokerConfig {
	return config.BrokerConfig{
		URL:            "tcp://127.0.0.1:1883",
		ClientID:       "beacon-test",
		TopicPrefix:    "user/feeds/",
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: time.Second,
	}
}

func TestTopics(t *testing.T) {
	s := New(testBroker(), []string{"enable", "alert", "R77"}, nil)
	topics := s.Topics()
	for _, want := range []string{"user/feeds/enable", "user/feeds/alert", "user/feeds/R77"} {
		qos, ok := topics[want]
		if !ok {
			t.Errorf("missing topic %q in %v", want, topics)
			continue
		}
		if qos != 1 {
			t.Errorf("topic %q qos = %d, want 1", want, qos)
		}
	}
}

func TestHandle_StripsPrefixAndQueues(t *testing.T) {
	inbox := make(chan router.Message, 2)
	s := New(testBroker(), []string{"R77"}, inbox)

	payload := []byte("240")
	s.handle(nil, &fakeMessage{topic: "user/feeds/R77", payload: payload})
	payload[0] = '9' // the queued message must not alias the client buffer

	select {
	case m := <-inbox:
		if m.Channel != "R77" {
			t.Errorf("Channel = %q, want R77", m.Channel)
		}
		if string(m.Payload) != "240" {
			t.Errorf("Payload = %q, want 240", m.Payload)
		}
	default:
		t.Fatal("no message queued")
	}
}

func TestHandle_IgnoresForeignTopic(t *testing.T) {
	inbox := make(chan router.Message, 1)
	s := New(testBroker(), []string{"R77"}, inbox)
	s.handle(nil, &fakeMessage{topic: "other/feeds/R77", payload: []byte("1")})
	if len(inbox) != 0 {
		t.Errorf("queued %d messages for a foreign topic, want 0", len(inbox))
	}
}

func TestHandle_PreservesOrder(t *testing.T) {
	inbox := make(chan router.Message, 8)
	s := New(testBroker(), []string{"R77"}, inbox)
	for _, p := range []string{"1", "2", "3", "4"} {
		s.handle(nil, &fakeMessage{topic: "user/feeds/R77", payload: []byte(p)})
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		if m := <-inbox; string(m.Payload) != want {
			t.Fatalf("payload %q, want %q", m.Payload, want)
		}
	}
}

func TestHandle_UnblocksOnShutdown(t *testing.T) {
	inbox := make(chan router.Message) // never drained
	s := New(testBroker(), []string{"R77"}, inbox)
	done := make(chan struct{})
	s.done = done

	returned := make(chan struct{})
	go func() {
		s.handle(nil, &fakeMessage{topic: "user/feeds/R77", payload: []byte("5")})
		close(returned)
	}()
	close(done)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("handle blocked after shutdown")
	}
}

func TestOptions_UserPass(t *testing.T) {
	t.Setenv("BEACON_TEST_AIO_KEY", "aio_key")
	cfg := testBroker()
	cfg.Auth = config.AuthConfig{Mode: "userpass", Username: "me", PasswordEnv: "BEACON_TEST_AIO_KEY"}
	opts, err := New(cfg, nil, nil).options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Username != "me" || opts.Password != "aio_key" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.ClientID != "beacon-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if !opts.Order {
		t.Error("Order = false, want ordered delivery")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}

func TestOptions_MTLSMissingCert(t *testing.T) {
	cfg := testBroker()
	cfg.Auth = config.AuthConfig{Mode: "mtls", CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	if _, err := New(cfg, nil, nil).options(); err == nil {
		t.Fatal("expected error for missing client cert, got nil")
	}
}

func TestRun_ConnectsAndDisconnects(t *testing.T) {
	fc := &fakeClient{}
	s := New(testBroker(), []string{"R77"}, make(chan router.Message))
	s.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if c, _ := fc.counts(); c == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Connect not called")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, d := fc.counts(); d != 1 {
		t.Errorf("Disconnect called %d times, want 1", d)
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("connection refused")}
	s := New(testBroker(), []string{"R77"}, make(chan router.Message))
	s.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Run did not return promptly after cancel")
	}
	if c, d := fc.counts(); c != 1 || d != 0 {
		t.Errorf("connects=%d disconnects=%d, want 1/0", c, d)
	}
}

func TestRun_CancelDuringConnectDisconnects(t *testing.T) {
	fc := &fakeClient{hang: true}
	s := New(testBroker(), []string{"R77"}, make(chan router.Message))
	s.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c, d := fc.counts(); c != 1 || d != 1 {
		t.Errorf("connects=%d disconnects=%d, want 1/1", c, d)
	}
}

func TestOnConnect_Subscribes(t *testing.T) {
	fc := &fakeClient{}
	s := New(testBroker(), []string{"enable", "R77"}, nil)
	s.onConnect(fc)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.subscribed) != 2 {
		t.Errorf("subscribed = %v, want 2 topics", fc.subscribed)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{3, 0, 8 * time.Second},
		{6, 0, backoffMax},
		{100, 0, backoffMax},
		{0, 1, 1250 * time.Millisecond},
		{0, -1, 750 * time.Millisecond},
		{10, 0.5, backoffMax + backoffMax/8},
	}
	for _, tc := range tests {
		if got := retryDelay(tc.attempt, tc.jitter); got != tc.want {
			t.Errorf("retryDelay(%d, %v) = %v, want %v", tc.attempt, tc.jitter, got, tc.want)
		}
	}
}

func TestRandomJitter_InRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if j := randomJitter(); j < -1 || j >= 1 {
			t.Fatalf("randomJitter() = %v, want [-1, 1)", j)
		}
	}
}
