package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration for tests.
// Broker-backed tests live in integration_test.go.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "ilprelay-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999 // Nothing listens here

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for unreachable broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_Disconnected(t *testing.T) {
	c := disconnectedClient()

	if c.IsConnected() {
		t.Error("IsConnected() = true for client without connection")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := disconnectedClient().HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"qos too high", "a/b", 3, noop, ErrInvalidQoS},
		{"nil handler", "a/b", 1, nil, ErrSubscribeFailed},
		{"not connected", "a/b", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"qos too high", "a/b", []byte("x"), 5, ErrInvalidQoS},
		{"payload too large", "a/b", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error {
		panic("boom")
	}, "graylogic/state/knx/1/2/3", nil)

	if len(logger.errors) != 1 || logger.errors[0] != "MQTT handler panic recovered" {
		t.Errorf("logged errors = %v, want one panic entry", logger.errors)
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var gotTopic string
	var gotPayload []byte
	c.dispatch(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, payload
		return errors.New("bad payload")
	}, "t/1", []byte("{}"))

	if gotTopic != "t/1" || string(gotPayload) != "{}" {
		t.Errorf("handler got (%q, %q)", gotTopic, gotPayload)
	}
	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %v, want one", logger.warns)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := disconnectedClient()
	// Must not panic without a logger.
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("x") }, "t", nil)
}

func TestHandleDisconnect_InvokesCallback(t *testing.T) {
	c := disconnectedClient()
	c.connected = true
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("connection reset")
	c.handleDisconnect(lost)

	if !errors.Is(got, lost) {
		t.Errorf("onDisconnect got %v, want %v", got, lost)
	}
	if c.connected {
		t.Error("connected flag still set after disconnect")
	}
	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %v, want one", logger.warns)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "relay"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "ilprelay-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "relay" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if !strings.HasPrefix(opts.Servers[0].String(), "ssl://") {
		t.Errorf("TLS server = %v, want ssl scheme", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "ilprelay-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "graylogic/ilprelay/ilprelay-test/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if p.Status != statusOffline || p.Reason != "unexpected_disconnect" || p.ClientID != "ilprelay-test" {
		t.Errorf("will payload = %+v", p)
	}
}
