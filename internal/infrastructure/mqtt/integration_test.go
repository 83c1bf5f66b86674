//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ilprelay-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_StateRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ilprelay-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var (
		mu       sync.Mutex
		received []string
		done     = make(chan struct{}, 1)
	)
	err = client.Subscribe(Topics{}.AllDeviceStates(), 1, func(topic string, _ []byte) error {
		mu.Lock()
		received = append(received, topic)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}

	topic := Topics{}.DeviceState("knx", "light-int-test")
	if err := client.Publish(topic, []byte(`{"state":{"on":true}}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no message received within 5s")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != topic {
		t.Errorf("received = %v, want [%s]", received, topic)
	}

	if err := client.Unsubscribe(Topics{}.AllDeviceStates()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after unsubscribe", client.SubscriptionCount())
	}
}
