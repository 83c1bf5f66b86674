package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("ILPRELAY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("ILPRELAY_CONFIG", "/etc/ilprelay/config.yaml")
	if got := getConfigPath(); got != "/etc/ilprelay/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ILPRELAY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want loading config error", err)
	}
}

// TestRun_InvalidTable verifies config validation rejects a bad table name.
func TestRun_InvalidTable(t *testing.T) {
	t.Setenv("ILPRELAY_CONFIG", writeConfig(t, `
relay:
  table: "bad\"table"
`))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "relay.table") {
		t.Fatalf("run() error = %v, want relay.table validation error", err)
	}
}

// TestRun_MQTTUnreachable verifies run fails cleanly when the broker is
// down, after the spool has been created and migrated.
func TestRun_MQTTUnreachable(t *testing.T) {
	spoolPath := filepath.Join(t.TempDir(), "spool", "spool.db")
	t.Setenv("ILPRELAY_CONFIG", writeConfig(t, `
ilp:
  host: "127.0.0.1"
  port: "19998"
  connect_timeout: 1
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "ilprelay-main-test"
spool:
  enabled: true
  path: "`+spoolPath+`"
api:
  enabled: false
logging:
  level: error
  format: text
`))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Fatalf("run() error = %v, want MQTT connection error", err)
	}
	if _, statErr := os.Stat(spoolPath); statErr != nil {
		t.Errorf("spool database not created: %v", statErr)
	}
}

func TestOpenSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")

	db, err := openSpool(context.Background(), config.SpoolConfig{
		Enabled:     true,
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("openSpool() error = %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM spool_batches").Scan(&n); err != nil {
		t.Fatalf("spool_batches not migrated: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh spool has %d batches", n)
	}
}
