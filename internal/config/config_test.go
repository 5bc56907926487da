package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.HTTPPort != 80 || cfg.WSPort != 81 {
		t.Errorf("ports = %d/%d, want 80/81", cfg.HTTPPort, cfg.WSPort)
	}
	if cfg.DeviceID != "esp32cam_001" {
		t.Errorf("DeviceID = %q", cfg.DeviceID)
	}
	if cfg.Stream.FrameInterval != 100*time.Millisecond {
		t.Errorf("FrameInterval = %v", cfg.Stream.FrameInterval)
	}
	if cfg.Liveness.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v", cfg.Liveness.Timeout)
	}
	if cfg.Camera.Pins.Reset != -1 || cfg.Camera.Pins.PWDN != 32 {
		t.Errorf("unexpected pins: %+v", cfg.Camera.Pins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
http_port: 8080
device_id: cam_kitchen
stream:
  frame_interval: 250ms
registrar:
  backend: mqtt
  mqtt:
    broker: localhost:1883
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d", cfg.HTTPPort)
	}
	if cfg.WSPort != 81 {
		t.Errorf("WSPort should keep default, got %d", cfg.WSPort)
	}
	if cfg.DeviceID != "cam_kitchen" {
		t.Errorf("DeviceID = %q", cfg.DeviceID)
	}
	if cfg.Stream.FrameInterval != 250*time.Millisecond {
		t.Errorf("FrameInterval = %v", cfg.Stream.FrameInterval)
	}
	if cfg.Registrar.Backend != "mqtt" || cfg.Registrar.MQTT.Broker != "localhost:1883" {
		t.Errorf("registrar = %+v", cfg.Registrar)
	}
	if cfg.Registrar.MQTT.TopicPrefix != "camera-node" {
		t.Errorf("TopicPrefix should keep default, got %q", cfg.Registrar.MQTT.TopicPrefix)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"same ports", "http_port: 81\nws_port: 81\n"},
		{"unknown backend", "registrar:\n  backend: etcd\n"},
		{"empty device", "device_id: \"\"\n"},
		{"zero timeout", "liveness:\n  timeout: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CAMNODE_API_KEY", "key-from-env")
	t.Setenv("CAMNODE_USER_PASSWORD", "pw")

	cfg := GetDefaultConfig()
	cfg.ApplyEnv()

	if cfg.Registrar.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q", cfg.Registrar.APIKey)
	}
	if cfg.Registrar.UserPassword != "pw" {
		t.Errorf("UserPassword = %q", cfg.Registrar.UserPassword)
	}
}
