package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig with missing file should use defaults, got error: %v", err)
	}

	if cfg.Camera.Protocol != "camera.virtual" {
		t.Errorf("default protocol = %q", cfg.Camera.Protocol)
	}
	if cfg.Camera.ShrinkFactor != 1.0 {
		t.Errorf("default shrink factor = %f", cfg.Camera.ShrinkFactor)
	}
	if cfg.Camera.ReadTimeoutUs != 33333 {
		t.Errorf("default read timeout = %d", cfg.Camera.ReadTimeoutUs)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("default broker = %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic != "sensors/camera/image" {
		t.Errorf("default topic = %q", cfg.MQTT.Topic)
	}
	if cfg.Server.WebPort != 8080 {
		t.Errorf("default web port = %d", cfg.Server.WebPort)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
[camera]
protocol = "camera.gmsl"
parameters = "camera-group=a,camera-index=0"
frame_id = "front_center"
shrink_factor = 2.0

[mqtt]
broker = "tcp://broker.example.com:1883"
qos = 1
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Camera.Protocol != "camera.gmsl" {
		t.Errorf("protocol = %q", cfg.Camera.Protocol)
	}
	if cfg.Camera.FrameID != "front_center" {
		t.Errorf("frame_id = %q", cfg.Camera.FrameID)
	}
	if cfg.Camera.ShrinkFactor != 2.0 {
		t.Errorf("shrink_factor = %f", cfg.Camera.ShrinkFactor)
	}
	if cfg.MQTT.Broker != "tcp://broker.example.com:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("qos = %d", cfg.MQTT.QoS)
	}

	// Fields absent from the file keep their defaults
	if cfg.Camera.ReadTimeoutUs != 33333 {
		t.Errorf("read_timeout_us should keep default, got %d", cfg.Camera.ReadTimeoutUs)
	}
	if cfg.MQTT.Topic != "sensors/camera/image" {
		t.Errorf("topic should keep default, got %q", cfg.MQTT.Topic)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig should fail on malformed TOML")
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "negative shrink factor",
			content: `
[camera]
shrink_factor = -1.0
`,
		},
		{
			name: "qos out of range",
			content: `
[mqtt]
qos = 5
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("LoadConfig should reject the value")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Camera.FrameID = "rear_left"
	cfg.MQTT.Topic = "sensors/rear_left/image"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save failed: %v", err)
	}
	if loaded.Camera.FrameID != "rear_left" {
		t.Errorf("frame_id = %q after round trip", loaded.Camera.FrameID)
	}
	if loaded.MQTT.Topic != "sensors/rear_left/image" {
		t.Errorf("topic = %q after round trip", loaded.MQTT.Topic)
	}
}
