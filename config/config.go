package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	Camera   CameraConfig  `toml:"camera" json:"camera"`
	MQTT     MQTTConfig    `toml:"mqtt" json:"mqtt"`
	Server   ServerConfig  `toml:"server" json:"server"`
	Buffers  BufferConfig  `toml:"buffers" json:"buffers"`
	Timeouts TimeoutConfig `toml:"timeouts" json:"timeouts"`
	Logging  LoggingConfig `toml:"logging" json:"logging"`
}

// CameraConfig holds sensor connection and pipeline settings
type CameraConfig struct {
	// Protocol identifies the sensor driver, e.g. "camera.gmsl" or "camera.virtual"
	Protocol string `toml:"protocol" json:"protocol"`
	// Parameters is the driver-specific parameter string, e.g. "camera-group=a,camera-index=0"
	Parameters string `toml:"parameters" json:"parameters"`
	// FrameID tags every published message
	FrameID string `toml:"frame_id" json:"frame_id"`
	// ShrinkFactor divides both output dimensions; <= 1.0 disables resizing
	ShrinkFactor float64 `toml:"shrink_factor" json:"shrink_factor"`
	// ReadTimeoutUs bounds the blocking frame read (one frame interval at ~30 fps)
	ReadTimeoutUs int `toml:"read_timeout_us" json:"read_timeout_us"`
	// ReceiveTimeoutMs bounds the streamer consumer receive
	ReceiveTimeoutMs int `toml:"receive_timeout_ms" json:"receive_timeout_ms"`
}

// MQTTConfig holds message-bus sink settings
type MQTTConfig struct {
	Broker           string `toml:"broker" json:"broker"`
	Topic            string `toml:"topic" json:"topic"`
	ClientID         string `toml:"client_id" json:"client_id"`
	Username         string `toml:"username" json:"username"`
	Password         string `toml:"password" json:"password"`
	QoS              int    `toml:"qos" json:"qos"`
	Retain           bool   `toml:"retain" json:"retain"`
	ConnectTimeoutMs int    `toml:"connect_timeout_ms" json:"connect_timeout_ms"`
	PublishTimeoutMs int    `toml:"publish_timeout_ms" json:"publish_timeout_ms"`
}

// ServerConfig holds status/preview web server settings
type ServerConfig struct {
	WebPort int    `toml:"web_port" json:"web_port"`
	BindIP  string `toml:"bind_ip" json:"bind_ip"`
}

// BufferConfig holds buffer size settings for channels
type BufferConfig struct {
	PreviewChannelSize int `toml:"preview_channel_size" json:"preview_channel_size"`
}

// TimeoutConfig holds timeout and delay settings
type TimeoutConfig struct {
	ShutdownTimeout     int `toml:"shutdown_timeout_seconds" json:"shutdown_timeout_seconds"`
	HTTPShutdownTimeout int `toml:"http_shutdown_timeout_seconds" json:"http_shutdown_timeout_seconds"`
}

// LoggingConfig holds logging interval settings
type LoggingConfig struct {
	FrameLogInterval int `toml:"frame_log_interval" json:"frame_log_interval"`
	MaxLogFiles      int `toml:"max_log_files" json:"max_log_files"`
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Set default values
	config := &Config{
		Camera: CameraConfig{
			Protocol:         "camera.virtual",
			Parameters:       "width=1280,height=720,fps=30",
			FrameID:          "camera",
			ShrinkFactor:     1.0,
			ReadTimeoutUs:    33333,
			ReceiveTimeoutMs: 33,
		},
		MQTT: MQTTConfig{
			Broker:           "tcp://localhost:1883",
			Topic:            "sensors/camera/image",
			ClientID:         "drive-camera-publisher",
			QoS:              0,
			Retain:           false,
			ConnectTimeoutMs: 30000,
			PublishTimeoutMs: 10000,
		},
		Server: ServerConfig{
			WebPort: 8080,
			BindIP:  "0.0.0.0",
		},
		Buffers: BufferConfig{
			PreviewChannelSize: 4,
		},
		Timeouts: TimeoutConfig{
			ShutdownTimeout:     30,
			HTTPShutdownTimeout: 5,
		},
		Logging: LoggingConfig{
			FrameLogInterval: 30,
			MaxLogFiles:      20,
		},
	}

	// Load from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		logger.Info("Config loaded from file", zap.String("path", configPath))
	} else {
		logger.Info("Config file not found, using defaults", zap.String("path", configPath))
	}

	if config.Camera.ShrinkFactor <= 0 {
		return nil, fmt.Errorf("camera.shrink_factor must be positive, got %f", config.Camera.ShrinkFactor)
	}
	if config.MQTT.QoS < 0 || config.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", config.MQTT.QoS)
	}

	return config, nil
}

// SaveConfig saves the current configuration to a file
func SaveConfig(config *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
