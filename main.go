package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"drive-camera-publisher/camera"
	"drive-camera-publisher/config"
	"drive-camera-publisher/device"
	"drive-camera-publisher/device/sim"
	"drive-camera-publisher/sink"
	"drive-camera-publisher/web"
)

const (
	DefaultConfigPath = "config.toml"
	AppName           = "Drive Camera Publisher"
	AppVersion        = "1.0.0"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger

	// Components
	capture    *camera.Capture
	mqttSink   *sink.MQTTPublisher
	previewHub *web.PreviewHub
	webServer  *web.Server
}

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", DefaultConfigPath, "Path to configuration file")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		version    = flag.Bool("version", false, "Show version information")
		help       = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if *help {
		fmt.Printf("%s v%s\n\n", AppName, AppVersion)
		fmt.Println("Publishes camera frames as raw RGBA images to an MQTT message bus")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// Create logger
	logger, err := createLogger(*logLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Drive Camera Publisher",
		zap.String("version", AppVersion),
		zap.String("go_version", runtime.Version()),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("protocol", cfg.Camera.Protocol),
		zap.String("frame_id", cfg.Camera.FrameID),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Int("web_port", cfg.Server.WebPort))

	// Create application
	app := NewApplication(cfg, logger)

	// Set up signal handling
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		logger.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	sig := <-signalCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(app.config.Timeouts.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config, logger *zap.Logger) *Application {
	return &Application{
		config: cfg,
		logger: logger,
	}
}

// Start starts all application components
func (a *Application) Start() error {
	a.logger.Info("Starting application components")

	// Message-bus sink
	a.mqttSink = sink.NewMQTTPublisher(a.config.MQTT, a.logger)
	if err := a.mqttSink.Connect(); err != nil {
		// The broker may come up later; auto-reconnect covers it
		a.logger.Warn("MQTT broker not reachable at startup", zap.Error(err))
	}

	// Preview tap
	a.previewHub = web.NewPreviewHub(a.config.Buffers.PreviewChannelSize, a.logger)

	// Capture core, publishing to both sinks
	publisher := sink.NewMulti(a.mqttSink, a.previewHub)
	a.capture = camera.NewCapture(a.config.Camera, publisher, a.logger)

	platform := a.createPlatform()
	a.capture.Initialize(platform, platform)

	// Status/preview server
	a.webServer = web.NewServer(a.config, a.logger)
	a.webServer.SetCapture(a.capture)
	a.webServer.SetPreviewHub(a.previewHub)
	if err := a.webServer.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	// Bring the sensor online
	params := device.SensorParams{
		Protocol:   a.config.Camera.Protocol,
		Parameters: a.config.Camera.Parameters,
	}
	if err := a.capture.Start(params); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	a.logger.Info("Application started successfully",
		zap.String("status_url", fmt.Sprintf("http://%s:%d/api/status", a.config.Server.BindIP, a.config.Server.WebPort)),
		zap.String("preview_url", fmt.Sprintf("ws://%s:%d/ws/preview", a.config.Server.BindIP, a.config.Server.WebPort)))

	return nil
}

// createPlatform selects the device backend. The virtual protocol runs on
// the built-in simulator; a vendor SDK binding would slot in here.
func (a *Application) createPlatform() *sim.Platform {
	return sim.NewPlatform(a.logger)
}

// Stop gracefully stops all application components
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("Stopping application")

	done := make(chan struct{})
	go func() {
		defer close(done)

		if a.capture != nil && a.capture.IsRunning() {
			if err := a.capture.Stop(); err != nil {
				a.logger.Error("Error stopping capture", zap.Error(err))
			}
		}

		if a.webServer != nil {
			if err := a.webServer.Stop(); err != nil {
				a.logger.Error("Error stopping web server", zap.Error(err))
			}
		}

		if a.previewHub != nil {
			a.previewHub.Close()
		}

		if a.mqttSink != nil {
			a.mqttSink.Disconnect()
		}
	}()

	select {
	case <-done:
		a.logger.Info("All components stopped gracefully")
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout reached, forcing exit")
	}

	return nil
}

// createLogger creates a structured logger
func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	// Prepare log directory and file path
	const logDir = "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	ts := time.Now().Format("20060102-150405")
	logFile := filepath.Join(logDir, fmt.Sprintf("drive-camera-publisher-%s.log", ts))

	// Clean up old logs (keep last 20 files)
	files, _ := filepath.Glob(filepath.Join(logDir, "drive-camera-publisher-*.log"))
	if len(files) > 20 {
		sort.Strings(files) // lexicographic order matches timestamp
		for _, f := range files[:len(files)-20] {
			_ = os.Remove(f)
		}
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout", logFile},
		ErrorOutputPaths: []string{"stderr", logFile},
	}

	return config.Build()
}
