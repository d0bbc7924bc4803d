// Package camera implements the frame acquisition core: the lifecycle that
// brings a sensor online, the per-frame pipeline that converts, optionally
// downsamples and streams each frame into host memory, and the publishing
// of the result to the configured sink.
package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"drive-camera-publisher/config"
	"drive-camera-publisher/device"
	"drive-camera-publisher/sink"

	"go.uber.org/zap"
)

// Capture owns one camera sensor and its acquisition loop. The zero value
// is not usable; create with NewCapture and call Initialize before Start.
//
// Exactly two goroutines touch a Capture: the caller (Start/Stop) and the
// acquisition loop it spawns. The device resources are only accessed by
// the caller before the loop starts and after it is joined, so the running
// flag is the single piece of shared state and is atomic.
type Capture struct {
	cfg       config.CameraConfig
	publisher sink.Publisher
	logger    *zap.Logger

	imgCtx   device.ImageContext
	platform device.Platform

	// Device resources, owned between a successful Start and the matching Stop
	sensor      device.Sensor
	rgbaFrame   device.Image
	resized     device.Image
	transformer device.Transformer
	streamer    device.Streamer

	running atomic.Bool
	done    chan struct{}
	mu      sync.Mutex

	stats captureStats
}

// captureStats holds counters shared between the loop and status queries
type captureStats struct {
	published     atomic.Uint64
	timeouts      atomic.Uint64
	notReady      atomic.Uint64
	lastFrameUnix atomic.Int64
}

// NewCapture creates a capture instance for one sensor
func NewCapture(cfg config.CameraConfig, publisher sink.Publisher, logger *zap.Logger) *Capture {
	return &Capture{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
	}
}

// Initialize stores the shared device context and hardware abstraction
// handles used by all later operations. Safe to call again before Start.
func (c *Capture) Initialize(imgCtx device.ImageContext, platform device.Platform) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.imgCtx = imgCtx
	c.platform = platform
	c.running.Store(false)
}

// Start brings the sensor online and spawns the acquisition loop. The
// construction order is sensor, native format query, converted RGBA
// buffer, optional resize stage, cross-domain streamer, capture start.
// On failure at any step, everything allocated so far is released in
// reverse order before the error is returned.
func (c *Capture) Start(params device.SensorParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return fmt.Errorf("capture already running")
	}
	if c.imgCtx == nil || c.platform == nil {
		return fmt.Errorf("capture not initialized")
	}

	// Each allocated resource pushes its release; fail unwinds in reverse.
	var rollback []func()
	fail := func(err error) error {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		c.sensor = nil
		c.rgbaFrame = nil
		c.resized = nil
		c.transformer = nil
		c.streamer = nil
		return err
	}

	sensor, st := c.platform.CreateSensor(params)
	if !st.OK() {
		c.logger.Error("Cannot create sensor",
			zap.String("protocol", params.Protocol),
			zap.String("parameters", params.Parameters),
			zap.String("status", st.Name()))
		return fmt.Errorf("create sensor %s with %s: %w", params.Protocol, params.Parameters, st.Err())
	}
	c.sensor = sensor
	rollback = append(rollback, sensor.Release)

	props, st := sensor.ImageProperties()
	if !st.OK() {
		c.logger.Error("Failed to query sensor image properties", zap.String("status", st.Name()))
		return fail(fmt.Errorf("query image properties: %w", st.Err()))
	}

	// Converted frame holds the native image re-encoded as RGBA8
	props.Format = device.FormatRGBA8
	props.Domain = device.DomainDevice
	rgbaFrame, st := c.imgCtx.CreateImage(props)
	if !st.OK() {
		c.logger.Error("Failed to create RGBA frame buffer", zap.String("status", st.Name()))
		return fail(fmt.Errorf("create rgba frame: %w", st.Err()))
	}
	c.rgbaFrame = rgbaFrame
	rollback = append(rollback, rgbaFrame.Destroy)

	streamProps := props
	if c.cfg.ShrinkFactor > 1.0 {
		transformer, st := c.imgCtx.CreateTransformer(device.TransformParams{IgnoreAspectRatio: false})
		if !st.OK() {
			c.logger.Error("Failed to create image transformer", zap.String("status", st.Name()))
			return fail(fmt.Errorf("create transformer: %w", st.Err()))
		}
		c.transformer = transformer
		rollback = append(rollback, transformer.Release)

		if st := transformer.SetBorderMode(device.BorderZero); !st.OK() {
			return fail(fmt.Errorf("set border mode: %w", st.Err()))
		}
		if st := transformer.SetInterpolationMode(device.InterpolationDefault); !st.OK() {
			return fail(fmt.Errorf("set interpolation mode: %w", st.Err()))
		}

		streamProps.Width = int(float64(props.Width) / c.cfg.ShrinkFactor)
		streamProps.Height = int(float64(props.Height) / c.cfg.ShrinkFactor)
		c.logger.Info("Resize stage enabled",
			zap.Int("width", streamProps.Width),
			zap.Int("height", streamProps.Height),
			zap.Float64("shrink_factor", c.cfg.ShrinkFactor))

		resized, st := c.imgCtx.CreateImage(streamProps)
		if !st.OK() {
			c.logger.Error("Failed to create resized frame buffer", zap.String("status", st.Name()))
			return fail(fmt.Errorf("create resized frame: %w", st.Err()))
		}
		c.resized = resized
		rollback = append(rollback, resized.Destroy)
	}

	streamer, st := c.imgCtx.CreateStreamer(streamProps, device.DomainHost)
	if !st.OK() {
		c.logger.Error("Failed to create cross-domain streamer", zap.String("status", st.Name()))
		return fail(fmt.Errorf("create streamer: %w", st.Err()))
	}
	c.streamer = streamer
	rollback = append(rollback, streamer.Release)

	if st := sensor.Start(); !st.OK() {
		c.logger.Error("Cannot start camera", zap.String("status", st.Name()))
		return fail(fmt.Errorf("start sensor: %w", st.Err()))
	}

	c.stats.published.Store(0)
	c.stats.timeouts.Store(0)
	c.stats.notReady.Store(0)
	c.stats.lastFrameUnix.Store(0)

	c.done = make(chan struct{})
	c.running.Store(true)
	go c.run()

	c.logger.Info("Capture started",
		zap.String("protocol", params.Protocol),
		zap.String("frame_id", c.cfg.FrameID))
	return nil
}

// Stop signals the acquisition loop to exit, joins it, then releases the
// device resources in reverse allocation order. Returns an error if the
// capture is not running.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		c.logger.Warn("Camera sensor not running")
		return fmt.Errorf("capture not running")
	}

	c.running.Store(false)
	<-c.done

	if c.streamer != nil {
		c.streamer.Release()
		c.streamer = nil
	}
	if c.rgbaFrame != nil {
		c.rgbaFrame.Destroy()
		c.rgbaFrame = nil
	}
	if c.resized != nil {
		c.resized.Destroy()
		c.resized = nil
	}
	if c.transformer != nil {
		c.transformer.Release()
		c.transformer = nil
	}
	if c.sensor != nil {
		c.sensor.Stop()
		c.sensor.Release()
		c.sensor = nil
	}

	c.logger.Info("Capture stopped", zap.String("frame_id", c.cfg.FrameID))
	return nil
}

// IsRunning reports whether the acquisition loop is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}

// GetStats returns capture statistics
func (c *Capture) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"running":          c.running.Load(),
		"frames_published": c.stats.published.Load(),
		"read_timeouts":    c.stats.timeouts.Load(),
		"read_not_ready":   c.stats.notReady.Load(),
		"frame_id":         c.cfg.FrameID,
		"shrink_factor":    c.cfg.ShrinkFactor,
	}
	if unix := c.stats.lastFrameUnix.Load(); unix > 0 {
		stats["last_frame_age_ms"] = time.Since(time.Unix(0, unix)).Milliseconds()
	}
	return stats
}
