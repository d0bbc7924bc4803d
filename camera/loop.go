package camera

import (
	"time"

	"drive-camera-publisher/device"
	"drive-camera-publisher/sink"

	"go.uber.org/zap"
)

// run is the acquisition loop. It executes on a dedicated goroutine until
// the running flag is cleared or a fatal pipeline error occurs. Timeouts
// and not-ready reads are transient and skip the iteration; everything
// else terminates the session, leaving resources allocated for Stop.
func (c *Capture) run() {
	defer close(c.done)

	readTimeout := time.Duration(c.cfg.ReadTimeoutUs) * time.Microsecond

	// Sequence counter scope is the whole session: monotonic, gap-free,
	// incremented only for frames that actually reach the sink.
	var seq uint64
	fatal := ""

	for c.running.Load() {
		frame, st := c.sensor.ReadFrame(readTimeout)
		switch st {
		case device.StatusEndOfStream:
			c.logger.Warn("Camera sensor end of stream reached")
			fatal = "end of stream"
		case device.StatusTimeout:
			c.stats.timeouts.Add(1)
			c.logger.Warn("Camera sensor readFrame timed out")
			continue
		case device.StatusNotReady:
			c.stats.notReady.Add(1)
			c.logger.Warn("Camera sensor not ready")
			continue
		case device.StatusOK:
			if err := c.processFrame(frame, &seq); err != nil {
				c.logger.Error("Frame pipeline failed", zap.Error(err))
				fatal = "pipeline error: " + err.Error()
			}
		default:
			c.logger.Error("Camera sensor readFrame failed", zap.String("status", st.Name()))
			fatal = "read error: " + st.Name()
		}
		if fatal != "" {
			break
		}
	}

	if fatal != "" && c.running.Load() {
		// The stream died underneath a session that was not asked to stop;
		// tell consumers instead of letting them infer it from silence.
		lastSeq := int64(seq) - 1
		c.publisher.PublishStreamClosed(&sink.StreamClosed{
			FrameID: c.cfg.FrameID,
			LastSeq: lastSeq,
			Reason:  fatal,
		})
	}

	c.logger.Info("Acquisition loop exited", zap.Uint64("frames_published", seq))
}

// processFrame drives one frame through conversion, optional resize, the
// cross-domain streamer round-trip and publication. The frame is returned
// to the sensor exactly once on every path out of this function.
func (c *Capture) processFrame(frame device.Frame, seq *uint64) error {
	returned := false
	defer func() {
		if !returned {
			if st := frame.Return(); !st.OK() {
				c.logger.Error("Failed to return frame", zap.String("status", st.Name()))
			}
		}
	}()

	nativeImg, st := frame.Image()
	if !st.OK() {
		return st.Err()
	}

	// Device clock value travels with the native image; read it before the
	// frame goes back to the sensor ring.
	timestamp, st := nativeImg.Timestamp()
	if !st.OK() {
		return st.Err()
	}

	if st := c.imgCtx.ConvertImage(c.rgbaFrame, nativeImg); !st.OK() {
		return st.Err()
	}

	streamed := c.rgbaFrame
	if c.resized != nil {
		// The transform outcome is checked directly; a silent resize
		// failure would publish a stale buffer.
		if st := c.transformer.CopyFullImage(c.resized, c.rgbaFrame); !st.OK() {
			return st.Err()
		}
		streamed = c.resized
	}

	recvTimeout := time.Duration(c.cfg.ReceiveTimeoutMs) * time.Millisecond

	if st := c.streamer.ProducerSend(streamed); !st.OK() {
		return st.Err()
	}

	hostImg, st := c.streamer.ConsumerReceive(recvTimeout)
	if !st.OK() {
		return st.Err()
	}

	props, st := hostImg.Properties()
	if !st.OK() {
		return st.Err()
	}

	pixels, st := hostImg.HostData()
	if !st.OK() {
		return st.Err()
	}

	msg := &sink.ImageMessage{
		Seq:           *seq,
		TimestampSec:  timestamp / 1000000,
		TimestampNsec: (timestamp % 1000000) * 1000,
		FrameID:       c.cfg.FrameID,
		Width:         props.Width,
		Height:        props.Height,
		Step:          4 * props.Width,
		// The host buffer goes back to the streamer below; the message
		// needs its own copy.
		Data: append([]byte(nil), pixels...),
	}

	// Both returns must run even though the buffers are no longer used
	// this cycle, or the streamer slot stays occupied for the next send.
	if st := c.streamer.ConsumerReturn(hostImg); !st.OK() {
		return st.Err()
	}
	if st := c.streamer.ProducerReturn(recvTimeout); !st.OK() {
		return st.Err()
	}

	returned = true
	if st := frame.Return(); !st.OK() {
		c.logger.Error("Failed to return frame", zap.String("status", st.Name()))
	}

	c.publisher.Publish(msg)
	*seq++
	c.stats.published.Add(1)
	c.stats.lastFrameUnix.Store(time.Now().UnixNano())

	return nil
}
