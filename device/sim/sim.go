// Package sim implements the device capability set in pure Go. It backs the
// "camera.virtual" protocol with a paced test-pattern sensor so the service
// can run and be tested without vendor hardware. Both memory domains are
// plain Go slices; the streamer still enforces the single-slot discipline
// so misuse shows up in development rather than on the target.
package sim

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"drive-camera-publisher/device"

	"go.uber.org/zap"
)

// frameRingSize mirrors the small internal frame pool of a real sensor
// driver; unreturned frames exhaust it.
const frameRingSize = 8

// Platform is a simulated hardware abstraction layer plus image context
type Platform struct {
	logger *zap.Logger
}

// NewPlatform creates a simulated platform
func NewPlatform(logger *zap.Logger) *Platform {
	return &Platform{logger: logger}
}

// CreateSensor opens a virtual sensor. Only the "camera.virtual" protocol
// is recognized; the parameter string accepts width, height, fps and an
// optional frame-limit, e.g. "width=1280,height=720,fps=30,frame-limit=100".
func (p *Platform) CreateSensor(params device.SensorParams) (device.Sensor, device.Status) {
	if params.Protocol != "camera.virtual" {
		p.logger.Error("Unsupported sensor protocol", zap.String("protocol", params.Protocol))
		return nil, device.StatusInvalidArgument
	}

	s := &sensor{
		logger:     p.logger,
		width:      1280,
		height:     720,
		fps:        30,
		frameLimit: -1,
	}

	for _, kv := range strings.Split(params.Parameters, ",") {
		if kv = strings.TrimSpace(kv); kv == "" {
			continue
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, device.StatusInvalidArgument
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, device.StatusInvalidArgument
		}
		switch key {
		case "width":
			s.width = n
		case "height":
			s.height = n
		case "fps":
			s.fps = n
		case "frame-limit":
			s.frameLimit = n
		default:
			return nil, device.StatusInvalidArgument
		}
	}

	if s.width <= 0 || s.height <= 0 || s.fps <= 0 {
		return nil, device.StatusInvalidArgument
	}

	p.logger.Info("Virtual sensor created",
		zap.Int("width", s.width),
		zap.Int("height", s.height),
		zap.Int("fps", s.fps))

	return s, device.StatusOK
}

// CreateImage allocates a simulated image buffer
func (p *Platform) CreateImage(props device.ImageProperties) (device.Image, device.Status) {
	if props.Width <= 0 || props.Height <= 0 {
		return nil, device.StatusInvalidArgument
	}
	return newImage(props), device.StatusOK
}

// ConvertImage converts a YUV420 source into an RGBA8 destination, or
// copies between same-format images. Both must be device resident.
func (p *Platform) ConvertImage(dst, src device.Image) device.Status {
	d, okd := dst.(*image)
	s, oks := src.(*image)
	if !okd || !oks || d.destroyed || s.destroyed {
		return device.StatusInvalidHandle
	}
	if d.props.Domain != device.DomainDevice || s.props.Domain != device.DomainDevice {
		return device.StatusInvalidArgument
	}
	if d.props.Width != s.props.Width || d.props.Height != s.props.Height {
		return device.StatusInvalidArgument
	}

	switch {
	case s.props.Format == device.FormatYUV420 && d.props.Format == device.FormatRGBA8:
		yuv420ToRGBA(d.data, s.data, s.props.Width, s.props.Height)
	case s.props.Format == d.props.Format:
		copy(d.data, s.data)
	default:
		return device.StatusInvalidArgument
	}

	d.timestamp = s.timestamp
	return device.StatusOK
}

// CreateTransformer initializes a simulated resize engine
func (p *Platform) CreateTransformer(params device.TransformParams) (device.Transformer, device.Status) {
	return &transformer{params: params}, device.StatusOK
}

// CreateStreamer registers a single-slot cross-domain streamer
func (p *Platform) CreateStreamer(props device.ImageProperties, targetDomain device.MemoryDomain) (device.Streamer, device.Status) {
	if props.Format != device.FormatRGBA8 {
		return nil, device.StatusInvalidArgument
	}
	st := &streamer{props: props, targetDomain: targetDomain}
	st.cond = sync.NewCond(&st.mu)
	return st, device.StatusOK
}

// sensor is a paced synthetic camera
type sensor struct {
	logger     *zap.Logger
	width      int
	height     int
	fps        int
	frameLimit int

	mu          sync.Mutex
	started     bool
	startTime   time.Time
	frameIndex  int64
	outstanding int
	released    bool
}

func (s *sensor) ImageProperties() (device.ImageProperties, device.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return device.ImageProperties{}, device.StatusInvalidHandle
	}
	return device.ImageProperties{
		Width:  s.width,
		Height: s.height,
		Format: device.FormatYUV420,
		Domain: device.DomainDevice,
	}, device.StatusOK
}

func (s *sensor) Start() device.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return device.StatusInvalidHandle
	}
	if s.started {
		return device.StatusInternalError
	}
	s.started = true
	s.startTime = time.Now()
	s.frameIndex = 0
	return device.StatusOK
}

func (s *sensor) Stop() device.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return device.StatusInvalidHandle
	}
	s.started = false
	return device.StatusOK
}

// ReadFrame paces frames to the configured fps. A read arriving before the
// next frame is due sleeps until it is due or the timeout expires.
func (s *sensor) ReadFrame(timeout time.Duration) (device.Frame, device.Status) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, device.StatusInvalidHandle
	}
	if !s.started {
		s.mu.Unlock()
		return nil, device.StatusNotReady
	}
	if s.frameLimit >= 0 && s.frameIndex >= int64(s.frameLimit) {
		s.mu.Unlock()
		return nil, device.StatusEndOfStream
	}
	if s.outstanding >= frameRingSize {
		s.mu.Unlock()
		s.logger.Error("Virtual sensor frame ring exhausted")
		return nil, device.StatusInternalError
	}

	interval := time.Second / time.Duration(s.fps)
	due := s.startTime.Add(time.Duration(s.frameIndex) * interval)
	index := s.frameIndex
	s.mu.Unlock()

	if wait := time.Until(due); wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return nil, device.StatusTimeout
		}
		time.Sleep(wait)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.released {
		return nil, device.StatusNotReady
	}
	s.frameIndex++
	s.outstanding++

	timestamp := due.UnixMicro()
	img := newImage(device.ImageProperties{
		Width:  s.width,
		Height: s.height,
		Format: device.FormatYUV420,
		Domain: device.DomainDevice,
	})
	img.timestamp = timestamp
	fillTestPattern(img.data, s.width, s.height, index)

	return &frame{sensor: s, image: img}, device.StatusOK
}

func (s *sensor) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.started = false
}

// frame is one captured frame borrowed from the sensor ring
type frame struct {
	sensor   *sensor
	image    *image
	returned bool
	mu       sync.Mutex
}

func (f *frame) Image() (device.Image, device.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returned {
		return nil, device.StatusInvalidHandle
	}
	return f.image, device.StatusOK
}

func (f *frame) Return() device.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returned {
		return device.StatusInvalidHandle
	}
	f.returned = true
	f.image.Destroy()

	f.sensor.mu.Lock()
	f.sensor.outstanding--
	f.sensor.mu.Unlock()
	return device.StatusOK
}

// image backs both memory domains with a Go slice; HostData still refuses
// device-domain access so domain bugs surface in tests.
type image struct {
	props     device.ImageProperties
	data      []byte
	timestamp int64
	destroyed bool
}

func newImage(props device.ImageProperties) *image {
	size := props.Width * props.Height * 4
	if props.Format == device.FormatYUV420 {
		size = props.Width*props.Height + props.Width*props.Height/2
	}
	return &image{props: props, data: make([]byte, size)}
}

func (i *image) Properties() (device.ImageProperties, device.Status) {
	if i.destroyed {
		return device.ImageProperties{}, device.StatusInvalidHandle
	}
	return i.props, device.StatusOK
}

func (i *image) Timestamp() (int64, device.Status) {
	if i.destroyed {
		return 0, device.StatusInvalidHandle
	}
	return i.timestamp, device.StatusOK
}

func (i *image) HostData() ([]byte, device.Status) {
	if i.destroyed {
		return nil, device.StatusInvalidHandle
	}
	if i.props.Domain != device.DomainHost {
		return nil, device.StatusInvalidArgument
	}
	return i.data, device.StatusOK
}

func (i *image) Destroy() {
	i.destroyed = true
	i.data = nil
}

// transformer resizes with nearest-neighbor sampling
type transformer struct {
	params        device.TransformParams
	border        device.BorderMode
	interpolation device.InterpolationMode
	released      bool
}

func (t *transformer) SetBorderMode(mode device.BorderMode) device.Status {
	if t.released {
		return device.StatusInvalidHandle
	}
	t.border = mode
	return device.StatusOK
}

func (t *transformer) SetInterpolationMode(mode device.InterpolationMode) device.Status {
	if t.released {
		return device.StatusInvalidHandle
	}
	t.interpolation = mode
	return device.StatusOK
}

func (t *transformer) CopyFullImage(dst, src device.Image) device.Status {
	if t.released {
		return device.StatusInvalidHandle
	}
	d, okd := dst.(*image)
	s, oks := src.(*image)
	if !okd || !oks || d.destroyed || s.destroyed {
		return device.StatusInvalidHandle
	}
	if d.props.Format != device.FormatRGBA8 || s.props.Format != device.FormatRGBA8 {
		return device.StatusInvalidArgument
	}

	for y := 0; y < d.props.Height; y++ {
		sy := y * s.props.Height / d.props.Height
		for x := 0; x < d.props.Width; x++ {
			sx := x * s.props.Width / d.props.Width
			di := (y*d.props.Width + x) * 4
			si := (sy*s.props.Width + sx) * 4
			copy(d.data[di:di+4], s.data[si:si+4])
		}
	}

	d.timestamp = s.timestamp
	return device.StatusOK
}

func (t *transformer) Release() {
	t.released = true
}

// streamer slot states
const (
	slotIdle = iota
	slotSent
	slotReceived
	slotConsumed
)

// streamer is a strict single-slot handoff. The state machine rejects any
// call that violates the send -> receive -> return -> producer-return cycle.
type streamer struct {
	props        device.ImageProperties
	targetDomain device.MemoryDomain

	mu       sync.Mutex
	cond     *sync.Cond
	state    int
	hostView *image
	released bool
}

func (st *streamer) ProducerSend(img device.Image) device.Status {
	src, ok := img.(*image)
	if !ok || src.destroyed {
		return device.StatusInvalidHandle
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return device.StatusInvalidHandle
	}
	if st.state != slotIdle {
		return device.StatusBufferFull
	}
	if src.props.Width != st.props.Width || src.props.Height != st.props.Height ||
		src.props.Format != st.props.Format {
		return device.StatusInvalidArgument
	}

	// Materialize the host-domain view at send time; a real streamer would
	// DMA on receive, but the contents are fixed once sent either way.
	host := newImage(device.ImageProperties{
		Width:  src.props.Width,
		Height: src.props.Height,
		Format: src.props.Format,
		Domain: st.targetDomain,
	})
	copy(host.data, src.data)
	host.timestamp = src.timestamp

	st.hostView = host
	st.state = slotSent
	st.cond.Broadcast()
	return device.StatusOK
}

func (st *streamer) ConsumerReceive(timeout time.Duration) (device.Image, device.Status) {
	deadline := time.Now().Add(timeout)

	st.mu.Lock()
	defer st.mu.Unlock()
	for st.state != slotSent {
		if st.released {
			return nil, device.StatusInvalidHandle
		}
		if !st.waitUntil(deadline) {
			return nil, device.StatusTimeout
		}
	}
	st.state = slotReceived
	return st.hostView, device.StatusOK
}

func (st *streamer) ConsumerReturn(img device.Image) device.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return device.StatusInvalidHandle
	}
	h, ok := img.(*image)
	if st.state != slotReceived || !ok || h != st.hostView {
		return device.StatusInvalidArgument
	}
	st.hostView.Destroy()
	st.hostView = nil
	st.state = slotConsumed
	st.cond.Broadcast()
	return device.StatusOK
}

func (st *streamer) ProducerReturn(timeout time.Duration) device.Status {
	deadline := time.Now().Add(timeout)

	st.mu.Lock()
	defer st.mu.Unlock()
	for st.state != slotConsumed {
		if st.released {
			return device.StatusInvalidHandle
		}
		if st.state == slotIdle {
			return device.StatusInvalidArgument
		}
		if !st.waitUntil(deadline) {
			return device.StatusTimeout
		}
	}
	st.state = slotIdle
	st.cond.Broadcast()
	return device.StatusOK
}

// waitUntil blocks on the condition variable until woken or the deadline
// passes. Returns false once the deadline is reached. Callers re-check
// their predicate in a loop, so spurious wakeups are harmless.
func (st *streamer) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.AfterFunc(remaining, st.cond.Broadcast)
	defer timer.Stop()
	st.cond.Wait()
	return true
}

func (st *streamer) Release() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.released = true
	if st.hostView != nil {
		st.hostView.Destroy()
		st.hostView = nil
	}
	st.cond.Broadcast()
}

// fillTestPattern writes a moving gradient into a YUV420 planar buffer so
// consecutive frames are distinguishable downstream.
func fillTestPattern(data []byte, width, height int, frameIndex int64) {
	shift := int(frameIndex % 256)
	ySize := width * height
	quarter := ySize / 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = byte((x + y + shift) % 256)
		}
	}
	for i := 0; i < quarter; i++ {
		data[ySize+i] = byte((i + shift) % 256)
		data[ySize+quarter+i] = byte((i + 2*shift) % 256)
	}
}

// yuv420ToRGBA converts planar YUV420 to interleaved RGBA8 with BT.601
// integer math.
func yuv420ToRGBA(dst, src []byte, width, height int) {
	ySize := width * height
	uPlane := src[ySize : ySize+ySize/4]
	vPlane := src[ySize+ySize/4:]

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			yv := int(src[row*width+col])
			ci := (row/2)*(width/2) + col/2
			u := int(uPlane[ci]) - 128
			v := int(vPlane[ci]) - 128

			r := yv + (351*v)/256
			g := yv - (86*u+179*v)/256
			b := yv + (443*u)/256

			di := (row*width + col) * 4
			dst[di] = clamp8(r)
			dst[di+1] = clamp8(g)
			dst[di+2] = clamp8(b)
			dst[di+3] = 255
		}
	}
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

var _ device.Platform = (*Platform)(nil)
var _ device.ImageContext = (*Platform)(nil)
