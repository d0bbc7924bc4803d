package camera

import (
	"fmt"
	"sync"
	"time"

	"drive-camera-publisher/device"
	"drive-camera-publisher/sink"
)

// Fault-injectable fakes for the device capability set. Each fake records
// enough bookkeeping to assert the resource symmetry and channel
// discipline properties.

// readOutcome scripts one ReadFrame result
type readOutcome struct {
	status    device.Status
	timestamp int64
}

type fakePlatform struct {
	mu sync.Mutex

	sensor             *fakeSensor
	createSensorStatus device.Status

	// createImageStatus is consumed per CreateImage call; missing entries
	// mean StatusOK
	createImageStatus       []device.Status
	createImageCalls        int
	images                  []*fakeImage
	convertStatus           device.Status
	convertCalls            int
	// convertFailOn fails the n-th ConvertImage call (1-based); 0 disables
	convertFailOn int
	createTransformerStatus device.Status
	transformer             *fakeTransformer
	transformerCopyStatus   device.Status
	createStreamerStatus    device.Status
	streamer                *fakeStreamer
	streamerReceiveStatus   device.Status
	streamerProps           device.ImageProperties
}

func newFakePlatform(width, height int, outcomes []readOutcome) *fakePlatform {
	p := &fakePlatform{}
	p.sensor = &fakeSensor{
		platform: p,
		props: device.ImageProperties{
			Width:  width,
			Height: height,
			Format: device.FormatYUV420,
			Domain: device.DomainDevice,
		},
		outcomes: outcomes,
	}
	return p
}

func (p *fakePlatform) CreateSensor(params device.SensorParams) (device.Sensor, device.Status) {
	if !p.createSensorStatus.OK() {
		return nil, p.createSensorStatus
	}
	p.sensor.mu.Lock()
	p.sensor.params = params
	p.sensor.wasCreated = true
	p.sensor.mu.Unlock()
	return p.sensor, device.StatusOK
}

func (p *fakePlatform) CreateImage(props device.ImageProperties) (device.Image, device.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := p.createImageCalls
	p.createImageCalls++
	if call < len(p.createImageStatus) && !p.createImageStatus[call].OK() {
		return nil, p.createImageStatus[call]
	}

	img := &fakeImage{props: props}
	p.images = append(p.images, img)
	return img, device.StatusOK
}

func (p *fakePlatform) ConvertImage(dst, src device.Image) device.Status {
	p.mu.Lock()
	p.convertCalls++
	st := p.convertStatus
	if p.convertFailOn > 0 && p.convertCalls == p.convertFailOn {
		st = device.StatusInternalError
	}
	p.mu.Unlock()
	if !st.OK() {
		return st
	}

	d := dst.(*fakeImage)
	s := src.(*fakeImage)
	d.mu.Lock()
	d.timestamp = s.timestamp
	d.mu.Unlock()
	return device.StatusOK
}

func (p *fakePlatform) CreateTransformer(params device.TransformParams) (device.Transformer, device.Status) {
	if !p.createTransformerStatus.OK() {
		return nil, p.createTransformerStatus
	}
	p.transformer = &fakeTransformer{copyStatus: p.transformerCopyStatus}
	return p.transformer, device.StatusOK
}

func (p *fakePlatform) CreateStreamer(props device.ImageProperties, targetDomain device.MemoryDomain) (device.Streamer, device.Status) {
	p.streamerProps = props
	if !p.createStreamerStatus.OK() {
		return nil, p.createStreamerStatus
	}
	p.streamer = &fakeStreamer{props: props, receiveStatus: p.streamerReceiveStatus}
	return p.streamer, device.StatusOK
}

// leakedResources reports any resource left allocated: an unreleased
// sensor counts only if it was created, images count unless destroyed.
func (p *fakePlatform) leakedResources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var leaks []string
	if p.sensor.created() && !p.sensor.releasedNow() {
		leaks = append(leaks, "sensor")
	}
	for i, img := range p.images {
		if !img.destroyedNow() {
			leaks = append(leaks, fmt.Sprintf("image%d", i))
		}
	}
	if p.transformer != nil && !p.transformer.released {
		leaks = append(leaks, "transformer")
	}
	if p.streamer != nil && !p.streamer.releasedNow() {
		leaks = append(leaks, "streamer")
	}
	return leaks
}

type fakeSensor struct {
	platform *fakePlatform
	params   device.SensorParams
	props    device.ImageProperties

	propsStatus device.Status
	startStatus device.Status

	mu             sync.Mutex
	outcomes       []readOutcome
	nextOutcome    int
	framesRead     int
	framesReturned int
	started        bool
	released       bool
	wasCreated     bool
}

func (s *fakeSensor) created() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wasCreated
}

func (s *fakeSensor) releasedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *fakeSensor) ImageProperties() (device.ImageProperties, device.Status) {
	if !s.propsStatus.OK() {
		return device.ImageProperties{}, s.propsStatus
	}
	return s.props, device.StatusOK
}

func (s *fakeSensor) Start() device.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.startStatus.OK() {
		return s.startStatus
	}
	s.started = true
	return device.StatusOK
}

func (s *fakeSensor) Stop() device.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return device.StatusOK
}

func (s *fakeSensor) ReadFrame(timeout time.Duration) (device.Frame, device.Status) {
	s.mu.Lock()
	if s.nextOutcome >= len(s.outcomes) {
		s.mu.Unlock()
		// Script exhausted: behave like a quiet sensor
		time.Sleep(timeout)
		return nil, device.StatusTimeout
	}
	outcome := s.outcomes[s.nextOutcome]
	s.nextOutcome++

	if outcome.status != device.StatusOK {
		s.mu.Unlock()
		return nil, outcome.status
	}

	s.framesRead++
	native := &fakeImage{props: s.props, timestamp: outcome.timestamp}
	frame := &fakeFrame{sensor: s, image: native}
	s.mu.Unlock()
	return frame, device.StatusOK
}

func (s *fakeSensor) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *fakeSensor) counts() (read, returned int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesRead, s.framesReturned
}

type fakeFrame struct {
	sensor  *fakeSensor
	image   *fakeImage
	mu      sync.Mutex
	returns int
}

func (f *fakeFrame) Image() (device.Image, device.Status) {
	return f.image, device.StatusOK
}

func (f *fakeFrame) Return() device.Status {
	f.mu.Lock()
	f.returns++
	double := f.returns > 1
	f.mu.Unlock()
	if double {
		return device.StatusInvalidHandle
	}

	f.sensor.mu.Lock()
	f.sensor.framesReturned++
	f.sensor.mu.Unlock()
	return device.StatusOK
}

type fakeImage struct {
	mu         sync.Mutex
	props      device.ImageProperties
	data       []byte
	timestamp  int64
	destroyed  bool
	hostStatus device.Status
}

func (i *fakeImage) Properties() (device.ImageProperties, device.Status) {
	return i.props, device.StatusOK
}

func (i *fakeImage) Timestamp() (int64, device.Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.timestamp, device.StatusOK
}

func (i *fakeImage) HostData() ([]byte, device.Status) {
	if !i.hostStatus.OK() {
		return nil, i.hostStatus
	}
	return i.data, device.StatusOK
}

func (i *fakeImage) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.destroyed = true
}

func (i *fakeImage) destroyedNow() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}

type fakeTransformer struct {
	copyStatus device.Status
	copyCalls  int
	released   bool
}

func (t *fakeTransformer) SetBorderMode(device.BorderMode) device.Status        { return device.StatusOK }
func (t *fakeTransformer) SetInterpolationMode(device.InterpolationMode) device.Status {
	return device.StatusOK
}

func (t *fakeTransformer) CopyFullImage(dst, src device.Image) device.Status {
	t.copyCalls++
	if !t.copyStatus.OK() {
		return t.copyStatus
	}
	d := dst.(*fakeImage)
	s := src.(*fakeImage)
	d.timestamp = s.timestamp
	return device.StatusOK
}

func (t *fakeTransformer) Release() { t.released = true }

// fakeStreamer checks the single-slot discipline on every call and keeps
// an operation log for the ordering assertions.
type fakeStreamer struct {
	props device.ImageProperties

	sendStatus    device.Status
	receiveStatus device.Status

	mu         sync.Mutex
	ops        []string
	state      string // "", "sent", "received", "consumed"
	hostImage  *fakeImage
	violations []string
	released   bool
	sentTs     int64
}

func (st *fakeStreamer) ProducerSend(img device.Image) device.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ops = append(st.ops, "send")
	if st.state != "" {
		st.violations = append(st.violations, "send while slot "+st.state)
	}
	if !st.sendStatus.OK() {
		return st.sendStatus
	}
	src := img.(*fakeImage)
	src.mu.Lock()
	st.sentTs = src.timestamp
	src.mu.Unlock()
	st.state = "sent"
	return device.StatusOK
}

func (st *fakeStreamer) ConsumerReceive(timeout time.Duration) (device.Image, device.Status) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ops = append(st.ops, "receive")
	if st.state != "sent" {
		st.violations = append(st.violations, "receive while slot "+st.state)
	}
	if !st.receiveStatus.OK() {
		return nil, st.receiveStatus
	}

	host := &fakeImage{
		props: device.ImageProperties{
			Width:  st.props.Width,
			Height: st.props.Height,
			Format: device.FormatRGBA8,
			Domain: device.DomainHost,
		},
		data:      make([]byte, st.props.Width*st.props.Height*4),
		timestamp: st.sentTs,
	}
	st.hostImage = host
	st.state = "received"
	return host, device.StatusOK
}

func (st *fakeStreamer) ConsumerReturn(img device.Image) device.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ops = append(st.ops, "consumer_return")
	if st.state != "received" || img != device.Image(st.hostImage) {
		st.violations = append(st.violations, "consumer return while slot "+st.state)
		return device.StatusInvalidArgument
	}
	st.state = "consumed"
	return device.StatusOK
}

func (st *fakeStreamer) ProducerReturn(timeout time.Duration) device.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ops = append(st.ops, "producer_return")
	if st.state != "consumed" {
		st.violations = append(st.violations, "producer return while slot "+st.state)
		return device.StatusInvalidArgument
	}
	st.state = ""
	return device.StatusOK
}

func (st *fakeStreamer) Release() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.released = true
}

func (st *fakeStreamer) releasedNow() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.released
}

func (st *fakeStreamer) opLog() ([]string, []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ops := append([]string(nil), st.ops...)
	violations := append([]string(nil), st.violations...)
	return ops, violations
}

// fakePublisher records everything the loop emits
type fakePublisher struct {
	mu       sync.Mutex
	messages []*sink.ImageMessage
	closed   []*sink.StreamClosed
}

func (p *fakePublisher) Publish(msg *sink.ImageMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *fakePublisher) PublishStreamClosed(event *sink.StreamClosed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, event)
}

func (p *fakePublisher) published() []*sink.ImageMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*sink.ImageMessage(nil), p.messages...)
}

func (p *fakePublisher) closedEvents() []*sink.StreamClosed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*sink.StreamClosed(nil), p.closed...)
}

var _ device.Platform = (*fakePlatform)(nil)
var _ device.ImageContext = (*fakePlatform)(nil)
