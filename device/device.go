// Package device defines the capability set the capture core requires from
// a camera device pipeline: sensor creation and frame reads, typed image
// buffers in device and host memory, format conversion, resizing, and a
// single-slot streamer that moves images between memory domains.
//
// The package carries no vendor code. Real deployments bind these
// interfaces to the vendor SDK; device/sim provides a pure-Go platform
// for development and tests.
package device

import "time"

// MemoryDomain identifies which memory space an image lives in
type MemoryDomain int

const (
	// DomainDevice is accelerator-resident memory, not directly CPU-addressable
	DomainDevice MemoryDomain = iota
	// DomainHost is CPU-addressable memory
	DomainHost
)

// PixelFormat identifies the pixel layout of an image
type PixelFormat int

const (
	// FormatYUV420 is the typical native processed output of a camera sensor
	FormatYUV420 PixelFormat = iota
	// FormatRGBA8 is 8-bit-per-channel interleaved RGBA
	FormatRGBA8
)

// BytesPerPixel returns the per-pixel byte count for interleaved formats
// and 0 for planar formats without a fixed interleaved stride.
func (f PixelFormat) BytesPerPixel() int {
	if f == FormatRGBA8 {
		return 4
	}
	return 0
}

// ImageProperties describes the format of an image buffer
type ImageProperties struct {
	Width  int
	Height int
	Format PixelFormat
	Domain MemoryDomain
}

// SensorParams selects and configures a sensor driver
type SensorParams struct {
	// Protocol names the driver, e.g. "camera.gmsl"
	Protocol string
	// Parameters is the driver-specific parameter string
	Parameters string
}

// Platform is the hardware abstraction layer entry point
type Platform interface {
	// CreateSensor opens a sensor for the given protocol and parameters
	CreateSensor(params SensorParams) (Sensor, Status)
}

// ImageContext owns image allocation and the image processing engines.
// One context is shared by every component of a capture instance.
type ImageContext interface {
	// CreateImage allocates a typed image buffer in the given domain
	CreateImage(props ImageProperties) (Image, Status)

	// ConvertImage converts src into dst's pixel format; both images must
	// live in the device domain and share dimensions
	ConvertImage(dst, src Image) Status

	// CreateTransformer initializes a resize/transform engine
	CreateTransformer(params TransformParams) (Transformer, Status)

	// CreateStreamer registers a cross-domain streamer bound to the given
	// image format, delivering into targetDomain
	CreateStreamer(props ImageProperties, targetDomain MemoryDomain) (Streamer, Status)
}

// Sensor is an opened camera device
type Sensor interface {
	// ImageProperties queries the native processed output format
	ImageProperties() (ImageProperties, Status)

	// Start begins capture
	Start() Status

	// Stop halts capture
	Stop() Status

	// ReadFrame blocks up to timeout for the next frame. Distinguishes
	// StatusTimeout and StatusNotReady (transient) from StatusEndOfStream
	// and hard failures.
	ReadFrame(timeout time.Duration) (Frame, Status)

	// Release closes the sensor and frees driver resources
	Release()
}

// Frame is a transient reference to one captured frame. It is valid only
// until Return is called, and Return must be called exactly once per frame
// or the sensor's internal frame ring is exhausted.
type Frame interface {
	// Image extracts the native processed image view of the frame
	Image() (Image, Status)

	// Return hands the frame back to the sensor's pool
	Return() Status
}

// Image is a typed pixel buffer owned by the device pipeline
type Image interface {
	// Properties returns the image format descriptor
	Properties() (ImageProperties, Status)

	// Timestamp returns the device clock value at capture, in microseconds
	Timestamp() (int64, Status)

	// HostData returns direct access to the pixel bytes. Only valid for
	// host-domain images; device-domain images return StatusInvalidArgument.
	HostData() ([]byte, Status)

	// Destroy frees the buffer. Safe to call once; the image is invalid after.
	Destroy()
}

// BorderMode selects how a transformer fills pixels outside the source
type BorderMode int

const (
	// BorderZero fills the border with zeroes
	BorderZero BorderMode = iota
	// BorderRepeat repeats the edge pixels
	BorderRepeat
)

// InterpolationMode selects the transformer's sampling kernel
type InterpolationMode int

const (
	// InterpolationDefault is the engine's default kernel
	InterpolationDefault InterpolationMode = iota
	// InterpolationLinear is bilinear sampling
	InterpolationLinear
)

// TransformParams configures a Transformer
type TransformParams struct {
	IgnoreAspectRatio bool
}

// Transformer resizes device-resident images
type Transformer interface {
	SetBorderMode(mode BorderMode) Status
	SetInterpolationMode(mode InterpolationMode) Status

	// CopyFullImage resizes the full src image into dst
	CopyFullImage(dst, src Image) Status

	// Release frees the engine
	Release()
}

// Streamer is a single-slot producer/consumer handoff moving one image at
// a time between memory domains. The caller must follow the strict cycle
// ProducerSend -> ConsumerReceive -> ConsumerReturn -> ProducerReturn
// before the next send; violating the ordering is a programming error.
type Streamer interface {
	// ProducerSend posts a device image into the slot
	ProducerSend(img Image) Status

	// ConsumerReceive blocks up to timeout for the host-domain view of the
	// posted image. The returned image is borrowed and must be given back
	// via ConsumerReturn, not destroyed.
	ConsumerReceive(timeout time.Duration) (Image, Status)

	// ConsumerReturn releases the borrowed host-domain image
	ConsumerReturn(img Image) Status

	// ProducerReturn completes the producer side, freeing the slot
	ProducerReturn(timeout time.Duration) Status

	// Release destroys the streamer registration
	Release()
}
