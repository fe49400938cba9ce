package capture

import (
	"context"
	"errors"
	"sync"
)

// Terminal capture failures. None of these are retried here; recovery is a
// user-initiated reload from a higher layer.
var (
	ErrUnsupported      = errors.New("capture: device offers no camera")
	ErrPermissionDenied = errors.New("capture: camera permission denied")
	ErrDeviceError      = errors.New("capture: camera device error")
	ErrNotReady         = errors.New("capture: no frame produced yet")
)

// DeviceLink is the transport to the remote device camera. RequestCamera
// blocks until the device reports a live stream or a terminal failure.
type DeviceLink interface {
	RequestCamera(ctx context.Context) error
	StopCamera()
}

// Controller owns the camera handle and the latest sampled frame. The
// device pushes encoded frames via OfferFrame; CaptureFrame hands out the
// most recent one.
type Controller struct {
	link DeviceLink

	mu       sync.Mutex
	acquired bool
	released bool
	frame    []byte
	width    int
	height   int
}

func NewController(link DeviceLink) *Controller {
	return &Controller{link: link}
}

// Acquire requests camera access and opens the live stream. At most one
// live acquisition at a time; a released controller may acquire again,
// which is how a full reload re-requests the camera.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.acquired && !c.released {
		c.mu.Unlock()
		return ErrDeviceError
	}
	c.acquired = true
	c.released = false
	c.frame = nil
	c.width, c.height = 0, 0
	c.mu.Unlock()

	if err := c.link.RequestCamera(ctx); err != nil {
		c.mu.Lock()
		c.acquired = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// OfferFrame records the newest encoded frame from the device stream.
// Frames arriving before Acquire completes are still kept; first-frame
// metadata is what flips the stream to ready.
func (c *Controller) OfferFrame(jpeg []byte, width, height int) {
	if len(jpeg) == 0 || width <= 0 || height <= 0 {
		return
	}
	c.mu.Lock()
	if !c.released {
		c.frame = jpeg
		c.width = width
		c.height = height
	}
	c.mu.Unlock()
}

// CaptureFrame samples the current video frame. Fails with ErrNotReady
// while the stream has not yet produced one (dimensions are zero).
func (c *Controller) CaptureFrame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired || c.released {
		return nil, ErrDeviceError
	}
	if c.width == 0 || c.height == 0 || len(c.frame) == 0 {
		return nil, ErrNotReady
	}
	out := make([]byte, len(c.frame))
	copy(out, c.frame)
	return out, nil
}

// Release stops the stream; idempotent.
func (c *Controller) Release() {
	c.mu.Lock()
	if c.released || !c.acquired {
		c.released = true
		c.mu.Unlock()
		return
	}
	c.released = true
	c.frame = nil
	c.width, c.height = 0, 0
	c.mu.Unlock()
	c.link.StopCamera()
}
