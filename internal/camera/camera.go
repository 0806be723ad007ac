package camera

// Package camera drives selfie capture: it acquires a device stream, shows a
// live preview, grabs one frame into a JPEG artifact and releases the device
// on every exit path.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"

	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/notify"

	"golang.org/x/image/draw"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrUnsupported      = errors.New("camera not supported")
	ErrNotStreaming     = errors.New("camera is not streaming")
	ErrClosed           = errors.New("camera closed while opening")
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultQuality = 90

	FacingUser = "user"
)

// Constraints is a best-effort request for the stream shape.
type Constraints struct {
	Facing string
	Width  int
	Height int
}

// Device hands out streams. Open may block until the user grants access.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired camera. Resolution may report 0x0 when the device
// does not know its native size yet.
type Stream interface {
	Frame() (image.Image, error)
	Resolution() (width, height int)
	Close() error
}

// Controls is the visibility of the camera buttons.
type Controls struct {
	Open    bool
	Capture bool
	Close   bool
}

// Idle is the control layout while no stream is held.
var Idle = Controls{Open: true}

// Preview shows the live feed and the captured still.
type Preview interface {
	ShowLive(Stream)
	HideLive()
	ShowStill(*artifact.Artifact)
	HideStill()
	SetControls(Controls)
}

// Encoder writes img as JPEG at the given quality (1-100).
type Encoder func(w io.Writer, img image.Image, quality int) error

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// State is the pipeline lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateStreaming
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateStreaming:
		return "STREAMING"
	case StateCaptured:
		return "CAPTURED"
	}
	return "CLOSED"
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	Width   int
	Height  int
	Quality int
	Preview Preview
	Encoder Encoder
	Logger  *slog.Logger
}

// Pipeline owns at most one stream at a time.
type Pipeline struct {
	device Device
	bar    *notify.Bar
	slot   *artifact.Slot

	constraints Constraints
	quality     int
	preview     Preview
	encode      Encoder
	logger      *slog.Logger

	mu       sync.Mutex
	state    State
	stream   Stream
	gen      uint64
	controls Controls
}

// New creates a pipeline that stores captures in slot and reports through bar.
// A nil device behaves as a platform without camera support.
func New(device Device, bar *notify.Bar, slot *artifact.Slot, opts Options) *Pipeline {
	p := &Pipeline{
		device:      device,
		bar:         bar,
		slot:        slot,
		constraints: Constraints{Facing: FacingUser, Width: opts.Width, Height: opts.Height},
		quality:     opts.Quality,
		preview:     opts.Preview,
		encode:      opts.Encoder,
		logger:      opts.Logger,
		controls:    Idle,
	}
	if p.constraints.Width <= 0 || p.constraints.Height <= 0 {
		p.constraints.Width, p.constraints.Height = DefaultWidth, DefaultHeight
	}
	if p.quality <= 0 || p.quality > 100 {
		p.quality = DefaultQuality
	}
	if p.preview == nil {
		p.preview = nopPreview{}
	}
	if p.encode == nil {
		p.encode = encodeJPEG
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.preview.SetControls(Idle)
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Controls returns the current button visibility.
func (p *Pipeline) Controls() Controls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controls
}

// Open acquires a stream and starts the live preview. Opening while a stream
// is already held or being acquired is a no-op.
func (p *Pipeline) Open(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateOpening || p.state == StateStreaming {
		p.mu.Unlock()
		return nil
	}
	if p.device == nil {
		p.state = StateClosed
		p.mu.Unlock()
		p.bar.Error("Camera API not supported on this device.")
		return ErrUnsupported
	}
	p.state = StateOpening
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	s, err := p.device.Open(ctx, p.constraints)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		if p.gen == gen {
			p.state = StateClosed
		}
		if errors.Is(err, ErrUnsupported) {
			p.bar.Error("Camera API not supported on this device.")
		} else {
			p.bar.Error("Unable to access camera. Please allow camera permissions or use file upload.")
		}
		return fmt.Errorf("failed to open camera: %w", err)
	}

	// Closed (or reopened) while the device was still granting access.
	if p.gen != gen || p.state != StateOpening {
		p.release(s)
		return ErrClosed
	}

	p.stream = s
	p.state = StateStreaming
	p.preview.HideStill()
	p.preview.ShowLive(s)
	p.setControls(Controls{Capture: true, Close: true})
	p.bar.Info("Camera started. Position your face in the frame and click Capture.")
	return nil
}

// Capture grabs the current frame, encodes it and releases the device. On
// failure the stream stays open so the user can try again.
func (p *Pipeline) Capture() (*artifact.Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateStreaming || p.stream == nil {
		p.bar.Error("Camera not ready.")
		return nil, ErrNotStreaming
	}

	frame, err := p.stream.Frame()
	if err != nil {
		p.bar.Error("Capture failed. Try again.")
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	w, h := p.stream.Resolution()
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	raster := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(raster, raster.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := p.encode(&buf, raster, p.quality); err != nil || buf.Len() == 0 {
		p.bar.Error("Capture failed. Try again.")
		if err == nil {
			err = errors.New("empty image")
		}
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	a := artifact.FromCamera(buf.Bytes())
	p.slot.Set(a)
	p.preview.ShowStill(a)

	p.closeLocked()
	p.state = StateCaptured
	p.bar.Success("Selfie captured. It was converted into a file and is ready to upload.")
	return a, nil
}

// Close releases any held stream, hides the live preview, resets the
// controls and clears the messaging bar. Safe to call in any state.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	p.state = StateClosed
}

// Run opens the camera, calls fn with the live stream and releases the
// device when fn returns or panics.
func (p *Pipeline) Run(ctx context.Context, fn func(Stream) error) error {
	if err := p.Open(ctx); err != nil {
		return err
	}
	defer p.Close()

	p.mu.Lock()
	s := p.stream
	p.mu.Unlock()
	if s == nil {
		return ErrNotStreaming
	}
	return fn(s)
}

func (p *Pipeline) closeLocked() {
	p.gen++
	if p.stream != nil {
		p.release(p.stream)
		p.stream = nil
	}
	p.preview.HideLive()
	p.setControls(Idle)
	p.bar.Clear()
}

func (p *Pipeline) release(s Stream) {
	if err := s.Close(); err != nil {
		p.logger.Warn("Failed to release camera", "error", err)
	}
}

func (p *Pipeline) setControls(c Controls) {
	p.controls = c
	p.preview.SetControls(c)
}

type nopPreview struct{}

func (nopPreview) ShowLive(Stream)              {}
func (nopPreview) HideLive()                    {}
func (nopPreview) ShowStill(*artifact.Artifact) {}
func (nopPreview) HideStill()                   {}
func (nopPreview) SetControls(Controls)         {}
