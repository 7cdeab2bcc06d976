package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"
)

const startTimeout = 5 * time.Second

// GstCameraConfig maps facing directions to V4L2 devices.
type GstCameraConfig struct {
	RearDevice  string
	FrontDevice string
	Width       int
	Height      int
}

// GstCamera opens V4L2 devices through a GStreamer pipeline ending in an appsink
// that delivers GRAY8 frames.
type GstCamera struct {
	cfg    GstCameraConfig
	logger *zap.Logger
}

// NewGstCamera builds a camera. GStreamer is initialised lazily on first Open.
func NewGstCamera(cfg GstCameraConfig, logger *zap.Logger) (*GstCamera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.RearDevice == "" && cfg.FrontDevice == "" {
		return nil, fmt.Errorf("capture: no camera device configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GstCamera{cfg: cfg, logger: logger.Named("gst")}, nil
}

func (c *GstCamera) device(facing Facing) string {
	if facing == FacingFront {
		return c.cfg.FrontDevice
	}
	return c.cfg.RearDevice
}

func (c *GstCamera) launchLine(device string) string {
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! video/x-raw,format=GRAY8,width=%d,height=%d ! appsink name=sink max-buffers=1 drop=true sync=false",
		device, c.cfg.Width, c.cfg.Height,
	)
}

// Open starts the pipeline and waits until it plays or reports an error.
func (c *GstCamera) Open(ctx context.Context, facing Facing) (Stream, error) {
	device := c.device(facing)
	if device == "" {
		return nil, fmt.Errorf("no %s camera configured", facing)
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(c.launchLine(device))
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("find appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("start pipeline on %s: %w", device, err)
	}

	if err := waitPlaying(ctx, pipeline); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("camera %s: %w", device, err)
	}

	c.logger.Info("pipeline playing", zap.String("device", device), zap.String("facing", string(facing)))
	return &gstStream{
		pipeline: pipeline,
		sink:     sink,
		bus:      pipeline.GetPipelineBus(),
		width:    c.cfg.Width,
		height:   c.cfg.Height,
	}, nil
}

func waitPlaying(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(startTimeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("%s", gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() != pipeline.GetName() {
				continue
			}
			if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
				return nil
			}
		}
	}
	return fmt.Errorf("pipeline did not reach PLAYING within %v", startTimeout)
}

type gstStream struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	bus      *gst.Bus
	width    int
	height   int

	seq       atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// Frame pulls the latest sample without blocking.
func (s *gstStream) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if msg := s.bus.Pop(); msg != nil && msg.Type() == gst.MessageError {
		return Frame{}, fmt.Errorf("camera error: %s", msg.ParseError().Error())
	}

	sample := s.sink.TryPullSample(0)
	if sample == nil {
		if s.sink.IsEOS() {
			return Frame{}, ErrStreamEnded
		}
		return Frame{}, ErrFrameNotReady
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return Frame{}, ErrFrameNotReady
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) < s.width*s.height {
		buffer.Unmap()
		return Frame{}, ErrFrameNotReady
	}
	pixels := make([]byte, len(data))
	copy(pixels, data)
	buffer.Unmap()

	return Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      pixels,
	}, nil
}

// Close stops the pipeline and releases the device.
func (s *gstStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pipeline.SetState(gst.StateNull)
	})
	return s.closeErr
}
