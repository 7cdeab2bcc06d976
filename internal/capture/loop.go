package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// LoopOptions configures a Loop.
type LoopOptions struct {
	Facing       Facing
	PollInterval time.Duration
	Classify     ClassifyFunc
}

// Loop is the camera capture loop. It is safe for concurrent use.
type Loop struct {
	camera   Camera
	decoder  Decoder
	classify ClassifyFunc
	facing   Facing
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	stream  Stream
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	activations    atomic.Uint64
	framesSampled  atomic.Uint64
	framesNotReady atomic.Uint64
	decoded        atomic.Uint64
	noise          atomic.Uint64
}

// NewLoop validates options and builds an idle loop.
func NewLoop(camera Camera, decoder Decoder, opts LoopOptions, logger *zap.Logger) (*Loop, error) {
	if camera == nil {
		return nil, errors.New("capture: camera is required")
	}
	if decoder == nil {
		return nil, errors.New("capture: decoder is required")
	}
	if opts.Classify == nil {
		return nil, errors.New("capture: classify func is required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("capture: invalid poll interval %v", opts.PollInterval)
	}
	if opts.Facing == "" {
		opts.Facing = FacingRear
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		camera:   camera,
		decoder:  decoder,
		classify: opts.Classify,
		facing:   opts.Facing,
		interval: opts.PollInterval,
		logger:   logger.Named("capture"),
	}, nil
}

// Activate opens the camera and starts polling. ctx bounds both the open and
// the lifetime of the activation. Failures are returned and reported to sink;
// they are never retried automatically.
func (l *Loop) Activate(ctx context.Context, sink Sink) error {
	l.mu.Lock()
	if l.state == StateStarting || l.state == StateReady {
		l.mu.Unlock()
		return ErrAlreadyActive
	}
	l.gen++
	gen := l.gen
	l.state = StateStarting
	l.lastErr = nil
	l.mu.Unlock()

	l.activations.Add(1)
	stream, err := l.camera.Open(ctx, l.facing)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		return ErrDeactivated
	}
	if err != nil {
		l.state = StateFailed
		l.lastErr = err
		l.mu.Unlock()
		l.logger.Warn("camera activation failed", zap.String("facing", string(l.facing)), zap.Error(err))
		sink.OnCaptureError(err)
		return fmt.Errorf("capture: open camera: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.stream = stream
	l.cancel = cancel
	l.done = done
	l.state = StateReady
	l.mu.Unlock()

	l.logger.Info("camera active", zap.String("facing", string(l.facing)), zap.Duration("poll_interval", l.interval))
	go l.run(runCtx, gen, stream, sink, done)
	return nil
}

// Deactivate cancels any pending tick, waits for an in-flight tick and releases
// the stream. Idempotent.
func (l *Loop) Deactivate() {
	l.mu.Lock()
	l.gen++
	cancel, done, stream := l.cancel, l.done, l.stream
	l.cancel, l.done, l.stream = nil, nil, nil
	wasActive := l.state == StateStarting || l.state == StateReady
	l.state = StateIdle
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			l.logger.Warn("camera release failed", zap.Error(err))
		}
	}
	if wasActive {
		l.logger.Info("camera released")
	}
}

// State returns the lifecycle state and the last activation or stream error.
func (l *Loop) State() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.lastErr
}

// Stats returns loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Activations:    l.activations.Load(),
		FramesSampled:  l.framesSampled.Load(),
		FramesNotReady: l.framesNotReady.Load(),
		Decoded:        l.decoded.Load(),
		NoiseDiscarded: l.noise.Load(),
	}
}

func (l *Loop) run(ctx context.Context, gen uint64, stream Stream, sink Sink, done chan struct{}) {
	payload, err := l.poll(ctx, stream)
	if ctx.Err() != nil {
		payload, err = nil, nil
	}
	current := l.finish(gen, err)
	close(done)

	if !current {
		return
	}
	switch {
	case err != nil:
		l.logger.Error("camera stream failed", zap.Error(err))
		sink.OnCaptureError(err)
	case payload != nil:
		l.logger.Info("payload scanned", zap.String("kind", string(payload.Kind())))
		sink.OnPayload(payload)
	}
}

// finish releases the stream if gen is still the live activation and reports
// whether it was.
func (l *Loop) finish(gen uint64, err error) bool {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return false
	}
	stream := l.stream
	if l.cancel != nil {
		l.cancel()
	}
	l.stream, l.cancel, l.done = nil, nil, nil
	l.state = StateIdle
	if err != nil {
		l.state = StateFailed
		l.lastErr = err
	}
	l.mu.Unlock()

	if stream != nil {
		if cerr := stream.Close(); cerr != nil {
			l.logger.Warn("camera release failed", zap.Error(cerr))
		}
	}
	return true
}

func (l *Loop) poll(ctx context.Context, stream Stream) (domain.ScanPayload, error) {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		payload, err := l.tick(ctx, stream)
		if err != nil || payload != nil {
			return payload, err
		}
		timer.Reset(l.interval)
	}
}

func (l *Loop) tick(ctx context.Context, stream Stream) (domain.ScanPayload, error) {
	frame, err := stream.Frame(ctx)
	if errors.Is(err, ErrFrameNotReady) {
		l.framesNotReady.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.framesSampled.Add(1)

	raw, ok := l.decoder.Decode(frame)
	if !ok {
		return nil, nil
	}
	l.decoded.Add(1)

	payload, ok := l.classify(raw)
	if !ok {
		l.noise.Add(1)
		l.logger.Debug("discarding unrecognized payload", zap.Uint64("frame_seq", frame.Seq))
		return nil, nil
	}
	return payload, nil
}
